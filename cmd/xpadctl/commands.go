package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func newFlagSet(name string, e *env) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stdout)

	return fs
}

func expectArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, n, len(args))
	}

	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	if err := expectArgs("status", args, 0); err != nil {
		return err
	}

	st, err := e.cam.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "state:   %s\nframe:   %d\ngroup:   %d\nscan:    %d\nithl:    %+d\nconfig:  %s\n",
		st.State, st.Frame, st.Group, st.Scan, e.cam.ITHLOffset(), e.cam.ConfigName())

	return nil
}

func runInfo(ctx context.Context, e *env, args []string) error {
	if err := expectArgs("info", args, 0); err != nil {
		return err
	}

	text := func(name string, fn func(context.Context) (string, error)) error {
		v, err := fn(ctx)
		if errors.Is(err, camera.ErrUnsupportedOp) {
			v, err = "unsupported", nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(e.stdout, "%-14s %s\n", name+":", v)

		return nil
	}
	number := func(name string, fn func(context.Context) (int, error)) error {
		return text(name, func(ctx context.Context) (string, error) {
			n, err := fn(ctx)
			if err != nil {
				return "", err
			}

			return strconv.Itoa(n), nil
		})
	}

	w, h := e.cam.ImageSize()
	fmt.Fprintf(e.stdout, "%-14s %dx%d %s\n", "image:", w, h, e.cam.ImageType())

	steps := []error{
		text("type", e.cam.DetectorType),
		text("model", e.cam.DetectorModel),
		text("server image", e.cam.ServerImageSize),
		number("modules", e.cam.ModuleNumber),
		number("chips", e.cam.ChipNumber),
		number("module mask", e.cam.ModuleMask),
		number("chip mask", e.cam.ChipMask),
	}

	return errors.Join(steps...)
}

func runAcquire(ctx context.Context, e *env, args []string) error {
	var (
		outDir string
		frames int
		expo   time.Duration
	)

	fs := newFlagSet("acquire", e)
	fs.StringVarP(&outDir, "output", "o", ".", "directory receiving the frame files")
	fs.IntVarP(&frames, "frames", "n", 0, "number of frames, overrides the configuration")
	fs.DurationVarP(&expo, "exposure", "e", 0, "exposure time, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs("acquire", fs.Args(), 0); err != nil {
		return err
	}

	if frames > 0 {
		if err := e.cam.SetNbFrames(frames); err != nil {
			return err
		}
	}
	if expo > 0 {
		if err := e.cam.SetExpTime(expo.Seconds()); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	sink, ok := e.cam.Buffers().(*fileSink)
	if !ok {
		return errors.New("acquire: camera has no file sink")
	}
	sink.setDir(outDir)

	if err := e.cam.PrepareAcq(ctx); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	if err := e.cam.StartAcq(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	e.logger.Info("acquisition started", "run_id", e.cam.RunID(), "frames", e.cam.NbFrames())

	if err := e.cam.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			return err
		}

		e.logger.Warn("interrupted, aborting acquisition")
		abortCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.cam.Abort(abortCtx); err != nil {
			e.logger.Error("abort failed", "error", err)
		}
		_ = e.cam.Wait(abortCtx)
	}
	if err := sink.err(); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "acquired %d frame(s) into %s\n", e.cam.AcquiredFrames(), outDir)

	return nil
}

func runCalibrate(ctx context.Context, e *env, args []string) error {
	var (
		speedName string
		timeUS    int
		ithlMax   int
	)

	fs := newFlagSet("calibrate", e)
	fs.StringVar(&speedName, "speed", "Slow", "configuration speed: Slow, Medium or Fast")
	fs.IntVar(&timeUS, "time", 1_000_000, "beam exposure time in microseconds")
	fs.IntVar(&ithlMax, "ithl-max", 50, "upper ITHL bound of a beam calibration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs("calibrate", fs.Args(), 1); err != nil {
		return err
	}

	speed, err := camera.ParseOTNSpeed(speedName)
	if err != nil {
		return err
	}

	kind := fs.Arg(0)
	switch kind {
	case "otn":
		err = e.cam.CalibrateOTN(ctx, speed)
	case "otn-pulse":
		err = e.cam.CalibrateOTNPulse(ctx, speed)
	case "beam":
		err = e.cam.CalibrateBEAM(ctx, timeUS, ithlMax, speed)
	default:
		return fmt.Errorf("calibrate: unknown calibration %q", kind)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "%s calibration done\n", kind)

	return nil
}

func runCalib(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("calib: expected list, load NAME or save NAME")
	}

	switch args[0] {
	case "list":
		names, err := e.cam.Calibrations()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(e.stdout, name)
		}

		return nil
	case "load", "save":
		if err := expectArgs("calib "+args[0], args[1:], 1); err != nil {
			return err
		}
		if args[0] == "load" {
			return e.cam.LoadCalibration(ctx, args[1])
		}

		return e.cam.SaveCalibration(ctx, args[1])
	default:
		return fmt.Errorf("calib: unknown action %q", args[0])
	}
}

func runITHL(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("ithl: expected up, down or set N")
	}

	var err error
	switch args[0] {
	case "up":
		err = e.cam.IncreaseITHL(ctx)
	case "down":
		err = e.cam.DecreaseITHL(ctx)
	case "set":
		if err := expectArgs("ithl set", args[1:], 1); err != nil {
			return err
		}
		offset, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("ithl: invalid offset %q", args[1])
		}
		err = e.cam.SetITHLOffset(ctx, offset)
	default:
		return fmt.Errorf("ithl: unknown action %q", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "ithl offset %+d\n", e.cam.ITHLOffset())

	return nil
}

func runDigitalTest(ctx context.Context, e *env, args []string) error {
	if err := expectArgs("digital-test", args, 2); err != nil {
		return err
	}

	mode, err := camera.ParseDigitalTestMode(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("digital-test: invalid value %q", args[1])
	}

	return e.cam.DigitalTest(ctx, mode, value)
}

func runRegister(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return errors.New("register: expected NAME [VALUE]")
	}

	reg, err := camera.ParseRegister(args[0])
	if err != nil {
		return err
	}

	if len(args) == 2 {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("register: invalid value %q", args[1])
		}

		return e.cam.LoadConfigG(ctx, reg, value)
	}

	values, err := e.cam.ReadConfigG(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %v\n", reg, values)

	return nil
}

func runReset(ctx context.Context, e *env, args []string) error {
	if err := expectArgs("reset", args, 0); err != nil {
		return err
	}

	return e.cam.Reset(ctx)
}

// runConfig prints the effective configuration as YAML. Durations are
// printed as nanoseconds.
func runConfig(_ context.Context, e *env, args []string) error {
	if err := expectArgs("config", args, 0); err != nil {
		return err
	}

	enc := yaml.NewEncoder(e.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(e.cfg); err != nil {
		return err
	}

	return enc.Close()
}

// xpadctl drives an XPAD detector through its acquisition server.
//
// The connection and the acquisition defaults come from a YAML file (see
// package config); the global flags override the endpoint:
//
//	xpadctl -c xpad.yaml status
//	xpadctl --host 10.0.0.5 --model XPAD_S140 acquire -o /data/run1
//	xpadctl -c xpad.yaml calibrate beam --time 1000000 --ithl-max 40
//
// When metrics.listen is set, the Prometheus exporter runs for the lifetime
// of the command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/config"
	"github.com/arloliu/go-xpad/logger"
	"github.com/arloliu/go-xpad/metrics"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

var errUsage = errors.New("usage error")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globals holds the flags shared by every command.
type globals struct {
	configPath    string
	host          string
	port          int
	controlPort   int
	model         string
	protocol      string
	logLevel      string
	metricsListen string
	skipInit      bool
}

// env is what a command runs against.
type env struct {
	cfg    *config.Config
	cam    *camera.Camera
	logger logger.Logger
	stdout io.Writer
}

type command struct {
	summary string
	// connect reports whether the command needs an initialized camera.
	connect bool
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"status":       {summary: "print the detector status", connect: true, run: runStatus},
	"info":         {summary: "print the detector identification", connect: true, run: runInfo},
	"acquire":      {summary: "capture frames into raw files", connect: true, run: runAcquire},
	"calibrate":    {summary: "run an otn, otn-pulse or beam calibration", connect: true, run: runCalibrate},
	"calib":        {summary: "list, load or save calibration files", connect: true, run: runCalib},
	"ithl":         {summary: "adjust the ITHL threshold: up, down or set N", connect: true, run: runITHL},
	"digital-test": {summary: "run a digital test: MODE VALUE", connect: true, run: runDigitalTest},
	"register":     {summary: "read or write a global register: NAME [VALUE]", connect: true, run: runRegister},
	"reset":        {summary: "reset the detector", connect: true, run: runReset},
	"config":       {summary: "validate the configuration and print the effective values", run: runConfig},
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	var g globals

	fs := pflag.NewFlagSet("xpadctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration")
	fs.StringVar(&g.host, "host", "", "acquisition server host")
	fs.IntVar(&g.port, "port", 0, "acquisition server port")
	fs.IntVar(&g.controlPort, "control-port", 0, "secondary connection port, 0 disables it")
	fs.StringVar(&g.model, "model", "", "detector model, e.g. XPAD_S70")
	fs.StringVar(&g.protocol, "protocol", "", "protocol generation, v1 or v2")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&g.metricsListen, "metrics-listen", "", "Prometheus exporter address")
	fs.BoolVar(&g.skipInit, "skip-init", false, "connect without sending Init")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		printUsage(stderr, fs)
		return errUsage
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr, fs)
		return errUsage
	}

	cfg, err := loadConfig(&g, fs)
	if err != nil {
		return err
	}

	l := cfg.Logger(stderr)
	e := &env{cfg: cfg, logger: l, stdout: stdout}

	if !cmd.connect {
		return cmd.run(ctx, e, fs.Args()[1:])
	}

	sink := newFileSink()
	ccfg, err := cfg.CameraConfig(l, camera.WithBufferManager(sink))
	if err != nil {
		return err
	}
	cam, err := camera.New(ccfg)
	if err != nil {
		return err
	}
	defer cam.Close()
	sink.setFrameSize(cam.FrameSize())
	e.cam = cam

	if cfg.Metrics.Listen != "" {
		stop, err := startExporter(cfg, cam, l)
		if err != nil {
			return err
		}
		defer stop()
	}

	if !g.skipInit {
		if err := setup(ctx, cfg, cam); err != nil {
			return err
		}
	}

	return cmd.run(ctx, e, fs.Args()[1:])
}

func loadConfig(g *globals, fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}

	if fs.Changed("host") {
		cfg.Detector.Host = g.host
	}
	if fs.Changed("port") {
		// a secondary connection on the primary port follows it
		if cfg.Detector.ControlPort == cfg.Detector.Port {
			cfg.Detector.ControlPort = g.port
		}
		cfg.Detector.Port = g.port
	}
	if fs.Changed("control-port") {
		cfg.Detector.ControlPort = g.controlPort
	}
	if fs.Changed("model") {
		cfg.Detector.Model = g.model
	}
	if fs.Changed("protocol") {
		cfg.Detector.Protocol = g.protocol
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if fs.Changed("metrics-listen") {
		cfg.Metrics.Listen = g.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setup initializes the camera, loads the configured calibration and
// applies the acquisition defaults.
func setup(ctx context.Context, cfg *config.Config, cam *camera.Camera) error {
	if err := cam.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if name := cfg.Detector.Calibration; name != "" {
		if err := cam.LoadCalibration(ctx, name); err != nil {
			return fmt.Errorf("load calibration %s: %w", name, err)
		}
	}

	return cfg.Apply(ctx, cam)
}

func startExporter(cfg *config.Config, cam *camera.Camera, l logger.Logger) (func(), error) {
	reg, err := metrics.NewRegistry(map[string]*camera.Camera{cfg.Detector.Model: cam})
	if err != nil {
		return nil, err
	}

	exp := metrics.NewExporter(cfg.Metrics.Listen, cfg.Metrics.Path, reg, l)
	if err := exp.Start(); err != nil {
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := exp.Shutdown(ctx); err != nil {
			l.Warn("failed to stop metrics exporter", "error", err)
		}
	}, nil
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: xpadctl [flags] <command> [args]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
}

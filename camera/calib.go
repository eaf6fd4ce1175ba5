package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// MemoryConfigName names a detector configuration that was not loaded
	// from or saved to calibration files.
	MemoryConfigName = "MEMORY"

	globalConfigExt = ".cfg"
	localConfigExt  = ".cfl"
)

// calibrationPaths returns the global and local configuration files of prefix.
// A relative prefix is resolved in the calibration directory.
func (cam *Camera) calibrationPaths(prefix string) (string, string) {
	base := prefix
	if !filepath.IsAbs(base) {
		base = filepath.Join(cam.cfg.calibrationDir, base)
	}

	return base + globalConfigExt, base + localConfigExt
}

// Calibrations returns the prefixes of the calibrations found in the
// calibration directory.
func (cam *Camera) Calibrations() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(cam.cfg.calibrationDir, "*"+globalConfigExt))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), globalConfigExt))
	}
	sort.Strings(names)

	return names, nil
}

func (cam *Camera) loadCalibration(ctx context.Context, prefix string) error {
	if cam.ConfigName() == prefix {
		cam.logger.Info("calibration already loaded", "prefix", prefix)
		return nil
	}

	gpath, lpath := cam.calibrationPaths(prefix)

	gdata, err := os.ReadFile(gpath)
	if err != nil {
		return fmt.Errorf("camera: read global configuration: %w", err)
	}
	ldata, err := os.ReadFile(lpath)
	if err != nil {
		return fmt.Errorf("camera: read local configuration: %w", err)
	}

	if err := cam.loadConfigGFile(ctx, gdata); err != nil {
		return err
	}
	if err := cam.loadConfigLFile(ctx, ldata); err != nil {
		return err
	}

	cam.setConfigName(prefix)
	cam.logger.Info("calibration loaded", "prefix", prefix)

	return nil
}

func (cam *Camera) saveCalibration(ctx context.Context, prefix string) error {
	gpath, lpath := cam.calibrationPaths(prefix)
	if err := os.MkdirAll(filepath.Dir(gpath), 0o755); err != nil {
		return fmt.Errorf("camera: create calibration directory: %w", err)
	}

	if err := writeFile(gpath, func(w io.Writer) error { return cam.saveConfigG(ctx, w) }); err != nil {
		return err
	}
	if err := writeFile(lpath, func(w io.Writer) error { return cam.saveConfigL(ctx, w) }); err != nil {
		return err
	}

	cam.setConfigName(prefix)
	cam.logger.Info("calibration saved", "prefix", prefix)

	return nil
}

// writeFile writes path through fn, removing the file when fn fails.
func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("camera: create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	err = fn(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}

	return nil
}

// SaveConfigG reads every global register and writes one line per register:
// the module mask followed by the register values.
func (cam *Camera) SaveConfigG(ctx context.Context, w io.Writer) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}

	return cam.saveConfigG(ctx, w)
}

func (cam *Camera) saveConfigG(ctx context.Context, w io.Writer) error {
	mask := cam.cfg.model.ModuleMask()
	for _, reg := range Registers() {
		reply, err := cam.readConfigGReply(ctx, reg)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d %s \n", mask, reply); err != nil {
			return err
		}
	}

	return nil
}

// parseRegisterValues parses a ReadConfigG reply.
func parseRegisterValues(reply string) ([]int, error) {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("camera: empty register values")
	}

	vals := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("camera: invalid register value %q", f)
		}
		vals[i] = v
	}

	return vals, nil
}

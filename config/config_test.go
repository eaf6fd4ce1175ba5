package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/logger"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
detector:
  host: 10.0.0.5
  port: 4000
  control_port: 0
  model: S140
  protocol: v1
  image_type: "16"
  line_timeout: 2s
  status_poll_interval: 5ms
  calibration_dir: /var/lib/xpad
  calibration: beam_30keV
acquisition:
  exposure_time: 150ms
  latency_time: 1ms
  frames: 10
  trigger_mode: ExtGate
  output_signal: ExposureReadDone
  mode: DetectorBurst
  geometrical_correction: false
  stack_images: 2
log:
  level: debug
  format: console
metrics:
  listen: ":9100"
`

func TestDefault(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	require.NoError(cfg.Validate())
	require.Equal(3456, cfg.Detector.Port)
	require.Equal("XPAD_S70", cfg.Detector.Model)
	require.Equal(time.Second, cfg.Acquisition.ExposureTime)
	require.Empty(cfg.Metrics.Listen)
}

func TestParse(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(err)

	require.Equal("10.0.0.5", cfg.Detector.Host)
	require.Equal(4000, cfg.Detector.Port)
	require.Equal(0, cfg.Detector.ControlPort)
	require.Equal(2*time.Second, cfg.Detector.LineTimeout)
	require.Equal(5*time.Millisecond, cfg.Detector.StatusPollInterval)
	require.Equal("beam_30keV", cfg.Detector.Calibration)
	require.Equal(150*time.Millisecond, cfg.Acquisition.ExposureTime)
	require.Equal(10, cfg.Acquisition.Frames)
	require.False(cfg.Acquisition.GeometricalCorrection)
	require.Equal(":9100", cfg.Metrics.Listen)

	// keys missing from the file keep their defaults
	require.Equal(4*time.Millisecond, cfg.Acquisition.OverflowTime)
	require.True(cfg.Acquisition.ImageTransfer)
	require.Equal("/metrics", cfg.Metrics.Path)
	require.Equal(camera.DefaultOutputPath, cfg.Acquisition.OutputPath)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(strings.NewReader("detector:\n  hots: 10.0.0.5\n"))
	require.ErrorContains(t, err, "hots")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		want   string
	}{
		{name: "empty host", modify: func(cfg *Config) { cfg.Detector.Host = " " }, want: "detector.host"},
		{name: "port", modify: func(cfg *Config) { cfg.Detector.Port = 0 }, want: "detector.port"},
		{name: "control port", modify: func(cfg *Config) { cfg.Detector.ControlPort = 70000 }, want: "detector.control_port"},
		{name: "model", modify: func(cfg *Config) { cfg.Detector.Model = "XPAD_S99" }, want: "model"},
		{name: "protocol", modify: func(cfg *Config) { cfg.Detector.Protocol = "v9" }, want: "protocol"},
		{name: "image type", modify: func(cfg *Config) { cfg.Detector.ImageType = "24" }, want: "image type"},
		{name: "connect timeout", modify: func(cfg *Config) { cfg.Detector.ConnectTimeout = 0 }, want: "timeout"},
		{name: "poll interval", modify: func(cfg *Config) { cfg.Detector.StatusPollInterval = time.Hour }, want: "status_poll_interval"},
		{name: "exposure", modify: func(cfg *Config) { cfg.Acquisition.ExposureTime = -time.Second }, want: "exposure_time"},
		{name: "frames", modify: func(cfg *Config) { cfg.Acquisition.Frames = 0 }, want: "frames"},
		{name: "stack", modify: func(cfg *Config) { cfg.Acquisition.StackImages = 0 }, want: "stack_images"},
		{name: "trigger name", modify: func(cfg *Config) { cfg.Acquisition.TriggerMode = "Software" }, want: "trigger mode"},
		{name: "trigger unsupported", modify: func(cfg *Config) { cfg.Acquisition.TriggerMode = "ExtStartStop" }, want: "not supported"},
		{name: "output signal", modify: func(cfg *Config) { cfg.Acquisition.OutputSignal = "Busy" }, want: "output signal"},
		{name: "mode", modify: func(cfg *Config) { cfg.Acquisition.Mode = "Burst" }, want: "acquisition mode"},
		{name: "file format", modify: func(cfg *Config) { cfg.Acquisition.FileFormat = "tiff" }, want: "file format"},
		{name: "log level", modify: func(cfg *Config) { cfg.Log.Level = "loud" }, want: "level"},
		{name: "log format", modify: func(cfg *Config) { cfg.Log.Format = "xml" }, want: "log.format"},
		{
			name: "metrics path",
			modify: func(cfg *Config) {
				cfg.Metrics.Listen = ":9090"
				cfg.Metrics.Path = "metrics"
			},
			want: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	cfg.Detector.Model = "nope"
	cfg.Acquisition.Frames = -1

	err := cfg.Validate()
	require.ErrorIs(err, camera.ErrInvalidArgument)
	require.ErrorContains(err, "acquisition.frames")
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "xpad.yaml")
	require.NoError(os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal("XPAD_S140", mustModel(t, cfg).String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(err, os.ErrNotExist)
}

func mustModel(t *testing.T, cfg *Config) camera.Model {
	t.Helper()

	m, err := camera.ParseModel(cfg.Detector.Model)
	require.NoError(t, err)

	return m
}

func TestCameraConfig(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(err)

	mockLogger := logger.NewMockLogger()
	ccfg, err := cfg.CameraConfig(mockLogger)
	require.NoError(err)
	require.Equal("10.0.0.5", ccfg.Host())
	require.Equal(4000, ccfg.Port())
	require.Equal(0, ccfg.ControlPort())
	require.Equal(camera.ModelS140, ccfg.Model())
	require.Equal(camera.ProtocolV1, ccfg.Protocol())
	require.Equal(camera.Bpp16, ccfg.ImageType())
	require.Equal(5*time.Millisecond, ccfg.StatusPollInterval())
	require.Equal("/var/lib/xpad", ccfg.CalibrationDir())
	require.Same(mockLogger, ccfg.GetLogger())
}

func TestApply(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(err)

	ccfg, err := cfg.CameraConfig(nil)
	require.NoError(err)
	cam, err := camera.New(ccfg)
	require.NoError(err)
	t.Cleanup(func() { _ = cam.Close() })

	// the legacy protocol has no correction flag command, nothing is sent
	require.NoError(cfg.Apply(context.Background(), cam))

	require.InDelta(0.15, cam.ExpTime(), 1e-9)
	require.InDelta(0.001, cam.LatTime(), 1e-9)
	require.InDelta(0.004, cam.OverflowTime(), 1e-9)
	require.Equal(10, cam.NbFrames())
	require.Equal(camera.ExtGate, cam.TrigMode())
	require.Equal(camera.ExposureReadDone, cam.OutputSignal())
	require.Equal(camera.DetectorBurst, cam.AcquisitionMode())
	require.False(cam.GeometricalCorrection())

	params := cam.ExposureParams()
	require.Equal(2, params.StackImages)
	require.Equal(1, params.TrigCode)
}

func TestLogger(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	l := cfg.Logger(&buf)
	require.Equal(logger.WarnLevel, l.Level())

	l.Info("hidden")
	l.Warn("shown", "port", 3456)
	require.NotContains(buf.String(), "hidden")
	require.Contains(buf.String(), "shown")
}

// Package config loads the YAML configuration of an XPAD detector driver.
//
// A configuration file describes the acquisition server endpoint, the
// detector model, the protocol timeouts, the acquisition defaults applied to
// the camera after Init, logging and the metrics exporter:
//
//	detector:
//	  host: 10.0.0.5
//	  port: 3456
//	  model: XPAD_S70
//	  protocol: v2
//	  line_timeout: 30s
//	acquisition:
//	  exposure_time: 100ms
//	  frames: 10
//	  trigger_mode: ExtGate
//	log:
//	  level: debug
//	metrics:
//	  listen: ":9090"
//
// Durations are Go duration strings. Missing keys keep the value of Default.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/logger"
	"github.com/arloliu/go-xpad/xpad"
	"gopkg.in/yaml.v3"
)

// Config is the driver configuration.
type Config struct {
	Detector    DetectorConfig    `yaml:"detector"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DetectorConfig describes the acquisition server and the attached detector.
type DetectorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ControlPort is the port of the secondary connection. Zero disables it.
	ControlPort        int           `yaml:"control_port"`
	Model              string        `yaml:"model"`
	Protocol           string        `yaml:"protocol"`
	ImageType          string        `yaml:"image_type"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	LineTimeout        time.Duration `yaml:"line_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	DataPortTimeout    time.Duration `yaml:"data_port_timeout"`
	ErrorTextFollowUp  bool          `yaml:"error_text_follow_up"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`
	CalibrationDir     string        `yaml:"calibration_dir"`
	// Calibration is loaded after Init when set.
	Calibration string `yaml:"calibration"`
}

// AcquisitionConfig holds the acquisition defaults applied after Init.
type AcquisitionConfig struct {
	ExposureTime          time.Duration `yaml:"exposure_time"`
	LatencyTime           time.Duration `yaml:"latency_time"`
	OverflowTime          time.Duration `yaml:"overflow_time"`
	Frames                int           `yaml:"frames"`
	TriggerMode           string        `yaml:"trigger_mode"`
	OutputSignal          string        `yaml:"output_signal"`
	Mode                  string        `yaml:"mode"`
	FileFormat            string        `yaml:"file_format"`
	GeometricalCorrection bool          `yaml:"geometrical_correction"`
	FlatFieldCorrection   bool          `yaml:"flat_field_correction"`
	ImageTransfer         bool          `yaml:"image_transfer"`
	StackImages           int           `yaml:"stack_images"`
	OutputPath            string        `yaml:"output_path"`
}

// LogConfig configures the driver logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Listen is the exporter address. Empty disables the exporter.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Host:               "127.0.0.1",
			Port:               3456,
			ControlPort:        3456,
			Model:              camera.ModelS70.String(),
			Protocol:           camera.ProtocolV2.String(),
			ImageType:          "32",
			ConnectTimeout:     xpad.DefaultConnectTimeout,
			LineTimeout:        xpad.DefaultLineTimeout,
			WriteTimeout:       xpad.DefaultWriteTimeout,
			DataPortTimeout:    xpad.DefaultDataPortAcceptTimeout,
			ErrorTextFollowUp:  true,
			StatusPollInterval: camera.DefaultStatusPollInterval,
			CalibrationDir:     ".",
		},
		Acquisition: AcquisitionConfig{
			ExposureTime:          time.Second,
			LatencyTime:           5 * time.Millisecond,
			OverflowTime:          4 * time.Millisecond,
			Frames:                1,
			TriggerMode:           camera.IntTrig.String(),
			OutputSignal:          camera.BusyUpdateOverflow.String(),
			Mode:                  camera.Standard.String(),
			FileFormat:            camera.Binary.String(),
			GeometricalCorrection: true,
			FlatFieldCorrection:   true,
			ImageTransfer:         true,
			StackImages:           1,
			OutputPath:            camera.DefaultOutputPath,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML configuration over Default and validates it.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every value and returns all problems joined.
func (cfg *Config) Validate() error {
	var errs []error

	d := cfg.Detector
	if strings.TrimSpace(d.Host) == "" {
		errs = append(errs, errors.New("detector.host is empty"))
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("detector.port %d out of range [1, 65535]", d.Port))
	}
	if d.ControlPort < 0 || d.ControlPort > 65535 {
		errs = append(errs, fmt.Errorf("detector.control_port %d out of range [0, 65535]", d.ControlPort))
	}
	if _, err := camera.ParseModel(d.Model); err != nil {
		errs = append(errs, err)
	}
	if _, err := camera.ParseProtocol(d.Protocol); err != nil {
		errs = append(errs, err)
	}
	if _, err := camera.ParseImageType(d.ImageType); err != nil {
		errs = append(errs, err)
	}
	if _, err := xpad.NewClientConfig("localhost", 1, cfg.clientOptions()...); err != nil {
		errs = append(errs, err)
	}
	if d.StatusPollInterval < camera.MinStatusPollInterval || d.StatusPollInterval > camera.MaxStatusPollInterval {
		errs = append(errs, fmt.Errorf("detector.status_poll_interval %s out of range [%s, %s]",
			d.StatusPollInterval, camera.MinStatusPollInterval, camera.MaxStatusPollInterval))
	}

	a := cfg.Acquisition
	times := []struct {
		name string
		val  time.Duration
	}{
		{"exposure_time", a.ExposureTime},
		{"latency_time", a.LatencyTime},
		{"overflow_time", a.OverflowTime},
	}
	for _, tm := range times {
		if tm.val < 0 || tm.val.Seconds() > camera.MaxExposureTime {
			errs = append(errs, fmt.Errorf("acquisition.%s %s out of range", tm.name, tm.val))
		}
	}
	if a.Frames < 1 {
		errs = append(errs, fmt.Errorf("acquisition.frames must be at least 1, got %d", a.Frames))
	}
	if a.StackImages < 1 {
		errs = append(errs, fmt.Errorf("acquisition.stack_images must be at least 1, got %d", a.StackImages))
	}
	if mode, err := camera.ParseTrigMode(a.TriggerMode); err != nil {
		errs = append(errs, err)
	} else if !mode.Supported() {
		errs = append(errs, &camera.ConfigError{Field: "trigger mode", Value: a.TriggerMode, Reason: "not supported by the detector"})
	}
	if _, err := camera.ParseOutputSignal(a.OutputSignal); err != nil {
		errs = append(errs, err)
	}
	if _, err := camera.ParseAcquisitionMode(a.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := camera.ParseImageFileFormat(a.FileFormat); err != nil {
		errs = append(errs, err)
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format %q: expected json or console", cfg.Log.Format))
	}
	if cfg.Metrics.Listen != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", cfg.Metrics.Path))
	}

	return errors.Join(errs...)
}

func (cfg *Config) clientOptions() []xpad.ClientOption {
	d := cfg.Detector

	return []xpad.ClientOption{
		xpad.WithConnectTimeout(d.ConnectTimeout),
		xpad.WithLineTimeout(d.LineTimeout),
		xpad.WithWriteTimeout(d.WriteTimeout),
		xpad.WithDataPortAcceptTimeout(d.DataPortTimeout),
		xpad.WithErrorTextFollowUp(d.ErrorTextFollowUp),
	}
}

// Logger returns a logger configured by the log section.
func (cfg *Config) Logger(w io.Writer) logger.Logger {
	level, _ := logger.ParseLevel(cfg.Log.Level)

	return logger.NewSlogWithWriter(w, level, cfg.Log.AddSource, cfg.Log.Format == "console")
}

// CameraConfig builds the camera configuration of the detector section.
func (cfg *Config) CameraConfig(l logger.Logger, opts ...camera.ConfigOption) (*camera.Config, error) {
	d := cfg.Detector

	model, err := camera.ParseModel(d.Model)
	if err != nil {
		return nil, err
	}
	protocol, err := camera.ParseProtocol(d.Protocol)
	if err != nil {
		return nil, err
	}
	imageType, err := camera.ParseImageType(d.ImageType)
	if err != nil {
		return nil, err
	}

	base := []camera.ConfigOption{
		camera.WithControlPort(d.ControlPort),
		camera.WithProtocol(protocol),
		camera.WithImageType(imageType),
		camera.WithStatusPollInterval(d.StatusPollInterval),
		camera.WithCalibrationDir(d.CalibrationDir),
		camera.WithClientOptions(cfg.clientOptions()...),
	}
	if l != nil {
		base = append(base, camera.WithLogger(l))
	}

	return camera.NewConfig(d.Host, d.Port, model, append(base, opts...)...)
}

// Apply sets the acquisition defaults on cam. The geometrical correction
// flag is sent to the server, so cam must be initialized.
func (cfg *Config) Apply(ctx context.Context, cam *camera.Camera) error {
	a := cfg.Acquisition

	mode, err := camera.ParseTrigMode(a.TriggerMode)
	if err != nil {
		return err
	}
	signal, err := camera.ParseOutputSignal(a.OutputSignal)
	if err != nil {
		return err
	}
	acqMode, err := camera.ParseAcquisitionMode(a.Mode)
	if err != nil {
		return err
	}
	format, err := camera.ParseImageFileFormat(a.FileFormat)
	if err != nil {
		return err
	}

	setters := []func() error{
		func() error { return cam.SetExpTime(a.ExposureTime.Seconds()) },
		func() error { return cam.SetLatTime(a.LatencyTime.Seconds()) },
		func() error { return cam.SetOverflowTime(a.OverflowTime.Seconds()) },
		func() error { return cam.SetNbFrames(a.Frames) },
		func() error { return cam.SetTrigMode(mode) },
		func() error { return cam.SetOutputSignal(signal) },
		func() error { return cam.SetAcquisitionMode(acqMode) },
		func() error { return cam.SetImageFileFormat(format) },
		func() error { return cam.SetStackImages(a.StackImages) },
	}
	for _, set := range setters {
		if err := set(); err != nil {
			return err
		}
	}
	if err := cam.SetGeometricalCorrection(ctx, a.GeometricalCorrection); err != nil {
		return err
	}
	cam.SetFlatFieldCorrection(a.FlatFieldCorrection)
	cam.SetImageTransfer(a.ImageTransfer)
	cam.SetOutputPath(a.OutputPath)

	return nil
}

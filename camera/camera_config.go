package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-xpad/logger"
	"github.com/arloliu/go-xpad/xpad"
)

const (
	// DefaultStatusPollInterval is the pause between status polls while a
	// legacy protocol capture waits for the next frame.
	DefaultStatusPollInterval = time.Millisecond
	// DefaultBufferCount is the slot count of the default memory buffer.
	DefaultBufferCount = 16

	MinStatusPollInterval = 100 * time.Microsecond
	MaxStatusPollInterval = 10 * time.Second
)

// Config holds the configuration of a Camera.
type Config struct {
	host  string
	port  int
	model Model

	// controlPort is the port of the secondary connection; 0 disables it.
	controlPort int
	protocol    Protocol
	imageType   ImageType

	statusPollInterval time.Duration
	calibrationDir     string
	clientOpts         []xpad.ClientOption
	buffers            BufferManager

	logger logger.Logger
}

// NewConfig creates a camera configuration for the acquisition server at
// host:port driving a detector of the given model.
//
// By default the camera speaks ProtocolV2, opens the secondary connection on
// the same port and delivers 32-bit frames into a MemoryBuffer.
func NewConfig(host string, port int, model Model, opts ...ConfigOption) (*Config, error) {
	if !model.Valid() {
		return nil, &ConfigError{Field: "model", Value: model, Reason: "unknown detector model"}
	}

	cfg := &Config{
		host:               host,
		port:               port,
		model:              model,
		controlPort:        port,
		protocol:           ProtocolV2,
		imageType:          Bpp32,
		statusPollInterval: DefaultStatusPollInterval,
		calibrationDir:     ".",
		logger:             logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	// validate the endpoint once, with the final client options
	if _, err := cfg.clientConfig(cfg.port); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) clientConfig(port int) (*xpad.ClientConfig, error) {
	opts := make([]xpad.ClientOption, 0, len(cfg.clientOpts)+1)
	opts = append(opts, xpad.WithLogger(cfg.logger))
	opts = append(opts, cfg.clientOpts...)

	return xpad.NewClientConfig(cfg.host, port, opts...)
}

// Host returns the server host.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the primary connection port.
func (cfg *Config) Port() int { return cfg.port }

// ControlPort returns the secondary connection port, 0 when disabled.
func (cfg *Config) ControlPort() int { return cfg.controlPort }

// Model returns the detector model.
func (cfg *Config) Model() Model { return cfg.model }

// Protocol returns the protocol generation.
func (cfg *Config) Protocol() Protocol { return cfg.protocol }

// ImageType returns the initial image type.
func (cfg *Config) ImageType() ImageType { return cfg.imageType }

// StatusPollInterval returns the legacy capture status poll interval.
func (cfg *Config) StatusPollInterval() time.Duration { return cfg.statusPollInterval }

// CalibrationDir returns the directory holding calibration files.
func (cfg *Config) CalibrationDir() string { return cfg.calibrationDir }

// GetLogger returns the logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// ConfigOption configures a Camera.
type ConfigOption interface {
	apply(*Config) error
}

type configOptFunc func(*Config) error

func (f configOptFunc) apply(cfg *Config) error { return f(cfg) }

// WithControlPort sets the port of the secondary connection used for status
// queries and aborts. Zero disables the secondary connection; status and
// abort then share the primary connection.
func WithControlPort(port int) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("camera: control port %d out of range [0, 65535]", port)
		}
		cfg.controlPort = port

		return nil
	})
}

// WithProtocol sets the protocol generation.
func WithProtocol(p Protocol) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if p != ProtocolV1 && p != ProtocolV2 {
			return &ConfigError{Field: "protocol", Value: p, Reason: "expected v1 or v2"}
		}
		cfg.protocol = p

		return nil
	})
}

// WithImageType sets the initial image type.
func WithImageType(t ImageType) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if t != Bpp16 && t != Bpp32 {
			return &ConfigError{Field: "image type", Value: t, Reason: "only 16 or 32 bit pixels are supported"}
		}
		cfg.imageType = t

		return nil
	})
}

// WithStatusPollInterval sets the pause between status polls of a legacy capture.
func WithStatusPollInterval(val time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if val < MinStatusPollInterval || val > MaxStatusPollInterval {
			return fmt.Errorf("camera: status poll interval %s out of range [%s, %s]",
				val, MinStatusPollInterval, MaxStatusPollInterval)
		}
		cfg.statusPollInterval = val

		return nil
	})
}

// WithCalibrationDir sets the directory holding calibration files.
func WithCalibrationDir(dir string) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("camera: calibration directory is empty")
		}
		cfg.calibrationDir = dir

		return nil
	})
}

// WithClientOptions sets options applied to both server connections.
func WithClientOptions(opts ...xpad.ClientOption) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
		return nil
	})
}

// WithBufferManager sets the frame buffer manager.
func WithBufferManager(b BufferManager) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if b == nil {
			return fmt.Errorf("camera: buffer manager is nil")
		}
		cfg.buffers = b

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("camera: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

package xpad

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/arloliu/go-xpad/logger"
)

// Default values for ClientConfig.
const (
	DefaultConnectTimeout        = 3 * time.Second
	DefaultLineTimeout           = 60 * time.Second
	DefaultWriteTimeout          = 10 * time.Second
	DefaultDataPortAcceptTimeout = 30 * time.Second
	DefaultCloseTimeout          = time.Second

	DefaultReadBufferSize  = 1000
	DefaultMaxLineLength   = 1024
	DefaultMaxTransferSize = 256 << 20
)

// Range limits for ClientConfig values.
const (
	MinReadBufferSize = 16
	MaxReadBufferSize = 1 << 20

	MinMaxLineLength = 64
	MaxMaxLineLength = 1 << 20

	MaxTimeout = 24 * time.Hour
)

// ClientConfig holds the configuration of a Client.
type ClientConfig struct {
	host string
	port int

	connectTimeout time.Duration
	// lineTimeout is the read deadline for each line or bulk chunk; 0 disables it.
	lineTimeout           time.Duration
	writeTimeout          time.Duration
	dataPortAcceptTimeout time.Duration
	closeTimeout          time.Duration

	readBufferSize  int
	maxLineLength   int
	maxTransferSize int

	// errorTextFollowUp makes a negative integer return value trigger a
	// follow-up read of the server's error string.
	errorTextFollowUp bool

	logger logger.Logger
}

// NewClientConfig creates a client configuration for the server at host:port.
func NewClientConfig(host string, port int, opts ...ClientOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		connectTimeout:        DefaultConnectTimeout,
		lineTimeout:           DefaultLineTimeout,
		writeTimeout:          DefaultWriteTimeout,
		dataPortAcceptTimeout: DefaultDataPortAcceptTimeout,
		closeTimeout:          DefaultCloseTimeout,
		readBufferSize:        DefaultReadBufferSize,
		maxLineLength:         DefaultMaxLineLength,
		maxTransferSize:       DefaultMaxTransferSize,
		errorTextFollowUp:     true,
		logger:                logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *ClientConfig) setHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("xpad: host is empty")
	}

	if ip := net.ParseIP(host); ip != nil {
		cfg.host = host
		return nil
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "."), ".")
	if host == "localhost" {
		cfg.host = host
		return nil
	}
	if _, err := net.LookupHost(host); err == nil {
		cfg.host = host
		return nil
	}

	return fmt.Errorf("xpad: invalid host %q", host)
}

func (cfg *ClientConfig) setPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("xpad: port %d out of range [1, 65535]", port)
	}
	cfg.port = port

	return nil
}

// Host returns the server host.
func (cfg *ClientConfig) Host() string { return cfg.host }

// Port returns the server port.
func (cfg *ClientConfig) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *ClientConfig) Addr() string { return net.JoinHostPort(cfg.host, fmt.Sprint(cfg.port)) }

// ConnectTimeout returns the dial timeout.
func (cfg *ClientConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// LineTimeout returns the per-line read deadline, 0 when disabled.
func (cfg *ClientConfig) LineTimeout() time.Duration { return cfg.lineTimeout }

// WriteTimeout returns the command write deadline, 0 when disabled.
func (cfg *ClientConfig) WriteTimeout() time.Duration { return cfg.writeTimeout }

// DataPortAcceptTimeout returns how long to wait for the server to connect to the data port.
func (cfg *ClientConfig) DataPortAcceptTimeout() time.Duration { return cfg.dataPortAcceptTimeout }

// ReadBufferSize returns the size of the receive buffer.
func (cfg *ClientConfig) ReadBufferSize() int { return cfg.readBufferSize }

// MaxLineLength returns the maximum number of bytes kept for a text line.
func (cfg *ClientConfig) MaxLineLength() int { return cfg.maxLineLength }

// MaxTransferSize returns the largest accepted size prefix for bulk transfers.
func (cfg *ClientConfig) MaxTransferSize() int { return cfg.maxTransferSize }

// ErrorTextFollowUp reports whether negative return codes are followed by an error string read.
func (cfg *ClientConfig) ErrorTextFollowUp() bool { return cfg.errorTextFollowUp }

// GetLogger returns the configured logger.
func (cfg *ClientConfig) GetLogger() logger.Logger { return cfg.logger }

// ClientOption is a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc func(*ClientConfig) error

func (f clientOptFunc) apply(cfg *ClientConfig) error { return f(cfg) }

func checkTimeout(name string, val time.Duration, allowZero bool) error {
	if val < 0 || val > MaxTimeout || (!allowZero && val == 0) {
		return fmt.Errorf("xpad: %s %s out of range", name, val)
	}

	return nil
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(val time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if err := checkTimeout("connect timeout", val, false); err != nil {
			return err
		}
		cfg.connectTimeout = val

		return nil
	})
}

// WithLineTimeout sets the read deadline applied to every line and every bulk
// read. Long operations keep the exchange alive as long as the server emits
// progress or debug lines. Zero disables the deadline.
func WithLineTimeout(val time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if err := checkTimeout("line timeout", val, true); err != nil {
			return err
		}
		cfg.lineTimeout = val

		return nil
	})
}

// WithWriteTimeout sets the deadline for writing a command. Zero disables it.
func WithWriteTimeout(val time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if err := checkTimeout("write timeout", val, true); err != nil {
			return err
		}
		cfg.writeTimeout = val

		return nil
	})
}

// WithDataPortAcceptTimeout sets how long a data port read waits for the server to connect.
func WithDataPortAcceptTimeout(val time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if err := checkTimeout("data port accept timeout", val, false); err != nil {
			return err
		}
		cfg.dataPortAcceptTimeout = val

		return nil
	})
}

// WithReadBufferSize sets the receive buffer size.
func WithReadBufferSize(size int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if size < MinReadBufferSize || size > MaxReadBufferSize {
			return fmt.Errorf("xpad: read buffer size %d out of range [%d, %d]", size, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithMaxLineLength sets the maximum number of bytes kept for a text line.
func WithMaxLineLength(size int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if size < MinMaxLineLength || size > MaxMaxLineLength {
			return fmt.Errorf("xpad: max line length %d out of range [%d, %d]", size, MinMaxLineLength, MaxMaxLineLength)
		}
		cfg.maxLineLength = size

		return nil
	})
}

// WithMaxTransferSize sets the largest accepted bulk transfer size in bytes.
func WithMaxTransferSize(size int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if size <= 0 {
			return fmt.Errorf("xpad: max transfer size %d must be positive", size)
		}
		cfg.maxTransferSize = size

		return nil
	})
}

// WithErrorTextFollowUp enables or disables reading the server's error string
// after a negative integer return code. It is enabled by default.
func WithErrorTextFollowUp(enable bool) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		cfg.errorTextFollowUp = enable
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if l == nil {
			return fmt.Errorf("xpad: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

package xpad

import (
	"testing"
	"time"

	"github.com/arloliu/go-xpad/logger"
	"github.com/stretchr/testify/require"
)

func TestNewClientConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewClientConfig("127.0.0.1", 3456)
	require.NoError(err)
	require.Equal("127.0.0.1", cfg.Host())
	require.Equal(3456, cfg.Port())
	require.Equal("127.0.0.1:3456", cfg.Addr())
	require.Equal(DefaultConnectTimeout, cfg.ConnectTimeout())
	require.Equal(DefaultLineTimeout, cfg.LineTimeout())
	require.Equal(DefaultWriteTimeout, cfg.WriteTimeout())
	require.Equal(DefaultDataPortAcceptTimeout, cfg.DataPortAcceptTimeout())
	require.Equal(1000, cfg.ReadBufferSize())
	require.Equal(1024, cfg.MaxLineLength())
	require.Equal(DefaultMaxTransferSize, cfg.MaxTransferSize())
	require.True(cfg.ErrorTextFollowUp())
	require.NotNil(cfg.GetLogger())
}

func TestNewClientConfig_HostAndPort(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		wantErr bool
	}{
		{name: "ipv4", host: "10.0.0.1", port: 3456},
		{name: "ipv6", host: "::1", port: 3456},
		{name: "localhost", host: "localhost", port: 1},
		{name: "empty host", host: "  ", port: 3456, wantErr: true},
		{name: "port zero", host: "127.0.0.1", port: 0, wantErr: true},
		{name: "port too large", host: "127.0.0.1", port: 65536, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClientConfig(tt.host, tt.port)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewClientConfig_Options(t *testing.T) {
	require := require.New(t)

	mockLogger := logger.NewMockLogger()
	cfg, err := NewClientConfig("127.0.0.1", 3456,
		WithConnectTimeout(time.Second),
		WithLineTimeout(0),
		WithWriteTimeout(2*time.Second),
		WithDataPortAcceptTimeout(5*time.Second),
		WithReadBufferSize(4096),
		WithMaxLineLength(256),
		WithMaxTransferSize(1<<20),
		WithErrorTextFollowUp(false),
		WithLogger(mockLogger),
	)
	require.NoError(err)
	require.Equal(time.Second, cfg.ConnectTimeout())
	require.Equal(time.Duration(0), cfg.LineTimeout())
	require.Equal(2*time.Second, cfg.WriteTimeout())
	require.Equal(5*time.Second, cfg.DataPortAcceptTimeout())
	require.Equal(4096, cfg.ReadBufferSize())
	require.Equal(256, cfg.MaxLineLength())
	require.Equal(1<<20, cfg.MaxTransferSize())
	require.False(cfg.ErrorTextFollowUp())
	require.Same(mockLogger, cfg.GetLogger())
}

func TestNewClientConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{name: "zero connect timeout", opt: WithConnectTimeout(0)},
		{name: "negative line timeout", opt: WithLineTimeout(-time.Second)},
		{name: "huge write timeout", opt: WithWriteTimeout(25 * time.Hour)},
		{name: "zero accept timeout", opt: WithDataPortAcceptTimeout(0)},
		{name: "tiny read buffer", opt: WithReadBufferSize(8)},
		{name: "huge read buffer", opt: WithReadBufferSize(MaxReadBufferSize + 1)},
		{name: "short max line", opt: WithMaxLineLength(10)},
		{name: "zero transfer size", opt: WithMaxTransferSize(0)},
		{name: "nil logger", opt: WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClientConfig("127.0.0.1", 3456, tt.opt)
			require.Error(t, err)
		})
	}
}

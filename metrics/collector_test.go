package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/internal/xpadtest"
	"github.com/arloliu/go-xpad/xpad"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newCamera(t *testing.T, srv *xpadtest.Server, opts ...camera.ConfigOption) *camera.Camera {
	t.Helper()

	opts = append([]camera.ConfigOption{
		camera.WithClientOptions(xpad.WithLineTimeout(5 * time.Second)),
	}, opts...)
	cfg, err := camera.NewConfig(srv.Host(), srv.Port(), camera.ModelS10, opts...)
	require.NoError(t, err)

	cam, err := camera.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cam.Close() })

	return cam
}

func TestCollector_Idle(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	cam := newCamera(t, srv, camera.WithControlPort(0))

	c := NewCollector(cam, "cam0")

	// 9 primary client series, 4 camera counters, 4 states and the offset;
	// no commands or jobs yet.
	require.Equal(18, testutil.CollectAndCount(c))

	expected := `
# HELP xpad_camera_acquisition_state Acquisition worker state, 1 for the current state.
# TYPE xpad_camera_acquisition_state gauge
xpad_camera_acquisition_state{camera="cam0",state="Armed"} 0
xpad_camera_acquisition_state{camera="cam0",state="Draining"} 0
xpad_camera_acquisition_state{camera="cam0",state="Idle"} 1
xpad_camera_acquisition_state{camera="cam0",state="Running"} 0
# HELP xpad_client_connected 1 while the connection is established.
# TYPE xpad_client_connected gauge
xpad_client_connected{camera="cam0",connection="primary"} 0
`
	require.NoError(testutil.CollectAndCompare(c, strings.NewReader(expected),
		"xpad_camera_acquisition_state", "xpad_client_connected"))
}

func TestCollector_Init(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	srv.Handle("Init", xpadtest.ReplyInt(0))
	cam := newCamera(t, srv)
	require.NoError(cam.Init(context.Background()))

	cam.Metrics().AbortCount.Add(2)

	c := NewCollector(cam, "cam0")
	expected := `
# HELP xpad_camera_aborts_total Abort requests.
# TYPE xpad_camera_aborts_total counter
xpad_camera_aborts_total{camera="cam0"} 2
# HELP xpad_client_commands_total Commands written to the acquisition server.
# TYPE xpad_client_commands_total counter
xpad_client_commands_total{camera="cam0",connection="primary",verb="Init"} 1
# HELP xpad_client_connected 1 while the connection is established.
# TYPE xpad_client_connected gauge
xpad_client_connected{camera="cam0",connection="control"} 1
xpad_client_connected{camera="cam0",connection="primary"} 1
`
	require.NoError(testutil.CollectAndCompare(c, strings.NewReader(expected),
		"xpad_camera_aborts_total", "xpad_client_commands_total", "xpad_client_connected"))
}

func TestCollector_Lint(t *testing.T) {
	srv := xpadtest.NewServer(t)
	cam := newCamera(t, srv)

	problems, err := testutil.CollectAndLint(NewCollector(cam, "cam0"))
	require.NoError(t, err)
	require.Empty(t, problems)
}

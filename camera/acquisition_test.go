package camera

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-xpad/logger"
	"github.com/stretchr/testify/require"
)

func newTestAcquisition(t *testing.T, runner JobRunner) *acquisition {
	t.Helper()

	a := newAcquisition(runner, logger.GetLogger(), newCameraMetrics())
	t.Cleanup(a.close)

	return a
}

// frameRunner simulates a capture that reports one frame per call of next.
func frameRunner(next func(n int)) JobRunner {
	return func(_ context.Context, job Job, ctl *JobControl) error {
		capture, ok := job.(CaptureJob)
		if !ok {
			return errors.New("unexpected job")
		}
		for n := 0; n < capture.Frames; n++ {
			if ctl.Stopping() {
				return nil
			}
			next(n)
			ctl.FrameAcquired()
		}

		return nil
	}
}

func TestAcquisition_CaptureFiveFrames(t *testing.T) {
	require := require.New(t)

	a := newTestAcquisition(t, frameRunner(func(int) {}))
	ctx := context.Background()

	state, _, _ := a.snapshot()
	require.Equal(AcqIdle, state)

	require.NoError(a.start(ctx, CaptureJob{Frames: 5}))
	require.NoError(a.wait(ctx))

	state, job, frames := a.snapshot()
	require.Equal(AcqIdle, state)
	require.Nil(job)
	require.Equal(5, frames)
	require.Equal(uint64(5), a.metrics.FrameCount.Load())
	require.Equal(uint64(1), a.metrics.JobCount.Load())
	require.Equal(map[string]uint64{"Capture": 1}, a.metrics.JobCounts())
}

func TestAcquisition_StopMidCapture(t *testing.T) {
	require := require.New(t)

	reached := make(chan struct{})
	resume := make(chan struct{})
	a := newTestAcquisition(t, frameRunner(func(n int) {
		if n == 2 {
			close(reached)
			<-resume
		}
	}))
	ctx := context.Background()

	require.NoError(a.start(ctx, CaptureJob{Frames: 5}))
	<-reached

	state, job, _ := a.snapshot()
	require.Equal(AcqRunning, state)
	require.Equal(JobCapture, job.Kind())

	a.stop()
	state, _, _ = a.snapshot()
	require.Equal(AcqDraining, state)
	close(resume)

	require.NoError(a.wait(ctx))
	require.Less(a.acquiredFrames(), 5)
	require.Equal(3, a.acquiredFrames())
	require.NoError(a.lastError())
}

func TestAcquisition_StartWaitsForPreviousJob(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	var running atomic.Int32
	var maxRunning atomic.Int32
	a := newTestAcquisition(t, func(_ context.Context, _ Job, _ *JobControl) error {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		<-release
		running.Add(-1)

		return nil
	})
	ctx := context.Background()

	require.NoError(a.start(ctx, DefaultConfigGJob{}))

	started := make(chan error, 1)
	go func() { started <- a.start(ctx, FlatConfigLJob{Value: 3}) }()

	select {
	case <-started:
		t.Fatal("second job accepted while the first one runs")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(<-started)
	require.NoError(a.wait(ctx))
	require.Equal(int32(1), maxRunning.Load())
	require.Equal(uint64(2), a.metrics.JobCount.Load())
}

func TestAcquisition_JobErrorIsOutcome(t *testing.T) {
	require := require.New(t)

	boom := errors.New("boom")
	a := newTestAcquisition(t, func(context.Context, Job, *JobControl) error { return boom })
	ctx := context.Background()

	require.NoError(a.start(ctx, DefaultConfigGJob{}))
	require.ErrorIs(a.wait(ctx), boom)
	require.ErrorIs(a.lastError(), boom)
	require.Equal(uint64(1), a.metrics.JobErrCount.Load())

	// the worker is idle again and accepts a new job
	require.NoError(a.start(ctx, DefaultConfigGJob{}))
	require.ErrorIs(a.wait(ctx), boom)
}

func TestAcquisition_RejectsInvalidJob(t *testing.T) {
	require := require.New(t)

	a := newTestAcquisition(t, func(context.Context, Job, *JobControl) error { return nil })
	ctx := context.Background()

	require.ErrorIs(a.start(ctx, CaptureJob{Frames: -1}), ErrJobRejected)
	require.ErrorIs(a.start(ctx, nil), ErrJobRejected)
	require.ErrorIs(a.start(ctx, RegisterAdjustJob{}), ErrJobRejected)
	require.Equal(uint64(0), a.metrics.JobCount.Load())
}

func TestAcquisition_StartCancelled(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	a := newTestAcquisition(t, func(context.Context, Job, *JobControl) error {
		<-release
		return nil
	})

	require.NoError(a.start(context.Background(), DefaultConfigGJob{}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(a.start(ctx, DefaultConfigGJob{}), context.DeadlineExceeded)

	close(release)
	require.NoError(a.wait(context.Background()))
	require.Equal(uint64(1), a.metrics.JobCount.Load())
}

func TestAcquisition_WaitCancelled(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	defer close(release)
	a := newTestAcquisition(t, func(context.Context, Job, *JobControl) error {
		<-release
		return nil
	})
	require.NoError(a.start(context.Background(), DefaultConfigGJob{}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(a.wait(ctx), context.DeadlineExceeded)
}

func TestAcquisition_CloseCancelsRunningJob(t *testing.T) {
	require := require.New(t)

	started := make(chan struct{})
	var stopping atomic.Bool
	a := newAcquisition(func(ctx context.Context, _ Job, ctl *JobControl) error {
		close(started)
		<-ctx.Done()
		stopping.Store(ctl.Stopping())

		return ctx.Err()
	}, logger.GetLogger(), newCameraMetrics())

	require.NoError(a.start(context.Background(), CaptureJob{}))
	<-started

	a.close()
	a.close()
	require.True(stopping.Load())

	require.ErrorIs(a.start(context.Background(), CaptureJob{}), ErrCameraClosed)
}

func TestAcquisition_RunIDPerJob(t *testing.T) {
	require := require.New(t)

	a := newTestAcquisition(t, func(context.Context, Job, *JobControl) error { return nil })
	ctx := context.Background()

	require.NoError(a.start(ctx, DefaultConfigGJob{}))
	require.NoError(a.wait(ctx))
	first := a.currentRunID()

	require.NoError(a.start(ctx, DefaultConfigGJob{}))
	require.NoError(a.wait(ctx))
	require.NotEqual(first, a.currentRunID())
}

func TestAcqState_String(t *testing.T) {
	require := require.New(t)

	require.Equal("Idle", AcqIdle.String())
	require.Equal("Armed", AcqArmed.String())
	require.Equal("Running", AcqRunning.String())
	require.Equal("Draining", AcqDraining.String())
	require.Equal("AcqState(9)", AcqState(9).String())
}

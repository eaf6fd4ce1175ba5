package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-xpad/logger"
	"github.com/google/uuid"
)

// AcqState is the lifecycle state of the acquisition worker.
type AcqState int

const (
	// AcqIdle means the worker is parked and a job may be started.
	AcqIdle AcqState = iota
	// AcqArmed means a job was posted and the worker has not picked it up yet.
	AcqArmed
	// AcqRunning means the worker is executing a job.
	AcqRunning
	// AcqDraining means a stop was requested and the worker is finishing the job.
	AcqDraining
)

func (s AcqState) String() string {
	switch s {
	case AcqIdle:
		return "Idle"
	case AcqArmed:
		return "Armed"
	case AcqRunning:
		return "Running"
	case AcqDraining:
		return "Draining"
	default:
		return fmt.Sprintf("AcqState(%d)", int(s))
	}
}

// JobRunner executes one job on the worker goroutine.
type JobRunner func(ctx context.Context, job Job, ctl *JobControl) error

// acquisition serializes jobs on one long-lived worker goroutine.
//
// Every field below mu is guarded by mu; cond is signalled on each change.
type acquisition struct {
	runner  JobRunner
	logger  logger.Logger
	metrics *CameraMetrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	state    AcqState
	pending  Job
	posted   uint64
	accepted uint64
	current  Job
	runID    uuid.UUID
	frames   int
	lastErr  error
	closed   bool
}

func newAcquisition(runner JobRunner, l logger.Logger, metrics *CameraMetrics) *acquisition {
	ctx, cancel := context.WithCancel(context.Background())
	a := &acquisition{
		runner:  runner,
		logger:  l,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)

	go a.run()

	return a
}

// wakeOnDone broadcasts cond once ctx is done so waiters can observe it.
func (a *acquisition) wakeOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
	})
}

// start waits for the previous job to finish, posts job and returns once the
// worker has accepted it.
func (a *acquisition) start(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrJobRejected)
	}
	if err := job.validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stop := a.wakeOnDone(ctx)
	defer stop()

	for !a.closed && (a.state != AcqIdle || a.pending != nil) {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.cond.Wait()
	}
	if a.closed {
		return ErrCameraClosed
	}

	a.posted++
	seq := a.posted
	a.pending = job
	a.frames = 0
	a.lastErr = nil
	a.state = AcqArmed
	a.cond.Broadcast()

	for a.accepted < seq && !a.closed {
		if err := ctx.Err(); err != nil {
			// withdraw the job if the worker has not taken it yet
			a.pending = nil
			a.posted--
			a.state = AcqIdle
			a.cond.Broadcast()

			return err
		}
		a.cond.Wait()
	}
	if a.accepted < seq {
		return ErrCameraClosed
	}

	return nil
}

// stop asks the running job to finish early. It does not wait.
func (a *acquisition) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == AcqArmed || a.state == AcqRunning {
		a.state = AcqDraining
		a.cond.Broadcast()
	}
}

// wait blocks until the worker is idle and returns the outcome of the last job.
func (a *acquisition) wait(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stop := a.wakeOnDone(ctx)
	defer stop()

	for a.state != AcqIdle || a.pending != nil {
		if a.closed {
			return ErrCameraClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a.cond.Wait()
	}

	return a.lastErr
}

// close stops the worker and waits for it to exit. A running job sees its
// context cancelled.
func (a *acquisition) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done

		return
	}
	a.closed = true
	if a.state == AcqRunning {
		a.state = AcqDraining
	}
	a.cond.Broadcast()
	a.mu.Unlock()

	a.cancel()
	<-a.done
}

// snapshot returns the state, the running job (nil when idle) and the
// number of frames acquired by the current or last capture.
func (a *acquisition) snapshot() (AcqState, Job, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state, a.current, a.frames
}

func (a *acquisition) acquiredFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.frames
}

func (a *acquisition) lastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastErr
}

func (a *acquisition) currentRunID() uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.runID
}

func (a *acquisition) run() {
	defer close(a.done)

	a.mu.Lock()
	for {
		for a.pending == nil && !a.closed {
			a.cond.Wait()
		}
		if a.closed {
			a.pending = nil
			a.state = AcqIdle
			a.cond.Broadcast()
			a.mu.Unlock()

			return
		}

		job := a.pending
		a.pending = nil
		a.accepted++
		a.current = job
		a.runID = uuid.New()
		runID := a.runID
		// a stop that arrived while armed cancels the job before it runs
		skip := a.state == AcqDraining
		if !skip {
			a.state = AcqRunning
		}
		a.cond.Broadcast()
		a.mu.Unlock()

		var err error
		if !skip {
			err = a.runJob(job, runID)
		}

		a.mu.Lock()
		a.lastErr = err
		a.current = nil
		a.state = AcqIdle
		a.cond.Broadcast()
	}
}

func (a *acquisition) runJob(job Job, runID uuid.UUID) error {
	l := a.logger.With("job", job.Kind().String(), "run_id", runID.String())
	l.Info("job started")
	a.metrics.incJobCount()
	a.metrics.incJobKindCount(job.Kind())

	begin := time.Now()
	err := a.runner(a.ctx, job, &JobControl{a: a})
	if err != nil {
		a.metrics.incJobErrCount()
		l.Error("job failed", "error", err, "elapsed", time.Since(begin))

		return err
	}
	l.Info("job finished", "frames", a.acquiredFrames(), "elapsed", time.Since(begin))

	return nil
}

// JobControl is handed to a running job to observe stop requests and to
// count acquired frames.
type JobControl struct {
	a *acquisition
}

// Stopping reports whether the job was asked to finish early.
func (c *JobControl) Stopping() bool {
	c.a.mu.Lock()
	defer c.a.mu.Unlock()

	return c.a.state == AcqDraining || c.a.closed
}

// FrameAcquired counts one acquired frame and returns the new total.
func (c *JobControl) FrameAcquired() int {
	c.a.mu.Lock()
	defer c.a.mu.Unlock()

	c.a.frames++
	c.a.metrics.incFrameCount()
	c.a.cond.Broadcast()

	return c.a.frames
}

// RunID returns the identifier of the running job.
func (c *JobControl) RunID() uuid.UUID {
	return c.a.currentRunID()
}

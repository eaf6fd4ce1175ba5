package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-xpad/internal/pool"
	"github.com/arloliu/go-xpad/xpad"
	"github.com/google/uuid"
)

// runJob is the JobRunner of the camera. It runs on the acquisition worker.
func (cam *Camera) runJob(ctx context.Context, job Job, ctl *JobControl) error {
	var err error
	switch j := job.(type) {
	case CaptureJob:
		err = cam.capture(ctx, j, ctl)
	case CalibrationJob:
		err = cam.calibrate(ctx, j)
	case FileTransferJob:
		if j.Direction == SaveFiles {
			err = cam.saveCalibration(ctx, j.Prefix)
		} else {
			err = cam.loadCalibration(ctx, j.Prefix)
		}
	case DefaultConfigGJob:
		err = cam.loadDefaultConfigG(ctx, ctl)
	case RegisterAdjustJob:
		err = cam.adjustITHL(ctx, j.Delta, ctl)
	case FlatConfigLJob:
		_, err = cam.sendInt(ctx, cam.primary, OpLoadFlatConfigL, cam.table.FlatArg(j.Value))
		if err == nil {
			cam.setConfigName("")
		}
	default:
		return fmt.Errorf("%w: unknown job %T", ErrJobRejected, job)
	}

	// the camera was closed while the job ran
	if err != nil && isStopErr(err) && ctl.Stopping() {
		return ErrCameraClosed
	}

	return err
}

func (cam *Camera) capture(ctx context.Context, job CaptureJob, ctl *JobControl) error {
	if cam.table.InlineFrames() {
		return cam.captureInline(ctx, job, ctl)
	}

	return cam.captureDataPort(ctx, job, ctl)
}

func (cam *Camera) frameInfo(n int, runID uuid.UUID, size int, rows int, cols int) FrameInfo {
	w, h := cam.ImageSize()
	if rows > 0 && cols > 0 {
		w, h = cols, rows
	}

	return FrameInfo{
		FrameNumber: n,
		RunID:       runID,
		Width:       w,
		Height:      h,
		Type:        cam.ImageType(),
		Size:        size,
	}
}

// captureInline reads frames streamed on the primary connection after the
// start command. A stop ends the loop; the remaining frames are drained.
func (cam *Camera) captureInline(ctx context.Context, job CaptureJob, ctl *JobControl) error {
	cmd, _, err := cam.table.Command(OpStartExposure)
	if err != nil {
		return err
	}

	stream, err := cam.primary.StartExposure(ctx, cmd, cam.table.FrameHeader())
	if err != nil {
		return err
	}

	depth := cam.ImageType().Depth()
	runID := ctl.RunID()
	var frameErr error

	for acquired := 0; job.Frames == 0 || acquired < job.Frames; {
		if ctl.Stopping() {
			cam.logger.Info("capture stopped", "frames", acquired)
			break
		}

		info, err := stream.ReadFrame(ctx, cam.buffers.FrameBuffer(acquired), depth)
		if errors.Is(err, xpad.ErrEndOfStream) {
			break
		}
		if errors.Is(err, xpad.ErrBufferTooSmall) {
			frameErr = err
			break
		}
		if err != nil {
			return err
		}

		fi := cam.frameInfo(acquired, runID, info.Bytes, info.Rows, info.Cols)
		acquired = ctl.FrameAcquired()
		if !cam.buffers.NewFrameReady(fi) {
			cam.logger.Info("buffer manager stopped the capture", "frames", acquired)
			break
		}
	}

	if _, err := stream.Finish(ctx); err != nil {
		return err
	}

	return frameErr
}

// captureDataPort starts the exposure, then polls the detector status and
// reads each completed frame through the data port.
func (cam *Camera) captureDataPort(ctx context.Context, job CaptureJob, ctl *JobControl) error {
	if _, err := cam.sendInt(ctx, cam.primary, OpStartExposure); err != nil {
		return err
	}

	depth := cam.ImageType().Depth()
	readOp := OpReadImage32
	if depth == xpad.Depth16 {
		readOp = OpReadImage16
	}
	w, h := cam.ImageSize()
	samples := w * h
	runID := ctl.RunID()

	for acquired := 0; job.Frames == 0 || acquired < job.Frames; {
		if ctl.Stopping() {
			cam.logger.Info("capture stopped", "frames", acquired)
			return nil
		}

		st, err := cam.queryStatus(ctx)
		if err != nil {
			return err
		}

		ready := st.Frame > acquired || (st.State == StateIdle && job.Frames > 0)
		if !ready {
			if st.State == StateIdle {
				// nothing left to read from an unbounded capture
				return nil
			}
			if err := pool.Sleep(ctx, cam.cfg.statusPollInterval); err != nil {
				return err
			}

			continue
		}

		if _, err := cam.sendString(ctx, cam.primary, readOp); err != nil {
			return err
		}
		n, err := cam.primary.ReadDataPortFrame(ctx, cam.buffers.FrameBuffer(acquired), samples, depth)
		if err != nil {
			return err
		}

		fi := cam.frameInfo(acquired, runID, n, 0, 0)
		acquired = ctl.FrameAcquired()
		if !cam.buffers.NewFrameReady(fi) {
			cam.logger.Info("buffer manager stopped the capture", "frames", acquired)
			return nil
		}
	}

	return nil
}

func (cam *Camera) calibrate(ctx context.Context, job CalibrationJob) error {
	var err error
	switch job.Calibration {
	case CalibrationOTNPulse:
		_, err = cam.sendInt(ctx, cam.primary, OpCalibrationOTNPulse, int(job.Speed))
	case CalibrationOTN:
		_, err = cam.sendInt(ctx, cam.primary, OpCalibrationOTN, int(job.Speed))
	case CalibrationBEAM:
		_, err = cam.sendInt(ctx, cam.primary, OpCalibrationBEAM, job.Time, job.ITHLMax, int(job.Speed))
	}
	if err != nil {
		return err
	}

	cam.setConfigName("")

	return nil
}

func (cam *Camera) loadDefaultConfigG(ctx context.Context, ctl *JobControl) error {
	for _, reg := range Registers() {
		if ctl.Stopping() {
			return nil
		}
		if err := cam.loadConfigG(ctx, reg, reg.Default()); err != nil {
			return err
		}
	}
	cam.setConfigName("")

	return nil
}

// adjustITHL issues one ITHL increment or decrement per step of delta,
// tracking the offset after each successful step.
func (cam *Camera) adjustITHL(ctx context.Context, delta int, ctl *JobControl) error {
	op, step := OpITHLIncrease, 1
	if delta < 0 {
		op, step, delta = OpITHLDecrease, -1, -delta
	}

	for range delta {
		if ctl.Stopping() {
			return nil
		}
		if _, err := cam.sendInt(ctx, cam.primary, op); err != nil {
			return err
		}
		cam.addITHLOffset(step)
	}

	return nil
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-xpad/logger"
	"github.com/arloliu/go-xpad/xpad"
	"github.com/google/uuid"
)

// MaxExposureTime is the longest exposure, latency or overflow time in
// seconds. The server takes the times as unsigned 32-bit microseconds.
const MaxExposureTime = float64(math.MaxUint32) / 1e6

const exitTimeout = time.Second

// Progress is the latest progress report of a long server operation.
type Progress struct {
	Done  int
	Total int
	Text  string
}

type settings struct {
	imageType     ImageType
	trigMode      TrigMode
	expUS         uint32
	latUS         uint32
	ovfUS         uint32
	frames        int
	output        OutputSignal
	mode          AcquisitionMode
	format        ImageFileFormat
	geometrical   bool
	flatField     bool
	imageTransfer bool
	stack         int
	outputPath    string
}

// Camera drives one XPAD detector through its acquisition server.
//
// The primary connection carries commands and frames. The optional secondary
// connection carries status queries and aborts so they are not queued behind
// a running job. Long operations run on the acquisition worker, one at a time.
type Camera struct {
	cfg     *Config
	table   *CommandTable
	primary *xpad.Client
	control *xpad.Client
	buffers BufferManager
	acq     *acquisition
	metrics *CameraMetrics
	logger  logger.Logger

	mu         sync.RWMutex
	set        settings
	ithlOffset int
	configName string
	progress   Progress

	initialized atomic.Bool
	closed      atomic.Bool
}

// New creates a camera. It does not connect; call Init.
func New(cfg *Config) (*Camera, error) {
	table, err := NewCommandTable(cfg.protocol)
	if err != nil {
		return nil, err
	}

	pcfg, err := cfg.clientConfig(cfg.port)
	if err != nil {
		return nil, err
	}

	cam := &Camera{
		cfg:     cfg,
		table:   table,
		primary: xpad.NewClient(pcfg),
		metrics: newCameraMetrics(),
		logger:  cfg.logger.With("camera", cfg.model.String(), "host", cfg.host, "port", cfg.port),
		set: settings{
			imageType:     cfg.imageType,
			trigMode:      IntTrig,
			expUS:         1_000_000,
			latUS:         5_000,
			ovfUS:         4_000,
			frames:        1,
			output:        BusyUpdateOverflow,
			mode:          Standard,
			format:        Binary,
			geometrical:   true,
			flatField:     true,
			imageTransfer: true,
			stack:         1,
			outputPath:    DefaultOutputPath,
		},
	}

	if cfg.controlPort > 0 {
		ccfg, err := cfg.clientConfig(cfg.controlPort)
		if err != nil {
			return nil, err
		}
		cam.control = xpad.NewClient(ccfg)
	}

	cam.buffers = cfg.buffers
	if cam.buffers == nil {
		w, h := cfg.model.ImageSize()
		cam.buffers = NewMemoryBuffer(DefaultBufferCount, w*h*int(xpad.Depth32))
	}

	cam.primary.SetProgressHandler(cam.onProgress)
	cam.acq = newAcquisition(cam.runJob, cam.logger, cam.metrics)

	return cam, nil
}

// Config returns the camera configuration.
func (cam *Camera) Config() *Config { return cam.cfg }

// CommandTable returns the command table of the camera protocol.
func (cam *Camera) CommandTable() *CommandTable { return cam.table }

// Metrics returns the camera metrics.
func (cam *Camera) Metrics() *CameraMetrics { return cam.metrics }

// Client returns the primary connection.
func (cam *Camera) Client() *xpad.Client { return cam.primary }

// ControlClient returns the secondary connection, nil when disabled.
func (cam *Camera) ControlClient() *xpad.Client { return cam.control }

// Buffers returns the frame buffer manager.
func (cam *Camera) Buffers() BufferManager { return cam.buffers }

// Init connects to the server and prepares the detector.
func (cam *Camera) Init(ctx context.Context) error {
	if cam.closed.Load() {
		return ErrCameraClosed
	}

	if err := cam.primary.Connect(ctx); err != nil {
		return err
	}
	if cam.control != nil {
		if err := cam.control.Connect(ctx); err != nil {
			_ = cam.primary.Close()
			return err
		}
	}

	if err := cam.initDetector(ctx); err != nil {
		cam.disconnect()
		return err
	}

	cam.initialized.Store(true)
	cam.logger.Info("camera initialized", "protocol", cam.table.Protocol().String())

	return nil
}

func (cam *Camera) initDetector(ctx context.Context) error {
	if cam.table.Protocol() == ProtocolV2 {
		_, err := cam.sendInt(ctx, cam.primary, OpInit)
		return err
	}

	devices, err := cam.sendString(ctx, cam.primary, OpUSBDeviceList)
	if err != nil {
		return err
	}
	cam.logger.Info("usb devices", "list", devices)

	if _, err := cam.sendInt(ctx, cam.primary, OpSetUSBDevice, 0); err != nil {
		return err
	}
	if _, err := cam.sendInt(ctx, cam.primary, OpDefineDetectorModel, int(cam.cfg.model)); err != nil {
		return err
	}
	if _, err := cam.sendInt(ctx, cam.primary, OpAskReady); err != nil {
		return err
	}

	port, err := cam.primary.InitDataPort(ctx)
	if err != nil {
		return err
	}
	cam.logger.Info("data port ready", "data_port", port)

	return nil
}

// Close stops the acquisition worker, releases the server thread and closes
// both connections.
func (cam *Camera) Close() error {
	if !cam.closed.CompareAndSwap(false, true) {
		return nil
	}

	cam.acq.stop()
	cam.acq.close()

	if cam.initialized.Load() && cam.primary.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
		if _, err := cam.send(ctx, cam.primary, OpExit); err != nil {
			cam.logger.Debug("exit command failed", "error", err)
		}
		cancel()
	}
	cam.disconnect()

	cam.logger.Info("camera closed")

	return nil
}

func (cam *Camera) disconnect() {
	if cam.control != nil {
		_ = cam.control.Close()
	}
	_ = cam.primary.Close()
}

func (cam *Camera) checkReady() error {
	if cam.closed.Load() {
		return ErrCameraClosed
	}
	if !cam.initialized.Load() {
		return ErrNotInitialized
	}

	return nil
}

// checkIdle returns ErrBusy when a job owns the primary connection.
func (cam *Camera) checkIdle() error {
	if err := cam.checkReady(); err != nil {
		return err
	}
	if state, _, _ := cam.acq.snapshot(); state != AcqIdle {
		return fmt.Errorf("%w: %s", ErrBusy, state)
	}

	return nil
}

// statusClient returns the connection used for status queries and aborts.
func (cam *Camera) statusClient() *xpad.Client {
	if cam.control != nil {
		return cam.control
	}

	return cam.primary
}

func (cam *Camera) send(ctx context.Context, c *xpad.Client, op Op, args ...any) (xpad.Value, error) {
	cmd, reply, err := cam.table.Command(op, args...)
	if err != nil {
		return xpad.Value{}, err
	}

	return c.SendAndExpect(ctx, cmd, reply)
}

func (cam *Camera) sendInt(ctx context.Context, c *xpad.Client, op Op, args ...any) (int, error) {
	cmd, _, err := cam.table.Command(op, args...)
	if err != nil {
		return 0, err
	}

	return c.SendWaitInt(ctx, cmd)
}

func (cam *Camera) sendString(ctx context.Context, c *xpad.Client, op Op, args ...any) (string, error) {
	cmd, _, err := cam.table.Command(op, args...)
	if err != nil {
		return "", err
	}

	return c.SendWaitString(ctx, cmd)
}

func (cam *Camera) onProgress(done int, total int, text string) {
	cam.mu.Lock()
	cam.progress = Progress{Done: done, Total: total, Text: text}
	cam.mu.Unlock()

	cam.logger.Debug("progress", "done", done, "total", total, "text", text)
}

// Progress returns the latest progress report received from the server.
func (cam *Camera) Progress() Progress {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.progress
}

// ErrorMessage returns the last error text reported by the server.
func (cam *Camera) ErrorMessage() string { return cam.primary.ErrorMessage() }

// ImageSize returns the image width and height in pixels.
func (cam *Camera) ImageSize() (int, int) { return cam.cfg.model.ImageSize() }

// PixelSize returns the pixel width and height in metres.
func (cam *Camera) PixelSize() (float64, float64) { return PixelSize, PixelSize }

// MaxImageSize returns the largest image the detector produces.
func (cam *Camera) MaxImageSize() (int, int) { return cam.ImageSize() }

// ImageType returns the pixel type of delivered frames.
func (cam *Camera) ImageType() ImageType {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.imageType
}

// SetImageType sets the pixel type of delivered frames.
func (cam *Camera) SetImageType(t ImageType) error {
	if t != Bpp16 && t != Bpp32 {
		return &ConfigError{Field: "image type", Value: t, Reason: "only 16 or 32 bit pixels are supported"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.imageType = t

	return nil
}

// FrameSize returns the size in bytes of one delivered frame.
func (cam *Camera) FrameSize() int {
	w, h := cam.ImageSize()
	return w * h * int(cam.ImageType().Depth())
}

// TrigMode returns the trigger mode.
func (cam *Camera) TrigMode() TrigMode {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.trigMode
}

// SetTrigMode sets the trigger mode. Unsupported modes return a ConfigError
// and leave the current mode unchanged.
func (cam *Camera) SetTrigMode(mode TrigMode) error {
	if _, err := mode.wireCode(); err != nil {
		return err
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.trigMode = mode

	return nil
}

// CheckTrigMode reports whether mode is supported.
func (cam *Camera) CheckTrigMode(mode TrigMode) bool { return mode.Supported() }

func toMicroseconds(field string, sec float64) (uint32, error) {
	if math.IsNaN(sec) || sec < 0 || sec > MaxExposureTime {
		return 0, &ConfigError{Field: field, Value: sec, Reason: fmt.Sprintf("must be within [0, %g] seconds", MaxExposureTime)}
	}

	return uint32(math.Round(sec * 1e6)), nil
}

// ExpTime returns the exposure time in seconds.
func (cam *Camera) ExpTime() float64 {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return float64(cam.set.expUS) / 1e6
}

// SetExpTime sets the exposure time in seconds, rounded to the microsecond.
func (cam *Camera) SetExpTime(sec float64) error {
	us, err := toMicroseconds("exposure time", sec)
	if err != nil {
		return err
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.expUS = us

	return nil
}

// LatTime returns the latency time between frames in seconds.
func (cam *Camera) LatTime() float64 {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return float64(cam.set.latUS) / 1e6
}

// SetLatTime sets the latency time in seconds, rounded to the microsecond.
func (cam *Camera) SetLatTime(sec float64) error {
	us, err := toMicroseconds("latency time", sec)
	if err != nil {
		return err
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.latUS = us

	return nil
}

// OverflowTime returns the counter overflow readout period in seconds.
func (cam *Camera) OverflowTime() float64 {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return float64(cam.set.ovfUS) / 1e6
}

// SetOverflowTime sets the counter overflow readout period in seconds.
func (cam *Camera) SetOverflowTime(sec float64) error {
	us, err := toMicroseconds("overflow time", sec)
	if err != nil {
		return err
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.ovfUS = us

	return nil
}

// NbFrames returns the number of frames to acquire.
func (cam *Camera) NbFrames() int {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.frames
}

// SetNbFrames sets the number of frames to acquire.
func (cam *Camera) SetNbFrames(n int) error {
	if n < 1 {
		return &ConfigError{Field: "frame count", Value: n, Reason: "must be at least 1"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.frames = n

	return nil
}

// SetOutputSignal sets the signal driven on the detector output.
func (cam *Camera) SetOutputSignal(s OutputSignal) error {
	if !s.Valid() {
		return &ConfigError{Field: "output signal", Value: s, Reason: "unknown output signal"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.output = s

	return nil
}

// OutputSignal returns the signal driven on the detector output.
func (cam *Camera) OutputSignal() OutputSignal {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.output
}

// SetAcquisitionMode sets the readout mode.
func (cam *Camera) SetAcquisitionMode(m AcquisitionMode) error {
	if !m.Valid() {
		return &ConfigError{Field: "acquisition mode", Value: m, Reason: "expected Standard, ComputerBurst or DetectorBurst"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.mode = m

	return nil
}

// AcquisitionMode returns the readout mode.
func (cam *Camera) AcquisitionMode() AcquisitionMode {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.mode
}

// SetImageFileFormat sets the format of images written by the server.
func (cam *Camera) SetImageFileFormat(f ImageFileFormat) error {
	if !f.Valid() {
		return &ConfigError{Field: "image file format", Value: f, Reason: "expected Ascii or Binary"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.format = f

	return nil
}

// ImageFileFormat returns the format of images written by the server.
func (cam *Camera) ImageFileFormat() ImageFileFormat {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.format
}

// SetFlatFieldCorrection enables the server side flat field correction.
func (cam *Camera) SetFlatFieldCorrection(on bool) {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.flatField = on
}

// SetImageTransfer enables sending frames to the client.
func (cam *Camera) SetImageTransfer(on bool) {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.imageTransfer = on
}

// SetStackImages sets how many images the server sums into one frame.
func (cam *Camera) SetStackImages(n int) error {
	if n < 1 {
		return &ConfigError{Field: "stack images", Value: n, Reason: "must be at least 1"}
	}

	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.stack = n

	return nil
}

// SetOutputPath sets the server side directory of corrected images.
func (cam *Camera) SetOutputPath(path string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.set.outputPath = path
}

func (cam *Camera) snapshotSettings() settings {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set
}

// ExposureParams returns the parameters sent by PrepareAcq.
func (cam *Camera) ExposureParams() ExposureParams {
	s := cam.snapshotSettings()
	code, _ := s.trigMode.wireCode()

	return ExposureParams{
		Frames:        s.frames,
		ExposureUS:    s.expUS,
		LatencyUS:     s.latUS,
		OverflowUS:    s.ovfUS,
		TrigCode:      code,
		Output:        s.output,
		Geometrical:   s.geometrical,
		FlatField:     s.flatField,
		ImageTransfer: s.imageTransfer,
		Format:        s.format,
		Mode:          s.mode,
		StackImages:   s.stack,
		OutputPath:    s.outputPath,
	}
}

// PrepareAcq sends the exposure parameters in one command.
func (cam *Camera) PrepareAcq(ctx context.Context) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}

	_, err := cam.primary.SendWaitInt(ctx, cam.table.ExposureCommand(cam.ExposureParams()))

	return err
}

// StartAcq starts capturing NbFrames frames. It returns once the worker
// has accepted the capture.
func (cam *Camera) StartAcq(ctx context.Context) error {
	if err := cam.checkReady(); err != nil {
		return err
	}
	if b, ok := cam.buffers.(*MemoryBuffer); ok {
		b.Reset()
	}

	return cam.acq.start(ctx, CaptureJob{Frames: cam.NbFrames()})
}

// StopAcq asks the capture to stop after the current frame and waits for
// the worker. A stop is not an error; the returned error is a fault of the job.
func (cam *Camera) StopAcq(ctx context.Context) error {
	cam.acq.stop()
	return cam.acq.wait(ctx)
}

// Abort sends the abort command on the secondary connection and stops the
// running job without waiting for it.
func (cam *Camera) Abort(ctx context.Context) error {
	if err := cam.checkReady(); err != nil {
		return err
	}
	cam.metrics.incAbortCount()

	var err error
	state, _, _ := cam.acq.snapshot()
	if cam.control != nil || state == AcqIdle {
		_, err = cam.sendInt(ctx, cam.statusClient(), OpAbort)
	} else {
		cam.logger.Warn("no secondary connection, abort only stops the worker")
	}
	cam.acq.stop()

	return err
}

// Wait blocks until the running job ends and returns its error.
func (cam *Camera) Wait(ctx context.Context) error {
	return cam.acq.wait(ctx)
}

// Run starts job and waits for it to end.
func (cam *Camera) Run(ctx context.Context, job Job) error {
	if err := cam.checkReady(); err != nil {
		return err
	}
	if err := cam.acq.start(ctx, job); err != nil {
		return err
	}

	return cam.acq.wait(ctx)
}

// AcqState returns the acquisition worker state.
func (cam *Camera) AcqState() AcqState {
	state, _, _ := cam.acq.snapshot()
	return state
}

// AcquiredFrames returns the number of frames acquired by the current or last capture.
func (cam *Camera) AcquiredFrames() int { return cam.acq.acquiredFrames() }

// LastError returns the error of the last job.
func (cam *Camera) LastError() error { return cam.acq.lastError() }

// RunID returns the identifier of the current or last job.
func (cam *Camera) RunID() uuid.UUID { return cam.acq.currentRunID() }

// Status returns the detector status. While a job runs on the worker the
// locally tracked state is returned for captures, and for every job when no
// secondary connection exists; otherwise the server is queried.
func (cam *Camera) Status(ctx context.Context) (DetectorStatus, error) {
	if err := cam.checkReady(); err != nil {
		return DetectorStatus{}, err
	}

	state, job, frames := cam.acq.snapshot()
	if state != AcqIdle && job != nil {
		if job.Kind() == JobCapture {
			return DetectorStatus{State: StateAcquiring, Frame: frames}, nil
		}
		if cam.control == nil {
			return DetectorStatus{State: localJobState(job.Kind())}, nil
		}
	}

	return cam.queryStatus(ctx)
}

func localJobState(kind JobKind) DetectorState {
	switch kind {
	case JobCalibrationOTNPulse, JobCalibrationOTN, JobCalibrationBEAM:
		return StateCalibrating
	case JobCapture:
		return StateAcquiring
	default:
		return StateCalibrationManipulation
	}
}

func (cam *Camera) queryStatus(ctx context.Context) (DetectorStatus, error) {
	cam.metrics.incStatusQueryCount()

	reply, err := cam.sendString(ctx, cam.statusClient(), OpStatus)
	if err != nil {
		return DetectorStatus{}, err
	}

	return ParseStatus(reply)
}

// Reset resets the detector modules.
func (cam *Camera) Reset(ctx context.Context) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpReset)

	return err
}

// DetectorType returns the detector type.
func (cam *Camera) DetectorType(ctx context.Context) (string, error) {
	if !cam.table.Supports(OpDetectorType) {
		return "XPAD", nil
	}
	if err := cam.checkIdle(); err != nil {
		return "", err
	}

	return cam.sendString(ctx, cam.primary, OpDetectorType)
}

// DetectorModel returns the detector model name.
func (cam *Camera) DetectorModel(ctx context.Context) (string, error) {
	if !cam.table.Supports(OpDetectorModel) {
		return cam.cfg.model.String(), nil
	}
	if err := cam.checkIdle(); err != nil {
		return "", err
	}

	return cam.sendString(ctx, cam.primary, OpDetectorModel)
}

// ServerImageSize returns the image size reported by the server.
func (cam *Camera) ServerImageSize(ctx context.Context) (string, error) {
	if err := cam.checkIdle(); err != nil {
		return "", err
	}

	return cam.sendString(ctx, cam.primary, OpImageSize)
}

func (cam *Camera) queryInt(ctx context.Context, op Op, local int) (int, error) {
	if !cam.table.Supports(op) {
		return local, nil
	}
	if err := cam.checkIdle(); err != nil {
		return 0, err
	}

	return cam.sendInt(ctx, cam.primary, op)
}

// ModuleMask returns the mask of the modules in use.
func (cam *Camera) ModuleMask(ctx context.Context) (int, error) {
	return cam.queryInt(ctx, OpModuleMask, cam.cfg.model.ModuleMask())
}

// ChipMask returns the mask of the chips in use.
func (cam *Camera) ChipMask(ctx context.Context) (int, error) {
	return cam.queryInt(ctx, OpChipMask, cam.cfg.model.ChipMask())
}

// ModuleNumber returns the number of modules.
func (cam *Camera) ModuleNumber(ctx context.Context) (int, error) {
	return cam.queryInt(ctx, OpModuleNumber, cam.cfg.model.ModuleNumber())
}

// ChipNumber returns the number of chips per module.
func (cam *Camera) ChipNumber(ctx context.Context) (int, error) {
	return cam.queryInt(ctx, OpChipNumber, cam.cfg.model.ChipNumber())
}

// USBDeviceList returns the USB devices seen by the server.
func (cam *Camera) USBDeviceList(ctx context.Context) (string, error) {
	if err := cam.checkIdle(); err != nil {
		return "", err
	}

	return cam.sendString(ctx, cam.primary, OpUSBDeviceList)
}

// SetUSBDevice selects the active USB device.
func (cam *Camera) SetUSBDevice(ctx context.Context, device int) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpSetUSBDevice, device)

	return err
}

// DefineDetectorModel tells the server which detector model is attached.
func (cam *Camera) DefineDetectorModel(ctx context.Context, model Model) error {
	if !model.Valid() {
		return &ConfigError{Field: "model", Value: model, Reason: "unknown detector model"}
	}
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpDefineDetectorModel, int(model))

	return err
}

// AskReady checks that the detector modules answer.
func (cam *Camera) AskReady(ctx context.Context) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpAskReady)

	return err
}

// DigitalTest runs a digital test. value is the test pattern value used by
// the legacy protocol.
func (cam *Camera) DigitalTest(ctx context.Context, mode DigitalTestMode, value int) error {
	if !mode.Valid() {
		return &ConfigError{Field: "digital test mode", Value: mode, Reason: "expected flat, strip or gradient"}
	}
	if err := cam.checkIdle(); err != nil {
		return err
	}

	args := []any{mode.String()}
	if cam.table.Protocol() == ProtocolV1 {
		args = []any{value, int(mode)}
	}
	_, err := cam.sendInt(ctx, cam.primary, OpDigitalTest, args...)

	return err
}

// LoadConfigG loads value into a global register of every chip.
func (cam *Camera) LoadConfigG(ctx context.Context, reg Register, value int) error {
	if !reg.Valid() {
		return &ConfigError{Field: "register", Value: reg, Reason: "unknown register"}
	}
	if err := cam.checkIdle(); err != nil {
		return err
	}

	return cam.loadConfigG(ctx, reg, value)
}

func (cam *Camera) loadConfigG(ctx context.Context, reg Register, value int) error {
	_, err := cam.sendInt(ctx, cam.primary, OpLoadConfigG, cam.table.RegisterArg(reg), value)
	return err
}

// ReadConfigG returns the value of a global register for each chip.
func (cam *Camera) ReadConfigG(ctx context.Context, reg Register) ([]int, error) {
	if !reg.Valid() {
		return nil, &ConfigError{Field: "register", Value: reg, Reason: "unknown register"}
	}
	if err := cam.checkIdle(); err != nil {
		return nil, err
	}

	reply, err := cam.readConfigGReply(ctx, reg)
	if err != nil {
		return nil, err
	}

	return parseRegisterValues(reply)
}

func (cam *Camera) readConfigGReply(ctx context.Context, reg Register) (string, error) {
	return cam.sendString(ctx, cam.primary, OpReadConfigG, cam.table.RegisterArg(reg))
}

// LoadConfigGFile sends a global configuration file to the detector.
func (cam *Camera) LoadConfigGFile(ctx context.Context, data []byte) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}

	return cam.loadConfigGFile(ctx, data)
}

func (cam *Camera) loadConfigGFile(ctx context.Context, data []byte) error {
	cmd, _, err := cam.table.Command(OpLoadConfigGFile)
	if err != nil {
		return err
	}

	return cam.primary.SendFile(ctx, cmd, data)
}

// LoadConfigLFile sends a local configuration file to the detector.
func (cam *Camera) LoadConfigLFile(ctx context.Context, data []byte) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}

	return cam.loadConfigLFile(ctx, data)
}

func (cam *Camera) loadConfigLFile(ctx context.Context, data []byte) error {
	cmd, _, err := cam.table.Command(OpLoadConfigLFile)
	if err != nil {
		return err
	}

	return cam.primary.SendFile(ctx, cmd, data)
}

// SaveConfigL reads the local configuration of the detector into w.
func (cam *Camera) SaveConfigL(ctx context.Context, w io.Writer) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}

	return cam.saveConfigL(ctx, w)
}

func (cam *Camera) saveConfigL(ctx context.Context, w io.Writer) error {
	cmd, _, err := cam.table.Command(OpReadConfigL)
	if err != nil {
		return err
	}
	_, err = cam.primary.ReceiveFile(ctx, cmd, w)

	return err
}

// SetGeometricalCorrection enables the geometrical correction of frames.
func (cam *Camera) SetGeometricalCorrection(ctx context.Context, on bool) error {
	if cam.table.Supports(OpGeometricalCorrection) {
		if err := cam.checkIdle(); err != nil {
			return err
		}
		if _, err := cam.sendInt(ctx, cam.primary, OpGeometricalCorrection, on); err != nil {
			return err
		}
	}

	cam.mu.Lock()
	cam.set.geometrical = on
	cam.mu.Unlock()

	return nil
}

// GeometricalCorrection reports whether the geometrical correction is enabled.
func (cam *Camera) GeometricalCorrection() bool {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.set.geometrical
}

// SetNoisyPixelCorrection enables the noisy pixel correction.
func (cam *Camera) SetNoisyPixelCorrection(ctx context.Context, on bool) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpNoisyPixelCorrection, on)

	return err
}

// SetDeadPixelCorrection enables the dead pixel correction.
func (cam *Camera) SetDeadPixelCorrection(ctx context.Context, on bool) error {
	if err := cam.checkIdle(); err != nil {
		return err
	}
	_, err := cam.sendInt(ctx, cam.primary, OpDeadPixelCorrection, on)

	return err
}

// CalibrateOTNPulse runs an over-the-noise calibration with test pulses.
func (cam *Camera) CalibrateOTNPulse(ctx context.Context, speed OTNSpeed) error {
	return cam.Run(ctx, CalibrationJob{Calibration: CalibrationOTNPulse, Speed: speed})
}

// CalibrateOTN runs an over-the-noise calibration.
func (cam *Camera) CalibrateOTN(ctx context.Context, speed OTNSpeed) error {
	return cam.Run(ctx, CalibrationJob{Calibration: CalibrationOTN, Speed: speed})
}

// CalibrateBEAM runs a calibration under beam with the given exposure time
// in microseconds and upper ITHL bound.
func (cam *Camera) CalibrateBEAM(ctx context.Context, timeUS int, ithlMax int, speed OTNSpeed) error {
	return cam.Run(ctx, CalibrationJob{Calibration: CalibrationBEAM, Speed: speed, Time: timeUS, ITHLMax: ithlMax})
}

// LoadCalibration loads the calibration files of prefix into the detector.
func (cam *Camera) LoadCalibration(ctx context.Context, prefix string) error {
	return cam.Run(ctx, FileTransferJob{Direction: LoadFiles, Prefix: prefix})
}

// SaveCalibration saves the detector calibration into the files of prefix.
func (cam *Camera) SaveCalibration(ctx context.Context, prefix string) error {
	return cam.Run(ctx, FileTransferJob{Direction: SaveFiles, Prefix: prefix})
}

// LoadDefaultConfigG loads the default value of every global register.
func (cam *Camera) LoadDefaultConfigG(ctx context.Context) error {
	return cam.Run(ctx, DefaultConfigGJob{})
}

// IncreaseITHL raises the ITHL threshold by one step.
func (cam *Camera) IncreaseITHL(ctx context.Context) error {
	return cam.Run(ctx, RegisterAdjustJob{Delta: 1})
}

// DecreaseITHL lowers the ITHL threshold by one step.
func (cam *Camera) DecreaseITHL(ctx context.Context) error {
	return cam.Run(ctx, RegisterAdjustJob{Delta: -1})
}

// SetITHLOffset steps the ITHL threshold until it is offset steps away from
// the loaded calibration.
func (cam *Camera) SetITHLOffset(ctx context.Context, offset int) error {
	delta := offset - cam.ITHLOffset()
	if delta == 0 {
		return nil
	}

	return cam.Run(ctx, RegisterAdjustJob{Delta: delta})
}

// LoadFlatConfigL loads value into the local configuration of every pixel.
func (cam *Camera) LoadFlatConfigL(ctx context.Context, value int) error {
	return cam.Run(ctx, FlatConfigLJob{Value: value})
}

// ITHLOffset returns the ITHL steps applied since the calibration was loaded.
func (cam *Camera) ITHLOffset() int {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	return cam.ithlOffset
}

// ConfigName returns the prefix of the loaded calibration, or
// MemoryConfigName when the detector configuration is not backed by files.
func (cam *Camera) ConfigName() string {
	cam.mu.RLock()
	defer cam.mu.RUnlock()

	if cam.configName == "" {
		return MemoryConfigName
	}

	return cam.configName
}

// setConfigName records the calibration in use and clears the ITHL offset.
// An empty name marks the configuration as modified in memory.
func (cam *Camera) setConfigName(name string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.configName = name
	cam.ithlOffset = 0
}

func (cam *Camera) addITHLOffset(step int) {
	cam.mu.Lock()
	defer cam.mu.Unlock()

	cam.ithlOffset += step
}

// isStopErr reports whether err only reflects the camera being closed.
func isStopErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCameraClosed)
}

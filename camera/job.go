package camera

import (
	"fmt"
	"strings"
)

// JobKind identifies the operation run by the acquisition worker.
type JobKind int

const (
	JobCapture JobKind = iota
	JobCalibrationOTNPulse
	JobCalibrationOTN
	JobCalibrationBEAM
	JobLoadCalibration
	JobSaveCalibration
	JobDefaultConfigG
	JobITHLIncrease
	JobITHLDecrease
	JobFlatConfigL
)

var jobKindNames = [...]string{
	JobCapture:             "Capture",
	JobCalibrationOTNPulse: "CalibrationOTNPulse",
	JobCalibrationOTN:      "CalibrationOTN",
	JobCalibrationBEAM:     "CalibrationBEAM",
	JobLoadCalibration:     "LoadCalibration",
	JobSaveCalibration:     "SaveCalibration",
	JobDefaultConfigG:      "DefaultConfigG",
	JobITHLIncrease:        "ITHLIncrease",
	JobITHLDecrease:        "ITHLDecrease",
	JobFlatConfigL:         "FlatConfigL",
}

func (k JobKind) String() string {
	if k < 0 || int(k) >= len(jobKindNames) {
		return fmt.Sprintf("JobKind(%d)", int(k))
	}

	return jobKindNames[k]
}

// Job is an operation executed by the acquisition worker. Each job is
// consumed exactly once.
type Job interface {
	Kind() JobKind
	validate() error
}

// CaptureJob acquires frames until Frames have been read or the job is
// stopped. Zero frames captures until stopped.
type CaptureJob struct {
	Frames int
}

func (CaptureJob) Kind() JobKind { return JobCapture }

func (j CaptureJob) validate() error {
	if j.Frames < 0 {
		return fmt.Errorf("%w: negative frame count %d", ErrJobRejected, j.Frames)
	}

	return nil
}

// CalibrationKind selects the calibration procedure.
type CalibrationKind int

const (
	CalibrationOTNPulse CalibrationKind = iota
	CalibrationOTN
	CalibrationBEAM
)

func (k CalibrationKind) String() string {
	switch k {
	case CalibrationOTNPulse:
		return "OTNPulse"
	case CalibrationOTN:
		return "OTN"
	case CalibrationBEAM:
		return "BEAM"
	default:
		return fmt.Sprintf("CalibrationKind(%d)", int(k))
	}
}

// CalibrationJob runs a detector self calibration.
type CalibrationJob struct {
	Calibration CalibrationKind
	Speed       OTNSpeed
	// Time is the BEAM exposure time in microseconds.
	Time int
	// ITHLMax is the upper ITHL bound of a BEAM calibration.
	ITHLMax int
}

func (j CalibrationJob) Kind() JobKind {
	switch j.Calibration {
	case CalibrationOTN:
		return JobCalibrationOTN
	case CalibrationBEAM:
		return JobCalibrationBEAM
	default:
		return JobCalibrationOTNPulse
	}
}

func (j CalibrationJob) validate() error {
	if j.Calibration < CalibrationOTNPulse || j.Calibration > CalibrationBEAM {
		return fmt.Errorf("%w: unknown calibration %s", ErrJobRejected, j.Calibration)
	}
	if !j.Speed.Valid() {
		return fmt.Errorf("%w: unknown calibration speed %s", ErrJobRejected, j.Speed)
	}
	if j.Calibration == CalibrationBEAM && (j.Time <= 0 || j.ITHLMax <= 0) {
		return fmt.Errorf("%w: BEAM calibration needs a positive time and ITHL maximum", ErrJobRejected)
	}

	return nil
}

// TransferDirection is the direction of a calibration file transfer.
type TransferDirection int

const (
	// LoadFiles sends calibration files to the detector.
	LoadFiles TransferDirection = iota
	// SaveFiles reads the detector calibration into files.
	SaveFiles
)

// FileTransferJob loads or saves a calibration: the global configuration in
// Prefix+".cfg" and the local configuration in Prefix+".cfl".
type FileTransferJob struct {
	Direction TransferDirection
	Prefix    string
}

func (j FileTransferJob) Kind() JobKind {
	if j.Direction == SaveFiles {
		return JobSaveCalibration
	}

	return JobLoadCalibration
}

func (j FileTransferJob) validate() error {
	if strings.TrimSpace(j.Prefix) == "" {
		return fmt.Errorf("%w: empty calibration file prefix", ErrJobRejected)
	}
	if j.Direction != LoadFiles && j.Direction != SaveFiles {
		return fmt.Errorf("%w: unknown transfer direction %d", ErrJobRejected, j.Direction)
	}

	return nil
}

// DefaultConfigGJob loads the default value of every global register.
type DefaultConfigGJob struct{}

func (DefaultConfigGJob) Kind() JobKind { return JobDefaultConfigG }

func (DefaultConfigGJob) validate() error { return nil }

// RegisterAdjustJob steps the ITHL register up (positive Delta) or down.
type RegisterAdjustJob struct {
	Delta int
}

func (j RegisterAdjustJob) Kind() JobKind {
	if j.Delta < 0 {
		return JobITHLDecrease
	}

	return JobITHLIncrease
}

func (j RegisterAdjustJob) validate() error {
	if j.Delta == 0 {
		return fmt.Errorf("%w: zero ITHL adjustment", ErrJobRejected)
	}

	return nil
}

// FlatConfigLJob loads the same local configuration value into every pixel.
type FlatConfigLJob struct {
	Value int
}

func (FlatConfigLJob) Kind() JobKind { return JobFlatConfigL }

func (j FlatConfigLJob) validate() error {
	if j.Value < 0 {
		return fmt.Errorf("%w: negative flat value %d", ErrJobRejected, j.Value)
	}

	return nil
}

package camera

import (
	"fmt"

	"github.com/arloliu/go-xpad/xpad"
)

// ImageType is the pixel type of frames handed to the buffer manager.
type ImageType int

const (
	Bpp16 ImageType = iota
	Bpp32
)

func (t ImageType) String() string {
	switch t {
	case Bpp16:
		return "Bpp16"
	case Bpp32:
		return "Bpp32"
	default:
		return fmt.Sprintf("ImageType(%d)", int(t))
	}
}

// Depth returns the sample width.
func (t ImageType) Depth() xpad.PixelDepth {
	if t == Bpp32 {
		return xpad.Depth32
	}

	return xpad.Depth16
}

// ParseImageType parses "16", "32", "Bpp16" or "Bpp32".
func ParseImageType(s string) (ImageType, error) {
	switch s {
	case "16", "Bpp16", "bpp16":
		return Bpp16, nil
	case "32", "Bpp32", "bpp32":
		return Bpp32, nil
	}

	return 0, &ConfigError{Field: "image type", Value: s, Reason: "only 16 or 32 bit pixels are supported"}
}

// TrigMode is the host-side trigger mode.
type TrigMode int

const (
	IntTrig TrigMode = iota
	IntTrigMult
	ExtGate
	ExtTrigSingle
	ExtTrigMult
	ExtStartStop
	ExtTrigReadout
)

var trigModeNames = [...]string{
	IntTrig:        "IntTrig",
	IntTrigMult:    "IntTrigMult",
	ExtGate:        "ExtGate",
	ExtTrigSingle:  "ExtTrigSingle",
	ExtTrigMult:    "ExtTrigMult",
	ExtStartStop:   "ExtStartStop",
	ExtTrigReadout: "ExtTrigReadout",
}

func (m TrigMode) String() string {
	if m < 0 || int(m) >= len(trigModeNames) {
		return fmt.Sprintf("TrigMode(%d)", int(m))
	}

	return trigModeNames[m]
}

// ParseTrigMode parses a trigger mode name.
func ParseTrigMode(s string) (TrigMode, error) {
	for i, name := range trigModeNames {
		if name == s {
			return TrigMode(i), nil
		}
	}

	return 0, &ConfigError{Field: "trigger mode", Value: s, Reason: "unknown trigger mode name"}
}

// Supported reports whether the detector accepts m.
func (m TrigMode) Supported() bool {
	_, err := m.wireCode()
	return err == nil
}

// wireCode returns the protocol trigger code of m.
func (m TrigMode) wireCode() (int, error) {
	switch m {
	case IntTrig:
		return 0, nil
	case ExtGate:
		return 1, nil
	case ExtTrigSingle:
		return 2, nil
	case ExtTrigMult:
		return 3, nil
	default:
		return 0, &ConfigError{
			Field:  "trigger mode",
			Value:  m,
			Reason: "only IntTrig, ExtGate, ExtTrigSingle or ExtTrigMult are supported",
		}
	}
}

// OutputSignal selects what the detector drives on its output connector.
type OutputSignal int

const (
	ExposureBusy OutputSignal = iota
	ShutterBusy
	BusyUpdateOverflow
	PixelCounterEnabled
	ExternalGate
	ExposureReadDone
	DataTransfer
	RAMReadyImageBusy
	XPADToLocalDDR
	LocalDDRToPC
)

var outputSignalNames = [...]string{
	ExposureBusy:        "ExposureBusy",
	ShutterBusy:         "ShutterBusy",
	BusyUpdateOverflow:  "BusyUpdateOverflow",
	PixelCounterEnabled: "PixelCounterEnabled",
	ExternalGate:        "ExternalGate",
	ExposureReadDone:    "ExposureReadDone",
	DataTransfer:        "DataTransfer",
	RAMReadyImageBusy:   "RAMReadyImageBusy",
	XPADToLocalDDR:      "XPADToLocalDDR",
	LocalDDRToPC:        "LocalDDRToPC",
}

func (s OutputSignal) String() string {
	if !s.Valid() {
		return fmt.Sprintf("OutputSignal(%d)", int(s))
	}

	return outputSignalNames[s]
}

// Valid reports whether s is a known output signal.
func (s OutputSignal) Valid() bool { return s >= 0 && int(s) < len(outputSignalNames) }

// ParseOutputSignal parses an output signal name.
func ParseOutputSignal(name string) (OutputSignal, error) {
	for i, n := range outputSignalNames {
		if n == name {
			return OutputSignal(i), nil
		}
	}

	return 0, &ConfigError{Field: "output signal", Value: name, Reason: "unknown output signal name"}
}

// AcquisitionMode is the detector readout mode.
type AcquisitionMode int

const (
	Standard AcquisitionMode = iota
	ComputerBurst
	DetectorBurst
)

var acqModeNames = [...]string{
	Standard:      "Standard",
	ComputerBurst: "ComputerBurst",
	DetectorBurst: "DetectorBurst",
}

func (m AcquisitionMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("AcquisitionMode(%d)", int(m))
	}

	return acqModeNames[m]
}

// Valid reports whether m is a known acquisition mode.
func (m AcquisitionMode) Valid() bool { return m >= 0 && int(m) < len(acqModeNames) }

// ParseAcquisitionMode parses an acquisition mode name.
func ParseAcquisitionMode(name string) (AcquisitionMode, error) {
	for i, n := range acqModeNames {
		if n == name {
			return AcquisitionMode(i), nil
		}
	}

	return 0, &ConfigError{Field: "acquisition mode", Value: name, Reason: "expected Standard, ComputerBurst or DetectorBurst"}
}

// ImageFileFormat is the format of images the server writes to disk.
type ImageFileFormat int

const (
	Ascii ImageFileFormat = iota
	Binary
)

func (f ImageFileFormat) String() string {
	switch f {
	case Ascii:
		return "Ascii"
	case Binary:
		return "Binary"
	default:
		return fmt.Sprintf("ImageFileFormat(%d)", int(f))
	}
}

// Valid reports whether f is a known file format.
func (f ImageFileFormat) Valid() bool { return f == Ascii || f == Binary }

// ParseImageFileFormat parses "Ascii" or "Binary".
func ParseImageFileFormat(name string) (ImageFileFormat, error) {
	switch name {
	case "Ascii":
		return Ascii, nil
	case "Binary":
		return Binary, nil
	}

	return 0, &ConfigError{Field: "image file format", Value: name, Reason: "expected Ascii or Binary"}
}

// DigitalTestMode selects the pattern of a digital test.
type DigitalTestMode int

const (
	TestFlat DigitalTestMode = iota
	TestStrips
	TestGradient
)

var digitalTestWords = [...]string{
	TestFlat:     "flat",
	TestStrips:   "strip",
	TestGradient: "gradient",
}

func (m DigitalTestMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("DigitalTestMode(%d)", int(m))
	}

	return digitalTestWords[m]
}

// Valid reports whether m is a known digital test mode.
func (m DigitalTestMode) Valid() bool { return m >= 0 && int(m) < len(digitalTestWords) }

// ParseDigitalTestMode parses "flat", "strip" or "gradient".
func ParseDigitalTestMode(name string) (DigitalTestMode, error) {
	for i, n := range digitalTestWords {
		if n == name {
			return DigitalTestMode(i), nil
		}
	}

	return 0, &ConfigError{Field: "digital test mode", Value: name, Reason: "expected flat, strip or gradient"}
}

// OTNSpeed is the calibration configuration word of an over-the-noise calibration.
type OTNSpeed int

const (
	OTNSlow OTNSpeed = iota
	OTNMedium
	OTNFast
)

func (s OTNSpeed) String() string {
	switch s {
	case OTNSlow:
		return "Slow"
	case OTNMedium:
		return "Medium"
	case OTNFast:
		return "Fast"
	default:
		return fmt.Sprintf("OTNSpeed(%d)", int(s))
	}
}

// Valid reports whether s is a known calibration speed.
func (s OTNSpeed) Valid() bool { return s >= OTNSlow && s <= OTNFast }

// ParseOTNSpeed parses "Slow", "Medium" or "Fast".
func ParseOTNSpeed(name string) (OTNSpeed, error) {
	switch name {
	case "Slow", "slow":
		return OTNSlow, nil
	case "Medium", "medium":
		return OTNMedium, nil
	case "Fast", "fast":
		return OTNFast, nil
	}

	return 0, &ConfigError{Field: "calibration speed", Value: name, Reason: "expected Slow, Medium or Fast"}
}

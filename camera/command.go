package camera

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-xpad/xpad"
)

// Protocol is the server protocol generation.
type Protocol int

const (
	// ProtocolV1 is the legacy server: numeric register ids, frames read
	// through the data port after polling the detector status.
	ProtocolV1 Protocol = iota + 1
	// ProtocolV2 is the current server: named registers and inline frames
	// streamed on the command connection.
	ProtocolV2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolV1:
		return "v1"
	case ProtocolV2:
		return "v2"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol parses "v1" or "v2".
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1", "legacy":
		return ProtocolV1, nil
	case "v2", "2", "":
		return ProtocolV2, nil
	}

	return 0, &ConfigError{Field: "protocol", Value: s, Reason: "expected v1 or v2"}
}

// Op is a logical detector operation.
type Op int

const (
	OpInit Op = iota
	OpExit
	OpReset
	OpStatus
	OpExposureParams
	OpStartExposure
	OpReadImage16
	OpReadImage32
	OpImageSize
	OpDetectorType
	OpDetectorModel
	OpModuleMask
	OpChipMask
	OpModuleNumber
	OpChipNumber
	OpUSBDeviceList
	OpSetUSBDevice
	OpDefineDetectorModel
	OpAskReady
	OpDigitalTest
	OpLoadConfigG
	OpReadConfigG
	OpLoadConfigGFile
	OpLoadConfigLFile
	OpReadConfigL
	OpGeometricalCorrection
	OpNoisyPixelCorrection
	OpDeadPixelCorrection
	OpITHLIncrease
	OpITHLDecrease
	OpLoadFlatConfigL
	OpCalibrationOTN
	OpCalibrationOTNPulse
	OpCalibrationBEAM
	OpAbort
)

var opNames = [...]string{
	OpInit:                  "Init",
	OpExit:                  "Exit",
	OpReset:                 "Reset",
	OpStatus:                "Status",
	OpExposureParams:        "ExposureParams",
	OpStartExposure:         "StartExposure",
	OpReadImage16:           "ReadImage16",
	OpReadImage32:           "ReadImage32",
	OpImageSize:             "ImageSize",
	OpDetectorType:          "DetectorType",
	OpDetectorModel:         "DetectorModel",
	OpModuleMask:            "ModuleMask",
	OpChipMask:              "ChipMask",
	OpModuleNumber:          "ModuleNumber",
	OpChipNumber:            "ChipNumber",
	OpUSBDeviceList:         "USBDeviceList",
	OpSetUSBDevice:          "SetUSBDevice",
	OpDefineDetectorModel:   "DefineDetectorModel",
	OpAskReady:              "AskReady",
	OpDigitalTest:           "DigitalTest",
	OpLoadConfigG:           "LoadConfigG",
	OpReadConfigG:           "ReadConfigG",
	OpLoadConfigGFile:       "LoadConfigGFile",
	OpLoadConfigLFile:       "LoadConfigLFile",
	OpReadConfigL:           "ReadConfigL",
	OpGeometricalCorrection: "GeometricalCorrection",
	OpNoisyPixelCorrection:  "NoisyPixelCorrection",
	OpDeadPixelCorrection:   "DeadPixelCorrection",
	OpITHLIncrease:          "ITHLIncrease",
	OpITHLDecrease:          "ITHLDecrease",
	OpLoadFlatConfigL:       "LoadFlatConfigL",
	OpCalibrationOTN:        "CalibrationOTN",
	OpCalibrationOTNPulse:   "CalibrationOTNPulse",
	OpCalibrationBEAM:       "CalibrationBEAM",
	OpAbort:                 "Abort",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(op))
	}

	return opNames[op]
}

// Template is the wire form of an operation: a fmt format for the command
// line and the kind of value the server returns.
type Template struct {
	Format string
	Reply  xpad.ValueKind
}

var v2Templates = map[Op]Template{
	OpInit:                  {"Init", xpad.IntValue},
	OpExit:                  {"Exit", xpad.NoValue},
	OpReset:                 {"ResetDetector", xpad.IntValue},
	OpStatus:                {"GetDetectorStatus", xpad.StringValue},
	OpStartExposure:         {"StartExposure", xpad.IntValue},
	OpImageSize:             {"GetImageSize", xpad.StringValue},
	OpDetectorType:          {"GetDetectorType", xpad.StringValue},
	OpDetectorModel:         {"GetDetectorModel", xpad.StringValue},
	OpModuleMask:            {"GetModuleMask", xpad.IntValue},
	OpChipMask:              {"GetChipMask", xpad.IntValue},
	OpModuleNumber:          {"GetModuleNumber", xpad.IntValue},
	OpChipNumber:            {"GetChipNumber", xpad.IntValue},
	OpSetUSBDevice:          {"SetUSBDevice %d", xpad.IntValue},
	OpAskReady:              {"AskReady", xpad.IntValue},
	OpDigitalTest:           {"DigitalTest %s", xpad.IntValue},
	OpLoadConfigG:           {"LoadConfigG %v %d", xpad.IntValue},
	OpReadConfigG:           {"ReadConfigG %v", xpad.StringValue},
	OpLoadConfigGFile:       {"LoadConfigGFromFile", xpad.IntValue},
	OpLoadConfigLFile:       {"LoadConfigLFromFile", xpad.IntValue},
	OpReadConfigL:           {"ReadConfigL", xpad.IntValue},
	OpGeometricalCorrection: {"SetGeometricalCorrectionFlag %t", xpad.IntValue},
	OpNoisyPixelCorrection:  {"SetNoisyPixelCorrectionFlag %t", xpad.IntValue},
	OpDeadPixelCorrection:   {"SetDeadPixelCorrectionFlag %t", xpad.IntValue},
	OpITHLIncrease:          {"ITHLIncrease", xpad.IntValue},
	OpITHLDecrease:          {"ITHLDecrease", xpad.IntValue},
	OpLoadFlatConfigL:       {"LoadFlatConfigL %d", xpad.IntValue},
	OpCalibrationOTN:        {"CalibrationOTN %d", xpad.IntValue},
	OpCalibrationOTNPulse:   {"CalibrationOTNPulse %d", xpad.IntValue},
	OpCalibrationBEAM:       {"CalibrationBEAM %d %d %d", xpad.IntValue},
	OpAbort:                 {"AbortCurrentProcess", xpad.IntValue},
}

var v1Templates = map[Op]Template{
	OpExit:                {"Exit", xpad.NoValue},
	OpReset:               {"ResetModules", xpad.IntValue},
	OpStatus:              {"GetStatus", xpad.StringValue},
	OpStartExposure:       {"Expose", xpad.IntValue},
	OpReadImage16:         {"ReadImage2B", xpad.StringValue},
	OpReadImage32:         {"ReadImage4B", xpad.StringValue},
	OpUSBDeviceList:       {"GetUSBDeviceList", xpad.StringValue},
	OpSetUSBDevice:        {"SetUSBDevice %d", xpad.IntValue},
	OpDefineDetectorModel: {"DefineDetectorModel %d", xpad.IntValue},
	OpAskReady:            {"AskReady", xpad.IntValue},
	OpDigitalTest:         {"DigitalTest %d %d", xpad.IntValue},
	OpLoadConfigG:         {"LoadConfigG %v %d", xpad.IntValue},
	OpReadConfigG:         {"ReadConfigG %v", xpad.StringValue},
	OpLoadConfigGFile:     {"LoadConfigGFromFile", xpad.IntValue},
	OpLoadConfigLFile:     {"LoadConfigLFromFile", xpad.IntValue},
	OpReadConfigL:         {"ReadConfigL", xpad.IntValue},
	OpITHLIncrease:        {"ITHLIncrease", xpad.IntValue},
	OpITHLDecrease:        {"ITHLDecrease", xpad.IntValue},
	OpLoadFlatConfigL:     {"LoadFlatConfigL %d", xpad.IntValue},
	OpCalibrationOTN:      {"CalibrationOTN %d", xpad.IntValue},
	OpAbort:               {"AbortCurrentProcess", xpad.IntValue},
}

// DefaultOutputPath is the server side directory for corrected images.
const DefaultOutputPath = "/opt/imXPAD/tmp_corrected/"

// ExposureParams holds everything sent by the exposure parameter command.
type ExposureParams struct {
	Frames        int
	ExposureUS    uint32
	LatencyUS     uint32
	OverflowUS    uint32
	TrigCode      int
	Output        OutputSignal
	Geometrical   bool
	FlatField     bool
	ImageTransfer bool
	Format        ImageFileFormat
	Mode          AcquisitionMode
	StackImages   int
	OutputPath    string
}

// CommandTable maps operations to the command vocabulary of one protocol
// generation.
type CommandTable struct {
	protocol  Protocol
	templates map[Op]Template
}

// NewCommandTable returns the command table of protocol p.
func NewCommandTable(p Protocol) (*CommandTable, error) {
	switch p {
	case ProtocolV1:
		return &CommandTable{protocol: p, templates: v1Templates}, nil
	case ProtocolV2:
		return &CommandTable{protocol: p, templates: v2Templates}, nil
	}

	return nil, &ConfigError{Field: "protocol", Value: p, Reason: "expected v1 or v2"}
}

// Protocol returns the protocol generation of the table.
func (t *CommandTable) Protocol() Protocol { return t.protocol }

// Supports reports whether op has a command in this protocol generation.
func (t *CommandTable) Supports(op Op) bool {
	if op == OpExposureParams {
		return true
	}
	_, ok := t.templates[op]

	return ok
}

// Template returns the wire template of op.
func (t *CommandTable) Template(op Op) (Template, error) {
	tmpl, ok := t.templates[op]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedOp, op, t.protocol)
	}

	return tmpl, nil
}

// Command formats the command line of op.
func (t *CommandTable) Command(op Op, args ...any) (string, xpad.ValueKind, error) {
	tmpl, err := t.Template(op)
	if err != nil {
		return "", xpad.NoValue, err
	}
	if len(args) == 0 {
		return tmpl.Format, tmpl.Reply, nil
	}

	return fmt.Sprintf(tmpl.Format, args...), tmpl.Reply, nil
}

// RegisterArg returns how r is addressed on the wire.
func (t *CommandTable) RegisterArg(r Register) any {
	if t.protocol == ProtocolV1 {
		return r.ID()
	}

	return r.String()
}

// FlatArg encodes the flat local configuration value.
func (t *CommandTable) FlatArg(v int) int {
	if t.protocol == ProtocolV1 {
		return v*8 + 1
	}

	return v
}

// FrameHeader returns the inline frame header sent by StartExposure.
func (t *CommandTable) FrameHeader() xpad.FrameHeader {
	return xpad.GeometryHeader
}

// InlineFrames reports whether frames are streamed on the command connection.
func (t *CommandTable) InlineFrames() bool { return t.protocol == ProtocolV2 }

// ExposureCommand formats the exposure parameter command.
func (t *CommandTable) ExposureCommand(p ExposureParams) string {
	if t.protocol == ProtocolV1 {
		return fmt.Sprintf("ExposeParam %d %d %d %d %d",
			p.Frames, p.ExposureUS, p.OverflowUS, p.TrigCode, int(p.Output))
	}

	path := p.OutputPath
	if path == "" {
		path = DefaultOutputPath
	}

	return strings.Join([]string{
		"SetExposureParameters",
		strconv.Itoa(p.Frames),
		strconv.FormatUint(uint64(p.ExposureUS), 10),
		strconv.FormatUint(uint64(p.LatencyUS), 10),
		strconv.FormatUint(uint64(p.OverflowUS), 10),
		strconv.Itoa(p.TrigCode),
		strconv.Itoa(int(p.Output)),
		boolDigit(p.Geometrical),
		boolDigit(p.FlatField),
		boolDigit(p.ImageTransfer),
		strconv.Itoa(int(p.Format)),
		strconv.Itoa(int(p.Mode)),
		strconv.Itoa(p.StackImages),
		path,
	}, " ")
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

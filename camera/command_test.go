package camera

import (
	"testing"

	"github.com/arloliu/go-xpad/xpad"
	"github.com/stretchr/testify/require"
)

func TestCommandTable_V2(t *testing.T) {
	table, err := NewCommandTable(ProtocolV2)
	require.NoError(t, err)

	tests := []struct {
		op    Op
		args  []any
		cmd   string
		reply xpad.ValueKind
	}{
		{op: OpInit, cmd: "Init", reply: xpad.IntValue},
		{op: OpExit, cmd: "Exit", reply: xpad.NoValue},
		{op: OpReset, cmd: "ResetDetector", reply: xpad.IntValue},
		{op: OpStatus, cmd: "GetDetectorStatus", reply: xpad.StringValue},
		{op: OpStartExposure, cmd: "StartExposure", reply: xpad.IntValue},
		{op: OpDetectorModel, cmd: "GetDetectorModel", reply: xpad.StringValue},
		{op: OpSetUSBDevice, args: []any{0}, cmd: "SetUSBDevice 0", reply: xpad.IntValue},
		{op: OpDigitalTest, args: []any{TestStrips.String()}, cmd: "DigitalTest strip", reply: xpad.IntValue},
		{op: OpLoadConfigG, args: []any{table.RegisterArg(RegITHL), 30}, cmd: "LoadConfigG ITHL 30", reply: xpad.IntValue},
		{op: OpReadConfigG, args: []any{table.RegisterArg(RegIMFP)}, cmd: "ReadConfigG IMFP", reply: xpad.StringValue},
		{op: OpGeometricalCorrection, args: []any{true}, cmd: "SetGeometricalCorrectionFlag true", reply: xpad.IntValue},
		{op: OpDeadPixelCorrection, args: []any{false}, cmd: "SetDeadPixelCorrectionFlag false", reply: xpad.IntValue},
		{op: OpLoadFlatConfigL, args: []any{table.FlatArg(32)}, cmd: "LoadFlatConfigL 32", reply: xpad.IntValue},
		{op: OpCalibrationOTNPulse, args: []any{int(OTNFast)}, cmd: "CalibrationOTNPulse 2", reply: xpad.IntValue},
		{op: OpCalibrationBEAM, args: []any{1000, 60, int(OTNSlow)}, cmd: "CalibrationBEAM 1000 60 0", reply: xpad.IntValue},
		{op: OpAbort, cmd: "AbortCurrentProcess", reply: xpad.IntValue},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			cmd, reply, err := table.Command(tt.op, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.cmd, cmd)
			require.Equal(t, tt.reply, reply)
		})
	}
}

func TestCommandTable_V1(t *testing.T) {
	table, err := NewCommandTable(ProtocolV1)
	require.NoError(t, err)

	tests := []struct {
		op    Op
		args  []any
		cmd   string
		reply xpad.ValueKind
	}{
		{op: OpReset, cmd: "ResetModules", reply: xpad.IntValue},
		{op: OpStatus, cmd: "GetStatus", reply: xpad.StringValue},
		{op: OpStartExposure, cmd: "Expose", reply: xpad.IntValue},
		{op: OpReadImage16, cmd: "ReadImage2B", reply: xpad.StringValue},
		{op: OpReadImage32, cmd: "ReadImage4B", reply: xpad.StringValue},
		{op: OpUSBDeviceList, cmd: "GetUSBDeviceList", reply: xpad.StringValue},
		{op: OpDefineDetectorModel, args: []any{int(ModelS70)}, cmd: "DefineDetectorModel 3", reply: xpad.IntValue},
		{op: OpDigitalTest, args: []any{100, int(TestGradient)}, cmd: "DigitalTest 100 2", reply: xpad.IntValue},
		{op: OpLoadConfigG, args: []any{table.RegisterArg(RegITHL), 30}, cmd: "LoadConfigG 62 30", reply: xpad.IntValue},
		{op: OpReadConfigG, args: []any{table.RegisterArg(RegAMPTP)}, cmd: "ReadConfigG 31", reply: xpad.StringValue},
		{op: OpLoadFlatConfigL, args: []any{table.FlatArg(32)}, cmd: "LoadFlatConfigL 257", reply: xpad.IntValue},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			cmd, reply, err := table.Command(tt.op, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.cmd, cmd)
			require.Equal(t, tt.reply, reply)
		})
	}
}

func TestCommandTable_Unsupported(t *testing.T) {
	require := require.New(t)

	v1, err := NewCommandTable(ProtocolV1)
	require.NoError(err)
	require.False(v1.Supports(OpInit))
	require.False(v1.Supports(OpDetectorType))
	require.True(v1.Supports(OpExposureParams))
	require.False(v1.InlineFrames())

	_, _, err = v1.Command(OpNoisyPixelCorrection, true)
	require.ErrorIs(err, ErrUnsupportedOp)

	v2, err := NewCommandTable(ProtocolV2)
	require.NoError(err)
	require.False(v2.Supports(OpReadImage16))
	require.True(v2.InlineFrames())
	require.Equal(xpad.GeometryHeader, v2.FrameHeader())

	_, err = NewCommandTable(Protocol(7))
	require.True(IsConfigError(err))
}

func TestCommandTable_ExposureCommand(t *testing.T) {
	require := require.New(t)

	params := ExposureParams{
		Frames:        5,
		ExposureUS:    100000,
		LatencyUS:     5000,
		OverflowUS:    4000,
		TrigCode:      1,
		Output:        BusyUpdateOverflow,
		Geometrical:   true,
		FlatField:     false,
		ImageTransfer: true,
		Format:        Binary,
		Mode:          DetectorBurst,
		StackImages:   1,
	}

	v2, err := NewCommandTable(ProtocolV2)
	require.NoError(err)
	require.Equal("SetExposureParameters 5 100000 5000 4000 1 2 1 0 1 1 2 1 "+DefaultOutputPath, v2.ExposureCommand(params))

	params.OutputPath = "/data/run1"
	require.Equal("SetExposureParameters 5 100000 5000 4000 1 2 1 0 1 1 2 1 /data/run1", v2.ExposureCommand(params))

	v1, err := NewCommandTable(ProtocolV1)
	require.NoError(err)
	require.Equal("ExposeParam 5 100000 4000 1 2", v1.ExposureCommand(params))
}

func TestParseProtocol(t *testing.T) {
	require := require.New(t)

	p, err := ParseProtocol("v1")
	require.NoError(err)
	require.Equal(ProtocolV1, p)

	p, err = ParseProtocol("")
	require.NoError(err)
	require.Equal(ProtocolV2, p)

	_, err = ParseProtocol("v3")
	require.ErrorIs(err, ErrInvalidArgument)
	require.Equal("v2", ProtocolV2.String())
}

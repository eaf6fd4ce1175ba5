package camera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJob_Kinds(t *testing.T) {
	tests := []struct {
		job  Job
		kind JobKind
		id   int
	}{
		{job: CaptureJob{Frames: 5}, kind: JobCapture, id: 0},
		{job: CalibrationJob{Calibration: CalibrationOTNPulse}, kind: JobCalibrationOTNPulse, id: 1},
		{job: CalibrationJob{Calibration: CalibrationOTN}, kind: JobCalibrationOTN, id: 2},
		{job: CalibrationJob{Calibration: CalibrationBEAM, Time: 1, ITHLMax: 1}, kind: JobCalibrationBEAM, id: 3},
		{job: FileTransferJob{Direction: LoadFiles, Prefix: "p"}, kind: JobLoadCalibration, id: 4},
		{job: FileTransferJob{Direction: SaveFiles, Prefix: "p"}, kind: JobSaveCalibration, id: 5},
		{job: DefaultConfigGJob{}, kind: JobDefaultConfigG, id: 6},
		{job: RegisterAdjustJob{Delta: 2}, kind: JobITHLIncrease, id: 7},
		{job: RegisterAdjustJob{Delta: -1}, kind: JobITHLDecrease, id: 8},
		{job: FlatConfigLJob{Value: 4}, kind: JobFlatConfigL, id: 9},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			require.Equal(t, tt.kind, tt.job.Kind())
			require.Equal(t, tt.id, int(tt.job.Kind()))
			require.NoError(t, tt.job.validate())
		})
	}
}

func TestJob_Validate(t *testing.T) {
	invalid := []Job{
		CaptureJob{Frames: -2},
		CalibrationJob{Calibration: CalibrationKind(5)},
		CalibrationJob{Calibration: CalibrationOTN, Speed: OTNSpeed(4)},
		CalibrationJob{Calibration: CalibrationBEAM},
		FileTransferJob{Prefix: "  "},
		FileTransferJob{Direction: TransferDirection(3), Prefix: "p"},
		RegisterAdjustJob{},
		FlatConfigLJob{Value: -1},
	}

	for _, job := range invalid {
		require.ErrorIs(t, job.validate(), ErrJobRejected, "%#v", job)
	}
}

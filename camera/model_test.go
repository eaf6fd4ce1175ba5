package camera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModel_Geometry(t *testing.T) {
	tests := []struct {
		name       string
		model      Model
		moduleMask int
		chipMask   int
		width      int
		height     int
	}{
		{name: "XPAD_S10", model: ModelS10, moduleMask: 1, chipMask: 1, width: 80, height: 120},
		{name: "XPAD_S70", model: ModelS70, moduleMask: 1, chipMask: 127, width: 560, height: 120},
		{name: "XPAD_S140", model: ModelS140, moduleMask: 3, chipMask: 127, width: 560, height: 240},
		{name: "XPAD_S540", model: ModelS540, moduleMask: 255, chipMask: 127, width: 560, height: 960},
		{name: "XPAD_S1400", model: ModelS1400, moduleMask: 0xFFFFF, chipMask: 127, width: 560, height: 2400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			m, err := ParseModel(tt.name)
			require.NoError(err)
			require.Equal(tt.model, m)
			require.Equal(tt.name, m.String())
			require.Equal(tt.moduleMask, m.ModuleMask())
			require.Equal(tt.chipMask, m.ChipMask())

			w, h := m.ImageSize()
			require.Equal(tt.width, w)
			require.Equal(tt.height, h)
		})
	}
}

func TestParseModel(t *testing.T) {
	require := require.New(t)

	m, err := ParseModel("s70c")
	require.NoError(err)
	require.Equal(ModelS70C, m)
	require.Equal(4, int(m))

	_, err = ParseModel("XPAD_S99")
	require.True(IsConfigError(err))
	require.ErrorIs(err, ErrInvalidArgument)

	require.Len(ModelNames(), 10)
	require.False(Model(10).Valid())
	require.Equal("Model(10)", Model(10).String())
}

func TestRegisters(t *testing.T) {
	require := require.New(t)

	ids := []int{}
	defaults := []int{}
	for _, r := range Registers() {
		ids = append(ids, r.ID())
		defaults = append(defaults, r.Default())
	}
	require.Equal([]int{31, 59, 60, 61, 62, 63, 64}, ids)
	require.Equal([]int{0, 50, 40, 60, 25, 100, 0}, defaults)

	r, err := ParseRegister("ithl")
	require.NoError(err)
	require.Equal(RegITHL, r)

	_, err = ParseRegister("FOO")
	require.ErrorIs(err, ErrInvalidArgument)
}

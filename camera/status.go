package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// DetectorState is the server reported detector state.
type DetectorState int

const (
	StateIdle DetectorState = iota
	StateAcquiring
	StateCalibrating
	StateCalibrationManipulation
	StateDigitalTest
	StateResetting
)

var detectorStateNames = [...]string{
	StateIdle:                    "Idle",
	StateAcquiring:               "Acquiring",
	StateCalibrating:             "Calibrating",
	StateCalibrationManipulation: "Calibration_Manipulation",
	StateDigitalTest:             "Digital_Test",
	StateResetting:               "Resetting",
}

func (s DetectorState) String() string {
	if s < 0 || int(s) >= len(detectorStateNames) {
		return fmt.Sprintf("DetectorState(%d)", int(s))
	}

	return detectorStateNames[s]
}

// DetectorStatus is a snapshot of the detector state and counters.
type DetectorStatus struct {
	State DetectorState
	// Frame is the frame number within the current group.
	Frame int
	Group int
	Scan  int
}

func (st DetectorStatus) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", st.State, st.Frame, st.Group, st.Scan)
}

// ParseStatus parses a status reply of the form "State[:frame[:group[:scan]]]".
// Fields may also be separated by white space. Unknown state names are
// reported as StateAcquiring, as the server only names idle-like states.
func ParseStatus(reply string) (DetectorStatus, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(reply), func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return DetectorStatus{}, fmt.Errorf("camera: empty detector status")
	}

	st := DetectorStatus{State: parseDetectorState(fields[0])}
	counters := []*int{&st.Frame, &st.Group, &st.Scan}
	for i, field := range fields[1:] {
		if i >= len(counters) {
			break
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return st, fmt.Errorf("camera: invalid status counter %q in %q", field, reply)
		}
		*counters[i] = n
	}

	return st, nil
}

func parseDetectorState(name string) DetectorState {
	for i, n := range detectorStateNames {
		if strings.EqualFold(n, name) {
			return DetectorState(i)
		}
	}
	if strings.EqualFold(name, "DigitalTest") {
		return StateDigitalTest
	}

	return StateAcquiring
}

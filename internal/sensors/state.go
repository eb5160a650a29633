package sensors

import "fmt"

// State is the controller state of one device.
type State uint8

const (
	Uninitialized State = iota
	Resetting
	AwaitingCalibration
	Configured
	Measuring
	DataReady
)

var stateNames = [...]string{
	Uninitialized:       "uninitialized",
	Resetting:           "resetting",
	AwaitingCalibration: "awaiting-calibration",
	Configured:          "configured",
	Measuring:           "measuring",
	DataReady:           "data-ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Usable reports whether the device has valid calibration and a mode.
func (s State) Usable() bool { return s >= Configured }

package sampler

import "math"

// StandardSeaLevelHPa is the ISA reference pressure.
const StandardSeaLevelHPa = 1013.25

// AltitudeAt converts pressure to altitude in meters relative to the
// reference pressure p0 (both hPa), using the barometric formula.
// Non-positive or NaN inputs give 0.
func AltitudeAt(pHPa, p0HPa float64) float64 {
	if !(pHPa > 0) || !(p0HPa > 0) || math.IsInf(pHPa, 0) {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(pHPa/p0HPa, 0.1903))
}

// Altitude uses the standard sea level pressure.
func Altitude(pHPa float64) float64 { return AltitudeAt(pHPa, StandardSeaLevelHPa) }

package lidar

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SphericalToCartesian converts distance (meters), azimuth (degrees) and
// elevation (degrees) into Cartesian sensor-frame coordinates.
// Coordinate convention: X=right, Y=forward, Z=up.
func SphericalToCartesian(distance, azimuthDeg, elevationDeg float64) (x, y, z float64) {
	v := Project(distance, azimuthDeg, elevationDeg, 0, 0)
	return v.X, v.Y, v.Z
}

// Project places a return in the sensor frame, correcting for the laser's
// vertical and horizontal offsets from the rotation axis (metres).
// A zero distance means no return and maps to the origin.
func Project(distance, azimuthDeg, elevationDeg, verticalOffset, horizontalOffset float64) r3.Vec {
	if distance == 0 {
		return r3.Vec{}
	}
	sinAz, cosAz := math.Sincos(DegToRad(azimuthDeg))
	sinEl, cosEl := math.Sincos(DegToRad(elevationDeg))

	xy := distance*cosEl - verticalOffset*sinEl
	return r3.Vec{
		X: xy*sinAz - horizontalOffset*cosAz,
		Y: xy*cosAz + horizontalOffset*sinAz,
		Z: distance*sinEl + verticalOffset*cosEl,
	}
}

// NormalizeAzimuth wraps degrees into [0, 360).
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

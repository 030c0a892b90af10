package lidar

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point is one calibrated return. Azimuth and elevation are degrees, distances
// and Position are metres in the sensor frame (X=right, Y=forward, Z=up).
type Point struct {
	Position r3.Vec
	Distance float64 // 0 means no return

	Reflectivity uint16
	Signal       uint16 // Ouster only
	Noise        uint16 // Ouster only

	Azimuth         float64 // corrected with the laser's azimuth offset, [0, 360)
	OriginalAzimuth float64 // azimuth of the firing column, before per-laser correction
	Elevation       float64

	LaserID int // firing order within a column
	Row     int // output row, descending elevation
	Column  int // assigned by the frame assembler

	Timestamp time.Time
	Return    ReturnMode
	Valid     bool // column validity marker
}

// AssemblyKey holds the fields the frame assembler orders points by.
type AssemblyKey struct {
	Azimuth float64
	Laser   int
	Row     int
}

func (p Point) AssemblyKey() AssemblyKey {
	return AssemblyKey{Azimuth: p.OriginalAzimuth, Laser: p.LaserID, Row: p.Row}
}

// WithColumn returns a copy of p placed in column col.
func (p Point) WithColumn(col int) Point {
	p.Column = col
	return p
}

// HasReturn reports whether the laser saw anything.
func (p Point) HasReturn() bool {
	return p.Distance > 0
}

// DualPoint pairs the last and strongest returns of a single laser firing.
// When the sensor reports only one echo both halves carry the same sample.
type DualPoint struct {
	Last      Point
	Strongest Point
}

func (d DualPoint) AssemblyKey() AssemblyKey {
	return d.Last.AssemblyKey()
}

func (d DualPoint) WithColumn(col int) DualPoint {
	d.Last.Column = col
	d.Strongest.Column = col
	return d
}

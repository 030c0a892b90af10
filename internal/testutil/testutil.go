// Package testutil provides shared test utilities and fixtures.
//
// The fixtures build point streams shaped like a spinning sensor's output
// without going through packet decoding, so assembler behaviour can be
// tested in isolation.
package testutil

import (
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

// Sweep describes a run of columns from a sensor with Beams lasers.
// Lasers fire in ascending id order and are mounted upside down, so laser
// i lands in row Beams-1-i and every column needs reordering.
type Sweep struct {
	Beams        int
	StartAzimuth float64 // degrees
	Step         float64 // degrees between columns
	Start        time.Time
}

// Column returns the points of the n-th column of the sweep.
func (s Sweep) Column(n int) []lidar.Point {
	az := lidar.NormalizeAzimuth(s.StartAzimuth + float64(n)*s.Step)
	pts := make([]lidar.Point, s.Beams)
	for i := range pts {
		pts[i] = lidar.Point{
			Distance:        10,
			Azimuth:         az,
			OriginalAzimuth: az,
			LaserID:         i,
			Row:             s.Beams - 1 - i,
			Timestamp:       s.Start.Add(time.Duration(n) * time.Millisecond),
			Return:          lidar.ReturnStrongest,
			Valid:           true,
		}
	}
	return pts
}

// Columns returns columns [from, to) of the sweep concatenated.
func (s Sweep) Columns(from, to int) []lidar.Point {
	pts := make([]lidar.Point, 0, (to-from)*s.Beams)
	for n := from; n < to; n++ {
		pts = append(pts, s.Column(n)...)
	}
	return pts
}

// ColumnsPerRev is the number of columns in one full rotation.
func (s Sweep) ColumnsPerRev() int {
	return int(360/s.Step + 0.5)
}

// Dual pairs every point with a copy carrying a longer strongest return.
func Dual(pts []lidar.Point) []lidar.DualPoint {
	out := make([]lidar.DualPoint, len(pts))
	for i, p := range pts {
		s := p
		s.Distance *= 2
		s.Return = lidar.ReturnStrongest
		p.Return = lidar.ReturnLast
		out[i] = lidar.DualPoint{Last: p, Strongest: s}
	}
	return out
}

package l2frames

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

// Sample is a point type the assembler can order and place in a column.
// lidar.Point and lidar.DualPoint both satisfy it.
type Sample[P any] interface {
	AssemblyKey() lidar.AssemblyKey
	WithColumn(col int) P
}

// Frame is one rotation of the sensor as a Height × Width grid.
// Points holds Width consecutive columns of Height points each, sorted by
// row within every column.
type Frame[P Sample[P]] struct {
	ID       uuid.UUID
	Seq      uint64 // per-assembler frame counter, starting at 0
	SensorID string
	Points   []P
	Height   int // beams per column
	Width    int // columns in the rotation
}

// At returns the point in the given row and column.
func (f *Frame[P]) At(row, col int) P {
	return f.Points[col*f.Height+row]
}

// Column returns the points of one column, top row first.
func (f *Frame[P]) Column(col int) []P {
	return f.Points[col*f.Height : (col+1)*f.Height]
}

// Validate checks the grid invariants: Height × Width points, rows
// non-decreasing within each column, column indices matching position.
func (f *Frame[P]) Validate() error {
	if len(f.Points) != f.Height*f.Width {
		return fmt.Errorf("frame %d: %d points for %dx%d grid", f.Seq, len(f.Points), f.Height, f.Width)
	}
	for col := 0; col < f.Width; col++ {
		prev := -1
		for _, p := range f.Column(col) {
			k := p.AssemblyKey()
			if k.Row < prev {
				return fmt.Errorf("frame %d: column %d rows out of order", f.Seq, col)
			}
			prev = k.Row
		}
	}
	return nil
}

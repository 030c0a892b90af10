// Package calibration holds per-model laser calibration tables: the
// elevation, azimuth offset and mounting offsets of every laser plus the
// distance resolution of the raw range field.
package calibration

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCalibration matches every *Error via errors.Is.
var ErrCalibration = errors.New("invalid calibration table")

// Error describes the first structural invariant a candidate table violated.
type Error struct {
	Table  string
	Reason string
}

func (e *Error) Error() string {
	if e.Table == "" {
		return "invalid calibration table: " + e.Reason
	}
	return fmt.Sprintf("invalid calibration table %q: %s", e.Table, e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrCalibration }

// LaserParameter is the calibration of one laser. Angles are degrees,
// offsets metres.
type LaserParameter struct {
	ElevationDeg     float64
	AzimuthOffsetDeg float64 // added to the firing azimuth
	VerticalOffset   float64
	HorizontalOffset float64
}

// Table is an immutable calibration table, safe to share between streams.
type Table struct {
	name       string
	lasers     []LaserParameter
	rows       []int // laser index -> output row
	resolution float64
}

// NewTable validates an externally supplied table. ids carries the laser_id
// of each entry and must be exactly 0..numLasers-1 in order; any violation
// rejects the table as a whole.
func NewTable(params []LaserParameter, ids []int, numLasers int, distanceResolution float64) (*Table, error) {
	if !(distanceResolution > 0) {
		return nil, &Error{Reason: fmt.Sprintf("distance resolution must be positive, got %v", distanceResolution)}
	}
	if numLasers != len(params) {
		return nil, &Error{Reason: fmt.Sprintf("declared %d lasers but table has %d entries", numLasers, len(params))}
	}
	if len(params) == 0 {
		return nil, &Error{Reason: "table has no lasers"}
	}
	if len(ids) != len(params) {
		return nil, &Error{Reason: fmt.Sprintf("%d laser ids for %d entries", len(ids), len(params))}
	}
	for i, id := range ids {
		if id != i {
			return nil, &Error{Reason: fmt.Sprintf("laser ids must count up from 0: entry %d has id %d", i, id)}
		}
	}

	t := &Table{
		lasers:     slices.Clone(params),
		resolution: distanceResolution,
	}
	t.rows = rowsByElevation(t.lasers)
	return t, nil
}

// rowsByElevation ranks lasers by descending elevation; ties keep laser order.
func rowsByElevation(lasers []LaserParameter) []int {
	order := make([]int, len(lasers))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ea, eb := lasers[a].ElevationDeg, lasers[b].ElevationDeg
		switch {
		case ea > eb:
			return -1
		case ea < eb:
			return 1
		}
		return 0
	})
	return invert(order)
}

// invert turns a row -> laser order into a laser -> row lookup.
func invert(order []int) []int {
	rows := make([]int, len(order))
	for row, laser := range order {
		rows[laser] = row
	}
	return rows
}

// WithName returns a copy of t labelled name, for logs.
func (t *Table) WithName(name string) *Table {
	c := *t
	c.name = name
	return &c
}

func (t *Table) Name() string { return t.name }

// Len is the number of lasers, which is also the frame height.
func (t *Table) Len() int { return len(t.lasers) }

func (t *Table) Laser(i int) LaserParameter { return t.lasers[i] }

// Row returns the output row of laser i: 0 is the highest elevation.
func (t *Table) Row(i int) int { return t.rows[i] }

// RowOrder returns the laser index of every row, top to bottom.
func (t *Table) RowOrder() []int {
	order := make([]int, len(t.rows))
	for laser, row := range t.rows {
		order[row] = laser
	}
	return order
}

// DistanceResolution is metres per raw distance unit.
func (t *Table) DistanceResolution() float64 { return t.resolution }

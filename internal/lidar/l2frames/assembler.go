package l2frames

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// ErrAssembly matches *AssemblyError via errors.Is.
var ErrAssembly = errors.New("frame assembly error")

// AssemblyError reports a completed column whose size does not match the
// sensor's beam count. It is fatal for the stream: the column geometry can
// no longer be trusted, so the assembler refuses further input until Reset.
type AssemblyError struct {
	SensorID  string
	Column    int // index of the offending column within its rotation
	Got       int // points in the column
	LastLaser int
	Want      int // 0 when any of 16 or 32 was acceptable
}

func (e *AssemblyError) Error() string {
	want := fmt.Sprint(e.Want)
	if e.Want == 0 {
		want = "16 or 32"
	}
	return fmt.Sprintf("sensor %q column %d: %d points ending at laser %d, want %s beams",
		e.SensorID, e.Column, e.Got, e.LastLaser, want)
}

func (e *AssemblyError) Is(target error) bool { return target == ErrAssembly }

type AssemblerConfig struct {
	SensorID string
	// ExpectedBeams is the sensor's laser count. Zero accepts 16 or 32 and
	// locks onto the first complete column.
	ExpectedBeams int
}

// Assembler folds a stream of points into rotation frames. It owns all of
// its state and must be fed by a single goroutine; use one per sensor.
type Assembler[P Sample[P]] struct {
	cfg AssemblerConfig

	revolution []P // completed columns of the current rotation
	column     []P // column in progress
	pending    []P // input after a second frame boundary, for the next Push

	prevAzimuth float64
	prevLaser   int
	hasPrev     bool

	columns int // completed columns in revolution
	beamNum int // detected from the last laser id of a completed column
	seq     uint64
	err     error
}

func NewAssembler[P Sample[P]](cfg AssemblerConfig) *Assembler[P] {
	return &Assembler[P]{cfg: cfg}
}

// Push consumes points in firing order and returns the frame they complete,
// if any. At most one frame is returned per call: input past a second
// rotation boundary is kept and processed first by the next call, and
// Push(nil) processes it alone.
//
// An *AssemblyError is sticky until Reset. A frame completed earlier in
// the same call is still returned alongside it.
func (a *Assembler[P]) Push(points []P) (*Frame[P], error) {
	if a.err != nil {
		return nil, a.err
	}
	input := points
	if len(a.pending) > 0 {
		input = append(a.pending, points...)
		a.pending = nil
	}

	var frame *Frame[P]
	for i, p := range input {
		k := p.AssemblyKey()
		newColumn := a.hasPrev && k.Laser < a.prevLaser
		wrapped := a.hasPrev && k.Azimuth < a.prevAzimuth

		if wrapped && frame != nil && (len(a.revolution) > 0 || newColumn && len(a.column) > 0) {
			a.pending = slices.Clone(input[i:])
			tracef("[%s] second rotation boundary in one batch, deferring %d points", a.cfg.SensorID, len(a.pending))
			break
		}

		if newColumn {
			if err := a.foldColumn(); err != nil {
				a.err = err
				opsf("%v", err)
				return frame, err
			}
		}
		if wrapped && len(a.revolution) > 0 {
			frame = a.emit()
		}

		a.column = append(a.column, p.WithColumn(a.columns))
		a.prevLaser = k.Laser
		a.prevAzimuth = k.Azimuth
		a.hasPrev = true
	}
	return frame, nil
}

// foldColumn validates the column in progress and appends it to the rotation.
func (a *Assembler[P]) foldColumn() error {
	got := len(a.column)
	want := a.cfg.ExpectedBeams
	if want == 0 {
		want = a.beamNum
	}

	var ok bool
	if want > 0 {
		ok = got == want && a.prevLaser+1 == want
	} else {
		ok = (got == 16 || got == 32) && a.prevLaser+1 == got
	}
	if !ok {
		return &AssemblyError{
			SensorID:  a.cfg.SensorID,
			Column:    a.columns,
			Got:       got,
			LastLaser: a.prevLaser,
			Want:      want,
		}
	}

	a.beamNum = a.prevLaser + 1
	for _, p := range a.column {
		a.revolution = append(a.revolution, p.WithColumn(a.columns))
	}
	a.column = a.column[:0]
	a.columns++
	return nil
}

// emit hands the completed rotation to the caller, each column sorted by row.
func (a *Assembler[P]) emit() *Frame[P] {
	pts := a.revolution
	for c := 0; c < a.columns; c++ {
		col := pts[c*a.beamNum : (c+1)*a.beamNum]
		slices.SortStableFunc(col, func(x, y P) int {
			return x.AssemblyKey().Row - y.AssemblyKey().Row
		})
	}

	f := &Frame[P]{
		ID:       uuid.New(),
		Seq:      a.seq,
		SensorID: a.cfg.SensorID,
		Points:   pts,
		Height:   a.beamNum,
		Width:    a.columns,
	}
	diagf("[%s] frame %d: %dx%d (%d points)", a.cfg.SensorID, f.Seq, f.Height, f.Width, len(pts))

	a.seq++
	a.columns = 0
	a.revolution = make([]P, 0, len(pts))
	return f
}

// Pending reports whether input was deferred past a second rotation boundary.
func (a *Assembler[P]) Pending() bool { return len(a.pending) > 0 }

// Buffered is the number of points held for future frames.
func (a *Assembler[P]) Buffered() int {
	return len(a.revolution) + len(a.column) + len(a.pending)
}

// Leftover returns a copy of the points held for future frames, oldest
// first: completed columns, the column in progress, then deferred input.
func (a *Assembler[P]) Leftover() []P {
	out := make([]P, 0, a.Buffered())
	out = append(out, a.revolution...)
	out = append(out, a.column...)
	return append(out, a.pending...)
}

// BeamCount is the detected beams per column, 0 until a column completes.
func (a *Assembler[P]) BeamCount() int { return a.beamNum }

// Err returns the sticky assembly error, if any.
func (a *Assembler[P]) Err() error { return a.err }

// Reset discards all buffered points and any sticky error. Frame sequence
// numbers keep counting.
func (a *Assembler[P]) Reset() {
	dropped := a.Buffered()
	a.revolution = nil
	a.column = nil
	a.pending = nil
	a.prevAzimuth = 0
	a.prevLaser = 0
	a.hasPrev = false
	a.columns = 0
	a.beamNum = 0
	a.err = nil
	diagf("[%s] reset: dropped %d buffered points", a.cfg.SensorID, dropped)
}

// Package convert turns decoded sensor packets into calibrated points.
package convert

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
)

// Kind tags which slice of Points is populated.
type Kind int

const (
	KindSingle Kind = iota
	KindDual
)

func (k Kind) String() string {
	if k == KindDual {
		return "dual"
	}
	return "single"
}

// Points is the output of one packet conversion. Exactly one of Single or
// Dual is used, as named by Kind. Points are in firing order: columns by
// azimuth, lasers ascending within a column.
type Points struct {
	Kind   Kind
	Single []lidar.Point
	Dual   []lidar.DualPoint
}

func (p Points) Len() int {
	if p.Kind == KindDual {
		return len(p.Dual)
	}
	return len(p.Single)
}

// Converter applies one calibration table and return policy to packets of
// one sensor model. It holds no mutable state.
type Converter struct {
	model  lidar.Model
	table  *calibration.Table
	policy lidar.ReturnPolicy
}

// New checks that table describes as many lasers as model has.
func New(model lidar.Model, table *calibration.Table, policy lidar.ReturnPolicy) (*Converter, error) {
	if model.Family() == lidar.FamilyUnknown {
		return nil, fmt.Errorf("unsupported sensor model %s", model)
	}
	if table == nil {
		return nil, fmt.Errorf("model %s: nil calibration table", model)
	}
	if table.Len() != model.Channels() {
		return nil, &ModelMismatchError{
			Model:  model,
			Detail: fmt.Sprintf("calibration table %q has %d lasers, want %d", table.Name(), table.Len(), model.Channels()),
		}
	}
	return &Converter{model: model, table: table, policy: policy}, nil
}

func (c *Converter) Model() lidar.Model         { return c.model }
func (c *Converter) Policy() lidar.ReturnPolicy { return c.policy }
func (c *Converter) Table() *calibration.Table  { return c.table }

// kindFor picks the output shape for a packet in the given return mode.
func (c *Converter) kindFor(mode lidar.ReturnMode) Kind {
	switch c.policy {
	case lidar.PolicyDual:
		return KindDual
	case lidar.PolicyDynamic:
		if mode == lidar.ReturnDual {
			return KindDual
		}
	}
	return KindSingle
}

// point calibrates and projects one raw measurement.
func (c *Converter) point(laser int, raw uint32, columnAz float64) lidar.Point {
	lp := c.table.Laser(laser)
	dist := float64(raw) * c.table.DistanceResolution()
	az := lidar.NormalizeAzimuth(columnAz + lp.AzimuthOffsetDeg)
	return lidar.Point{
		Position:        lidar.Project(dist, az, lp.ElevationDeg, lp.VerticalOffset, lp.HorizontalOffset),
		Distance:        dist,
		Azimuth:         az,
		OriginalAzimuth: columnAz,
		Elevation:       lp.ElevationDeg,
		LaserID:         laser,
		Row:             c.table.Row(laser),
	}
}

func microseconds(us float64) time.Duration {
	return time.Duration(math.Round(us * float64(time.Microsecond)))
}

// ConvertOuster converts every pixel of every column. The legacy Ouster
// format carries a single (strongest) return; the Dual policy duplicates it.
func (c *Converter) ConvertOuster(pkt parse.OusterPacket) (Points, error) {
	if c.model.Family() != lidar.FamilyOuster {
		return Points{}, &ModelMismatchError{Model: c.model, Detail: "got an ouster packet"}
	}
	kind := c.kindFor(lidar.ReturnStrongest)
	n := c.table.Len()
	out := Points{Kind: kind}
	if kind == KindDual {
		out.Dual = make([]lidar.DualPoint, 0, parse.OUSTER_COLUMNS_PER_PACKET*n)
	} else {
		out.Single = make([]lidar.Point, 0, parse.OUSTER_COLUMNS_PER_PACKET*n)
	}

	for i := 0; i < parse.OUSTER_COLUMNS_PER_PACKET; i++ {
		col := pkt.Column(i)
		az := col.AzimuthDegrees()
		ts := col.Timestamp()
		valid := col.Valid()
		for j := 0; j < n; j++ {
			px := col.Pixel(j)
			p := c.point(j, px.DistanceMillimeters(), az)
			p.Reflectivity = px.Reflectivity()
			p.Signal = px.SignalPhotons()
			p.Noise = px.NoisePhotons()
			p.Timestamp = ts
			p.Return = lidar.ReturnStrongest
			p.Valid = valid
			if kind == KindDual {
				out.Dual = append(out.Dual, lidar.DualPoint{Last: p, Strongest: p})
			} else {
				out.Single = append(out.Single, p)
			}
		}
	}
	return out, nil
}

// Package synth generates packets from an imaginary sensor spinning at a
// constant rate in front of a configurable scene.
package synth

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
)

// RangeFunc returns the distance in metres seen by laser at azimuth (degrees).
// Zero means no return.
type RangeFunc func(laser int, azimuth float64) float64

// Constant is a scene where every laser sees a wall d metres away.
func Constant(d float64) RangeFunc {
	return func(int, float64) float64 { return d }
}

type VelodyneConfig struct {
	Model lidar.Model
	Mode  lidar.ReturnMode // defaults to ReturnStrongest
	RPM   float64          // defaults to 600
	// AzimuthStep is the rotation per firing cycle in degrees. Overrides RPM when positive.
	AzimuthStep  float64
	StartAzimuth float64
	Start        time.Time
	Range        RangeFunc // defaults to Constant(10)
	// SecondRange feeds the strongest-return block of dual packets. Defaults to Range.
	SecondRange RangeFunc
}

// VelodyneGenerator emits consecutive Velodyne packets.
type VelodyneGenerator struct {
	cfg        VelodyneConfig
	resolution float64
	cycle      time.Duration // one firing cycle: one block, or one block pair in dual mode
	step       float64
	azimuth    float64
	now        time.Time
}

func NewVelodyneGenerator(cfg VelodyneConfig) (*VelodyneGenerator, error) {
	table, err := calibration.ForModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == 0 {
		cfg.Mode = lidar.ReturnStrongest
	}
	if _, ok := lidar.ParseReturnMode(byte(cfg.Mode)); !ok {
		return nil, fmt.Errorf("invalid return mode %s", cfg.Mode)
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 600
	}
	if cfg.Range == nil {
		cfg.Range = Constant(10)
	}
	if cfg.SecondRange == nil {
		cfg.SecondRange = cfg.Range
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}

	us := parse.VELODYNE_FIRING_PERIOD_US
	if cfg.Model.Channels() == 16 {
		us *= 2
	}
	g := &VelodyneGenerator{
		cfg:        cfg,
		resolution: table.DistanceResolution(),
		cycle:      time.Duration(us * float64(time.Microsecond)),
		azimuth:    lidar.NormalizeAzimuth(cfg.StartAzimuth),
		now:        cfg.Start,
	}
	g.step = cfg.AzimuthStep
	if g.step <= 0 {
		g.step = cfg.RPM / 60 * 360 * g.cycle.Seconds()
	}
	return g, nil
}

// CyclesPerPacket is the number of distinct azimuths in one packet.
func (g *VelodyneGenerator) CyclesPerPacket() int {
	if g.cfg.Mode == lidar.ReturnDual {
		return parse.VELODYNE_BLOCKS_PER_PACKET / 2
	}
	return parse.VELODYNE_BLOCKS_PER_PACKET
}

// ColumnsPerPacket is the number of frame columns one packet contributes.
func (g *VelodyneGenerator) ColumnsPerPacket() int {
	if g.cfg.Model.Channels() == 16 {
		return 2 * g.CyclesPerPacket()
	}
	return g.CyclesPerPacket()
}

// Azimuth is where the next packet starts.
func (g *VelodyneGenerator) Azimuth() float64 { return g.azimuth }

// Time is the timestamp of the next packet.
func (g *VelodyneGenerator) Time() time.Time { return g.now }

// Next returns the wire bytes of the next packet and its first firing time.
func (g *VelodyneGenerator) Next() ([]byte, time.Time) {
	d := parse.VelodynePacketData{
		TimestampMicros: microsPastHour(g.now),
		ReturnMode:      byte(g.cfg.Mode),
		ProductID:       g.cfg.Model.ProductID(),
	}
	ts := g.now

	dual := g.cfg.Mode == lidar.ReturnDual
	for c := 0; c < g.CyclesPerPacket(); c++ {
		if dual {
			g.fill(&d.Blocks[2*c], g.cfg.Range)
			g.fill(&d.Blocks[2*c+1], g.cfg.SecondRange)
		} else {
			g.fill(&d.Blocks[c], g.cfg.Range)
		}
		g.azimuth = lidar.NormalizeAzimuth(g.azimuth + g.step)
	}
	g.now = g.now.Add(time.Duration(g.CyclesPerPacket()) * g.cycle)
	return parse.EncodeVelodynePacket(&d), ts
}

func (g *VelodyneGenerator) fill(b *parse.VelodyneBlockData, rng RangeFunc) {
	b.Flag = parse.VELODYNE_BLOCK_FLAG
	b.RawAzimuth = rawAzimuth(g.azimuth)
	for k := range b.Channels {
		laser, az := k, g.azimuth
		if g.cfg.Model.Channels() == 16 {
			laser = k % 16
			if k >= 16 {
				az = lidar.NormalizeAzimuth(az + g.step/2)
			}
		}
		b.Channels[k] = parse.VelodyneChannelData{
			RawDistance:  g.rawDistance(rng(laser, az)),
			Reflectivity: uint8(laser * 4),
		}
	}
}

func (g *VelodyneGenerator) rawDistance(m float64) uint16 {
	raw := math.Round(m / g.resolution)
	if raw < 0 {
		return 0
	}
	return uint16(min(raw, math.MaxUint16))
}

func rawAzimuth(deg float64) uint16 {
	return uint16(int(math.Round(deg/parse.VELODYNE_AZIMUTH_SCALE)) % parse.VELODYNE_AZIMUTH_COUNT)
}

func microsPastHour(t time.Time) uint32 {
	return uint32(t.Sub(t.Truncate(time.Hour)) / time.Microsecond)
}

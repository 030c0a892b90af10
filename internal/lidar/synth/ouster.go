package synth

import (
	"math"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
)

type OusterConfig struct {
	ColumnsPerRev int // 512, 1024 or 2048; defaults to 1024
	RPM           float64
	StartColumn   int
	Start         time.Time
	Range         RangeFunc // defaults to Constant(10)
}

// OusterGenerator emits consecutive Ouster legacy-format packets.
type OusterGenerator struct {
	cfg     OusterConfig
	column  int
	frameID uint16
	period  time.Duration
	now     time.Time
}

func NewOusterGenerator(cfg OusterConfig) *OusterGenerator {
	if cfg.ColumnsPerRev <= 0 {
		cfg.ColumnsPerRev = 1024
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 600
	}
	if cfg.Range == nil {
		cfg.Range = Constant(10)
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	rev := time.Duration(float64(time.Minute) / cfg.RPM)
	return &OusterGenerator{
		cfg:    cfg,
		column: cfg.StartColumn % cfg.ColumnsPerRev,
		period: rev / time.Duration(cfg.ColumnsPerRev),
		now:    cfg.Start,
	}
}

// Next returns the wire bytes of the next packet.
func (g *OusterGenerator) Next() []byte {
	var cols [parse.OUSTER_COLUMNS_PER_PACKET]parse.OusterColumnData
	ticksPerCol := parse.OUSTER_ENCODER_TICKS_PER_REV / g.cfg.ColumnsPerRev
	for i := range cols {
		ticks := uint32(g.column * ticksPerCol)
		az := parse.EncoderDegrees(ticks)
		c := &cols[i]
		c.TimestampNanos = uint64(g.now.UnixNano())
		c.MeasurementID = uint16(g.column)
		c.FrameID = g.frameID
		c.EncoderTicks = ticks
		c.RawValid = parse.OUSTER_VALID_MARKER
		for j := range c.Pixels {
			mm := math.Round(g.cfg.Range(j, az) * 1000)
			c.Pixels[j] = parse.OusterPixelData{
				RawDistance:   uint32(mm) & parse.OUSTER_DISTANCE_MASK,
				Reflectivity:  uint16(j),
				SignalPhotons: 100,
				NoisePhotons:  1,
			}
		}

		g.now = g.now.Add(g.period)
		g.column++
		if g.column == g.cfg.ColumnsPerRev {
			g.column = 0
			g.frameID++
		}
	}
	return parse.EncodeOusterPacket(&cols)
}

package convert

import (
	"fmt"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
)

// firing is one vertical sweep of every laser at a single azimuth.
type firing struct {
	block   int // first block of the firing; the strongest return of a dual pair is block+1
	seq     int // firing sequence within the block (16-channel sensors fire twice per block)
	index   int // firing cycle within the packet, for timing
	azimuth float64
}

// velodyneFirings lists the firings of a packet in time order. Dual-return
// packets repeat every azimuth in two consecutive blocks, so only even
// blocks start a firing.
func velodyneFirings(pkt parse.VelodynePacket, channels int, dual bool) []firing {
	step := 1
	if dual {
		step = 2
	}
	out := make([]firing, 0, 2*parse.VELODYNE_BLOCKS_PER_PACKET/step)
	for b, idx := 0, 0; b < parse.VELODYNE_BLOCKS_PER_PACKET; b, idx = b+step, idx+1 {
		az := pkt.Block(b).AzimuthDegrees()
		if channels > 16 {
			out = append(out, firing{block: b, index: idx, azimuth: az})
			continue
		}
		// The second sequence fires halfway to the next block's azimuth.
		mid := lidar.NormalizeAzimuth(az + azimuthGap(pkt, b, step)/2)
		out = append(out,
			firing{block: b, seq: 0, index: idx, azimuth: az},
			firing{block: b, seq: 1, index: idx, azimuth: mid},
		)
	}
	return out
}

// azimuthGap is the rotation between block b and the next firing block.
// The last block reuses the gap before it.
func azimuthGap(pkt parse.VelodynePacket, b, step int) float64 {
	next := b + step
	if next >= parse.VELODYNE_BLOCKS_PER_PACKET {
		next, b = b, b-step
	}
	gap := pkt.Block(next).AzimuthDegrees() - pkt.Block(b).AzimuthDegrees()
	if gap < 0 {
		gap += 360
	}
	return gap
}

// channelTiming maps a laser of a firing to its record within the block and
// its firing delay from the packet timestamp.
func (c *Converter) channelTiming(f firing, laser int) (int, time.Duration) {
	if c.model.Channels() > 16 {
		// VLP-32C lasers fire in pairs.
		us := float64(f.index)*parse.VELODYNE_FIRING_PERIOD_US + float64(laser/2)*parse.VELODYNE_CHANNEL_PERIOD_US
		return laser, microseconds(us)
	}
	cycle := f.index*2 + f.seq
	us := float64(cycle)*parse.VELODYNE_FIRING_PERIOD_US + float64(laser)*parse.VELODYNE_CHANNEL_PERIOD_US
	return f.seq*16 + laser, microseconds(us)
}

func (c *Converter) velodynePoint(blk parse.VelodyneBlock, k, laser int, az float64, ts time.Time, mode lidar.ReturnMode) lidar.Point {
	ch := blk.Channel(k)
	p := c.point(laser, uint32(ch.RawDistance()), az)
	p.Reflectivity = uint16(ch.Reflectivity())
	p.Timestamp = ts
	p.Return = mode
	p.Valid = blk.Valid()
	return p
}

// ConvertVelodyne converts one Velodyne packet. ref anchors the packet's
// µs-past-the-hour timestamp; pass the capture time or the wall clock.
//
// Under the Last or Strongest policy a dual-return packet yields only the
// matching block of each pair; under Dual a single-return packet yields
// pairs holding the same return twice.
func (c *Converter) ConvertVelodyne(pkt parse.VelodynePacket, ref time.Time) (Points, error) {
	if c.model.Family() != lidar.FamilyVelodyne {
		return Points{}, &ModelMismatchError{Model: c.model, Detail: "got a velodyne packet"}
	}
	mode, ok := lidar.ParseReturnMode(pkt.ReturnMode())
	if !ok {
		return Points{}, &UnknownReturnModeError{Mode: pkt.ReturnMode()}
	}
	if pid := pkt.ProductID(); pid != c.model.ProductID() {
		return Points{}, &ModelMismatchError{
			Model:  c.model,
			Detail: fmt.Sprintf("packet product id 0x%02x, want 0x%02x", pid, c.model.ProductID()),
		}
	}

	base := pkt.Time(ref)
	dualPacket := mode == lidar.ReturnDual
	kind := c.kindFor(mode)
	firings := velodyneFirings(pkt, c.model.Channels(), dualPacket)
	n := c.table.Len()

	out := Points{Kind: kind}
	if kind == KindDual {
		out.Dual = make([]lidar.DualPoint, 0, len(firings)*n)
	} else {
		out.Single = make([]lidar.Point, 0, len(firings)*n)
	}

	lastMode, strongestMode := mode, mode
	if dualPacket {
		lastMode, strongestMode = lidar.ReturnLast, lidar.ReturnStrongest
	}

	for _, f := range firings {
		first := pkt.Block(f.block)
		second := first
		if dualPacket {
			second = pkt.Block(f.block + 1)
		}
		for laser := 0; laser < n; laser++ {
			k, delay := c.channelTiming(f, laser)
			ts := base.Add(delay)
			switch {
			case kind == KindDual:
				out.Dual = append(out.Dual, lidar.DualPoint{
					Last:      c.velodynePoint(first, k, laser, f.azimuth, ts, lastMode),
					Strongest: c.velodynePoint(second, k, laser, f.azimuth, ts, strongestMode),
				})
			case dualPacket && c.policy == lidar.PolicyStrongest:
				out.Single = append(out.Single, c.velodynePoint(second, k, laser, f.azimuth, ts, strongestMode))
			default:
				out.Single = append(out.Single, c.velodynePoint(first, k, laser, f.azimuth, ts, lastMode))
			}
		}
	}
	return out, nil
}

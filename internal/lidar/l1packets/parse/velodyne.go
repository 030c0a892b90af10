package parse

import (
	"encoding/binary"
	"math"
	"time"
)

/*
Velodyne VLP-16 / Puck / VLP-32C data packet layout (1206-byte UDP payload):

DATA BLOCKS (1200 bytes) = 12 blocks × 100 bytes
BLOCK:
├── flag     u16 LE @0  0xEEFF (FF EE on the wire)
├── azimuth  u16 LE @2  hundredths of a degree, 0..35999
└── channels 32 × 3 bytes @4
    ├── distance     u16 LE (× model distance resolution)
    └── reflectivity u8
TAIL (6 bytes):
├── timestamp    u32 LE @1200  microseconds past the top of the hour
├── return mode  u8     @1204  0x37 strongest, 0x38 last, 0x39 dual
└── product id   u8     @1205  0x22 VLP-16, 0x24 Puck Hi-Res, 0x28 VLP-32C

16-channel sensors pack two firing sequences into each block (channels 0-15
and 16-31). In dual-return mode blocks come in pairs sharing one azimuth:
even block = last return, odd block = strongest (or second strongest).
*/

const (
	VELODYNE_PACKET_SIZE        = 1206
	VELODYNE_BLOCKS_PER_PACKET  = 12
	VELODYNE_BLOCK_SIZE         = 100
	VELODYNE_CHANNELS_PER_BLOCK = 32
	VELODYNE_CHANNEL_SIZE       = 3
	VELODYNE_BLOCK_HEADER_SIZE  = 4
	VELODYNE_BLOCK_FLAG         = 0xEEFF
	VELODYNE_AZIMUTH_SCALE      = 0.01 // degrees per unit
	VELODYNE_AZIMUTH_COUNT      = 36000
	VELODYNE_TAIL_OFFSET        = VELODYNE_BLOCKS_PER_PACKET * VELODYNE_BLOCK_SIZE // 1200
	VELODYNE_DATA_PORT          = 2368

	// Firing cycle timings from the VLP-16 / VLP-32C manuals.
	VELODYNE_CHANNEL_PERIOD_US = 2.304
	VELODYNE_FIRING_PERIOD_US  = 55.296
)

// VelodynePacket is a read-only view over one Velodyne data packet.
type VelodynePacket struct {
	buf []byte
}

// NewVelodynePacket validates the length of b and returns a view over it.
func NewVelodynePacket(b []byte) (VelodynePacket, error) {
	if err := checkLength("velodyne", b, VELODYNE_PACKET_SIZE); err != nil {
		return VelodynePacket{}, err
	}
	return VelodynePacket{buf: b}, nil
}

// Block returns the i-th data block (0..VELODYNE_BLOCKS_PER_PACKET-1).
func (p VelodynePacket) Block(i int) VelodyneBlock {
	off := i * VELODYNE_BLOCK_SIZE
	return VelodyneBlock{buf: p.buf[off : off+VELODYNE_BLOCK_SIZE]}
}

// TimestampMicros is the sensor clock in microseconds past the top of the hour.
func (p VelodynePacket) TimestampMicros() uint32 {
	return binary.LittleEndian.Uint32(p.buf[VELODYNE_TAIL_OFFSET : VELODYNE_TAIL_OFFSET+4])
}

// ReturnMode is the raw return-mode byte; see lidar.ParseReturnMode.
func (p VelodynePacket) ReturnMode() byte { return p.buf[VELODYNE_TAIL_OFFSET+4] }

func (p VelodynePacket) ProductID() byte { return p.buf[VELODYNE_TAIL_OFFSET+5] }

// Time reconstructs an absolute timestamp from the µs-past-the-hour field.
// The hour comes from ref (capture time or wall clock); of the three
// candidate hours around ref the one closest to ref wins, so a packet
// stamped 59:59 read just after the hour rolls over lands in the previous hour.
func (p VelodynePacket) Time(ref time.Time) time.Time {
	return TopOfHourTime(p.TimestampMicros(), ref)
}

// TopOfHourTime places micros (µs past some hour) in the hour nearest to ref.
func TopOfHourTime(micros uint32, ref time.Time) time.Time {
	ref = ref.UTC()
	hour := ref.Truncate(time.Hour)
	offset := time.Duration(micros) * time.Microsecond
	best := hour.Add(offset)
	for _, h := range []time.Time{hour.Add(-time.Hour), hour.Add(time.Hour)} {
		cand := h.Add(offset)
		if absDuration(cand.Sub(ref)) < absDuration(best.Sub(ref)) {
			best = cand
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// VelodyneBlock is a view over one 100-byte data block.
type VelodyneBlock struct {
	buf []byte
}

func (b VelodyneBlock) Flag() uint16 { return binary.LittleEndian.Uint16(b.buf[0:2]) }

// Valid reports whether the block starts with the 0xFFEE marker.
func (b VelodyneBlock) Valid() bool { return b.Flag() == VELODYNE_BLOCK_FLAG }

// RawAzimuth is the block azimuth in hundredths of a degree.
func (b VelodyneBlock) RawAzimuth() uint16 { return binary.LittleEndian.Uint16(b.buf[2:4]) }

func (b VelodyneBlock) AzimuthDegrees() float64 {
	return float64(b.RawAzimuth()) * VELODYNE_AZIMUTH_SCALE
}

func (b VelodyneBlock) AzimuthRadians() float64 {
	return float64(b.RawAzimuth()) * VELODYNE_AZIMUTH_SCALE * math.Pi / 180
}

// Channel returns the k-th channel record (0..VELODYNE_CHANNELS_PER_BLOCK-1).
func (b VelodyneBlock) Channel(k int) VelodyneChannel {
	off := VELODYNE_BLOCK_HEADER_SIZE + k*VELODYNE_CHANNEL_SIZE
	return VelodyneChannel{buf: b.buf[off : off+VELODYNE_CHANNEL_SIZE]}
}

func (b VelodyneBlock) Data() VelodyneBlockData {
	d := VelodyneBlockData{Flag: b.Flag(), RawAzimuth: b.RawAzimuth()}
	for k := range d.Channels {
		c := b.Channel(k)
		d.Channels[k] = VelodyneChannelData{RawDistance: c.RawDistance(), Reflectivity: c.Reflectivity()}
	}
	return d
}

// VelodyneChannel is a view over one 3-byte channel record.
type VelodyneChannel struct {
	buf []byte
}

// RawDistance is in model-specific units (2 mm or 4 mm); zero means no return.
func (c VelodyneChannel) RawDistance() uint16 { return binary.LittleEndian.Uint16(c.buf[0:2]) }
func (c VelodyneChannel) Reflectivity() uint8 { return c.buf[2] }

// VelodyneChannelData is an owned copy of a channel record.
type VelodyneChannelData struct {
	RawDistance  uint16
	Reflectivity uint8
}

// VelodyneBlockData is an owned copy of a data block.
type VelodyneBlockData struct {
	Flag       uint16
	RawAzimuth uint16
	Channels   [VELODYNE_CHANNELS_PER_BLOCK]VelodyneChannelData
}

// VelodynePacketData is an owned copy of a whole packet.
type VelodynePacketData struct {
	Blocks          [VELODYNE_BLOCKS_PER_PACKET]VelodyneBlockData
	TimestampMicros uint32
	ReturnMode      byte
	ProductID       byte
}

// Data copies the packet out of the borrowed buffer.
func (p VelodynePacket) Data() VelodynePacketData {
	d := VelodynePacketData{
		TimestampMicros: p.TimestampMicros(),
		ReturnMode:      p.ReturnMode(),
		ProductID:       p.ProductID(),
	}
	for i := range d.Blocks {
		d.Blocks[i] = p.Block(i).Data()
	}
	return d
}

// EncodeVelodynePacket serialises d into wire format.
func EncodeVelodynePacket(d *VelodynePacketData) []byte {
	buf := make([]byte, VELODYNE_PACKET_SIZE)
	for i := range d.Blocks {
		blk := &d.Blocks[i]
		b := buf[i*VELODYNE_BLOCK_SIZE : (i+1)*VELODYNE_BLOCK_SIZE]
		binary.LittleEndian.PutUint16(b[0:2], blk.Flag)
		binary.LittleEndian.PutUint16(b[2:4], blk.RawAzimuth)
		for k, ch := range blk.Channels {
			cb := b[VELODYNE_BLOCK_HEADER_SIZE+k*VELODYNE_CHANNEL_SIZE:]
			binary.LittleEndian.PutUint16(cb[0:2], ch.RawDistance)
			cb[2] = ch.Reflectivity
		}
	}
	binary.LittleEndian.PutUint32(buf[VELODYNE_TAIL_OFFSET:VELODYNE_TAIL_OFFSET+4], d.TimestampMicros)
	buf[VELODYNE_TAIL_OFFSET+4] = d.ReturnMode
	buf[VELODYNE_TAIL_OFFSET+5] = d.ProductID
	return buf
}

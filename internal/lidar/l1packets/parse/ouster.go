package parse

import (
	"encoding/binary"
	"math"
	"time"
)

/*
Ouster OS1 (legacy lidar data format) packet layout, all fields little-endian:

PACKET (12608 bytes) = 16 columns × 788 bytes
COLUMN (788 bytes):
├── timestamp      u64  @0   nanoseconds since the Unix epoch
├── measurement id u16  @8   column index within the rotation
├── frame id       u16  @10  rotation counter
├── encoder ticks  u32  @12  0 .. OUSTER_ENCODER_TICKS_PER_REV-1
├── pixels         64 × 12 bytes @16
└── valid marker   u32  @784 0xFFFFFFFF when the column is good
PIXEL (12 bytes):
├── range word     u32  @0   low 20 bits = distance in mm, upper 12 reserved
├── reflectivity   u16  @4
├── signal photons u16  @6
├── noise photons  u16  @8
└── padding        u16  @10

The view types below read fields directly from the borrowed buffer; they
must not outlive the caller's packet buffer.
*/

const (
	OUSTER_COLUMNS_PER_PACKET    = 16
	OUSTER_PIXELS_PER_COLUMN     = 64
	OUSTER_ENCODER_TICKS_PER_REV = 90112
	OUSTER_PIXEL_SIZE            = 12
	OUSTER_COLUMN_HEADER_SIZE    = 16
	OUSTER_VALID_MARKER_SIZE     = 4
	OUSTER_COLUMN_SIZE           = OUSTER_COLUMN_HEADER_SIZE + OUSTER_PIXELS_PER_COLUMN*OUSTER_PIXEL_SIZE + OUSTER_VALID_MARKER_SIZE // 788
	OUSTER_PACKET_SIZE           = OUSTER_COLUMNS_PER_PACKET * OUSTER_COLUMN_SIZE                                                      // 12608
	OUSTER_VALID_MARKER          = 0xFFFFFFFF
	OUSTER_DISTANCE_MASK         = 0x000FFFFF

	// Ethernet (14) + IPv4 (20) + UDP (8) headers in front of a captured payload.
	CAPTURE_HEADER_SIZE = 42
)

// OusterPacket is a read-only view over one Ouster data packet.
type OusterPacket struct {
	buf []byte
}

// NewOusterPacket validates the length of b and returns a view over it.
func NewOusterPacket(b []byte) (OusterPacket, error) {
	if err := checkLength("ouster", b, OUSTER_PACKET_SIZE); err != nil {
		return OusterPacket{}, err
	}
	return OusterPacket{buf: b}, nil
}

// OusterPacketFromFrame strips the link, network and transport headers from a
// raw captured Ethernet frame and returns a view over the payload.
func OusterPacketFromFrame(frame []byte) (OusterPacket, error) {
	if len(frame) < CAPTURE_HEADER_SIZE {
		return OusterPacket{}, &MalformedPacketError{Format: "ouster", Expected: OUSTER_PACKET_SIZE + CAPTURE_HEADER_SIZE, Actual: len(frame)}
	}
	return NewOusterPacket(frame[CAPTURE_HEADER_SIZE:])
}

// Column returns the i-th column (0..OUSTER_COLUMNS_PER_PACKET-1).
func (p OusterPacket) Column(i int) OusterColumn {
	off := i * OUSTER_COLUMN_SIZE
	return OusterColumn{buf: p.buf[off : off+OUSTER_COLUMN_SIZE]}
}

// OusterColumn is a view over one measurement column.
type OusterColumn struct {
	buf []byte
}

func (c OusterColumn) TimestampNanos() uint64 { return binary.LittleEndian.Uint64(c.buf[0:8]) }
func (c OusterColumn) MeasurementID() uint16  { return binary.LittleEndian.Uint16(c.buf[8:10]) }
func (c OusterColumn) FrameID() uint16        { return binary.LittleEndian.Uint16(c.buf[10:12]) }
func (c OusterColumn) EncoderTicks() uint32   { return binary.LittleEndian.Uint32(c.buf[12:16]) }

func (c OusterColumn) RawValid() uint32 {
	off := OUSTER_COLUMN_SIZE - OUSTER_VALID_MARKER_SIZE
	return binary.LittleEndian.Uint32(c.buf[off : off+4])
}

// Valid reports whether the trailing marker equals OUSTER_VALID_MARKER.
func (c OusterColumn) Valid() bool { return c.RawValid() == OUSTER_VALID_MARKER }

// Timestamp converts the column timestamp to UTC.
func (c OusterColumn) Timestamp() time.Time {
	return time.Unix(0, int64(c.TimestampNanos())).UTC()
}

func (c OusterColumn) AzimuthDegrees() float64 { return EncoderDegrees(c.EncoderTicks()) }
func (c OusterColumn) AzimuthRadians() float64 { return EncoderRadians(c.EncoderTicks()) }

// Pixel returns the j-th pixel (0..OUSTER_PIXELS_PER_COLUMN-1).
func (c OusterColumn) Pixel(j int) OusterPixel {
	off := OUSTER_COLUMN_HEADER_SIZE + j*OUSTER_PIXEL_SIZE
	return OusterPixel{buf: c.buf[off : off+OUSTER_PIXEL_SIZE]}
}

// Data copies the column out of the packet buffer.
func (c OusterColumn) Data() OusterColumnData {
	d := OusterColumnData{
		TimestampNanos: c.TimestampNanos(),
		MeasurementID:  c.MeasurementID(),
		FrameID:        c.FrameID(),
		EncoderTicks:   c.EncoderTicks(),
		RawValid:       c.RawValid(),
	}
	for j := range d.Pixels {
		d.Pixels[j] = c.Pixel(j).Data()
	}
	return d
}

// OusterPixel is a view over one 12-byte pixel.
type OusterPixel struct {
	buf []byte
}

func (p OusterPixel) RawDistance() uint32   { return binary.LittleEndian.Uint32(p.buf[0:4]) }
func (p OusterPixel) Reflectivity() uint16  { return binary.LittleEndian.Uint16(p.buf[4:6]) }
func (p OusterPixel) SignalPhotons() uint16 { return binary.LittleEndian.Uint16(p.buf[6:8]) }
func (p OusterPixel) NoisePhotons() uint16  { return binary.LittleEndian.Uint16(p.buf[8:10]) }

// DistanceMillimeters masks the reserved upper bits off the range word.
func (p OusterPixel) DistanceMillimeters() uint32 { return p.RawDistance() & OUSTER_DISTANCE_MASK }

// Distance returns the range in metres.
func (p OusterPixel) Distance() float64 { return float64(p.DistanceMillimeters()) / 1000 }

func (p OusterPixel) Data() OusterPixelData {
	return OusterPixelData{
		RawDistance:   p.RawDistance(),
		Reflectivity:  p.Reflectivity(),
		SignalPhotons: p.SignalPhotons(),
		NoisePhotons:  p.NoisePhotons(),
	}
}

// EncoderDegrees converts encoder ticks to degrees: 360 · ticks / ticksPerRev.
func EncoderDegrees(ticks uint32) float64 {
	return 360 * float64(ticks) / OUSTER_ENCODER_TICKS_PER_REV
}

// EncoderRadians converts encoder ticks to radians: 2π · ticks / ticksPerRev.
func EncoderRadians(ticks uint32) float64 {
	return 2 * math.Pi * float64(ticks) / OUSTER_ENCODER_TICKS_PER_REV
}

// OusterPixelData is an owned copy of a pixel.
type OusterPixelData struct {
	RawDistance   uint32
	Reflectivity  uint16
	SignalPhotons uint16
	NoisePhotons  uint16
}

// OusterColumnData is an owned copy of a column.
type OusterColumnData struct {
	TimestampNanos uint64
	MeasurementID  uint16
	FrameID        uint16
	EncoderTicks   uint32
	Pixels         [OUSTER_PIXELS_PER_COLUMN]OusterPixelData
	RawValid       uint32
}

// EncodeOusterPacket serialises columns into wire format.
func EncodeOusterPacket(cols *[OUSTER_COLUMNS_PER_PACKET]OusterColumnData) []byte {
	buf := make([]byte, OUSTER_PACKET_SIZE)
	for i := range cols {
		c := &cols[i]
		b := buf[i*OUSTER_COLUMN_SIZE : (i+1)*OUSTER_COLUMN_SIZE]
		binary.LittleEndian.PutUint64(b[0:8], c.TimestampNanos)
		binary.LittleEndian.PutUint16(b[8:10], c.MeasurementID)
		binary.LittleEndian.PutUint16(b[10:12], c.FrameID)
		binary.LittleEndian.PutUint32(b[12:16], c.EncoderTicks)
		for j, px := range c.Pixels {
			pb := b[OUSTER_COLUMN_HEADER_SIZE+j*OUSTER_PIXEL_SIZE:]
			binary.LittleEndian.PutUint32(pb[0:4], px.RawDistance)
			binary.LittleEndian.PutUint16(pb[4:6], px.Reflectivity)
			binary.LittleEndian.PutUint16(pb[6:8], px.SignalPhotons)
			binary.LittleEndian.PutUint16(pb[8:10], px.NoisePhotons)
		}
		binary.LittleEndian.PutUint32(b[OUSTER_COLUMN_SIZE-OUSTER_VALID_MARKER_SIZE:], c.RawValid)
	}
	return buf
}

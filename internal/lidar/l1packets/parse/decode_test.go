package parse

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOusterPacketLength(t *testing.T) {
	for _, n := range []int{0, 42, OUSTER_PACKET_SIZE - 1, OUSTER_PACKET_SIZE + 1} {
		_, err := NewOusterPacket(make([]byte, n))
		require.Error(t, err, "len %d", n)
		assert.True(t, errors.Is(err, ErrMalformedPacket))

		var mpe *MalformedPacketError
		require.ErrorAs(t, err, &mpe)
		assert.Equal(t, OUSTER_PACKET_SIZE, mpe.Expected)
		assert.Equal(t, n, mpe.Actual)
	}

	_, err := NewOusterPacket(make([]byte, OUSTER_PACKET_SIZE))
	assert.NoError(t, err)
	assert.Equal(t, 12608, OUSTER_PACKET_SIZE)
	assert.Equal(t, 788, OUSTER_COLUMN_SIZE)
}

func TestOusterDistanceMasking(t *testing.T) {
	words := []uint32{0, 1, 0x000FFFFF, 0x00100000, 0xFFF00000, 0xFFFFFFFF, 0xABC12345, 0x80000001}
	var cols [OUSTER_COLUMNS_PER_PACKET]OusterColumnData
	for j, w := range words {
		cols[0].Pixels[j].RawDistance = w
	}
	pkt, err := NewOusterPacket(EncodeOusterPacket(&cols))
	require.NoError(t, err)

	for j, w := range words {
		px := pkt.Column(0).Pixel(j)
		assert.Equal(t, w&0x000FFFFF, px.DistanceMillimeters(), "word 0x%08x", w)
		assert.Equal(t, w, px.RawDistance())
	}
	assert.InDelta(t, 1.0, testPixel(t, 0xFFF003E8).Distance(), 1e-12)
}

// testPixel builds a one-pixel packet and returns that pixel.
func testPixel(t *testing.T, word uint32) OusterPixel {
	t.Helper()
	var cols [OUSTER_COLUMNS_PER_PACKET]OusterColumnData
	cols[3].Pixels[7].RawDistance = word
	pkt, err := NewOusterPacket(EncodeOusterPacket(&cols))
	require.NoError(t, err)
	return pkt.Column(3).Pixel(7)
}

func TestOusterValidityRoundTrip(t *testing.T) {
	markers := []uint32{0xFFFFFFFF, 0, 0xFFFFFFFE, 0x7FFFFFFF, 1}
	var cols [OUSTER_COLUMNS_PER_PACKET]OusterColumnData
	for i, m := range markers {
		cols[i].RawValid = m
	}
	pkt, err := NewOusterPacket(EncodeOusterPacket(&cols))
	require.NoError(t, err)

	for i, m := range markers {
		assert.Equal(t, m == 0xFFFFFFFF, pkt.Column(i).Valid(), "marker 0x%08x", m)
	}
	// Columns past the listed markers were zero, hence invalid but present.
	assert.False(t, pkt.Column(OUSTER_COLUMNS_PER_PACKET-1).Valid())
}

func TestOusterAzimuthConversion(t *testing.T) {
	assert.InDelta(t, 0, EncoderDegrees(0), 1e-12)
	assert.InDelta(t, 180, EncoderDegrees(OUSTER_ENCODER_TICKS_PER_REV/2), 1e-9)
	assert.InDelta(t, 90, EncoderDegrees(OUSTER_ENCODER_TICKS_PER_REV/4), 1e-9)
	assert.InDelta(t, 3.141592653589793, EncoderRadians(OUSTER_ENCODER_TICKS_PER_REV/2), 1e-9)

	prev := -1.0
	for ticks := uint32(0); ticks < OUSTER_ENCODER_TICKS_PER_REV; ticks += 97 {
		deg := EncoderDegrees(ticks)
		assert.GreaterOrEqual(t, deg, prev)
		assert.Less(t, deg, 360.0)
		prev = deg
	}
}

func TestOusterColumnFields(t *testing.T) {
	var cols [OUSTER_COLUMNS_PER_PACKET]OusterColumnData
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	cols[2] = OusterColumnData{
		TimestampNanos: uint64(ts.UnixNano()),
		MeasurementID:  514,
		FrameID:        77,
		EncoderTicks:   45056,
		RawValid:       OUSTER_VALID_MARKER,
	}
	cols[2].Pixels[63] = OusterPixelData{RawDistance: 2500, Reflectivity: 11, SignalPhotons: 22, NoisePhotons: 33}

	raw := EncodeOusterPacket(&cols)
	pkt, err := NewOusterPacket(raw)
	require.NoError(t, err)

	col := pkt.Column(2)
	assert.True(t, col.Timestamp().Equal(ts))
	assert.Equal(t, uint16(514), col.MeasurementID())
	assert.Equal(t, uint16(77), col.FrameID())
	assert.InDelta(t, 180, col.AzimuthDegrees(), 1e-9)
	assert.True(t, col.Valid())

	px := col.Pixel(63)
	assert.InDelta(t, 2.5, px.Distance(), 1e-12)
	assert.Equal(t, uint16(11), px.Reflectivity())
	assert.Equal(t, uint16(22), px.SignalPhotons())
	assert.Equal(t, uint16(33), px.NoisePhotons())

	assert.Equal(t, cols[2], col.Data())

	// Views borrow the buffer.
	binary.LittleEndian.PutUint16(raw[2*OUSTER_COLUMN_SIZE+8:], 9)
	assert.Equal(t, uint16(9), col.MeasurementID())
}

func TestOusterPacketFromFrame(t *testing.T) {
	var cols [OUSTER_COLUMNS_PER_PACKET]OusterColumnData
	cols[0].FrameID = 5
	frame := append(make([]byte, CAPTURE_HEADER_SIZE), EncodeOusterPacket(&cols)...)

	pkt, err := OusterPacketFromFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), pkt.Column(0).FrameID())

	_, err = OusterPacketFromFrame(frame[:10])
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, err = OusterPacketFromFrame(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestNewVelodynePacketLength(t *testing.T) {
	for _, n := range []int{0, 1200, 1205, 1207, 1248} {
		_, err := NewVelodynePacket(make([]byte, n))
		assert.ErrorIs(t, err, ErrMalformedPacket, "len %d", n)
	}
	_, err := NewVelodynePacket(make([]byte, VELODYNE_PACKET_SIZE))
	assert.NoError(t, err)
}

func TestVelodyneFields(t *testing.T) {
	d := VelodynePacketData{TimestampMicros: 1_234_567, ReturnMode: 0x39, ProductID: 0x22}
	for i := range d.Blocks {
		d.Blocks[i].Flag = VELODYNE_BLOCK_FLAG
		d.Blocks[i].RawAzimuth = uint16(35950 + i*10)
		d.Blocks[i].Channels[i] = VelodyneChannelData{RawDistance: uint16(1000 + i), Reflectivity: uint8(i)}
	}
	d.Blocks[5].Flag = 0x1234

	raw := EncodeVelodynePacket(&d)
	assert.Equal(t, []byte{0xFF, 0xEE}, raw[0:2], "flag is FF EE on the wire")

	pkt, err := NewVelodynePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(1_234_567), pkt.TimestampMicros())
	assert.Equal(t, byte(0x39), pkt.ReturnMode())
	assert.Equal(t, byte(0x22), pkt.ProductID())

	b := pkt.Block(3)
	assert.True(t, b.Valid())
	assert.InDelta(t, 359.8, b.AzimuthDegrees(), 1e-9)
	assert.Equal(t, uint16(1003), b.Channel(3).RawDistance())
	assert.Equal(t, uint8(3), b.Channel(3).Reflectivity())
	assert.False(t, pkt.Block(5).Valid())

	assert.Equal(t, d, pkt.Data())
}

func TestVelodyneTime(t *testing.T) {
	cases := []struct {
		name   string
		micros uint32
		ref    time.Time
		want   time.Time
	}{
		{
			name:   "same hour",
			micros: uint32((10 * time.Minute) / time.Microsecond),
			ref:    time.Date(2024, 1, 1, 5, 10, 1, 0, time.UTC),
			want:   time.Date(2024, 1, 1, 5, 10, 0, 0, time.UTC),
		},
		{
			name:   "packet from previous hour read after rollover",
			micros: uint32((59*time.Minute + 59*time.Second) / time.Microsecond),
			ref:    time.Date(2024, 1, 1, 6, 0, 0, 500_000_000, time.UTC),
			want:   time.Date(2024, 1, 1, 5, 59, 59, 0, time.UTC),
		},
		{
			name:   "packet from next hour with lagging reference",
			micros: 200,
			ref:    time.Date(2024, 1, 1, 5, 59, 59, 999_000_000, time.UTC),
			want:   time.Date(2024, 1, 1, 6, 0, 0, 200_000, time.UTC),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := TopOfHourTime(c.micros, c.ref)
			assert.True(t, c.want.Equal(got), "got %v want %v", got, c.want)
		})
	}
}

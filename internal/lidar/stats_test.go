package lidar

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{57600, "57,600"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
		{-12, "-12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWithCommas(tt.in), "FormatWithCommas(%d)", tt.in)
	}
}

func TestPacketStats_GetAndReset(t *testing.T) {
	ps := NewPacketStats()
	clock := ps.lastReset
	ps.now = func() time.Time { return clock }

	ps.AddPacket(1206)
	ps.AddPacket(1206)
	ps.AddDropped()
	ps.AddMalformed()
	ps.AddPoints(384)
	ps.AddFrame()
	clock = clock.Add(2 * time.Second)

	s := ps.GetAndReset()
	assert.Equal(t, StatsSnapshot{
		Packets: 2, Bytes: 2412, Dropped: 1, Malformed: 1, Points: 384, Frames: 1,
		Duration: 2 * time.Second,
	}, s)
	assert.Equal(t, StatsSnapshot{}, ps.GetAndReset())
}

func TestPacketStats_Concurrent(t *testing.T) {
	ps := NewPacketStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ps.AddPacket(10)
				ps.AddPoints(2)
			}
		}()
	}
	wg.Wait()
	s := ps.GetAndReset()
	assert.Equal(t, int64(800), s.Packets)
	assert.Equal(t, int64(8000), s.Bytes)
	assert.Equal(t, int64(1600), s.Points)
}

func TestStatsSnapshot_Format(t *testing.T) {
	assert.Empty(t, StatsSnapshot{Points: 10, Duration: time.Second}.Format())

	s := StatsSnapshot{
		Packets: 754, Bytes: 754 * 1206, Points: 289536, Frames: 10, Malformed: 2, Dropped: 1,
		Duration: time.Second,
	}
	msg := s.Format()
	assert.Contains(t, msg, "754.0 packets")
	assert.Contains(t, msg, "289,536 points")
	assert.Contains(t, msg, "10.0 frames")
	assert.Contains(t, msg, "2 malformed")
	assert.Contains(t, msg, "1 dropped on forward")
}

func TestPacketStats_LogStats(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})
	t.Cleanup(func() { SetLogWriters(LogWriters{}) })

	ps := NewPacketStats()
	ps.LogStats()
	assert.Empty(t, ops.String(), "idle interval is silent")

	ps.AddPacket(100)
	ps.LogStats()
	require.Contains(t, ops.String(), "[lidar] ")
	assert.Contains(t, ops.String(), "Lidar stats (/sec)")
}

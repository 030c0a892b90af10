package lidar

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// PacketStats counts ingest and assembly activity between log reports.
// It is safe for concurrent use.
type PacketStats struct {
	mu        sync.Mutex
	packets   int64
	bytes     int64
	dropped   int64 // packets the forwarder could not queue
	malformed int64 // packets rejected by the decoder or converter
	points    int64
	frames    int64
	lastReset time.Time
	now       func() time.Time
}

func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now(), now: time.Now}
}

// StatsSnapshot is one reporting interval's worth of counters.
type StatsSnapshot struct {
	Packets   int64
	Bytes     int64
	Dropped   int64
	Malformed int64
	Points    int64
	Frames    int64
	Duration  time.Duration
}

func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(bytes)
}

func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformed++
}

func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.points += int64(count)
}

func (ps *PacketStats) AddFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frames++
}

// GetAndReset returns the counters since the previous call and zeroes them.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	s := StatsSnapshot{
		Packets:   ps.packets,
		Bytes:     ps.bytes,
		Dropped:   ps.dropped,
		Malformed: ps.malformed,
		Points:    ps.points,
		Frames:    ps.frames,
		Duration:  now.Sub(ps.lastReset),
	}
	ps.packets, ps.bytes, ps.dropped = 0, 0, 0
	ps.malformed, ps.points, ps.frames = 0, 0, 0
	ps.lastReset = now
	return s
}

// LogStats reports per-second rates on the ops stream and resets the
// counters. Idle intervals are not logged.
func (ps *PacketStats) LogStats() {
	s := ps.GetAndReset()
	if msg := s.Format(); msg != "" {
		Opsf("%s", msg)
	}
}

// Format renders the snapshot as per-second rates, or "" when idle.
func (s StatsSnapshot) Format() string {
	if s.Packets == 0 && s.Dropped == 0 && s.Malformed == 0 {
		return ""
	}
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lidar stats (/sec): %.2f MB, %.1f packets",
		float64(s.Bytes)/secs/(1024*1024), float64(s.Packets)/secs)
	if s.Points > 0 {
		fmt.Fprintf(&b, ", %s points", FormatWithCommas(int64(float64(s.Points)/secs)))
	}
	if s.Frames > 0 {
		fmt.Fprintf(&b, ", %.1f frames", float64(s.Frames)/secs)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, ", %d malformed", s.Malformed)
	}
	if s.Dropped > 0 {
		fmt.Fprintf(&b, ", %d dropped on forward", s.Dropped)
	}
	return b.String()
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	sign := ""
	if n < 0 {
		sign, str = "-", str[1:]
	}
	if len(str) <= 3 {
		return sign + str
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

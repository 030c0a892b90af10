package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/convert"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
)

// Stats receives per-stream counters. *lidar.PacketStats implements it.
type Stats interface {
	AddMalformed()
	AddPoints(count int)
	AddFrame()
}

type noopStats struct{}

func (noopStats) AddMalformed() {}
func (noopStats) AddPoints(int) {}
func (noopStats) AddFrame()     {}

type StreamConfig struct {
	SensorID string // defaults to the model name
	Model    lidar.Model
	Policy   lidar.ReturnPolicy
	// Table overrides the model's built-in calibration. Required for Ouster.
	Table *calibration.Table
	// Clock anchors Velodyne top-of-hour timestamps when a packet arrives
	// without a capture time. Defaults to time.Now.
	Clock func() time.Time
	Stats Stats
}

// Result holds the frame completed by one packet, if any. At most one of
// Single and Dual is set, matching the shape of the points that built it.
type Result struct {
	Single *l2frames.Frame[lidar.Point]
	Dual   *l2frames.Frame[lidar.DualPoint]
}

// Empty reports whether no frame was completed.
func (r Result) Empty() bool { return r.Single == nil && r.Dual == nil }

// Stream decodes, converts and assembles one sensor's packets.
type Stream struct {
	cfg    StreamConfig
	conv   *convert.Converter
	single *l2frames.Assembler[lidar.Point]
	dual   *l2frames.Assembler[lidar.DualPoint]
	stats  Stats

	shape    convert.Kind
	hasShape bool
	packets  uint64
}

func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Model.Family() == lidar.FamilyUnknown {
		return nil, fmt.Errorf("unsupported sensor model %s", cfg.Model)
	}
	if cfg.SensorID == "" {
		cfg.SensorID = cfg.Model.String()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	table := cfg.Table
	if table == nil {
		t, err := calibration.ForModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		table = t
	}
	conv, err := convert.New(cfg.Model, table, cfg.Policy)
	if err != nil {
		return nil, err
	}

	s := &Stream{cfg: cfg, conv: conv, stats: cfg.Stats}
	if s.stats == nil {
		s.stats = noopStats{}
	}
	acfg := l2frames.AssemblerConfig{SensorID: cfg.SensorID, ExpectedBeams: cfg.Model.Channels()}
	s.single = l2frames.NewAssembler[lidar.Point](acfg)
	s.dual = l2frames.NewAssembler[lidar.DualPoint](acfg)
	s.diagf("stream ready: model=%s policy=%s calibration=%s", cfg.Model, cfg.Policy, table.Name())
	return s, nil
}

func (s *Stream) SensorID() string               { return s.cfg.SensorID }
func (s *Stream) Converter() *convert.Converter { return s.conv }

// IsRecoverable reports whether err only affected the packet that caused
// it. Recoverable packets leave the stream's state untouched.
func IsRecoverable(err error) bool {
	return errors.Is(err, parse.ErrMalformedPacket) || errors.Is(err, convert.ErrUnknownReturnMode)
}

// ProcessPacket decodes, converts and assembles one UDP payload. captured
// is the capture or receive time; the zero time falls back to the clock.
//
// Malformed packets and unknown return modes are reported and skipped
// (see IsRecoverable). A model mismatch or an assembly error is fatal:
// assembly errors stay sticky until Reset. A frame completed before a
// fatal error is still returned.
func (s *Stream) ProcessPacket(data []byte, captured time.Time) (Result, error) {
	s.packets++
	pts, err := s.convert(data, captured)
	if err != nil {
		if IsRecoverable(err) {
			s.stats.AddMalformed()
			s.tracef("packet %d skipped: %v", s.packets, err)
		}
		return Result{}, err
	}
	s.stats.AddPoints(pts.Len())
	if err := s.switchShape(pts.Kind); err != nil {
		return Result{}, err
	}

	var res Result
	if pts.Kind == convert.KindDual {
		res.Dual, err = s.dual.Push(pts.Dual)
	} else {
		res.Single, err = s.single.Push(pts.Single)
	}
	s.noteFrame(res)
	return res, err
}

func (s *Stream) convert(data []byte, captured time.Time) (convert.Points, error) {
	switch s.cfg.Model.Family() {
	case lidar.FamilyVelodyne:
		pkt, err := parse.NewVelodynePacket(data)
		if err != nil {
			return convert.Points{}, err
		}
		ref := captured
		if ref.IsZero() {
			ref = s.cfg.Clock()
		}
		return s.conv.ConvertVelodyne(pkt, ref)
	case lidar.FamilyOuster:
		pkt, err := parse.NewOusterPacket(data)
		if err != nil {
			return convert.Points{}, err
		}
		return s.conv.ConvertOuster(pkt)
	}
	return convert.Points{}, fmt.Errorf("unsupported sensor model %s", s.cfg.Model)
}

// switchShape drops the other assembler's partial rotation when a
// dynamic-policy stream changes between single and dual packets. A sticky
// assembly error in the other assembler is returned instead of being
// cleared by the reset.
func (s *Stream) switchShape(k convert.Kind) error {
	if s.hasShape && k != s.shape {
		var dropped int
		if s.shape == convert.KindDual {
			if err := s.dual.Err(); err != nil {
				return err
			}
			dropped = s.dual.Buffered()
			s.dual.Reset()
		} else {
			if err := s.single.Err(); err != nil {
				return err
			}
			dropped = s.single.Buffered()
			s.single.Reset()
		}
		s.opsf("return mode changed to %s points, dropped %d buffered %s points", k, dropped, s.shape)
	}
	s.shape = k
	s.hasShape = true
	return nil
}

func (s *Stream) noteFrame(res Result) {
	switch {
	case res.Single != nil:
		s.stats.AddFrame()
		s.tracef("frame %d: %dx%d", res.Single.Seq, res.Single.Height, res.Single.Width)
	case res.Dual != nil:
		s.stats.AddFrame()
		s.tracef("dual frame %d: %dx%d", res.Dual.Seq, res.Dual.Height, res.Dual.Width)
	}
}

// Pending reports whether a previous packet left input past a second
// rotation boundary. Drain processes it.
func (s *Stream) Pending() bool { return s.single.Pending() || s.dual.Pending() }

// Drain processes input deferred by an earlier packet and returns the
// frame it completes, if any.
func (s *Stream) Drain() (Result, error) {
	var res Result
	var err error
	switch {
	case s.single.Pending():
		res.Single, err = s.single.Push(nil)
	case s.dual.Pending():
		res.Dual, err = s.dual.Push(nil)
	}
	s.noteFrame(res)
	return res, err
}

// Buffered is the number of points waiting for a rotation boundary.
func (s *Stream) Buffered() int { return s.single.Buffered() + s.dual.Buffered() }

// Err returns the sticky assembly error, if any.
func (s *Stream) Err() error {
	if err := s.single.Err(); err != nil {
		return err
	}
	return s.dual.Err()
}

// Reset discards buffered points and clears a sticky error.
func (s *Stream) Reset() {
	s.single.Reset()
	s.dual.Reset()
	s.hasShape = false
}

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/convert"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/network"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
	"github.com/banshee-data/spinlidar/internal/lidar/synth"
)

var t0 = time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)

// A 0.4° firing step gives exactly 900 firing cycles per rotation: 75
// single-return VLP-16 packets, 1800 columns.
const (
	step            = 0.4
	packetsPerRev   = 75
	vlp16RevColumns = 1800
)

type timedPacket struct {
	data []byte
	ts   time.Time
}

func vlp16Packets(t *testing.T, mode lidar.ReturnMode, startAz float64, n int) []timedPacket {
	t.Helper()
	g, err := synth.NewVelodyneGenerator(synth.VelodyneConfig{
		Model:        lidar.ModelVLP16,
		Mode:         mode,
		AzimuthStep:  step,
		StartAzimuth: startAz,
		Start:        t0,
		Range:        synth.Constant(10),
		SecondRange:  synth.Constant(20),
	})
	require.NoError(t, err)
	out := make([]timedPacket, n)
	for i := range out {
		out[i].data, out[i].ts = g.Next()
	}
	return out
}

func newStream(t *testing.T, cfg StreamConfig) *Stream {
	t.Helper()
	s, err := NewStream(cfg)
	require.NoError(t, err)
	return s
}

func ignoreFrameID() cmp.Option {
	return cmp.Options{
		cmpopts.IgnoreFields(l2frames.Frame[lidar.Point]{}, "ID"),
		cmpopts.IgnoreFields(l2frames.Frame[lidar.DualPoint]{}, "ID"),
	}
}

func TestStream_VLP16Rotations(t *testing.T) {
	stats := lidar.NewPacketStats()
	s := newStream(t, StreamConfig{SensorID: "front", Model: lidar.ModelVLP16, Policy: lidar.PolicyStrongest, Stats: stats})

	var frames []*l2frames.Frame[lidar.Point]
	for i, p := range vlp16Packets(t, lidar.ReturnStrongest, 0, 2*packetsPerRev+10) {
		res, err := s.ProcessPacket(p.data, p.ts)
		require.NoError(t, err, "packet %d", i)
		require.Nil(t, res.Dual)
		if res.Single != nil {
			assert.Contains(t, []int{packetsPerRev, 2 * packetsPerRev}, i, "frame completed by packet %d", i)
			frames = append(frames, res.Single)
		}
	}

	require.Len(t, frames, 2)
	for i, f := range frames {
		require.NoError(t, f.Validate())
		assert.Equal(t, uint64(i), f.Seq)
		assert.Equal(t, "front", f.SensorID)
		assert.Equal(t, 16, f.Height)
		assert.Equal(t, vlp16RevColumns, f.Width)

		first := f.At(0, 0)
		assert.InDelta(t, 0, first.OriginalAzimuth, 1e-9)
		assert.InDelta(t, 15, first.Elevation, 1e-9, "top row is the highest laser")
		assert.Equal(t, 0, first.Column)
		last := f.At(15, f.Width-1)
		assert.InDelta(t, 359.8, last.OriginalAzimuth, 1e-6)
		assert.InDelta(t, -15, last.Elevation, 1e-9)
		assert.InDelta(t, 10, last.Distance, 1e-9)
	}
	assert.NotEqual(t, frames[0].ID, frames[1].ID)

	// 10 packets of the third rotation remain.
	assert.Equal(t, 10*384, s.Buffered())
	snap := stats.GetAndReset()
	assert.Equal(t, int64(2), snap.Frames)
	assert.Equal(t, int64((2*packetsPerRev+10)*384), snap.Points)
}

func TestStream_DualPolicyFrame(t *testing.T) {
	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16, Policy: lidar.PolicyDual})
	var frames []*l2frames.Frame[lidar.DualPoint]
	for _, p := range vlp16Packets(t, lidar.ReturnDual, 0, 2*packetsPerRev+5) {
		res, err := s.ProcessPacket(p.data, p.ts)
		require.NoError(t, err)
		require.Nil(t, res.Single)
		if res.Dual != nil {
			frames = append(frames, res.Dual)
		}
	}
	require.Len(t, frames, 1)
	f := frames[0]
	require.NoError(t, f.Validate())
	assert.Equal(t, "vlp16", f.SensorID)
	assert.Equal(t, vlp16RevColumns, f.Width)
	dp := f.At(3, 100)
	assert.InDelta(t, 10, dp.Last.Distance, 1e-9)
	assert.InDelta(t, 20, dp.Strongest.Distance, 1e-9)
	assert.Equal(t, lidar.ReturnLast, dp.Last.Return)
	assert.Equal(t, lidar.ReturnStrongest, dp.Strongest.Return)
	assert.Equal(t, 100, dp.Strongest.Column)
}

func TestStream_RecoverableErrorsLeaveStateUntouched(t *testing.T) {
	stats := lidar.NewPacketStats()
	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16, Policy: lidar.PolicyStrongest, Stats: stats})
	pkts := vlp16Packets(t, lidar.ReturnStrongest, 0, 3)

	_, err := s.ProcessPacket(pkts[0].data, pkts[0].ts)
	require.NoError(t, err)
	before := s.Buffered()

	res, err := s.ProcessPacket(pkts[1].data[:600], pkts[1].ts)
	require.ErrorIs(t, err, parse.ErrMalformedPacket)
	assert.True(t, IsRecoverable(err))
	assert.True(t, res.Empty())
	assert.Equal(t, before, s.Buffered())

	bad := bytes.Clone(pkts[1].data)
	bad[parse.VELODYNE_TAIL_OFFSET+4] = 0x99
	_, err = s.ProcessPacket(bad, pkts[1].ts)
	require.ErrorIs(t, err, convert.ErrUnknownReturnMode)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, before, s.Buffered())

	_, err = s.ProcessPacket(pkts[1].data, pkts[1].ts)
	require.NoError(t, err)
	assert.Equal(t, before+384, s.Buffered())
	assert.Equal(t, int64(2), stats.GetAndReset().Malformed)
}

func TestStream_ModelMismatchIsFatal(t *testing.T) {
	g, err := synth.NewVelodyneGenerator(synth.VelodyneConfig{Model: lidar.ModelVLP32C, Start: t0})
	require.NoError(t, err)
	data, ts := g.Next()

	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16})
	_, err = s.ProcessPacket(data, ts)
	require.ErrorIs(t, err, convert.ErrModelMismatch)
	assert.False(t, IsRecoverable(err))

	h := s.Handler(nil)
	assert.ErrorIs(t, h.HandlePacket(data, ts), convert.ErrModelMismatch)
	assert.NoError(t, h.HandlePacket(data[:10], ts), "malformed packets are skipped")
}

func TestStream_DynamicShapeSwitchDropsLeftovers(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16, Policy: lidar.PolicyDynamic})
	for _, p := range vlp16Packets(t, lidar.ReturnStrongest, 0, 3) {
		_, err := s.ProcessPacket(p.data, p.ts)
		require.NoError(t, err)
	}
	assert.Equal(t, 3*384, s.Buffered())

	// Three packets cover 36 firing cycles.
	dual := vlp16Packets(t, lidar.ReturnDual, 36*step, 1)
	res, err := s.ProcessPacket(dual[0].data, dual[0].ts)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 192, s.Buffered(), "only the dual packet's points remain")
	assert.Contains(t, ops.String(), "return mode changed to dual points, dropped 1152 buffered single points")
}

func TestStream_ShapeSwitchKeepsStickyAssemblyError(t *testing.T) {
	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16, Policy: lidar.PolicyDynamic})
	dual := vlp16Packets(t, lidar.ReturnDual, 0, 1)
	_, err := s.ProcessPacket(dual[0].data, dual[0].ts)
	require.NoError(t, err)

	// A three-laser column breaks the dual assembler's beam count.
	var broken []lidar.DualPoint
	for _, laser := range []int{0, 1, 2, 0} {
		p := lidar.Point{LaserID: laser, OriginalAzimuth: 100, Distance: 10}
		broken = append(broken, lidar.DualPoint{Last: p, Strongest: p})
	}
	_, err = s.dual.Push(broken)
	require.ErrorIs(t, err, l2frames.ErrAssembly)
	buffered := s.Buffered()

	single := vlp16Packets(t, lidar.ReturnStrongest, 10, 1)
	res, err := s.ProcessPacket(single[0].data, single[0].ts)
	require.ErrorIs(t, err, l2frames.ErrAssembly)
	assert.False(t, IsRecoverable(err))
	assert.True(t, res.Empty())
	assert.ErrorIs(t, s.Err(), l2frames.ErrAssembly, "error stays sticky")
	assert.Equal(t, buffered, s.Buffered(), "nothing was reset or pushed")
}

func ousterTable(t *testing.T) *calibration.Table {
	t.Helper()
	params := make([]calibration.LaserParameter, 64)
	ids := make([]int, 64)
	for i := range params {
		params[i] = calibration.LaserParameter{ElevationDeg: 16.6 - float64(i)*0.52}
		ids[i] = i
	}
	table, err := calibration.NewTable(params, ids, 64, 0.001)
	require.NoError(t, err)
	return table.WithName("os1-64-test")
}

func TestStream_Ouster(t *testing.T) {
	_, err := NewStream(StreamConfig{Model: lidar.ModelOS1_64})
	require.Error(t, err, "ouster has no built-in calibration")

	s := newStream(t, StreamConfig{Model: lidar.ModelOS1_64, Table: ousterTable(t)})
	g := synth.NewOusterGenerator(synth.OusterConfig{ColumnsPerRev: 512, Start: t0, Range: synth.Constant(7.5)})

	var frames []*l2frames.Frame[lidar.Point]
	for i := 0; i < 40; i++ {
		res, err := s.ProcessPacket(g.Next(), time.Time{})
		require.NoError(t, err)
		if res.Single != nil {
			frames = append(frames, res.Single)
		}
	}
	require.Len(t, frames, 1)
	f := frames[0]
	require.NoError(t, f.Validate())
	assert.Equal(t, 64, f.Height)
	assert.Equal(t, 512, f.Width)
	p := f.At(10, 256)
	assert.InDelta(t, 7.5, p.Distance, 1e-9)
	assert.InDelta(t, 180, p.OriginalAzimuth, 1e-9)
	assert.True(t, p.Valid)
	assert.Equal(t, lidar.ReturnStrongest, p.Return)
}

func TestNewStream_Errors(t *testing.T) {
	_, err := NewStream(StreamConfig{})
	require.Error(t, err)

	_, err = NewStream(StreamConfig{Model: lidar.ModelVLP32C, Table: calibration.VLP16()})
	require.ErrorIs(t, err, convert.ErrModelMismatch)
}

func TestStream_RunMatchesDirectProcessing(t *testing.T) {
	pkts := vlp16Packets(t, lidar.ReturnStrongest, 90, 3*packetsPerRev)

	direct := newStream(t, StreamConfig{SensorID: "s", Model: lidar.ModelVLP16, Policy: lidar.PolicyLast})
	var want []*l2frames.Frame[lidar.Point]
	for _, p := range pkts {
		res, err := direct.ProcessPacket(p.data, p.ts)
		require.NoError(t, err)
		if res.Single != nil {
			want = append(want, res.Single)
		}
	}
	// Starting at 90° the first frame is a partial rotation.
	require.Len(t, want, 3)
	assert.Equal(t, vlp16RevColumns*3/4, want[0].Width)

	var capture bytes.Buffer
	w, err := network.NewPCAPWriter(&capture, network.PCAPWriterConfig{DstPort: parse.VELODYNE_DATA_PORT})
	require.NoError(t, err)
	for _, p := range pkts {
		require.NoError(t, w.WritePacket(p.data, p.ts))
	}

	replayed := newStream(t, StreamConfig{SensorID: "s", Model: lidar.ModelVLP16, Policy: lidar.PolicyLast})
	var got []*l2frames.Frame[lidar.Point]
	src := PCAPReaderSource{R: &capture, Config: network.PCAPConfig{UDPPort: parse.VELODYNE_DATA_PORT}}
	err = replayed.Run(context.Background(), src, func(r Result) {
		require.NotNil(t, r.Single)
		got = append(got, r.Single)
	})
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, ignoreFrameID()); diff != "" {
		t.Errorf("replayed frames differ (-direct +replayed):\n%s", diff)
	}
}

func TestStream_RunCancelled(t *testing.T) {
	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var capture bytes.Buffer
	w, err := network.NewPCAPWriter(&capture, network.PCAPWriterConfig{DstPort: parse.VELODYNE_DATA_PORT})
	require.NoError(t, err)
	p := vlp16Packets(t, lidar.ReturnStrongest, 0, 1)[0]
	require.NoError(t, w.WritePacket(p.data, p.ts))

	err = s.Run(ctx, PCAPReaderSource{R: &capture}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

type sliceSource [][]byte

func (s sliceSource) Feed(ctx context.Context, h network.PacketHandler) error {
	for _, p := range s {
		if err := h.HandlePacket(p, t0); err != nil {
			return err
		}
	}
	return nil
}

func TestStream_RunStopsOnFatalError(t *testing.T) {
	g, err := synth.NewVelodyneGenerator(synth.VelodyneConfig{Model: lidar.ModelVLP32C, Start: t0})
	require.NoError(t, err)
	wrong, _ := g.Next()

	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16})
	err = s.Run(context.Background(), sliceSource{make([]byte, 5), wrong}, nil)
	require.ErrorIs(t, err, convert.ErrModelMismatch)
	assert.False(t, errors.Is(err, parse.ErrMalformedPacket))
}

func TestStream_Reset(t *testing.T) {
	s := newStream(t, StreamConfig{Model: lidar.ModelVLP16})
	for _, p := range vlp16Packets(t, lidar.ReturnStrongest, 0, 2) {
		_, err := s.ProcessPacket(p.data, p.ts)
		require.NoError(t, err)
	}
	require.NotZero(t, s.Buffered())
	s.Reset()
	assert.Zero(t, s.Buffered())
	assert.NoError(t, s.Err())
	assert.False(t, s.Pending())
	res, err := s.Drain()
	assert.NoError(t, err)
	assert.True(t, res.Empty())
}

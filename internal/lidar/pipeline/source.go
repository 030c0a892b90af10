package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/network"
)

// PacketSource delivers packets to h until it is exhausted, ctx is done,
// or h returns an error.
type PacketSource interface {
	Feed(ctx context.Context, h network.PacketHandler) error
}

// PCAPFileSource replays a pcap or pcapng file.
type PCAPFileSource struct {
	Path   string
	Config network.PCAPConfig
}

func (s PCAPFileSource) Feed(ctx context.Context, h network.PacketHandler) error {
	cfg := s.Config
	cfg.Handler = h
	sum, err := network.ReadPCAPFile(ctx, s.Path, cfg)
	diagf("replayed %s: %d frames, %d delivered, %d skipped in %v", s.Path, sum.Frames, sum.Delivered, sum.Skipped, sum.Elapsed)
	return err
}

// PCAPReaderSource replays a capture from an open stream.
type PCAPReaderSource struct {
	R      io.Reader
	Config network.PCAPConfig
}

func (s PCAPReaderSource) Feed(ctx context.Context, h network.PacketHandler) error {
	cfg := s.Config
	cfg.Handler = h
	_, err := network.ReadPCAP(ctx, s.R, cfg)
	return err
}

// UDPSource listens for live packets until ctx is cancelled.
type UDPSource struct {
	Config network.UDPListenerConfig
}

func (s UDPSource) Feed(ctx context.Context, h network.PacketHandler) error {
	cfg := s.Config
	cfg.Handler = h
	return network.NewUDPListener(cfg).Start(ctx)
}

// Handler adapts the stream to a packet source. Completed frames go to
// onFrame, recoverable packet errors are logged and skipped, and fatal
// errors are returned to stop the source. Deferred input is drained
// eagerly so every completed frame is delivered before the next packet.
func (s *Stream) Handler(onFrame func(Result)) network.PacketHandler {
	return network.HandlerFunc(func(data []byte, captured time.Time) error {
		res, err := s.ProcessPacket(data, captured)
		deliver(onFrame, res)
		if err != nil {
			if IsRecoverable(err) {
				s.diagf("skipping packet: %v", err)
				return nil
			}
			s.opsf("stream stopped: %v", err)
			return err
		}
		return s.drainAll(onFrame)
	})
}

func (s *Stream) drainAll(onFrame func(Result)) error {
	for s.Pending() {
		res, err := s.Drain()
		deliver(onFrame, res)
		if err != nil {
			return err
		}
	}
	return nil
}

func deliver(onFrame func(Result), res Result) {
	if onFrame != nil && !res.Empty() {
		onFrame(res)
	}
}

// Run feeds src through the stream until the source ends. A source that
// ends cleanly returns nil; cancellation and fatal stream errors are
// returned. The partial rotation still buffered at the end is not emitted.
func (s *Stream) Run(ctx context.Context, src PacketSource, onFrame func(Result)) error {
	if err := src.Feed(ctx, s.Handler(onFrame)); err != nil {
		return err
	}
	if err := s.drainAll(onFrame); err != nil {
		return err
	}
	s.diagf("source exhausted after %d packets, %d points left buffered", s.packets, s.Buffered())
	return nil
}

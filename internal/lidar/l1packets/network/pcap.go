package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

const pcapngMagic = 0x0A0D0D0A

// PCAPConfig controls a capture replay.
type PCAPConfig struct {
	// UDPPort keeps only datagrams sent to this port. Zero keeps every UDP datagram.
	UDPPort int
	Handler PacketHandler
	Stats   PacketStatsInterface
	// Forwarder, when set, receives a copy of every matching payload.
	Forwarder *PacketForwarder
	// SpeedMultiplier paces replay by capture timestamps (1.0 = real time,
	// 2.0 = twice as fast). Zero replays as fast as possible.
	SpeedMultiplier float64
	// LogInterval is the number of packets between progress logs. Zero disables them.
	LogInterval int
}

// PCAPSummary counts what a replay did.
type PCAPSummary struct {
	Frames    int // link-layer frames read
	Delivered int // UDP payloads handed to the handler
	Skipped   int // non-UDP frames or other ports
	Elapsed   time.Duration
}

// ReadPCAPFile replays a pcap or pcapng file from disk.
func ReadPCAPFile(ctx context.Context, path string, cfg PCAPConfig) (PCAPSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCAPSummary{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReadPCAP(ctx, f, cfg)
}

// ReadPCAP decodes a pcap or pcapng stream and hands every UDP payload on
// cfg.UDPPort to cfg.Handler in capture order. It stops at end of input,
// on context cancellation, or on the first handler error.
func ReadPCAP(ctx context.Context, r io.Reader, cfg PCAPConfig) (sum PCAPSummary, err error) {
	stats := orNoop(cfg.Stats)

	src, linkType, err := openCapture(r)
	if err != nil {
		return sum, err
	}
	packetSource := gopacket.NewPacketSource(src, linkType)
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	startTime := time.Now()
	var firstCapture time.Time
	defer func() { sum.Elapsed = time.Since(startTime) }()

	for {
		if err := ctx.Err(); err != nil {
			lidar.Opsf("PCAP reader stopping due to context cancellation (processed %d packets)", sum.Frames)
			return sum, err
		}

		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			lidar.Diagf("PCAP reading complete: %d frames, %d delivered in %v", sum.Frames, sum.Delivered, time.Since(startTime))
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("failed to read PCAP packet %d: %w", sum.Frames+1, err)
		}
		sum.Frames++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 || (cfg.UDPPort != 0 && int(udp.DstPort) != cfg.UDPPort) {
			sum.Skipped++
			continue
		}

		captured := packet.Metadata().Timestamp
		if cfg.SpeedMultiplier > 0 {
			if firstCapture.IsZero() {
				firstCapture = captured
			}
			if err := pace(ctx, startTime, captured.Sub(firstCapture), cfg.SpeedMultiplier); err != nil {
				return sum, err
			}
		}

		payload := udp.Payload
		if lidar.TraceEnabled() {
			lidar.Tracef("PCAP frame %d: %d bytes %d->%d at %s",
				sum.Frames, len(payload), udp.SrcPort, udp.DstPort, captured.Format("15:04:05.000000"))
		}
		stats.AddPacket(len(payload))
		if cfg.Forwarder != nil {
			cfg.Forwarder.ForwardAsync(payload)
		}
		if cfg.Handler != nil {
			if err := cfg.Handler.HandlePacket(payload, captured); err != nil {
				return sum, fmt.Errorf("PCAP packet %d: %w", sum.Frames, err)
			}
		}
		sum.Delivered++

		if cfg.LogInterval > 0 && sum.Frames%cfg.LogInterval == 0 {
			elapsed := time.Since(startTime)
			lidar.Diagf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
				sum.Frames, elapsed, float64(sum.Frames)/elapsed.Seconds())
		}
	}
}

// openCapture sniffs the file magic and opens a pcap or pcapng reader.
func openCapture(r io.Reader) (gopacket.PacketDataSource, layers.LinkType, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open pcapng stream: %w", err)
		}
		return ng, ng.LinkType(), nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open pcap stream: %w", err)
	}
	return pr, pr.LinkType(), nil
}

// pace sleeps until offset (scaled by speed) has passed since start.
func pace(ctx context.Context, start time.Time, offset time.Duration, speed float64) error {
	wait := time.Duration(float64(offset)/speed) - time.Since(start)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package network feeds raw sensor packets from live UDP sockets and pcap
// captures into a PacketHandler, and mirrors them to other listeners.
package network

import (
	"time"
)

// PacketHandler consumes one UDP payload. captured is the capture
// timestamp for replayed packets and the receive time for live ones.
// A non-nil error is fatal for the source feeding the handler.
type PacketHandler interface {
	HandlePacket(data []byte, captured time.Time) error
}

// HandlerFunc adapts a function to PacketHandler.
type HandlerFunc func(data []byte, captured time.Time) error

func (f HandlerFunc) HandlePacket(data []byte, captured time.Time) error { return f(data, captured) }

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	LogStats()
}

// noopStats is used when no stats collector is configured.
type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddDropped()   {}
func (noopStats) LogStats()     {}

func orNoop(s PacketStatsInterface) PacketStatsInterface {
	if s == nil {
		return noopStats{}
	}
	return s
}

package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

// maxDatagram covers every supported packet format with margin.
const maxDatagram = 16 * 1024

// UDPListenerConfig configures a live sensor listener.
type UDPListenerConfig struct {
	Address     string // host:port, e.g. ":2368"
	RcvBuf      int    // socket receive buffer in bytes; zero keeps the OS default
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Forwarder   *PacketForwarder
	Handler     PacketHandler
	// SocketFactory defaults to NetSocketFactory().
	SocketFactory UDPSocketFactory
}

// UDPListener receives sensor datagrams and hands each to a PacketHandler.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       PacketStatsInterface
	forwarder   *PacketForwarder
	handler     PacketHandler
	factory     UDPSocketFactory
	conn        UDPSocket
	now         func() time.Time
}

func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	factory := config.SocketFactory
	if factory == nil {
		factory = NetSocketFactory()
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       orNoop(config.Stats),
		forwarder:   config.Forwarder,
		handler:     config.Handler,
		factory:     factory,
		now:         time.Now,
	}
}

// Start listens until ctx is cancelled or the handler returns an error.
// Handler errors are returned wrapped; cancellation returns ctx.Err().
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			lidar.Opsf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	lidar.Opsf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			lidar.Opsf("UDP listener stopping due to context cancellation")
			return err
		}

		// The deadline bounds how long cancellation can go unnoticed.
		_ = conn.SetReadDeadline(l.now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			lidar.Opsf("UDP read error: %v", err)
			continue
		}

		if err := l.handlePacket(buffer[:n], l.now()); err != nil {
			return fmt.Errorf("packet from %v: %w", from, err)
		}
	}
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Report once shortly after startup, then on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket counts, forwards and dispatches one datagram. The buffer
// is reused for the next read, so the handler must not retain it.
func (l *UDPListener) handlePacket(packet []byte, received time.Time) error {
	l.stats.AddPacket(len(packet))
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}
	if l.handler == nil {
		return nil
	}
	return l.handler.HandlePacket(packet, received)
}

// Close closes the socket, unblocking a running Start.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

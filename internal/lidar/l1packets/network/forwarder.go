package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

const forwardQueueSize = 1000

// PacketForwarder mirrors raw sensor packets to another UDP address, so a
// vendor viewer can watch the same stream. Forwarding never blocks the
// receive path: packets are dropped when the queue is full.
type PacketForwarder struct {
	conn        net.Conn
	queue       chan []byte
	stats       PacketStatsInterface
	logInterval time.Duration
	address     string

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewPacketForwarder dials addr:port. stats may be nil.
func NewPacketForwarder(addr string, port int, stats PacketStatsInterface, logInterval time.Duration) (*PacketForwarder, error) {
	address := net.JoinHostPort(addr, fmt.Sprint(port))
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		queue:       make(chan []byte, forwardQueueSize),
		stats:       orNoop(stats),
		logInterval: logInterval,
		address:     address,
		done:        make(chan struct{}),
	}, nil
}

// Address is the destination host:port.
func (f *PacketForwarder) Address() string { return f.address }

// Start runs the send loop until ctx is cancelled or Close is called.
func (f *PacketForwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case pkt := <-f.queue:
				if _, err := f.conn.Write(pkt); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					lidar.Opsf("Dropped %d forwarded packets due to errors (latest: %v)", failed, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()
	lidar.Opsf("Forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet. The caller may reuse its buffer.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.queue <- append([]byte(nil), packet...):
	default:
		f.stats.AddDropped()
	}
}

// Close stops the send loop and closes the connection.
func (f *PacketForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
		err = f.conn.Close()
	})
	return err
}

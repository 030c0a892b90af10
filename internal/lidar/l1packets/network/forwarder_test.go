package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketForwarder_Forwards(t *testing.T) {
	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()
	port := sink.LocalAddr().(*net.UDPAddr).Port

	f, err := NewPacketForwarder("127.0.0.1", port, nil, time.Second)
	require.NoError(t, err)
	defer f.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	payload := []byte{0xFF, 0xEE, 0x01}
	f.ForwardAsync(payload)
	payload[2] = 0x02 // the forwarder owns a copy

	require.NoError(t, sink.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := sink.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xEE, 0x01}, buf[:n])
}

func TestPacketForwarder_DropsWhenFull(t *testing.T) {
	stats := &countingStats{}
	f, err := NewPacketForwarder("127.0.0.1", 9, stats, time.Second)
	require.NoError(t, err)
	defer f.Close()

	// Not started: nothing drains the queue.
	for i := 0; i < forwardQueueSize+3; i++ {
		f.ForwardAsync([]byte{byte(i)})
	}
	_, _, dropped := stats.snapshot()
	assert.Equal(t, 3, dropped)
}

func TestPacketForwarder_CloseIsIdempotent(t *testing.T) {
	f, err := NewPacketForwarder("127.0.0.1", 9, nil, 0)
	require.NoError(t, err)
	f.Start(context.Background())
	require.NoError(t, f.Close())
	assert.NoError(t, f.Close())
	f.ForwardAsync([]byte{1}) // no-op after close
	assert.Equal(t, "127.0.0.1:9", f.Address())
}

func TestNewPacketForwarder_BadAddress(t *testing.T) {
	_, err := NewPacketForwarder("no such host!", 2368, nil, time.Second)
	require.Error(t, err)
}

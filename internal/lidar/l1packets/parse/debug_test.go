package parse

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMalformedPacketTraced(t *testing.T) {
	var ops, trace bytes.Buffer
	SetLogWriters(&ops, &ops, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	_, err := NewVelodynePacket(make([]byte, 10))
	require.ErrorIs(t, err, ErrMalformedPacket)

	assert.True(t, strings.HasPrefix(trace.String(), "[parse] "), trace.String())
	assert.Contains(t, trace.String(), "dropping velodyne packet: 10 bytes, want 1206")
	assert.Zero(t, ops.Len())
}

func TestSetLogWriters_AllStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	opsf("ops %d", 1)
	diagf("diag %d", 2)
	tracef("trace %d", 3)

	for out, msg := range map[*bytes.Buffer]string{&ops: "ops 1", &diag: "diag 2", &trace: "trace 3"} {
		assert.True(t, strings.HasPrefix(out.String(), "[parse] "), out.String())
		assert.Contains(t, out.String(), msg)
	}
}

func TestSetLogWriters_NilDisablesTrace(t *testing.T) {
	var trace bytes.Buffer
	SetLogWriters(nil, nil, &trace)
	SetLogWriters(nil, nil, nil)

	_, err := NewOusterPacket(nil)
	require.Error(t, err)
	assert.Zero(t, trace.Len())
}

package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

func TestStreamLogsTaggedWithSensor(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	s, err := NewStream(StreamConfig{SensorID: "front", Model: lidar.ModelVLP16})
	require.NoError(t, err)
	_, err = s.ProcessPacket([]byte{1, 2, 3}, t0)
	require.Error(t, err)

	assert.True(t, strings.HasPrefix(diag.String(), "[pipeline] "), diag.String())
	assert.Contains(t, diag.String(), "[front] stream ready: model=vlp16")
	assert.True(t, strings.HasPrefix(trace.String(), "[pipeline] "), trace.String())
	assert.Contains(t, trace.String(), "[front] packet 1 skipped")
	assert.Zero(t, ops.Len())
}

func TestStreamLogsKeepPercentInSensorID(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	_, err := NewStream(StreamConfig{SensorID: "roof%d", Model: lidar.ModelVLP16})
	require.NoError(t, err)

	assert.Contains(t, diag.String(), "[roof%d] stream ready: model=vlp16 policy=")
	assert.NotContains(t, diag.String(), "%!")
}

func TestSetLogWriters_NilDisables(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, &buf, &buf)
	SetLogWriters(nil, nil, nil)

	s, err := NewStream(StreamConfig{Model: lidar.ModelVLP16})
	require.NoError(t, err)
	_, _ = s.ProcessPacket(nil, t0)
	assert.Zero(t, buf.Len())
}

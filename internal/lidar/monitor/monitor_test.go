package monitor

import (
	"bytes"
	"image/color"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
)

// ringFrame is a 4x90 frame of a circular wall 10 m away; row 3 sees nothing.
func ringFrame() *l2frames.Frame[lidar.Point] {
	const height, width = 4, 90
	f := &l2frames.Frame[lidar.Point]{ID: uuid.New(), Seq: 7, SensorID: "test", Height: height, Width: width}
	for col := 0; col < width; col++ {
		az := float64(col) * 4
		for row := 0; row < height; row++ {
			elev := 3 - 2*float64(row)
			d := 10.0
			if row == 3 {
				d = 0
			}
			f.Points = append(f.Points, lidar.Point{
				Position:     lidar.Project(d, az, elev, 0, 0),
				Distance:     d,
				Azimuth:      az,
				Elevation:    elev,
				Row:          row,
				Column:       col,
				Reflectivity: uint16(col),
			})
		}
	}
	return f
}

func TestPlotTopDown(t *testing.T) {
	fp, err := NewFramePlotter(t.TempDir())
	require.NoError(t, err)

	path, err := fp.PlotTopDown(ringFrame())
	require.NoError(t, err)
	assert.Contains(t, path, "test_frame0007_xy.png")
	assertPNG(t, path)

	empty := &l2frames.Frame[lidar.Point]{SensorID: "test", Height: 1, Width: 1, Points: []lidar.Point{{}}}
	_, err = fp.PlotTopDown(empty)
	require.Error(t, err)
}

func TestPlotRings(t *testing.T) {
	fp, err := NewFramePlotter(t.TempDir())
	require.NoError(t, err)

	path, err := fp.PlotRings(ringFrame(), []int{0, 2, 3})
	require.NoError(t, err)
	assertPNG(t, path)

	_, err = fp.PlotRings(ringFrame(), []int{4})
	require.Error(t, err)
	_, err = fp.PlotRings(ringFrame(), nil)
	require.Error(t, err)
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestRenderFrameHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFrameHTML(&buf, ringFrame(), 2))
	html := buf.String()
	assert.Contains(t, html, "LiDAR Frame")
	assert.Contains(t, html, "test frame 7")
	assert.Contains(t, html, "stride=2")
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.Equal(t, color.RGBA{R: 217, G: 38, B: 38, A: 255}, colors[0])
	assert.NotEqual(t, colors[0], colors[1])
}

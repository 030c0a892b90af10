package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
)

// FramePlotter writes PNG plots of single-return frames into one directory.
type FramePlotter struct {
	outputDir string
	size      vg.Length
}

func NewFramePlotter(outputDir string) (*FramePlotter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	return &FramePlotter{outputDir: outputDir, size: 8 * vg.Inch}, nil
}

func (fp *FramePlotter) path(f *l2frames.Frame[lidar.Point], kind string) string {
	return filepath.Join(fp.outputDir, fmt.Sprintf("%s_frame%04d_%s.png", f.SensorID, f.Seq, kind))
}

// PlotTopDown draws every return in the sensor's XY plane and returns the
// file written.
func (fp *FramePlotter) PlotTopDown(f *l2frames.Frame[lidar.Point]) (string, error) {
	xys := make(plotter.XYs, 0, len(f.Points))
	for _, p := range f.Points {
		if p.HasReturn() {
			xys = append(xys, plotter.XY{X: p.Position.X, Y: p.Position.Y})
		}
	}
	if len(xys) == 0 {
		return "", fmt.Errorf("frame %d has no returns", f.Seq)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s frame %d - %dx%d", f.SensorID, f.Seq, f.Height, f.Width)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return "", fmt.Errorf("failed to create scatter: %w", err)
	}
	s.GlyphStyle.Radius = vg.Points(0.6)
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(s)

	out := fp.path(f, "xy")
	if err := p.Save(fp.size, fp.size, out); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return out, nil
}

// PlotRings draws distance against azimuth for the given rows, one line
// per row. Rows outside the frame are rejected.
func (fp *FramePlotter) PlotRings(f *l2frames.Frame[lidar.Point], rows []int) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s frame %d - range by azimuth", f.SensorID, f.Seq)
	p.X.Label.Text = "Azimuth (deg)"
	p.Y.Label.Text = "Distance (m)"

	colors := generateColors(len(rows))
	for i, row := range rows {
		if row < 0 || row >= f.Height {
			return "", fmt.Errorf("row %d outside frame height %d", row, f.Height)
		}
		xys := make(plotter.XYs, 0, f.Width)
		for col := 0; col < f.Width; col++ {
			pt := f.At(row, col)
			if pt.HasReturn() {
				xys = append(xys, plotter.XY{X: pt.Azimuth, Y: pt.Distance})
			}
		}
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return "", fmt.Errorf("row %d: %w", row, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("row %d (%.1f°)", row, f.At(row, 0).Elevation), line)
	}

	out := fp.path(f, "rings")
	if err := p.Save(2*fp.size, fp.size*3/4, out); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return out, nil
}

// generateColors spreads n colours evenly around the hue circle.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		t -= math.Floor(t)
		var v float64
		switch {
		case t < 1.0/6.0:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3.0:
			v = p + (q-p)*(2.0/3.0-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(h + 1.0/3.0), conv(h), conv(h - 1.0/3.0)
}

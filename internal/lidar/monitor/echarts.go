package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderFrameHTML writes an interactive top-down scatter of a frame,
// coloured by reflectivity. Every stride-th return is kept.
func RenderFrameHTML(w io.Writer, f *l2frames.Frame[lidar.Point], stride int) error {
	if stride < 1 {
		stride = 1
	}
	data := make([]opts.ScatterData, 0, len(f.Points)/stride+1)
	pad := 1.0
	for i := 0; i < len(f.Points); i += stride {
		p := f.Points[i]
		if !p.HasReturn() {
			continue
		}
		pad = math.Max(pad, math.Max(math.Abs(p.Position.X), math.Abs(p.Position.Y)))
		data = append(data, opts.ScatterData{Value: []interface{}{p.Position.X, p.Position.Y, p.Reflectivity}})
	}
	pad = math.Ceil(pad)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR Frame", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s frame %d", f.SensorID, f.Seq), Subtitle: fmt.Sprintf("%dx%d points=%d stride=%d", f.Height, f.Width, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("returns", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter.Render(w)
}

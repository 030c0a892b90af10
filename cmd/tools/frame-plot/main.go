// Command frame-plot replays a capture up to one rotation frame and writes
// PNG plots of it, plus an optional interactive HTML scatter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/network"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
	"github.com/banshee-data/spinlidar/internal/lidar/monitor"
	"github.com/banshee-data/spinlidar/internal/lidar/pipeline"
)

type plotOptions struct {
	pcapFile    string
	udpPort     int
	model       lidar.Model
	policy      lidar.ReturnPolicy
	calibration string
	frame       int
	rows        []int
	outputDir   string
	html        bool
	stride      int
}

func main() {
	pcapFile := flag.String("pcap", "", "capture to replay (required)")
	udpPort := flag.Int("udp-port", 2368, "UDP destination port to keep (0 keeps all)")
	model := flag.String("model", "vlp16", "sensor model")
	policy := flag.String("return", "strongest", "return policy: last, strongest, dual or dynamic")
	calib := flag.String("calibration", "", "calibration: empty for built-in, embed:NAME, or a YAML params file")
	frame := flag.Int("frame", 1, "index of the frame to plot, counting from 0")
	rows := flag.String("rows", "0,7,15", "comma-separated rows for the range plot")
	outputDir := flag.String("o", "plots", "output directory")
	html := flag.Bool("html", false, "also write an interactive HTML scatter")
	stride := flag.Int("stride", 4, "keep every Nth point in the HTML scatter")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}
	opts := plotOptions{
		pcapFile:    *pcapFile,
		udpPort:     *udpPort,
		calibration: *calib,
		frame:       *frame,
		outputDir:   *outputDir,
		html:        *html,
		stride:      *stride,
	}
	var err error
	if opts.model, err = lidar.ParseModel(*model); err != nil {
		log.Fatal(err)
	}
	if opts.policy, err = lidar.ParseReturnPolicy(*policy); err != nil {
		log.Fatal(err)
	}
	if opts.rows, err = parseRows(*rows); err != nil {
		log.Fatal(err)
	}

	files, err := plotFrame(context.Background(), opts)
	if err != nil {
		log.Fatalf("frame-plot: %v", err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func parseRows(s string) ([]int, error) {
	var rows []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid row %q: %w", part, err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// plotFrame replays the capture until the requested frame completes and
// returns the paths written.
func plotFrame(ctx context.Context, o plotOptions) ([]string, error) {
	if o.frame < 0 {
		return nil, fmt.Errorf("frame index must be non-negative, got %d", o.frame)
	}
	table, err := calibration.Resolve(o.calibration, o.model)
	if err != nil {
		return nil, err
	}
	stream, err := pipeline.NewStream(pipeline.StreamConfig{Model: o.model, Policy: o.policy, Table: table})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var target *l2frames.Frame[lidar.Point]
	seen := 0
	src := pipeline.PCAPFileSource{Path: o.pcapFile, Config: network.PCAPConfig{UDPPort: o.udpPort}}
	err = stream.Run(ctx, src, func(r pipeline.Result) {
		if target != nil {
			return
		}
		if seen == o.frame {
			target = singleView(r)
			cancel()
		}
		seen++
	})
	if target == nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("capture has %d frames, frame %d not reached", seen, o.frame)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	plotter, err := monitor.NewFramePlotter(o.outputDir)
	if err != nil {
		return nil, err
	}
	xy, err := plotter.PlotTopDown(target)
	if err != nil {
		return nil, err
	}
	rings, err := plotter.PlotRings(target, o.rows)
	if err != nil {
		return nil, err
	}
	files := []string{xy, rings}

	if o.html {
		path := filepath.Join(o.outputDir, fmt.Sprintf("%s_frame%04d.html", target.SensorID, target.Seq))
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		err = monitor.RenderFrameHTML(f, target, o.stride)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// singleView returns the frame as single returns; dual frames are plotted
// by their strongest echo.
func singleView(r pipeline.Result) *l2frames.Frame[lidar.Point] {
	if r.Single != nil {
		return r.Single
	}
	d := r.Dual
	f := &l2frames.Frame[lidar.Point]{ID: d.ID, Seq: d.Seq, SensorID: d.SensorID, Height: d.Height, Width: d.Width}
	f.Points = make([]lidar.Point, len(d.Points))
	for i, p := range d.Points {
		f.Points[i] = p.Strongest
	}
	return f
}

// Command gen-pcap writes a synthetic sensor capture: a wall at a fixed
// range with an optional closer object, seen by a sensor spinning at a
// constant rate.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/network"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
	"github.com/banshee-data/spinlidar/internal/lidar/synth"
)

type genOptions struct {
	model         lidar.Model
	mode          lidar.ReturnMode
	rpm           float64
	revolutions   float64
	wallRange     float64
	objectAzimuth float64 // centre of the object, degrees
	objectWidth   float64 // degrees; 0 disables the object
	objectRange   float64
	columns       int // Ouster columns per rotation
	port          int
	start         time.Time
}

func main() {
	output := flag.String("o", "synthetic.pcap", "output path")
	model := flag.String("model", "vlp16", "sensor model")
	mode := flag.String("return", "strongest", "Velodyne return mode: last, strongest or dual")
	rpm := flag.Float64("rpm", 600, "rotation rate")
	revs := flag.Float64("revs", 10, "number of rotations to write")
	wall := flag.Float64("range", 15, "wall distance in metres")
	objAz := flag.Float64("object-az", 90, "object centre azimuth in degrees")
	objWidth := flag.Float64("object-width", 10, "object width in degrees (0 disables)")
	objRange := flag.Float64("object-range", 5, "object distance in metres")
	columns := flag.Int("columns", 1024, "Ouster columns per rotation: 512, 1024 or 2048")
	port := flag.Int("port", parse.VELODYNE_DATA_PORT, "UDP destination port")
	start := flag.String("start", "", "first packet time, RFC 3339 (default now)")
	flag.Parse()

	opts := genOptions{
		rpm:           *rpm,
		revolutions:   *revs,
		wallRange:     *wall,
		objectAzimuth: *objAz,
		objectWidth:   *objWidth,
		objectRange:   *objRange,
		columns:       *columns,
		port:          *port,
		start:         time.Now().UTC(),
	}
	var err error
	if opts.model, err = lidar.ParseModel(*model); err != nil {
		log.Fatal(err)
	}
	if opts.mode, err = parseMode(*mode); err != nil {
		log.Fatal(err)
	}
	if *start != "" {
		if opts.start, err = time.Parse(time.RFC3339Nano, *start); err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	w := bufio.NewWriter(f)
	n, err := generate(w, opts)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	log.Printf("wrote %d packets to %s", n, *output)
}

func parseMode(s string) (lidar.ReturnMode, error) {
	switch s {
	case "last":
		return lidar.ReturnLast, nil
	case "strongest":
		return lidar.ReturnStrongest, nil
	case "dual":
		return lidar.ReturnDual, nil
	}
	return 0, fmt.Errorf("unknown return mode %q", s)
}

// scene returns a wall with an object in front of it.
func (o genOptions) scene() synth.RangeFunc {
	return func(_ int, az float64) float64 {
		d := math.Abs(az - o.objectAzimuth)
		d = math.Min(d, 360-d)
		if o.objectWidth > 0 && d <= o.objectWidth/2 {
			return o.objectRange
		}
		return o.wallRange
	}
}

// generate writes the capture and returns the number of packets.
func generate(w io.Writer, o genOptions) (int, error) {
	if o.rpm <= 0 || o.revolutions <= 0 {
		return 0, fmt.Errorf("rpm and revolutions must be positive")
	}
	pw, err := network.NewPCAPWriter(w, network.PCAPWriterConfig{DstPort: o.port})
	if err != nil {
		return 0, err
	}

	switch o.model.Family() {
	case lidar.FamilyVelodyne:
		g, err := synth.NewVelodyneGenerator(synth.VelodyneConfig{
			Model: o.model,
			Mode:  o.mode,
			RPM:   o.rpm,
			Start: o.start,
			Range: o.scene(),
			// The strongest echo of a dual pair comes from the wall.
			SecondRange: synth.Constant(o.wallRange),
		})
		if err != nil {
			return 0, err
		}
		step := o.rpm / 60 * 360 * parse.VELODYNE_FIRING_PERIOD_US * 1e-6
		if o.model.Channels() == 16 {
			step *= 2
		}
		packets := int(math.Ceil(o.revolutions * 360 / step / float64(g.CyclesPerPacket())))
		for i := 0; i < packets; i++ {
			data, ts := g.Next()
			if err := pw.WritePacket(data, ts); err != nil {
				return i, err
			}
		}
		return packets, nil

	case lidar.FamilyOuster:
		g := synth.NewOusterGenerator(synth.OusterConfig{
			ColumnsPerRev: o.columns,
			RPM:           o.rpm,
			Start:         o.start,
			Range:         o.scene(),
		})
		packets := int(math.Ceil(o.revolutions * float64(o.columns) / parse.OUSTER_COLUMNS_PER_PACKET))
		period := time.Duration(float64(time.Minute) / o.rpm / float64(o.columns) * parse.OUSTER_COLUMNS_PER_PACKET)
		ts := o.start
		for i := 0; i < packets; i++ {
			if err := pw.WritePacket(g.Next(), ts); err != nil {
				return i, err
			}
			ts = ts.Add(period)
		}
		return packets, nil
	}
	return 0, fmt.Errorf("unsupported sensor model %s", o.model)
}

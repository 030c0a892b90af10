// Command lidar assembles rotation frames from a Velodyne or Ouster sensor,
// either live over UDP or replayed from a pcap capture, and logs a summary
// of every frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/spinlidar/internal/config"
	"github.com/banshee-data/spinlidar/internal/lidar"
	"github.com/banshee-data/spinlidar/internal/lidar/calibration"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/network"
	"github.com/banshee-data/spinlidar/internal/lidar/l1packets/parse"
	"github.com/banshee-data/spinlidar/internal/lidar/l2frames"
	"github.com/banshee-data/spinlidar/internal/lidar/pipeline"
	"github.com/banshee-data/spinlidar/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a sensor config JSON file (see "+config.DefaultConfigPath+")")
	pcapFile     = flag.String("pcap", "", "Replay this pcap/pcapng file instead of listening on UDP")
	udpAddress   = flag.String("listen", ":2368", "UDP bind address for live packets")
	udpPort      = flag.Int("udp-port", 2368, "UDP destination port to keep when replaying a pcap (0 keeps all)")
	model        = flag.String("model", "vlp16", "Sensor model: vlp16, puck-lite, puck-hires, vlp32c or os1-64")
	returnPolicy = flag.String("return", "strongest", "Return policy: last, strongest, dual or dynamic")
	calib        = flag.String("calibration", "", "Calibration: empty for built-in, embed:NAME, or a YAML params file")
	sensorID     = flag.String("sensor-id", "lidar", "Sensor identifier used in logs and frames")
	forwardAddr  = flag.String("forward-addr", "", "Mirror raw packets to this address (empty disables)")
	forwardPort  = flag.Int("forward-port", 2369, "Port to mirror raw packets to")
	rcvBuf       = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	logInterval  = flag.Duration("log-interval", time.Minute, "Statistics logging interval")
	speed        = flag.Float64("speed", 0, "pcap replay speed multiplier (0 = as fast as possible)")
	verbose      = flag.Bool("v", false, "Enable diagnostic logging")
	trace        = flag.Bool("trace", false, "Enable per-packet and per-frame trace logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options is the resolved configuration for one run.
type options struct {
	sensorID    string
	model       lidar.Model
	policy      lidar.ReturnPolicy
	calibration string
	pcapFile    string
	udpAddress  string
	udpPort     int
	forwardAddr string
	forwardPort int
	rcvBuf      int
	logInterval time.Duration
	speed       float64
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("lidar"))
		return
	}

	opts, err := resolveOptions()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	setLogWriters(os.Stderr, *verbose, *trace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("lidar: %v", err)
	}
}

// resolveOptions layers explicitly set flags over the config file, which
// in turn overrides the flag defaults.
func resolveOptions() (options, error) {
	cfg := &config.SensorConfig{}
	if *configPath != "" {
		c, err := config.LoadSensorConfig(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = c
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	pick := func(name string, flagVal string, fileVal *string) string {
		if set[name] || fileVal == nil {
			return flagVal
		}
		return *fileVal
	}
	pickInt := func(name string, flagVal int, fileVal *int) int {
		if set[name] || fileVal == nil {
			return flagVal
		}
		return *fileVal
	}

	opts := options{
		sensorID:    pick("sensor-id", *sensorID, cfg.SensorID),
		calibration: pick("calibration", *calib, cfg.Calibration),
		pcapFile:    *pcapFile,
		udpAddress:  pick("listen", *udpAddress, cfg.UDPAddress),
		udpPort:     pickInt("udp-port", *udpPort, cfg.UDPPort),
		forwardAddr: pick("forward-addr", *forwardAddr, cfg.ForwardAddress),
		forwardPort: pickInt("forward-port", *forwardPort, cfg.ForwardPort),
		rcvBuf:      pickInt("rcvbuf", *rcvBuf, cfg.RcvBufBytes),
		logInterval: *logInterval,
		speed:       *speed,
	}
	if !set["log-interval"] && cfg.StatsInterval != nil {
		opts.logInterval = cfg.GetStatsInterval()
	}
	if !set["speed"] && cfg.PCAPSpeed != nil {
		opts.speed = cfg.GetPCAPSpeed()
	}

	var err error
	if opts.model, err = lidar.ParseModel(pick("model", *model, cfg.Model)); err != nil {
		return options{}, err
	}
	if opts.policy, err = lidar.ParseReturnPolicy(pick("return", *returnPolicy, cfg.ReturnPolicy)); err != nil {
		return options{}, err
	}
	if opts.speed < 0 {
		return options{}, fmt.Errorf("speed must be non-negative, got %g", opts.speed)
	}
	if opts.logInterval <= 0 {
		return options{}, fmt.Errorf("log-interval must be positive, got %s", opts.logInterval)
	}
	return opts, nil
}

// setLogWriters routes every package's ops stream to w, and the diag and
// trace streams when enabled.
func setLogWriters(w io.Writer, diag, trace bool) {
	var d, t io.Writer
	if diag {
		d = w
	}
	if trace {
		t = w
	}
	lidar.SetLogWriters(lidar.LogWriters{Ops: w, Diag: d, Trace: t})
	parse.SetLogWriters(w, d, t)
	l2frames.SetLogWriters(w, d, t)
	pipeline.SetLogWriters(w, d, t)
}

func run(ctx context.Context, opts options, out io.Writer) error {
	table, err := calibration.Resolve(opts.calibration, opts.model)
	if err != nil {
		return err
	}
	stats := lidar.NewPacketStats()
	stream, err := pipeline.NewStream(pipeline.StreamConfig{
		SensorID: opts.sensorID,
		Model:    opts.model,
		Policy:   opts.policy,
		Table:    table,
		Stats:    stats,
	})
	if err != nil {
		return err
	}
	var forwarder *network.PacketForwarder
	if opts.forwardAddr != "" {
		forwarder, err = network.NewPacketForwarder(opts.forwardAddr, opts.forwardPort, stats, opts.logInterval)
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	var src pipeline.PacketSource
	if opts.pcapFile != "" {
		if forwarder != nil {
			forwarder.Start(ctx)
		}
		src = pipeline.PCAPFileSource{Path: opts.pcapFile, Config: network.PCAPConfig{
			UDPPort:         opts.udpPort,
			Stats:           stats,
			Forwarder:       forwarder,
			SpeedMultiplier: opts.speed,
			LogInterval:     10000,
		}}
	} else {
		src = pipeline.UDPSource{Config: network.UDPListenerConfig{
			Address:     opts.udpAddress,
			RcvBuf:      opts.rcvBuf,
			LogInterval: opts.logInterval,
			Stats:       stats,
			Forwarder:   forwarder,
		}}
	}

	frames := 0
	err = stream.Run(ctx, src, func(r pipeline.Result) {
		frames++
		fmt.Fprintln(out, summarize(r))
	})
	stats.LogStats()
	lidar.Opsf("%s: %d frames", opts.sensorID, frames)
	return err
}

// summarize renders one line per frame.
func summarize(r pipeline.Result) string {
	switch {
	case r.Single != nil:
		f := r.Single
		first, last := f.Points[0], f.Points[len(f.Points)-1]
		return fmt.Sprintf("%s frame %d %s: %dx%d, %d returns, %.2f..%.2f°, %s",
			f.SensorID, f.Seq, f.ID, f.Height, f.Width, countReturns(f.Points),
			first.OriginalAzimuth, last.OriginalAzimuth, last.Timestamp.Sub(first.Timestamp))
	case r.Dual != nil:
		f := r.Dual
		lasts := make([]lidar.Point, len(f.Points))
		strongest := make([]lidar.Point, len(f.Points))
		for i, p := range f.Points {
			lasts[i], strongest[i] = p.Last, p.Strongest
		}
		return fmt.Sprintf("%s dual frame %d %s: %dx%d, %d last / %d strongest returns",
			f.SensorID, f.Seq, f.ID, f.Height, f.Width, countReturns(lasts), countReturns(strongest))
	}
	return ""
}

func countReturns(pts []lidar.Point) int {
	n := 0
	for _, p := range pts {
		if p.HasReturn() {
			n++
		}
	}
	return n
}

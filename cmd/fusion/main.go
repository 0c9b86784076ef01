// Command fusion runs a live overlay session: a capture device is the
// primary source and every other sensor annotates its frames with its most
// recent value. Press q then Enter to quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/utkarsh5026/fusepipe/config"
	"github.com/utkarsh5026/fusepipe/frame"
	"github.com/utkarsh5026/fusepipe/logging"
	"github.com/utkarsh5026/fusepipe/metrics"
	"github.com/utkarsh5026/fusepipe/pipeline"
	"github.com/utkarsh5026/fusepipe/sensor"
)

var (
	bold = color.New(color.Bold)
	red  = color.New(color.FgRed)
)

type options struct {
	duration time.Duration
	snapshot string
	redraw   time.Duration
}

func main() {
	var opts options
	cfg, err := config.Parse("fusion", os.Args[1:], func(fs *flag.FlagSet) {
		fs.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 = until q or interrupt)")
		fs.StringVar(&opts.snapshot, "snapshot", "", "write the last composed frame to this PNG file on exit")
		fs.DurationVar(&opts.redraw, "redraw", 100*time.Millisecond, "minimum interval between status line redraws")
	})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		_, _ = red.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		_, _ = red.Fprintln(os.Stderr, "fusion:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	log := cfg.Logger(os.Stderr)

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	collector, stopMetrics := serveMetrics(cfg.MetricsAddr, log)
	defer stopMetrics()

	sources, err := openSources(cfg, log)
	if err != nil {
		return err
	}

	var quit atomic.Bool
	go watchQuit(os.Stdin, &quit)

	sink := newTerminalSink(os.Stdout, &quit, opts.redraw, opts.snapshot)
	session, err := pipeline.NewFusion[sensor.Reading, frame.Composite](sources, frame.Compose, sink,
		pipeline.WithDisplayRate(cfg.FPS),
		pipeline.WithFusionLogger(log),
		pipeline.WithFusionMetrics(collector),
	)
	if err != nil {
		return err
	}

	_, _ = bold.Printf("Fusing %d sources at %.0f fps. Press q then Enter to quit.\n", len(sources), cfg.FPS)

	err = session.Run(ctx)
	printStats(sources, session.Stats())

	// A timed or interrupted session is a normal exit.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openSources opens the capture device as source 0, then the counters and
// the optional serial sensor.
func openSources(cfg *config.Config, log logging.Logger) ([]pipeline.NamedSource[sensor.Reading], error) {
	if cfg.Device != "pattern" {
		return nil, fmt.Errorf("no capture driver for %q: only the synthetic %q device is built in", cfg.Device, "pattern")
	}

	capture, err := sensor.OpenCapture(cfg.Device, cfg.FrameSize(), sensor.PatternOpener(cfg.PollInterval()))
	if err != nil {
		log.Error("failed to initialise camera", "device", cfg.Device, "error", err)
		return nil, err
	}

	sources := []pipeline.NamedSource[sensor.Reading]{{Name: "camera", Source: capture}}
	for i, d := range cfg.Counters {
		name := "counter-" + strconv.Itoa(i+1)
		sources = append(sources, pipeline.NamedSource[sensor.Reading]{Name: name, Source: sensor.NewCounter(name, d)})
	}

	if cfg.Serial.Path != "" {
		s, err := sensor.OpenSerial(cfg.Serial.Path, cfg.Serial.PortOptions)
		if err != nil {
			_ = capture.Close()
			return nil, err
		}
		sources = append(sources, pipeline.NamedSource[sensor.Reading]{Name: "serial", Source: s})
	}

	return sources, nil
}

// serveMetrics exposes a Prometheus endpoint when addr is set.
func serveMetrics(addr string, log logging.Logger) (metrics.Collector, func()) {
	if addr == "" {
		return metrics.NewNop(), func() {}
	}

	reg := prometheus.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return metrics.NewPrometheus(reg, ""), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printStats(sources []pipeline.NamedSource[sensor.Reading], stats pipeline.FusionStats) {
	fmt.Println()
	_, _ = bold.Println("Session summary")
	fmt.Printf("  ticks %d, emitted %d, skipped %d\n", stats.Ticks, stats.Emitted, stats.Skipped)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Index", "Source", "Dropped readings")
	for i, src := range sources {
		_ = table.Append(strconv.Itoa(i), src.Name, strconv.FormatUint(stats.Overwrites[i], 10))
	}
	_ = table.Render()
}

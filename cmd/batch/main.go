// Command batch converts a sequence of frames to grayscale, either on one
// goroutine or on a worker pool, and writes them back out in their original
// order. Frames come from a directory of PNG files or, without -input, from
// the synthetic capture device. Camera mode processes and writes each frame
// as soon as it is read, without batching.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/utkarsh5026/fusepipe/config"
	"github.com/utkarsh5026/fusepipe/frame"
	"github.com/utkarsh5026/fusepipe/pipeline"
	"github.com/utkarsh5026/fusepipe/sensor"
)

var (
	bold = color.New(color.Bold)
	red  = color.New(color.FgRed)
)

const framePrefix = "frame_"

type options struct {
	mode   string
	input  string
	output string
	frames int
}

type summary struct {
	mode    string
	workers int
	frames  int
	elapsed time.Duration
}

func main() {
	var opts options
	cfg, err := config.Parse("batch", os.Args[1:], func(fs *flag.FlagSet) {
		fs.StringVar(&opts.mode, "mode", "multi", "processing mode: single, multi or camera")
		fs.StringVar(&opts.input, "input", "", "directory of PNG frames (empty = synthetic frames)")
		fs.StringVar(&opts.output, "output", "out", "directory to write processed frames to")
		fs.IntVar(&opts.frames, "frames", 120, "number of synthetic frames when -input is empty")
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

	sum, err := run(ctx, cfg, opts)
	if err != nil {
		_, _ = red.Fprintln(os.Stderr, "batch:", err)
		os.Exit(1)
	}
	printSummary(sum)
}

func run(ctx context.Context, cfg *config.Config, opts options) (summary, error) {
	log := cfg.Logger(os.Stderr)

	r, total, err := openInput(cfg, opts)
	if err != nil {
		return summary{}, err
	}

	sink, err := frame.NewPNGSink[*image.Gray](opts.output, framePrefix)
	if err != nil {
		return summary{}, err
	}

	bar := makeProgressBar(total)
	defer bar.Finish()

	sum := summary{mode: opts.mode, workers: cfg.Workers}
	start := time.Now()

	switch opts.mode {
	case "single":
		sum.workers = 1
		err = runSingle(ctx, r, sink, func() { _ = bar.Add(1) })
	case "multi":
		pool := pipeline.NewWorkerPool[image.Image, *image.Gray](
			pipeline.WithWorkerCount(cfg.Workers),
			pipeline.WithQueueMultiplier(cfg.QueueMultiplier),
			pipeline.WithPoolLogger(log),
			pipeline.WithOnTaskEnd(func(int64, error) { _ = bar.Add(1) }),
		)
		err = pool.Run(ctx, r, frame.Grayscale, sink)
	case "camera":
		sum.workers = 1
		sum.frames, err = runLive(ctx, r, opts.output, func() { _ = bar.Add(1) })
	default:
		return summary{}, fmt.Errorf("unknown mode %q: expected single, multi or camera", opts.mode)
	}

	sum.elapsed = time.Since(start)
	if sum.mode != "camera" {
		sum.frames = sink.Written()
	}
	_ = bar.Finish()

	if err != nil {
		return sum, err
	}

	switch sum.mode {
	case "camera":
		fmt.Printf("Camera mode: %d frames at %.1f fps\n\n", sum.frames, float64(sum.frames)/sum.elapsed.Seconds())
	case "single":
		fmt.Printf("Single-thread time: %.2f seconds\n\n", sum.elapsed.Seconds())
	default:
		fmt.Printf("Multi-thread (%d threads) time: %.2f seconds\n\n", sum.workers, sum.elapsed.Seconds())
	}
	return sum, nil
}

// runSingle is the one-goroutine baseline: read, transform, collect, then
// write everything in one call like the pool does.
func runSingle(ctx context.Context, r pipeline.Reader[image.Image], sink pipeline.Sink[[]*image.Gray], progress func()) error {
	var out []*image.Gray
	for {
		img, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		gray, err := frame.Grayscale(ctx, img)
		if err != nil {
			return &pipeline.TransformError{Seq: int64(len(out)), Err: err}
		}
		out = append(out, gray)
		progress()
	}

	_, err := sink.Write(ctx, out)
	return err
}

// runLive transforms and writes every frame as soon as it is read, the way
// a live feed is handled. It returns the number of frames written.
func runLive(ctx context.Context, r pipeline.Reader[image.Image], dir string, progress func()) (int, error) {
	var n int
	for {
		img, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		gray, err := frame.Grayscale(ctx, img)
		if err != nil {
			return n, &pipeline.TransformError{Seq: int64(n), Err: err}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s%06d.png", framePrefix, n))
		if err := frame.WritePNG(path, gray); err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}
		n++
		progress()
	}
}

// openInput returns the frame reader and the expected frame count.
func openInput(cfg *config.Config, opts options) (pipeline.Reader[image.Image], int, error) {
	if opts.input != "" {
		r, err := frame.NewDirReader(opts.input)
		if err != nil {
			return nil, 0, err
		}
		return r, r.Len(), nil
	}

	capture, err := sensor.OpenCapture(cfg.Device, cfg.FrameSize(), sensor.PatternOpener(0))
	if err != nil {
		return nil, 0, err
	}
	src := pipeline.SourceFunc[image.Image](func(ctx context.Context) (image.Image, error) {
		rd, err := capture.Get(ctx)
		if err != nil {
			return nil, err
		}
		return rd.Frame, nil
	})
	return frame.Limit(src, opts.frames), opts.frames, nil
}

func makeProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Processing frames"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(s summary) {
	_, _ = bold.Println("Batch summary")

	fps := 0.0
	if s.elapsed > 0 {
		fps = float64(s.frames) / s.elapsed.Seconds()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Mode", "Workers", "Frames", "Time", "Frames/sec")
	_ = table.Append(
		s.mode,
		strconv.Itoa(s.workers),
		strconv.Itoa(s.frames),
		s.elapsed.Round(time.Millisecond).String(),
		fmt.Sprintf("%.1f", fps),
	)
	_ = table.Render()
}

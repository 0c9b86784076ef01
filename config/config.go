// Package config holds the settings shared by the fusepipe binaries. Values
// come from defaults, then an optional JSON file, then command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/utkarsh5026/fusepipe/pipeline"
	"github.com/utkarsh5026/fusepipe/sensor"
)

const maxFileSize = 1 << 20

// Config is the runtime configuration.
type Config struct {
	// Device is the capture device, or "pattern" for synthetic frames.
	Device string `json:"device"`
	// Size is the frame size as WIDTHxHEIGHT.
	Size string `json:"size"`
	// FPS is the display rate of the overlay session.
	FPS float64 `json:"fps"`

	Workers         int `json:"workers"`
	QueueMultiplier int `json:"queue_multiplier"`

	// Counters are the tick intervals of the synthetic counter sensors.
	Counters Durations `json:"counters"`

	Serial SerialConfig `json:"serial"`

	LogLevel    string `json:"log_level"`
	MetricsAddr string `json:"metrics_addr"`
}

// SerialConfig enables an optional serial sensor.
type SerialConfig struct {
	Path string `json:"path"`
	sensor.PortOptions
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device:          "pattern",
		Size:            "1920x1080",
		FPS:             pipeline.DefaultDisplayRate,
		Workers:         pipeline.DefaultWorkerCount,
		QueueMultiplier: pipeline.DefaultQueueMultiplier,
		Counters:        Durations{10 * time.Millisecond, 100 * time.Millisecond, time.Second},
		LogLevel:        "info",
	}
}

// Load reads a JSON file over the defaults. Fields omitted from the file
// keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds the configuration of a binary from its arguments. A
// -config file, when given, is loaded first and the remaining flags
// override it. extra registers the binary's own flags; it is called once
// per flag set, so it must only bind variables.
func Parse(name string, args []string, extra func(*flag.FlagSet)) (*Config, error) {
	pre := flag.NewFlagSet(name, flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	path := pre.String("config", "", "")
	Default().RegisterFlags(pre)
	if extra != nil {
		extra(pre)
	}
	if err := pre.Parse(args); err != nil && !errors.Is(err, flag.ErrHelp) {
		return nil, err
	}

	cfg := Default()
	if *path != "" {
		loaded, err := Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", *path, "optional JSON configuration file")
	cfg.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterFlags binds the configuration to fs. Flags override whatever
// the struct holds when fs is parsed.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Device, "camera", c.Device, `capture device, or "pattern" for synthetic frames`)
	fs.StringVar(&c.Size, "size", c.Size, "frame size WIDTHxHEIGHT")
	fs.Float64Var(&c.FPS, "fps", c.FPS, "display rate in frames per second (0 = as fast as possible)")
	fs.IntVar(&c.Workers, "workers", c.Workers, "number of batch workers (1 = single-threaded baseline)")
	fs.IntVar(&c.QueueMultiplier, "queue-multiplier", c.QueueMultiplier, "task queue capacity as a multiple of workers")
	fs.Var(&c.Counters, "counters", "comma-separated counter sensor intervals, e.g. 10ms,100ms,1s")
	fs.StringVar(&c.Serial.Path, "serial", c.Serial.Path, "serial sensor device path (empty = disabled)")
	fs.IntVar(&c.Serial.BaudRate, "baud", c.Serial.BaudRate, "serial baud rate (0 = 19200)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve Prometheus metrics on (empty = disabled)")
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Device == "" {
		errs = append(errs, errors.New("device must not be empty"))
	}
	if _, err := ParseSize(c.Size); err != nil {
		errs = append(errs, err)
	}
	if c.FPS < 0 {
		errs = append(errs, fmt.Errorf("fps must be non-negative, got %v", c.FPS))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.QueueMultiplier < 1 {
		errs = append(errs, fmt.Errorf("queue_multiplier must be at least 1, got %d", c.QueueMultiplier))
	}
	for i, d := range c.Counters {
		if d < 0 {
			errs = append(errs, fmt.Errorf("counter %d interval must be non-negative, got %v", i, d))
		}
	}
	if c.Serial.Path != "" {
		if _, err := c.Serial.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("serial: %w", err))
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrInvalidConfig, err)
	}
	return nil
}

// FrameSize returns the parsed frame size. Call Validate first.
func (c *Config) FrameSize() image.Point {
	p, _ := ParseSize(c.Size)
	return p
}

// PollInterval is one display frame period, the longest a fusion tick may
// wait. It falls back to the pool default when FPS is not positive.
func (c *Config) PollInterval() time.Duration {
	if c.FPS <= 0 {
		return pipeline.DefaultPollInterval
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(s string) (image.Point, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("invalid size %q: expected WIDTHxHEIGHT", s)
	}

	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return image.Point{}, fmt.Errorf("invalid size %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return image.Point{}, fmt.Errorf("invalid size %q: bad height", s)
	}

	return image.Pt(width, height), nil
}

package sensor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

// ErrDeviceClosed is returned by reads on a released capture device.
var ErrDeviceClosed = errors.New("capture device closed")

// Grabber is a frame source driver. Grab fills dst with the next frame,
// blocking until one is available.
type Grabber interface {
	Grab(ctx context.Context, dst *image.RGBA) error
	Close() error
}

// Opener opens device at the requested frame size.
type Opener func(device string, size image.Point) (Grabber, error)

// Capture is a live frame source. Each Get returns a freshly allocated
// frame so downstream stages may keep it after the next read.
type Capture struct {
	name    string
	size    image.Point
	grabber Grabber
	seq     uint64
}

// OpenCapture opens device through open. A failure here means the session
// cannot start.
func OpenCapture(device string, size image.Point, open Opener) (*Capture, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("capture %s: invalid frame size %v", device, size)
	}

	g, err := open(device, size)
	if err != nil {
		return nil, fmt.Errorf("capture %s: open: %w", device, err)
	}

	return &Capture{name: device, size: size, grabber: g}, nil
}

// Name returns the device name.
func (c *Capture) Name() string { return c.name }

// Get grabs one frame.
func (c *Capture) Get(ctx context.Context) (Reading, error) {
	dst := image.NewRGBA(image.Rectangle{Max: c.size})
	if err := c.grabber.Grab(ctx, dst); err != nil {
		return Reading{}, fmt.Errorf("capture %s: read: %w", c.name, err)
	}

	c.seq++
	return Reading{Sensor: c.name, Seq: c.seq, At: time.Now(), Frame: dst}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	return c.grabber.Close()
}

// Pattern is a Grabber that renders moving colour bars at a fixed frame
// interval. It stands in for a camera when none is attached.
type Pattern struct {
	interval time.Duration
	n        int
	closed   bool
}

// PatternOpener returns an Opener producing Pattern grabbers that deliver
// one frame per interval.
func PatternOpener(interval time.Duration) Opener {
	return func(string, image.Point) (Grabber, error) {
		return &Pattern{interval: interval}, nil
	}
}

var patternBars = []color.RGBA{
	{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0xc0, A: 0xff},
	{G: 0xc0, B: 0xc0, A: 0xff},
	{G: 0xc0, A: 0xff},
	{R: 0xc0, B: 0xc0, A: 0xff},
	{R: 0xc0, A: 0xff},
	{B: 0xc0, A: 0xff},
}

// Grab renders the next frame, shifting the bars by frame count.
func (p *Pattern) Grab(ctx context.Context, dst *image.RGBA) error {
	if p.closed {
		return ErrDeviceClosed
	}

	if p.interval > 0 {
		t := time.NewTimer(p.interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	b := dst.Bounds()
	barWidth := max(b.Dx()/len(patternBars), 1)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			bar := ((x + p.n) / barWidth) % len(patternBars)
			dst.SetRGBA(x, y, patternBars[bar])
		}
	}
	p.n++
	return nil
}

// Close marks the grabber released.
func (p *Pattern) Close() error {
	p.closed = true
	return nil
}

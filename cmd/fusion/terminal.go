package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/utkarsh5026/fusepipe/frame"
	"github.com/utkarsh5026/fusepipe/pipeline"
)

var (
	labelColor = color.New(color.FgGreen)
	frameColor = color.New(color.FgCyan, color.Bold)
)

// terminalSink shows the overlay labels of the newest composite on a single
// status line and keeps the last frame for an optional PNG snapshot.
type terminalSink struct {
	w        io.Writer
	quit     *atomic.Bool
	every    time.Duration
	snapshot string

	lastDraw time.Time
	last     frame.Composite
}

func newTerminalSink(w io.Writer, quit *atomic.Bool, every time.Duration, snapshot string) *terminalSink {
	return &terminalSink{w: w, quit: quit, every: every, snapshot: snapshot}
}

// Write redraws the status line at most once per s.every and reports Quit
// once the user asked for it.
func (s *terminalSink) Write(_ context.Context, c frame.Composite) (pipeline.ControlSignal, error) {
	s.last = c

	if now := time.Now(); now.Sub(s.lastDraw) >= s.every {
		s.lastDraw = now
		if _, err := fmt.Fprint(s.w, "\r\033[K"+s.render(c)); err != nil {
			return pipeline.Quit, err
		}
	}

	if s.quit.Load() {
		return pipeline.Quit, nil
	}
	return pipeline.Continue, nil
}

func (s *terminalSink) render(c frame.Composite) string {
	parts := []string{frameColor.Sprintf("frame %d", c.Seq)}
	for _, l := range c.Labels {
		parts = append(parts, labelColor.Sprint(l.Text))
	}
	return strings.Join(parts, " | ")
}

// Close ends the status line and writes the snapshot.
func (s *terminalSink) Close() error {
	fmt.Fprintln(s.w)
	if s.snapshot == "" || s.last.Frame == nil {
		return nil
	}
	if err := frame.WritePNG(s.snapshot, s.last.Frame); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// watchQuit sets quit when a line starting with 'q' is read from r.
func watchQuit(r io.Reader, quit *atomic.Bool) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 && (buf[0] == 'q' || buf[0] == 'Q') {
			quit.Store(true)
			return
		}
		if err != nil {
			return
		}
	}
}

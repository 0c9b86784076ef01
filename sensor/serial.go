package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds a single port read so a reader blocked on a
// silent device still notices cancellation.
const DefaultReadTimeout = 100 * time.Millisecond

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 19200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch p := strings.TrimSpace(strings.ToUpper(opts.Parity)); p {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into the mode used to open the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	return mode, nil
}

// Serial reads newline-delimited readings from a serial device. A line is
// either a bare number or the radar CSV "uptime,magnitude,speed", in which
// case the speed is reported. JSON status lines and malformed lines are
// skipped.
type Serial struct {
	name    string
	port    io.ReadCloser
	reader  *ctxReader
	scanner *bufio.Scanner
	seq     uint64
	skipped uint64
}

// OpenSerial opens the port at path.
func OpenSerial(path string, opts PortOptions) (*Serial, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serial %s: %w", path, err)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial %s: open: %w", path, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial %s: set read timeout: %w", path, err)
	}

	return NewSerial(path, port), nil
}

// NewSerial reads from an already opened port. A read that returns no data
// and no error is treated as a timeout and retried.
func NewSerial(name string, port io.ReadCloser) *Serial {
	r := &ctxReader{r: port, ctx: context.Background()}
	return &Serial{
		name:    name,
		port:    port,
		reader:  r,
		scanner: bufio.NewScanner(r),
	}
}

// Name returns the device name.
func (s *Serial) Name() string { return s.name }

// Skipped returns how many lines were ignored so far.
func (s *Serial) Skipped() uint64 { return s.skipped }

// Get blocks until the next parseable line. The end of the stream is an
// error: the device is gone.
func (s *Serial) Get(ctx context.Context) (Reading, error) {
	s.reader.ctx = ctx

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "{") {
			s.skipped++
			continue
		}

		v, err := ParseLine(line)
		if err != nil {
			s.skipped++
			continue
		}

		s.seq++
		return Reading{Sensor: s.name, Seq: s.seq, At: time.Now(), Value: v}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return Reading{}, fmt.Errorf("serial %s: %w", s.name, err)
	}
	return Reading{}, fmt.Errorf("serial %s: %w", s.name, io.ErrUnexpectedEOF)
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// ParseLine extracts the reported value from one serial line.
func ParseLine(line string) (float64, error) {
	segments := strings.Split(line, ",")
	switch len(segments) {
	case 1:
		v, err := strconv.ParseFloat(strings.TrimSpace(segments[0]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse value: %w", err)
		}
		return v, nil
	case 3:
		for i, name := range []string{"uptime", "magnitude"} {
			if _, err := strconv.ParseFloat(strings.TrimSpace(segments[i]), 64); err != nil {
				return 0, fmt.Errorf("parse %s: %w", name, err)
			}
		}
		speed, err := strconv.ParseFloat(strings.TrimSpace(segments[2]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse speed: %w", err)
		}
		return speed, nil
	default:
		return 0, errors.New("expected a number or uptime,magnitude,speed")
	}
}

// ctxReader turns timed-out port reads into cancellation checks.
type ctxReader struct {
	r   io.Reader
	ctx context.Context
}

func (c *ctxReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

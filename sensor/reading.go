// Package sensor provides the data sources of the live overlay demo: timed
// counters, a frame capture device and a line-oriented serial sensor. Every
// type implements pipeline.Source[Reading].
package sensor

import (
	"image"
	"strconv"
	"time"
)

// Reading is one value produced by a sensor. Frame is set only by capture
// devices; scalar sensors leave it nil and report Value.
type Reading struct {
	Sensor string
	Seq    uint64
	At     time.Time
	Value  float64
	Frame  *image.RGBA
}

// String formats the scalar value without trailing zeros, so counter
// readings print as integers.
func (r Reading) String() string {
	if r.Frame != nil {
		b := r.Frame.Bounds()
		return "frame " + strconv.FormatUint(r.Seq, 10) + " " + strconv.Itoa(b.Dx()) + "x" + strconv.Itoa(b.Dy())
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

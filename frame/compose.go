// Package frame turns sensor readings into annotated frames and writes
// them out. It supplies the composer of the live overlay session and the
// transform and sink of the batch run.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/utkarsh5026/fusepipe/pipeline"
	"github.com/utkarsh5026/fusepipe/sensor"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LineHeight is the vertical distance between overlay rows, in pixels.
const LineHeight = 30

// TextColor is the overlay colour.
var TextColor = color.RGBA{G: 0xff, A: 0xff}

// Label is one overlay row. Row 1 is drawn at y = LineHeight.
type Label struct {
	Row  int
	Text string
}

// Composite is the output unit of the overlay session.
type Composite struct {
	Seq    uint64
	Frame  *image.RGBA
	Labels []Label
}

// Compose annotates a copy of the primary frame with one "Sensor i: v"
// row per secondary source that has produced, placed on row i. The
// primary's frame is left untouched so it can be composed again on the
// next tick.
func Compose(primary sensor.Reading, others []pipeline.Latest[sensor.Reading]) Composite {
	labels := make([]Label, 0, len(others))
	for _, o := range others {
		if !o.OK {
			continue
		}
		labels = append(labels, Label{Row: o.Index, Text: fmt.Sprintf("Sensor %d: %s", o.Index, o.Value)})
	}

	out := Composite{Seq: primary.Seq, Labels: labels}
	if primary.Frame != nil {
		out.Frame = Clone(primary.Frame)
		Annotate(out.Frame, labels)
	}
	return out
}

// Annotate draws labels onto dst at x = 10, y = LineHeight·Row.
func Annotate(dst draw.Image, labels []Label) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(TextColor),
		Face: basicfont.Face7x13,
	}

	origin := dst.Bounds().Min
	for _, l := range labels {
		d.Dot = fixed.P(origin.X+10, origin.Y+LineHeight*l.Row)
		d.DrawString(l.Text)
	}
}

// Clone returns a deep copy of src.
func Clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/utkarsh5026/fusepipe/pipeline"
)

// ErrMissingFrame is returned by PNGSink when a batch holds no image for a
// sequence number, as left behind by a failed transform.
var ErrMissingFrame = errors.New("missing frame")

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return png.Encode(f, img)
}

// PNGSink writes an ordered batch of frames as dir/<prefix>000000.png,
// dir/<prefix>000001.png, ... It is the terminal stage of a batch run.
type PNGSink[I image.Image] struct {
	Dir    string
	Prefix string

	written int
}

var _ pipeline.Sink[[]image.Image] = (*PNGSink[image.Image])(nil)

// NewPNGSink creates dir if needed.
func NewPNGSink[I image.Image](dir, prefix string) (*PNGSink[I], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("png sink: %w", err)
	}
	return &PNGSink[I]{Dir: dir, Prefix: prefix}, nil
}

// Write encodes frames in order.
func (s *PNGSink[I]) Write(ctx context.Context, frames []I) (pipeline.ControlSignal, error) {
	for i, img := range frames {
		if err := ctx.Err(); err != nil {
			return pipeline.Quit, err
		}
		if isNil(img) {
			return pipeline.Quit, fmt.Errorf("png sink: frame %d: %w", i, ErrMissingFrame)
		}
		path := filepath.Join(s.Dir, fmt.Sprintf("%s%06d.png", s.Prefix, i))
		if err := WritePNG(path, img); err != nil {
			return pipeline.Quit, fmt.Errorf("png sink: frame %d: %w", i, err)
		}
		s.written++
	}
	return pipeline.Continue, nil
}

func isNil(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Written returns how many frames were encoded.
func (s *PNGSink[I]) Written() int { return s.written }

// DirReader yields the PNG files of a directory in lexical order, the
// order a frame dump is usually named in.
type DirReader struct {
	paths []string
	pos   int
}

var _ pipeline.Reader[image.Image] = (*DirReader)(nil)

// NewDirReader lists dir.
func NewDirReader(dir string) (*DirReader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)

	return &DirReader{paths: paths}, nil
}

// Len returns the number of frames found.
func (r *DirReader) Len() int { return len(r.paths) }

// Next decodes the next frame or returns io.EOF.
func (r *DirReader) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.paths) {
		return nil, io.EOF
	}

	path := r.paths[r.pos]
	r.pos++

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// SourceReader adapts a pipeline source to a Reader that stops after n
// reads, so a capture device can feed a batch run.
type SourceReader struct {
	src  pipeline.Source[image.Image]
	left int
}

// Limit returns a Reader over the first n values of src.
func Limit(src pipeline.Source[image.Image], n int) *SourceReader {
	return &SourceReader{src: src, left: n}
}

// Next returns the next value or io.EOF once n values were read.
func (r *SourceReader) Next(ctx context.Context) (image.Image, error) {
	if r.left <= 0 {
		return nil, io.EOF
	}
	img, err := r.src.Get(ctx)
	if err != nil {
		return nil, err
	}
	r.left--
	return img, nil
}

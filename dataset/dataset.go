// Package dataset reads labeled detection datasets and streams decoded
// samples with their ground-truth boxes.
package dataset

import (
	"context"
	"image"
	"io"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidSplit is returned for split strings that do not parse.
	ErrInvalidSplit = errors.New("invalid split")
	// ErrNoImages is returned when a dataset has no entries for a split.
	ErrNoImages = errors.New("no images in split")
)

// Sample is one decoded image and its annotations.
type Sample struct {
	// ID identifies the image within the dataset.
	ID string
	// Path is the image file on disk.
	Path string
	// Image is the decoded image, resized to the loader's size.
	Image image.Image
	// Boxes are the valid ground-truth boxes, normalized to [0,1].
	Boxes []images.Box
	// Classes are parallel to Boxes.
	Classes []int
}

// Source yields samples in a fixed order.
type Source interface {
	// Next returns the next sample, or io.EOF when the source is exhausted.
	Next(ctx context.Context) (*Sample, error)
	// Len returns the total number of samples the source yields.
	Len() int
}

type limited struct {
	src  Source
	n    int
	seen int
}

// Take limits src to at most n samples. A non-positive n leaves src unchanged.
func Take(src Source, n int) Source {
	if n <= 0 {
		return src
	}
	return &limited{src: src, n: n}
}

func (l *limited) Next(ctx context.Context) (*Sample, error) {
	if l.seen >= l.n {
		return nil, io.EOF
	}
	s, err := l.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	l.seen++
	return s, nil
}

func (l *limited) Len() int {
	return min(l.n, l.src.Len())
}

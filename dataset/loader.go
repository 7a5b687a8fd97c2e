package dataset

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of images decoded concurrently.
const DefaultWorkers = 4

// Options configures Open.
type Options struct {
	// Path is a manifest file (.yaml, .yml, .json) or a Pascal VOC directory.
	Path string
	// Split selects the images, e.g. "validation[:50]".
	Split string
	// Size resizes images to Size x Size; 0 keeps the original size.
	Size int
	// Workers bounds concurrent decoding; 0 selects DefaultWorkers.
	Workers int
}

// Loader decodes manifest entries into samples. Up to Workers images are
// decoded concurrently; samples are returned in manifest order.
type Loader struct {
	manifest *Manifest
	entries  []Entry
	size     int
	workers  int
	logger   golog.Logger

	next    int
	pending []*Sample
}

// Open resolves opts.Path and opts.Split into a Loader.
func Open(opts Options, logger golog.Logger) (*Loader, error) {
	split, err := ParseSplit(opts.Split)
	if err != nil {
		return nil, err
	}

	var m *Manifest
	if IsVOC(opts.Path) {
		m, err = LoadVOC(opts.Path, split.Name)
	} else {
		m, err = LoadManifest(opts.Path)
	}
	if err != nil {
		return nil, err
	}

	entries := m.Select(split)
	if len(entries) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "%s in %s", split, opts.Path)
	}

	logger.Debugw("opened dataset", "path", opts.Path, "split", split.String(), "images", len(entries))
	return NewLoader(m, entries, opts.Size, opts.Workers, logger), nil
}

// NewLoader creates a loader over entries of m.
func NewLoader(m *Manifest, entries []Entry, size, workers int, logger golog.Logger) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Loader{
		manifest: m,
		entries:  entries,
		size:     size,
		workers:  workers,
		logger:   logger,
	}
}

// Len returns the number of samples in the loader.
func (l *Loader) Len() int {
	return len(l.entries)
}

// Next returns the next sample, decoding a batch of Workers images when the
// buffer is empty.
func (l *Loader) Next(ctx context.Context) (*Sample, error) {
	if len(l.pending) == 0 {
		if l.next >= len(l.entries) {
			return nil, io.EOF
		}
		if err := l.fill(ctx); err != nil {
			return nil, err
		}
	}

	s := l.pending[0]
	l.pending = l.pending[1:]
	return s, nil
}

func (l *Loader) fill(ctx context.Context) error {
	batch := l.entries[l.next:min(l.next+l.workers, len(l.entries))]
	samples := make([]*Sample, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	for i, entry := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := l.decode(entry)
			if err != nil {
				return err
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	l.next += len(batch)
	l.pending = samples
	return nil
}

func (l *Loader) decode(e Entry) (*Sample, error) {
	path := l.manifest.Path(e)
	img, err := images.Load(path, l.size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", e.ID)
	}

	boxes, classes := groundTruth(e)
	if dropped := len(e.Objects) - len(boxes); dropped > 0 {
		l.logger.Debugw("dropped degenerate boxes", "id", e.ID, "count", dropped)
	}

	id := e.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &Sample{
		ID:      id,
		Path:    path,
		Image:   img,
		Boxes:   boxes,
		Classes: classes,
	}, nil
}

package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Object is one annotated box in normalized ymin, xmin, ymax, xmax order.
type Object struct {
	YMin  float64 `json:"ymin" yaml:"ymin"`
	XMin  float64 `json:"xmin" yaml:"xmin"`
	YMax  float64 `json:"ymax" yaml:"ymax"`
	XMax  float64 `json:"xmax" yaml:"xmax"`
	Label int     `json:"label" yaml:"label"`
	// Name is informational; Label is what detectors and reports use.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Box returns the object's box.
func (o Object) Box() images.Box {
	return images.Box{YMin: o.YMin, XMin: o.XMin, YMax: o.YMax, XMax: o.XMax}
}

// Entry is one image of a manifest.
type Entry struct {
	ID string `json:"id" yaml:"id"`
	// File is relative to the manifest directory unless absolute.
	File   string `json:"file" yaml:"file"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
	// Split restricts the entry to one named split; empty belongs to all.
	Split   string   `json:"split,omitempty" yaml:"split,omitempty"`
	Objects []Object `json:"objects" yaml:"objects"`
}

// Manifest lists the images of a dataset.
type Manifest struct {
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Images []Entry `json:"images" yaml:"images"`

	// dir resolves relative entry files.
	dir string
}

// LoadManifest reads a YAML (.yaml, .yml) or JSON manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		return nil, errors.Errorf("unsupported manifest extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}

	m.dir = filepath.Dir(path)
	return &m, nil
}

// SaveManifest writes m as YAML or JSON, chosen by extension.
func SaveManifest(path string, m *Manifest) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(m)
	case ".json":
		data, err = json.MarshalIndent(m, "", "  ")
	default:
		return errors.Errorf("unsupported manifest extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode manifest")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write manifest")
}

// Select returns the entries of a split, sliced by its bounds.
func (m *Manifest) Select(split Split) []Entry {
	entries := lo.Filter(m.Images, func(e Entry, _ int) bool {
		return e.Split == "" || e.Split == split.Name
	})
	start, end := split.Bounds(len(entries))
	return entries[start:end]
}

// Path resolves an entry's image file.
func (m *Manifest) Path(e Entry) string {
	if filepath.IsAbs(e.File) || m.dir == "" {
		return e.File
	}
	return filepath.Join(m.dir, e.File)
}

// groundTruth returns the entry's valid boxes and their labels. Degenerate
// boxes, such as batch padding, are dropped.
func groundTruth(e Entry) ([]images.Box, []int) {
	valid := lo.Filter(e.Objects, func(o Object, _ int) bool {
		return o.Box().Valid()
	})
	boxes := lo.Map(valid, func(o Object, _ int) images.Box { return o.Box() })
	classes := lo.Map(valid, func(o Object, _ int) int { return o.Label })
	return boxes, classes
}

package detector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Prediction is the stored output for one image.
type Prediction struct {
	ID         string               `json:"id" yaml:"id"`
	Detections []postprocess.Result `json:"detections" yaml:"detections"`
}

// PredictionFile is the on-disk format served by the replay detector.
type PredictionFile struct {
	Model       string       `json:"model,omitempty" yaml:"model,omitempty"`
	Predictions []Prediction `json:"predictions" yaml:"predictions"`
}

// LoadPredictions reads a YAML (.yaml, .yml) or JSON prediction file.
func LoadPredictions(path string) (*PredictionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read predictions")
	}

	var f PredictionFile
	if isYAML(path) {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse predictions %s", path)
	}
	return &f, nil
}

// SavePredictions writes f as YAML or JSON, chosen by extension.
func SavePredictions(path string, f *PredictionFile) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode predictions")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create predictions directory")
		}
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write predictions")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Replay serves detections recorded earlier, keyed by frame ID. Frames
// without a recording yield no detections.
type Replay struct {
	cfg         Config
	logger      golog.Logger
	predictions map[string][]postprocess.Result
}

// NewReplay loads the prediction file at cfg.ModelPath.
func NewReplay(cfg Config, logger golog.Logger) (*Replay, error) {
	f, err := LoadPredictions(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	d := &Replay{
		cfg:         cfg,
		logger:      logger,
		predictions: make(map[string][]postprocess.Result, len(f.Predictions)),
	}
	for _, p := range f.Predictions {
		d.predictions[p.ID] = p.Detections
	}

	logger.Infow("loaded replay detector", "file", cfg.ModelPath, "model", f.Model, "images", len(d.predictions))
	return d, nil
}

// Predict implements Detector.
func (d *Replay) Predict(ctx context.Context, frame Frame) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.predictions == nil {
		return nil, ErrNotInitialized
	}

	raw, ok := d.predictions[frame.ID]
	if !ok {
		d.logger.Debugw("no recorded predictions", "id", frame.ID)
	}
	return Finalize(raw, d.cfg), nil
}

// Close implements Detector.
func (d *Replay) Close() error {
	d.predictions = nil
	return nil
}

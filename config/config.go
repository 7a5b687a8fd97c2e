// Package config holds the run configuration of the evaluation CLI.
package config

import (
	"os"

	"github.com/nvr-ai/go-ml-eval/dataset"
	"github.com/nvr-ai/go-ml-eval/detector"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DatasetConfig selects the images to evaluate.
type DatasetConfig struct {
	// Path is a manifest file or a Pascal VOC directory.
	Path    string `json:"path" yaml:"path"`
	Split   string `json:"split" yaml:"split"`
	Size    int    `json:"size" yaml:"size"`
	Workers int    `json:"workers" yaml:"workers"`
}

// VisualizeConfig configures the visualize command.
type VisualizeConfig struct {
	OutDir         string  `json:"out_dir" yaml:"out_dir"`
	Num            int     `json:"num" yaml:"num"`
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
	// Labels names the label map of the detector's class ids.
	Labels models.ModelFamily `json:"labels" yaml:"labels"`
}

// EvaluateConfig configures the evaluate command.
type EvaluateConfig struct {
	Num          int     `json:"num" yaml:"num"`
	TopK         int     `json:"top_k" yaml:"top_k"`
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// ReportDir receives summary.json when set.
	ReportDir string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`
	// PRCurve receives a precision/recall plot when set.
	PRCurve string `json:"pr_curve,omitempty" yaml:"pr_curve,omitempty"`
	// SavePredictions records detections for the replay detector when set.
	SavePredictions string `json:"save_predictions,omitempty" yaml:"save_predictions,omitempty"`
}

// Config is the full run configuration.
type Config struct {
	Dataset   DatasetConfig   `json:"dataset" yaml:"dataset"`
	Detector  detector.Config `json:"detector" yaml:"detector"`
	Visualize VisualizeConfig `json:"visualize" yaml:"visualize"`
	Evaluate  EvaluateConfig  `json:"evaluate" yaml:"evaluate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Split:   "validation[:50]",
			Size:    640,
			Workers: dataset.DefaultWorkers,
		},
		Detector: detector.DefaultConfig(),
		Visualize: VisualizeConfig{
			OutDir:         "outputs",
			Num:            5,
			ScoreThreshold: 0.3,
			Labels:         models.ModelFamilyCOCO,
		},
		Evaluate: EvaluateConfig{
			Num:          50,
			TopK:         50,
			IoUThreshold: 0.5,
		},
	}
}

// Load reads a YAML file over the defaults; keys absent from the file keep
// their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write config")
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.Dataset.Path == "" {
		return errors.New("dataset path is required")
	}
	if _, err := dataset.ParseSplit(c.Dataset.Split); err != nil {
		return err
	}
	if c.Dataset.Size < 0 {
		return errors.Errorf("invalid image size %d", c.Dataset.Size)
	}
	switch c.Detector.Kind {
	case detector.KindOpenCV, detector.KindONNX, detector.KindReplay:
	default:
		return errors.Wrapf(detector.ErrUnknownDetector, "%q", c.Detector.Kind)
	}
	if !c.Detector.Provider.Valid() {
		return errors.Wrapf(detector.ErrUnknownProvider, "%q", c.Detector.Provider)
	}
	if c.Detector.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.Detector.InputShape.X <= 0 || c.Detector.InputShape.Y <= 0 {
		return errors.Errorf("invalid input shape %v", c.Detector.InputShape)
	}
	if t := c.Evaluate.IoUThreshold; t <= 0 || t > 1 {
		return errors.Errorf("iou threshold %v out of range (0, 1]", t)
	}
	if t := c.Visualize.ScoreThreshold; t < 0 || t > 1 {
		return errors.Errorf("score threshold %v out of range [0, 1]", t)
	}
	if models.LookupSet(c.Visualize.Labels) == nil {
		return errors.Errorf("unknown label map %q", c.Visualize.Labels)
	}
	return nil
}

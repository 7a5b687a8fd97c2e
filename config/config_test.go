package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-ml-eval/dataset"
	"github.com/nvr-ai/go-ml-eval/detector"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "validation[:50]", cfg.Dataset.Split)
	assert.Equal(t, 640, cfg.Dataset.Size)
	assert.Equal(t, "outputs", cfg.Visualize.OutDir)
	assert.Equal(t, 5, cfg.Visualize.Num)
	assert.Equal(t, 0.3, cfg.Visualize.ScoreThreshold)
	assert.Equal(t, models.ModelFamilyCOCO, cfg.Visualize.Labels)
	assert.Equal(t, 50, cfg.Evaluate.Num)
	assert.Equal(t, 50, cfg.Evaluate.TopK)
	assert.Equal(t, detector.KindOpenCV, cfg.Detector.Kind)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset:
  path: data/manifest.yaml
  split: validation[:10]
detector:
  kind: replay
  model_path: predictions.json
  top_k: 20
evaluate:
  topk_ignored: true
  num: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/manifest.yaml", cfg.Dataset.Path)
	assert.Equal(t, "validation[:10]", cfg.Dataset.Split)
	assert.Equal(t, 640, cfg.Dataset.Size, "default kept")
	assert.Equal(t, detector.KindReplay, cfg.Detector.Kind)
	assert.Equal(t, 20, cfg.Detector.TopK)
	assert.Equal(t, 10, cfg.Evaluate.Num)
	assert.Equal(t, 50, cfg.Evaluate.TopK, "default kept")
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	cfg := Default()
	cfg.Dataset.Path = "voc/VOC2007"
	cfg.Detector.ModelPath = "ssd.pb"

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dataset: [1, 2"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Dataset.Path = "manifest.yaml"
		cfg.Detector.ModelPath = "model.pb"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		is     error
	}{
		{"missing dataset", func(c *Config) { c.Dataset.Path = "" }, nil},
		{"bad split", func(c *Config) { c.Dataset.Split = "val[" }, dataset.ErrInvalidSplit},
		{"negative size", func(c *Config) { c.Dataset.Size = -1 }, nil},
		{"unknown detector", func(c *Config) { c.Detector.Kind = "tfhub" }, detector.ErrUnknownDetector},
		{"unknown provider", func(c *Config) { c.Detector.Provider = "tpu" }, detector.ErrUnknownProvider},
		{"missing model", func(c *Config) { c.Detector.ModelPath = "" }, nil},
		{"bad input shape", func(c *Config) { c.Detector.InputShape.X = 0 }, nil},
		{"iou out of range", func(c *Config) { c.Evaluate.IoUThreshold = 1.5 }, nil},
		{"score out of range", func(c *Config) { c.Visualize.ScoreThreshold = -0.1 }, nil},
		{"unknown labels", func(c *Config) { c.Visualize.Labels = "imagenet" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
		})
	}
}

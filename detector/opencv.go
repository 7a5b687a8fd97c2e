package detector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chewxy/math32"
	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// detectionRowSize is the width of an OpenCV DetectionOutput row:
// [image_id, label, score, xmin, ymin, xmax, ymax].
const detectionRowSize = 7

// OpenCV runs an SSD through the OpenCV DNN module. TensorFlow frozen graphs
// (.pb, optionally with a .pbtxt) and ONNX files are supported.
type OpenCV struct {
	cfg    Config
	logger golog.Logger

	mu          sync.Mutex
	net         gocv.Net
	tensorflow  bool
	initialized bool
}

// NewOpenCV loads the network at cfg.ModelPath.
func NewOpenCV(cfg Config, logger golog.Logger) (*OpenCV, error) {
	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrap(err, "model file not found")
	}
	if info.Size() == 0 {
		return nil, errors.Errorf("model file is empty: %s", cfg.ModelPath)
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return nil, errors.Wrap(err, "model config not found")
		}
	}

	d := &OpenCV{
		cfg:        cfg,
		logger:     logger,
		tensorflow: strings.EqualFold(filepath.Ext(cfg.ModelPath), ".pb"),
	}

	net, err := readNet(cfg.ModelPath, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if net.Empty() {
		return nil, errors.Errorf("failed to load model %s (model may be incompatible with OpenCV DNN)", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendOpenCV); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "failed to set backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "failed to set target")
	}

	d.net = net
	d.initialized = true

	logger.Infow("loaded opencv detector",
		"model", cfg.ModelPath,
		"tensorflow", d.tensorflow,
		"input", cfg.InputShape,
		"layers", len(net.GetLayerNames()),
	)
	return d, nil
}

// readNet recovers from panics raised by the native loader on malformed files.
func readNet(model, config string) (net gocv.Net, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during model loading: %v", r)
		}
	}()
	return gocv.ReadNet(model, config), nil
}

// Predict implements Detector.
func (d *OpenCV) Predict(ctx context.Context, frame Frame) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert image")
	}
	defer mat.Close()

	// Frozen TF graphs carry their own normalization.
	scale := 1.0 / 255.0
	if d.tensorflow {
		scale = 1.0
	}
	blob := gocv.BlobFromImage(mat, scale, d.cfg.InputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, errors.New("inference returned empty output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read output")
	}

	raw := decodeDetectionRows(data)
	d.logger.Debugw("opencv inference", "id", frame.ID, "raw", len(raw))

	return Finalize(raw, d.cfg), nil
}

// Close releases the network.
func (d *OpenCV) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	d.initialized = false
	return d.net.Close()
}

// decodeDetectionRows converts a flattened [N, 7] DetectionOutput blob into
// results. Rows with a negative image id are padding. Coordinates are clamped
// to [0,1] and reordered to ymin, xmin, ymax, xmax.
func decodeDetectionRows(data []float32) []postprocess.Result {
	n := len(data) / detectionRowSize
	results := make([]postprocess.Result, 0, n)

	for i := 0; i < n; i++ {
		row := data[i*detectionRowSize : (i+1)*detectionRowSize]
		if row[0] < 0 {
			continue
		}
		results = append(results, postprocess.Result{
			Box: images.Box{
				YMin: float64(clamp01(row[4])),
				XMin: float64(clamp01(row[3])),
				YMax: float64(clamp01(row[6])),
				XMax: float64(clamp01(row[5])),
			},
			Score: float64(row[2]),
			Class: int(row[1]),
		})
	}
	return results
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

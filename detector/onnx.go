package detector

import (
	"context"
	"image"
	"os"
	"runtime"
	"sync"

	"github.com/edaniels/golog"
	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"
)

// SharedLibraryEnv overrides the default ONNX Runtime library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var ortInit sync.Mutex

// ONNX runs a TensorFlow SSD exported to ONNX through ONNX Runtime.
//
// The model takes a uint8 NHWC image and returns detection_boxes [1,N,4],
// detection_scores [1,N], detection_classes [1,N] and optionally
// num_detections [1], in the order of Config.Outputs.
type ONNX struct {
	cfg    Config
	logger golog.Logger

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[uint8]
	boxes   *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
	classes *ort.Tensor[float32]
	count   *ort.Tensor[float32]
}

// SharedLibPath returns the ONNX Runtime library for the current platform,
// honouring SharedLibraryEnv.
func SharedLibPath() string {
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnx runtime library not found at %s", libPath)
	}
	ort.SetSharedLibraryPath(libPath)
	return errors.Wrap(ort.InitializeEnvironment(), "failed to initialize onnx runtime")
}

// NewONNX creates a session for cfg.ModelPath.
func NewONNX(cfg Config, logger golog.Logger) (*ONNX, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "model file not found")
	}
	if len(cfg.Inputs) != 1 {
		return nil, errors.Errorf("expected 1 input name, got %d", len(cfg.Inputs))
	}
	if len(cfg.Outputs) < 3 || len(cfg.Outputs) > 4 {
		return nil, errors.Errorf("expected 3 or 4 output names, got %d", len(cfg.Outputs))
	}
	if cfg.MaxDetections <= 0 {
		return nil, errors.New("max detections must be positive")
	}

	libPath := cfg.SharedLibraryPath
	if libPath == "" {
		libPath = SharedLibPath()
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	d := &ONNX{cfg: cfg, logger: logger}
	if err := d.allocate(); err != nil {
		d.destroy()
		return nil, err
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		d.destroy()
		return nil, err
	}
	defer options.Destroy()

	outputs := []ort.ArbitraryTensor{d.boxes, d.scores, d.classes}
	if d.count != nil {
		outputs = append(outputs, d.count)
	}
	d.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		cfg.Inputs,
		cfg.Outputs,
		[]ort.ArbitraryTensor{d.input},
		outputs,
		options,
	)
	if err != nil {
		d.destroy()
		return nil, errors.Wrap(err, "failed to create onnx session")
	}

	logger.Infow("loaded onnx detector",
		"model", cfg.ModelPath,
		"provider", cfg.Provider,
		"input", cfg.InputShape,
		"max_detections", cfg.MaxDetections,
	)
	return d, nil
}

func (d *ONNX) allocate() error {
	var err error
	w, h := int64(d.cfg.InputShape.X), int64(d.cfg.InputShape.Y)
	n := int64(d.cfg.MaxDetections)

	if d.input, err = ort.NewEmptyTensor[uint8](ort.NewShape(1, h, w, 3)); err != nil {
		return errors.Wrap(err, "failed to create input tensor")
	}
	if d.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n, 4)); err != nil {
		return errors.Wrap(err, "failed to create boxes tensor")
	}
	if d.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return errors.Wrap(err, "failed to create scores tensor")
	}
	if d.classes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return errors.Wrap(err, "failed to create classes tensor")
	}
	if len(d.cfg.Outputs) == 4 {
		if d.count, err = ort.NewEmptyTensor[float32](ort.NewShape(1)); err != nil {
			return errors.Wrap(err, "failed to create count tensor")
		}
	}
	return nil
}

// Predict implements Detector.
func (d *ONNX) Predict(ctx context.Context, frame Frame) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, ErrNotInitialized
	}

	fillNHWC(frame.Image, d.cfg.InputShape, d.input.GetData())
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	n := d.cfg.MaxDetections
	if d.count != nil {
		n = min(n, int(d.count.GetData()[0]))
	}

	raw, err := decodeTFOutputs(d.boxes.GetData(), d.scores.GetData(), d.classes.GetData(), n)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("onnx inference", "id", frame.ID, "raw", len(raw))

	return Finalize(raw, d.cfg), nil
}

// Close releases the session and its tensors.
func (d *ONNX) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.destroy()
}

func (d *ONNX) destroy() error {
	var err error
	if d.session != nil {
		err = multierr.Append(err, d.session.Destroy())
	}
	if d.input != nil {
		err = multierr.Append(err, d.input.Destroy())
	}
	for _, t := range []*ort.Tensor[float32]{d.boxes, d.scores, d.classes, d.count} {
		if t != nil {
			err = multierr.Append(err, t.Destroy())
		}
	}
	d.session, d.input = nil, nil
	d.boxes, d.scores, d.classes, d.count = nil, nil, nil, nil
	return err
}

// fillNHWC resizes img to shape and writes its RGB bytes into dst.
func fillNHWC(img image.Image, shape image.Point, dst []uint8) {
	resized := resize.Resize(uint(shape.X), uint(shape.Y), img, resize.Bilinear)
	b := resized.Bounds()

	i := 0
	for y := b.Min.Y; y < b.Min.Y+shape.Y; y++ {
		for x := b.Min.X; x < b.Min.X+shape.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			dst[i] = uint8(r >> 8)
			dst[i+1] = uint8(g >> 8)
			dst[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
}

// decodeTFOutputs converts the first n rows of TF Object Detection API
// outputs into results. boxes is [N,4] in ymin, xmin, ymax, xmax order;
// classes are float-encoded label ids.
func decodeTFOutputs(boxes, scores, classes []float32, n int) ([]postprocess.Result, error) {
	n = min(n, len(boxes)/4, len(scores), len(classes))
	if n <= 0 {
		return nil, nil
	}

	t := tensor.New(tensor.WithShape(n, 4), tensor.WithBacking(boxes[:n*4]))
	coord := func(i, j int) (float64, error) {
		v, err := t.At(i, j)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read box %d", i)
		}
		return float64(clamp01(v.(float32))), nil
	}

	results := make([]postprocess.Result, 0, n)
	for i := 0; i < n; i++ {
		var c [4]float64
		for j := range c {
			v, err := coord(i, j)
			if err != nil {
				return nil, err
			}
			c[j] = v
		}
		results = append(results, postprocess.Result{
			Box:   images.NewBox(c[:]),
			Score: float64(scores[i]),
			Class: int(classes[i]),
		})
	}
	return results, nil
}

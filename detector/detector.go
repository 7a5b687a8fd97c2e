// Package detector runs pre-trained object detectors over images and returns
// normalized detections.
package detector

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownDetector is returned by New for an unsupported Kind.
	ErrUnknownDetector = errors.New("unknown detector kind")
	// ErrNotInitialized is returned when a closed detector is used.
	ErrNotInitialized = errors.New("detector not initialized")
)

// Kind selects a detector implementation.
type Kind string

const (
	// KindOpenCV runs a TensorFlow or ONNX SSD through the OpenCV DNN module.
	KindOpenCV Kind = "opencv"
	// KindONNX runs a TF-exported SSD through ONNX Runtime.
	KindONNX Kind = "onnx"
	// KindReplay serves precomputed predictions from a file.
	KindReplay Kind = "replay"
)

// Frame is one image submitted for detection.
type Frame struct {
	// ID identifies the image; the replay detector looks predictions up by it.
	ID    string
	Image image.Image
}

// Detector produces detections for a frame. Boxes are normalized to [0,1] in
// ymin, xmin, ymax, xmax order and results are sorted by descending score.
type Detector interface {
	Predict(ctx context.Context, frame Frame) ([]postprocess.Result, error)
	Close() error
}

// Config configures a detector.
type Config struct {
	Kind Kind `json:"kind" yaml:"kind"`
	// ModelPath is the model file, or the predictions file for KindReplay.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// ConfigPath is the optional .pbtxt graph description for TensorFlow
	// models loaded through OpenCV.
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	// InputShape is the model input as width x height.
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`
	// ConfidenceThreshold drops raw detections below this score.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// TopK keeps at most this many detections per image; 0 keeps all.
	TopK int `json:"top_k" yaml:"top_k"`
	// NMS is applied after score filtering when set.
	NMS *postprocess.NMSConfig `json:"nms,omitempty" yaml:"nms,omitempty"`
	// MaxDetections is the fixed detection count of the ONNX model outputs.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`
	// Inputs and Outputs name the ONNX model tensors.
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// SharedLibraryPath overrides the ONNX Runtime library location.
	SharedLibraryPath string `json:"shared_library_path,omitempty" yaml:"shared_library_path,omitempty"`
	// Provider is the ONNX Runtime execution provider; empty runs on the CPU.
	Provider Provider `json:"provider,omitempty" yaml:"provider,omitempty"`
	// DeviceID selects the GPU for ProviderCUDA.
	DeviceID int `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	// IntraOpThreads bounds ONNX Runtime's intra-op parallelism; 0 leaves the
	// runtime default.
	IntraOpThreads int `json:"intra_op_threads,omitempty" yaml:"intra_op_threads,omitempty"`
}

// DefaultConfig returns the settings of SSD MobileNet v2 (COCO).
func DefaultConfig() Config {
	return Config{
		Kind:                KindOpenCV,
		InputShape:          image.Point{X: 300, Y: 300},
		ConfidenceThreshold: 0.0,
		MaxDetections:       100,
		Inputs:              []string{"input_tensor"},
		Outputs:             []string{"detection_boxes", "detection_scores", "detection_classes", "num_detections"},
	}
}

// New creates the detector selected by cfg.Kind.
//
// Arguments:
//   - cfg: The detector configuration.
//   - logger: The logger for load-time and per-frame debug output.
//
// Returns:
//   - Detector: The initialized detector; the caller must Close it.
//   - error: ErrUnknownDetector for an unsupported kind, or a load error.
func New(cfg Config, logger golog.Logger) (Detector, error) {
	switch cfg.Kind {
	case KindOpenCV:
		return NewOpenCV(cfg, logger)
	case KindONNX:
		return NewONNX(cfg, logger)
	case KindReplay:
		return NewReplay(cfg, logger)
	default:
		return nil, errors.Wrapf(ErrUnknownDetector, "%q", cfg.Kind)
	}
}

// Finalize applies the shared post-processing to raw detections: score
// filter, sort by descending score, optional NMS, then top-K.
func Finalize(results []postprocess.Result, cfg Config) []postprocess.Result {
	results = postprocess.FilterByScore(results, cfg.ConfidenceThreshold)
	results = postprocess.SortByScore(results)
	if cfg.NMS != nil {
		results = postprocess.ApplyGreedyNMS(results, cfg.NMS)
	}
	return postprocess.TopK(results, cfg.TopK)
}

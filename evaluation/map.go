package evaluation

import (
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
)

// MeanAP returns the mAP@0.5 of a set of images: the arithmetic mean of the
// per-image AveragePrecision at DefaultIoUThreshold.
//
// The three arguments are parallel per-image sequences. If their lengths
// differ only the common prefix is evaluated. An empty set scores 0.0.
//
// Example:
//
// ```go
//
//	gt := [][]images.Box{{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}}}
//	boxes := [][]images.Box{{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}}}
//	scores := [][]float64{{0.9}}
//	m := MeanAP(gt, boxes, scores) // 1.0
//
// ```
func MeanAP(allGT, allBoxes [][]images.Box, allScores [][]float64) float64 {
	n := min(len(allGT), len(allBoxes), len(allScores))
	if n == 0 {
		return 0.0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += AveragePrecision(allGT[i], allBoxes[i], allScores[i], DefaultIoUThreshold)
	}
	return sum / float64(n)
}

// Record is the unit of evaluation: the ground truth and the detections of
// one image.
type Record struct {
	ID          string               `json:"id" yaml:"id"`
	GroundTruth []images.Box         `json:"ground_truth" yaml:"ground_truth"`
	Detections  []postprocess.Result `json:"detections" yaml:"detections"`
}

// ImageResult is the evaluation of a single Record.
type ImageResult struct {
	ID             string  `json:"id"`
	AP             float64 `json:"ap"`
	GroundTruth    int     `json:"ground_truth"`
	Predictions    int     `json:"predictions"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	Curve          Curve   `json:"curve"`
}

// Result is the evaluation of a set of Records.
type Result struct {
	// MAP is the mean of the per-image average precisions, 0 for an empty set.
	MAP          float64       `json:"map"`
	IoUThreshold float64       `json:"iou_threshold"`
	Images       []ImageResult `json:"images"`
}

// AP returns the per-image average precisions in record order.
func (r *Result) AP() []float64 {
	aps := make([]float64, len(r.Images))
	for i, img := range r.Images {
		aps[i] = img.AP
	}
	return aps
}

// EvaluateRecord computes the per-image breakdown for one record.
func EvaluateRecord(rec Record, iouThreshold float64) ImageResult {
	boxes := postprocess.Boxes(rec.Detections)
	scores := postprocess.Scores(rec.Detections)
	ap, m, c := averagePrecision(rec.GroundTruth, boxes, scores, iouThreshold)

	return ImageResult{
		ID:             rec.ID,
		AP:             ap,
		GroundTruth:    len(rec.GroundTruth),
		Predictions:    len(rec.Detections),
		TruePositives:  m.TruePositives(),
		FalsePositives: m.FalsePositives(),
		Curve:          c,
	}
}

// Evaluator accumulates per-image results.
//
// It is not safe for concurrent use; the pipeline feeds it from a single
// goroutine.
type Evaluator struct {
	iouThreshold float64
	images       []ImageResult
}

// NewEvaluator creates an evaluator for the given IoU threshold. A
// non-positive threshold selects DefaultIoUThreshold.
func NewEvaluator(iouThreshold float64) *Evaluator {
	if iouThreshold <= 0 {
		iouThreshold = DefaultIoUThreshold
	}
	return &Evaluator{iouThreshold: iouThreshold}
}

// Add evaluates a record and keeps its result.
func (e *Evaluator) Add(rec Record) ImageResult {
	res := EvaluateRecord(rec, e.iouThreshold)
	e.images = append(e.images, res)
	return res
}

// Len returns the number of records added so far.
func (e *Evaluator) Len() int {
	return len(e.images)
}

// Result returns the aggregate over every record added so far.
func (e *Evaluator) Result() *Result {
	res := &Result{
		IoUThreshold: e.iouThreshold,
		Images:       make([]ImageResult, len(e.images)),
	}
	copy(res.Images, e.images)

	if len(res.Images) == 0 {
		return res
	}

	var sum float64
	for _, img := range res.Images {
		sum += img.AP
	}
	res.MAP = sum / float64(len(res.Images))

	return res
}

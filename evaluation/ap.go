// Package evaluation computes a simplified mAP@0.5 for object detections.
//
// Matching is class-agnostic and greedy: predictions are visited in
// descending score order and each claims the unmatched ground-truth box it
// overlaps most, provided the overlap reaches the IoU threshold. Claimed
// ground truth is never released. Average precision is interpolated at the
// 11 PASCAL VOC 2007 recall levels.
//
// All functions are pure; inputs are never modified.
package evaluation

import (
	"sort"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
)

const (
	// DefaultIoUThreshold is the overlap required for a true positive in mAP@0.5.
	DefaultIoUThreshold = 0.5

	// RecallLevels is the number of interpolation points (0.0, 0.1, ..., 1.0).
	RecallLevels = 11

	epsilon = 1e-8

	// recallTolerance absorbs the epsilon in the recall denominator, which
	// otherwise leaves a fully recalled image just short of the 1.0 level.
	recallTolerance = 1e-6
)

// Matching holds the outcome of greedy matching for one image, in
// descending score order.
type Matching struct {
	// TruePositive[i] reports whether the i-th ranked prediction claimed a ground-truth box.
	TruePositive []bool
	// Matched[j] is the rank of the prediction that claimed ground truth j, or -1.
	Matched []int
}

// TruePositives counts the predictions that claimed ground truth.
func (m Matching) TruePositives() int {
	n := 0
	for _, tp := range m.TruePositive {
		if tp {
			n++
		}
	}
	return n
}

// FalsePositives counts the predictions that did not claim ground truth.
func (m Matching) FalsePositives() int {
	return len(m.TruePositive) - m.TruePositives()
}

// Curve is the cumulative precision/recall after each ranked prediction.
type Curve struct {
	Precision []float64 `json:"precision"`
	Recall    []float64 `json:"recall"`
}

// rank returns prediction indices ordered by descending score. The sort is
// stable, so tied scores keep their input order.
func rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// Match greedily assigns predictions to ground truth.
//
// Predictions are visited by descending score. Each one looks at every
// ground-truth box that is still unclaimed and keeps the one with the
// strictly highest IoU (starting from zero, so a zero-overlap box is never
// selected). If that IoU is at least iouThreshold the ground truth is locked
// and the prediction is a true positive; otherwise it is a false positive.
//
// boxes and scores are parallel; if their lengths differ the shorter wins.
func Match(gt, boxes []images.Box, scores []float64, iouThreshold float64) Matching {
	n := min(len(boxes), len(scores))
	order := rank(scores[:n])

	m := Matching{
		TruePositive: make([]bool, n),
		Matched:      make([]int, len(gt)),
	}
	for j := range m.Matched {
		m.Matched[j] = -1
	}

	for r, i := range order {
		bestIoU := 0.0
		bestJ := -1
		for j, g := range gt {
			if m.Matched[j] >= 0 {
				continue
			}
			if iou := images.CalculateIoU(boxes[i], g); iou > bestIoU {
				bestIoU = iou
				bestJ = j
			}
		}
		if bestJ >= 0 && bestIoU >= iouThreshold {
			m.Matched[bestJ] = r
			m.TruePositive[r] = true
		}
	}

	return m
}

// PrecisionRecall turns a matching into cumulative precision and recall at
// each prediction rank.
func PrecisionRecall(m Matching, numGT int) Curve {
	c := Curve{
		Precision: make([]float64, len(m.TruePositive)),
		Recall:    make([]float64, len(m.TruePositive)),
	}

	var cumTP, cumFP float64
	for i, tp := range m.TruePositive {
		if tp {
			cumTP++
		} else {
			cumFP++
		}
		c.Precision[i] = cumTP / (cumTP + cumFP + epsilon)
		c.Recall[i] = cumTP / (float64(numGT) + epsilon)
	}

	return c
}

// Interpolate11 is the PASCAL VOC 2007 11-point average precision: the mean,
// over recall levels t = 0.0, 0.1, ..., 1.0, of the highest precision at any
// rank whose recall is at least t (0 when no rank reaches t). Recall is
// compared with a 1e-6 tolerance.
func Interpolate11(c Curve) float64 {
	var sum float64
	for level := 0; level < RecallLevels; level++ {
		t := float64(level) / (RecallLevels - 1)
		best := 0.0
		for i, r := range c.Recall {
			if r+recallTolerance >= t && c.Precision[i] > best {
				best = c.Precision[i]
			}
		}
		sum += best
	}
	return sum / RecallLevels
}

// AveragePrecision computes the 11-point interpolated AP for one image.
//
// An image with no ground truth scores 1.0 when there are also no
// predictions and 0.0 otherwise, since every prediction is then a false
// positive.
//
// Boxes must be valid and normalized; this is not checked.
//
// Arguments:
//   - gt: Ground-truth boxes of the image.
//   - boxes: Predicted boxes, parallel to scores.
//   - scores: Confidence of each predicted box, higher is more confident.
//   - iouThreshold: Minimum IoU for a true positive; DefaultIoUThreshold for mAP@0.5.
//
// Returns:
//   - float64: The average precision in [0,1].
func AveragePrecision(gt, boxes []images.Box, scores []float64, iouThreshold float64) float64 {
	ap, _, _ := averagePrecision(gt, boxes, scores, iouThreshold)
	return ap
}

// AveragePrecisionResults is AveragePrecision for detector results.
func AveragePrecisionResults(gt []images.Box, results []postprocess.Result, iouThreshold float64) float64 {
	return AveragePrecision(gt, postprocess.Boxes(results), postprocess.Scores(results), iouThreshold)
}

func averagePrecision(gt, boxes []images.Box, scores []float64, iouThreshold float64) (float64, Matching, Curve) {
	m := Match(gt, boxes, scores, iouThreshold)
	c := PrecisionRecall(m, len(gt))

	if len(gt) == 0 {
		if len(boxes) > 0 {
			return 0.0, m, c
		}
		return 1.0, m, c
	}

	return Interpolate11(c), m, c
}

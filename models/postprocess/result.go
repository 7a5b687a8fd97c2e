// Package postprocess - Postprocessing utilities for detector output.
package postprocess

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-ml-eval/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result, normalized to [0,1].
	Box images.Box `json:"box" yaml:"box"`
	// The confidence score of the result.
	Score float64 `json:"score" yaml:"score"`
	// The predicted class index of the result.
	Class int `json:"class" yaml:"class"`
}

func (r Result) String() string {
	return fmt.Sprintf("class %d (score %.4f): %s", r.Class, r.Score, r.Box)
}

// SortByScore returns a copy of results ordered by descending score.
// Results with equal scores keep their input order.
func SortByScore(results []Result) []Result {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}

// TopK truncates results to at most k entries. A non-positive k keeps everything.
// The input is expected to be sorted already; TopK does not reorder.
func TopK(results []Result, k int) []Result {
	if k <= 0 || len(results) <= k {
		return results
	}
	return results[:k]
}

// FilterByScore drops results scoring below threshold.
func FilterByScore(results []Result, threshold float64) []Result {
	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Boxes returns the boxes of results, in order.
func Boxes(results []Result) []images.Box {
	boxes := make([]images.Box, len(results))
	for i, r := range results {
		boxes[i] = r.Box
	}
	return boxes
}

// Scores returns the scores of results, in order.
func Scores(results []Result) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return scores
}

package evaluation

import (
	"testing"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	square = images.Box{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}
	corner = images.Box{YMin: 0.6, XMin: 0.6, YMax: 0.9, XMax: 0.9}
)

func TestMeanAP(t *testing.T) {
	tests := []struct {
		name     string
		gt       [][]images.Box
		boxes    [][]images.Box
		scores   [][]float64
		expected float64
	}{
		{
			name:     "empty",
			expected: 0,
		},
		{
			name:     "single perfect image",
			gt:       [][]images.Box{{square}},
			boxes:    [][]images.Box{{square}},
			scores:   [][]float64{{0.9}},
			expected: 1,
		},
		{
			name:     "hit and miss average",
			gt:       [][]images.Box{{square}, {square}},
			boxes:    [][]images.Box{{square}, {corner}},
			scores:   [][]float64{{0.9}, {0.9}},
			expected: 0.5,
		},
		{
			name:     "images without ground truth",
			gt:       [][]images.Box{{}, {}},
			boxes:    [][]images.Box{{}, {corner}},
			scores:   [][]float64{{}, {0.4}},
			expected: 0.5,
		},
		{
			name:     "lengths differ, common prefix only",
			gt:       [][]images.Box{{square}, {square}, {square}},
			boxes:    [][]images.Box{{square}},
			scores:   [][]float64{{0.9}, {0.9}},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, MeanAP(tt.gt, tt.boxes, tt.scores), delta)
		})
	}
}

func TestEvaluator_MatchesMeanAP(t *testing.T) {
	records := []Record{
		{
			ID:          "000001",
			GroundTruth: []images.Box{square},
			Detections:  []postprocess.Result{{Box: square, Score: 0.9, Class: 1}},
		},
		{
			ID:          "000002",
			GroundTruth: []images.Box{square, corner},
			Detections: []postprocess.Result{
				{Box: square, Score: 0.8, Class: 1},
				{Box: images.Box{YMin: 0, XMin: 0, YMax: 0.05, XMax: 0.05}, Score: 0.7, Class: 1},
				{Box: corner, Score: 0.6, Class: 18},
			},
		},
		{
			ID:          "000003",
			GroundTruth: []images.Box{square},
		},
	}

	e := NewEvaluator(0)
	var gt, boxes [][]images.Box
	var scores [][]float64
	for _, rec := range records {
		e.Add(rec)
		gt = append(gt, rec.GroundTruth)
		boxes = append(boxes, postprocess.Boxes(rec.Detections))
		scores = append(scores, postprocess.Scores(rec.Detections))
	}

	res := e.Result()
	require.Equal(t, 3, e.Len())
	require.Len(t, res.Images, 3)

	assert.Equal(t, DefaultIoUThreshold, res.IoUThreshold)
	assert.InDelta(t, MeanAP(gt, boxes, scores), res.MAP, 1e-12)

	second := res.Images[1]
	assert.Equal(t, "000002", second.ID)
	assert.Equal(t, 2, second.GroundTruth)
	assert.Equal(t, 3, second.Predictions)
	assert.Equal(t, 2, second.TruePositives)
	assert.Equal(t, 1, second.FalsePositives)
	assert.Len(t, second.Curve.Precision, 3)

	third := res.Images[2]
	assert.Equal(t, 0.0, third.AP)
	assert.Equal(t, 0, third.Predictions)

	assert.Equal(t, []float64{res.Images[0].AP, res.Images[1].AP, res.Images[2].AP}, res.AP())
}

func TestEvaluator_Empty(t *testing.T) {
	res := NewEvaluator(0.75).Result()

	assert.Equal(t, 0.0, res.MAP)
	assert.Equal(t, 0.75, res.IoUThreshold)
	assert.Empty(t, res.Images)
}

func TestEvaluator_ResultIsSnapshot(t *testing.T) {
	e := NewEvaluator(DefaultIoUThreshold)
	e.Add(Record{ID: "a", GroundTruth: []images.Box{square}, Detections: []postprocess.Result{{Box: square, Score: 1}}})

	first := e.Result()
	e.Add(Record{ID: "b", GroundTruth: []images.Box{square}})

	assert.Len(t, first.Images, 1)
	assert.InDelta(t, 1.0, first.MAP, delta)
	assert.InDelta(t, 0.5, e.Result().MAP, delta)
}

func BenchmarkMeanAP(b *testing.B) {
	const n = 50
	gt := make([][]images.Box, n)
	boxes := make([][]images.Box, n)
	scores := make([][]float64, n)
	for i := 0; i < n; i++ {
		gt[i] = []images.Box{square, corner}
		boxes[i] = []images.Box{corner, square, {YMin: 0.2, XMin: 0.2, YMax: 0.3, XMax: 0.3}}
		scores[i] = []float64{0.9, 0.8, 0.7}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = MeanAP(gt, boxes, scores)
	}
}

package evaluation

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-6

// column returns a full-height box spanning [x1, x2] horizontally, which
// makes IoU a ratio of interval lengths.
func column(x1, x2 float64) images.Box {
	return images.Box{YMin: 0, XMin: x1, YMax: 1, XMax: x2}
}

func TestAveragePrecision_EmptyGroundTruth(t *testing.T) {
	box := images.Box{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}

	assert.Equal(t, 1.0, AveragePrecision(nil, nil, nil, DefaultIoUThreshold))
	assert.Equal(t, 1.0, AveragePrecision([]images.Box{}, []images.Box{}, []float64{}, DefaultIoUThreshold))
	assert.Equal(t, 0.0, AveragePrecision(nil, []images.Box{box}, []float64{0.9}, DefaultIoUThreshold))
}

func TestAveragePrecision_NoPredictions(t *testing.T) {
	gt := []images.Box{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}}

	assert.Equal(t, 0.0, AveragePrecision(gt, nil, nil, DefaultIoUThreshold))
}

func TestAveragePrecision_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		gt       []images.Box
		boxes    []images.Box
		scores   []float64
		expected float64
	}{
		{
			name:     "exact match",
			gt:       []images.Box{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}},
			boxes:    []images.Box{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}},
			scores:   []float64{0.9},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			gt:       []images.Box{{YMin: 0.1, XMin: 0.1, YMax: 0.5, XMax: 0.5}},
			boxes:    []images.Box{{YMin: 0.6, XMin: 0.6, YMax: 0.9, XMax: 0.9}},
			scores:   []float64{0.9},
			expected: 0.0,
		},
		{
			name:     "overlap above threshold",
			gt:       []images.Box{column(0, 0.4)},
			boxes:    []images.Box{column(0, 0.3)}, // IoU 0.75
			scores:   []float64{0.9},
			expected: 1.0,
		},
		{
			name:     "overlap below threshold",
			gt:       []images.Box{column(0, 0.4)},
			boxes:    []images.Box{column(0.2, 0.6)}, // IoU 1/3
			scores:   []float64{0.9},
			expected: 0.0,
		},
		{
			// Exactly half the union would qualify, but the epsilon in the
			// union pushes the IoU just below the threshold.
			name:     "half overlap misses",
			gt:       []images.Box{{YMin: 0, XMin: 0, YMax: 0.5, XMax: 0.5}},
			boxes:    []images.Box{{YMin: 0, XMin: 0, YMax: 0.5, XMax: 0.25}},
			scores:   []float64{0.9},
			expected: 0.0,
		},
		{
			// TP, FP, TP: precision 1, 1/2, 2/3 at recall 1/2, 1/2, 1.
			// Levels 0.0-0.5 take 1, levels 0.6-1.0 take 2/3.
			name:     "false positive between hits",
			gt:       []images.Box{column(0, 0.2), column(0.5, 0.7)},
			boxes:    []images.Box{column(0, 0.2), column(0.8, 0.9), column(0.5, 0.7)},
			scores:   []float64{0.9, 0.8, 0.7},
			expected: (6*1.0 + 5*(2.0/3.0)) / 11,
		},
		{
			name:     "scores reorder predictions",
			gt:       []images.Box{column(0, 0.2), column(0.5, 0.7)},
			boxes:    []images.Box{column(0.8, 0.9), column(0, 0.2), column(0.5, 0.7)},
			scores:   []float64{0.1, 0.9, 0.8},
			expected: 1.0,
		},
		{
			// The duplicate is a false positive ranked after the hit, so the
			// interpolated precision never drops below 1.
			name:     "duplicate detection",
			gt:       []images.Box{column(0, 0.2)},
			boxes:    []images.Box{column(0, 0.2), column(0, 0.2)},
			scores:   []float64{0.9, 0.8},
			expected: 1.0,
		},
		{
			// Recall only reaches 1/2: levels 0.0-0.5 take precision 1.
			name:     "half recall",
			gt:       []images.Box{column(0, 0.2), column(0.5, 0.7)},
			boxes:    []images.Box{column(0, 0.2)},
			scores:   []float64{0.9},
			expected: 6.0 / 11.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ap := AveragePrecision(tt.gt, tt.boxes, tt.scores, DefaultIoUThreshold)
			assert.InDelta(t, tt.expected, ap, delta)
			assert.GreaterOrEqual(t, ap, 0.0)
			assert.LessOrEqual(t, ap, 1.0)
		})
	}
}

func TestAveragePrecision_DoesNotModifyInput(t *testing.T) {
	gt := []images.Box{column(0, 0.2)}
	boxes := []images.Box{column(0.5, 0.6), column(0, 0.2)}
	scores := []float64{0.1, 0.9}

	AveragePrecision(gt, boxes, scores, DefaultIoUThreshold)

	assert.Equal(t, []images.Box{column(0.5, 0.6), column(0, 0.2)}, boxes)
	assert.Equal(t, []float64{0.1, 0.9}, scores)
}

func TestAveragePrecision_ThresholdIsConfigurable(t *testing.T) {
	gt := []images.Box{column(0, 0.4)}
	boxes := []images.Box{column(0.2, 0.6)} // IoU 1/3
	scores := []float64{0.9}

	assert.Equal(t, 0.0, AveragePrecision(gt, boxes, scores, 0.5))
	assert.InDelta(t, 1.0, AveragePrecision(gt, boxes, scores, 0.3), delta)
}

func TestAveragePrecisionResults(t *testing.T) {
	gt := []images.Box{column(0, 0.2), column(0.5, 0.7)}
	results := []postprocess.Result{
		{Box: column(0, 0.2), Score: 0.9, Class: 3},
		{Box: column(0.8, 0.9), Score: 0.8, Class: 3},
		{Box: column(0.5, 0.7), Score: 0.7, Class: 1},
	}

	got := AveragePrecisionResults(gt, results, DefaultIoUThreshold)
	want := AveragePrecision(gt, postprocess.Boxes(results), postprocess.Scores(results), DefaultIoUThreshold)

	assert.Equal(t, want, got)
}

func TestMatch_GreedyNeverRematches(t *testing.T) {
	// The top prediction overlaps A best (IoU 0.818) and B too (0.739), so it
	// claims A. The second prediction only clears the threshold against A,
	// which is already taken, and becomes a false positive even though the
	// optimal assignment would have matched both.
	gtA := column(0, 0.4)
	gtB := column(0.1, 0.5)
	p1 := column(0.04, 0.44)
	p2 := column(0, 0.3)

	m := Match([]images.Box{gtA, gtB}, []images.Box{p1, p2}, []float64{0.9, 0.8}, DefaultIoUThreshold)

	assert.Equal(t, []bool{true, false}, m.TruePositive)
	assert.Equal(t, []int{0, -1}, m.Matched)
	assert.Equal(t, 1, m.TruePositives())
	assert.Equal(t, 1, m.FalsePositives())
}

func TestMatch_TiesKeepInputOrder(t *testing.T) {
	gt := []images.Box{column(0, 0.2)}
	miss := column(0.6, 0.8)
	hit := column(0, 0.2)

	m := Match(gt, []images.Box{miss, hit}, []float64{0.5, 0.5}, DefaultIoUThreshold)
	assert.Equal(t, []bool{false, true}, m.TruePositive)

	ap := AveragePrecision(gt, []images.Box{miss, hit}, []float64{0.5, 0.5}, DefaultIoUThreshold)
	assert.InDelta(t, 0.5, ap, delta)
}

func TestMatch_MismatchedLengths(t *testing.T) {
	gt := []images.Box{column(0, 0.2)}
	boxes := []images.Box{column(0, 0.2), column(0.5, 0.6)}

	m := Match(gt, boxes, []float64{0.9}, DefaultIoUThreshold)

	assert.Len(t, m.TruePositive, 1)
	assert.Equal(t, 1, m.TruePositives())
}

func TestMatch_TruePositivesBoundedByGroundTruth(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomBox := func() images.Box {
		y1, x1 := rng.Float64()*0.8, rng.Float64()*0.8
		return images.Box{YMin: y1, XMin: x1, YMax: y1 + 0.05 + rng.Float64()*0.15, XMax: x1 + 0.05 + rng.Float64()*0.15}
	}

	for trial := 0; trial < 200; trial++ {
		gt := make([]images.Box, rng.Intn(5))
		for i := range gt {
			gt[i] = randomBox()
		}
		boxes := make([]images.Box, rng.Intn(20))
		scores := make([]float64, len(boxes))
		for i := range boxes {
			// Cluster predictions around ground truth so matches actually happen.
			if len(gt) > 0 && rng.Intn(2) == 0 {
				g := gt[rng.Intn(len(gt))]
				j := (rng.Float64() - 0.5) * 0.02
				boxes[i] = images.Box{YMin: g.YMin + j, XMin: g.XMin + j, YMax: g.YMax + j, XMax: g.XMax + j}
			} else {
				boxes[i] = randomBox()
			}
			scores[i] = rng.Float64()
		}

		m := Match(gt, boxes, scores, DefaultIoUThreshold)

		require.LessOrEqual(t, m.TruePositives(), len(gt))
		claimed := map[int]bool{}
		for _, r := range m.Matched {
			if r < 0 {
				continue
			}
			require.False(t, claimed[r], "prediction rank %d claimed twice", r)
			require.True(t, m.TruePositive[r])
			claimed[r] = true
		}
		require.Len(t, claimed, m.TruePositives())

		ap := AveragePrecision(gt, boxes, scores, DefaultIoUThreshold)
		require.GreaterOrEqual(t, ap, 0.0)
		require.LessOrEqual(t, ap, 1.0)
	}
}

func TestPrecisionRecall(t *testing.T) {
	m := Matching{TruePositive: []bool{true, false, true, false}}

	c := PrecisionRecall(m, 4)

	assert.InDeltaSlice(t, []float64{1, 0.5, 2.0 / 3.0, 0.5}, c.Precision, delta)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.5, 0.5}, c.Recall, delta)
}

func TestInterpolate11(t *testing.T) {
	tests := []struct {
		name     string
		curve    Curve
		expected float64
	}{
		{
			name:     "empty curve",
			curve:    Curve{},
			expected: 0,
		},
		{
			name:     "perfect",
			curve:    Curve{Precision: []float64{1}, Recall: []float64{1}},
			expected: 1,
		},
		{
			name:     "envelope uses max precision to the right",
			curve:    Curve{Precision: []float64{1, 0.5, 2.0 / 3.0}, Recall: []float64{0.5, 0.5, 1}},
			expected: (6 + 5*(2.0/3.0)) / 11,
		},
		{
			name:     "recall just short of level is tolerated",
			curve:    Curve{Precision: []float64{1}, Recall: []float64{1 / (1 + epsilon)}},
			expected: 1,
		},
		{
			name:     "recall clearly below level",
			curve:    Curve{Precision: []float64{1}, Recall: []float64{0.29}},
			expected: 3.0 / 11.0, // levels 0.0, 0.1, 0.2
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Interpolate11(tt.curve), delta)
		})
	}
}

func BenchmarkAveragePrecision(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	gt := make([]images.Box, 20)
	for i := range gt {
		y, x := rng.Float64()*0.9, rng.Float64()*0.9
		gt[i] = images.Box{YMin: y, XMin: x, YMax: y + 0.1, XMax: x + 0.1}
	}
	boxes := make([]images.Box, 100)
	scores := make([]float64, 100)
	for i := range boxes {
		y, x := rng.Float64()*0.9, rng.Float64()*0.9
		boxes[i] = images.Box{YMin: y, XMin: x, YMax: y + 0.1, XMax: x + 0.1}
		scores[i] = rng.Float64()
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = AveragePrecision(gt, boxes, scores, DefaultIoUThreshold)
	}
}

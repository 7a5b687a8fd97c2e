package visualize

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var background = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestDraw(t *testing.T) {
	src := imaging.New(200, 100, background)
	results := []postprocess.Result{
		{Box: images.Box{YMin: 0.5, XMin: 0.5, YMax: 0.9, XMax: 0.9}, Score: 0.9, Class: 1},
		{Box: images.Box{YMin: 0.1, XMin: 0.05, YMax: 0.3, XMax: 0.2}, Score: 0.1, Class: 3},
	}

	opts := DefaultOptions()
	opts.Labels = models.COCOClasses
	out := Draw(src, results, opts)

	require.Equal(t, src.Bounds(), out.Bounds())

	// Right edge of the visible box at x = 180, y = 50..90.
	assert.False(t, sameColor(background, out.At(180, 75)), "box outline drawn")
	// Right edge of the hidden box at x = 40, y = 10..30.
	assert.True(t, sameColor(background, out.At(40, 20)), "low score box skipped")
	// Interior stays untouched.
	assert.True(t, sameColor(background, out.At(150, 85)))

	assert.True(t, sameColor(background, src.At(180, 75)), "source image is not modified")
}

func TestDraw_GroundTruth(t *testing.T) {
	src := imaging.New(100, 100, background)
	opts := DefaultOptions()
	opts.GroundTruth = []images.Box{{YMin: 0.2, XMin: 0.2, YMax: 0.6, XMax: 0.6}}

	out := Draw(src, nil, opts)

	assert.True(t, sameColor(GroundTruthColor, out.At(60, 40)))
}

func TestClassColor(t *testing.T) {
	assert.True(t, sameColor(ClassColor(5), ClassColor(5)))
	assert.False(t, sameColor(ClassColor(1), ClassColor(2)))
	assert.NotNil(t, ClassColor(-1))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "viz_0000.png", FileName(0))
	assert.Equal(t, "viz_0042.png", FileName(42))
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs", FileName(3))
	require.NoError(t, SavePNG(path, imaging.New(10, 10, background)))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestPlotPRCurve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pr.png")
	curves := []NamedCurve{
		{Name: "000001", Curve: evaluation.Curve{Precision: []float64{1, 0.5, 0.66}, Recall: []float64{0.5, 0.5, 1}}},
		{Name: "empty"},
	}

	require.NoError(t, PlotPRCurve(path, curves))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

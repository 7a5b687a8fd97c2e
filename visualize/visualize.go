// Package visualize renders detections onto images and plots
// precision/recall curves.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Options controls how detections are drawn.
type Options struct {
	// ScoreThreshold hides detections scoring below it.
	ScoreThreshold float64
	// LineWidth is the box outline width in pixels.
	LineWidth float64
	// FontSize is the caption size in points.
	FontSize float64
	// Labels names class indices in captions; nil prints the index.
	Labels *models.OutputClassSet
	// GroundTruth boxes are outlined in GroundTruthColor under the detections.
	GroundTruth []images.Box
}

// GroundTruthColor outlines ground-truth boxes.
var GroundTruthColor = color.NRGBA{R: 0, G: 200, B: 0, A: 255}

// DefaultOptions matches the CLI defaults.
func DefaultOptions() Options {
	return Options{
		ScoreThreshold: 0.3,
		LineWidth:      2,
		FontSize:       8,
	}
}

// ClassColor returns a stable, well separated colour for a class index.
func ClassColor(class int) color.Color {
	hue := float64(((class*47)%360 + 360) % 360)
	return colorful.Hsv(hue, 0.85, 0.95).Clamped()
}

// FileName is the output name of the i-th visualized image.
func FileName(i int) string {
	return fmt.Sprintf("viz_%04d.png", i)
}

// Draw returns a copy of img with results drawn on top. Each box is
// denormalized to the image size and captioned "<label> <score>".
func Draw(img image.Image, results []postprocess.Result, opts Options) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := dc.Width(), dc.Height()

	for _, b := range opts.GroundTruth {
		drawRect(dc, b.Rect(w, h), GroundTruthColor, opts.LineWidth)
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: opts.FontSize}))
	for _, r := range results {
		if r.Score < opts.ScoreThreshold {
			continue
		}
		rect := r.Box.Rect(w, h)
		drawRect(dc, rect, ClassColor(r.Class), opts.LineWidth)
		drawCaption(dc, fmt.Sprintf("%s %.2f", opts.Labels.Label(r.Class), r.Score), rect.Min)
	}

	return dc.Image()
}

func drawRect(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// drawCaption writes text with its top-left corner at p on a translucent
// white background.
func drawCaption(dc *gg.Context, text string, p image.Point) {
	tw, th := dc.MeasureString(text)
	x, y := float64(p.X), float64(p.Y)

	dc.SetRGBA(1, 1, 1, 0.6)
	dc.DrawRectangle(x, y, tw+2, th+2)
	dc.Fill()

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(text, x+1, y+1, 0, 1)
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	return errors.Wrapf(imaging.Save(img, path), "failed to save %s", path)
}

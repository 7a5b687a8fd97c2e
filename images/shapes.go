// Package images - Box geometry and image loading for detection evaluation.
package images

import (
	"fmt"
	"image"
)

// IoUEpsilon keeps CalculateIoU finite when both boxes are degenerate.
const IoUEpsilon = 1e-8

// Box is a bounding box in normalized image coordinates.
//
// Coordinates are ordered (ymin, xmin, ymax, xmax) and lie in [0,1] relative to
// the image height and width. A box is only meaningful when Valid reports true;
// callers filter padding boxes with FilterValid before evaluation.
type Box struct {
	YMin float64 `json:"ymin" yaml:"ymin"`
	XMin float64 `json:"xmin" yaml:"xmin"`
	YMax float64 `json:"ymax" yaml:"ymax"`
	XMax float64 `json:"xmax" yaml:"xmax"`
}

// NewBox builds a Box from a [ymin, xmin, ymax, xmax] slice. It panics when
// fewer than four coordinates are supplied.
func NewBox(coords []float64) Box {
	return Box{YMin: coords[0], XMin: coords[1], YMax: coords[2], XMax: coords[3]}
}

// Valid reports whether the box has a strictly positive extent on both axes.
func (b Box) Valid() bool {
	return b.YMax > b.YMin && b.XMax > b.XMin
}

// Area returns the area of the box with negative extents clamped to zero.
func (b Box) Area() float64 {
	return max(0, b.YMax-b.YMin) * max(0, b.XMax-b.XMin)
}

// Rect converts the box to pixel space for an image of the given size.
//
// This loses precision, but the result is only used for drawing, where
// fractional pixels around the edges do not matter.
func (b Box) Rect(width, height int) image.Rectangle {
	return image.Rect(
		int(b.XMin*float64(width)),
		int(b.YMin*float64(height)),
		int(b.XMax*float64(width)),
		int(b.YMax*float64(height)),
	).Canon()
}

func (b Box) String() string {
	return fmt.Sprintf("[%.4f, %.4f, %.4f, %.4f]", b.YMin, b.XMin, b.YMax, b.XMax)
}

// BoxFromRect normalizes a pixel rectangle against an image of the given size.
func BoxFromRect(r image.Rectangle, width, height int) Box {
	w, h := float64(width), float64(height)
	return Box{
		YMin: float64(r.Min.Y) / h,
		XMin: float64(r.Min.X) / w,
		YMax: float64(r.Max.Y) / h,
		XMax: float64(r.Max.X) / w,
	}
}

// FilterValid returns the boxes whose extents are strictly positive, keeping
// their relative order. The input slice is not modified.
func FilterValid(boxes []Box) []Box {
	valid := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Valid() {
			valid = append(valid, b)
		}
	}
	return valid
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// The intersection is the rectangle spanned by the maximum of the minimum
// coordinates and the minimum of the maximum coordinates; negative extents
// are clamped to zero, so disjoint boxes yield exactly 0. The union uses
// inclusion-exclusion:
//
//	IoU = inter / (area(a) + area(b) - inter + IoUEpsilon)
//
// The epsilon means identical boxes score marginally below 1.0.
//
// Both boxes must be valid and normalized; the result for malformed input is
// unspecified.
//
// Example:
//
// ```go
//
//	a := Box{YMin: 0, XMin: 0, YMax: 0.5, XMax: 0.5}
//	b := Box{YMin: 0.25, XMin: 0.25, YMax: 0.75, XMax: 0.75}
//	iou := CalculateIoU(a, b) // 0.0625 / (0.25 + 0.25 - 0.0625) ≈ 0.142857
//
// ```
func CalculateIoU(a, b Box) float64 {
	iy1 := max(a.YMin, b.YMin)
	ix1 := max(a.XMin, b.XMin)
	iy2 := min(a.YMax, b.YMax)
	ix2 := min(a.XMax, b.XMax)

	inter := max(0, iy2-iy1) * max(0, ix2-ix1)
	union := a.Area() + b.Area() - inter + IoUEpsilon

	return inter / union
}

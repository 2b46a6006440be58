// Package placement maps percentage based positions on a page to screen
// pixels and PDF points.
//
// Percent space and pixel space have their origin at the top-left corner with
// y growing downwards. PDF space has its origin at the bottom-left corner
// with y growing upwards, so vertical positions are flipped.
package placement

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrGeometryUnknown means the target page has not been measured yet and
// nothing can be drawn on it.
var ErrGeometryUnknown = errors.New("page geometry unknown")

// A4 in PDF points.
var A4 = PageSize{Width: 595.28, Height: 841.89}

type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Known reports whether the page has a usable size.
func (p PageSize) Known() bool {
	return finite(p.Width) && finite(p.Height) && p.Width > 0 && p.Height > 0
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an absolute rectangle. In pixel space X,Y is the top-left corner;
// in PDF space it is the bottom-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bound converts r to an orb bound.
func (r Rect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.X, r.Y},
		Max: orb.Point{r.X + r.Width, r.Y + r.Height},
	}
}

// Placement positions an element on a page. X and Y locate its top-left
// corner; all values are percentages of the page size.
type Placement struct {
	XPercent      float64 `json:"x_percent"`
	YPercent      float64 `json:"y_percent"`
	WidthPercent  float64 `json:"width_percent"`
	HeightPercent float64 `json:"height_percent,omitempty"`
	Scale         float64 `json:"scale,omitempty"`
}

// Space selects the target coordinate system.
type Space int

const (
	SpacePixels Space = iota
	SpacePDF
)

// ClampPercent limits v to [0,100]. NaN becomes 0.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// ToPixels maps a percentage pair to pixels on a page of the given size.
func ToPixels(xPercent, yPercent float64, page PageSize) (Point, error) {
	if !page.Known() {
		return Point{}, ErrGeometryUnknown
	}
	return Point{
		X: xPercent / 100 * page.Width,
		Y: yPercent / 100 * page.Height,
	}, nil
}

// FromPixels is the inverse of ToPixels.
func FromPixels(p Point, page PageSize) (xPercent, yPercent float64, err error) {
	if !page.Known() {
		return 0, 0, ErrGeometryUnknown
	}
	return p.X / page.Width * 100, p.Y / page.Height * 100, nil
}

// ToPDF maps a percentage pair to PDF points, flipping the vertical axis:
// y=0% is the top edge (pdfY = page height) and y=100% the bottom (pdfY = 0).
func ToPDF(xPercent, yPercent float64, page PageSize) (Point, error) {
	if !page.Known() {
		return Point{}, ErrGeometryUnknown
	}
	return Point{
		X: xPercent / 100 * page.Width,
		Y: page.Height - yPercent/100*page.Height,
	}, nil
}

// FromPDF is the inverse of ToPDF.
func FromPDF(p Point, page PageSize) (xPercent, yPercent float64, err error) {
	if !page.Known() {
		return 0, 0, ErrGeometryUnknown
	}
	return p.X / page.Width * 100, (page.Height - p.Y) / page.Height * 100, nil
}

// Resolve converts a placement into an absolute rectangle in the requested
// space. When HeightPercent is zero the height follows from the width and
// aspect (width / height, 1 when unknown). Scale multiplies both sides and
// defaults to 1.
func Resolve(p Placement, page PageSize, space Space, aspect float64) (Rect, error) {
	if !page.Known() {
		return Rect{}, ErrGeometryUnknown
	}

	x := ClampPercent(p.XPercent)
	y := ClampPercent(p.YPercent)
	scale := p.Scale
	if !finite(scale) || scale <= 0 {
		scale = 1
	}
	if !finite(aspect) || aspect <= 0 {
		aspect = 1
	}

	w := ClampPercent(p.WidthPercent) / 100 * page.Width * scale
	h := w / aspect
	if p.HeightPercent > 0 {
		h = ClampPercent(p.HeightPercent) / 100 * page.Height * scale
	}

	if space == SpacePDF {
		top, _ := ToPDF(x, y, page)
		return Rect{X: top.X, Y: top.Y - h, Width: w, Height: h}, nil
	}
	origin, _ := ToPixels(x, y, page)
	return Rect{X: origin.X, Y: origin.Y, Width: w, Height: h}, nil
}

// Overlaps returns the index pairs of rectangles whose interiors intersect.
// Rectangles that only share an edge do not overlap.
func Overlaps(rects []Rect) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(rects); i++ {
		bi := rects[i].Bound()
		for j := i + 1; j < len(rects); j++ {
			bj := rects[j].Bound()
			if !bi.Intersects(bj) {
				continue
			}
			dx := math.Min(bi.Max[0], bj.Max[0]) - math.Max(bi.Min[0], bj.Min[0])
			dy := math.Min(bi.Max[1], bj.Max[1]) - math.Max(bi.Min[1], bj.Min[1])
			if dx > 0 && dy > 0 {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

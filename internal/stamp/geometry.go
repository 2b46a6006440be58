package stamp

import (
	"fmt"
	"math"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp/svg"
)

const (
	arcMarginFactor       = 1.15
	bottomArcMarginFactor = 0.45
	innerTextScale        = 0.75
	arcSamples            = 720
)

type Point struct {
	X, Y float64
}

type Rect struct {
	X, Y, W, H float64
}

// ArcMargin is the distance between the border and the baseline of the
// outer top text. It scales linearly with the font size.
func ArcMargin(fontSize float64) float64 {
	return arcMarginFactor * fontSize
}

// InnerArcMargin is ArcMargin plus one further font-size unit.
func InnerArcMargin(fontSize float64) float64 {
	return ArcMargin(fontSize) + fontSize
}

func bottomArcMargin(fontSize float64) float64 {
	return bottomArcMarginFactor * fontSize
}

// ArcPath is half of an axis-aligned ellipse running left to right, either
// over the top or under the bottom of its center.
type ArcPath struct {
	ID     string
	Center Point
	RX, RY float64
	Bottom bool
}

// D returns the SVG path data.
func (a ArcPath) D() string {
	sweep := 1
	if a.Bottom {
		sweep = 0
	}
	return fmt.Sprintf("M %s,%s A %s,%s 0 0,%d %s,%s",
		svg.Num(a.Center.X-a.RX), svg.Num(a.Center.Y),
		svg.Num(a.RX), svg.Num(a.RY), sweep,
		svg.Num(a.Center.X+a.RX), svg.Num(a.Center.Y))
}

func (a ArcPath) point(t float64) Point {
	return Point{X: a.Center.X + a.RX*math.Cos(t), Y: a.Center.Y + a.RY*math.Sin(t)}
}

// param maps u in [0,1] to the ellipse angle. Top arcs go pi -> 2pi, bottom
// arcs pi -> 0, both left to right.
func (a ArcPath) param(u float64) float64 {
	if a.Bottom {
		return math.Pi * (1 - u)
	}
	return math.Pi * (1 + u)
}

// arcTable is a polyline approximation with cumulative lengths.
type arcTable struct {
	pts []Point
	cum []float64
}

func (a ArcPath) table() arcTable {
	t := arcTable{pts: make([]Point, arcSamples+1), cum: make([]float64, arcSamples+1)}
	for i := 0; i <= arcSamples; i++ {
		t.pts[i] = a.point(a.param(float64(i) / arcSamples))
		if i > 0 {
			t.cum[i] = t.cum[i-1] + math.Hypot(t.pts[i].X-t.pts[i-1].X, t.pts[i].Y-t.pts[i-1].Y)
		}
	}
	return t
}

func (t arcTable) length() float64 {
	return t.cum[len(t.cum)-1]
}

// at returns the point at distance d along the arc and the tangent angle in
// radians. ok is false when d lies off the arc; such glyphs are not drawn,
// matching how SVG textPath drops characters past either end of its path.
func (t arcTable) at(d float64) (p Point, angle float64, ok bool) {
	if d < 0 || d > t.length() {
		return Point{}, 0, false
	}
	n := len(t.pts)
	i := 1
	for i < n-1 && t.cum[i] < d {
		i++
	}
	p0, p1 := t.pts[i-1], t.pts[i]
	seg := t.cum[i] - t.cum[i-1]
	angle = math.Atan2(p1.Y-p0.Y, p1.X-p0.X)
	if seg == 0 {
		return p0, angle, true
	}
	f := (d - t.cum[i-1]) / seg
	return Point{X: p0.X + (p1.X-p0.X)*f, Y: p0.Y + (p1.Y-p0.Y)*f}, angle, true
}

// Geometry is the per-shape layout strategy.
type Geometry interface {
	// ViewBox is the size of the SVG coordinate space.
	ViewBox() (w, h float64)
	Center() Point
	// Frame adds outlines, ring or straight text and stars to the layout.
	Frame(cfg StampConfig, l *Layout)
}

// Geometry returns the strategy for s. Unknown shapes use the round one.
func (s Shape) Geometry() Geometry {
	switch s {
	case ShapeOval:
		return ellipseGeometry{w: 400, h: 280, rx: 190, ry: 130}
	case ShapeRectangle:
		return boxGeometry{w: 400, h: 220, margin: 10}
	case ShapeSquare:
		return boxGeometry{w: 300, h: 300, margin: 10}
	default:
		return ellipseGeometry{w: 300, h: 300, rx: 140, ry: 140, circle: true}
	}
}

type ring struct {
	offset float64
	width  float64
}

// borderRings lists the outlines drawn for a style, outermost first.
func borderRings(style BorderStyle, width float64) []ring {
	rings := []ring{{offset: 0, width: width}}
	if style == BorderDouble {
		inner := math.Max(1, width/2)
		rings = append(rings, ring{offset: width*1.5 + 3, width: inner})
	}
	return rings
}

// textInset is how far inside the outline the innermost ring ends.
func textInset(style BorderStyle, width float64) float64 {
	rings := borderRings(style, width)
	last := rings[len(rings)-1]
	return last.offset + last.width/2
}

func dashFor(style BorderStyle, width float64) []float64 {
	w := math.Max(width, 1)
	switch style {
	case BorderDashed:
		return []float64{3 * w, 2 * w}
	case BorderDotted:
		return []float64{w, 1.5 * w}
	}
	return nil
}

type ellipseGeometry struct {
	w, h   float64
	rx, ry float64
	circle bool
}

func (g ellipseGeometry) ViewBox() (float64, float64) { return g.w, g.h }

func (g ellipseGeometry) Center() Point { return Point{X: g.w / 2, Y: g.h / 2} }

func (g ellipseGeometry) Frame(cfg StampConfig, l *Layout) {
	c := g.Center()
	f := cfg.FontSize
	kind := OutlineEllipse
	if g.circle {
		kind = OutlineCircle
	}

	if cfg.BorderWidth > 0 {
		for _, r := range borderRings(cfg.BorderStyle, cfg.BorderWidth) {
			l.Outlines = append(l.Outlines, Outline{
				Kind:   kind,
				Center: c,
				RX:     g.rx - r.offset,
				RY:     g.ry - r.offset,
				Width:  r.width,
				Dash:   dashFor(cfg.BorderStyle, r.width),
				Color:  cfg.PrimaryColor,
			})
		}
	}

	inset := textInset(cfg.BorderStyle, cfg.BorderWidth)
	arc := func(id string, margin float64, bottom bool) ArcPath {
		return ArcPath{
			ID:     id,
			Center: c,
			RX:     math.Max(g.rx-inset-margin, 1),
			RY:     math.Max(g.ry-inset-margin, 1),
			Bottom: bottom,
		}
	}
	l.Arcs = append(l.Arcs,
		arc(PathTop, ArcMargin(f), false),
		arc(PathBottom, bottomArcMargin(f), true),
		arc(PathInnerTop, InnerArcMargin(f), false),
		arc(PathInnerBottom, bottomArcMargin(f)+f, true),
	)

	outer := func(id, text, path string) TextRun {
		return TextRun{ID: id, Text: text, Path: path, Size: f, Bold: true,
			Color: cfg.PrimaryColor, Family: cfg.FontFamily, Spacing: cfg.LetterSpacing}
	}
	inner := func(id, text, path string) TextRun {
		return TextRun{ID: id, Text: text, Path: path, Size: f * innerTextScale,
			Color: cfg.SecondaryColor, Family: cfg.FontFamily, Spacing: cfg.LetterSpacing * innerTextScale}
	}
	l.Texts = append(l.Texts,
		outer(TextPrimary, cfg.PrimaryText, PathTop),
		outer(TextSecondary, cfg.SecondaryText, PathBottom),
	)
	if cfg.InnerTopText != "" {
		l.Texts = append(l.Texts, inner(TextInnerTop, cfg.InnerTopText, PathInnerTop))
	}
	if cfg.InnerBottomText != "" {
		l.Texts = append(l.Texts, inner(TextInnerBottom, cfg.InnerBottomText, PathInnerBottom))
	}

	if cfg.ShowStars {
		d := g.rx - inset - 0.8*f
		for _, x := range []float64{c.X - d, c.X + d} {
			l.Stars = append(l.Stars, Star{Center: Point{X: x, Y: c.Y}, Radius: 0.45 * f, Color: cfg.PrimaryColor})
		}
	}
}

type boxGeometry struct {
	w, h   float64
	margin float64
}

func (g boxGeometry) ViewBox() (float64, float64) { return g.w, g.h }

func (g boxGeometry) Center() Point { return Point{X: g.w / 2, Y: g.h / 2} }

func (g boxGeometry) Frame(cfg StampConfig, l *Layout) {
	c := g.Center()
	f := cfg.FontSize
	box := Rect{X: g.margin, Y: g.margin, W: g.w - 2*g.margin, H: g.h - 2*g.margin}

	if cfg.BorderWidth > 0 {
		for _, r := range borderRings(cfg.BorderStyle, cfg.BorderWidth) {
			l.Outlines = append(l.Outlines, Outline{
				Kind:  OutlineRect,
				Rect:  Rect{X: box.X + r.offset, Y: box.Y + r.offset, W: box.W - 2*r.offset, H: box.H - 2*r.offset},
				Width: r.width,
				Dash:  dashFor(cfg.BorderStyle, r.width),
				Color: cfg.PrimaryColor,
			})
		}
	}

	inset := textInset(cfg.BorderStyle, cfg.BorderWidth)
	top := box.Y + inset
	bottom := box.Y + box.H - inset

	straight := func(id, text string, y, size float64, bold bool, color string) TextRun {
		return TextRun{ID: id, Text: text, At: Point{X: c.X, Y: y}, Size: size, Bold: bold,
			Color: color, Family: cfg.FontFamily, Spacing: cfg.LetterSpacing * size / f}
	}
	primaryY := top + 1.5*f
	secondaryY := bottom - 0.8*f
	l.Texts = append(l.Texts,
		straight(TextPrimary, cfg.PrimaryText, primaryY, f, true, cfg.PrimaryColor),
		straight(TextSecondary, cfg.SecondaryText, secondaryY, f, true, cfg.PrimaryColor),
	)
	if cfg.InnerTopText != "" {
		l.Texts = append(l.Texts, straight(TextInnerTop, cfg.InnerTopText,
			primaryY+1.1*f, f*innerTextScale, false, cfg.SecondaryColor))
	}
	if cfg.InnerBottomText != "" {
		l.Texts = append(l.Texts, straight(TextInnerBottom, cfg.InnerBottomText,
			secondaryY-1.2*f, f*innerTextScale, false, cfg.SecondaryColor))
	}

	if cfg.ShowStars {
		d := box.W/2 - inset - 1.2*f
		for _, x := range []float64{c.X - d, c.X + d} {
			l.Stars = append(l.Stars, Star{Center: Point{X: x, Y: c.Y}, Radius: 0.45 * f, Color: cfg.PrimaryColor})
		}
	}
}

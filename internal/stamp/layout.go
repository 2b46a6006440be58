package stamp

import "math"

// Element ids shared by the SVG output and the tests.
const (
	PathTop         = "pathTop"
	PathBottom      = "pathBottom"
	PathInnerTop    = "pathInnerTop"
	PathInnerBottom = "pathInnerBottom"

	TextPrimary     = "primaryText"
	TextSecondary   = "secondaryText"
	TextInnerTop    = "innerTopText"
	TextInnerBottom = "innerBottomText"
	TextCenter      = "centerText"
	TextCenterSub   = "centerSubText"
	TextDateLine    = "dateLine"

	DistressFilterID = "distress"

	dateLineLabel  = "DATE: ____________"
	vintageOpacity = 0.88
)

type OutlineKind int

const (
	OutlineCircle OutlineKind = iota
	OutlineEllipse
	OutlineRect
)

// Outline is one border stroke.
type Outline struct {
	Kind   OutlineKind
	Center Point
	RX, RY float64
	Rect   Rect
	Width  float64
	Dash   []float64
	Color  string
}

// TextRun is a single line of text. Runs with a Path follow that arc,
// centered on its midpoint; others are centered horizontally on At, with At.Y
// as the baseline.
type TextRun struct {
	ID      string
	Text    string
	Path    string
	At      Point
	Size    float64
	Bold    bool
	Color   string
	Family  string
	Spacing float64
}

type Line struct {
	ID       string
	From, To Point
	Width    float64
	Color    string
}

// Star is a five-pointed star pointing up.
type Star struct {
	Center Point
	Radius float64
	Color  string
}

// Points returns the ten vertices, starting at the top tip.
func (s Star) Points() []Point {
	pts := make([]Point, 0, 10)
	for i := 0; i < 10; i++ {
		r := s.Radius
		if i%2 == 1 {
			r *= 0.4
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		pts = append(pts, Point{X: s.Center.X + r*math.Cos(a), Y: s.Center.Y + r*math.Sin(a)})
	}
	return pts
}

// Picture is a referenced raster image fitted into Box.
type Picture struct {
	ID   string
	Href string
	Box  Rect
}

// Layout is the resolved geometry of a stamp in view box units. Both the
// SVG renderer and the rasterizer draw from it.
type Layout struct {
	Width, Height float64
	Center        Point
	Rotation      float64
	Opacity       float64
	Distress      float64

	Outlines []Outline
	Arcs     []ArcPath
	Texts    []TextRun
	Lines    []Line
	Stars    []Star
	Pictures []Picture
}

// Arc looks up an arc path by id.
func (l *Layout) Arc(id string) (ArcPath, bool) {
	for _, a := range l.Arcs {
		if a.ID == id {
			return a, true
		}
	}
	return ArcPath{}, false
}

// Compose resolves cfg into a Layout. It never fails: cfg is normalized first.
func Compose(cfg StampConfig) *Layout {
	cfg = cfg.Normalize()
	g := cfg.Shape.Geometry()
	w, h := g.ViewBox()

	l := &Layout{
		Width:    w,
		Height:   h,
		Center:   g.Center(),
		Rotation: cfg.Rotation,
		Opacity:  1,
		Distress: cfg.DistressLevel,
	}
	if cfg.Vintage {
		l.Opacity = vintageOpacity
	}

	g.Frame(cfg, l)
	centerBlock(cfg, l)
	return l
}

// centerBlock stacks the center content at fixed font-size offsets from the
// shape center.
func centerBlock(cfg StampConfig, l *Layout) {
	c := l.Center
	f := cfg.FontSize

	if cfg.LogoURL != "" {
		l.Pictures = append(l.Pictures, Picture{ID: "logo", Href: cfg.LogoURL,
			Box: Rect{X: c.X - 1.1*f, Y: c.Y - 4.0*f, W: 2.2 * f, H: 2.2 * f}})
	}
	if cfg.ShowDateLine {
		l.Texts = append(l.Texts, TextRun{ID: TextDateLine, Text: dateLineLabel,
			At: Point{X: c.X, Y: c.Y - 1.3*f}, Size: 0.7 * f,
			Color: cfg.SecondaryColor, Family: cfg.FontFamily})
	}
	l.Texts = append(l.Texts,
		TextRun{ID: TextCenter, Text: cfg.CenterText, At: Point{X: c.X, Y: c.Y + 0.35*f},
			Size: 1.1 * f, Bold: true, Color: cfg.SecondaryColor, Family: cfg.FontFamily,
			Spacing: cfg.LetterSpacing / 2},
		TextRun{ID: TextCenterSub, Text: cfg.CenterSubText, At: Point{X: c.X, Y: c.Y + 1.35*f},
			Size: 0.7 * f, Color: cfg.SecondaryColor, Family: cfg.FontFamily},
	)
	if cfg.SignatureURL != "" {
		l.Pictures = append(l.Pictures, Picture{ID: "signature", Href: cfg.SignatureURL,
			Box: Rect{X: c.X - 2*f, Y: c.Y + 1.6*f, W: 4 * f, H: 1.3 * f}})
	}
	if cfg.ShowSignatureLine {
		y := c.Y + 3.0*f
		l.Lines = append(l.Lines, Line{ID: "signatureLine",
			From: Point{X: c.X - 3*f, Y: y}, To: Point{X: c.X + 3*f, Y: y},
			Width: 1, Color: cfg.SecondaryColor})
	}
}

package stamp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strings"
	"sync"

	// Registered decoders for embedded logo and signature images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
)

const (
	MaxRasterScale     = 16.0
	DefaultRasterScale = 4.0

	ellipseSegments = 360
	glyphPad        = 2
)

var ErrInvalidScale = errors.New("raster scale out of range")

var (
	fontsOnce    sync.Once
	regularFonts *text.FontSource
	boldFonts    *text.FontSource
	fontsErr     error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regularFonts, fontsErr = text.NewFontSource(goregular.TTF)
		if fontsErr != nil {
			return
		}
		boldFonts, fontsErr = text.NewFontSource(gobold.TTF)
	})
	return fontsErr
}

// Rasterize draws cfg at scale pixels per view box unit. The output matches
// Render's geometry. The Go fonts stand in for the configured font family and
// only data: URIs are drawn for logo and signature images.
func Rasterize(cfg StampConfig, scale float64) (*image.RGBA, error) {
	return RasterizeLayout(Compose(cfg), scale)
}

// RasterizeLayout draws an already composed layout.
func RasterizeLayout(l *Layout, scale float64) (*image.RGBA, error) {
	if !finite(scale) || scale <= 0 || scale > MaxRasterScale {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("failed to load raster fonts: %w", err)
	}

	w := int(math.Ceil(l.Width * scale))
	h := int(math.Ceil(l.Height * scale))
	m := newDeviceMap(l, scale)

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.ClearWithColor(gg.Transparent)

	for _, o := range l.Outlines {
		if err := strokeOutline(dc, m, o); err != nil {
			return nil, err
		}
	}
	for _, s := range l.Stars {
		if err := fillStar(dc, m, s); err != nil {
			return nil, err
		}
	}
	for _, ln := range l.Lines {
		dc.SetHexColor(ln.Color)
		dc.SetLineWidth(ln.Width * scale)
		dc.SetDash()
		x0, y0 := m.apply(ln.From)
		x1, y1 := m.apply(ln.To)
		dc.MoveTo(x0, y0)
		dc.LineTo(x1, y1)
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("failed to stroke line %s: %w", ln.ID, err)
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), dc.Image(), image.Point{}, draw.Src)

	for _, p := range l.Pictures {
		img, err := decodeDataURI(p.Href)
		if err != nil || img == nil {
			continue
		}
		drawPicture(canvas, m, p, img)
	}

	glyphs := newGlyphCache()
	for _, t := range l.Texts {
		if t.Text == "" {
			continue
		}
		if _, err := drawText(canvas, m, l, t, glyphs); err != nil {
			return nil, err
		}
	}

	canvas = distress(canvas, l.Distress, scale)
	fade(canvas, l.Opacity)
	return canvas, nil
}

// EncodePNG rasterizes cfg and writes it as PNG.
func EncodePNG(w io.Writer, cfg StampConfig, scale float64) error {
	img, err := Rasterize(cfg, scale)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	defer dc.Close()
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode stamp png: %w", err)
	}
	return nil
}

// deviceMap converts view box coordinates to pixels, applying the stamp
// rotation about its center.
type deviceMap struct {
	scale    float64
	cos, sin float64
	angle    float64
	center   Point
}

func newDeviceMap(l *Layout, scale float64) deviceMap {
	a := l.Rotation * math.Pi / 180
	return deviceMap{scale: scale, cos: math.Cos(a), sin: math.Sin(a), angle: a, center: l.Center}
}

func (m deviceMap) apply(p Point) (float64, float64) {
	dx, dy := p.X-m.center.X, p.Y-m.center.Y
	x := m.center.X + dx*m.cos - dy*m.sin
	y := m.center.Y + dx*m.sin + dy*m.cos
	return x * m.scale, y * m.scale
}

func outlinePoints(o Outline) []Point {
	if o.Kind == OutlineRect {
		r := o.Rect
		return []Point{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X + r.W, r.Y + r.H}, {r.X, r.Y + r.H}}
	}
	pts := make([]Point, ellipseSegments)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / ellipseSegments
		pts[i] = Point{X: o.Center.X + o.RX*math.Cos(t), Y: o.Center.Y + o.RY*math.Sin(t)}
	}
	return pts
}

func tracePolygon(dc *gg.Context, m deviceMap, pts []Point) {
	for i, p := range pts {
		x, y := m.apply(p)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
}

func strokeOutline(dc *gg.Context, m deviceMap, o Outline) error {
	dc.SetHexColor(o.Color)
	dc.SetLineWidth(o.Width * m.scale)
	if len(o.Dash) > 0 {
		dash := make([]float64, len(o.Dash))
		for i, d := range o.Dash {
			dash[i] = d * m.scale
		}
		dc.SetDash(dash...)
	} else {
		dc.SetDash()
	}
	tracePolygon(dc, m, outlinePoints(o))
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("failed to stroke outline: %w", err)
	}
	return nil
}

func fillStar(dc *gg.Context, m deviceMap, s Star) error {
	dc.SetHexColor(s.Color)
	tracePolygon(dc, m, s.Points())
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("failed to fill star: %w", err)
	}
	return nil
}

// blit draws src onto dst so that the source pixel anchor lands on (x, y),
// rotated by angle and scaled by k.
func blit(dst *image.RGBA, src image.Image, anchor Point, x, y, angle, kx, ky float64) {
	cos, sin := math.Cos(angle), math.Sin(angle)
	a, b := cos*kx, -sin*ky
	d, e := sin*kx, cos*ky
	s2d := f64.Aff3{
		a, b, x - (a*anchor.X + b*anchor.Y),
		d, e, y - (d*anchor.X + e*anchor.Y),
	}
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Over, nil)
}

// drawPicture fits img inside the picture box keeping its aspect ratio.
func drawPicture(dst *image.RGBA, m deviceMap, p Picture, img image.Image) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	k := math.Min(p.Box.W/float64(b.Dx()), p.Box.H/float64(b.Dy())) * m.scale
	x, y := m.apply(Point{X: p.Box.X + p.Box.W/2, Y: p.Box.Y + p.Box.H/2})
	anchor := Point{X: float64(b.Min.X) + float64(b.Dx())/2, Y: float64(b.Min.Y) + float64(b.Dy())/2}
	blit(dst, img, anchor, x, y, m.angle, k, k)
}

type glyphKey struct {
	r     rune
	bold  bool
	size  float64
	color string
}

type glyph struct {
	img     image.Image
	advance float64
	anchor  Point
}

type glyphCache struct {
	faces  map[glyphKey]text.Face
	glyphs map[glyphKey]glyph
}

func newGlyphCache() *glyphCache {
	return &glyphCache{faces: map[glyphKey]text.Face{}, glyphs: map[glyphKey]glyph{}}
}

func (c *glyphCache) face(bold bool, size float64) text.Face {
	k := glyphKey{bold: bold, size: size}
	if f, ok := c.faces[k]; ok {
		return f
	}
	src := regularFonts
	if bold {
		src = boldFonts
	}
	f := src.Face(size)
	c.faces[k] = f
	return f
}

// get renders r on its own small transparent canvas. The anchor is the
// horizontal middle of the advance on the baseline.
func (c *glyphCache) get(r rune, bold bool, size float64, color string) glyph {
	k := glyphKey{r: r, bold: bold, size: size, color: color}
	if g, ok := c.glyphs[k]; ok {
		return g
	}
	face := c.face(bold, size)
	s := string(r)
	adv := face.Advance(s)
	metrics := face.Metrics()

	w := int(math.Ceil(adv)) + 2*glyphPad
	h := int(math.Ceil(metrics.Ascent+metrics.Descent)) + 2*glyphPad
	dc := gg.NewContext(w, h)
	dc.ClearWithColor(gg.Transparent)
	dc.SetFont(face)
	dc.SetHexColor(color)
	dc.DrawString(s, glyphPad, glyphPad+metrics.Ascent)
	g := glyph{
		img:     dc.Image(),
		advance: adv,
		anchor:  Point{X: glyphPad + adv/2, Y: glyphPad + metrics.Ascent},
	}
	_ = dc.Close()
	c.glyphs[k] = g
	return g
}

// drawText places a run glyph by glyph, either along its arc or on a
// straight baseline, centered like text-anchor="middle". It returns the
// number of glyphs drawn; arc glyphs whose midpoint falls off the arc are
// skipped.
func drawText(dst *image.RGBA, m deviceMap, l *Layout, t TextRun, cache *glyphCache) (int, error) {
	size := t.Size * m.scale
	runes := []rune(t.Text)
	glyphs := make([]glyph, len(runes))
	total := 0.0
	for i, r := range runes {
		glyphs[i] = cache.get(r, t.Bold, size, t.Color)
		total += glyphs[i].advance
	}
	spacing := t.Spacing * m.scale
	total += spacing * float64(len(runes)-1)

	var table arcTable
	start := -total / 2
	if t.Path != "" {
		arc, ok := l.Arc(t.Path)
		if !ok {
			return 0, fmt.Errorf("text %s references unknown path %s", t.ID, t.Path)
		}
		table = arc.table()
		start += table.length() * m.scale / 2
	}

	pos := start
	drawn := 0
	for _, g := range glyphs {
		mid := pos + g.advance/2
		pos += g.advance + spacing

		var p Point
		angle := 0.0
		if t.Path != "" {
			var ok bool
			if p, angle, ok = table.at(mid / m.scale); !ok {
				continue
			}
		} else {
			p = Point{X: t.At.X + mid/m.scale, Y: t.At.Y}
		}
		x, y := m.apply(p)
		blit(dst, g.img, g.anchor, x, y, angle+m.angle, 1, 1)
		drawn++
	}
	return drawn, nil
}

// decodeDataURI decodes base64 data: URIs. Other references yield nil.
func decodeDataURI(href string) (image.Image, error) {
	if !strings.HasPrefix(href, "data:") {
		return nil, nil
	}
	comma := strings.IndexByte(href, ',')
	if comma < 0 || !strings.HasSuffix(href[:comma], ";base64") {
		return nil, errors.New("unsupported data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(href[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode data uri: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

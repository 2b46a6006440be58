package stamp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp/svg"
)

func serialize(t *testing.T, cfg StampConfig) string {
	t.Helper()
	out, err := Serialize(Render(cfg))
	require.NoError(t, err)
	return string(out)
}

func TestRenderRoundPlacesPrimaryTextOnTopArc(t *testing.T) {
	out := serialize(t, StampConfig{Shape: ShapeRound, PrimaryText: "TEST CO", CenterText: "OFFICIAL"})

	assert.True(t, strings.HasPrefix(out, svg.Declaration))
	assert.Contains(t, out, "<textPath")
	assert.Contains(t, out, `href="#pathTop"`)
	assert.Contains(t, out, "TEST CO")
	assert.Contains(t, out, "OFFICIAL")
	assert.Contains(t, out, `<path id="pathTop"`)
}

func TestRenderWithoutDistressHasNoFilter(t *testing.T) {
	for _, shape := range []Shape{ShapeRound, ShapeOval, ShapeRectangle, ShapeSquare} {
		cfg := DefaultConfig()
		cfg.Shape = shape
		cfg.DistressLevel = 0
		cfg.Vintage = true

		doc := Render(cfg)
		withFilter := doc.Root.FindAll(func(n *svg.Node) bool {
			_, ok := n.Attr("filter")
			return ok
		})
		assert.Empty(t, withFilter, shape)
		assert.Empty(t, doc.Root.FindAll(svg.ByName("filter")), shape)
	}
}

func TestRenderWithDistressFiltersShapeAndText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DistressLevel = 0.5

	doc := Render(cfg)
	filter := doc.Find(DistressFilterID)
	require.NotNil(t, filter)

	maps := filter.FindAll(svg.ByName("feDisplacementMap"))
	require.Len(t, maps, 1)
	scale, _ := maps[0].Attr("scale")
	assert.Equal(t, "4", scale)

	for _, id := range []string{"shape", "text"} {
		ref, ok := doc.Find(id).Attr("filter")
		assert.True(t, ok, id)
		assert.Equal(t, "url(#distress)", ref)
	}
}

func TestArcMarginScalesWithFontSize(t *testing.T) {
	assert.InDelta(t, 2*ArcMargin(12), ArcMargin(24), 1e-9)
	assert.InDelta(t, ArcMargin(12)+12, InnerArcMargin(12), 1e-9)

	margin := func(shape Shape, size float64) float64 {
		cfg := DefaultConfig()
		cfg.Shape = shape
		cfg.BorderStyle = BorderSolid
		cfg.FontSize = size
		l := Compose(cfg)
		arc, ok := l.Arc(PathTop)
		require.True(t, ok)
		return l.Width/2 - 10 - textInset(cfg.BorderStyle, cfg.BorderWidth) - arc.RX
	}

	for _, shape := range []Shape{ShapeRound, ShapeOval} {
		small, large := margin(shape, 12), margin(shape, 24)
		assert.Greater(t, large, small, shape)
		assert.InDelta(t, 2*small, large, 1e-9, shape)
	}
}

func TestInnerArcsSitInsideOuterArcs(t *testing.T) {
	l := Compose(DefaultConfig())
	top, _ := l.Arc(PathTop)
	innerTop, _ := l.Arc(PathInnerTop)
	bottom, _ := l.Arc(PathBottom)
	innerBottom, _ := l.Arc(PathInnerBottom)

	assert.InDelta(t, top.RX-DefaultFontSize, innerTop.RX, 1e-9)
	assert.InDelta(t, bottom.RX-DefaultFontSize, innerBottom.RX, 1e-9)
	assert.True(t, bottom.Bottom)
	assert.Equal(t, "M 36.65,150 A 113.35,113.35 0 0,1 263.35,150", top.D())
}

func TestRectangleUsesStraightText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shape = ShapeRectangle
	doc := Render(cfg)

	assert.Empty(t, doc.Root.FindAll(svg.ByName("textPath")))
	assert.Empty(t, doc.Root.FindAll(svg.ByName("path")))
	assert.Len(t, doc.Root.FindAll(svg.ByName("rect")), 2)

	primary := doc.Find(TextPrimary)
	require.NotNil(t, primary)
	assert.Equal(t, cfg.PrimaryText, primary.Text)
	x, _ := primary.Attr("x")
	assert.Equal(t, "200", x)
}

func TestDoubleBorderDrawsTwoOutlines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BorderStyle = BorderDouble
	assert.Len(t, Render(cfg).Root.FindAll(svg.ByName("circle")), 2)

	cfg.BorderStyle = BorderDashed
	circles := Render(cfg).Root.FindAll(svg.ByName("circle"))
	require.Len(t, circles, 1)
	dash, ok := circles[0].Attr("stroke-dasharray")
	assert.True(t, ok)
	assert.Equal(t, "9 6", dash)
}

func TestEmptyTextFieldsKeepTextNodes(t *testing.T) {
	doc := Render(StampConfig{Shape: ShapeOval})

	for _, id := range []string{TextPrimary, TextSecondary, TextCenter, TextCenterSub} {
		assert.NotNil(t, doc.Find(id), id)
	}
	assert.Nil(t, doc.Find(TextInnerTop))
}

func TestRenderIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rotation = 12
	cfg.DistressLevel = 0.3
	assert.Equal(t, serialize(t, cfg), serialize(t, cfg))
	assert.Contains(t, serialize(t, cfg), `transform="rotate(12 150 150)"`)
}

func TestCenterBlockOptionalElements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowDateLine = true
	cfg.ShowSignatureLine = true
	cfg.LogoURL = "https://example.com/logo.png"

	doc := Render(cfg)
	assert.NotNil(t, doc.Find(TextDateLine))
	assert.NotNil(t, doc.Find("signatureLine"))
	logo := doc.Find("logo")
	require.NotNil(t, logo)
	href, _ := logo.Attr("xlink:href")
	assert.Equal(t, cfg.LogoURL, href)
	assert.Nil(t, doc.Find("signature"))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "acme_corp_stamp.svg", ExportFilename("Acme Corp"))
	assert.Equal(t, "stamp.svg", ExportFilename("   "))
	assert.Equal(t, "acme_corp_stamp.png", RasterFilename("Acme Corp"))
}

func TestNormalize(t *testing.T) {
	n := StampConfig{
		Shape:         "oval",
		PrimaryText:   "  ACME  ",
		FontSize:      -3,
		BorderStyle:   "wavy",
		DistressLevel: 4,
		Rotation:      370,
	}.Normalize()

	assert.Equal(t, ShapeOval, n.Shape)
	assert.Equal(t, "ACME", n.PrimaryText)
	assert.Equal(t, DefaultFontSize, n.FontSize)
	assert.Equal(t, BorderSolid, n.BorderStyle)
	assert.Equal(t, 1.0, n.DistressLevel)
	assert.InDelta(t, 10.0, n.Rotation, 1e-9)
	assert.Equal(t, DefaultPrimaryColor, n.SecondaryColor)
}

package stamp

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opaquePixels(img *image.RGBA) int {
	n := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			n++
		}
	}
	return n
}

func TestRasterizeSizeFollowsScale(t *testing.T) {
	img, err := Rasterize(DefaultConfig(), 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 600, 600), img.Bounds())

	cfg := DefaultConfig()
	cfg.Shape = ShapeRectangle
	img, err = Rasterize(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 220), img.Bounds())
}

func TestRasterizeDrawsBorderAndText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BorderStyle = BorderSolid

	img, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	assert.Greater(t, opaquePixels(img), 500)

	// The outline passes through the top of the circle.
	hit := false
	for y := 8; y <= 12; y++ {
		if img.RGBAAt(150, y).A > 0 {
			hit = true
		}
	}
	assert.True(t, hit)
	assert.Zero(t, img.RGBAAt(2, 2).A)
}

func TestRasterizeRejectsBadScale(t *testing.T) {
	for _, s := range []float64{0, -1, MaxRasterScale + 1} {
		_, err := Rasterize(DefaultConfig(), s)
		assert.ErrorIs(t, err, ErrInvalidScale)
	}
}

func TestRasterizeDistress(t *testing.T) {
	cfg := DefaultConfig()
	crisp, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	again, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, crisp.Pix, again.Pix)

	cfg.DistressLevel = 1
	worn, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	assert.NotEqual(t, crisp.Pix, worn.Pix)
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, DefaultConfig(), 1))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
}

func TestDecodeDataURI(t *testing.T) {
	img, err := decodeDataURI("https://example.com/logo.png")
	assert.NoError(t, err)
	assert.Nil(t, img)

	_, err = decodeDataURI("data:image/png,plain")
	assert.Error(t, err)

	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	img, err = decodeDataURI("data:image/png;base64," + encodeBase64(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestArcTableLength(t *testing.T) {
	arc := ArcPath{Center: Point{X: 0, Y: 0}, RX: 10, RY: 10}
	table := arc.table()
	assert.InDelta(t, 31.4159, table.length(), 0.01)

	p, angle, ok := table.at(table.length() / 2)
	require.True(t, ok)
	assert.InDelta(t, 0, p.X, 0.05)
	assert.InDelta(t, -10, p.Y, 0.05)
	assert.InDelta(t, 0, angle, 0.01)

	_, _, ok = table.at(-0.1)
	assert.False(t, ok)
	_, _, ok = table.at(table.length() + 0.1)
	assert.False(t, ok)
}

func TestArcTextOverflowIsDropped(t *testing.T) {
	draw := func(primary string) (drawn, runes int) {
		t.Helper()
		cfg := DefaultConfig()
		cfg.PrimaryText = primary
		l := Compose(cfg.Normalize())
		for _, run := range l.Texts {
			if run.Path != PathTop {
				continue
			}
			canvas := image.NewRGBA(image.Rect(0, 0, 300, 300))
			n, err := drawText(canvas, newDeviceMap(l, 1), l, run, newGlyphCache())
			require.NoError(t, err)
			return n, len([]rune(run.Text))
		}
		t.Fatal("no text on pathTop")
		return 0, 0
	}

	drawn, runes := draw("ACME LTD")
	assert.Equal(t, runes, drawn)

	drawn, runes = draw(strings.Repeat("KENYA NATIONAL CHAMBER OF COMMERCE ", 6))
	assert.Greater(t, drawn, 0)
	assert.Less(t, drawn, runes)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestDistressIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DistressLevel = 0.6
	first, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	second, err := Rasterize(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Pix, second.Pix)

	for _, p := range [][2]float64{{0, 0}, {0.3, 7.9}, {12.5, -4}, {101, 33}} {
		v := fractalNoise(noiseX, p[0], p[1])
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/pdf"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(72, 72, "page")
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func docxBytes(t *testing.T, pages string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document/>`))
	require.NoError(t, err)
	if pages != "" {
		w, err = zw.Create("docProps/app.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(`<Properties><Pages>` + pages + `</Pages></Properties>`))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeRasterizer struct {
	pages []image.Image
	err   error
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, kind SourceKind, data []byte) ([]image.Image, error) {
	return f.pages, f.err
}

func newTestPipeline(r Rasterizer) *Pipeline {
	now := func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	return NewPipeline(r, pdf.NewComposer(pdf.DefaultOptions()),
		PipelineOptions{PreviewWidth: 100, StampScale: 1, Now: now}, zap.NewNop())
}

func TestDetectKind(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want SourceKind
	}{
		"pdf":  {[]byte("%PDF-1.7\n"), KindPDF},
		"jpeg": {[]byte{0xff, 0xd8, 0xff, 0xe0}, KindJPEG},
		"png":  {[]byte("\x89PNG\r\n\x1a\n...."), KindPNG},
		"webp": {[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), KindWEBP},
		"bmp":  {[]byte("BM\x00\x00"), KindBMP},
		"tiff": {[]byte("II*\x00"), KindTIFF},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			kind, err := DetectKind(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, kind)
		})
	}

	kind, err := DetectKind(docxBytes(t, ""))
	require.NoError(t, err)
	assert.Equal(t, KindDOCX, kind)

	_, err = DetectKind([]byte("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestCountPages(t *testing.T) {
	n, err := CountPages(pdfBytes(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountPages(pngBytes(t, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = CountPages(docxBytes(t, "7"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = CountPages(docxBytes(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommandRasterizerPDF(t *testing.T) {
	page := pngBytes(t, 10, 14)
	var calls []string
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		if name == "pdftoppm" {
			assert.Contains(t, args, "source.pdf")
			assert.FileExists(t, filepath.Join(dir, "source.pdf"))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "page-2.png"), page, 0o600))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "page-1.png"), page, 0o600))
		}
		return nil, nil
	}
	r := NewRasterizer(RasterizerOptions{Runner: runner}, zap.NewNop())

	pages, err := r.Rasterize(context.Background(), KindPDF, pdfBytes(t, 2))
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, []string{"pdftoppm"}, calls)
}

func TestCommandRasterizerDOCXConvertsFirst(t *testing.T) {
	page := pngBytes(t, 10, 14)
	var calls []string
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		switch name {
		case "soffice":
			require.NoError(t, os.WriteFile(filepath.Join(dir, "source.pdf"), []byte("%PDF-1.4"), 0o600))
		case "pdftoppm":
			require.NoError(t, os.WriteFile(filepath.Join(dir, "page-1.png"), page, 0o600))
		}
		return nil, nil
	}
	r := NewRasterizer(RasterizerOptions{Runner: runner}, zap.NewNop())

	pages, err := r.Rasterize(context.Background(), KindDOCX, docxBytes(t, "1"))
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, []string{"soffice", "pdftoppm"}, calls)
}

func TestCommandRasterizerFailure(t *testing.T) {
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		return []byte("boom"), errors.New("exit status 1")
	}
	r := NewRasterizer(RasterizerOptions{Runner: runner}, zap.NewNop())
	_, err := r.Rasterize(context.Background(), KindPDF, pdfBytes(t, 1))
	assert.Error(t, err)
}

func TestCommandRasterizerDecodesImages(t *testing.T) {
	r := NewRasterizer(RasterizerOptions{}, zap.NewNop())
	pages, err := r.Rasterize(context.Background(), KindPNG, pngBytes(t, 5, 6))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 5, pages[0].Bounds().Dx())
}

func TestPreviewScalesPages(t *testing.T) {
	p := newTestPipeline(NewRasterizer(RasterizerOptions{}, zap.NewNop()))

	pages, kind, err := p.Preview(context.Background(), pngBytes(t, 400, 600))
	require.NoError(t, err)
	assert.Equal(t, KindPNG, kind)
	require.Len(t, pages, 1)
	assert.Equal(t, 100, pages[0].Width)
	assert.Equal(t, 150, pages[0].Height)
	assert.True(t, bytes.HasPrefix(pages[0].JPEG, []byte{0xff, 0xd8}))
}

func TestRunProducesPDF(t *testing.T) {
	p := newTestPipeline(NewRasterizer(RasterizerOptions{}, zap.NewNop()))
	cfg := stamp.DefaultConfig()

	result, err := p.Run(context.Background(), SignJob{
		Title:    "Lease Agreement",
		Filename: "lease.png",
		Data:     pngBytes(t, 120, 170),
		Overlays: []Overlay{
			{Kind: OverlayStamp, Stamp: &cfg, Placement: placement.Placement{XPercent: 60, YPercent: 70, WidthPercent: 25}},
			{Kind: OverlayDate, Placement: placement.Placement{XPercent: 10, YPercent: 90, WidthPercent: 20}},
			{Kind: OverlaySignature, Image: "data:image/png;base64," + b64(pngBytes(t, 30, 10)),
				Placement: placement.Placement{XPercent: 10, YPercent: 80, WidthPercent: 20}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Lease_Agreement_Signed.pdf", result.Filename)
	assert.Equal(t, KindPNG, result.Kind)
	assert.Equal(t, 1, result.Pages)
	assert.True(t, bytes.HasPrefix(result.PDF, []byte("%PDF-")))

	require.Len(t, result.Report.Outcomes, 4)
	_, failed := result.Report.Failed()
	assert.False(t, failed)
}

func TestRunStopsAtFirstFailingStage(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		p := newTestPipeline(&fakeRasterizer{})
		_, err := p.Run(context.Background(), SignJob{Data: []byte("nope")})
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageLoad, stageErr.Stage)
		assert.ErrorIs(t, err, ErrUnsupportedSource)
	})

	t.Run("rasterize", func(t *testing.T) {
		p := newTestPipeline(&fakeRasterizer{err: errors.New("converter missing")})
		_, err := p.Run(context.Background(), SignJob{Data: pdfBytes(t, 1)})
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageRasterize, stageErr.Stage)
	})

	t.Run("place", func(t *testing.T) {
		page := image.NewRGBA(image.Rect(0, 0, 10, 10))
		p := newTestPipeline(&fakeRasterizer{pages: []image.Image{page}})
		_, err := p.Run(context.Background(), SignJob{
			Data:     pdfBytes(t, 1),
			Overlays: []Overlay{{Kind: OverlayText, Text: "Hi", Page: 3}},
		})
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StagePlace, stageErr.Stage)
		assert.ErrorIs(t, err, ErrInvalidOverlay)
	})

	t.Run("empty", func(t *testing.T) {
		p := newTestPipeline(&fakeRasterizer{})
		_, err := p.Run(context.Background(), SignJob{})
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})
}

func TestTargetPages(t *testing.T) {
	all, err := targetPages(Overlay{Pages: PagesAll}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, all)

	last, err := targetPages(Overlay{Pages: PagesLast}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, last)

	one, err := targetPages(Overlay{Page: 2, Pages: PagesFirst}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, one)

	_, err = targetPages(Overlay{Pages: "odd"}, 3)
	assert.ErrorIs(t, err, ErrInvalidOverlay)
}

func TestPlaceFlipsToTopLeft(t *testing.T) {
	p := newTestPipeline(&fakeRasterizer{})
	perPage, err := p.place([]Overlay{{
		Kind:      OverlayText,
		Text:      "Received",
		Placement: placement.Placement{XPercent: 10, YPercent: 20, WidthPercent: 30, HeightPercent: 5},
	}}, 1)
	require.NoError(t, err)
	require.Len(t, perPage[0], 1)

	o := perPage[0][0]
	assert.InDelta(t, 0.10*placement.A4.Width, o.X, 1e-9)
	assert.InDelta(t, 0.20*placement.A4.Height, o.Y, 1e-9)
	assert.InDelta(t, 0.05*placement.A4.Height, o.H, 1e-9)
}

func TestSignedFilename(t *testing.T) {
	assert.Equal(t, "Offer_Letter_Signed.pdf", SignedFilename("Offer Letter", "x.pdf"))
	assert.Equal(t, "contract_Signed.pdf", SignedFilename("", "contract.docx"))
	assert.Equal(t, "document_Signed.pdf", SignedFilename("", ""))
}

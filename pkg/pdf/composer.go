// Package pdf composes output documents from page images and overlays.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var ErrNoPages = errors.New("no pages to compose")

// Image types understood by the composer.
const (
	ImageJPEG = "JPG"
	ImagePNG  = "PNG"
)

// OverlayKind selects how an overlay is drawn.
type OverlayKind string

const (
	OverlayImage OverlayKind = "image"
	OverlayText  OverlayKind = "text"
)

// Overlay is drawn on top of a page image. X and Y locate the top-left
// corner in points from the top-left of the page.
type Overlay struct {
	Kind      OverlayKind
	X, Y      float64
	W, H      float64
	Image     []byte
	ImageType string
	Text      string
	FontSize  float64
	Color     string
}

// Page is one output page. Its background image is stretched over the whole
// page.
type Page struct {
	Image     []byte
	ImageType string
	Overlays  []Overlay
}

// Options configures the output document.
type Options struct {
	Width      float64
	Height     float64
	Title      string
	Author     string
	Creator    string
	FontFamily string
}

// DefaultOptions produces A4 portrait pages measured in points.
func DefaultOptions() Options {
	return Options{
		Width:      595.28,
		Height:     841.89,
		Creator:    "Stamp Studio",
		FontFamily: "Helvetica",
	}
}

// Composer renders pages into a PDF document.
type Composer interface {
	Compose(ctx context.Context, pages []Page, w io.Writer) error
}

type composer struct {
	options Options
}

func NewComposer(options Options) Composer {
	def := DefaultOptions()
	if options.Width <= 0 || options.Height <= 0 {
		options.Width, options.Height = def.Width, def.Height
	}
	if options.FontFamily == "" {
		options.FontFamily = def.FontFamily
	}
	if options.Creator == "" {
		options.Creator = def.Creator
	}
	return &composer{options: options}
}

func (c *composer) Compose(ctx context.Context, pages []Page, w io.Writer) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	size := gofpdf.SizeType{Wd: c.options.Width, Ht: c.options.Height}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           size,
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(c.options.Creator, true)
	if c.options.Title != "" {
		pdf.SetTitle(c.options.Title, true)
	}
	if c.options.Author != "" {
		pdf.SetAuthor(c.options.Author, true)
	}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		pdf.AddPage()

		name := fmt.Sprintf("page-%d", i)
		if err := c.placeImage(pdf, name, page.Image, page.ImageType, 0, 0, size.Wd, size.Ht); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		for j, o := range page.Overlays {
			if err := c.drawOverlay(pdf, fmt.Sprintf("%s-overlay-%d", name, j), o); err != nil {
				return fmt.Errorf("page %d overlay %d: %w", i+1, j+1, err)
			}
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func (c *composer) placeImage(pdf *gofpdf.Fpdf, name string, data []byte, imageType string, x, y, w, h float64) error {
	if len(data) == 0 {
		return errors.New("empty image")
	}
	opts := gofpdf.ImageOptions{ImageType: normalizeImageType(imageType)}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to register image: %w", err)
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return pdf.Error()
}

func (c *composer) drawOverlay(pdf *gofpdf.Fpdf, name string, o Overlay) error {
	switch o.Kind {
	case OverlayImage:
		return c.placeImage(pdf, name, o.Image, o.ImageType, o.X, o.Y, o.W, o.H)
	case OverlayText:
		size := o.FontSize
		if size <= 0 {
			size = 12
		}
		r, g, b := parseHexColor(o.Color)
		pdf.SetFont(c.options.FontFamily, "", size)
		pdf.SetTextColor(r, g, b)
		// Text is drawn on its baseline, one font size below the top edge.
		pdf.Text(o.X, o.Y+size, encodeText(pdf, o.Text))
		return pdf.Error()
	default:
		return fmt.Errorf("unknown overlay kind %q", o.Kind)
	}
}

// encodeText maps UTF-8 to the cp1252 encoding of the core fonts.
func encodeText(pdf *gofpdf.Fpdf, s string) string {
	return pdf.UnicodeTranslatorFromDescriptor("")(s)
}

func normalizeImageType(t string) string {
	switch strings.ToUpper(strings.TrimPrefix(t, ".")) {
	case "PNG", "IMAGE/PNG":
		return ImagePNG
	default:
		return ImageJPEG
	}
}

// parseHexColor reads #rgb or #rrggbb, falling back to black.
func parseHexColor(s string) (int, int, int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

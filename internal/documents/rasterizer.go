package documents

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	// Source image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"go.uber.org/zap"
)

// Rasterizer turns a document into one image per page.
type Rasterizer interface {
	Rasterize(ctx context.Context, kind SourceKind, data []byte) ([]image.Image, error)
}

// CommandRunner runs an external program in dir and returns its combined
// output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// RasterizerOptions configures the external converters.
type RasterizerOptions struct {
	PDFToPPM string
	Soffice  string
	DPI      int
	Timeout  time.Duration
	Runner   CommandRunner
}

type commandRasterizer struct {
	options RasterizerOptions
	logger  *zap.Logger
}

// NewRasterizer decodes images in process and shells out to pdftoppm for
// PDF pages and to LibreOffice for Word documents.
func NewRasterizer(options RasterizerOptions, logger *zap.Logger) Rasterizer {
	if options.PDFToPPM == "" {
		options.PDFToPPM = "pdftoppm"
	}
	if options.Soffice == "" {
		options.Soffice = "soffice"
	}
	if options.DPI <= 0 {
		options.DPI = 150
	}
	if options.Timeout <= 0 {
		options.Timeout = 2 * time.Minute
	}
	if options.Runner == nil {
		options.Runner = execRunner
	}
	return &commandRasterizer{options: options, logger: logger}
}

func (r *commandRasterizer) Rasterize(ctx context.Context, kind SourceKind, data []byte) ([]image.Image, error) {
	if kind.IsImage() {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s image: %w", kind, err)
		}
		return []image.Image{img}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "stamp-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	switch kind {
	case KindPDF:
		if err := os.WriteFile(filepath.Join(dir, "source.pdf"), data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write source: %w", err)
		}
	case KindDOCX:
		if err := os.WriteFile(filepath.Join(dir, "source.docx"), data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write source: %w", err)
		}
		out, err := r.options.Runner(ctx, dir, r.options.Soffice,
			"--headless", "--convert-to", "pdf", "--outdir", dir, "source.docx")
		if err != nil {
			r.logger.Error("Word conversion failed", zap.ByteString("output", out), zap.Error(err))
			return nil, fmt.Errorf("failed to convert word document: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, kind)
	}

	out, err := r.options.Runner(ctx, dir, r.options.PDFToPPM,
		"-r", strconv.Itoa(r.options.DPI), "-png", "source.pdf", "page")
	if err != nil {
		r.logger.Error("PDF rasterization failed", zap.ByteString("output", out), zap.Error(err))
		return nil, fmt.Errorf("failed to rasterize pdf: %w", err)
	}
	return readPages(dir)
}

// readPages loads page-N.png files in page order. pdftoppm zero pads the
// page number to a common width, so lexical order is page order.
func readPages(dir string) ([]image.Image, error) {
	files, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("rasterizer produced no pages")
	}
	sort.Strings(files)

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(f), err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(f), err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

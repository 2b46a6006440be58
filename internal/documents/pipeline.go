package documents

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/filename"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/pdf"
)

// Stage names a step of the signing pipeline.
type Stage string

const (
	StageLoad      Stage = "load"
	StageRasterize Stage = "rasterize"
	StagePlace     Stage = "place"
	StageCompose   Stage = "compose"
)

var (
	ErrEmptyDocument  = errors.New("document is empty")
	ErrInvalidOverlay = errors.New("invalid overlay")
)

// StageError reports the stage that stopped a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOutcome records how one stage went.
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report lists the outcomes of the stages that ran, in order.
type Report struct {
	Outcomes []StageOutcome `json:"outcomes"`
}

// Failed returns the failed outcome, if any.
func (r Report) Failed() (StageOutcome, bool) {
	for _, o := range r.Outcomes {
		if !o.OK {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// PipelineOptions tunes rendering.
type PipelineOptions struct {
	PreviewWidth int
	JPEGQuality  int
	StampScale   float64
	Now          func() time.Time
}

// Pipeline embeds stamps, signatures and text into documents. A run stops
// at the first failing stage.
type Pipeline struct {
	rasterizer Rasterizer
	composer   pdf.Composer
	options    PipelineOptions
	logger     *zap.Logger
}

func NewPipeline(rasterizer Rasterizer, composer pdf.Composer, options PipelineOptions, logger *zap.Logger) *Pipeline {
	if options.PreviewWidth <= 0 {
		options.PreviewWidth = 1240
	}
	if options.JPEGQuality <= 0 || options.JPEGQuality > 100 {
		options.JPEGQuality = 85
	}
	if options.StampScale <= 0 {
		options.StampScale = stamp.DefaultRasterScale
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Pipeline{rasterizer: rasterizer, composer: composer, options: options, logger: logger}
}

type run struct {
	report Report
}

func (r *run) stage(ctx context.Context, s Stage, fn func() error) error {
	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = fn()
	}
	outcome := StageOutcome{Stage: s, OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		outcome.Error = err.Error()
		r.report.Outcomes = append(r.report.Outcomes, outcome)
		return &StageError{Stage: s, Err: err}
	}
	r.report.Outcomes = append(r.report.Outcomes, outcome)
	return nil
}

// Preview rasterizes every page into a JPEG no wider than the preview width.
func (p *Pipeline) Preview(ctx context.Context, data []byte) ([]PreviewPage, SourceKind, error) {
	var (
		r     run
		kind  SourceKind
		pages []image.Image
	)
	if err := r.stage(ctx, StageLoad, func() (err error) {
		kind, err = load(data)
		return err
	}); err != nil {
		return nil, "", err
	}
	if err := r.stage(ctx, StageRasterize, func() (err error) {
		pages, err = p.rasterizer.Rasterize(ctx, kind, data)
		return err
	}); err != nil {
		return nil, kind, err
	}

	out := make([]PreviewPage, 0, len(pages))
	for i, page := range pages {
		scaled := scaleToWidth(page, p.options.PreviewWidth)
		buf, err := encodeJPEG(scaled, p.options.JPEGQuality)
		if err != nil {
			return nil, kind, &StageError{Stage: StageRasterize, Err: err}
		}
		b := scaled.Bounds()
		out = append(out, PreviewPage{Number: i + 1, Width: b.Dx(), Height: b.Dy(), JPEG: buf})
	}
	return out, kind, nil
}

// Run executes load, rasterize, place and compose for job.
func (p *Pipeline) Run(ctx context.Context, job SignJob) (*SignResult, error) {
	var (
		r        run
		kind     SourceKind
		pages    []image.Image
		overlays [][]pdf.Overlay
		out      bytes.Buffer
	)

	err := r.stage(ctx, StageLoad, func() (err error) {
		kind, err = load(job.Data)
		return err
	})
	if err == nil {
		err = r.stage(ctx, StageRasterize, func() (err error) {
			pages, err = p.rasterizer.Rasterize(ctx, kind, job.Data)
			if err == nil && len(pages) == 0 {
				err = errors.New("no pages")
			}
			return err
		})
	}
	if err == nil {
		err = r.stage(ctx, StagePlace, func() (err error) {
			overlays, err = p.place(job.Overlays, len(pages))
			return err
		})
	}
	if err == nil {
		err = r.stage(ctx, StageCompose, func() error {
			docPages := make([]pdf.Page, len(pages))
			for i, page := range pages {
				bg, err := encodeJPEG(scaleToWidth(page, p.options.PreviewWidth), p.options.JPEGQuality)
				if err != nil {
					return fmt.Errorf("page %d: %w", i+1, err)
				}
				docPages[i] = pdf.Page{Image: bg, ImageType: pdf.ImageJPEG, Overlays: overlays[i]}
			}
			return p.composer.Compose(ctx, docPages, &out)
		})
	}
	if err != nil {
		p.logger.Warn("Document pipeline stopped",
			zap.String("title", job.Title), zap.Error(err))
		return nil, err
	}

	return &SignResult{
		Filename: SignedFilename(job.Title, job.Filename),
		Kind:     kind,
		Pages:    len(pages),
		PDF:      out.Bytes(),
		Report:   r.report,
	}, nil
}

// SignedFilename is "<title>_Signed.pdf", falling back to the upload name
// without its extension.
func SignedFilename(title, uploadName string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = strings.TrimSuffix(uploadName, extension(uploadName))
	}
	return filename.WithSuffix(base, "_Signed.pdf", "document_Signed.pdf")
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

func load(data []byte) (SourceKind, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}
	return DetectKind(data)
}

// targetPages resolves the 0-based page indexes an overlay is drawn on.
func targetPages(o Overlay, count int) ([]int, error) {
	if o.Page != 0 {
		if o.Page < 1 || o.Page > count {
			return nil, fmt.Errorf("%w: page %d of %d", ErrInvalidOverlay, o.Page, count)
		}
		return []int{o.Page - 1}, nil
	}
	switch o.Pages {
	case PagesFirst:
		return []int{0}, nil
	case PagesLast:
		return []int{count - 1}, nil
	case PagesAll, "":
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	default:
		return nil, fmt.Errorf("%w: page selection %q", ErrInvalidOverlay, o.Pages)
	}
}

// place renders every overlay asset once and resolves its rectangle on the
// A4 output page.
func (p *Pipeline) place(overlays []Overlay, count int) ([][]pdf.Overlay, error) {
	perPage := make([][]pdf.Overlay, count)
	page := placement.A4

	for i, o := range overlays {
		targets, err := targetPages(o, count)
		if err != nil {
			return nil, err
		}
		item, aspect, err := p.asset(o)
		if err != nil {
			return nil, fmt.Errorf("overlay %d: %w", i+1, err)
		}

		rect, err := placement.Resolve(o.Placement, page, placement.SpacePDF, aspect)
		if err != nil {
			return nil, fmt.Errorf("overlay %d: %w", i+1, err)
		}
		// The composer measures from the top-left corner.
		item.X = rect.X
		item.Y = page.Height - (rect.Y + rect.Height)
		item.W = rect.Width
		item.H = rect.Height

		for _, t := range targets {
			perPage[t] = append(perPage[t], item)
		}
	}
	return perPage, nil
}

// asset builds the drawable for an overlay and its width/height ratio.
func (p *Pipeline) asset(o Overlay) (pdf.Overlay, float64, error) {
	switch o.Kind {
	case OverlayStamp:
		if o.Stamp == nil {
			return pdf.Overlay{}, 0, fmt.Errorf("%w: stamp config missing", ErrInvalidOverlay)
		}
		img, err := stamp.Rasterize(*o.Stamp, p.options.StampScale)
		if err != nil {
			return pdf.Overlay{}, 0, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return pdf.Overlay{}, 0, fmt.Errorf("failed to encode stamp: %w", err)
		}
		b := img.Bounds()
		return pdf.Overlay{Kind: pdf.OverlayImage, Image: buf.Bytes(), ImageType: pdf.ImagePNG},
			float64(b.Dx()) / float64(b.Dy()), nil

	case OverlaySignature:
		data, err := decodeImageData(o.Image)
		if err != nil {
			return pdf.Overlay{}, 0, err
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return pdf.Overlay{}, 0, fmt.Errorf("%w: signature image: %v", ErrInvalidOverlay, err)
		}
		imageType := pdf.ImagePNG
		switch format {
		case "png":
		case "jpeg":
			imageType = pdf.ImageJPEG
		default:
			// Re-encode anything gofpdf cannot embed directly.
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return pdf.Overlay{}, 0, fmt.Errorf("%w: signature image: %v", ErrInvalidOverlay, err)
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return pdf.Overlay{}, 0, err
			}
			data = buf.Bytes()
		}
		if cfg.Width == 0 || cfg.Height == 0 {
			return pdf.Overlay{}, 0, fmt.Errorf("%w: empty signature image", ErrInvalidOverlay)
		}
		return pdf.Overlay{Kind: pdf.OverlayImage, Image: data, ImageType: imageType},
			float64(cfg.Width) / float64(cfg.Height), nil

	case OverlayText, OverlayDate:
		text := o.Text
		if o.Kind == OverlayDate && strings.TrimSpace(text) == "" {
			text = p.options.Now().Format("02/01/2006")
		}
		if strings.TrimSpace(text) == "" {
			return pdf.Overlay{}, 0, fmt.Errorf("%w: text is empty", ErrInvalidOverlay)
		}
		return pdf.Overlay{Kind: pdf.OverlayText, Text: text, FontSize: o.FontSize, Color: o.Color}, 0, nil

	default:
		return pdf.Overlay{}, 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidOverlay, o.Kind)
	}
}

// decodeImageData accepts raw base64 or a base64 data: URI.
func decodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: image missing", ErrInvalidOverlay)
	}
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: malformed data uri", ErrInvalidOverlay)
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not base64", ErrInvalidOverlay)
	}
	return data, nil
}

// scaleToWidth shrinks img to at most width pixels wide, keeping its aspect.
func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := int(float64(b.Dy()) * float64(width) / float64(b.Dx()))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// encodeJPEG flattens img onto white and encodes it.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

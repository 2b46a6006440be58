package stamp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrAnalyzerUnavailable = errors.New("image analysis is not configured")
	ErrAnalysisFailed      = errors.New("image analysis failed")
	ErrEmptyImage          = errors.New("image is required")
)

// Analyzer guesses stamp fields from a photo of an existing stamp.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*Suggestion, error)
}

// AnalyzeResult carries the raw suggestion and the config built from it.
type AnalyzeResult struct {
	Suggestion Suggestion  `json:"suggestion"`
	Config     StampConfig `json:"config"`
}

// Artifact is a rendered stamp ready to be written to a response.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Service provides stamp rendering operations
type Service struct {
	analyzer     Analyzer
	defaultScale float64
	logger       *zap.Logger
}

// NewService creates a new stamp service. analyzer may be nil.
func NewService(analyzer Analyzer, defaultScale float64, logger *zap.Logger) *Service {
	if defaultScale <= 0 || defaultScale > MaxRasterScale {
		defaultScale = DefaultRasterScale
	}
	return &Service{analyzer: analyzer, defaultScale: defaultScale, logger: logger}
}

func (s *Service) Presets(ctx context.Context) ([]Preset, error) {
	return Presets()
}

func (s *Service) Preset(ctx context.Context, id string) (*Preset, error) {
	p, err := FindPreset(id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RenderSVG renders cfg to serialized SVG.
func (s *Service) RenderSVG(ctx context.Context, cfg StampConfig) ([]byte, error) {
	return Serialize(Render(cfg))
}

// Export renders cfg as a downloadable SVG file.
func (s *Service) Export(ctx context.Context, cfg StampConfig) (*Artifact, error) {
	cfg = cfg.Normalize()
	body, err := s.RenderSVG(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Artifact{Filename: ExportFilename(cfg.PrimaryText), ContentType: SVGContentType, Body: body}, nil
}

// RenderPNG rasterizes cfg. A zero scale uses the configured default.
func (s *Service) RenderPNG(ctx context.Context, cfg StampConfig, scale float64) (*Artifact, error) {
	if scale == 0 {
		scale = s.defaultScale
	}
	cfg = cfg.Normalize()
	var buf bytes.Buffer
	if err := EncodePNG(&buf, cfg, scale); err != nil {
		return nil, err
	}
	s.logger.Debug("Rasterized stamp",
		zap.String("shape", string(cfg.Shape)),
		zap.Float64("scale", scale),
		zap.Int("bytes", buf.Len()))
	return &Artifact{Filename: RasterFilename(cfg.PrimaryText), ContentType: PNGContentType, Body: buf.Bytes()}, nil
}

// Analyze asks the analyzer for a suggestion and merges it into the
// default configuration.
func (s *Service) Analyze(ctx context.Context, image []byte, mimeType string) (*AnalyzeResult, error) {
	if s.analyzer == nil {
		return nil, ErrAnalyzerUnavailable
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	suggestion, err := s.analyzer.Analyze(ctx, image, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if suggestion == nil {
		suggestion = &Suggestion{}
	}
	return &AnalyzeResult{
		Suggestion: *suggestion,
		Config:     ApplySuggestion(DefaultConfig(), *suggestion),
	}, nil
}

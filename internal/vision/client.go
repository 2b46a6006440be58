// Package vision asks Gemini to read the fields of a stamp from a photo.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
)

var ErrNoCandidate = errors.New("model returned no suggestion")

const prompt = `This is a photo of a rubber stamp used by a Kenyan business. ` +
	`Read it and describe it so it can be recreated. shape is one of ROUND, OVAL, RECTANGLE or SQUARE. ` +
	`primaryText is the main text, usually the business name running along the top arc or first line. ` +
	`secondaryText is the bottom arc or last line, often a P.O. Box or town. ` +
	`innerTopText and innerBottomText are the smaller lines inside the ring. ` +
	`centerText is the text in the middle, often a date or RECEIVED. ` +
	`primaryColor is the ink colour as a hex code. borderStyle is one of solid, double, dashed or dotted. ` +
	`Leave a field empty when it is not visible.`

// Options configure the Gemini client. An empty BaseURL or APIVersion keeps
// the SDK default.
type Options struct {
	BaseURL    string
	APIVersion string
	Model      string
	APIKey     string
	Timeout    time.Duration
}

// Client implements stamp.Analyzer.
type Client struct {
	genai  *genai.Client
	model  string
	logger *zap.Logger
}

func NewClient(ctx context.Context, options Options, logger *zap.Logger) (*Client, error) {
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  options.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    options.BaseURL,
			APIVersion: options.APIVersion,
			Timeout:    &options.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{genai: client, model: options.Model, logger: logger}, nil
}

func responseSchema() *genai.Schema {
	str := func(enum ...string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Enum: enum}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"shape":           str(string(stamp.ShapeRound), string(stamp.ShapeOval), string(stamp.ShapeRectangle), string(stamp.ShapeSquare)),
			"primaryText":     str(),
			"secondaryText":   str(),
			"innerTopText":    str(),
			"innerBottomText": str(),
			"centerText":      str(),
			"primaryColor":    str(),
			"borderStyle":     str(string(stamp.BorderSolid), string(stamp.BorderDouble), string(stamp.BorderDashed), string(stamp.BorderDotted)),
		},
		Required: []string{"shape", "primaryText", "primaryColor", "borderStyle"},
	}
}

// Analyze sends image inline and decodes the structured reply.
func (c *Client) Analyze(ctx context.Context, image []byte, mimeType string) (*stamp.Suggestion, error) {
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      genai.Ptr[float32](0.1),
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("Vision request rejected",
				zap.Int("status", apiErr.Code),
				zap.String("message", apiErr.Message))
			return nil, fmt.Errorf("vision request failed with status %d", apiErr.Code)
		}
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	c.logger.Debug("Vision request completed", zap.Duration("took", time.Since(start)))
	return parseSuggestion(resp)
}

func parseSuggestion(resp *genai.GenerateContentResponse) (*stamp.Suggestion, error) {
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrNoCandidate
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```")
	var s stamp.Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &s); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion: %w", err)
	}
	return &s, nil
}

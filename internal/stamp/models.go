package stamp

import (
	"math"
	"strings"
)

// Shape selects the outline and the text layout branch of a stamp.
type Shape string

const (
	ShapeRound     Shape = "ROUND"
	ShapeOval      Shape = "OVAL"
	ShapeRectangle Shape = "RECTANGLE"
	ShapeSquare    Shape = "SQUARE"
)

// Valid reports whether s is one of the known shapes.
func (s Shape) Valid() bool {
	switch s {
	case ShapeRound, ShapeOval, ShapeRectangle, ShapeSquare:
		return true
	}
	return false
}

type BorderStyle string

const (
	BorderSolid  BorderStyle = "solid"
	BorderDouble BorderStyle = "double"
	BorderDashed BorderStyle = "dashed"
	BorderDotted BorderStyle = "dotted"
)

func (b BorderStyle) Valid() bool {
	switch b {
	case BorderSolid, BorderDouble, BorderDashed, BorderDotted:
		return true
	}
	return false
}

const (
	DefaultFontFamily     = "Arial, Helvetica, sans-serif"
	DefaultFontSize       = 16.0
	DefaultLetterSpacing  = 2.0
	DefaultPrimaryColor   = "#1e3a8a"
	DefaultSecondaryColor = "#1e3a8a"
	DefaultBorderWidth    = 3.0

	minFontSize = 4.0
	maxFontSize = 72.0
)

// StampConfig is the complete description of a stamp's appearance.
type StampConfig struct {
	Shape Shape `json:"shape" yaml:"shape"`

	PrimaryText     string `json:"primary_text" yaml:"primary_text"`
	SecondaryText   string `json:"secondary_text" yaml:"secondary_text"`
	InnerTopText    string `json:"inner_top_text" yaml:"inner_top_text"`
	InnerBottomText string `json:"inner_bottom_text" yaml:"inner_bottom_text"`
	CenterText      string `json:"center_text" yaml:"center_text"`
	CenterSubText   string `json:"center_sub_text" yaml:"center_sub_text"`

	FontFamily    string  `json:"font_family" yaml:"font_family"`
	FontSize      float64 `json:"font_size" yaml:"font_size"`
	LetterSpacing float64 `json:"letter_spacing" yaml:"letter_spacing"`

	PrimaryColor   string `json:"primary_color" yaml:"primary_color"`
	SecondaryColor string `json:"secondary_color" yaml:"secondary_color"`

	BorderWidth float64     `json:"border_width" yaml:"border_width"`
	BorderStyle BorderStyle `json:"border_style" yaml:"border_style"`
	Rotation    float64     `json:"rotation" yaml:"rotation"`

	LogoURL      string `json:"logo_url,omitempty" yaml:"logo_url,omitempty"`
	SignatureURL string `json:"signature_url,omitempty" yaml:"signature_url,omitempty"`

	ShowDateLine      bool    `json:"show_date_line" yaml:"show_date_line"`
	ShowSignatureLine bool    `json:"show_signature_line" yaml:"show_signature_line"`
	ShowStars         bool    `json:"show_stars" yaml:"show_stars"`
	Vintage           bool    `json:"vintage" yaml:"vintage"`
	DistressLevel     float64 `json:"distress_level" yaml:"distress_level"`
}

// DefaultConfig returns the configuration a new stamp starts from.
func DefaultConfig() StampConfig {
	return StampConfig{
		Shape:          ShapeRound,
		PrimaryText:    "COMPANY NAME LIMITED",
		SecondaryText:  "NAIROBI, KENYA",
		CenterText:     "OFFICIAL",
		FontFamily:     DefaultFontFamily,
		FontSize:       DefaultFontSize,
		LetterSpacing:  DefaultLetterSpacing,
		PrimaryColor:   DefaultPrimaryColor,
		SecondaryColor: DefaultSecondaryColor,
		BorderWidth:    DefaultBorderWidth,
		BorderStyle:    BorderDouble,
		ShowStars:      true,
	}
}

// Normalize returns a copy of c that is always renderable: text is trimmed,
// unknown enums fall back to defaults and numeric fields are clamped.
func (c StampConfig) Normalize() StampConfig {
	n := c

	n.PrimaryText = strings.TrimSpace(n.PrimaryText)
	n.SecondaryText = strings.TrimSpace(n.SecondaryText)
	n.InnerTopText = strings.TrimSpace(n.InnerTopText)
	n.InnerBottomText = strings.TrimSpace(n.InnerBottomText)
	n.CenterText = strings.TrimSpace(n.CenterText)
	n.CenterSubText = strings.TrimSpace(n.CenterSubText)
	n.LogoURL = strings.TrimSpace(n.LogoURL)
	n.SignatureURL = strings.TrimSpace(n.SignatureURL)

	if !n.Shape.Valid() {
		n.Shape = Shape(strings.ToUpper(string(n.Shape)))
		if !n.Shape.Valid() {
			n.Shape = ShapeRound
		}
	}
	if !n.BorderStyle.Valid() {
		n.BorderStyle = BorderStyle(strings.ToLower(string(n.BorderStyle)))
		if !n.BorderStyle.Valid() {
			n.BorderStyle = BorderSolid
		}
	}

	if strings.TrimSpace(n.FontFamily) == "" {
		n.FontFamily = DefaultFontFamily
	}
	if !finite(n.FontSize) || n.FontSize <= 0 {
		n.FontSize = DefaultFontSize
	}
	n.FontSize = clamp(n.FontSize, minFontSize, maxFontSize)
	if !finite(n.LetterSpacing) {
		n.LetterSpacing = 0
	}

	if strings.TrimSpace(n.PrimaryColor) == "" {
		n.PrimaryColor = DefaultPrimaryColor
	}
	if strings.TrimSpace(n.SecondaryColor) == "" {
		n.SecondaryColor = n.PrimaryColor
	}

	if !finite(n.BorderWidth) || n.BorderWidth < 0 {
		n.BorderWidth = DefaultBorderWidth
	}
	if !finite(n.Rotation) {
		n.Rotation = 0
	}
	n.Rotation = math.Mod(n.Rotation, 360)

	if !finite(n.DistressLevel) {
		n.DistressLevel = 0
	}
	n.DistressLevel = clamp(n.DistressLevel, 0, 1)

	return n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

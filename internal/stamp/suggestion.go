package stamp

import "strings"

// Suggestion is a best-effort guess of stamp fields from a photo of an
// existing stamp. Empty fields are left alone when applied.
type Suggestion struct {
	Shape           string `json:"shape"`
	PrimaryText     string `json:"primaryText"`
	SecondaryText   string `json:"secondaryText"`
	InnerTopText    string `json:"innerTopText"`
	InnerBottomText string `json:"innerBottomText"`
	CenterText      string `json:"centerText"`
	PrimaryColor    string `json:"primaryColor"`
	BorderStyle     string `json:"borderStyle"`
}

// ApplySuggestion overlays the non-empty fields of s onto cfg.
func ApplySuggestion(cfg StampConfig, s Suggestion) StampConfig {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	if shape := Shape(strings.ToUpper(strings.TrimSpace(s.Shape))); shape.Valid() {
		cfg.Shape = shape
	}
	if style := BorderStyle(strings.ToLower(strings.TrimSpace(s.BorderStyle))); style.Valid() {
		cfg.BorderStyle = style
	}
	set(&cfg.PrimaryText, s.PrimaryText)
	set(&cfg.SecondaryText, s.SecondaryText)
	set(&cfg.InnerTopText, s.InnerTopText)
	set(&cfg.InnerBottomText, s.InnerBottomText)
	set(&cfg.CenterText, s.CenterText)
	if c := strings.TrimSpace(s.PrimaryColor); c != "" {
		cfg.PrimaryColor = c
		cfg.SecondaryColor = c
	}
	return cfg.Normalize()
}

package stamp

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

var ErrPresetNotFound = errors.New("preset not found")

// Preset is a named starting configuration.
type Preset struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Config      StampConfig `json:"config" yaml:"-"`
}

type presetFile struct {
	Presets []struct {
		ID          string    `yaml:"id"`
		Name        string    `yaml:"name"`
		Description string    `yaml:"description"`
		Config      yaml.Node `yaml:"config"`
	} `yaml:"presets"`
}

var (
	presetsOnce sync.Once
	presets     []Preset
	presetsErr  error
)

// ParsePresets decodes a preset catalog. Each preset's config is applied on
// top of DefaultConfig.
func ParsePresets(data []byte) ([]Preset, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	out := make([]Preset, 0, len(file.Presets))
	seen := make(map[string]bool, len(file.Presets))
	for _, p := range file.Presets {
		if p.ID == "" {
			return nil, errors.New("preset without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate preset %q", p.ID)
		}
		seen[p.ID] = true

		cfg := DefaultConfig()
		if !p.Config.IsZero() {
			if err := p.Config.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.ID, err)
			}
		}
		out = append(out, Preset{ID: p.ID, Name: p.Name, Description: p.Description, Config: cfg.Normalize()})
	}
	return out, nil
}

// Presets returns the built-in catalog.
func Presets() ([]Preset, error) {
	presetsOnce.Do(func() {
		presets, presetsErr = ParsePresets(presetsYAML)
	})
	if presetsErr != nil {
		return nil, presetsErr
	}
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out, nil
}

// FindPreset looks up a built-in preset by id.
func FindPreset(id string) (Preset, error) {
	all, err := Presets()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
}

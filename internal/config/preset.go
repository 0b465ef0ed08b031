package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// CrosswalkPreset is a named, saved crosswalk.
type CrosswalkPreset struct {
	Name        string                `yaml:"name" json:"name"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Rules       []types.CrosswalkRule `yaml:"rules" json:"rules"`
	CreatedAt   time.Time             `yaml:"created_at" json:"created_at"`
}

// PresetManager stores crosswalk presets as YAML files in one directory.
type PresetManager struct {
	presetsDir string
}

// NewPresetManager uses <dataDir>/crosswalks, creating it when needed.
func NewPresetManager(dataDir string) (*PresetManager, error) {
	presetsDir := filepath.Join(dataDir, "crosswalks")
	if err := os.MkdirAll(presetsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create presets directory: %w", err)
	}
	return &PresetManager{presetsDir: presetsDir}, nil
}

// ConfigToPreset captures the crosswalk of cfg under name.
func ConfigToPreset(cfg *Config, name, description string) *CrosswalkPreset {
	return &CrosswalkPreset{
		Name:        name,
		Description: description,
		Rules:       append([]types.CrosswalkRule(nil), cfg.Crosswalk...),
		CreatedAt:   time.Now(),
	}
}

func (pm *PresetManager) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("preset name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	return filepath.Join(pm.presetsDir, name+".yaml"), nil
}

// SavePreset validates every rule and writes the preset.
func (pm *PresetManager) SavePreset(preset *CrosswalkPreset) error {
	filename, err := pm.path(preset.Name)
	if err != nil {
		return err
	}
	for _, rule := range preset.Rules {
		if err := ValidateRule(rule); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(preset)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

func (pm *PresetManager) LoadPreset(name string) (*CrosswalkPreset, error) {
	filename, err := pm.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	var preset CrosswalkPreset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}
	if preset.Name == "" {
		preset.Name = name
	}
	return &preset, nil
}

func (pm *PresetManager) DeletePreset(name string) error {
	filename, err := pm.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("failed to delete preset file: %w", err)
	}
	return nil
}

// ListPresets returns every readable preset sorted by name.
func (pm *PresetManager) ListPresets() ([]CrosswalkPreset, error) {
	entries, err := os.ReadDir(pm.presetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets directory: %w", err)
	}

	var presets []CrosswalkPreset
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		preset, err := pm.LoadPreset(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue // Skip invalid presets
		}
		presets = append(presets, *preset)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets, nil
}

// ResolveCrosswalk returns the rules in effect: the named preset when
// CrosswalkPreset is set, the inline crosswalk otherwise.
func (c *Config) ResolveCrosswalk() ([]types.CrosswalkRule, error) {
	if c.CrosswalkPreset == "" {
		return c.Crosswalk, nil
	}
	pm, err := NewPresetManager(c.DataDir)
	if err != nil {
		return nil, err
	}
	preset, err := pm.LoadPreset(c.CrosswalkPreset)
	if err != nil {
		return nil, err
	}
	return preset.Rules, nil
}

package provision

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Profile overrides the declared provisioning set from a YAML file:
//
//	platforms: [arduino:avr]
//	vendor_platforms: [PTSolnsAVR:avr, PTSolnsESP32:esp32]
//	library: Arduino_BuiltIn
//	manifest_url: https://example.com/libraries.txt
//	pattern: github\.com/PTSolns/([^/]+)
//	index_url: https://example.com/boards.json
type Profile struct {
	Platforms       []string `yaml:"platforms"`
	VendorPlatforms []string `yaml:"vendor_platforms"`
	Library         string   `yaml:"library"`
	ManifestURL     string   `yaml:"manifest_url"`
	Pattern         string   `yaml:"pattern"`
	IndexURL        string   `yaml:"index_url"`
}

// LoadProfile reads a profile file
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

// Apply overrides the fields of cfg that the profile sets
func (p *Profile) Apply(cfg *Config) {
	if p == nil {
		return
	}
	if p.Platforms != nil {
		cfg.Platforms = p.Platforms
	}
	if p.VendorPlatforms != nil {
		cfg.VendorPlatforms = p.VendorPlatforms
	}
	if p.Library != "" {
		cfg.Library = p.Library
	}
	if p.ManifestURL != "" {
		cfg.ManifestURL = p.ManifestURL
	}
	if p.Pattern != "" {
		cfg.Pattern = p.Pattern
	}
	if p.IndexURL != "" {
		cfg.IndexURL = p.IndexURL
	}
}

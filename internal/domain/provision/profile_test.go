package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platforms: [arduino:avr, arduino:megaavr]
vendor_platforms: []
library: Custom_BuiltIn
manifest_url: https://registry.test/libs.txt
`), 0o644))

	profile, err := LoadProfile(path)
	require.NoError(t, err)

	cfg := Config{
		Platforms:       []string{"arduino:avr"},
		VendorPlatforms: []string{"PTSolnsAVR:avr"},
		Library:         "Arduino_BuiltIn",
		ManifestURL:     "https://registry.test/default.txt",
		Pattern:         `github\.com/PTSolns/([^/]+)`,
		IndexURL:        "https://boards.test/boards.json",
	}
	profile.Apply(&cfg)

	assert.Equal(t, []string{"arduino:avr", "arduino:megaavr"}, cfg.Platforms)
	assert.Empty(t, cfg.VendorPlatforms)
	assert.Equal(t, "Custom_BuiltIn", cfg.Library)
	assert.Equal(t, "https://registry.test/libs.txt", cfg.ManifestURL)
	assert.Equal(t, `github\.com/PTSolns/([^/]+)`, cfg.Pattern)
	assert.Equal(t, "https://boards.test/boards.json", cfg.IndexURL)
}

func TestLoadProfileErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platforms: [unterminated\n"), 0o644))
	_, err = LoadProfile(path)
	assert.Error(t, err)
}

func TestNilProfileApplyIsNoop(t *testing.T) {
	var profile *Profile
	cfg := Config{Library: "Arduino_BuiltIn"}
	profile.Apply(&cfg)
	assert.Equal(t, "Arduino_BuiltIn", cfg.Library)
}

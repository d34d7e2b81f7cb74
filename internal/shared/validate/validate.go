package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length limits
const (
	MaxIDLength      = 128
	MaxVersionLength = 64
	MaxPathLength    = 4096
	MaxProgressID    = 64
)

var (
	// PlatformIDPattern matches "packager:architecture"
	PlatformIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+:[A-Za-z0-9._-]+$`)
	// VersionPattern is loose on purpose; semver parsing happens in the version package
	VersionPattern = regexp.MustCompile(`^[A-Za-z0-9.+_-]+$`)
	// ProgressIDPattern allows alphanumeric, hyphens and underscores
	ProgressIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// String validates a string field with length and content checks
func String(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// LibraryID validates a library name. Names may contain spaces but not
// leading or trailing whitespace.
func LibraryID(id string) error {
	if err := String(id, "id", 1, MaxIDLength, true); err != nil {
		return err
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("id must not start or end with whitespace")
	}
	return nil
}

// PlatformID validates a "packager:architecture" identifier
func PlatformID(id string) error {
	if err := String(id, "id", 3, MaxIDLength, true); err != nil {
		return err
	}
	if !PlatformIDPattern.MatchString(id) {
		return fmt.Errorf("id must have the form packager:architecture")
	}
	return nil
}

// Version validates an optional version string
func Version(v string) error {
	if err := String(v, "version", 1, MaxVersionLength, false); err != nil {
		return err
	}
	if v != "" && !VersionPattern.MatchString(v) {
		return fmt.Errorf("version contains invalid characters")
	}
	return nil
}

// ProgressID validates an optional caller-supplied progress ID
func ProgressID(id string) error {
	if err := String(id, "progress_id", 1, MaxProgressID, false); err != nil {
		return err
	}
	if id != "" && !ProgressIDPattern.MatchString(id) {
		return fmt.Errorf("progress_id contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}
	return nil
}

// ArchivePath validates a local archive path
func ArchivePath(path string) error {
	if err := String(path, "path", 1, MaxPathLength, true); err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".zip") {
		return fmt.Errorf("path must point to a .zip archive")
	}
	return nil
}

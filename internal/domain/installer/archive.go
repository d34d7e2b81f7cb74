package installer

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
)

// ErrInvalidArchive is returned when a file cannot be a library archive
var ErrInvalidArchive = errors.New("invalid library archive")

// libraryLayouts are the entry patterns that mark a library root, either
// at the top of the archive or inside a single top-level folder
var libraryLayouts = []string{
	"library.properties",
	"*/library.properties",
	"*.h",
	"*/*.h",
	"src/*.h",
	"*/src/*.h",
}

// ValidateArchive checks that path is a zip file holding a library
func ValidateArchive(archivePath string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidArchive, archivePath)
	}

	mtype, err := mimetype.DetectFile(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if !isZip(mtype) {
		return fmt.Errorf("%w: detected %s, want zip", ErrInvalidArchive, mtype.String())
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer reader.Close()

	found := false
	for _, f := range reader.File {
		name := strings.TrimPrefix(path.Clean(strings.ReplaceAll(f.Name, "\\", "/")), "./")
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("%w: entry %q escapes the archive", ErrInvalidArchive, f.Name)
		}
		if found {
			continue
		}
		for _, pattern := range libraryLayouts {
			if ok, _ := doublestar.Match(pattern, name); ok {
				found = true
				break
			}
		}
	}
	if !found {
		return fmt.Errorf("%w: no library.properties or header found", ErrInvalidArchive)
	}
	return nil
}

// isZip accepts zip and formats derived from it
func isZip(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

package types

// Kind discriminates the two families of installable components
type Kind string

const (
	KindLibrary  Kind = "library"
	KindPlatform Kind = "platform"
)

// Valid reports whether k names a known kind
func (k Kind) Valid() bool {
	return k == KindLibrary || k == KindPlatform
}

// Location describes where an installed library lives
type Location string

const (
	LocationUser                      Location = "user"
	LocationBuiltin                   Location = "builtin"
	LocationPlatformBuiltin           Location = "platform_builtin"
	LocationReferencedPlatformBuiltin Location = "referenced_platform_builtin"
)

// Package is the merged catalog view of an installable component.
// ID is the join key between installed-list scans and remote searches:
// the library name for libraries, "vendor:architecture" for platforms.
type Package struct {
	ID                string   `json:"id"`
	Kind              Kind     `json:"kind"`
	Name              string   `json:"name"`
	Author            string   `json:"author,omitempty"`
	Maintainer        string   `json:"maintainer,omitempty"`
	Summary           string   `json:"summary,omitempty"`
	Description       string   `json:"description,omitempty"`
	Category          string   `json:"category,omitempty"`
	Types             []string `json:"types,omitempty"`
	Website           string   `json:"website,omitempty"`
	Includes          []string `json:"includes,omitempty"`
	AvailableVersions []string `json:"available_versions"`
	InstalledVersion  string   `json:"installed_version,omitempty"`
	Location          Location `json:"location,omitempty"`
	InstallDir        string   `json:"install_dir,omitempty"`
	Examples          []string `json:"examples,omitempty"`
	Deprecated        bool     `json:"deprecated,omitempty"`
}

// Installed reports whether the package carries an installed-version marker
func (p *Package) Installed() bool {
	return p.InstalledVersion != ""
}

// Latest returns the newest available version, or "" when none are known
func (p *Package) Latest() string {
	if len(p.AvailableVersions) == 0 {
		return ""
	}
	return p.AvailableVersions[0]
}

// HasType reports whether tag is one of the package capability tags
func (p *Package) HasType(tag string) bool {
	for _, t := range p.Types {
		if t == tag {
			return true
		}
	}
	return false
}

// Dependency is one entry of a resolved dependency set
type Dependency struct {
	Name             string `json:"name"`
	RequiredVersion  string `json:"required_version,omitempty"`
	InstalledVersion string `json:"installed_version,omitempty"`
}

// InstallOptions carries the caller-controlled knobs of an install request
type InstallOptions struct {
	Version             string   `json:"version,omitempty"`
	InstallDependencies bool     `json:"install_dependencies"`
	NoOverwrite         bool     `json:"no_overwrite"`
	Location            Location `json:"location,omitempty"`
	ProgressID          string   `json:"progress_id,omitempty"`
}

// UninstallOptions carries the caller-controlled knobs of an uninstall request
type UninstallOptions struct {
	ProgressID string `json:"progress_id,omitempty"`
}

// ArchiveOptions carries the caller-controlled knobs of an archive install
type ArchiveOptions struct {
	Overwrite  bool   `json:"overwrite"`
	ProgressID string `json:"progress_id,omitempty"`
}

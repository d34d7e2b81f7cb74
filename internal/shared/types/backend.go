package types

// Release is the metadata of one published version as reported by the backend
type Release struct {
	Version    string   `json:"version"`
	Name       string   `json:"name,omitempty"`
	Author     string   `json:"author,omitempty"`
	Maintainer string   `json:"maintainer,omitempty"`
	Sentence   string   `json:"sentence,omitempty"`
	Paragraph  string   `json:"paragraph,omitempty"`
	Website    string   `json:"website,omitempty"`
	Category   string   `json:"category,omitempty"`
	Types      []string `json:"types,omitempty"`
	Includes   []string `json:"includes,omitempty"`
}

// RemoteRecord is one backend search hit
type RemoteRecord struct {
	ID                string   `json:"id"`
	Latest            *Release `json:"latest,omitempty"`
	AvailableVersions []string `json:"available_versions"`
	Deprecated        bool     `json:"deprecated,omitempty"`
}

// InstalledRecord is one entry of the backend installed list
type InstalledRecord struct {
	ID         string   `json:"id"`
	Release    *Release `json:"release,omitempty"`
	Location   Location `json:"location,omitempty"`
	InstallDir string   `json:"install_dir,omitempty"`
	Examples   []string `json:"examples,omitempty"`
}

// ListQuery scopes an installed-list call
type ListQuery struct {
	Kind Kind   `json:"kind"`
	FQBN string `json:"fqbn,omitempty"`
	Name string `json:"name,omitempty"`
	// All includes core-provided libraries, not only user-installed ones
	All bool `json:"all,omitempty"`
}

// InstallRequest is the backend-facing form of an install
type InstallRequest struct {
	Kind        Kind     `json:"kind"`
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	NoDeps      bool     `json:"no_deps"`
	NoOverwrite bool     `json:"no_overwrite"`
	Location    Location `json:"location,omitempty"`
}

// UninstallRequest is the backend-facing form of an uninstall
type UninstallRequest struct {
	Kind    Kind   `json:"kind"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

// ArchiveRequest is the backend-facing form of an archive install
type ArchiveRequest struct {
	Path      string `json:"path"`
	Overwrite bool   `json:"overwrite"`
}

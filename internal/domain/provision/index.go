package provision

import (
	"context"
	"strings"
)

// boardIndex is the subset of a board-manager index the provisioner
// checks. Both the flat vendor layout and the standard packages layout
// are accepted.
type boardIndex struct {
	Platforms []indexPlatform `json:"platforms"`
	Packages  []struct {
		Name      string          `json:"name"`
		Platforms []indexPlatform `json:"platforms"`
	} `json:"packages"`
}

type indexPlatform struct {
	Architecture    string `json:"architecture"`
	ArchiveFileName string `json:"archiveFileName"`
}

func (p *Provisioner) fetchIndex(ctx context.Context) (*boardIndex, error) {
	var idx boardIndex
	if err := p.deps.Fetcher.FetchJSON(ctx, p.cfg.IndexURL, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// publishes reports whether the index carries a release of the
// "packager:architecture" platform
func (idx *boardIndex) publishes(platformID string) bool {
	packager, arch, ok := strings.Cut(platformID, ":")
	if !ok {
		return false
	}

	match := func(pl indexPlatform) bool {
		return pl.Architecture == arch && strings.Contains(pl.ArchiveFileName, packager)
	}
	for _, pl := range idx.Platforms {
		if match(pl) {
			return true
		}
	}
	for _, pkg := range idx.Packages {
		for _, pl := range pkg.Platforms {
			if pl.Architecture == arch && (pkg.Name == packager || match(pl)) {
				return true
			}
		}
	}
	return false
}

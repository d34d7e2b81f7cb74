package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/version"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

var (
	// ErrUnknownFilter is returned for a type filter the catalog does not know
	ErrUnknownFilter = errors.New("unknown type filter")
	// ErrNotLibrary is returned for library-only queries on another kind
	ErrNotLibrary = errors.New("operation only applies to libraries")
)

// Backend is the read side of the CLI session the catalog needs
type Backend interface {
	ListInstalled(ctx context.Context, q types.ListQuery) ([]types.InstalledRecord, error)
	Search(ctx context.Context, kind types.Kind, query string) ([]types.RemoteRecord, error)
	ResolveDependencies(ctx context.Context, name, version string) ([]types.Dependency, error)
}

// Rescanner is implemented by backends that can re-read installed
// packages from disk
type Rescanner interface {
	Rescan(ctx context.Context) error
}

// Type filters
const (
	TypeAll       = "All"
	TypeInstalled = "Installed"
	TypeUpdatable = "Updatable"
	TopicAll      = "All"
)

// Tags published by the library index. Filtering on them matches the
// package capability tags.
var indexTags = []string{"Arduino", "Partner", "Recommended", "Contributed", "Retired"}

// SearchQuery holds the search term and the two independent filters
type SearchQuery struct {
	Query string `json:"query" form:"query"`
	Type  string `json:"type" form:"type"`
	Topic string `json:"topic" form:"topic"`
}

// Catalog is the merged read-only view of one package kind
type Catalog struct {
	kind       types.Kind
	backend    Backend
	curatedTag string
	policy     *bluemonday.Policy
	logger     *logging.Logger
}

// Option configures a Catalog
type Option func(*Catalog)

// WithCuratedTag sets the tag that is sorted first and accepted as a type filter
func WithCuratedTag(tag string) Option {
	return func(c *Catalog) { c.curatedTag = tag }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates the catalog of one kind over backend
func New(kind types.Kind, backend Backend, opts ...Option) *Catalog {
	c := &Catalog{
		kind:       kind,
		backend:    backend,
		curatedTag: "PTSolns",
		policy:     bluemonday.UGCPolicy(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("catalog").With(zap.String("kind", string(kind)))
	return c
}

// Kind returns the package kind served by the catalog
func (c *Catalog) Kind() types.Kind {
	return c.kind
}

// Search merges remote hits with the installed list and applies filters
func (c *Catalog) Search(ctx context.Context, q SearchQuery) ([]types.Package, error) {
	typeMatch, err := c.typePredicate(q.Type)
	if err != nil {
		return nil, err
	}

	installed, err := c.installedIndex(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := c.backend.Search(ctx, c.kind, strings.TrimSpace(q.Query))
	if err != nil {
		if clierr.IsEmpty(err) {
			return []types.Package{}, nil
		}
		return nil, fmt.Errorf("search %s: %w", c.kind, err)
	}

	topic := strings.TrimSpace(q.Topic)
	result := make([]types.Package, 0, len(remote))
	for _, rec := range remote {
		if rec.Latest == nil {
			continue
		}
		pkg := c.merge(rec, installed[rec.ID])
		if !typeMatch(&pkg) {
			continue
		}
		if topic != "" && topic != TopicAll && pkg.Category != topic {
			continue
		}
		result = append(result, pkg)
	}

	c.sortCuratedFirst(result)
	return result, nil
}

// List returns installed packages. A non-empty FQBN scopes the list to
// what that board can use, including core-provided libraries.
func (c *Catalog) List(ctx context.Context, q types.ListQuery) ([]types.Package, error) {
	q.Kind = c.kind
	if q.FQBN != "" {
		q.All = true
	}

	records, err := c.backend.ListInstalled(ctx, q)
	if err != nil {
		if clierr.IsEmpty(err) {
			c.logger.Debug("Installed list unavailable", zap.String("fqbn", q.FQBN), zap.String("reason", clierr.Message(err)))
			return []types.Package{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}

	result := make([]types.Package, 0, len(records))
	for _, rec := range records {
		if rec.Release == nil {
			continue
		}
		result = append(result, c.fromInstalled(rec))
	}
	return result, nil
}

// Get looks up a package by exact ID. It returns nil when no such
// package exists in the index.
func (c *Catalog) Get(ctx context.Context, id string) (*types.Package, error) {
	found, err := c.Search(ctx, SearchQuery{Query: id})
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].ID == id {
			return &found[i], nil
		}
	}
	return nil, nil
}

// ListDependencies resolves what a library version needs. Backend errors
// are reduced to their plain message.
func (c *Catalog) ListDependencies(ctx context.Context, name, ver string, excludeSelf bool) ([]types.Dependency, error) {
	if c.kind != types.KindLibrary {
		return nil, ErrNotLibrary
	}

	deps, err := c.backend.ResolveDependencies(ctx, name, ver)
	if err != nil {
		return nil, clierr.Unwrap(err)
	}
	if !excludeSelf {
		return deps, nil
	}

	filtered := deps[:0:0]
	for _, dep := range deps {
		if dep.Name != name {
			filtered = append(filtered, dep)
		}
	}
	return filtered, nil
}

// Refresh makes the backend pick up packages installed behind its back
func (c *Catalog) Refresh(ctx context.Context) error {
	if r, ok := c.backend.(Rescanner); ok {
		if err := r.Rescan(ctx); err != nil {
			return fmt.Errorf("rescan: %w", err)
		}
	}
	if _, err := c.List(ctx, types.ListQuery{}); err != nil {
		return err
	}
	return nil
}

func (c *Catalog) installedIndex(ctx context.Context) (map[string]types.InstalledRecord, error) {
	records, err := c.backend.ListInstalled(ctx, types.ListQuery{Kind: c.kind})
	if err != nil {
		if clierr.IsEmpty(err) {
			return map[string]types.InstalledRecord{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}

	index := make(map[string]types.InstalledRecord, len(records))
	for _, rec := range records {
		index[rec.ID] = rec
	}
	return index, nil
}

func (c *Catalog) merge(rec types.RemoteRecord, inst types.InstalledRecord) types.Package {
	versions := append([]string(nil), rec.AvailableVersions...)
	versions = append(versions, rec.Latest.Version)

	pkg := c.describe(rec.ID, rec.Latest)
	pkg.AvailableVersions = version.SortDescending(nonEmpty(versions))
	pkg.Deprecated = rec.Deprecated

	if inst.Release != nil {
		pkg.InstalledVersion = inst.Release.Version
		pkg.Location = inst.Location
		pkg.InstallDir = inst.InstallDir
		pkg.Examples = inst.Examples
	}
	return pkg
}

func (c *Catalog) fromInstalled(rec types.InstalledRecord) types.Package {
	pkg := c.describe(rec.ID, rec.Release)
	pkg.InstalledVersion = rec.Release.Version
	pkg.AvailableVersions = nonEmpty([]string{rec.Release.Version})
	pkg.Location = rec.Location
	pkg.InstallDir = rec.InstallDir
	pkg.Examples = rec.Examples
	return pkg
}

func (c *Catalog) describe(id string, rel *types.Release) types.Package {
	name := rel.Name
	if name == "" {
		name = id
	}
	return types.Package{
		ID:          id,
		Kind:        c.kind,
		Name:        name,
		Author:      rel.Author,
		Maintainer:  rel.Maintainer,
		Summary:     c.policy.Sanitize(rel.Sentence),
		Description: c.policy.Sanitize(rel.Paragraph),
		Category:    rel.Category,
		Types:       rel.Types,
		Website:     rel.Website,
		Includes:    rel.Includes,
	}
}

func (c *Catalog) typePredicate(filter string) (func(*types.Package) bool, error) {
	switch strings.TrimSpace(filter) {
	case "", TypeAll:
		return func(*types.Package) bool { return true }, nil
	case TypeInstalled:
		return func(p *types.Package) bool { return p.Installed() }, nil
	case TypeUpdatable:
		return Updatable, nil
	case c.curatedTag:
		tag := c.curatedTag
		return func(p *types.Package) bool { return p.Author == tag || p.HasType(tag) }, nil
	}
	for _, tag := range indexTags {
		if filter == tag {
			return func(p *types.Package) bool { return p.HasType(tag) }, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, filter)
}

func (c *Catalog) sortCuratedFirst(pkgs []types.Package) {
	tag := c.curatedTag
	group := func(p *types.Package) int {
		if p.HasType(tag) {
			return 0
		}
		return 1
	}
	sort.SliceStable(pkgs, func(i, j int) bool {
		return group(&pkgs[i]) < group(&pkgs[j])
	})
}

// Updatable reports whether an installed package is older than its latest
// available version
func Updatable(p *types.Package) bool {
	return p.Installed() && version.IsOutdated(p.InstalledVersion, p.Latest())
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

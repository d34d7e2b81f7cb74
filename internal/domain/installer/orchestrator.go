package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/notify"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/id"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

var (
	// ErrInFlight rejects a request for a package that is already being changed
	ErrInFlight = errors.New("operation already in progress for package")
	// ErrNotInstalled rejects an uninstall of a package without installed version
	ErrNotInstalled = errors.New("package is not installed")
	// ErrNoVersion rejects an install when no version is known
	ErrNoVersion = errors.New("no version to install")
	// ErrUnknownKind rejects requests for a kind without a catalog
	ErrUnknownKind = errors.New("unknown package kind")
)

// Backend is the mutating side of the CLI session
type Backend interface {
	Install(ctx context.Context, req types.InstallRequest) (types.ProgressStream, error)
	Uninstall(ctx context.Context, req types.UninstallRequest) (types.ProgressStream, error)
	InstallArchive(ctx context.Context, req types.ArchiveRequest) (types.ProgressStream, error)
}

// Catalog is what the orchestrator needs from a package catalog
type Catalog interface {
	Search(ctx context.Context, q catalog.SearchQuery) ([]types.Package, error)
	Refresh(ctx context.Context) error
}

// Interlock runs a function with discovery paused
type Interlock interface {
	WithPaused(ctx context.Context, fn func(ctx context.Context) error) error
}

// Events receives operation output and completion notices
type Events interface {
	notify.OutputSink
	NotifyInstalled(pkg types.Package)
	NotifyUninstalled(pkg types.Package)
	NotifyArchiveInstalled(path string)
}

// Orchestrator drives install, uninstall and archive install requests.
// Every mutation passes the per-package in-flight guard first, then runs
// inside the discovery interlock, which serializes all mutations.
type Orchestrator struct {
	backend   Backend
	catalogs  map[types.Kind]Catalog
	interlock Interlock
	events    Events
	logger    *logging.Logger
	metrics   *monitoring.Metrics

	guard   *guard
	history *history

	validateArchive func(path string) error
}

// Config bundles the orchestrator collaborators
type Config struct {
	Backend   Backend
	Catalogs  map[types.Kind]Catalog
	Interlock Interlock
	Events    Events
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
	// HistoryLimit bounds Operations(); defaults to 100
	HistoryLimit int
}

// New creates an orchestrator
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	return &Orchestrator{
		backend:         cfg.Backend,
		catalogs:        cfg.Catalogs,
		interlock:       cfg.Interlock,
		events:          cfg.Events,
		logger:          logger.Named("installer"),
		metrics:         cfg.Metrics,
		guard:           newGuard(),
		history:         newHistory(limit),
		validateArchive: ValidateArchive,
	}
}

// Operations returns the recent operations, oldest first
func (o *Orchestrator) Operations() []Operation {
	return o.history.snapshot()
}

// Install installs pkg at opts.Version, or at its latest version when
// none is given. It returns the freshest catalog record of the package.
func (o *Orchestrator) Install(ctx context.Context, pkg types.Package, opts types.InstallOptions) (*types.Package, error) {
	cat, err := o.catalogFor(pkg.Kind)
	if err != nil {
		return nil, err
	}

	ver := opts.Version
	if ver == "" {
		ver = pkg.Latest()
	}
	if ver == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoVersion, pkg.ID)
	}

	req := types.InstallRequest{
		Kind:        pkg.Kind,
		ID:          pkg.ID,
		Version:     ver,
		NoOverwrite: opts.NoOverwrite,
		Location:    opts.Location,
	}
	if pkg.Kind == types.KindLibrary {
		req.NoDeps = !opts.InstallDependencies
	}

	err = o.run(ctx, OpInstall, pkg.Kind, pkg.ID, ver, opts.ProgressID,
		func(ctx context.Context) (types.ProgressStream, error) {
			return o.backend.Install(ctx, req)
		},
		fmt.Sprintf("Failed to install %s %s:%s.", pkg.Kind, pkg.ID, ver))
	if err != nil {
		return nil, err
	}

	fresh := o.lookup(ctx, cat, pkg, ver)
	o.events.NotifyInstalled(fresh)
	return &fresh, nil
}

// Uninstall removes pkg. The package must carry its installed version.
func (o *Orchestrator) Uninstall(ctx context.Context, pkg types.Package, opts types.UninstallOptions) error {
	if _, err := o.catalogFor(pkg.Kind); err != nil {
		return err
	}
	if !pkg.Installed() {
		return fmt.Errorf("%w: %s", ErrNotInstalled, pkg.ID)
	}

	req := types.UninstallRequest{Kind: pkg.Kind, ID: pkg.ID, Version: pkg.InstalledVersion}
	err := o.run(ctx, OpUninstall, pkg.Kind, pkg.ID, pkg.InstalledVersion, opts.ProgressID,
		func(ctx context.Context) (types.ProgressStream, error) {
			return o.backend.Uninstall(ctx, req)
		},
		fmt.Sprintf("Failed to uninstall %s %s:%s.", pkg.Kind, pkg.ID, pkg.InstalledVersion))
	if err != nil {
		return err
	}

	o.events.NotifyUninstalled(pkg)
	return nil
}

// InstallFromArchive installs a library from a zip file and rescans the
// library catalog so the new library becomes visible.
func (o *Orchestrator) InstallFromArchive(ctx context.Context, path string, opts types.ArchiveOptions) error {
	cat, err := o.catalogFor(types.KindLibrary)
	if err != nil {
		return err
	}
	if err := o.validateArchive(path); err != nil {
		return err
	}

	req := types.ArchiveRequest{Path: path, Overwrite: opts.Overwrite}
	err = o.run(ctx, OpArchive, types.KindLibrary, path, "", opts.ProgressID,
		func(ctx context.Context) (types.ProgressStream, error) {
			return o.backend.InstallArchive(ctx, req)
		},
		fmt.Sprintf("Failed to install library from %s.", path))
	if err != nil {
		return err
	}

	if err := cat.Refresh(ctx); err != nil {
		o.logger.Warn("Catalog refresh after archive install failed", zap.String("archive", path), zap.Error(err))
	}
	o.events.NotifyArchiveInstalled(path)
	return nil
}

type opener func(ctx context.Context) (types.ProgressStream, error)

// run executes one mutation through the guard, the interlock and the fanout
func (o *Orchestrator) run(ctx context.Context, op Op, kind types.Kind, pkgID, ver, progressID string, open opener, failure string) error {
	key := string(kind) + ":" + pkgID
	if op == OpArchive {
		key = "archive:" + pkgID
	}
	release, ok := o.guard.acquire(key)
	if !ok {
		if o.metrics != nil {
			o.metrics.InFlightRejected.WithLabelValues(string(kind)).Inc()
		}
		return fmt.Errorf("%w: %s", ErrInFlight, pkgID)
	}
	defer func() {
		release()
		o.setActive()
	}()

	if progressID == "" {
		progressID = id.NewProgressID().String()
	}
	record := &Operation{
		ID:         id.NewOperationID(),
		ProgressID: progressID,
		Op:         op,
		Kind:       kind,
		Package:    pkgID,
		Version:    ver,
		Phase:      PhasePending,
		StartedAt:  time.Now(),
	}
	o.history.start(record)
	o.setActive()

	log := o.logger.With(
		zap.String("op", string(op)),
		zap.String("package", pkgID),
		zap.String("version", ver),
		zap.String("progress_id", progressID))
	log.Info("Operation started")

	var timer *monitoring.Timer
	if o.metrics != nil {
		timer = monitoring.NewTimer(o.metrics, string(kind), string(op))
	}

	fan := notify.NewFanout(progressID, o.events)
	err := o.interlock.WithPaused(ctx, func(ctx context.Context) error {
		o.history.advance(record, PhaseDiscoveryStopped)

		// streams run to completion even if the caller goes away
		streamCtx := context.WithoutCancel(ctx)
		stream, err := open(streamCtx)
		if err != nil {
			o.history.advance(record, PhaseFailed)
			return err
		}
		o.history.advance(record, PhaseStreaming)

		if err := fan.Run(stream); err != nil {
			o.history.advance(record, PhaseFailed)
			return err
		}
		o.history.advance(record, PhaseCompleted)
		return nil
	})
	o.history.advance(record, PhaseDiscoveryRestarted)
	timer.Stop(err)

	if err != nil {
		o.history.fail(record, err)
		fan.Fail(failure, clierr.Message(err))
		log.Error("Operation failed", zap.Error(err), zap.Int("chunks", fan.Chunks()))
		return err
	}

	log.Info("Operation completed", zap.Int("chunks", fan.Chunks()))
	return nil
}

// lookup re-queries the catalog for the freshest record of pkg, falling
// back to the request when the catalog has not caught up yet
func (o *Orchestrator) lookup(ctx context.Context, cat Catalog, pkg types.Package, ver string) types.Package {
	fallback := pkg
	fallback.InstalledVersion = ver

	query := pkg.Name
	if query == "" {
		query = pkg.ID
	}
	found, err := cat.Search(ctx, catalog.SearchQuery{Query: query})
	if err != nil {
		o.logger.Debug("Post-install lookup failed", zap.String("package", pkg.ID), zap.Error(err))
		return fallback
	}
	for _, candidate := range found {
		if candidate.ID == pkg.ID {
			return candidate
		}
	}
	return fallback
}

func (o *Orchestrator) catalogFor(kind types.Kind) (Catalog, error) {
	cat, ok := o.catalogs[kind]
	if !ok || cat == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return cat, nil
}

func (o *Orchestrator) setActive() {
	if o.metrics != nil {
		o.metrics.OperationsActive.Set(float64(o.guard.size()))
	}
}

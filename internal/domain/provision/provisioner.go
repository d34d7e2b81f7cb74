package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/resilience"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// FlagKey is the persisted marker of a completed first start
const FlagKey = "initializedLibsAndPackages"

// WarningPrefix leads every surfaced provisioning warning
const WarningPrefix = "Could not complete initial setup: "

// Step names used in reports and metrics
const (
	StepSettings = "settings"
	StepPlatform = "platform"
	StepIndex    = "index"
	StepManifest = "manifest"
	StepLibrary  = "library"
	StepFlag     = "flag"
)

var errManifestEmpty = errors.New("manifest has no entries")

// Lookup is what provisioning needs from a package catalog
type Lookup interface {
	Get(ctx context.Context, id string) (*types.Package, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]types.Package, error)
	List(ctx context.Context, q types.ListQuery) ([]types.Package, error)
}

// Installer installs one package
type Installer interface {
	Install(ctx context.Context, pkg types.Package, opts types.InstallOptions) (*types.Package, error)
}

// Settings reads and writes the backend additional board-index URLs
type Settings interface {
	AdditionalURLs(ctx context.Context) ([]string, error)
	SetAdditionalURLs(ctx context.Context, urls []string) error
}

// Flags persists boolean markers
type Flags interface {
	Get(key string) (bool, error)
	Set(key string) error
}

// Warner surfaces non-blocking warnings to the user
type Warner interface {
	Warn(message string)
}

// Readiness blocks until the backend session is usable
type Readiness interface {
	WaitReady(ctx context.Context) error
}

// Config is the declared provisioning set
type Config struct {
	Platforms       []string
	VendorPlatforms []string
	Library         string
	ManifestURL     string
	Pattern         string
	IndexURL        string
	Attempts        int
	Delay           time.Duration
}

// Deps bundles the provisioner collaborators. Settings, Ready, Warner,
// Logger and Metrics are optional.
type Deps struct {
	Platforms Lookup
	Libraries Lookup
	Installer Installer
	Flags     Flags
	Fetcher   Fetcher
	Settings  Settings
	Ready     Readiness
	Warner    Warner
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
	// Sleep replaces the delay between manifest attempts
	Sleep func(ctx context.Context, d time.Duration) error
}

// ItemError is one collected provisioning failure
type ItemError struct {
	Step    string `json:"step"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
	Benign  bool   `json:"benign,omitempty"`
}

func (e ItemError) Error() string {
	if e.Item == "" {
		return e.Message
	}
	return e.Item + ": " + e.Message
}

// Report summarizes one provisioning run
type Report struct {
	Ran              bool        `json:"ran"`
	Skipped          bool        `json:"skipped"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	Installed        []string    `json:"installed"`
	AlreadyPresent   []string    `json:"already_present"`
	Errors           []ItemError `json:"errors"`
	ManifestAttempts int         `json:"manifest_attempts"`
}

// Provisioner installs the vendor-declared platforms and libraries on the
// first start of the application.
type Provisioner struct {
	cfg     Config
	deps    Deps
	pattern *regexp.Regexp
	logger  *logging.Logger

	// runMu keeps Run to one execution; report is published when it ends
	runMu  sync.Mutex
	report atomic.Pointer[Report]
}

// New creates a provisioner
func New(cfg Config, deps Deps) (*Provisioner, error) {
	pattern, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile manifest pattern: %w", err)
	}
	if pattern.NumSubexp() < 1 {
		return nil, fmt.Errorf("manifest pattern %q has no capture group", cfg.Pattern)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Provisioner{
		cfg:     cfg,
		deps:    deps,
		pattern: pattern,
		logger:  logger.Named("provision"),
	}, nil
}

// Report returns the report of the completed run. It does not wait for
// a run in progress.
func (p *Provisioner) Report() (*Report, bool) {
	r := p.report.Load()
	return r, r != nil
}

// Run provisions once per process. Later calls return the first report.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if r := p.report.Load(); r != nil {
		return r, nil
	}

	if p.deps.Ready != nil {
		if err := p.deps.Ready.WaitReady(ctx); err != nil {
			return nil, fmt.Errorf("wait for backend: %w", err)
		}
	}

	report := p.run(ctx)
	report.FinishedAt = time.Now()
	p.report.Store(report)
	return report, nil
}

func (p *Provisioner) run(ctx context.Context) *Report {
	report := &Report{StartedAt: time.Now()}

	p.ensureIndexURL(ctx, report)

	done, err := p.deps.Flags.Get(FlagKey)
	if err != nil {
		p.logger.Warn("Failed to read provisioning flag", zap.Error(err))
	}
	if done {
		report.Skipped = true
		p.logger.Debug("Provisioning already completed")
		return report
	}

	report.Ran = true
	p.logger.Info("Starting first-start provisioning")

	p.installPlatforms(ctx, report)
	p.installManifest(ctx, report)
	p.installLibrary(ctx, report)

	if err := p.deps.Flags.Set(FlagKey); err != nil {
		p.fail(report, StepFlag, FlagKey, err)
	}
	p.warn(report)

	p.logger.Info("First-start provisioning finished",
		zap.Int("installed", len(report.Installed)),
		zap.Int("already_present", len(report.AlreadyPresent)),
		zap.Int("errors", len(report.Errors)),
		zap.Int("manifest_attempts", report.ManifestAttempts))
	return report
}

func (p *Provisioner) ensureIndexURL(ctx context.Context, report *Report) {
	if p.deps.Settings == nil || p.cfg.IndexURL == "" {
		return
	}

	urls, err := p.deps.Settings.AdditionalURLs(ctx)
	if err != nil {
		p.fail(report, StepSettings, p.cfg.IndexURL, err)
		return
	}
	if slices.Contains(urls, p.cfg.IndexURL) {
		return
	}

	updated := append(slices.Clone(urls), p.cfg.IndexURL)
	if err := p.deps.Settings.SetAdditionalURLs(ctx, updated); err != nil {
		p.fail(report, StepSettings, p.cfg.IndexURL, err)
		return
	}
	p.logger.Info("Registered board index URL", zap.String("url", p.cfg.IndexURL))
}

func (p *Provisioner) installPlatforms(ctx context.Context, report *Report) {
	for _, platformID := range p.cfg.Platforms {
		p.installPlatform(ctx, report, platformID)
	}

	if len(p.cfg.VendorPlatforms) == 0 {
		return
	}
	if p.cfg.IndexURL != "" {
		idx, err := p.fetchIndex(ctx)
		if err != nil {
			p.fail(report, StepIndex, p.cfg.IndexURL, fmt.Errorf("failed to fetch or parse board index: %w", err))
			return
		}
		for _, platformID := range p.cfg.VendorPlatforms {
			if !idx.publishes(platformID) {
				p.fail(report, StepIndex, platformID, fmt.Errorf("could not find %s in board index", platformID))
				continue
			}
			p.installPlatform(ctx, report, platformID)
		}
		return
	}
	for _, platformID := range p.cfg.VendorPlatforms {
		p.installPlatform(ctx, report, platformID)
	}
}

func (p *Provisioner) installPlatform(ctx context.Context, report *Report, platformID string) {
	pkg, err := p.deps.Platforms.Get(ctx, platformID)
	if err != nil {
		p.fail(report, StepPlatform, platformID, err)
		return
	}
	if pkg == nil {
		p.fail(report, StepPlatform, platformID, fmt.Errorf("could not find %s platform", platformID))
		return
	}

	ver := pkg.Latest()
	if pkg.Installed() && pkg.InstalledVersion == ver {
		report.AlreadyPresent = append(report.AlreadyPresent, platformID)
		return
	}

	_, err = p.deps.Installer.Install(ctx, *pkg, types.InstallOptions{
		Version:     ver,
		NoOverwrite: true,
	})
	switch {
	case err == nil:
		report.Installed = append(report.Installed, platformID)
	case clierr.AlreadyInstalled(err, platformID, ver),
		pkg.Installed() && clierr.AlreadyInstalled(err, platformID, pkg.InstalledVersion):
		report.AlreadyPresent = append(report.AlreadyPresent, platformID)
	default:
		p.fail(report, StepPlatform, platformID, err)
	}
}

func (p *Provisioner) installManifest(ctx context.Context, report *Report) {
	if p.cfg.ManifestURL == "" {
		return
	}

	attempts, err := resilience.Retry(ctx, resilience.Policy{
		Attempts: p.cfg.Attempts,
		Delay:    p.cfg.Delay,
		Sleep:    p.deps.Sleep,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("Manifest fetch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", p.cfg.Delay),
				zap.Error(err))
		},
	}, func(ctx context.Context, attempt int) error {
		if p.deps.Metrics != nil {
			p.deps.Metrics.ProvisionAttempts.Inc()
		}
		lines, err := p.fetchManifest(ctx)
		if err != nil {
			return err
		}
		p.reconcile(ctx, report, lines)
		return nil
	})
	report.ManifestAttempts = attempts
	if err != nil {
		p.fail(report, StepManifest, p.cfg.ManifestURL,
			fmt.Errorf("failed to process vendor libraries after %d attempts: %w", attempts, err))
	}
}

func (p *Provisioner) fetchManifest(ctx context.Context) ([]string, error) {
	body, err := p.deps.Fetcher.FetchText(ctx, p.cfg.ManifestURL)
	if err != nil {
		return nil, err
	}
	lines := ParseManifest(body)
	if len(lines) == 0 {
		return nil, errManifestEmpty
	}
	return lines, nil
}

// ParseManifest splits a manifest into trimmed non-empty entries.
// Lines starting with '#' are comments.
func ParseManifest(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// reconcile installs every manifest entry missing from one snapshot of
// the installed libraries. Per-entry failures never stop the batch.
func (p *Provisioner) reconcile(ctx context.Context, report *Report, lines []string) {
	installed, err := p.deps.Libraries.List(ctx, types.ListQuery{Kind: types.KindLibrary})
	if err != nil {
		p.fail(report, StepManifest, "installed libraries", err)
		return
	}
	present := make(map[string]bool, len(installed))
	for _, pkg := range installed {
		present[pkg.ID] = true
		present[pkg.Name] = true
	}

	for _, line := range lines {
		name, ok := p.libraryName(line)
		if !ok {
			p.fail(report, StepManifest, line, fmt.Errorf("malformed manifest entry %q", line))
			continue
		}
		if present[name] {
			report.AlreadyPresent = append(report.AlreadyPresent, name)
			continue
		}

		pkg, err := p.findLibrary(ctx, name)
		if err != nil {
			p.fail(report, StepManifest, name, err)
			continue
		}
		if _, err := p.deps.Installer.Install(ctx, *pkg, types.InstallOptions{Version: pkg.Latest()}); err != nil {
			if clierr.AlreadyInstalled(err, pkg.ID, pkg.Latest()) {
				report.AlreadyPresent = append(report.AlreadyPresent, name)
				continue
			}
			p.fail(report, StepManifest, name, err)
			continue
		}
		present[name] = true
		report.Installed = append(report.Installed, name)
	}
}

func (p *Provisioner) libraryName(line string) (string, bool) {
	m := p.pattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name := strings.TrimSuffix(m[1], ".git")
	return name, name != ""
}

func (p *Provisioner) findLibrary(ctx context.Context, name string) (*types.Package, error) {
	results, err := p.deps.Libraries.Search(ctx, catalog.SearchQuery{Query: name})
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Name == name || results[i].ID == name {
			return &results[i], nil
		}
	}
	return nil, fmt.Errorf("library %s not found", name)
}

func (p *Provisioner) installLibrary(ctx context.Context, report *Report) {
	name := p.cfg.Library
	if name == "" {
		return
	}

	pkg, err := p.findLibrary(ctx, name)
	if err != nil {
		p.fail(report, StepLibrary, name, err)
		return
	}

	_, err = p.deps.Installer.Install(ctx, *pkg, types.InstallOptions{
		Version:             pkg.Latest(),
		InstallDependencies: true,
		NoOverwrite:         true,
		Location:            types.LocationBuiltin,
	})
	switch {
	case err == nil:
		report.Installed = append(report.Installed, name)
	case clierr.AlreadyInstalled(err, pkg.ID, pkg.Latest()):
		report.AlreadyPresent = append(report.AlreadyPresent, name)
	default:
		p.fail(report, StepLibrary, name, err)
	}
}

func (p *Provisioner) fail(report *Report, step, item string, err error) {
	benign := clierr.IsBenign(err)
	report.Errors = append(report.Errors, ItemError{
		Step:    step,
		Item:    item,
		Message: clierr.Message(err),
		Benign:  benign,
	})
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordProvisionError(step)
	}
	p.logger.Debug("Provisioning step failed",
		zap.String("step", step),
		zap.String("item", item),
		zap.Bool("benign", benign),
		zap.Error(err))
}

// warn surfaces every non-benign error collected so far
func (p *Provisioner) warn(report *Report) {
	for _, e := range report.Errors {
		if e.Benign {
			continue
		}
		msg := WarningPrefix + e.Error()
		p.logger.Warn(msg, zap.String("step", e.Step))
		if p.deps.Warner != nil {
			p.deps.Warner.Warn(msg)
		}
	}
}

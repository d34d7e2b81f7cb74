package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

type fakeLookup struct {
	packages  map[string]types.Package
	installed []types.Package
	listErr   error
	listCalls int
}

func (l *fakeLookup) Get(_ context.Context, id string) (*types.Package, error) {
	if pkg, ok := l.packages[id]; ok {
		return &pkg, nil
	}
	return nil, nil
}

func (l *fakeLookup) Search(_ context.Context, q catalog.SearchQuery) ([]types.Package, error) {
	var out []types.Package
	for _, pkg := range l.packages {
		if strings.Contains(pkg.Name, q.Query) {
			out = append(out, pkg)
		}
	}
	return out, nil
}

func (l *fakeLookup) List(_ context.Context, _ types.ListQuery) ([]types.Package, error) {
	l.listCalls++
	return l.installed, l.listErr
}

type installCall struct {
	pkg  types.Package
	opts types.InstallOptions
}

type fakeInstaller struct {
	mu    sync.Mutex
	calls []installCall
	errs  map[string]error
}

func (i *fakeInstaller) Install(_ context.Context, pkg types.Package, opts types.InstallOptions) (*types.Package, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, installCall{pkg: pkg, opts: opts})
	if err := i.errs[pkg.ID]; err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (i *fakeInstaller) installed() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]string, 0, len(i.calls))
	for _, c := range i.calls {
		ids = append(ids, c.pkg.ID)
	}
	return ids
}

func (i *fakeInstaller) call(id string) (installCall, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range i.calls {
		if c.pkg.ID == id {
			return c, true
		}
	}
	return installCall{}, false
}

type fakeFlags struct {
	set      map[string]bool
	setCalls int
	setErr   error
}

func (f *fakeFlags) Get(key string) (bool, error) {
	return f.set[key], nil
}

func (f *fakeFlags) Set(key string) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	if f.set == nil {
		f.set = map[string]bool{}
	}
	f.set[key] = true
	return nil
}

type fakeFetcher struct {
	manifest string
	// failures is the number of manifest fetches that fail before success
	failures int
	calls    int
	index    string
	indexErr error
}

func (f *fakeFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", fmt.Errorf("fetch %s: 503 Service Unavailable", url)
	}
	return f.manifest, nil
}

func (f *fakeFetcher) FetchJSON(_ context.Context, _ string, v any) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	idx := v.(*boardIndex)
	for _, entry := range strings.Fields(f.index) {
		packager, arch, _ := strings.Cut(entry, ":")
		idx.Platforms = append(idx.Platforms, indexPlatform{
			Architecture:    arch,
			ArchiveFileName: packager + "-" + arch + "-1.0.0.zip",
		})
	}
	return nil
}

type fakeSettings struct {
	urls []string
	sets int
}

func (s *fakeSettings) AdditionalURLs(context.Context) ([]string, error) {
	return s.urls, nil
}

func (s *fakeSettings) SetAdditionalURLs(_ context.Context, urls []string) error {
	s.sets++
	s.urls = urls
	return nil
}

type recordingWarner struct {
	messages []string
}

func (w *recordingWarner) Warn(message string) {
	w.messages = append(w.messages, message)
}

func library(name string) types.Package {
	return types.Package{ID: name, Name: name, Kind: types.KindLibrary, AvailableVersions: []string{"1.2.0", "1.1.0"}}
}

func platform(id string) types.Package {
	return types.Package{ID: id, Name: id, Kind: types.KindPlatform, AvailableVersions: []string{"1.8.6"}}
}

type fixture struct {
	cfg       Config
	platforms *fakeLookup
	libraries *fakeLookup
	installer *fakeInstaller
	flags     *fakeFlags
	fetcher   *fakeFetcher
	settings  *fakeSettings
	warner    *recordingWarner
	sleeps    []time.Duration
	metrics   *monitoring.Metrics
}

func newFixture() *fixture {
	return &fixture{
		cfg: Config{
			Platforms:       []string{"arduino:avr"},
			VendorPlatforms: []string{"PTSolnsAVR:avr"},
			Library:         "Arduino_BuiltIn",
			ManifestURL:     "https://registry.test/default_included.txt",
			Pattern:         `github\.com/PTSolns/([^/]+)`,
			IndexURL:        "https://boards.test/boards.json",
			Attempts:        5,
			Delay:           5 * time.Second,
		},
		platforms: &fakeLookup{packages: map[string]types.Package{
			"arduino:avr":    platform("arduino:avr"),
			"PTSolnsAVR:avr": platform("PTSolnsAVR:avr"),
		}},
		libraries: &fakeLookup{packages: map[string]types.Package{
			"Arduino_BuiltIn": library("Arduino_BuiltIn"),
			"NS_Sensor":       library("NS_Sensor"),
			"NS_Display":      library("NS_Display"),
		}},
		installer: &fakeInstaller{errs: map[string]error{}},
		flags:     &fakeFlags{},
		fetcher: &fakeFetcher{
			manifest: "https://github.com/PTSolns/NS_Sensor\nhttps://github.com/PTSolns/NS_Display\n",
			index:    "PTSolnsAVR:avr PTSolnsESP32:esp32",
		},
		settings: &fakeSettings{},
		warner:   &recordingWarner{},
		metrics:  monitoring.NewMetrics(),
	}
}

func (f *fixture) provisioner(t *testing.T) *Provisioner {
	t.Helper()
	p, err := New(f.cfg, Deps{
		Platforms: f.platforms,
		Libraries: f.libraries,
		Installer: f.installer,
		Flags:     f.flags,
		Fetcher:   f.fetcher,
		Settings:  f.settings,
		Warner:    f.warner,
		Metrics:   f.metrics,
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	})
	require.NoError(t, err)
	return p
}

func TestNewRejectsPatternWithoutGroup(t *testing.T) {
	_, err := New(Config{Pattern: `github\.com/PTSolns/`}, Deps{})
	assert.Error(t, err)

	_, err = New(Config{Pattern: `(`}, Deps{})
	assert.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	body := "  https://github.com/PTSolns/A  \n\n# comment\r\nhttps://github.com/PTSolns/B\r\n   \n"
	assert.Equal(t, []string{"https://github.com/PTSolns/A", "https://github.com/PTSolns/B"}, ParseManifest(body))
	assert.Empty(t, ParseManifest("\n \n"))
}

func TestRunInstallsEverythingOnFirstStart(t *testing.T) {
	f := newFixture()

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Ran)
	assert.False(t, report.Skipped)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.ManifestAttempts)
	assert.Equal(t,
		[]string{"arduino:avr", "PTSolnsAVR:avr", "NS_Sensor", "NS_Display", "Arduino_BuiltIn"},
		f.installer.installed())
	assert.Equal(t, 1, f.flags.setCalls)
	assert.Empty(t, f.warner.messages)

	builtin, ok := f.installer.call("Arduino_BuiltIn")
	require.True(t, ok)
	assert.Equal(t, types.InstallOptions{
		Version:             "1.2.0",
		InstallDependencies: true,
		NoOverwrite:         true,
		Location:            types.LocationBuiltin,
	}, builtin.opts)

	avr, ok := f.installer.call("arduino:avr")
	require.True(t, ok)
	assert.Equal(t, "1.8.6", avr.opts.Version)
	assert.True(t, avr.opts.NoOverwrite)

	sensor, ok := f.installer.call("NS_Sensor")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", sensor.opts.Version)
	assert.False(t, sensor.opts.InstallDependencies)
}

func TestRunRegistersIndexURLEveryStart(t *testing.T) {
	f := newFixture()
	f.flags.set = map[string]bool{FlagKey: true}
	f.settings.urls = []string{"https://other.test/index.json"}

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Equal(t, []string{"https://other.test/index.json", "https://boards.test/boards.json"}, f.settings.urls)

	g := newFixture()
	g.settings.urls = []string{"https://boards.test/boards.json"}
	_, err = g.provisioner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, g.settings.sets)
}

func TestRunSkipsWhenFlagSet(t *testing.T) {
	f := newFixture()
	f.flags.set = map[string]bool{FlagKey: true}

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.False(t, report.Ran)
	assert.Empty(t, f.installer.installed())
	assert.Zero(t, f.fetcher.calls)
	assert.Zero(t, f.flags.setCalls)
}

func TestSecondStartSkips(t *testing.T) {
	f := newFixture()
	_, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)
	first := len(f.installer.installed())

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Len(t, f.installer.installed(), first)
	assert.Equal(t, 1, f.flags.setCalls)
}

func TestRunOncePerProcess(t *testing.T) {
	f := newFixture()
	p := f.provisioner(t)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.flags.setCalls)

	got, ok := p.Report()
	assert.True(t, ok)
	assert.Same(t, first, got)
}

func TestMalformedManifestEntryIsOneError(t *testing.T) {
	f := newFixture()
	f.fetcher.manifest = "https://github.com/PTSolns/NS_Sensor\nhttps://gitlab.com/someone/else\nhttps://github.com/PTSolns/NS_Display\n"

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepManifest, report.Errors[0].Step)
	assert.Contains(t, report.Errors[0].Message, "gitlab.com/someone/else")
	assert.Contains(t, report.Installed, "NS_Sensor")
	assert.Contains(t, report.Installed, "NS_Display")
	require.Len(t, f.warner.messages, 1)
	assert.True(t, strings.HasPrefix(f.warner.messages[0], WarningPrefix))
}

func TestManifestRetriesFetchFailures(t *testing.T) {
	f := newFixture()
	f.fetcher.failures = 2

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.ManifestAttempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, f.sleeps)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.Installed, "NS_Display")
	assert.Equal(t, 1, f.libraries.listCalls)
}

func TestManifestFailureStillSetsFlag(t *testing.T) {
	f := newFixture()
	f.fetcher.failures = 100

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.ManifestAttempts)
	assert.Equal(t, 5, f.fetcher.calls)
	assert.Len(t, f.sleeps, 4)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "after 5 attempts")
	assert.Equal(t, 1, f.flags.setCalls)
	assert.True(t, f.flags.set[FlagKey])
	assert.Contains(t, f.installer.installed(), "Arduino_BuiltIn")
}

func TestEmptyManifestIsRetried(t *testing.T) {
	f := newFixture()
	f.fetcher.manifest = "\n\n"
	f.cfg.Attempts = 2

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.ManifestAttempts)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, errManifestEmpty.Error())
}

func TestInstalledLibrariesAreSkipped(t *testing.T) {
	f := newFixture()
	f.libraries.installed = []types.Package{{ID: "NS_Sensor", Name: "NS_Sensor", InstalledVersion: "1.0.0"}}

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, f.installer.installed(), "NS_Sensor")
	assert.Contains(t, report.AlreadyPresent, "NS_Sensor")
}

func TestPerItemFailuresContinueBatch(t *testing.T) {
	f := newFixture()
	f.fetcher.manifest = "https://github.com/PTSolns/Missing\nhttps://github.com/PTSolns/NS_Sensor\nhttps://github.com/PTSolns/NS_Display"
	f.installer.errs["NS_Sensor"] = status.Error(codes.Unknown, "download failed")

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, "Missing", report.Errors[0].Item)
	assert.Equal(t, "NS_Sensor", report.Errors[1].Item)
	assert.Equal(t, "download failed", report.Errors[1].Message)
	assert.Contains(t, report.Installed, "NS_Display")
	assert.Len(t, f.warner.messages, 2)
}

func TestAlreadyInstalledIsNotAnError(t *testing.T) {
	f := newFixture()
	f.installer.errs["arduino:avr"] = status.Error(codes.AlreadyExists, "Platform arduino:avr@1.8.6 already installed")
	f.installer.errs["Arduino_BuiltIn"] = status.Error(codes.AlreadyExists, "Library Arduino_BuiltIn@1.0.0 is already installed")

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Errors)
	assert.Contains(t, report.AlreadyPresent, "arduino:avr")
	assert.Contains(t, report.AlreadyPresent, "Arduino_BuiltIn")
	assert.Empty(t, f.warner.messages)
}

func TestPlatformAlreadyInstalledOtherVersionIsAnError(t *testing.T) {
	f := newFixture()
	f.installer.errs["arduino:avr"] = status.Error(codes.AlreadyExists, "Platform arduino:avr@1.8.5 already installed")

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepPlatform, report.Errors[0].Step)
}

func TestUpToDatePlatformIsNotReinstalled(t *testing.T) {
	f := newFixture()
	avr := platform("arduino:avr")
	avr.InstalledVersion = "1.8.6"
	f.platforms.packages["arduino:avr"] = avr

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, f.installer.installed(), "arduino:avr")
	assert.Contains(t, report.AlreadyPresent, "arduino:avr")
}

func TestMissingPlatformIsAnError(t *testing.T) {
	f := newFixture()
	delete(f.platforms.packages, "arduino:avr")

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "arduino:avr", report.Errors[0].Item)
	assert.Contains(t, f.installer.installed(), "PTSolnsAVR:avr")
}

func TestVendorPlatformMissingFromIndex(t *testing.T) {
	f := newFixture()
	f.cfg.VendorPlatforms = []string{"PTSolnsAVR:avr", "PTSolnsRP:rp2040"}

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepIndex, report.Errors[0].Step)
	assert.Equal(t, "PTSolnsRP:rp2040", report.Errors[0].Item)
	assert.Contains(t, f.installer.installed(), "PTSolnsAVR:avr")
}

func TestIndexFetchFailureSkipsVendorPlatforms(t *testing.T) {
	f := newFixture()
	f.fetcher.indexErr = errors.New("fetch https://boards.test/boards.json: 404 Not Found")

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepIndex, report.Errors[0].Step)
	assert.NotContains(t, f.installer.installed(), "PTSolnsAVR:avr")
	assert.Contains(t, f.installer.installed(), "arduino:avr")
}

func TestBenignErrorsAreNotWarned(t *testing.T) {
	f := newFixture()
	f.installer.errs["NS_Sensor"] = fmt.Errorf("install NS_Sensor: %w", clierr.ErrNilResponse)

	report, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.True(t, report.Errors[0].Benign)
	assert.Empty(t, f.warner.messages)
}

func TestProvisionErrorsAreCounted(t *testing.T) {
	f := newFixture()
	f.fetcher.manifest = "not a url"

	_, err := f.provisioner(t).Run(context.Background())
	require.NoError(t, err)

	gathered, err := f.metrics.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range gathered {
		if mf.GetName() == "pkgd_provision_errors_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRunWaitsForBackend(t *testing.T) {
	f := newFixture()
	p, err := New(f.cfg, Deps{
		Platforms: f.platforms,
		Libraries: f.libraries,
		Installer: f.installer,
		Flags:     f.flags,
		Fetcher:   f.fetcher,
		Ready:     readiness(func() error { return errors.New("backend not ready") }),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.Error(t, err)
	assert.Zero(t, f.flags.setCalls)

	_, ok := p.Report()
	assert.False(t, ok)
}

func TestReportDoesNotWaitForRun(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})
	p, err := New(f.cfg, Deps{
		Platforms: f.platforms,
		Libraries: f.libraries,
		Installer: f.installer,
		Flags:     f.flags,
		Fetcher:   f.fetcher,
		Ready: readiness(func() error {
			close(entered)
			<-release
			return nil
		}),
	})
	require.NoError(t, err)

	finished := make(chan *Report)
	go func() {
		report, _ := p.Run(context.Background())
		finished <- report
	}()
	<-entered

	type result struct {
		report *Report
		ok     bool
	}
	got := make(chan result, 1)
	go func() {
		r, ok := p.Report()
		got <- result{r, ok}
	}()

	select {
	case r := <-got:
		assert.False(t, r.ok)
		assert.Nil(t, r.report)
	case <-time.After(time.Second):
		t.Fatal("Report waited for the run in progress")
	}

	close(release)
	report := <-finished
	require.NotNil(t, report)

	last, ok := p.Report()
	require.True(t, ok)
	assert.Same(t, report, last)
	assert.False(t, last.FinishedAt.IsZero())
}

func TestFlagPersistFailureIsWarned(t *testing.T) {
	f := newFixture()
	f.flags.setErr = errors.New("read-only file system")

	report, err := f.provisioner(t).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.flags.setCalls)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepFlag, report.Errors[0].Step)
	require.Len(t, f.warner.messages, 1)
	assert.Equal(t, WarningPrefix+FlagKey+": read-only file system", f.warner.messages[0])
}

type readiness func() error

func (r readiness) WaitReady(context.Context) error { return r() }

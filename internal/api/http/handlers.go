package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/installer"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/provision"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// Catalog is the read side served over HTTP
type Catalog interface {
	Search(ctx context.Context, q catalog.SearchQuery) ([]types.Package, error)
	List(ctx context.Context, q types.ListQuery) ([]types.Package, error)
	Get(ctx context.Context, id string) (*types.Package, error)
	ListDependencies(ctx context.Context, name, ver string, excludeSelf bool) ([]types.Dependency, error)
}

// Installer is the mutating side served over HTTP
type Installer interface {
	Install(ctx context.Context, pkg types.Package, opts types.InstallOptions) (*types.Package, error)
	Uninstall(ctx context.Context, pkg types.Package, opts types.UninstallOptions) error
	InstallFromArchive(ctx context.Context, path string, opts types.ArchiveOptions) error
	Operations() []installer.Operation
}

// Reporter exposes the provisioning report
type Reporter interface {
	Report() (*provision.Report, bool)
}

// Status reports liveness details for /health
type Status struct {
	BackendReady func() bool
	Discovery    func() string
	Listeners    func() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	catalogs  map[types.Kind]Catalog
	installer Installer
	reporter  Reporter
	status    Status
}

// NewHandlers creates a new handler set. reporter may be nil when
// provisioning is disabled.
func NewHandlers(catalogs map[types.Kind]Catalog, inst Installer, reporter Reporter, status Status) *Handlers {
	return &Handlers{
		catalogs:  catalogs,
		installer: inst,
		reporter:  reporter,
		status:    status,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	r.GET("/packages/:kind", h.Search)
	r.GET("/packages/:kind/installed", h.ListInstalled)
	r.GET("/packages/:kind/:id", h.GetPackage)
	r.POST("/packages/:kind/install", h.Install)
	r.POST("/packages/:kind/uninstall", h.Uninstall)

	r.GET("/libraries/:id/dependencies", h.Dependencies)
	r.POST("/libraries/archive", h.InstallArchive)

	r.GET("/operations", h.Operations)
	r.GET("/provision", h.Provision)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.status.BackendReady != nil {
		body["backend_ready"] = h.status.BackendReady()
	}
	if h.status.Discovery != nil {
		body["discovery"] = h.status.Discovery()
	}
	if h.status.Listeners != nil {
		body["listeners"] = h.status.Listeners()
	}
	c.JSON(http.StatusOK, body)
}

// Operations returns the recent mutation records
func (h *Handlers) Operations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.installer.Operations()})
}

// Provision returns the last provisioning report
func (h *Handlers) Provision(c *gin.Context) {
	if h.reporter == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	report, ok := h.reporter.Report()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"enabled": true, "completed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "completed": true, "report": report})
}

// catalogFor resolves the :kind parameter or writes a 400
func (h *Handlers) catalogFor(c *gin.Context) (types.Kind, Catalog, bool) {
	kind := types.Kind(c.Param("kind"))
	cat, ok := h.catalogs[kind]
	if !kind.Valid() || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package kind: " + string(kind)})
		return "", nil, false
	}
	return kind, cat, true
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/installer"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/id"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/validate"
)

// InstallRequest is the body of POST /packages/:kind/install
type InstallRequest struct {
	ID                  string         `json:"id" binding:"required"`
	Version             string         `json:"version"`
	InstallDependencies bool           `json:"install_dependencies"`
	NoOverwrite         bool           `json:"no_overwrite"`
	Location            types.Location `json:"location" binding:"omitempty,oneof=user builtin"`
	ProgressID          string         `json:"progress_id"`
}

// UninstallRequest is the body of POST /packages/:kind/uninstall
type UninstallRequest struct {
	ID         string `json:"id" binding:"required"`
	ProgressID string `json:"progress_id"`
}

// ArchiveRequest is the body of POST /libraries/archive
type ArchiveRequest struct {
	Path       string `json:"path" binding:"required"`
	Overwrite  bool   `json:"overwrite"`
	ProgressID string `json:"progress_id"`
}

// Search lists remote packages merged with their installed state
func (h *Handlers) Search(c *gin.Context) {
	_, cat, ok := h.catalogFor(c)
	if !ok {
		return
	}

	var q catalog.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}

	pkgs, err := cat.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "count": len(pkgs)})
}

// ListInstalled lists installed packages
func (h *Handlers) ListInstalled(c *gin.Context) {
	kind, cat, ok := h.catalogFor(c)
	if !ok {
		return
	}

	pkgs, err := cat.List(c.Request.Context(), types.ListQuery{
		Kind: kind,
		FQBN: c.Query("fqbn"),
		Name: c.Query("name"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "count": len(pkgs)})
}

// GetPackage returns one package by exact ID
func (h *Handlers) GetPackage(c *gin.Context) {
	_, cat, ok := h.catalogFor(c)
	if !ok {
		return
	}

	pkgID := c.Param("id")
	pkg, err := cat.Get(c.Request.Context(), pkgID)
	if err != nil {
		writeError(c, err)
		return
	}
	if pkg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found: " + pkgID})
		return
	}
	c.JSON(http.StatusOK, pkg)
}

// Dependencies lists the transitive dependencies of a library version
func (h *Handlers) Dependencies(c *gin.Context) {
	cat, ok := h.catalogs[types.KindLibrary]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "library catalog unavailable"})
		return
	}

	excludeSelf := false
	if raw := c.Query("exclude_self"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exclude_self: " + raw})
			return
		}
		excludeSelf = v
	}

	name := c.Param("id")
	deps, err := cat.ListDependencies(c.Request.Context(), name, c.Query("version"), excludeSelf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"library": name, "dependencies": deps})
}

// Install installs a package and waits for its stream to finish
func (h *Handlers) Install(c *gin.Context) {
	kind, cat, ok := h.catalogFor(c)
	if !ok {
		return
	}

	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := errors.Join(validateID(kind, req.ID), validate.Version(req.Version), validate.ProgressID(req.ProgressID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	pkg, err := cat.Get(ctx, req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if pkg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found: " + req.ID})
		return
	}

	progressID := progressIDOrNew(req.ProgressID)
	installed, err := h.installer.Install(ctx, *pkg, types.InstallOptions{
		Version:             req.Version,
		InstallDependencies: req.InstallDependencies,
		NoOverwrite:         req.NoOverwrite,
		Location:            req.Location,
		ProgressID:          progressID,
	})
	if err != nil {
		writeError(c, err, "progress_id", progressID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": installed, "progress_id": progressID})
}

// Uninstall removes an installed package
func (h *Handlers) Uninstall(c *gin.Context) {
	kind, cat, ok := h.catalogFor(c)
	if !ok {
		return
	}

	var req UninstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := errors.Join(validateID(kind, req.ID), validate.ProgressID(req.ProgressID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	pkg, err := cat.Get(ctx, req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if pkg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found: " + req.ID})
		return
	}

	progressID := progressIDOrNew(req.ProgressID)
	if err := h.installer.Uninstall(ctx, *pkg, types.UninstallOptions{ProgressID: progressID}); err != nil {
		writeError(c, err, "progress_id", progressID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": pkg.ID, "progress_id": progressID})
}

// InstallArchive installs a library from a local zip file
func (h *Handlers) InstallArchive(c *gin.Context) {
	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := errors.Join(validate.ArchivePath(req.Path), validate.ProgressID(req.ProgressID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	progressID := progressIDOrNew(req.ProgressID)
	err := h.installer.InstallFromArchive(c.Request.Context(), req.Path, types.ArchiveOptions{
		Overwrite:  req.Overwrite,
		ProgressID: progressID,
	})
	if err != nil {
		writeError(c, err, "progress_id", progressID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.Path, "progress_id": progressID})
}

func validateID(kind types.Kind, pkgID string) error {
	if kind == types.KindPlatform {
		return validate.PlatformID(pkgID)
	}
	return validate.LibraryID(pkgID)
}

func progressIDOrNew(given string) string {
	if given != "" {
		return given
	}
	return id.NewProgressID().String()
}

// writeError maps domain errors onto status codes. Extra key/value pairs
// are added to the body.
func writeError(c *gin.Context, err error, extra ...string) {
	body := gin.H{"error": clierr.Message(err)}
	for i := 0; i+1 < len(extra); i += 2 {
		body[extra[i]] = extra[i+1]
	}
	c.JSON(statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, installer.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnknownFilter),
		errors.Is(err, catalog.ErrNotLibrary),
		errors.Is(err, installer.ErrNotInstalled),
		errors.Is(err, installer.ErrNoVersion),
		errors.Is(err, installer.ErrUnknownKind),
		errors.Is(err, installer.ErrInvalidArchive):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

package cli

import "github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"

// ServiceName is the fully qualified daemon service
const ServiceName = "ptsolns.cli.v1.PackageService"

// Method paths
const (
	MethodCreate                     = "/" + ServiceName + "/Create"
	MethodInit                       = "/" + ServiceName + "/Init"
	MethodPlatformList               = "/" + ServiceName + "/PlatformList"
	MethodLibraryList                = "/" + ServiceName + "/LibraryList"
	MethodPlatformSearch             = "/" + ServiceName + "/PlatformSearch"
	MethodLibrarySearch              = "/" + ServiceName + "/LibrarySearch"
	MethodLibraryResolveDependencies = "/" + ServiceName + "/LibraryResolveDependencies"
	MethodPlatformInstall            = "/" + ServiceName + "/PlatformInstall"
	MethodLibraryInstall             = "/" + ServiceName + "/LibraryInstall"
	MethodPlatformUninstall          = "/" + ServiceName + "/PlatformUninstall"
	MethodLibraryUninstall           = "/" + ServiceName + "/LibraryUninstall"
	MethodZipLibraryInstall          = "/" + ServiceName + "/ZipLibraryInstall"
	MethodSettingsGetValue           = "/" + ServiceName + "/SettingsGetValue"
	MethodSettingsSetValue           = "/" + ServiceName + "/SettingsSetValue"
	MethodBoardListWatch             = "/" + ServiceName + "/BoardListWatch"
)

// SettingAdditionalURLs is the settings key of extra board index URLs
const SettingAdditionalURLs = "board_manager.additional_urls"

// Instance is the handle of one daemon session
type Instance struct {
	ID int32 `json:"id"`
}

type CreateRequest struct{}

type CreateResponse struct {
	Instance *Instance `json:"instance"`
}

type InitRequest struct {
	Instance *Instance `json:"instance"`
}

type ListRequest struct {
	Instance *Instance `json:"instance"`
	FQBN     string    `json:"fqbn,omitempty"`
	Name     string    `json:"name,omitempty"`
	All      bool      `json:"all,omitempty"`
}

type ListResponse struct {
	Installed []types.InstalledRecord `json:"installed"`
}

type SearchRequest struct {
	Instance *Instance `json:"instance"`
	Query    string    `json:"query"`
}

type SearchResponse struct {
	Results []types.RemoteRecord `json:"results"`
}

type ResolveDependenciesRequest struct {
	Instance *Instance `json:"instance"`
	Name     string    `json:"name"`
	Version  string    `json:"version,omitempty"`
}

type ResolveDependenciesResponse struct {
	Dependencies []types.Dependency `json:"dependencies"`
}

type InstallRequest struct {
	Instance *Instance `json:"instance"`
	types.InstallRequest
}

type UninstallRequest struct {
	Instance *Instance `json:"instance"`
	types.UninstallRequest
}

type ZipInstallRequest struct {
	Instance *Instance `json:"instance"`
	types.ArchiveRequest
}

type SettingsGetRequest struct {
	Key string `json:"key"`
}

type SettingsGetResponse struct {
	Values []string `json:"values"`
}

type SettingsSetRequest struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type SettingsSetResponse struct{}

type BoardListWatchRequest struct {
	Instance *Instance `json:"instance"`
}

// BoardEvent is one discovery update
type BoardEvent struct {
	EventType string   `json:"event_type"`
	Address   string   `json:"address,omitempty"`
	Protocol  string   `json:"protocol,omitempty"`
	Boards    []string `json:"boards,omitempty"`
	Error     string   `json:"error,omitempty"`
}

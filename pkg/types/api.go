package types

// PackageInfo summarizes an installed package for GET /packages.
type PackageInfo struct {
	// Unique identifier of the installed package.
	// example: 2f1f9f2e-8f8f-4a4a-9c9c-1a1a1a1a1a1a
	ID string `json:"id" example:"2f1f9f2e-8f8f-4a4a-9c9c-1a1a1a1a1a1a"`
	// User-facing display name.
	// example: Stable Diffusion WebUI
	DisplayName string `json:"display_name" example:"Stable Diffusion WebUI"`
	// Catalog package-type name.
	// example: sd-webui
	PackageName string `json:"package_name" example:"sd-webui"`
	// Installed version or branch identifier.
	// example: v1.10.1
	Version string `json:"version" example:"v1.10.1"`
	// Installation path relative to the library root.
	// example: Packages/sd-webui
	LibraryPath string `json:"library_path" example:"Packages/sd-webui"`
	// Whether an update is known to be available.
	// example: false
	UpdateAvailable bool `json:"update_available" example:"false"`
	// Lifecycle state when launched (not-started, starting, running, stopped, crashed).
	// example: running
	State string `json:"state,omitempty" example:"running"`
}

// LaunchResponse is returned by POST /packages/{id}/launch.
type LaunchResponse struct {
	// ID of the launched package.
	ID string `json:"id"`
	// Lifecycle state immediately after the launch request.
	// example: starting
	State string `json:"state" example:"starting"`
}

// DownloadRequest enqueues a new tracked download.
type DownloadRequest struct {
	// Source URI to fetch.
	// example: https://example.com/models/model.safetensors
	URI string `json:"uri" example:"https://example.com/models/model.safetensors"`
	// Final file name in the downloads directory. Derived from the URI when empty.
	FileName string `json:"file_name,omitempty"`
	// Optional expected SHA-256 of the completed file.
	SHA256 string `json:"sha256,omitempty"`
}

// DownloadInfo summarizes a tracked download for GET /downloads.
type DownloadInfo struct {
	// Unique identifier of the download.
	ID string `json:"id"`
	// Source URI.
	URI string `json:"uri"`
	// Final file name.
	FileName string `json:"file_name"`
	// Progress state (idle, in_progress, success, failed, cancelled).
	// example: in_progress
	State string `json:"state" example:"in_progress"`
	// Percentage complete, 0-100.
	// example: 42.5
	Percent float64 `json:"percent" example:"42.5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Library root directory, empty until set.
	LibraryRoot string `json:"library_root,omitempty"`
	// Number of installed packages.
	InstalledPackages int `json:"installed_packages"`
	// Currently running package, if any.
	Running *PackageInfo `json:"running,omitempty"`
	// Active (non-terminal) downloads.
	ActiveDownloads int `json:"active_downloads"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: library directory is not set
	Error string `json:"error" example:"library directory is not set"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
}

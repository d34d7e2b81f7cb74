package types

import "time"

// TaskProgress is a structured step report from the backend
type TaskProgress struct {
	Name      string `json:"name,omitempty"`
	Message   string `json:"message,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// DownloadProgress is a structured transfer report from the backend
type DownloadProgress struct {
	URL        string `json:"url,omitempty"`
	Label      string `json:"label,omitempty"`
	Downloaded int64  `json:"downloaded,omitempty"`
	Total      int64  `json:"total,omitempty"`
	Completed  bool   `json:"completed,omitempty"`
}

// ProgressChunk is one element of a mutation stream. A chunk is either
// plain text or carries a structured task/download report.
type ProgressChunk struct {
	Message  string            `json:"message,omitempty"`
	Task     *TaskProgress     `json:"task,omitempty"`
	Download *DownloadProgress `json:"download,omitempty"`
}

// ProgressStream is a blocking iterator over the chunks of one backend call.
// Recv returns io.EOF once the stream completed; any other error means the
// operation failed.
type ProgressStream interface {
	Recv() (*ProgressChunk, error)
}

// Severity of an output line
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// OutputChunk is a line of operation output attributed to a progress ID
type OutputChunk struct {
	ProgressID string   `json:"progress_id,omitempty"`
	Chunk      string   `json:"chunk"`
	Severity   Severity `json:"severity,omitempty"`
}

// EventType names a broadcaster event
type EventType string

const (
	EventInstalled     EventType = "installed"
	EventUninstalled   EventType = "uninstalled"
	EventIndexUpdated  EventType = "index_updated"
	EventOutput        EventType = "output"
	EventWarning       EventType = "warning"
	EventBoardsChanged EventType = "boards_changed"
)

// Event is delivered to every registered listener
type Event struct {
	Type      EventType    `json:"type"`
	Package   *Package     `json:"package,omitempty"`
	Archive   string       `json:"archive,omitempty"`
	Output    *OutputChunk `json:"output,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

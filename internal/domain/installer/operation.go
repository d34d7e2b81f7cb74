package installer

import (
	"sort"
	"sync"
	"time"

	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/id"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// Phase of one mutation
type Phase string

const (
	PhasePending            Phase = "pending"
	PhaseDiscoveryStopped   Phase = "discovery_stopped"
	PhaseStreaming          Phase = "streaming"
	PhaseCompleted          Phase = "completed"
	PhaseFailed             Phase = "failed"
	PhaseDiscoveryRestarted Phase = "discovery_restarted"
)

// Op names the mutation kind
type Op string

const (
	OpInstall   Op = "install"
	OpUninstall Op = "uninstall"
	OpArchive   Op = "archive"
)

// Operation is the record of one mutation. Outcome is PhaseCompleted or
// PhaseFailed once the stream ended; Phase keeps advancing until the
// discovery restart.
type Operation struct {
	ID         id.OperationID `json:"id"`
	ProgressID string         `json:"progress_id"`
	Op         Op             `json:"op"`
	Kind       types.Kind     `json:"kind"`
	Package    string         `json:"package"`
	Version    string         `json:"version,omitempty"`
	Phase      Phase          `json:"phase"`
	Outcome    Phase          `json:"outcome,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// history keeps the most recent operations
type history struct {
	mu    sync.RWMutex
	ops   map[id.OperationID]*Operation
	order []id.OperationID
	limit int
}

func newHistory(limit int) *history {
	return &history{ops: make(map[id.OperationID]*Operation), limit: limit}
}

func (h *history) start(op *Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ops[op.ID] = op
	h.order = append(h.order, op.ID)
	for len(h.order) > h.limit {
		delete(h.ops, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *history) advance(op *Operation, phase Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()

	op.Phase = phase
	switch phase {
	case PhaseCompleted, PhaseFailed:
		op.Outcome = phase
	case PhaseDiscoveryRestarted:
		now := time.Now()
		op.FinishedAt = &now
	}
}

func (h *history) fail(op *Operation, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	op.Outcome = PhaseFailed
	op.Error = err.Error()
}

func (h *history) snapshot() []Operation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Operation, 0, len(h.ops))
	for _, op := range h.ops {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// guard admits at most one in-flight mutation per key
type guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newGuard() *guard {
	return &guard{active: make(map[string]struct{})}
}

func (g *guard) acquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[key]; busy {
		return nil, false
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, true
}

func (g *guard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

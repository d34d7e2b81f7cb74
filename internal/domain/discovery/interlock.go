// Package discovery pauses board discovery around package mutations.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
)

// Controller starts and stops the hardware discovery process.
// Both calls must be idempotent.
type Controller interface {
	Stop(ctx context.Context) error
	Start()
}

// State of the discovery lease
type State string

const (
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateDisabled State = "disabled"
)

// Interlock serializes every mutating operation through one critical
// section with discovery stopped. There is no reference counting: with
// mutations serialized, discovery is stopped and restarted exactly once
// per mutation and is never restarted while another mutation runs.
type Interlock struct {
	ctrl    Controller
	logger  *logging.Logger
	metrics *monitoring.Metrics

	// held for the whole pause-run-resume sequence
	mu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// NewInterlock wraps ctrl. The lease starts stopped until Start is
// called. A nil controller yields an interlock that only serializes and
// reports StateDisabled.
func NewInterlock(ctrl Controller, logger *logging.Logger, metrics *monitoring.Metrics) *Interlock {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Interlock{
		ctrl:    ctrl,
		logger:  logger.Named("discovery"),
		metrics: metrics,
		state:   StateStopped,
	}
	if ctrl == nil {
		l.ctrl = noopController{}
		l.state = StateDisabled
	}
	return l
}

// Start begins discovery. It waits for any mutation in progress.
func (l *Interlock) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() == StateDisabled {
		return
	}
	l.resume()
}

// State reports the current lease state
func (l *Interlock) State() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// WithPaused stops discovery, runs fn and restarts discovery on every
// exit path, panics included. fn's error is returned unchanged. When the
// stop itself fails, discovery is restarted and fn is not run. A lease
// that was never started, or is disabled, only serializes.
func (l *Interlock) WithPaused(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() != StateRunning {
		return fn(ctx)
	}
	defer l.resume()

	if err := l.ctrl.Stop(ctx); err != nil {
		l.logger.Warn("Failed to stop discovery", zap.Error(err))
		return fmt.Errorf("stop discovery: %w", err)
	}
	l.setState(StateStopped)
	if l.metrics != nil {
		l.metrics.DiscoveryPauses.Inc()
	}
	l.logger.Debug("Discovery paused")

	return fn(ctx)
}

func (l *Interlock) resume() {
	l.ctrl.Start()
	l.setState(StateRunning)
	l.logger.Debug("Discovery resumed")
}

func (l *Interlock) setState(s State) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

type noopController struct{}

func (noopController) Stop(context.Context) error { return nil }
func (noopController) Start()                     {}

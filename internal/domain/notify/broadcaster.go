package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// DefaultBuffer is the per-listener queue length used when none is given
const DefaultBuffer = 64

// Broadcaster delivers events to a dynamic set of listeners. Sends never
// block: a listener whose queue is full loses the event, and the loss is
// counted. Listeners may come and go at any time.
type Broadcaster struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.RWMutex
	listeners map[uuid.UUID]*Subscription

	dropped atomic.Uint64
	now     func() time.Time
}

// NewBroadcaster creates an empty broadcaster; metrics may be nil
func NewBroadcaster(logger *logging.Logger, metrics *monitoring.Metrics) *Broadcaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		logger:    logger.Named("notify"),
		metrics:   metrics,
		listeners: make(map[uuid.UUID]*Subscription),
		now:       time.Now,
	}
}

// Subscription is a listener handle; Close is the disposer
type Subscription struct {
	id     uuid.UUID
	events chan types.Event
	owner  *Broadcaster
	once   sync.Once
}

// ID identifies the subscription
func (s *Subscription) ID() string {
	return s.id.String()
}

// Events returns the delivery channel, closed after Close
func (s *Subscription) Events() <-chan types.Event {
	return s.events
}

// Close unregisters the listener. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.owner.remove(s)
	})
}

// Subscribe registers a listener with the given queue length
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		id:     uuid.New(),
		events: make(chan types.Event, buffer),
		owner:  b,
	}

	b.mu.Lock()
	b.listeners[sub.id] = sub
	count := len(b.listeners)
	b.mu.Unlock()

	b.setListenerGauge(count)
	b.logger.Debug("Listener subscribed", zap.String("listener", sub.ID()), zap.Int("listeners", count))
	return sub
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.listeners, sub.id)
	close(sub.events)
	count := len(b.listeners)
	b.mu.Unlock()

	b.setListenerGauge(count)
	b.logger.Debug("Listener unsubscribed", zap.String("listener", sub.ID()), zap.Int("listeners", count))
}

// Listeners returns the number of registered listeners
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Dropped returns the number of events lost to full listener queues
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish delivers ev to every listener
func (b *Broadcaster) Publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.listeners {
		select {
		case sub.events <- ev:
		default:
			b.dropped.Add(1)
			if b.metrics != nil {
				b.metrics.NotificationsDropped.Inc()
			}
		}
	}
}

// NotifyInstalled announces a newly installed package
func (b *Broadcaster) NotifyInstalled(pkg types.Package) {
	b.Publish(types.Event{Type: types.EventInstalled, Package: &pkg})
}

// NotifyArchiveInstalled announces a library installed from an archive
func (b *Broadcaster) NotifyArchiveInstalled(path string) {
	b.Publish(types.Event{Type: types.EventInstalled, Archive: path})
}

// NotifyUninstalled announces a removed package
func (b *Broadcaster) NotifyUninstalled(pkg types.Package) {
	b.Publish(types.Event{Type: types.EventUninstalled, Package: &pkg})
}

// NotifyIndexUpdated tells listeners to re-query the catalog
func (b *Broadcaster) NotifyIndexUpdated() {
	b.Publish(types.Event{Type: types.EventIndexUpdated})
}

// NotifyBoardsChanged relays a discovery update
func (b *Broadcaster) NotifyBoardsChanged(message string) {
	b.Publish(types.Event{Type: types.EventBoardsChanged, Message: message})
}

// Warn publishes a non-blocking user notice
func (b *Broadcaster) Warn(message string) {
	b.Publish(types.Event{Type: types.EventWarning, Message: message})
}

// AppendToOutput implements OutputSink
func (b *Broadcaster) AppendToOutput(chunk types.OutputChunk) {
	b.Publish(types.Event{Type: types.EventOutput, Output: &chunk})
}

func (b *Broadcaster) setListenerGauge(count int) {
	if b.metrics != nil {
		b.metrics.Listeners.Set(float64(count))
	}
}

package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
)

// BoardWatcherSource opens discovery streams
type BoardWatcherSource interface {
	WatchBoards(ctx context.Context) (BoardStream, error)
}

// BoardPublisher receives discovery updates
type BoardPublisher interface {
	NotifyBoardsChanged(message string)
}

// BoardWatcher runs the daemon's board discovery watch. Stopping it ends
// the watch stream, which is what releases the serial ports during
// installs. Start and Stop are idempotent.
type BoardWatcher struct {
	source    BoardWatcherSource
	publisher BoardPublisher
	logger    *logging.Logger
	backoff   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBoardWatcher creates a stopped watcher
func NewBoardWatcher(source BoardWatcherSource, publisher BoardPublisher, logger *logging.Logger) *BoardWatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BoardWatcher{
		source:    source,
		publisher: publisher,
		logger:    logger.Named("boards"),
		backoff:   2 * time.Second,
	}
}

// Running reports whether the watch loop is active
func (w *BoardWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Start launches the watch loop if it is not running
func (w *BoardWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

// Stop ends the watch loop and waits for it to exit or ctx to expire
func (w *BoardWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *BoardWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Warn("Board watch interrupted", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff):
		}
	}
}

func (w *BoardWatcher) watch(ctx context.Context) error {
	stream, err := w.source.WatchBoards(ctx)
	if err != nil {
		return err
	}

	for {
		ev, err := stream.Recv()
		if err != nil {
			if isEOF(err) || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ev.Error != "" {
			w.logger.Warn("Discovery error", zap.String("error", ev.Error))
			continue
		}
		w.publisher.NotifyBoardsChanged(describe(ev))
	}
}

func describe(ev *BoardEvent) string {
	var sb strings.Builder
	sb.WriteString(ev.EventType)
	if ev.Address != "" {
		sb.WriteString(" ")
		sb.WriteString(ev.Address)
	}
	if len(ev.Boards) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(ev.Boards, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

package notify

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// OutputSink receives operation output. Implementations must accept
// concurrent calls from several operations.
type OutputSink interface {
	AppendToOutput(chunk types.OutputChunk)
}

// Observer receives each chunk of one operation
type Observer func(chunk *types.ProgressChunk)

// Fanout forwards one backend stream to the output sink, tagged with the
// operation's progress ID, and to any observers registered before Run.
// Late observers miss earlier chunks; nothing is replayed.
type Fanout struct {
	progressID string
	sink       OutputSink

	mu        sync.Mutex
	observers []Observer
	chunks    int
}

// NewFanout creates a fanout for one operation
func NewFanout(progressID string, sink OutputSink) *Fanout {
	return &Fanout{progressID: progressID, sink: sink}
}

// ProgressID returns the correlation ID attached to every chunk
func (f *Fanout) ProgressID() string {
	return f.progressID
}

// Subscribe adds an observer
func (f *Fanout) Subscribe(obs Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, obs)
}

// Chunks returns how many chunks were forwarded so far
func (f *Fanout) Chunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks
}

// Run drains stream until it ends. It returns nil when the stream
// completed and the stream's error when it failed.
func (f *Fanout) Run(stream types.ProgressStream) error {
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		f.forward(chunk)
	}
}

// Fail writes lines to the sink with error severity
func (f *Fanout) Fail(lines ...string) {
	if f.sink == nil {
		return
	}
	for _, line := range lines {
		f.sink.AppendToOutput(types.OutputChunk{
			ProgressID: f.progressID,
			Chunk:      line,
			Severity:   types.SeverityError,
		})
	}
}

func (f *Fanout) forward(chunk *types.ProgressChunk) {
	f.mu.Lock()
	f.chunks++
	observers := append([]Observer(nil), f.observers...)
	f.mu.Unlock()

	if text := Format(chunk); text != "" && f.sink != nil {
		f.sink.AppendToOutput(types.OutputChunk{
			ProgressID: f.progressID,
			Chunk:      text,
			Severity:   types.SeverityInfo,
		})
	}
	for _, obs := range observers {
		obs(chunk)
	}
}

// Format renders a chunk as one output line, or "" when it carries nothing
// worth printing (for example an in-progress download tick).
func Format(chunk *types.ProgressChunk) string {
	switch {
	case chunk == nil:
		return ""
	case chunk.Message != "":
		return chunk.Message
	case chunk.Task != nil:
		t := chunk.Task
		switch {
		case t.Message != "":
			return t.Message
		case t.Name != "" && t.Completed:
			return t.Name + " done"
		default:
			return t.Name
		}
	case chunk.Download != nil:
		d := chunk.Download
		if !d.Completed {
			return ""
		}
		label := d.Label
		if label == "" {
			label = d.URL
		}
		if d.Total > 0 {
			return fmt.Sprintf("%s downloaded (%d bytes)", label, d.Total)
		}
		return label + " downloaded"
	}
	return ""
}

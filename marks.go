package relay

import "sync"

// DefaultMarkName labels the checkpoint sent after every forwarded audio
// chunk.
const DefaultMarkName = "responsePart"

// MarkTracker records outbound audio chunks not yet acknowledged as played.
// Bookkeeping only; it never gates the flow of audio.
type MarkTracker struct {
	mu    sync.Mutex
	names []string
}

func NewMarkTracker() *MarkTracker {
	return &MarkTracker{}
}

// Enqueue appends one pending mark.
func (t *MarkTracker) Enqueue(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append(t.names, name)
}

// Acknowledge removes the oldest pending mark. Platforms may acknowledge
// marks that outrace our bookkeeping, so an empty tracker is a no-op.
func (t *MarkTracker) Acknowledge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.names) == 0 {
		return
	}
	t.names = t.names[1:]
}

// Clear empties the queue.
func (t *MarkTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = t.names[:0]
}

// Len reports the number of unacknowledged marks, for diagnostics such as
// spotting runaway playback buffering.
func (t *MarkTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}

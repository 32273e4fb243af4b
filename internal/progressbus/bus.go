// Package progressbus fans out ProgressUpdate events to every
// connected WebSocket client. It has no notion of
// tasks or workers; the Task Coordinator is its only publisher.
package progressbus

import (
	"sync"

	"go.uber.org/zap"

	"fooocus-orchestrator/pkg/types"
)

const subscriberBufferSize = 32

// Bus is a process-wide pub/sub fan-out. A subscriber that falls
// behind is evicted (see Publish) rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan types.ProgressUpdate]struct{}
	logger      *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan types.ProgressUpdate]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new buffered channel and returns it along
// with an Unsubscribe func the caller must invoke when done (typically
// when the WebSocket connection closes).
func (b *Bus) Subscribe() (<-chan types.ProgressUpdate, func()) {
	ch := make(chan types.ProgressUpdate, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers an update to every current subscriber. A
// subscriber whose buffer is full is evicted: it is removed from the
// subscriber set and its channel is closed, rather than having just
// this update dropped and staying registered.
func (b *Bus) Publish(update types.ProgressUpdate) {
	b.mu.RLock()
	snapshot := make([]chan types.ProgressUpdate, 0, len(b.subscribers))
	for ch := range b.subscribers {
		snapshot = append(snapshot, ch)
	}
	b.mu.RUnlock()

	var full []chan types.ProgressUpdate
	for _, ch := range snapshot {
		select {
		case ch <- update:
		default:
			full = append(full, ch)
		}
	}

	if len(full) == 0 {
		return
	}

	b.mu.Lock()
	for _, ch := range full {
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
			b.logger.Debug("evicting slow progress subscriber", zap.String("task_id", update.TaskID))
		}
	}
	b.mu.Unlock()
}

// SubscriberCount reports the current number of subscribers, used by
// the /metrics gauge.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

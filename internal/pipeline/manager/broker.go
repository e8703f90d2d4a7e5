package manager

import (
	"sync"

	"github.com/nexuscore/core/internal/pipeline/types"
)

// StatusEvent is one status transition broadcast to a pipeline's
// subscribers (spec.md §4.7 subscribe_status).
type StatusEvent struct {
	PipelineID string
	Status     types.Status
}

// StatusSubscriber is a buffered channel receiving every status transition
// for the pipeline it subscribed to.
type StatusSubscriber chan StatusEvent

// statusBroker fans out one pipeline's status transitions to its
// subscribers, grounded on the teacher's events.Broker non-blocking
// broadcast (a slow subscriber is skipped rather than blocking the
// publisher — spec.md §5's ordering guarantee only requires every
// subscriber see a *monotonic* subsequence, not every event).
type statusBroker struct {
	mu          sync.RWMutex
	subscribers map[StatusSubscriber]bool
}

func newStatusBroker() *statusBroker {
	return &statusBroker{subscribers: make(map[StatusSubscriber]bool)}
}

func (b *statusBroker) subscribe() StatusSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(StatusSubscriber, 32)
	b.subscribers[sub] = true
	return sub
}

func (b *statusBroker) unsubscribe(sub StatusSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

func (b *statusBroker) publish(ev StatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (b *statusBroker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[StatusSubscriber]bool)
}

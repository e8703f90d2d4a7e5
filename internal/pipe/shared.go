package pipe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscriber is one fan-out consumer of a SharedPipe. A slow subscriber
// never blocks the producer: if its buffer is full, the next value it
// receives carries a non-zero Lagged count of items it missed (spec.md
// §4.4).
type Subscriber struct {
	ch     chan Data
	lagged atomic.Uint64
}

// Receive suspends until a value is available or ctx is done. Lagged
// reports how many values were dropped for this subscriber since its
// previous Receive (they may be newer than the value returned, which was
// already buffered).
func (s *Subscriber) Receive(ctx context.Context) (data Data, lagged uint64, ok bool, err error) {
	select {
	case v, chOk := <-s.ch:
		if !chOk {
			return Data{}, 0, false, nil
		}
		return v, s.lagged.Swap(0), true, nil
	case <-ctx.Done():
		return Data{}, 0, false, ctx.Err()
	}
}

// SharedPipe is the "shared pipe" variant (spec.md §3, §4.4): every
// subscriber sees every value. One internal goroutine copies from an
// ingress bounded channel to each subscriber's own bounded channel of the
// same capacity; a subscriber that falls behind is skipped (its Lagged
// counter increments) rather than blocking the producer.
type SharedPipe struct {
	capacity int
	ingress  *Pipe

	mu   sync.Mutex
	subs map[*Subscriber]struct{}

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewShared creates a SharedPipe with the given per-subscriber and ingress
// capacity, and the same optional filter/transform/throttle processors a
// standard Pipe accepts.
func NewShared(capacity int, opts ...Option) *SharedPipe {
	sp := &SharedPipe{
		capacity: capacity,
		ingress:  New(capacity, opts...),
		subs:     make(map[*Subscriber]struct{}),
		doneCh:   make(chan struct{}),
	}
	go sp.run()
	return sp
}

// Send writes data to the ingress channel; it suspends on a full ingress
// buffer exactly like a standard Pipe's Send (the shared fan-out never
// bypasses backpressure on the producer side, only on subscriber delivery).
func (sp *SharedPipe) Send(ctx context.Context, data Data) error {
	return sp.ingress.Send(ctx, data)
}

// Subscribe registers a new subscriber and returns its handle.
func (sp *SharedPipe) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Data, sp.capacity)}
	sp.mu.Lock()
	sp.subs[sub] = struct{}{}
	sp.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from the fan-out set and closes its channel.
func (sp *SharedPipe) Unsubscribe(sub *Subscriber) {
	sp.mu.Lock()
	_, ok := sp.subs[sub]
	delete(sp.subs, sub)
	sp.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Close closes the ingress pipe; once drained, the fan-out goroutine exits
// and all subscriber channels are closed.
func (sp *SharedPipe) Close() error {
	return sp.ingress.Close()
}

func (sp *SharedPipe) run() {
	ctx := context.Background()
	for {
		data, ok, err := sp.ingress.Receive(ctx)
		if err != nil {
			return
		}
		if !ok {
			sp.closeOnce.Do(func() {
				sp.mu.Lock()
				for sub := range sp.subs {
					close(sub.ch)
				}
				sp.subs = make(map[*Subscriber]struct{})
				sp.mu.Unlock()
				close(sp.doneCh)
			})
			return
		}
		sp.broadcast(data)
	}
}

func (sp *SharedPipe) broadcast(data Data) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	for sub := range sp.subs {
		select {
		case sub.ch <- data:
		default:
			sub.lagged.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (sp *SharedPipe) SubscriberCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.subs)
}

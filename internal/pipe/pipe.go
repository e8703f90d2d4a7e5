// Package pipe implements the core's pipe fabric (spec.md §4.4): typed
// bounded channels between pipeline stages, with optional filter,
// transform, and throttle processors, in both single-consumer (Pipe) and
// fan-out (SharedPipe) flavors.
package pipe

import (
	"context"
	"sync/atomic"

	"github.com/nexuscore/core/internal/errtag"
	"golang.org/x/time/rate"
)

// Kind is the typed payload carried by a Pipe (spec.md §3).
type Kind string

const (
	Bytes Kind = "bytes"
	Text  Kind = "text"
	JSON  Kind = "json"
	Empty Kind = "empty"
)

// Data is one value flowing through a pipe.
type Data struct {
	Kind  Kind
	Bytes []byte
	Text  string
	JSON  any
}

// State is a pipe's lifecycle state.
type State string

const (
	Initialized State = "initialized"
	Connected   State = "connected"
	Running     State = "running"
	Completed   State = "completed"
	Failed      State = "failed"
	Closed      State = "closed"
)

// Filter drops values for which it returns false; dropped values do not
// count against throughput (spec.md §4.4).
type Filter func(Data) bool

// Transform fallibly maps a value before it is enqueued; a returned error
// propagates as a pipe write error.
type Transform func(Data) (Data, error)

// Option configures a Pipe at construction.
type Option func(*Pipe)

// WithFilter attaches a filter predicate.
func WithFilter(f Filter) Option { return func(p *Pipe) { p.filter = f } }

// WithTransform attaches a fallible transform.
func WithTransform(t Transform) Option { return func(p *Pipe) { p.transform = t } }

// WithThrottle caps the write rate to limit items/second (spec.md §4.4:
// "minimum inter-write interval = 1/limit seconds").
func WithThrottle(limit float64) Option {
	return func(p *Pipe) { p.limiter = rate.NewLimiter(rate.Limit(limit), 1) }
}

// WithMetadata attaches opaque string metadata for routing/observability.
func WithMetadata(md map[string]string) Option {
	return func(p *Pipe) { p.metadata = md }
}

// Pipe is a single-producer, single-consumer bounded typed channel.
type Pipe struct {
	ch        chan Data
	filter    Filter
	transform Transform
	limiter   *rate.Limiter
	metadata  map[string]string

	state    atomic.Value
	closedCh chan struct{}
}

// New creates a Pipe with the given bounded capacity.
func New(capacity int, opts ...Option) *Pipe {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pipe{
		ch:       make(chan Data, capacity),
		closedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.setState(Initialized)
	return p
}

func (p *Pipe) setState(s State) { p.state.Store(s) }

// State returns the pipe's current lifecycle state.
func (p *Pipe) State() State {
	if v, ok := p.state.Load().(State); ok {
		return v
	}
	return Initialized
}

// Metadata returns the pipe's opaque routing/observability metadata.
func (p *Pipe) Metadata() map[string]string { return p.metadata }

// Connect marks the pipe Connected, meaning both ends are wired.
func (p *Pipe) Connect() { p.setState(Connected) }

// Send writes data to the pipe. It suspends (blocks) when the pipe is full
// — the fabric's backpressure mechanism — and returns a Channel error if
// the pipe is closed. A value rejected by the filter is dropped silently
// and does not count against a throttle.
func (p *Pipe) Send(ctx context.Context, data Data) error {
	if p.filter != nil && !p.filter(data) {
		return nil
	}
	if p.transform != nil {
		out, err := p.transform(data)
		if err != nil {
			p.setState(Failed)
			return errtag.New(errtag.Data, errtag.Medium, err)
		}
		data = out
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errtag.New(errtag.Timeout, errtag.Low, err)
		}
	}

	p.setState(Running)
	select {
	case <-p.closedCh:
		return errtag.Newf(errtag.Channel, errtag.Medium, "send on closed pipe")
	default:
	}

	select {
	case p.ch <- data:
		return nil
	case <-p.closedCh:
		return errtag.Newf(errtag.Channel, errtag.Medium, "send on closed pipe")
	case <-ctx.Done():
		return errtag.New(errtag.Cancelled, errtag.Low, ctx.Err())
	}
}

// Receive suspends until a value is available, the pipe closes (after
// draining any buffered values, returns ok=false), or ctx is done. The
// underlying channel is never closed by Close (see Close) so this drains
// by giving a buffered value priority over an already-closed signal.
func (p *Pipe) Receive(ctx context.Context) (Data, bool, error) {
	select {
	case data := <-p.ch:
		return data, true, nil
	default:
	}

	select {
	case data := <-p.ch:
		return data, true, nil
	case <-p.closedCh:
		select {
		case data := <-p.ch:
			return data, true, nil
		default:
			return Data{}, false, nil
		}
	case <-ctx.Done():
		return Data{}, false, errtag.New(errtag.Cancelled, errtag.Low, ctx.Err())
	}
}

// Close closes the pipe. Close is observable to both ends: subsequent
// sends fail, and receives drain buffered values before returning
// end-of-stream. The data channel itself is intentionally never closed —
// only closedCh is — so a Send racing a concurrent Close can never panic
// with "send on closed channel".
func (p *Pipe) Close() error {
	select {
	case <-p.closedCh:
		return nil // idempotent
	default:
	}
	close(p.closedCh)
	p.setState(Closed)
	return nil
}

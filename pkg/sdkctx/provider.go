package sdkctx

import (
	"time"

	"github.com/pulsekit/pulsekit/internal/queue"
)

// FieldPublisher is a push source bound to one or more context fields
// (reachability monitor, battery watcher, consent switch). Start hands the
// publisher a push function; each call schedules a mutation on the context
// lane. Stop must make the publisher cease pushing.
type FieldPublisher interface {
	Start(push func(mutate func(*Context)))
	Stop()
}

// FieldReader is a pull source evaluated lazily on each snapshot read
// (e.g. "time since launch" style fields that are cheap to compute but
// pointless to push).
type FieldReader interface {
	Apply(*Context)
}

// Provider owns one Context value behind a serial lane. All reads and
// writes funnel through that lane, so every snapshot a callback receives
// is internally consistent, and a write that completes before a read is
// enqueued is visible to that read.
type Provider struct {
	lane *queue.SerialQueue

	// All fields below are owned by the lane goroutine.
	current     Context
	readers     []FieldReader
	publishers  []FieldPublisher
	subscribers []func(Context)
}

// NewProvider creates a provider seeded with the initial context. Version
// starts at 1.
func NewProvider(initial Context) *Provider {
	initial.Version = 1
	return &Provider{
		lane:    queue.New("context"),
		current: initial,
	}
}

// Read schedules fn on the context lane with a by-value snapshot. Pull
// sources are applied to the snapshot first. The callback may safely call
// back into writers.
func (p *Provider) Read(fn func(Context)) {
	p.lane.Async(func() {
		fn(p.snapshot())
	})
}

// ReadSync returns a snapshot, blocking until the lane has drained work
// enqueued before this call. Must not be called from the context lane.
func (p *Provider) ReadSync() Context {
	var out Context
	if !p.lane.Sync(func() { out = p.snapshot() }) {
		// Provider stopped: return the zero context rather than blocking.
		return Context{}
	}
	return out
}

func (p *Provider) snapshot() Context {
	snap := p.current.clone()
	for _, r := range p.readers {
		r.Apply(&snap)
	}
	return snap
}

// Write schedules mutate on the context lane. After it runs the version is
// bumped and the new snapshot is published to all subscribers.
func (p *Provider) Write(mutate func(*Context)) {
	p.lane.Async(func() {
		mutate(&p.current)
		p.current.Version++
		snap := p.snapshot()
		for _, s := range p.subscribers {
			s(snap)
		}
	})
}

// WriteSync is Write that blocks until the mutation is committed.
func (p *Provider) WriteSync(mutate func(*Context)) {
	p.lane.Sync(func() {
		mutate(&p.current)
		p.current.Version++
		snap := p.snapshot()
		for _, s := range p.subscribers {
			s(snap)
		}
	})
}

// Subscribe registers an observer of committed snapshots. Observers run on
// the context lane and must not block; they see monotonically increasing
// versions.
func (p *Provider) Subscribe(fn func(Context)) {
	p.lane.Async(func() {
		p.subscribers = append(p.subscribers, fn)
	})
}

// RegisterPublisher binds a push source: every value it pushes becomes a
// context write.
func (p *Provider) RegisterPublisher(pub FieldPublisher) {
	p.lane.Async(func() {
		p.publishers = append(p.publishers, pub)
	})
	pub.Start(p.Write)
}

// RegisterReader binds a pull source applied to every snapshot.
func (p *Provider) RegisterReader(r FieldReader) {
	p.lane.Async(func() {
		p.readers = append(p.readers, r)
	})
}

// Quiesce returns a barrier over the context lane.
func (p *Provider) Quiesce() queue.Barrier {
	return p.lane.Quiesce()
}

// Stop stops all registered publishers, drains the lane and terminates it.
func (p *Provider) Stop() {
	var pubs []FieldPublisher
	p.lane.Sync(func() {
		pubs = append(pubs, p.publishers...)
		p.publishers = nil
	})
	for _, pub := range pubs {
		pub.Stop()
	}
	p.lane.Stop()
}

// LaunchReader is a FieldReader that pins the process launch time, for
// hosts without a platform launch-time source.
type LaunchReader struct {
	At time.Time
}

// Apply sets LaunchTime if the platform did not provide one.
func (r LaunchReader) Apply(c *Context) {
	if c.LaunchTime.IsZero() {
		c.LaunchTime = r.At
	}
}

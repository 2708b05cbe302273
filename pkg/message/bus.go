package message

import (
	"github.com/pulsekit/pulsekit/internal/queue"
)

// Bus fans messages out to registered receivers on its own serial lane.
// Delivery is asynchronous, order from a single sender is preserved, and
// nothing is persisted: a receiver connecting after a send never observes
// that message, except the context, which is re-delivered on connect.
type Bus struct {
	lane *queue.SerialQueue

	// Owned by the lane goroutine.
	receivers map[string]Receiver
	order     []string
	core      CoreRef
	latest    *ContextMessage
}

// NewBus creates the bus and starts its lane.
func NewBus() *Bus {
	return &Bus{
		lane:      queue.New("bus"),
		receivers: map[string]Receiver{},
	}
}

// Connect registers a receiver under key, replacing any previous receiver
// with that key. The latest context message, if any, is delivered to the
// new receiver immediately.
func (b *Bus) Connect(key string, r Receiver) {
	b.lane.Async(func() {
		if _, exists := b.receivers[key]; !exists {
			b.order = append(b.order, key)
		}
		b.receivers[key] = r
		if b.latest != nil {
			r.Receive(*b.latest, b.core)
		}
	})
}

// Disconnect removes the receiver registered under key.
func (b *Bus) Disconnect(key string) {
	b.lane.Async(func() {
		if _, exists := b.receivers[key]; !exists {
			return
		}
		delete(b.receivers, key)
		for i, k := range b.order {
			if k == key {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	})
}

// ConnectCore installs the back-reference handed to receivers. The core
// clears it with ConnectCore(nil) on tear-down; the bus never owns the
// core.
func (b *Bus) ConnectCore(core CoreRef) {
	b.lane.Async(func() {
		b.core = core
	})
}

// Send delivers msg to every receiver in connect order. If none reports
// the message handled, fallback runs on the bus lane (a nil fallback is
// ignored). Context messages are additionally remembered for replay.
func (b *Bus) Send(msg Message, fallback func()) {
	b.lane.Async(func() {
		if cm, ok := msg.(ContextMessage); ok {
			b.latest = &cm
		}
		handled := false
		for _, key := range b.order {
			if b.receivers[key].Receive(msg, b.core) {
				handled = true
			}
		}
		if !handled && fallback != nil {
			fallback()
		}
	})
}

// Quiesce returns a barrier over the bus lane.
func (b *Bus) Quiesce() queue.Barrier {
	return b.lane.Quiesce()
}

// Stop drains pending deliveries and terminates the lane.
func (b *Bus) Stop() {
	b.lane.Stop()
}

// Package message defines the typed messages exchanged between features
// and the core, and the bus that fans them out.
package message

import (
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// Message is the closed union of everything the bus carries. The three
// variants are ContextMessage, FeatureMessage and TelemetryMessage.
type Message interface {
	isMessage()
}

// ContextMessage broadcasts a committed context snapshot. The bus replays
// the latest one to receivers that connect late.
type ContextMessage struct {
	Context sdkctx.Context
}

func (ContextMessage) isMessage() {}

// FeatureMessage is an inter-feature notification. Key names the event;
// Attributes carries its payload.
type FeatureMessage struct {
	Key        string
	Attributes map[string]any
}

func (FeatureMessage) isMessage() {}

// TelemetryKind classifies a telemetry message.
type TelemetryKind string

const (
	TelemetryDebug TelemetryKind = "debug"
	TelemetryError TelemetryKind = "error"
)

// TelemetryMessage is an SDK self-monitoring event, routed to whichever
// feature hosts the telemetry exporter.
type TelemetryMessage struct {
	Kind       TelemetryKind
	Message    string
	Attributes map[string]any
}

func (TelemetryMessage) isMessage() {}

// Receiver consumes bus messages. Receive reports whether the message was
// handled; the bus invokes the sender's fallback when no receiver handled
// it. Receivers run on the bus lane and must not block.
type Receiver interface {
	Receive(msg Message, core CoreRef) bool
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(msg Message, core CoreRef) bool

// Receive calls f.
func (f ReceiverFunc) Receive(msg Message, core CoreRef) bool { return f(msg, core) }

// CoreRef is the narrow view of the core a receiver may call back into.
// The bus holds it as a back-reference the core clears on tear-down, so a
// receiver must tolerate a nil CoreRef.
type CoreRef interface {
	// Send forwards a message to the bus.
	Send(msg Message, fallback func())

	// SetBaggage attaches an opaque sub-context under the given key.
	SetBaggage(key string, baggage sdkctx.Baggage)
}

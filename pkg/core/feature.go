package core

import (
	"github.com/pulsekit/pulsekit/pkg/config"
	"github.com/pulsekit/pulsekit/pkg/message"
	"github.com/pulsekit/pulsekit/pkg/upload"
)

// Feature is an independently registered event producer (Logs, RUM,
// Traces, Session Replay, ...). Name must be unique within a core;
// Receiver may be nil for features that ignore the bus.
type Feature interface {
	Name() string
	Receiver() message.Receiver
}

// RemoteFeature opts a feature into the storage+upload pipeline: its
// events are batched on disk and shipped with the requests its builder
// produces.
type RemoteFeature interface {
	Feature
	RequestBuilder() upload.RequestBuilder
}

// ContinuableFeature exposes the feature's own background work to the
// harvest barrier, so tear-down can await it between draining the bus and
// draining the context lane. Quiesce must invoke done once all background
// work submitted before the call has completed.
type ContinuableFeature interface {
	Feature
	Quiesce(done func())
}

// PerformanceOverrider lets a feature override single preset fields; the
// override merges over the SDK-wide preset at registration.
type PerformanceOverrider interface {
	PerformanceOverride() *config.PresetOverride
}

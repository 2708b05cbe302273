// Package sdkctx owns the evolving snapshot of device, application, user
// and SDK state that accompanies every written event, and the serial-lane
// provider that keeps it consistent under concurrent readers and writers.
package sdkctx

import (
	"encoding/json"
	"time"
)

// Context is a point-in-time snapshot of everything an event encoder or
// request builder may need. Values are copied on read; a snapshot handed
// to a callback never mutates underneath it.
type Context struct {
	// Snapshot version, monotonically increasing with each committed write.
	Version uint64

	Site        string
	ClientToken string
	Service     string
	Env         string
	AppVersion  string
	SDKVersion  string
	Source      string

	Device DeviceInfo

	// AppStateHistory records foreground/background transitions since
	// launch, most recent last.
	AppStateHistory []AppStateChange
	LaunchTime      time.Time

	// ServerTimeOffset is the last known skew between device wall clock
	// and intake server time.
	ServerTimeOffset time.Duration

	Network NetworkInfo
	Carrier CarrierInfo
	Battery BatteryStatus

	LowPowerMode bool

	User UserInfo

	TrackingConsent TrackingConsent

	// Baggages carries opaque sub-contexts contributed by features,
	// keyed by feature-chosen names.
	Baggages map[string]Baggage
}

// DeviceInfo describes the host device.
type DeviceInfo struct {
	Name         string
	Model        string
	Brand        string
	OSName       string
	OSVersion    string
	Architecture string
}

// AppState is the host application's lifecycle state.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// AppStateChange is one lifecycle transition.
type AppStateChange struct {
	State AppState
	At    time.Time
}

// CurrentAppState returns the most recent application state, defaulting to
// active when no history was recorded.
func (c Context) CurrentAppState() AppState {
	if n := len(c.AppStateHistory); n > 0 {
		return c.AppStateHistory[n-1].State
	}
	return AppStateActive
}

// NetworkInfo describes current reachability.
type NetworkInfo struct {
	// Reachable is nil when no reachability monitor is installed; uploads
	// then assume the network is available.
	Reachable *bool
}

// IsReachable reports whether the intake is assumed reachable.
func (n NetworkInfo) IsReachable() bool {
	return n.Reachable == nil || *n.Reachable
}

// CarrierInfo describes the cellular carrier, when known.
type CarrierInfo struct {
	Name           string
	ISOCountryCode string
	Technology     string
}

// BatteryState is the charging state of the device battery.
type BatteryState string

const (
	BatteryStateUnknown   BatteryState = "unknown"
	BatteryStateUnplugged BatteryState = "unplugged"
	BatteryStateCharging  BatteryState = "charging"
	BatteryStateFull      BatteryState = "full"
)

// BatteryStatus is the battery level and charging state. Level is in
// [0, 1]; a Level of -1 means unknown.
type BatteryStatus struct {
	State BatteryState
	Level float64
}

// UserInfo identifies the end user as set by the host application.
type UserInfo struct {
	ID    string
	Name  string
	Email string
	Extra map[string]any
}

// Baggage is an opaque JSON-encoded sub-context.
type Baggage []byte

// NewBaggage encodes v as a Baggage.
func NewBaggage(v any) (Baggage, error) {
	return json.Marshal(v)
}

// Unmarshal decodes the baggage into v.
func (b Baggage) Unmarshal(v any) error {
	return json.Unmarshal(b, v)
}

// clone deep-copies the snapshot so readers can hold it past the context
// lane without racing writers.
func (c Context) clone() Context {
	out := c
	if c.AppStateHistory != nil {
		out.AppStateHistory = append([]AppStateChange(nil), c.AppStateHistory...)
	}
	if c.User.Extra != nil {
		extra := make(map[string]any, len(c.User.Extra))
		for k, v := range c.User.Extra {
			extra[k] = v
		}
		out.User.Extra = extra
	}
	if c.Baggages != nil {
		bags := make(map[string]Baggage, len(c.Baggages))
		for k, v := range c.Baggages {
			bags[k] = v
		}
		out.Baggages = bags
	}
	if c.Network.Reachable != nil {
		r := *c.Network.Reachable
		out.Network.Reachable = &r
	}
	return out
}

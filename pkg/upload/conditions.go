package upload

import (
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// defaultMinBatteryLevel is the battery fraction below which uploads
// pause unless the device is charging.
const defaultMinBatteryLevel = 0.1

// Conditions gates upload cycles on device state.
type Conditions struct {
	// MinBatteryLevel overrides the default critical-battery threshold.
	MinBatteryLevel float64
}

// Blockers returns why an upload must not run right now; empty means go.
func (c Conditions) Blockers(ctx sdkctx.Context) []string {
	minLevel := c.MinBatteryLevel
	if minLevel == 0 {
		minLevel = defaultMinBatteryLevel
	}

	var blockers []string
	if ctx.TrackingConsent != sdkctx.ConsentGranted {
		blockers = append(blockers, "consent")
	}
	if !ctx.Network.IsReachable() {
		blockers = append(blockers, "offline")
	}

	charging := ctx.Battery.State == sdkctx.BatteryStateCharging ||
		ctx.Battery.State == sdkctx.BatteryStateFull
	if !charging {
		if ctx.LowPowerMode {
			blockers = append(blockers, "low_power_mode")
		}
		if ctx.Battery.Level >= 0 && ctx.Battery.State != sdkctx.BatteryStateUnknown &&
			ctx.Battery.Level < minLevel {
			blockers = append(blockers, "battery")
		}
	}
	return blockers
}

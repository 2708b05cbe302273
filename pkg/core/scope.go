package core

import (
	"fmt"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/pkg/message"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
	"github.com/pulsekit/pulsekit/pkg/storage"
)

// FeatureScope is the contract under which a feature writes events: a
// consistent context snapshot paired with a writer bound to the consent
// in effect at that snapshot.
type FeatureScope struct {
	core    *Core
	name    string
	storage *storage.Storage
}

// Scope returns the write scope for a registered remote feature, or nil
// when the feature is unknown or records nothing.
func (c *Core) Scope(name string) *FeatureScope {
	rec := c.record(name)
	if rec == nil || rec.storage == nil {
		return nil
	}
	return &FeatureScope{core: c, name: name, storage: rec.storage}
}

// WriteEvent schedules block on the context lane with the current
// snapshot and a writer selecting the batch for the snapshot's consent.
// bypassConsent pins the writer to granted regardless of the snapshot
// (used by features that gate consent themselves); forceNewBatch opens a
// fresh batch file on the writer's first append.
//
// A panic inside block is contained: it is logged, reported as telemetry,
// and the surrounding batch stays valid.
func (s *FeatureScope) WriteEvent(bypassConsent, forceNewBatch bool, block func(ctx sdkctx.Context, w *storage.Writer)) {
	s.core.provider.Read(func(ctx sdkctx.Context) {
		consent := ctx.TrackingConsent
		if bypassConsent {
			consent = sdkctx.ConsentGranted
		}
		w := s.storage.Writer(consent, forceNewBatch)

		defer func() {
			if r := recover(); r != nil {
				logger.Error("write scope panicked",
					logger.KeyFeature, s.name, logger.KeyError, r)
				s.core.Send(message.TelemetryMessage{
					Kind:    message.TelemetryError,
					Message: fmt.Sprintf("write scope panic: %v", r),
					Attributes: map[string]any{
						"feature": s.name,
					},
				}, nil)
			}
		}()
		block(ctx, w)
	})
}

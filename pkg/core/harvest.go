package core

import (
	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/internal/queue"
)

// harvestBarrier composes the quiescence of every internal lane in causal
// order. Each path from a user thread to disk crosses these lanes in this
// sequence, so awaiting them one after another observes full quiescence:
//
//  1. the bus lane (pending deliveries may schedule context writes),
//  2. each feature's own background work, in parallel,
//  3. the context lane (writes dispatched from message handlers),
//  4. the shared read/write lane (appends dispatched from read scopes).
func (c *Core) harvestBarrier() queue.Barrier {
	var featureBarriers []queue.Barrier
	for _, rec := range c.records() {
		if cf, ok := rec.feature.(ContinuableFeature); ok {
			featureBarriers = append(featureBarriers, queue.Barrier(cf.Quiesce))
		}
	}

	return queue.Sequence(
		c.bus.Quiesce(),
		queue.Group(featureBarriers...),
		c.provider.Quiesce(),
		c.rw.Quiesce(),
	)
}

// Harvest blocks until every write submitted before the call is on disk.
func (c *Core) Harvest() {
	queue.Await(c.harvestBarrier())
}

// FlushAndTearDown runs the harvest-and-upload sequence synchronously,
// then releases every subsystem. After it returns, all internal lanes are
// terminated, the bus back-reference is cleared and further operations on
// the core are inert.
//
// The upload step is a terminal best-effort drain: every batch is
// submitted once and deleted whatever the response.
func (c *Core) FlushAndTearDown() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	recs := c.records()

	// No new upload ticks; in-flight lane work keeps running until the
	// flush below, which serializes behind it.
	for _, rec := range recs {
		if rec.upload != nil {
			rec.upload.Suspend()
		}
	}

	c.Harvest()

	for _, rec := range recs {
		if rec.storage != nil {
			rec.storage.SetIgnoreFileAge(true)
		}
	}
	for _, rec := range recs {
		if rec.upload != nil {
			rec.upload.FlushSynchronously()
		}
	}
	for _, rec := range recs {
		if rec.storage != nil {
			rec.storage.SetIgnoreFileAge(false)
		}
	}

	for _, rec := range recs {
		if rec.upload != nil {
			rec.upload.Stop()
		}
	}

	c.bus.ConnectCore(nil)
	c.bus.Stop()
	c.provider.Stop()
	c.rw.Stop()

	c.mu.Lock()
	c.features = map[string]*featureRecord{}
	c.mu.Unlock()

	logger.Info("core torn down")
}

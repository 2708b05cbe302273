package upload

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/internal/queue"
	"github.com/pulsekit/pulsekit/pkg/monitor"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
	"github.com/pulsekit/pulsekit/pkg/storage"
)

// Config paces the upload loop.
type Config struct {
	// MinDelay and MaxDelay bound the adaptive delay.
	MinDelay time.Duration
	MaxDelay time.Duration

	// InitialDelay is the pace at start, clamped into [MinDelay, MaxDelay].
	InitialDelay time.Duration

	// DelayChangeRate is the multiplicative step: successes multiply the
	// delay by (1-rate), retryable failures by (1+rate).
	DelayChangeRate float64

	// RequestTimeout bounds one intake submission.
	RequestTimeout time.Duration

	// BackgroundTasksEnabled wraps in-flight requests in an OS
	// background-task lease while the app is backgrounded.
	BackgroundTasksEnabled bool
}

// Options carries the optional collaborators.
type Options struct {
	Conditions   Conditions
	Monitor      monitor.Monitor
	Background   BackgroundTaskCoordinator
	ServerOffset *sdkctx.ServerTimeOffsetPublisher
	Now          func() time.Time
}

// Worker is the per-feature upload loop: on each tick it consults the
// context and the upload conditions, reads at most one batch, submits it,
// settles it according to the response class and reschedules itself at
// the adapted delay. Exactly one delayed tick is pending at any time.
type Worker struct {
	feature  string
	store    *storage.Storage
	reader   *storage.Reader
	client   HTTPClient
	builder  RequestBuilder
	provider *sdkctx.Provider
	cfg      Config
	opts     Options
	delay    *delay
	log      *slog.Logger
	now      func() time.Time

	lane    *queue.SerialQueue
	stopped atomic.Bool

	timerMu sync.Mutex
	timer   *time.Timer

	attempts map[string]int
}

// NewWorker wires the loop for one feature. Start must be called to begin
// ticking.
func NewWorker(feature string, store *storage.Storage, provider *sdkctx.Provider,
	client HTTPClient, builder RequestBuilder, cfg Config, opts Options) *Worker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		feature:  feature,
		store:    store,
		reader:   store.Reader(),
		client:   client,
		builder:  builder,
		provider: provider,
		cfg:      cfg,
		opts:     opts,
		delay:    newDelay(cfg.MinDelay, cfg.MaxDelay, cfg.InitialDelay, cfg.DelayChangeRate),
		log:      logger.With(logger.KeyFeature, feature),
		now:      now,
		lane:     queue.New("upload:" + feature),
		attempts: map[string]int{},
	}
}

// Start schedules the first tick after the initial delay.
func (w *Worker) Start() {
	w.schedule(w.delay.Current())
}

// Suspend cancels the pending tick and prevents new ones without killing
// the lane, so a synchronous flush can still run. A tick observing the
// suspended state returns without rescheduling.
func (w *Worker) Suspend() {
	w.stopped.Store(true)
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
}

// Stop suspends the loop and drains the upload lane.
func (w *Worker) Stop() {
	w.Suspend()
	w.lane.Stop()
}

// TickNow schedules an immediate tick, collapsing the pending delayed one.
func (w *Worker) TickNow() {
	w.schedule(0)
}

func (w *Worker) schedule(d time.Duration) {
	if w.stopped.Load() {
		return
	}
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, func() {
		w.lane.Async(w.tick)
	})
}

// tick runs on the upload lane.
func (w *Worker) tick() {
	if w.stopped.Load() {
		return
	}

	snap := w.provider.ReadSync()
	if blockers := w.opts.Conditions.Blockers(snap); len(blockers) > 0 {
		w.log.Debug("upload blocked", logger.KeyReason, blockers)
		w.schedule(w.delay.Current())
		return
	}

	batch := w.reader.ReadNext()
	if batch == nil {
		w.delay.Increase()
		monitor.UploadDelay(w.opts.Monitor, w.feature, w.delay.Current())
		w.schedule(w.delay.Current())
		return
	}

	switch w.uploadOnce(batch, snap) {
	case OutcomeSuccess:
		w.delay.Decrease()
	case OutcomeRetryable:
		w.delay.Increase()
	case OutcomeClientError:
		// Unrecoverable but not a pacing signal; keep the delay.
	}
	monitor.UploadDelay(w.opts.Monitor, w.feature, w.delay.Current())
	w.schedule(w.delay.Current())
}

// uploadOnce builds, submits and settles one batch.
func (w *Worker) uploadOnce(batch *storage.Batch, snap sdkctx.Context) Outcome {
	w.attempts[batch.ID]++
	rc := RequestContext{
		BatchID:   batch.ID,
		RequestID: uuid.New(),
		Attempt:   w.attempts[batch.ID],
	}

	req, err := w.builder.Build(batch.Events, snap, rc)
	if err != nil {
		w.settle(batch, "unrecoverable")
		w.log.Error("request builder failed; batch dropped",
			logger.KeyBatch, batch.ID, logger.KeyError, err)
		monitor.UploadAttempt(w.opts.Monitor, w.feature, OutcomeClientError.String())
		return OutcomeClientError
	}

	resp, err := w.submit(req, snap)
	if err != nil {
		w.reader.Keep(batch)
		w.log.Debug("upload failed; batch kept",
			logger.KeyBatch, batch.ID, logger.KeyError, err)
		monitor.UploadAttempt(w.opts.Monitor, w.feature, OutcomeRetryable.String())
		return OutcomeRetryable
	}

	w.observeServerTime(resp)

	outcome := classify(resp.StatusCode)
	switch outcome {
	case OutcomeSuccess:
		w.settle(batch, "uploaded")
		w.log.Debug("batch uploaded",
			logger.KeyBatch, batch.ID, logger.KeyStatus, resp.StatusCode,
			logger.KeyAttempt, rc.Attempt)
	case OutcomeClientError:
		w.settle(batch, "unrecoverable")
		w.log.Warn("intake rejected batch; dropped",
			logger.KeyBatch, batch.ID, logger.KeyStatus, resp.StatusCode)
	case OutcomeRetryable:
		w.reader.Keep(batch)
		w.log.Debug("intake busy; batch kept",
			logger.KeyBatch, batch.ID, logger.KeyStatus, resp.StatusCode)
	}
	monitor.UploadAttempt(w.opts.Monitor, w.feature, outcome.String())
	return outcome
}

// submit sends one request, holding a background-task lease when the app
// is suspended and leases are enabled.
func (w *Worker) submit(req Request, snap sdkctx.Context) (Response, error) {
	if w.cfg.BackgroundTasksEnabled && w.opts.Background != nil &&
		snap.CurrentAppState() == sdkctx.AppStateBackground {
		end := w.opts.Background.BeginTask("pulsekit.upload." + w.feature)
		defer end()
	}

	ctx := context.Background()
	if w.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RequestTimeout)
		defer cancel()
	}
	return w.client.Send(ctx, req)
}

// settle deletes the batch and forgets its attempt counter.
func (w *Worker) settle(batch *storage.Batch, reason string) {
	w.reader.Delete(batch, reason)
	delete(w.attempts, batch.ID)
}

// observeServerTime feeds the server-time offset from the response Date
// header, when a publisher is installed.
func (w *Worker) observeServerTime(resp Response) {
	if w.opts.ServerOffset == nil {
		return
	}
	serverTime, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return
	}
	w.opts.ServerOffset.SetOffset(serverTime.Sub(w.now()))
}

// FlushSynchronously drains every readable batch in one pass on the
// upload lane: each batch is submitted once and deleted whatever the
// response, a terminal best-effort drain for tear-down. The caller is
// responsible for putting the storage in ignore-age mode first so the
// open batch is included. Returns when the reader yields no more batches.
func (w *Worker) FlushSynchronously() {
	w.lane.Sync(func() {
		snap := w.provider.ReadSync()
		for {
			batch := w.reader.ReadNext()
			if batch == nil {
				return
			}

			w.attempts[batch.ID]++
			rc := RequestContext{
				BatchID:   batch.ID,
				RequestID: uuid.New(),
				Attempt:   w.attempts[batch.ID],
			}
			req, err := w.builder.Build(batch.Events, snap, rc)
			if err != nil {
				w.settle(batch, "unrecoverable")
				continue
			}

			reason := "flushed"
			if resp, err := w.submit(req, snap); err == nil && classify(resp.StatusCode) == OutcomeSuccess {
				reason = "uploaded"
			}
			w.settle(batch, reason)
		}
	})
}

// Quiesce returns a barrier over the upload lane.
func (w *Worker) Quiesce() queue.Barrier {
	return w.lane.Quiesce()
}

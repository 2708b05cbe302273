package upload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsekit/pulsekit/internal/queue"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
	"github.com/pulsekit/pulsekit/pkg/storage"
)

// stubClient replays a scripted sequence of responses, then settles on
// 202 Accepted.
type stubClient struct {
	mu        sync.Mutex
	responses []stubResponse
	requests  []Request
}

type stubResponse struct {
	status int
	err    error
}

func (c *stubClient) Send(_ context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return Response{StatusCode: 202, Header: http.Header{}}, nil
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	if next.err != nil {
		return Response{}, next.err
	}
	return Response{StatusCode: next.status, Header: http.Header{}}, nil
}

func (c *stubClient) sent() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// passthroughBuilder concatenates event payloads into the body.
type passthroughBuilder struct{}

func (passthroughBuilder) Build(events [][]byte, _ sdkctx.Context, rc RequestContext) (Request, error) {
	var body []byte
	for _, e := range events {
		body = append(body, e...)
	}
	return Request{
		URL:     "https://intake.test/v1",
		Headers: map[string]string{"X-Batch-ID": rc.BatchID},
		Body:    body,
	}, nil
}

type workerFixture struct {
	w        *Worker
	store    *storage.Storage
	provider *sdkctx.Provider
	granted  string
}

func fastConfig() Config {
	return Config{
		MinDelay:        time.Millisecond,
		MaxDelay:        50 * time.Millisecond,
		InitialDelay:    time.Millisecond,
		DelayChangeRate: 0.5,
		RequestTimeout:  time.Second,
	}
}

func newWorkerFixture(t *testing.T, client HTTPClient, cfg Config, opts Options) *workerFixture {
	t.Helper()

	rw := queue.New("rw")
	t.Cleanup(rw.Stop)
	root := t.TempDir()
	store, err := storage.New("logs", root, rw, storage.Config{}, storage.Options{})
	require.NoError(t, err)

	provider := sdkctx.NewProvider(sdkctx.Context{
		TrackingConsent: sdkctx.ConsentGranted,
		Battery:         sdkctx.BatteryStatus{State: sdkctx.BatteryStateFull, Level: 1},
	})

	w := NewWorker("logs", store, provider, client, passthroughBuilder{}, cfg, opts)
	t.Cleanup(func() {
		w.Stop()
		provider.Stop()
	})
	return &workerFixture{
		w:        w,
		store:    store,
		provider: provider,
		granted:  filepath.Join(root, "logs", "v2", "granted"),
	}
}

func (f *workerFixture) write(t *testing.T, events ...string) {
	t.Helper()
	wr := f.store.Writer(sdkctx.ConsentGranted, false)
	for _, e := range events {
		wr.Write([]byte(e))
	}
	queue.Await(f.store.Quiesce())
}

func (f *workerFixture) grantedCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.granted)
	require.NoError(t, err)
	return len(entries)
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorker_UploadsAndDeletesOnSuccess(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.write(t, "a", "b", "c")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool { return len(client.sent()) >= 1 })
	assert.Equal(t, "abc", string(client.sent()[0].Body))

	eventually(t, 2*time.Second, func() bool { return f.grantedCount(t) == 0 })
}

func TestWorker_KeepsBatchOnServerError(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []stubResponse{{status: 503}}}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.write(t, "z")
	f.w.Start()

	// First attempt gets 503 and keeps the batch; the scripted responses
	// then fall back to 202 which deletes it.
	eventually(t, 2*time.Second, func() bool { return len(client.sent()) >= 2 })
	eventually(t, 2*time.Second, func() bool { return f.grantedCount(t) == 0 })
}

func TestWorker_DeletesBatchOnClientError(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []stubResponse{{status: 400}}}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.write(t, "bad")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool { return f.grantedCount(t) == 0 })
	// No retry for unrecoverable rejections.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, client.sent(), 1)
}

func TestWorker_NetworkErrorIsRetryable(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []stubResponse{{err: fmt.Errorf("connection reset")}}}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.write(t, "x")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool { return len(client.sent()) >= 2 })
	eventually(t, 2*time.Second, func() bool { return f.grantedCount(t) == 0 })
}

func TestWorker_BlockedByConditionsDoesNotUpload(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.provider.WriteSync(func(c *sdkctx.Context) {
		no := false
		c.Network.Reachable = &no
	})

	f.write(t, "waiting")
	f.w.Start()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, client.sent())
	assert.Equal(t, 1, f.grantedCount(t))

	// Network back: the loop resumes and ships the batch.
	f.provider.WriteSync(func(c *sdkctx.Context) { c.Network.Reachable = nil })
	eventually(t, 2*time.Second, func() bool { return len(client.sent()) >= 1 })
}

func TestWorker_DelayAdaptsWithOutcomes(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []stubResponse{{status: 503}, {status: 503}}}
	f := newWorkerFixture(t, client, fastConfig(), Options{})

	f.write(t, "v")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool { return len(client.sent()) >= 3 })
	f.w.Stop()

	// Two increases then a success decrease: still above the minimum.
	assert.Greater(t, f.w.delay.Current(), f.w.cfg.MinDelay)
}

func TestWorker_FlushDrainsEverythingIgnoringAge(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	cfg := fastConfig()
	cfg.MinDelay, cfg.MaxDelay, cfg.InitialDelay = time.Hour, time.Hour, time.Hour
	f := newWorkerFixture(t, client, cfg, Options{})

	f.write(t, "p", "q")

	f.store.SetIgnoreFileAge(true)
	f.w.FlushSynchronously()
	f.store.SetIgnoreFileAge(false)

	require.Len(t, client.sent(), 1)
	assert.Equal(t, "pq", string(client.sent()[0].Body))
	assert.Equal(t, 0, f.grantedCount(t))
}

func TestWorker_FlushDeletesEvenOnFailure(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []stubResponse{{status: 503}}}
	cfg := fastConfig()
	cfg.MinDelay, cfg.MaxDelay, cfg.InitialDelay = time.Hour, time.Hour, time.Hour
	f := newWorkerFixture(t, client, cfg, Options{})

	f.write(t, "doomed")

	f.store.SetIgnoreFileAge(true)
	f.w.FlushSynchronously()

	assert.Equal(t, 0, f.grantedCount(t))
}

type headerClient struct {
	date time.Time
}

func (c *headerClient) Send(context.Context, Request) (Response, error) {
	h := http.Header{}
	h.Set("Date", c.date.Format(http.TimeFormat))
	return Response{StatusCode: 200, Header: h}, nil
}

func TestWorker_ServerDateFeedsOffset(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	serverTime := now.Add(42 * time.Second)

	client := &headerClient{date: serverTime}
	offset := sdkctx.NewServerTimeOffsetPublisher()

	f := newWorkerFixture(t, client, fastConfig(), Options{
		ServerOffset: offset,
		Now:          func() time.Time { return now },
	})
	f.provider.RegisterPublisher(offset)

	f.write(t, "e")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool {
		return f.provider.ReadSync().ServerTimeOffset == 42*time.Second
	})
}

type leaseRecorder struct {
	mu    sync.Mutex
	begun int
	ended int
}

func (l *leaseRecorder) BeginTask(string) func() {
	l.mu.Lock()
	l.begun++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.ended++
		l.mu.Unlock()
	}
}

func TestWorker_BackgroundLeaseAroundRequest(t *testing.T) {
	t.Parallel()

	lease := &leaseRecorder{}
	client := &stubClient{}
	cfg := fastConfig()
	cfg.BackgroundTasksEnabled = true
	f := newWorkerFixture(t, client, cfg, Options{Background: lease})

	f.provider.WriteSync(func(c *sdkctx.Context) {
		c.AppStateHistory = append(c.AppStateHistory, sdkctx.AppStateChange{State: sdkctx.AppStateBackground})
	})

	f.write(t, "bg")
	f.w.Start()

	eventually(t, 2*time.Second, func() bool {
		lease.mu.Lock()
		defer lease.mu.Unlock()
		return lease.begun >= 1 && lease.ended == lease.begun
	})
}

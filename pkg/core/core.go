// Package core hosts the feature registry and orchestrates the SDK's
// subsystems: the context provider, the message bus, per-feature storage
// and upload, and the quiescence barriers that order user-level commands
// against background I/O.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/internal/logger"
	"github.com/pulsekit/pulsekit/internal/queue"
	"github.com/pulsekit/pulsekit/pkg/config"
	"github.com/pulsekit/pulsekit/pkg/message"
	"github.com/pulsekit/pulsekit/pkg/monitor"
	"github.com/pulsekit/pulsekit/pkg/sdkctx"
	"github.com/pulsekit/pulsekit/pkg/storage"
	"github.com/pulsekit/pulsekit/pkg/upload"
)

// Options carries the optional collaborators a host can inject. Every
// field has a working default.
type Options struct {
	// HTTPClient is the outbound transport. Defaults to net/http with
	// the configured request timeout.
	HTTPClient upload.HTTPClient

	// Encryption encrypts event payloads at rest. Nil stores plaintext.
	Encryption storage.Encryption

	// Monitor receives self-monitoring counters. Nil disables them.
	Monitor monitor.Monitor

	// Background supplies OS background-task leases. Nil disables the
	// hand-off.
	Background upload.BackgroundTaskCoordinator

	// InitialConsent seeds the consent value; defaults to pending.
	InitialConsent sdkctx.TrackingConsent

	// UploadConditions tunes the device-state gate.
	UploadConditions upload.Conditions

	// Publishers and Readers are additional platform field sources
	// (reachability monitor, battery watcher, carrier reader, ...).
	Publishers []sdkctx.FieldPublisher
	Readers    []sdkctx.FieldReader

	// Device describes the host device.
	Device sdkctx.DeviceInfo

	// Now is the date provider. Nil uses time.Now.
	Now func() time.Time
}

// featureRecord binds a feature to the pipeline pieces the core owns for
// it.
type featureRecord struct {
	feature Feature
	storage *storage.Storage
	upload  *upload.Worker
}

// Core is the SDK engine. It exclusively owns each feature's storage and
// upload pair, shares the context provider by reference with them, and is
// held weakly by the bus (the back-reference is cleared on tear-down).
type Core struct {
	cfg    *config.Config
	opts   Options
	now    func() time.Time
	preset config.PerformancePreset

	provider *sdkctx.Provider
	bus      *message.Bus
	rw       *queue.SerialQueue

	consent      *sdkctx.ConsentPublisher
	userInfo     *sdkctx.UserInfoPublisher
	serverOffset *sdkctx.ServerTimeOffsetPublisher
	appState     *sdkctx.AppStatePublisher

	httpClient upload.HTTPClient

	mu       sync.Mutex
	features map[string]*featureRecord
	stopped  bool
}

// New builds a core from validated configuration. The root directory is
// created; the logger is configured; the context provider starts from the
// host identity in cfg.
func New(cfg *config.Config, opts Options) (*Core, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.RootDir, 0o700); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Core{
		cfg:      cfg,
		opts:     opts,
		now:      now,
		preset:   cfg.EffectivePreset(),
		rw:       queue.New("storage-rw"),
		bus:      message.NewBus(),
		features: map[string]*featureRecord{},
	}

	c.provider = sdkctx.NewProvider(sdkctx.Context{
		Site:        cfg.Site,
		ClientToken: cfg.ClientToken,
		Service:     cfg.Service,
		Env:         cfg.Env,
		AppVersion:  cfg.Version,
		SDKVersion:  Version,
		Source:      cfg.Source,
		Device:      opts.Device,
		Battery:     sdkctx.BatteryStatus{State: sdkctx.BatteryStateUnknown, Level: -1},
	})

	// Every committed snapshot is broadcast so features converge on the
	// same view of the world. Installed before the publishers so their
	// initial pushes already reach the bus.
	c.provider.Subscribe(func(snap sdkctx.Context) {
		c.bus.Send(message.ContextMessage{Context: snap}, nil)
	})
	c.bus.ConnectCore(c)

	c.consent = sdkctx.NewConsentPublisher(opts.InitialConsent)
	c.userInfo = sdkctx.NewUserInfoPublisher()
	c.serverOffset = sdkctx.NewServerTimeOffsetPublisher()
	c.appState = sdkctx.NewAppStatePublisher(now)

	c.provider.RegisterPublisher(c.consent)
	c.provider.RegisterPublisher(c.userInfo)
	c.provider.RegisterPublisher(c.serverOffset)
	c.provider.RegisterPublisher(c.appState)
	for _, p := range opts.Publishers {
		c.provider.RegisterPublisher(p)
	}
	c.provider.RegisterReader(sdkctx.LaunchReader{At: now()})
	for _, r := range opts.Readers {
		c.provider.RegisterReader(r)
	}

	c.httpClient = opts.HTTPClient
	if c.httpClient == nil {
		c.httpClient = upload.NewNetHTTPClient(cfg.Upload.RequestTimeout)
	}

	return c, nil
}

// Register adds a feature: its directory is created, the effective
// preset derived, and, for remote features, storage and upload
// instantiated and started. Leftover unauthorized data from previous runs
// is cleared. Registering a duplicate name fails fast.
func (c *Core) Register(f Feature) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrCoreStopped
	}
	name := f.Name()
	if _, exists := c.features[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrFeatureAlreadyRegistered)
	}
	if err := os.MkdirAll(filepath.Join(c.cfg.RootDir, name), 0o700); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	preset := c.preset
	if po, ok := f.(PerformanceOverrider); ok {
		preset = preset.Apply(po.PerformanceOverride())
	}

	rec := &featureRecord{feature: f}
	if rf, ok := f.(RemoteFeature); ok {
		store, err := storage.New(name, c.cfg.RootDir, c.rw, preset.StorageConfig(), storage.Options{
			Encryption: c.opts.Encryption,
			Monitor:    c.opts.Monitor,
			Now:        c.now,
		})
		if err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
		store.ClearUnauthorized()

		worker := upload.NewWorker(name, store, c.provider, c.httpClient, rf.RequestBuilder(),
			preset.UploadConfig(c.cfg.Upload.RequestTimeout, c.cfg.Upload.BackgroundTasks),
			upload.Options{
				Conditions:   c.opts.UploadConditions,
				Monitor:      c.opts.Monitor,
				Background:   c.opts.Background,
				ServerOffset: c.serverOffset,
				Now:          c.now,
			})
		rec.storage = store
		rec.upload = worker
		worker.Start()
	}

	if r := f.Receiver(); r != nil {
		c.bus.Connect(name, r)
	}

	c.features[name] = rec
	logger.Info("feature registered", logger.KeyFeature, name)
	return nil
}

// Get returns the registered feature instance, or nil.
func (c *Core) Get(name string) Feature {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.features[name]; ok {
		return rec.feature
	}
	return nil
}

// GetTyped looks a feature up by name and asserts its concrete type.
func GetTyped[T Feature](c *Core, name string) (T, bool) {
	f, ok := c.Get(name).(T)
	return f, ok
}

// record returns the feature record, or nil.
func (c *Core) record(name string) *featureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features[name]
}

// records snapshots all feature records.
func (c *Core) records() []*featureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*featureRecord, 0, len(c.features))
	for _, rec := range c.features {
		out = append(out, rec)
	}
	return out
}

// SetUserInfo replaces the user identity in the context.
func (c *Core) SetUserInfo(u sdkctx.UserInfo) {
	c.userInfo.Set(u)
}

// AddUserExtraInfo merges attributes into the current user's extra info.
func (c *Core) AddUserExtraInfo(extra map[string]any) {
	c.userInfo.AddExtra(extra)
}

// NotifyAppState records a host lifecycle transition.
func (c *Core) NotifyAppState(state sdkctx.AppState) {
	c.appState.Notify(state)
}

// SetTrackingConsent applies a consent decision: pending data of every
// feature is migrated first, then the consent publisher updates the
// context, so an event written after the change lands under the new
// value.
func (c *Core) SetTrackingConsent(consent sdkctx.TrackingConsent) {
	if !consent.Valid() || consent == c.consent.Current() {
		return
	}
	for _, rec := range c.records() {
		if rec.storage != nil {
			rec.storage.MigrateUnauthorized(consent)
		}
	}
	c.consent.Set(consent)
}

// TrackingConsent returns the current consent value.
func (c *Core) TrackingConsent() sdkctx.TrackingConsent {
	return c.consent.Current()
}

// SetBaggage attaches an opaque sub-context under key. A nil baggage
// removes the key.
func (c *Core) SetBaggage(key string, baggage sdkctx.Baggage) {
	c.provider.Write(func(ctx *sdkctx.Context) {
		if ctx.Baggages == nil {
			ctx.Baggages = map[string]sdkctx.Baggage{}
		}
		if baggage == nil {
			delete(ctx.Baggages, key)
			return
		}
		ctx.Baggages[key] = baggage
	})
}

// Send forwards a message to the bus; fallback runs if no receiver
// handles it.
func (c *Core) Send(msg message.Message, fallback func()) {
	c.bus.Send(msg, fallback)
}

// ClearAllData wipes every feature's batch files.
func (c *Core) ClearAllData() {
	for _, rec := range c.records() {
		if rec.storage != nil {
			rec.storage.ClearAll()
		}
	}
}

package sdkctx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ReadSeesInitialContext(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{Service: "shop", Env: "prod"})
	defer p.Stop()

	snap := p.ReadSync()
	assert.Equal(t, "shop", snap.Service)
	assert.Equal(t, "prod", snap.Env)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestProvider_WriteVisibleToLaterRead(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	p.Write(func(c *Context) { c.Service = "checkout" })

	snap := p.ReadSync()
	assert.Equal(t, "checkout", snap.Service)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestProvider_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{Baggages: map[string]Baggage{"rum": Baggage(`{"v":1}`)}})
	defer p.Stop()

	snap := p.ReadSync()
	snap.Baggages["rum"] = Baggage(`{"v":2}`)
	snap.AppStateHistory = append(snap.AppStateHistory, AppStateChange{State: AppStateBackground})

	fresh := p.ReadSync()
	assert.Equal(t, Baggage(`{"v":1}`), fresh.Baggages["rum"])
	assert.Empty(t, fresh.AppStateHistory)
}

func TestProvider_SubscriberSeesMonotonicVersions(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	var mu sync.Mutex
	var versions []uint64
	p.Subscribe(func(c Context) {
		mu.Lock()
		versions = append(versions, c.Version)
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		p.Write(func(c *Context) { c.Env = "e" })
	}
	p.ReadSync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, versions, 20)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestProvider_ReadCallbackMayWrite(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	done := make(chan struct{})
	p.Read(func(c Context) {
		p.Write(func(c *Context) { c.Source = "ios" })
		close(done)
	})
	<-done

	assert.Equal(t, "ios", p.ReadSync().Source)
}

func TestProvider_FieldReaderAppliedOnRead(t *testing.T) {
	t.Parallel()

	launch := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewProvider(Context{})
	defer p.Stop()

	p.RegisterReader(LaunchReader{At: launch})

	assert.Equal(t, launch, p.ReadSync().LaunchTime)
}

func TestConsentPublisher_InitialPush(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	consent := NewConsentPublisher(ConsentPending)
	p.RegisterPublisher(consent)

	assert.Equal(t, ConsentPending, p.ReadSync().TrackingConsent)

	consent.Set(ConsentGranted)
	assert.Equal(t, ConsentGranted, p.ReadSync().TrackingConsent)
	assert.Equal(t, ConsentGranted, consent.Current())
}

func TestConsentPublisher_RejectsInvalid(t *testing.T) {
	t.Parallel()

	consent := NewConsentPublisher(TrackingConsent("bogus"))
	assert.Equal(t, ConsentPending, consent.Current())

	consent.Set(TrackingConsent("nope"))
	assert.Equal(t, ConsentPending, consent.Current())
}

func TestUserInfoPublisher_SetAndAddExtra(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	user := NewUserInfoPublisher()
	p.RegisterPublisher(user)

	user.Set(UserInfo{ID: "u1", Name: "Sam"})
	user.AddExtra(map[string]any{"plan": "pro"})

	snap := p.ReadSync()
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, "pro", snap.User.Extra["plan"])
}

func TestAppStatePublisher_History(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	app := NewAppStatePublisher(func() time.Time { return now })
	p.RegisterPublisher(app)

	app.Notify(AppStateBackground)
	app.Notify(AppStateActive)

	snap := p.ReadSync()
	require.Len(t, snap.AppStateHistory, 2)
	assert.Equal(t, AppStateActive, snap.CurrentAppState())
}

func TestServerTimeOffsetPublisher(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	defer p.Stop()

	offset := NewServerTimeOffsetPublisher()
	p.RegisterPublisher(offset)

	offset.SetOffset(3 * time.Second)
	assert.Equal(t, 3*time.Second, p.ReadSync().ServerTimeOffset)
}

func TestProvider_StopStopsPublishers(t *testing.T) {
	t.Parallel()

	p := NewProvider(Context{})
	consent := NewConsentPublisher(ConsentGranted)
	p.RegisterPublisher(consent)

	p.Stop()

	// Pushing after stop must not panic or block.
	consent.Set(ConsentNotGranted)
}

func TestNetworkInfo_IsReachable(t *testing.T) {
	t.Parallel()

	assert.True(t, NetworkInfo{}.IsReachable())

	yes, no := true, false
	assert.True(t, NetworkInfo{Reachable: &yes}.IsReachable())
	assert.False(t, NetworkInfo{Reachable: &no}.IsReachable())
}

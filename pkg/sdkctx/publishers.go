package sdkctx

import (
	"sync"
	"time"
)

// basePublisher carries the push plumbing shared by the in-process field
// publishers below. Platform integrations (reachability, battery) supply
// their own FieldPublisher implementations.
type basePublisher struct {
	pushMu sync.Mutex
	push   func(mutate func(*Context))
}

func (p *basePublisher) Start(push func(mutate func(*Context))) {
	p.pushMu.Lock()
	p.push = push
	p.pushMu.Unlock()
}

func (p *basePublisher) Stop() {
	p.pushMu.Lock()
	p.push = nil
	p.pushMu.Unlock()
}

func (p *basePublisher) publish(mutate func(*Context)) {
	p.pushMu.Lock()
	push := p.push
	p.pushMu.Unlock()
	if push != nil {
		push(mutate)
	}
}

// ConsentPublisher feeds the TrackingConsent field. The core flips it when
// the host application reports a user decision.
type ConsentPublisher struct {
	basePublisher
	mu      sync.Mutex
	current TrackingConsent
}

// NewConsentPublisher creates a publisher with the given initial value.
func NewConsentPublisher(initial TrackingConsent) *ConsentPublisher {
	if !initial.Valid() {
		initial = ConsentPending
	}
	return &ConsentPublisher{current: initial}
}

// Start pushes the initial consent immediately so the first snapshot
// already carries it.
func (p *ConsentPublisher) Start(push func(mutate func(*Context))) {
	p.basePublisher.Start(push)
	c := p.Current()
	p.publish(func(ctx *Context) { ctx.TrackingConsent = c })
}

// Set updates the consent and pushes it to the context.
func (p *ConsentPublisher) Set(c TrackingConsent) {
	if !c.Valid() {
		return
	}
	p.mu.Lock()
	p.current = c
	p.mu.Unlock()
	p.publish(func(ctx *Context) { ctx.TrackingConsent = c })
}

// Current returns the last value set.
func (p *ConsentPublisher) Current() TrackingConsent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// UserInfoPublisher feeds the User field.
type UserInfoPublisher struct {
	basePublisher
	mu      sync.Mutex
	current UserInfo
}

// NewUserInfoPublisher creates an empty-user publisher.
func NewUserInfoPublisher() *UserInfoPublisher {
	return &UserInfoPublisher{}
}

// Set replaces the user info and pushes it.
func (p *UserInfoPublisher) Set(u UserInfo) {
	p.mu.Lock()
	if u.Extra == nil {
		u.Extra = map[string]any{}
	}
	p.current = u
	snap := p.cloneLocked()
	p.mu.Unlock()
	p.publish(func(ctx *Context) { ctx.User = snap })
}

// AddExtra merges attributes into the current user's extra info and pushes
// the result. Existing keys are overwritten.
func (p *UserInfoPublisher) AddExtra(extra map[string]any) {
	p.mu.Lock()
	if p.current.Extra == nil {
		p.current.Extra = map[string]any{}
	}
	for k, v := range extra {
		p.current.Extra[k] = v
	}
	snap := p.cloneLocked()
	p.mu.Unlock()
	p.publish(func(ctx *Context) { ctx.User = snap })
}

func (p *UserInfoPublisher) cloneLocked() UserInfo {
	u := p.current
	extra := make(map[string]any, len(u.Extra))
	for k, v := range u.Extra {
		extra[k] = v
	}
	u.Extra = extra
	return u
}

// ServerTimeOffsetPublisher feeds the ServerTimeOffset field. The upload
// pipeline updates it from intake response Date headers.
type ServerTimeOffsetPublisher struct {
	basePublisher
}

// NewServerTimeOffsetPublisher creates the publisher.
func NewServerTimeOffsetPublisher() *ServerTimeOffsetPublisher {
	return &ServerTimeOffsetPublisher{}
}

// SetOffset pushes a new device-to-server clock offset.
func (p *ServerTimeOffsetPublisher) SetOffset(offset time.Duration) {
	p.publish(func(ctx *Context) { ctx.ServerTimeOffset = offset })
}

// AppStatePublisher feeds the application-state history. Hosts call Notify
// on lifecycle transitions; non-mobile hosts can leave it untouched.
type AppStatePublisher struct {
	basePublisher
	now func() time.Time
}

// NewAppStatePublisher creates the publisher. now may be nil to use the
// wall clock.
func NewAppStatePublisher(now func() time.Time) *AppStatePublisher {
	if now == nil {
		now = time.Now
	}
	return &AppStatePublisher{now: now}
}

// Notify appends a lifecycle transition to the history.
func (p *AppStatePublisher) Notify(state AppState) {
	at := p.now()
	p.publish(func(ctx *Context) {
		ctx.AppStateHistory = append(ctx.AppStateHistory, AppStateChange{State: state, At: at})
	})
}

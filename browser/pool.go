// Package browser manages the shared headless-browser instance used to
// convert certificate HTML into PDF bytes. The instance is expensive to
// start and fallible at runtime, so the pool launches it lazily, deduplicates
// concurrent launches, and reclaims it after an idle period.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-certify/certify"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLaunchTimeout bounds browser startup.
	DefaultLaunchTimeout = 30 * time.Second

	// DefaultIdleTimeout is the quiet period after which the instance is
	// reclaimed.
	DefaultIdleTimeout = 30 * time.Second
)

// launchKey is the single-flight key; one shared instance, one key.
const launchKey = "launch"

// Launcher starts rendering-engine instances.
type Launcher interface {
	Launch(ctx context.Context) (Instance, error)
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context) (Instance, error)

func (f LauncherFunc) Launch(ctx context.Context) (Instance, error) {
	if f == nil {
		return nil, certify.NewError(certify.KindNotImpl, "launcher func is nil", nil)
	}
	return f(ctx)
}

// Instance is a running rendering engine. Callers borrow it for the duration
// of one render session and never close it themselves.
type Instance interface {
	Connected() bool
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is an isolated per-render execution context inside an Instance.
// It is exclusively owned by its originating render call.
type Session interface {
	SetContent(ctx context.Context, htmlContent string) error
	WaitFontsReady(ctx context.Context) error
	PrintPDF(ctx context.Context, opts certify.PDFOptions) ([]byte, error)
	Close() error
}

// Pool owns at most one Instance. Acquire returns the live instance when one
// exists, otherwise launches a new one; concurrent callers racing into an
// empty pool share a single launch attempt and its outcome.
type Pool struct {
	Launcher      Launcher
	LaunchTimeout time.Duration
	IdleTimeout   time.Duration
	Logger        certify.Logger

	mu       sync.Mutex
	instance Instance
	idle     *time.Timer
	idleGen  uint64
	flight   singleflight.Group
}

// NewPool creates a pool around the given launcher.
func NewPool(launcher Launcher) *Pool {
	return &Pool{Launcher: launcher}
}

// Acquire returns a connected instance, launching one if needed. The idle
// deadline is rearmed on every successful acquisition. A caller whose
// context expires while a launch is in flight abandons the wait; the launch
// itself continues and its result stays available to other callers.
func (p *Pool) Acquire(ctx context.Context) (Instance, error) {
	if p == nil || p.Launcher == nil {
		return nil, certify.NewError(certify.KindNotImpl, "browser launcher not configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, certify.NewError(contextKind(err), "browser acquisition abandoned", err)
	}

	p.mu.Lock()
	if inst := p.instance; inst != nil && inst.Connected() {
		p.rearmLocked()
		p.mu.Unlock()
		return inst, nil
	}
	p.mu.Unlock()

	ch := p.flight.DoChan(launchKey, p.launch)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		inst := res.Val.(Instance)
		p.mu.Lock()
		p.rearmLocked()
		p.mu.Unlock()
		return inst, nil
	case <-ctx.Done():
		return nil, certify.NewError(contextKind(ctx.Err()), "browser acquisition abandoned", ctx.Err())
	}
}

// launch runs inside the single-flight group: at most one execution per
// empty period, its outcome shared by every waiter.
func (p *Pool) launch() (any, error) {
	p.mu.Lock()
	cur := p.instance
	if cur != nil && cur.Connected() {
		p.mu.Unlock()
		return cur, nil
	}
	p.instance = nil
	p.stopIdleLocked()
	p.mu.Unlock()

	// Evict a disconnected leftover before relaunching.
	if cur != nil {
		if err := cur.Close(); err != nil {
			p.logger().Errorf("browser: disconnected instance close: %v", err)
		}
	}

	timeout := p.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}
	// Launch under its own deadline, detached from any single caller.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	inst, err := p.Launcher.Launch(ctx)
	if err != nil {
		return nil, certify.NewError(certify.KindUnavailable, "browser launch failed", err)
	}

	// Store and arm the idle deadline here, not in Acquire: every waiter may
	// have abandoned the wait by now, and an unarmed instance would outlive
	// its idle window.
	p.mu.Lock()
	p.instance = inst
	p.rearmLocked()
	p.mu.Unlock()
	return inst, nil
}

// Shutdown stops the idle timer and closes the instance synchronously.
// Idempotent; close failures are logged, not returned.
func (p *Pool) Shutdown() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	p.stopIdleLocked()
	inst := p.instance
	p.instance = nil
	p.mu.Unlock()

	if inst != nil {
		if err := inst.Close(); err != nil {
			p.logger().Errorf("browser: shutdown close: %v", err)
		}
	}
	return nil
}

// Idle reports whether the pool currently holds no instance.
func (p *Pool) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instance == nil
}

// rearmLocked resets the idle deadline. Caller holds p.mu. The armed callback
// captures the current generation; Stop cannot cancel a callback that already
// started, so a fire from a superseded deadline is recognized and ignored.
func (p *Pool) rearmLocked() {
	p.stopIdleLocked()
	if p.instance == nil {
		return
	}
	timeout := p.IdleTimeout
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	gen := p.idleGen
	p.idle = time.AfterFunc(timeout, func() { p.reap(gen) })
}

func (p *Pool) stopIdleLocked() {
	p.idleGen++
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
}

// reap fires when the quiet period elapses with no acquisition. A stale fire,
// raced by an acquisition that rearmed the deadline, is a no-op. Teardown is
// best-effort; a close failure leaves the pool empty either way.
func (p *Pool) reap(gen uint64) {
	p.mu.Lock()
	if gen != p.idleGen {
		p.mu.Unlock()
		return
	}
	inst := p.instance
	p.instance = nil
	p.idle = nil
	p.mu.Unlock()

	if inst == nil {
		return
	}
	if err := inst.Close(); err != nil {
		p.logger().Errorf("browser: idle eviction close: %v", err)
		return
	}
	p.logger().Debugf("browser: instance reclaimed after idle period")
}

func (p *Pool) logger() certify.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return certify.NopLogger{}
}

func contextKind(err error) certify.ErrorKind {
	if err == context.DeadlineExceeded {
		return certify.KindTimeout
	}
	return certify.KindCanceled
}

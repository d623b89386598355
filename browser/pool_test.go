package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-certify/certify"
)

type fakeSession struct {
	mu           sync.Mutex
	pdf          []byte
	contentErr   error
	contentDelay time.Duration
	fontsErr     error
	printErr     error
	printDelay   time.Duration
	closeErr     error
	closeCount   int
}

func (s *fakeSession) SetContent(ctx context.Context, htmlContent string) error {
	_ = htmlContent
	if err := waitOrCancel(ctx, s.contentDelay); err != nil {
		return err
	}
	return s.contentErr
}

func (s *fakeSession) WaitFontsReady(ctx context.Context) error {
	_ = ctx
	return s.fontsErr
}

func (s *fakeSession) PrintPDF(ctx context.Context, opts certify.PDFOptions) ([]byte, error) {
	_ = opts
	if err := waitOrCancel(ctx, s.printDelay); err != nil {
		return nil, err
	}
	if s.printErr != nil {
		return nil, s.printErr
	}
	if s.pdf != nil {
		return s.pdf, nil
	}
	return []byte("%PDF-1.7 fake"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return s.closeErr
}

func (s *fakeSession) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func waitOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeInstance struct {
	mu         sync.Mutex
	connected  bool
	closeErr   error
	closeCount int
	sessionErr error
	newSession func() *fakeSession
	sessions   []*fakeSession
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{connected: true}
}

func (i *fakeInstance) Connected() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.connected
}

func (i *fakeInstance) disconnect() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connected = false
}

func (i *fakeInstance) NewSession(ctx context.Context) (Session, error) {
	_ = ctx
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sessionErr != nil {
		return nil, i.sessionErr
	}
	var session *fakeSession
	if i.newSession != nil {
		session = i.newSession()
	} else {
		session = &fakeSession{}
	}
	i.sessions = append(i.sessions, session)
	return session, nil
}

func (i *fakeInstance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closeCount++
	i.connected = false
	return i.closeErr
}

func (i *fakeInstance) closes() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closeCount
}

type countingLauncher struct {
	mu        sync.Mutex
	launches  int
	delay     time.Duration
	err       error
	instances []*fakeInstance
}

func (l *countingLauncher) Launch(ctx context.Context) (Instance, error) {
	l.mu.Lock()
	l.launches++
	delay := l.delay
	err := l.err
	l.mu.Unlock()

	if werr := waitOrCancel(ctx, delay); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}

	inst := newFakeInstance()
	l.mu.Lock()
	l.instances = append(l.instances, inst)
	l.mu.Unlock()
	return inst, nil
}

func (l *countingLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *countingLauncher) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func TestPool_ConcurrentAcquireSingleLaunch(t *testing.T) {
	launcher := &countingLauncher{delay: 20 * time.Millisecond}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	const callers = 16
	instances := make([]Instance, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i], errs[i] = pool.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("expected exactly one launch, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if instances[i] != instances[0] {
			t.Fatalf("caller %d received a different instance", i)
		}
	}
}

func TestPool_LaunchFailureSharedAndRetriedLazily(t *testing.T) {
	launcher := &countingLauncher{delay: 20 * time.Millisecond, err: errors.New("no browser binary")}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = pool.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("expected one failed launch attempt, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			t.Fatalf("caller %d: expected launch failure", i)
		}
		if kind := certify.KindFromError(errs[i]); kind != certify.KindUnavailable {
			t.Fatalf("caller %d: expected unavailable, got %s", i, kind)
		}
	}
	if !pool.Idle() {
		t.Fatalf("expected pool to stay empty after launch failure")
	}

	// Next demand retries.
	launcher.setErr(nil)
	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retry acquire: %v", err)
	}
	if inst == nil {
		t.Fatalf("expected instance on retry")
	}
	if got := launcher.launchCount(); got != 2 {
		t.Fatalf("expected second launch attempt, got %d", got)
	}
}

func TestPool_IdleEviction(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = 50 * time.Millisecond

	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !pool.Idle() {
		if time.Now().After(deadline) {
			t.Fatalf("pool never returned to empty")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := inst.(*fakeInstance).closes(); got != 1 {
		t.Fatalf("expected instance closed once, got %d", got)
	}

	// Next acquire launches a fresh instance.
	next, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after eviction: %v", err)
	}
	if next == inst {
		t.Fatalf("expected a fresh instance after eviction")
	}
	if got := launcher.launchCount(); got != 2 {
		t.Fatalf("expected two launches, got %d", got)
	}
}

func TestPool_AcquireResetsIdleDeadline(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = 150 * time.Millisecond

	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Keep touching the pool inside the idle window.
	for i := 0; i < 3; i++ {
		time.Sleep(80 * time.Millisecond)
		again, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if again != inst {
			t.Fatalf("acquire %d: expected the same instance", i)
		}
	}
	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("expected a single launch across resets, got %d", got)
	}
}

func TestPool_ShutdownIdempotent(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := pool.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := pool.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if got := inst.(*fakeInstance).closes(); got != 1 {
		t.Fatalf("expected a single close, got %d", got)
	}

	// Shutdown on an already-empty pool.
	empty := NewPool(launcher)
	if err := empty.Shutdown(); err != nil {
		t.Fatalf("shutdown empty pool: %v", err)
	}
}

func TestPool_DisconnectedInstanceEvictedAndRelaunched(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	first.(*fakeInstance).disconnect()

	second, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after disconnect: %v", err)
	}
	if second == first {
		t.Fatalf("expected a fresh instance after disconnect")
	}
	if got := launcher.launchCount(); got != 2 {
		t.Fatalf("expected relaunch, got %d launches", got)
	}
	if got := first.(*fakeInstance).closes(); got != 1 {
		t.Fatalf("expected disconnected instance closed once, got %d", got)
	}
}

func TestPool_StaleIdleFireAfterRearmIsIgnored(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	pool.mu.Lock()
	staleGen := pool.idleGen
	pool.mu.Unlock()

	// A fresh acquisition resets the deadline and supersedes the pending fire.
	again, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if again != inst {
		t.Fatalf("expected the same instance")
	}

	// The superseded deadline fires anyway; Stop cannot cancel a callback
	// that already started.
	pool.reap(staleGen)

	if pool.Idle() {
		t.Fatalf("stale fire emptied the pool")
	}
	if got := inst.(*fakeInstance).closes(); got != 0 {
		t.Fatalf("stale fire closed a just-acquired instance (closes=%d)", got)
	}

	// The current deadline still reclaims the instance.
	pool.mu.Lock()
	currentGen := pool.idleGen
	pool.mu.Unlock()
	pool.reap(currentGen)

	if !pool.Idle() {
		t.Fatalf("expected current fire to empty the pool")
	}
	if got := inst.(*fakeInstance).closes(); got != 1 {
		t.Fatalf("expected instance closed once, got %d", got)
	}
}

func TestPool_AbandonedLaunchStillArmsIdleDeadline(t *testing.T) {
	launcher := &countingLauncher{delay: 50 * time.Millisecond}
	pool := NewPool(launcher)
	pool.IdleTimeout = 40 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatalf("expected abandoned acquisition to fail")
	}

	// The detached launch completes with no waiter left; the stored instance
	// must still be reclaimed after the idle window.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if pool.Idle() {
			launcher.mu.Lock()
			stored := len(launcher.instances)
			launcher.mu.Unlock()
			if stored == 1 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("instance stored by an abandoned launch was never idle-evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	launcher.mu.Lock()
	inst := launcher.instances[0]
	launcher.mu.Unlock()
	if got := inst.closes(); got != 1 {
		t.Fatalf("expected abandoned-launch instance closed once, got %d", got)
	}
}

func TestPool_AcquireRejectsDeadContext(t *testing.T) {
	launcher := &countingLauncher{}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Acquire(ctx)
	if err == nil {
		t.Fatalf("expected canceled acquisition to fail")
	}
	if kind := certify.KindFromError(err); kind != certify.KindCanceled {
		t.Fatalf("expected canceled kind, got %s", kind)
	}
	if pool.Idle() {
		t.Fatalf("expected pool to keep its instance")
	}
}

func TestPool_AcquireAbandonedOnContextExpiry(t *testing.T) {
	launcher := &countingLauncher{delay: 300 * time.Millisecond}
	pool := NewPool(launcher)
	pool.IdleTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatalf("expected abandoned acquisition to fail")
	} else if kind := certify.KindFromError(err); kind != certify.KindTimeout {
		t.Fatalf("expected timeout kind, got %s", kind)
	}

	// The shared launch keeps going; a later caller joins its result.
	inst, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after abandoned wait: %v", err)
	}
	if inst == nil {
		t.Fatalf("expected instance")
	}
	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("expected the abandoned launch to be reused, got %d launches", got)
	}
}

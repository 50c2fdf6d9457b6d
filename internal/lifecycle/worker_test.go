package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeAdvancer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeAdvancer) AdvanceLifecycle(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return 1, f.err
}

func (f *fakeAdvancer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestWorker_RunsImmediatelyAndOnTick(t *testing.T) {
	adv := &fakeAdvancer{}
	w := NewWorker(adv, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	assert.Eventually(t, func() bool { return adv.count() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	adv := &fakeAdvancer{err: errors.New("db down")}
	w := NewWorker(adv, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	assert.Eventually(t, func() bool { return adv.count() >= 1 }, time.Second, time.Millisecond)
	cancel()

	time.Sleep(20 * time.Millisecond)
	stopped := adv.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, adv.count())
}

func TestNewWorker_DefaultInterval(t *testing.T) {
	w := NewWorker(&fakeAdvancer{}, 0)
	assert.Equal(t, time.Minute, w.interval)
}

func TestWorker_PassesClock(t *testing.T) {
	adv := &fakeAdvancer{}
	w := NewWorker(adv, time.Hour)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.tick(context.Background())
	assert.Equal(t, []time.Time{fixed}, adv.calls)
}

package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"messenger/internal/cache"
	"messenger/internal/dto"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct{ runs atomic.Int32 }

func (c *countingSweeper) Sweep(context.Context) ([]dto.SweepReport, error) {
	c.runs.Add(1)
	return []dto.SweepReport{{Direction: "local_to_external"}}, nil
}

func TestRunOnceHonoursInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gate := cache.NewMemoryStore().WithClock(func() time.Time { return now })
	sw := &countingSweeper{}
	s := NewScheduler(sw, gate, 10*time.Minute, time.Minute, nil)

	assert.True(t, s.RunOnce(context.Background()))
	now = now.Add(time.Minute)
	assert.False(t, s.RunOnce(context.Background()), "second tick inside the interval must not run")
	now = now.Add(10 * time.Minute)
	assert.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(2), sw.runs.Load())
}

func TestSharedGateAcrossSchedulers(t *testing.T) {
	gate := cache.NewMemoryStore()
	a, b := &countingSweeper{}, &countingSweeper{}
	NewScheduler(a, gate, time.Hour, time.Minute, nil).RunOnce(context.Background())
	NewScheduler(b, gate, time.Hour, time.Minute, nil).RunOnce(context.Background())

	assert.Equal(t, int32(1), a.runs.Load()+b.runs.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := &countingSweeper{}
	s := NewScheduler(sw, cache.NewMemoryStore(), time.Hour, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return sw.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNonPositiveDurationsUseDefaults(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, cache.NewMemoryStore(), 0, -time.Second, nil)
	assert.Equal(t, defaultInterval, s.interval)
	assert.Equal(t, defaultTick, s.tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { s.Run(ctx) })
}

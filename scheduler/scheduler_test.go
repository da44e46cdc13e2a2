package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentLogger struct{}

func (silentLogger) Debug(string) {}
func (silentLogger) Info(string)  {}
func (silentLogger) Warn(string)  {}
func (silentLogger) Error(string) {}
func (silentLogger) Fatal(string) {}

type countingTask struct {
	calls atomic.Int64
}

func (c *countingTask) Tick(context.Context) {
	c.calls.Add(1)
}

func TestNextWindowSameWindowDoesNotFire(t *testing.T) {
	next, fire := NextWindow(DefaultPolicy(), 100, 109, 10, 0.5)
	assert.False(t, fire)
	assert.Equal(t, int64(10), next)
}

func TestNextWindowSamePeriodKeepsWindow(t *testing.T) {
	next, fire := NextWindow(DefaultPolicy(), 100, 110, 10, 0.5)
	assert.True(t, fire)
	assert.Equal(t, int64(10), next)
}

func TestNextWindowNewPeriodRecomputes(t *testing.T) {
	cases := []struct {
		name          string
		draw          float64
		blockInterval int64
		expected      int64
	}{
		{"lowest draw is floored", 0, 600, 5},
		{"highest draw", 1, 600, 247},
		{"half draw", 0.5, 600, 192},
		{"highest draw shorter blocks", 1, 300, 123},
		{"highest draw interval not dividing period", 1, 400, 164},
		{"half draw interval not dividing period", 0.5, 400, 128},
		{"highest draw blocks longer than period", 1, 1200, 494},
		{"half draw blocks longer than period", 0.5, 1200, 385},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.BlockInterval = tc.blockInterval
			next, fire := NextWindow(p, 595, 600, 10, tc.draw)
			assert.True(t, fire)
			assert.Equal(t, tc.expected, next)
		})
	}
}

func TestNextWindowNeverBelowFloor(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i <= 100; i++ {
		next, _ := NextWindow(p, 0, 600, 10, float64(i)/100)
		assert.GreaterOrEqual(t, next, p.Floor)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Nil(t, Config{}.Validate())
	assert.ErrorIs(t, Config{TickSeconds: 61}.Validate(), ErrWrongTick)
	assert.ErrorIs(t, Config{MinInterval: 600}.Validate(), ErrWrongInterval)
	assert.Nil(t, Config{BlockIntervalSeconds: 1200}.Validate())
	assert.Nil(t, Config{BlockIntervalSeconds: 400}.Validate())
	assert.ErrorIs(t, Config{BlockIntervalSeconds: -1}.Validate(), ErrWrongPeriod)
	assert.ErrorIs(t, Config{PeriodSeconds: -600}.Validate(), ErrWrongPeriod)
	assert.Equal(t, DefaultPolicy(), Config{}.Policy())
}

func TestStepFiresOncePerWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1000, 0)
	task := &countingTask{}
	s, err := New(Config{}, task, silentLogger{}, start)
	require.Nil(t, err)
	assert.Equal(t, int64(10), s.Window())

	fired := 0
	for i := 1; i <= 100; i++ {
		if s.Step(ctx, start.Add(time.Duration(i)*time.Second)) {
			fired++
		}
	}

	assert.Equal(t, 10, fired)
	assert.Equal(t, int64(10), task.calls.Load())
	assert.Equal(t, int64(10), s.Window())
}

func TestStepDrawsNewWindowOnPeriodChange(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(595, 0)
	task := &countingTask{}
	s, err := New(Config{}, task, silentLogger{}, start)
	require.Nil(t, err)

	assert.True(t, s.Step(ctx, time.Unix(600, 0)))
	w := s.Window()
	assert.GreaterOrEqual(t, w, int64(5))
	assert.LessOrEqual(t, w, int64(247))
}

type blockingTask struct {
	calls   atomic.Int64
	release chan struct{}
}

func (b *blockingTask) Tick(ctx context.Context) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
}

func TestRunSkipsTicksWhileBusy(t *testing.T) {
	task := &blockingTask{release: make(chan struct{})}
	s, err := New(Config{TickSeconds: 1, PeriodSeconds: 1 << 40}, task, silentLogger{}, time.Now())
	require.Nil(t, err)
	s.window = 1

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	time.Sleep(3500 * time.Millisecond)
	assert.Equal(t, int64(1), task.calls.Load())

	close(task.release)
	cancel()
	wg.Wait()
	assert.False(t, s.busy.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	task := &countingTask{}
	s, err := New(Config{TickSeconds: 1, PeriodSeconds: 1 << 40}, task, silentLogger{}, time.Now())
	require.Nil(t, err)
	s.window = 1

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int64(2), task.calls.Load())
}

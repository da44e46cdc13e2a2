package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bartossh/Rollupis/logger"
)

const initialWindow int64 = 10

var (
	ErrWrongTick     = errors.New("tick_seconds must be between 1 and 60")
	ErrWrongInterval = errors.New("min_interval must be positive and not greater than max_interval")
	ErrWrongPeriod   = errors.New("period and block_interval must be positive")
)

// Policy holds the constants of the pacing window formula.
type Policy struct {
	Period        int64   // Period in seconds after which a new window is drawn.
	MinInterval   float64 // MinInterval is the lower bound of the drawn interval.
	MaxInterval   float64 // MaxInterval is the upper bound of the drawn interval.
	BlockInterval int64   // BlockInterval is the block production interval in seconds.
	Scale         float64 // Scale multiplies the logarithm of the drawn interval.
	Offset        float64 // Offset is subtracted from the scaled logarithm.
	Floor         int64   // Floor is the smallest window ever returned.
}

// DefaultPolicy returns the policy used by the rollup client.
func DefaultPolicy() Policy {
	return Policy{
		Period:        600,
		MinInterval:   5,
		MaxInterval:   500,
		BlockInterval: 600,
		Scale:         80,
		Offset:        250,
		Floor:         5,
	}
}

// NextWindow decides whether the task fires at now given the previous fire time prev and the current window.
// All times are in seconds. A fire recomputes the window from draw in [0, 1) only when now entered a new period.
func NextWindow(p Policy, prev, now, window int64, draw float64) (int64, bool) {
	if window <= 0 {
		window = p.Floor
	}
	if prev/window == now/window {
		return window, false
	}
	if prev/p.Period == now/p.Period {
		return window, true
	}

	interval := p.MinInterval + draw*(p.MaxInterval-p.MinInterval)
	next := int64(math.Floor((math.Log(interval)*p.Scale - p.Offset) / (float64(p.Period) / float64(p.BlockInterval))))
	if next < p.Floor {
		next = p.Floor
	}
	return next, true
}

// Task is the work triggered by the scheduler.
type Task interface {
	Tick(ctx context.Context)
}

// Config contains configuration of the Scheduler.
type Config struct {
	TickSeconds          int64   `yaml:"tick_seconds"`           // TickSeconds is the base tick, 1 when zero.
	PeriodSeconds        int64   `yaml:"period_seconds"`         // PeriodSeconds after which a new window is drawn, 600 when zero.
	MinInterval          float64 `yaml:"min_interval"`           // MinInterval of the drawn interval, 5 when zero.
	MaxInterval          float64 `yaml:"max_interval"`           // MaxInterval of the drawn interval, 500 when zero.
	BlockIntervalSeconds int64   `yaml:"block_interval_seconds"` // BlockIntervalSeconds of the rollup node, 600 when zero.
}

// Validate validates the scheduler configuration.
func (c Config) Validate() error {
	if c.TickSeconds < 0 || c.TickSeconds > 60 {
		return ErrWrongTick
	}
	p := c.Policy()
	if p.MinInterval <= 0 || p.MinInterval > p.MaxInterval {
		return ErrWrongInterval
	}
	if p.Period <= 0 || p.BlockInterval <= 0 {
		return ErrWrongPeriod
	}
	return nil
}

// Policy returns the DefaultPolicy with the configured values applied.
func (c Config) Policy() Policy {
	p := DefaultPolicy()
	if c.PeriodSeconds != 0 {
		p.Period = c.PeriodSeconds
	}
	if c.MinInterval != 0 {
		p.MinInterval = c.MinInterval
	}
	if c.MaxInterval != 0 {
		p.MaxInterval = c.MaxInterval
	}
	if c.BlockIntervalSeconds != 0 {
		p.BlockInterval = c.BlockIntervalSeconds
	}
	return p
}

func (c Config) tick() time.Duration {
	if c.TickSeconds == 0 {
		return time.Second
	}
	return time.Duration(c.TickSeconds) * time.Second
}

// Scheduler fires the task at adaptively randomized windows driven by a fixed base tick.
type Scheduler struct {
	mux    sync.Mutex
	busy   atomic.Bool
	policy Policy
	tick   time.Duration
	window int64
	last   int64
	rnd    *rand.Rand
	task   Task
	log    logger.Logger
}

// New creates a Scheduler with the initial window of 10 seconds starting at now.
func New(c Config, task Task, log logger.Logger, now time.Time) (*Scheduler, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		policy: c.Policy(),
		tick:   c.tick(),
		window: initialWindow,
		last:   now.Unix(),
		rnd:    rand.New(rand.NewSource(now.UnixNano())),
		task:   task,
		log:    log,
	}, nil
}

// Window returns the current pacing window in seconds.
func (s *Scheduler) Window() int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.window
}

// Step evaluates the pacing window at now and runs the task when it fires.
// It reports whether the task was run.
func (s *Scheduler) Step(ctx context.Context, now time.Time) bool {
	s.mux.Lock()
	next, fire := NextWindow(s.policy, s.last, now.Unix(), s.window, s.rnd.Float64())
	if next != s.window {
		s.log.Debug(fmt.Sprintf("scheduler, pacing window changed from [ %d ] to [ %d ] seconds", s.window, next))
	}
	s.window = next
	if fire {
		s.last = now.Unix()
	}
	s.mux.Unlock()

	if fire {
		s.task.Tick(ctx)
	}
	return fire
}

// Run drives Step from the base tick until the context is canceled.
// A base tick arriving while the previous step is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if !s.busy.CompareAndSwap(false, true) {
				s.log.Debug("scheduler, previous step still running, tick skipped")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.busy.Store(false)
				s.Step(ctx, now)
			}()
		}
	}
}

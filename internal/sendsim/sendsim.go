// Package sendsim simulates bulk message delivery progress over a contact list.
// Nothing is sent: a timed loop advances counters for a display to render.
package sendsim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

// ErrStopped indicates a run ended before the counter reached its cap.
var ErrStopped = errors.New("sendsim: stopped before completion")

const (
	// DefaultInterval is the tick interval when none is configured.
	DefaultInterval = 500 * time.Millisecond
	// MinInterval is the smallest tick interval a run will use.
	MinInterval = 10 * time.Millisecond
)

// Config controls pacing of a simulated run.
type Config struct {
	Interval         time.Duration // Delay between ticks.
	ProgressDuration time.Duration // Wall time for the progress bar to reach 100%.
	Increment        int           // Successful count added per tick.
	Cap              int           // Count at which the run finishes.
	Antiban          bool          // Insert occasional random pauses.
	PauseChance      float64       // Per-tick probability of a pause when Antiban is set.
	MinPause         time.Duration
	MaxPause         time.Duration
}

// DefaultConfig returns pacing for a list of contactCount contacts.
func DefaultConfig(contactCount int) Config {
	return Config{
		Interval:         DefaultInterval,
		ProgressDuration: time.Minute,
		Increment:        100,
		Cap:              contactCount,
		PauseChance:      0.04,
		MinPause:         100 * time.Millisecond,
		MaxPause:         700 * time.Millisecond,
	}
}

// Validate checks that config values are usable.
func (c Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("sendsim: interval must be non-negative, got %v", c.Interval)
	}
	if c.Increment <= 0 {
		return fmt.Errorf("sendsim: increment must be positive, got %d", c.Increment)
	}
	if c.Cap < 0 {
		return fmt.Errorf("sendsim: cap must be non-negative, got %d", c.Cap)
	}
	if c.PauseChance < 0 || c.PauseChance > 1 {
		return fmt.Errorf("sendsim: pause chance must be within [0, 1], got %v", c.PauseChance)
	}
	if c.MinPause < 0 || c.MaxPause < c.MinPause {
		return fmt.Errorf("sendsim: pause range [%v, %v] is invalid", c.MinPause, c.MaxPause)
	}
	return nil
}

// TickInterval returns the effective delay between ticks.
func (c Config) TickInterval() time.Duration {
	if c.Interval <= 0 {
		return DefaultInterval
	}
	return max(c.Interval, MinInterval)
}

// Snapshot is the observable state of a run at one instant.
type Snapshot struct {
	Successful int
	Delayed    int
	Cap        int
	Percent    int
	Elapsed    time.Duration
	Pause      time.Duration // Extra delay before the next tick.
	Running    bool
	Done       bool // Successful reached Cap.
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand sets the random source used for antiban pauses.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) {
		s.rng = r
	}
}

// WithClock sets the time source used by Run.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator is the send state machine. It is safe for concurrent use;
// Stop is typically called from a UI goroutine while Run ticks.
type Simulator struct {
	cfg Config
	rng *rand.Rand
	now func() time.Time

	mu         sync.Mutex
	running    bool
	done       bool
	start      time.Time
	successful int
	stopCh     chan struct{}
}

// New creates a Simulator with the given config.
func New(cfg Config, opts ...Option) *Simulator {
	s := &Simulator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resets counters and begins a run at now.
// It reports false if a run is already in progress.
func (s *Simulator) Start(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.running = true
	s.done = false
	s.start = now
	s.successful = 0
	s.stopCh = make(chan struct{})
	return true
}

// Stop ends the current run. It reports false if nothing was running.
func (s *Simulator) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Simulator) stopLocked() bool {
	if !s.running {
		return false
	}
	s.running = false
	close(s.stopCh)
	return true
}

// Tick advances the successful counter by one increment, clamped to the cap.
// Reaching the cap finishes the run. Ticks outside a run change nothing.
func (s *Simulator) Tick(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return s.snapshotLocked(now)
	}

	s.successful = min(s.cfg.Cap, s.successful+s.cfg.Increment)
	if s.successful >= s.cfg.Cap {
		s.done = true
		s.stopLocked()
	}

	snap := s.snapshotLocked(now)
	if s.running {
		snap.Pause = s.pauseLocked()
	}
	return snap
}

// Snapshot returns the state at now without advancing it.
func (s *Simulator) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *Simulator) snapshotLocked(now time.Time) Snapshot {
	var elapsed time.Duration
	if !s.start.IsZero() {
		elapsed = max(now.Sub(s.start), 0)
	}
	return Snapshot{
		Successful: s.successful,
		Cap:        s.cfg.Cap,
		Percent:    Percent(elapsed, s.cfg.ProgressDuration),
		Elapsed:    elapsed,
		Running:    s.running,
		Done:       s.done,
	}
}

// pauseLocked rolls for an antiban pause.
func (s *Simulator) pauseLocked() time.Duration {
	if !s.cfg.Antiban || s.cfg.PauseChance <= 0 {
		return 0
	}
	if s.randFloat() >= s.cfg.PauseChance {
		return 0
	}
	spread := s.cfg.MaxPause - s.cfg.MinPause
	if spread <= 0 {
		return s.cfg.MinPause
	}
	return s.cfg.MinPause + time.Duration(s.randInt64N(int64(spread)))
}

func (s *Simulator) randFloat() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

func (s *Simulator) randInt64N(n int64) int64 {
	if s.rng != nil {
		return s.rng.Int64N(n)
	}
	return rand.Int64N(n)
}

// Run starts a run and ticks until the cap is reached, Stop is called, or
// ctx is cancelled. report receives the initial state and every tick.
// A run that does not reach the cap returns an error wrapping ErrStopped.
func (s *Simulator) Run(ctx context.Context, report func(Snapshot)) (Snapshot, error) {
	if err := s.cfg.Validate(); err != nil {
		return Snapshot{}, err
	}
	if report == nil {
		report = func(Snapshot) {}
	}
	if !s.Start(s.now()) {
		return s.Snapshot(s.now()), errors.New("sendsim: run already in progress")
	}

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	report(s.Snapshot(s.now()))

	interval := s.cfg.TickInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			snap := s.Snapshot(s.now())
			report(snap)
			return snap, fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
		case <-stopCh:
			snap := s.Snapshot(s.now())
			if snap.Done {
				return snap, nil
			}
			report(snap)
			return snap, ErrStopped
		case <-timer.C:
			snap := s.Tick(s.now())
			report(snap)
			if snap.Done {
				return snap, nil
			}
			if !snap.Running {
				return snap, ErrStopped
			}
			timer.Reset(interval + snap.Pause)
		}
	}
}

// Percent converts elapsed time into a 0–100 progress value.
func Percent(elapsed, total time.Duration) int {
	if total <= 0 {
		return 100
	}
	pct := int(math.Round(float64(elapsed) / float64(total) * 100))
	return min(max(pct, 0), 100)
}

// FormatElapsed renders d as zero-padded "mm:ss".
func FormatElapsed(d time.Duration) string {
	secs := max(int64(d/time.Second), 0)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FormatCount renders n with comma thousands separators.
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return sign + string(out)
}

// Package progress produces a synthetic progress signal while server-side
// context auto-selection runs, since that step has no progress events of its
// own. The value is never persisted anywhere.
package progress

import (
	"sync"
	"time"
)

const (
	DefaultInterval = 350 * time.Millisecond
	DefaultStep     = 0.04
	DefaultCeiling  = 0.90
)

// Simulator advances a monotone value on a fixed timer up to a ceiling below
// 100%. It resets to 0 at turn start and is cleared the instant the first
// real byte arrives: real signal always preempts the simulated one.
type Simulator struct {
	interval time.Duration
	step     float64
	ceiling  float64

	mu      sync.Mutex
	value   float64
	active  bool
	stop    chan struct{}
	updates chan float64
}

func New(interval time.Duration, step, ceiling float64) *Simulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if step <= 0 {
		step = DefaultStep
	}
	if ceiling <= 0 || ceiling >= 1 {
		ceiling = DefaultCeiling
	}
	return &Simulator{
		interval: interval,
		step:     step,
		ceiling:  ceiling,
		updates:  make(chan float64, 8),
	}
}

// Start resets the value to 0 and begins ticking. Starting an already
// running simulator restarts it from 0.
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.active {
		close(s.stop)
	}
	s.value = 0
	s.active = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go s.run(stop)
}

func (s *Simulator) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.active {
				s.mu.Unlock()
				return
			}
			next := s.value + s.step
			if next > s.ceiling {
				next = s.ceiling
			}
			s.value = next
			s.mu.Unlock()

			select {
			case s.updates <- next:
			default:
				// Nobody listening; the value is advisory only.
			}
		}
	}
}

// Interrupt clears the simulator, called on the first real byte or when the
// turn ends without one.
func (s *Simulator) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	s.value = 0
	close(s.stop)
}

// Value returns the current synthetic progress in [0, ceiling].
func (s *Simulator) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Active reports whether the simulator is currently ticking.
func (s *Simulator) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Updates emits each advanced value. Best effort: slow consumers miss ticks
// rather than slowing the simulator down.
func (s *Simulator) Updates() <-chan float64 {
	return s.updates
}

// Package engine provides the tick-based simulation loop.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval (default 100ms)

	ReportEvery uint64 // Ticks between OnReport calls; 0 disables
	SaveEvery   uint64 // Ticks between OnSave calls; 0 disables

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportEvery ticks
	OnSave   func(tick uint64) // Every SaveEvery ticks

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: 100 * time.Millisecond,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !e.sleep(100 * time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			if !e.sleep(target - elapsed) {
				break
			}
		} else if !e.sleep(0) {
			break
		}
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// sleep waits for d and reports false if Stop was called meanwhile.
func (e *Engine) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-e.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.stop:
		return false
	case <-t.C:
		return true
	}
}

// Stop halts the simulation loop. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Step advances the simulation by one tick without the loop. Used by
// tests and tooling.
func (e *Engine) Step() {
	e.step()
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.Tick++

	// Every tick: agents, entity sync, field relaxation.
	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	// Periodic progress report.
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}

	// Periodic save.
	if e.SaveEvery > 0 && e.Tick%e.SaveEvery == 0 && e.OnSave != nil {
		e.OnSave(e.Tick)
	}
}

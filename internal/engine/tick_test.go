package engine

import (
	"testing"
	"time"
)

func TestStepCadence(t *testing.T) {
	e := NewEngine()
	e.ReportEvery = 2
	e.SaveEvery = 3

	var ticks, reports, saves int
	e.OnTick = func(uint64) { ticks++ }
	e.OnReport = func(uint64) { reports++ }
	e.OnSave = func(uint64) { saves++ }

	for i := 0; i < 6; i++ {
		e.Step()
	}
	if ticks != 6 || reports != 3 || saves != 2 {
		t.Fatalf("ticks=%d reports=%d saves=%d", ticks, reports, saves)
	}
	if e.Tick != 6 {
		t.Fatalf("tick = %d", e.Tick)
	}
}

func TestRunStops(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	e.OnTick = func(tick uint64) {
		if tick == 5 {
			e.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if e.Tick != 5 {
		t.Fatalf("tick = %d, want 5", e.Tick)
	}
	if e.Running() {
		t.Fatal("engine still reports running")
	}
	e.Stop()
}

func TestPausedEngineStops(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("paused Run did not return after Stop")
	}
	if e.Tick != 0 {
		t.Fatalf("paused engine ticked %d times", e.Tick)
	}
}

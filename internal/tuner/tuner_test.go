package tuner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
)

func TestTriageLevels(t *testing.T) {
	cases := []struct {
		queued []int
		want   string
	}{
		{[]int{0, 0}, LevelHealthy},
		{[]int{3, 10}, LevelWatch},
		{[]int{150, 10}, LevelWarning},
		{[]int{10, 401}, LevelCritical},
	}
	for _, tc := range cases {
		snap := &Snapshot{Status: Status{Budget: 100}}
		for i, q := range tc.queued {
			snap.Kinds = append(snap.Kinds, KindStats{Kind: []string{"ore", "storage"}[i], Queued: q})
		}
		h := Triage(snap)
		if h.Level != tc.want {
			t.Errorf("queued %v: level %s, want %s", tc.queued, h.Level, tc.want)
		}
	}

	h := Triage(&Snapshot{Status: Status{Budget: 100}, Kinds: []KindStats{{Kind: "ore", Queued: 5}, {Kind: "storage", Queued: 9}}})
	if h.WorstKind != "storage" || h.TotalQueued != 14 {
		t.Fatalf("health = %+v", h)
	}
}

func TestDecide(t *testing.T) {
	b := Bounds{Min: 100, Max: 1000}

	d := Decide(&Health{Budget: 400, Level: LevelCritical, MaxQueued: 2000}, &CycleMemory{}, b)
	if d.Action != "raise" || d.Budget != 800 {
		t.Fatalf("critical: %+v", d)
	}
	d = Decide(&Health{Budget: 800, Level: LevelCritical}, &CycleMemory{}, b)
	if d.Budget != 1000 {
		t.Fatalf("raise should clamp to max: %+v", d)
	}

	// A fresh warning waits a cycle; a repeated one raises by half.
	d = Decide(&Health{Budget: 200, Level: LevelWarning}, &CycleMemory{}, b)
	if d.Action != "none" {
		t.Fatalf("first warning: %+v", d)
	}
	mem := &CycleMemory{Records: []CycleRecord{{Level: LevelWarning}}}
	d = Decide(&Health{Budget: 200, Level: LevelWarning}, mem, b)
	if d.Action != "raise" || d.Budget != 300 {
		t.Fatalf("persistent warning: %+v", d)
	}

	mem = &CycleMemory{Records: []CycleRecord{{Level: LevelWatch}, {Level: LevelHealthy}}}
	d = Decide(&Health{Budget: 400, Level: LevelHealthy}, mem, b)
	if d.Action != "none" {
		t.Fatalf("short quiet spell: %+v", d)
	}
	mem.Record(CycleRecord{Level: LevelHealthy})
	d = Decide(&Health{Budget: 400, Level: LevelHealthy}, mem, b)
	if d.Action != "lower" || d.Budget != 300 {
		t.Fatalf("long quiet spell: %+v", d)
	}
	d = Decide(&Health{Budget: 110, Level: LevelHealthy}, mem, b)
	if d.Budget != 100 {
		t.Fatalf("lower should clamp to min: %+v", d)
	}
}

func TestMemoryRingAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	mem := LoadMemory(path)
	for i := 0; i < maxRecords+5; i++ {
		mem.Record(CycleRecord{Tick: uint64(i), Level: LevelHealthy})
	}
	if len(mem.Records) != maxRecords || mem.Records[0].Tick != 5 {
		t.Fatalf("ring = %d records starting at %d", len(mem.Records), mem.Records[0].Tick)
	}
	mem.Save()

	again := LoadMemory(path)
	if len(again.Records) != maxRecords || again.Records[maxRecords-1].Tick != maxRecords+4 {
		t.Fatalf("reloaded %d records", len(again.Records))
	}
	if !again.Last(3, LevelHealthy) || again.Last(maxRecords+1, LevelHealthy) {
		t.Fatal("Last over reloaded records")
	}
}

// fakeAPI serves status and kinds and records budget posts.
type fakeAPI struct {
	mu     sync.Mutex
	budget int
	queued int
	posts  []int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"name": "flowgrid", "tick": 42, "budget": f.budget})
	})
	mux.HandleFunc("/api/v1/kinds", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode([]map[string]any{
			{"kind": "harvestable", "queued": f.queued},
			{"kind": "storage", "queued": 0},
		})
	})
	mux.HandleFunc("/api/v1/budget", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Budget int `json:"budget"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode budget: %v", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.budget = req.Budget
		f.posts = append(f.posts, req.Budget)
		json.NewEncoder(w).Encode(map[string]int{"budget": f.budget})
	})
	return mux
}

func (f *fakeAPI) state() (budget int, posts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budget, len(f.posts)
}

func (f *fakeAPI) setQueued(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = n
}

func TestRunCycleRaisesBudget(t *testing.T) {
	api := &fakeAPI{budget: 500, queued: 5000}
	ts := httptest.NewServer(api.handler(t))
	defer ts.Close()

	tu := &Tuner{
		Observer: NewObserver(ts.URL),
		Actor:    NewActor(ts.URL, "key"),
		Memory:   LoadMemory(""),
		Bounds:   DefaultBounds(),
	}
	rec, err := tu.RunCycle()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != "raise" || rec.Budget != 1000 || rec.Tick != 42 || rec.WorstKind != "harvestable" {
		t.Fatalf("record = %+v", rec)
	}
	if budget, posts := api.state(); posts != 1 || budget != 1000 {
		t.Fatalf("budget %d after %d posts", budget, posts)
	}

	// Drained fields leave the budget alone until the quiet spell is long enough.
	api.setQueued(0)
	for i := 0; i < quietCycles-1; i++ {
		if _, err := tu.RunCycle(); err != nil {
			t.Fatal(err)
		}
	}
	if _, posts := api.state(); posts != 1 {
		t.Fatalf("lowered too early: %d posts", posts)
	}
	rec, err = tu.RunCycle()
	if err != nil {
		t.Fatal(err)
	}
	if budget, _ := api.state(); rec.Action != "lower" || budget != 750 {
		t.Fatalf("record = %+v, budget %d", rec, budget)
	}
}

func TestRunCycleRejectedBudget(t *testing.T) {
	api := &fakeAPI{budget: 500, queued: 5000}
	ts := httptest.NewServer(api.handler(t))
	defer ts.Close()

	tu := &Tuner{
		Observer: NewObserver(ts.URL),
		Actor:    NewActor(ts.URL, "wrong"),
		Memory:   LoadMemory(""),
		Bounds:   DefaultBounds(),
	}
	rec, err := tu.RunCycle()
	if err == nil {
		t.Fatal("expected an error for a rejected token")
	}
	if rec.Action != "failed" || rec.Budget != 500 || len(tu.Memory.Records) != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestObserveReportsHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	if _, err := NewObserver(ts.URL).Observe(); err == nil {
		t.Fatal("expected error from a missing endpoint")
	}
}

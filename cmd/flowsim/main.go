// Command flowsim runs the flowgrid colony: harvesters routed by
// incrementally maintained distance fields over a chunked world.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/flowgrid/internal/api"
	"github.com/talgya/flowgrid/internal/config"
	"github.com/talgya/flowgrid/internal/engine"
	"github.com/talgya/flowgrid/internal/pathfind"
	"github.com/talgya/flowgrid/internal/persistence"
	"github.com/talgya/flowgrid/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	fresh := flag.Bool("fresh", false, "ignore saved state and generate a new world")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	slog.Info("flowgrid: incremental flow-field colony",
		"seed", cfg.Seed,
		"budget", cfg.RelaxBudget,
		"max_distance", cfg.MaxDistance,
		"parallel", cfg.Parallel,
	)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath, "run_id", db.RunID)

	// ── Simulation ────────────────────────────────────────────────────
	opts := engine.DefaultOptions()
	opts.Gen.Seed = cfg.Seed
	opts.Fields = pathfind.Options{Budget: cfg.RelaxBudget, MaxDistance: uint32(cfg.MaxDistance)}
	opts.Parallel = cfg.Parallel
	opts.ShipEvery = cfg.ShipEvery
	opts.MaxChunks = cfg.MaxChunks
	sim := engine.NewSimulation(opts)

	var startTick uint64
	if db.HasWorldState() && !*fresh {
		slog.Info("found saved world state, loading...")
		startTick, err = db.LoadWorldState(sim)
		if err != nil {
			slog.Error("failed to load world state", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("generating new world...")
		n := sim.GenerateAround(world.Cell{}, cfg.WorldRadiusChunks)
		for _, st := range cfg.Storages {
			sim.AddStorage(world.Cell{X: st.X, Y: st.Y}, world.Size{W: st.W, H: st.H}, st.Capacity)
		}
		sim.SpawnAgents(cfg.Agents, cfg.AgentCapacity)
		logTerrain(sim)
		slog.Info("world generated", "chunks", n, "entities", humanize.Comma(int64(sim.Snapshot().Entities)))

		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.Interval = cfg.TickInterval
	eng.SetSpeed(cfg.Speed)
	eng.ReportEvery = cfg.ReportEvery
	eng.SaveEvery = cfg.SaveEvery

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.OnTick = func(tick uint64) {
		if err := sim.Step(ctx, tick); err != nil {
			slog.Error("tick failed", "tick", tick, "error", err)
		}
	}
	eng.OnReport = func(tick uint64) { report(sim, tick) }
	eng.OnSave = func(tick uint64) {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("periodic save failed", "error", err)
		}
	}

	// ── Live config ───────────────────────────────────────────────────
	if *configPath != "" {
		watcher, err := config.Watch(*configPath, func(next config.Config) {
			eng.SetSpeed(next.Speed)
			sim.SetBudget(next.RelaxBudget)
			sim.SetParallel(next.Parallel)
			slog.SetDefault(next.NewLogger())
			slog.Info("config reloaded", "speed", next.Speed, "budget", next.RelaxBudget, "parallel", next.Parallel)
		})
		if err != nil {
			slog.Warn("config hot reload unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("FLOWGRID_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()
	defer apiServer.Close()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	st := sim.Snapshot()
	fmt.Printf("\nflowgrid is running: %d agents, %s entities over %d chunks.\n",
		st.Agents, humanize.Comma(int64(st.Entities)), st.Chunks)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %s\n", humanize.Comma(int64(startTick)))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}

// report logs colony progress and per-kind field health.
func report(sim *engine.Simulation, tick uint64) {
	st := sim.Snapshot()
	slog.Info("colony report",
		"tick", humanize.Comma(int64(tick)),
		"agents", st.Agents,
		"idle", st.Idle,
		"harvested", humanize.Comma(int64(st.Harvested)),
		"delivered", humanize.Comma(int64(st.Delivered)),
		"shipped", humanize.Comma(int64(st.Shipped)),
		"stored", st.Stored,
		"ore_left", humanize.Comma(int64(st.OreLeft)),
		"open_stores", st.OpenStores,
		"chunks", st.Chunks,
	)
	for _, ks := range sim.KindStats() {
		slog.Info("field",
			"kind", ks.Kind,
			"cells", humanize.Comma(int64(ks.FieldSize)),
			"queued", humanize.Comma(int64(ks.Queued)),
			"footprints", ks.Tracked,
			"popped", ks.Popped,
			"changed", ks.Changed,
		)
	}
	for _, e := range sim.RecentEvents(5) {
		slog.Debug("event", "tick", e.Tick, "category", e.Category, "description", e.Description)
	}
}

// logTerrain logs what the generator placed in the initial chunks.
func logTerrain(sim *engine.Simulation) {
	counts := make(map[string]int)
	for _, e := range sim.EntityList() {
		counts[e.Label]++
	}
	for label, n := range counts {
		slog.Info("terrain", "type", label, "count", humanize.Comma(int64(n)))
	}
}

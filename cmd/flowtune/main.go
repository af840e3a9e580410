// Command flowtune runs the relaxation budget steward for flowgrid.
// It observes field backlog, decides on a new per-tick budget, and
// applies it via the admin budget API.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/flowgrid/internal/tuner"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("FLOWGRID_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("FLOWGRID_ADMIN_KEY")
	intervalSec := envIntOrDefault("FLOWTUNE_INTERVAL", 30)
	bounds := tuner.DefaultBounds()
	bounds.Min = envIntOrDefault("FLOWTUNE_MIN_BUDGET", bounds.Min)
	bounds.Max = envIntOrDefault("FLOWTUNE_MAX_BUDGET", bounds.Max)
	memoryPath := envOrDefault("FLOWTUNE_MEMORY", "flowtune_memory.json")

	if adminKey == "" {
		slog.Error("FLOWGRID_ADMIN_KEY is required")
		os.Exit(1)
	}
	if bounds.Min < 1 || bounds.Max < bounds.Min {
		slog.Error("invalid budget bounds", "min", bounds.Min, "max", bounds.Max)
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("flowtune starting",
		"api_url", apiURL,
		"interval", interval,
		"min_budget", bounds.Min,
		"max_budget", bounds.Max,
	)

	t := &tuner.Tuner{
		Observer: tuner.NewObserver(apiURL),
		Actor:    tuner.NewActor(apiURL, adminKey),
		Memory:   tuner.LoadMemory(memoryPath),
		Bounds:   bounds,
	}

	slog.Info("waiting for flowsim API...")
	waitForAPI(apiURL)

	runCycle(t)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(t)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("flowtune stopped.")
			return
		}
	}
}

func runCycle(t *tuner.Tuner) {
	rec, err := t.RunCycle()
	if err != nil {
		slog.Error("tuner cycle failed", "error", err)
		return
	}
	if rec.Action != "none" {
		slog.Info("budget changed", "action", rec.Action, "budget", rec.Budget)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("flowsim API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("flowsim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("flowsim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

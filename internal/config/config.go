// Package config loads the flowsim settings file.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Storage places one storage building at startup.
type Storage struct {
	X        int `yaml:"x" json:"x"`
	Y        int `yaml:"y" json:"y"`
	W        int `yaml:"w" json:"w"`
	H        int `yaml:"h" json:"h"`
	Capacity int `yaml:"capacity" json:"capacity"`
}

func (s *Storage) applyDefaults() {
	if s.W == 0 {
		s.W = 2
	}
	if s.H == 0 {
		s.H = 2
	}
	if s.Capacity == 0 {
		s.Capacity = 200
	}
}

// Config holds every tunable of the simulation.
type Config struct {
	Seed   int64  `yaml:"seed"`
	DBPath string `yaml:"db_path"`

	APIPort      int           `yaml:"api_port"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Speed        float64       `yaml:"speed"`

	// Pathfinding.
	RelaxBudget int  `yaml:"relax_budget"`
	MaxDistance int  `yaml:"max_distance"`
	Parallel    bool `yaml:"parallel"`

	// World and colony.
	WorldRadiusChunks int       `yaml:"world_radius_chunks"`
	Agents            int       `yaml:"agents"`
	AgentCapacity     int       `yaml:"agent_capacity"`
	Storages          []Storage `yaml:"storages"`
	ShipEvery         uint64    `yaml:"ship_every"` // ticks between storage shipments; 0 disables
	MaxChunks         int       `yaml:"max_chunks"` // cap on chunks generated as agents explore

	ReportEvery uint64 `yaml:"report_every"` // ticks between progress reports
	SaveEvery   uint64 `yaml:"save_every"`   // ticks between saves; 0 disables periodic saves

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// AdminKey guards POST endpoints. Read from FLOWGRID_ADMIN_KEY, never the file.
	AdminKey string `yaml:"-"`
}

// Default returns a small colony that runs out of the box.
func Default() Config {
	return Config{
		Seed:              42,
		DBPath:            "data/flowgrid.db",
		APIPort:           8080,
		TickInterval:      100 * time.Millisecond,
		Speed:             1,
		RelaxBudget:       1000,
		MaxDistance:       1000,
		Parallel:          true,
		WorldRadiusChunks: 1,
		Agents:            40,
		AgentCapacity:     5,
		Storages: []Storage{
			{X: 30, Y: 30, W: 2, H: 2, Capacity: 200},
			{X: -34, Y: 20, W: 2, H: 2, Capacity: 200},
		},
		ShipEvery:   300,
		MaxChunks:   64,
		ReportEvery: 100,
		SaveEvery:   600,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads path over the defaults, validates the result and applies
// environment overrides. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := validateDocument(raw); err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		for i := range cfg.Storages {
			cfg.Storages[i].applyDefaults()
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.AdminKey = os.Getenv("FLOWGRID_ADMIN_KEY")
	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalid)
	}
	for i, s := range c.Storages {
		if s.W <= 0 || s.H <= 0 {
			return fmt.Errorf("%w: storages[%d] has empty size", ErrInvalid, i)
		}
	}
	return nil
}

// Level maps LogLevel onto slog.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

var schema = jsonschema.MustCompileString("flowgrid-config.schema.json", schemaJSON)

// validateDocument checks the raw YAML document against the embedded JSON
// schema. YAML is round-tripped through JSON so numbers and maps take the
// shapes the validator expects.
func validateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/flowgrid/internal/agents"
	"github.com/talgya/flowgrid/internal/engine"
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// maxRestoredEvents is how much of the event history is reloaded on start.
const maxRestoredEvents = 200

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB

	// RunID tags field snapshots written by this process.
	RunID string

	saveMu      sync.Mutex
	eventsSaved uint64 // highest event tick already written
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, RunID: uuid.NewString()}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY,
		label TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		w INTEGER NOT NULL,
		h INTEGER NOT NULL,
		blocking INTEGER NOT NULL,
		goals_json TEXT NOT NULL,
		amount INTEGER NOT NULL,
		capacity INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		task INTEGER NOT NULL,
		carrying INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		harvested INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		idle_ticks INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		cx INTEGER NOT NULL,
		cy INTEGER NOT NULL,
		PRIMARY KEY (cx, cy)
	);

	CREATE TABLE IF NOT EXISTS field_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		cells INTEGER NOT NULL,
		entries BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_snapshots_kind ON field_snapshots(kind, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type entityRow struct {
	ID        uint64 `db:"id"`
	Label     string `db:"label"`
	PosX      int    `db:"pos_x"`
	PosY      int    `db:"pos_y"`
	W         int    `db:"w"`
	H         int    `db:"h"`
	Blocking  bool   `db:"blocking"`
	GoalsJSON string `db:"goals_json"`
	Amount    int    `db:"amount"`
	Capacity  int    `db:"capacity"`
}

// SaveEntities writes all entities to the database (full replace).
func (db *DB) SaveEntities(list []entity.Entity) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO entities
		(id, label, pos_x, pos_y, w, h, blocking, goals_json, amount, capacity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range list {
		goals := e.Goals
		if goals == nil {
			goals = []entity.Kind{}
		}
		goalsJSON, _ := json.Marshal(goals)
		size := e.Size.OrUnit()

		_, err := stmt.Exec(
			e.ID, e.Label, e.Pos.X, e.Pos.Y, size.W, size.H,
			e.Blocking, string(goalsJSON), e.Amount, e.Capacity,
		)
		if err != nil {
			return fmt.Errorf("insert entity %d: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// LoadEntities reads every saved entity ordered by ID.
func (db *DB) LoadEntities() ([]entity.Entity, error) {
	var rows []entityRow
	if err := db.conn.Select(&rows, "SELECT * FROM entities ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]entity.Entity, 0, len(rows))
	for _, r := range rows {
		var goals []entity.Kind
		if err := json.Unmarshal([]byte(r.GoalsJSON), &goals); err != nil {
			return nil, fmt.Errorf("entity %d goals: %w", r.ID, err)
		}
		if len(goals) == 0 {
			goals = nil
		}
		out = append(out, entity.Entity{
			ID:       entity.ID(r.ID),
			Label:    r.Label,
			Pos:      world.Cell{X: r.PosX, Y: r.PosY},
			Size:     world.Size{W: r.W, H: r.H},
			Blocking: r.Blocking,
			Goals:    goals,
			Amount:   r.Amount,
			Capacity: r.Capacity,
		})
	}
	return out, nil
}

type agentRow struct {
	ID        uint64 `db:"id"`
	Name      string `db:"name"`
	PosX      int    `db:"pos_x"`
	PosY      int    `db:"pos_y"`
	Task      uint8  `db:"task"`
	Carrying  int    `db:"carrying"`
	Capacity  int    `db:"capacity"`
	Harvested uint64 `db:"harvested"`
	Delivered uint64 `db:"delivered"`
	Steps     uint64 `db:"steps"`
	IdleTicks uint64 `db:"idle_ticks"`
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(list []agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	for _, a := range list {
		_, err := tx.NamedExec(`INSERT INTO agents
			(id, name, pos_x, pos_y, task, carrying, capacity, harvested, delivered, steps, idle_ticks)
			VALUES (:id, :name, :pos_x, :pos_y, :task, :carrying, :capacity, :harvested, :delivered, :steps, :idle_ticks)`,
			agentRow{
				ID: uint64(a.ID), Name: a.Name, PosX: a.Position.X, PosY: a.Position.Y,
				Task: uint8(a.Task), Carrying: a.Carrying, Capacity: a.Capacity,
				Harvested: a.Harvested, Delivered: a.Delivered, Steps: a.Steps, IdleTicks: a.IdleTicks,
			})
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// LoadAgents reads every saved agent ordered by ID.
func (db *DB) LoadAgents() ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, &agents.Agent{
			ID:        agents.AgentID(r.ID),
			Name:      r.Name,
			Position:  world.Cell{X: r.PosX, Y: r.PosY},
			Task:      agents.Task(r.Task),
			Carrying:  r.Carrying,
			Capacity:  r.Capacity,
			Harvested: r.Harvested,
			Delivered: r.Delivered,
			Steps:     r.Steps,
			IdleTicks: r.IdleTicks,
		})
	}
	return out, nil
}

// SaveChunks records the generated chunk coordinates (full replace).
func (db *DB) SaveChunks(coords []world.ChunkCoord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return err
	}
	for _, cc := range coords {
		if _, err := tx.Exec("INSERT INTO chunks (cx, cy) VALUES (?, ?)", cc.X, cc.Y); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadChunks returns the saved chunk coordinates.
func (db *DB) LoadChunks() ([]world.ChunkCoord, error) {
	var coords []world.ChunkCoord
	err := db.conn.Select(&coords, "SELECT cx AS x, cy AS y FROM chunks ORDER BY cy, cx")
	return coords, err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, oldest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	slices.Reverse(events)
	return events, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// HasWorldState reports whether a previous run saved a world.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta("last_tick")
	return err == nil
}

// SaveWorldState performs a full save of all world state.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	db.saveMu.Lock()
	defer db.saveMu.Unlock()

	tick := sim.CurrentTick()
	entities := sim.EntityList()
	crew := sim.AgentList()
	slog.Info("saving world state", "tick", tick, "entities", len(entities), "agents", len(crew))

	if err := db.SaveEntities(entities); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	if err := db.SaveAgents(crew); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveChunks(sim.ChunkList()); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	var fresh []engine.Event
	for _, e := range sim.RecentEvents(1 << 30) {
		if e.Tick > db.eventsSaved {
			fresh = append(fresh, e)
		}
	}
	if err := db.SaveEvents(fresh); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if len(fresh) > 0 {
		db.eventsSaved = fresh[len(fresh)-1].Tick
	}

	for _, snap := range sim.FieldSnapshots() {
		if err := db.SaveField(snap, tick); err != nil {
			return fmt.Errorf("save field %s: %w", snap.Kind, err)
		}
	}

	if err := db.SaveMeta("seed", strconv.FormatInt(sim.Seed(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved", "run_id", db.RunID)
	return nil
}

// LoadWorldState restores a saved world into sim and returns the tick it
// was saved at. Fields without a snapshot are rebuilt from scratch.
func (db *DB) LoadWorldState(sim *engine.Simulation) (uint64, error) {
	tickStr, err := db.GetMeta("last_tick")
	if err != nil {
		return 0, fmt.Errorf("read last tick: %w", err)
	}
	tick, err := strconv.ParseUint(tickStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse last tick %q: %w", tickStr, err)
	}

	chunks, err := db.LoadChunks()
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	entities, err := db.LoadEntities()
	if err != nil {
		return 0, fmt.Errorf("load entities: %w", err)
	}
	crew, err := db.LoadAgents()
	if err != nil {
		return 0, fmt.Errorf("load agents: %w", err)
	}

	sim.MarkGenerated(chunks)
	sim.RestoreEntities(entities)
	sim.RestoreAgents(crew)

	events, err := db.RecentEvents(maxRestoredEvents)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	sim.RestoreEvents(events)

	for _, kind := range sim.Kinds() {
		snap, err := db.LoadField(kind)
		if errors.Is(err, ErrNoSnapshot) {
			slog.Warn("no field snapshot, rebuilding", "kind", kind)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load field %s: %w", kind, err)
		}
		sim.RestoreField(snap)
	}

	sim.SetLastTick(tick)
	db.eventsSaved = tick
	slog.Info("world state restored",
		"tick", tick,
		"chunks", len(chunks),
		"entities", len(entities),
		"agents", len(crew),
	)
	return tick, nil
}

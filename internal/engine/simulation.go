// Simulation ties together all world systems and runs them each tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/flowgrid/internal/agents"
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/pathfind"
	"github.com/talgya/flowgrid/internal/spatial"
	"github.com/talgya/flowgrid/internal/world"
)

// Entity labels spawned by the simulation.
const (
	LabelRock    = "rock"
	LabelWater   = "water"
	LabelOre     = "ore"
	LabelStorage = "storage"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Options configures a new Simulation.
type Options struct {
	Gen       world.GenConfig
	Fields    pathfind.Options
	Parallel  bool
	ShipEvery uint64 // Ticks between storage shipments; 0 disables
	MaxChunks int    // Exploration cap; 0 = unlimited
	// GrowMargin is how close an agent may get to ungenerated ground
	// before the neighboring chunk is generated.
	GrowMargin int
}

// DefaultOptions returns a small colony setup.
func DefaultOptions() Options {
	return Options{
		Gen:        world.DefaultGenConfig(),
		Fields:     pathfind.DefaultOptions(),
		Parallel:   true,
		ShipEvery:  300,
		MaxChunks:  64,
		GrowMargin: 16,
	}
}

// Simulation holds the complete world state and wires systems together.
//
// Step takes the write lock; every exported query takes the read lock, so
// API handlers never observe a half-applied tick.
type Simulation struct {
	mu sync.RWMutex

	Chunks  *world.Chunks
	Gen     *world.Generator
	Store   *entity.Store
	Index   *spatial.Index
	Fields  *pathfind.Registry
	Agents  []*agents.Agent
	Spawner *agents.Spawner

	Events   []Event // Recent events, oldest first
	LastTick uint64  // Most recent tick processed
	Stats    SimStats

	opts Options
	rng  *rand.Rand

	subsMu  sync.Mutex
	subs    map[int]chan TickStats
	nextSub int
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "delivery", "shipment", "depleted", "chunk"
}

// SimStats tracks aggregate colony statistics.
type SimStats struct {
	Agents     int    `json:"agents"`
	Carrying   int    `json:"carrying"`
	Idle       int    `json:"idle"` // agents without a route this tick
	Harvested  uint64 `json:"harvested"`
	Delivered  uint64 `json:"delivered"`
	Stored     int    `json:"stored"`
	Shipped    uint64 `json:"shipped"`
	OreLeft    int    `json:"ore_left"`
	Depleted   int    `json:"depleted"`
	Entities   int    `json:"entities"`
	Chunks     int    `json:"chunks"`
	OpenStores int    `json:"open_stores"` // storages with free space
}

// TickStats is published to subscribers after every tick.
type TickStats struct {
	Tick    uint64           `json:"tick"`
	Elapsed time.Duration    `json:"elapsed_ns"`
	Colony  SimStats         `json:"colony"`
	Kinds   []pathfind.Stats `json:"kinds"`
}

// NewSimulation creates an empty simulation with the colony goal kinds
// registered. Call GenerateAround, AddStorage and SpawnAgents (or restore
// saved state) before stepping.
func NewSimulation(opts Options) *Simulation {
	gen := world.NewGenerator(opts.Gen)
	opts.Gen.Seed = gen.Seed()

	s := &Simulation{
		Chunks:  world.NewChunks(),
		Gen:     gen,
		Store:   entity.NewStore(),
		Index:   spatial.NewIndex(),
		Spawner: agents.NewSpawner(gen.Seed()),
		opts:    opts,
		rng:     rand.New(rand.NewSource(gen.Seed() + 500)),
		subs:    make(map[int]chan TickStats),
	}
	s.Fields = pathfind.NewRegistry(pathfind.Env{
		Occupancy: s.Index,
		Regions:   s.Chunks,
		Entities:  s.Store,
	}, opts.Fields)
	s.Fields.SetParallel(opts.Parallel)
	s.Fields.Register(agents.KindHarvestable)
	s.Fields.Register(agents.KindStorage)
	return s
}

// Seed returns the effective world seed.
func (s *Simulation) Seed() int64 {
	return s.Gen.Seed()
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// GenerateAround generates every chunk within radius chunks of center and
// returns how many were new.
func (s *Simulation) GenerateAround(center world.Cell, radius int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cc := range world.Around(center, radius) {
		if s.generateChunk(cc) {
			n++
		}
	}
	return n
}

// generateChunk materializes cc: spawns its terrain entities and queues
// its border in every field so existing distances flow in.
func (s *Simulation) generateChunk(cc world.ChunkCoord) bool {
	if !s.Chunks.Ensure(cc) {
		return false
	}
	features := s.Gen.Chunk(cc)
	for _, f := range features {
		s.Store.Spawn(featureEntity(f))
	}
	s.Fields.InvalidateRect(cc.Rect())
	slog.Debug("chunk generated", "chunk", cc, "features", len(features))
	return true
}

func featureEntity(f world.Feature) entity.Entity {
	e := entity.Entity{Pos: f.Pos, Size: world.UnitSize}
	switch f.Terrain {
	case world.TerrainRock:
		e.Label, e.Blocking = LabelRock, true
	case world.TerrainWater:
		e.Label, e.Blocking = LabelWater, true
	case world.TerrainOre:
		e.Label = LabelOre
		e.Goals = []entity.Kind{agents.KindHarvestable}
		e.Amount = f.Yield
	}
	return e
}

// MarkGenerated records chunks as generated without spawning their content.
// Used when the content comes from saved state.
func (s *Simulation) MarkGenerated(coords []world.ChunkCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cc := range coords {
		s.Chunks.Ensure(cc)
	}
}

// AddStorage places a blocking storage building that accepts deliveries
// while it has free space.
func (s *Simulation) AddStorage(pos world.Cell, size world.Size, capacity int) entity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.Store.Spawn(entity.Entity{
		Label:    LabelStorage,
		Pos:      pos,
		Size:     size,
		Blocking: true,
		Goals:    []entity.Kind{agents.KindStorage},
		Capacity: capacity,
	})
	slog.Info("storage placed", "id", id, "pos", pos, "size", fmt.Sprintf("%dx%d", size.W, size.H), "capacity", capacity)
	return id
}

// SpawnAgents adds count workers on open cells near the origin.
func (s *Simulation) SpawnAgents(count, capacity int) []*agents.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Index.Sync(s.Store)
	crew := s.Spawner.SpawnCrew(count, world.Cell{}, max(s.opts.Gen.ClearRadius, 1), capacity, s.spawnable)
	s.Agents = append(s.Agents, crew...)
	s.updateStats()
	return crew
}

// RestoreEntities inserts saved entities with their original IDs.
func (s *Simulation) RestoreEntities(list []entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range list {
		s.Store.Spawn(e)
	}
}

// RestoreAgents replaces the crew and advances the spawner past their IDs.
func (s *Simulation) RestoreAgents(list []*agents.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Agents = list
	var maxID agents.AgentID
	for _, a := range list {
		maxID = max(maxID, a.ID)
	}
	s.Spawner.SetNextID(maxID + 1)
	s.updateStats()
}

// RestoreEvents replaces the event log with saved events, oldest first.
func (s *Simulation) RestoreEvents(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events[:0], events...)
}

// RestoreField warm-starts the field for snap.Kind.
func (s *Simulation) RestoreField(snap pathfind.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields.Register(snap.Kind).Restore(snap)
}

// FieldSnapshots captures every field for persistence.
func (s *Simulation) FieldSnapshots() []pathfind.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pathfind.Snapshot
	for _, kind := range s.Fields.Kinds() {
		p, _ := s.Fields.Pipeline(kind)
		out = append(out, p.Snapshot())
	}
	return out
}

// walkable reports whether an agent may stand on c.
func (s *Simulation) walkable(c world.Cell) bool {
	if !s.Chunks.IsGenerated(c) {
		return false
	}
	for _, id := range s.Index.EntitiesAt(c) {
		if s.Store.IsBlocking(id) {
			return false
		}
	}
	return true
}

// spawnable reports whether a new agent may start on c: walkable and not
// on a goal, so nobody starts out standing on ore.
func (s *Simulation) spawnable(c world.Cell) bool {
	if !s.walkable(c) {
		return false
	}
	for _, id := range s.Index.EntitiesAt(c) {
		if e, ok := s.Store.Get(id); ok && len(e.Goals) > 0 {
			return false
		}
	}
	return true
}

// Step runs one tick: agents act on the fields from the previous tick,
// their mutations are synced into the spatial index, every field relaxes
// within its budget, and the change set is cleared.
func (s *Simulation) Step(ctx context.Context, tick uint64) error {
	start := time.Now()

	s.mu.Lock()
	s.LastTick = tick

	nav := fieldNav{s.Fields}
	site := colonySite{s}
	idle := 0
	for _, a := range s.Agents {
		action := agents.Decide(a, nav, s.rng)
		if action.Kind == agents.ActionIdle {
			idle++
		}
		for _, desc := range agents.ApplyAction(a, action, site) {
			s.addEvent(tick, "delivery", desc)
		}
		if action.Kind == agents.ActionMove {
			s.growNear(a.Position)
		}
	}

	if s.opts.ShipEvery > 0 && tick%s.opts.ShipEvery == 0 {
		s.ship(tick)
	}

	s.Index.Sync(s.Store)
	err := s.Fields.Tick(ctx)
	if err == nil {
		// On cancellation the change set is kept; pipelines that already
		// saw it will find their footprints unchanged next tick.
		s.Store.Flush()
	}

	s.updateStats()
	s.Stats.Idle = idle
	out := TickStats{
		Tick:    tick,
		Elapsed: time.Since(start),
		Colony:  s.Stats,
		Kinds:   s.Fields.Stats(),
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	s.publish(out)
	return nil
}

// growNear generates chunks the agent is approaching.
func (s *Simulation) growNear(pos world.Cell) {
	if s.opts.GrowMargin <= 0 {
		return
	}
	for _, d := range world.MoveDirections {
		probe := world.Cell{X: pos.X + d.X*s.opts.GrowMargin, Y: pos.Y + d.Y*s.opts.GrowMargin}
		if s.Chunks.IsGenerated(probe) {
			continue
		}
		if s.opts.MaxChunks > 0 && s.Chunks.Count() >= s.opts.MaxChunks {
			return
		}
		cc := world.ChunkOf(probe)
		if s.generateChunk(cc) {
			s.addEvent(s.LastTick, "chunk", fmt.Sprintf("chunk %d,%d explored", cc.X, cc.Y))
		}
	}
}

// ship empties every storage and reopens it for deliveries.
func (s *Simulation) ship(tick uint64) {
	shipped := 0
	for _, e := range s.Store.All() {
		if e.Label != LabelStorage || e.Amount == 0 {
			continue
		}
		shipped += e.Amount
		s.Store.SetAmount(e.ID, 0)
		s.Store.AddGoal(e.ID, agents.KindStorage)
	}
	if shipped > 0 {
		s.Stats.Shipped += uint64(shipped)
		s.addEvent(tick, "shipment", fmt.Sprintf("shipped %d ore", shipped))
	}
}

func (s *Simulation) addEvent(tick uint64, category, desc string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: desc, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

func (s *Simulation) updateStats() {
	st := SimStats{
		Agents:   len(s.Agents),
		Shipped:  s.Stats.Shipped,
		Depleted: s.Stats.Depleted,
		Entities: s.Store.Len(),
		Chunks:   s.Chunks.Count(),
	}
	for _, a := range s.Agents {
		st.Carrying += a.Carrying
		st.Harvested += a.Harvested
		st.Delivered += a.Delivered
	}
	for _, e := range s.Store.All() {
		switch e.Label {
		case LabelOre:
			st.OreLeft += e.Amount
		case LabelStorage:
			st.Stored += e.Amount
			if e.HasGoal(agents.KindStorage) {
				st.OpenStores++
			}
		}
	}
	s.Stats = st
}

// fieldNav answers agent queries straight from the registry. Only used
// while the simulation lock is held.
type fieldNav struct {
	reg *pathfind.Registry
}

func (n fieldNav) Pathfind(kind entity.Kind, from world.Cell, rng *rand.Rand) (pathfind.Direction, bool) {
	f, ok := n.reg.Field(kind)
	if !ok {
		return pathfind.Direction{}, false
	}
	return f.Pathfind(from, rng)
}

// colonySite applies agent interactions to entities.
type colonySite struct {
	s *Simulation
}

// Harvest takes one unit from the ore at c. Exhausted ore is despawned,
// which removes its goal marker from the harvestable field.
func (cs colonySite) Harvest(c world.Cell) bool {
	s := cs.s
	for _, id := range s.Index.EntitiesAt(c) {
		e, ok := s.Store.Get(id)
		if !ok || !e.HasGoal(agents.KindHarvestable) || e.Amount <= 0 {
			continue
		}
		e.Amount--
		if e.Amount == 0 {
			s.Store.Despawn(id)
			s.Stats.Depleted++
			s.addEvent(s.LastTick, "depleted", fmt.Sprintf("ore at %v exhausted", e.Pos))
		} else {
			s.Store.SetAmount(id, e.Amount)
		}
		return true
	}
	return false
}

// Deposit stores up to n units in the storage covering c. A storage that
// fills up drops its goal marker until the next shipment.
func (cs colonySite) Deposit(c world.Cell, n int) int {
	s := cs.s
	for _, id := range s.Index.EntitiesAt(c) {
		e, ok := s.Store.Get(id)
		if !ok || e.Label != LabelStorage {
			continue
		}
		accepted := min(n, e.Capacity-e.Amount)
		if accepted <= 0 {
			continue
		}
		e.Amount += accepted
		s.Store.SetAmount(id, e.Amount)
		if e.Amount >= e.Capacity {
			s.Store.RemoveGoal(id, agents.KindStorage)
		}
		return accepted
	}
	return 0
}

// Subscribe registers a listener for per-tick stats. Slow listeners miss
// ticks rather than stalling the simulation.
func (s *Simulation) Subscribe() (int, <-chan TickStats) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.nextSub++
	ch := make(chan TickStats, 16)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulation) publish(ts TickStats) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ts:
		default:
		}
	}
}

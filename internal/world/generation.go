// Chunk content generation using layered simplex noise.
// An elevation layer decides rock outcrops and water; a second layer places
// ore deposits on open ground.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Seed        int64   // Random seed (0 = random)
	WaterLevel  float64 // Elevation below which cells are water (0.0–1.0)
	RockLevel   float64 // Elevation above which cells are rock (0.0–1.0)
	OreLevel    float64 // Ore noise above which open cells hold ore (0.0–1.0)
	OreYield    int     // Units in a fresh ore deposit
	ClearRadius int     // Manhattan radius around the origin kept open
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:        0,
		WaterLevel:  0.22,
		RockLevel:   0.74,
		OreLevel:    0.80,
		OreYield:    20,
		ClearRadius: 6,
	}
}

// Terrain is the generated content of one cell.
type Terrain uint8

const (
	TerrainGrass Terrain = iota // Open ground
	TerrainRock                 // Outcrop, blocks movement
	TerrainWater                // Pond, blocks movement
	TerrainOre                  // Harvestable deposit on open ground
)

// Feature is a non-grass cell produced by the generator.
type Feature struct {
	Pos     Cell    `json:"pos"`
	Terrain Terrain `json:"terrain"`
	Yield   int     `json:"yield,omitempty"`
}

// Blocking reports whether the terrain stops movement.
func (t Terrain) Blocking() bool {
	return t == TerrainRock || t == TerrainWater
}

// Generator produces chunk content deterministically from the seed, so a
// chunk regenerated after a restart matches the one saved before it.
type Generator struct {
	cfg       GenConfig
	elevNoise opensimplex.Noise
	oreNoise  opensimplex.Noise
}

// NewGenerator prepares the noise layers for cfg.
func NewGenerator(cfg GenConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	cfg.Seed = seed
	return &Generator{
		cfg:       cfg,
		elevNoise: opensimplex.NewNormalized(seed),
		oreNoise:  opensimplex.NewNormalized(seed + 1),
	}
}

// Seed returns the effective seed.
func (g *Generator) Seed() int64 {
	return g.cfg.Seed
}

// Terrain classifies a single cell.
func (g *Generator) Terrain(c Cell) Terrain {
	if Manhattan(c, Cell{}) <= g.cfg.ClearRadius {
		return TerrainGrass
	}
	x, y := float64(c.X), float64(c.Y)

	// Multi-octave noise for natural-looking outcrops.
	elev := octaveNoise(g.elevNoise, x, y, 4, 0.04, 0.5)
	switch {
	case elev < g.cfg.WaterLevel:
		return TerrainWater
	case elev > g.cfg.RockLevel:
		return TerrainRock
	}
	if octaveNoise(g.oreNoise, x, y, 2, 0.12, 0.5) > g.cfg.OreLevel {
		return TerrainOre
	}
	return TerrainGrass
}

// Chunk returns every feature inside cc in row-major order.
func (g *Generator) Chunk(cc ChunkCoord) []Feature {
	var out []Feature
	cc.Rect().Cells(func(c Cell) {
		t := g.Terrain(c)
		if t == TerrainGrass {
			return
		}
		f := Feature{Pos: c, Terrain: t}
		if t == TerrainOre {
			f.Yield = g.cfg.OreYield
		}
		out = append(out, f)
	})
	return out
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

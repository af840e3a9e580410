package tuner

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
)

const maxRecords = 20

// CycleRecord captures what happened in a single tuner cycle.
type CycleRecord struct {
	Tick      uint64 `json:"tick"`
	Action    string `json:"action"`
	Budget    int    `json:"budget"`
	Queued    int    `json:"queued"`
	Level     string `json:"level"`
	WorstKind string `json:"worst_kind,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent tuner cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not found.
func LoadMemory(path string) *CycleMemory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("tuner memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk. A memory without a path is kept in-process only.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal tuner memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		slog.Error("failed to write tuner memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Last reports whether the n most recent records all had one of levels.
func (m *CycleMemory) Last(n int, levels ...string) bool {
	if n <= 0 {
		return true
	}
	if len(m.Records) < n {
		return false
	}
	for _, r := range m.Records[len(m.Records)-n:] {
		if !slices.Contains(levels, r.Level) {
			return false
		}
	}
	return true
}

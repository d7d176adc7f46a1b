package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pthm-cable/sweepers/components"
)

// HallEntry records a genome that scored well in some generation.
type HallEntry struct {
	Generation int       `json:"generation"`
	Index      int       `json:"index"` // sweeper slot that carried the genome
	Fitness    float64   `json:"fitness"`
	Weights    []float64 `json:"weights"`
}

// HallOfFame keeps the fittest genomes seen across all generations,
// sorted descending by fitness.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall with the given capacity.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 0 {
		maxSize = 0
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Consider offers a scored genome for entry. Returns true if it was added.
// Genomes with zero fitness never enter.
func (hof *HallOfFame) Consider(g components.Genome, generation, index int) bool {
	if hof == nil || hof.maxSize == 0 || g.Fitness <= 0 {
		return false
	}

	entry := HallEntry{
		Generation: generation,
		Index:      index,
		Fitness:    g.Fitness,
		Weights:    append([]float64(nil), g.Weights...),
	}

	// Earlier entries win ties
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})
	if idx >= hof.maxSize {
		return false
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// ConsiderAll offers a whole scored population.
func (hof *HallOfFame) ConsiderAll(pop []components.Genome, generation int) int {
	added := 0
	for i, g := range pop {
		if hof.Consider(g, generation, i) {
			added++
		}
	}
	return added
}

// Best returns the top entry, or false if the hall is empty.
func (hof *HallOfFame) Best() (HallEntry, bool) {
	if hof == nil || len(hof.entries) == 0 {
		return HallEntry{}, false
	}
	return hof.entries[0], true
}

// Entries returns a copy of the hall, fittest first.
func (hof *HallOfFame) Entries() []HallEntry {
	if hof == nil {
		return nil
	}
	return append([]HallEntry(nil), hof.entries...)
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int {
	if hof == nil {
		return 0
	}
	return len(hof.entries)
}

// MarshalJSON serializes the hall as an array, fittest first.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	entries := hof.entries
	if entries == nil {
		entries = []HallEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file. The capacity is the
// larger of maxSize and the number of entries in the file.
func LoadHallOfFameFromFile(path string, maxSize int) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw []HallEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(max(maxSize, len(raw)))
	for _, e := range raw {
		hof.Consider(components.Genome{Weights: e.Weights, Fitness: e.Fitness}, e.Generation, e.Index)
	}
	return hof, nil
}

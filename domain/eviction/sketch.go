package eviction

import "hash/maphash"

// Default Count-Min Sketch shape.
const (
	defaultSketchWidth  = 1024
	defaultSketchDepth  = 4
	defaultSketchDecay  = 10000
	minimumSketchWidth  = 16
	minimumSketchDepth  = 2
)

// countMinSketch estimates per-key touch frequency for TinyLFU admission.
// Every decayInterval additions all counters are halved, so old popularity
// fades instead of pinning entries forever.
type countMinSketch struct {
	width         int
	depth         int
	tables        [][]uint32
	seeds         []maphash.Seed
	ops           int
	decayInterval int
}

func newCountMinSketch(width, depth, decayInterval int) *countMinSketch {
	if width < minimumSketchWidth {
		width = defaultSketchWidth
	}
	if depth < minimumSketchDepth {
		depth = defaultSketchDepth
	}
	if decayInterval <= 0 {
		decayInterval = defaultSketchDecay
	}

	tables := make([][]uint32, depth)
	seeds := make([]maphash.Seed, depth)
	for i := range tables {
		tables[i] = make([]uint32, width)
		seeds[i] = maphash.MakeSeed()
	}
	return &countMinSketch{
		width:         width,
		depth:         depth,
		tables:        tables,
		seeds:         seeds,
		decayInterval: decayInterval,
	}
}

func (s *countMinSketch) index(key string, row int) int {
	return int(maphash.String(s.seeds[row], key) % uint64(s.width))
}

// add performs a conservative increment: only counters at or below the
// current estimate grow, which tightens the over-count bound.
func (s *countMinSketch) add(key string) {
	s.ops++
	est := s.estimate(key)
	for i := range s.tables {
		idx := s.index(key, i)
		if s.tables[i][idx] <= est {
			s.tables[i][idx]++
		}
	}
	if s.ops >= s.decayInterval {
		s.decay()
		s.ops = 0
	}
}

func (s *countMinSketch) estimate(key string) uint32 {
	est := s.tables[0][s.index(key, 0)]
	for i := 1; i < s.depth; i++ {
		if v := s.tables[i][s.index(key, i)]; v < est {
			est = v
		}
	}
	return est
}

func (s *countMinSketch) decay() {
	for _, table := range s.tables {
		for i := range table {
			table[i] >>= 1
		}
	}
}

func (s *countMinSketch) reset() {
	for _, table := range s.tables {
		for i := range table {
			table[i] = 0
		}
	}
	s.ops = 0
}

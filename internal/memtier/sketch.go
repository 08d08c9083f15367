package memtier

import "hash/maphash"

// countMinSketch is a 4-bit counting sketch (d=4 rows) estimating access
// frequency for W-TinyLFU's admission policy, with periodic halving so
// frequency estimates track a recent window instead of accumulating
// forever.
type countMinSketch struct {
	rows    [4][]uint8
	width   uint64
	seeds   [4]maphash.Seed
	added   int
	sampleN int // reset period, 10x the tier capacity per the standard TinyLFU sizing
}

func newCountMinSketch(width int, sampleSize int) *countMinSketch {
	if width <= 0 {
		width = 1
	}
	s := &countMinSketch{width: uint64(width), sampleN: sampleSize}
	for i := range s.rows {
		s.rows[i] = make([]uint8, width)
		s.seeds[i] = maphash.MakeSeed()
	}
	return s
}

func (s *countMinSketch) hash(row int, id string) uint64 {
	var h maphash.Hash
	h.SetSeed(s.seeds[row])
	_, _ = h.WriteString(id)
	return h.Sum64() % s.width
}

// Add records one access of id, saturating each counter at 15 (4 bits).
func (s *countMinSketch) Add(id string) {
	for r := 0; r < 4; r++ {
		idx := s.hash(r, id)
		if s.rows[r][idx] < 15 {
			s.rows[r][idx]++
		}
	}
	s.added++
	if s.sampleN > 0 && s.added >= s.sampleN {
		s.reset()
	}
}

// Estimate returns the minimum counter across all rows, the sketch's
// frequency estimate for id.
func (s *countMinSketch) Estimate(id string) uint8 {
	min := uint8(15)
	for r := 0; r < 4; r++ {
		v := s.rows[r][s.hash(r, id)]
		if v < min {
			min = v
		}
	}
	return min
}

// reset halves every counter, ageing out stale frequency data without a
// full wipe; this keeps the sketch responsive to a shifting workload.
func (s *countMinSketch) reset() {
	for r := 0; r < 4; r++ {
		for i := range s.rows[r] {
			s.rows[r][i] /= 2
		}
	}
	s.added = 0
}

// Package categories implements the soft category model (C6, C7): a
// word<->category membership distribution estimated by EM over a
// category n-gram, plus the token-passing beam segmenter that proposes
// category sequences for a sentence.
package categories

import (
	"math"

	"github.com/kho/word"
)

// Reserved category indices, mirroring the classes package's reserved
// classes: sentence boundary and OOV always map deterministically to
// their own category rather than being learned.
const (
	StartCategory = 0
	UnkCategory   = 1
)

// LPPruneLimit is the natural-log probability floor below which a
// gen/mem entry is dropped rather than stored.
const LPPruneLimit = -50.0

// Model holds gen[w][c] = log p(c|w) and mem[w][c] = log p(w|c) in
// natural-log space, both pruned below LPPruneLimit.
type Model struct {
	NumCategories int
	Gen           []map[int]float64 // Gen[w][c], indexed by word.Id.
	Mem           []map[int]float64 // Mem[w][c], indexed by word.Id.
}

// NewModel allocates an empty Model sized for numWords word ids and
// numCategories categories, with the reserved categories seeded as
// degenerate (probability 1) memberships for bosId, eosId, unkId.
func NewModel(numWords, numCategories int, bosId, eosId, unkId word.Id) *Model {
	m := &Model{
		NumCategories: numCategories,
		Gen:           make([]map[int]float64, numWords),
		Mem:           make([]map[int]float64, numWords),
	}
	seed := func(w word.Id, c int) {
		m.Gen[w] = map[int]float64{c: 0}
		m.Mem[w] = map[int]float64{c: 0}
	}
	seed(bosId, StartCategory)
	seed(eosId, StartCategory)
	seed(unkId, UnkCategory)
	return m
}

// Joint is the EM sufficient statistic: Joint[w][c] is the expected
// (fractional) count of word w generated under category c, accumulated
// across a corpus by Segmenter.Accumulate.
type Joint []map[int]float64

func NewJoint(numWords int) Joint {
	return make(Joint, numWords)
}

func (j Joint) add(w word.Id, c int, weight float64) {
	if j[w] == nil {
		j[w] = make(map[int]float64)
	}
	j[w][c] += weight
}

// EstimateModel derives gen and mem from accumulated fractional joint
// counts: mem[w][c] = log(N[w][c] / Σ_w' N[w'][c]), gen[w][c] =
// log(N[w][c] / Σ_c' N[w][c']). Entries below LPPruneLimit are dropped.
func EstimateModel(numCategories int, joint Joint) *Model {
	catTotal := make([]float64, numCategories)
	for _, row := range joint {
		for c, n := range row {
			catTotal[c] += n
		}
	}

	m := &Model{
		NumCategories: numCategories,
		Gen:           make([]map[int]float64, len(joint)),
		Mem:           make([]map[int]float64, len(joint)),
	}
	for w, row := range joint {
		if len(row) == 0 {
			continue
		}
		var wordTotal float64
		for _, n := range row {
			wordTotal += n
		}
		for c, n := range row {
			if n <= 0 {
				continue
			}
			if lp := math.Log(n / catTotal[c]); lp >= LPPruneLimit {
				if m.Mem[w] == nil {
					m.Mem[w] = make(map[int]float64)
				}
				m.Mem[w][c] = lp
			}
			if lp := math.Log(n / wordTotal); lp >= LPPruneLimit {
				if m.Gen[w] == nil {
					m.Gen[w] = make(map[int]float64)
				}
				m.Gen[w][c] = lp
			}
		}
	}
	return m
}

// logSumExp combines natural-log probabilities without underflow.
func logSumExp(lps ...float64) float64 {
	max := math.Inf(-1)
	for _, lp := range lps {
		if lp > max {
			max = lp
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, lp := range lps {
		sum += math.Exp(lp - max)
	}
	return max + math.Log(sum)
}

// Validate checks that, for every word with a nonzero Gen/Mem row, the
// pruned distribution is still close to normalized. Heavily pruned
// rows (everything below LPPruneLimit) are skipped, since pruning can
// legitimately remove the entire tail.
func (m *Model) Validate() error {
	for w, row := range m.Gen {
		if len(row) == 0 {
			continue
		}
		lps := make([]float64, 0, len(row))
		for _, lp := range row {
			lps = append(lps, lp)
		}
		if total := logSumExp(lps...); math.Abs(total) > 1e-5 {
			return newErr(InvariantViolation, "gen[%d] sums to exp(%.6f), not 1", w, total)
		}
	}
	byCategory := make([][]float64, m.NumCategories)
	for _, row := range m.Mem {
		for c, lp := range row {
			byCategory[c] = append(byCategory[c], lp)
		}
	}
	for c, lps := range byCategory {
		if len(lps) == 0 {
			continue
		}
		if total := logSumExp(lps...); math.Abs(total) > 1e-6 {
			return newErr(InvariantViolation, "mem[*][%d] sums to exp(%.6f), not 1", c, total)
		}
	}
	return nil
}

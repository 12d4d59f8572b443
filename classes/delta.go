package classes

import "github.com/kho/word"

// cellDelta describes a proposed additive change to one ClassBigram
// cell; used by both EvaluateExchange (read-only, sums log-term deltas)
// and DoExchange (mutates the cell by Delta).
type cellDelta struct {
	c1, c2 int
	delta  int64
}

// exchangeCells computes every ClassBigram cell touched by moving w from
// class a to class b, together with its signed count delta, plus the
// unigram count delta for a and b. It does not read or write any mutable
// state beyond what is passed in; this is the one piece of arithmetic
// shared by EvaluateExchange (Δ only) and DoExchange (actual mutation),
// grounded on the four-cross-cell + off-diagonal decomposition in
// SPEC_FULL.md 4.2.
func (s *Store) exchangeCells(w word.Id, a, b int) []cellDelta {
	self := int64(s.Index.Bigram[w][w])
	wcA := int64(s.WCCount[w][a]) // w -> members of a (includes self)
	wcB := int64(s.WCCount[w][b]) // w -> members of b
	cwA := int64(s.CWCount[w][a]) // members of a -> w (includes self)
	cwB := int64(s.CWCount[w][b]) // members of b -> w

	outA := wcA - self // w -> rest of a
	inA := cwA - self  // rest of a -> w
	outB := wcB        // w -> rest of b
	inB := cwB         // rest of b -> w

	cells := []cellDelta{
		{a, a, -(outA + inA + self)},
		{b, b, outB + inB + self},
		{a, b, inA - outB},
		{b, a, outA - inB},
	}

	for c, cnt := range s.WCCount[w] {
		if c == a || c == b {
			continue
		}
		d := int64(cnt)
		cells = append(cells, cellDelta{a, c, -d}, cellDelta{b, c, d})
	}
	for c, cnt := range s.CWCount[w] {
		if c == a || c == b {
			continue
		}
		d := int64(cnt)
		cells = append(cells, cellDelta{c, a, -d}, cellDelta{c, b, d})
	}
	return cells
}

func applyDelta(n uint64, delta int64) uint64 {
	if delta >= 0 {
		return n + uint64(delta)
	}
	return n - uint64(-delta)
}

// EvaluateExchange computes the exact Δ in partition log-likelihood for
// moving w from its current class a to tentative class b, without
// mutating any state. a must equal s.WordClass[w]; a == b or w reserved
// is an InvariantViolation.
func (s *Store) EvaluateExchange(w word.Id, a, b int) (float64, error) {
	if a == b {
		return 0, newErr(InvariantViolation, "evaluate_exchange: equal classes %d", a)
	}
	if s.IsReserved(w) {
		return 0, newErr(InvariantViolation, "evaluate_exchange: word %d is reserved", w)
	}
	if s.WordClass[w] != a {
		return 0, newErr(InvariantViolation, "evaluate_exchange: word %d is not in class %d", w, a)
	}

	wc := s.Index.WordCount[w]
	Na, Nb := s.ClassCount[a], s.ClassCount[b]
	f := func(n uint64) float64 { return -2 * nlogn(n) }
	delta := f(Na-wc) + f(Nb+wc) - f(Na) - f(Nb)

	for _, cd := range s.exchangeCells(w, a, b) {
		old := s.ClassBigram[cd.c1][cd.c2]
		delta += nlogn(applyDelta(old, cd.delta)) - nlogn(old)
	}
	return delta, nil
}

// EvaluateMerge computes the exact Δ in partition log-likelihood for
// merging class b into class a (b is absorbed), without mutating state.
func (s *Store) EvaluateMerge(a, b int) (float64, error) {
	if a == b {
		return 0, newErr(InvariantViolation, "evaluate_merge: equal classes %d", a)
	}
	Na, Nb := s.ClassCount[a], s.ClassCount[b]
	delta := -2*nlogn(Na+Nb) - (-2*nlogn(Na) - 2*nlogn(Nb))

	for c := 0; c < s.NumClasses; c++ {
		if c == a || c == b {
			continue
		}
		oldIA, oldIB := s.ClassBigram[c][a], s.ClassBigram[c][b]
		delta += nlogn(oldIA+oldIB) - nlogn(oldIA) - nlogn(oldIB)
		oldAI, oldBI := s.ClassBigram[a][c], s.ClassBigram[b][c]
		delta += nlogn(oldAI+oldBI) - nlogn(oldAI) - nlogn(oldBI)
	}
	aa, ab, ba, bb := s.ClassBigram[a][a], s.ClassBigram[a][b], s.ClassBigram[b][a], s.ClassBigram[b][b]
	delta += nlogn(aa+ab+ba+bb) - nlogn(aa) - nlogn(ab) - nlogn(ba) - nlogn(bb)
	return delta, nil
}

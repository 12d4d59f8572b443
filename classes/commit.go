package classes

import (
	"math/rand"
	"sort"

	"github.com/kho/word"
)

func bumpMap(m map[int]uint64, k int, delta int64) {
	v := int64(m[k]) + delta
	if v <= 0 {
		delete(m, k)
	} else {
		m[k] = uint64(v)
	}
}

// DoExchange commits the move of w from class a to class b, maintaining
// every derived table in lockstep per SPEC_FULL.md 4.3.
func (s *Store) DoExchange(w word.Id, a, b int) error {
	if a == b {
		return newErr(InvariantViolation, "do_exchange: equal classes %d", a)
	}
	if s.IsReserved(w) {
		return newErr(InvariantViolation, "do_exchange: word %d is reserved", w)
	}
	if s.WordClass[w] != a {
		return newErr(InvariantViolation, "do_exchange: word %d not in class %d", w, a)
	}

	for _, cd := range s.exchangeCells(w, a, b) {
		s.ClassBigram[cd.c1][cd.c2] = applyDelta(s.ClassBigram[cd.c1][cd.c2], cd.delta)
	}

	wc := s.Index.WordCount[w]
	s.ClassCount[a] -= wc
	s.ClassCount[b] += wc

	self := s.Index.Bigram[w][w]
	for w2, cnt := range s.Index.Bigram[w] {
		if w2 == w {
			continue
		}
		bumpMap(s.CWCount[w2], a, -int64(cnt))
		bumpMap(s.CWCount[w2], b, int64(cnt))
	}
	for w1, cnt := range s.Index.RevBigram[w] {
		if w1 == w {
			continue
		}
		bumpMap(s.WCCount[w1], a, -int64(cnt))
		bumpMap(s.WCCount[w1], b, int64(cnt))
	}
	bumpMap(s.CWCount[w], a, -int64(self))
	bumpMap(s.CWCount[w], b, int64(self))
	bumpMap(s.WCCount[w], a, -int64(self))
	bumpMap(s.WCCount[w], b, int64(self))

	delete(s.Classes[a], w)
	s.Classes[b][w] = true
	s.WordClass[w] = b
	return nil
}

// DoMerge commits the merge of class b into class a; b's slot becomes
// empty and reusable by a later split.
func (s *Store) DoMerge(a, b int) error {
	if a == b {
		return newErr(InvariantViolation, "do_merge: equal classes %d", a)
	}
	if len(s.Classes[b]) == 0 {
		return newErr(InvariantViolation, "do_merge: class %d is empty", b)
	}

	for c := 0; c < s.NumClasses; c++ {
		if c == a || c == b {
			continue
		}
		s.ClassBigram[a][c] += s.ClassBigram[b][c]
		s.ClassBigram[c][a] += s.ClassBigram[c][b]
		s.ClassBigram[b][c] = 0
		s.ClassBigram[c][b] = 0
	}
	s.ClassBigram[a][a] += s.ClassBigram[a][b] + s.ClassBigram[b][a] + s.ClassBigram[b][b]
	s.ClassBigram[a][b] = 0
	s.ClassBigram[b][a] = 0
	s.ClassBigram[b][b] = 0

	s.ClassCount[a] += s.ClassCount[b]
	s.ClassCount[b] = 0

	for w := range s.Classes[b] {
		s.WordClass[w] = a
		s.Classes[a][w] = true
	}
	s.Classes[b] = make(map[word.Id]bool)

	for w := range s.CWCount {
		if v, ok := s.CWCount[w][b]; ok {
			s.CWCount[w][a] += v
			delete(s.CWCount[w], b)
		}
		if v, ok := s.WCCount[w][b]; ok {
			s.WCCount[w][a] += v
			delete(s.WCCount[w], b)
		}
	}
	return nil
}

func (s *Store) numSpecial() int {
	if s.WordBoundary {
		return 3
	}
	return 2
}

// allocateSlot reuses an empty non-reserved class index, growing the
// store by one class if none is free.
func (s *Store) allocateSlot() int {
	for c := s.numSpecial(); c < len(s.Classes); c++ {
		if len(s.Classes[c]) == 0 {
			return c
		}
	}
	n := s.NumClasses
	s.ClassCount = append(s.ClassCount, 0)
	for i := range s.ClassBigram {
		s.ClassBigram[i] = append(s.ClassBigram[i], 0)
	}
	s.ClassBigram = append(s.ClassBigram, make([]uint64, n+1))
	s.Classes = append(s.Classes, make(map[word.Id]bool))
	s.NumClasses = n + 1
	return n
}

// DoSplit commits the split of class x into (x, y) where class1/class2
// partition x's former members; class1 keeps index x, class2 gets a
// fresh (or reused) index y. Returns y.
func (s *Store) DoSplit(x int, class1, class2 map[word.Id]bool) (int, error) {
	origCount := s.ClassCount[x]
	y := s.allocateSlot()

	s.Classes[x] = make(map[word.Id]bool, len(class1))
	for w := range class1 {
		s.Classes[x][w] = true
		s.WordClass[w] = x
	}
	s.Classes[y] = make(map[word.Id]bool, len(class2))
	for w := range class2 {
		s.Classes[y][w] = true
		s.WordClass[w] = y
	}

	var cx, cy uint64
	for w := range class1 {
		cx += s.Index.WordCount[w]
	}
	for w := range class2 {
		cy += s.Index.WordCount[w]
	}
	if cx+cy != origCount {
		return 0, newErr(InvariantViolation, "do_split: unigram mismatch for class %d: %d+%d != %d", x, cx, cy, origCount)
	}
	s.ClassCount[x] = cx
	s.ClassCount[y] = cy

	for c := 0; c < s.NumClasses; c++ {
		s.ClassBigram[x][c] = 0
		s.ClassBigram[c][x] = 0
		s.ClassBigram[y][c] = 0
		s.ClassBigram[c][y] = 0
	}

	members := map[word.Id]bool{}
	for w := range class1 {
		members[w] = true
	}
	for w := range class2 {
		members[w] = true
	}

	affectedTargets := map[word.Id]bool{}
	affectedSources := map[word.Id]bool{}
	for w := range members {
		for w2 := range s.Index.Bigram[w] {
			affectedTargets[w2] = true
		}
		for w1 := range s.Index.RevBigram[w] {
			affectedSources[w1] = true
		}
	}
	// Non-member neighbors keep every other-class entry: only their x/y
	// keys need clearing before the rebuild below. Members themselves
	// are cleared in full just below, since a member's own WCCount/
	// CWCount row spans both x/y and external classes and none of it
	// survives the split unchanged.
	for w2 := range affectedTargets {
		if members[w2] {
			continue
		}
		delete(s.CWCount[w2], x)
		delete(s.CWCount[w2], y)
	}
	for w1 := range affectedSources {
		if members[w1] {
			continue
		}
		delete(s.WCCount[w1], x)
		delete(s.WCCount[w1], y)
	}
	for w := range members {
		s.WCCount[w] = make(map[int]uint64)
		s.CWCount[w] = make(map[int]uint64)
	}

	addRow := func(members map[word.Id]bool, c1 int) {
		for w := range members {
			for w2, cnt := range s.Index.Bigram[w] {
				c2 := s.WordClass[w2]
				s.ClassBigram[c1][c2] += cnt
				if s.WCCount[w] == nil {
					s.WCCount[w] = make(map[int]uint64)
				}
				s.WCCount[w][c2] += cnt
				if s.CWCount[w2] == nil {
					s.CWCount[w2] = make(map[int]uint64)
				}
				s.CWCount[w2][c1] += cnt
			}
		}
	}
	addRow(class1, x)
	addRow(class2, y)

	addCol := func(members map[word.Id]bool, c2 int) {
		for w := range members {
			for w1, cnt := range s.Index.RevBigram[w] {
				c1 := s.WordClass[w1]
				if c1 == x || c1 == y {
					continue
				}
				s.ClassBigram[c1][c2] += cnt
				if s.WCCount[w1] == nil {
					s.WCCount[w1] = make(map[int]uint64)
				}
				s.WCCount[w1][c2] += cnt
				if s.CWCount[w] == nil {
					s.CWCount[w] = make(map[int]uint64)
				}
				s.CWCount[w][c1] += cnt
			}
		}
	}
	addCol(class1, x)
	addCol(class2, y)

	return y, nil
}

func (s *Store) sortedMembers(c int) []word.Id {
	words := make([]word.Id, 0, len(s.Classes[c]))
	for w := range s.Classes[c] {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return words[i] < words[j] })
	return words
}

// FreqSplit produces a deterministic initial binary split of class c by
// alternating words in descending frequency order between the two
// halves (ties broken by word id).
func (s *Store) FreqSplit(c int) (class1, class2 map[word.Id]bool) {
	words := s.sortedMembers(c)
	sort.SliceStable(words, func(i, j int) bool {
		return s.Index.WordCount[words[i]] > s.Index.WordCount[words[j]]
	})
	class1, class2 = make(map[word.Id]bool), make(map[word.Id]bool)
	for i, w := range words {
		if i%2 == 0 {
			class1[w] = true
		} else {
			class2[w] = true
		}
	}
	return
}

// RandomSplit produces a seeded-random initial binary split of class c.
// rng must be an explicit, caller-seeded source so training runs are
// reproducible (see SPEC_FULL.md Section 5).
func (s *Store) RandomSplit(c int, rng *rand.Rand) (class1, class2 map[word.Id]bool) {
	words := s.sortedMembers(c)
	rng.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
	class1, class2 = make(map[word.Id]bool), make(map[word.Id]bool)
	half := len(words) / 2
	for i, w := range words {
		if i < half {
			class1[w] = true
		} else {
			class2[w] = true
		}
	}
	return
}

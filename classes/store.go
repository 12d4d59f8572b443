// Package classes implements the hard class-partition subsystem: the
// class-state store (C2), the incremental Δ-evaluator (C3), and the
// exchange / merge / split drivers (C4, C5a, C5b).
package classes

import (
	"math"

	"github.com/aalto-speech/classngram/corpus"
	"github.com/kho/word"
)

// Reserved class indices. These classes are never the destination of a
// move for any word outside their own reserved membership.
const (
	StartClass = 0
	UnkClass   = 1
	WBClass    = 2
)

// Store is the class-state store: the bidirectional word<->class
// assignment plus the derived count tables the Δ-evaluator reads.
type Store struct {
	Index *corpus.Index

	NumClasses   int
	WordBoundary bool

	WordClass []int            // WordClass[w], indexed by word.Id.
	Classes   []map[word.Id]bool // Classes[c]; inverse of WordClass.

	ClassCount  []uint64   // ClassCount[c].
	ClassBigram [][]uint64 // ClassBigram[c1][c2].

	// CWCount[w][c]: source-class c, target-word w.
	CWCount []map[int]uint64
	// WCCount[w][c]: source-word w, target-class c.
	WCCount []map[int]uint64
}

// NewStore creates a Store over idx with numSpecial reserved classes
// (2 without word-boundary tokens, 3 with) plus numDataClasses data
// classes, all initially empty; the caller must assign WordClass via
// InitByFrequency or InitPreset (e.g. with an assignment parsed by
// ReadClassInit), both of which call SetClassCounts, before using the
// Δ-evaluator or drivers.
func NewStore(idx *corpus.Index, numDataClasses int) *Store {
	numSpecial := 2
	if idx.WordBoundary {
		numSpecial = 3
	}
	n := numSpecial + numDataClasses
	s := &Store{
		Index:        idx,
		NumClasses:   n,
		WordBoundary: idx.WordBoundary,
		WordClass:    make([]int, idx.Vocab.Bound()),
		Classes:      make([]map[word.Id]bool, n),
	}
	for c := range s.Classes {
		s.Classes[c] = make(map[word.Id]bool)
	}
	s.WordClass[idx.BOSId] = StartClass
	s.WordClass[idx.EOSId] = StartClass
	s.Classes[StartClass][idx.BOSId] = true
	s.Classes[StartClass][idx.EOSId] = true
	s.WordClass[idx.UNKId] = UnkClass
	s.Classes[UnkClass][idx.UNKId] = true
	if idx.WordBoundary {
		s.WordClass[idx.WBId] = WBClass
		s.Classes[WBClass][idx.WBId] = true
	}
	return s
}

// IsReserved reports whether w is one of the reserved vocabulary entries
// that must stay in its fixed reserved class.
func (s *Store) IsReserved(w word.Id) bool {
	idx := s.Index
	return w == idx.BOSId || w == idx.EOSId || w == idx.UNKId || (idx.WordBoundary && w == idx.WBId)
}

// SetClassCounts (re)derives ClassCount, ClassBigram, CWCount and WCCount
// from Index's corpus counts and the current WordClass assignment. Call
// this once after seeding WordClass and before any move.
func (s *Store) SetClassCounts() {
	idx := s.Index
	bound := int(idx.Vocab.Bound())

	s.ClassCount = make([]uint64, s.NumClasses)
	s.ClassBigram = make([][]uint64, s.NumClasses)
	for i := range s.ClassBigram {
		s.ClassBigram[i] = make([]uint64, s.NumClasses)
	}
	s.CWCount = make([]map[int]uint64, bound)
	s.WCCount = make([]map[int]uint64, bound)
	for c := range s.Classes {
		s.Classes[c] = make(map[word.Id]bool)
	}

	for w := 0; w < bound; w++ {
		c := s.WordClass[w]
		s.ClassCount[c] += idx.WordCount[w]
		s.Classes[c][word.Id(w)] = true
	}

	for w1 := 0; w1 < bound; w1++ {
		c1 := s.WordClass[w1]
		for w2, cnt := range idx.Bigram[w1] {
			c2 := s.WordClass[int(w2)]
			s.ClassBigram[c1][c2] += cnt
			if s.WCCount[w1] == nil {
				s.WCCount[w1] = make(map[int]uint64)
			}
			s.WCCount[w1][c2] += cnt
			if s.CWCount[w2] == nil {
				s.CWCount[w2] = make(map[int]uint64)
			}
			s.CWCount[w2][c1] += cnt
		}
	}
}

// nlogn returns n*log(n) with the 0*log(0) ≡ 0 convention.
func nlogn(n uint64) float64 {
	if n == 0 {
		return 0
	}
	f := float64(n)
	return f * math.Log(f)
}

// LogLikelihood computes L(partition) per spec 4.1.
func (s *Store) LogLikelihood() float64 {
	var ll float64
	for c1 := 0; c1 < s.NumClasses; c1++ {
		for c2 := 0; c2 < s.NumClasses; c2++ {
			ll += nlogn(s.ClassBigram[c1][c2])
		}
	}
	for w := 0; w < int(s.Index.Vocab.Bound()); w++ {
		ll += nlogn(s.Index.WordCount[w])
	}
	for c := 0; c < s.NumClasses; c++ {
		ll -= 2 * nlogn(s.ClassCount[c])
	}
	return ll
}

// NumLiveClasses returns the number of data (non-reserved) classes with
// at least one member, the count MergeClasses and SplitClasses drive
// toward their target.
func (s *Store) NumLiveClasses() int {
	return len(s.liveDataClasses())
}

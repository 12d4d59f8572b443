package classes

import (
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aalto-speech/classngram/categories"
	"github.com/aalto-speech/classngram/corpus"
	"github.com/kho/word"
)

func buildTestStore(t *testing.T, numDataClasses int) *Store {
	t.Helper()
	idx := corpus.NewIndex(false)
	sentences := [][]string{
		{"the", "cat", "sat", "on", "the", "mat"},
		{"the", "dog", "sat", "on", "the", "mat"},
		{"the", "cat", "ran", "in", "the", "park"},
		{"the", "dog", "ran", "in", "the", "park"},
		{"a", "cat", "sat", "on", "a", "mat"},
		{"a", "dog", "ran", "in", "a", "park"},
	}
	for _, s := range sentences {
		idx.AddSentence(s, nil)
	}
	s := NewStore(idx, numDataClasses)
	if err := s.InitByFrequency(); err != nil {
		t.Fatalf("InitByFrequency: %v", err)
	}
	return s
}

func cloneTables(s *Store) (cb [][]uint64, cc []uint64, cw, wc []map[int]uint64) {
	cb = make([][]uint64, len(s.ClassBigram))
	for i, row := range s.ClassBigram {
		cb[i] = append([]uint64(nil), row...)
	}
	cc = append([]uint64(nil), s.ClassCount...)
	cw = make([]map[int]uint64, len(s.CWCount))
	for i, m := range s.CWCount {
		if m == nil {
			continue
		}
		cw[i] = make(map[int]uint64, len(m))
		for k, v := range m {
			cw[i][k] = v
		}
	}
	wc = make([]map[int]uint64, len(s.WCCount))
	for i, m := range s.WCCount {
		if m == nil {
			continue
		}
		wc[i] = make(map[int]uint64, len(m))
		for k, v := range m {
			wc[i][k] = v
		}
	}
	return
}

func normalizeMaps(ms []map[int]uint64) []map[int]uint64 {
	out := make([]map[int]uint64, len(ms))
	for i, m := range ms {
		clean := make(map[int]uint64)
		for k, v := range m {
			if v != 0 {
				clean[k] = v
			}
		}
		if len(clean) > 0 {
			out[i] = clean
		}
	}
	return out
}

func TestLogLikelihoodFinite(t *testing.T) {
	s := buildTestStore(t, 3)
	ll := s.LogLikelihood()
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		t.Fatalf("LogLikelihood() = %v, want finite", ll)
	}
}

func firstNonReservedWord(s *Store, class int) (word.Id, bool) {
	for w := range s.Classes[class] {
		if !s.IsReserved(w) {
			return w, true
		}
	}
	return 0, false
}

func TestExchangeDeltaMatchesFullRecompute(t *testing.T) {
	s := buildTestStore(t, 3)

	var w word.Id
	var a int
	found := false
	for c := s.numSpecial(); c < s.NumClasses; c++ {
		if ww, ok := firstNonReservedWord(s, c); ok {
			w, a, found = ww, c, true
			break
		}
	}
	if !found {
		t.Fatal("no non-reserved word found to exchange")
	}
	b := a + 1
	if b >= s.NumClasses {
		b = s.numSpecial()
	}
	if b == a {
		t.Fatal("need at least two data classes")
	}

	predicted, err := s.EvaluateExchange(w, a, b)
	if err != nil {
		t.Fatalf("EvaluateExchange: %v", err)
	}
	ll0 := s.LogLikelihood()

	if err := s.DoExchange(w, a, b); err != nil {
		t.Fatalf("DoExchange: %v", err)
	}
	ll1 := s.LogLikelihood()

	if diff := (ll1 - ll0) - predicted; math.Abs(diff) > 1e-6 {
		t.Errorf("Δ mismatch: predicted %.9f, actual %.9f (diff %.2e)", predicted, ll1-ll0, diff)
	}

	beforeCB, beforeCC, beforeCW, beforeWC := cloneTables(s)
	s.SetClassCounts()
	afterCB, afterCC, afterCW, afterWC := cloneTables(s)
	if !reflect.DeepEqual(beforeCB, afterCB) {
		t.Errorf("ClassBigram diverged from full rebuild after DoExchange")
	}
	if !reflect.DeepEqual(beforeCC, afterCC) {
		t.Errorf("ClassCount diverged from full rebuild after DoExchange")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeCW), normalizeMaps(afterCW)) {
		t.Errorf("CWCount diverged from full rebuild after DoExchange")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeWC), normalizeMaps(afterWC)) {
		t.Errorf("WCCount diverged from full rebuild after DoExchange")
	}
}

func TestExchangeRejectsInvariantViolations(t *testing.T) {
	s := buildTestStore(t, 3)
	if _, err := s.EvaluateExchange(s.Index.UNKId, UnkClass, s.numSpecial()); err == nil {
		t.Error("expected error exchanging a reserved word")
	}
	w, a := word.Id(0), 0
	for c := s.numSpecial(); c < s.NumClasses; c++ {
		if ww, ok := firstNonReservedWord(s, c); ok {
			w, a = ww, c
			break
		}
	}
	if _, err := s.EvaluateExchange(w, a, a); err == nil {
		t.Error("expected error for a == b")
	}
	wrongClass := a + 1
	if wrongClass >= s.NumClasses {
		wrongClass = s.numSpecial()
	}
	if _, err := s.EvaluateExchange(w, wrongClass, a); err == nil {
		t.Error("expected error when w is not actually in the claimed source class")
	}
}

func TestMergeDeltaMatchesFullRecompute(t *testing.T) {
	s := buildTestStore(t, 4)
	a, b := s.numSpecial(), s.numSpecial()+1

	predicted, err := s.EvaluateMerge(a, b)
	if err != nil {
		t.Fatalf("EvaluateMerge: %v", err)
	}
	ll0 := s.LogLikelihood()

	if err := s.DoMerge(a, b); err != nil {
		t.Fatalf("DoMerge: %v", err)
	}
	ll1 := s.LogLikelihood()

	if diff := (ll1 - ll0) - predicted; math.Abs(diff) > 1e-6 {
		t.Errorf("Δ mismatch: predicted %.9f, actual %.9f (diff %.2e)", predicted, ll1-ll0, diff)
	}
	if len(s.Classes[b]) != 0 {
		t.Errorf("class %d should be empty after merge, has %d members", b, len(s.Classes[b]))
	}
	if s.ClassCount[b] != 0 {
		t.Errorf("ClassCount[%d] = %d, want 0 after merge", b, s.ClassCount[b])
	}

	beforeCB, beforeCC, beforeCW, beforeWC := cloneTables(s)
	s.SetClassCounts()
	afterCB, afterCC, afterCW, afterWC := cloneTables(s)
	if !reflect.DeepEqual(beforeCB, afterCB) {
		t.Errorf("ClassBigram diverged from full rebuild after DoMerge")
	}
	if !reflect.DeepEqual(beforeCC, afterCC) {
		t.Errorf("ClassCount diverged from full rebuild after DoMerge")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeCW), normalizeMaps(afterCW)) {
		t.Errorf("CWCount diverged from full rebuild after DoMerge")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeWC), normalizeMaps(afterWC)) {
		t.Errorf("WCCount diverged from full rebuild after DoMerge")
	}
}

func TestDoSplitUnigramInvariant(t *testing.T) {
	s := buildTestStore(t, 2)
	var target int
	for c := s.numSpecial(); c < s.NumClasses; c++ {
		if len(s.Classes[c]) >= 2 {
			target = c
			break
		}
	}
	origCount := s.ClassCount[target]

	class1, class2 := s.FreqSplit(target)
	if len(class1)+len(class2) != len(s.Classes[target]) {
		t.Fatalf("FreqSplit partition size mismatch")
	}

	y, err := s.DoSplit(target, class1, class2)
	if err != nil {
		t.Fatalf("DoSplit: %v", err)
	}
	if got := s.ClassCount[target] + s.ClassCount[y]; got != origCount {
		t.Errorf("ClassCount[%d]+ClassCount[%d] = %d, want %d", target, y, got, origCount)
	}
	for w := range class2 {
		if s.WordClass[w] != y {
			t.Errorf("word %d not reassigned to new class %d", w, y)
		}
	}

	beforeCB, beforeCC, beforeCW, beforeWC := cloneTables(s)
	s.SetClassCounts()
	afterCB, afterCC, afterCW, afterWC := cloneTables(s)
	if !reflect.DeepEqual(beforeCB, afterCB) {
		t.Errorf("ClassBigram diverged from full rebuild after DoSplit")
	}
	if !reflect.DeepEqual(beforeCC, afterCC) {
		t.Errorf("ClassCount diverged from full rebuild after DoSplit")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeCW), normalizeMaps(afterCW)) {
		t.Errorf("CWCount diverged from full rebuild after DoSplit")
	}
	if !reflect.DeepEqual(normalizeMaps(beforeWC), normalizeMaps(afterWC)) {
		t.Errorf("WCCount diverged from full rebuild after DoSplit")
	}
}

func TestWriteReadClassesRoundTrip(t *testing.T) {
	s := buildTestStore(t, 3)
	path := filepath.Join(t.TempDir(), "classes.txt")
	if err := s.WriteClasses(path); err != nil {
		t.Fatalf("WriteClasses: %v", err)
	}

	assign, err := ReadClassInit(path, s.Index.Vocab)
	if err != nil {
		t.Fatalf("ReadClassInit: %v", err)
	}
	for w := 0; w < len(s.WordClass); w++ {
		if s.IsReserved(word.Id(w)) {
			continue
		}
		if got, want := assign[word.Id(w)], s.WordClass[w]; got != want {
			t.Errorf("word %d: read class %d, want %d", w, got, want)
		}
	}
}

func TestWriteClassMemProbsReadableAsCategoryModel(t *testing.T) {
	s := buildTestStore(t, 3)
	path := filepath.Join(t.TempDir(), "classes.cmemprobs")
	if err := s.WriteClassMemProbs(path); err != nil {
		t.Fatalf("WriteClassMemProbs: %v", err)
	}

	model, err := categories.ReadMemProbs(path, s.Index.Vocab)
	if err != nil {
		t.Fatalf("categories.ReadMemProbs: %v", err)
	}
	for w := 0; w < len(s.WordClass); w++ {
		if s.IsReserved(word.Id(w)) {
			continue
		}
		c := s.WordClass[w]
		lp, ok := model.Mem[w][c]
		if !ok {
			t.Fatalf("word %d: class %d missing from degenerate category model", w, c)
		}
		want := math.Log(float64(s.Index.WordCount[w])) - math.Log(float64(s.ClassCount[c]))
		if math.Abs(lp-want) > 1e-6 {
			t.Errorf("word %d: mem logp = %v, want %v", w, lp, want)
		}
	}
}

func TestIterateExchangeNeverDecreasesLikelihood(t *testing.T) {
	s := buildTestStore(t, 3)
	ll0 := s.LogLikelihood()
	if _, err := s.IterateExchangeToConvergence(2, 10); err != nil {
		t.Fatalf("IterateExchangeToConvergence: %v", err)
	}
	ll1 := s.LogLikelihood()
	if ll1 < ll0-1e-6 {
		t.Errorf("log-likelihood decreased: %.6f -> %.6f", ll0, ll1)
	}
}

func TestSuperClassRestrictsExchangeCandidates(t *testing.T) {
	s := buildTestStore(t, 4) // data classes numSpecial..numSpecial+3
	base := s.numSpecial()
	super := &SuperClasses{
		Groups:  [][]int{{base, base + 1}, {base + 2, base + 3}},
		groupOf: map[int]int{base: 0, base + 1: 0, base + 2: 1, base + 3: 1},
	}

	got := super.candidatesFor(base, s.numSpecial(), s.NumClasses)
	if len(got) != 1 || got[0] != base+1 {
		t.Errorf("candidatesFor(%d) = %v, want [%d]", base, got, base+1)
	}
	got = super.candidatesFor(base+2, s.numSpecial(), s.NumClasses)
	if len(got) != 1 || got[0] != base+3 {
		t.Errorf("candidatesFor(%d) = %v, want [%d]", base+2, got, base+3)
	}

	// A nil SuperClasses imposes no restriction: every other data class.
	got = (*SuperClasses)(nil).candidatesFor(base, s.numSpecial(), s.NumClasses)
	if len(got) != 3 {
		t.Errorf("nil super candidatesFor(%d) = %v, want 3 candidates", base, got)
	}
}

func TestSuperClassPairPoolConfinesToGroups(t *testing.T) {
	s := buildTestStore(t, 4)
	base := s.numSpecial()
	super := &SuperClasses{
		Groups:  [][]int{{base, base + 1}, {base + 2, base + 3}},
		groupOf: map[int]int{base: 0, base + 1: 0, base + 2: 1, base + 3: 1},
	}
	live := []int{base, base + 1, base + 2, base + 3}
	pairs := super.pairPool(live)
	for _, p := range pairs {
		g0, g1 := super.groupOf[p[0]], super.groupOf[p[1]]
		if g0 != g1 {
			t.Errorf("pairPool produced cross-group pair %v", p)
		}
	}
	if len(pairs) != 2 {
		t.Errorf("pairPool() = %d pairs, want 2 (one per group)", len(pairs))
	}
}

func TestMergeClassesReachesTarget(t *testing.T) {
	s := buildTestStore(t, 4)
	rng := rand.New(rand.NewSource(42))
	if _, err := s.MergeClasses(2, 3, rng, 2); err != nil {
		t.Fatalf("MergeClasses: %v", err)
	}
	if got := s.NumLiveClasses(); got != 2 {
		t.Errorf("NumLiveClasses() = %d, want 2", got)
	}
}

func TestSplitClassesGrowsLiveCount(t *testing.T) {
	s := buildTestStore(t, 2)
	before := s.NumLiveClasses()
	if _, err := s.SplitClasses(4, 2, 3, -1e9); err != nil {
		t.Fatalf("SplitClasses: %v", err)
	}
	after := s.NumLiveClasses()
	if after <= before {
		t.Errorf("NumLiveClasses() did not grow: %d -> %d", before, after)
	}
}

package categories

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/aalto-speech/classngram/corpus"
	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

// fakeLM is a uniform trigram-free stand-in for fslm.Model: every
// category is equally likely regardless of history, and the state is
// simply the last category emitted. Enough to drive the segmenter
// without pulling in Builder/ARPA parsing for a unit test.
type fakeLM struct {
	numCategories int
}

func (f fakeLM) Start() fslm.StateId { return 0 }

func (f fakeLM) NextI(p fslm.StateId, x word.Id) (fslm.StateId, fslm.Weight) {
	return fslm.StateId(x), fslm.Weight(math.Log(1.0 / float64(f.numCategories)))
}

func (f fakeLM) NextS(p fslm.StateId, x string) (fslm.StateId, fslm.Weight) {
	return 0, fslm.Weight(math.Inf(-1))
}

func (f fakeLM) Final(p fslm.StateId) fslm.Weight {
	return fslm.Weight(math.Log(1.0 / float64(f.numCategories)))
}

func (f fakeLM) Vocab() (*word.Vocab, string, string, word.Id, word.Id) {
	return nil, "<s>", "</s>", word.NIL, word.NIL
}

func buildTestModel(t *testing.T) (*corpus.Index, *Model, word.Id, word.Id) {
	t.Helper()
	idx := corpus.NewIndex(false)
	catW := idx.Vocab.IdOrAdd("cat")
	dogW := idx.Vocab.IdOrAdd("dog")

	numWords := int(idx.Vocab.Bound())
	m := NewModel(numWords, 3, idx.BOSId, idx.EOSId, idx.UNKId)
	m.Gen[catW] = map[int]float64{2: 0}
	m.Mem[catW] = map[int]float64{2: 0}
	m.Gen[dogW] = map[int]float64{2: 0}
	m.Mem[dogW] = map[int]float64{2: 0}
	return idx, m, catW, dogW
}

func TestSegmenterBestPath(t *testing.T) {
	idx, m, catW, dogW := buildTestModel(t)
	sentence := []word.Id{idx.BOSId, catW, dogW, idx.EOSId}

	seg := NewSegmenter(m, fakeLM{numCategories: 3}, 10, 100, 50)
	cats, lp, err := seg.BestPath(sentence)
	if err != nil {
		t.Fatalf("BestPath: %v", err)
	}
	if len(cats) != len(sentence) {
		t.Fatalf("len(cats) = %d, want %d", len(cats), len(sentence))
	}
	if cats[0] != StartCategory || cats[len(cats)-1] != StartCategory {
		t.Errorf("boundary categories = %v/%v, want %d/%d", cats[0], cats[len(cats)-1], StartCategory, StartCategory)
	}
	if cats[1] != 2 || cats[2] != 2 {
		t.Errorf("middle categories = %v, want [2 2]", cats[1:3])
	}
	if math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Errorf("lp = %v, want finite", lp)
	}
}

func TestSegmenterAccumulate(t *testing.T) {
	idx, m, catW, dogW := buildTestModel(t)
	sentence := []word.Id{idx.BOSId, catW, dogW, idx.EOSId}

	seg := NewSegmenter(m, fakeLM{numCategories: 3}, 10, 100, 50)
	numWords := int(idx.Vocab.Bound())
	stats := NewStats(numWords)
	if err := seg.Accumulate(sentence, stats); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if got := stats.Joint[catW][2]; got <= 0 {
		t.Errorf("Joint[cat][2] = %v, want > 0", got)
	}
	if got := stats.Joint[dogW][2]; got <= 0 {
		t.Errorf("Joint[dog][2] = %v, want > 0", got)
	}
	if got := stats.Joint[idx.BOSId][StartCategory]; got <= 0 {
		t.Errorf("Joint[<s>][StartCategory] = %v, want > 0", got)
	}
	if got := stats.CatBigram[[2]int{StartCategory, 2}]; got <= 0 {
		t.Errorf("CatBigram[Start->2] = %v, want > 0", got)
	}
}

func TestWriteReadMemProbsRoundTrip(t *testing.T) {
	idx, m, catW, dogW := buildTestModel(t)
	m.Mem[catW] = map[int]float64{2: -0.1, 1: -5.0}
	dir := t.TempDir()
	memPath := filepath.Join(dir, "model.cmemprobs")
	genPath := filepath.Join(dir, "model.cgenprobs")
	if err := m.WriteMemProbs(memPath, idx.Vocab); err != nil {
		t.Fatalf("WriteMemProbs: %v", err)
	}
	if err := m.WriteGenProbs(genPath, idx.Vocab); err != nil {
		t.Fatalf("WriteGenProbs: %v", err)
	}

	got, err := ReadMemProbs(memPath, idx.Vocab)
	if err != nil {
		t.Fatalf("ReadMemProbs: %v", err)
	}
	for c, want := range m.Mem[catW] {
		if got.Mem[catW] == nil {
			t.Fatalf("Mem[cat] missing after round-trip")
		}
		if gotLp := got.Mem[catW][c]; math.Abs(gotLp-want) > 1e-6 {
			t.Errorf("Mem[cat][%d] = %v, want %v", c, gotLp, want)
		}
	}
	if got.Mem[dogW][2] != m.Mem[dogW][2] {
		t.Errorf("Mem[dog][2] = %v, want %v", got.Mem[dogW][2], m.Mem[dogW][2])
	}

	gen, err := ReadGenProbs(genPath, idx.Vocab)
	if err != nil {
		t.Fatalf("ReadGenProbs: %v", err)
	}
	if gen[catW][2] != m.Gen[catW][2] {
		t.Errorf("Gen[cat][2] = %v, want %v", gen[catW][2], m.Gen[catW][2])
	}
}

func TestEstimateModelNormalizes(t *testing.T) {
	joint := NewJoint(4)
	joint.add(0, 0, 3)
	joint.add(1, 0, 1)
	joint.add(2, 1, 2)
	joint.add(3, 1, 2)

	m := EstimateModel(2, joint)
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if _, ok := m.Mem[0][0]; !ok {
		t.Fatalf("Mem[0][0] missing")
	}
	if lp := m.Mem[0][0]; math.Abs(math.Exp(lp)-0.75) > 1e-9 {
		t.Errorf("Mem[0][0] = exp(%v) = %v, want 0.75", lp, math.Exp(lp))
	}
}

package perplexity

import (
	"math"
	"testing"

	"github.com/aalto-speech/classngram/categories"
	"github.com/aalto-speech/classngram/corpus"
	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

type fakeLM struct {
	numCategories int
}

func (f fakeLM) Start() fslm.StateId { return 0 }

func (f fakeLM) NextI(p fslm.StateId, x word.Id) (fslm.StateId, fslm.Weight) {
	return fslm.StateId(x), fslm.Weight(math.Log(1.0 / float64(f.numCategories)))
}

func (f fakeLM) NextS(p fslm.StateId, x string) (fslm.StateId, fslm.Weight) {
	return 0, fslm.WEIGHT_LOG0
}

func (f fakeLM) Final(p fslm.StateId) fslm.Weight {
	return fslm.Weight(math.Log(1.0 / float64(f.numCategories)))
}

func (f fakeLM) Vocab() (*word.Vocab, string, string, word.Id, word.Id) {
	return nil, "<s>", "</s>", word.NIL, word.NIL
}

func TestCategoryScorerScore(t *testing.T) {
	idx := corpus.NewIndex(false)
	catW := idx.Vocab.IdOrAdd("cat")
	dogW := idx.Vocab.IdOrAdd("dog")
	numWords := int(idx.Vocab.Bound())

	m := categories.NewModel(numWords, 3, idx.BOSId, idx.EOSId, idx.UNKId)
	m.Gen[catW] = map[int]float64{2: 0}
	m.Gen[dogW] = map[int]float64{2: 0}

	cs := &CategoryScorer{LM: fakeLM{numCategories: 3}, Model: m, HistoryLen: 2, BeamWidth: 10}
	sentence := []word.Id{idx.BOSId, catW, dogW, idx.EOSId}

	lp, n, oov, err := cs.Score(sentence)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if n != 3 {
		t.Errorf("numWords = %d, want 3", n)
	}
	if oov != 0 {
		t.Errorf("numOOV = %d, want 0", oov)
	}
	if math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Errorf("logProb = %v, want finite", lp)
	}
}

func TestCategoryScorerOOV(t *testing.T) {
	idx := corpus.NewIndex(false)
	mysteryW := idx.Vocab.IdOrAdd("zorblatt")
	numWords := int(idx.Vocab.Bound())
	m := categories.NewModel(numWords, 3, idx.BOSId, idx.EOSId, idx.UNKId)

	cs := &CategoryScorer{LM: fakeLM{numCategories: 3}, Model: m, HistoryLen: 2, BeamWidth: 10}
	sentence := []word.Id{idx.BOSId, mysteryW, idx.EOSId}

	_, n, oov, err := cs.Score(sentence)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if n != 2 {
		t.Errorf("numWords = %d, want 2", n)
	}
	if oov != 1 {
		t.Errorf("numOOV = %d, want 1", oov)
	}
}

func TestScoreBaseline(t *testing.T) {
	idx := corpus.NewIndex(false)
	catW := idx.Vocab.IdOrAdd("cat")
	sentence := []word.Id{idx.BOSId, catW, idx.EOSId}

	lm := fakeLM{numCategories: 3}
	lp, n, oov, err := ScoreBaseline(lm, sentence)
	if err != nil {
		t.Fatalf("ScoreBaseline: %v", err)
	}
	if n != 2 {
		t.Errorf("numWords = %d, want 2", n)
	}
	if oov != 0 {
		t.Errorf("numOOV = %d, want 0", oov)
	}
	want := 2 * math.Log(1.0/3.0)
	if math.Abs(lp-want) > 1e-9 {
		t.Errorf("logProb = %v, want %v", lp, want)
	}
}

func TestScoreInterpolated(t *testing.T) {
	idx := corpus.NewIndex(false)
	catW := idx.Vocab.IdOrAdd("cat")
	sentence := []word.Id{idx.BOSId, catW, idx.EOSId}

	lm1 := fakeLM{numCategories: 2}
	lm2 := fakeLM{numCategories: 4}
	lp, n, oov, err := ScoreInterpolated(0.5, lm1, lm2, sentence)
	if err != nil {
		t.Fatalf("ScoreInterpolated: %v", err)
	}
	if n != 2 {
		t.Errorf("numWords = %d, want 2", n)
	}
	if oov != 0 {
		t.Errorf("numOOV = %d, want 0", oov)
	}
	perWord := LinearInterpolate(
		Component{LogProb: math.Log(1.0 / 2.0), Weight: 0.5},
		Component{LogProb: math.Log(1.0 / 4.0), Weight: 0.5},
	)
	want := 2 * perWord
	if math.Abs(lp-want) > 1e-9 {
		t.Errorf("logProb = %v, want %v", lp, want)
	}
}

func TestLinearInterpolate(t *testing.T) {
	lp := LinearInterpolate(
		Component{LogProb: math.Log(0.5), Weight: 0.5},
		Component{LogProb: math.Log(0.1), Weight: 0.5},
	)
	want := math.Log(0.3)
	if math.Abs(lp-want) > 1e-9 {
		t.Errorf("LinearInterpolate = %v, want %v", lp, want)
	}
}

func TestLogLinearInterpolate(t *testing.T) {
	lp := LogLinearInterpolate(
		Component{LogProb: -1, Weight: 1},
		Component{LogProb: -3, Weight: 1},
	)
	want := -2.0
	if math.Abs(lp-want) > 1e-9 {
		t.Errorf("LogLinearInterpolate = %v, want %v", lp, want)
	}
}

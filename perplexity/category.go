// Package perplexity implements the category perplexity evaluator (C8)
// and baseline/interpolated scoring over the finite-state n-gram models
// in package fslm, grounded on the bounded-history beam propagation in
// the original CatPerplexity / ClassPerplexity evaluators.
package perplexity

import (
	"math"

	"github.com/aalto-speech/classngram/categories"
	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

// HistoryToken is one surviving hypothesis in a CategoryHistory's
// propagated beam: an n-gram state together with the cumulative
// log-probability of the category path that reached it.
type HistoryToken struct {
	State fslm.StateId
	LL    float64
}

// CategoryHistory is a bounded sliding window of per-word category
// membership distributions (categories.Model.Gen rows). Because the
// true history of hidden category assignments grows unboundedly with
// sentence length, only the last maxLen words are replayed through the
// category n-gram on every query; this trades exactness for bounded
// per-word cost, the same trade the original evaluator's bounded deque
// makes.
type CategoryHistory struct {
	maxLen int
	steps  []map[int]float64 // nil entry means "force the OOV/root category"
}

func NewCategoryHistory(maxLen int) *CategoryHistory {
	return &CategoryHistory{maxLen: maxLen}
}

// Update pushes the category distribution for the word just scored,
// dropping the oldest step once the window exceeds maxLen.
func (h *CategoryHistory) Update(genDist map[int]float64) {
	h.steps = append(h.steps, genDist)
	if len(h.steps) > h.maxLen {
		h.steps = h.steps[len(h.steps)-h.maxLen:]
	}
}

// beamMerge collapses candidates landing on the same state by
// log-summing their probabilities (multiple category paths reaching
// the same n-gram context are alternative explanations of the same
// observed words, not competing hypotheses to discard), then keeps the
// beamWidth best states by merged log-probability.
func beamMerge(cands map[fslm.StateId][]float64, beamWidth int) []HistoryToken {
	tokens := make([]HistoryToken, 0, len(cands))
	for state, lls := range cands {
		tokens = append(tokens, HistoryToken{State: state, LL: logSumExp(lls...)})
	}
	if beamWidth <= 0 || len(tokens) <= beamWidth {
		return tokens
	}
	best := math.Inf(-1)
	for _, t := range tokens {
		if t.LL > best {
			best = t.LL
		}
	}
	// Simple threshold cut to beamWidth survivors: keep the
	// beamWidth-best by a partial selection rather than a full sort.
	kept := make([]HistoryToken, len(tokens))
	copy(kept, tokens)
	for i := 0; i < beamWidth && i < len(kept); i++ {
		max := i
		for j := i + 1; j < len(kept); j++ {
			if kept[j].LL > kept[max].LL {
				max = j
			}
		}
		kept[i], kept[max] = kept[max], kept[i]
	}
	return kept[:beamWidth]
}

// Propagate replays the bounded window through lm starting from start,
// branching at each step over every category the step's distribution
// offers. A history step only moves the n-gram node and adds the step's
// gen log-probability; the n-gram's own transition weight for a
// category is charged exactly once, by likelihood, at the word
// currently being scored — adding it again here would double-count it.
// A nil step (an OOV position) instead advances every token by the
// <unk> symbol when rootUnkStates is set, or resets every token to the
// sentence-start node otherwise, matching spec.md 4.9's "advance by
// either the <unk> symbol or by jumping to the root node depending on
// configuration" (neither case contributes any weight either). Returns
// the surviving beam of (state, cumulative log-probability) hypotheses.
func (h *CategoryHistory) Propagate(lm fslm.Model, start fslm.StateId, rootUnkStates bool, beamWidth int) []HistoryToken {
	tokens := []HistoryToken{{State: start, LL: 0}}
	for _, step := range h.steps {
		next := make(map[fslm.StateId][]float64)
		for _, t := range tokens {
			if step == nil {
				if rootUnkStates {
					state, _ := lm.NextI(t.State, word.Id(categories.UnkCategory))
					next[state] = append(next[state], t.LL)
				} else {
					next[start] = append(next[start], t.LL)
				}
				continue
			}
			for cat, glp := range step {
				state, _ := lm.NextI(t.State, word.Id(cat))
				ll := t.LL + glp
				next[state] = append(next[state], ll)
			}
		}
		tokens = beamMerge(next, beamWidth)
		if len(tokens) == 0 {
			break
		}
	}
	return tokens
}

func tokensZ(tokens []HistoryToken) float64 {
	lls := make([]float64, len(tokens))
	for i, t := range tokens {
		lls[i] = t.LL
	}
	return logSumExp(lls...)
}

// genDistFor returns w's category membership distribution, or nil if
// the category model never saw w (the OOV case spec.md 4.9 handles by
// pushing a None step onto the history and skipping the likelihood
// computation for this word entirely).
func genDistFor(m *categories.Model, w word.Id) map[int]float64 {
	if int(w) < len(m.Gen) {
		return m.Gen[w]
	}
	return nil
}

// CategoryScorer scores a sentence word by word against a category
// n-gram, maintaining a bounded CategoryHistory across the sentence.
type CategoryScorer struct {
	LM            fslm.Model
	Model         *categories.Model
	HistoryLen    int
	BeamWidth     int
	RootUnkStates bool
}

// likelihood scores one step (either a regular word's mem distribution
// p(w|c), or, when memDist is nil, the sentence-final </s> transition)
// against the propagated beam, returning log p(step | history). The
// word's own category membership is scored with mem, not gen: gen is
// only ever pushed onto the history for later steps to replay.
func likelihood(tokens []HistoryToken, lm fslm.Model, memDist map[int]float64) float64 {
	z := tokensZ(tokens)
	if math.IsInf(z, -1) {
		return math.Inf(-1)
	}
	var lls []float64
	if memDist == nil {
		for _, t := range tokens {
			lls = append(lls, t.LL+float64(lm.Final(t.State)))
		}
	} else {
		for _, t := range tokens {
			for cat, mlp := range memDist {
				_, w := lm.NextI(t.State, word.Id(cat))
				lls = append(lls, t.LL+float64(w)+mlp)
			}
		}
	}
	return logSumExp(lls...) - z
}

// Score computes the total log-probability of sentence (a full <s>
// ... </s> sequence) under the category n-gram, plus the number of
// scored words (excluding <s>) and how many were OOV with respect to
// the category model.
func (cs *CategoryScorer) Score(sentence []word.Id) (logProb float64, numWords, numOOV int, err error) {
	if len(sentence) < 2 {
		return 0, 0, 0, newErr(MalformedInput, "score: sentence too short (%d tokens)", len(sentence))
	}
	hist := NewCategoryHistory(cs.HistoryLen)
	start := cs.LM.Start()

	for i := 1; i < len(sentence); i++ {
		w := sentence[i]
		last := i == len(sentence)-1

		tokens := hist.Propagate(cs.LM, start, cs.RootUnkStates, cs.BeamWidth)
		if len(tokens) == 0 {
			return 0, 0, 0, newErr(NumericDomain, "score: history beam emptied before word %d", i)
		}

		var ll float64
		if last {
			ll = likelihood(tokens, cs.LM, nil)
		} else {
			genDist := genDistFor(cs.Model, w)
			if genDist == nil {
				numOOV++
				hist.Update(nil)
				numWords++
				continue
			}
			ll = likelihood(tokens, cs.LM, cs.Model.Mem[w])
			hist.Update(genDist)
		}
		logProb += ll
		numWords++
	}
	return logProb, numWords, numOOV, nil
}

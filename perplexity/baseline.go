package perplexity

import (
	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

// ScoreBaseline computes the total log-probability of sentence under
// lm directly (no category marginalization), for scoring a plain word
// n-gram or an already-classed n-gram's output vocabulary. Grounded on
// the original's non-category ClassPerplexity scoring path.
func ScoreBaseline(lm fslm.Model, sentence []word.Id) (logProb float64, numWords, numOOV int, err error) {
	if len(sentence) < 2 {
		return 0, 0, 0, newErr(MalformedInput, "score_baseline: sentence too short (%d tokens)", len(sentence))
	}
	state := lm.Start()
	for i := 1; i < len(sentence); i++ {
		var w fslm.Weight
		if i == len(sentence)-1 {
			w = lm.Final(state)
		} else {
			state, w = lm.NextI(state, sentence[i])
		}
		if w == fslm.WEIGHT_LOG0 {
			numOOV++
		}
		logProb += float64(w)
		numWords++
	}
	return logProb, numWords, numOOV, nil
}

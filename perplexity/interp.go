package perplexity

import (
	"math"

	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

// Component is one scored model contributing to an interpolated
// perplexity evaluation: a per-word log-probability and its mixture
// weight.
type Component struct {
	LogProb float64
	Weight  float64 // linear mixture weight (>= 0); log-linear uses it as an exponent instead.
}

// LinearInterpolate combines components as a linear mixture:
// log( Σ_i weight_i * exp(logProb_i) ), the standard perplexity
// interpolation used to combine two or three component LMs (e.g. a
// category model with a word n-gram, or two category models trained
// with different splits).
func LinearInterpolate(components ...Component) float64 {
	lls := make([]float64, 0, len(components))
	for _, c := range components {
		if c.Weight <= 0 {
			continue
		}
		lls = append(lls, c.LogProb+logWeight(c.Weight))
	}
	return logSumExp(lls...)
}

// LogLinearInterpolate combines components as a log-linear (product
// of experts) mixture: Σ_i weight_i * logProb_i, normalized by the sum
// of weights so the result stays a valid per-word log-probability
// scale.
func LogLinearInterpolate(components ...Component) float64 {
	var weightedSum, weightTotal float64
	for _, c := range components {
		weightedSum += c.Weight * c.LogProb
		weightTotal += c.Weight
	}
	if weightTotal == 0 {
		return weightedSum
	}
	return weightedSum / weightTotal
}

// ScoreInterpolated walks sentence under two n-gram models in lockstep
// (each keeping its own state) and combines their per-word log-probs as
// a two-way linear mixture weight1/weight2=1-weight1. A word OOV in
// either model is charged to numOOV even though both components still
// advance their own state as usual (their WEIGHT_LOG0 contribution
// drops out of the log-sum-exp mixture on its own).
func ScoreInterpolated(weight1 float64, lm1, lm2 fslm.Model, sentence []word.Id) (logProb float64, numWords, numOOV int, err error) {
	if len(sentence) < 2 {
		return 0, 0, 0, newErr(MalformedInput, "score_interpolated: sentence too short (%d tokens)", len(sentence))
	}
	s1, s2 := lm1.Start(), lm2.Start()
	for i := 1; i < len(sentence); i++ {
		var w1, w2 fslm.Weight
		if i == len(sentence)-1 {
			w1, w2 = lm1.Final(s1), lm2.Final(s2)
		} else {
			s1, w1 = lm1.NextI(s1, sentence[i])
			s2, w2 = lm2.NextI(s2, sentence[i])
		}
		if w1 == fslm.WEIGHT_LOG0 || w2 == fslm.WEIGHT_LOG0 {
			numOOV++
		}
		logProb += LinearInterpolate(
			Component{LogProb: float64(w1), Weight: weight1},
			Component{LogProb: float64(w2), Weight: 1 - weight1},
		)
		numWords++
	}
	return logProb, numWords, numOOV, nil
}

// ScoreInterpolated3 is the three-way generalization of
// ScoreInterpolated: weights must sum to 1 (the caller is expected to
// have validated this per spec.md's MalformedInput tolerance of
// 1e-9; this function does not re-check it).
func ScoreInterpolated3(weight1, weight2 float64, lm1, lm2, lm3 fslm.Model, sentence []word.Id) (logProb float64, numWords, numOOV int, err error) {
	if len(sentence) < 2 {
		return 0, 0, 0, newErr(MalformedInput, "score_interpolated3: sentence too short (%d tokens)", len(sentence))
	}
	weight3 := 1 - weight1 - weight2
	s1, s2, s3 := lm1.Start(), lm2.Start(), lm3.Start()
	for i := 1; i < len(sentence); i++ {
		var w1, w2, w3 fslm.Weight
		if i == len(sentence)-1 {
			w1, w2, w3 = lm1.Final(s1), lm2.Final(s2), lm3.Final(s3)
		} else {
			s1, w1 = lm1.NextI(s1, sentence[i])
			s2, w2 = lm2.NextI(s2, sentence[i])
			s3, w3 = lm3.NextI(s3, sentence[i])
		}
		if w1 == fslm.WEIGHT_LOG0 || w2 == fslm.WEIGHT_LOG0 || w3 == fslm.WEIGHT_LOG0 {
			numOOV++
		}
		logProb += LinearInterpolate(
			Component{LogProb: float64(w1), Weight: weight1},
			Component{LogProb: float64(w2), Weight: weight2},
			Component{LogProb: float64(w3), Weight: weight3},
		)
		numWords++
	}
	return logProb, numWords, numOOV, nil
}

// ValidateWeights checks that interpolation weights sum to 1 within
// the tolerance spec.md's MalformedInput error kind requires for
// weight lines read from a CLI front-end or config file.
func ValidateWeights(weights ...float64) error {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		return newErr(MalformedInput, "interpolation weights sum to %.12g, want 1 (tol 1e-9)", sum)
	}
	return nil
}

func logWeight(w float64) float64 {
	if w <= 0 {
		return math.Inf(-1)
	}
	return math.Log(w)
}

// Command interppl scores a corpus under a linear mixture of two
// or three n-gram models (e.g. a word model and a class model), per
// spec.md 4.10's model-interpolation extension of C8.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/golang/glog"
	"github.com/kho/easy"
	"github.com/kho/word"

	"github.com/aalto-speech/classngram/cmd/ngramload"
	"github.com/aalto-speech/classngram/fslm"
	"github.com/aalto-speech/classngram/perplexity"
)

func main() {
	model1Flags := ngramload.Register("model1_", "n-gram LM, component 1")
	model2Flags := ngramload.Register("model2_", "n-gram LM, component 2")
	model3Flags := ngramload.Register("model3_", "optional n-gram LM, component 3 (three-way interpolation)")
	weight1 := flag.Float64("weight1", 0.5, "mixture weight of model1 (and, with model3, model2's weight is weight2)")
	weight2 := flag.Float64("weight2", 0.5, "mixture weight of model2 when model3 is given; ignored for two-way interpolation")
	easy.ParseFlagsAndArgs(nil)

	lm1, err := model1Flags.Load()
	if err != nil {
		glog.Fatal("loading model1: ", err)
	}
	lm2, err := model2Flags.Load()
	if err != nil {
		glog.Fatal("loading model2: ", err)
	}

	var lm3 fslm.Model
	threeWay := model3Flags.IsSet()
	if threeWay {
		lm3, err = model3Flags.Load()
		if err != nil {
			glog.Fatal("loading model3: ", err)
		}
		if err := perplexity.ValidateWeights(*weight1, *weight2, 1-*weight1-*weight2); err != nil {
			glog.Fatal(err)
		}
	} else if err := perplexity.ValidateWeights(*weight1, 1-*weight1); err != nil {
		glog.Fatal(err)
	}

	var total float64
	var numSents, numWords, numOOV int
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		sent := loadSentence(in.Bytes(), lm1)
		var lp float64
		var n, oov int
		var err error
		if threeWay {
			lp, n, oov, err = perplexity.ScoreInterpolated3(*weight1, *weight2, lm1, lm2, lm3, sent)
		} else {
			lp, n, oov, err = perplexity.ScoreInterpolated(*weight1, lm1, lm2, sent)
		}
		if err != nil {
			glog.Warningf("interppl: skipping sentence: %v", err)
			continue
		}
		total += lp
		numWords += n
		numOOV += oov
		numSents++
	}
	if err := in.Err(); err != nil {
		glog.Fatal(err)
	}

	fmt.Printf("%d sents, %d words, %d OOVs\n", numSents, numWords, numOOV)
	if numWords > 0 {
		fmt.Printf("logprob=%g ppl=%g ppl1=%g\n",
			total,
			math.Exp(-total/float64(numSents+numWords)*math.Log(10)),
			math.Exp(-total/float64(numWords)*math.Log(10)))
	}
}

func loadSentence(line []byte, lm fslm.Model) []word.Id {
	vocab, _, _, bosId, eosId := lm.Vocab()
	sent := []word.Id{bosId}
	for _, tok := range bytes.Fields(line) {
		sent = append(sent, vocab.IdOf(string(tok)))
	}
	sent = append(sent, eosId)
	return sent
}

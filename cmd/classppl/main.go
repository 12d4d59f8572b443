// Command classppl scores a corpus directly against a word (or
// already-classed) n-gram model, with no category marginalization. The
// model is loaded via -model (gob-encoded) or -arpa (ARPA text,
// compiled on load); see cmd/ngramload.
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
	lmFlags := ngramload.Register("", "n-gram LM")
	easy.ParseFlagsAndArgs(nil)

	lm, err := lmFlags.Load()
	if err != nil {
		glog.Fatal(err)
	}

	var total float64
	var numSents, numWords, numOOV int
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		sent := loadSentence(in.Bytes(), lm)
		lp, n, oov, err := perplexity.ScoreBaseline(lm, sent)
		if err != nil {
			glog.Warningf("classppl: skipping sentence: %v", err)
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

	report(total, numSents, numWords, numOOV)
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

func report(logProb float64, numSents, numWords, numOOV int) {
	fmt.Printf("%d sents, %d words, %d OOVs\n", numSents, numWords, numOOV)
	if numWords > 0 {
		fmt.Printf("logprob=%g ppl=%g ppl1=%g\n",
			logProb,
			math.Exp(-logProb/float64(numSents+numWords)*math.Log(10)),
			math.Exp(-logProb/float64(numWords)*math.Log(10)))
	}
}

// Command catppl scores a held-out corpus against a category n-gram
// (C9) marginalized over a soft category membership model (C6) via the
// bounded-history category perplexity evaluator (C8).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/kho/easy"
	"github.com/kho/word"

	"github.com/aalto-speech/classngram/categories"
	"github.com/aalto-speech/classngram/cmd/ngramload"
	"github.com/aalto-speech/classngram/corpus"
	"github.com/aalto-speech/classngram/perplexity"
)

func main() {
	var args struct {
		Mem   string `name:"mem" usage:".cmemprobs membership table"`
		Gen   string `name:"gen" usage:".cgenprobs generation table"`
		Vocab string `name:"vocab" usage:"word vocabulary file, one word per line, matching training"`
	}
	catLMFlags := ngramload.Register("catlm_", "category n-gram LM, indexed by category id")
	historyLen := flag.Int("history", 4, "bounded category history length")
	beamWidth := flag.Int("beam", 100, "history propagation beam width")
	rootUnkStates := flag.Bool("root_unk_states", false, "advance OOV history steps by <unk> instead of resetting them to the sentence-start node")
	easy.ParseFlagsAndArgs(&args)

	lm, err := catLMFlags.Load()
	if err != nil {
		glog.Fatal("loading category n-gram: ", err)
	}

	idx := corpus.NewIndex(false)
	if err := loadVocab(idx, args.Vocab); err != nil {
		glog.Fatal("loading vocabulary: ", err)
	}

	model, err := categories.ReadMemProbs(args.Mem, idx.Vocab)
	if err != nil {
		glog.Fatal("loading membership table: ", err)
	}
	if args.Gen != "" {
		gen, err := categories.ReadGenProbs(args.Gen, idx.Vocab)
		if err != nil {
			glog.Fatal("loading generation table: ", err)
		}
		model.Gen = gen
	}

	scorer := &perplexity.CategoryScorer{
		LM:            lm,
		Model:         model,
		HistoryLen:    *historyLen,
		BeamWidth:     *beamWidth,
		RootUnkStates: *rootUnkStates,
	}

	var total float64
	var numSents, numWords, numOOV int
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		sent := []word.Id{idx.BOSId}
		for _, tok := range strings.Fields(in.Text()) {
			w := idx.Vocab.IdOf(tok)
			if w == word.NIL {
				w = idx.UNKId
			}
			sent = append(sent, w)
		}
		sent = append(sent, idx.EOSId)

		lp, n, oov, err := scorer.Score(sent)
		if err != nil {
			glog.Warningf("catppl: skipping sentence: %v", err)
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

// loadVocab seeds idx's vocabulary from a word-per-line file so word
// ids line up with however the .cmemprobs/.cgenprobs tables (and the
// original training corpus) were built.
func loadVocab(idx *corpus.Index, path string) error {
	r, err := easy.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		idx.Vocab.IdOrAdd(line)
	}
	return s.Err()
}

// Command train-categories re-estimates a soft category membership
// model (C6) by EM over a fixed category n-gram (C9), using the
// token-passing segmenter (C7) as the E-step.
package main

import (
	"bufio"
	"flag"
	"strings"

	"github.com/golang/glog"
	"github.com/kho/easy"
	"github.com/kho/word"

	"github.com/aalto-speech/classngram/categories"
	"github.com/aalto-speech/classngram/cmd/ngramload"
	"github.com/aalto-speech/classngram/corpus"
)

func main() {
	var args struct {
		Corpus string `name:"corpus" usage:"training corpus, one sentence per line"`
		Init   string `name:"init" usage:"warm-start .cmemprobs file (a hard partition's or a prior run's)"`
		Output string `name:"output" usage:"output path prefix; writes <output>.cgenprobs and <output>.cmemprobs"`
	}
	catLMFlags := ngramload.Register("catlm_", "category n-gram LM")
	wordBoundary := flag.Bool("word_boundary", false, "corpus carries explicit <w> word-boundary tokens")
	vocabFile := flag.String("vocab", "", "optional vocabulary file restricting the corpus")
	initGen := flag.String("init_gen", "", "optional .cgenprobs file; defaults to reusing the warm-start .cmemprobs rows")
	numIters := flag.Int("iters", 10, "EM iterations")
	beamWidth := flag.Float64("beam", 15.0, "probability-beam width in nats")
	histogramBins := flag.Int("histogram_bins", 100, "histogram-prune bin count")
	maxActive := flag.Int("max_active", 200, "approximate max tokens kept per position")
	tagMode := flag.String("tag_mode", "none", "OOV tagging mode: none, first, or all")
	topK := flag.Int("top_k", 5, "max category hypotheses explored per tagged OOV position")
	order := flag.Int("order", 2, "category n-gram order, for gen-context scoring")
	easy.ParseFlagsAndArgs(&args)

	var mode categories.TagMode
	switch *tagMode {
	case "none":
		mode = categories.TagNone
	case "first":
		mode = categories.TagFirst
	case "all":
		mode = categories.TagAll
	default:
		glog.Fatalf("train-categories: --tag_mode must be none, first, or all, got %q", *tagMode)
	}

	idx := corpus.NewIndex(*wordBoundary)
	var restrict map[string]bool
	if *vocabFile != "" {
		r, err := corpus.ReadVocabFile(*vocabFile)
		if err != nil {
			glog.Fatal(err)
		}
		restrict = r
	}
	if err := idx.ReadCorpus(args.Corpus, restrict); err != nil {
		glog.Fatal(err)
	}

	lm, err := catLMFlags.Load()
	if err != nil {
		glog.Fatal("loading category n-gram: ", err)
	}

	model, err := categories.ReadMemProbs(args.Init, idx.Vocab)
	if err != nil {
		glog.Fatal("loading warm-start membership table: ", err)
	}
	if *initGen != "" {
		gen, err := categories.ReadGenProbs(*initGen, idx.Vocab)
		if err != nil {
			glog.Fatal("loading warm-start generation table: ", err)
		}
		model.Gen = gen
	}
	if err := model.Validate(); err != nil {
		glog.Fatal("warm-start model: ", err)
	}

	sentences, err := loadSentences(args.Corpus, idx, restrict)
	if err != nil {
		glog.Fatal(err)
	}
	numWords := int(idx.Vocab.Bound())

	for iter := 0; iter < *numIters; iter++ {
		sg := categories.NewSegmenter(model, lm, *beamWidth, *histogramBins, *maxActive)
		sg.TagMode = mode
		sg.TopK = *topK
		sg.Order = *order
		stats := categories.NewStats(numWords)
		skipped := 0
		for _, sent := range sentences {
			if err := sg.Accumulate(sent, stats); err != nil {
				skipped++
				continue
			}
		}
		model = categories.EstimateModel(model.NumCategories, stats.Joint)
		glog.Infof("train-categories: iter %d done, %d/%d sentences skipped", iter+1, skipped, len(sentences))
	}

	if err := model.Validate(); err != nil {
		glog.Warningf("final model fails normalization check: %v", err)
	}
	if err := model.WriteGenProbs(args.Output+".cgenprobs", idx.Vocab); err != nil {
		glog.Fatal(err)
	}
	if err := model.WriteMemProbs(args.Output+".cmemprobs", idx.Vocab); err != nil {
		glog.Fatal(err)
	}
}

// loadSentences re-reads corpus (already scanned once by idx.ReadCorpus
// to populate the vocabulary) into per-sentence word.Id slices, since
// Index itself only retains aggregate counts.
func loadSentences(path string, idx *corpus.Index, restrict map[string]bool) ([][]word.Id, error) {
	r, err := easy.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var sentences [][]word.Id
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		sent := make([]word.Id, 0, len(fields)+2)
		sent = append(sent, idx.BOSId)
		for _, tok := range fields {
			if tok == corpus.WB && !idx.WordBoundary {
				continue
			}
			if restrict != nil && !restrict[tok] {
				sent = append(sent, idx.UNKId)
				continue
			}
			w := idx.Vocab.IdOf(tok)
			if w == word.NIL {
				w = idx.UNKId
			}
			sent = append(sent, w)
		}
		sent = append(sent, idx.EOSId)
		sentences = append(sentences, sent)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return sentences, nil
}

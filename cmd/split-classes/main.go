// Command split-classes loads an existing hard partition and grows the
// live class count by splitting high-scoring classes, refining each
// candidate split with local exchange (C5b).
package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/kho/easy"

	"github.com/aalto-speech/classngram/classes"
	"github.com/aalto-speech/classngram/corpus"
)

func main() {
	var args struct {
		Corpus string `name:"corpus" usage:"training corpus, one sentence per line"`
		Init   string `name:"init" usage:"input class-assignment file (as written by train-exchange)"`
		Output string `name:"output" usage:"output path prefix; writes <output>.classes and <output>.cmemprobs"`
	}
	numClasses := flag.Int("num_classes", 500, "number of data class slots the input partition was trained with")
	wordBoundary := flag.Bool("word_boundary", false, "corpus carries explicit <w> word-boundary tokens")
	vocabFile := flag.String("vocab", "", "optional vocabulary file restricting the corpus")
	target := flag.Int("target", 500, "number of live classes to grow to")
	numCandidates := flag.Int("num_candidates", 5, "split candidates evaluated per round")
	localSweeps := flag.Int("local_sweeps", 2, "local exchange rounds refining each split candidate")
	threshold := flag.Float64("threshold", 0, "minimum Δ log-likelihood required to keep a split")
	easy.ParseFlagsAndArgs(&args)

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

	store := classes.NewStore(idx, *numClasses)
	assign, err := classes.ReadClassInit(args.Init, idx.Vocab)
	if err != nil {
		glog.Fatal(err)
	}
	if err := store.InitPreset(assign); err != nil {
		glog.Fatal(err)
	}

	glog.Infof("split-classes: starting live=%d ll=%.6f", store.NumLiveClasses(), store.LogLikelihood())
	splits, err := store.SplitClasses(*target, *numCandidates, *localSweeps, *threshold)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("split-classes: %d splits, live=%d ll=%.6f", splits, store.NumLiveClasses(), store.LogLikelihood())

	if err := store.WriteClasses(args.Output + ".classes"); err != nil {
		glog.Fatal(err)
	}
	if err := store.WriteClassMemProbs(args.Output + ".cmemprobs"); err != nil {
		glog.Fatal(err)
	}
}

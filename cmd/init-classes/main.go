// Command init-classes builds an initial hard class assignment from a
// corpus — by frequency round-robin or from a preset class-init file —
// without running any exchange sweeps, for callers who want to seed
// merge-classes, split-classes, or a later train-exchange run from a
// fixed starting point (spec.md Section 6's "init" front-end).
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
		Output string `name:"output" usage:"output path prefix; writes <output>.classes and <output>.cmemprobs"`
	}
	numClasses := flag.Int("num_classes", 500, "number of data classes")
	wordBoundary := flag.Bool("word_boundary", false, "corpus carries explicit <w> word-boundary tokens")
	vocabFile := flag.String("vocab", "", "optional vocabulary file restricting the corpus")
	classInit := flag.String("class_init", "", "optional preset class-assignment file; overrides frequency init")
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
	if *classInit != "" {
		assign, err := classes.ReadClassInit(*classInit, idx.Vocab)
		if err != nil {
			glog.Fatal(err)
		}
		if err := store.InitPreset(assign); err != nil {
			glog.Fatal(err)
		}
	} else {
		if err := store.InitByFrequency(); err != nil {
			glog.Fatal(err)
		}
	}

	glog.Infof("init-classes: %d live classes, ll=%.6f", store.NumLiveClasses(), store.LogLikelihood())

	if err := store.WriteClasses(args.Output + ".classes"); err != nil {
		glog.Fatal(err)
	}
	if err := store.WriteClassMemProbs(args.Output + ".cmemprobs"); err != nil {
		glog.Fatal(err)
	}
}

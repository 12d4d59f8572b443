// Command merge-classes loads an existing hard partition and merges
// live classes down to a target count (C5a).
package main

import (
	"flag"
	"math/rand"

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
	target := flag.Int("target", 250, "number of live classes to merge down to")
	evalsPerClass := flag.Int("evals_per_class", 2, "candidate pairs sampled per live class, per round")
	numWorkers := flag.Int("workers", 4, "goroutines evaluating candidate merges per round")
	seed := flag.Int64("seed", 1, "seed for the candidate-pair sampler")
	superClassFile := flag.String("super_classes", "", "optional super-class file confining merges within declared groups")
	easy.ParseFlagsAndArgs(&args)

	var super *classes.SuperClasses
	if *superClassFile != "" {
		sc, err := classes.ReadSuperClasses(*superClassFile)
		if err != nil {
			glog.Fatal(err)
		}
		super = sc
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

	store := classes.NewStore(idx, *numClasses)
	assign, err := classes.ReadClassInit(args.Init, idx.Vocab)
	if err != nil {
		glog.Fatal(err)
	}
	if err := store.InitPreset(assign); err != nil {
		glog.Fatal(err)
	}

	glog.Infof("merge-classes: starting live=%d ll=%.6f", store.NumLiveClasses(), store.LogLikelihood())
	merges, err := store.MergeClassesSuper(*target, *evalsPerClass, rand.New(rand.NewSource(*seed)), *numWorkers, super)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("merge-classes: %d merges, live=%d ll=%.6f", merges, store.NumLiveClasses(), store.LogLikelihood())

	if err := store.WriteClasses(args.Output + ".classes"); err != nil {
		glog.Fatal(err)
	}
	if err := store.WriteClassMemProbs(args.Output + ".cmemprobs"); err != nil {
		glog.Fatal(err)
	}
}

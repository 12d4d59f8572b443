// Command train-exchange builds a hard word-class partition by
// frequency-based initialization followed by exchange sweeps to
// convergence (C2-C4).
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
	superClassFile := flag.String("super_classes", "", "optional super-class file confining exchanges within declared groups; requires --class_init")
	numWorkers := flag.Int("workers", 4, "goroutines evaluating candidate moves per sweep")
	maxSweeps := flag.Int("max_sweeps", 20, "maximum exchange sweeps")
	easy.ParseFlagsAndArgs(&args)

	if *superClassFile != "" && *classInit == "" {
		glog.Fatal("train-exchange: --super_classes requires --class_init (ConfigConflict)")
	}
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

	glog.Infof("train-exchange: starting ll=%.6f", store.LogLikelihood())
	moves, err := store.IterateExchangeToConvergenceSuper(*numWorkers, *maxSweeps, super)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("train-exchange: converged after %d total moves, ll=%.6f", moves, store.LogLikelihood())

	if err := store.WriteClasses(args.Output + ".classes"); err != nil {
		glog.Fatal(err)
	}
	if err := store.WriteClassMemProbs(args.Output + ".cmemprobs"); err != nil {
		glog.Fatal(err)
	}
}

package classes

import (
	"bufio"
	"fmt"
	"math"
	"sort"

	"github.com/kho/easy"
	"github.com/kho/word"
)

// WriteClasses writes the current hard partition as "<word>\t<class>"
// lines, one per non-reserved word, sorted by class then word for a
// stable diff between checkpoints. ReadClassInit parses this format
// back.
func (s *Store) WriteClasses(path string) error {
	w, err := easy.Create(path)
	if err != nil {
		return wrapErr(IO, err, "write_classes: creating %q", path)
	}
	defer w.Close()
	bw := bufio.NewWriter(w)

	type entry struct {
		word  word.Id
		class int
	}
	var entries []entry
	for wi := 0; wi < len(s.WordClass); wi++ {
		if s.IsReserved(word.Id(wi)) {
			continue
		}
		entries = append(entries, entry{word.Id(wi), s.WordClass[wi]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].class != entries[j].class {
			return entries[i].class < entries[j].class
		}
		return entries[i].word < entries[j].word
	})

	for _, e := range entries {
		fmt.Fprintf(bw, "%s\t%d\n", s.Index.Vocab.StringOf(e.word), e.class)
	}
	if err := bw.Flush(); err != nil {
		return wrapErr(IO, err, "write_classes: flushing %q", path)
	}
	return nil
}

// WriteClassMemProbs writes the hard partition in the same
// "<word>\t<class> <logprob>" format the soft category model's
// .cmemprobs files use (one category per word, since a hard partition
// is a degenerate category model), with
// logprob = log(word_count[w]/class_count[c]) per spec.md Section 6
// (p(w|c) under the hard assignment's maximum-likelihood estimate).
// This lets downstream segmentation/perplexity tooling treat a hard
// partition as a degenerate category model via categories.ReadMemProbs.
func (s *Store) WriteClassMemProbs(path string) error {
	w, err := easy.Create(path)
	if err != nil {
		return wrapErr(IO, err, "write_class_mem_probs: creating %q", path)
	}
	defer w.Close()
	bw := bufio.NewWriter(w)

	type entry struct {
		word  word.Id
		class int
	}
	var entries []entry
	for wi := 0; wi < len(s.WordClass); wi++ {
		if s.IsReserved(word.Id(wi)) {
			continue
		}
		entries = append(entries, entry{word.Id(wi), s.WordClass[wi]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].class != entries[j].class {
			return entries[i].class < entries[j].class
		}
		return entries[i].word < entries[j].word
	})

	for _, e := range entries {
		lp := math.Inf(-1)
		if cc := s.ClassCount[e.class]; cc > 0 {
			lp = math.Log(float64(s.Index.WordCount[e.word])) - math.Log(float64(cc))
		}
		fmt.Fprintf(bw, "%s\t%d %.6f\n", s.Index.Vocab.StringOf(e.word), e.class, lp)
	}
	if err := bw.Flush(); err != nil {
		return wrapErr(IO, err, "write_class_mem_probs: flushing %q", path)
	}
	return nil
}

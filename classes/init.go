package classes

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/kho/easy"
	"github.com/kho/word"
)

// InitByFrequency assigns every non-reserved word to a data class by
// round-robin over descending unigram frequency (ties broken by word
// id, for determinism), then derives the count tables.
func (s *Store) InitByFrequency() error {
	numSpecial := s.numSpecial()
	numData := s.NumClasses - numSpecial
	if numData <= 0 {
		return newErr(ConfigConflict, "init_by_frequency: no data classes configured")
	}

	type entry struct {
		w   word.Id
		cnt uint64
	}
	words := make([]entry, 0, len(s.WordClass))
	for w := 0; w < len(s.WordClass); w++ {
		if s.IsReserved(word.Id(w)) {
			continue
		}
		words = append(words, entry{word.Id(w), s.Index.WordCount[w]})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].cnt != words[j].cnt {
			return words[i].cnt > words[j].cnt
		}
		return words[i].w < words[j].w
	})

	for i, e := range words {
		s.WordClass[e.w] = numSpecial + i%numData
	}
	s.SetClassCounts()
	glog.Infof("classes: initialized %d words into %d data classes by frequency", len(words), numData)
	return nil
}

// InitPreset applies an explicit word -> class assignment (e.g. parsed
// by ReadClassInit) and derives the count tables. Reserved words may
// not be reassigned.
func (s *Store) InitPreset(assign map[word.Id]int) error {
	for w, c := range assign {
		if s.IsReserved(w) {
			return newErr(ConfigConflict, "init_preset: word %d is reserved, cannot reassign", w)
		}
		if c < s.numSpecial() || c >= s.NumClasses {
			return newErr(ConfigConflict, "init_preset: class %d out of range [%d,%d)", c, s.numSpecial(), s.NumClasses)
		}
		s.WordClass[w] = c
	}
	s.SetClassCounts()
	return nil
}

// ReadClassInit parses a preset class-assignment file, resolving each
// word string against idx's vocabulary. Two line shapes are accepted
// per spec.md Section 6: WriteClasses' own round-trip output,
// "<word>\t<class>", and a category-probability table's
// "<word>\t<class1> <logp1> <class2> <logp2> …" (e.g. warm-starting
// exchange from a prior .cmemprobs run) — when multiple classes are
// given, the reader selects the one with the highest logprob. Words
// not already in the vocabulary are an error: a preset assignment can
// only reassign words the corpus already knows about.
func ReadClassInit(path string, idx vocabLookup) (map[word.Id]int, error) {
	r, err := easy.Open(path)
	if err != nil {
		return nil, wrapErr(IO, err, "read_class_init: opening %q", path)
	}
	defer r.Close()

	assign := make(map[word.Id]int)
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, newErr(MalformedInput, "read_class_init: %q line %d: expected \"<word>\\t<class>[ <logprob>]…\"", path, lineNo)
		}
		w := idx.IdOf(parts[0])
		if w == word.NIL {
			return nil, newErr(MalformedInput, fmt.Sprintf("read_class_init: %q line %d: unknown word %q", path, lineNo, parts[0]))
		}
		c, err := bestClass(parts[1])
		if err != nil {
			return nil, wrapErr(MalformedInput, err, "read_class_init: %q line %d", path, lineNo)
		}
		assign[w] = c
	}
	if err := s.Err(); err != nil {
		return nil, wrapErr(IO, err, "read_class_init: reading %q", path)
	}
	return assign, nil
}

// bestClass parses the portion of a class-init line after the word and
// its tab: either a bare class index, or alternating "<class> <logp>"
// pairs, in which case the highest-logprob class wins.
func bestClass(rest string) (int, error) {
	fields := strings.Fields(rest)
	switch {
	case len(fields) == 1:
		return strconv.Atoi(fields[0])
	case len(fields) >= 2 && len(fields)%2 == 0:
		bestC, bestLp := 0, 0.0
		found := false
		for i := 0; i < len(fields); i += 2 {
			c, err := strconv.Atoi(fields[i])
			if err != nil {
				return 0, fmt.Errorf("bad class index %q: %w", fields[i], err)
			}
			lp, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return 0, fmt.Errorf("bad log-probability %q: %w", fields[i+1], err)
			}
			if !found || lp > bestLp {
				bestC, bestLp, found = c, lp, true
			}
		}
		return bestC, nil
	default:
		return 0, fmt.Errorf("expected a class index or alternating <class> <logprob> pairs, got %q", rest)
	}
}

// vocabLookup is the narrow slice of *word.Vocab that ReadClassInit
// needs, so it can be driven straight off corpus.Index.Vocab.
type vocabLookup interface {
	IdOf(string) word.Id
}

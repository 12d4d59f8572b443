// Package corpus builds the vocabulary and bigram statistics (component
// C1) that the class-state store and category model are trained from.
package corpus

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/kho/easy"
	"github.com/kho/word"
)

// Reserved token strings. Every Index carries these at fixed, known ids.
const (
	BOS = "<s>"
	EOS = "</s>"
	UNK = "<unk>"
	WB  = "<w>"
)

// Index holds the corpus-derived vocabulary and count tables that every
// downstream component (classes, categories) is built from.
type Index struct {
	Vocab *word.Vocab

	BOSId, EOSId, UNKId word.Id
	WBId                word.Id // word.NIL when word-boundary tokens are disabled.

	WordCount []uint64             // indexed by word.Id.
	Bigram    []map[word.Id]uint64 // forward: Bigram[w1][w2].
	RevBigram []map[word.Id]uint64 // reverse: RevBigram[w2][w1].

	WordBoundary bool
	NumSents     int
}

// NewIndex creates an empty Index with the reserved vocabulary entries
// (<s>, </s>, <unk>, and optionally <w>) pre-populated at fixed ids.
func NewIndex(wordBoundary bool) *Index {
	names := []string{BOS, EOS, UNK}
	if wordBoundary {
		names = append(names, WB)
	}
	v := word.NewVocab(names)
	idx := &Index{
		Vocab:        v,
		BOSId:        v.IdOf(BOS),
		EOSId:        v.IdOf(EOS),
		UNKId:        v.IdOf(UNK),
		WordBoundary: wordBoundary,
	}
	if wordBoundary {
		idx.WBId = v.IdOf(WB)
	} else {
		idx.WBId = word.NIL
	}
	idx.growTo(v.Bound())
	return idx
}

func (idx *Index) growTo(bound word.Id) {
	for word.Id(len(idx.WordCount)) < bound {
		idx.WordCount = append(idx.WordCount, 0)
		idx.Bigram = append(idx.Bigram, nil)
		idx.RevBigram = append(idx.RevBigram, nil)
	}
}

// idOf resolves a token to a word.Id, restricting to restrict (when
// non-nil) and otherwise mapping unseen words to <unk>; restrict nil
// means every word is accepted and added to the vocabulary.
func (idx *Index) idOf(tok string, restrict map[string]bool) word.Id {
	if restrict != nil && !restrict[tok] {
		return idx.UNKId
	}
	id := idx.Vocab.IdOrAdd(tok)
	idx.growTo(idx.Vocab.Bound())
	return id
}

func (idx *Index) bump(w word.Id, delta uint64) {
	idx.WordCount[w] += delta
}

func (idx *Index) bumpBigram(w1, w2 word.Id) {
	if idx.Bigram[w1] == nil {
		idx.Bigram[w1] = make(map[word.Id]uint64)
	}
	idx.Bigram[w1][w2]++
	if idx.RevBigram[w2] == nil {
		idx.RevBigram[w2] = make(map[word.Id]uint64)
	}
	idx.RevBigram[w2][w1]++
}

// ReadVocabFile reads one word per line and returns the set used to
// restrict ReadCorpus; everything outside this set becomes <unk>.
func ReadVocabFile(path string) (map[string]bool, error) {
	r, err := easy.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: opening vocabulary file %q: %w", path, err)
	}
	defer r.Close()
	restrict := make(map[string]bool)
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		restrict[line] = true
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("corpus: reading vocabulary file %q: %w", path, err)
	}
	return restrict, nil
}

// ReadCorpus scans one sentence per line, augments it with <s> ... </s>,
// drops <w> tokens when the Index was built with wordBoundary disabled,
// and accumulates unigram and forward/reverse bigram counts. restrict,
// when non-nil, is the set from ReadVocabFile; anything outside it maps
// to <unk>.
func (idx *Index) ReadCorpus(path string, restrict map[string]bool) error {
	r, err := easy.Open(path)
	if err != nil {
		return fmt.Errorf("corpus: opening corpus file %q: %w", path, err)
	}
	defer r.Close()

	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		idx.AddSentence(strings.Fields(s.Text()), restrict)
		if idx.NumSents%100000 == 0 {
			glog.Infof("corpus: read %d sentences", idx.NumSents)
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("corpus: reading corpus file %q at line %d: %w", path, lineNo, err)
	}
	glog.Infof("corpus: %d sentences, %d word types", idx.NumSents, idx.Vocab.Bound())
	return nil
}

// AddSentence augments tokens with <s> ... </s>, drops <w> tokens when
// the Index was built with wordBoundary disabled, and accumulates
// unigram and forward/reverse bigram counts. restrict, when non-nil, is
// the set from ReadVocabFile; anything outside it maps to <unk>. Exposed
// directly (not just via ReadCorpus) so callers, including tests, can
// build an Index from in-memory sentences without a backing file.
func (idx *Index) AddSentence(tokens []string, restrict map[string]bool) {
	sent := make([]word.Id, 0, len(tokens)+2)
	sent = append(sent, idx.BOSId)
	for _, tok := range tokens {
		if tok == WB && !idx.WordBoundary {
			continue
		}
		sent = append(sent, idx.idOf(tok, restrict))
	}
	sent = append(sent, idx.EOSId)

	for i, w := range sent {
		idx.bump(w, 1)
		if i > 0 {
			idx.bumpBigram(sent[i-1], w)
		}
	}
	idx.NumSents++
}

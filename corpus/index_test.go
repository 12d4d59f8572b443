package corpus

import (
	"testing"

	"github.com/kho/word"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex(false)
	sentences := [][]string{
		{"the", "cat", "sat"},
		{"the", "dog", "ran"},
		{"the", "cat", "ran"},
		{"the", "dog", "sat"},
	}
	for _, s := range sentences {
		idx.AddSentence(s, nil)
	}
	return idx
}

func TestAddSentenceCounts(t *testing.T) {
	idx := buildTestIndex(t)

	if idx.NumSents != 4 {
		t.Fatalf("NumSents = %d, want 4", idx.NumSents)
	}
	the := idx.Vocab.IdOf("the")
	if the == word.NIL {
		t.Fatalf("word %q not found", "the")
	}
	if got := idx.WordCount[the]; got != 4 {
		t.Errorf("WordCount[the] = %d, want 4", got)
	}
	if got := idx.WordCount[idx.BOSId]; got != 4 {
		t.Errorf("WordCount[<s>] = %d, want 4", got)
	}
	if got := idx.Bigram[idx.BOSId][the]; got != 4 {
		t.Errorf("Bigram[<s>][the] = %d, want 4", got)
	}
	cat := idx.Vocab.IdOf("cat")
	sat := idx.Vocab.IdOf("sat")
	if got := idx.Bigram[cat][sat]; got != 1 {
		t.Errorf("Bigram[cat][sat] = %d, want 1", got)
	}
	if got := idx.RevBigram[sat][cat]; got != 1 {
		t.Errorf("RevBigram[sat][cat] = %d, want 1", got)
	}
}

func TestAddSentenceRestrict(t *testing.T) {
	idx := NewIndex(false)
	restrict := map[string]bool{"the": true, "cat": true}
	idx.AddSentence([]string{"the", "cat", "sat"}, restrict)

	if got := idx.Vocab.IdOf("sat"); got != word.NIL {
		t.Errorf("IdOf(sat) = %d, want word.NIL (never added to vocab)", got)
	}
	if got := idx.WordCount[idx.UNKId]; got != 1 {
		t.Errorf("WordCount[<unk>] = %d, want 1", got)
	}
}

func TestWordBoundaryToken(t *testing.T) {
	withWB := NewIndex(true)
	withWB.AddSentence([]string{"a", "<w>", "b"}, nil)
	if got := withWB.WordCount[withWB.WBId]; got != 1 {
		t.Errorf("word-boundary enabled: WordCount[<w>] = %d, want 1", got)
	}

	withoutWB := NewIndex(false)
	withoutWB.AddSentence([]string{"a", "<w>", "b"}, nil)
	a := withoutWB.Vocab.IdOf("a")
	b := withoutWB.Vocab.IdOf("b")
	if got := withoutWB.Bigram[a][b]; got != 1 {
		t.Errorf("word-boundary disabled: Bigram[a][b] = %d, want 1 (<w> should be dropped)", got)
	}
}

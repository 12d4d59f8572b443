package categories

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kho/easy"
	"github.com/kho/word"
)

type vocabLookup interface {
	IdOf(string) word.Id
	StringOf(word.Id) string
}

// writeProbTable writes table in the spec.md Section 6 .cgenprobs/
// .cmemprobs format: one line per word with a non-empty row,
// "<word>\t<c1> <logp1> <c2> <logp2> …\n", categories sorted ascending
// for a stable diff between checkpoints.
func writeProbTable(path string, vocab vocabLookup, table []map[int]float64) error {
	w, err := easy.Create(path)
	if err != nil {
		return wrapErr(IO, err, "writing %q", path)
	}
	defer w.Close()
	bw := bufio.NewWriter(w)

	for wi, m := range table {
		if len(m) == 0 {
			continue
		}
		cats := make([]int, 0, len(m))
		for c := range m {
			cats = append(cats, c)
		}
		sort.Ints(cats)
		fmt.Fprintf(bw, "%s\t", vocab.StringOf(word.Id(wi)))
		for i, c := range cats {
			if i > 0 {
				fmt.Fprint(bw, " ")
			}
			fmt.Fprintf(bw, "%d %.6f", c, m[c])
		}
		fmt.Fprint(bw, "\n")
	}
	return bw.Flush()
}

// WriteGenProbs writes m.Gen (p(c|w)) as
// "<word>\t<category> <logprob> <category> <logprob>…" lines, one per
// word with at least one retained entry.
func (m *Model) WriteGenProbs(path string, vocab vocabLookup) error {
	if err := writeProbTable(path, vocab, m.Gen); err != nil {
		return wrapErr(IO, err, "write_gen_probs")
	}
	return nil
}

// WriteMemProbs writes m.Mem (p(w|c)) in the same format. A hard
// partition's WriteClassMemProbs output is a valid degenerate instance
// of this format (one entry per word, logprob
// log(word_count/class_count)).
func (m *Model) WriteMemProbs(path string, vocab vocabLookup) error {
	if err := writeProbTable(path, vocab, m.Mem); err != nil {
		return wrapErr(IO, err, "write_mem_probs")
	}
	return nil
}

func readProbTable(path string, vocab vocabLookup) ([]map[int]float64, int, error) {
	r, err := easy.Open(path)
	if err != nil {
		return nil, 0, wrapErr(IO, err, "opening %q", path)
	}
	defer r.Close()

	var table []map[int]float64
	numCategories := 0
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
			return nil, 0, newErr(MalformedInput, "%q line %d: expected \"<word>\\t<class> <logprob> …\"", path, lineNo)
		}
		wId := vocab.IdOf(parts[0])
		if wId == word.NIL {
			return nil, 0, newErr(MalformedInput, fmt.Sprintf("%q line %d: unknown word %q", path, lineNo, parts[0]))
		}
		fields := strings.Fields(parts[1])
		if len(fields) == 0 || len(fields)%2 != 0 {
			return nil, 0, newErr(MalformedInput, "%q line %d: expected an even number of <class> <logprob> fields", path, lineNo)
		}
		for int(wId) >= len(table) {
			table = append(table, nil)
		}
		if table[wId] == nil {
			table[wId] = make(map[int]float64, len(fields)/2)
		}
		for i := 0; i < len(fields); i += 2 {
			c, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, 0, wrapErr(MalformedInput, err, "%q line %d: bad category index", path, lineNo)
			}
			lp, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, 0, wrapErr(MalformedInput, err, "%q line %d: bad log-probability", path, lineNo)
			}
			table[wId][c] = lp
			if c+1 > numCategories {
				numCategories = c + 1
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, 0, wrapErr(IO, err, "reading %q", path)
	}
	return table, numCategories, nil
}

// ReadMemProbs loads a membership-probability file — either a genuine
// soft .cmemprobs table or, as a degenerate case, a hard partition's
// WriteClassMemProbs output — into a Model. Gen is populated from the
// same rows: a row with a single category (as every row of a hard
// partition has) gets p(c|w) = 1 for that category, which is exact;
// rows with several categories are copied from Mem unchanged, so for a
// genuine soft model, load Gen separately with ReadGenProbs and
// overwrite the Model's Gen field after this call.
func ReadMemProbs(path string, vocab vocabLookup) (*Model, error) {
	table, numCategories, err := readProbTable(path, vocab)
	if err != nil {
		return nil, wrapErr(IO, err, "read_mem_probs")
	}
	gen := make([]map[int]float64, len(table))
	for w, row := range table {
		if row == nil {
			continue
		}
		gen[w] = make(map[int]float64, len(row))
		for c, lp := range row {
			if len(row) == 1 {
				lp = 0
			}
			gen[w][c] = lp
		}
	}
	return &Model{NumCategories: numCategories, Gen: gen, Mem: table}, nil
}

// ReadGenProbs loads a p(c|w) file written by WriteGenProbs.
func ReadGenProbs(path string, vocab vocabLookup) ([]map[int]float64, error) {
	table, _, err := readProbTable(path, vocab)
	if err != nil {
		return nil, wrapErr(IO, err, "read_gen_probs")
	}
	return table, nil
}

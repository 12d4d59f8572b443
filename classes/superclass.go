package classes

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/kho/easy"
)

// SuperClasses is an optional exchange/merge constraint read from a
// super-class file (spec.md Section 6): one line per super-class,
// comma-separated class indices. Classes not mentioned in any group are
// unrestricted for exchange (a word in such a class may exchange into
// any other data class); for merging, they are paired only with one
// another, never with a grouped class.
type SuperClasses struct {
	Groups  [][]int
	groupOf map[int]int // class index -> index into Groups, absent if unrestricted
}

// ReadSuperClasses parses a super-class file. Class indices are taken
// at face value (no range check against a Store, since this file is
// typically loaded before a Store is built); the caller should ignore
// out-of-range indices or treat them as a ConfigConflict.
func ReadSuperClasses(path string) (*SuperClasses, error) {
	r, err := easy.Open(path)
	if err != nil {
		return nil, wrapErr(IO, err, "read_super_classes: opening %q", path)
	}
	defer r.Close()

	sc := &SuperClasses{groupOf: make(map[int]int)}
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var group []int
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			c, err := strconv.Atoi(tok)
			if err != nil {
				return nil, wrapErr(MalformedInput, err, "%q line %d: bad class index %q", path, lineNo, tok)
			}
			group = append(group, c)
		}
		if len(group) == 0 {
			continue
		}
		gi := len(sc.Groups)
		sc.Groups = append(sc.Groups, group)
		for _, c := range group {
			sc.groupOf[c] = gi
		}
	}
	if err := s.Err(); err != nil {
		return nil, wrapErr(IO, err, "read_super_classes: reading %q", path)
	}
	return sc, nil
}

// candidatesFor returns the data-class indices eligible as an exchange
// destination for a word currently in class cur: the rest of cur's
// super-class group if it has one, otherwise every data class from
// numSpecial to numClasses (the unrestricted baseline).
func (sc *SuperClasses) candidatesFor(cur, numSpecial, numClasses int) []int {
	if sc != nil {
		if gi, ok := sc.groupOf[cur]; ok {
			group := sc.Groups[gi]
			out := make([]int, 0, len(group))
			for _, c := range group {
				if c != cur && c >= numSpecial && c < numClasses {
					out = append(out, c)
				}
			}
			return out
		}
	}
	out := make([]int, 0, numClasses-numSpecial)
	for c := numSpecial; c < numClasses; c++ {
		if c != cur {
			out = append(out, c)
		}
	}
	return out
}

// pairPool returns the set of live-class pairs MergeClasses may sample
// from: every pair of live classes when sc is nil; otherwise the
// within-group pairs plus the pairs among live classes outside any
// group (an ungrouped class is never paired with a grouped one).
func (sc *SuperClasses) pairPool(live []int) [][2]int {
	if sc == nil {
		var pairs [][2]int
		for i, a := range live {
			for _, b := range live[i+1:] {
				pairs = append(pairs, [2]int{a, b})
			}
		}
		return pairs
	}
	byGroup := make(map[int][]int)
	var ungrouped []int
	for _, c := range live {
		if gi, ok := sc.groupOf[c]; ok {
			byGroup[gi] = append(byGroup[gi], c)
		} else {
			ungrouped = append(ungrouped, c)
		}
	}
	var pairs [][2]int
	for _, group := range byGroup {
		for i, a := range group {
			for _, b := range group[i+1:] {
				pairs = append(pairs, [2]int{a, b})
			}
		}
	}
	for i, a := range ungrouped {
		for _, b := range ungrouped[i+1:] {
			pairs = append(pairs, [2]int{a, b})
		}
	}
	return pairs
}

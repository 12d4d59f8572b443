package classes

import (
	"sort"

	"github.com/golang/glog"
	"github.com/kho/word"
)

// candidateClasses scores live data classes by 0.5 * (class's share of
// word types) + 0.5 * (class's share of corpus tokens), generalizing
// the original find_candidate_classes heuristic, and returns the top n
// by score, largest first, excluding any class index in stoplist (spec
// 4.7: classes whose last split attempt scored below threshold).
func (s *Store) candidateClasses(n int, stoplist map[int]bool) []int {
	var live []int
	for _, c := range s.liveDataClasses() {
		if !stoplist[c] {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil
	}
	var totalTokens uint64
	for w := 0; w < len(s.Index.WordCount); w++ {
		totalTokens += s.Index.WordCount[w]
	}
	numTypes := float64(len(s.WordClass))

	type scored struct {
		c     int
		score float64
	}
	scores := make([]scored, len(live))
	for i, c := range live {
		classFrac := float64(len(s.Classes[c])) / numTypes
		tokenFrac := float64(s.ClassCount[c]) / float64(totalTokens)
		scores[i] = scored{c, 0.5*classFrac + 0.5*tokenFrac}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].c < scores[j].c
	})
	if n > len(scores) {
		n = len(scores)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].c
	}
	return out
}

func (s *Store) memberUnion(a, b int) map[word.Id]bool {
	out := make(map[word.Id]bool, len(s.Classes[a])+len(s.Classes[b]))
	for w := range s.Classes[a] {
		out[w] = true
	}
	for w := range s.Classes[b] {
		out[w] = true
	}
	return out
}

// trySplit splits class c with FreqSplit, refines the resulting pair
// (c, y) with up to localSweeps rounds of exchange restricted to
// moves between c and y, and reports the log-likelihood before and
// after. The split is left committed; the caller decides whether to
// keep it or undo it with DoMerge(c, y).
func (s *Store) trySplit(c, localSweeps int) (y int, before, after float64, err error) {
	before = s.LogLikelihood()
	class1, class2 := s.FreqSplit(c)
	y, err = s.DoSplit(c, class1, class2)
	if err != nil {
		return 0, before, before, err
	}

	for i := 0; i < localSweeps; i++ {
		moved := 0
		for w := range s.memberUnion(c, y) {
			cur := s.WordClass[w]
			other := c
			if cur == c {
				other = y
			}
			d, err := s.EvaluateExchange(w, cur, other)
			if err != nil {
				continue
			}
			if d > 0 {
				if err := s.DoExchange(w, cur, other); err != nil {
					return y, before, before, err
				}
				moved++
			}
		}
		if moved == 0 {
			break
		}
	}

	after = s.LogLikelihood()
	return y, before, after, nil
}

// SplitClasses evaluates up to numCandidates of the highest-scoring
// live classes (per candidateClasses) as split candidates each round,
// keeping the split whose local-exchange-refined Δ log-likelihood is
// the largest among this round's candidates, provided it exceeds
// threshold; every other attempt is undone via DoMerge.
// Per spec 4.7, a class whose own attempt this round scored below
// threshold (or that has fewer than two members) is added to a
// stoplist and excluded from every later
// round's candidate pool (rather than halting the whole driver), so
// splitting keeps progressing on the classes that still clear
// threshold even after a round produces no winner. Stops once
// NumLiveClasses reaches target or every remaining live class is
// stoplisted.
func (s *Store) SplitClasses(target, numCandidates, localSweeps int, threshold float64) (int, error) {
	splits := 0
	stoplist := make(map[int]bool)
	for s.NumLiveClasses() < target {
		candidates := s.candidateClasses(numCandidates, stoplist)
		if len(candidates) == 0 {
			break
		}

		bestGain := threshold
		bestC, bestY := -1, -1
		for _, c := range candidates {
			if len(s.Classes[c]) < 2 {
				stoplist[c] = true
				continue
			}
			y, before, after, err := s.trySplit(c, localSweeps)
			if err != nil {
				return splits, err
			}
			gain := after - before
			if gain <= threshold {
				if err := s.DoMerge(c, y); err != nil {
					return splits, err
				}
				stoplist[c] = true
				continue
			}
			if gain > bestGain {
				if bestY >= 0 {
					if err := s.DoMerge(bestC, bestY); err != nil {
						return splits, err
					}
				}
				bestGain, bestC, bestY = gain, c, y
			} else {
				// Cleared threshold but lost to a better candidate this
				// round; undo without stoplisting, it stays eligible.
				if err := s.DoMerge(c, y); err != nil {
					return splits, err
				}
			}
		}

		if bestY < 0 {
			glog.Infof("classes: no split candidate exceeded threshold %.6f this round, %d classes now stoplisted", threshold, len(stoplist))
			continue
		}
		delete(stoplist, bestC)
		splits++
		glog.Infof("classes: split class %d -> %d, gain=%.6f, ll=%.6f", bestC, bestY, bestGain, s.LogLikelihood())
	}
	return splits, nil
}

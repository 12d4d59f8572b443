package classes

import (
	"sync"

	"github.com/golang/glog"
	"github.com/kho/word"
)

type exchangeCandidate struct {
	w     word.Id
	class int
	delta float64
}

// bestExchangeFor scans every eligible destination class for w (every
// data class other than w's current one, or — when super is non-nil —
// only the rest of w's current super-class group) and returns the best
// candidate move, ok=false if none was evaluable.
func (s *Store) bestExchangeFor(w word.Id, super *SuperClasses) (exchangeCandidate, bool) {
	cur := s.WordClass[w]
	best := exchangeCandidate{w: w}
	found := false
	for _, c := range super.candidatesFor(cur, s.numSpecial(), s.NumClasses) {
		d, err := s.EvaluateExchange(w, cur, c)
		if err != nil {
			continue
		}
		if !found || d > best.delta {
			best = exchangeCandidate{w: w, class: c, delta: d}
			found = true
		}
	}
	return best, found
}

// IterateExchange performs one sweep over every non-reserved word with
// nonzero corpus count whose class has at least one other member: a
// bounded pool of numWorkers goroutines drains
// a work-queue of words, each evaluating every candidate destination
// class against the sweep's starting state (read-only, so this phase
// needs no locking). Moves are then committed sequentially in word
// order; each commit re-validates its Δ against the latest state,
// since an earlier commit in the same sweep can change a later word's
// Δ (the sequential re-check keeps commit order independent of
// goroutine scheduling while still parallelizing the expensive scan).
// Returns the number of moves committed.
func (s *Store) IterateExchange(numWorkers int) (int, error) {
	return s.IterateExchangeSuper(numWorkers, nil)
}

// IterateExchangeSuper is IterateExchange with an optional super-class
// restriction (spec.md 4.4): when super is non-nil, a word's candidate
// destination classes are confined to the rest of its own super-class
// group (words in ungrouped classes remain unrestricted).
func (s *Store) IterateExchangeSuper(numWorkers int, super *SuperClasses) (int, error) {
	var words []word.Id
	for w := 0; w < len(s.WordClass); w++ {
		if !s.IsReserved(word.Id(w)) && s.Index.WordCount[w] > 0 && len(s.Classes[s.WordClass[w]]) > 1 {
			words = append(words, word.Id(w))
		}
	}

	results := make([]exchangeCandidate, len(words))
	found := make([]bool, len(words))

	jobs := make(chan int)
	var wg sync.WaitGroup
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				c, ok := s.bestExchangeFor(words[idx], super)
				results[idx] = c
				found[idx] = ok
			}
		}()
	}
	for i := range words {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	moves := 0
	for i, w := range words {
		if !found[i] {
			continue
		}
		cur := s.WordClass[w]
		target := results[i].class
		if cur == target {
			continue
		}
		d, err := s.EvaluateExchange(w, cur, target)
		if err != nil || d <= 0 {
			continue
		}
		if err := s.DoExchange(w, cur, target); err != nil {
			return moves, err
		}
		moves++
	}
	glog.V(1).Infof("classes: exchange sweep committed %d moves (%d candidates)", moves, len(words))
	return moves, nil
}

// IterateExchangeToConvergence repeatedly sweeps until a sweep commits
// no moves or maxSweeps is reached, returning the total moves committed.
func (s *Store) IterateExchangeToConvergence(numWorkers, maxSweeps int) (int, error) {
	return s.IterateExchangeToConvergenceSuper(numWorkers, maxSweeps, nil)
}

// IterateExchangeToConvergenceSuper is IterateExchangeToConvergence
// with an optional super-class restriction applied to every sweep.
func (s *Store) IterateExchangeToConvergenceSuper(numWorkers, maxSweeps int, super *SuperClasses) (int, error) {
	total := 0
	for i := 0; i < maxSweeps; i++ {
		moves, err := s.IterateExchangeSuper(numWorkers, super)
		if err != nil {
			return total, err
		}
		total += moves
		glog.Infof("classes: exchange pass %d: %d moves, ll=%.6f", i+1, moves, s.LogLikelihood())
		if moves == 0 {
			break
		}
	}
	return total, nil
}

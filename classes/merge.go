package classes

import (
	"math"
	"math/rand"
	"sync"

	"github.com/golang/glog"
)

type mergeCandidate struct {
	a, b  int
	delta float64
}

// liveDataClasses returns the indices of data classes (reserved classes
// excluded) that currently have at least one member.
func (s *Store) liveDataClasses() []int {
	var live []int
	for c := s.numSpecial(); c < s.NumClasses; c++ {
		if len(s.Classes[c]) > 0 {
			live = append(live, c)
		}
	}
	return live
}

// MergeClasses repeatedly merges the best-scoring pair of live data
// classes until target classes remain. Each round samples
// evalsPerClass*len(live) candidate pairs (generalizing the original's
// evals_per_super_class heuristic), evaluates them concurrently across
// numWorkers goroutines, and commits the single best-scoring pair.
// rng must be an explicit, caller-seeded source for reproducible runs.
func (s *Store) MergeClasses(target, evalsPerClass int, rng *rand.Rand, numWorkers int) (int, error) {
	return s.MergeClassesSuper(target, evalsPerClass, rng, numWorkers, nil)
}

// MergeClassesSuper is MergeClasses with an optional super-class
// restriction (spec.md 4.6): when super is non-nil, sampled pairs are
// confined to classes within the same super-class group. Pairs are
// sampled uniformly from pairPool's combined pool, so each group gets
// samples in proportion to its number of within-group pairs (which
// grows with the square of its size); there is no separate per-group
// budget.
func (s *Store) MergeClassesSuper(target, evalsPerClass int, rng *rand.Rand, numWorkers int, super *SuperClasses) (int, error) {
	type pair struct{ a, b int }
	merges := 0
	for {
		live := s.liveDataClasses()
		if len(live) <= target || len(live) < 2 {
			break
		}
		pool := super.pairPool(live)
		if len(pool) == 0 {
			break
		}
		numEvals := evalsPerClass * len(live)
		if numEvals < 1 {
			numEvals = 1
		}
		if numEvals > len(pool) {
			numEvals = len(pool)
		}

		pairs := make([]pair, numEvals)
		for i := range pairs {
			p := pool[rng.Intn(len(pool))]
			pairs[i] = pair{p[0], p[1]}
		}

		results := make([]mergeCandidate, len(pairs))
		jobs := make(chan int)
		var wg sync.WaitGroup
		workers := numWorkers
		if workers < 1 {
			workers = 1
		}
		for wkr := 0; wkr < workers; wkr++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					p := pairs[idx]
					d, err := s.EvaluateMerge(p.a, p.b)
					if err != nil {
						d = math.Inf(-1)
					}
					results[idx] = mergeCandidate{p.a, p.b, d}
				}
			}()
		}
		for i := range pairs {
			jobs <- i
		}
		close(jobs)
		wg.Wait()

		best := results[0]
		for _, r := range results[1:] {
			if r.delta > best.delta {
				best = r
			}
		}
		if err := s.DoMerge(best.a, best.b); err != nil {
			return merges, err
		}
		merges++
		glog.Infof("classes: merged %d<-%d, delta=%.6f, ll=%.6f, live=%d", best.a, best.b, best.delta, s.LogLikelihood(), len(live)-1)
	}
	return merges, nil
}

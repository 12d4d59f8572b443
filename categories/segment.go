package categories

import (
	"math"
	"sort"

	"github.com/aalto-speech/classngram/fslm"
	"github.com/kho/word"
)

// TagMode controls how the segmenter handles a word with no membership
// entries (spec.md Section 9's resolved open question): TagAll expands
// every OOV position along the category n-gram's outgoing arcs, TagFirst
// does so only for the first OOV in a sentence, TagNone always advances
// by <unk> and carries the sentinel category -1 (skipped by EM
// accumulation).
type TagMode int

const (
	TagNone TagMode = iota
	TagFirst
	TagAll
)

// oovCategory is the sentinel category carried by a token produced for
// an OOV word that was advanced via <unk> rather than tagged.
const oovCategory = -1

// token is one arena-allocated node of the beam: the category assigned
// to sentence position, the n-gram state reached after it, the
// cumulative log-probability of the path, and an index into the arena
// for the parent token (-1 for the sentence-initial root). Using an
// index rather than a pointer keeps all of a sentence's tokens in one
// slice, which forward allocates afresh for each sentence, instead of
// allocating a pointer-chained token per hypothesis.
type token struct {
	w     word.Id
	cat   int
	state fslm.StateId
	prev  int32
	lp    float64
	genLp float64
}

// Segmenter proposes category sequences for a sentence by token-passing
// beam search: the category n-gram LM supplies p(c_i | history) and the
// category model's Mem table supplies p(w_i | c_i); Gen restricts, at
// each word, which categories are even considered.
type Segmenter struct {
	Model *Model
	LM    fslm.Model

	// BeamWidth prunes any token whose log-probability trails the best
	// surviving token at the same position by more than this.
	BeamWidth float64
	// HistogramBins and MaxActive bound the number of tokens carried
	// forward per position via approximate top-k histogram pruning
	// (see prune), independent of the probability beam above.
	HistogramBins int
	MaxActive     int

	// TagMode and TopK govern OOV handling (words with no Gen entry);
	// see TagMode's doc comment. TopK bounds how many of the n-gram's
	// outgoing arcs are explored when tagging is active; TopK<=0 means
	// unbounded (every non-reserved outgoing arc).
	TagMode TagMode
	TopK    int

	// Order is the category n-gram's order; gen-context scoring (see
	// genContextLp) sums Order-1 trailing gen_lp values from a token's
	// predecessor chain. Order<=0 defaults to 2 (bigram), matching the
	// category n-grams this package is normally driven with.
	Order int
}

// contextLen returns the number of trailing tokens whose gen_lp
// contributes to gen-context scoring, defaulting Order<=0 to a bigram
// category n-gram (one token of context).
func (sg *Segmenter) contextLen() int {
	if sg.Order <= 0 {
		return 1
	}
	return sg.Order - 1
}

// genContextLp sums gen_lp over the last k tokens of t's own
// predecessor chain (t included), approximating
// p(c_i | w_{i-k}...w_i) ~= p(c_i|w_i) while still reflecting the
// accumulated per-word generation evidence the n-gram score itself
// does not carry (spec.md 4.8's "Gen context").
func genContextLp(arena []token, t int32, k int) float64 {
	var sum float64
	for i, cur := 0, t; i < k && cur >= 0; i, cur = i+1, arena[cur].prev {
		sum += arena[cur].genLp
	}
	return sum
}

func NewSegmenter(model *Model, lm fslm.Model, beamWidth float64, histogramBins, maxActive int) *Segmenter {
	return &Segmenter{Model: model, LM: lm, BeamWidth: beamWidth, HistogramBins: histogramBins, MaxActive: maxActive}
}

// prune applies probability-beam pruning followed by histogram-bucket
// pruning (approximate top-MaxActive): tokens are bucketed into
// HistogramBins bins spanning [worst, best] and entire bins are kept or
// dropped, so the result can exceed MaxActive by up to one bin's worth
// rather than requiring an exact sort. When every surviving token has
// the same log-probability (a degenerate bin range), or when the kept
// bins still hold more than 2*MaxActive tokens, the result is cut to
// the 2*MaxActive best tokens by a sort instead.
func (sg *Segmenter) prune(arena []token, idxs []int32) []int32 {
	if len(idxs) == 0 {
		return idxs
	}
	topN := func(idxs []int32, n int) []int32 {
		if len(idxs) <= n {
			return idxs
		}
		sort.SliceStable(idxs, func(a, b int) bool { return arena[idxs[a]].lp > arena[idxs[b]].lp })
		return idxs[:n]
	}
	best := math.Inf(-1)
	for _, i := range idxs {
		if lp := arena[i].lp; lp > best {
			best = lp
		}
	}
	if sg.BeamWidth > 0 {
		kept := idxs[:0:0]
		for _, i := range idxs {
			if arena[i].lp >= best-sg.BeamWidth {
				kept = append(kept, i)
			}
		}
		idxs = kept
	}
	if sg.MaxActive <= 0 || len(idxs) <= sg.MaxActive || sg.HistogramBins <= 0 {
		return idxs
	}

	worst := best
	for _, i := range idxs {
		if lp := arena[i].lp; lp < worst {
			worst = lp
		}
	}
	if best == worst {
		return topN(idxs, 2*sg.MaxActive)
	}
	bins := sg.HistogramBins
	width := (best - worst) / float64(bins)
	binOf := func(lp float64) int {
		b := int((best - lp) / width)
		if b < 0 {
			b = 0
		}
		if b > bins {
			b = bins
		}
		return b
	}
	counts := make([]int, bins+1)
	for _, i := range idxs {
		counts[binOf(arena[i].lp)]++
	}
	cum, cutBin := 0, bins
	for b := 0; b <= bins; b++ {
		cum += counts[b]
		if cum >= sg.MaxActive {
			cutBin = b
			break
		}
	}
	kept := idxs[:0:0]
	for _, i := range idxs {
		if binOf(arena[i].lp) <= cutBin {
			kept = append(kept, i)
		}
	}
	return topN(kept, 2*sg.MaxActive)
}

// forward runs the token-passing beam over sentence (a full <s> ...
// </s> sequence of word ids) and returns the token arena plus the
// surviving token indices at the final position. The final word is
// forced into StartCategory, mirroring the classes package's
// convention that <s>/</s> always occupy the reserved boundary class.
func (sg *Segmenter) forward(sentence []word.Id) ([]token, []int32, error) {
	if len(sentence) < 2 {
		return nil, nil, newErr(MalformedInput, "forward: sentence too short (%d tokens)", len(sentence))
	}

	arena := make([]token, 1, len(sentence)*4)
	arena[0] = token{w: sentence[0], cat: StartCategory, state: sg.LM.Start(), prev: -1, lp: 0}
	frontier := []int32{0}
	oovTagged := false

	for i := 1; i < len(sentence); i++ {
		w := sentence[i]
		forcedCat := -1
		if i == len(sentence)-1 {
			forcedCat = StartCategory
		}

		gen := sg.Model.Gen[w]
		ctxLen := sg.contextLen()
		var next []int32

		switch {
		case gen != nil:
			best := make(map[int]int32)
			for _, pIdx := range frontier {
				parent := arena[pIdx]
				gctx := genContextLp(arena, pIdx, ctxLen)
				for cat := range gen {
					if forcedCat >= 0 && cat != forcedCat {
						continue
					}
					mlp, ok := sg.Model.Mem[w][cat]
					if !ok {
						continue
					}
					state, tw := sg.LM.NextI(parent.state, word.Id(cat))
					lp := parent.lp + gctx + float64(tw) + mlp
					if idx, seen := best[cat]; !seen || lp > arena[idx].lp {
						arena = append(arena, token{w: w, cat: cat, state: state, prev: pIdx, lp: lp, genLp: gen[cat]})
						best[cat] = int32(len(arena) - 1)
					}
				}
			}
			next = make([]int32, 0, len(best))
			for _, idx := range best {
				next = append(next, idx)
			}

		case sg.shouldTag(oovTagged):
			oovTagged = true
			for _, pIdx := range frontier {
				parent := arena[pIdx]
				for _, cand := range sg.topArcs(parent.state) {
					state, tw := sg.LM.NextI(parent.state, cand)
					lp := parent.lp + float64(tw)
					arena = append(arena, token{w: w, cat: int(cand), state: state, prev: pIdx, lp: lp})
					next = append(next, int32(len(arena)-1))
				}
			}
			if len(next) == 0 {
				// No IterableModel / no eligible arcs: fall back to <unk>.
				next = sg.advanceUnk(&arena, w, frontier)
			}

		default:
			next = sg.advanceUnk(&arena, w, frontier)
		}

		if len(next) == 0 {
			return nil, nil, newErr(EmptyBeam, "forward: beam emptied at position %d (word %d)", i, w)
		}
		frontier = sg.prune(arena, next)
		if len(frontier) == 0 {
			return nil, nil, newErr(EmptyBeam, "forward: beam pruned to empty at position %d", i)
		}
	}
	return arena, frontier, nil
}

// shouldTag reports whether the current OOV position should be tagged
// (branch along n-gram arcs) rather than advanced via <unk>, per
// sg.TagMode: TagNone never tags, TagAll always does, TagFirst only on
// the first OOV a sentence has seen so far (oovTagged tracks that).
func (sg *Segmenter) shouldTag(oovTagged bool) bool {
	switch sg.TagMode {
	case TagAll:
		return true
	case TagFirst:
		return !oovTagged
	default:
		return false
	}
}

// topArcs returns up to sg.TopK outgoing-arc destination symbols from
// state, sorted by descending transition weight, skipping the reserved
// StartCategory/UnkCategory symbols. Returns nil if sg.LM does not
// support iteration (not an IterableModel).
func (sg *Segmenter) topArcs(state fslm.StateId) []word.Id {
	im, ok := sg.LM.(fslm.IterableModel)
	if !ok {
		return nil
	}
	type arc struct {
		w word.Id
		p fslm.Weight
	}
	var arcs []arc
	for t := range im.Transitions(state) {
		if int(t.Word) == StartCategory || int(t.Word) == UnkCategory {
			continue
		}
		arcs = append(arcs, arc{t.Word, t.Weight})
	}
	sort.Slice(arcs, func(i, j int) bool { return arcs[i].p > arcs[j].p })
	if sg.TopK > 0 && len(arcs) > sg.TopK {
		arcs = arcs[:sg.TopK]
	}
	out := make([]word.Id, len(arcs))
	for i, a := range arcs {
		out[i] = a.w
	}
	return out
}

// advanceUnk advances every frontier token by the UnkCategory symbol,
// carrying the sentinel category oovCategory so EM accumulation skips
// this position (spec.md Section 9's resolved open question).
func (sg *Segmenter) advanceUnk(arena *[]token, w word.Id, frontier []int32) []int32 {
	next := make([]int32, 0, len(frontier))
	for _, pIdx := range frontier {
		parent := (*arena)[pIdx]
		state, tw := sg.LM.NextI(parent.state, word.Id(UnkCategory))
		lp := parent.lp + float64(tw)
		*arena = append(*arena, token{w: w, cat: oovCategory, state: state, prev: pIdx, lp: lp})
		next = append(next, int32(len(*arena)-1))
	}
	return next
}

// BestPath returns the Viterbi-best category sequence for sentence and
// its log-probability.
func (sg *Segmenter) BestPath(sentence []word.Id) ([]int, float64, error) {
	arena, final, err := sg.forward(sentence)
	if err != nil {
		return nil, 0, err
	}
	bestIdx := int32(-1)
	bestLp := math.Inf(-1)
	for _, idx := range final {
		if arena[idx].lp > bestLp {
			bestLp, bestIdx = arena[idx].lp, idx
		}
	}
	if bestIdx < 0 {
		return nil, 0, newErr(EmptyBeam, "best_path: no surviving token")
	}

	var cats []int
	for idx := bestIdx; idx >= 0; idx = arena[idx].prev {
		cats = append(cats, arena[idx].cat)
	}
	for i, j := 0, len(cats)-1; i < j; i, j = i+1, j-1 {
		cats[i], cats[j] = cats[j], cats[i]
	}
	return cats, bestLp, nil
}

// Stats accumulates EM sufficient statistics across a corpus:
// word/category joint fractional counts (for re-estimating Gen/Mem) and
// category-bigram fractional counts (for re-estimating the category
// n-gram itself).
type Stats struct {
	Joint     Joint
	CatBigram map[[2]int]float64
}

func NewStats(numWords int) *Stats {
	return &Stats{Joint: NewJoint(numWords), CatBigram: make(map[[2]int]float64)}
}

// Accumulate runs the beam forward over sentence, normalizes the
// surviving final tokens' log-probabilities into posterior weights
// exp(tok.lp - Z), and credits each final token's full ancestry with
// its weight. Because exactly one token per (position, category) node
// survives pruning, every final token's ancestry is a well-defined
// unique path, so summing weighted full-path credit across all final
// tokens reproduces the expected count at every node without double
// counting shared prefixes.
func (sg *Segmenter) Accumulate(sentence []word.Id, stats *Stats) error {
	arena, final, err := sg.forward(sentence)
	if err != nil {
		return err
	}

	lps := make([]float64, len(final))
	for i, idx := range final {
		lps[i] = arena[idx].lp
	}
	z := logSumExp(lps...)
	if math.IsInf(z, -1) {
		return newErr(NumericDomain, "accumulate: total sentence probability is zero")
	}

	for _, idx := range final {
		weight := math.Exp(arena[idx].lp - z)
		if weight <= 0 {
			continue
		}
		for cur := idx; cur >= 0; {
			t := arena[cur]
			if t.cat != oovCategory {
				stats.Joint.add(t.w, t.cat, weight)
				if t.prev >= 0 && arena[t.prev].cat != oovCategory {
					stats.CatBigram[[2]int{arena[t.prev].cat, t.cat}] += weight
				}
			}
			cur = t.prev
		}
	}
	return nil
}

// Package sample picks next-token ids from model logits. Each strategy
// is its own type behind the Sampler interface; there is no flag soup.
package sample

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"minigpt/utils"
)

// ErrSamplerParam marks invalid sampling parameters. It is returned by
// the Sample call itself, never swallowed or clamped.
var ErrSamplerParam = errors.New("sample: invalid sampling parameter")

// Sampler turns one vocabulary-sized logits slice into a token id.
type Sampler interface {
	Sample(logits []float64) (int, error)
}

// Greedy picks the highest-logit token. Ties go to the lowest index.
type Greedy struct{}

func (Greedy) Sample(logits []float64) (int, error) {
	if len(logits) == 0 {
		return 0, fmt.Errorf("%w: empty logits", ErrSamplerParam)
	}
	return floats.MaxIdx(logits), nil
}

// Temperature draws from softmax(logits/T). T must be positive; values
// near 0 sharpen toward greedy, values above 1 flatten.
type Temperature struct {
	T   float64
	Rng *rand.Rand
}

func (s Temperature) Sample(logits []float64) (int, error) {
	if len(logits) == 0 {
		return 0, fmt.Errorf("%w: empty logits", ErrSamplerParam)
	}
	if s.T <= 0 {
		return 0, fmt.Errorf("%w: temperature %g, must be > 0", ErrSamplerParam, s.T)
	}
	if s.Rng == nil {
		return 0, fmt.Errorf("%w: temperature sampling needs an RNG", ErrSamplerParam)
	}
	scaled := make([]float64, len(logits))
	copy(scaled, logits)
	floats.Scale(1.0/s.T, scaled)
	return drawCDF(s.Rng, utils.Softmax(scaled)), nil
}

// TopK keeps the K highest-logit candidates, renormalizes the softmax
// over them and draws. Candidates are ordered by (logit desc, index
// asc), so a tie at the k-th boundary keeps the lower index. T > 0
// applies temperature scaling before the softmax; T == 0 leaves the
// logits as they are.
type TopK struct {
	K   int
	T   float64
	Rng *rand.Rand
}

func (s TopK) Sample(logits []float64) (int, error) {
	n := len(logits)
	if n == 0 {
		return 0, fmt.Errorf("%w: empty logits", ErrSamplerParam)
	}
	if s.K < 1 || s.K > n {
		return 0, fmt.Errorf("%w: k=%d outside [1,%d]", ErrSamplerParam, s.K, n)
	}
	if s.T < 0 {
		return 0, fmt.Errorf("%w: temperature %g, must be >= 0", ErrSamplerParam, s.T)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		la, lb := logits[idx[a]], logits[idx[b]]
		if la != lb {
			return la > lb
		}
		return idx[a] < idx[b]
	})
	kept := idx[:s.K]

	if s.K == 1 {
		return kept[0], nil
	}
	if s.Rng == nil {
		return 0, fmt.Errorf("%w: top-k sampling with k>1 needs an RNG", ErrSamplerParam)
	}

	sub := make([]float64, s.K)
	for i, id := range kept {
		sub[i] = logits[id]
	}
	if s.T > 0 {
		floats.Scale(1.0/s.T, sub)
	}
	// softmax over the kept set only: excluded ids carry exactly zero mass
	return kept[drawCDF(s.Rng, utils.Softmax(sub))], nil
}

// drawCDF draws an index from a normalized probability vector.
func drawCDF(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	return len(probs) - 1
}

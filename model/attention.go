package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
	"minigpt/utils"
)

// CausalAttention is multi-head self-attention with the causal
// restriction: position i attends to positions j <= i only, and the
// attention weight for every j > i is exactly zero. Scores are scaled
// by 1/sqrt(headDim) before the masked softmax.
type CausalAttention struct {
	Heads  int
	DModel int
	DHead  int
	Wq     []*optim.Param // per head (dHead x dModel)
	Wk     []*optim.Param
	Wv     []*optim.Param
	Wo     *optim.Param // (dModel x dModel)

	// cache for backprop, written on training forwards only
	x          *mat.Dense
	q, k, v, a []*mat.Dense
	ocat       *mat.Dense
}

func NewCausalAttention(name string, dModel, heads int, rng *rand.Rand) (*CausalAttention, error) {
	if heads <= 0 || dModel%heads != 0 {
		return nil, fmt.Errorf("%w: dModel %d not divisible by %d heads", ErrConfig, dModel, heads)
	}
	dHead := dModel / heads
	at := &CausalAttention{
		Heads:  heads,
		DModel: dModel,
		DHead:  dHead,
		Wq:     make([]*optim.Param, heads),
		Wk:     make([]*optim.Param, heads),
		Wv:     make([]*optim.Param, heads),
		q:      make([]*mat.Dense, heads),
		k:      make([]*mat.Dense, heads),
		v:      make([]*mat.Dense, heads),
		a:      make([]*mat.Dense, heads),
	}
	for h := 0; h < heads; h++ {
		at.Wq[h] = optim.NewParam(fmt.Sprintf("%s.q%d", name, h), utils.XavierMatrix(dHead, dModel, rng))
		at.Wk[h] = optim.NewParam(fmt.Sprintf("%s.k%d", name, h), utils.XavierMatrix(dHead, dModel, rng))
		at.Wv[h] = optim.NewParam(fmt.Sprintf("%s.v%d", name, h), utils.XavierMatrix(dHead, dModel, rng))
	}
	at.Wo = optim.NewParam(name+".out", utils.XavierMatrix(dModel, dModel, rng))
	return at, nil
}

func (at *CausalAttention) Forward(X *mat.Dense, train bool) *mat.Dense {
	_, T := X.Dims()
	rescale := 1.0 / math.Sqrt(float64(at.DHead))
	headsCat := mat.NewDense(at.DModel, T, nil)

	for h := 0; h < at.Heads; h++ {
		q := utils.Dot(at.Wq[h].W, X) // (dHead x T)
		k := utils.Dot(at.Wk[h].W, X)
		v := utils.Dot(at.Wv[h].W, X)

		// S = (Q^T K)/sqrt(dHead), row i = query position i
		var s mat.Dense
		s.Mul(q.T(), k)
		s.Scale(rescale, &s)

		a := mat.NewDense(T, T, nil)
		utils.CausalRowSoftmaxInPlace(a, &s)

		// O = V * A^T
		o := utils.Dot(v, a.T())
		base := h * at.DHead
		headsCat.Slice(base, base+at.DHead, 0, T).(*mat.Dense).Copy(o)

		if train {
			at.q[h], at.k[h], at.v[h], at.a[h] = q, k, v, a
		}
	}
	if train {
		at.x = X
		at.ocat = headsCat
	}
	return utils.Dot(at.Wo.W, headsCat)
}

// Backward accumulates parameter gradients from a full-sequence dY and
// returns dX. Requires a preceding Forward with train=true.
func (at *CausalAttention) Backward(dY *mat.Dense) *mat.Dense {
	_, T := at.x.Dims()
	rescale := 1.0 / math.Sqrt(float64(at.DHead))

	// Y = Wo * Ocat
	utils.AccumDot(at.Wo.G, dY, at.ocat.T())
	dOcat := utils.Dot(at.Wo.W.T(), dY)

	dX := mat.NewDense(at.DModel, T, nil)
	for h := 0; h < at.Heads; h++ {
		base := h * at.DHead
		dO := dOcat.Slice(base, base+at.DHead, 0, T).(*mat.Dense)

		// O = V * A^T
		dV := utils.Dot(dO, at.a[h])
		dA := utils.Dot(at.v[h].T(), dO).T() // (T x T)

		// A = causal_softmax(S)
		dS := utils.SoftmaxBackward(dA, at.a[h])

		// S = Q^T K / sqrt(dHead)
		dQ := utils.Scale(rescale, utils.Dot(at.k[h], dS.T()))
		dK := utils.Scale(rescale, utils.Dot(at.q[h], dS))

		utils.AccumDot(at.Wq[h].G, dQ, at.x.T())
		utils.AccumDot(at.Wk[h].G, dK, at.x.T())
		utils.AccumDot(at.Wv[h].G, dV, at.x.T())

		utils.AccumDot(dX, at.Wq[h].W.T(), dQ)
		utils.AccumDot(dX, at.Wk[h].W.T(), dK)
		utils.AccumDot(dX, at.Wv[h].W.T(), dV)
	}
	return dX
}

func (at *CausalAttention) params() []*optim.Param {
	out := make([]*optim.Param, 0, 3*at.Heads+1)
	for h := 0; h < at.Heads; h++ {
		out = append(out, at.Wq[h], at.Wk[h], at.Wv[h])
	}
	return append(out, at.Wo)
}

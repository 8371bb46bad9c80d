package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
	"minigpt/utils"
)

// FeedForward is the position-wise MLP: Linear(d -> 4d), GELU,
// Linear(4d -> d). Applied independently to every column.
type FeedForward struct {
	DModel int
	Hidden int
	W1     *optim.Param // (4d x d)
	B1     *optim.Param // (4d x 1)
	W2     *optim.Param // (d x 4d)
	B2     *optim.Param // (d x 1)

	// cache for backprop
	x      *mat.Dense
	pre    *mat.Dense
	hidden *mat.Dense
}

func NewFeedForward(name string, dModel int, rng *rand.Rand) *FeedForward {
	hidden := 4 * dModel
	return &FeedForward{
		DModel: dModel,
		Hidden: hidden,
		W1:     optim.NewParam(name+".w1", utils.XavierMatrix(hidden, dModel, rng)),
		B1:     optim.NewBiasParam(name+".b1", mat.NewDense(hidden, 1, nil)),
		W2:     optim.NewParam(name+".w2", utils.XavierMatrix(dModel, hidden, rng)),
		B2:     optim.NewBiasParam(name+".b2", mat.NewDense(dModel, 1, nil)),
	}
}

func (ff *FeedForward) Forward(X *mat.Dense, train bool) *mat.Dense {
	pre := utils.AddBias(utils.Dot(ff.W1.W, X), ff.B1.W) // (4d x T)
	hidden := utils.Apply(utils.GeluApply, pre)
	out := utils.AddBias(utils.Dot(ff.W2.W, hidden), ff.B2.W) // (d x T)
	if train {
		ff.x = X
		ff.pre = pre
		ff.hidden = hidden
	}
	return out
}

// Backward accumulates parameter gradients and returns dX. Requires a
// preceding Forward with train=true.
func (ff *FeedForward) Backward(dY *mat.Dense) *mat.Dense {
	utils.AccumDot(ff.W2.G, dY, ff.hidden.T())
	ff.B2.G.Add(ff.B2.G, utils.BiasGrad(dY))

	dHidden := utils.Dot(ff.W2.W.T(), dY)
	dPre := utils.Multiply(dHidden, utils.GeluPrime(ff.pre))

	utils.AccumDot(ff.W1.G, dPre, ff.x.T())
	ff.B1.G.Add(ff.B1.G, utils.BiasGrad(dPre))

	return utils.Dot(ff.W1.W.T(), dPre)
}

func (ff *FeedForward) params() []*optim.Param {
	return []*optim.Param{ff.W1, ff.B1, ff.W2, ff.B2}
}

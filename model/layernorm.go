package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
)

// LayerNorm normalizes each column (one sequence position) to zero mean
// and unit variance over the feature dimension, then applies the
// learned gamma/beta affine.
type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *optim.Param // (d x 1)
	Beta  *optim.Param // (d x 1)

	// cache for backprop, valid until the next training forward
	xhat   *mat.Dense
	invStd []float64
}

func NewLayerNorm(name string, d int) *LayerNorm {
	g := mat.NewDense(d, 1, nil)
	for i := 0; i < d; i++ {
		g.Set(i, 0, 1.0)
	}
	return &LayerNorm{
		D:     d,
		Eps:   1e-5,
		Gamma: optim.NewBiasParam(name+".gamma", g),
		Beta:  optim.NewBiasParam(name+".beta", mat.NewDense(d, 1, nil)),
	}
}

func (ln *LayerNorm) Forward(X *mat.Dense, train bool) *mat.Dense {
	d, T := X.Dims()
	out := mat.NewDense(d, T, nil)
	var xhat *mat.Dense
	var inv []float64
	if train {
		xhat = mat.NewDense(d, T, nil)
		inv = make([]float64, T)
	}
	for t := 0; t < T; t++ {
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += X.At(i, t)
		}
		mu /= float64(d)
		v := 0.0
		for i := 0; i < d; i++ {
			diff := X.At(i, t) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		if train {
			inv[t] = istd
		}
		for i := 0; i < d; i++ {
			n := (X.At(i, t) - mu) * istd
			if train {
				xhat.Set(i, t, n)
			}
			out.Set(i, t, ln.Gamma.W.At(i, 0)*n+ln.Beta.W.At(i, 0))
		}
	}
	if train {
		ln.xhat = xhat
		ln.invStd = inv
	}
	return out
}

// Backward accumulates gamma/beta gradients and returns dX. Requires a
// preceding Forward with train=true.
func (ln *LayerNorm) Backward(dY *mat.Dense) *mat.Dense {
	d, T := dY.Dims()
	for i := 0; i < d; i++ {
		sumDG := 0.0
		sumDB := 0.0
		for t := 0; t < T; t++ {
			sumDG += dY.At(i, t) * ln.xhat.At(i, t)
			sumDB += dY.At(i, t)
		}
		ln.Gamma.G.Set(i, 0, ln.Gamma.G.At(i, 0)+sumDG)
		ln.Beta.G.Set(i, 0, ln.Beta.G.At(i, 0)+sumDB)
	}

	dX := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		istd := ln.invStd[t]
		sum1 := 0.0
		sum2 := 0.0
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.W.At(i, 0)
			sum1 += gy
			sum2 += gy * ln.xhat.At(i, t)
		}
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.W.At(i, 0)
			dxi := (float64(d)*gy - sum1 - ln.xhat.At(i, t)*sum2) * (istd / float64(d))
			dX.Set(i, t, dxi)
		}
	}
	return dX
}

func (ln *LayerNorm) params() []*optim.Param {
	return []*optim.Param{ln.Gamma, ln.Beta}
}

package optim

import "gonum.org/v1/gonum/mat"

// Param is a named trainable matrix paired with its gradient accumulator.
// Backward passes add into G; only the optimizer step mutates W.
type Param struct {
	Name    string
	W       *mat.Dense
	G       *mat.Dense
	NoDecay bool // biases and norm gains skip weight decay
}

func NewParam(name string, w *mat.Dense) *Param {
	r, c := w.Dims()
	return &Param{Name: name, W: w, G: mat.NewDense(r, c, nil)}
}

func NewBiasParam(name string, w *mat.Dense) *Param {
	p := NewParam(name, w)
	p.NoDecay = true
	return p
}

func (p *Param) ZeroGrad() {
	p.G.Zero()
}

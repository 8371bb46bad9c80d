package model

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
	"minigpt/utils"
)

func finiteDiffCheck(t *testing.T, p *optim.Param, i, j int, forward func() float64) {
	t.Helper()
	eps := 1e-5
	w0 := p.W.At(i, j)

	p.W.Set(i, j, w0+eps)
	lp := forward()
	p.W.Set(i, j, w0-eps)
	lm := forward()
	p.W.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := p.G.At(i, j)
	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g", p.Name, i, j, numGrad, anaGrad)
	}
}

// frobLoss pairs a module output with a fixed weighting R, so the exact
// output gradient is R itself.
func frobLoss(R, Y *mat.Dense) float64 {
	r, c := R.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += R.At(i, j) * Y.At(i, j)
		}
	}
	return s
}

// ---- Attention ----

func TestAttentionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel, heads, T := 4, 2, 3
	attn, err := NewCausalAttention("attn", dModel, heads, rng)
	if err != nil {
		t.Fatal(err)
	}
	x := utils.NormalMatrix(dModel, T, 1.0, rng)
	R := utils.NormalMatrix(dModel, T, 1.0, rng)

	forward := func() float64 { return frobLoss(R, attn.Forward(x, false)) }

	attn.Forward(x, true)
	dX := attn.Backward(R)

	finiteDiffCheck(t, attn.Wq[0], 0, 1, forward)
	finiteDiffCheck(t, attn.Wk[0], 1, 0, forward)
	finiteDiffCheck(t, attn.Wv[1], 0, 2, forward)
	finiteDiffCheck(t, attn.Wo, 2, 1, forward)

	// input gradient via the same finite difference
	eps := 1e-5
	for _, ij := range [][2]int{{0, 0}, {2, 1}, {3, 2}} {
		i, j := ij[0], ij[1]
		w0 := x.At(i, j)
		x.Set(i, j, w0+eps)
		lp := forward()
		x.Set(i, j, w0-eps)
		lm := forward()
		x.Set(i, j, w0)
		num := (lp - lm) / (2 * eps)
		if math.Abs(num-dX.At(i, j)) > 1e-4 {
			t.Fatalf("dX[%d,%d]: num=%.6g ana=%.6g", i, j, num, dX.At(i, j))
		}
	}
}

// ---- FeedForward ----

func TestFeedForwardGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel, T := 4, 3
	ff := NewFeedForward("ff", dModel, rng)
	x := utils.NormalMatrix(dModel, T, 1.0, rng)
	R := utils.NormalMatrix(dModel, T, 1.0, rng)

	forward := func() float64 { return frobLoss(R, ff.Forward(x, false)) }

	ff.Forward(x, true)
	ff.Backward(R)

	finiteDiffCheck(t, ff.W1, 2, 1, forward)
	finiteDiffCheck(t, ff.B1, 3, 0, forward)
	finiteDiffCheck(t, ff.W2, 1, 5, forward)
	finiteDiffCheck(t, ff.B2, 0, 0, forward)
}

// ---- LayerNorm ----

func TestLayerNormGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	d, T := 6, 2
	ln := NewLayerNorm("ln", d)
	// non-trivial gamma/beta so their gradients interact
	for i := 0; i < d; i++ {
		ln.Gamma.W.Set(i, 0, 0.5+rng.Float64())
		ln.Beta.W.Set(i, 0, rng.NormFloat64()*0.1)
	}
	x := utils.NormalMatrix(d, T, 1.0, rng)
	R := utils.NormalMatrix(d, T, 1.0, rng)

	forward := func() float64 { return frobLoss(R, ln.Forward(x, false)) }

	ln.Forward(x, true)
	dX := ln.Backward(R)

	finiteDiffCheck(t, ln.Gamma, 1, 0, forward)
	finiteDiffCheck(t, ln.Beta, 4, 0, forward)

	eps := 1e-5
	for _, ij := range [][2]int{{0, 0}, {5, 1}} {
		i, j := ij[0], ij[1]
		w0 := x.At(i, j)
		x.Set(i, j, w0+eps)
		lp := forward()
		x.Set(i, j, w0-eps)
		lm := forward()
		x.Set(i, j, w0)
		num := (lp - lm) / (2 * eps)
		if math.Abs(num-dX.At(i, j)) > 1e-4 {
			t.Fatalf("dX[%d,%d]: num=%.6g ana=%.6g", i, j, num, dX.At(i, j))
		}
	}
}

// ---- Block ----

func TestBlockGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel, heads, T := 4, 2, 3
	blk, err := NewTransformerBlock("block0", dModel, heads, rng)
	if err != nil {
		t.Fatal(err)
	}
	x := utils.NormalMatrix(dModel, T, 1.0, rng)
	R := utils.NormalMatrix(dModel, T, 1.0, rng)

	forward := func() float64 { return frobLoss(R, blk.Forward(x, false)) }

	blk.Forward(x, true)
	blk.Backward(R)

	finiteDiffCheck(t, blk.Attn.Wq[1], 0, 0, forward)
	finiteDiffCheck(t, blk.FF.W1, 0, 2, forward)
	finiteDiffCheck(t, blk.Ln1.Gamma, 2, 0, forward)
	finiteDiffCheck(t, blk.Ln2.Beta, 3, 0, forward)
}

// ---- Full model ----

func TestModelGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	cfg := Config{VocabSize: 11, EmbeddingDim: 4, NumHeads: 2, NumLayers: 2, ContextLength: 6}
	m, err := New(cfg, rng)
	if err != nil {
		t.Fatal(err)
	}
	ids := []int{3, 1, 4, 1}
	targets := []int{1, 4, 1, 5}

	forward := func() float64 {
		logits, err := m.Forward(ids, false)
		if err != nil {
			t.Fatal(err)
		}
		return utils.CrossEntropyLoss(logits, targets)
	}

	logits, err := m.Forward(ids, true)
	if err != nil {
		t.Fatal(err)
	}
	_, dLogits := utils.CrossEntropy(logits, targets)
	if err := m.Backward(dLogits); err != nil {
		t.Fatal(err)
	}

	finiteDiffCheck(t, m.Head, 7, 2, forward)
	finiteDiffCheck(t, m.LnF.Gamma, 1, 0, forward)
	finiteDiffCheck(t, m.Blocks[1].Attn.Wq[0], 1, 2, forward)
	finiteDiffCheck(t, m.Blocks[0].FF.W2, 2, 9, forward)
	finiteDiffCheck(t, m.Blocks[0].Ln1.Beta, 0, 0, forward)
	// embedding columns: token 1 appears twice, so its grads accumulate
	finiteDiffCheck(t, m.Wte, 0, 1, forward)
	finiteDiffCheck(t, m.Wte, 2, 3, forward)
	finiteDiffCheck(t, m.Wpe, 1, 0, forward)
	finiteDiffCheck(t, m.Wpe, 3, 3, forward)
}

func TestGradsAccumulateAcrossBackwards(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := Config{VocabSize: 9, EmbeddingDim: 4, NumHeads: 2, NumLayers: 1, ContextLength: 4}
	m, err := New(cfg, rng)
	if err != nil {
		t.Fatal(err)
	}
	ids := []int{2, 7, 0}
	targets := []int{7, 0, 3}

	step := func() {
		logits, err := m.Forward(ids, true)
		if err != nil {
			t.Fatal(err)
		}
		_, d := utils.CrossEntropy(logits, targets)
		if err := m.Backward(d); err != nil {
			t.Fatal(err)
		}
	}

	step()
	g1 := m.Head.G.At(0, 0)
	step()
	g2 := m.Head.G.At(0, 0)
	if math.Abs(g2-2*g1) > 1e-12 {
		t.Fatalf("second backward did not accumulate: %g then %g", g1, g2)
	}

	for _, p := range m.Params() {
		p.ZeroGrad()
	}
	if m.Head.G.At(0, 0) != 0 {
		t.Fatal("ZeroGrad left a stale gradient")
	}
}

package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
	"minigpt/utils"
)

// TransformerBlock is one pre-norm decoder block:
//
//	x = x + Attn(LN1(x))
//	x = x + FF(LN2(x))
//
// Input and output are both (dModel x T), so blocks stack.
type TransformerBlock struct {
	Ln1  *LayerNorm
	Attn *CausalAttention
	Ln2  *LayerNorm
	FF   *FeedForward
}

func NewTransformerBlock(name string, dModel, heads int, rng *rand.Rand) (*TransformerBlock, error) {
	attn, err := NewCausalAttention(name+".attn", dModel, heads, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &TransformerBlock{
		Ln1:  NewLayerNorm(name+".ln1", dModel),
		Attn: attn,
		Ln2:  NewLayerNorm(name+".ln2", dModel),
		FF:   NewFeedForward(name+".ff", dModel, rng),
	}, nil
}

func (b *TransformerBlock) Forward(X *mat.Dense, train bool) *mat.Dense {
	x1 := utils.Add(X, b.Attn.Forward(b.Ln1.Forward(X, train), train))
	return utils.Add(x1, b.FF.Forward(b.Ln2.Forward(x1, train), train))
}

// Backward walks the two residual branches in reverse. Requires a
// preceding Forward with train=true.
func (b *TransformerBlock) Backward(dY *mat.Dense) *mat.Dense {
	dX1 := utils.Add(dY, b.Ln2.Backward(b.FF.Backward(dY)))
	return utils.Add(dX1, b.Ln1.Backward(b.Attn.Backward(dX1)))
}

func (b *TransformerBlock) params() []*optim.Param {
	out := b.Ln1.params()
	out = append(out, b.Attn.params()...)
	out = append(out, b.Ln2.params()...)
	return append(out, b.FF.params()...)
}

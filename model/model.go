package model

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"minigpt/optim"
	"minigpt/utils"
)

// GPT is a decoder-only transformer language model: learned token and
// positional embeddings, a stack of pre-norm blocks, a final LayerNorm
// and a bias-free unembedding projection (no weight tying).
type GPT struct {
	Cfg    Config
	Wte    *optim.Param // (dModel x vocab), column v embeds token v
	Wpe    *optim.Param // (dModel x contextLength), column t embeds position t
	Blocks []*TransformerBlock
	LnF    *LayerNorm
	Head   *optim.Param // (vocab x dModel), no bias

	params []*optim.Param

	// cache for backprop
	ids []int
	xf  *mat.Dense
}

// New builds a model with freshly initialized weights. Embeddings are
// N(0, 0.02); linear weights are Xavier-uniform.
func New(cfg Config, rng *rand.Rand) (*GPT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	m := &GPT{
		Cfg: cfg,
		Wte: optim.NewParam("wte", utils.NormalMatrix(cfg.EmbeddingDim, cfg.VocabSize, 0.02, rng)),
		Wpe: optim.NewParam("wpe", utils.NormalMatrix(cfg.EmbeddingDim, cfg.ContextLength, 0.02, rng)),
	}
	m.Blocks = make([]*TransformerBlock, cfg.NumLayers)
	for i := range m.Blocks {
		b, err := NewTransformerBlock(fmt.Sprintf("block%d", i), cfg.EmbeddingDim, cfg.NumHeads, rng)
		if err != nil {
			return nil, err
		}
		m.Blocks[i] = b
	}
	m.LnF = NewLayerNorm("lnf", cfg.EmbeddingDim)
	m.Head = optim.NewParam("head", utils.XavierMatrix(cfg.VocabSize, cfg.EmbeddingDim, rng))

	m.params = append(m.params, m.Wte, m.Wpe)
	for _, b := range m.Blocks {
		m.params = append(m.params, b.params()...)
	}
	m.params = append(m.params, m.LnF.params()...)
	m.params = append(m.params, m.Head)
	return m, nil
}

// Params returns the registry of named parameters in a fixed order.
func (m *GPT) Params() []*optim.Param { return m.params }

// Forward maps T token ids to a (vocab x T) logits matrix; column t
// holds the next-token logits for position t. The pass is
// deterministic: identical ids and parameters give identical logits.
// train=true additionally records the activations Backward needs.
func (m *GPT) Forward(ids []int, train bool) (*mat.Dense, error) {
	T := len(ids)
	if T == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrSequenceLength)
	}
	if T > m.Cfg.ContextLength {
		return nil, fmt.Errorf("%w: got %d tokens, context length is %d",
			ErrSequenceLength, T, m.Cfg.ContextLength)
	}

	d := m.Cfg.EmbeddingDim
	X := mat.NewDense(d, T, nil)
	for t, id := range ids {
		if id < 0 || id >= m.Cfg.VocabSize {
			return nil, fmt.Errorf("model: token id %d out of range [0,%d)", id, m.Cfg.VocabSize)
		}
		for i := 0; i < d; i++ {
			X.Set(i, t, m.Wte.W.At(i, id)+m.Wpe.W.At(i, t))
		}
	}

	for _, b := range m.Blocks {
		X = b.Forward(X, train)
	}
	xf := m.LnF.Forward(X, train)

	if train {
		m.ids = append(m.ids[:0], ids...)
		m.xf = xf
	} else {
		m.ids = nil
		m.xf = nil
	}
	return utils.Dot(m.Head.W, xf), nil
}

// Backward accumulates gradients for every parameter from a
// (vocab x T) logits gradient. Valid only after Forward(ids, true).
func (m *GPT) Backward(dLogits *mat.Dense) error {
	if m.xf == nil {
		return errors.New("model: Backward called without a preceding training forward")
	}
	_, T := m.xf.Dims()
	if r, c := dLogits.Dims(); r != m.Cfg.VocabSize || c != T {
		return fmt.Errorf("model: dLogits is (%d x %d), want (%d x %d)",
			r, c, m.Cfg.VocabSize, T)
	}

	utils.AccumDot(m.Head.G, dLogits, m.xf.T())
	dX := m.LnF.Backward(utils.Dot(m.Head.W.T(), dLogits))

	for i := len(m.Blocks) - 1; i >= 0; i-- {
		dX = m.Blocks[i].Backward(dX)
	}

	// scatter into the embedding tables; repeated ids accumulate
	d := m.Cfg.EmbeddingDim
	for t, id := range m.ids {
		for i := 0; i < d; i++ {
			m.Wte.G.Set(i, id, m.Wte.G.At(i, id)+dX.At(i, t))
			m.Wpe.G.Set(i, t, m.Wpe.G.At(i, t)+dX.At(i, t))
		}
	}
	return nil
}

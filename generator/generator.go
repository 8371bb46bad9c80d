// Package generator runs the autoregressive decode loop: feed the tail
// of the working sequence through the model, sample one id, append,
// repeat.
package generator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"minigpt/model"
	"minigpt/sample"
	"minigpt/tokenizer"
)

type Generator struct {
	Model   *model.GPT
	Sampler sample.Sampler
}

func New(m *model.GPT, s sample.Sampler) *Generator {
	return &Generator{Model: m, Sampler: s}
}

// Generate extends prefix by maxNewTokens ids and returns the full
// sequence (prefix + continuations). The model is only ever shown the
// last ContextLength tokens of the working sequence; the output itself
// keeps growing past that. An empty prefix fails the same way the
// model's forward pass does.
func (g *Generator) Generate(prefix []int, maxNewTokens int) ([]int, error) {
	if maxNewTokens < 0 {
		return nil, fmt.Errorf("generator: negative maxNewTokens %d", maxNewTokens)
	}
	out := make([]int, len(prefix), len(prefix)+maxNewTokens)
	copy(out, prefix)

	ctx := g.Model.Cfg.ContextLength
	for n := 0; n < maxNewTokens; n++ {
		window := out
		if len(window) > ctx {
			window = window[len(window)-ctx:]
		}
		logits, err := g.Model.Forward(window, false)
		if err != nil {
			return nil, err
		}
		_, T := logits.Dims()
		next, err := g.Sampler.Sample(mat.Col(nil, T-1, logits))
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// GenerateText is the text-level entry point: encode the prompt,
// generate, decode the whole sequence back to text.
func (g *Generator) GenerateText(tok tokenizer.Tokenizer, prompt string, maxNewTokens int) (string, error) {
	ids, err := g.Generate(tok.Encode(prompt), maxNewTokens)
	if err != nil {
		return "", err
	}
	return tok.Decode(ids), nil
}

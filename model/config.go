package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid architecture hyperparameters, surfaced at
	// construction time.
	ErrConfig = errors.New("model: invalid config")
	// ErrSequenceLength marks forward-pass input that is empty or longer
	// than the context window.
	ErrSequenceLength = errors.New("model: sequence length out of range")
)

// Config fixes the architecture of a model. It is treated as immutable
// after construction; nothing in this package writes to it.
type Config struct {
	VocabSize     int
	EmbeddingDim  int
	NumHeads      int
	NumLayers     int
	ContextLength int
}

func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab size %d, must be positive", ErrConfig, c.VocabSize)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dim %d, must be positive", ErrConfig, c.EmbeddingDim)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("%w: heads %d, must be positive", ErrConfig, c.NumHeads)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("%w: layers %d, must be positive", ErrConfig, c.NumLayers)
	}
	if c.ContextLength <= 0 {
		return fmt.Errorf("%w: context length %d, must be positive", ErrConfig, c.ContextLength)
	}
	if c.EmbeddingDim%c.NumHeads != 0 {
		return fmt.Errorf("%w: embedding dim %d not divisible by %d heads",
			ErrConfig, c.EmbeddingDim, c.NumHeads)
	}
	return nil
}

// HeadDim is the per-head projection width.
func (c Config) HeadDim() int { return c.EmbeddingDim / c.NumHeads }

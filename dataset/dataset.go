// Package dataset turns a token stream into fixed-shape training
// batches of next-token prediction pairs.
package dataset

import (
	"fmt"
	"math/rand"
)

// Batch is a fixed-size group of sequences; Targets[i][t] is the token
// that should follow Inputs[i][t].
type Batch struct {
	Inputs  [][]int
	Targets [][]int
}

// Loader owns the strided view of a token stream. Sequence i reads
// tokens[i*L : i*L+L] as input and tokens[i*L+1 : i*L+1+L] as target,
// right-padded with the end-of-text id where the stream runs out.
// Batches are groups of batchSize sequences in the current order; the
// trailing partial batch is dropped. Shuffle permutes sequence order
// (training); validation loaders simply never call it.
type Loader struct {
	seqLen    int
	batchSize int
	inputs    [][]int
	targets   [][]int
	order     []int
}

func NewLoader(tokens []int, seqLen, batchSize, eot int) (*Loader, error) {
	if seqLen <= 0 {
		return nil, fmt.Errorf("dataset: seq len %d, must be positive", seqLen)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size %d, must be positive", batchSize)
	}
	if eot < 0 {
		return nil, fmt.Errorf("dataset: end-of-text id %d, must be >= 0", eot)
	}

	nSeq := (len(tokens) + seqLen - 1) / seqLen
	l := &Loader{
		seqLen:    seqLen,
		batchSize: batchSize,
		inputs:    make([][]int, nSeq),
		targets:   make([][]int, nSeq),
		order:     make([]int, nSeq),
	}
	for i := 0; i < nSeq; i++ {
		l.inputs[i] = window(tokens, i*seqLen, seqLen, eot)
		l.targets[i] = window(tokens, i*seqLen+1, seqLen, eot)
		l.order[i] = i
	}
	return l, nil
}

// window copies seqLen tokens starting at off, padding with eot past
// the end of the stream.
func window(tokens []int, off, seqLen, eot int) []int {
	out := make([]int, seqLen)
	for j := 0; j < seqLen; j++ {
		if off+j < len(tokens) {
			out[j] = tokens[off+j]
		} else {
			out[j] = eot
		}
	}
	return out
}

// Len is the number of full batches available per epoch.
func (l *Loader) Len() int { return len(l.order) / l.batchSize }

// Sequences is the total sequence count, including any that only fit
// into the dropped partial batch.
func (l *Loader) Sequences() int { return len(l.order) }

// SeqLen is the fixed sequence length of every batch.
func (l *Loader) SeqLen() int { return l.seqLen }

// BatchSize is the fixed number of sequences per batch.
func (l *Loader) BatchSize() int { return l.batchSize }

// At materializes batch i under the current order.
func (l *Loader) At(i int) Batch {
	if i < 0 || i >= l.Len() {
		panic(fmt.Sprintf("dataset: batch index %d out of range [0,%d)", i, l.Len()))
	}
	b := Batch{
		Inputs:  make([][]int, l.batchSize),
		Targets: make([][]int, l.batchSize),
	}
	for k := 0; k < l.batchSize; k++ {
		seq := l.order[i*l.batchSize+k]
		b.Inputs[k] = l.inputs[seq]
		b.Targets[k] = l.targets[seq]
	}
	return b
}

// Shuffle permutes sequence order in place. Call once per epoch for
// training data.
func (l *Loader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l.order), func(i, j int) {
		l.order[i], l.order[j] = l.order[j], l.order[i]
	})
}

// Split divides a token stream into train and validation parts, with
// valFrac of the tokens (at least one, at most all but one) at the end
// reserved for validation.
func Split(tokens []int, valFrac float64) (train, val []int) {
	if valFrac <= 0 || len(tokens) < 2 {
		return tokens, nil
	}
	if valFrac >= 1 {
		return nil, tokens
	}
	cut := len(tokens) - int(float64(len(tokens))*valFrac)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(tokens) {
		cut = len(tokens) - 1
	}
	return tokens[:cut], tokens[cut:]
}

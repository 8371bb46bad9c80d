// Package tokenizer converts between text and token ids. The model
// never sees text; everything upstream of ids lives here.
package tokenizer

// Tokenizer is the common interface for all tokenizers in minigpt.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	// EndOfText is the id used to pad dataset sequences and mark
	// document boundaries.
	EndOfText() int
	VocabSize() int
}

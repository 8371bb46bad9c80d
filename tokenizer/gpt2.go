package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const gpt2EndOfText = 50256

// GPT2 wraps the pretrained GPT-2 byte-pair encoding. No training
// needed; the vocabulary ships with the encoding tables.
type GPT2 struct {
	enc *tiktoken.Tiktoken
}

func NewGPT2() (*GPT2, error) {
	enc, err := tiktoken.GetEncoding("gpt2")
	if err != nil {
		return nil, fmt.Errorf("tokenizer: loading gpt2 encoding: %w", err)
	}
	return &GPT2{enc: enc}, nil
}

func (t *GPT2) Encode(text string) []int {
	return t.enc.Encode(text, []string{"<|endoftext|>"}, nil)
}

func (t *GPT2) Decode(ids []int) string {
	return t.enc.Decode(ids)
}

func (t *GPT2) EndOfText() int { return gpt2EndOfText }

func (t *GPT2) VocabSize() int { return gpt2EndOfText + 1 }

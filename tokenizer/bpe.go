package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/models"
	"github.com/sugarme/tokenizer/normalizers"
	"github.com/sugarme/tokenizer/pretokenizers"
	"github.com/sugarme/tokenizer/trainers"
)

var bpeSpecials = []string{"<pad>", "<bos>", "<eos>", "<unk>"}

// BPE is a corpus-trained byte-pair tokenizer. Text is NFKC-lowercased
// and whitespace-split before merging, so decoding joins tokens with
// single spaces.
type BPE struct {
	tok       *tk.Tokenizer
	idToToken []string
	tokenToID map[string]int
	special   map[string]bool
	eot       int
}

// TrainBPE fits a fresh vocabulary on the corpus files and saves the
// tokenizer JSON to savePath for later LoadBPE calls.
func TrainBPE(corpusPaths []string, vocabSize int, savePath string) (*BPE, error) {
	if vocabSize <= len(bpeSpecials) {
		return nil, fmt.Errorf("tokenizer: bpe vocab size %d too small", vocabSize)
	}
	t := tk.NewTokenizer(models.NewBPE())
	t.WithNormalizer(normalizers.NewSequence(
		normalizers.NewNFKC(),
		normalizers.NewLowercase(),
	))
	t.WithPreTokenizer(pretokenizers.NewWhitespaceSplit())

	tr := trainers.NewBpeTrainer()
	tr.VocabSize = vocabSize
	tr.SpecialTokens = bpeSpecials

	if err := t.Train(tr, corpusPaths); err != nil {
		return nil, fmt.Errorf("tokenizer: training bpe: %w", err)
	}
	if savePath != "" {
		if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
			return nil, err
		}
		if err := t.Save(savePath); err != nil {
			return nil, fmt.Errorf("tokenizer: saving bpe to %s: %w", savePath, err)
		}
	}
	return newBPE(t)
}

// LoadBPE reads a tokenizer JSON previously written by TrainBPE.
func LoadBPE(path string) (*BPE, error) {
	t, err := tk.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: loading bpe from %s: %w", path, err)
	}
	return newBPE(t)
}

func newBPE(t *tk.Tokenizer) (*BPE, error) {
	vocab := t.GetVocab(true)
	if len(vocab) == 0 {
		return nil, fmt.Errorf("tokenizer: bpe vocabulary is empty")
	}
	maxID := 0
	for _, id := range vocab {
		if id > maxID {
			maxID = id
		}
	}
	b := &BPE{
		tok:       t,
		idToToken: make([]string, maxID+1),
		tokenToID: make(map[string]int, len(vocab)),
		special:   make(map[string]bool, len(bpeSpecials)),
	}
	for tok, id := range vocab {
		b.idToToken[id] = tok
		b.tokenToID[tok] = id
	}
	for _, s := range bpeSpecials {
		b.special[s] = true
	}
	eot, ok := b.tokenToID["<eos>"]
	if !ok {
		return nil, fmt.Errorf("tokenizer: bpe vocabulary has no <eos> token")
	}
	b.eot = eot
	return b, nil
}

func (b *BPE) Encode(text string) []int {
	enc, err := b.tok.EncodeSingle(text)
	if err != nil || enc == nil {
		return nil
	}
	out := make([]int, len(enc.Ids))
	for i, v := range enc.Ids {
		out[i] = int(v)
	}
	return out
}

func (b *BPE) Decode(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(b.idToToken) {
			continue
		}
		tok := b.idToToken[id]
		if tok == "" || b.special[tok] {
			continue
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}

func (b *BPE) EndOfText() int { return b.eot }

func (b *BPE) VocabSize() int { return len(b.idToToken) }

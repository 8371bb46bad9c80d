package tokenizer

// Byte is the simplest possible tokenizer: each byte is a token, plus
// one dedicated end-of-text id above the byte range. Good enough for
// small training experiments without any vocabulary files.
type Byte struct{}

func NewByte() Byte { return Byte{} }

func (Byte) Encode(text string) []int {
	bs := []byte(text)
	ids := make([]int, len(bs))
	for i, b := range bs {
		ids[i] = int(b)
	}
	return ids
}

func (Byte) Decode(ids []int) string {
	out := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < 256 {
			out = append(out, byte(id))
		}
		// the end-of-text id has no textual form
	}
	return string(out)
}

func (Byte) EndOfText() int { return 256 }

func (Byte) VocabSize() int { return 257 }

package tokenizer

import "testing"

func TestByteRoundTrip(t *testing.T) {
	b := NewByte()
	text := "hello, world! \n\ttabs too"
	ids := b.Encode(text)
	if len(ids) != len(text) {
		t.Fatalf("encoded %d ids for %d bytes", len(ids), len(text))
	}
	if got := b.Decode(ids); got != text {
		t.Fatalf("round trip broke: %q", got)
	}
}

func TestByteEndOfText(t *testing.T) {
	b := NewByte()
	if b.EndOfText() != 256 {
		t.Fatalf("eot = %d", b.EndOfText())
	}
	if b.VocabSize() != 257 {
		t.Fatalf("vocab = %d", b.VocabSize())
	}
	for _, id := range b.Encode("any text at all") {
		if id == b.EndOfText() {
			t.Fatal("eot id collides with a byte token")
		}
		if id < 0 || id >= b.VocabSize() {
			t.Fatalf("id %d outside vocab", id)
		}
	}
}

func TestByteDecodeSkipsEOT(t *testing.T) {
	b := NewByte()
	ids := append(b.Encode("ab"), b.EndOfText())
	ids = append(ids, b.Encode("c")...)
	if got := b.Decode(ids); got != "abc" {
		t.Fatalf("decode with eot = %q, want \"abc\"", got)
	}
}

var _ = []Tokenizer{Byte{}, (*GPT2)(nil), (*BPE)(nil)}

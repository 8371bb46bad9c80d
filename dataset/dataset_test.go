package dataset

import (
	"math/rand"
	"testing"
)

const eot = 999

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1 // 1-based so 0 never collides with real tokens
	}
	return out
}

func TestStrideMapping(t *testing.T) {
	// 10 tokens, L=4 -> sequences at offsets 0, 4, 8
	l, err := NewLoader(seq(10), 4, 1, eot)
	if err != nil {
		t.Fatal(err)
	}
	if l.Sequences() != 3 {
		t.Fatalf("sequences = %d, want 3", l.Sequences())
	}

	b0 := l.At(0)
	wantIn := []int{1, 2, 3, 4}
	wantTg := []int{2, 3, 4, 5}
	for j := range wantIn {
		if b0.Inputs[0][j] != wantIn[j] {
			t.Fatalf("input[%d] = %d, want %d", j, b0.Inputs[0][j], wantIn[j])
		}
		if b0.Targets[0][j] != wantTg[j] {
			t.Fatalf("target[%d] = %d, want %d", j, b0.Targets[0][j], wantTg[j])
		}
	}

	// target of each position is the next input token
	b1 := l.At(1)
	if b1.Inputs[0][0] != 5 || b1.Targets[0][0] != 6 {
		t.Fatalf("second sequence misaligned: in=%d tg=%d", b1.Inputs[0][0], b1.Targets[0][0])
	}
}

func TestEOTPadding(t *testing.T) {
	// 10 tokens, L=4: last sequence input = [9 10 pad pad],
	// its target = [10 pad pad pad]
	l, err := NewLoader(seq(10), 4, 1, eot)
	if err != nil {
		t.Fatal(err)
	}
	b := l.At(2)
	in, tg := b.Inputs[0], b.Targets[0]
	if in[0] != 9 || in[1] != 10 || in[2] != eot || in[3] != eot {
		t.Fatalf("padded input = %v", in)
	}
	if tg[0] != 10 || tg[1] != eot || tg[2] != eot || tg[3] != eot {
		t.Fatalf("padded target = %v", tg)
	}
}

func TestExactMultipleStillPadsTarget(t *testing.T) {
	// 8 tokens, L=4: second target needs token 9, which doesn't exist
	l, err := NewLoader(seq(8), 4, 1, eot)
	if err != nil {
		t.Fatal(err)
	}
	if l.Sequences() != 2 {
		t.Fatalf("sequences = %d, want 2", l.Sequences())
	}
	tg := l.At(1).Targets[0]
	if tg[3] != eot {
		t.Fatalf("final target = %v, want trailing eot", tg)
	}
}

func TestPartialBatchDropped(t *testing.T) {
	// 5 sequences with batch size 2 -> 2 batches, 1 sequence unused
	l, err := NewLoader(seq(20), 4, 2, eot)
	if err != nil {
		t.Fatal(err)
	}
	if l.Sequences() != 5 {
		t.Fatalf("sequences = %d, want 5", l.Sequences())
	}
	if l.Len() != 2 {
		t.Fatalf("batches = %d, want 2", l.Len())
	}
}

func TestEmptyStream(t *testing.T) {
	l, err := NewLoader(nil, 4, 2, eot)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 || l.Sequences() != 0 {
		t.Fatalf("empty stream produced %d batches over %d sequences", l.Len(), l.Sequences())
	}
}

func TestRejectsBadArguments(t *testing.T) {
	if _, err := NewLoader(seq(4), 0, 1, eot); err == nil {
		t.Fatal("zero seq len accepted")
	}
	if _, err := NewLoader(seq(4), 4, 0, eot); err == nil {
		t.Fatal("zero batch size accepted")
	}
	if _, err := NewLoader(seq(4), 4, 1, -1); err == nil {
		t.Fatal("negative eot accepted")
	}
}

func TestShuffleIsSeedDeterministicAndComplete(t *testing.T) {
	tokens := seq(64)
	a, _ := NewLoader(tokens, 4, 2, eot)
	b, _ := NewLoader(tokens, 4, 2, eot)
	a.Shuffle(rand.New(rand.NewSource(5)))
	b.Shuffle(rand.New(rand.NewSource(5)))

	seen := map[int]bool{}
	for i := 0; i < a.Len(); i++ {
		ba, bb := a.At(i), b.At(i)
		for k := range ba.Inputs {
			if ba.Inputs[k][0] != bb.Inputs[k][0] {
				t.Fatal("same seed produced different shuffles")
			}
			seen[ba.Inputs[k][0]] = true
		}
	}
	// every sequence surfaced exactly once across the epoch
	if len(seen) != a.Sequences() {
		t.Fatalf("epoch visited %d distinct sequences, want %d", len(seen), a.Sequences())
	}
}

func TestUnshuffledOrderIsStable(t *testing.T) {
	l, _ := NewLoader(seq(32), 4, 2, eot)
	first := l.At(0).Inputs[0][0]
	for i := 0; i < 3; i++ {
		if l.At(0).Inputs[0][0] != first {
			t.Fatal("validation-style loader changed order without Shuffle")
		}
	}
}

func TestSplit(t *testing.T) {
	tokens := seq(100)
	train, val := Split(tokens, 0.1)
	if len(train) != 90 || len(val) != 10 {
		t.Fatalf("split 90/10 gave %d/%d", len(train), len(val))
	}
	if val[0] != 91 {
		t.Fatalf("validation must be the stream tail, starts at %d", val[0])
	}
	train, val = Split(tokens, 0)
	if len(train) != 100 || val != nil {
		t.Fatal("zero fraction must keep everything in train")
	}
}

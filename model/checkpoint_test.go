package model

import (
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m := newTestModel(t)
	ids := []int{4, 8, 15, 16}

	want, err := m.Forward(ids, false)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "model.ckpt")
	snap := m.Snapshot()
	snap.Step = 17
	snap.Tokenizer = "byte"
	if err := SaveSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Step != 17 || loaded.Tokenizer != "byte" {
		t.Fatalf("metadata lost: step=%d tokenizer=%q", loaded.Step, loaded.Tokenizer)
	}
	if loaded.Config != m.Cfg {
		t.Fatalf("config mismatch: %+v", loaded.Config)
	}

	restored, err := Restore(loaded)
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.Forward(ids, false)
	if err != nil {
		t.Fatal(err)
	}
	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if want.At(i, j) != got.At(i, j) {
				t.Fatalf("restored logits[%d,%d] differ: %v vs %v", i, j, want.At(i, j), got.At(i, j))
			}
		}
	}
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	m := newTestModel(t)

	missing := m.Snapshot()
	delete(missing.Params, "wte")
	if _, err := Restore(missing); err == nil {
		t.Fatal("missing parameter accepted")
	}

	extra := m.Snapshot()
	extra.Params["mystery"] = []float64{1, 2, 3}
	if _, err := Restore(extra); err == nil {
		t.Fatal("unknown parameter accepted")
	}

	short := m.Snapshot()
	short.Params["head"] = short.Params["head"][:3]
	if _, err := Restore(short); err == nil {
		t.Fatal("truncated parameter accepted")
	}

	bad := m.Snapshot()
	bad.Config.NumHeads = 3 // 16 % 3 != 0
	if _, err := Restore(bad); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestModel(t)
	snap := m.Snapshot()
	before := snap.Params["head"][0]
	m.Head.W.Set(0, 0, before+1000)
	if snap.Params["head"][0] != before {
		t.Fatal("snapshot aliases live weights")
	}
}

package model

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// Snapshot is the single checkpoint artifact: every parameter keyed by
// its registry name, plus enough metadata to rebuild the model and
// resume the optimizer.
type Snapshot struct {
	Config    Config
	Step      int
	Tokenizer string

	Params map[string][]float64

	// AdamW moments, present when saved mid-training
	OptM    map[string][]float64
	OptV    map[string][]float64
	OptStep int
}

// Snapshot copies the current parameter values out of the model.
func (m *GPT) Snapshot() *Snapshot {
	s := &Snapshot{
		Config: m.Cfg,
		Params: make(map[string][]float64, len(m.params)),
	}
	for _, p := range m.params {
		s.Params[p.Name] = append([]float64(nil), p.W.RawMatrix().Data...)
	}
	return s
}

// Restore builds a model from a snapshot. Every registry parameter must
// be present with the right size; extras are rejected.
func Restore(s *Snapshot) (*GPT, error) {
	m, err := New(s.Config, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range m.params {
		data, ok := s.Params[p.Name]
		if !ok {
			return nil, fmt.Errorf("model: checkpoint missing parameter %q", p.Name)
		}
		r, c := p.W.Dims()
		if len(data) != r*c {
			return nil, fmt.Errorf("model: checkpoint parameter %q has %d values, want %d",
				p.Name, len(data), r*c)
		}
		copy(p.W.RawMatrix().Data, data)
		seen[p.Name] = true
	}
	for name := range s.Params {
		if !seen[name] {
			return nil, fmt.Errorf("model: checkpoint has unknown parameter %q", name)
		}
	}
	return m, nil
}

func SaveSnapshot(path string, s *Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("model: encoding checkpoint: %w", err)
	}
	return nil
}

func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("model: decoding checkpoint %s: %w", path, err)
	}
	return &s, nil
}

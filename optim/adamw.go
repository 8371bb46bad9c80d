package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamW over a fixed parameter list. Moment matrices are allocated
// lazily per parameter and kept keyed by name so they can round-trip
// through checkpoints.
type AdamW struct {
	Params      []*Param
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	t int
	m map[string]*mat.Dense
	v map[string]*mat.Dense
}

func NewAdamW(params []*Param, lr, weightDecay float64) *AdamW {
	return &AdamW{
		Params:      params,
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.95,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		m:           make(map[string]*mat.Dense, len(params)),
		v:           make(map[string]*mat.Dense, len(params)),
	}
}

func (o *AdamW) SetLR(lr float64) { o.LR = lr }

// Step applies one AdamW update to every parameter from its
// accumulated gradient. Gradients are left untouched; call ZeroGrad
// before the next accumulation.
func (o *AdamW) Step() {
	o.t++
	for _, p := range o.Params {
		m, ok := o.m[p.Name]
		if !ok {
			r, c := p.W.Dims()
			m = mat.NewDense(r, c, nil)
			o.m[p.Name] = m
		}
		v, ok := o.v[p.Name]
		if !ok {
			r, c := p.W.Dims()
			v = mat.NewDense(r, c, nil)
			o.v[p.Name] = v
		}
		wd := o.WeightDecay
		if p.NoDecay {
			wd = 0.0
		}
		AdamUpdateInPlace(p.W, p.G, m, v, o.t, o.LR, o.Beta1, o.Beta2, o.Eps, wd)
	}
}

func (o *AdamW) ZeroGrad() {
	for _, p := range o.Params {
		p.ZeroGrad()
	}
}

func (o *AdamW) StepCount() int { return o.t }

// State exports first/second moments for checkpointing.
func (o *AdamW) State() (m, v map[string][]float64, t int) {
	m = make(map[string][]float64, len(o.m))
	v = make(map[string][]float64, len(o.v))
	for k, d := range o.m {
		m[k] = append([]float64(nil), d.RawMatrix().Data...)
	}
	for k, d := range o.v {
		v[k] = append([]float64(nil), d.RawMatrix().Data...)
	}
	return m, v, o.t
}

// LoadState restores moments saved by State. Unknown names error so a
// checkpoint cannot silently drift from the model it was trained with.
func (o *AdamW) LoadState(m, v map[string][]float64, t int) error {
	byName := make(map[string]*Param, len(o.Params))
	for _, p := range o.Params {
		byName[p.Name] = p
	}
	load := func(src map[string][]float64, dst map[string]*mat.Dense) error {
		for name, data := range src {
			p, ok := byName[name]
			if !ok {
				return fmt.Errorf("optim: moment for unknown parameter %q", name)
			}
			r, c := p.W.Dims()
			if len(data) != r*c {
				return fmt.Errorf("optim: moment %q has %d values, want %d", name, len(data), r*c)
			}
			dst[name] = mat.NewDense(r, c, append([]float64(nil), data...))
		}
		return nil
	}
	if err := load(m, o.m); err != nil {
		return err
	}
	if err := load(v, o.v); err != nil {
		return err
	}
	o.t = t
	return nil
}

// AdamUpdateInPlace performs one AdamW update with bias correction:
// p -= lr * (mhat/(sqrt(vhat)+eps) + wd*p).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("AdamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("AdamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("AdamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			update := mhat/(math.Sqrt(vhat)+eps) + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// ClipByGlobalNorm rescales all gradients when their joint L2 norm
// exceeds maxNorm. Returns the scale that was applied (1.0 = none).
func ClipByGlobalNorm(params []*Param, maxNorm float64) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	total := 0.0
	for _, p := range params {
		for _, g := range p.G.RawMatrix().Data {
			total += g * g
		}
	}
	norm := math.Sqrt(total)
	if norm <= maxNorm {
		return 1.0
	}
	scale := maxNorm / norm
	for _, p := range params {
		p.G.Scale(scale, p.G)
	}
	return scale
}

// CosineSchedule: linear warmup to maxLR over warmup steps, then cosine
// decay to minLR at total steps. Steps are 1-based.
func CosineSchedule(step, warmup, total int, maxLR, minLR float64) float64 {
	if warmup > 0 && step < warmup {
		return maxLR * float64(step) / float64(warmup)
	}
	if step >= total || total <= warmup {
		return minLR
	}
	progress := float64(step-warmup) / float64(total-warmup)
	return minLR + 0.5*(maxLR-minLR)*(1.0+math.Cos(math.Pi*progress))
}

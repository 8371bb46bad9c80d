package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense helpers shared by the model packages. Activations follow the
// (features x time) convention: column t is sequence position t.

func Dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Mul(m, n)
	return o
}

// AccumDot adds m*n into dst in place.
func AccumDot(dst *mat.Dense, m, n mat.Matrix) {
	var p mat.Dense
	p.Mul(m, n)
	dst.Add(dst, &p)
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Add(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Multiply(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

// AddBias adds a (r x 1) bias to every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("AddBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

// BiasGrad sums dY over time, yielding the (r x 1) gradient of a
// per-row bias that was broadcast across columns.
func BiasGrad(dY *mat.Dense) *mat.Dense {
	r, c := dY.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for t := 0; t < c; t++ {
			s += dY.At(i, t)
		}
		out.Set(i, 0, s)
	}
	return out
}

func Ones(r, c int) *mat.Dense {
	a := make([]float64, r*c)
	for i := range a {
		a[i] = 1.0
	}
	return mat.NewDense(r, c, a)
}

// -------- Initializers --------

// NormalMatrix fills (r x c) with N(0, std^2) draws.
func NormalMatrix(r, c int, std float64, rng *rand.Rand) *mat.Dense {
	a := make([]float64, r*c)
	for i := range a {
		a[i] = rng.NormFloat64() * std
	}
	return mat.NewDense(r, c, a)
}

// XavierMatrix fills (r x c) with U(-lim, lim), lim = sqrt(6/(fanIn+fanOut)).
// Rows are outputs and columns are inputs for every weight in this codebase.
func XavierMatrix(r, c int, rng *rand.Rand) *mat.Dense {
	lim := math.Sqrt(6.0 / float64(r+c))
	a := make([]float64, r*c)
	for i := range a {
		a[i] = (rng.Float64()*2.0 - 1.0) * lim
	}
	return mat.NewDense(r, c, a)
}

// -------- GELU activation (GPT-style) --------
// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))

func GeluApply(i, j int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

// GeluPrime is the elementwise derivative given the pre-activation matrix.
func GeluPrime(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	const k = 0.7978845608028654 // sqrt(2/pi)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := m.At(i, j)
			t := k * (x + 0.044715*x*x*x)
			th := math.Tanh(t)
			cosh := math.Cosh(t)
			sech2 := 1.0 / (cosh * cosh)
			dt := k * (1.0 + 3.0*0.044715*x*x)
			out.Set(i, j, 0.5*(1.0+th)+0.5*x*sech2*dt)
		}
	}
	return out
}

// -------- Softmax variants --------

// CausalRowSoftmaxInPlace writes the causally masked softmax of the
// (T x T) score matrix s into dst. Row i is normalized over columns
// j <= i only; columns j > i are written as exactly 0, so no future
// position ever receives probability mass. The mask is implicit in the
// loop bounds, so it always matches the actual sequence length.
func CausalRowSoftmaxInPlace(dst, s *mat.Dense) *mat.Dense {
	r, c := s.Dims()
	if r != c {
		panic("CausalRowSoftmaxInPlace: scores must be square")
	}
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("CausalRowSoftmaxInPlace: dst shape mismatch")
	}
	for i := 0; i < r; i++ {
		mx := s.At(i, 0)
		for j := 1; j <= i; j++ {
			if v := s.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j <= i; j++ {
			e := math.Exp(s.At(i, j) - mx)
			dst.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for j := 0; j <= i; j++ {
			dst.Set(i, j, dst.At(i, j)*inv)
		}
		for j := i + 1; j < c; j++ {
			dst.Set(i, j, 0.0)
		}
	}
	return dst
}

// Softmax returns the stable softmax of a plain slice (sampler-side use).
func Softmax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	mx := floats.Max(xs)
	sum := 0.0
	for i, v := range xs {
		e := math.Exp(v - mx)
		out[i] = e
		sum += e
	}
	floats.Scale(1.0/sum, out)
	return out
}

// SoftmaxBackward for row-wise softmax. For each row i:
// s = sum_k dA[i,k]*A[i,k]; dS[i,j] = A[i,j] * (dA[i,j] - s).
// Rows of A with zeroed (masked) entries yield zero gradient there.
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// -------- Loss --------

// CrossEntropy computes the mean token-level cross-entropy of a
// (vocab x T) logits matrix against T gold indices, plus dLogits.
// loss = (1/T) * sum_t (logsumexp(logits[:,t]) - logits[gold_t, t])
// dLogits[:,t] = (softmax(logits[:,t]) - onehot(gold_t)) / T
func CrossEntropy(logits *mat.Dense, targets []int) (float64, *mat.Dense) {
	v, T := logits.Dims()
	if len(targets) != T {
		panic("CrossEntropy: target length mismatch")
	}
	grad := mat.NewDense(v, T, nil)
	total := 0.0
	invT := 1.0 / float64(T)
	for t := 0; t < T; t++ {
		gold := targets[t]
		if gold < 0 || gold >= v {
			panic("CrossEntropy: gold index out of vocab range")
		}
		mx := logits.At(0, t)
		for i := 1; i < v; i++ {
			if x := logits.At(i, t); x > mx {
				mx = x
			}
		}
		sum := 0.0
		for i := 0; i < v; i++ {
			e := math.Exp(logits.At(i, t) - mx)
			grad.Set(i, t, e)
			sum += e
		}
		logSumExp := mx + math.Log(sum)
		total += logSumExp - logits.At(gold, t)
		inv := invT / sum
		for i := 0; i < v; i++ {
			grad.Set(i, t, grad.At(i, t)*inv)
		}
		grad.Set(gold, t, grad.At(gold, t)-invT)
	}
	return total * invT, grad
}

// CrossEntropyLoss is the loss-only variant used during evaluation.
func CrossEntropyLoss(logits *mat.Dense, targets []int) float64 {
	v, T := logits.Dims()
	if len(targets) != T {
		panic("CrossEntropyLoss: target length mismatch")
	}
	total := 0.0
	for t := 0; t < T; t++ {
		gold := targets[t]
		if gold < 0 || gold >= v {
			panic("CrossEntropyLoss: gold index out of vocab range")
		}
		mx := logits.At(0, t)
		for i := 1; i < v; i++ {
			if x := logits.At(i, t); x > mx {
				mx = x
			}
		}
		sum := 0.0
		for i := 0; i < v; i++ {
			sum += math.Exp(logits.At(i, t) - mx)
		}
		total += mx + math.Log(sum) - logits.At(gold, t)
	}
	return total / float64(T)
}

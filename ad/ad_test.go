package ad

import (
	"math/rand/v2"
	"testing"

	"github.com/fumin/peps/tensor"
)

func TestGrad(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(11, 12))
	wu := tensor.Rand(rng, 4, 3)
	wv := tensor.Rand(rng, 3, 3)
	w2 := tensor.Rand(rng, 2, 2)
	w3 := tensor.Rand(rng, 3)
	w432 := tensor.Rand(rng, 4, 3, 2)
	tests := []struct {
		name string
		f    func(tp *Tape, x *Var) *Var
		x    *tensor.Dense
		tol  float64
	}{
		{
			name: "product",
			f: func(tp *Tape, x *Var) *Var {
				b := tp.Const(w432)
				y := tp.Product(x, b, [][2]int{{2, 0}, {1, 1}})
				return tp.Product(y, tp.Const(w2), [][2]int{{0, 0}, {1, 1}})
			},
			x:   tensor.Rand(rng, 2, 3, 4),
			tol: 1e-6,
		},
		{
			name: "productBothSides",
			f: func(tp *Tape, x *Var) *Var {
				// Both operands depend on x.
				y := tp.Product(x, x, [][2]int{{1, 1}}) // x xᵀ
				return tp.Product(y, tp.Const(w2), [][2]int{{0, 0}, {1, 1}})
			},
			x:   tensor.Rand(rng, 2, 3),
			tol: 1e-5,
		},
		{
			name: "normalize",
			f: func(tp *Tape, x *Var) *Var {
				y := tp.Normalize(x)
				return tp.Product(y, tp.Const(w3), [][2]int{{0, 0}})
			},
			x:   tensor.Rand(rng, 3),
			tol: 1e-6,
		},
		{
			name: "div",
			f: func(tp *Tape, x *Var) *Var {
				num := tp.Product(x, tp.Const(w3), [][2]int{{0, 0}})
				den := tp.Product(x, x, [][2]int{{0, 0}})
				return tp.Div(num, den)
			},
			x:   tensor.T1([]float64{1.2, -0.7, 0.5}),
			tol: 1e-6,
		},
		{
			name: "transposeReshapeAddScale",
			f: func(tp *Tape, x *Var) *Var {
				y := tp.Transpose(x, 2, 0, 1)
				y = tp.Reshape(y, 4, 6)
				z := tp.Scale(y, 0.5)
				y = tp.Add(y, -2, z)
				y = tp.Reshape(y, -1)
				return tp.Product(y, y, [][2]int{{0, 0}})
			},
			x:   tensor.Rand(rng, 2, 3, 4),
			tol: 1e-6,
		},
		{
			name: "powDiag",
			f: func(tp *Tape, x *Var) *Var {
				y := tp.Pow(x, -0.5)
				m := tp.Diag(y)
				v := tp.Product(m, tp.Const(w3), [][2]int{{1, 0}})
				return tp.Product(v, tp.Const(w3), [][2]int{{0, 0}})
			},
			x:   tensor.T1([]float64{2, 0.5, 3}),
			tol: 1e-6,
		},
		{
			name: "padAxis",
			f: func(tp *Tape, x *Var) *Var {
				y := tp.PadAxis(x, 0, 4)
				return tp.Product(y, tp.Const(wu), [][2]int{{0, 0}, {1, 1}})
			},
			x:   tensor.Rand(rng, 2, 3),
			tol: 1e-6,
		},
		{
			name: "svdValues",
			f: func(tp *Tape, x *Var) *Var {
				_, s, _, _ := tp.SVD(x, tensor.Truncation{})
				return tp.Product(s, tp.Const(w3), [][2]int{{0, 0}})
			},
			x:   tensor.Rand(rng, 4, 3),
			tol: 1e-5,
		},
		{
			name: "svdVectors",
			f: func(tp *Tape, x *Var) *Var {
				u, s, v, _ := tp.SVD(x, tensor.Truncation{})
				out := tp.Product(u, tp.Const(wu), [][2]int{{0, 0}, {1, 1}})
				out = tp.Add(out, 1, tp.Product(v, tp.Const(wv), [][2]int{{0, 0}, {1, 1}}))
				return tp.Add(out, 1, tp.Product(s, tp.Const(w3), [][2]int{{0, 0}}))
			},
			// Well separated singular values keep the adjoint stable.
			x: tensor.T2([][]float64{
				{5, 0.3, -0.2},
				{0.1, 3.1, 0.4},
				{-0.3, 0.2, 1.4},
				{0.2, -0.1, 0.3},
			}),
			tol: 1e-4,
		},
		{
			name: "svdTruncated",
			f: func(tp *Tape, x *Var) *Var {
				u, s, v, _ := tp.SVD(x, tensor.Truncation{MaxDim: 2})
				us := tp.Product(u, tp.Diag(s), [][2]int{{1, 0}})
				y := tp.Product(us, v, [][2]int{{1, 1}})
				return tp.Product(y, tp.Const(wu), [][2]int{{0, 0}, {1, 1}})
			},
			x: tensor.T2([][]float64{
				{6, 0.2, -0.1},
				{0.3, 3.5, 0.2},
				{-0.2, 0.1, 1.2},
				{0.1, -0.3, 0.4},
			}),
			tol: 1e-4,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			gradCheck(t, test.f, test.x, test.tol)
		})
	}
}

// TestBackwardReplay checks that a tape can be replayed with fresh seeds,
// and that the backward map is linear in the seed.
func TestBackwardReplay(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(13, 14))
	x := tensor.Rand(rng, 3, 3)
	w := tensor.Rand(rng, 3, 3)

	tp := NewTape()
	xv := tp.Input(x)
	y := tp.Product(xv, tp.Const(w), [][2]int{{1, 0}})
	y = tp.Normalize(y)

	seed := tensor.Rand(rng, 3, 3)
	g1 := tp.Backward([]*Var{y}, []*tensor.Dense{seed}, []*Var{xv})[0]
	g2 := tp.Backward([]*Var{y}, []*tensor.Dense{seed.Clone().Scale(2)}, []*Var{xv})[0]
	if !tensor.EqualApprox(g1.Clone().Scale(2), g2, 1e-12) {
		t.Fatalf("%f", tensor.MaxDiff(g1.Clone().Scale(2), g2))
	}
}

// TestConstNoGrad checks that constants neither receive nor propagate
// gradients.
func TestConstNoGrad(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(15, 16))
	a := tensor.Rand(rng, 2, 2)
	b := tensor.Rand(rng, 2, 2)

	tp := NewTape()
	av := tp.Const(a)
	bv := tp.Const(b)
	y := tp.Product(av, bv, [][2]int{{1, 0}})
	if y.tracked {
		t.Fatalf("tracked")
	}
	if len(tp.steps) != 0 {
		t.Fatalf("%d", len(tp.steps))
	}
}

func gradCheck(t *testing.T, f func(tp *Tape, x *Var) *Var, x *tensor.Dense, tol float64) {
	t.Helper()
	tp := NewTape()
	xv := tp.Input(x)
	out := f(tp, xv)
	if out.Value.Rank() != 0 {
		t.Fatalf("%#v", out.Value.Shape())
	}
	got := tp.Backward([]*Var{out}, []*tensor.Dense{tensor.Scalar(1)}, []*Var{xv})[0]

	const h = 1e-6
	want := tensor.Zeros(x.Shape()...)
	for i := range x.Data() {
		orig := x.Data()[i]
		x.Data()[i] = orig + h
		fp := eval(f, x)
		x.Data()[i] = orig - h
		fm := eval(f, x)
		x.Data()[i] = orig
		want.Data()[i] = (fp - fm) / (2 * h)
	}

	if !tensor.EqualApprox(got, want, tol) {
		t.Fatalf("%f, gradient %#v, expected %#v", tensor.MaxDiff(got, want), got, want)
	}
}

func eval(f func(tp *Tape, x *Var) *Var, x *tensor.Dense) float64 {
	tp := NewTape()
	return f(tp, tp.Input(x)).Value.At()
}

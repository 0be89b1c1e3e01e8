package tensor

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func TestProduct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a    *Dense
		b    *Dense
		axes [][2]int
		want *Dense
	}{
		{
			// Matrix multiplication.
			a:    T2([][]float64{{1, 2}, {3, 4}}),
			b:    T2([][]float64{{5, 6}, {7, 8}}),
			axes: [][2]int{{1, 0}},
			want: T2([][]float64{{19, 22}, {43, 50}}),
		},
		{
			// Contraction over both axes yields a scalar.
			a:    T2([][]float64{{1, 2}, {3, 4}}),
			b:    T2([][]float64{{5, 6}, {7, 8}}),
			axes: [][2]int{{0, 0}, {1, 1}},
			want: Scalar(70),
		},
		{
			// Outer product.
			a:    T1([]float64{1, 2}),
			b:    T1([]float64{3, 4, 5}),
			axes: nil,
			want: T2([][]float64{{3, 4, 5}, {6, 8, 10}}),
		},
		{
			// Contraction over the second axis of both operands.
			a:    T2([][]float64{{1, 2}, {3, 4}}),
			b:    T2([][]float64{{5, 6}, {7, 8}}),
			axes: [][2]int{{1, 1}},
			want: T2([][]float64{{17, 23}, {39, 53}}),
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			got := Product(Zeros(1), test.a, test.b, test.axes)
			if !EqualApprox(got, test.want, 1e-12) {
				t.Fatalf("%#v, expected %#v", got, test.want)
			}
		})
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	a := Rand(rng, 2, 3, 4, 5)

	b := a.Transpose(3, 1, 0, 2)
	c := b.Transpose(2, 1, 3, 0)
	if !EqualApprox(a, c, 0) {
		t.Fatalf("%#v %#v", a.Shape(), c.Shape())
	}
}

func TestTransposeMatrix(t *testing.T) {
	t.Parallel()
	a := T2([][]float64{{1, 2, 3}, {4, 5, 6}})
	want := T2([][]float64{{1, 4}, {2, 5}, {3, 6}})
	if got := a.Transpose(1, 0); !EqualApprox(got, want, 0) {
		t.Fatalf("%#v, expected %#v", got, want)
	}
}

func TestSVDReconstruct(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 4))
	a := Rand(rng, 5, 3)

	u, s, v, discarded, err := SVD(a, Truncation{})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if discarded > 1e-12 {
		t.Fatalf("%f", discarded)
	}

	// u diag(s) vᵀ reproduces a.
	us := u.Clone()
	for i := 0; i < u.Shape()[0]; i++ {
		for j := 0; j < s.Shape()[0]; j++ {
			us.SetAt([]int{i, j}, u.At(i, j)*s.At(j))
		}
	}
	got := Product(Zeros(1), us, v, [][2]int{{1, 1}})
	if !EqualApprox(got, a, 1e-10) {
		t.Fatalf("%f", MaxDiff(got, a))
	}
}

func TestSVDTruncationMonotone(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	a := Rand(rng, 6, 6)

	// Increasing the kept bond dimension never increases the discarded weight.
	prev := 2.0
	for dim := 1; dim <= 6; dim++ {
		_, _, _, discarded, err := SVD(a, Truncation{MaxDim: dim})
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if discarded > prev+1e-15 {
			t.Fatalf("dim %d: %f > %f", dim, discarded, prev)
		}
		prev = discarded
	}
	if prev > 1e-12 {
		t.Fatalf("%f", prev)
	}
}

func TestSVDTruncationDims(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	a := Rand(rng, 8, 4)

	u, s, v, _, err := SVD(a, Truncation{MaxDim: 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := u.Shape(); got[0] != 8 || got[1] != 2 {
		t.Fatalf("%#v", got)
	}
	if got := s.Shape(); got[0] != 2 {
		t.Fatalf("%#v", got)
	}
	if got := v.Shape(); got[0] != 4 || got[1] != 2 {
		t.Fatalf("%#v", got)
	}
}

// Package tensor implements dense multi-dimensional arrays of float64.
//
// Matrix kernels are delegated to gonum.org/v1/gonum/mat.
package tensor

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
)

// Dense is a dense tensor stored in row-major order.
type Dense struct {
	shape []int
	data  []float64
}

// Zeros returns a tensor of the given shape filled with zeros.
// A call with no arguments returns a rank-0 tensor holding a single scalar.
func Zeros(shape ...int) *Dense {
	size := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("%#v", shape))
		}
		size *= d
	}
	return &Dense{shape: slices.Clone(shape), data: make([]float64, size)}
}

// Scalar returns a rank-0 tensor holding v.
func Scalar(v float64) *Dense {
	t := Zeros()
	t.data[0] = v
	return t
}

// T1 creates a rank-1 tensor from a slice.
func T1(v []float64) *Dense {
	t := Zeros(len(v))
	copy(t.data, v)
	return t
}

// T2 creates a rank-2 tensor from a nested slice.
func T2(v [][]float64) *Dense {
	t := Zeros(len(v), len(v[0]))
	for i, row := range v {
		if len(row) != len(v[0]) {
			panic(fmt.Sprintf("%d %d", len(row), len(v[0])))
		}
		copy(t.data[i*len(row):], row)
	}
	return t
}

// Rand returns a tensor with entries uniformly distributed in [-1, 1).
func Rand(rng *rand.Rand, shape ...int) *Dense {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = rng.Float64()*2 - 1
	}
	return t
}

// Identity returns the n by n identity matrix.
func Identity(n int) *Dense {
	t := Zeros(n, n)
	for i := 0; i < n; i++ {
		t.data[i*n+i] = 1
	}
	return t
}

// Shape returns the dimensions of t.
func (t *Dense) Shape() []int { return slices.Clone(t.shape) }

// Rank returns the number of axes of t.
func (t *Dense) Rank() int { return len(t.shape) }

// Size returns the number of elements of t.
func (t *Dense) Size() int { return len(t.data) }

// Data returns the underlying storage of t.
func (t *Dense) Data() []float64 { return t.data }

// At returns the element at the given indices.
func (t *Dense) At(ix ...int) float64 { return t.data[t.offset(ix)] }

// SetAt sets the element at the given indices.
func (t *Dense) SetAt(ix []int, v float64) { t.data[t.offset(ix)] = v }

func (t *Dense) offset(ix []int) int {
	if len(ix) != len(t.shape) {
		panic(fmt.Sprintf("%#v %#v", ix, t.shape))
	}
	off := 0
	for i, x := range ix {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("%#v %#v", ix, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// Reshape returns a tensor of the given shape sharing the storage of t.
// At most one dimension may be -1, in which case it is inferred.
func (t *Dense) Reshape(shape ...int) *Dense {
	shape = slices.Clone(shape)
	infer, known := -1, 1
	for i, d := range shape {
		switch {
		case d == -1:
			if infer != -1 {
				panic(fmt.Sprintf("%#v", shape))
			}
			infer = i
		case d <= 0:
			panic(fmt.Sprintf("%#v", shape))
		default:
			known *= d
		}
	}
	if infer != -1 {
		if len(t.data)%known != 0 {
			panic(fmt.Sprintf("%#v %d", shape, len(t.data)))
		}
		shape[infer] = len(t.data) / known
		known *= shape[infer]
	}
	if known != len(t.data) {
		panic(fmt.Sprintf("%#v %d", shape, len(t.data)))
	}
	return &Dense{shape: shape, data: t.data}
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	return &Dense{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Transpose returns a copy of t with axes permuted so that
// axis i of the result is axis perm[i] of t.
func (t *Dense) Transpose(perm ...int) *Dense {
	rank := len(t.shape)
	if len(perm) != rank {
		panic(fmt.Sprintf("%#v %#v", perm, t.shape))
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			panic(fmt.Sprintf("%#v", perm))
		}
		seen[p] = true
	}

	shape := make([]int, rank)
	for i, p := range perm {
		shape[i] = t.shape[p]
	}
	out := Zeros(shape...)

	srcStride := strides(t.shape)
	st := make([]int, rank)
	for i, p := range perm {
		st[i] = srcStride[p]
	}
	ix := make([]int, rank)
	for o := range out.data {
		off := 0
		for i, x := range ix {
			off += x * st[i]
		}
		out.data[o] = t.data[off]
		increment(ix, shape)
	}
	return out
}

// All iterates over all elements of t in row-major order.
// The yielded index slice is reused across iterations.
func (t *Dense) All() iter.Seq2[[]int, float64] {
	return func(yield func([]int, float64) bool) {
		ix := make([]int, len(t.shape))
		for _, v := range t.data {
			if !yield(ix, v) {
				return
			}
			increment(ix, t.shape)
		}
	}
}

// Zero sets all elements of t to zero.
func (t *Dense) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Scale multiplies t by c in place.
func (t *Dense) Scale(c float64) *Dense {
	for i := range t.data {
		t.data[i] *= c
	}
	return t
}

// Axpy adds c times b to t in place.
func (t *Dense) Axpy(c float64, b *Dense) *Dense {
	if !slices.Equal(t.shape, b.shape) {
		panic(fmt.Sprintf("%#v %#v", t.shape, b.shape))
	}
	for i, v := range b.data {
		t.data[i] += c * v
	}
	return t
}

// Dot returns the sum of the elementwise product of a and b.
func Dot(a, b *Dense) float64 {
	if !slices.Equal(a.shape, b.shape) {
		panic(fmt.Sprintf("%#v %#v", a.shape, b.shape))
	}
	var s float64
	for i, v := range a.data {
		s += v * b.data[i]
	}
	return s
}

// Norm returns the Frobenius norm of t.
func (t *Dense) Norm() float64 {
	var s float64
	for _, v := range t.data {
		s += v * v
	}
	return math.Sqrt(s)
}

// MaxDiff returns the maximum elementwise absolute difference of a and b.
func MaxDiff(a, b *Dense) float64 {
	if !slices.Equal(a.shape, b.shape) {
		panic(fmt.Sprintf("%#v %#v", a.shape, b.shape))
	}
	var m float64
	for i, v := range a.data {
		m = max(m, math.Abs(v-b.data[i]))
	}
	return m
}

// EqualApprox reports whether a and b have the same shape and their
// elements differ by at most tol.
func EqualApprox(a, b *Dense, tol float64) bool {
	if !slices.Equal(a.shape, b.shape) {
		return false
	}
	return MaxDiff(a, b) <= tol
}

// HasNaN reports whether t contains a not-a-number element.
func (t *Dense) HasNaN() bool {
	for _, v := range t.data {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = s
		s *= shape[i]
	}
	return st
}

func increment(ix, shape []int) {
	for i := len(ix) - 1; i >= 0; i-- {
		ix[i]++
		if ix[i] < shape[i] {
			return
		}
		ix[i] = 0
	}
}

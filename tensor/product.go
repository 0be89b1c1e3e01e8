package tensor

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Product contracts a and b over the given axis pairs and stores the result
// in dst, which must not alias a or b. Each pair {i, j} contracts axis i of a
// with axis j of b. The result's axes are the free axes of a in order,
// followed by the free axes of b in order.
func Product(dst, a, b *Dense, axes [][2]int) *Dense {
	ca := make([]int, 0, len(axes))
	cb := make([]int, 0, len(axes))
	for _, p := range axes {
		if p[0] < 0 || p[0] >= len(a.shape) || p[1] < 0 || p[1] >= len(b.shape) {
			panic(fmt.Sprintf("%#v %#v %#v", axes, a.shape, b.shape))
		}
		if a.shape[p[0]] != b.shape[p[1]] {
			panic(fmt.Sprintf("%#v %#v %#v", axes, a.shape, b.shape))
		}
		if slices.Contains(ca, p[0]) || slices.Contains(cb, p[1]) {
			panic(fmt.Sprintf("%#v", axes))
		}
		ca = append(ca, p[0])
		cb = append(cb, p[1])
	}

	freeA := freeAxes(len(a.shape), ca)
	freeB := freeAxes(len(b.shape), cb)

	// Permute contracted axes to the back of a and the front of b,
	// and multiply as matrices.
	at := a.Transpose(append(slices.Clone(freeA), ca...)...)
	bt := b.Transpose(append(slices.Clone(cb), freeB...)...)

	m, k, n := 1, 1, 1
	shape := make([]int, 0, len(freeA)+len(freeB))
	for _, ax := range freeA {
		m *= a.shape[ax]
		shape = append(shape, a.shape[ax])
	}
	for _, ax := range ca {
		k *= a.shape[ax]
	}
	for _, ax := range freeB {
		n *= b.shape[ax]
		shape = append(shape, b.shape[ax])
	}

	out := make([]float64, m*n)
	cm := mat.NewDense(m, n, out)
	cm.Mul(mat.NewDense(m, k, at.data), mat.NewDense(k, n, bt.data))

	dst.shape = shape
	dst.data = out
	return dst
}

// freeAxes returns the axes of a rank-n tensor not contained in contracted,
// in ascending order.
func freeAxes(n int, contracted []int) []int {
	free := make([]int, 0, n-len(contracted))
	for i := 0; i < n; i++ {
		if !slices.Contains(contracted, i) {
			free = append(free, i)
		}
	}
	return free
}

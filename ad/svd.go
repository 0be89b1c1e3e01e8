package ad

import (
	"fmt"

	"github.com/fumin/peps/tensor"
)

// SVD records the truncated singular value decomposition of a rank-2 variable,
// as tensor.SVD. The backward pass uses the standard real SVD adjoint
// restricted to the kept singular triplets. Degenerate singular values make
// the adjoint blow up; the resulting NaNs are surfaced, not masked.
func (t *Tape) SVD(a *Var, trunc tensor.Truncation) (u, s, v *Var, discarded float64) {
	uv, sv, vv, discarded, err := tensor.SVD(a.Value, trunc)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	u = t.newVar(uv, a.tracked)
	s = t.newVar(sv, a.tracked)
	v = t.newVar(vv, a.tracked)
	if !a.tracked {
		return u, s, v, discarded
	}

	uOut, sOut, vOut := u, s, v
	t.steps = append(t.steps, func(g *grads) {
		du, ds, dv := g.get(uOut), g.get(sOut), g.get(vOut)
		if du == nil && ds == nil && dv == nil {
			return
		}
		g.add(a, svdBack(uv, sv, vv, du, ds, dv))
	})
	return u, s, v, discarded
}

// svdBack computes the cotangent of a from the cotangents of its kept
// singular triplets u, s, v. Nil cotangents are treated as zero.
func svdBack(u, s, v, du, ds, dv *tensor.Dense) *tensor.Dense {
	k := s.Shape()[0]

	// P = uᵀdu and Q = vᵀdv.
	var p, q *tensor.Dense
	if du != nil {
		p = tensor.Product(tensor.Zeros(1), u, du, [][2]int{{0, 0}})
	}
	if dv != nil {
		q = tensor.Product(tensor.Zeros(1), v, dv, [][2]int{{0, 0}})
	}

	core := tensor.Zeros(k, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			f := 1 / ((s.At(j) - s.At(i)) * (s.At(j) + s.At(i)))
			var x float64
			if p != nil {
				x += f * (p.At(i, j) - p.At(j, i)) * s.At(j)
			}
			if q != nil {
				x += s.At(i) * f * (q.At(i, j) - q.At(j, i))
			}
			core.SetAt([]int{i, j}, x)
		}
	}
	if ds != nil {
		for j := 0; j < k; j++ {
			core.SetAt([]int{j, j}, ds.At(j))
		}
	}

	da := tensor.Product(tensor.Zeros(1), u, core, [][2]int{{1, 0}})
	da = tensor.Product(tensor.Zeros(1), da, v, [][2]int{{1, 1}})

	// Contributions of du and dv outside the column span of u and v.
	if du != nil {
		perp := du.Clone()
		perp.Axpy(-1, tensor.Product(tensor.Zeros(1), u, p, [][2]int{{1, 0}}))
		scaleCols(perp, s)
		da.Axpy(1, tensor.Product(tensor.Zeros(1), perp, v, [][2]int{{1, 1}}))
	}
	if dv != nil {
		perp := dv.Clone()
		perp.Axpy(-1, tensor.Product(tensor.Zeros(1), v, q, [][2]int{{1, 0}}))
		scaleCols(perp, s)
		da.Axpy(1, tensor.Product(tensor.Zeros(1), u, perp, [][2]int{{1, 1}}))
	}
	return da
}

// scaleCols divides column j of m by s[j] in place.
func scaleCols(m, s *tensor.Dense) {
	rows, cols := m.Shape()[0], m.Shape()[1]
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.SetAt([]int{i, j}, m.At(i, j)/s.At(j))
		}
	}
}

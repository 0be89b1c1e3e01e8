package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// gmres solves the linear system matvec(x) = b with restarted GMRES, using
// modified Gram-Schmidt orthogonalization and Givens rotations. It returns
// the approximate solution and whether the relative residual fell below tol
// within maxIterations matrix vector products.
func gmres(matvec func([]float64) []float64, b []float64, restart, maxIterations int, tol float64) ([]float64, bool) {
	n := len(b)
	if restart < 1 {
		restart = 1
	}
	x := make([]float64, n)
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		return x, true
	}

	iters := 0
	for iters < maxIterations {
		r := make([]float64, n)
		copy(r, b)
		floats.AddScaled(r, -1, matvec(x))
		beta := floats.Norm(r, 2)
		if beta <= tol*bnorm {
			return x, true
		}

		m := restart
		v := make([][]float64, m+1)
		h := make([][]float64, m+1)
		for i := range h {
			h[i] = make([]float64, m)
		}
		v[0] = make([]float64, n)
		copy(v[0], r)
		floats.Scale(1/beta, v[0])
		cs, sn := make([]float64, m), make([]float64, m)
		g := make([]float64, m+1)
		g[0] = beta

		k := 0
		for ; k < m && iters < maxIterations; k++ {
			iters++
			w := matvec(v[k])
			for i := 0; i <= k; i++ {
				h[i][k] = floats.Dot(v[i], w)
				floats.AddScaled(w, -h[i][k], v[i])
			}
			h[k+1][k] = floats.Norm(w, 2)
			breakdown := h[k+1][k] == 0
			if !breakdown {
				v[k+1] = make([]float64, n)
				copy(v[k+1], w)
				floats.Scale(1/h[k+1][k], v[k+1])
			}

			for i := 0; i < k; i++ {
				h[i][k], h[i+1][k] = cs[i]*h[i][k]+sn[i]*h[i+1][k], -sn[i]*h[i][k]+cs[i]*h[i+1][k]
			}
			denom := math.Hypot(h[k][k], h[k+1][k])
			cs[k], sn[k] = h[k][k]/denom, h[k+1][k]/denom
			h[k][k] = denom
			h[k+1][k] = 0
			g[k+1] = -sn[k] * g[k]
			g[k] = cs[k] * g[k]

			if breakdown || math.Abs(g[k+1]) <= tol*bnorm {
				k++
				break
			}
		}

		// Back substitution of the triangularized least squares problem.
		y := make([]float64, k)
		for i := k - 1; i >= 0; i-- {
			s := g[i]
			for j := i + 1; j < k; j++ {
				s -= h[i][j] * y[j]
			}
			y[i] = s / h[i][i]
		}
		for i := 0; i < k; i++ {
			floats.AddScaled(x, y[i], v[i])
		}
	}

	r := make([]float64, n)
	copy(r, b)
	floats.AddScaled(r, -1, matvec(x))
	return x, floats.Norm(r, 2) <= tol*bnorm
}

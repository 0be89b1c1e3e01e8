package optimize

import (
	"fmt"
	"log"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ctmrg"
)

// fixedPointGrad propagates the energy cotangent y0 of the environment
// through the fixed point of the CTMRG iteration, returning the state
// cotangent
//
//	(df/dA)' (I - df/dx)'^-1 y0,
//
// where vjp is the vector-Jacobian product of one iteration at the fixed
// point. The boolean reports whether the chosen mode converged; on failure
// the partial result is still returned.
func fixedPointGrad(y0 *ctmrg.Env, vjp func(g *ctmrg.Env) (*ctmrg.Env, *peps.InfinitePEPS), mode GradMode) (*peps.InfinitePEPS, bool) {
	switch m := mode.(type) {
	case GeomSum:
		return geomSum(y0, vjp, m)
	case ManualIter:
		return manualIter(y0, vjp, m)
	case LinSolve:
		return linSolve(y0, vjp, m)
	}
	panic(fmt.Sprintf("%#v", mode))
}

func geomSum(y0 *ctmrg.Env, vjp func(g *ctmrg.Env) (*ctmrg.Env, *peps.InfinitePEPS), m GeomSum) (*peps.InfinitePEPS, bool) {
	g := y0.Clone()
	var dA *peps.InfinitePEPS
	for i := 1; i <= m.maxIterations; i++ {
		ge, ga := vjp(g)
		if dA == nil {
			dA = ga
		} else {
			dA.Add(1, ga)
		}
		n := ga.Norm()
		if m.verbosity >= 1 {
			log.Printf("geometric series term %d norm %g", i, n)
		}
		if n <= m.tol {
			return dA, true
		}
		g = ge
	}
	log.Printf("geometric series not converged after %d terms", m.maxIterations)
	return dA, false
}

func manualIter(y0 *ctmrg.Env, vjp func(g *ctmrg.Env) (*ctmrg.Env, *peps.InfinitePEPS), m ManualIter) (*peps.InfinitePEPS, bool) {
	g := y0.Clone()
	converged := false
	for i := 1; i <= m.maxIterations; i++ {
		ge, _ := vjp(g)
		next := y0.Clone().Add(1, ge)
		diff := cornerChange(next, g)
		if m.verbosity >= 1 {
			log.Printf("cotangent iteration %d change %g", i, diff)
		}
		g = next
		if diff <= m.tol {
			converged = true
			break
		}
	}
	if !converged {
		log.Printf("cotangent iteration not converged after %d iterations", m.maxIterations)
	}
	_, ga := vjp(g)
	return ga, converged
}

// cornerChange returns the largest change of the northwest corner tensors
// between successive iterates, normalized by the corner's own norm so that
// the tolerance is scale invariant.
func cornerChange(next, prev *ctmrg.Env) float64 {
	var diff float64
	for r := 0; r < next.Rows(); r++ {
		for c := 0; c < next.Cols(); c++ {
			nw := next.Corner(peps.NorthWest, r, c)
			d := nw.Clone().Axpy(-1, prev.Corner(peps.NorthWest, r, c)).Norm() / nw.Norm()
			diff = max(diff, d)
		}
	}
	return diff
}

func linSolve(y0 *ctmrg.Env, vjp func(g *ctmrg.Env) (*ctmrg.Env, *peps.InfinitePEPS), m LinSolve) (*peps.InfinitePEPS, bool) {
	b := y0.Flatten()
	matvec := func(x []float64) []float64 {
		ge, _ := vjp(y0.Unflatten(x))
		r := slices.Clone(x)
		floats.AddScaled(r, -1, ge.Flatten())
		return r
	}
	sol, ok := gmres(matvec, b, m.restart, m.maxIterations, m.tol)
	if !ok {
		log.Printf("linear solve not converged after %d products", m.maxIterations)
	}
	if m.verbosity >= 1 {
		log.Printf("linear solve converged %t", ok)
	}
	_, ga := vjp(y0.Unflatten(sol))
	return ga, ok
}

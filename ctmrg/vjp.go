package ctmrg

import (
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

// IterationVJP records one CTMRG iteration at the given environment and
// returns its vector-Jacobian product. Given a cotangent g of the iteration
// output, the returned function computes the cotangents with respect to the
// input environment and the state. The recorded tape is replayed on every
// call, so the function may be called many times.
//
// The iteration is recorded in fixedspace mode so that the output shapes
// match the input shapes, which a fixed point derivative requires.
func IterationVJP(state *peps.InfinitePEPS, env *Env, options ...Options) func(g *Env) (*Env, *peps.InfinitePEPS) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	tp := ad.NewTape()
	sv := liftState(tp, state, true)
	ev := liftEnv(tp, env, true)
	next, _ := iteration(tp, ev, sv, opt.truncation(), true)

	outs := next.vars()
	envIns := ev.vars()
	ins := append(append([]*ad.Var{}, envIns...), sv.vars()...)
	return func(g *Env) (*Env, *peps.InfinitePEPS) {
		grads := tp.Backward(outs, g.tensorList(), ins)
		ge := envFromList(env, grads[:len(envIns)])
		ga := stateFromList(state, grads[len(envIns):])
		return ge, ga
	}
}

// EnergyVJP evaluates the energy of h in the given environment and returns
// its partial derivatives with respect to the environment tensors and the
// state, holding the other fixed.
func EnergyVJP(state *peps.InfinitePEPS, env *Env, h peps.Hamiltonian) (float64, *Env, *peps.InfinitePEPS) {
	tp := ad.NewTape()
	sv := liftState(tp, state, true)
	ev := liftEnv(tp, env, true)
	e := energy(tp, ev, sv, h)

	envIns := ev.vars()
	ins := append(append([]*ad.Var{}, envIns...), sv.vars()...)
	grads := tp.Backward([]*ad.Var{e}, []*tensor.Dense{tensor.Scalar(1)}, ins)
	dEnv := envFromList(env, grads[:len(envIns)])
	dState := stateFromList(state, grads[len(envIns):])
	return e.Value.At(), dEnv, dState
}

// EnergyGradNaive computes the energy and its gradient with respect to the
// state by recording the whole CTMRG loop, iteration by iteration, and
// backpropagating through it. It is a reference for the implicit fixed point
// gradients, and its cost grows with the number of iterations.
func EnergyGradNaive(state *peps.InfinitePEPS, env *Env, h peps.Hamiltonian, options ...Options) (float64, *peps.InfinitePEPS, Info, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	tp := ad.NewTape()
	sv := liftState(tp, state, true)
	ev := liftEnv(tp, env, false)

	info := Info{}
	prev := env
	prevNorm := NetworkNorm(env, state)
	for i := 1; i <= opt.maxIterations; i++ {
		next, truncErr := iteration(tp, ev, sv, opt.truncation(), opt.fixedspace)
		cur := next.lower()

		info.Iterations = i
		info.MaxTruncErr = max(info.MaxTruncErr, truncErr)
		if cur.HasNaN() {
			return 0, nil, info, errors.Errorf("%d", i)
		}

		norm := NetworkNorm(cur, state)
		diff := envDiff(cur, prev)
		normChange := math.Abs(norm-prevNorm) / math.Max(math.Abs(norm), 1)
		ev, prev, prevNorm = next, cur, norm
		if i >= opt.minIterations && diff < opt.tol && normChange < opt.tol {
			info.Converged = true
			break
		}
	}

	e := energy(tp, ev, sv, h)
	grads := tp.Backward([]*ad.Var{e}, []*tensor.Dense{tensor.Scalar(1)}, sv.vars())
	return e.Value.At(), stateFromList(state, grads), info, nil
}

// tensorList returns the tensors of e in the order of envVars.vars.
func (e *Env) tensorList() []*tensor.Dense {
	ts := make([]*tensor.Dense, 0)
	for i := 0; i < 4; i++ {
		for _, row := range e.corners[i] {
			ts = append(ts, row...)
		}
	}
	for i := 0; i < 4; i++ {
		for _, row := range e.edges[i] {
			ts = append(ts, row...)
		}
	}
	return ts
}

// envFromList assembles an environment with the cell of template from
// tensors in the order of tensorList.
func envFromList(template *Env, ts []*tensor.Dense) *Env {
	rows, cols := template.Rows(), template.Cols()
	f := &Env{}
	for i := 0; i < 4; i++ {
		f.corners[i] = grid(rows, cols)
		f.edges[i] = grid(rows, cols)
	}
	k := 0
	for i := 0; i < 4; i++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				f.corners[i][r][c] = ts[k]
				k++
			}
		}
	}
	for i := 0; i < 4; i++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				f.edges[i][r][c] = ts[k]
				k++
			}
		}
	}
	return f
}

// stateFromList assembles a state with the cell of template from site
// tensors in row-major order.
func stateFromList(template *peps.InfinitePEPS, ts []*tensor.Dense) *peps.InfinitePEPS {
	p := template.Clone()
	k := 0
	for r := 0; r < p.Rows(); r++ {
		for c := 0; c < p.Cols(); c++ {
			p.SetSite(r, c, ts[k])
			k++
		}
	}
	return p
}

package ctmrg

import (
	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

// oneSiteRho contracts the ring of boundary tensors around site (r, c) with
// the ket and bra site tensors, leaving the physical legs open.
// The result has axes (ket, bra).
func oneSiteRho(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int) *ad.Var {
	a := sv.site(r, c)
	// t1 has axes (down, right, ketN, braN).
	t1 := tp.Product(ev.corner(peps.NorthWest, r, c), ev.edge(peps.North, r, c), [][2]int{{1, 0}})
	// t2 has axes (down, ketN, braN, down2).
	t2 := tp.Product(t1, ev.corner(peps.NorthEast, r, c), [][2]int{{1, 0}})
	// t3 has axes (down, ketN, braN, down3, ketE, braE).
	t3 := tp.Product(t2, ev.edge(peps.East, r, c), [][2]int{{3, 0}})
	// t4 has axes (down, ketN, braN, ketE, braE, left).
	t4 := tp.Product(t3, ev.corner(peps.SouthEast, r, c), [][2]int{{3, 0}})
	// t5 has axes (down, ketN, braN, ketE, braE, leftS, ketS, braS).
	t5 := tp.Product(t4, ev.edge(peps.South, r, c), [][2]int{{5, 1}})
	// t6 has axes (down, ketN, braN, ketE, braE, ketS, braS, up).
	t6 := tp.Product(t5, ev.corner(peps.SouthWest, r, c), [][2]int{{5, 1}})
	// ring has axes (ketN, braN, ketE, braE, ketS, braS, ketW, braW).
	ring := tp.Product(t6, ev.edge(peps.West, r, c), [][2]int{{0, 0}, {7, 1}})

	// ket has axes (braN, braE, braS, braW, phys).
	ket := tp.Product(ring, a, [][2]int{
		{0, peps.NorthAxis}, {2, peps.EastAxis}, {4, peps.SouthAxis}, {6, peps.WestAxis}})
	return tp.Product(ket, a, [][2]int{
		{0, peps.NorthAxis}, {1, peps.EastAxis}, {2, peps.SouthAxis}, {3, peps.WestAxis}})
}

// twoSiteRho contracts the boundary around the horizontal pair of sites
// (r, c) and (r, c+1), leaving the physical legs open.
// The result has axes (ket1, ket2, bra1, bra2).
func twoSiteRho(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int) *ad.Var {
	a1, a2 := sv.site(r, c), sv.site(r, c+1)

	// The west boundary column of site (r, c).
	// l2 has axes (right, ketW, braW, rightS).
	l1 := tp.Product(ev.corner(peps.NorthWest, r, c), ev.edge(peps.West, r, c), [][2]int{{0, 0}})
	l2 := tp.Product(l1, ev.corner(peps.SouthWest, r, c), [][2]int{{1, 0}})
	// l4 has axes (ketW, braW, rightN, ketN, braN, rightS, ketS, braS).
	l3 := tp.Product(l2, ev.edge(peps.North, r, c), [][2]int{{0, 0}})
	l4 := tp.Product(l3, ev.edge(peps.South, r, c), [][2]int{{2, 0}})
	// l5 has axes (braW, rightN, braN, rightS, braS, phys1, east1).
	l5 := tp.Product(l4, a1, [][2]int{
		{0, peps.WestAxis}, {3, peps.NorthAxis}, {6, peps.SouthAxis}})
	// l6 has axes (rightN, rightS, ket1, east1, bra1, east1*).
	l6 := tp.Product(l5, a1, [][2]int{
		{0, peps.WestAxis}, {2, peps.NorthAxis}, {4, peps.SouthAxis}})

	// The east boundary column of site (r, c+1).
	// r2 has axes (left, ketE, braE, leftS).
	r1 := tp.Product(ev.corner(peps.NorthEast, r, c+1), ev.edge(peps.East, r, c+1), [][2]int{{1, 0}})
	r2 := tp.Product(r1, ev.corner(peps.SouthEast, r, c+1), [][2]int{{1, 0}})
	// r4 has axes (ketE, braE, leftN, ketN, braN, leftS, ketS, braS).
	r3 := tp.Product(r2, ev.edge(peps.North, r, c+1), [][2]int{{0, 1}})
	r4 := tp.Product(r3, ev.edge(peps.South, r, c+1), [][2]int{{2, 1}})
	// r5 has axes (braE, leftN, braN, leftS, braS, phys2, west2).
	r5 := tp.Product(r4, a2, [][2]int{
		{0, peps.EastAxis}, {3, peps.NorthAxis}, {6, peps.SouthAxis}})
	// r6 has axes (leftN, leftS, ket2, west2, bra2, west2*).
	r6 := tp.Product(r5, a2, [][2]int{
		{0, peps.EastAxis}, {2, peps.NorthAxis}, {4, peps.SouthAxis}})

	// rho has axes (ket1, bra1, ket2, bra2).
	rho := tp.Product(l6, r6, [][2]int{{0, 0}, {1, 1}, {3, 3}, {5, 5}})
	return tp.Transpose(rho, 0, 2, 1, 3)
}

// trace1 returns the trace of a one site density matrix.
func trace1(tp *ad.Tape, rho *ad.Var) *ad.Var {
	id := tp.Const(tensor.Identity(rho.Value.Shape()[0]))
	return tp.Product(rho, id, [][2]int{{0, 0}, {1, 1}})
}

// trace2 returns the trace of a two site density matrix.
func trace2(tp *ad.Tape, rho *ad.Var) *ad.Var {
	id := tp.Const(tensor.Identity(rho.Value.Shape()[0]))
	m := tp.Product(rho, id, [][2]int{{0, 0}, {2, 1}})
	return tp.Product(m, id, [][2]int{{0, 0}, {1, 1}})
}

// energy returns the expectation value of h per site. Every term is a ratio
// of an operator insertion over the bare network norm, so the overall scale
// of the boundary tensors cancels. Vertical bonds are evaluated by rotating
// the lattice counterclockwise, which turns them into horizontal bonds with
// the upper site on the left.
func energy(tp *ad.Tape, ev *envVars, sv *stateVars, h peps.Hamiltonian) *ad.Var {
	rows, cols := sv.rows(), sv.cols()
	h1 := tp.Const(h.OneSite)
	h2 := tp.Const(h.TwoSite)

	e := tp.Const(tensor.Scalar(0))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			rho := oneSiteRho(tp, ev, sv, r, c)
			num := tp.Product(rho, h1, [][2]int{{0, 1}, {1, 0}})
			e = tp.Add(e, 1, tp.Div(num, trace1(tp, rho)))

			rho2 := twoSiteRho(tp, ev, sv, r, c)
			num2 := tp.Product(rho2, h2, [][2]int{{0, 2}, {1, 3}, {2, 0}, {3, 1}})
			e = tp.Add(e, 1, tp.Div(num2, trace2(tp, rho2)))
		}
	}

	rev, rsv := ev, sv
	for i := 0; i < 3; i++ {
		rev = rev.rotate90(tp)
		rsv = rsv.rotate90(tp)
	}
	for r := 0; r < rsv.rows(); r++ {
		for c := 0; c < rsv.cols(); c++ {
			rho2 := twoSiteRho(tp, rev, rsv, r, c)
			num2 := tp.Product(rho2, h2, [][2]int{{0, 2}, {1, 3}, {2, 0}, {3, 1}})
			e = tp.Add(e, 1, tp.Div(num2, trace2(tp, rho2)))
		}
	}
	return tp.Scale(e, 1/float64(rows*cols))
}

// OneSiteRho returns the reduced density matrix of site (r, c), with axes
// (ket, bra). It is not normalized, divide by its trace to take expectation
// values.
func OneSiteRho(env *Env, state *peps.InfinitePEPS, r, c int) *tensor.Dense {
	tp := ad.NewTape()
	return oneSiteRho(tp, liftEnv(tp, env, false), liftState(tp, state, false), r, c).Value
}

// TwoSiteRho returns the reduced density matrix of the horizontal pair
// (r, c) and (r, c+1), with axes (ket1, ket2, bra1, bra2). It is not
// normalized.
func TwoSiteRho(env *Env, state *peps.InfinitePEPS, r, c int) *tensor.Dense {
	tp := ad.NewTape()
	return twoSiteRho(tp, liftEnv(tp, env, false), liftState(tp, state, false), r, c).Value
}

// Expectation returns the expectation value of the one site operator op at
// site (r, c). op has axes (bra, ket), so for example the magnetization is
// the expectation of tensor.T2(peps.PauliZ).
func Expectation(env *Env, state *peps.InfinitePEPS, op *tensor.Dense, r, c int) float64 {
	tp := ad.NewTape()
	rho := oneSiteRho(tp, liftEnv(tp, env, false), liftState(tp, state, false), r, c)
	num := tp.Product(rho, tp.Const(op), [][2]int{{0, 1}, {1, 0}})
	return num.Value.At() / trace1(tp, rho).Value.At()
}

// Energy returns the expectation value of h per site in the given
// environment.
func Energy(env *Env, state *peps.InfinitePEPS, h peps.Hamiltonian) float64 {
	tp := ad.NewTape()
	return energy(tp, liftEnv(tp, env, false), liftState(tp, state, false), h).Value.At()
}

// NetworkNorm returns the contraction of the bare network around site (0, 0),
// the denominator of local expectation values.
func NetworkNorm(env *Env, state *peps.InfinitePEPS) float64 {
	tp := ad.NewTape()
	rho := oneSiteRho(tp, liftEnv(tp, env, false), liftState(tp, state, false), 0, 0)
	return trace1(tp, rho).Value.At()
}

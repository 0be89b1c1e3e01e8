package ctmrg

import (
	"slices"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

// leftMove absorbs every column of the unit cell into the west boundary,
// one column at a time. Absorbing column c renormalizes the west tensors of
// column c+1 with projectors built from the enlarged half-row quadrants.
// It returns the updated environment and the largest truncation error of the
// projector decompositions.
func leftMove(tp *ad.Tape, ev *envVars, sv *stateVars, trunc tensor.Truncation, fixedspace bool) (*envVars, float64) {
	rows, cols := ev.rows(), ev.cols()
	out := ev.clone()
	var maxErr float64
	for c := 0; c < cols; c++ {
		// Projectors at each cut r between rows r-1 and r.
		pt := make([]*ad.Var, rows)
		pb := make([]*ad.Var, rows)
		for r := 0; r < rows; r++ {
			hu := upperHalf(tp, out, sv, r-1, c)
			hl := lowerHalf(tp, out, sv, r, c)
			m := tp.Product(hu, hl, [][2]int{{1, 1}})

			tr := trunc
			if fixedspace {
				tr = tensor.Truncation{MaxDim: out.edge(peps.West, r, c+1).Value.Shape()[0]}
			}
			u, s, v, discarded := tp.SVD(m, tr)
			maxErr = max(maxErr, discarded)

			sinv := tp.Pow(s, -0.5)
			us := tp.Product(u, tp.Diag(sinv), [][2]int{{1, 0}})
			vs := tp.Product(v, tp.Diag(sinv), [][2]int{{1, 0}})
			ptr := tp.Product(hl, vs, [][2]int{{0, 0}})
			pbr := tp.Product(us, hu, [][2]int{{0, 0}})
			if fixedspace {
				ptr = tp.PadAxis(ptr, 1, tr.MaxDim)
				pbr = tp.PadAxis(pbr, 0, tr.MaxDim)
			}
			pt[r], pb[r] = ptr, pbr
		}

		// Renormalize the west tensors of column c+1.
		nw := make([]*ad.Var, rows)
		tw := make([]*ad.Var, rows)
		sw := make([]*ad.Var, rows)
		for r := 0; r < rows; r++ {
			nw[r] = newNorthWest(tp, out, sv, r, c, pt[r])
			tw[r] = newWest(tp, out, sv, r, c, pb[r], pt[(r+1)%rows])
			sw[r] = newSouthWest(tp, out, sv, r, c, pb[(r+1)%rows])
		}
		for r := 0; r < rows; r++ {
			out.setCorner(peps.NorthWest, r, c+1, nw[r])
			out.setEdge(peps.West, r, c+1, tw[r])
			out.setCorner(peps.SouthWest, r, c+1, sw[r])
		}
	}
	return out, maxErr
}

// upperHalf contracts the northwest quadrant of row r at column c into a
// matrix whose first axis groups the east legs (boundary, ket, bra) and whose
// second axis groups the legs crossing the cut below row r.
func upperHalf(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int) *ad.Var {
	cnw := ev.corner(peps.NorthWest, r, c)
	tn := ev.edge(peps.North, r, c)
	tw := ev.edge(peps.West, r, c)
	a := sv.site(r, c)

	// ct has axes (down, right, ket, bra).
	ct := tp.Product(cnw, tn, [][2]int{{1, 0}})
	// ctw has axes (down2, ket2, bra2, right, ket, bra).
	ctw := tp.Product(tw, ct, [][2]int{{0, 0}})
	// x1 has axes (down2, bra2, right, bra, phys, east, south).
	x1 := tp.Product(ctw, a, [][2]int{{4, peps.NorthAxis}, {1, peps.WestAxis}})
	// x2 has axes (down2, right, east, south, east*, south*).
	x2 := tp.Product(x1, a, [][2]int{{3, peps.NorthAxis}, {1, peps.WestAxis}, {4, peps.PhysAxis}})

	x2 = tp.Transpose(x2, 1, 2, 4, 0, 3, 5)
	shape := x2.Value.Shape()
	return tp.Reshape(x2, shape[0]*shape[1]*shape[2], -1)
}

// lowerHalf contracts the southwest quadrant of row r at column c into a
// matrix whose first axis groups the east legs and whose second axis groups
// the legs crossing the cut above row r.
func lowerHalf(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int) *ad.Var {
	csw := ev.corner(peps.SouthWest, r, c)
	ts := ev.edge(peps.South, r, c)
	tw := ev.edge(peps.West, r, c)
	a := sv.site(r, c)

	// cs has axes (up, right, ket, bra).
	cs := tp.Product(csw, ts, [][2]int{{1, 0}})
	// csw2 has axes (up2, ket2, bra2, right, ket, bra).
	csw2 := tp.Product(tw, cs, [][2]int{{1, 0}})
	// y1 has axes (up2, bra2, right, bra, phys, north, east).
	y1 := tp.Product(csw2, a, [][2]int{{4, peps.SouthAxis}, {1, peps.WestAxis}})
	// y2 has axes (up2, right, north, east, north*, east*).
	y2 := tp.Product(y1, a, [][2]int{{3, peps.SouthAxis}, {1, peps.WestAxis}, {4, peps.PhysAxis}})

	y2 = tp.Transpose(y2, 1, 3, 5, 0, 2, 4)
	shape := y2.Value.Shape()
	return tp.Reshape(y2, shape[0]*shape[1]*shape[2], -1)
}

// newNorthWest grows the northwest corner of row r with the north edge of
// column c and projects its down legs.
func newNorthWest(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int, pt *ad.Var) *ad.Var {
	ct := tp.Product(ev.corner(peps.NorthWest, r, c), ev.edge(peps.North, r, c), [][2]int{{1, 0}})
	// Group (down, ket, bra) in front of the east leg.
	ct = tp.Transpose(ct, 0, 2, 3, 1)
	shape := ct.Value.Shape()
	m := tp.Reshape(ct, shape[0]*shape[1]*shape[2], -1)
	return tp.Normalize(tp.Product(pt, m, [][2]int{{0, 0}}))
}

// newWest absorbs the site of row r at column c into the west edge and
// projects the up and down leg groups.
func newWest(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int, pb, pt *ad.Var) *ad.Var {
	tw := ev.edge(peps.West, r, c)
	a := sv.site(r, c)

	// g1 has axes (up, down, bra, phys, north, east, south).
	g1 := tp.Product(tw, a, [][2]int{{2, peps.WestAxis}})
	// g2 has axes (up, down, north, east, south, north*, east*, south*).
	g2 := tp.Product(g1, a, [][2]int{{2, peps.WestAxis}, {3, peps.PhysAxis}})
	// Group (up, north, north*) and (down, south, south*).
	g2 = tp.Transpose(g2, 0, 2, 5, 1, 4, 7, 3, 6)
	shape := g2.Value.Shape()
	up := shape[0] * shape[1] * shape[2]
	down := shape[3] * shape[4] * shape[5]
	gm := tp.Reshape(g2, up, down, shape[6], shape[7])

	t1 := tp.Product(pb, gm, [][2]int{{1, 0}})
	t2 := tp.Product(t1, pt, [][2]int{{1, 0}})
	return tp.Normalize(tp.Transpose(t2, 0, 3, 1, 2))
}

// newSouthWest grows the southwest corner of row r with the south edge of
// column c and projects its up legs.
func newSouthWest(tp *ad.Tape, ev *envVars, sv *stateVars, r, c int, pb *ad.Var) *ad.Var {
	cs := tp.Product(ev.corner(peps.SouthWest, r, c), ev.edge(peps.South, r, c), [][2]int{{1, 0}})
	// Group (up, ket, bra) in front of the east leg.
	cs = tp.Transpose(cs, 0, 2, 3, 1)
	shape := cs.Value.Shape()
	m := tp.Reshape(cs, shape[0]*shape[1]*shape[2], -1)
	return tp.Normalize(tp.Product(pb, m, [][2]int{{1, 0}}))
}

// iteration performs one full CTMRG iteration, absorbing all four directions
// by rotating the lattice a quarter turn after each left move. The returned
// environment is in the original orientation, with its tensors sign aligned
// to ev where shapes permit.
func iteration(tp *ad.Tape, ev *envVars, sv *stateVars, trunc tensor.Truncation, fixedspace bool) (*envVars, float64) {
	cur, scur := ev, sv
	var maxErr float64
	for i := 0; i < 4; i++ {
		var err float64
		cur, err = leftMove(tp, cur, scur, trunc, fixedspace)
		maxErr = max(maxErr, err)
		cur = cur.rotate90(tp)
		scur = scur.rotate90(tp)
	}
	return signAlign(tp, cur, ev), maxErr
}

// signAlign flips the sign of tensors whose overlap with the previous
// iterate is negative. Environment tensors are defined only up to scale, and
// a consistent sign makes fixed point iterations comparable elementwise.
func signAlign(tp *ad.Tape, cur, prev *envVars) *envVars {
	out := cur.clone()
	align := func(v, p *ad.Var) *ad.Var {
		if !slices.Equal(v.Value.Shape(), p.Value.Shape()) {
			return v
		}
		if tensor.Dot(v.Value, p.Value) < 0 {
			return tp.Scale(v, -1)
		}
		return v
	}
	for i := 0; i < 4; i++ {
		for r := range out.corners[i] {
			for c := range out.corners[i][r] {
				out.corners[i][r][c] = align(out.corners[i][r][c], prev.corners[i][r][c])
				out.edges[i][r][c] = align(out.edges[i][r][c], prev.edges[i][r][c])
			}
		}
	}
	return out
}

package ctmrg

import (
	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

// stateVars mirrors a peps.InfinitePEPS with variables on a tape.
type stateVars struct {
	sites [][]*ad.Var
}

func liftState(tp *ad.Tape, p *peps.InfinitePEPS, track bool) *stateVars {
	s := &stateVars{sites: make([][]*ad.Var, p.Rows())}
	for r := range s.sites {
		s.sites[r] = make([]*ad.Var, p.Cols())
		for c := range s.sites[r] {
			if track {
				s.sites[r][c] = tp.Input(p.Site(r, c))
			} else {
				s.sites[r][c] = tp.Const(p.Site(r, c))
			}
		}
	}
	return s
}

func (s *stateVars) rows() int { return len(s.sites) }
func (s *stateVars) cols() int { return len(s.sites[0]) }

func (s *stateVars) site(r, c int) *ad.Var {
	return s.sites[mod(r, s.rows())][mod(c, s.cols())]
}

// rotate90 rotates the state clockwise by a quarter turn on the tape,
// tracking peps.InfinitePEPS.Rotate90.
func (s *stateVars) rotate90(tp *ad.Tape) *stateVars {
	rows, cols := s.rows(), s.cols()
	t := &stateVars{sites: make([][]*ad.Var, cols)}
	for r := range t.sites {
		t.sites[r] = make([]*ad.Var, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t.sites[c][rows-1-r] = tp.Transpose(s.sites[r][c],
				peps.PhysAxis, peps.WestAxis, peps.NorthAxis, peps.EastAxis, peps.SouthAxis)
		}
	}
	return t
}

// vars returns the site variables in row-major order.
func (s *stateVars) vars() []*ad.Var {
	vs := make([]*ad.Var, 0, s.rows()*s.cols())
	for _, row := range s.sites {
		vs = append(vs, row...)
	}
	return vs
}

// envVars mirrors an Env with variables on a tape.
type envVars struct {
	corners [4][][]*ad.Var
	edges   [4][][]*ad.Var
}

func liftEnv(tp *ad.Tape, e *Env, track bool) *envVars {
	v := &envVars{}
	for i := 0; i < 4; i++ {
		v.corners[i] = liftGrid(tp, e.corners[i], track)
		v.edges[i] = liftGrid(tp, e.edges[i], track)
	}
	return v
}

func (e *envVars) rows() int { return len(e.corners[0]) }
func (e *envVars) cols() int { return len(e.corners[0][0]) }

func (e *envVars) corner(pos peps.CornerPos, r, c int) *ad.Var {
	return e.corners[pos][mod(r, e.rows())][mod(c, e.cols())]
}

func (e *envVars) edge(d peps.Direction, r, c int) *ad.Var {
	return e.edges[d][mod(r, e.rows())][mod(c, e.cols())]
}

func (e *envVars) setCorner(pos peps.CornerPos, r, c int, v *ad.Var) {
	e.corners[pos][mod(r, e.rows())][mod(c, e.cols())] = v
}

func (e *envVars) setEdge(d peps.Direction, r, c int, v *ad.Var) {
	e.edges[d][mod(r, e.rows())][mod(c, e.cols())] = v
}

// clone returns a copy of the variable grids. The variables themselves are
// shared.
func (e *envVars) clone() *envVars {
	f := &envVars{}
	for i := 0; i < 4; i++ {
		f.corners[i] = cloneVarGrid(e.corners[i])
		f.edges[i] = cloneVarGrid(e.edges[i])
	}
	return f
}

// rotate90 rotates the environment clockwise by a quarter turn on the tape,
// tracking Env.Rotate90.
func (e *envVars) rotate90(tp *ad.Tape) *envVars {
	rows, cols := e.rows(), e.cols()
	f := &envVars{}
	for i := 0; i < 4; i++ {
		f.corners[i] = varGrid(cols, rows)
		f.edges[i] = varGrid(cols, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			f.corners[peps.NorthWest][c][rows-1-r] = tp.Transpose(e.corners[peps.SouthWest][r][c], 1, 0)
			f.corners[peps.NorthEast][c][rows-1-r] = e.corners[peps.NorthWest][r][c]
			f.corners[peps.SouthEast][c][rows-1-r] = e.corners[peps.NorthEast][r][c]
			f.corners[peps.SouthWest][c][rows-1-r] = tp.Transpose(e.corners[peps.SouthEast][r][c], 1, 0)
			f.edges[peps.North][c][rows-1-r] = tp.Transpose(e.edges[peps.West][r][c], 1, 0, 2, 3)
			f.edges[peps.East][c][rows-1-r] = e.edges[peps.North][r][c]
			f.edges[peps.South][c][rows-1-r] = tp.Transpose(e.edges[peps.East][r][c], 1, 0, 2, 3)
			f.edges[peps.West][c][rows-1-r] = e.edges[peps.South][r][c]
		}
	}
	return f
}

// lower copies the current values into a plain Env.
func (e *envVars) lower() *Env {
	f := &Env{}
	for i := 0; i < 4; i++ {
		f.corners[i] = lowerGrid(e.corners[i])
		f.edges[i] = lowerGrid(e.edges[i])
	}
	return f
}

// vars returns all variables in the order of Env.Flatten.
func (e *envVars) vars() []*ad.Var {
	vs := make([]*ad.Var, 0)
	for i := 0; i < 4; i++ {
		for _, row := range e.corners[i] {
			vs = append(vs, row...)
		}
	}
	for i := 0; i < 4; i++ {
		for _, row := range e.edges[i] {
			vs = append(vs, row...)
		}
	}
	return vs
}

func liftGrid(tp *ad.Tape, g [][]*tensor.Dense, track bool) [][]*ad.Var {
	vs := make([][]*ad.Var, len(g))
	for r := range g {
		vs[r] = make([]*ad.Var, len(g[r]))
		for c := range g[r] {
			if track {
				vs[r][c] = tp.Input(g[r][c])
			} else {
				vs[r][c] = tp.Const(g[r][c])
			}
		}
	}
	return vs
}

func lowerGrid(g [][]*ad.Var) [][]*tensor.Dense {
	ts := make([][]*tensor.Dense, len(g))
	for r := range g {
		ts[r] = make([]*tensor.Dense, len(g[r]))
		for c := range g[r] {
			ts[r][c] = g[r][c].Value
		}
	}
	return ts
}

func varGrid(rows, cols int) [][]*ad.Var {
	g := make([][]*ad.Var, rows)
	for r := range g {
		g[r] = make([]*ad.Var, cols)
	}
	return g
}

func cloneVarGrid(g [][]*ad.Var) [][]*ad.Var {
	h := make([][]*ad.Var, len(g))
	for r := range g {
		h[r] = make([]*ad.Var, len(g[r]))
		copy(h[r], g[r])
	}
	return h
}

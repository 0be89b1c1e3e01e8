// Package ctmrg contracts infinite PEPS networks with the corner transfer
// matrix renormalization group.
//
// The boundary of the infinite network around every site of the unit cell is
// approximated by four corner matrices and four edge tensors. Corner layouts
// are C_NW[d, r], C_NE[l, d], C_SE[u, l] and C_SW[u, r], where the letters
// denote the compass direction the leg points to. Edge tensors are rank-4
// with two boundary legs followed by a ket and a bra leg facing the site:
// T_N[l, r, k, b], T_E[u, d, k, b], T_S[l, r, k, b] and T_W[u, d, k, b].
package ctmrg

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/peps"
	"github.com/fumin/peps/tensor"
)

// Env is the boundary environment of an infinite PEPS, one set of corner and
// edge tensors per site of the unit cell.
type Env struct {
	corners [4][][]*tensor.Dense
	edges   [4][][]*tensor.Dense
}

// NewEnv creates an environment from grids of corner and edge tensors,
// indexed by peps.CornerPos and peps.Direction respectively.
func NewEnv(corners, edges [4][][]*tensor.Dense) (*Env, error) {
	rows := len(corners[0])
	if rows == 0 {
		return nil, errors.Errorf("empty")
	}
	cols := len(corners[0][0])
	for i := 0; i < 4; i++ {
		for _, grid := range []([][]*tensor.Dense){corners[i], edges[i]} {
			if len(grid) != rows {
				return nil, errors.Errorf("%d %d %d", i, len(grid), rows)
			}
			for _, row := range grid {
				if len(row) != cols {
					return nil, errors.Errorf("%d %d %d", i, len(row), cols)
				}
			}
		}
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if got := corners[i][r][c].Rank(); got != 2 {
					return nil, errors.Errorf("%d %d %d %d", i, r, c, got)
				}
				if got := edges[i][r][c].Rank(); got != 4 {
					return nil, errors.Errorf("%d %d %d %d", i, r, c, got)
				}
			}
		}
	}
	return &Env{corners: corners, edges: edges}, nil
}

// RandEnv returns a random environment of boundary dimension chi for the
// given state, with every tensor normalized.
func RandEnv(rng *rand.Rand, state *peps.InfinitePEPS, chi int) *Env {
	rows, cols := state.Rows(), state.Cols()
	e := &Env{}
	for i := 0; i < 4; i++ {
		e.corners[i] = grid(rows, cols)
		e.edges[i] = grid(rows, cols)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			shape := state.Site(r, c).Shape()
			for i := 0; i < 4; i++ {
				e.corners[i][r][c] = normalized(tensor.Rand(rng, chi, chi))
			}
			e.edges[peps.North][r][c] = normalized(tensor.Rand(rng, chi, chi, shape[peps.NorthAxis], shape[peps.NorthAxis]))
			e.edges[peps.East][r][c] = normalized(tensor.Rand(rng, chi, chi, shape[peps.EastAxis], shape[peps.EastAxis]))
			e.edges[peps.South][r][c] = normalized(tensor.Rand(rng, chi, chi, shape[peps.SouthAxis], shape[peps.SouthAxis]))
			e.edges[peps.West][r][c] = normalized(tensor.Rand(rng, chi, chi, shape[peps.WestAxis], shape[peps.WestAxis]))
		}
	}
	return e
}

// Rows returns the number of rows of the unit cell.
func (e *Env) Rows() int { return len(e.corners[0]) }

// Cols returns the number of columns of the unit cell.
func (e *Env) Cols() int { return len(e.corners[0][0]) }

// Corner returns the corner tensor at row r and column c.
// Coordinates wrap around the unit cell toroidally.
func (e *Env) Corner(pos peps.CornerPos, r, c int) *tensor.Dense {
	return e.corners[pos][mod(r, e.Rows())][mod(c, e.Cols())]
}

// Edge returns the edge tensor at row r and column c.
// Coordinates wrap around the unit cell toroidally.
func (e *Env) Edge(d peps.Direction, r, c int) *tensor.Dense {
	return e.edges[d][mod(r, e.Rows())][mod(c, e.Cols())]
}

// SetCorner replaces the corner tensor at row r and column c.
func (e *Env) SetCorner(pos peps.CornerPos, r, c int, t *tensor.Dense) {
	e.corners[pos][mod(r, e.Rows())][mod(c, e.Cols())] = t
}

// SetEdge replaces the edge tensor at row r and column c.
func (e *Env) SetEdge(d peps.Direction, r, c int, t *tensor.Dense) {
	e.edges[d][mod(r, e.Rows())][mod(c, e.Cols())] = t
}

// Clone returns a deep copy of e.
func (e *Env) Clone() *Env {
	f := &Env{}
	for i := 0; i < 4; i++ {
		f.corners[i] = cloneGrid(e.corners[i])
		f.edges[i] = cloneGrid(e.edges[i])
	}
	return f
}

// Rotate90 returns the environment rotated clockwise by a quarter turn,
// tracking peps.InfinitePEPS.Rotate90. The old southwest corner becomes the
// new northwest corner, and the old west edge becomes the new north edge.
func (e *Env) Rotate90() *Env {
	rows, cols := e.Rows(), e.Cols()
	f := &Env{}
	for i := 0; i < 4; i++ {
		f.corners[i] = grid(cols, rows)
		f.edges[i] = grid(cols, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			f.corners[peps.NorthWest][c][rows-1-r] = e.corners[peps.SouthWest][r][c].Transpose(1, 0)
			f.corners[peps.NorthEast][c][rows-1-r] = e.corners[peps.NorthWest][r][c]
			f.corners[peps.SouthEast][c][rows-1-r] = e.corners[peps.NorthEast][r][c]
			f.corners[peps.SouthWest][c][rows-1-r] = e.corners[peps.SouthEast][r][c].Transpose(1, 0)
			f.edges[peps.North][c][rows-1-r] = e.edges[peps.West][r][c].Transpose(1, 0, 2, 3)
			f.edges[peps.East][c][rows-1-r] = e.edges[peps.North][r][c]
			f.edges[peps.South][c][rows-1-r] = e.edges[peps.East][r][c].Transpose(1, 0, 2, 3)
			f.edges[peps.West][c][rows-1-r] = e.edges[peps.South][r][c]
		}
	}
	return f
}

// Add adds c times g to e in place. g must have the same shapes as e.
func (e *Env) Add(c float64, g *Env) *Env {
	for i := 0; i < 4; i++ {
		addGrid(e.corners[i], c, g.corners[i])
		addGrid(e.edges[i], c, g.edges[i])
	}
	return e
}

// Scale multiplies every tensor of e by c in place.
func (e *Env) Scale(c float64) *Env {
	for i := 0; i < 4; i++ {
		scaleGrid(e.corners[i], c)
		scaleGrid(e.edges[i], c)
	}
	return e
}

// Zero sets every tensor of e to zero in place.
func (e *Env) Zero() {
	e.Scale(0)
}

// Norm returns the Frobenius norm of e viewed as one long vector.
func (e *Env) Norm() float64 {
	return math.Sqrt(Dot(e, e))
}

// HasNaN reports whether any tensor of e contains a not-a-number element.
func (e *Env) HasNaN() bool {
	for i := 0; i < 4; i++ {
		for _, grid := range []([][]*tensor.Dense){e.corners[i], e.edges[i]} {
			for _, row := range grid {
				for _, t := range row {
					if t.HasNaN() {
						return true
					}
				}
			}
		}
	}
	return false
}

// Dot returns the euclidean inner product of a and b viewed as vectors.
func Dot(a, b *Env) float64 {
	var s float64
	for i := 0; i < 4; i++ {
		for r := range a.corners[i] {
			for c := range a.corners[i][r] {
				s += tensor.Dot(a.corners[i][r][c], b.corners[i][r][c])
				s += tensor.Dot(a.edges[i][r][c], b.edges[i][r][c])
			}
		}
	}
	return s
}

// Size returns the total number of elements of e.
func (e *Env) Size() int {
	size := 0
	for i := 0; i < 4; i++ {
		for r := range e.corners[i] {
			for c := range e.corners[i][r] {
				size += e.corners[i][r][c].Size() + e.edges[i][r][c].Size()
			}
		}
	}
	return size
}

// Flatten copies all elements of e into one long vector, corners first,
// then edges.
func (e *Env) Flatten() []float64 {
	vec := make([]float64, 0, e.Size())
	for i := 0; i < 4; i++ {
		for _, row := range e.corners[i] {
			for _, t := range row {
				vec = append(vec, t.Data()...)
			}
		}
	}
	for i := 0; i < 4; i++ {
		for _, row := range e.edges[i] {
			for _, t := range row {
				vec = append(vec, t.Data()...)
			}
		}
	}
	return vec
}

// Unflatten returns a new environment with the shapes of e and the elements
// of vec, in the order produced by Flatten.
func (e *Env) Unflatten(vec []float64) *Env {
	f := e.Clone()
	off := 0
	for i := 0; i < 4; i++ {
		for _, row := range f.corners[i] {
			for _, t := range row {
				off += copy(t.Data(), vec[off:off+t.Size()])
			}
		}
	}
	for i := 0; i < 4; i++ {
		for _, row := range f.edges[i] {
			for _, t := range row {
				off += copy(t.Data(), vec[off:off+t.Size()])
			}
		}
	}
	return f
}

func grid(rows, cols int) [][]*tensor.Dense {
	g := make([][]*tensor.Dense, rows)
	for r := range g {
		g[r] = make([]*tensor.Dense, cols)
	}
	return g
}

func cloneGrid(g [][]*tensor.Dense) [][]*tensor.Dense {
	h := make([][]*tensor.Dense, len(g))
	for r := range g {
		h[r] = make([]*tensor.Dense, len(g[r]))
		for c := range g[r] {
			h[r][c] = g[r][c].Clone()
		}
	}
	return h
}

func addGrid(a [][]*tensor.Dense, c float64, b [][]*tensor.Dense) {
	for r := range a {
		for col := range a[r] {
			a[r][col].Axpy(c, b[r][col])
		}
	}
}

func scaleGrid(g [][]*tensor.Dense, c float64) {
	for r := range g {
		for col := range g[r] {
			g[r][col].Scale(c)
		}
	}
}

func normalized(t *tensor.Dense) *tensor.Dense {
	return t.Scale(1 / t.Norm())
}

func mod(i, n int) int { return ((i % n) + n) % n }

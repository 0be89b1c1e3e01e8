// Package peps implements infinite projected entangled pair states on the
// square lattice.
//
// A state is a rectangular unit cell of rank-5 site tensors repeated over the
// infinite plane. Site tensor axes are ordered physical, north, east, south,
// west. Bond dimensions must glue: the east dimension of a site matches the
// west dimension of its right neighbour, and the south dimension matches the
// north dimension of the site below, with toroidal wrapping of the cell.
package peps

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/peps/tensor"
)

// Axes of a site tensor.
const (
	PhysAxis  = 0
	NorthAxis = 1
	EastAxis  = 2
	SouthAxis = 3
	WestAxis  = 4
)

// InfinitePEPS is the unit cell of an infinite PEPS.
type InfinitePEPS struct {
	sites [][]*tensor.Dense
}

// New creates an InfinitePEPS from a rectangular grid of rank-5 site tensors.
func New(sites [][]*tensor.Dense) (*InfinitePEPS, error) {
	rows := len(sites)
	if rows == 0 {
		return nil, errors.Errorf("empty")
	}
	cols := len(sites[0])
	for r, row := range sites {
		if len(row) != cols {
			return nil, errors.Errorf("%d %d %d", r, len(row), cols)
		}
		for c, site := range row {
			if site.Rank() != 5 {
				return nil, errors.Errorf("%d %d %#v", r, c, site.Shape())
			}
		}
	}

	physD := sites[0][0].Shape()[PhysAxis]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			shape := sites[r][c].Shape()
			if shape[PhysAxis] != physD {
				return nil, errors.Errorf("%d %d %#v %d", r, c, shape, physD)
			}
			east := sites[r][(c+1)%cols].Shape()
			if shape[EastAxis] != east[WestAxis] {
				return nil, errors.Errorf("%d %d %#v %#v", r, c, shape, east)
			}
			south := sites[(r+1)%rows][c].Shape()
			if shape[SouthAxis] != south[NorthAxis] {
				return nil, errors.Errorf("%d %d %#v %#v", r, c, shape, south)
			}
		}
	}
	return &InfinitePEPS{sites: sites}, nil
}

// Rand returns a state with uniform bond dimension and entries uniformly
// distributed in [-1, 1).
func Rand(rng *rand.Rand, rows, cols, physD, bondD int) *InfinitePEPS {
	sites := make([][]*tensor.Dense, rows)
	for r := range sites {
		sites[r] = make([]*tensor.Dense, cols)
		for c := range sites[r] {
			sites[r][c] = tensor.Rand(rng, physD, bondD, bondD, bondD, bondD)
		}
	}
	p, err := New(sites)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return p
}

// Rows returns the number of rows of the unit cell.
func (p *InfinitePEPS) Rows() int { return len(p.sites) }

// Cols returns the number of columns of the unit cell.
func (p *InfinitePEPS) Cols() int { return len(p.sites[0]) }

// Site returns the site tensor at row r and column c.
// Coordinates wrap around the unit cell toroidally.
func (p *InfinitePEPS) Site(r, c int) *tensor.Dense {
	return p.sites[mod(r, p.Rows())][mod(c, p.Cols())]
}

// SetSite replaces the site tensor at row r and column c.
func (p *InfinitePEPS) SetSite(r, c int, site *tensor.Dense) {
	p.sites[mod(r, p.Rows())][mod(c, p.Cols())] = site
}

// Clone returns a deep copy of p.
func (p *InfinitePEPS) Clone() *InfinitePEPS {
	sites := make([][]*tensor.Dense, p.Rows())
	for r := range sites {
		sites[r] = make([]*tensor.Dense, p.Cols())
		for c := range sites[r] {
			sites[r][c] = p.sites[r][c].Clone()
		}
	}
	return &InfinitePEPS{sites: sites}
}

// Rotate90 returns the state rotated clockwise by a quarter turn.
// The cell transposes from rows by cols to cols by rows, and the virtual
// axes cycle so that the old west leg becomes the new north leg.
func (p *InfinitePEPS) Rotate90() *InfinitePEPS {
	rows, cols := p.Rows(), p.Cols()
	sites := make([][]*tensor.Dense, cols)
	for r := range sites {
		sites[r] = make([]*tensor.Dense, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sites[c][rows-1-r] = p.sites[r][c].Transpose(PhysAxis, WestAxis, NorthAxis, EastAxis, SouthAxis)
		}
	}
	return &InfinitePEPS{sites: sites}
}

// RotateNorth returns the state rotated so that the given direction faces
// north. Rotating North returns p itself.
func (p *InfinitePEPS) RotateNorth(d Direction) *InfinitePEPS {
	if d == North {
		return p
	}
	q := p
	for i := 0; i < (4-int(d))%4; i++ {
		q = q.Rotate90()
	}
	return q
}

// Add adds c times g to p in place. g must have the same cell and shapes.
func (p *InfinitePEPS) Add(c float64, g *InfinitePEPS) *InfinitePEPS {
	for r := range p.sites {
		for col := range p.sites[r] {
			p.sites[r][col].Axpy(c, g.sites[r][col])
		}
	}
	return p
}

// Scale multiplies every site tensor by c in place.
func (p *InfinitePEPS) Scale(c float64) *InfinitePEPS {
	for r := range p.sites {
		for col := range p.sites[r] {
			p.sites[r][col].Scale(c)
		}
	}
	return p
}

// Zero sets every site tensor to zero in place.
func (p *InfinitePEPS) Zero() {
	for r := range p.sites {
		for col := range p.sites[r] {
			p.sites[r][col].Zero()
		}
	}
}

// Norm returns the Frobenius norm of p viewed as one long vector.
func (p *InfinitePEPS) Norm() float64 {
	var s float64
	for r := range p.sites {
		for col := range p.sites[r] {
			n := p.sites[r][col].Norm()
			s += n * n
		}
	}
	return math.Sqrt(s)
}

// HasNaN reports whether any site tensor contains a not-a-number element.
func (p *InfinitePEPS) HasNaN() bool {
	for r := range p.sites {
		for col := range p.sites[r] {
			if p.sites[r][col].HasNaN() {
				return true
			}
		}
	}
	return false
}

// Dot returns the euclidean inner product of a and b viewed as vectors.
func Dot(a, b *InfinitePEPS) float64 {
	var s float64
	for r := range a.sites {
		for c := range a.sites[r] {
			s += tensor.Dot(a.sites[r][c], b.sites[r][c])
		}
	}
	return s
}

func mod(i, n int) int { return ((i % n) + n) % n }

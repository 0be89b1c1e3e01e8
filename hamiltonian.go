package peps

import (
	"github.com/fumin/peps/tensor"
)

// Pauli matrices.
var (
	PauliX = [][]float64{
		{0, 1},
		{1, 0},
	}
	PauliZ = [][]float64{
		{1, 0},
		{0, -1},
	}
)

// Hamiltonian is a translation invariant nearest neighbour hamiltonian.
// TwoSite acts identically on every horizontal and vertical bond, and
// OneSite acts on every site.
type Hamiltonian struct {
	// TwoSite has axes (bra1, bra2, ket1, ket2), so that
	// TwoSite[s1', s2', s1, s2] = <s1' s2'|h|s1 s2>.
	TwoSite *tensor.Dense
	// OneSite has axes (bra, ket).
	OneSite *tensor.Dense
}

// TransverseFieldIsing returns the hamiltonian
// H = -sum_<ij> Z_i Z_j - h sum_i X_i.
func TransverseFieldIsing(h float64) Hamiltonian {
	z := tensor.T2(PauliZ)
	zz := tensor.Product(tensor.Zeros(1), z, z, nil)
	// Reorder the outer product to (bra1, bra2, ket1, ket2).
	zz = zz.Transpose(0, 2, 1, 3).Scale(-1)

	x := tensor.T2(PauliX).Scale(-h)
	return Hamiltonian{TwoSite: zz, OneSite: x}
}

// ZeroHamiltonian returns the zero hamiltonian on sites with the given
// physical dimension. Its energy is exactly zero for every state.
func ZeroHamiltonian(physD int) Hamiltonian {
	return Hamiltonian{
		TwoSite: tensor.Zeros(physD, physD, physD, physD),
		OneSite: tensor.Zeros(physD, physD),
	}
}

// PhysDim returns the physical dimension the hamiltonian acts on.
func (h Hamiltonian) PhysDim() int { return h.OneSite.Shape()[0] }

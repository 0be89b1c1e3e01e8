package optimize

import (
	"fmt"
	"math/rand/v2"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ctmrg"
)

// The zero hamiltonian has zero energy and zero gradient for every state,
// so the search ends at the initial state after one evaluation.
func Example() {
	rng := rand.New(rand.NewPCG(1, 2))
	state := peps.Rand(rng, 1, 1, 2, 2)
	h := peps.ZeroHamiltonian(2)

	boundary := ctmrg.NewOptions().MaxDim(2).MaxIterations(20).MinIterations(1).Tol(1e-6)
	_, _, result, err := Fixedpoint(state, h, nil, NewOptions().Boundary(boundary))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Energy %.4f\n", result.Energy)

	// Output:
	// Energy 0.0000
}

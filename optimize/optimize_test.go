package optimize

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ctmrg"
)

func TestFixedpointZeroHamiltonian(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	state := peps.Rand(rng, 1, 1, 2, 2)
	h := peps.ZeroHamiltonian(2)

	boundary := ctmrg.NewOptions().MaxDim(2).MaxIterations(20).MinIterations(1).Tol(1e-6)
	final, env, result, err := Fixedpoint(state, h, nil, NewOptions().Boundary(boundary))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if result.Energy != 0 {
		t.Fatalf("%g", result.Energy)
	}
	if n := result.Gradient.Norm(); n != 0 {
		t.Fatalf("%g", n)
	}
	if env == nil {
		t.Fatalf("nil environment")
	}
	// With zero gradient the state is untouched.
	diff := final.Clone().Add(-1, state).Norm()
	if diff != 0 {
		t.Fatalf("%g", diff)
	}
	if len(result.Diagnostics.Energies) == 0 {
		t.Fatalf("no diagnostics")
	}
}

// TestFixedpointNaN checks that a NaN energy trips the fatal assertion
// instead of being fed to the optimizer.
func TestFixedpointNaN(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(9, 10))
	state := peps.Rand(rng, 1, 1, 2, 2)
	h := peps.ZeroHamiltonian(2)
	h.OneSite.Data()[0] = math.NaN()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	boundary := ctmrg.NewOptions().MaxDim(2).MaxIterations(20).MinIterations(1).Tol(1e-6)
	Fixedpoint(state, h, nil, NewOptions().Boundary(boundary))
}

func TestFlattenRoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	state := peps.Rand(rng, 2, 2, 2, 3)

	x := flattenState(state)
	got := unflattenState(state, x)
	diff := got.Clone().Add(-1, state).Norm()
	if diff != 0 {
		t.Fatalf("%g", diff)
	}
}

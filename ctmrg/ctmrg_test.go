package ctmrg

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/pkg/errors"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

func TestEnvRotate(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	state := peps.Rand(rng, 2, 3, 2, 2)
	env := RandEnv(rng, state, 3)

	r := env
	for i := 0; i < 4; i++ {
		r = r.Rotate90()
	}
	for i := 0; i < 4; i++ {
		for row := range env.corners[i] {
			for c := range env.corners[i][row] {
				if !tensor.EqualApprox(env.corners[i][row][c], r.corners[i][row][c], 0) {
					t.Fatalf("corner %d %d %d", i, row, c)
				}
				if !tensor.EqualApprox(env.edges[i][row][c], r.edges[i][row][c], 0) {
					t.Fatalf("edge %d %d %d", i, row, c)
				}
			}
		}
	}
}

// TestProductState contracts a ferromagnetic product state, whose local
// density matrices are exact for any boundary dimension.
func TestProductState(t *testing.T) {
	t.Parallel()
	up := tensor.Zeros(2, 1, 1, 1, 1)
	up.SetAt([]int{0, 0, 0, 0, 0}, 1)
	state, err := peps.New([][]*tensor.Dense{{up}})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	rng := rand.New(rand.NewPCG(3, 4))
	env := RandEnv(rng, state, 2)
	env, info, err := LeadingBoundary(env, state, NewOptions().MaxDim(2).Tol(1e-9))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if info.Iterations < 1 {
		t.Fatalf("%#v", info)
	}

	// The single site density matrix is |up><up| up to scale.
	rho := OneSiteRho(env, state, 0, 0)
	tr := rho.At(0, 0) + rho.At(1, 1)
	if math.Abs(rho.At(0, 0)/tr-1) > 1e-8 {
		t.Fatalf("%#v", rho)
	}

	// Two bonds per site with <ZZ> = 1, and <X> = 0.
	h := peps.TransverseFieldIsing(0.5)
	if e := Energy(env, state, h); math.Abs(e-(-2)) > 1e-8 {
		t.Fatalf("%f", e)
	}

	if m := Expectation(env, state, tensor.T2(peps.PauliZ), 0, 0); math.Abs(m-1) > 1e-8 {
		t.Fatalf("%f", m)
	}
}

// TestGaugeFixedIteration checks that one further gauge fixed iteration of a
// converged environment stays elementwise close to it.
func TestGaugeFixedIteration(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(11, 12))
	state := peps.Rand(rng, 1, 1, 2, 2)
	env, info, err := LeadingBoundary(RandEnv(rng, state, 2), state, NewOptions().MaxDim(2).Tol(1e-10).MaxIterations(500))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !info.Converged {
		t.Fatalf("%#v", info)
	}

	tp := ad.NewTape()
	next, _ := iteration(tp, liftEnv(tp, env, false), liftState(tp, state, false), tensor.Truncation{MaxDim: 2}, false)
	if diff := envDiff(next.lower(), env); diff > 1e-8 {
		t.Fatalf("%g", diff)
	}
}

// TestLeadingBoundaryNaN checks that a state containing a NaN never yields a
// silently accepted environment.
func TestLeadingBoundaryNaN(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(13, 14))
	state := peps.Rand(rng, 1, 1, 2, 2)
	state.Site(0, 0).Data()[0] = math.NaN()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("%v", r)
			}
		}()
		_, _, err = LeadingBoundary(nil, state, NewOptions().MaxDim(2).MaxIterations(3).MinIterations(1))
		return err
	}()
	if err == nil {
		t.Fatalf("expected failure")
	}
}

func TestFixedspaceShapes(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	state := peps.Rand(rng, 1, 1, 2, 2)
	env := RandEnv(rng, state, 3)

	opt := NewOptions().Fixedspace(true).MaxIterations(2).MinIterations(1)
	out, _, err := LeadingBoundary(env, state, opt)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := 0; i < 4; i++ {
		for r := range out.corners[i] {
			for c := range out.corners[i][r] {
				want := env.corners[i][r][c].Shape()
				if got := out.corners[i][r][c].Shape(); !slices.Equal(got, want) {
					t.Fatalf("%#v %#v", got, want)
				}
				wantE := env.edges[i][r][c].Shape()
				if got := out.edges[i][r][c].Shape(); !slices.Equal(got, wantE) {
					t.Fatalf("%#v %#v", got, wantE)
				}
			}
		}
	}
}

// TestIterationVJPLinear checks that the recorded iteration tape can be
// replayed, and that the vector-Jacobian product is linear in its seed.
func TestIterationVJPLinear(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	state := peps.Rand(rng, 1, 1, 2, 2)
	env := RandEnv(rng, state, 3)
	env, _, err := LeadingBoundary(env, state, NewOptions().MaxDim(3).MaxIterations(10).MinIterations(1).Tol(1e-6))
	if err != nil {
		t.Fatalf("%+v", err)
	}

	vjp := IterationVJP(state, env)
	g := randLike(rng, env)
	ge1, ga1 := vjp(g)
	ge2, ga2 := vjp(g.Clone().Scale(2))

	diff := ge2.Clone().Add(-2, ge1)
	if diff.Norm() > 1e-10*math.Max(ge1.Norm(), 1) {
		t.Fatalf("%f", diff.Norm())
	}
	diffA := ga2.Clone().Add(-2, ga1)
	if diffA.Norm() > 1e-10*math.Max(ga1.Norm(), 1) {
		t.Fatalf("%f", diffA.Norm())
	}
}

// TestEnergyVJP checks the energy partial derivatives against finite
// differences.
func TestEnergyVJP(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(9, 10))
	state := peps.Rand(rng, 1, 1, 2, 2)
	env := RandEnv(rng, state, 2)
	env, _, err := LeadingBoundary(env, state, NewOptions().MaxDim(2).MaxIterations(20).MinIterations(1).Tol(1e-9))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	h := peps.TransverseFieldIsing(1)

	e0, dEnv, dState := EnergyVJP(state, env, h)
	if got := Energy(env, state, h); math.Abs(got-e0) > 1e-12 {
		t.Fatalf("%f %f", got, e0)
	}

	const step = 1e-6
	site := state.Site(0, 0)
	for _, i := range []int{0, 7, 13, 22, 31} {
		orig := site.Data()[i]
		site.Data()[i] = orig + step
		ep := Energy(env, state, h)
		site.Data()[i] = orig - step
		em := Energy(env, state, h)
		site.Data()[i] = orig

		fd := (ep - em) / (2 * step)
		got := dState.Site(0, 0).Data()[i]
		if math.Abs(fd-got) > 1e-4*math.Max(math.Abs(got), 1) {
			t.Fatalf("%d: %f %f", i, fd, got)
		}
	}

	corner := env.corners[peps.NorthWest][0][0]
	for _, i := range []int{0, 3} {
		orig := corner.Data()[i]
		corner.Data()[i] = orig + step
		ep := Energy(env, state, h)
		corner.Data()[i] = orig - step
		em := Energy(env, state, h)
		corner.Data()[i] = orig

		fd := (ep - em) / (2 * step)
		got := dEnv.corners[peps.NorthWest][0][0].Data()[i]
		if math.Abs(fd-got) > 1e-4*math.Max(math.Abs(got), 1) {
			t.Fatalf("%d: %f %f", i, fd, got)
		}
	}
}

func randLike(rng *rand.Rand, env *Env) *Env {
	g := env.Clone()
	for i := 0; i < 4; i++ {
		for _, grids := range []([][]*tensor.Dense){g.corners[i], g.edges[i]} {
			for _, row := range grids {
				for _, tn := range row {
					for j := range tn.Data() {
						tn.Data()[j] = rng.Float64()*2 - 1
					}
				}
			}
		}
	}
	return g
}

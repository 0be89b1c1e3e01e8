package optimize

import (
	"fmt"
	"log"
	"math"
	"slices"

	"github.com/pkg/errors"
	gopt "gonum.org/v1/gonum/optimize"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ctmrg"
)

// Options are options for the variational ground state search.
type Options struct {
	boundary      ctmrg.Options
	gradMode      GradMode
	maxIterations int
	gradientTol   float64
	reuseEnv      bool
	verbosity     int
}

// NewOptions returns the default ground state search options.
func NewOptions() Options {
	opt := Options{}
	opt.boundary = ctmrg.NewOptions()
	opt.gradMode = NewGeomSum()
	opt.maxIterations = 100
	opt.gradientTol = 1e-4
	opt.reuseEnv = true
	return opt
}

// Boundary sets the CTMRG options of the inner fixed point searches.
func (opt Options) Boundary(b ctmrg.Options) Options {
	opt.boundary = b
	return opt
}

// GradMode sets how the fixed point derivative is computed.
func (opt Options) GradMode(m GradMode) Options {
	opt.gradMode = m
	return opt
}

// MaxIterations sets the maximum number of optimizer iterations.
func (opt Options) MaxIterations(i int) Options {
	opt.maxIterations = i
	return opt
}

// GradientTol sets the gradient norm below which the search stops.
func (opt Options) GradientTol(tol float64) Options {
	opt.gradientTol = tol
	return opt
}

// ReuseEnv sets whether each energy evaluation starts its boundary search
// from the previously converged environment instead of a random one.
func (opt Options) ReuseEnv(b bool) Options {
	opt.reuseEnv = b
	return opt
}

// Verbosity sets the logging verbosity.
func (opt Options) Verbosity(v int) Options {
	opt.verbosity = v
	return opt
}

// Diagnostics records the history of a ground state search, one entry per
// energy evaluation.
type Diagnostics struct {
	Energies           []float64
	GradientNorms      []float64
	BoundaryIterations []int
	TruncationErrors   []float64
}

// Result is the outcome of a ground state search.
type Result struct {
	// Energy is the energy per site of the final state.
	Energy float64
	// Gradient is the energy gradient at the final state.
	Gradient *peps.InfinitePEPS
	// Diagnostics is the evaluation history of the search.
	Diagnostics Diagnostics
}

// Fixedpoint minimizes the energy of h over states with the cell and bond
// dimensions of state, using quasi-Newton steps on the site tensors. Every
// energy evaluation contracts the network to its CTMRG fixed point, and the
// gradient accounts for the dependence of that fixed point on the state.
// A non-nil env seeds the first boundary search.
func Fixedpoint(state *peps.InfinitePEPS, h peps.Hamiltonian, env *ctmrg.Env, options ...Options) (*peps.InfinitePEPS, *ctmrg.Env, Result, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	o := &oracle{template: state.Clone(), h: h, opt: opt, env: env}
	problem := gopt.Problem{Func: o.objective, Grad: o.gradient}
	settings := &gopt.Settings{
		GradientThreshold: opt.gradientTol,
		MajorIterations:   opt.maxIterations,
	}

	res, err := gopt.Minimize(problem, flattenState(state), settings, &gopt.LBFGS{})
	if res == nil {
		return nil, nil, Result{}, errors.Wrap(err, "")
	}
	if err != nil {
		log.Printf("optimizer stopped: %v", err)
	}

	o.eval(res.X)
	final := unflattenState(o.template, res.X)
	result := Result{
		Energy:      o.lastE,
		Gradient:    unflattenState(o.template, o.lastGrad),
		Diagnostics: o.diag,
	}
	return final, o.env, result, nil
}

// oracle evaluates the energy and its gradient, caching the last evaluation
// since quasi-Newton methods query both at the same point.
type oracle struct {
	template *peps.InfinitePEPS
	h        peps.Hamiltonian
	opt      Options

	env      *ctmrg.Env
	lastX    []float64
	lastE    float64
	lastGrad []float64
	diag     Diagnostics
}

func (o *oracle) objective(x []float64) float64 {
	o.eval(x)
	return o.lastE
}

func (o *oracle) gradient(dst, x []float64) {
	o.eval(x)
	copy(dst, o.lastGrad)
}

func (o *oracle) eval(x []float64) {
	if slices.Equal(x, o.lastX) {
		return
	}
	st := unflattenState(o.template, x)

	var env0 *ctmrg.Env
	if o.opt.reuseEnv {
		env0 = o.env
	}
	env, info, err := ctmrg.LeadingBoundary(env0, st, o.opt.boundary)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}

	var e float64
	var grad *peps.InfinitePEPS
	switch o.opt.gradMode.(type) {
	case NaiveAD:
		var err error
		e, grad, _, err = ctmrg.EnergyGradNaive(st, env, o.h, o.opt.boundary)
		if err != nil {
			panic(fmt.Sprintf("%+v", err))
		}
	default:
		var dFdx *ctmrg.Env
		var dFdA *peps.InfinitePEPS
		e, dFdx, dFdA = ctmrg.EnergyVJP(st, env, o.h)
		vjp := ctmrg.IterationVJP(st, env, o.opt.boundary)
		implicit, _ := fixedPointGrad(dFdx, vjp, o.opt.gradMode)
		grad = dFdA.Add(1, implicit)
	}
	if math.IsNaN(e) || grad.HasNaN() {
		panic(fmt.Sprintf("NaN %f", e))
	}

	o.env = env
	o.lastX = slices.Clone(x)
	o.lastE = e
	o.lastGrad = flattenState(grad)
	o.diag.Energies = append(o.diag.Energies, e)
	o.diag.GradientNorms = append(o.diag.GradientNorms, grad.Norm())
	o.diag.BoundaryIterations = append(o.diag.BoundaryIterations, info.Iterations)
	o.diag.TruncationErrors = append(o.diag.TruncationErrors, info.MaxTruncErr)
	if o.opt.verbosity >= 1 {
		log.Printf("energy %.10f gradient %g boundary %d truncation %g",
			e, grad.Norm(), info.Iterations, info.MaxTruncErr)
	}
}

func flattenState(p *peps.InfinitePEPS) []float64 {
	x := make([]float64, 0)
	for r := 0; r < p.Rows(); r++ {
		for c := 0; c < p.Cols(); c++ {
			x = append(x, p.Site(r, c).Data()...)
		}
	}
	return x
}

func unflattenState(template *peps.InfinitePEPS, x []float64) *peps.InfinitePEPS {
	p := template.Clone()
	off := 0
	for r := 0; r < p.Rows(); r++ {
		for c := 0; c < p.Cols(); c++ {
			t := p.Site(r, c)
			off += copy(t.Data(), x[off:off+t.Size()])
		}
	}
	return p
}

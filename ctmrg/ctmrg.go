package ctmrg

import (
	"log"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/peps"
	"github.com/fumin/peps/ad"
	"github.com/fumin/peps/tensor"
)

// Options are options for the CTMRG fixed point search.
type Options struct {
	tol           float64
	maxIterations int
	minIterations int
	maxDim        int
	svdTol        float64
	fixedspace    bool
	verbosity     int
}

// NewOptions returns the default CTMRG options.
func NewOptions() Options {
	opt := Options{}
	opt.tol = 1e-8
	opt.maxIterations = 100
	opt.minIterations = 4
	return opt
}

// Tol sets the convergence tolerance on the boundary tensors.
func (opt Options) Tol(tol float64) Options {
	opt.tol = tol
	return opt
}

// MaxIterations sets the maximum number of iterations.
func (opt Options) MaxIterations(i int) Options {
	opt.maxIterations = i
	return opt
}

// MinIterations sets the number of iterations performed before convergence
// is tested.
func (opt Options) MinIterations(i int) Options {
	opt.minIterations = i
	return opt
}

// MaxDim sets the maximum boundary dimension chi.
func (opt Options) MaxDim(chi int) Options {
	opt.maxDim = chi
	return opt
}

// SVDTol sets the relative singular value cutoff of the projector
// decompositions.
func (opt Options) SVDTol(tol float64) Options {
	opt.svdTol = tol
	return opt
}

// Fixedspace freezes the boundary dimensions at their current values.
// Projectors are padded with zero columns when the decomposition yields
// fewer directions than the frozen dimension.
func (opt Options) Fixedspace(b bool) Options {
	opt.fixedspace = b
	return opt
}

// Verbosity sets the logging verbosity.
func (opt Options) Verbosity(v int) Options {
	opt.verbosity = v
	return opt
}

func (opt Options) truncation() tensor.Truncation {
	return tensor.Truncation{MaxDim: opt.maxDim, Tol: opt.svdTol}
}

// Info reports how a CTMRG fixed point search went.
type Info struct {
	// Iterations is the number of iterations performed.
	Iterations int
	// Converged reports whether the boundary tensors reached a fixed point.
	Converged bool
	// MaxTruncErr is the largest truncation error over all projector
	// decompositions.
	MaxTruncErr float64
}

// LeadingBoundary drives the environment to the fixed point of the CTMRG
// iteration for the given state. A nil environment starts from a random one.
// Failure to converge within the iteration limit is reported in Info but is
// not an error.
func LeadingBoundary(env *Env, state *peps.InfinitePEPS, options ...Options) (*Env, Info, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if env == nil {
		chi := opt.maxDim
		if chi == 0 {
			chi = 2
		}
		env = RandEnv(rand.New(rand.NewPCG(1, 1)), state, chi)
	}

	info := Info{}
	prevNorm := NetworkNorm(env, state)
	for i := 1; i <= opt.maxIterations; i++ {
		tp := ad.NewTape()
		sv := liftState(tp, state, false)
		ev := liftEnv(tp, env, false)
		nextV, truncErr := iteration(tp, ev, sv, opt.truncation(), opt.fixedspace)
		next := nextV.lower()

		info.Iterations = i
		info.MaxTruncErr = max(info.MaxTruncErr, truncErr)
		if next.HasNaN() {
			return nil, info, errors.Errorf("%d", i)
		}

		norm := NetworkNorm(next, state)
		diff := envDiff(next, env)
		normChange := math.Abs(norm-prevNorm) / math.Max(math.Abs(norm), 1)
		if opt.verbosity >= 1 {
			log.Printf("iteration %d diff %g norm change %g truncation %g", i, diff, normChange, truncErr)
		}

		env, prevNorm = next, norm
		if i >= opt.minIterations && diff < opt.tol && normChange < opt.tol {
			info.Converged = true
			break
		}
	}
	if !info.Converged {
		log.Printf("not converged after %d iterations", info.Iterations)
	}
	return env, info, nil
}

// envDiff returns the largest elementwise difference of the corner tensors
// of a and b, or infinity if their shapes differ.
func envDiff(a, b *Env) float64 {
	var diff float64
	for i := 0; i < 4; i++ {
		for r := range a.corners[i] {
			for c := range a.corners[i][r] {
				x, y := a.corners[i][r][c], b.corners[i][r][c]
				if !slices.Equal(x.Shape(), y.Shape()) {
					return math.Inf(1)
				}
				diff = max(diff, tensor.MaxDiff(x, y))
			}
		}
	}
	return diff
}

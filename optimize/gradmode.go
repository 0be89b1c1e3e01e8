// Package optimize performs gradient based energy minimization of infinite
// PEPS, with gradients of the CTMRG fixed point computed by the implicit
// function theorem.
package optimize

// GradMode selects how the derivative of the CTMRG fixed point is computed.
// The implemented modes are GeomSum, ManualIter, LinSolve and NaiveAD.
type GradMode interface {
	gradMode()
}

// GeomSum sums the geometric series of the iteration Jacobian,
// (I - J)^-1 = I + J + J^2 + ..., truncating when a term falls below
// tolerance.
type GeomSum struct {
	maxIterations int
	tol           float64
	verbosity     int
}

// NewGeomSum returns the default geometric series options.
func NewGeomSum() GeomSum {
	m := GeomSum{}
	m.maxIterations = 100
	m.tol = 1e-7
	return m
}

// MaxIterations sets the maximum number of series terms.
func (m GeomSum) MaxIterations(i int) GeomSum {
	m.maxIterations = i
	return m
}

// Tol sets the term norm below which the series is considered converged.
func (m GeomSum) Tol(tol float64) GeomSum {
	m.tol = tol
	return m
}

// Verbosity sets the logging verbosity.
func (m GeomSum) Verbosity(v int) GeomSum {
	m.verbosity = v
	return m
}

func (GeomSum) gradMode() {}

// ManualIter solves the fixed point equation of the environment cotangent,
// g = y0 + J'g, by plain iteration.
type ManualIter struct {
	maxIterations int
	tol           float64
	verbosity     int
}

// NewManualIter returns the default cotangent iteration options.
func NewManualIter() ManualIter {
	m := ManualIter{}
	m.maxIterations = 100
	m.tol = 1e-7
	return m
}

// MaxIterations sets the maximum number of iterations.
func (m ManualIter) MaxIterations(i int) ManualIter {
	m.maxIterations = i
	return m
}

// Tol sets the relative change below which the iteration is considered
// converged.
func (m ManualIter) Tol(tol float64) ManualIter {
	m.tol = tol
	return m
}

// Verbosity sets the logging verbosity.
func (m ManualIter) Verbosity(v int) ManualIter {
	m.verbosity = v
	return m
}

func (ManualIter) gradMode() {}

// LinSolve solves the cotangent equation (I - J')g = y0 with restarted
// GMRES.
type LinSolve struct {
	maxIterations int
	restart       int
	tol           float64
	verbosity     int
}

// NewLinSolve returns the default linear solver options.
func NewLinSolve() LinSolve {
	m := LinSolve{}
	m.maxIterations = 100
	m.restart = 30
	m.tol = 1e-7
	return m
}

// MaxIterations sets the maximum number of matrix vector products.
func (m LinSolve) MaxIterations(i int) LinSolve {
	m.maxIterations = i
	return m
}

// Restart sets the GMRES restart length.
func (m LinSolve) Restart(r int) LinSolve {
	m.restart = r
	return m
}

// Tol sets the relative residual tolerance.
func (m LinSolve) Tol(tol float64) LinSolve {
	m.tol = tol
	return m
}

// Verbosity sets the logging verbosity.
func (m LinSolve) Verbosity(v int) LinSolve {
	m.verbosity = v
	return m
}

func (LinSolve) gradMode() {}

// NaiveAD backpropagates through the whole CTMRG loop instead of using the
// implicit fixed point derivative. It is a reference mode whose cost grows
// with the number of boundary iterations.
type NaiveAD struct{}

// NewNaiveAD returns the naive backpropagation mode.
func NewNaiveAD() NaiveAD { return NaiveAD{} }

func (NaiveAD) gradMode() {}

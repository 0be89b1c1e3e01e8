package tensor

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// svdFloor is the relative magnitude below which singular values are always
// discarded. Projectors divide by the square root of singular values, so
// keeping numerically vanishing ones would inject Inf into the environment.
const svdFloor = 1e-14

// Truncation is a policy for discarding singular values in a decomposition.
// The zero value keeps every singular value above the numerical floor.
type Truncation struct {
	// MaxDim is the maximum number of singular values kept.
	// Zero means no limit.
	MaxDim int
	// Tol discards singular values smaller than Tol times the largest one.
	// Zero means only the numerical floor applies.
	Tol float64
}

// SVD computes the truncated singular value decomposition a ≈ u·diag(s)·vᵀ,
// where a is a rank-2 tensor, u has shape (rows, k), s has shape (k) and
// v has shape (cols, k). The sign of each singular vector pair is fixed so
// that the largest-magnitude component of every column of u is positive.
// The returned discarded weight is the square root of the relative
// discarded spectral weight.
func SVD(a *Dense, trunc Truncation) (u, s, v *Dense, discarded float64, err error) {
	if len(a.shape) != 2 {
		return nil, nil, nil, 0, errors.Errorf("%#v", a.shape)
	}
	rows, cols := a.shape[0], a.shape[1]

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(rows, cols, a.data), mat.SVDThin); !ok {
		return nil, nil, nil, 0, errors.Errorf("%d %d", rows, cols)
	}
	vals := svd.Values(nil)
	var um, vm mat.Dense
	svd.UTo(&um)
	svd.VTo(&vm)

	if vals[0] <= 0 {
		return nil, nil, nil, 0, errors.Errorf("%f", vals[0])
	}
	k := len(vals)
	for k > 1 && vals[k-1] <= svdFloor*vals[0] {
		k--
	}
	if trunc.Tol > 0 {
		for k > 1 && vals[k-1] < trunc.Tol*vals[0] {
			k--
		}
	}
	if trunc.MaxDim > 0 {
		k = min(k, trunc.MaxDim)
	}

	var kept, total float64
	for i, sv := range vals {
		total += sv * sv
		if i < k {
			kept += sv * sv
		}
	}
	discarded = math.Sqrt((total - kept) / total)

	u, s, v = Zeros(rows, k), Zeros(k), Zeros(cols, k)
	for j := 0; j < k; j++ {
		s.data[j] = vals[j]

		// Gauge-fix the sign of the singular vector pair.
		sign, biggest := 1.0, 0.0
		for i := 0; i < rows; i++ {
			if a := math.Abs(um.At(i, j)); a > biggest {
				biggest = a
				sign = math.Copysign(1, um.At(i, j))
			}
		}
		for i := 0; i < rows; i++ {
			u.data[i*k+j] = sign * um.At(i, j)
		}
		for i := 0; i < cols; i++ {
			v.data[i*k+j] = sign * vm.At(i, j)
		}
	}
	return u, s, v, discarded, nil
}

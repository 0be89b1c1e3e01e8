// Package ad implements reverse-mode differentiation over tensor operations.
//
// Operations are recorded on a Tape as they execute. A recorded tape can be
// replayed backwards any number of times with fresh seeds, so one recorded
// computation serves every vector-Jacobian product against it.
package ad

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/fumin/peps/tensor"
)

// Var is a tensor value on a tape. Values are immutable once created.
type Var struct {
	Value *tensor.Dense

	id      int
	tracked bool
}

// Tape records tensor operations for reverse-mode differentiation.
type Tape struct {
	nvars int
	steps []func(g *grads)
}

// NewTape returns an empty tape.
func NewTape() *Tape { return &Tape{} }

func (t *Tape) newVar(v *tensor.Dense, tracked bool) *Var {
	va := &Var{Value: v, id: t.nvars, tracked: tracked}
	t.nvars++
	return va
}

// Input declares x as a differentiable leaf.
func (t *Tape) Input(x *tensor.Dense) *Var { return t.newVar(x, true) }

// Const declares x as a constant. No gradient flows into it, and operations
// whose inputs are all constants record nothing.
func (t *Tape) Const(x *tensor.Dense) *Var { return t.newVar(x, false) }

type grads struct {
	m map[int]*tensor.Dense
}

func (g *grads) add(v *Var, d *tensor.Dense) {
	if v == nil || !v.tracked {
		return
	}
	if cur, ok := g.m[v.id]; ok {
		cur.Axpy(1, d)
		return
	}
	g.m[v.id] = d.Clone()
}

func (g *grads) get(v *Var) *tensor.Dense { return g.m[v.id] }

// Backward seeds the given output variables with the given cotangents,
// propagates them through the tape in reverse, and returns the cotangents of
// ins. Inputs that received no contribution get a zero tensor of their shape.
func (t *Tape) Backward(outs []*Var, seeds []*tensor.Dense, ins []*Var) []*tensor.Dense {
	if len(outs) != len(seeds) {
		panic(fmt.Sprintf("%d %d", len(outs), len(seeds)))
	}
	g := &grads{m: make(map[int]*tensor.Dense)}
	for i, o := range outs {
		if !slices.Equal(o.Value.Shape(), seeds[i].Shape()) {
			panic(fmt.Sprintf("%#v %#v", o.Value.Shape(), seeds[i].Shape()))
		}
		g.add(o, seeds[i])
	}
	for i := len(t.steps) - 1; i >= 0; i-- {
		t.steps[i](g)
	}

	res := make([]*tensor.Dense, len(ins))
	for i, in := range ins {
		if d, ok := g.m[in.id]; ok {
			res[i] = d
		} else {
			res[i] = tensor.Zeros(in.Value.Shape()...)
		}
	}
	return res
}

// Product contracts a and b over the given axis pairs, as tensor.Product.
func (t *Tape) Product(a, b *Var, axes [][2]int) *Var {
	out := t.newVar(tensor.Product(tensor.Zeros(1), a.Value, b.Value, axes), a.tracked || b.tracked)
	if !out.tracked {
		return out
	}

	ca := make([]int, 0, len(axes))
	cb := make([]int, 0, len(axes))
	for _, p := range axes {
		ca = append(ca, p[0])
		cb = append(cb, p[1])
	}
	rankA, rankB := a.Value.Rank(), b.Value.Rank()
	freeA := complement(rankA, ca)
	freeB := complement(rankB, cb)
	sortedCA := slices.Clone(ca)
	sortedCB := slices.Clone(cb)
	sort.Ints(sortedCA)
	sort.Ints(sortedCB)

	// Axis order restoring a's layout from [freeA..., sortedCB...].
	permA := make([]int, rankA)
	for k := 0; k < rankA; k++ {
		if i := slices.Index(freeA, k); i >= 0 {
			permA[k] = i
			continue
		}
		bk := cb[slices.Index(ca, k)]
		permA[k] = len(freeA) + slices.Index(sortedCB, bk)
	}
	// Axis order restoring b's layout from [sortedCA..., freeB...].
	permB := make([]int, rankB)
	for k := 0; k < rankB; k++ {
		if i := slices.Index(freeB, k); i >= 0 {
			permB[k] = len(sortedCA) + i
			continue
		}
		ak := ca[slices.Index(cb, k)]
		permB[k] = slices.Index(sortedCA, ak)
	}
	// Contractions of the seed with the untouched operand.
	pairsA := make([][2]int, len(freeB))
	for j, fb := range freeB {
		pairsA[j] = [2]int{len(freeA) + j, fb}
	}
	pairsB := make([][2]int, len(freeA))
	for j, fa := range freeA {
		pairsB[j] = [2]int{fa, j}
	}

	av, bv := a.Value, b.Value
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		if a.tracked {
			ga := tensor.Product(tensor.Zeros(1), seed, bv, pairsA)
			g.add(a, ga.Transpose(permA...))
		}
		if b.tracked {
			gb := tensor.Product(tensor.Zeros(1), av, seed, pairsB)
			g.add(b, gb.Transpose(permB...))
		}
	})
	return out
}

// Add returns a + c*b.
func (t *Tape) Add(a *Var, c float64, b *Var) *Var {
	out := t.newVar(a.Value.Clone().Axpy(c, b.Value), a.tracked || b.tracked)
	if !out.tracked {
		return out
	}
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		g.add(a, seed)
		if b.tracked {
			g.add(b, seed.Clone().Scale(c))
		}
	})
	return out
}

// Scale returns c*a.
func (t *Tape) Scale(a *Var, c float64) *Var {
	out := t.newVar(a.Value.Clone().Scale(c), a.tracked)
	if !out.tracked {
		return out
	}
	t.steps = append(t.steps, func(g *grads) {
		if seed := g.get(out); seed != nil {
			g.add(a, seed.Clone().Scale(c))
		}
	})
	return out
}

// Transpose permutes the axes of a, as tensor.Dense.Transpose.
func (t *Tape) Transpose(a *Var, perm ...int) *Var {
	out := t.newVar(a.Value.Transpose(perm...), a.tracked)
	if !out.tracked {
		return out
	}
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	t.steps = append(t.steps, func(g *grads) {
		if seed := g.get(out); seed != nil {
			g.add(a, seed.Transpose(inv...))
		}
	})
	return out
}

// Reshape changes the shape of a, as tensor.Dense.Reshape.
func (t *Tape) Reshape(a *Var, shape ...int) *Var {
	out := t.newVar(a.Value.Reshape(shape...), a.tracked)
	if !out.tracked {
		return out
	}
	aShape := a.Value.Shape()
	t.steps = append(t.steps, func(g *grads) {
		if seed := g.get(out); seed != nil {
			g.add(a, seed.Reshape(aShape...))
		}
	})
	return out
}

// Normalize returns a divided by its Frobenius norm.
func (t *Tape) Normalize(a *Var) *Var {
	n := a.Value.Norm()
	out := t.newVar(a.Value.Clone().Scale(1/n), a.tracked)
	if !out.tracked {
		return out
	}
	av := a.Value
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		d := seed.Clone().Scale(1 / n)
		d.Axpy(-tensor.Dot(av, seed)/(n*n*n), av)
		g.add(a, d)
	})
	return out
}

// Div returns the elementwise quotient a/b. a and b must have the same shape.
func (t *Tape) Div(a, b *Var) *Var {
	if !slices.Equal(a.Value.Shape(), b.Value.Shape()) {
		panic(fmt.Sprintf("%#v %#v", a.Value.Shape(), b.Value.Shape()))
	}
	v := a.Value.Clone()
	for i, bv := range b.Value.Data() {
		v.Data()[i] /= bv
	}
	out := t.newVar(v, a.tracked || b.tracked)
	if !out.tracked {
		return out
	}
	av, bv := a.Value, b.Value
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		if a.tracked {
			d := seed.Clone()
			for i, x := range bv.Data() {
				d.Data()[i] /= x
			}
			g.add(a, d)
		}
		if b.tracked {
			d := seed.Clone()
			for i, x := range bv.Data() {
				d.Data()[i] *= -av.Data()[i] / (x * x)
			}
			g.add(b, d)
		}
	})
	return out
}

// Pow returns the elementwise power a^p.
func (t *Tape) Pow(a *Var, p float64) *Var {
	v := a.Value.Clone()
	for i, x := range v.Data() {
		v.Data()[i] = math.Pow(x, p)
	}
	out := t.newVar(v, a.tracked)
	if !out.tracked {
		return out
	}
	av := a.Value
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		d := seed.Clone()
		for i, x := range av.Data() {
			d.Data()[i] *= p * math.Pow(x, p-1)
		}
		g.add(a, d)
	})
	return out
}

// Diag embeds a rank-1 tensor as the diagonal of a square matrix.
func (t *Tape) Diag(a *Var) *Var {
	n := a.Value.Shape()[0]
	v := tensor.Zeros(n, n)
	for i := 0; i < n; i++ {
		v.SetAt([]int{i, i}, a.Value.At(i))
	}
	out := t.newVar(v, a.tracked)
	if !out.tracked {
		return out
	}
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		d := tensor.Zeros(n)
		for i := 0; i < n; i++ {
			d.SetAt([]int{i}, seed.At(i, i))
		}
		g.add(a, d)
	})
	return out
}

// PadAxis zero-pads one axis of a at its end up to dim.
func (t *Tape) PadAxis(a *Var, axis, dim int) *Var {
	aShape := a.Value.Shape()
	if dim < aShape[axis] {
		panic(fmt.Sprintf("%d %#v", dim, aShape))
	}
	if dim == aShape[axis] {
		return a
	}
	shape := slices.Clone(aShape)
	shape[axis] = dim
	v := tensor.Zeros(shape...)
	for ix, x := range a.Value.All() {
		v.SetAt(ix, x)
	}
	out := t.newVar(v, a.tracked)
	if !out.tracked {
		return out
	}
	t.steps = append(t.steps, func(g *grads) {
		seed := g.get(out)
		if seed == nil {
			return
		}
		d := tensor.Zeros(aShape...)
		for ix := range d.All() {
			d.SetAt(ix, seed.At(ix...))
		}
		g.add(a, d)
	})
	return out
}

func complement(n int, axes []int) []int {
	free := make([]int, 0, n-len(axes))
	for i := 0; i < n; i++ {
		if !slices.Contains(axes, i) {
			free = append(free, i)
		}
	}
	return free
}

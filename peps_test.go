package peps

import (
	"math/rand/v2"
	"testing"

	"github.com/fumin/peps/tensor"
)

func TestRotate90(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	p := Rand(rng, 2, 3, 2, 3)

	q := p.Rotate90()
	if q.Rows() != 3 || q.Cols() != 2 {
		t.Fatalf("%d %d", q.Rows(), q.Cols())
	}
	// The old west leg faces north after a clockwise quarter turn.
	a, b := p.Site(0, 0), q.Site(0, 1)
	if a.Shape()[WestAxis] != b.Shape()[NorthAxis] {
		t.Fatalf("%#v %#v", a.Shape(), b.Shape())
	}

	// Four quarter turns are the identity.
	r := p
	for i := 0; i < 4; i++ {
		r = r.Rotate90()
	}
	for y := 0; y < p.Rows(); y++ {
		for x := 0; x < p.Cols(); x++ {
			if !tensor.EqualApprox(p.Site(y, x), r.Site(y, x), 0) {
				t.Fatalf("%d %d", y, x)
			}
		}
	}
}

func TestRotateNorth(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 4))
	p := Rand(rng, 2, 2, 2, 2)

	if q := p.RotateNorth(North); q != p {
		t.Fatalf("expected identity")
	}
	// Rotating east north and then rotating once more clockwise restores p.
	q := p.RotateNorth(East).Rotate90()
	for y := 0; y < p.Rows(); y++ {
		for x := 0; x < p.Cols(); x++ {
			if !tensor.EqualApprox(p.Site(y, x), q.Site(y, x), 0) {
				t.Fatalf("%d %d", y, x)
			}
		}
	}
}

func TestNewGluing(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))

	// A mismatched east-west bond is rejected.
	sites := [][]*tensor.Dense{{
		tensor.Rand(rng, 2, 3, 4, 3, 3),
		tensor.Rand(rng, 2, 3, 3, 3, 3),
	}}
	if _, err := New(sites); err == nil {
		t.Fatalf("expected error")
	}

	// A single site must glue to itself.
	if _, err := New([][]*tensor.Dense{{tensor.Rand(rng, 2, 3, 4, 3, 4)}}); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := New([][]*tensor.Dense{{tensor.Rand(rng, 2, 3, 4, 3, 3)}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVectorOps(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	p := Rand(rng, 1, 2, 2, 2)
	g := Rand(rng, 1, 2, 2, 2)

	want := p.Site(0, 0).Clone().Axpy(0.5, g.Site(0, 0))
	p2 := p.Clone().Add(0.5, g)
	if !tensor.EqualApprox(p2.Site(0, 0), want, 1e-12) {
		t.Fatalf("%f", tensor.MaxDiff(p2.Site(0, 0), want))
	}
	// Clone does not alias.
	if !tensor.EqualApprox(p.Clone().Site(0, 0), p.Site(0, 0), 0) {
		t.Fatalf("clone differs")
	}

	if d := Dot(p, p); d <= 0 {
		t.Fatalf("%f", d)
	}
	n := p.Norm()
	p.Scale(2)
	if got := p.Norm(); got < 2*n-1e-12 || got > 2*n+1e-12 {
		t.Fatalf("%f %f", got, 2*n)
	}
}

func TestSiteToroidal(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(9, 10))
	p := Rand(rng, 2, 3, 2, 2)

	if p.Site(-1, 0) != p.Site(1, 0) {
		t.Fatalf("row wrap")
	}
	if p.Site(0, 5) != p.Site(0, 2) {
		t.Fatalf("col wrap")
	}
}

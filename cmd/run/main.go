// Command run sweeps the transverse field Ising model over a range of fields,
// optimizing an infinite PEPS ground state for each and recording the results
// in a sqlite store.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fumin/peps"
	"github.com/fumin/peps/checkpoint"
	"github.com/fumin/peps/ctmrg"
	"github.com/fumin/peps/optimize"
	"github.com/fumin/peps/tensor"
)

var (
	runDir  = flag.String("d", filepath.Join("runs", "tfi"), "run directory")
	bondDim = flag.Int("bond", 2, "PEPS bond dimension")
	chi     = flag.Int("chi", 8, "boundary dimension")
	seed    = flag.Uint64("seed", 1, "random seed")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	store, err := checkpoint.Open(filepath.Join(*runDir, "runs.db"))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer store.Close()

	// Transverse fields around the critical point of the square lattice.
	fields := []float64{2.5, 2.8, 3, 3.04, 3.1, 3.3, 3.5}
	for _, hf := range fields {
		if err := solve(store, hf); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%f", hf))
		}
		log.Printf("field %f done", hf)
	}

	// Gather results and print them.
	runs, err := store.Runs()
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Printf("name,h,energy\n")
	for _, r := range runs {
		fmt.Printf("%s,%f,%f\n", r.Name, r.Field, r.Energy)
	}
	return nil
}

func solve(store *checkpoint.Store, hf float64) error {
	name := fmt.Sprintf("tfi_%f", hf)
	runs, err := store.Runs()
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, r := range runs {
		if r.Name == name {
			return nil
		}
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	state := peps.Rand(rng, 1, 1, 2, *bondDim)
	h := peps.TransverseFieldIsing(hf)

	boundary := ctmrg.NewOptions().MaxDim(*chi).Tol(1e-8)
	opt := optimize.NewOptions().Boundary(boundary).GradMode(optimize.NewGeomSum()).Verbosity(1)
	final, env, result, err := optimize.Fixedpoint(state, h, nil, opt)
	if err != nil {
		return errors.Wrap(err, "")
	}
	mz := ctmrg.Expectation(env, final, tensor.T2(peps.PauliZ), 0, 0)
	log.Printf("field %f energy %f magnetization %f", hf, result.Energy, mz)

	id, err := store.SaveRun(name, hf, result.Energy, final)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := store.SaveMetrics(id, result.Diagnostics.Energies, result.Diagnostics.GradientNorms); err != nil {
		return errors.Wrap(err, "")
	}
	if err := plotConvergence(filepath.Join(*runDir, name+".png"), result.Diagnostics); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func plotConvergence(fpath string, diag optimize.Diagnostics) error {
	p := plot.New()
	p.Title.Text = "energy per evaluation"
	p.X.Label.Text = "evaluation"
	p.Y.Label.Text = "energy"

	pts := make(plotter.XYs, len(diag.Energies))
	for i, e := range diag.Energies {
		pts[i].X, pts[i].Y = float64(i), e
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "")
	}
	p.Add(line)

	if err := p.Save(16*vg.Centimeter, 12*vg.Centimeter, fpath); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

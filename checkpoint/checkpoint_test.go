package checkpoint

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/fumin/peps"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer store.Close()

	rng := rand.New(rand.NewPCG(1, 2))
	state := peps.Rand(rng, 2, 1, 2, 3)

	id, err := store.SaveRun("tfi", 3.1, -1.25, state)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := store.SaveMetrics(id, []float64{-1, -1.2, -1.25}, []float64{1, 0.1, 0.01}); err != nil {
		t.Fatalf("%+v", err)
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Name != "tfi" || runs[0].Field != 3.1 {
		t.Fatalf("%#v", runs)
	}

	got, err := store.LoadState(id)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := got.Clone().Add(-1, state).Norm(); diff != 0 {
		t.Fatalf("%g", diff)
	}

	energies, gradNorms, err := store.Metrics(id)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(energies) != 3 || energies[2] != -1.25 || gradNorms[2] != 0.01 {
		t.Fatalf("%#v %#v", energies, gradNorms)
	}
}

func TestStoreReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rng := rand.New(rand.NewPCG(3, 4))
	state := peps.Rand(rng, 1, 1, 2, 2)
	id, err := store.SaveRun("a", 1, -0.5, state)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("%+v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer store.Close()
	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Fatalf("%#v", runs)
	}
}

// Package checkpoint persists ground state searches in a sqlite database,
// so that sweeps over hamiltonian parameters can be resumed and analyzed
// later.
package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/peps"
	"github.com/fumin/peps/tensor"
)

const (
	tableRuns    = "runs"
	tableMetrics = "metrics"
	tableSites   = "sites"
)

// Store is a sqlite backed store of optimization runs.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens the store at dbPath, creating it if necessary.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is a recorded ground state search.
type Run struct {
	ID      int64
	Name    string
	Field   float64
	Energy  float64
	Created time.Time
}

// SaveRun records a finished search and its final state, and returns the
// run ID.
func (s *Store) SaveRun(name string, field, energy float64, state *peps.InfinitePEPS) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sqlStr := fmt.Sprintf(`INSERT INTO %s (name, field, energy, created) VALUES (?, ?, ?, ?)`, tableRuns)
	res, err := s.db.ExecContext(ctx, sqlStr, name, field, energy, time.Now().Unix())
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, errors.Wrap(err, "")
	}

	for r := 0; r < state.Rows(); r++ {
		for c := 0; c < state.Cols(); c++ {
			site := state.Site(r, c)
			sqlStr := fmt.Sprintf(`INSERT INTO %s (run, row, col, shape, data) VALUES (?, ?, ?, ?, ?)`, tableSites)
			args := []any{id, r, c, formatShape(site.Shape()), encode(site.Data())}
			if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
				return -1, errors.Wrap(err, fmt.Sprintf("%d %d %d", id, r, c))
			}
		}
	}
	return id, nil
}

// SaveMetrics records the per evaluation history of a run.
func (s *Store) SaveMetrics(run int64, energies, gradNorms []float64) error {
	if len(energies) != len(gradNorms) {
		return errors.Errorf("%d %d", len(energies), len(gradNorms))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for i, e := range energies {
		sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, step, energy, gradnorm) VALUES (?, ?, ?, ?)`, tableMetrics)
		if _, err := s.db.ExecContext(ctx, sqlStr, run, i, e, gradNorms[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d %d", run, i))
		}
	}
	return nil
}

// Runs lists all recorded runs ordered by creation time.
func (s *Store) Runs() ([]Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT id, name, field, energy, created FROM %s ORDER BY created, id`, tableRuns)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		var created int64
		if err := rows.Scan(&run.ID, &run.Name, &run.Field, &run.Energy, &created); err != nil {
			return nil, errors.Wrap(err, "")
		}
		run.Created = time.Unix(created, 0)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return runs, nil
}

// Metrics returns the per evaluation history of a run.
func (s *Store) Metrics(run int64) (energies, gradNorms []float64, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT energy, gradnorm FROM %s WHERE run=? ORDER BY step`, tableMetrics)
	rows, err := s.db.QueryContext(ctx, sqlStr, run)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	for rows.Next() {
		var e, g float64
		if err := rows.Scan(&e, &g); err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		energies = append(energies, e)
		gradNorms = append(gradNorms, g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return energies, gradNorms, nil
}

// LoadState returns the final state of a run.
func (s *Store) LoadState(run int64) (*peps.InfinitePEPS, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT row, col, shape, data FROM %s WHERE run=? ORDER BY row, col`, tableSites)
	rows, err := s.db.QueryContext(ctx, sqlStr, run)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	type cell struct {
		r, c int
		t    *tensor.Dense
	}
	cells := make([]cell, 0)
	maxR, maxC := -1, -1
	for rows.Next() {
		var r, c int
		var shapeStr string
		var blob []byte
		if err := rows.Scan(&r, &c, &shapeStr, &blob); err != nil {
			return nil, errors.Wrap(err, "")
		}
		shape, err := parseShape(shapeStr)
		if err != nil {
			return nil, errors.Wrap(err, shapeStr)
		}
		t := tensor.Zeros(shape...)
		if err := decode(blob, t.Data()); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %d", r, c))
		}
		cells = append(cells, cell{r: r, c: c, t: t})
		maxR, maxC = max(maxR, r), max(maxC, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(cells) != (maxR+1)*(maxC+1) {
		return nil, errors.Errorf("%d %d %d", len(cells), maxR, maxC)
	}

	sites := make([][]*tensor.Dense, maxR+1)
	for r := range sites {
		sites[r] = make([]*tensor.Dense, maxC+1)
	}
	for _, cl := range cells {
		sites[cl.r][cl.c] = cl.t
	}
	state, err := peps.New(sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return state, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT, field REAL, energy REAL, created INTEGER) STRICT`, tableRuns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run INTEGER, step INTEGER, energy REAL, gradnorm REAL,
			PRIMARY KEY (run, step)) STRICT`, tableMetrics),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run INTEGER, row INTEGER, col INTEGER, shape TEXT, data BLOB,
			PRIMARY KEY (run, row, col)) STRICT`, tableSites),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func formatShape(shape []int) string {
	strs := make([]string, len(shape))
	for i, d := range shape {
		strs[i] = strconv.Itoa(d)
	}
	return strings.Join(strs, ",")
}

func parseShape(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		shape[i] = d
	}
	return shape, nil
}

func encode(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decode(buf []byte, data []float64) error {
	if len(buf) != 8*len(data) {
		return errors.Errorf("%d %d", len(buf), len(data))
	}
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}

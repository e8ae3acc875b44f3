// Package export writes an assembled pivot table to a database in long form,
// one row per (row key, column key) cell.
package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clipivot/internal/config"
	"clipivot/internal/ddl"
	"clipivot/internal/pivot"
	"clipivot/internal/storage"
)

// Table is the long-form layout. value is NULL for empty cells.
func Table(name string) ddl.TableDef {
	return ddl.TableDef{FQN: name, Columns: []ddl.ColumnDef{
		{Name: "run_id", Type: ddl.TypeUUID},
		{Name: "row_key", Type: ddl.TypeText},
		{Name: "col_key", Type: ddl.TypeText},
		{Name: "value", Type: ddl.TypeText, Nullable: true},
	}}
}

// Result summarises one export.
type Result struct {
	Rows    int64
	Batches int64
}

// Write opens cfg's database, creates the table when missing and loads every
// cell of m tagged with runID.
func Write(ctx context.Context, cfg config.Export, runID uuid.UUID, m *pivot.Matrix) (Result, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Kind, DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}
	defer repo.Close()
	return load(ctx, cfg, repo, runID, m)
}

func load(ctx context.Context, cfg config.Export, repo storage.Repository, runID uuid.UUID, m *pivot.Matrix) (Result, error) {
	def := Table(cfg.Table)
	if err := storage.EnsureTable(ctx, cfg.Kind, repo, def); err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}

	var res Result
	copyFn := func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		n, err := repo.CopyFrom(ctx, columns, rows)
		if err == nil {
			res.Batches++
		}
		return n, err
	}

	g, gctx := errgroup.WithContext(ctx)
	in := make(chan []any, cfg.BatchSize)
	g.Go(func() error {
		defer close(in)
		return Cells(gctx, runID, m, in)
	})
	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, def.ColumnNames(), in, cfg.BatchSize, copyFn)
		res.Rows = n
		return err
	})
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("export: %w", err)
	}
	return res, nil
}

// Cells sends one []any{runID, rowKey, colKey, value} per cell of m, in
// matrix order. It does not close out.
func Cells(ctx context.Context, runID uuid.UUID, m *pivot.Matrix, out chan<- []any) error {
	cols := m.ColumnKeys()
	for _, row := range m.Rows {
		for j, col := range cols {
			var v any
			if s := row[j+1]; s != "" {
				v = s
			}
			select {
			case out <- []any{runID, row[0], col, v}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

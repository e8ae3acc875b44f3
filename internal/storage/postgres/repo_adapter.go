package postgres

import (
	"context"
	"strings"

	"clipivot/internal/ddl"
	"clipivot/internal/storage"
)

// newRepository is a test hook pointing at NewRepository.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

type dialect struct{}

// Dialect renders Postgres DDL.
var Dialect ddl.Dialect = dialect{}

func (dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (dialect) MapType(logical string) string {
	switch logical {
	case ddl.TypeBigInt:
		return "BIGINT"
	case ddl.TypeTimestamp:
		return "TIMESTAMPTZ"
	case ddl.TypeUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

func (dialect) CreateIfMissing(_, body string) string {
	return strings.Replace(body, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("postgres", Dialect)
}

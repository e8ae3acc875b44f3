package sqlite

import (
	"context"
	"strings"

	"clipivot/internal/ddl"
	"clipivot/internal/storage"
)

// newRepository is a test hook pointing at NewRepository.
var newRepository = NewRepository

// wrappedRepo adds the storage.Repository Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

type dialect struct{}

// Dialect renders SQLite DDL.
var Dialect ddl.Dialect = dialect{}

func (dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// MapType stores timestamps and uuids as TEXT (ISO-8601 / canonical form).
func (dialect) MapType(logical string) string {
	switch logical {
	case ddl.TypeBigInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (dialect) CreateIfMissing(_, body string) string {
	return strings.Replace(body, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("sqlite", Dialect)
}

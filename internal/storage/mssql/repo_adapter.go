package mssql

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

// Dialect renders T-SQL DDL. T-SQL has no CREATE TABLE IF NOT EXISTS, so the
// statement is guarded with OBJECT_ID.
var Dialect ddl.Dialect = dialect{}

func (dialect) QuoteIdent(id string) string {
	return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]`
}

// MapType keeps uuids as NVARCHAR(36); key columns cannot be NVARCHAR(MAX).
func (dialect) MapType(logical string) string {
	switch logical {
	case ddl.TypeBigInt:
		return "BIGINT"
	case ddl.TypeTimestamp:
		return "DATETIME2"
	case ddl.TypeUUID:
		return "NVARCHAR(36)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (dialect) CreateIfMissing(quoted, body string) string {
	lit := strings.ReplaceAll(quoted, "'", "''")
	return "IF OBJECT_ID(N'" + lit + "', N'U') IS NULL\nBEGIN\n" + body + ";\nEND"
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("mssql", Dialect)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mqtt-timescale/internal/telemetry/domain"
)

// DefaultTable is the table rows are written to unless WithTable is given.
const DefaultTable = "measurements"

// MeasurementRepository writes normalized rows to the measurements table.
type MeasurementRepository struct {
	db    *sql.DB
	table string
}

// NewMeasurementRepository constructs a repository with default table name.
func NewMeasurementRepository(db *sql.DB, opts ...RepositoryOption) *MeasurementRepository {
	repo := &MeasurementRepository{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*MeasurementRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *MeasurementRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertRow issues a single INSERT for row. Column identifiers are quoted.
func (r *MeasurementRepository) InsertRow(ctx context.Context, row telemetry.Row) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	columns, values, err := row.Columns()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertStatement(r.table, columns), values...); err != nil {
		return err
	}
	return nil
}

func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = `"` + strings.ReplaceAll(column, `"`, `""`) + `"`
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ","), strings.Join(params, ","))
}

var _ telemetry.RowWriter = (*MeasurementRepository)(nil)

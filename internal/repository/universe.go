package repository

import (
	"context"
	"database/sql"
	"fmt"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/domain/repository"
	pkgch "FlowPull/pkg/clickhouse"
)

// ClickHouseUniverse lists backfill targets from the instrument_universe
// table, maintained by an external loader.
type ClickHouseUniverse struct {
	db    *sql.DB
	table string
}

// NewClickHouseUniverse creates the universe reader.
func NewClickHouseUniverse(client *pkgch.Client, table string) repository.InstrumentUniverse {
	return &ClickHouseUniverse{db: client.DB(), table: table}
}

func (u *ClickHouseUniverse) List(ctx context.Context) ([]models.InstrumentRef, error) {
	q := fmt.Sprintf("SELECT stk_cd, stk_nm FROM %s FINAL ORDER BY stk_cd", u.table)
	rows, err := u.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var out []models.InstrumentRef
	for rows.Next() {
		var ref models.InstrumentRef
		if err := rows.Scan(&ref.Code, &ref.Name); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// StaticUniverse serves a fixed instrument list, used when no universe table
// is populated yet.
type StaticUniverse struct {
	refs []models.InstrumentRef
}

func NewStaticUniverse(codes []string) repository.InstrumentUniverse {
	refs := make([]models.InstrumentRef, len(codes))
	for i, code := range codes {
		refs[i] = models.InstrumentRef{Code: code}
	}
	return &StaticUniverse{refs: refs}
}

func (u *StaticUniverse) List(_ context.Context) ([]models.InstrumentRef, error) {
	return u.refs, nil
}

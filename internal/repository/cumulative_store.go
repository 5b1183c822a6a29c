package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/domain/repository"
	pkgch "FlowPull/pkg/clickhouse"
)

// ClickHouseCumulativeStore implements CumulativeStore on ClickHouse.
type ClickHouseCumulativeStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
}

// NewClickHouseCumulativeStore creates the running-totals store.
func NewClickHouseCumulativeStore(client *pkgch.Client, table string) repository.CumulativeStore {
	return &ClickHouseCumulativeStore{client: client, db: client.DB(), table: table}
}

func cumulativeColumns() string {
	return "dt, stk_cd, cur_prc, " +
		joinColumns("daily_") + ", " +
		joinColumns("net_qty_") + ", " +
		joinColumns("net_amt_") + ", updated_at"
}

func (s *ClickHouseCumulativeStore) Init(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseCumulativeStore) SaveAll(ctx context.Context, rows []*models.Cumulative) error {
	if len(rows) == 0 {
		return nil
	}

	const chunkSize = 1000
	argCount := 4 + 3*models.NumCategories

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*argCount)
		for _, r := range rows[start:end] {
			if r == nil || r.Instrument == "" || r.Date.IsZero() {
				continue
			}
			values = append(values, "("+placeholders(argCount)+")")
			args = append(args, r.Date, r.Instrument, r.CurrentPrice)
			for c := 0; c < models.NumCategories; c++ {
				args = append(args, r.Daily[c])
			}
			for c := 0; c < models.NumCategories; c++ {
				args = append(args, r.NetQty[c])
			}
			for c := 0; c < models.NumCategories; c++ {
				args = append(args, r.NetAmount[c])
			}
			args = append(args, r.UpdatedAt)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, cumulativeColumns(), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert cumulative: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseCumulativeStore) Range(ctx context.Context, instrument string, from, to time.Time) ([]*models.Cumulative, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE stk_cd = ? AND dt >= ? AND dt <= ? ORDER BY dt ASC",
		cumulativeColumns(), s.table)

	rows, err := s.db.QueryContext(ctx, q, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("query cumulative: %w", err)
	}
	defer rows.Close()

	var out []*models.Cumulative
	for rows.Next() {
		c, err := scanCumulative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ClickHouseCumulativeStore) MaxDate(ctx context.Context, instrument string) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT max(dt), count() FROM %s WHERE stk_cd = ?", s.table)
	var dt time.Time
	var count uint64
	if err := s.db.QueryRowContext(ctx, q, instrument).Scan(&dt, &count); err != nil {
		return time.Time{}, false, fmt.Errorf("max cumulative date: %w", err)
	}
	if count == 0 {
		return time.Time{}, false, nil
	}
	return dt, true, nil
}

func (s *ClickHouseCumulativeStore) Latest(ctx context.Context, instrument string) (*models.Cumulative, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE stk_cd = ? ORDER BY dt DESC LIMIT 1",
		cumulativeColumns(), s.table)

	rows, err := s.db.QueryContext(ctx, q, instrument)
	if err != nil {
		return nil, fmt.Errorf("query latest cumulative: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanCumulative(rows)
}

func (s *ClickHouseCumulativeStore) Close() error {
	return nil // pool owned by pkg client
}

func scanCumulative(rows *sql.Rows) (*models.Cumulative, error) {
	var c models.Cumulative
	dest := []interface{}{&c.Date, &c.Instrument, &c.CurrentPrice}
	for i := 0; i < models.NumCategories; i++ {
		dest = append(dest, &c.Daily[i])
	}
	for i := 0; i < models.NumCategories; i++ {
		dest = append(dest, &c.NetQty[i])
	}
	for i := 0; i < models.NumCategories; i++ {
		dest = append(dest, &c.NetAmount[i])
	}
	dest = append(dest, &c.UpdatedAt)
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan cumulative: %w", err)
	}
	return &c, nil
}

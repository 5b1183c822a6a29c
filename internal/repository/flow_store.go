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

// ClickHouseFlowStore implements FlowStore on ClickHouse.
type ClickHouseFlowStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
}

// NewClickHouseFlowStore creates the daily flow store.
func NewClickHouseFlowStore(client *pkgch.Client, table string) repository.FlowStore {
	return &ClickHouseFlowStore{client: client, db: client.DB(), table: table}
}

func (s *ClickHouseFlowStore) Init(ctx context.Context) error {
	return s.client.Health(ctx)
}

// SaveAll inserts rows in chunks. The ReplacingMergeTree key makes re-inserts
// of the same (instrument, date, type) row harmless.
func (s *ClickHouseFlowStore) SaveAll(ctx context.Context, rows []*models.DailyFlow) error {
	if len(rows) == 0 {
		return nil
	}

	const chunkSize = 1000
	colList := "dt, stk_cd, trde_tp, amt_qty_tp, unit_tp, cur_prc, pred_pre, flu_rt, acc_trde_qty, acc_trde_prica, " +
		joinColumns("") + ", fetched_at"
	argCount := 11 + models.NumCategories

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
			args = append(args,
				r.Date,
				r.Instrument,
				r.TradeType,
				r.AmountQtyType,
				string(r.Unit),
				r.CurrentPrice,
				r.PrevDayDiff,
				r.FluctRate,
				r.AccVolume,
				r.AccValue,
			)
			for c := 0; c < models.NumCategories; c++ {
				args = append(args, r.Net[c])
			}
			args = append(args, r.FetchedAt)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, colList, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert flows: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseFlowStore) Exists(ctx context.Context, key models.FlowKey) (bool, error) {
	q := fmt.Sprintf("SELECT count() FROM %s WHERE stk_cd = ? AND dt = ? AND trde_tp = ? AND amt_qty_tp = ?", s.table)
	var count uint64
	err := s.db.QueryRowContext(ctx, q, key.Instrument, key.Date, key.TradeType, key.AmountQtyType).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return count > 0, nil
}

func (s *ClickHouseFlowStore) Range(ctx context.Context, instrument string, from, to time.Time) ([]*models.DailyFlow, error) {
	q := fmt.Sprintf(
		"SELECT dt, stk_cd, trde_tp, amt_qty_tp, unit_tp, cur_prc, pred_pre, flu_rt, acc_trde_qty, acc_trde_prica, %s, fetched_at "+
			"FROM %s FINAL WHERE stk_cd = ? AND dt >= ? AND dt <= ? ORDER BY dt ASC",
		joinColumns(""), s.table)

	rows, err := s.db.QueryContext(ctx, q, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	var out []*models.DailyFlow
	for rows.Next() {
		var f models.DailyFlow
		var unit string
		dest := []interface{}{
			&f.Date, &f.Instrument, &f.TradeType, &f.AmountQtyType, &unit,
			&f.CurrentPrice, &f.PrevDayDiff, &f.FluctRate, &f.AccVolume, &f.AccValue,
		}
		for c := 0; c < models.NumCategories; c++ {
			dest = append(dest, &f.Net[c])
		}
		dest = append(dest, &f.FetchedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.Unit = models.UnitType(unit)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *ClickHouseFlowStore) MaxDate(ctx context.Context, instrument string) (time.Time, bool, error) {
	return s.extremum(ctx, instrument, "max")
}

func (s *ClickHouseFlowStore) MinDate(ctx context.Context, instrument string) (time.Time, bool, error) {
	return s.extremum(ctx, instrument, "min")
}

func (s *ClickHouseFlowStore) extremum(ctx context.Context, instrument, fn string) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT %s(dt), count() FROM %s WHERE stk_cd = ?", fn, s.table)
	var dt time.Time
	var count uint64
	if err := s.db.QueryRowContext(ctx, q, instrument).Scan(&dt, &count); err != nil {
		return time.Time{}, false, fmt.Errorf("%s date: %w", fn, err)
	}
	if count == 0 {
		return time.Time{}, false, nil
	}
	return dt, true, nil
}

func (s *ClickHouseFlowStore) Instruments(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT stk_cd FROM %s ORDER BY stk_cd", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (s *ClickHouseFlowStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseFlowStore) Close() error {
	return nil // pool owned by pkg client
}

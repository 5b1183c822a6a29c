package repository

import (
	"fmt"
	"strings"

	"FlowPull/internal/domain/models"
)

// categoryColumns maps models.Category indices to storage column names. The
// order must match the Category enum exactly.
var categoryColumns = [models.NumCategories]string{
	"ind_invsr",
	"frgnr_invsr",
	"orgn",
	"fnnc_invt",
	"insrnc",
	"invtrt",
	"etc_fnnc",
	"bank",
	"penfnd_etc",
	"samo_fund",
	"natn",
	"etc_corp",
	"natfor",
	"frgnr_invsr_orgn",
}

const (
	FlowDailyTable      = "flow_daily"
	FlowCumulativeTable = "flow_cumulative"
	UniverseTable       = "instrument_universe"
)

// SchemaStatements returns idempotent DDL for all tables.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		flowDailyDDL(database + "." + FlowDailyTable),
		flowCumulativeDDL(database + "." + FlowCumulativeTable),
		universeDDL(database + "." + UniverseTable),
	}
}

func flowDailyDDL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("  dt Date,\n")
	b.WriteString("  stk_cd String,\n")
	b.WriteString("  trde_tp String,\n")
	b.WriteString("  amt_qty_tp String,\n")
	b.WriteString("  unit_tp String,\n")
	b.WriteString("  cur_prc Int64,\n")
	b.WriteString("  pred_pre Int64,\n")
	b.WriteString("  flu_rt Decimal(18, 4),\n")
	b.WriteString("  acc_trde_qty Int64,\n")
	b.WriteString("  acc_trde_prica Int64,\n")
	for _, col := range categoryColumns {
		fmt.Fprintf(&b, "  %s Int64,\n", col)
	}
	b.WriteString("  fetched_at DateTime\n")
	b.WriteString(") ENGINE = ReplacingMergeTree(fetched_at)\n")
	b.WriteString("ORDER BY (stk_cd, dt, trde_tp, amt_qty_tp)")
	return b.String()
}

func flowCumulativeDDL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("  dt Date,\n")
	b.WriteString("  stk_cd String,\n")
	b.WriteString("  cur_prc Int64,\n")
	for _, col := range categoryColumns {
		fmt.Fprintf(&b, "  daily_%s Int64,\n", col)
	}
	for _, col := range categoryColumns {
		fmt.Fprintf(&b, "  net_qty_%s Int64,\n", col)
	}
	for _, col := range categoryColumns {
		fmt.Fprintf(&b, "  net_amt_%s Int64,\n", col)
	}
	b.WriteString("  updated_at DateTime\n")
	b.WriteString(") ENGINE = ReplacingMergeTree(updated_at)\n")
	b.WriteString("ORDER BY (stk_cd, dt)")
	return b.String()
}

func universeDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  stk_cd String,
  stk_nm String,
  updated_at DateTime
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY stk_cd`, table)
}

func joinColumns(prefix string) string {
	cols := make([]string, len(categoryColumns))
	for i, col := range categoryColumns {
		cols[i] = prefix + col
	}
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

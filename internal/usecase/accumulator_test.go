package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FlowPull/internal/domain/models"
)

func floorDate(t *testing.T) time.Time {
	t.Helper()
	return ymd(t, "20000101")
}

func TestFoldFlowsRunningTotals(t *testing.T) {
	f1 := testFlow("005930", "20240710", 10)
	f2 := testFlow("005930", "20240711", 20)
	f3 := testFlow("005930", "20240712", -5)

	out, err := FoldFlows(nil, []*models.DailyFlow{&f1, &f2, &f3})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("rows = %d, want 3", len(out))
	}

	wantQty := []int64{10, 30, 25}
	for i, q := range wantQty {
		if out[i].NetQty[models.CatIndividual] != q {
			t.Fatalf("row %d net qty = %d, want %d", i, out[i].NetQty[models.CatIndividual], q)
		}
		if out[i].Daily[models.CatIndividual] != []int64{10, 20, -5}[i] {
			t.Fatalf("row %d daily = %d", i, out[i].Daily[models.CatIndividual])
		}
	}
	// price is 100 for all test flows, so amounts track qty * 100
	if out[2].NetAmount[models.CatIndividual] != 2500 {
		t.Fatalf("net amount = %d, want 2500", out[2].NetAmount[models.CatIndividual])
	}
}

func TestFoldFlowsSeedsFromPrev(t *testing.T) {
	prev := &models.Cumulative{Instrument: "005930", Date: ymd(t, "20240710")}
	prev.NetQty[models.CatIndividual] = 100
	prev.NetAmount[models.CatIndividual] = 10000

	f := testFlow("005930", "20240711", 7)
	out, err := FoldFlows(prev, []*models.DailyFlow{&f})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if out[0].NetQty[models.CatIndividual] != 107 {
		t.Fatalf("net qty = %d, want 107", out[0].NetQty[models.CatIndividual])
	}
	if out[0].NetAmount[models.CatIndividual] != 10700 {
		t.Fatalf("net amount = %d, want 10700", out[0].NetAmount[models.CatIndividual])
	}
}

func TestFoldFlowsOutOfOrder(t *testing.T) {
	f1 := testFlow("005930", "20240712", 1)
	f2 := testFlow("005930", "20240711", 2)
	if _, err := FoldFlows(nil, []*models.DailyFlow{&f1, &f2}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}

	prev := &models.Cumulative{Instrument: "005930", Date: ymd(t, "20240712")}
	f3 := testFlow("005930", "20240712", 3)
	if _, err := FoldFlows(prev, []*models.DailyFlow{&f3}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder for row not after seed", err)
	}
}

func TestAccumulatorSyncInitial(t *testing.T) {
	flows := newFakeFlowStore()
	cumuls := newFakeCumulStore()
	ctx := context.Background()

	f1 := testFlow("005930", "20240710", 10)
	f2 := testFlow("005930", "20240711", 20)
	if err := flows.SaveAll(ctx, []*models.DailyFlow{&f1, &f2}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := NewAccumulator(flows, cumuls, floorDate(t), newFakeMetrics(), testLogger(t))
	n, err := a.Sync(ctx, "005930")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 || cumuls.count("005930") != 2 {
		t.Fatalf("folded = %d stored = %d, want 2/2", n, cumuls.count("005930"))
	}
}

func TestAccumulatorSyncIncremental(t *testing.T) {
	flows := newFakeFlowStore()
	cumuls := newFakeCumulStore()
	ctx := context.Background()

	f1 := testFlow("005930", "20240710", 10)
	f2 := testFlow("005930", "20240711", 20)
	if err := flows.SaveAll(ctx, []*models.DailyFlow{&f1, &f2}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := NewAccumulator(flows, cumuls, floorDate(t), newFakeMetrics(), testLogger(t))
	if _, err := a.Sync(ctx, "005930"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// new day arrives; only the gap should fold
	f3 := testFlow("005930", "20240712", 5)
	if err := flows.SaveAll(ctx, []*models.DailyFlow{&f3}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := a.Sync(ctx, "005930")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if n != 1 {
		t.Fatalf("folded = %d, want 1", n)
	}

	latest, err := cumuls.Latest(ctx, "005930")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.NetQty[models.CatIndividual] != 35 {
		t.Fatalf("net qty = %d, want 35", latest.NetQty[models.CatIndividual])
	}
}

func TestAccumulatorSyncUpToDate(t *testing.T) {
	flows := newFakeFlowStore()
	cumuls := newFakeCumulStore()
	ctx := context.Background()

	f := testFlow("005930", "20240710", 10)
	if err := flows.SaveAll(ctx, []*models.DailyFlow{&f}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := NewAccumulator(flows, cumuls, floorDate(t), newFakeMetrics(), testLogger(t))
	if _, err := a.Sync(ctx, "005930"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	n, err := a.Sync(ctx, "005930")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 0 {
		t.Fatalf("folded = %d, want 0 when up to date", n)
	}
}

func TestAccumulatorSyncNoData(t *testing.T) {
	a := NewAccumulator(newFakeFlowStore(), newFakeCumulStore(), floorDate(t), newFakeMetrics(), testLogger(t))
	n, err := a.Sync(context.Background(), "005930")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 0 {
		t.Fatalf("folded = %d, want 0 on empty store", n)
	}
}

func TestAccumulatorSyncAll(t *testing.T) {
	flows := newFakeFlowStore()
	cumuls := newFakeCumulStore()
	ctx := context.Background()

	f1 := testFlow("005930", "20240710", 10)
	f2 := testFlow("000660", "20240710", 20)
	if err := flows.SaveAll(ctx, []*models.DailyFlow{&f1, &f2}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := NewAccumulator(flows, cumuls, floorDate(t), newFakeMetrics(), testLogger(t))
	results, err := a.SyncAll(ctx)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 instruments", len(results))
	}
	if results["005930"] != 1 || results["000660"] != 1 {
		t.Fatalf("results = %v, want 1 each", results)
	}
}

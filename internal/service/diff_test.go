package service

import (
	"errors"
	"testing"
	"time"

	"profit_go/internal/domain"
	"profit_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

func seedSnapshot(t *testing.T, s *storage.Storage, machineID uint, at time.Time, net float64) {
	t.Helper()

	snap := domain.ProfitabilitySnapshot{
		MachineID:            machineID,
		ComputedAt:           at,
		RevenueUSDPerDay:     decimal.NewFromFloat(net + 30),
		ElectricityUSDPerDay: decimal.NewFromInt(20),
		NetProfitUSDPerDay:   decimal.NewFromFloat(net),
	}
	rec := domain.NewBreakdownRecord(snap.RevenueUSDPerDay, domain.CostBreakdown{
		DailyElectricityUSD: snap.ElectricityUSDPerDay,
		DailyPoolFeeUSD:     decimal.NewFromInt(10),
		NetProfitUSDPerDay:  snap.NetProfitUSDPerDay,
	}, domain.SourcePerCoin, 75, "test", "bitcoin")
	if err := snap.EncodeBreakdown(rec); err != nil {
		t.Fatalf("encode breakdown: %v", err)
	}

	if _, err := s.InsertSnapshots([]domain.ProfitabilitySnapshot{snap}, 100); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}
}

func TestDiffService_DiffForMachine(t *testing.T) {
	store := setupTestStore(t)
	seedCatalog(t, store)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	seedSnapshot(t, store, 1, now.Add(-48*time.Hour), 60)
	seedSnapshot(t, store, 1, now.Add(-24*time.Hour), 80) // closest to the 24h target
	seedSnapshot(t, store, 1, now.Add(-2*time.Hour), 100)

	d := NewDiffService(store)
	d.now = func() time.Time { return now }

	diff, err := d.DiffForMachine(1)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if !diff.PreviousAt.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("previous bucket = %v, want the snapshot 24h back", diff.PreviousAt)
	}
	if got := diff.NetProfit.Delta.InexactFloat64(); got != 20 {
		t.Errorf("net delta = %v, want 20", got)
	}
	if diff.NetProfit.DeltaPct == nil || diff.NetProfit.DeltaPct.InexactFloat64() != 25 {
		t.Errorf("net delta pct = %v, want 25", diff.NetProfit.DeltaPct)
	}
}

func TestDiffService_NotEnoughSnapshots(t *testing.T) {
	store := setupTestStore(t)
	seedCatalog(t, store)

	d := NewDiffService(store)

	if _, err := d.DiffForMachine(1); !errors.Is(err, domain.ErrNotEnoughSnapshots) {
		t.Fatalf("err = %v, want ErrNotEnoughSnapshots", err)
	}

	seedSnapshot(t, store, 1, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), 50)
	if _, err := d.DiffForMachine(1); !errors.Is(err, domain.ErrNotEnoughSnapshots) {
		t.Fatalf("err with one snapshot = %v, want ErrNotEnoughSnapshots", err)
	}
}

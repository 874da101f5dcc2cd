package service

import (
	"fmt"
	"time"

	"profit_go/internal/domain"
	"profit_go/internal/engine"
	"profit_go/internal/infra/storage"
)

// diffHistoryLimit bounds how much history the previous-snapshot selection
// considers. One snapshot per hour means 7 days of candidates.
const diffHistoryLimit = 168

// DiffService compares a machine's latest snapshot against an earlier one.
type DiffService struct {
	store *storage.Storage
	now   func() time.Time
}

func NewDiffService(store *storage.Storage) *DiffService {
	return &DiffService{store: store, now: time.Now}
}

// DiffForMachine diffs the machine's newest snapshot against the stored
// snapshot closest to 24 hours ago. Returns ErrNotEnoughSnapshots when the
// machine has fewer than two.
func (d *DiffService) DiffForMachine(machineID uint) (*engine.SnapshotDiff, error) {
	snapshots, err := d.store.SnapshotsForMachine(machineID, diffHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load snapshots for machine %d: %w", machineID, err)
	}
	previous := engine.SelectPrevious(snapshots, d.now())
	if previous == nil {
		return nil, fmt.Errorf("machine %d: %w", machineID, domain.ErrNotEnoughSnapshots)
	}
	return engine.DiffSnapshots(&snapshots[0], previous), nil
}

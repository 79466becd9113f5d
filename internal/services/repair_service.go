package services

import (
	"context"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/repository"
)

// RepairService collapses duplicate rows that share a logical id. Sync
// races can land two rows with the same id; the repair pass keeps the
// freshest row per id (newest modifiedAt, smallest seq on a timestamp
// tie) and drops the rest. Running it on an already clean store is a
// no-op, so it is safe to trigger opportunistically.
type RepairService struct {
	stores  *repository.Stores
	metrics *observability.SyncMetrics
}

// NewRepairService creates a repair service
func NewRepairService(stores *repository.Stores, metrics *observability.SyncMetrics) *RepairService {
	return &RepairService{stores: stores, metrics: metrics}
}

// RepairAll runs both repair passes and returns the total number of
// collapsed rows
func (s *RepairService) RepairAll(ctx context.Context) (int, error) {
	lists, err := s.RepairLists(ctx)
	if err != nil {
		return lists, err
	}
	items, err := s.RepairItems(ctx)
	return lists + items, err
}

// RepairLists collapses duplicate list rows. Items reference their list
// by logical id, not by storage row, so the survivor keeps every child
// automatically; nothing is re-parented and nothing cascades.
func (s *RepairService) RepairLists(ctx context.Context) (int, error) {
	ids, err := s.stores.Lists.DuplicateIDs(ctx)
	if err != nil {
		return 0, &models.StoreError{Op: "repair lists", Cause: err}
	}

	collapsed := 0
	for _, id := range ids {
		rows, err := s.stores.Lists.GetRowsByID(ctx, id)
		if err != nil {
			return collapsed, &models.StoreError{Op: "repair lists", Cause: err}
		}
		if len(rows) < 2 {
			continue
		}
		// Rows arrive ordered freshest first; rows[0] survives.
		for _, loser := range rows[1:] {
			if err := s.stores.Lists.DeleteRow(ctx, loser.Seq); err != nil {
				return collapsed, &models.StoreError{Op: "repair lists", Cause: err}
			}
			collapsed++
		}
		observability.Infof("Collapsed %d duplicate rows for list %s", len(rows)-1, id)
	}

	if collapsed > 0 && s.metrics != nil {
		s.metrics.RecordRepair(ctx, "lists", collapsed)
	}
	return collapsed, nil
}

// RepairItems collapses duplicate item rows. Images are keyed by the
// item's logical id and follow the surviving row.
func (s *RepairService) RepairItems(ctx context.Context) (int, error) {
	ids, err := s.stores.Items.DuplicateIDs(ctx)
	if err != nil {
		return 0, &models.StoreError{Op: "repair items", Cause: err}
	}

	collapsed := 0
	for _, id := range ids {
		rows, err := s.stores.Items.GetRowsByID(ctx, id)
		if err != nil {
			return collapsed, &models.StoreError{Op: "repair items", Cause: err}
		}
		if len(rows) < 2 {
			continue
		}
		for _, loser := range rows[1:] {
			if err := s.stores.Items.DeleteRow(ctx, loser.Seq); err != nil {
				return collapsed, &models.StoreError{Op: "repair items", Cause: err}
			}
			collapsed++
		}
		observability.Infof("Collapsed %d duplicate rows for item %s", len(rows)-1, id)
	}

	if collapsed > 0 && s.metrics != nil {
		s.metrics.RecordRepair(ctx, "items", collapsed)
	}
	return collapsed, nil
}

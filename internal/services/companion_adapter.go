package services

import (
	"context"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/repository"
)

// CompanionAdapter merges snapshots received from the paired companion
// device into the store. The companion sends its complete stripped view,
// so within each list it carries the payload is authoritative: newer
// records win field for field and items it no longer has are deleted.
// Lists the payload does not mention are left alone, and an entirely
// empty payload is ignored rather than read as delete-everything.
type CompanionAdapter struct {
	engine *SyncEngine
	stores *repository.Stores
}

// NewCompanionAdapter creates a companion adapter bound to the engine
func NewCompanionAdapter(engine *SyncEngine, stores *repository.Stores) *CompanionAdapter {
	return &CompanionAdapter{engine: engine, stores: stores}
}

// ApplyIncoming merges a companion snapshot and then forces a full
// reconciliation so the published snapshot reflects the merged store
// before the call returns.
func (a *CompanionAdapter) ApplyIncoming(ctx context.Context, snap *models.CompanionSnapshot) error {
	return a.engine.Apply(ctx, func(ctx context.Context) error {
		if snap.IsEmpty() {
			observability.Warn("Ignoring empty companion snapshot")
			return a.engine.reconcile(ctx, string(SourceCompanion))
		}

		for i := range snap.Lists {
			if err := a.mergeList(ctx, &snap.Lists[i]); err != nil {
				return err
			}
		}

		return a.engine.reconcile(ctx, string(SourceCompanion))
	})
}

func (a *CompanionAdapter) mergeList(ctx context.Context, incoming *models.CompanionList) error {
	local, err := a.stores.Lists.GetByID(ctx, incoming.ID)
	if err != nil {
		return &models.StoreError{Op: "companion merge", Cause: err}
	}

	if local == nil {
		list := incoming.ToList()
		if err := a.stores.Lists.Add(ctx, list); err != nil {
			return &models.StoreError{Op: "companion merge", Cause: err}
		}
		for _, ci := range incoming.Items {
			if err := a.stores.Items.Add(ctx, ci.ToItem(incoming.ID)); err != nil {
				return &models.StoreError{Op: "companion merge", Cause: err}
			}
		}
		observability.Infof("Companion introduced list %s with %d items", incoming.ID, len(incoming.Items))
		return nil
	}

	if incoming.ModifiedAt.After(local.ModifiedAt) {
		local.Name = incoming.Name
		local.OrderNumber = incoming.OrderNumber
		local.IsArchived = incoming.IsArchived
		local.ModifiedAt = incoming.ModifiedAt
		if err := a.stores.Lists.Update(ctx, local); err != nil {
			return &models.StoreError{Op: "companion merge", Cause: err}
		}
	}

	return a.mergeItems(ctx, local.ID, incoming.Items)
}

func (a *CompanionAdapter) mergeItems(ctx context.Context, listID string, incoming []models.CompanionItem) error {
	localItems, err := a.stores.Items.GetByList(ctx, listID)
	if err != nil {
		return &models.StoreError{Op: "companion merge", Cause: err}
	}

	localByID := make(map[string]*models.Item, len(localItems))
	for _, it := range localItems {
		localByID[it.ID] = it
	}

	seen := make(map[string]bool, len(incoming))
	for _, ci := range incoming {
		seen[ci.ID] = true
		local, ok := localByID[ci.ID]
		if !ok {
			if err := a.stores.Items.Add(ctx, ci.ToItem(listID)); err != nil {
				return &models.StoreError{Op: "companion merge", Cause: err}
			}
			continue
		}
		if ci.ModifiedAt.After(local.ModifiedAt) {
			local.Title = ci.Title
			local.Description = ci.Description
			local.Quantity = ci.Quantity
			local.OrderNumber = ci.OrderNumber
			local.IsCrossedOut = ci.IsCrossedOut
			local.ModifiedAt = ci.ModifiedAt
			if err := a.stores.Items.Update(ctx, local); err != nil {
				return &models.StoreError{Op: "companion merge", Cause: err}
			}
		}
	}

	// The payload is the companion's full view of this list, so a local
	// item it does not carry was deleted on the companion.
	for _, it := range localItems {
		if seen[it.ID] {
			continue
		}
		if err := a.stores.Images.DeleteByItem(ctx, it.ID); err != nil {
			return &models.StoreError{Op: "companion merge", Cause: err}
		}
		if err := a.stores.Items.Delete(ctx, it.ID); err != nil {
			return &models.StoreError{Op: "companion merge", Cause: err}
		}
		observability.Debugf("Companion merge removed item %s from list %s", it.ID, listID)
	}

	return nil
}

package services

import (
	"context"
	"time"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
)

// Fixed ids keep the starter content stable across replicas: two first
// runs that both seed produce identical rows, which the duplicate repair
// pass then collapses instead of doubling.
const (
	starterGroceriesListID = "8a3b51d4-1f0e-4c9a-9f21-6d4f0a7b2c10"
	starterMilkItemID      = "e52c7a19-8b4d-4f3e-a1c6-2d9e0b5f8311"
	starterBreadItemID     = "47d0f8c2-6a1b-4e5d-b93f-0c8a2e6d1412"
	starterTodoListID      = "b96e2c05-3d7f-4a8b-8e14-5f1c9d0a3b13"
	starterWelcomeItemID   = "1c8f4b6a-9e2d-4d7c-a05b-3e6f8d2c4514"
)

func starterLists() []*models.List {
	now := time.Now().UTC()
	groceries := &models.List{
		ID:          starterGroceriesListID,
		Name:        "Groceries",
		OrderNumber: 1,
		CreatedAt:   now,
		ModifiedAt:  now,
		Items: []*models.Item{
			{
				ID:          starterMilkItemID,
				ListID:      starterGroceriesListID,
				Title:       "Milk",
				Quantity:    1,
				OrderNumber: 1,
				CreatedAt:   now,
				ModifiedAt:  now,
			},
			{
				ID:          starterBreadItemID,
				ListID:      starterGroceriesListID,
				Title:       "Bread",
				Quantity:    1,
				OrderNumber: 2,
				CreatedAt:   now,
				ModifiedAt:  now,
			},
		},
	}
	todo := &models.List{
		ID:          starterTodoListID,
		Name:        "To Do",
		OrderNumber: 2,
		CreatedAt:   now,
		ModifiedAt:  now,
		Items: []*models.Item{
			{
				ID:          starterWelcomeItemID,
				ListID:      starterTodoListID,
				Title:       "Try adding your first item",
				Quantity:    1,
				OrderNumber: 1,
				CreatedAt:   now,
				ModifiedAt:  now,
			},
		},
	}
	return []*models.List{groceries, todo}
}

// starterSnapshot is the in-memory fallback published when the store is
// unreachable and nothing has been synced yet
func starterSnapshot() *models.Snapshot {
	return &models.Snapshot{Lists: starterLists(), GeneratedAt: time.Now().UTC()}
}

// SeedIfEmpty writes the starter content into a completely empty store.
// It runs on the apply path, so call it only after Run has started.
func (e *SyncEngine) SeedIfEmpty(ctx context.Context) error {
	if !e.opts.SeedStarterContent {
		return nil
	}
	count, err := e.stores.Lists.Count(ctx)
	if err != nil {
		return &models.StoreError{Op: "seed", Cause: err}
	}
	if count > 0 {
		return nil
	}
	return e.Apply(ctx, func(ctx context.Context) error {
		for _, list := range starterLists() {
			if err := e.stores.Lists.Add(ctx, list); err != nil {
				return &models.StoreError{Op: "seed", Cause: err}
			}
			for _, item := range list.Items {
				if err := e.stores.Items.Add(ctx, item); err != nil {
					return &models.StoreError{Op: "seed", Cause: err}
				}
			}
		}
		observability.Info("Seeded starter content into empty store")
		return e.reconcile(ctx, "seed")
	})
}

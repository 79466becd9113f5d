package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listsync/server/internal/models"
)

func TestRepairLists(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	t.Run("keeps the freshest row", func(t *testing.T) {
		store := newMemStore()
		stores := store.stores()
		repair := NewRepairService(stores, nil)

		for i, name := range []string{"stale", "fresh", "staler"} {
			mod := base.Add(time.Duration(i) * time.Minute)
			if name == "fresh" {
				mod = base.Add(time.Hour)
			}
			require.NoError(t, stores.Lists.Add(ctx, &models.List{
				ID: "dup", Name: name, OrderNumber: 1,
				CreatedAt: base, ModifiedAt: mod,
			}))
		}

		collapsed, err := repair.RepairLists(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, collapsed)

		rows, err := stores.Lists.GetRowsByID(ctx, "dup")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "fresh", rows[0].Name)
	})

	t.Run("timestamp tie keeps the smallest seq", func(t *testing.T) {
		store := newMemStore()
		stores := store.stores()
		repair := NewRepairService(stores, nil)

		require.NoError(t, stores.Lists.Add(ctx, &models.List{
			ID: "tied", Name: "older row", CreatedAt: base, ModifiedAt: base,
		}))
		require.NoError(t, stores.Lists.Add(ctx, &models.List{
			ID: "tied", Name: "newer row", CreatedAt: base, ModifiedAt: base,
		}))

		collapsed, err := repair.RepairLists(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, collapsed)

		rows, err := stores.Lists.GetRowsByID(ctx, "tied")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "older row", rows[0].Name)
	})

	t.Run("children follow the surviving row", func(t *testing.T) {
		store := newMemStore()
		stores := store.stores()
		repair := NewRepairService(stores, nil)

		require.NoError(t, stores.Lists.Add(ctx, &models.List{
			ID: "parent", Name: "v1", CreatedAt: base, ModifiedAt: base,
		}))
		require.NoError(t, stores.Lists.Add(ctx, &models.List{
			ID: "parent", Name: "v2", CreatedAt: base, ModifiedAt: base.Add(time.Minute),
		}))
		for i, title := range []string{"a", "b", "c"} {
			require.NoError(t, stores.Items.Add(ctx, &models.Item{
				ID: title, ListID: "parent", Title: title, Quantity: 1,
				OrderNumber: i + 1, CreatedAt: base, ModifiedAt: base,
			}))
		}

		_, err := repair.RepairAll(ctx)
		require.NoError(t, err)

		items, err := stores.Items.GetByList(ctx, "parent")
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("clean store is a no-op", func(t *testing.T) {
		store := newMemStore()
		stores := store.stores()
		repair := NewRepairService(stores, nil)

		require.NoError(t, stores.Lists.Add(ctx, &models.List{
			ID: "solo", Name: "only", CreatedAt: base, ModifiedAt: base,
		}))

		collapsed, err := repair.RepairAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, collapsed)

		// Idempotent on a second run too.
		collapsed, err = repair.RepairAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, collapsed)
	})
}

func TestRepairItems(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	store := newMemStore()
	stores := store.stores()
	repair := NewRepairService(stores, nil)

	require.NoError(t, stores.Items.Add(ctx, &models.Item{
		ID: "dup-item", ListID: "l1", Title: "old title", Quantity: 1,
		CreatedAt: base, ModifiedAt: base,
	}))
	require.NoError(t, stores.Items.Add(ctx, &models.Item{
		ID: "dup-item", ListID: "l1", Title: "new title", Quantity: 2,
		CreatedAt: base, ModifiedAt: base.Add(time.Minute),
	}))
	require.NoError(t, stores.Images.Add(ctx, &models.ItemImage{
		ID: "img-1", ItemID: "dup-item", Data: []byte{1}, OrderNumber: 1, CreatedAt: base,
	}))

	collapsed, err := repair.RepairItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, collapsed)

	rows, err := stores.Items.GetRowsByID(ctx, "dup-item")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new title", rows[0].Title)

	// Images are keyed by the item id and survive the collapse.
	images, err := stores.Images.GetByItem(ctx, "dup-item")
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

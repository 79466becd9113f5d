package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listsync/server/internal/models"
)

func companionFixture(t *testing.T) (*memStore, *SyncEngine, *CompanionAdapter) {
	t.Helper()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})
	adapter := NewCompanionAdapter(engine, store.stores())
	return store, engine, adapter
}

func TestCompanionAdapterEmptyPayloadGuard(t *testing.T) {
	ctx := context.Background()
	_, engine, adapter := companionFixture(t)

	_, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Keep me"})
	require.NoError(t, err)

	// A companion that just booted sends an empty snapshot. That must
	// never read as delete-everything.
	require.NoError(t, adapter.ApplyIncoming(ctx, &models.CompanionSnapshot{SentAt: time.Now().UTC()}))

	assert.Equal(t, 1, engine.CurrentSnapshot().ListCount())
}

func TestCompanionAdapterCreatesUnknownList(t *testing.T) {
	ctx := context.Background()
	_, engine, adapter := companionFixture(t)

	now := time.Now().UTC()
	incoming := &models.CompanionSnapshot{
		SentAt: now,
		Lists: []models.CompanionList{{
			ID: "from-companion", Name: "Packing", OrderNumber: 1,
			CreatedAt: now, ModifiedAt: now,
			Items: []models.CompanionItem{
				{ID: "i1", Title: "Socks", Quantity: 2, OrderNumber: 1, CreatedAt: now, ModifiedAt: now},
				{ID: "i2", Title: "Charger", Quantity: 1, OrderNumber: 2, CreatedAt: now, ModifiedAt: now},
			},
		}},
	}

	require.NoError(t, adapter.ApplyIncoming(ctx, incoming))

	snap := engine.CurrentSnapshot()
	list := snap.FindList("from-companion")
	require.NotNil(t, list)
	assert.Equal(t, "Packing", list.Name)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Socks", list.Items[0].Title)
}

func TestCompanionAdapterNewerWins(t *testing.T) {
	ctx := context.Background()
	store, engine, adapter := companionFixture(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.stores().Lists.Add(ctx, &models.List{
		ID: "shared", Name: "Local name", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base,
	}))
	require.NoError(t, store.stores().Items.Add(ctx, &models.Item{
		ID: "it", ListID: "shared", Title: "Local title", Quantity: 1,
		OrderNumber: 1, CreatedAt: base, ModifiedAt: base,
	}))

	t.Run("newer incoming record overwrites", func(t *testing.T) {
		incoming := &models.CompanionSnapshot{
			SentAt: base.Add(time.Hour),
			Lists: []models.CompanionList{{
				ID: "shared", Name: "Companion name", OrderNumber: 1,
				CreatedAt: base, ModifiedAt: base.Add(time.Hour),
				Items: []models.CompanionItem{{
					ID: "it", Title: "Companion title", Quantity: 5,
					OrderNumber: 1, CreatedAt: base, ModifiedAt: base.Add(time.Hour),
				}},
			}},
		}
		require.NoError(t, adapter.ApplyIncoming(ctx, incoming))

		list := engine.CurrentSnapshot().FindList("shared")
		require.NotNil(t, list)
		assert.Equal(t, "Companion name", list.Name)
		require.Len(t, list.Items, 1)
		assert.Equal(t, "Companion title", list.Items[0].Title)
		assert.Equal(t, 5, list.Items[0].Quantity)
	})

	t.Run("older incoming record is ignored", func(t *testing.T) {
		incoming := &models.CompanionSnapshot{
			SentAt: base.Add(2 * time.Hour),
			Lists: []models.CompanionList{{
				ID: "shared", Name: "Stale name", OrderNumber: 1,
				CreatedAt: base, ModifiedAt: base.Add(time.Minute),
				Items: []models.CompanionItem{{
					ID: "it", Title: "Stale title", Quantity: 1,
					OrderNumber: 1, CreatedAt: base, ModifiedAt: base.Add(time.Minute),
				}},
			}},
		}
		require.NoError(t, adapter.ApplyIncoming(ctx, incoming))

		list := engine.CurrentSnapshot().FindList("shared")
		require.NotNil(t, list)
		assert.Equal(t, "Companion name", list.Name)
		assert.Equal(t, "Companion title", list.Items[0].Title)
	})
}

func TestCompanionAdapterDeletesAbsentItems(t *testing.T) {
	ctx := context.Background()
	store, engine, adapter := companionFixture(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	stores := store.stores()
	require.NoError(t, stores.Lists.Add(ctx, &models.List{
		ID: "shared", Name: "Shared", OrderNumber: 1, CreatedAt: base, ModifiedAt: base,
	}))
	for i, id := range []string{"keep", "drop"} {
		require.NoError(t, stores.Items.Add(ctx, &models.Item{
			ID: id, ListID: "shared", Title: id, Quantity: 1,
			OrderNumber: i + 1, CreatedAt: base, ModifiedAt: base,
		}))
	}
	require.NoError(t, stores.Images.Add(ctx, &models.ItemImage{
		ID: "img", ItemID: "drop", Data: []byte{1}, OrderNumber: 1, CreatedAt: base,
	}))

	// The companion's view of the list no longer contains "drop".
	incoming := &models.CompanionSnapshot{
		SentAt: base.Add(time.Hour),
		Lists: []models.CompanionList{{
			ID: "shared", Name: "Shared", OrderNumber: 1,
			CreatedAt: base, ModifiedAt: base,
			Items: []models.CompanionItem{{
				ID: "keep", Title: "keep", Quantity: 1,
				OrderNumber: 1, CreatedAt: base, ModifiedAt: base,
			}},
		}},
	}
	require.NoError(t, adapter.ApplyIncoming(ctx, incoming))

	list := engine.CurrentSnapshot().FindList("shared")
	require.NotNil(t, list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "keep", list.Items[0].ID)

	// The orphaned images went with the item.
	images, err := stores.Images.GetByItem(ctx, "drop")
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestCompanionAdapterLeavesUnmentionedListsAlone(t *testing.T) {
	ctx := context.Background()
	store, engine, adapter := companionFixture(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	stores := store.stores()
	require.NoError(t, stores.Lists.Add(ctx, &models.List{
		ID: "local-only", Name: "Local only", OrderNumber: 1, CreatedAt: base, ModifiedAt: base,
	}))

	incoming := &models.CompanionSnapshot{
		SentAt: base.Add(time.Hour),
		Lists: []models.CompanionList{{
			ID: "other", Name: "Other", OrderNumber: 2, CreatedAt: base, ModifiedAt: base,
		}},
	}
	require.NoError(t, adapter.ApplyIncoming(ctx, incoming))

	snap := engine.CurrentSnapshot()
	assert.NotNil(t, snap.FindList("local-only"))
	assert.NotNil(t, snap.FindList("other"))
}

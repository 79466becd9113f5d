package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listsync/server/internal/models"
)

func startEngine(t *testing.T, store *memStore, opts EngineOptions) *SyncEngine {
	t.Helper()
	if opts.QuietWindow == 0 {
		opts.QuietWindow = 20 * time.Millisecond
	}
	engine := NewSyncEngine(store.stores(), nil, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	t.Cleanup(cancel)
	return engine
}

func TestEngineLocalMutations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	t.Run("create list publishes snapshot", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Groceries"})
		require.NoError(t, err)
		require.NotEmpty(t, list.ID)
		assert.Equal(t, 1, list.OrderNumber)

		snap := engine.CurrentSnapshot()
		require.Equal(t, 1, snap.ListCount())
		assert.Equal(t, "Groceries", snap.Lists[0].Name)
	})

	t.Run("create list rejects blank name", func(t *testing.T) {
		_, err := engine.CreateList(ctx, models.CreateListRequest{Name: "   "})
		assert.ErrorIs(t, err, models.ErrListNameRequired)
	})

	t.Run("create item appends to list ordering", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Hardware"})
		require.NoError(t, err)

		first, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "Screws"})
		require.NoError(t, err)
		second, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "Nails"})
		require.NoError(t, err)

		assert.Equal(t, 1, first.OrderNumber)
		assert.Equal(t, 2, second.OrderNumber)
		assert.Equal(t, 1, first.Quantity)

		snap := engine.CurrentSnapshot()
		published := snap.FindList(list.ID)
		require.NotNil(t, published)
		require.Len(t, published.Items, 2)
		assert.Equal(t, "Screws", published.Items[0].Title)
		assert.Equal(t, "Nails", published.Items[1].Title)
	})

	t.Run("create item on missing list fails", func(t *testing.T) {
		_, err := engine.CreateItem(ctx, "no-such-list", models.CreateItemRequest{Title: "x"})
		assert.ErrorIs(t, err, models.ErrListNotFound)
	})

	t.Run("update item changes published fields", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Errands"})
		require.NoError(t, err)
		item, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "Post office"})
		require.NoError(t, err)

		crossed := true
		qty := 3
		updated, err := engine.UpdateItem(ctx, item.ID, models.UpdateItemRequest{
			IsCrossedOut: &crossed,
			Quantity:     &qty,
		})
		require.NoError(t, err)
		assert.True(t, updated.IsCrossedOut)
		assert.Equal(t, 3, updated.Quantity)
		assert.True(t, updated.ModifiedAt.After(item.CreatedAt) || updated.ModifiedAt.Equal(item.CreatedAt))

		published := engine.CurrentSnapshot().FindList(list.ID)
		require.NotNil(t, published)
		require.Len(t, published.Items, 1)
		assert.True(t, published.Items[0].IsCrossedOut)
	})

	t.Run("update item rejects invalid quantity", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Q"})
		require.NoError(t, err)
		item, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "thing"})
		require.NoError(t, err)

		qty := 0
		_, err = engine.UpdateItem(ctx, item.ID, models.UpdateItemRequest{Quantity: &qty})
		assert.ErrorIs(t, err, models.ErrItemQuantityInvalid)
	})

	t.Run("archive hides list from snapshot", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Old stuff"})
		require.NoError(t, err)

		archived, err := engine.ArchiveList(ctx, list.ID)
		require.NoError(t, err)
		assert.True(t, archived.IsArchived)
		assert.Nil(t, engine.CurrentSnapshot().FindList(list.ID))

		// Still in the store, just not published.
		row, err := store.stores().Lists.GetByID(ctx, list.ID)
		require.NoError(t, err)
		require.NotNil(t, row)
	})

	t.Run("image ordering survives a gap", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Recipes"})
		require.NoError(t, err)
		item, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "Lasagna"})
		require.NoError(t, err)

		first, err := engine.AddImage(ctx, item.ID, []byte{0x01})
		require.NoError(t, err)
		second, err := engine.AddImage(ctx, item.ID, []byte{0x02})
		require.NoError(t, err)
		third, err := engine.AddImage(ctx, item.ID, []byte{0x03})
		require.NoError(t, err)
		assert.Equal(t, 1, first.OrderNumber)
		assert.Equal(t, 2, second.OrderNumber)
		assert.Equal(t, 3, third.OrderNumber)

		// Deleting a non-last image leaves a gap; the next insert still
		// lands strictly after every surviving sibling.
		require.NoError(t, engine.DeleteImage(ctx, second.ID))
		fourth, err := engine.AddImage(ctx, item.ID, []byte{0x04})
		require.NoError(t, err)
		assert.Equal(t, 4, fourth.OrderNumber)

		images, err := store.stores().Images.GetByItem(ctx, item.ID)
		require.NoError(t, err)
		seen := make(map[int]bool)
		for _, img := range images {
			assert.False(t, seen[img.OrderNumber], "duplicate order number %d", img.OrderNumber)
			seen[img.OrderNumber] = true
		}
	})

	t.Run("purge removes list with items and images", func(t *testing.T) {
		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Doomed"})
		require.NoError(t, err)
		item, err := engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "photo"})
		require.NoError(t, err)
		_, err = engine.AddImage(ctx, item.ID, []byte{0x01, 0x02})
		require.NoError(t, err)

		require.NoError(t, engine.PurgeList(ctx, list.ID))

		assert.Nil(t, engine.CurrentSnapshot().FindList(list.ID))
		row, err := store.stores().Lists.GetByID(ctx, list.ID)
		require.NoError(t, err)
		assert.Nil(t, row)
		images, err := store.stores().Images.GetByItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Empty(t, images)
	})
}

func TestEngineLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lists := store.stores().Lists

	// Two rows sharing one id, as left behind by a sync race.
	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "list-x", Name: "Groceries", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base,
	}))
	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "list-x", Name: "Groceries renamed", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base.Add(10 * time.Second),
	}))

	require.NoError(t, engine.TriggerManualSync(ctx))

	snap := engine.CurrentSnapshot()
	require.Equal(t, 1, snap.ListCount())
	assert.Equal(t, "Groceries renamed", snap.Lists[0].Name)

	// The repair pass collapsed the store down to the surviving row.
	rows, err := lists.GetRowsByID(ctx, "list-x")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Groceries renamed", rows[0].Name)
}

func TestEngineDuplicateListKeepsChildren(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lists := store.stores().Lists
	items := store.stores().Items

	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "list-x", Name: "Groceries v2", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base.Add(5 * time.Second),
	}))
	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "list-x", Name: "Groceries v3", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base.Add(9 * time.Second),
	}))
	for i, title := range []string{"Milk", "Eggs", "Butter"} {
		require.NoError(t, items.Add(ctx, &models.Item{
			ID: title, ListID: "list-x", Title: title, Quantity: 1,
			OrderNumber: i + 1, CreatedAt: base, ModifiedAt: base,
		}))
	}

	require.NoError(t, engine.TriggerManualSync(ctx))

	snap := engine.CurrentSnapshot()
	require.Equal(t, 1, snap.ListCount())
	assert.Equal(t, "Groceries v3", snap.Lists[0].Name)
	// Items reference the list by id, so all three survive the collapse.
	require.Len(t, snap.Lists[0].Items, 3)

	rows, err := lists.GetRowsByID(ctx, "list-x")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Running reconciliation again must change nothing.
	require.NoError(t, engine.TriggerManualSync(ctx))
	snap = engine.CurrentSnapshot()
	require.Equal(t, 1, snap.ListCount())
	assert.Len(t, snap.Lists[0].Items, 3)
}

func TestEngineDuplicateTieBreaksOnSeq(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lists := store.stores().Lists

	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "tied", Name: "First row", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base,
	}))
	require.NoError(t, lists.Add(ctx, &models.List{
		ID: "tied", Name: "Second row", OrderNumber: 1,
		CreatedAt: base, ModifiedAt: base,
	}))

	require.NoError(t, engine.TriggerManualSync(ctx))

	rows, err := lists.GetRowsByID(ctx, "tied")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "First row", rows[0].Name)
}

func TestEngineFailSoft(t *testing.T) {
	ctx := context.Background()

	t.Run("empty snapshot falls back to starter content", func(t *testing.T) {
		store := newMemStore()
		store.failReads = true
		engine := startEngine(t, store, EngineOptions{SeedStarterContent: true})

		err := engine.TriggerManualSync(ctx)
		require.Error(t, err)
		var serr *models.StoreError
		assert.ErrorAs(t, err, &serr)

		snap := engine.CurrentSnapshot()
		assert.False(t, snap.IsEmpty())
		assert.Equal(t, "Groceries", snap.Lists[0].Name)
	})

	t.Run("existing snapshot is kept on store failure", func(t *testing.T) {
		store := newMemStore()
		engine := startEngine(t, store, EngineOptions{SeedStarterContent: true})

		list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Survivor"})
		require.NoError(t, err)

		store.mu.Lock()
		store.failReads = true
		store.mu.Unlock()

		require.Error(t, engine.TriggerManualSync(ctx))

		snap := engine.CurrentSnapshot()
		require.Equal(t, 1, snap.ListCount())
		assert.Equal(t, list.ID, snap.Lists[0].ID)
	})
}

func TestEngineSeedIfEmpty(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds an empty store", func(t *testing.T) {
		store := newMemStore()
		engine := startEngine(t, store, EngineOptions{SeedStarterContent: true})

		require.NoError(t, engine.SeedIfEmpty(ctx))

		snap := engine.CurrentSnapshot()
		require.Equal(t, 2, snap.ListCount())
		assert.Equal(t, "Groceries", snap.Lists[0].Name)
		assert.Equal(t, "To Do", snap.Lists[1].Name)
	})

	t.Run("leaves a populated store alone", func(t *testing.T) {
		store := newMemStore()
		engine := startEngine(t, store, EngineOptions{SeedStarterContent: true})

		_, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Mine"})
		require.NoError(t, err)

		require.NoError(t, engine.SeedIfEmpty(ctx))
		assert.Equal(t, 1, engine.CurrentSnapshot().ListCount())
	})

	t.Run("disabled seeding is a no-op", func(t *testing.T) {
		store := newMemStore()
		engine := startEngine(t, store, EngineOptions{})

		require.NoError(t, engine.SeedIfEmpty(ctx))
		count, err := store.stores().Lists.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestEngineRemoteChangeTriggersReconcile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{QuietWindow: 20 * time.Millisecond})

	// Data lands in the store behind the engine's back, then the cloud
	// relay signals.
	now := time.Now().UTC()
	require.NoError(t, store.stores().Lists.Add(ctx, &models.List{
		ID: "remote-1", Name: "From another replica", OrderNumber: 1,
		CreatedAt: now, ModifiedAt: now,
	}))
	assert.True(t, engine.CurrentSnapshot().IsEmpty())

	engine.NotifyRemoteChange(SourceCloud)

	require.Eventually(t, func() bool {
		return engine.CurrentSnapshot().ListCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEngineSubscribe(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	published := make(chan *models.Snapshot, 8)
	engine.Subscribe(func(s *models.Snapshot) {
		published <- s
	})

	_, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Watched"})
	require.NoError(t, err)

	select {
	case snap := <-published:
		assert.Equal(t, 1, snap.ListCount())
	case <-time.After(time.Second):
		t.Fatal("no snapshot published to subscriber")
	}
}

func TestEngineStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Status"})
	require.NoError(t, err)
	_, err = engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "a"})
	require.NoError(t, err)
	_, err = engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "b"})
	require.NoError(t, err)

	status := engine.Status()
	assert.Equal(t, 1, status.Lists)
	assert.Equal(t, 2, status.Items)
	assert.False(t, status.SnapshotAt.IsZero())
	assert.False(t, status.CompanionReachable)
	assert.Nil(t, status.LastCloudSyncAt)
}

func TestEnginePreferences(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := startEngine(t, store, EngineOptions{})

	t.Run("defaults before first save", func(t *testing.T) {
		prefs, err := engine.GetPreferences(ctx, "local")
		require.NoError(t, err)
		assert.Equal(t, models.SortManual, prefs.SortMode)
		assert.False(t, prefs.HideCrossedOut)
	})

	t.Run("partial update persists", func(t *testing.T) {
		mode := string(models.SortAlpha)
		hide := true
		prefs, err := engine.UpdatePreferences(ctx, "local", models.UserPreferencesRequest{
			SortMode:       &mode,
			HideCrossedOut: &hide,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SortAlpha, prefs.SortMode)
		assert.True(t, prefs.HideCrossedOut)

		reloaded, err := engine.GetPreferences(ctx, "local")
		require.NoError(t, err)
		assert.Equal(t, models.SortAlpha, reloaded.SortMode)
	})

	t.Run("invalid sort mode is rejected", func(t *testing.T) {
		mode := "upside_down"
		_, err := engine.UpdatePreferences(ctx, "local", models.UserPreferencesRequest{SortMode: &mode})
		assert.ErrorIs(t, err, models.ErrInvalidSortMode)
	})
}

type recordingCompanion struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *recordingCompanion) IsReachable() bool { return true }

func (c *recordingCompanion) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *recordingCompanion) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		return nil
	}
	return c.payloads[len(c.payloads)-1]
}

type recordingCloud struct {
	mu       sync.Mutex
	notified int
}

func (c *recordingCloud) NotifyChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified++
}

func (c *recordingCloud) LastSyncTimestamp() *time.Time { return nil }

func (c *recordingCloud) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified
}

// Transports are wired during startup, before the apply loop runs. A local
// mutation then reaches both replica links without any further setup.
func TestEngineTransportsWiredBeforeRun(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	engine := NewSyncEngine(store.stores(), nil, EngineOptions{QuietWindow: 20 * time.Millisecond})

	companion := &recordingCompanion{}
	cloud := &recordingCloud{}
	engine.SetCompanionTransport(companion)
	engine.SetCloudTransport(cloud)

	runCtx, cancel := context.WithCancel(context.Background())
	go engine.Run(runCtx)
	t.Cleanup(cancel)

	list, err := engine.CreateList(ctx, models.CreateListRequest{Name: "Groceries"})
	require.NoError(t, err)
	_, err = engine.CreateItem(ctx, list.ID, models.CreateItemRequest{Title: "Milk"})
	require.NoError(t, err)

	assert.Equal(t, 2, cloud.count())

	payload := companion.last()
	require.NotNil(t, payload)
	var snap models.CompanionSnapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	require.Len(t, snap.Lists, 1)
	assert.Equal(t, "Groceries", snap.Lists[0].Name)
	require.Len(t, snap.Lists[0].Items, 1)
	assert.Equal(t, "Milk", snap.Lists[0].Items[0].Title)
}

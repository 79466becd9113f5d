package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/repository"
)

// CloudTransport is the outward-facing side of the cloud relay link
type CloudTransport interface {
	// NotifyChanged tells the relay that local data changed. Best effort,
	// never blocks the caller.
	NotifyChanged()
	// LastSyncTimestamp returns when the relay last confirmed a sync,
	// or nil if it never has.
	LastSyncTimestamp() *time.Time
}

// CompanionTransport is the outward-facing side of the companion link
type CompanionTransport interface {
	IsReachable() bool
	Send(payload []byte) error
}

// EngineOptions tunes the sync engine
type EngineOptions struct {
	QuietWindow        time.Duration
	PayloadLimit       int
	SeedStarterContent bool
}

// SyncEngine owns every mutation of the store and of the published
// snapshot. All writes funnel through a single apply goroutine, so the
// store, the snapshot, and the companion push are never raced. Readers
// take the published snapshot without touching the apply path.
type SyncEngine struct {
	stores  *repository.Stores
	repair  *RepairService
	metrics *observability.SyncMetrics
	opts    EngineOptions

	cloud     CloudTransport
	companion CompanionTransport

	debounce *Debouncer
	apply    chan applyRequest

	snapMu   sync.RWMutex
	snapshot *models.Snapshot

	subMu       sync.Mutex
	subscribers []func(*models.Snapshot)
}

type applyRequest struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewSyncEngine creates the engine. Transports are attached afterward via
// SetCloudTransport and SetCompanionTransport because they need the engine
// for their inbound callbacks.
func NewSyncEngine(stores *repository.Stores, metrics *observability.SyncMetrics, opts EngineOptions) *SyncEngine {
	e := &SyncEngine{
		stores:   stores,
		repair:   NewRepairService(stores, metrics),
		metrics:  metrics,
		opts:     opts,
		apply:    make(chan applyRequest),
		snapshot: models.EmptySnapshot(),
	}
	e.debounce = NewDebouncer(opts.QuietWindow, func(trigger SignalSource) {
		err := e.Apply(context.Background(), func(ctx context.Context) error {
			return e.reconcile(ctx, string(trigger))
		})
		if err != nil {
			observability.Errorf("Debounced reconciliation failed: %v", err)
			return
		}
		if trigger != SourceCompanion {
			e.pushCompanion(context.Background())
		}
	})
	return e
}

// SetCloudTransport attaches the cloud relay link. Must be called before
// Run starts; the fields are read without locking once the apply loop and
// the debouncer timer are live.
func (e *SyncEngine) SetCloudTransport(t CloudTransport) {
	e.cloud = t
}

// SetCompanionTransport attaches the companion link. Same startup-only
// rule as SetCloudTransport.
func (e *SyncEngine) SetCompanionTransport(t CompanionTransport) {
	e.companion = t
}

// NotifyRemoteChange feeds a remote change signal into the debouncer.
// Safe from any goroutine; the reconciliation itself runs on the apply
// path once the quiet window elapses.
func (e *SyncEngine) NotifyRemoteChange(src SignalSource) {
	e.debounce.Notify(src)
}

// Run drives the apply loop until ctx is cancelled. Exactly one Run must
// be active for the lifetime of the engine.
func (e *SyncEngine) Run(ctx context.Context) {
	observability.Info("Sync engine apply loop started")
	for {
		select {
		case req := <-e.apply:
			req.done <- e.runApply(req.ctx, req.fn)
		case <-ctx.Done():
			e.debounce.Stop()
			observability.Info("Sync engine apply loop stopped")
			return
		}
	}
}

func (e *SyncEngine) runApply(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.Errorf("Apply closure panicked: %v", r)
			err = fmt.Errorf("apply panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Apply runs fn on the apply goroutine and waits for it to finish. The
// closure has exclusive access to the store and the snapshot while it
// runs. Never call Apply from within an Apply closure.
func (e *SyncEngine) Apply(ctx context.Context, fn func(ctx context.Context) error) error {
	req := applyRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case e.apply <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentSnapshot returns the last published snapshot
func (e *SyncEngine) CurrentSnapshot() *models.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.snapshot == nil {
		return models.EmptySnapshot()
	}
	return e.snapshot
}

// Subscribe registers a callback invoked with every newly published
// snapshot. Callbacks run on the apply goroutine and must not block.
func (e *SyncEngine) Subscribe(fn func(*models.Snapshot)) {
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, fn)
	e.subMu.Unlock()
}

func (e *SyncEngine) publish(snap *models.Snapshot) {
	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()

	e.subMu.Lock()
	subs := make([]func(*models.Snapshot), len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// reconcile re-derives the published snapshot from the store. Must run on
// the apply path. On store failure the previous snapshot stays published;
// an empty snapshot additionally falls back to starter content so a first
// run with a broken store still shows something usable.
func (e *SyncEngine) reconcile(ctx context.Context, trigger string) error {
	ctx, span := observability.StartServiceSpan(ctx, "sync_engine", "reconcile")
	defer span.End()
	start := time.Now()

	snap, collision, err := e.loadSnapshot(ctx)
	if err != nil {
		serr := &models.StoreError{Op: "reconcile", Cause: err}
		observability.Errorf("Reconciliation store fetch failed: %v", err)
		if e.CurrentSnapshot().IsEmpty() && e.opts.SeedStarterContent {
			observability.Warn("Store unavailable with empty snapshot, publishing starter content")
			e.publish(starterSnapshot())
		}
		observability.RecordError(span, serr)
		if e.metrics != nil {
			e.metrics.RecordReconcile(ctx, trigger, time.Since(start), serr)
		}
		return serr
	}

	if collision {
		collapsed, rerr := e.repair.RepairAll(ctx)
		if rerr != nil {
			observability.Errorf("Duplicate repair failed: %v", rerr)
		} else if collapsed > 0 {
			observability.Infof("Repair pass collapsed %d duplicate rows", collapsed)
			if fresh, _, lerr := e.loadSnapshot(ctx); lerr == nil {
				snap = fresh
			}
		}
	}

	e.publish(snap)
	observability.SetSuccess(span)
	if e.metrics != nil {
		e.metrics.RecordReconcile(ctx, trigger, time.Since(start), nil)
	}
	observability.Debugf("Reconciliation complete: %d lists, %d items (trigger: %s)",
		snap.ListCount(), snap.ItemCount(), trigger)
	return nil
}

// loadSnapshot fetches every active list with its items and images via
// explicit ordered queries. Duplicate ids are collapsed in memory, newest
// modifiedAt wins with smallest seq on a tie, and the collision is
// reported so the caller can schedule a repair pass.
func (e *SyncEngine) loadSnapshot(ctx context.Context) (*models.Snapshot, bool, error) {
	rows, err := e.stores.Lists.GetActive(ctx)
	if err != nil {
		return nil, false, err
	}

	collision := false
	byID := make(map[string]*models.List, len(rows))
	lists := make([]*models.List, 0, len(rows))
	for _, row := range rows {
		if prev, ok := byID[row.ID]; ok {
			collision = true
			if fresherList(row, prev) {
				*prev = *row
			}
			continue
		}
		cp := *row
		byID[cp.ID] = &cp
		lists = append(lists, &cp)
	}

	for _, list := range lists {
		itemRows, err := e.stores.Items.GetByList(ctx, list.ID)
		if err != nil {
			return nil, false, err
		}
		itemsByID := make(map[string]*models.Item, len(itemRows))
		items := make([]*models.Item, 0, len(itemRows))
		for _, row := range itemRows {
			if prev, ok := itemsByID[row.ID]; ok {
				collision = true
				if fresherItem(row, prev) {
					*prev = *row
				}
				continue
			}
			cp := *row
			itemsByID[cp.ID] = &cp
			items = append(items, &cp)
		}
		for _, item := range items {
			images, err := e.stores.Images.GetByItem(ctx, item.ID)
			if err != nil {
				return nil, false, err
			}
			item.Images = images
		}
		list.Items = items
	}

	return &models.Snapshot{Lists: lists, GeneratedAt: time.Now().UTC()}, collision, nil
}

func fresherList(a, b *models.List) bool {
	if !a.ModifiedAt.Equal(b.ModifiedAt) {
		return a.ModifiedAt.After(b.ModifiedAt)
	}
	return a.Seq < b.Seq
}

func fresherItem(a, b *models.Item) bool {
	if !a.ModifiedAt.Equal(b.ModifiedAt) {
		return a.ModifiedAt.After(b.ModifiedAt)
	}
	return a.Seq < b.Seq
}

// afterLocalMutation propagates a committed local write outward. Called
// off the apply path, after Apply has returned.
func (e *SyncEngine) afterLocalMutation(ctx context.Context) {
	if e.cloud != nil {
		e.cloud.NotifyChanged()
	}
	e.pushCompanion(ctx)
}

// pushCompanion sends the stripped snapshot to the companion if one is
// reachable. Failures are logged and swallowed: the companion link is
// best effort and never blocks local work.
func (e *SyncEngine) pushCompanion(ctx context.Context) {
	if e.companion == nil || !e.companion.IsReachable() {
		return
	}

	payload, err := json.Marshal(models.StripSnapshot(e.CurrentSnapshot()))
	if err != nil {
		observability.Errorf("Companion payload encode failed: %v", err)
		return
	}

	if e.opts.PayloadLimit > 0 && len(payload) > e.opts.PayloadLimit {
		observability.Warnf("Companion push skipped: payload %d bytes exceeds %d byte ceiling",
			len(payload), e.opts.PayloadLimit)
		if e.metrics != nil {
			e.metrics.RecordCompanionPush(ctx, false, len(payload))
		}
		return
	}

	if err := e.companion.Send(payload); err != nil {
		observability.Warnf("Companion push failed: %v", err)
		if e.metrics != nil {
			e.metrics.RecordCompanionPush(ctx, false, len(payload))
		}
		return
	}

	if e.metrics != nil {
		e.metrics.RecordCompanionPush(ctx, true, len(payload))
	}
}

// TriggerManualSync forces an immediate reconciliation and companion
// push, bypassing the debounce window
func (e *SyncEngine) TriggerManualSync(ctx context.Context) error {
	err := e.Apply(ctx, func(ctx context.Context) error {
		return e.reconcile(ctx, "manual")
	})
	if err != nil {
		return err
	}
	e.pushCompanion(ctx)
	return nil
}

// Status reports the current sync state for the status endpoint
func (e *SyncEngine) Status() models.SyncStatusResponse {
	snap := e.CurrentSnapshot()
	resp := models.SyncStatusResponse{
		Lists:      snap.ListCount(),
		Items:      snap.ItemCount(),
		SnapshotAt: snap.GeneratedAt,
	}
	if e.cloud != nil {
		resp.LastCloudSyncAt = e.cloud.LastSyncTimestamp()
	}
	if e.companion != nil {
		resp.CompanionReachable = e.companion.IsReachable()
	}
	return resp
}

// CreateList creates a new list at the end of the ordering
func (e *SyncEngine) CreateList(ctx context.Context, req models.CreateListRequest) (*models.List, error) {
	var created *models.List
	err := e.Apply(ctx, func(ctx context.Context) error {
		max, err := e.stores.Lists.MaxOrderNumber(ctx)
		if err != nil {
			return &models.StoreError{Op: "create list", Cause: err}
		}
		list, err := models.NewList(req.Name, max+1)
		if err != nil {
			return err
		}
		e.debounce.MarkLocalWrite()
		if err := e.stores.Lists.Add(ctx, list); err != nil {
			return &models.StoreError{Op: "create list", Cause: err}
		}
		created = list
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return nil, err
	}
	e.afterLocalMutation(ctx)
	return created, nil
}

// UpdateList applies a partial update to a list
func (e *SyncEngine) UpdateList(ctx context.Context, id string, req models.UpdateListRequest) (*models.List, error) {
	var updated *models.List
	err := e.Apply(ctx, func(ctx context.Context) error {
		list, err := e.stores.Lists.GetByID(ctx, id)
		if err != nil {
			return &models.StoreError{Op: "update list", Cause: err}
		}
		if list == nil {
			return models.ErrListNotFound
		}
		if req.Name != nil {
			list.Name = strings.TrimSpace(*req.Name)
		}
		if req.OrderNumber != nil {
			list.OrderNumber = *req.OrderNumber
		}
		if req.IsArchived != nil {
			list.IsArchived = *req.IsArchived
		}
		if err := list.Validate(); err != nil {
			return err
		}
		list.Touch()
		e.debounce.MarkLocalWrite()
		if err := e.stores.Lists.Update(ctx, list); err != nil {
			return &models.StoreError{Op: "update list", Cause: err}
		}
		updated = list
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return nil, err
	}
	e.afterLocalMutation(ctx)
	return updated, nil
}

// ArchiveList hides a list from the active snapshot without deleting it
func (e *SyncEngine) ArchiveList(ctx context.Context, id string) (*models.List, error) {
	archived := true
	return e.UpdateList(ctx, id, models.UpdateListRequest{IsArchived: &archived})
}

// PurgeList permanently deletes a list with all its items and images
func (e *SyncEngine) PurgeList(ctx context.Context, id string) error {
	err := e.Apply(ctx, func(ctx context.Context) error {
		list, err := e.stores.Lists.GetByID(ctx, id)
		if err != nil {
			return &models.StoreError{Op: "purge list", Cause: err}
		}
		if list == nil {
			return models.ErrListNotFound
		}
		e.debounce.MarkLocalWrite()
		err = e.stores.Transact(ctx, func(tx *repository.Stores) error {
			items, err := tx.Items.GetByList(ctx, id)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := tx.Images.DeleteByItem(ctx, item.ID); err != nil {
					return err
				}
			}
			if err := tx.Items.DeleteByList(ctx, id); err != nil {
				return err
			}
			return tx.Lists.Delete(ctx, id)
		})
		if err != nil {
			return &models.StoreError{Op: "purge list", Cause: err}
		}
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return err
	}
	e.afterLocalMutation(ctx)
	return nil
}

// CreateItem creates a new item at the end of the list's ordering
func (e *SyncEngine) CreateItem(ctx context.Context, listID string, req models.CreateItemRequest) (*models.Item, error) {
	var created *models.Item
	err := e.Apply(ctx, func(ctx context.Context) error {
		list, err := e.stores.Lists.GetByID(ctx, listID)
		if err != nil {
			return &models.StoreError{Op: "create item", Cause: err}
		}
		if list == nil {
			return models.ErrListNotFound
		}
		if list.IsArchived {
			return models.ErrListArchived
		}
		max, err := e.stores.Items.MaxOrderNumber(ctx, listID)
		if err != nil {
			return &models.StoreError{Op: "create item", Cause: err}
		}
		item, err := models.NewItem(listID, req.Title, max+1)
		if err != nil {
			return err
		}
		if req.Description != nil {
			item.Description = req.Description
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if err := item.Validate(); err != nil {
			return err
		}
		e.debounce.MarkLocalWrite()
		if err := e.stores.Items.Add(ctx, item); err != nil {
			return &models.StoreError{Op: "create item", Cause: err}
		}
		created = item
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return nil, err
	}
	e.afterLocalMutation(ctx)
	return created, nil
}

// UpdateItem applies a partial update to an item
func (e *SyncEngine) UpdateItem(ctx context.Context, id string, req models.UpdateItemRequest) (*models.Item, error) {
	var updated *models.Item
	err := e.Apply(ctx, func(ctx context.Context) error {
		item, err := e.stores.Items.GetByID(ctx, id)
		if err != nil {
			return &models.StoreError{Op: "update item", Cause: err}
		}
		if item == nil {
			return models.ErrItemNotFound
		}
		if req.Title != nil {
			item.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			item.Description = req.Description
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.OrderNumber != nil {
			item.OrderNumber = *req.OrderNumber
		}
		if req.IsCrossedOut != nil {
			item.IsCrossedOut = *req.IsCrossedOut
		}
		if err := item.Validate(); err != nil {
			return err
		}
		item.Touch()
		e.debounce.MarkLocalWrite()
		if err := e.stores.Items.Update(ctx, item); err != nil {
			return &models.StoreError{Op: "update item", Cause: err}
		}
		updated = item
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return nil, err
	}
	e.afterLocalMutation(ctx)
	return updated, nil
}

// DeleteItem permanently deletes an item and its images
func (e *SyncEngine) DeleteItem(ctx context.Context, id string) error {
	err := e.Apply(ctx, func(ctx context.Context) error {
		item, err := e.stores.Items.GetByID(ctx, id)
		if err != nil {
			return &models.StoreError{Op: "delete item", Cause: err}
		}
		if item == nil {
			return models.ErrItemNotFound
		}
		e.debounce.MarkLocalWrite()
		err = e.stores.Transact(ctx, func(tx *repository.Stores) error {
			if err := tx.Images.DeleteByItem(ctx, id); err != nil {
				return err
			}
			return tx.Items.Delete(ctx, id)
		})
		if err != nil {
			return &models.StoreError{Op: "delete item", Cause: err}
		}
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return err
	}
	e.afterLocalMutation(ctx)
	return nil
}

// AddImage attaches an image to an item at the end of its ordering
func (e *SyncEngine) AddImage(ctx context.Context, itemID string, data []byte) (*models.ItemImage, error) {
	var created *models.ItemImage
	err := e.Apply(ctx, func(ctx context.Context) error {
		item, err := e.stores.Items.GetByID(ctx, itemID)
		if err != nil {
			return &models.StoreError{Op: "add image", Cause: err}
		}
		if item == nil {
			return models.ErrItemNotFound
		}
		max, err := e.stores.Images.MaxOrderNumber(ctx, itemID)
		if err != nil {
			return &models.StoreError{Op: "add image", Cause: err}
		}
		image, err := models.NewItemImage(itemID, data, max+1)
		if err != nil {
			return err
		}
		e.debounce.MarkLocalWrite()
		if err := e.stores.Images.Add(ctx, image); err != nil {
			return &models.StoreError{Op: "add image", Cause: err}
		}
		created = image
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return nil, err
	}
	e.afterLocalMutation(ctx)
	return created, nil
}

// DeleteImage removes an image from an item
func (e *SyncEngine) DeleteImage(ctx context.Context, id string) error {
	err := e.Apply(ctx, func(ctx context.Context) error {
		image, err := e.stores.Images.GetByID(ctx, id)
		if err != nil {
			return &models.StoreError{Op: "delete image", Cause: err}
		}
		if image == nil {
			return models.ErrImageNotFound
		}
		e.debounce.MarkLocalWrite()
		if err := e.stores.Images.Delete(ctx, id); err != nil {
			return &models.StoreError{Op: "delete image", Cause: err}
		}
		return e.reconcile(ctx, "local")
	})
	if err != nil {
		return err
	}
	e.afterLocalMutation(ctx)
	return nil
}

// GetPreferences returns stored preferences, falling back to defaults
// when none have been saved yet
func (e *SyncEngine) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	prefs, err := e.stores.Prefs.Get(ctx, userID)
	if err == models.ErrPreferencesNotFound {
		return models.NewUserPreferences(userID), nil
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get preferences", Cause: err}
	}
	return prefs, nil
}

// UpdatePreferences applies a partial preferences update
func (e *SyncEngine) UpdatePreferences(ctx context.Context, userID string, req models.UserPreferencesRequest) (*models.UserPreferences, error) {
	var updated *models.UserPreferences
	err := e.Apply(ctx, func(ctx context.Context) error {
		prefs, err := e.stores.Prefs.Get(ctx, userID)
		if err == models.ErrPreferencesNotFound {
			prefs = models.NewUserPreferences(userID)
		} else if err != nil {
			return &models.StoreError{Op: "update preferences", Cause: err}
		}
		if req.SortMode != nil {
			prefs.SortMode = models.SortMode(*req.SortMode)
		}
		if req.HideCrossedOut != nil {
			prefs.HideCrossedOut = *req.HideCrossedOut
		}
		if req.ShowArchived != nil {
			prefs.ShowArchived = *req.ShowArchived
		}
		if err := prefs.Validate(); err != nil {
			return err
		}
		e.debounce.MarkLocalWrite()
		if err := e.stores.Prefs.CreateOrUpdate(ctx, prefs); err != nil {
			return &models.StoreError{Op: "update preferences", Cause: err}
		}
		updated = prefs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

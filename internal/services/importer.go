package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/repository"
)

// ProgressFunc receives incremental counts while an import runs
type ProgressFunc func(models.ImportProgress)

// Importer applies external snapshot files to the store. Every applied
// import runs on the engine's apply path, so it never races a
// reconciliation or another mutation, and it finishes with a forced
// reconciliation so callers observe the imported state immediately.
type Importer struct {
	stores  *repository.Stores
	engine  *SyncEngine
	metrics *observability.SyncMetrics
}

// NewImporter creates an importer bound to the engine
func NewImporter(stores *repository.Stores, engine *SyncEngine, metrics *observability.SyncMetrics) *Importer {
	return &Importer{stores: stores, engine: engine, metrics: metrics}
}

// Import decodes, validates and applies an external snapshot using the
// given strategy. Cancelling ctx between list units abandons the rest of
// a merge or append without rolling back what already landed; a replace
// runs in one transaction and aborts whole.
func (im *Importer) Import(ctx context.Context, data []byte, strategy models.MergeStrategy, progress ProgressFunc) (*models.ImportResult, error) {
	snap, err := im.decode(ctx, data, strategy, false)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{Strategy: strategy}
	err = im.engine.Apply(ctx, func(ctx context.Context) error {
		im.engine.debounce.MarkLocalWrite()
		tracker := newProgressTracker(progress, snap)
		switch strategy {
		case models.StrategyReplace:
			if err := im.applyReplace(ctx, snap, result, tracker); err != nil {
				return err
			}
		case models.StrategyMerge:
			if err := im.runMerge(ctx, im.stores, snap, result, tracker, true); err != nil {
				return err
			}
		case models.StrategyAppend:
			if err := im.applyAppend(ctx, snap, result, tracker); err != nil {
				return err
			}
		}
		return im.engine.reconcile(ctx, "import")
	})
	if im.metrics != nil {
		im.metrics.RecordImport(ctx, string(strategy), false, err == nil)
	}
	if err != nil {
		return nil, err
	}

	observability.Infof("Import applied (%s): %d lists created, %d updated, %d deleted; %d items created, %d updated, %d deleted",
		strategy, result.ListsCreated, result.ListsUpdated, result.ListsDeleted,
		result.ItemsCreated, result.ItemsUpdated, result.ItemsDeleted)
	im.engine.afterLocalMutation(ctx)
	return result, nil
}

// Preview computes what an import would do without mutating anything. It
// shares the comparison logic with Import, so the preview of a merge
// reports exactly the conflicts the apply would record.
func (im *Importer) Preview(ctx context.Context, data []byte, strategy models.MergeStrategy) (*models.ImportPreview, error) {
	snap, err := im.decode(ctx, data, strategy, true)
	if err != nil {
		return nil, err
	}

	preview := &models.ImportPreview{
		ImportResult: models.ImportResult{Strategy: strategy},
		TotalLists:   len(snap.Lists),
		TotalItems:   snap.TotalItems(),
	}

	err = im.engine.Apply(ctx, func(ctx context.Context) error {
		switch strategy {
		case models.StrategyReplace:
			return im.previewReplace(ctx, snap, &preview.ImportResult)
		case models.StrategyMerge:
			return im.runMerge(ctx, im.stores, snap, &preview.ImportResult, nil, false)
		case models.StrategyAppend:
			preview.ListsCreated = len(snap.Lists)
			preview.ItemsCreated = snap.TotalItems()
			return nil
		}
		return nil
	})
	if im.metrics != nil {
		im.metrics.RecordImport(ctx, string(strategy), true, err == nil)
	}
	if err != nil {
		return nil, err
	}
	return preview, nil
}

func (im *Importer) decode(ctx context.Context, data []byte, strategy models.MergeStrategy, preview bool) (*models.ExportSnapshot, error) {
	if !models.IsValidStrategy(string(strategy)) {
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
	snap, err := models.DecodeExportSnapshot(data)
	if err != nil {
		if im.metrics != nil {
			im.metrics.RecordImport(ctx, string(strategy), preview, false)
		}
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		if im.metrics != nil {
			im.metrics.RecordImport(ctx, string(strategy), preview, false)
		}
		return nil, err
	}
	return snap, nil
}

func (im *Importer) applyReplace(ctx context.Context, snap *models.ExportSnapshot, res *models.ImportResult, tracker *progressTracker) error {
	err := im.stores.Transact(ctx, func(tx *repository.Stores) error {
		existing, err := tx.Lists.GetAll(ctx)
		if err != nil {
			return err
		}
		itemCount, err := tx.Items.Count(ctx)
		if err != nil {
			return err
		}
		for _, l := range existing {
			res.Conflicts = append(res.Conflicts, models.ConflictEntry{
				Kind: models.ConflictDeleted, ListID: l.ID,
			})
		}
		res.ListsDeleted = len(existing)
		res.ItemsDeleted = itemCount

		if err := tx.Images.DeleteAll(ctx); err != nil {
			return err
		}
		if err := tx.Items.DeleteAll(ctx); err != nil {
			return err
		}
		if err := tx.Lists.DeleteAll(ctx); err != nil {
			return err
		}

		for _, el := range snap.Lists {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := createImportedList(ctx, tx, el, el.OrderNumber, false, res); err != nil {
				return err
			}
			tracker.listDone(len(el.Items))
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &models.StoreError{Op: "import replace", Cause: err}
	}
	return nil
}

func (im *Importer) previewReplace(ctx context.Context, snap *models.ExportSnapshot, res *models.ImportResult) error {
	existing, err := im.stores.Lists.GetAll(ctx)
	if err != nil {
		return &models.StoreError{Op: "import preview", Cause: err}
	}
	itemCount, err := im.stores.Items.Count(ctx)
	if err != nil {
		return &models.StoreError{Op: "import preview", Cause: err}
	}
	for _, l := range existing {
		res.Conflicts = append(res.Conflicts, models.ConflictEntry{
			Kind: models.ConflictDeleted, ListID: l.ID,
		})
	}
	res.ListsDeleted = len(existing)
	res.ItemsDeleted = itemCount
	res.ListsCreated = len(snap.Lists)
	res.ItemsCreated = snap.TotalItems()
	return nil
}

func (im *Importer) applyAppend(ctx context.Context, snap *models.ExportSnapshot, res *models.ImportResult, tracker *progressTracker) error {
	max, err := im.stores.Lists.MaxOrderNumber(ctx)
	if err != nil {
		return &models.StoreError{Op: "import append", Cause: err}
	}
	for i, el := range snap.Lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := createImportedList(ctx, im.stores, el, max+i+1, true, res); err != nil {
			return &models.StoreError{Op: "import append", Cause: err}
		}
		tracker.listDone(len(el.Items))
	}
	return nil
}

// createImportedList inserts an export list with its items and images.
// With freshIDs set every record gets a newly generated id, so appended
// content can never collide with what is already stored.
func createImportedList(ctx context.Context, s *repository.Stores, el models.ExportList, orderNumber int, freshIDs bool, res *models.ImportResult) error {
	list := el.ToList()
	list.OrderNumber = orderNumber
	if freshIDs {
		list.ID = uuid.New().String()
	}
	if err := s.Lists.Add(ctx, list); err != nil {
		return err
	}
	res.ListsCreated++

	for _, ei := range el.Items {
		item := ei.ToItem(list.ID)
		if freshIDs {
			item.ID = uuid.New().String()
		}
		if err := s.Items.Add(ctx, item); err != nil {
			return err
		}
		res.ItemsCreated++

		for _, eimg := range ei.Images {
			image := &models.ItemImage{
				ID:          eimg.ID,
				ItemID:      item.ID,
				Data:        eimg.Data,
				OrderNumber: eimg.OrderNumber,
				CreatedAt:   eimg.CreatedAt,
			}
			if freshIDs {
				image.ID = uuid.New().String()
			}
			if err := s.Images.Add(ctx, image); err != nil {
				return err
			}
			res.ImagesCreated++
		}
	}
	return nil
}

// runMerge walks the incoming snapshot against the store: create where
// the id is absent, update-in-place where present, never delete. With
// mutate false it only records what would happen, which is exactly the
// preview. Conflict entries are informational and never block.
func (im *Importer) runMerge(ctx context.Context, s *repository.Stores, snap *models.ExportSnapshot, res *models.ImportResult, tracker *progressTracker, mutate bool) error {
	for _, el := range snap.Lists {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := s.Lists.GetByID(ctx, el.ID)
		if err != nil {
			return &models.StoreError{Op: "import merge", Cause: err}
		}

		if local == nil {
			if mutate {
				if err := createImportedList(ctx, s, el, el.OrderNumber, false, res); err != nil {
					return &models.StoreError{Op: "import merge", Cause: err}
				}
			} else {
				res.ListsCreated++
				res.ItemsCreated += len(el.Items)
				for _, ei := range el.Items {
					res.ImagesCreated += len(ei.Images)
				}
			}
			tracker.listDone(len(el.Items))
			continue
		}

		changed := false
		changed = diffField(res, el.ID, "", "name", local.Name, el.Name) || changed
		changed = diffField(res, el.ID, "", "orderNumber", strconv.Itoa(local.OrderNumber), strconv.Itoa(el.OrderNumber)) || changed
		changed = diffField(res, el.ID, "", "isArchived", strconv.FormatBool(local.IsArchived), strconv.FormatBool(el.IsArchived)) || changed
		if changed {
			res.ListsUpdated++
			if mutate {
				local.Name = el.Name
				local.OrderNumber = el.OrderNumber
				local.IsArchived = el.IsArchived
				local.ModifiedAt = mergeTimestamp(local.ModifiedAt, el.ModifiedAt)
				if err := s.Lists.Update(ctx, local); err != nil {
					return &models.StoreError{Op: "import merge", Cause: err}
				}
			}
		}

		if err := im.mergeListItems(ctx, s, el, res, mutate); err != nil {
			return err
		}
		tracker.listDone(len(el.Items))
	}
	return nil
}

func (im *Importer) mergeListItems(ctx context.Context, s *repository.Stores, el models.ExportList, res *models.ImportResult, mutate bool) error {
	localItems, err := s.Items.GetByList(ctx, el.ID)
	if err != nil {
		return &models.StoreError{Op: "import merge", Cause: err}
	}
	localByID := make(map[string]*models.Item, len(localItems))
	for _, it := range localItems {
		localByID[it.ID] = it
	}

	for _, ei := range el.Items {
		local, ok := localByID[ei.ID]
		if !ok {
			res.ItemsCreated++
			res.ImagesCreated += len(ei.Images)
			if mutate {
				if err := s.Items.Add(ctx, ei.ToItem(el.ID)); err != nil {
					return &models.StoreError{Op: "import merge", Cause: err}
				}
				for _, eimg := range ei.Images {
					image := &models.ItemImage{
						ID:          eimg.ID,
						ItemID:      ei.ID,
						Data:        eimg.Data,
						OrderNumber: eimg.OrderNumber,
						CreatedAt:   eimg.CreatedAt,
					}
					if err := s.Images.Add(ctx, image); err != nil {
						return &models.StoreError{Op: "import merge", Cause: err}
					}
				}
			}
			continue
		}

		changed := false
		changed = diffField(res, el.ID, ei.ID, "title", local.Title, ei.Title) || changed
		changed = diffField(res, el.ID, ei.ID, "description", strVal(local.Description), strVal(ei.Description)) || changed
		changed = diffField(res, el.ID, ei.ID, "quantity", strconv.Itoa(local.Quantity), strconv.Itoa(ei.Quantity)) || changed
		changed = diffField(res, el.ID, ei.ID, "orderNumber", strconv.Itoa(local.OrderNumber), strconv.Itoa(ei.OrderNumber)) || changed
		changed = diffField(res, el.ID, ei.ID, "isCrossedOut", strconv.FormatBool(local.IsCrossedOut), strconv.FormatBool(ei.IsCrossedOut)) || changed
		if changed {
			res.ItemsUpdated++
			if mutate {
				local.Title = ei.Title
				local.Description = ei.Description
				local.Quantity = ei.Quantity
				local.OrderNumber = ei.OrderNumber
				local.IsCrossedOut = ei.IsCrossedOut
				local.ModifiedAt = mergeTimestamp(local.ModifiedAt, ei.ModifiedAt)
				if err := s.Items.Update(ctx, local); err != nil {
					return &models.StoreError{Op: "import merge", Cause: err}
				}
			}
		}
	}
	return nil
}

// mergeTimestamp picks the modifiedAt for a record a merge import just
// rewrote. modifiedAt never moves backwards, so importing an older
// partial backup cannot leave a record looking staler than the version
// a later sync round compares against.
func mergeTimestamp(current, incoming time.Time) time.Time {
	ts := time.Now().UTC()
	if current.After(ts) {
		ts = current
	}
	if incoming.After(ts) {
		ts = incoming
	}
	return ts
}

func diffField(res *models.ImportResult, listID, itemID, field, before, after string) bool {
	if before == after {
		return false
	}
	res.Conflicts = append(res.Conflicts, models.ConflictEntry{
		Kind:   models.ConflictUpdated,
		ListID: listID,
		ItemID: itemID,
		Field:  field,
		Before: before,
		After:  after,
	})
	return true
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

type progressTracker struct {
	fn   ProgressFunc
	prog models.ImportProgress
}

func newProgressTracker(fn ProgressFunc, snap *models.ExportSnapshot) *progressTracker {
	return &progressTracker{
		fn: fn,
		prog: models.ImportProgress{
			TotalLists: len(snap.Lists),
			TotalItems: snap.TotalItems(),
		},
	}
}

// listDone reports one completed list unit. Nil trackers are valid so
// preview paths can share code without wiring a callback.
func (t *progressTracker) listDone(items int) {
	if t == nil {
		return
	}
	t.prog.ListsProcessed++
	t.prog.ItemsProcessed += items
	if t.fn != nil {
		t.fn(t.prog)
	}
}

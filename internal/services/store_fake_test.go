package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/repository"
)

// memStore is an in-memory stand-in for the SQL repositories. It keeps
// the same row semantics the real store has: rows carry a seq, ids are
// not unique, and reads order the same way the SQL queries do.
type memStore struct {
	mu      sync.Mutex
	nextSeq int64

	lists  []*models.List
	items  []*models.Item
	images []*models.ItemImage
	prefs  map[string]*models.UserPreferences

	failReads bool
}

func newMemStore() *memStore {
	return &memStore{prefs: make(map[string]*models.UserPreferences)}
}

var errStoreDown = errors.New("store unavailable")

func (m *memStore) stores() *repository.Stores {
	return &repository.Stores{
		Lists:  &memListRepo{m},
		Items:  &memItemRepo{m},
		Images: &memImageRepo{m},
		Prefs:  &memPrefsRepo{m},
	}
}

func (m *memStore) seq() int64 {
	m.nextSeq++
	return m.nextSeq
}

func copyList(l *models.List) *models.List {
	cp := *l
	cp.Items = nil
	return &cp
}

func copyItem(i *models.Item) *models.Item {
	cp := *i
	cp.Images = nil
	return &cp
}

type memListRepo struct{ s *memStore }

func (r *memListRepo) GetActive(ctx context.Context) ([]*models.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	var out []*models.List
	for _, l := range r.s.lists {
		if !l.IsArchived {
			out = append(out, copyList(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *memListRepo) GetAll(ctx context.Context) ([]*models.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	out := make([]*models.List, 0, len(r.s.lists))
	for _, l := range r.s.lists {
		out = append(out, copyList(l))
	}
	return out, nil
}

func (r *memListRepo) GetByID(ctx context.Context, id string) (*models.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	var best *models.List
	for _, l := range r.s.lists {
		if l.ID != id {
			continue
		}
		if best == nil || l.ModifiedAt.After(best.ModifiedAt) ||
			(l.ModifiedAt.Equal(best.ModifiedAt) && l.Seq < best.Seq) {
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyList(best), nil
}

func (r *memListRepo) GetRowsByID(ctx context.Context, id string) ([]*models.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.List
	for _, l := range r.s.lists {
		if l.ID == id {
			out = append(out, copyList(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *memListRepo) DuplicateIDs(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int)
	for _, l := range r.s.lists {
		counts[l.ID]++
	}
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memListRepo) Add(ctx context.Context, list *models.List) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := copyList(list)
	cp.Seq = r.s.seq()
	r.s.lists = append(r.s.lists, cp)
	return nil
}

func (r *memListRepo) Update(ctx context.Context, list *models.List) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.lists {
		if l.ID == list.ID {
			l.Name = list.Name
			l.OrderNumber = list.OrderNumber
			l.IsArchived = list.IsArchived
			l.ModifiedAt = list.ModifiedAt
		}
	}
	return nil
}

func (r *memListRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.lists[:0]
	for _, l := range r.s.lists {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	r.s.lists = kept
	return nil
}

func (r *memListRepo) DeleteRow(ctx context.Context, seq int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.lists[:0]
	for _, l := range r.s.lists {
		if l.Seq != seq {
			kept = append(kept, l)
		}
	}
	r.s.lists = kept
	return nil
}

func (r *memListRepo) DeleteAll(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lists = nil
	return nil
}

func (r *memListRepo) MaxOrderNumber(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, l := range r.s.lists {
		if l.OrderNumber > max {
			max = l.OrderNumber
		}
	}
	return max, nil
}

func (r *memListRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return 0, errStoreDown
	}
	return len(r.s.lists), nil
}

type memItemRepo struct{ s *memStore }

func (r *memItemRepo) GetByList(ctx context.Context, listID string) ([]*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	var out []*models.Item
	for _, i := range r.s.items {
		if i.ListID == listID {
			out = append(out, copyItem(i))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *memItemRepo) GetByID(ctx context.Context, id string) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	var best *models.Item
	for _, i := range r.s.items {
		if i.ID != id {
			continue
		}
		if best == nil || i.ModifiedAt.After(best.ModifiedAt) ||
			(i.ModifiedAt.Equal(best.ModifiedAt) && i.Seq < best.Seq) {
			best = i
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyItem(best), nil
}

func (r *memItemRepo) GetRowsByID(ctx context.Context, id string) ([]*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Item
	for _, i := range r.s.items {
		if i.ID == id {
			out = append(out, copyItem(i))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *memItemRepo) DuplicateIDs(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int)
	for _, i := range r.s.items {
		counts[i.ID]++
	}
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memItemRepo) Add(ctx context.Context, item *models.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := copyItem(item)
	cp.Seq = r.s.seq()
	r.s.items = append(r.s.items, cp)
	return nil
}

func (r *memItemRepo) Update(ctx context.Context, item *models.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.items {
		if i.ID == item.ID {
			i.ListID = item.ListID
			i.Title = item.Title
			i.Description = item.Description
			i.Quantity = item.Quantity
			i.OrderNumber = item.OrderNumber
			i.IsCrossedOut = item.IsCrossedOut
			i.ModifiedAt = item.ModifiedAt
		}
	}
	return nil
}

func (r *memItemRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.items[:0]
	for _, i := range r.s.items {
		if i.ID != id {
			kept = append(kept, i)
		}
	}
	r.s.items = kept
	return nil
}

func (r *memItemRepo) DeleteRow(ctx context.Context, seq int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.items[:0]
	for _, i := range r.s.items {
		if i.Seq != seq {
			kept = append(kept, i)
		}
	}
	r.s.items = kept
	return nil
}

func (r *memItemRepo) DeleteByList(ctx context.Context, listID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.items[:0]
	for _, i := range r.s.items {
		if i.ListID != listID {
			kept = append(kept, i)
		}
	}
	r.s.items = kept
	return nil
}

func (r *memItemRepo) DeleteAll(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.items = nil
	return nil
}

func (r *memItemRepo) MaxOrderNumber(ctx context.Context, listID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, i := range r.s.items {
		if i.ListID == listID && i.OrderNumber > max {
			max = i.OrderNumber
		}
	}
	return max, nil
}

func (r *memItemRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.items), nil
}

type memImageRepo struct{ s *memStore }

func (r *memImageRepo) GetByItem(ctx context.Context, itemID string) ([]*models.ItemImage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failReads {
		return nil, errStoreDown
	}
	var out []*models.ItemImage
	for _, img := range r.s.images {
		if img.ItemID == itemID {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderNumber < out[j].OrderNumber
	})
	return out, nil
}

func (r *memImageRepo) GetByID(ctx context.Context, id string) (*models.ItemImage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, img := range r.s.images {
		if img.ID == id {
			cp := *img
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memImageRepo) CountByItem(ctx context.Context, itemID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, img := range r.s.images {
		if img.ItemID == itemID {
			count++
		}
	}
	return count, nil
}

func (r *memImageRepo) MaxOrderNumber(ctx context.Context, itemID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, img := range r.s.images {
		if img.ItemID == itemID && img.OrderNumber > max {
			max = img.OrderNumber
		}
	}
	return max, nil
}

func (r *memImageRepo) Add(ctx context.Context, image *models.ItemImage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *image
	r.s.images = append(r.s.images, &cp)
	return nil
}

func (r *memImageRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.images[:0]
	for _, img := range r.s.images {
		if img.ID != id {
			kept = append(kept, img)
		}
	}
	r.s.images = kept
	return nil
}

func (r *memImageRepo) DeleteByItem(ctx context.Context, itemID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.images[:0]
	for _, img := range r.s.images {
		if img.ItemID != itemID {
			kept = append(kept, img)
		}
	}
	r.s.images = kept
	return nil
}

func (r *memImageRepo) DeleteAll(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.images = nil
	return nil
}

type memPrefsRepo struct{ s *memStore }

func (r *memPrefsRepo) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prefs[userID]
	if !ok {
		return nil, models.ErrPreferencesNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPrefsRepo) CreateOrUpdate(ctx context.Context, prefs *models.UserPreferences) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *prefs
	r.s.prefs[prefs.UserID] = &cp
	return nil
}

func (r *memPrefsRepo) Delete(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.prefs[userID]; !ok {
		return models.ErrPreferencesNotFound
	}
	delete(r.s.prefs, userID)
	return nil
}

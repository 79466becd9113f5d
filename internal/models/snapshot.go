package models

import "time"

// Snapshot is the published in-memory view of the store. It is built by
// the reconciliation engine on the apply path and must be treated as
// read-only by every observer.
type Snapshot struct {
	Lists       []*List   `json:"lists"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// EmptySnapshot returns a snapshot with no lists
func EmptySnapshot() *Snapshot {
	return &Snapshot{GeneratedAt: time.Now().UTC()}
}

// IsEmpty reports whether the snapshot holds no lists
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Lists) == 0
}

// FindList returns the list with the given id, or nil
func (s *Snapshot) FindList(id string) *List {
	if s == nil {
		return nil
	}
	for _, l := range s.Lists {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// ListCount returns the number of lists in the snapshot
func (s *Snapshot) ListCount() int {
	if s == nil {
		return 0
	}
	return len(s.Lists)
}

// ItemCount returns the total number of items across all lists
func (s *Snapshot) ItemCount() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, l := range s.Lists {
		total += len(l.Items)
	}
	return total
}

package models

import "time"

// CompanionSnapshot is the stripped payload exchanged with the paired
// companion device. Image payloads are replaced by a count so the message
// stays within the link's size ceiling.
type CompanionSnapshot struct {
	Lists  []CompanionList `json:"lists"`
	SentAt time.Time       `json:"sentAt"`
}

// CompanionList mirrors List without images
type CompanionList struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	OrderNumber int             `json:"orderNumber"`
	IsArchived  bool            `json:"isArchived"`
	CreatedAt   time.Time       `json:"createdAt"`
	ModifiedAt  time.Time       `json:"modifiedAt"`
	Items       []CompanionItem `json:"items"`
}

// CompanionItem mirrors Item with image payloads reduced to a count
type CompanionItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	Quantity     int       `json:"quantity"`
	OrderNumber  int       `json:"orderNumber"`
	IsCrossedOut bool      `json:"isCrossedOut"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	ImageCount   int       `json:"imageCount"`
}

// IsEmpty reports whether the incoming payload carries no lists. An empty
// payload must never be interpreted as delete-everything.
func (s *CompanionSnapshot) IsEmpty() bool {
	return s == nil || len(s.Lists) == 0
}

// StripSnapshot converts a published snapshot into the companion payload
func StripSnapshot(snap *Snapshot) *CompanionSnapshot {
	out := &CompanionSnapshot{SentAt: time.Now().UTC()}
	if snap == nil {
		return out
	}
	for _, l := range snap.Lists {
		cl := CompanionList{
			ID:          l.ID,
			Name:        l.Name,
			OrderNumber: l.OrderNumber,
			IsArchived:  l.IsArchived,
			CreatedAt:   l.CreatedAt,
			ModifiedAt:  l.ModifiedAt,
			Items:       make([]CompanionItem, 0, len(l.Items)),
		}
		for _, it := range l.Items {
			cl.Items = append(cl.Items, CompanionItem{
				ID:           it.ID,
				Title:        it.Title,
				Description:  it.Description,
				Quantity:     it.Quantity,
				OrderNumber:  it.OrderNumber,
				IsCrossedOut: it.IsCrossedOut,
				CreatedAt:    it.CreatedAt,
				ModifiedAt:   it.ModifiedAt,
				ImageCount:   len(it.Images),
			})
		}
		out.Lists = append(out.Lists, cl)
	}
	return out
}

// ToItem converts a companion item into a store item for the given list
func (ci CompanionItem) ToItem(listID string) *Item {
	return &Item{
		ID:           ci.ID,
		ListID:       listID,
		Title:        ci.Title,
		Description:  ci.Description,
		Quantity:     ci.Quantity,
		OrderNumber:  ci.OrderNumber,
		IsCrossedOut: ci.IsCrossedOut,
		CreatedAt:    ci.CreatedAt,
		ModifiedAt:   ci.ModifiedAt,
	}
}

// ToList converts a companion list (without items) into a store list
func (cl CompanionList) ToList() *List {
	return &List{
		ID:          cl.ID,
		Name:        cl.Name,
		OrderNumber: cl.OrderNumber,
		IsArchived:  cl.IsArchived,
		CreatedAt:   cl.CreatedAt,
		ModifiedAt:  cl.ModifiedAt,
	}
}

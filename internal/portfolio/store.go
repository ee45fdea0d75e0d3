package portfolio

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrIDExhausted is returned when evidence id generation keeps colliding past
// the retry bound. Callers must fail the creation rather than reuse an id.
var ErrIDExhausted = errors.New("evidence id generation exhausted retries")

const maxIDAttempts = 32

// Store is the in-memory evidence collection for one trainee's workbook.
// It is not safe for concurrent use; the owning service serializes access.
type Store struct {
	items   []EvidenceItem
	counter uint64
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Items returns the collection newest-first. The slice is a copy; the records
// share no mutable state with the store because Upsert replaces them wholesale.
func (s *Store) Items() []EvidenceItem {
	out := make([]EvidenceItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	return len(s.items)
}

// Get looks up an evidence item by id.
func (s *Store) Get(id string) (EvidenceItem, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

// GetByType looks up an evidence item by id and form type. Used for
// edit-vs-create resolution when opening a form.
func (s *Store) GetByType(id string, formType FormType) (EvidenceItem, bool) {
	item, ok := s.Get(id)
	if !ok || item.Type != formType {
		return EvidenceItem{}, false
	}
	return item, true
}

// ActiveMSF returns the MSF record currently in Draft or Submitted status, if
// any. At most one such record exists at a time.
func (s *Store) ActiveMSF() (EvidenceItem, bool) {
	for _, item := range s.items {
		if item.Type == TypeMSF && (item.Status == StatusDraft || item.Status == StatusSubmitted) {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

// Upsert merges the patch into the record matching its id, or creates a new
// fully-populated record when no id matches. New records are prepended.
func (s *Store) Upsert(p Patch) (EvidenceItem, error) {
	if p.ID != "" {
		for i, item := range s.items {
			if item.ID == p.ID {
				s.items[i] = merge(item, p)
				return s.items[i], nil
			}
		}
	}

	id, err := s.nextID()
	if err != nil {
		return EvidenceItem{}, err
	}

	item := EvidenceItem{
		ID:        id,
		Type:      TypeOther,
		Status:    StatusDraft,
		Title:     "Untitled evidence",
		CreatedAt: s.now(),
	}
	item = merge(item, p)
	item.ID = id

	s.items = append([]EvidenceItem{item}, s.items...)
	return item, nil
}

// merge applies non-zero patch fields over the existing record. Payload keys
// merge individually so fields absent from the patch survive.
func merge(item EvidenceItem, p Patch) EvidenceItem {
	if p.Type != "" {
		item.Type = NormalizeType(p.Type)
	}
	if p.Status != "" && p.Status != StatusReadOnly {
		item.Status = p.Status
	}
	if p.Title != "" {
		item.Title = p.Title
	}
	if p.Level != "" {
		item.Level = p.Level
	}
	if len(p.Payload) > 0 {
		if item.Payload == nil {
			item.Payload = make(map[string]any, len(p.Payload))
		} else {
			copied := make(map[string]any, len(item.Payload)+len(p.Payload))
			for k, v := range item.Payload {
				copied[k] = v
			}
			item.Payload = copied
		}
		for k, v := range p.Payload {
			item.Payload[k] = v
		}
	}
	if p.Respondents != nil {
		item.Respondents = append([]string(nil), p.Respondents...)
	}
	return item
}

// nextID combines a monotonic counter, a time component and random entropy,
// then verifies the result against the collection. Rapid sequential creation
// within the same millisecond stays collision-free through the counter.
func (s *Store) nextID() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		s.counter++
		candidate := fmt.Sprintf("ev-%d-%d-%s", s.now().UnixMilli(), s.counter, randomHex(4))
		if _, exists := s.Get(candidate); !exists {
			return candidate, nil
		}
	}
	return "", ErrIDExhausted
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

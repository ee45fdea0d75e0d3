package app

import (
	"context"
	"log"
	"strings"

	"portfolio/api/internal/nav"
	"portfolio/api/internal/portfolio"
	"portfolio/api/internal/search"
)

// WorkbookState is the full controller state returned after every workbook
// operation. Notice is consumed on read; it appears exactly once.
type WorkbookState struct {
	View       nav.View                 `json:"view"`
	Params     nav.FormParams           `json:"params"`
	Notice     string                   `json:"notice,omitempty"`
	Selecting  bool                     `json:"selecting"`
	PendingKey string                   `json:"pendingKey,omitempty"`
	Evidence   []portfolio.EvidenceItem `json:"evidence"`
	Links      map[string][]string      `json:"links"`
	SIAs       []portfolio.SIA          `json:"sias"`
}

// workbook returns the caller's controller, creating one on first use.
// Callers must hold s.mu.
func (s *Service) workbook(userID string) *nav.Controller {
	c, ok := s.workbooks[userID]
	if !ok {
		var logf func(string, ...any)
		if s.cfg.DebugNav {
			logf = log.Printf
		}
		c = nav.New(logf)
		s.workbooks[userID] = c
	}
	return c
}

func stateOf(c *nav.Controller) WorkbookState {
	return WorkbookState{
		View:       c.View(),
		Params:     c.Params(),
		Notice:     c.Notice(),
		Selecting:  c.Selecting(),
		PendingKey: c.PendingKey(),
		Evidence:   c.Store().Items(),
		Links:      c.VisibleLinks(),
		SIAs:       c.SIAs().Items(),
	}
}

func (s *Service) WorkbookState(userID string) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateOf(s.workbook(userID))
}

func (s *Service) Navigate(userID string, view nav.View, params nav.FormParams) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.Navigate(view, params)
	return stateOf(c)
}

func (s *Service) GoBack(userID string) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.GoBack()
	return stateOf(c)
}

func (s *Service) OpenForm(userID string, formType portfolio.FormType, params nav.FormParams) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.OpenForm(formType, params)
	return stateOf(c)
}

func (s *Service) SaveDraft(userID string, patch portfolio.Patch) (portfolio.EvidenceItem, WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	item, err := c.SaveDraft(patch)
	return item, stateOf(c), err
}

// SubmitForm runs the controller's submit transition, then persists a
// snapshot of the submitted evidence and pushes it into the search index.
// Persistence failures are logged, not surfaced; the workbook is the source
// of truth and the snapshot catches up on the next submit.
func (s *Service) SubmitForm(ctx context.Context, userID string, patch portfolio.Patch) (portfolio.EvidenceItem, WorkbookState, error) {
	s.mu.Lock()
	c := s.workbook(userID)
	item, err := c.Submit(patch)
	if err != nil {
		state := stateOf(c)
		s.mu.Unlock()
		return item, state, err
	}
	related := relatedEvidence(c.Links().All(), item.ID)
	state := stateOf(c)
	s.mu.Unlock()

	if err := s.persistSnapshot(ctx, userID, item, related); err != nil {
		log.Printf("snapshot submitted evidence %s: %v", item.ID, err)
	}
	s.search.IndexEvidence(evidenceRecord(userID, item))
	return item, state, nil
}

func (s *Service) ViewLinkedEvidence(userID, evidenceID string) (WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	err := c.ViewLinkedEvidence(evidenceID)
	return stateOf(c), err
}

func (s *Service) BeginLinking(userID, requirementKey string, section, item int) (WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	err := c.BeginLinking(requirementKey, section, item)
	return stateOf(c), err
}

func (s *Service) ConfirmLinking(userID string, evidenceIDs ...string) (WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	err := c.ConfirmLinking(evidenceIDs...)
	return stateOf(c), err
}

func (s *Service) CancelLinking(userID string) (WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	err := c.CancelLinking()
	return stateOf(c), err
}

func (s *Service) RemoveLink(userID, requirementKey, evidenceID string) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.RemoveLink(requirementKey, evidenceID)
	return stateOf(c)
}

func (s *Service) BeginMandatoryForm(userID string, expected portfolio.FormType, defaultSubtype, requirementKey string, section, item int) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.BeginMandatoryForm(expected, defaultSubtype, requirementKey, section, item)
	return stateOf(c)
}

func (s *Service) UpsertSIA(userID string, sia portfolio.SIA) (portfolio.SIA, WorkbookState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	saved := c.SIAs().Upsert(sia)
	return saved, stateOf(c)
}

func (s *Service) RemoveSIA(userID, siaID string) WorkbookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.workbook(userID)
	c.SIAs().Remove(siaID)
	return stateOf(c)
}

// evidenceRecord flattens an evidence item for indexing. String payload
// values join the searchable text; everything else stays structured.
func evidenceRecord(traineeID string, item portfolio.EvidenceItem) search.EvidenceRecord {
	parts := []string{item.Title}
	for _, value := range item.Payload {
		if text, ok := value.(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return search.EvidenceRecord{
		ID:        item.ID,
		Title:     item.Title,
		Text:      strings.Join(parts, " "),
		FormType:  string(item.Type),
		Status:    string(item.Status),
		Level:     item.Level,
		TraineeID: traineeID,
	}
}

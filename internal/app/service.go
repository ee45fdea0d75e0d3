// Package app wires the HTTP surface to the workbook controller, the
// Postgres-backed stores and the outbound email, search and export services.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/authpw"
	"portfolio/api/internal/config"
	"portfolio/api/internal/email"
	"portfolio/api/internal/export"
	"portfolio/api/internal/nav"
	"portfolio/api/internal/portfolio"
	"portfolio/api/internal/rbac"
	"portfolio/api/internal/search"
	"portfolio/api/internal/store"
	"portfolio/api/internal/util"
)

// dataStore is the subset of the Postgres store the service needs. Tests
// substitute an in-memory implementation.
type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)

	InsertNotification(ctx context.Context, n store.Notification) error
	GetNotification(ctx context.Context, id string) (store.Notification, error)
	MarkNotificationEmailSent(ctx context.Context, id string) error

	UpsertEvidenceSnapshot(ctx context.Context, snap store.EvidenceSnapshot) error
	GetEvidenceSnapshot(ctx context.Context, id string) (store.EvidenceSnapshot, error)
	ListEvidenceSnapshots(ctx context.Context, ids []string) ([]store.EvidenceSnapshot, error)

	CreateMagicLink(ctx context.Context, link store.MagicLink) error
	ValidateMagicLink(ctx context.Context, tokenHash string) (store.MagicLinkValidation, error)
	ConsumeMagicLink(ctx context.Context, tokenHash string) error
}

// refreshStore holds refresh sessions. Redis when configured, otherwise the
// Postgres store satisfies the same interface.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type emailSender interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendMagicLinkEmail(to string, data email.MagicLinkData) error
	SendNotification(to, notificationType string, data email.NotificationData) error
}

type evidenceSearch interface {
	Search(q search.Query) search.Response
	IndexEvidence(rec search.EvidenceRecord)
	DeleteEvidence(id string)
}

type packetExporter interface {
	Export(ctx context.Context, req export.Request, traineeID string, packet export.Packet) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshStore
	passwords *authpw.Service
	email     emailSender
	search    evidenceSearch
	export    packetExporter

	// workbooks maps user id to that trainee's controller. Controllers are
	// single-threaded; mu serializes every access.
	mu        sync.Mutex
	workbooks map[string]*nav.Controller
}

func New(cfg config.Config, st dataStore, sessions refreshStore, passwords *authpw.Service, mail emailSender, searchSvc evidenceSearch, exporter packetExporter) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		passwords: passwords,
		email:     mail,
		search:    searchSvc,
		export:    exporter,
		workbooks: make(map[string]*nav.Controller),
	}
}

func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

func (s *Service) AuthPasswordService() *authpw.Service { return s.passwords }

func (s *Service) SMTPConfigured() bool { return s.email.IsConfigured() }

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ── Sessions ──

// Session is the pair of tokens handed to a signed-in client.
type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	Role         string    `json:"role"`
	GMCNumber    string    `json:"gmcNumber,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: string(rbac.Normalize(user.Role)),
		GMC:  user.GMCNumber,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         string(rbac.Normalize(user.Role)),
		GMCNumber:    user.GMCNumber,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token: the old session is revoked and a new
// token pair is issued against the user's current record.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired refresh token")
	}
	if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = full
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.CreateSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) SessionFromToken(token string) (auth.Claims, error) {
	return auth.ParseToken([]byte(s.cfg.JWTSecret), token)
}

// ── Notification emails ──

// NotificationEmailRequest mirrors the send-notification-email contract: the
// caller may reference an existing notification row or supply the content
// inline, in which case a row is created before sending.
type NotificationEmailRequest struct {
	NotificationID string
	UserID         string
	Type           string
	Title          string
	Body           string
}

func (s *Service) SendNotificationEmail(ctx context.Context, req NotificationEmailRequest) error {
	if req.UserID == "" {
		return errors.New("user_id is required")
	}
	user, err := s.store.GetUserByID(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("resolve notification recipient: %w", err)
	}
	if user.Email == "" {
		return errors.New("recipient has no email address")
	}
	if !s.email.IsConfigured() {
		return errors.New("email delivery is not configured")
	}

	if req.NotificationID == "" {
		n := store.Notification{
			ID:     util.NewID("ntf"),
			UserID: req.UserID,
			Type:   req.Type,
			Title:  req.Title,
			Body:   req.Body,
		}
		if err := s.store.InsertNotification(ctx, n); err != nil {
			log.Printf("insert notification for %s: %v", req.UserID, err)
		} else {
			req.NotificationID = n.ID
		}
	}

	err = s.email.SendNotification(user.Email, req.Type, email.NotificationData{
		RecipientName: user.DisplayName,
		Title:         req.Title,
		Body:          req.Body,
		ActionURL:     s.cfg.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("send notification email: %w", err)
	}

	if req.NotificationID != "" {
		if err := s.store.MarkNotificationEmailSent(ctx, req.NotificationID); err != nil {
			log.Printf("mark notification %s email sent: %v", req.NotificationID, err)
		}
	}
	return nil
}

// ── Magic links ──

var (
	errMagicLinkNotFound = errors.New("magic link not found")
	errMagicLinkUsed     = errors.New("magic link already used")
)

// MagicLinkEvidence is the read-only evidence view handed to an assessor.
// Field names follow the external contract, not the app's camelCase.
type MagicLinkEvidence struct {
	ID       string          `json:"id"`
	FormType string          `json:"form_type"`
	Title    string          `json:"title"`
	Status   string          `json:"status"`
	Level    string          `json:"level,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type MagicLinkView struct {
	Valid          bool                `json:"valid"`
	Evidence       MagicLinkEvidence   `json:"evidence"`
	LinkedEvidence []MagicLinkEvidence `json:"linked_evidence"`
	FormType       string              `json:"form_type"`
	RecipientEmail string              `json:"recipient_email"`
	TraineeName    string              `json:"trainee_name"`
	RequiresGMC    bool                `json:"requires_gmc"`
}

// ValidateMagicLink resolves a raw assessor token to the evidence it grants
// access to. Invalid links report why through errMagicLinkNotFound or
// errMagicLinkUsed; everything else is a server error.
func (s *Service) ValidateMagicLink(ctx context.Context, token string) (*MagicLinkView, error) {
	v, err := s.store.ValidateMagicLink(ctx, auth.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("validate magic link: %w", err)
	}
	if !v.Valid {
		if v.Reason == store.ReasonNotFound {
			return nil, errMagicLinkNotFound
		}
		return nil, errMagicLinkUsed
	}

	snap, err := s.store.GetEvidenceSnapshot(ctx, v.EvidenceID)
	if err != nil {
		return nil, fmt.Errorf("load evidence snapshot %s: %w", v.EvidenceID, err)
	}
	linked, err := s.store.ListEvidenceSnapshots(ctx, snap.LinkedIDs)
	if err != nil {
		return nil, fmt.Errorf("load linked snapshots: %w", err)
	}

	traineeName := ""
	if trainee, err := s.store.GetUserByID(ctx, v.TraineeID); err == nil {
		traineeName = trainee.DisplayName
	}

	view := &MagicLinkView{
		Valid:          true,
		Evidence:       snapshotView(snap),
		LinkedEvidence: make([]MagicLinkEvidence, 0, len(linked)),
		FormType:       v.FormType,
		RecipientEmail: v.RecipientEmail,
		TraineeName:    traineeName,
		RequiresGMC:    v.RequiresGMC,
	}
	for _, l := range linked {
		view.LinkedEvidence = append(view.LinkedEvidence, snapshotView(l))
	}
	return view, nil
}

func snapshotView(snap store.EvidenceSnapshot) MagicLinkEvidence {
	return MagicLinkEvidence{
		ID:       snap.ID,
		FormType: snap.FormType,
		Title:    snap.Title,
		Status:   snap.Status,
		Level:    snap.Level,
		Payload:  snap.Payload,
	}
}

// MagicLinkInvite requests a single-use assessor link for one evidence record
// in the caller's workbook.
type MagicLinkInvite struct {
	EvidenceID     string `json:"evidenceId"`
	RecipientEmail string `json:"recipientEmail"`
	RequiresGMC    bool   `json:"requiresGmc"`
}

type MagicLinkIssued struct {
	LinkURL   string    `json:"linkUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
	// DevToken is only populated when SMTP is not configured, so local
	// setups can complete the flow without a mailbox.
	DevToken string `json:"devToken,omitempty"`
}

// IssueMagicLink snapshots the evidence (and everything sharing a requirement
// key with it) to Postgres, stores the hashed token and emails the assessor.
// The raw token never touches the database.
func (s *Service) IssueMagicLink(ctx context.Context, userID, userName string, invite MagicLinkInvite) (*MagicLinkIssued, error) {
	if invite.RecipientEmail == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_REQUEST", "recipientEmail is required")
	}

	s.mu.Lock()
	c := s.workbook(userID)
	item, ok := c.Store().Get(invite.EvidenceID)
	if !ok {
		s.mu.Unlock()
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "evidence not found")
	}
	relatedIDs := relatedEvidence(c.Links().All(), item.ID)
	related := make([]portfolio.EvidenceItem, 0, len(relatedIDs))
	for _, id := range relatedIDs {
		if rel, ok := c.Store().Get(id); ok {
			related = append(related, rel)
		}
	}
	s.mu.Unlock()

	if err := s.persistSnapshot(ctx, userID, item, relatedIDs); err != nil {
		return nil, err
	}
	for _, rel := range related {
		if err := s.persistSnapshot(ctx, userID, rel, nil); err != nil {
			return nil, err
		}
	}

	token := util.NewToken()
	expiresAt := time.Now().Add(s.cfg.MagicLinkTTL)
	link := store.MagicLink{
		ID:             util.NewID("mlk"),
		TokenHash:      auth.HashToken(token),
		EvidenceID:     item.ID,
		FormType:       string(item.Type),
		TraineeID:      userID,
		RecipientEmail: invite.RecipientEmail,
		RequiresGMC:    invite.RequiresGMC,
		ExpiresAt:      expiresAt,
	}
	if err := s.store.CreateMagicLink(ctx, link); err != nil {
		return nil, fmt.Errorf("create magic link: %w", err)
	}

	issued := &MagicLinkIssued{
		LinkURL:   s.cfg.BaseURL + "/assess/" + token,
		ExpiresAt: expiresAt,
	}
	if !s.email.IsConfigured() {
		issued.DevToken = token
		return issued, nil
	}

	err := s.email.SendMagicLinkEmail(invite.RecipientEmail, email.MagicLinkData{
		AppName:     "Portfolio",
		TraineeName: userName,
		FormType:    string(item.Type),
		LinkURL:     issued.LinkURL,
		ExpiryHours: int(s.cfg.MagicLinkTTL.Hours()),
	})
	if err != nil {
		return nil, fmt.Errorf("send magic link email: %w", err)
	}
	return issued, nil
}

// MagicLinkSubmission carries the assessor's answers back through the link.
type MagicLinkSubmission struct {
	Token     string         `json:"token"`
	GMCNumber string         `json:"gmc_number"`
	Answers   map[string]any `json:"answers"`
}

// SubmitMagicLink consumes the link and folds the assessor's response into
// the evidence snapshot, marking it signed off. Only the first submission
// wins; a concurrent second submit reports the link as used.
func (s *Service) SubmitMagicLink(ctx context.Context, sub MagicLinkSubmission) error {
	hash := auth.HashToken(sub.Token)
	v, err := s.store.ValidateMagicLink(ctx, hash)
	if err != nil {
		return fmt.Errorf("validate magic link: %w", err)
	}
	if !v.Valid {
		if v.Reason == store.ReasonNotFound {
			return errMagicLinkNotFound
		}
		return errMagicLinkUsed
	}
	if v.RequiresGMC && sub.GMCNumber == "" {
		return domainError(http.StatusBadRequest, "INVALID_REQUEST", "GMC number is required")
	}

	if err := s.store.ConsumeMagicLink(ctx, hash); err != nil {
		return errMagicLinkUsed
	}

	snap, err := s.store.GetEvidenceSnapshot(ctx, v.EvidenceID)
	if err != nil {
		return fmt.Errorf("load evidence snapshot %s: %w", v.EvidenceID, err)
	}

	payload := map[string]any{}
	if len(snap.Payload) > 0 {
		if err := json.Unmarshal(snap.Payload, &payload); err != nil {
			return fmt.Errorf("decode snapshot payload: %w", err)
		}
	}
	payload["assessor_response"] = sub.Answers
	if sub.GMCNumber != "" {
		payload["assessor_gmc"] = sub.GMCNumber
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode snapshot payload: %w", err)
	}
	snap.Payload = raw
	snap.Status = string(portfolio.StatusSignedOff)
	if err := s.store.UpsertEvidenceSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("update evidence snapshot: %w", err)
	}

	s.search.IndexEvidence(search.EvidenceRecord{
		ID:        snap.ID,
		Title:     snap.Title,
		Text:      snap.Title,
		FormType:  snap.FormType,
		Status:    snap.Status,
		Level:     snap.Level,
		TraineeID: snap.TraineeID,
	})

	// Best-effort sign-off notification back to the trainee.
	title := fmt.Sprintf("%s signed off", snap.Title)
	body := fmt.Sprintf("Your %s assessment has been completed by %s.", snap.FormType, v.RecipientEmail)
	if err := s.SendNotificationEmail(ctx, NotificationEmailRequest{
		UserID: v.TraineeID,
		Type:   email.TypeSignOff,
		Title:  title,
		Body:   body,
	}); err != nil {
		log.Printf("sign-off notification for %s: %v", v.TraineeID, err)
	}
	return nil
}

// relatedEvidence returns every id sharing a requirement key with the given
// id, sorted, excluding the id itself.
func relatedEvidence(links map[string][]string, id string) []string {
	seen := map[string]bool{}
	for _, ids := range links {
		contains := false
		for _, candidate := range ids {
			if candidate == id {
				contains = true
				break
			}
		}
		if !contains {
			continue
		}
		for _, candidate := range ids {
			if candidate != id {
				seen[candidate] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func (s *Service) persistSnapshot(ctx context.Context, traineeID string, item portfolio.EvidenceItem, linkedIDs []string) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("encode evidence payload: %w", err)
	}
	snap := store.EvidenceSnapshot{
		ID:        item.ID,
		TraineeID: traineeID,
		FormType:  string(item.Type),
		Title:     item.Title,
		Status:    string(item.Status),
		Level:     item.Level,
		Payload:   payload,
		LinkedIDs: linkedIDs,
	}
	if err := s.store.UpsertEvidenceSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("persist evidence snapshot %s: %w", item.ID, err)
	}
	return nil
}

// ── Search ──

func (s *Service) SearchEvidence(q search.Query) search.Response {
	return s.search.Search(q)
}

// ── ARCP export ──

// ExportARCP assembles the caller's full workbook into a packet and renders
// it. The controller lock is released before rendering; PDF generation is
// slow and must not block other requests.
func (s *Service) ExportARCP(ctx context.Context, userID, userName, gmcNumber string, req export.Request) (*export.Result, error) {
	s.mu.Lock()
	c := s.workbook(userID)
	items := c.Store().Items()
	links := c.Links().All()
	sias := c.SIAs().Items()
	s.mu.Unlock()

	packet := export.Packet{
		TraineeName: userName,
		GMCNumber:   gmcNumber,
		GeneratedAt: time.Now(),
		Evidence:    make([]export.EvidenceSummary, 0, len(items)),
		Links:       make([]export.LinkRow, 0, len(links)),
		SIAs:        make([]export.SIARow, 0, len(sias)),
	}
	for _, item := range items {
		packet.Evidence = append(packet.Evidence, export.EvidenceSummary{
			ID:        item.ID,
			Title:     item.Title,
			FormType:  string(item.Type),
			Status:    string(item.Status),
			Level:     item.Level,
			CreatedAt: item.CreatedAt,
			Payload:   item.Payload,
		})
	}
	keys := make([]string, 0, len(links))
	for key := range links {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		packet.Links = append(packet.Links, export.LinkRow{RequirementKey: key, EvidenceIDs: links[key]})
	}
	for _, sia := range sias {
		packet.SIAs = append(packet.SIAs, export.SIARow{
			Specialty:          sia.Specialty,
			Level:              sia.Level,
			SupervisorName:     sia.SupervisorName,
			SupervisorInitials: sia.SupervisorInitials,
		})
	}

	result, err := s.export.Export(ctx, req, userID, packet)
	if err != nil {
		if errors.Is(err, export.ErrEmptyPacket) {
			return nil, domainError(http.StatusUnprocessableEntity, "EMPTY_PACKET", "nothing to export yet")
		}
		return nil, fmt.Errorf("export packet: %w", err)
	}
	return result, nil
}

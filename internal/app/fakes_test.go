package app

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"portfolio/api/internal/authpw"
	"portfolio/api/internal/config"
	"portfolio/api/internal/email"
	"portfolio/api/internal/export"
	"portfolio/api/internal/search"
	"portfolio/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type refreshRecord struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type resetRecord struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// fakeStore is an in-memory stand-in for both the Postgres store and the
// refresh session store.
type fakeStore struct {
	users         map[string]store.User
	emailIndex    map[string]string
	notifications map[string]store.Notification
	snapshots     map[string]store.EvidenceSnapshot
	magicLinks    map[string]store.MagicLink
	refresh       map[string]*refreshRecord
	resets        map[string]*resetRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]store.User{},
		emailIndex:    map[string]string{},
		notifications: map[string]store.Notification{},
		snapshots:     map[string]store.EvidenceSnapshot{},
		magicLinks:    map[string]store.MagicLink{},
		refresh:       map[string]*refreshRecord{},
		resets:        map[string]*resetRecord{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	user.Email = strings.ToLower(user.Email)
	f.users[user.ID] = user
	f.emailIndex[user.Email] = user.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, addr string) (store.User, error) {
	id, ok := f.emailIndex[strings.ToLower(addr)]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	user := f.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(ctx context.Context, token string) error {
	for id, user := range f.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	user := f.users[userID]
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.resets[token] = &resetRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	rec, ok := f.resets[token]
	if !ok || rec.used || time.Now().After(rec.expiresAt) {
		return "", sql.ErrNoRows
	}
	return rec.userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if rec, ok := f.resets[token]; ok {
		rec.used = true
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.refresh[tokenHash] = &refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	rec, ok := f.refresh[tokenHash]
	if !ok || rec.revoked || time.Now().After(rec.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return f.GetUserByID(ctx, rec.userID)
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if rec, ok := f.refresh[tokenHash]; ok {
		rec.revoked = true
	}
	return nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification) error {
	n.CreatedAt = time.Now()
	f.notifications[n.ID] = n
	return nil
}

func (f *fakeStore) GetNotification(ctx context.Context, id string) (store.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return store.Notification{}, sql.ErrNoRows
	}
	return n, nil
}

func (f *fakeStore) MarkNotificationEmailSent(ctx context.Context, id string) error {
	n, ok := f.notifications[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	n.EmailSentAt = &now
	f.notifications[id] = n
	return nil
}

func (f *fakeStore) UpsertEvidenceSnapshot(ctx context.Context, snap store.EvidenceSnapshot) error {
	f.snapshots[snap.ID] = snap
	return nil
}

func (f *fakeStore) GetEvidenceSnapshot(ctx context.Context, id string) (store.EvidenceSnapshot, error) {
	snap, ok := f.snapshots[id]
	if !ok {
		return store.EvidenceSnapshot{}, sql.ErrNoRows
	}
	return snap, nil
}

func (f *fakeStore) ListEvidenceSnapshots(ctx context.Context, ids []string) ([]store.EvidenceSnapshot, error) {
	out := make([]store.EvidenceSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := f.snapshots[id]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMagicLink(ctx context.Context, link store.MagicLink) error {
	f.magicLinks[link.TokenHash] = link
	return nil
}

func (f *fakeStore) ValidateMagicLink(ctx context.Context, tokenHash string) (store.MagicLinkValidation, error) {
	link, ok := f.magicLinks[tokenHash]
	if !ok {
		return store.MagicLinkValidation{Reason: store.ReasonNotFound}, nil
	}
	if link.UsedAt != nil {
		return store.MagicLinkValidation{Reason: store.ReasonUsed}, nil
	}
	if time.Now().After(link.ExpiresAt) {
		return store.MagicLinkValidation{Reason: store.ReasonExpired}, nil
	}
	return store.MagicLinkValidation{
		Valid:          true,
		EvidenceID:     link.EvidenceID,
		FormType:       link.FormType,
		TraineeID:      link.TraineeID,
		RecipientEmail: link.RecipientEmail,
		RequiresGMC:    link.RequiresGMC,
	}, nil
}

func (f *fakeStore) ConsumeMagicLink(ctx context.Context, tokenHash string) error {
	link, ok := f.magicLinks[tokenHash]
	if !ok || link.UsedAt != nil || time.Now().After(link.ExpiresAt) {
		return sql.ErrNoRows
	}
	now := time.Now()
	link.UsedAt = &now
	f.magicLinks[tokenHash] = link
	return nil
}

type sentEmail struct {
	to      string
	kind    string
	title   string
	body    string
	linkURL string
}

type fakeEmail struct {
	configured bool
	sent       []sentEmail
}

func (f *fakeEmail) IsConfigured() bool { return f.configured }

func (f *fakeEmail) SendVerificationEmail(to, userName, verificationURL string) error {
	f.sent = append(f.sent, sentEmail{to: to, kind: "verification", linkURL: verificationURL})
	return nil
}

func (f *fakeEmail) SendPasswordResetEmail(to, userName, resetURL string) error {
	f.sent = append(f.sent, sentEmail{to: to, kind: "password-reset", linkURL: resetURL})
	return nil
}

func (f *fakeEmail) SendMagicLinkEmail(to string, data email.MagicLinkData) error {
	f.sent = append(f.sent, sentEmail{to: to, kind: "magic-link", linkURL: data.LinkURL})
	return nil
}

func (f *fakeEmail) SendNotification(to, notificationType string, data email.NotificationData) error {
	f.sent = append(f.sent, sentEmail{to: to, kind: notificationType, title: data.Title, body: data.Body})
	return nil
}

type fakeSearch struct {
	records map[string]search.EvidenceRecord
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{records: map[string]search.EvidenceRecord{}}
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	resp := search.Response{Results: []search.Result{}, Query: q.Text}
	for _, rec := range f.records {
		if rec.TraineeID != q.TraineeID {
			continue
		}
		if q.Text != "" && !strings.Contains(strings.ToLower(rec.Text), strings.ToLower(q.Text)) {
			continue
		}
		resp.Results = append(resp.Results, search.Result{
			ID:        rec.ID,
			Title:     rec.Title,
			FormType:  rec.FormType,
			Status:    rec.Status,
			Level:     rec.Level,
			TraineeID: rec.TraineeID,
		})
	}
	resp.Total = len(resp.Results)
	return resp
}

func (f *fakeSearch) IndexEvidence(rec search.EvidenceRecord) { f.records[rec.ID] = rec }

func (f *fakeSearch) DeleteEvidence(id string) { delete(f.records, id) }

type fakeExporter struct {
	lastPacket export.Packet
	lastReq    export.Request
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request, traineeID string, packet export.Packet) (*export.Result, error) {
	if len(packet.Evidence) == 0 && len(packet.SIAs) == 0 {
		return nil, export.ErrEmptyPacket
	}
	f.lastPacket = packet
	f.lastReq = req
	return &export.Result{
		Data:     []byte("%PDF-fake"),
		Filename: "packet.pdf",
		MimeType: "application/pdf",
	}, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeEmail, *fakeSearch, *fakeExporter) {
	t.Helper()
	st := newFakeStore()
	mail := &fakeEmail{configured: true}
	idx := newFakeSearch()
	exp := &fakeExporter{}
	cfg := config.Config{
		JWTSecret:    "test-secret",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
		BaseURL:      "http://localhost:5173",
		MagicLinkTTL: 14 * 24 * time.Hour,
		CORSOrigin:   "*",
	}
	svc := New(cfg, st, st, authpw.NewService(st), mail, idx, exp)
	return svc, st, mail, idx, exp
}

func seedUser(t *testing.T, st *fakeStore, id, name, addr, role, gmc string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{
		ID:              id,
		DisplayName:     name,
		Email:           addr,
		PasswordHash:    string(hash),
		Role:            role,
		GMCNumber:       gmc,
		IsEmailVerified: true,
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

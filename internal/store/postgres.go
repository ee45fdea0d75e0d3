package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, gmc_number, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.GMCNumber, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, gmc_number, is_email_verified
		FROM users WHERE email = LOWER($1) AND deactivated_at IS NULL
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.GMCNumber, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, gmc_number, is_email_verified
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.GMCNumber, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token = $2, verification_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at = NOW() WHERE token = $1
	`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.role, u.gmc_number
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1 AND rs.revoked_at IS NULL AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.GMCNumber)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = NOW() WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ── Notifications ──

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body) VALUES ($1, $2, $3, $4, $5)
	`, n.ID, n.UserID, n.Type, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, body, email_sent_at, created_at
		FROM notifications WHERE id = $1
	`, id).Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.EmailSentAt, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *PostgresStore) MarkNotificationEmailSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET email_sent_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark notification email sent: %w", err)
	}
	return nil
}

// ── Evidence snapshots ──

func (s *PostgresStore) UpsertEvidenceSnapshot(ctx context.Context, snap EvidenceSnapshot) error {
	linked, err := json.Marshal(snap.LinkedIDs)
	if err != nil {
		return fmt.Errorf("marshal linked ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence_snapshots (id, trainee_id, form_type, title, status, level, payload, linked_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			form_type = EXCLUDED.form_type,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			level = EXCLUDED.level,
			payload = EXCLUDED.payload,
			linked_ids = EXCLUDED.linked_ids,
			updated_at = NOW()
	`, snap.ID, snap.TraineeID, snap.FormType, snap.Title, snap.Status, snap.Level, []byte(snap.Payload), linked)
	if err != nil {
		return fmt.Errorf("upsert evidence snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvidenceSnapshot(ctx context.Context, id string) (EvidenceSnapshot, error) {
	var snap EvidenceSnapshot
	var payload, linked []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trainee_id, form_type, title, status, level, payload, linked_ids, created_at, updated_at
		FROM evidence_snapshots WHERE id = $1
	`, id).Scan(&snap.ID, &snap.TraineeID, &snap.FormType, &snap.Title, &snap.Status, &snap.Level, &payload, &linked, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return EvidenceSnapshot{}, err
	}
	snap.Payload = payload
	if len(linked) > 0 {
		if err := json.Unmarshal(linked, &snap.LinkedIDs); err != nil {
			return EvidenceSnapshot{}, fmt.Errorf("unmarshal linked ids: %w", err)
		}
	}
	return snap, nil
}

// ListEvidenceSnapshots fetches snapshots by id, skipping ids that no longer
// exist. Link sets are best-effort; a dangling reference is not an error.
func (s *PostgresStore) ListEvidenceSnapshots(ctx context.Context, ids []string) ([]EvidenceSnapshot, error) {
	snapshots := make([]EvidenceSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.GetEvidenceSnapshot(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// ── Magic links ──

func (s *PostgresStore) CreateMagicLink(ctx context.Context, link MagicLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO magic_links (id, token_hash, evidence_id, form_type, trainee_id, recipient_email, requires_gmc, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, link.ID, link.TokenHash, link.EvidenceID, link.FormType, link.TraineeID, link.RecipientEmail, link.RequiresGMC, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert magic link: %w", err)
	}
	return nil
}

// ValidateMagicLink delegates validity checking to the validate_magic_link
// database function, which reports existence, expiry/use state and the target
// evidence in one round trip.
func (s *PostgresStore) ValidateMagicLink(ctx context.Context, tokenHash string) (MagicLinkValidation, error) {
	var v MagicLinkValidation
	err := s.db.QueryRowContext(ctx, `
		SELECT is_valid, reason, evidence_id, form_type, trainee_id, recipient_email, requires_gmc
		FROM validate_magic_link($1)
	`, tokenHash).Scan(&v.Valid, &v.Reason, &v.EvidenceID, &v.FormType, &v.TraineeID, &v.RecipientEmail, &v.RequiresGMC)
	if err != nil {
		return MagicLinkValidation{}, fmt.Errorf("validate magic link: %w", err)
	}
	return v, nil
}

// ConsumeMagicLink marks a link used. Only the first submission wins; a
// second call reports sql.ErrNoRows.
func (s *PostgresStore) ConsumeMagicLink(ctx context.Context, tokenHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE magic_links SET used_at = NOW()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > NOW()
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("consume magic link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume magic link result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	GMCNumber             string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Notification is a queued in-app notification; Email sending is tracked by
// EmailSentAt so the edge endpoint can mark delivery exactly once.
type Notification struct {
	ID          string
	UserID      string
	Type        string
	Title       string
	Body        string
	EmailSentAt *time.Time
	CreatedAt   time.Time
}

// EvidenceSnapshot is the persisted copy of an evidence record handed to an
// external assessor via magic link. LinkedIDs are the cross-referenced
// snapshot ids included in the assessor's read-only view.
type EvidenceSnapshot struct {
	ID        string
	TraineeID string
	FormType  string
	Title     string
	Status    string
	Level     string
	Payload   json.RawMessage
	LinkedIDs []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MagicLink is a single-use assessor invite. Only the token hash is stored.
type MagicLink struct {
	ID             string
	TokenHash      string
	EvidenceID     string
	FormType       string
	TraineeID      string
	RecipientEmail string
	RequiresGMC    bool
	ExpiresAt      time.Time
	UsedAt         *time.Time
	CreatedAt      time.Time
}

// MagicLinkValidation is the result of the validate_magic_link database
// function.
type MagicLinkValidation struct {
	Valid          bool
	Reason         string
	EvidenceID     string
	FormType       string
	TraineeID      string
	RecipientEmail string
	RequiresGMC    bool
}

const (
	ReasonNotFound = "not_found"
	ReasonUsed     = "used"
	ReasonExpired  = "expired"
)

// Package portfolio holds the trainee's in-memory working set: assessment
// evidence records and specialist interest areas.
package portfolio

import "time"

// FormType identifies the assessment form an evidence item was captured on.
type FormType string

const (
	TypeEPA      FormType = "EPA"
	TypeDOPS     FormType = "DOPS"
	TypeOSATS    FormType = "OSATS"
	TypeCBD      FormType = "CBD"
	TypeCRS      FormType = "CRS"
	TypeGSAT     FormType = "GSAT"
	TypeMSF      FormType = "MSF"
	TypeARCPPrep FormType = "ARCPPrep"
	TypeOther    FormType = "Other"
)

// Status is the lifecycle state of an evidence item.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusSubmitted Status = "Submitted"
	StatusSignedOff Status = "SignedOff"
	// StatusReadOnly is a view-time override used when opening linked evidence.
	// It is never stored.
	StatusReadOnly Status = "ReadOnly"
)

// NormalizeType maps unknown form types to TypeOther.
func NormalizeType(t FormType) FormType {
	switch t {
	case TypeEPA, TypeDOPS, TypeOSATS, TypeCBD, TypeCRS, TypeGSAT, TypeMSF, TypeARCPPrep:
		return t
	default:
		return TypeOther
	}
}

// EvidenceItem is one assessment record. Owned exclusively by the Store and
// mutated only through Upsert; the ID never changes once assigned.
type EvidenceItem struct {
	ID          string         `json:"id"`
	Type        FormType       `json:"type"`
	Status      Status         `json:"status"`
	Title       string         `json:"title"`
	Level       string         `json:"level,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Payload     map[string]any `json:"payload,omitempty"`
	Respondents []string       `json:"respondents,omitempty"`
}

// Patch is a partial evidence record for Upsert. Zero-valued fields are left
// untouched on merge; Payload keys merge individually, last write wins.
type Patch struct {
	ID          string
	Type        FormType
	Status      Status
	Title       string
	Level       string
	Payload     map[string]any
	Respondents []string
}

// SIA is a declared specialist interest area with its supervisor assignment.
type SIA struct {
	ID                 string `json:"id"`
	Specialty          string `json:"specialty"`
	Level              string `json:"level"`
	SupervisorName     string `json:"supervisorName,omitempty"`
	SupervisorEmail    string `json:"supervisorEmail,omitempty"`
	SupervisorInitials string `json:"supervisorInitials,omitempty"`
}

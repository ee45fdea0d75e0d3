// Package export renders ARCP evidence packets to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	Format  Format
	Archive bool // upload the packet to object storage after rendering
}

// Packet is the assembled working set handed to the exporter: evidence
// summaries, the cross-form link table, and the SIA list.
type Packet struct {
	TraineeName string
	GMCNumber   string
	GeneratedAt time.Time
	Evidence    []EvidenceSummary
	Links       []LinkRow
	SIAs        []SIARow
}

// EvidenceSummary is one evidence item in the packet.
type EvidenceSummary struct {
	ID        string
	Title     string
	FormType  string
	Status    string
	Level     string
	CreatedAt time.Time
	Payload   map[string]any
}

// LinkRow is one requirement-to-evidence association in the link table.
type LinkRow struct {
	RequirementKey string
	EvidenceIDs    []string
}

// SIARow is one specialist interest area in the packet.
type SIARow struct {
	Specialty          string
	Level              string
	SupervisorName     string
	SupervisorInitials string
}

// Result contains the export output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	ObjectKey string // set when the packet was archived to object storage
}

var (
	// ErrEmptyPacket indicates there is no evidence to export.
	ErrEmptyPacket = errors.New("export packet empty")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

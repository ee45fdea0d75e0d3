package export

import (
	"context"
	"fmt"
	"time"
)

// Service renders ARCP packets. archive may be nil when object storage is
// not configured.
type Service struct {
	archive *Archive
}

// NewService creates a new export service
func NewService(archive *Archive) *Service {
	return &Service{archive: archive}
}

// Export renders the packet in the requested format and optionally archives
// it to object storage.
func (s *Service) Export(ctx context.Context, req Request, traineeID string, packet Packet) (*Result, error) {
	if len(packet.Evidence) == 0 && len(packet.SIAs) == 0 {
		return nil, ErrEmptyPacket
	}

	if packet.GeneratedAt.IsZero() {
		packet.GeneratedAt = time.Now()
	}

	data := TemplateData{
		TraineeName: packet.TraineeName,
		GMCNumber:   packet.GMCNumber,
		GeneratedAt: packet.GeneratedAt,
		Links:       packet.Links,
		SIAs:        packet.SIAs,
	}
	for _, ev := range packet.Evidence {
		data.Evidence = append(data.Evidence, TemplateEvidence{
			ID:          ev.ID,
			Title:       ev.Title,
			FormType:    ev.FormType,
			Status:      ev.Status,
			Level:       ev.Level,
			CreatedAt:   ev.CreatedAt,
			PayloadHTML: PayloadToHTML(ev.Payload),
		})
	}

	html, err := RenderPacketHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := "ARCP Packet " + packet.TraineeName

	var result *Result
	switch req.Format {
	case FormatPDF:
		result, err = exportPDF(html, title)
	case FormatDOCX:
		result, err = exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Archive && s.archive != nil {
		key, err := s.archive.Put(ctx, traineeID, result.Filename, result.MimeType, result.Data)
		if err != nil {
			return nil, fmt.Errorf("archive packet: %w", err)
		}
		result.ObjectKey = key
	}

	return result, nil
}

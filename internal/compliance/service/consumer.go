package service

import (
	"context"
	"fmt"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/pkg/errors"
	"github.com/blociq/blociq-backend/pkg/messaging"
)

// HandleDocumentExtracted analyses a document delivered by the OCR pipeline.
// It has the messaging.MessageHandler signature. Errors cause a redelivery,
// so permanent failures such as a missing asset are logged and acknowledged.
func (s *Service) HandleDocumentExtracted(ctx context.Context, event *messaging.Event) error {
	var msg messaging.DocumentExtractedEvent
	if err := event.UnmarshalData(&msg); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID).Msg("malformed document event")
		return nil
	}

	pages := make([]domain.Page, 0, len(msg.Pages))
	for _, p := range msg.Pages {
		pages = append(pages, domain.Page{Page: p.Page, Text: p.Text})
	}

	_, err := s.Analyze(ctx, AnalyzeRequest{
		Pages:      pages,
		BuildingID: msg.BuildingID,
		AssetID:    msg.AssetID,
	})
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode < 500 {
		s.log.Warn().Err(err).
			Str("document_id", msg.DocumentID).
			Str("asset_id", msg.AssetID).
			Msg("document event dropped")
		return nil
	}
	return fmt.Errorf("analyse document %s: %w", msg.DocumentID, err)
}

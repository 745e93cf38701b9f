package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Inbound: text pages produced by the OCR pipeline for one uploaded document.
	EventDocumentExtracted = "compliance.document.extracted"

	// Outbound compliance events
	EventDocumentAnalyzed = "compliance.document.analyzed"
	EventDueDateUpdated   = "compliance.asset.due_date_updated"
	EventAssetDueSoon     = "compliance.asset.due_soon"
)

// Exchange names
const (
	ExchangeComplianceEvents = "compliance.events"
	ExchangeDeadLetter       = "dlx.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// DocumentPage is one page of text inside a DocumentExtractedEvent.
type DocumentPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// DocumentExtractedEvent carries OCR output for a document awaiting analysis.
type DocumentExtractedEvent struct {
	DocumentID string         `json:"document_id"`
	BuildingID string         `json:"building_id,omitempty"`
	AssetID    string         `json:"asset_id,omitempty"`
	Pages      []DocumentPage `json:"pages"`
}

// DocumentAnalyzedEvent is published after a document has been classified.
type DocumentAnalyzedEvent struct {
	BuildingID   string  `json:"building_id,omitempty"`
	AssetID      string  `json:"asset_id,omitempty"`
	DocumentType string  `json:"document_type"`
	Score        float64 `json:"score"`
	NextDueDate  string  `json:"next_due_date,omitempty"`
	Status       string  `json:"status,omitempty"`
	RegexVersion string  `json:"regex_version"`
}

// DueDateUpdatedEvent is published when applying a patch moves an asset's
// next due date. Calendar reminders are created downstream.
type DueDateUpdatedEvent struct {
	BuildingID      string `json:"building_id"`
	AssetID         string `json:"asset_id"`
	AssessmentType  string `json:"assessment_type,omitempty"`
	PreviousDueDate string `json:"previous_due_date,omitempty"`
	NextDueDate     string `json:"next_due_date"`
}

// AssetDueSoonEvent is published by the reminder scan for assets due within
// the reminder window. Overdue assets have a negative DaysRemaining.
type AssetDueSoonEvent struct {
	BuildingID     string `json:"building_id"`
	AssetID        string `json:"asset_id"`
	AssessmentType string `json:"assessment_type,omitempty"`
	NextDueDate    string `json:"next_due_date"`
	DaysRemaining  int    `json:"days_remaining"`
	Overdue        bool   `json:"overdue"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}

package domain

import (
	"encoding/json"
	"time"
)

// UnknownType is the detection result when no configured type scores.
const UnknownType = "Unknown"

// Page is one page of OCR or text-layer output. Page numbers are trusted
// verbatim for provenance.
type Page struct {
	Page int    `json:"page" validate:"gte=1"`
	Text string `json:"text"`
}

// DetectionResult is the best scoring document type.
type DetectionResult struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// Known reports whether a configured type was detected.
func (d DetectionResult) Known() bool {
	return d.Type != UnknownType && d.Score > 0
}

// DueDates is the output of due-date computation. Empty when the type has no
// rule or the inspection date is missing.
type DueDates struct {
	NextDueDate string `json:"next_due_date,omitempty"`
}

// SummaryJSON is the read-oriented view of a processed document.
type SummaryJSON struct {
	DocType        string
	AssessmentType string
	InspectionDate string
	NextDueDate    string
	NextDueHint    string
	Status         string
	SourcePages    []int
	// Fields holds every extracted field.
	Fields map[string]string
}

// MarshalJSON flattens extracted fields next to the summary keys. The
// summary keys take precedence over a field of the same name.
func (s SummaryJSON) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+7)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["doc_type"] = s.DocType
	putIfSet(out, "assessment_type", s.AssessmentType)
	putIfSet(out, "inspection_date", s.InspectionDate)
	putIfSet(out, "next_due_date", s.NextDueDate)
	putIfSet(out, "next_due_hint", s.NextDueHint)
	putIfSet(out, "status", s.Status)
	pages := s.SourcePages
	if pages == nil {
		pages = []int{}
	}
	out[SourcePagesKey] = pages
	return json.Marshal(out)
}

// CompliancePatch is the write-oriented view: a partial update for a
// compliance-asset record. The zero value is the empty patch produced for
// unknown types.
type CompliancePatch struct {
	AssessmentType  string
	DocType         string
	LastInspectedAt string
	NextDueDate     string
	Status          string
	// Fields holds extracted fields other than inspection_date, which is
	// carried as LastInspectedAt.
	Fields map[string]string
}

// IsEmpty reports whether the patch would change nothing.
func (p CompliancePatch) IsEmpty() bool {
	return p.AssessmentType == "" && p.DocType == "" && p.LastInspectedAt == "" &&
		p.NextDueDate == "" && p.Status == "" && len(p.Fields) == 0
}

func (p CompliancePatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+5)
	for k, v := range p.Fields {
		out[k] = v
	}
	putIfSet(out, "assessment_type", p.AssessmentType)
	putIfSet(out, "doc_type", p.DocType)
	putIfSet(out, "last_inspected_at", p.LastInspectedAt)
	putIfSet(out, "next_due_date", p.NextDueDate)
	putIfSet(out, "status", p.Status)
	return json.Marshal(out)
}

func putIfSet(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// Analysis is the full pipeline output for one document.
type Analysis struct {
	Detection        DetectionResult   `json:"detection"`
	Fields           *NormalisedFields `json:"fields"`
	Due              DueDates          `json:"due"`
	Summary          SummaryJSON       `json:"summary"`
	Patch            CompliancePatch   `json:"patch"`
	RegexVersion     string            `json:"regex_version"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}

// AnalysisStatus is the processing state of an asynchronous analysis job.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// AnalysisJob tracks an asynchronous analysis.
type AnalysisJob struct {
	JobID       string         `json:"job_id"`
	Status      AnalysisStatus `json:"status"`
	BuildingID  string         `json:"building_id,omitempty"`
	AssetID     string         `json:"asset_id,omitempty"`
	Result      *Analysis      `json:"result,omitempty"`
	Applied     *PatchOutcome  `json:"applied,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ComplianceAsset is the stored compliance record a patch is applied to.
type ComplianceAsset struct {
	ID              string          `db:"id" json:"id"`
	BuildingID      string          `db:"building_id" json:"building_id"`
	AssessmentType  *string         `db:"assessment_type" json:"assessment_type,omitempty"`
	DocType         *string         `db:"doc_type" json:"doc_type,omitempty"`
	Status          *string         `db:"status" json:"status,omitempty"`
	LastInspectedAt *time.Time      `db:"last_inspected_at" json:"last_inspected_at,omitempty"`
	NextDueDate     *time.Time      `db:"next_due_date" json:"next_due_date,omitempty"`
	ExtractedFields json.RawMessage `db:"extracted_fields" json:"extracted_fields,omitempty"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// PatchOutcome reports what applying a patch changed.
type PatchOutcome struct {
	AssetID         string `json:"asset_id"`
	BuildingID      string `json:"building_id"`
	PreviousDueDate string `json:"previous_due_date,omitempty"`
	NextDueDate     string `json:"next_due_date,omitempty"`
	DueDateChanged  bool   `json:"due_date_changed"`
}

// AnalysisAuditEntry records one persisted analysis.
type AnalysisAuditEntry struct {
	ID                   string    `db:"id"`
	BuildingID           *string   `db:"building_id"`
	AssetID              *string   `db:"asset_id"`
	DocumentType         string    `db:"document_type"`
	Score                float64   `db:"score"`
	FieldsExtracted      []string  `db:"-"`
	SourcePages          []int64   `db:"-"`
	RegexVersion         string    `db:"regex_version"`
	ProcessingDurationMs int64     `db:"processing_duration_ms"`
	CreatedAt            time.Time `db:"created_at"`
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/pkg/database"
)

const (
	insertAuditQuery = `INSERT INTO compliance_analysis_audit
		(id, building_id, asset_id, document_type, score, fields_extracted, source_pages,
		 regex_version, processing_duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	listAuditQuery = `SELECT id, building_id, asset_id, document_type, score, fields_extracted,
		source_pages, regex_version, processing_duration_ms, created_at
		FROM compliance_analysis_audit WHERE asset_id = $1
		ORDER BY created_at DESC LIMIT $2`
)

// AuditRepository records one row per persisted analysis.
type AuditRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

// NewAuditEntry builds the audit row for an analysis.
func NewAuditEntry(a *domain.Analysis, buildingID, assetID string) domain.AnalysisAuditEntry {
	pages := a.Fields.SourcePages()
	sourcePages := make([]int64, len(pages))
	for i, p := range pages {
		sourcePages[i] = int64(p)
	}
	entry := domain.AnalysisAuditEntry{
		DocumentType:         a.Detection.Type,
		Score:                a.Detection.Score,
		FieldsExtracted:      a.Fields.Names(),
		SourcePages:          sourcePages,
		RegexVersion:         a.RegexVersion,
		ProcessingDurationMs: a.ProcessingTimeMs,
	}
	if buildingID != "" {
		entry.BuildingID = &buildingID
	}
	if assetID != "" {
		entry.AssetID = &assetID
	}
	return entry
}

// Insert stores entry, assigning its ID and creation time when unset.
func (r *AuditRepository) Insert(ctx context.Context, entry *domain.AnalysisAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.FieldsExtracted == nil {
		entry.FieldsExtracted = []string{}
	}
	if entry.SourcePages == nil {
		entry.SourcePages = []int64{}
	}

	_, err := r.db.ExecContext(ctx, insertAuditQuery,
		entry.ID,
		entry.BuildingID,
		entry.AssetID,
		entry.DocumentType,
		entry.Score,
		pq.StringArray(entry.FieldsExtracted),
		pq.Int64Array(entry.SourcePages),
		entry.RegexVersion,
		entry.ProcessingDurationMs,
		entry.CreatedAt,
	)
	return mapError(err)
}

type auditRow struct {
	domain.AnalysisAuditEntry
	Fields pq.StringArray `db:"fields_extracted"`
	Pages  pq.Int64Array  `db:"source_pages"`
}

// ListForAsset returns the newest audit rows for an asset.
func (r *AuditRepository) ListForAsset(ctx context.Context, assetID string, limit int) ([]domain.AnalysisAuditEntry, error) {
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, listAuditQuery, assetID, limit); err != nil {
		return nil, mapError(err)
	}
	entries := make([]domain.AnalysisAuditEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.AnalysisAuditEntry
		entries[i].FieldsExtracted = row.Fields
		entries[i].SourcePages = row.Pages
	}
	return entries, nil
}

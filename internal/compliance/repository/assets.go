package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/blociq/blociq-backend/internal/compliance/dates"
	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/pkg/database"
	"github.com/blociq/blociq-backend/pkg/errors"
)

const assetColumns = `id, building_id, assessment_type, doc_type, status,
	last_inspected_at, next_due_date, extracted_fields, updated_at`

const (
	selectAssetQuery    = `SELECT ` + assetColumns + ` FROM compliance_assets WHERE id = $1`
	selectAssetForPatch = selectAssetQuery + ` FOR UPDATE`

	// Empty patch values keep the stored column.
	applyPatchQuery = `UPDATE compliance_assets SET
			assessment_type = COALESCE($2, assessment_type),
			doc_type = COALESCE($3, doc_type),
			status = COALESCE($4, status),
			last_inspected_at = COALESCE($5::date, last_inspected_at),
			next_due_date = COALESCE($6::date, next_due_date),
			extracted_fields = extracted_fields || $7::jsonb,
			updated_at = NOW()
		WHERE id = $1`

	listDueQuery = `SELECT ` + assetColumns + ` FROM compliance_assets
		WHERE building_id = $1 AND next_due_date IS NOT NULL AND next_due_date <= $2
		ORDER BY next_due_date, id`

	listDueAllQuery = `SELECT ` + assetColumns + ` FROM compliance_assets
		WHERE next_due_date IS NOT NULL AND next_due_date <= $1
		ORDER BY next_due_date, building_id, id`
)

// AssetRepository reads compliance assets and applies patches to them.
type AssetRepository struct {
	db *database.DB
}

// NewAssetRepository creates an asset repository.
func NewAssetRepository(db *database.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Get returns one asset.
func (r *AssetRepository) Get(ctx context.Context, id string) (*domain.ComplianceAsset, error) {
	var asset domain.ComplianceAsset
	if err := r.db.GetContext(ctx, &asset, selectAssetQuery, id); err != nil {
		return nil, mapError(err)
	}
	return &asset, nil
}

// ListDue returns a building's assets due on or before the given date.
func (r *AssetRepository) ListDue(ctx context.Context, buildingID string, before time.Time) ([]domain.ComplianceAsset, error) {
	assets := []domain.ComplianceAsset{}
	if err := r.db.SelectContext(ctx, &assets, listDueQuery, buildingID, before); err != nil {
		return nil, mapError(err)
	}
	return assets, nil
}

// ListDueAll returns every asset due on or before the given date.
func (r *AssetRepository) ListDueAll(ctx context.Context, before time.Time) ([]domain.ComplianceAsset, error) {
	assets := []domain.ComplianceAsset{}
	if err := r.db.SelectContext(ctx, &assets, listDueAllQuery, before); err != nil {
		return nil, mapError(err)
	}
	return assets, nil
}

// ApplyPatch merges patch into the asset under a row lock and reports whether
// the next due date moved. Extracted fields are merged key by key.
func (r *AssetRepository) ApplyPatch(ctx context.Context, assetID string, patch domain.CompliancePatch) (*domain.PatchOutcome, error) {
	fields := patch.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted fields: %w", err)
	}

	var outcome *domain.PatchOutcome
	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var current domain.ComplianceAsset
		if err := tx.GetContext(ctx, &current, selectAssetForPatch, assetID); err != nil {
			return mapError(err)
		}

		_, err := tx.ExecContext(ctx, applyPatchQuery,
			assetID,
			nullable(patch.AssessmentType),
			nullable(patch.DocType),
			nullable(patch.Status),
			nullable(patch.LastInspectedAt),
			nullable(patch.NextDueDate),
			string(fieldsJSON),
		)
		if err != nil {
			return mapError(err)
		}

		previous := isoDate(current.NextDueDate)
		next := previous
		if patch.NextDueDate != "" {
			next = patch.NextDueDate
		}
		outcome = &domain.PatchOutcome{
			AssetID:         current.ID,
			BuildingID:      current.BuildingID,
			PreviousDueDate: previous,
			NextDueDate:     next,
			DueDateChanged:  next != previous,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isoDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dates.ISOLayout)
}

func mapError(err error) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("compliance asset")
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

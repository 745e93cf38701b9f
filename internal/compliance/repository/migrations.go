// Package repository persists compliance patches and the analysis audit log
// in PostgreSQL.
package repository

// Migrations returns the compliance schema statements, in order. Every
// statement is idempotent.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS compliance_assets (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			building_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			assessment_type VARCHAR(50),
			doc_type VARCHAR(50),
			status VARCHAR(50),
			last_inspected_at DATE,
			next_due_date DATE,
			extracted_fields JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT compliance_assets_due_after_inspection
				CHECK (next_due_date IS NULL OR last_inspected_at IS NULL OR next_due_date >= last_inspected_at)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_compliance_assets_building
			ON compliance_assets (building_id)`,

		`CREATE INDEX IF NOT EXISTS idx_compliance_assets_next_due
			ON compliance_assets (next_due_date) WHERE next_due_date IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS compliance_analysis_audit (
			id UUID PRIMARY KEY,
			building_id UUID,
			asset_id UUID REFERENCES compliance_assets(id) ON DELETE SET NULL,
			document_type VARCHAR(50) NOT NULL,
			score NUMERIC(8,1) NOT NULL,
			fields_extracted TEXT[] NOT NULL DEFAULT '{}',
			source_pages INT[] NOT NULL DEFAULT '{}',
			regex_version VARCHAR(20) NOT NULL,
			processing_duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT compliance_analysis_audit_score_non_negative CHECK (score >= 0)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_compliance_analysis_audit_asset
			ON compliance_analysis_audit (asset_id, created_at DESC)`,
	}
}

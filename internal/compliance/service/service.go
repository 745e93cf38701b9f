// Package service orchestrates compliance analyses: run the pipeline, apply
// the resulting patch to a stored asset, record an audit row and announce
// due-date changes.
package service

import (
	"context"
	"time"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/events"
	"github.com/blociq/blociq-backend/internal/compliance/processor"
	"github.com/blociq/blociq-backend/internal/compliance/repository"
	"github.com/blociq/blociq-backend/internal/compliance/storage"
	"github.com/blociq/blociq-backend/pkg/errors"
	"github.com/blociq/blociq-backend/pkg/logger"
)

// AssetStore applies compliance patches. *repository.AssetRepository implements it.
type AssetStore interface {
	ApplyPatch(ctx context.Context, assetID string, patch domain.CompliancePatch) (*domain.PatchOutcome, error)
	ListDue(ctx context.Context, buildingID string, before time.Time) ([]domain.ComplianceAsset, error)
}

// AuditStore records analyses. *repository.AuditRepository implements it.
type AuditStore interface {
	Insert(ctx context.Context, entry *domain.AnalysisAuditEntry) error
	ListForAsset(ctx context.Context, assetID string, limit int) ([]domain.AnalysisAuditEntry, error)
}

// AnalyzeRequest is one document to analyse. BuildingID and AssetID are
// optional; a patch is only persisted when AssetID is set.
type AnalyzeRequest struct {
	Pages      []domain.Page
	BuildingID string
	AssetID    string
}

// AnalyzeResult is the pipeline output plus what persisting it changed.
type AnalyzeResult struct {
	*domain.Analysis
	Applied *domain.PatchOutcome `json:"applied,omitempty"`
}

// TypeInfo describes one configured document type.
type TypeInfo struct {
	Name           string   `json:"name"`
	AssessmentType string   `json:"assessment_type,omitempty"`
	DocType        string   `json:"doc_type"`
	Fields         []string `json:"fields"`
	NextDueHint    string   `json:"next_due_hint,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithAssetStore enables patch persistence.
func WithAssetStore(store AssetStore) Option {
	return func(s *Service) { s.assets = store }
}

// WithAuditStore enables the analysis audit log.
func WithAuditStore(store AuditStore) Option {
	return func(s *Service) { s.audit = store }
}

// WithEmitter sets the event emitter.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Service) { s.events = e }
}

// Service runs analyses synchronously or as polled jobs.
type Service struct {
	engine *processor.Engine
	jobs   *storage.JobStore
	assets AssetStore
	audit  AuditStore
	events *events.Emitter
	log    *logger.Logger
}

// NewService creates a service. Without options nothing is persisted or
// published.
func NewService(engine *processor.Engine, jobs *storage.JobStore, log *logger.Logger, opts ...Option) *Service {
	log = log.WithComponent("compliance-service")
	s := &Service{
		engine: engine,
		jobs:   jobs,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = events.NewEmitter(nil, log)
	}
	return s
}

// Detect classifies pages without extracting anything else.
func (s *Service) Detect(pages []domain.Page) (domain.DetectionResult, error) {
	result, err := s.engine.DetectDocType(pages)
	if err != nil {
		return domain.DetectionResult{}, errors.ConfigLoad(err)
	}
	return result, nil
}

// Preview runs the pipeline without touching storage or publishing events.
func (s *Service) Preview(pages []domain.Page) (*domain.Analysis, error) {
	analysis, err := s.engine.Process(pages)
	if err != nil {
		return nil, errors.ConfigLoad(err)
	}
	return analysis, nil
}

// Analyze runs the pipeline and, when an asset is named and persistence is
// enabled, applies the patch to it.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	analysis, err := s.engine.Process(req.Pages)
	if err != nil {
		return nil, errors.ConfigLoad(err)
	}
	result := &AnalyzeResult{Analysis: analysis}

	if req.AssetID != "" && s.assets != nil && !analysis.Patch.IsEmpty() {
		outcome, err := s.assets.ApplyPatch(ctx, req.AssetID, analysis.Patch)
		if err != nil {
			return nil, err
		}
		if req.BuildingID != "" && outcome.BuildingID != req.BuildingID {
			s.log.Warn().
				Str("asset_id", req.AssetID).
				Str("building_id", req.BuildingID).
				Str("asset_building_id", outcome.BuildingID).
				Msg("patched asset belongs to a different building")
		}
		result.Applied = outcome
		s.events.DueDateUpdated(ctx, outcome, analysis.Patch.AssessmentType)
		s.writeAudit(ctx, analysis, req)
	}

	s.events.DocumentAnalyzed(ctx, analysis, req.BuildingID, req.AssetID)

	s.log.Info().
		Str("doc_type", analysis.Detection.Type).
		Float64("score", analysis.Detection.Score).
		Int("fields_extracted", analysis.Fields.Len()).
		Str("asset_id", req.AssetID).
		Bool("patched", result.Applied != nil).
		Int64("duration_ms", analysis.ProcessingTimeMs).
		Msg("compliance document analysed")

	return result, nil
}

// StartAnalysis queues req and returns the pending job for polling.
func (s *Service) StartAnalysis(ctx context.Context, req AnalyzeRequest) domain.AnalysisJob {
	job := s.jobs.Create(req.BuildingID, req.AssetID)

	// The request context ends with the response; the job must outlive it.
	go s.runJob(context.WithoutCancel(ctx), job.JobID, req)

	return job
}

func (s *Service) runJob(ctx context.Context, jobID string, req AnalyzeRequest) {
	log := s.log.WithJobID(jobID)
	s.jobs.Update(jobID, func(j *domain.AnalysisJob) { j.Status = domain.StatusProcessing })

	result, err := s.Analyze(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("analysis job failed")
		s.jobs.Fail(jobID, err)
		return
	}
	s.jobs.Complete(jobID, result.Analysis, result.Applied)
}

// GetJob returns an analysis job.
func (s *Service) GetJob(jobID string) (domain.AnalysisJob, error) {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return domain.AnalysisJob{}, errors.NotFound("analysis job")
	}
	return job, nil
}

// Types lists the configured document types in declaration order.
func (s *Service) Types() ([]TypeInfo, string, error) {
	cfg, err := s.engine.Config()
	if err != nil {
		return nil, "", errors.ConfigLoad(err)
	}

	types := make([]TypeInfo, 0, len(cfg.Types))
	for _, dt := range cfg.Types {
		info := TypeInfo{
			Name:           dt.Name,
			AssessmentType: dt.Map.AssessmentType,
			DocType:        dt.Map.DocType,
			Fields:         make([]string, 0, len(dt.Fields)),
		}
		if info.DocType == "" {
			info.DocType = "assessment"
		}
		for _, f := range dt.Fields {
			info.Fields = append(info.Fields, f.Name)
		}
		if dt.Compute != nil {
			info.NextDueHint = dt.Compute.NextDueHint
		}
		types = append(types, info)
	}
	return types, cfg.Tag, nil
}

// writeAudit records an analysis whose patch was applied to req.AssetID.
func (s *Service) writeAudit(ctx context.Context, analysis *domain.Analysis, req AnalyzeRequest) {
	if s.audit == nil {
		return
	}
	entry := repository.NewAuditEntry(analysis, req.BuildingID, req.AssetID)
	if err := s.audit.Insert(ctx, &entry); err != nil {
		s.log.Error().Err(err).Str("asset_id", req.AssetID).Msg("failed to write compliance analysis audit log")
	}
}

// DueAssets lists a building's assets due before the given date.
func (s *Service) DueAssets(ctx context.Context, buildingID string, before time.Time) ([]domain.ComplianceAsset, error) {
	if s.assets == nil {
		return nil, errors.Unavailable("compliance asset storage is not configured")
	}
	return s.assets.ListDue(ctx, buildingID, before)
}

// AnalysisHistory lists the most recent analyses recorded for an asset.
func (s *Service) AnalysisHistory(ctx context.Context, assetID string, limit int) ([]domain.AnalysisAuditEntry, error) {
	if s.audit == nil {
		return nil, errors.Unavailable("compliance audit storage is not configured")
	}
	return s.audit.ListForAsset(ctx, assetID, limit)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
)

// ComplianceService compares processed certificates against requirement templates and
// records the resulting analyses.
type ComplianceService struct {
	logger     *logrus.Logger
	documents  domain.DocumentStore
	templates  domain.TemplateStore
	analyses   domain.AnalysisStore
	comparator *Comparator
	now        func() time.Time
	newID      func() string
}

// ComplianceOption configures a ComplianceService.
type ComplianceOption func(*ComplianceService)

// WithClock sets the clock that supplies the reference time of each analysis.
func WithClock(now func() time.Time) ComplianceOption {
	return func(s *ComplianceService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithComparator replaces the default comparator.
func WithComparator(comparator *Comparator) ComplianceOption {
	return func(s *ComplianceService) {
		if comparator != nil {
			s.comparator = comparator
		}
	}
}

// NewComplianceService creates a new compliance service
func NewComplianceService(
	logger *logrus.Logger,
	documents domain.DocumentStore,
	templates domain.TemplateStore,
	analyses domain.AnalysisStore,
	opts ...ComplianceOption,
) *ComplianceService {
	s := &ComplianceService{
		logger:    logger,
		documents: documents,
		templates: templates,
		analyses:  analyses,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.comparator == nil {
		s.comparator = NewComparator(logger, nil, 0)
	}
	return s
}

// Analyze runs the template against the latest extraction of a document and stores the
// analysis. It fails with ErrNotFound for an unknown document or template and with
// ErrNotProcessed when the document has not been extracted yet.
func (s *ComplianceService) Analyze(ctx context.Context, documentID, templateID string) (*domain.ComplianceAnalysis, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.ExtractedData == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotProcessed)
	}

	template, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}

	analysis, err := s.AnalyzeExtraction(doc.ExtractedData, template)
	if err != nil {
		return nil, err
	}
	analysis.DocumentID = doc.ID

	if err := s.analyses.SaveAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.WithFields(logrus.Fields(analysis.LogFields())).Info("Compliance analysis completed")
	return analysis, nil
}

// AnalyzeExtraction compares an extraction with a template without touching storage.
// The clock is read once, so every requirement sees the same "now".
func (s *ComplianceService) AnalyzeExtraction(extraction *domain.ExtractionResult, template *domain.RequirementTemplate) (*domain.ComplianceAnalysis, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if len(template.Requirements) == 0 {
		return nil, fmt.Errorf("template %s: %w", template.ID, domain.ErrEmptyTemplate)
	}

	now := s.now().UTC()
	results := s.comparator.Compare(extraction, template, now)

	analysis, err := Aggregate(results)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", template.ID, err)
	}
	analysis.ID = s.newID()
	analysis.TemplateID = template.ID
	analysis.AnalyzedAt = now

	s.logger.WithFields(logrus.Fields{
		"analysis_id":    analysis.ID,
		"template_id":    template.ID,
		"overall_status": analysis.OverallStatus,
		"score":          analysis.Score,
	}).Debug("Aggregated compliance results")

	return analysis, nil
}

// GetAnalysis returns a stored analysis.
func (s *ComplianceService) GetAnalysis(ctx context.Context, id string) (*domain.ComplianceAnalysis, error) {
	analysis, err := s.analyses.GetAnalysis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}
	return analysis, nil
}

// ListAnalyses returns the analyses recorded for a document, oldest first.
func (s *ComplianceService) ListAnalyses(ctx context.Context, documentID string) ([]*domain.ComplianceAnalysis, error) {
	if _, err := s.documents.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	analyses, err := s.analyses.ListAnalyses(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses for document %s: %w", documentID, err)
	}
	return analyses, nil
}

// ListTemplates returns the available requirement templates.
func (s *ComplianceService) ListTemplates(ctx context.Context) ([]*domain.RequirementTemplate, error) {
	return s.templates.ListTemplates(ctx)
}

// GetTemplate returns a requirement template by ID.
func (s *ComplianceService) GetTemplate(ctx context.Context, id string) (*domain.RequirementTemplate, error) {
	return s.templates.GetTemplate(ctx, id)
}

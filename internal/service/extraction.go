package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
	"github.com/coi-compliance-server/pkg/certparse"
)

// ErrVisionUnavailable is reported in logs when a scanned document arrives and no vision
// provider is configured.
var ErrVisionUnavailable = errors.New("vision extraction is not configured")

// ExtractionService turns stored certificates into extraction results.
type ExtractionService struct {
	logger    *logrus.Logger
	documents domain.DocumentStore
	extractor *certparse.Extractor
	vision    domain.VisionExtractor
	cache     domain.ExtractionCache
	now       func() time.Time
}

// ExtractionOption configures an ExtractionService.
type ExtractionOption func(*ExtractionService)

// WithVision enables the vision fallback for documents without a text layer.
func WithVision(vision domain.VisionExtractor) ExtractionOption {
	return func(s *ExtractionService) {
		s.vision = vision
	}
}

// WithExtractionCache memoizes vision results by document content.
func WithExtractionCache(cache domain.ExtractionCache) ExtractionOption {
	return func(s *ExtractionService) {
		s.cache = cache
	}
}

// WithExtractionClock sets the clock used for document timestamps.
func WithExtractionClock(now func() time.Time) ExtractionOption {
	return func(s *ExtractionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewExtractionService creates a new extraction service
func NewExtractionService(logger *logrus.Logger, documents domain.DocumentStore, extractor *certparse.Extractor, opts ...ExtractionOption) *ExtractionService {
	if extractor == nil {
		extractor = certparse.NewExtractor()
	}
	s := &ExtractionService{
		logger:    logger,
		documents: documents,
		extractor: extractor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractText runs text-layer extraction without touching storage.
func (s *ExtractionService) ExtractText(text string) *domain.ExtractionResult {
	return s.extractor.Extract(text)
}

// CreateDocument registers an uploaded certificate. At least one of text or content is required.
func (s *ExtractionService) CreateDocument(ctx context.Context, fileName, mimeType, text string, content []byte) (*domain.Document, error) {
	if strings.TrimSpace(text) == "" && len(content) == 0 {
		return nil, domain.NewValidationError("content", "document text or content is required", nil)
	}

	now := s.now().UTC()
	doc := &domain.Document{
		ID:        uuid.New().String(),
		FileName:  fileName,
		MimeType:  mimeType,
		Text:      text,
		Content:   content,
		Status:    domain.DocumentUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.documents.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"file_name":   fileName,
		"mime_type":   mimeType,
		"bytes":       len(content),
	}).Info("Document registered")

	return doc, nil
}

// GetDocument returns a stored document with its latest extraction.
func (s *ExtractionService) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	return doc, nil
}

// ProcessDocument extracts the certificate facts of a stored document and persists them.
// Documents with a text layer are parsed directly; scanned documents go through the vision
// provider. A failed vision call produces a placeholder extraction rather than an error.
func (s *ExtractionService) ProcessDocument(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	var result *domain.ExtractionResult
	if doc.HasTextLayer() {
		result = s.extractor.Extract(doc.Text)
	} else {
		result = s.extractScanned(ctx, doc)
	}

	if err := s.documents.SaveExtraction(ctx, doc.ID, result); err != nil {
		return nil, fmt.Errorf("failed to save extraction for document %s: %w", doc.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":       doc.ID,
		"extraction_source": result.Source,
		"policies":          len(result.Policies),
		"confidence":        result.Confidence,
	}).Info("Document processed")

	return result, nil
}

func (s *ExtractionService) extractScanned(ctx context.Context, doc *domain.Document) *domain.ExtractionResult {
	if s.vision == nil {
		return s.placeholder(doc, ErrVisionUnavailable)
	}
	if len(doc.Content) == 0 {
		return s.placeholder(doc, errors.New("document has neither text nor content"))
	}

	key := ContentKey(doc.Content)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.logger.WithField("document_id", doc.ID).Debug("Vision extraction served from cache")
			return cached
		}
	}

	raw, err := s.vision.Extract(ctx, domain.VisionInput{Data: doc.Content, MimeType: doc.MimeType})
	if err != nil {
		return s.placeholder(doc, err)
	}

	result, err := s.extractor.Coerce(raw)
	if err != nil {
		return s.placeholder(doc, fmt.Errorf("vision output rejected: %w", err))
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	return result
}

// placeholder is the deterministic stand-in used when no extraction could be made: the
// default policy with assumed limits and zero confidence.
func (s *ExtractionService) placeholder(doc *domain.Document, cause error) *domain.ExtractionResult {
	s.logger.WithFields(logrus.Fields{
		"document_id":       doc.ID,
		"extraction_source": domain.SourcePlaceholder,
		"error":             cause.Error(),
	}).Warn("Vision extraction failed, using placeholder extraction")

	result := s.extractor.Extract("")
	result.Source = domain.SourcePlaceholder
	result.Confidence = 0
	for i := range result.Policies {
		result.Policies[i].Confidence = 0
	}
	return result
}

// ContentKey identifies document content for caching.
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

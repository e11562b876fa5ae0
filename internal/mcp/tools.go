// Package mcp exposes certificate extraction and compliance analysis as MCP tools.
package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
)

// Tool names
const (
	ToolExtractCertificate = "extract_certificate"
	ToolAnalyzeCertificate = "analyze_certificate"
	ToolRegisterDocument   = "register_document"
	ToolProcessDocument    = "process_document"
	ToolAnalyzeDocument    = "analyze_document"
	ToolListTemplates      = "list_templates"
	ToolGetAnalysis        = "get_analysis"
)

// DocumentService is the extraction side used by the tools.
type DocumentService interface {
	ExtractText(text string) *domain.ExtractionResult
	CreateDocument(ctx context.Context, fileName, mimeType, text string, content []byte) (*domain.Document, error)
	ProcessDocument(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
}

// AnalysisService is the compliance side used by the tools.
type AnalysisService interface {
	Analyze(ctx context.Context, documentID, templateID string) (*domain.ComplianceAnalysis, error)
	AnalyzeExtraction(extraction *domain.ExtractionResult, template *domain.RequirementTemplate) (*domain.ComplianceAnalysis, error)
	GetAnalysis(ctx context.Context, id string) (*domain.ComplianceAnalysis, error)
	ListTemplates(ctx context.Context) ([]*domain.RequirementTemplate, error)
	GetTemplate(ctx context.Context, id string) (*domain.RequirementTemplate, error)
}

// ExtractCertificateArgs are the arguments of extract_certificate.
type ExtractCertificateArgs struct {
	Text string `json:"text" jsonschema:"full text of the insurance certificate"`
}

// AnalyzeCertificateArgs are the arguments of analyze_certificate.
type AnalyzeCertificateArgs struct {
	Text       string                      `json:"text" jsonschema:"full text of the insurance certificate"`
	TemplateID string                      `json:"template_id,omitempty" jsonschema:"ID of a stored requirement template"`
	Template   *domain.RequirementTemplate `json:"template,omitempty" jsonschema:"inline requirement template, used instead of template_id"`
}

// RegisterDocumentArgs are the arguments of register_document.
type RegisterDocumentArgs struct {
	FileName      string `json:"file_name,omitempty" jsonschema:"original file name"`
	MimeType      string `json:"mime_type,omitempty" jsonschema:"media type such as application/pdf or image/png"`
	Text          string `json:"text,omitempty" jsonschema:"text layer of the certificate when available"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"base64 encoded document bytes for scanned certificates"`
}

// DocumentArgs identify a stored document.
type DocumentArgs struct {
	DocumentID string `json:"document_id" jsonschema:"ID returned by register_document"`
}

// AnalyzeDocumentArgs are the arguments of analyze_document.
type AnalyzeDocumentArgs struct {
	DocumentID string `json:"document_id" jsonschema:"ID of a processed document"`
	TemplateID string `json:"template_id" jsonschema:"ID of a stored requirement template"`
}

// AnalysisArgs identify a stored analysis.
type AnalysisArgs struct {
	AnalysisID string `json:"analysis_id" jsonschema:"ID of a compliance analysis"`
}

// ListTemplatesArgs takes no arguments.
type ListTemplatesArgs struct{}

// TemplateSummary is the list_templates view of a template.
type TemplateSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	PolicyTypes  []domain.PolicyType `json:"policy_types"`
	Requirements int                 `json:"requirements"`
}

// ToolHandlers implements the tool behavior independently of the MCP transport.
type ToolHandlers struct {
	logger     *logrus.Logger
	documents  DocumentService
	compliance AnalysisService
}

// NewToolHandlers creates the tool handlers
func NewToolHandlers(logger *logrus.Logger, documents DocumentService, compliance AnalysisService) *ToolHandlers {
	return &ToolHandlers{
		logger:     logger,
		documents:  documents,
		compliance: compliance,
	}
}

// ExtractCertificate parses certificate text.
func (h *ToolHandlers) ExtractCertificate(ctx context.Context, args ExtractCertificateArgs) (*domain.ExtractionResult, error) {
	if strings.TrimSpace(args.Text) == "" {
		return nil, domain.NewValidationError("text", "certificate text is required", nil)
	}
	return h.documents.ExtractText(args.Text), nil
}

// AnalyzeCertificate extracts certificate text and scores it against a template without
// storing anything.
func (h *ToolHandlers) AnalyzeCertificate(ctx context.Context, args AnalyzeCertificateArgs) (*domain.ComplianceAnalysis, error) {
	if strings.TrimSpace(args.Text) == "" {
		return nil, domain.NewValidationError("text", "certificate text is required", nil)
	}

	template := args.Template
	if template == nil {
		if args.TemplateID == "" {
			return nil, domain.NewValidationError("template_id", "template or template_id is required", nil)
		}
		var err error
		template, err = h.compliance.GetTemplate(ctx, args.TemplateID)
		if err != nil {
			return nil, err
		}
	}

	return h.compliance.AnalyzeExtraction(h.documents.ExtractText(args.Text), template)
}

// RegisterDocument stores a certificate for later processing.
func (h *ToolHandlers) RegisterDocument(ctx context.Context, args RegisterDocumentArgs) (*domain.Document, error) {
	var content []byte
	if args.ContentBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(args.ContentBase64)
		if err != nil {
			return nil, domain.NewValidationError("content_base64", "content is not valid base64", nil)
		}
		content = decoded
	}
	return h.documents.CreateDocument(ctx, args.FileName, args.MimeType, args.Text, content)
}

// ProcessDocument extracts a stored certificate.
func (h *ToolHandlers) ProcessDocument(ctx context.Context, args DocumentArgs) (*domain.ExtractionResult, error) {
	if args.DocumentID == "" {
		return nil, domain.NewValidationError("document_id", "document_id is required", nil)
	}
	return h.documents.ProcessDocument(ctx, args.DocumentID)
}

// AnalyzeDocument runs and records an analysis of a processed document.
func (h *ToolHandlers) AnalyzeDocument(ctx context.Context, args AnalyzeDocumentArgs) (*domain.ComplianceAnalysis, error) {
	if args.DocumentID == "" || args.TemplateID == "" {
		return nil, domain.NewValidationError("document_id", "document_id and template_id are required", nil)
	}
	return h.compliance.Analyze(ctx, args.DocumentID, args.TemplateID)
}

// GetAnalysis returns a recorded analysis.
func (h *ToolHandlers) GetAnalysis(ctx context.Context, args AnalysisArgs) (*domain.ComplianceAnalysis, error) {
	if args.AnalysisID == "" {
		return nil, domain.NewValidationError("analysis_id", "analysis_id is required", nil)
	}
	return h.compliance.GetAnalysis(ctx, args.AnalysisID)
}

// ListTemplates summarizes the available templates.
func (h *ToolHandlers) ListTemplates(ctx context.Context, _ ListTemplatesArgs) ([]TemplateSummary, error) {
	templates, err := h.compliance.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	summaries := make([]TemplateSummary, 0, len(templates))
	for _, template := range templates {
		policyTypes := make([]domain.PolicyType, 0, len(template.Requirements))
		for _, req := range template.Requirements {
			policyTypes = append(policyTypes, req.PolicyType)
		}
		summaries = append(summaries, TemplateSummary{
			ID:           template.ID,
			Name:         template.Name,
			Description:  template.Description,
			PolicyTypes:  policyTypes,
			Requirements: len(template.Requirements),
		})
	}
	return summaries, nil
}

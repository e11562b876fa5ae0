package domain

import (
	"context"
	"encoding/json"
)

// VisionInput is a document handed to the vision model when it has no text layer.
type VisionInput struct {
	Data     []byte
	MimeType string
}

// VisionExtractor turns a scanned certificate into the loosely-typed JSON object the model
// produced. The result is untrusted and must go through coercion before use.
type VisionExtractor interface {
	Extract(ctx context.Context, input VisionInput) (json.RawMessage, error)
}

// DocumentStore persists uploaded certificates and their latest extraction.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	SaveExtraction(ctx context.Context, documentID string, extraction *ExtractionResult) error
}

// TemplateStore resolves requirement templates by ID.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*RequirementTemplate, error)
	ListTemplates(ctx context.Context) ([]*RequirementTemplate, error)
}

// AnalysisStore records compliance analyses. Analyses are insert-only: there is no update path.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, analysis *ComplianceAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*ComplianceAnalysis, error)
	ListAnalyses(ctx context.Context, documentID string) ([]*ComplianceAnalysis, error)
}

// ExtractionCache memoizes coerced vision extractions by document content hash.
type ExtractionCache interface {
	Get(ctx context.Context, key string) (*ExtractionResult, bool)
	Set(ctx context.Context, key string, extraction *ExtractionResult)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetVisionConfig() *VisionConfig
	GetEngineConfig() *EngineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}

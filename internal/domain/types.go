// Package domain contains the core entities of certificate compliance analysis:
// facts extracted from a vendor's insurance certificate, the requirement template a
// client imposes on that vendor, and the gap report produced by comparing the two.
package domain

import (
	"time"
)

// PolicyType is the canonical code of a coverage line, e.g. GENERAL_LIABILITY.
// The set of known codes is data-driven (see pkg/certparse), so it is not closed here.
type PolicyType string

const (
	PolicyGeneralLiability      PolicyType = "GENERAL_LIABILITY"
	PolicyEmployersLiability    PolicyType = "EMPLOYERS_LIABILITY"
	PolicyProfessionalLiability PolicyType = "PROFESSIONAL_LIABILITY"
	PolicyProductLiability      PolicyType = "PRODUCT_LIABILITY"
	PolicyContractorsAllRisk    PolicyType = "CONTRACTORS_ALL_RISK"
	PolicyProperty              PolicyType = "PROPERTY"
)

// String returns the canonical code.
func (pt PolicyType) String() string {
	return string(pt)
}

// ComplianceStatus is the verdict for one requirement, or for a whole analysis.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusPartial      ComplianceStatus = "partial"
	StatusNonCompliant ComplianceStatus = "non_compliant"
	StatusMissing      ComplianceStatus = "missing"
	StatusExpired      ComplianceStatus = "expired"
)

// IsValid reports whether the status is one of the known verdicts.
func (s ComplianceStatus) IsValid() bool {
	switch s {
	case StatusCompliant, StatusPartial, StatusNonCompliant, StatusMissing, StatusExpired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s ComplianceStatus) String() string {
	return string(s)
}

// GapType identifies the compliance dimension a gap was found in.
type GapType string

const (
	GapMissingPolicy              GapType = "missing_policy"
	GapInsufficientLimit          GapType = "insufficient_limit"
	GapExcessiveDeductible        GapType = "excessive_deductible"
	GapMissingEndorsement         GapType = "missing_endorsement"
	GapMissingAdditionalInsured   GapType = "missing_additional_insured"
	GapMissingWaiverOfSubrogation GapType = "missing_waiver_of_subrogation"
	GapExpired                    GapType = "expired"
	GapExpiringSoon               GapType = "expiring_soon"
)

// IsValid reports whether the gap type is known.
func (g GapType) IsValid() bool {
	switch g {
	case GapMissingPolicy, GapInsufficientLimit, GapExcessiveDeductible, GapMissingEndorsement,
		GapMissingAdditionalInsured, GapMissingWaiverOfSubrogation, GapExpired, GapExpiringSoon:
		return true
	default:
		return false
	}
}

// Severity ranks a gap. It is assigned once by the comparator and is authoritative:
// consumers must never re-derive it from the gap type.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// IsValid reports whether the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	default:
		return false
	}
}

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// ExtractionSource records which code path produced an ExtractionResult.
type ExtractionSource string

const (
	SourceTextLayer   ExtractionSource = "text_layer"
	SourceVision      ExtractionSource = "vision"
	SourcePlaceholder ExtractionSource = "placeholder"
)

// AdditionalInsured captures the certificate-level contractual protections.
type AdditionalInsured struct {
	Name                *string `json:"name,omitempty"`
	IsNamedAsAdditional bool    `json:"is_named_as_additional"`
	WaiverOfSubrogation bool    `json:"waiver_of_subrogation"`
}

// Policy is one coverage line found on a certificate. CoverageLimit is the legacy
// single-limit field some vision outputs still use.
type Policy struct {
	PolicyType                 PolicyType `json:"policy_type"`
	LocalizedName              string     `json:"localized_name"`
	PolicyNumber               *string    `json:"policy_number,omitempty"`
	CoverageLimitPerPeriod     *float64   `json:"coverage_limit_per_period,omitempty"`
	CoverageLimitPerOccurrence *float64   `json:"coverage_limit_per_occurrence,omitempty"`
	CoverageLimit              *float64   `json:"coverage_limit,omitempty"`
	Deductible                 *float64   `json:"deductible,omitempty"`
	Currency                   string     `json:"currency"`
	LimitsAssumed              bool       `json:"limits_assumed"`
	EffectiveDate              *time.Time `json:"effective_date,omitempty"`
	ExpirationDate             *time.Time `json:"expiration_date,omitempty"`
	RetroactiveDate            *time.Time `json:"retroactive_date,omitempty"`
	EndorsementCodes           []string   `json:"endorsement_codes"`
	Endorsements               []string   `json:"endorsements"`
	Confidence                 float64    `json:"confidence"`
}

// EffectiveLimit returns the limit the comparator checks: the per-period limit, or the
// legacy single value when per-period is absent.
func (p *Policy) EffectiveLimit() (float64, bool) {
	if p.CoverageLimitPerPeriod != nil {
		return *p.CoverageLimitPerPeriod, true
	}
	if p.CoverageLimit != nil {
		return *p.CoverageLimit, true
	}
	return 0, false
}

// ExtractionResult holds everything extracted from one certificate in one processing attempt.
type ExtractionResult struct {
	CertificateNumber    *string           `json:"certificate_number,omitempty"`
	IssueDate            *time.Time        `json:"issue_date,omitempty"`
	ExpiryDate           *time.Time        `json:"expiry_date,omitempty"`
	InsurerName          *string           `json:"insurer_name,omitempty"`
	InsuredName          *string           `json:"insured_name,omitempty"`
	InsuredID            *string           `json:"insured_id,omitempty"`
	InsuredAddress       *string           `json:"insured_address,omitempty"`
	CertificateRequester *string           `json:"certificate_requester,omitempty"`
	ServiceCodes         []string          `json:"service_codes"`
	Policies             []Policy          `json:"policies"`
	AdditionalInsured    AdditionalInsured `json:"additional_insured"`
	Confidence           float64           `json:"confidence"`
	RawText              string            `json:"raw_text"`
	Source               ExtractionSource  `json:"source"`
	ExtractedAt          time.Time         `json:"extracted_at"`
}

// FindPolicy returns the first extracted policy of the given type.
func (e *ExtractionResult) FindPolicy(policyType PolicyType) *Policy {
	for i := range e.Policies {
		if e.Policies[i].PolicyType == policyType {
			return &e.Policies[i]
		}
	}
	return nil
}

// ComplianceGap is one deviation between a found policy and a requirement.
type ComplianceGap struct {
	Type             GapType  `json:"type"`
	Severity         Severity `json:"severity"`
	Required         any      `json:"required,omitempty"`
	Found            any      `json:"found,omitempty"`
	Message          string   `json:"message"`
	LocalizedMessage string   `json:"localized_message"`
}

// PolicyComparisonResult is the verdict for a single requirement.
type PolicyComparisonResult struct {
	RequirementID              string           `json:"requirement_id"`
	PolicyType                 PolicyType       `json:"policy_type"`
	Status                     ComplianceStatus `json:"status"`
	FoundPolicy                *Policy          `json:"found_policy,omitempty"`
	Gaps                       []ComplianceGap  `json:"gaps"`
	LimitCompliant             bool             `json:"limit_compliant"`
	DeductibleCompliant        bool             `json:"deductible_compliant"`
	EndorsementsCompliant      bool             `json:"endorsements_compliant"`
	ValidityCompliant          bool             `json:"validity_compliant"`
	AdditionalInsuredCompliant bool             `json:"additional_insured_compliant"`
	DaysUntilExpiry            *int             `json:"days_until_expiry,omitempty"`
}

// ComplianceAnalysis is the immutable record of one (document, template) run.
type ComplianceAnalysis struct {
	ID                string                   `json:"id"`
	DocumentID        string                   `json:"document_id"`
	TemplateID        string                   `json:"template_id"`
	OverallStatus     ComplianceStatus         `json:"overall_status"`
	Score             int                      `json:"score"`
	TotalRequirements int                      `json:"total_requirements"`
	CompliantCount    int                      `json:"compliant_count"`
	PartialCount      int                      `json:"partial_count"`
	NonCompliantCount int                      `json:"non_compliant_count"`
	MissingCount      int                      `json:"missing_count"`
	ExpiredCount      int                      `json:"expired_count"`
	Results           []PolicyComparisonResult `json:"results"`
	AnalyzedAt        time.Time                `json:"analyzed_at"`
}

// LogFields returns structured logging fields for audit trails.
func (a *ComplianceAnalysis) LogFields() map[string]any {
	return map[string]any{
		"analysis_id":    a.ID,
		"document_id":    a.DocumentID,
		"template_id":    a.TemplateID,
		"overall_status": string(a.OverallStatus),
		"score":          a.Score,
		"requirements":   a.TotalRequirements,
	}
}

// DocumentStatus tracks a certificate through processing.
type DocumentStatus string

const (
	DocumentUploaded  DocumentStatus = "uploaded"
	DocumentProcessed DocumentStatus = "processed"
)

// Document is a vendor-submitted certificate as known to the document store.
// Text holds the text layer when one exists; Content holds the original bytes for the
// vision fallback.
type Document struct {
	ID            string            `json:"id"`
	FileName      string            `json:"file_name"`
	MimeType      string            `json:"mime_type"`
	Text          string            `json:"text,omitempty"`
	Content       []byte            `json:"-"`
	Status        DocumentStatus    `json:"status"`
	ExtractedData *ExtractionResult `json:"extracted_data,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// HasTextLayer reports whether the document carries usable text.
func (d *Document) HasTextLayer() bool {
	for _, r := range d.Text {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

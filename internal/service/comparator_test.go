package service

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coi-compliance-server/internal/domain"
)

var analysisNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func newTestComparator() *Comparator {
	return NewComparator(testLogger(), nil, 0)
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// compliantPolicy returns a general liability policy that passes a 5M requirement.
func compliantPolicy() domain.Policy {
	return domain.Policy{
		PolicyType:             domain.PolicyGeneralLiability,
		LocalizedName:          "צד שלישי",
		CoverageLimitPerPeriod: floatPtr(5000000),
		Deductible:             floatPtr(20000),
		Currency:               "ILS",
		ExpirationDate:         timePtr(analysisNow.AddDate(1, 0, 0)),
		EndorsementCodes:       []string{"318", "309"},
		Endorsements: []string{
			"318 Additional insured - certificate requester / מבוטח נוסף - מבקש האישור",
			"309 Waiver of subrogation / ויתור על תחלוף",
		},
	}
}

func extractionWith(policies ...domain.Policy) *domain.ExtractionResult {
	return &domain.ExtractionResult{
		Policies: policies,
		AdditionalInsured: domain.AdditionalInsured{
			IsNamedAsAdditional: true,
			WaiverOfSubrogation: true,
		},
	}
}

func glRequirement() domain.Requirement {
	return domain.Requirement{
		ID:           "gl",
		PolicyType:   domain.PolicyGeneralLiability,
		MinimumLimit: 5000000,
		IsMandatory:  true,
	}
}

func TestComparator_ScenarioA_MissingPolicy(t *testing.T) {
	req := glRequirement()
	result := newTestComparator().CompareRequirement(&req, extractionWith(), analysisNow)

	assert.Equal(t, domain.StatusMissing, result.Status)
	require.Len(t, result.Gaps, 1)
	assert.Equal(t, domain.GapMissingPolicy, result.Gaps[0].Type)
	assert.Equal(t, domain.SeverityCritical, result.Gaps[0].Severity)
	assert.Contains(t, result.Gaps[0].LocalizedMessage, "צד שלישי")
	assert.Nil(t, result.FoundPolicy)
	assert.False(t, result.LimitCompliant)
}

func TestComparator_MissingOptionalPolicyIsMajor(t *testing.T) {
	req := glRequirement()
	req.IsMandatory = false
	result := newTestComparator().CompareRequirement(&req, extractionWith(), analysisNow)

	assert.Equal(t, domain.StatusMissing, result.Status)
	assert.Equal(t, domain.SeverityMajor, result.Gaps[0].Severity)
}

func TestComparator_ScenarioB_InsufficientLimit(t *testing.T) {
	policy := compliantPolicy()
	policy.CoverageLimitPerPeriod = floatPtr(2000000)

	req := glRequirement()
	result := newTestComparator().CompareRequirement(&req, extractionWith(policy), analysisNow)

	assert.Equal(t, domain.StatusNonCompliant, result.Status)
	require.Len(t, result.Gaps, 1)
	gap := result.Gaps[0]
	assert.Equal(t, domain.GapInsufficientLimit, gap.Type)
	assert.Equal(t, domain.SeverityCritical, gap.Severity)
	assert.Equal(t, 5000000.0, gap.Required)
	assert.Equal(t, 2000000.0, gap.Found)
	assert.Contains(t, gap.Message, "2,000,000")
	assert.False(t, result.LimitCompliant)
	assert.True(t, result.DeductibleCompliant)
}

func TestComparator_ScenarioC_ExpiredWinsOverSoftFailures(t *testing.T) {
	policy := compliantPolicy()
	policy.ExpirationDate = timePtr(analysisNow.AddDate(0, 0, -10))
	policy.Deductible = floatPtr(500000)

	req := glRequirement()
	req.MaximumDeductible = floatPtr(50000)
	req.RequiredEndorsements = []string{"321"}

	result := newTestComparator().CompareRequirement(&req, extractionWith(policy), analysisNow)

	assert.Equal(t, domain.StatusExpired, result.Status)
	require.NotNil(t, result.DaysUntilExpiry)
	assert.Equal(t, -10, *result.DaysUntilExpiry)
	assert.False(t, result.ValidityCompliant)
	assert.Equal(t, domain.GapExpired, result.Gaps[0].Type, "critical gaps sort first")
}

func TestComparator_ExpiredWithInsufficientLimitStaysNonCompliant(t *testing.T) {
	policy := compliantPolicy()
	policy.ExpirationDate = timePtr(analysisNow.AddDate(0, 0, -1))
	policy.CoverageLimitPerPeriod = floatPtr(1000000)

	req := glRequirement()
	result := newTestComparator().CompareRequirement(&req, extractionWith(policy), analysisNow)

	assert.Equal(t, domain.StatusNonCompliant, result.Status)
	assert.Len(t, result.Gaps, 2)
}

func TestComparator_Checks(t *testing.T) {
	tests := []struct {
		name         string
		mutatePolicy func(*domain.Policy)
		mutateReq    func(*domain.Requirement)
		mutateDoc    func(*domain.ExtractionResult)
		status       domain.ComplianceStatus
		gapTypes     []domain.GapType
	}{
		{
			name:     "Fully compliant",
			status:   domain.StatusCompliant,
			gapTypes: nil,
		},
		{
			name: "Legacy single limit is used when per-period is absent",
			mutatePolicy: func(p *domain.Policy) {
				p.CoverageLimitPerPeriod = nil
				p.CoverageLimit = floatPtr(6000000)
			},
			status: domain.StatusCompliant,
		},
		{
			name:         "No limit at all fails a positive minimum",
			mutatePolicy: func(p *domain.Policy) { p.CoverageLimitPerPeriod = nil },
			status:       domain.StatusNonCompliant,
			gapTypes:     []domain.GapType{domain.GapInsufficientLimit},
		},
		{
			name:         "Zero minimum accepts a missing limit",
			mutatePolicy: func(p *domain.Policy) { p.CoverageLimitPerPeriod = nil },
			mutateReq:    func(r *domain.Requirement) { r.MinimumLimit = 0 },
			status:       domain.StatusCompliant,
		},
		{
			name:      "Excessive deductible",
			mutateReq: func(r *domain.Requirement) { r.MaximumDeductible = floatPtr(10000) },
			status:    domain.StatusPartial,
			gapTypes:  []domain.GapType{domain.GapExcessiveDeductible},
		},
		{
			name:         "Unstated deductible is not applicable",
			mutatePolicy: func(p *domain.Policy) { p.Deductible = nil },
			mutateReq:    func(r *domain.Requirement) { r.MaximumDeductible = floatPtr(10000) },
			status:       domain.StatusCompliant,
		},
		{
			name:      "Endorsement matched by code and by description",
			mutateReq: func(r *domain.Requirement) { r.RequiredEndorsements = []string{"318", "WAIVER OF SUBROGATION"} },
			status:    domain.StatusCompliant,
		},
		{
			name:      "Each missing endorsement is a gap",
			mutateReq: func(r *domain.Requirement) { r.RequiredEndorsements = []string{"321", "302", "318"} },
			status:    domain.StatusPartial,
			gapTypes:  []domain.GapType{domain.GapMissingEndorsement, domain.GapMissingEndorsement},
		},
		{
			name:      "Additional insured required but absent",
			mutateReq: func(r *domain.Requirement) { r.RequireAdditionalInsured = true },
			mutateDoc: func(e *domain.ExtractionResult) { e.AdditionalInsured.IsNamedAsAdditional = false },
			status:    domain.StatusPartial,
			gapTypes:  []domain.GapType{domain.GapMissingAdditionalInsured},
		},
		{
			name:      "Waiver required but absent",
			mutateReq: func(r *domain.Requirement) { r.RequireWaiverSubrogation = true },
			mutateDoc: func(e *domain.ExtractionResult) { e.AdditionalInsured.WaiverOfSubrogation = false },
			status:    domain.StatusPartial,
			gapTypes:  []domain.GapType{domain.GapMissingWaiverOfSubrogation},
		},
		{
			name:         "Expiring soon",
			mutatePolicy: func(p *domain.Policy) { p.ExpirationDate = timePtr(analysisNow.AddDate(0, 0, 20)) },
			mutateReq:    func(r *domain.Requirement) { r.MinimumValidityDays = intPtr(30) },
			status:       domain.StatusPartial,
			gapTypes:     []domain.GapType{domain.GapExpiringSoon},
		},
		{
			name:         "Expiring today is still valid",
			mutatePolicy: func(p *domain.Policy) { p.ExpirationDate = timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) },
			status:       domain.StatusCompliant,
		},
		{
			name:         "No expiration date skips validity",
			mutatePolicy: func(p *domain.Policy) { p.ExpirationDate = nil },
			mutateReq:    func(r *domain.Requirement) { r.MinimumValidityDays = intPtr(30) },
			status:       domain.StatusCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := compliantPolicy()
			if tt.mutatePolicy != nil {
				tt.mutatePolicy(&policy)
			}
			req := glRequirement()
			if tt.mutateReq != nil {
				tt.mutateReq(&req)
			}
			extraction := extractionWith(policy)
			if tt.mutateDoc != nil {
				tt.mutateDoc(extraction)
			}

			result := newTestComparator().CompareRequirement(&req, extraction, analysisNow)

			assert.Equal(t, tt.status, result.Status)
			var types []domain.GapType
			for _, gap := range result.Gaps {
				types = append(types, gap.Type)
				assert.True(t, gap.Severity.IsValid())
				assert.NotEmpty(t, gap.Message)
				assert.NotEmpty(t, gap.LocalizedMessage)
			}
			assert.Equal(t, tt.gapTypes, types)
		})
	}
}

func TestComparator_DefaultValidityDays(t *testing.T) {
	policy := compliantPolicy()
	policy.ExpirationDate = timePtr(analysisNow.AddDate(0, 0, 10))
	req := glRequirement()

	withDefault := NewComparator(testLogger(), nil, 30).CompareRequirement(&req, extractionWith(policy), analysisNow)
	assert.Equal(t, domain.StatusPartial, withDefault.Status)

	req.MinimumValidityDays = intPtr(5)
	overridden := NewComparator(testLogger(), nil, 30).CompareRequirement(&req, extractionWith(policy), analysisNow)
	assert.Equal(t, domain.StatusCompliant, overridden.Status)
}

func TestComparator_FirstPolicyOfTypeIsUsed(t *testing.T) {
	first := compliantPolicy()
	first.CoverageLimitPerPeriod = floatPtr(1000000)
	second := compliantPolicy()

	req := glRequirement()
	result := newTestComparator().CompareRequirement(&req, extractionWith(first, second), analysisNow)

	assert.Equal(t, domain.StatusNonCompliant, result.Status)
}

func TestComparator_Deterministic(t *testing.T) {
	policy := compliantPolicy()
	policy.Deductible = floatPtr(90000)
	template := &domain.RequirementTemplate{ID: "t", Requirements: []domain.Requirement{
		glRequirement(),
		{ID: "el", PolicyType: domain.PolicyEmployersLiability, MinimumLimit: 20000000},
		{ID: "pl", PolicyType: domain.PolicyProfessionalLiability, MaximumDeductible: floatPtr(1)},
	}}

	comparator := newTestComparator()
	first := comparator.Compare(extractionWith(policy), template, analysisNow)
	second := comparator.Compare(extractionWith(policy), template, analysisNow)

	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	assert.Equal(t, "el", first[1].RequirementID)
}

func TestStatusFromGaps(t *testing.T) {
	critical := domain.ComplianceGap{Type: domain.GapInsufficientLimit, Severity: domain.SeverityCritical}
	expired := domain.ComplianceGap{Type: domain.GapExpired, Severity: domain.SeverityCritical}
	soft := domain.ComplianceGap{Type: domain.GapMissingEndorsement, Severity: domain.SeverityMajor}
	minor := domain.ComplianceGap{Type: domain.GapExpiringSoon, Severity: domain.SeverityMinor}
	missing := domain.ComplianceGap{Type: domain.GapMissingPolicy, Severity: domain.SeverityMajor}

	tests := []struct {
		name     string
		gaps     []domain.ComplianceGap
		expected domain.ComplianceStatus
	}{
		{"None", nil, domain.StatusCompliant},
		{"Minor only", []domain.ComplianceGap{minor}, domain.StatusPartial},
		{"Soft", []domain.ComplianceGap{soft, minor}, domain.StatusPartial},
		{"Expired beats soft", []domain.ComplianceGap{soft, expired}, domain.StatusExpired},
		{"Critical beats expired", []domain.ComplianceGap{expired, critical}, domain.StatusNonCompliant},
		{"Missing beats all", []domain.ComplianceGap{critical, missing}, domain.StatusMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusFromGaps(tt.gaps))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5,000,000", formatAmount(5000000))
	assert.Equal(t, "999", formatAmount(999))
	assert.Equal(t, "-1,500", formatAmount(-1500))
}

// TestCriticalGapsNeverCompliant verifies that a critical missing-policy or limit gap
// always yields missing or non_compliant, whatever the other checks find.
func TestCriticalGapsNeverCompliant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	comparator := newTestComparator()

	properties.Property("critical gap implies missing or non_compliant", prop.ForAll(
		func(present bool, limit, minimum float64, expiryOffset int, named, waiver bool) bool {
			req := domain.Requirement{
				PolicyType:               domain.PolicyGeneralLiability,
				MinimumLimit:             minimum,
				RequireAdditionalInsured: true,
				RequireWaiverSubrogation: true,
				MinimumValidityDays:      intPtr(30),
				IsMandatory:              true,
			}
			extraction := &domain.ExtractionResult{
				AdditionalInsured: domain.AdditionalInsured{IsNamedAsAdditional: named, WaiverOfSubrogation: waiver},
			}
			if present {
				policy := compliantPolicy()
				policy.CoverageLimitPerPeriod = floatPtr(limit)
				policy.ExpirationDate = timePtr(analysisNow.AddDate(0, 0, expiryOffset))
				extraction.Policies = []domain.Policy{policy}
			}

			result := comparator.CompareRequirement(&req, extraction, analysisNow)
			for _, gap := range result.Gaps {
				if gap.Severity == domain.SeverityCritical &&
					(gap.Type == domain.GapMissingPolicy || gap.Type == domain.GapInsufficientLimit) {
					return result.Status == domain.StatusMissing || result.Status == domain.StatusNonCompliant
				}
			}
			return result.Status.IsValid()
		},
		gen.Bool(),
		gen.Float64Range(0, 10000000),
		gen.Float64Range(0, 10000000),
		gen.IntRange(-400, 400),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

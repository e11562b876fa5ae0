package certparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coi-compliance-server/internal/domain"
)

const hebrewCertificate = `אישור עריכת ביטוח
מספר אישור: 2024-7781
תאריך הנפקה: 15/01/2024
לכבוד: עיריית תל אביב
שם המבוטח: בונים בע"מ
ח.פ. 512345678
כתובת המבוטח: רחוב הרצל 10, חיפה
קוד שירות: 009, 038
הראל חברה לביטוח בע"מ

צד שלישי פוליסה מס' GL-55123 מתאריך 01/01/2024 עד 31/12/2024 גבול אחריות 4,000,000 ₪ למקרה 2,000,000 ₪ השתתפות עצמית: 20,000 ₪ 302 318 309
חבות מעבידים פוליסה מס' EL-66100 מתאריך 01/01/2024 עד 31/12/2024 20,000,000 ₪ 319
`

const englishCertificate = `CERTIFICATE OF INSURANCE
Certificate No: COI-2024-001
Date of issue: 2024-03-01
Insurer: Migdal Insurance Company
Insured: Acme Builders Ltd
Company No: 514567890
Certificate holder: City of Haifa
Service codes: 038
General Liability Policy No: GL-9001 Effective 01/04/2024 Expiration 31/03/2025 Limit: 2.5 million NIS
Additional insured: City of Haifa
Waiver of subrogation in favour of the certificate holder.
`

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewExtractor(WithClock(func() time.Time { return fixedNow }))
}

func TestExtractor_HebrewCertificate(t *testing.T) {
	result := newTestExtractor().Extract(hebrewCertificate)

	require.NotNil(t, result.CertificateNumber)
	assert.Equal(t, "2024-7781", *result.CertificateNumber)
	require.NotNil(t, result.IssueDate)
	assert.True(t, date(2024, 1, 15).Equal(*result.IssueDate))
	require.NotNil(t, result.CertificateRequester)
	assert.Equal(t, "עיריית תל אביב", *result.CertificateRequester)
	require.NotNil(t, result.InsuredName)
	assert.Equal(t, `בונים בע"מ`, *result.InsuredName)
	require.NotNil(t, result.InsuredID)
	assert.Equal(t, "512345678", *result.InsuredID)
	require.NotNil(t, result.InsurerName)
	assert.Equal(t, "Harel Insurance", *result.InsurerName)
	assert.Equal(t, []string{"009", "038"}, result.ServiceCodes)
	assert.Equal(t, domain.SourceTextLayer, result.Source)
	assert.Equal(t, fixedNow, result.ExtractedAt)

	require.Len(t, result.Policies, 2)

	gl := result.Policies[0]
	assert.Equal(t, domain.PolicyGeneralLiability, gl.PolicyType)
	assert.Equal(t, "צד שלישי", gl.LocalizedName)
	require.NotNil(t, gl.PolicyNumber)
	assert.Equal(t, "GL-55123", *gl.PolicyNumber)
	require.NotNil(t, gl.CoverageLimitPerPeriod)
	assert.Equal(t, 4000000.0, *gl.CoverageLimitPerPeriod)
	require.NotNil(t, gl.CoverageLimitPerOccurrence)
	assert.Equal(t, 2000000.0, *gl.CoverageLimitPerOccurrence)
	require.NotNil(t, gl.Deductible)
	assert.Equal(t, 20000.0, *gl.Deductible)
	assert.False(t, gl.LimitsAssumed)
	assert.Equal(t, CurrencyILS, gl.Currency)
	require.NotNil(t, gl.EffectiveDate)
	assert.True(t, date(2024, 1, 1).Equal(*gl.EffectiveDate))
	require.NotNil(t, gl.ExpirationDate)
	assert.True(t, date(2024, 12, 31).Equal(*gl.ExpirationDate))
	assert.Subset(t, gl.EndorsementCodes, []string{"302", "318", "309"})
	assert.Equal(t, "302", gl.EndorsementCodes[0])
	assert.Len(t, gl.Endorsements, len(gl.EndorsementCodes))

	el := result.Policies[1]
	assert.Equal(t, domain.PolicyEmployersLiability, el.PolicyType)
	require.NotNil(t, el.CoverageLimitPerPeriod)
	assert.Equal(t, 20000000.0, *el.CoverageLimitPerPeriod)
	assert.Equal(t, *el.CoverageLimitPerPeriod, *el.CoverageLimitPerOccurrence)
	assert.Equal(t, []string{"319"}, el.EndorsementCodes)

	assert.True(t, result.AdditionalInsured.IsNamedAsAdditional)
	assert.True(t, result.AdditionalInsured.WaiverOfSubrogation)
	require.NotNil(t, result.AdditionalInsured.Name)
	assert.Equal(t, "עיריית תל אביב", *result.AdditionalInsured.Name)

	require.NotNil(t, result.ExpiryDate, "certificate expiry falls back to the earliest policy expiration")
	assert.True(t, date(2024, 12, 31).Equal(*result.ExpiryDate))
	assert.Greater(t, result.Confidence, 0.8)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestExtractor_EnglishCertificate(t *testing.T) {
	result := newTestExtractor().Extract(englishCertificate)

	require.NotNil(t, result.CertificateNumber)
	assert.Equal(t, "COI-2024-001", *result.CertificateNumber)
	require.NotNil(t, result.InsurerName)
	assert.Equal(t, "Migdal Insurance", *result.InsurerName)
	require.NotNil(t, result.InsuredName)
	assert.Equal(t, "Acme Builders Ltd", *result.InsuredName)
	require.NotNil(t, result.CertificateRequester)
	assert.Equal(t, "City of Haifa", *result.CertificateRequester)
	assert.Equal(t, []string{"038"}, result.ServiceCodes)

	require.Len(t, result.Policies, 1)
	policy := result.Policies[0]
	assert.Equal(t, domain.PolicyGeneralLiability, policy.PolicyType)
	require.NotNil(t, policy.PolicyNumber)
	assert.Equal(t, "GL-9001", *policy.PolicyNumber)
	require.NotNil(t, policy.CoverageLimitPerPeriod)
	assert.Equal(t, 2500000.0, *policy.CoverageLimitPerPeriod)
	require.NotNil(t, policy.EffectiveDate)
	assert.True(t, date(2024, 4, 1).Equal(*policy.EffectiveDate))
	require.NotNil(t, policy.ExpirationDate)
	assert.True(t, date(2025, 3, 31).Equal(*policy.ExpirationDate))
	assert.Empty(t, policy.EndorsementCodes)

	assert.True(t, result.AdditionalInsured.IsNamedAsAdditional, "synonym without a code")
	assert.True(t, result.AdditionalInsured.WaiverOfSubrogation)
	require.NotNil(t, result.AdditionalInsured.Name)
	assert.Equal(t, "City of Haifa", *result.AdditionalInsured.Name)
}

func TestExtractor_EmptyText(t *testing.T) {
	result := newTestExtractor().Extract("")

	assert.Nil(t, result.CertificateNumber)
	assert.Nil(t, result.InsurerName)
	assert.Empty(t, result.ServiceCodes)
	require.Len(t, result.Policies, 1)

	policy := result.Policies[0]
	assert.Equal(t, domain.PolicyGeneralLiability, policy.PolicyType)
	assert.True(t, policy.LimitsAssumed)
	require.NotNil(t, policy.CoverageLimitPerPeriod)
	assert.Equal(t, 4000000.0, *policy.CoverageLimitPerPeriod)
	assert.Zero(t, policy.Confidence)
	assert.Zero(t, result.Confidence)
}

func TestExtractor_AssumedLimits(t *testing.T) {
	result := newTestExtractor().Extract("ביטוח חבות מעבידים פוליסה מס' EL-1234 בתוקף")

	require.Len(t, result.Policies, 1)
	policy := result.Policies[0]
	assert.Equal(t, domain.PolicyEmployersLiability, policy.PolicyType)
	assert.True(t, policy.LimitsAssumed)
	require.NotNil(t, policy.CoverageLimitPerPeriod)
	assert.Equal(t, 20000000.0, *policy.CoverageLimitPerPeriod)
}

func TestExtractor_WindowSize(t *testing.T) {
	text := "צד שלישי ................................ 1,000,000 ₪"

	narrow := NewExtractor(WithWindowSize(20)).Extract(text)
	assert.True(t, narrow.Policies[0].LimitsAssumed, "amount beyond the window is not attributed")

	wide := NewExtractor(WithWindowSize(200)).Extract(text)
	assert.False(t, wide.Policies[0].LimitsAssumed)
}

func TestExtractor_Deterministic(t *testing.T) {
	extractor := newTestExtractor()
	assert.Equal(t, extractor.Extract(hebrewCertificate), extractor.Extract(hebrewCertificate))
}

func TestScoreExtraction_MorePopulatedFieldsScoreHigher(t *testing.T) {
	sparse := &domain.ExtractionResult{}
	name := "Acme"
	richer := &domain.ExtractionResult{InsuredName: &name}

	assert.GreaterOrEqual(t, ScoreExtraction(richer), ScoreExtraction(sparse))
}

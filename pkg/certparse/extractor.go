package certparse

import (
	"sort"
	"sync"
	"time"

	"github.com/coi-compliance-server/internal/domain"
)

// Extractor turns certificate text into an ExtractionResult. It never fails: missing
// information yields a sparse, low-confidence result.
type Extractor struct {
	dict         *Dictionary
	classifier   *Classifier
	amounts      *AmountParser
	endorsements *EndorsementResolver
	certificate  *FieldExtractor
	policy       *FieldExtractor
	windowSize   int
	minimum      float64
	now          func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWindowSize sets the number of runes searched after a policy's first mention.
func WithWindowSize(size int) Option {
	return func(e *Extractor) {
		if size > 0 {
			e.windowSize = size
		}
	}
}

// WithMinimumAmount sets the smallest value accepted as a coverage limit.
func WithMinimumAmount(minimum float64) Option {
	return func(e *Extractor) {
		if minimum > 0 {
			e.minimum = minimum
		}
	}
}

// WithDictionary replaces the embedded dictionary.
func WithDictionary(dict *Dictionary) Option {
	return func(e *Extractor) {
		if dict != nil {
			e.dict = dict
		}
	}
}

// WithClock sets the clock used to stamp ExtractedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		windowSize: DefaultWindowSize,
		minimum:    DefaultMinimumAmount,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dict == nil {
		e.dict = DefaultDictionary()
	}

	e.classifier = NewClassifier(e.dict)
	e.amounts = NewAmountParser(e.minimum)
	e.endorsements = NewEndorsementResolver(e.dict)
	e.certificate = NewFieldExtractor(certificateFields)
	e.policy = NewFieldExtractor(policyFields)
	return e
}

var (
	defaultExtractor     *Extractor
	defaultExtractorOnce sync.Once
)

// Extract runs the default extractor over raw certificate text.
func Extract(raw string) *domain.ExtractionResult {
	defaultExtractorOnce.Do(func() {
		defaultExtractor = NewExtractor()
	})
	return defaultExtractor.Extract(raw)
}

// Dictionary returns the tables the extractor uses.
func (e *Extractor) Dictionary() *Dictionary {
	return e.dict
}

// Extract parses raw certificate text.
func (e *Extractor) Extract(raw string) *domain.ExtractionResult {
	text := NewText(raw)
	normalized := text.String()

	result := &domain.ExtractionResult{
		RawText:     raw,
		Source:      domain.SourceTextLayer,
		ExtractedAt: e.now().UTC(),
	}

	fields := e.certificate.Extract(normalized)
	result.CertificateNumber = stringField(fields, FieldCertificateNumber)
	result.IssueDate = dateField(fields, FieldIssueDate)
	result.ExpiryDate = dateField(fields, FieldExpiryDate)
	result.InsuredName = stringField(fields, FieldInsuredName)
	result.InsuredID = stringField(fields, FieldInsuredID)
	result.InsuredAddress = stringField(fields, FieldInsuredAddress)
	result.CertificateRequester = stringField(fields, FieldCertificateRequester)
	if insurer, ok := ResolveInsurer(e.dict, text); ok {
		result.InsurerName = &insurer
	}
	result.ServiceCodes = ServiceCodes(normalized)

	for _, detection := range e.classifier.Classify(text) {
		if detection.LowConfidence {
			result.Policies = append(result.Policies, e.DefaultPolicy(detection.Entry.Code))
			continue
		}
		result.Policies = append(result.Policies, e.extractPolicy(text, detection, result.ExpiryDate))
	}

	allCodes := e.endorsements.Codes(normalized)
	named, waiver := e.endorsements.Flags(text, allCodes)
	result.AdditionalInsured = domain.AdditionalInsured{
		Name:                stringField(fields, FieldAdditionalInsured),
		IsNamedAsAdditional: named,
		WaiverOfSubrogation: waiver,
	}
	if named && result.AdditionalInsured.Name == nil && result.CertificateRequester != nil {
		requester := *result.CertificateRequester
		result.AdditionalInsured.Name = &requester
	}

	if result.ExpiryDate == nil {
		result.ExpiryDate = earliestExpiration(result.Policies)
	}

	result.Confidence = ScoreExtraction(result)
	return result
}

func (e *Extractor) extractPolicy(text *Text, detection Detection, certificateExpiry *time.Time) domain.Policy {
	window := text.Window(detection.Offset, e.windowSize)
	entry := detection.Entry

	policy := domain.Policy{
		PolicyType:       entry.Code,
		LocalizedName:    entry.LocalizedName,
		EndorsementCodes: e.endorsements.Codes(window),
	}
	policy.Endorsements = e.endorsements.Describe(policy.EndorsementCodes)

	fields := e.policy.Extract(window)
	policy.PolicyNumber = stringField(fields, FieldPolicyNumber)
	policy.RetroactiveDate = dateField(fields, FieldRetroactiveDate)
	policy.EffectiveDate = dateField(fields, FieldEffectiveDate)
	policy.ExpirationDate = dateField(fields, FieldExpirationDate)
	if policy.EffectiveDate == nil || policy.ExpirationDate == nil {
		e.positionalDates(window, &policy)
	}
	if policy.ExpirationDate == nil && certificateExpiry != nil {
		expiry := *certificateExpiry
		policy.ExpirationDate = &expiry
	}

	policy.Deductible = e.amounts.Deductible(window)
	perPeriod, perOccurrence, currency := e.amounts.Limits(window)
	policy.Currency = currency
	if perPeriod == nil {
		e.assumeLimits(&policy, entry)
	} else {
		policy.CoverageLimitPerPeriod = perPeriod
		policy.CoverageLimitPerOccurrence = perOccurrence
	}

	policy.Confidence = ScorePolicy(&policy)
	return policy
}

// positionalDates fills unlabelled policy dates from the order dates appear in the window:
// the first two are the period start and end, and a lone date is taken as the end.
func (e *Extractor) positionalDates(window string, policy *domain.Policy) {
	var dates []time.Time
	for _, m := range FindDates(window) {
		if policy.RetroactiveDate != nil && m.Time.Equal(*policy.RetroactiveDate) {
			continue
		}
		dates = append(dates, m.Time)
	}

	switch {
	case len(dates) == 0:
		return
	case len(dates) == 1:
		if policy.ExpirationDate == nil && (policy.EffectiveDate == nil || dates[0].After(*policy.EffectiveDate)) {
			policy.ExpirationDate = &dates[0]
		}
	default:
		start, end := dates[0], dates[1]
		if end.Before(start) {
			start, end = end, start
		}
		if policy.EffectiveDate == nil {
			policy.EffectiveDate = &start
		}
		if policy.ExpirationDate == nil {
			policy.ExpirationDate = &end
		}
	}
}

func (e *Extractor) assumeLimits(policy *domain.Policy, entry PolicyTypeEntry) {
	if entry.DefaultLimit <= 0 {
		return
	}
	perPeriod, perOccurrence := entry.DefaultLimit, entry.DefaultLimit
	policy.CoverageLimitPerPeriod = &perPeriod
	policy.CoverageLimitPerOccurrence = &perOccurrence
	policy.LimitsAssumed = true
}

// DefaultPolicy synthesizes the entry used when no coverage line could be recognised:
// default limits, no dates, no endorsements and zero confidence.
func (e *Extractor) DefaultPolicy(code domain.PolicyType) domain.Policy {
	entry, ok := e.dict.PolicyType(code)
	if !ok {
		entry = e.classifier.fallback().Entry
	}
	policy := domain.Policy{
		PolicyType:       entry.Code,
		LocalizedName:    entry.LocalizedName,
		Currency:         CurrencyILS,
		EndorsementCodes: []string{},
		Endorsements:     []string{},
	}
	e.assumeLimits(&policy, entry)
	return policy
}

func earliestExpiration(policies []domain.Policy) *time.Time {
	var dates []time.Time
	for _, p := range policies {
		if p.ExpirationDate != nil {
			dates = append(dates, *p.ExpirationDate)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return &dates[0]
}

func stringField(fields map[string]string, name string) *string {
	value, ok := fields[name]
	if !ok {
		return nil
	}
	return &value
}

func dateField(fields map[string]string, name string) *time.Time {
	value, ok := fields[name]
	if !ok {
		return nil
	}
	t, ok := ParseDate(value)
	if !ok {
		return nil
	}
	return &t
}

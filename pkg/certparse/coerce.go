package certparse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coi-compliance-server/internal/domain"
)

// CoerceExtraction converts the loosely-typed JSON object a vision model returned into an
// ExtractionResult using the default extractor's tables.
func CoerceExtraction(raw json.RawMessage) (*domain.ExtractionResult, error) {
	defaultExtractorOnce.Do(func() {
		defaultExtractor = NewExtractor()
	})
	return defaultExtractor.Coerce(raw)
}

// Coerce converts untrusted model output into an ExtractionResult. Only a payload that is
// not a JSON object is an error; missing, extra or mistyped fields are tolerated: numbers
// given as strings, amounts with separators, dates in any supported notation and booleans
// spelled as words are all accepted. Confidence is clipped to [0,1] and an empty policy
// list is replaced by the default entry.
func (e *Extractor) Coerce(raw json.RawMessage) (*domain.ExtractionResult, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("vision output is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("vision output is not a JSON object: null")
	}
	doc := object(obj)

	result := &domain.ExtractionResult{
		CertificateNumber:    doc.str("certificate_number", "certificateNumber"),
		IssueDate:            doc.date("issue_date", "issueDate"),
		ExpiryDate:           doc.date("expiry_date", "expiryDate", "expiration_date"),
		InsurerName:          doc.str("insurer_name", "insurerName", "insurer"),
		InsuredName:          doc.str("insured_name", "insuredName"),
		InsuredID:            doc.str("insured_id", "insuredId", "insuredID"),
		InsuredAddress:       doc.str("insured_address", "insuredAddress"),
		CertificateRequester: doc.str("certificate_requester", "certificateRequester"),
		ServiceCodes:         dedupe(doc.strs("service_codes", "serviceCodes")),
		Source:               domain.SourceVision,
		ExtractedAt:          e.now().UTC(),
	}
	if text := doc.str("raw_text", "rawText"); text != nil {
		result.RawText = *text
	}
	if result.InsurerName != nil {
		if name, ok := ResolveInsurer(e.dict, NewText(*result.InsurerName)); ok {
			result.InsurerName = &name
		}
	}

	var allCodes []string
	for _, item := range doc.list("policies") {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		policy, ok := e.coercePolicy(object(p))
		if !ok {
			continue
		}
		allCodes = append(allCodes, policy.EndorsementCodes...)
		result.Policies = append(result.Policies, policy)
	}
	if len(result.Policies) == 0 {
		result.Policies = []domain.Policy{e.DefaultPolicy(domain.PolicyGeneralLiability)}
	}

	ai := object(doc.obj("additional_insured", "additionalInsured"))
	named, waiver := e.endorsements.Flags(nil, dedupe(allCodes))
	result.AdditionalInsured = domain.AdditionalInsured{
		Name:                ai.str("name"),
		IsNamedAsAdditional: named || ai.boolean("is_named_as_additional", "isNamedAsAdditional"),
		WaiverOfSubrogation: waiver || ai.boolean("waiver_of_subrogation", "waiverOfSubrogation"),
	}

	if result.ExpiryDate == nil {
		result.ExpiryDate = earliestExpiration(result.Policies)
	}

	if confidence, ok := doc.number("confidence"); ok {
		result.Confidence = clip(confidence)
	} else {
		result.Confidence = ScoreExtraction(result)
	}
	return result, nil
}

func (e *Extractor) coercePolicy(p object) (domain.Policy, bool) {
	label := p.str("policy_type", "policyType", "type")
	if label == nil {
		label = p.str("localized_name", "localizedName", "name")
	}
	if label == nil {
		return domain.Policy{}, false
	}
	code, ok := e.dict.ResolvePolicyType(*label)
	if !ok {
		return domain.Policy{}, false
	}
	entry, _ := e.dict.PolicyType(code)

	policy := domain.Policy{
		PolicyType:                 code,
		LocalizedName:              entry.LocalizedName,
		PolicyNumber:               p.str("policy_number", "policyNumber"),
		CoverageLimitPerPeriod:     p.amount("coverage_limit_per_period", "coverageLimitPerPeriod"),
		CoverageLimitPerOccurrence: p.amount("coverage_limit_per_occurrence", "coverageLimitPerOccurrence"),
		CoverageLimit:              p.amount("coverage_limit", "coverageLimit", "limit"),
		Deductible:                 p.amount("deductible"),
		Currency:                   CurrencyILS,
		EffectiveDate:              p.date("effective_date", "effectiveDate", "start_date"),
		ExpirationDate:             p.date("expiration_date", "expirationDate", "end_date"),
		RetroactiveDate:            p.date("retroactive_date", "retroactiveDate"),
	}
	if name := p.str("localized_name", "localizedName"); name != nil && *name != "" {
		policy.LocalizedName = *name
	}
	if currency := p.str("currency"); currency != nil {
		policy.Currency = currencyOf(*currency)
	}

	var codes []string
	for _, c := range p.strs("endorsement_codes", "endorsementCodes", "endorsements") {
		codes = append(codes, e.endorsements.Codes(c)...)
	}
	policy.EndorsementCodes = dedupe(codes)
	policy.Endorsements = e.endorsements.Describe(policy.EndorsementCodes)

	if confidence, ok := p.number("confidence"); ok {
		policy.Confidence = clip(confidence)
	} else {
		policy.Confidence = ScorePolicy(&policy)
	}
	return policy, true
}

// object is a decoded JSON object with tolerant accessors. Each accessor takes the
// accepted key spellings in order of preference.
type object map[string]any

func (o object) get(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) str(keys ...string) *string {
	v, ok := o.get(keys...)
	if !ok {
		return nil
	}
	return scalarString(v)
}

func scalarString(v any) *string {
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return nil
	}
	return &s
}

func (o object) strs(keys ...string) []string {
	v, ok := o.get(keys...)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := scalarString(item); s != nil {
				out = append(out, *s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	default:
		return nil
	}
}

func (o object) obj(keys ...string) map[string]any {
	v, ok := o.get(keys...)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func (o object) list(keys ...string) []any {
	v, ok := o.get(keys...)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

func (o object) number(keys ...string) (float64, bool) {
	v, ok := o.get(keys...)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (o object) amount(keys ...string) *float64 {
	v, ok := o.get(keys...)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case float64:
		if val < 0 {
			return nil
		}
		return &val
	case string:
		f, ok := ParseAmount(val)
		if !ok {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func (o object) date(keys ...string) *time.Time {
	s := o.str(keys...)
	if s == nil {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, *s); err == nil {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	t, ok := ParseDate(*s)
	if !ok {
		return nil
	}
	return &t
}

func (o object) boolean(keys ...string) bool {
	v, ok := o.get(keys...)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1", "כן", "v", "✓":
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

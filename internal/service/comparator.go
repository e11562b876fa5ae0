package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
	"github.com/coi-compliance-server/pkg/certparse"
)

const dateLayout = "02/01/2006"

// Comparator checks extracted policies against the requirements of a template.
// It is a pure function of its inputs: the caller supplies the reference time.
type Comparator struct {
	logger              *logrus.Logger
	dict                *certparse.Dictionary
	defaultValidityDays int
}

// NewComparator creates a comparator. defaultValidityDays applies to requirements that
// do not set MinimumValidityDays; zero disables the expiring-soon check for them.
func NewComparator(logger *logrus.Logger, dict *certparse.Dictionary, defaultValidityDays int) *Comparator {
	if dict == nil {
		dict = certparse.DefaultDictionary()
	}
	if defaultValidityDays < 0 {
		defaultValidityDays = 0
	}
	return &Comparator{
		logger:              logger,
		dict:                dict,
		defaultValidityDays: defaultValidityDays,
	}
}

// Compare evaluates every requirement of the template, in template order.
func (c *Comparator) Compare(extraction *domain.ExtractionResult, template *domain.RequirementTemplate, now time.Time) []domain.PolicyComparisonResult {
	results := make([]domain.PolicyComparisonResult, 0, len(template.Requirements))
	for i := range template.Requirements {
		results = append(results, c.CompareRequirement(&template.Requirements[i], extraction, now))
	}

	c.logger.WithFields(logrus.Fields{
		"template_id":  template.ID,
		"requirements": len(results),
		"policies":     len(extraction.Policies),
	}).Debug("Compared extraction against template")

	return results
}

// CompareRequirement evaluates a single requirement. Every check runs and all gaps are
// kept; the status is derived from the gaps afterwards, never from evaluation order.
func (c *Comparator) CompareRequirement(req *domain.Requirement, extraction *domain.ExtractionResult, now time.Time) domain.PolicyComparisonResult {
	result := domain.PolicyComparisonResult{
		RequirementID: req.RequirementKey(),
		PolicyType:    req.PolicyType,
		Gaps:          []domain.ComplianceGap{},
	}

	policy := extraction.FindPolicy(req.PolicyType)
	if policy == nil {
		severity := domain.SeverityMajor
		if req.IsMandatory {
			severity = domain.SeverityCritical
		}
		name, localized := c.policyNames(req.PolicyType)
		result.Gaps = append(result.Gaps, domain.ComplianceGap{
			Type:             domain.GapMissingPolicy,
			Severity:         severity,
			Required:         string(req.PolicyType),
			Message:          fmt.Sprintf("Required %s policy was not found on the certificate", name),
			LocalizedMessage: fmt.Sprintf("לא נמצאה באישור פוליסת %s הנדרשת", localized),
		})
		result.Status = domain.StatusMissing
		return result
	}

	found := *policy
	result.FoundPolicy = &found
	result.LimitCompliant = true
	result.DeductibleCompliant = true
	result.EndorsementsCompliant = true
	result.ValidityCompliant = true
	result.AdditionalInsuredCompliant = true

	if gap, ok := checkLimit(req, policy); ok {
		result.Gaps = append(result.Gaps, gap)
		result.LimitCompliant = false
	}

	if gap, ok := checkDeductible(req, policy); ok {
		result.Gaps = append(result.Gaps, gap)
		result.DeductibleCompliant = false
	}

	if gaps := checkEndorsements(req, policy); len(gaps) > 0 {
		result.Gaps = append(result.Gaps, gaps...)
		result.EndorsementsCompliant = false
	}

	if req.RequireAdditionalInsured && !extraction.AdditionalInsured.IsNamedAsAdditional {
		result.Gaps = append(result.Gaps, domain.ComplianceGap{
			Type:             domain.GapMissingAdditionalInsured,
			Severity:         domain.SeverityMajor,
			Required:         true,
			Found:            false,
			Message:          "The certificate requester is not named as an additional insured",
			LocalizedMessage: "מבקש האישור אינו מופיע כמבוטח נוסף",
		})
		result.AdditionalInsuredCompliant = false
	}

	if req.RequireWaiverSubrogation && !extraction.AdditionalInsured.WaiverOfSubrogation {
		result.Gaps = append(result.Gaps, domain.ComplianceGap{
			Type:             domain.GapMissingWaiverOfSubrogation,
			Severity:         domain.SeverityMajor,
			Required:         true,
			Found:            false,
			Message:          "Waiver of subrogation in favour of the certificate requester is missing",
			LocalizedMessage: "חסר ויתור על זכות התחלוף כלפי מבקש האישור",
		})
		result.AdditionalInsuredCompliant = false
	}

	if policy.ExpirationDate != nil {
		days := daysUntil(*policy.ExpirationDate, now)
		result.DaysUntilExpiry = &days
		if gap, ok := c.checkValidity(req, *policy.ExpirationDate, days); ok {
			result.Gaps = append(result.Gaps, gap)
			result.ValidityCompliant = false
		}
	}

	sortGaps(result.Gaps)
	result.Status = StatusFromGaps(result.Gaps)
	return result
}

func checkLimit(req *domain.Requirement, policy *domain.Policy) (domain.ComplianceGap, bool) {
	if req.MinimumLimit <= 0 {
		return domain.ComplianceGap{}, false
	}

	limit, ok := policy.EffectiveLimit()
	if ok && limit >= req.MinimumLimit {
		return domain.ComplianceGap{}, false
	}

	gap := domain.ComplianceGap{
		Type:     domain.GapInsufficientLimit,
		Severity: domain.SeverityCritical,
		Required: req.MinimumLimit,
	}
	if !ok {
		gap.Message = fmt.Sprintf("No coverage limit is stated; at least %s is required", formatAmount(req.MinimumLimit))
		gap.LocalizedMessage = fmt.Sprintf("לא צוין גבול אחריות; נדרש לפחות %s", formatAmount(req.MinimumLimit))
		return gap, true
	}

	gap.Found = limit
	gap.Message = fmt.Sprintf("Coverage limit %s is below the required %s", formatAmount(limit), formatAmount(req.MinimumLimit))
	gap.LocalizedMessage = fmt.Sprintf("גבול האחריות %s נמוך מהנדרש %s", formatAmount(limit), formatAmount(req.MinimumLimit))
	return gap, true
}

// checkDeductible applies only when both the template maximum and the policy deductible
// are known; an unstated deductible is not applicable.
func checkDeductible(req *domain.Requirement, policy *domain.Policy) (domain.ComplianceGap, bool) {
	if req.MaximumDeductible == nil || policy.Deductible == nil {
		return domain.ComplianceGap{}, false
	}
	if *policy.Deductible <= *req.MaximumDeductible {
		return domain.ComplianceGap{}, false
	}

	return domain.ComplianceGap{
		Type:             domain.GapExcessiveDeductible,
		Severity:         domain.SeverityMajor,
		Required:         *req.MaximumDeductible,
		Found:            *policy.Deductible,
		Message:          fmt.Sprintf("Deductible %s exceeds the maximum of %s", formatAmount(*policy.Deductible), formatAmount(*req.MaximumDeductible)),
		LocalizedMessage: fmt.Sprintf("ההשתתפות העצמית %s גבוהה מהמקסימום %s", formatAmount(*policy.Deductible), formatAmount(*req.MaximumDeductible)),
	}, true
}

func checkEndorsements(req *domain.Requirement, policy *domain.Policy) []domain.ComplianceGap {
	var gaps []domain.ComplianceGap
	for _, required := range req.RequiredEndorsements {
		if hasEndorsement(policy, required) {
			continue
		}
		gaps = append(gaps, domain.ComplianceGap{
			Type:             domain.GapMissingEndorsement,
			Severity:         domain.SeverityMajor,
			Required:         required,
			Found:            policy.EndorsementCodes,
			Message:          fmt.Sprintf("Required endorsement %q was not found", required),
			LocalizedMessage: fmt.Sprintf("הסעיף הנדרש %q לא נמצא", required),
		})
	}
	return gaps
}

// hasEndorsement matches a required endorsement case-insensitively against the resolved
// descriptions; a bare code also matches the code list directly.
func hasEndorsement(policy *domain.Policy, required string) bool {
	needle := strings.ToLower(strings.TrimSpace(required))
	if needle == "" {
		return true
	}
	for _, code := range policy.EndorsementCodes {
		if code == needle {
			return true
		}
	}
	for _, description := range policy.Endorsements {
		if strings.Contains(strings.ToLower(description), needle) {
			return true
		}
	}
	return false
}

func (c *Comparator) checkValidity(req *domain.Requirement, expiration time.Time, days int) (domain.ComplianceGap, bool) {
	if days < 0 {
		return domain.ComplianceGap{
			Type:             domain.GapExpired,
			Severity:         domain.SeverityCritical,
			Found:            expiration.Format(dateLayout),
			Message:          fmt.Sprintf("Policy expired on %s (%d days ago)", expiration.Format(dateLayout), -days),
			LocalizedMessage: fmt.Sprintf("תוקף הפוליסה פג בתאריך %s", expiration.Format(dateLayout)),
		}, true
	}

	minimum := c.defaultValidityDays
	if req.MinimumValidityDays != nil {
		minimum = *req.MinimumValidityDays
	}
	if days >= minimum {
		return domain.ComplianceGap{}, false
	}

	return domain.ComplianceGap{
		Type:             domain.GapExpiringSoon,
		Severity:         domain.SeverityMinor,
		Required:         minimum,
		Found:            days,
		Message:          fmt.Sprintf("Policy expires in %d days; at least %d days of validity are required", days, minimum),
		LocalizedMessage: fmt.Sprintf("הפוליסה תפוג בעוד %d ימים; נדרשים לפחות %d ימי תוקף", days, minimum),
	}, true
}

// StatusFromGaps derives a requirement's status from its gaps with the precedence
// missing > non_compliant > expired > partial > compliant.
func StatusFromGaps(gaps []domain.ComplianceGap) domain.ComplianceStatus {
	var critical, expired, soft bool
	for _, gap := range gaps {
		switch {
		case gap.Type == domain.GapMissingPolicy:
			return domain.StatusMissing
		case gap.Type == domain.GapExpired:
			expired = true
		case gap.Severity == domain.SeverityCritical:
			critical = true
		default:
			soft = true
		}
	}

	switch {
	case critical:
		return domain.StatusNonCompliant
	case expired:
		return domain.StatusExpired
	case soft:
		return domain.StatusPartial
	default:
		return domain.StatusCompliant
	}
}

// sortGaps orders gaps by severity, most severe first, keeping evaluation order within
// a severity.
func sortGaps(gaps []domain.ComplianceGap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Severity.Rank() > gaps[j].Severity.Rank()
	})
}

// daysUntil counts calendar days from now to the expiration date. A policy expiring
// today has zero days left and is still valid.
func daysUntil(expiration, now time.Time) int {
	ey, em, ed := expiration.Date()
	ny, nm, nd := now.UTC().Date()
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(today).Hours() / 24)
}

func (c *Comparator) policyNames(policyType domain.PolicyType) (english, localized string) {
	if entry, ok := c.dict.PolicyType(policyType); ok {
		return entry.EnglishName, entry.LocalizedName
	}
	return string(policyType), string(policyType)
}

func formatAmount(v float64) string {
	digits := strconv.FormatFloat(v, 'f', 0, 64)
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

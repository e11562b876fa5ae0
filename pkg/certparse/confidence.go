package certparse

import (
	"math"

	"github.com/coi-compliance-server/internal/domain"
)

// Weights of the top-level fields. A populated field contributes its weight.
var fieldWeights = []struct {
	name   string
	weight float64
}{
	{FieldCertificateNumber, 1.0},
	{FieldIssueDate, 0.5},
	{FieldExpiryDate, 1.0},
	{FieldInsurerName, 1.5},
	{FieldInsuredName, 1.5},
	{FieldInsuredID, 1.0},
	{FieldInsuredAddress, 0.5},
	{FieldCertificateRequester, 1.0},
	{FieldServiceCodes, 0.5},
}

// policyWeight is the share of the score earned by the average policy completeness.
const policyWeight = 4.0

// Per-policy completeness weights. Assumed limits earn nothing.
const (
	policyNumberWeight      = 1.0
	policyLimitWeight       = 2.0
	policyExpirationWeight  = 1.0
	policyEffectiveWeight   = 0.5
	policyEndorsementWeight = 0.5
	policyDeductibleWeight  = 0.5
)

const policyMaxWeight = policyNumberWeight + policyLimitWeight + policyExpirationWeight +
	policyEffectiveWeight + policyEndorsementWeight + policyDeductibleWeight

// ScorePolicy returns the completeness of one policy in [0,1].
func ScorePolicy(p *domain.Policy) float64 {
	score := 0.0
	if p.PolicyNumber != nil {
		score += policyNumberWeight
	}
	if _, ok := p.EffectiveLimit(); ok && !p.LimitsAssumed {
		score += policyLimitWeight
	}
	if p.ExpirationDate != nil {
		score += policyExpirationWeight
	}
	if p.EffectiveDate != nil {
		score += policyEffectiveWeight
	}
	if len(p.EndorsementCodes) > 0 {
		score += policyEndorsementWeight
	}
	if p.Deductible != nil {
		score += policyDeductibleWeight
	}
	return clip(score / policyMaxWeight)
}

// ScoreExtraction returns the overall confidence of an extraction in [0,1]: the weight of
// populated top-level fields plus the average policy completeness, over the maximum
// attainable weight. Populating a field never lowers the score.
func ScoreExtraction(r *domain.ExtractionResult) float64 {
	populated := map[string]bool{
		FieldCertificateNumber:    r.CertificateNumber != nil,
		FieldIssueDate:            r.IssueDate != nil,
		FieldExpiryDate:           r.ExpiryDate != nil,
		FieldInsurerName:          r.InsurerName != nil,
		FieldInsuredName:          r.InsuredName != nil,
		FieldInsuredID:            r.InsuredID != nil,
		FieldInsuredAddress:       r.InsuredAddress != nil,
		FieldCertificateRequester: r.CertificateRequester != nil,
		FieldServiceCodes:         len(r.ServiceCodes) > 0,
	}

	score, maxWeight := 0.0, policyWeight
	for _, fw := range fieldWeights {
		maxWeight += fw.weight
		if populated[fw.name] {
			score += fw.weight
		}
	}

	if len(r.Policies) > 0 {
		total := 0.0
		for i := range r.Policies {
			total += ScorePolicy(&r.Policies[i])
		}
		score += policyWeight * total / float64(len(r.Policies))
	}

	return clip(score / maxWeight)
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

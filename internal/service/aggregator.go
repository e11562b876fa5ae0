package service

import (
	"fmt"
	"math"

	"github.com/coi-compliance-server/internal/domain"
)

// Aggregate rolls per-requirement results up into an analysis: counts, overall status
// and a 0-100 score. The caller assigns identity and timestamps.
//
// A requirement that is missing, non-compliant or expired makes the whole certificate
// non-compliant. Partial results count as half towards the score.
func Aggregate(results []domain.PolicyComparisonResult) (*domain.ComplianceAnalysis, error) {
	if len(results) == 0 {
		return nil, domain.ErrEmptyTemplate
	}

	analysis := &domain.ComplianceAnalysis{
		TotalRequirements: len(results),
		Results:           results,
	}

	for _, result := range results {
		switch result.Status {
		case domain.StatusCompliant:
			analysis.CompliantCount++
		case domain.StatusPartial:
			analysis.PartialCount++
		case domain.StatusNonCompliant:
			analysis.NonCompliantCount++
		case domain.StatusMissing:
			analysis.MissingCount++
		case domain.StatusExpired:
			analysis.ExpiredCount++
		default:
			return nil, fmt.Errorf("requirement %s has unknown status %q", result.RequirementID, result.Status)
		}
	}

	switch {
	case analysis.MissingCount > 0 || analysis.NonCompliantCount > 0 || analysis.ExpiredCount > 0:
		analysis.OverallStatus = domain.StatusNonCompliant
	case analysis.PartialCount > 0:
		analysis.OverallStatus = domain.StatusPartial
	default:
		analysis.OverallStatus = domain.StatusCompliant
	}

	analysis.Score = Score(analysis.CompliantCount, analysis.PartialCount, analysis.TotalRequirements)
	return analysis, nil
}

// Score computes round(100*(compliant + 0.5*partial)/total), rounding half away from zero.
// 100 is reserved for a fully compliant certificate: with 100 or more requirements a
// single shortfall would otherwise round up to it, so such scores are capped at 99.
func Score(compliant, partial, total int) int {
	if total <= 0 {
		return 0
	}
	score := int(math.Round(100 * (float64(compliant) + 0.5*float64(partial)) / float64(total)))
	if score == 100 && compliant < total {
		return 99
	}
	return score
}

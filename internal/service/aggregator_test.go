package service

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coi-compliance-server/internal/domain"
)

func resultsWith(statuses ...domain.ComplianceStatus) []domain.PolicyComparisonResult {
	results := make([]domain.PolicyComparisonResult, len(statuses))
	for i, status := range statuses {
		results[i] = domain.PolicyComparisonResult{RequirementID: string(rune('a' + i)), Status: status}
	}
	return results
}

func TestAggregate_ScenarioD(t *testing.T) {
	analysis, err := Aggregate(resultsWith(
		domain.StatusCompliant, domain.StatusCompliant, domain.StatusCompliant, domain.StatusPartial,
	))
	require.NoError(t, err)

	assert.Equal(t, 88, analysis.Score)
	assert.Equal(t, domain.StatusPartial, analysis.OverallStatus)
	assert.Equal(t, 4, analysis.TotalRequirements)
	assert.Equal(t, 3, analysis.CompliantCount)
	assert.Equal(t, 1, analysis.PartialCount)
}

func TestAggregate_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []domain.ComplianceStatus
		expected domain.ComplianceStatus
		score    int
	}{
		{"All compliant", []domain.ComplianceStatus{domain.StatusCompliant, domain.StatusCompliant}, domain.StatusCompliant, 100},
		{"Missing", []domain.ComplianceStatus{domain.StatusCompliant, domain.StatusMissing}, domain.StatusNonCompliant, 50},
		{"Expired", []domain.ComplianceStatus{domain.StatusCompliant, domain.StatusExpired}, domain.StatusNonCompliant, 50},
		{"Non compliant beats partial", []domain.ComplianceStatus{domain.StatusPartial, domain.StatusNonCompliant}, domain.StatusNonCompliant, 25},
		{"Partial", []domain.ComplianceStatus{domain.StatusPartial}, domain.StatusPartial, 50},
		{"One of three", []domain.ComplianceStatus{domain.StatusCompliant, domain.StatusMissing, domain.StatusMissing}, domain.StatusNonCompliant, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := Aggregate(resultsWith(tt.statuses...))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, analysis.OverallStatus)
			assert.Equal(t, tt.score, analysis.Score)
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		compliant int
		partial   int
		total     int
		want      int
	}{
		{"All compliant", 3, 0, 3, 100},
		{"Half point rounds up", 1, 1, 4, 38},
		{"One partial of two hundred", 199, 1, 200, 99},
		{"One missing of three hundred", 299, 0, 300, 99},
		{"Nothing compliant", 0, 0, 5, 0},
		{"No requirements", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.compliant, tt.partial, tt.total))
		})
	}
}

func TestAggregate_Errors(t *testing.T) {
	_, err := Aggregate(nil)
	assert.True(t, errors.Is(err, domain.ErrEmptyTemplate))

	_, err = Aggregate(resultsWith("bogus"))
	assert.Error(t, err)
}

// TestScoreBounds verifies score stays in [0,100] and reaches 100 only when everything
// is compliant, including templates large enough for rounding to reach 100.
func TestScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	statuses := []domain.ComplianceStatus{
		domain.StatusCompliant, domain.StatusPartial, domain.StatusNonCompliant,
		domain.StatusMissing, domain.StatusExpired,
	}

	properties.Property("score in range, 100 iff all compliant", prop.ForAll(
		func(picks []int) bool {
			selected := make([]domain.ComplianceStatus, len(picks))
			allCompliant := true
			for i, p := range picks {
				selected[i] = statuses[p]
				allCompliant = allCompliant && statuses[p] == domain.StatusCompliant
			}

			analysis, err := Aggregate(resultsWith(selected...))
			if err != nil {
				return false
			}
			if analysis.Score < 0 || analysis.Score > 100 {
				return false
			}
			return (analysis.Score == 100) == allCompliant
		},
		gen.IntRange(1, 250).FlatMap(func(n interface{}) gopter.Gen {
			return gen.SliceOfN(n.(int), gen.IntRange(0, len(statuses)-1))
		}, reflect.TypeOf([]int{})),
	))

	properties.TestingRun(t)
}

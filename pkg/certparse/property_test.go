package certparse

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/coi-compliance-server/internal/domain"
)

var certificateFragments = []string{
	"צד שלישי", "חבות מעבידים", "אחריות מקצועית", "General Liability",
	"4,000,000 ₪", "2.5 million", "$ 1,000,000", "השתתפות עצמית: 20,000 ₪",
	"318", "309", "321", "מבוטח נוסף", "waiver of subrogation",
	"01/01/2024", "31.12.2024", "2025-06-30", "מספר אישור: 77-1",
	"שם המבוטח: ACME", "הראל", "Migdal", "\n", "1,307,000", "GL-123",
}

// TestExtractionConfidenceBounded verifies confidence stays within [0,1] for any input.
func TestExtractionConfidenceBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	extractor := newTestExtractor()

	inRange := func(r *domain.ExtractionResult) bool {
		if r.Confidence < 0 || r.Confidence > 1 {
			return false
		}
		for _, p := range r.Policies {
			if p.Confidence < 0 || p.Confidence > 1 {
				return false
			}
		}
		return len(r.Policies) > 0
	}

	properties.Property("arbitrary text", prop.ForAll(
		func(s string) bool {
			return inRange(extractor.Extract(s))
		},
		gen.AnyString(),
	))

	properties.Property("certificate-like fragments", prop.ForAll(
		func(picks []int) bool {
			parts := make([]string, len(picks))
			for i, p := range picks {
				parts[i] = certificateFragments[p]
			}
			return inRange(extractor.Extract(strings.Join(parts, " ")))
		},
		gen.SliceOf(gen.IntRange(0, len(certificateFragments)-1)),
	))

	properties.TestingRun(t)
}

// TestParseAmountGroupedShekels verifies grouped shekel amounts parse to their value.
func TestParseAmountGroupedShekels(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ParseAmount(group(n) + ₪) == n", prop.ForAll(
		func(n int64) bool {
			got, ok := ParseAmount(groupThousands(n) + " ₪")
			return ok && got == float64(n)
		},
		gen.Int64Range(10000, 1000000000),
	))

	properties.Property("limit above the minimum is found in a window", prop.ForAll(
		func(n int64) bool {
			perPeriod, _, currency := NewAmountParser(DefaultMinimumAmount).Limits("גבול אחריות " + groupThousands(n) + " ש\"ח")
			return perPeriod != nil && *perPeriod == float64(n) && currency == CurrencyILS
		},
		gen.Int64Range(10000, 1000000000),
	))

	properties.TestingRun(t)
}

func groupThousands(n int64) string {
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

package certparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"Grouped with shekel glyph", "5,000,000 ₪", 5000000},
		{"Fractional million", "2.5 million", 2500000},
		{"Leading glyph", "₪1,500,000", 1500000},
		{"Hebrew million with NIS abbreviation", `3 מיליון ש"ח`, 3000000},
		{"Gershayim abbreviation", "750,000 ש״ח", 750000},
		{"Dot grouping", "1.000.000", 1000000},
		{"Dollar prefix", "$ 2,000,000", 2000000},
		{"Short million", "4 mln", 4000000},
		{"Decimal comma million", "2,5 million", 2500000},
		{"Decimal comma Hebrew million", `1,75 מיליון ש"ח`, 1750000},
		{"Plain number", "250000", 250000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, ok := ParseAmount("no amount here")
	assert.False(t, ok)
}

func TestAmountParser_FindAmounts(t *testing.T) {
	parser := NewAmountParser(DefaultMinimumAmount)

	t.Run("skips identifiers and small values", func(t *testing.T) {
		amounts := parser.FindAmounts("policy 123456789 dated 01/01/2024 limit 1,000,000 ₪ fee 5,000 ₪")
		require.Len(t, amounts, 1)
		assert.Equal(t, 1000000.0, amounts[0].Value)
		assert.Equal(t, CurrencyILS, amounts[0].Currency)
	})

	t.Run("keeps document order", func(t *testing.T) {
		amounts := parser.FindAmounts("4,000,000 ₪ per period, 2 million per occurrence")
		require.Len(t, amounts, 2)
		assert.Equal(t, 4000000.0, amounts[0].Value)
		assert.Equal(t, 2000000.0, amounts[1].Value)
	})

	t.Run("decimal comma needs a multiplier", func(t *testing.T) {
		amounts := parser.FindAmounts("fee 12,50 ₪, limit 3,5 mln ₪")
		require.Len(t, amounts, 1)
		assert.Equal(t, 3500000.0, amounts[0].Value)
	})

	t.Run("custom minimum", func(t *testing.T) {
		amounts := NewAmountParser(100000).FindAmounts("50,000 ₪ and 500,000 ₪")
		require.Len(t, amounts, 1)
		assert.Equal(t, 500000.0, amounts[0].Value)
	})
}

func TestAmountParser_Limits(t *testing.T) {
	parser := NewAmountParser(DefaultMinimumAmount)

	tests := []struct {
		name          string
		window        string
		perPeriod     *float64
		perOccurrence *float64
		currency      string
	}{
		{
			name:          "Two amounts",
			window:        "גבול אחריות 4,000,000 ₪ למקרה 2,000,000 ₪",
			perPeriod:     ptr(4000000.0),
			perOccurrence: ptr(2000000.0),
			currency:      CurrencyILS,
		},
		{
			name:          "Single amount serves both",
			window:        "limit $1,000,000 any one occurrence",
			perPeriod:     ptr(1000000.0),
			perOccurrence: ptr(1000000.0),
			currency:      CurrencyUSD,
		},
		{
			name:          "Deductible is not a limit",
			window:        "deductible: 25,000 ₪ limit 1,000,000 ₪",
			perPeriod:     ptr(1000000.0),
			perOccurrence: ptr(1000000.0),
			currency:      CurrencyILS,
		},
		{
			name:          "Percentage deductible with floor is not a limit",
			window:        `צד שלישי גבול אחריות 5 מיליון ש"ח למקרה ולתקופה, השתתפות עצמית 10% מינימום 20,000 ₪`,
			perPeriod:     ptr(5000000.0),
			perOccurrence: ptr(5000000.0),
			currency:      CurrencyILS,
		},
		{
			name:          "Decimal comma multiplier",
			window:        "limit 2,5 million per period, 1 million per occurrence",
			perPeriod:     ptr(2500000.0),
			perOccurrence: ptr(1000000.0),
			currency:      CurrencyILS,
		},
		{
			name:     "No amounts",
			window:   "policy GL-1234 from 01/01/2024",
			currency: CurrencyILS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perPeriod, perOccurrence, currency := parser.Limits(tt.window)
			assert.Equal(t, tt.perPeriod, perPeriod)
			assert.Equal(t, tt.perOccurrence, perOccurrence)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestAmountParser_Deductible(t *testing.T) {
	parser := NewAmountParser(DefaultMinimumAmount)

	deductible := parser.Deductible("השתתפות עצמית: 5,000 ₪")
	require.NotNil(t, deductible)
	assert.Equal(t, 5000.0, *deductible)

	floor := parser.Deductible("השתתפות עצמית 10% מינימום 20,000 ₪")
	require.NotNil(t, floor, "the amount after a percentage is the deductible floor")
	assert.Equal(t, 20000.0, *floor)

	assert.Nil(t, parser.Deductible("deductible 10% of claim"))
	assert.Nil(t, parser.Deductible("limit 1,000,000 ₪"))
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, CurrencyILS, DetectCurrency("5,000,000 ₪"))
	assert.Equal(t, CurrencyUSD, DetectCurrency("USD 1,000,000"))
	assert.Equal(t, CurrencyEUR, DetectCurrency("1,000,000 €"))
	assert.Equal(t, CurrencyILS, DetectCurrency("amateur league in europe"))
}

func ptr[T any](v T) *T {
	return &v
}

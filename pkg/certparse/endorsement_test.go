package certparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndorsementResolver_Codes(t *testing.T) {
	resolver := NewEndorsementResolver(DefaultDictionary())

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Ordered and de-duplicated", "סעיפים 318, 309 ו-318", []string{"318", "309"}},
		{"Unknown codes dropped", "codes 300 318 399", []string{"318"}},
		{"Digit groups are not codes", "limit 1,307,000 ₪ and 2.302.000", []string{}},
		{"Longer numbers ignored", "policy 3181 and 1318", []string{}},
		{"Nothing", "no endorsements", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolver.Codes(tt.input))
		})
	}
}

func TestEndorsementResolver_Describe(t *testing.T) {
	resolver := NewEndorsementResolver(DefaultDictionary())

	descriptions := resolver.Describe([]string{"318", "999"})
	assert.Equal(t, []string{"318 Additional insured - certificate requester / מבוטח נוסף - מבקש האישור"}, descriptions)
}

func TestEndorsementResolver_Flags(t *testing.T) {
	resolver := NewEndorsementResolver(DefaultDictionary())

	tests := []struct {
		name       string
		text       string
		codes      []string
		wantNamed  bool
		wantWaiver bool
	}{
		{"Code 318 alone names the requester", "", []string{"318"}, true, false},
		{"Waiver code", "", []string{"309"}, false, true},
		{"Unrelated code", "", []string{"302"}, false, false},
		{"English synonyms", "Additional Insured: City of Haifa. Waiver of subrogation applies.", nil, true, true},
		{"Hebrew synonyms", "המבקש ייכלל כמבוטח נוסף וקיים ויתור על זכות השיבוב", nil, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			named, waiver := resolver.Flags(NewText(tt.text), tt.codes)
			assert.Equal(t, tt.wantNamed, named)
			assert.Equal(t, tt.wantWaiver, waiver)
		})
	}
}

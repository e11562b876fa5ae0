package certparse

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultMinimumAmount is the smallest value accepted as a coverage limit. Smaller
// numbers on a certificate are dates, codes, or deductibles.
const DefaultMinimumAmount = 10000

// Currency codes.
const (
	CurrencyILS = "ILS"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

const currencyMarker = `₪|nis\b|ש"ח|שקלים|שקל|\$|usd\b|דולר|€|eur\b|euro\b|אירו`

var (
	// amountPattern matches a number with optional leading/trailing currency marker and
	// an optional "million" multiplier. Group 2 is the number, group 3 the multiplier.
	// A decimal comma ("2,5") is only a number when a multiplier follows.
	amountPattern = regexp.MustCompile(`(?i)(` + currencyMarker + `)?\s?` +
		`(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d{1,3}(?:\.\d{3}){2,}|\d+,\d{1,2}|\d+(?:\.\d+)?)` +
		`(?:\s?(מיליוני|מיליון|מליון|(?:millions|million|mln|mil|m)\b))?` +
		`(?:\s?(` + currencyMarker + `))?`)

	dotGroupedPattern   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3}){2,}$`)
	decimalCommaPattern = regexp.MustCompile(`^\d+,\d{1,2}$`)

	deductibleLabelPattern = regexp.MustCompile(`(?i)(?:deductible|excess|השתתפות\s?עצמית|השתתפויות\s?עצמיות)\s?[:\-]?`)

	foreignMarkers = map[string][]string{
		CurrencyUSD: {"$", "usd", "דולר"},
		CurrencyEUR: {"€", "eur", "euro", "אירו"},
	}
)

// Amount is a monetary value found in text, with the byte span it came from.
type Amount struct {
	Value    float64
	Currency string
	Start    int
	End      int
}

// AmountParser recognises monetary amounts.
type AmountParser struct {
	minimum float64
}

// NewAmountParser creates a parser that discards limits below minimum.
func NewAmountParser(minimum float64) *AmountParser {
	if minimum <= 0 {
		minimum = DefaultMinimumAmount
	}
	return &AmountParser{minimum: minimum}
}

// ParseAmount parses a single monetary expression such as "5,000,000 ₪" or "2.5 million".
// No plausibility threshold is applied.
func ParseAmount(s string) (float64, bool) {
	s = NormalizeText(s)
	for _, m := range amountPattern.FindAllStringSubmatchIndex(s, -1) {
		amount, ok := amountFromMatch(s, m, true)
		if ok {
			return amount.Value, true
		}
	}
	return 0, false
}

// FindAmounts returns every plausible amount in s, in document order.
// A bare digit run counts only when it is digit-grouped or carries a currency marker or
// a multiplier; this keeps policy numbers and company IDs out of the limits.
func (p *AmountParser) FindAmounts(s string) []Amount {
	var amounts []Amount
	for _, m := range amountPattern.FindAllStringSubmatchIndex(s, -1) {
		amount, ok := amountFromMatch(s, m, false)
		if !ok || amount.Value < p.minimum {
			continue
		}
		amounts = append(amounts, amount)
	}
	return amounts
}

// Limits picks coverage limits out of a policy window. The first two plausible amounts
// are the per-period and per-occurrence limits; a single amount serves as both.
// A labelled deductible is removed from the window before limits are searched.
func (p *AmountParser) Limits(window string) (perPeriod, perOccurrence *float64, currency string) {
	scan := window
	if _, start, end, ok := p.deductibleSpan(window); ok {
		scan = window[:start] + strings.Repeat(" ", end-start) + window[end:]
	}

	currency = DetectCurrency(window)
	amounts := p.FindAmounts(scan)
	switch {
	case len(amounts) == 0:
		return nil, nil, currency
	case len(amounts) == 1:
		v := amounts[0].Value
		return &v, &v, currency
	default:
		a, b := amounts[0].Value, amounts[1].Value
		return &a, &b, currency
	}
}

// Deductible returns the amount that follows a deductible label in the window.
func (p *AmountParser) Deductible(window string) *float64 {
	value, _, _, ok := p.deductibleSpan(window)
	if !ok {
		return nil
	}
	return &value
}

func (p *AmountParser) deductibleSpan(window string) (float64, int, int, bool) {
	label := deductibleLabelPattern.FindStringIndex(window)
	if label == nil {
		return 0, 0, 0, false
	}

	rest := window[label[1]:]
	if len(rest) > 80 {
		rest = rest[:80]
	}
	// "10% minimum 20,000": the percentage is skipped, the floor amount is the deductible
	for _, m := range amountPattern.FindAllStringSubmatchIndex(rest, -1) {
		if strings.HasPrefix(strings.TrimSpace(rest[m[1]:]), "%") {
			continue
		}
		amount, ok := amountFromMatch(rest, m, true)
		if !ok || amount.Value <= 0 {
			continue
		}
		return amount.Value, label[1] + m[0], label[1] + m[1], true
	}
	return 0, 0, 0, false
}

// DetectCurrency returns ILS unless the text carries a foreign currency marker.
func DetectCurrency(s string) string {
	text := NewText(s)
	for _, currency := range []string{CurrencyUSD, CurrencyEUR} {
		if text.ContainsAny(foreignMarkers[currency]) {
			return currency
		}
	}
	return CurrencyILS
}

func amountFromMatch(s string, m []int, lenient bool) (Amount, bool) {
	number := s[m[4]:m[5]]
	leading := group(s, m, 1)
	multiplier := group(s, m, 3)
	trailing := group(s, m, 4)

	grouped := strings.Contains(number, ",") || dotGroupedPattern.MatchString(number)
	marked := leading != "" || trailing != "" || multiplier != ""
	if !lenient && !grouped && !marked {
		return Amount{}, false
	}

	decimalComma := decimalCommaPattern.MatchString(number)
	if decimalComma && multiplier == "" {
		return Amount{}, false
	}

	var clean string
	switch {
	case decimalComma:
		clean = strings.Replace(number, ",", ".", 1)
	case dotGroupedPattern.MatchString(number):
		clean = strings.ReplaceAll(number, ".", "")
	default:
		clean = strings.ReplaceAll(number, ",", "")
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return Amount{}, false
	}
	if multiplier != "" {
		value *= 1_000_000
	}

	currency := currencyOf(leading)
	if currency == "" {
		currency = currencyOf(trailing)
	}
	if currency == "" {
		currency = CurrencyILS
	}

	return Amount{Value: value, Currency: currency, Start: m[0], End: m[1]}, true
}

func group(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

func currencyOf(marker string) string {
	if marker == "" {
		return ""
	}
	lower := strings.ToLower(marker)
	for currency, markers := range foreignMarkers {
		for _, candidate := range markers {
			if lower == candidate {
				return currency
			}
		}
	}
	return CurrencyILS
}

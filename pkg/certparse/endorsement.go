package certparse

import (
	"regexp"
)

var endorsementCodePattern = regexp.MustCompile(`\b3\d{2}\b`)

// EndorsementResolver recognises endorsement codes and the contractual flags they imply.
type EndorsementResolver struct {
	dict              *Dictionary
	additionalInsured map[string]bool
	waiver            map[string]bool
}

// NewEndorsementResolver creates a resolver over a dictionary.
func NewEndorsementResolver(dict *Dictionary) *EndorsementResolver {
	r := &EndorsementResolver{
		dict:              dict,
		additionalInsured: make(map[string]bool),
		waiver:            make(map[string]bool),
	}
	for _, code := range dict.EndorsementCodesIn(CategoryAdditionalInsured) {
		r.additionalInsured[code] = true
	}
	for _, code := range dict.EndorsementCodesIn(CategoryWaiver) {
		r.waiver[code] = true
	}
	return r
}

// Codes returns the known endorsement codes in s, de-duplicated in first-seen order.
// Three-digit runs that are part of a grouped number (the "307" in "1,307,000") are skipped.
func (r *EndorsementResolver) Codes(s string) []string {
	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, loc := range endorsementCodePattern.FindAllStringIndex(s, -1) {
		if isDigitGroup(s, loc[0], loc[1]) {
			continue
		}
		code := s[loc[0]:loc[1]]
		if _, known := r.dict.Endorsements[code]; !known || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}

// Describe resolves codes to their "<code> <english> / <localized>" descriptions.
func (r *EndorsementResolver) Describe(codes []string) []string {
	descriptions := make([]string, 0, len(codes))
	for _, code := range codes {
		if entry, ok := r.dict.Endorsements[code]; ok {
			descriptions = append(descriptions, entry.Description())
		}
	}
	return descriptions
}

// Flags derives the document-level additional insured and waiver of subrogation flags
// from the codes present and from free-text synonyms.
func (r *EndorsementResolver) Flags(text *Text, codes []string) (namedAsAdditional, waiverOfSubrogation bool) {
	for _, code := range codes {
		if r.additionalInsured[code] {
			namedAsAdditional = true
		}
		if r.waiver[code] {
			waiverOfSubrogation = true
		}
	}
	if !namedAsAdditional && text != nil {
		namedAsAdditional = text.ContainsAny(r.dict.Synonyms[CategoryAdditionalInsured])
	}
	if !waiverOfSubrogation && text != nil {
		waiverOfSubrogation = text.ContainsAny(r.dict.Synonyms[CategoryWaiver])
	}
	return namedAsAdditional, waiverOfSubrogation
}

func isDigitGroup(s string, start, end int) bool {
	if start >= 2 && (s[start-1] == ',' || s[start-1] == '.') && isDigit(s[start-2]) {
		return true
	}
	if end+1 < len(s) && (s[end] == ',' || s[end] == '.') && isDigit(s[end+1]) {
		return true
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

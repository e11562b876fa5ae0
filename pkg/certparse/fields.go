package certparse

import (
	"regexp"
	"strings"
)

// Field names produced by the FieldExtractor.
const (
	FieldCertificateNumber    = "certificate_number"
	FieldIssueDate            = "issue_date"
	FieldExpiryDate           = "expiry_date"
	FieldInsuredName          = "insured_name"
	FieldInsuredID            = "insured_id"
	FieldInsuredAddress       = "insured_address"
	FieldCertificateRequester = "certificate_requester"
	FieldInsurerName          = "insurer_name"
	FieldServiceCodes         = "service_codes"
	FieldAdditionalInsured    = "additional_insured_name"
	FieldPolicyNumber         = "policy_number"
	FieldEffectiveDate        = "effective_date"
	FieldExpirationDate       = "expiration_date"
	FieldRetroactiveDate      = "retroactive_date"
)

const dateExpr = `(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./\-]\d{1,2}[./\-](?:\d{4}|\d{2}))`

// FieldSpec is one named field and the pattern variants that capture it. Variants are
// tried in order and the first match wins. Each pattern captures the value in group 1.
type FieldSpec struct {
	Name      string
	Patterns  []*regexp.Regexp
	Transform func(string) string
}

// certificateFields are the top-level certificate fields, in extraction order.
var certificateFields = []FieldSpec{
	{
		Name: FieldCertificateNumber,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)certificate\s?(?:no\.?|number|#)\s?[:#]?\s?([a-z0-9][a-z0-9\-/]{2,})`),
			regexp.MustCompile(`מספר\s?(?:ה)?אישור\s?[:#]?\s?([A-Za-z0-9][A-Za-z0-9\-/]{2,})`),
			regexp.MustCompile(`אישור\s?(?:מס'|מספר)\s?[:#]?\s?([A-Za-z0-9][A-Za-z0-9\-/]{2,})`),
		},
		Transform: cleanToken,
	},
	{
		Name: FieldIssueDate,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:date\s?of\s?issue|issue\s?date|issued\s?on)\s?[:\-]?\s?` + dateExpr),
			regexp.MustCompile(`תאריך\s?(?:ה)?(?:נפקה|הנפקה|הוצאת\s?(?:ה)?אישור|(?:ה)?אישור)\s?[:\-]?\s?` + dateExpr),
		},
	},
	{
		Name: FieldExpiryDate,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:certificate\s?)?(?:valid\s?until|expiry\s?date|valid\s?through)\s?[:\-]?\s?` + dateExpr),
			regexp.MustCompile(`(?:האישור\s?)?(?:בתוקף\s?עד|תוקף\s?(?:ה)?אישור\s?עד|תאריך\s?תפוגה)\s?(?:ליום|לתאריך)?\s?[:\-]?\s?` + dateExpr),
		},
	},
	{
		Name: FieldInsuredName,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`שם\s?(?:ה)?מבוטח\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?im)^\s?(?:name\s?of\s?(?:the\s?)?insured|insured\s?name|insured)\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?m)^\s?(?:ה)?מבוטח\s?:\s?([^\n]+)`),
		},
		Transform: cleanName,
	},
	{
		Name: FieldInsuredID,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:ח\.?פ\.?|ע\.?מ\.?|ת\.?ז\.?|מספר\s?(?:ה)?חברה)\s?[:#]?\s?(\d{8,9})`),
			regexp.MustCompile(`(?i)(?:company\s?(?:no\.?|number|id)|business\s?id|registration\s?(?:no\.?|number)|insured\s?id)\s?[:#]?\s?(\d{8,9})`),
		},
	},
	{
		Name: FieldInsuredAddress,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`כתובת\s?(?:ה)?מבוטח\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?i)insured\s?address\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?im)^\s?(?:address|כתובת)\s?:\s?([^\n]+)`),
		},
		Transform: cleanName,
	},
	{
		Name: FieldCertificateRequester,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:שם\s?)?מבקש\s?(?:ה)?אישור\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?i)certificate\s?(?:holder|requester)\s?:\s?([^\n]+)`),
			regexp.MustCompile(`(?m)^\s?לכבוד\s?:?\s?([^\n]+)`),
		},
		Transform: cleanName,
	},
	{
		Name: FieldAdditionalInsured,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)additional\s?insured\s?:\s?([^\n]+)`),
			regexp.MustCompile(`מבוטח\s?נוסף\s?:\s?([^\n]+)`),
		},
		Transform: cleanName,
	},
}

// policyFields are searched inside a policy's window.
var policyFields = []FieldSpec{
	{
		Name: FieldPolicyNumber,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)policy\s?(?:no\.?|number|#)\s?[:#]?\s?([a-z0-9][a-z0-9\-/]{3,})`),
			regexp.MustCompile(`(?:מס'|מספר)\s?(?:ה)?פוליסה\s?[:#]?\s?([A-Za-z0-9][A-Za-z0-9\-/]{3,})`),
			regexp.MustCompile(`פוליסה\s?(?:מס'|מספר|#)\s?[:#]?\s?([A-Za-z0-9][A-Za-z0-9\-/]{3,})`),
		},
		Transform: cleanToken,
	},
	{
		Name: FieldRetroactiveDate,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)retro(?:active)?\s?date\s?[:\-]?\s?` + dateExpr),
			regexp.MustCompile(`(?:תאריך\s?)?רטרואקטיבי\s?[:\-]?\s?` + dateExpr),
		},
	},
	{
		Name: FieldEffectiveDate,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:effective\s?(?:date|from)?|period\s?from|from)\s?[:\-]?\s?` + dateExpr),
			regexp.MustCompile(`(?:מתאריך|מיום|תחילת\s?(?:ה)?ביטוח|תאריך\s?(?:ה)?תחילה)\s?[:\-]?\s?` + dateExpr),
		},
	},
	{
		Name: FieldExpirationDate,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:expir(?:ation|y)\s?(?:date)?|expires|until|to)\s?[:\-]?\s?` + dateExpr),
			regexp.MustCompile(`(?:עד\s?(?:תאריך|ליום|יום)?|תום\s?(?:תקופת\s?)?(?:ה)?ביטוח|תאריך\s?(?:ה)?סיום)\s?[:\-]?\s?` + dateExpr),
		},
	},
}

var (
	serviceLabelPattern = regexp.MustCompile(`(?i)(?:service\s?codes?|קוד(?:י)?\s?(?:ה)?שירות(?:ים)?|סוג\s?(?:ה)?שירות(?:ים)?|תחום\s?(?:ה)?שירות)`)
	serviceCodePattern  = regexp.MustCompile(`\b\d{3}\b`)
)

// FieldExtractor applies an ordered registry of FieldSpecs.
type FieldExtractor struct {
	specs []FieldSpec
}

// NewFieldExtractor creates an extractor over a registry.
func NewFieldExtractor(specs []FieldSpec) *FieldExtractor {
	return &FieldExtractor{specs: specs}
}

// Extract returns the value of every field that matched. Absent fields are omitted.
func (f *FieldExtractor) Extract(text string) map[string]string {
	values := make(map[string]string, len(f.specs))
	for _, spec := range f.specs {
		if value, ok := spec.Match(text); ok {
			values[spec.Name] = value
		}
	}
	return values
}

// Match applies the spec's variants in order.
func (s FieldSpec) Match(text string) (string, bool) {
	for _, pattern := range s.Patterns {
		m := pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		value := strings.TrimSpace(m[1])
		if s.Transform != nil {
			value = s.Transform(value)
		}
		if value != "" {
			return value, true
		}
	}
	return "", false
}

// ResolveInsurer returns the registered insurer whose alias appears earliest in the text.
func ResolveInsurer(dict *Dictionary, text *Text) (string, bool) {
	name, best := "", -1
	for _, insurer := range dict.Insurers {
		for _, alias := range insurer.Aliases {
			if pos := text.Find(alias); pos >= 0 && (best < 0 || pos < best) {
				name, best = insurer.Name, pos
			}
		}
	}
	return name, best >= 0
}

// ServiceCodes returns every three-digit code that follows a service code label,
// de-duplicated in order. When the label's line carries no codes, the next line is read.
func ServiceCodes(text string) []string {
	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, loc := range serviceLabelPattern.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		lines := strings.SplitN(rest, "\n", 3)
		found := serviceCodePattern.FindAllString(lines[0], -1)
		if len(found) == 0 && len(lines) > 1 {
			found = serviceCodePattern.FindAllString(lines[1], -1)
		}
		for _, code := range found {
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	return codes
}

func cleanToken(s string) string {
	return strings.Trim(s, " .,;:-/")
}

func cleanName(s string) string {
	// Table layouts put the next column on the same line after a pipe.
	if i := strings.Index(s, "|"); i > 0 {
		s = s[:i]
	}
	s = strings.Trim(s, " .,;:-")
	if runes := []rune(s); len(runes) > 120 {
		s = string(runes[:120])
	}
	return s
}

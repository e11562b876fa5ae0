// Package certparse extracts structured facts from the text of an insurance certificate.
// Every lookup table it uses is loaded once from embedded YAML and never mutated, so all
// extraction functions are safe for concurrent use.
package certparse

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/coi-compliance-server/internal/domain"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Endorsement categories that drive document-level flags.
const (
	CategoryAdditionalInsured = "additional_insured"
	CategoryWaiver            = "waiver"
)

// PolicyTypeEntry describes one canonical coverage line.
type PolicyTypeEntry struct {
	Code          domain.PolicyType `yaml:"code"`
	LocalizedName string            `yaml:"localized_name"`
	EnglishName   string            `yaml:"english_name"`
	DefaultLimit  float64           `yaml:"default_limit"`
	Aliases       []string          `yaml:"aliases"`
}

// EndorsementEntry describes one standard endorsement code.
type EndorsementEntry struct {
	Code          string `yaml:"code"`
	LocalizedName string `yaml:"localized_name"`
	EnglishName   string `yaml:"english_name"`
	Category      string `yaml:"category"`
}

// Description renders the endorsement the way it is reported on a policy.
func (e EndorsementEntry) Description() string {
	return fmt.Sprintf("%s %s / %s", e.Code, e.EnglishName, e.LocalizedName)
}

// InsurerEntry is a registered insurer and the spellings it appears under.
type InsurerEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Dictionary bundles the immutable lookup tables used by extraction.
type Dictionary struct {
	PolicyTypes  []PolicyTypeEntry
	Endorsements map[string]EndorsementEntry
	Insurers     []InsurerEntry
	Synonyms     map[string][]string

	policyIndex map[domain.PolicyType]int
}

type policyTypesFile struct {
	PolicyTypes []PolicyTypeEntry `yaml:"policy_types"`
}

type endorsementsFile struct {
	Endorsements []EndorsementEntry  `yaml:"endorsements"`
	Synonyms     map[string][]string `yaml:"synonyms"`
}

type insurersFile struct {
	Insurers []InsurerEntry `yaml:"insurers"`
}

var (
	defaultDictionary *Dictionary
	defaultDictOnce   sync.Once
)

// DefaultDictionary returns the dictionary compiled into the binary.
// It panics if the embedded data is malformed, which is a build defect.
func DefaultDictionary() *Dictionary {
	defaultDictOnce.Do(func() {
		policyData := mustReadData("data/policy_types.yaml")
		endorsementData := mustReadData("data/endorsements.yaml")
		insurerData := mustReadData("data/insurers.yaml")

		dict, err := LoadDictionary(policyData, endorsementData, insurerData)
		if err != nil {
			panic(fmt.Sprintf("certparse: embedded dictionary: %v", err))
		}
		defaultDictionary = dict
	})
	return defaultDictionary
}

func mustReadData(name string) []byte {
	data, err := dataFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("certparse: read %s: %v", name, err))
	}
	return data
}

// LoadDictionary parses the three YAML tables into a Dictionary.
func LoadDictionary(policyYAML, endorsementYAML, insurerYAML []byte) (*Dictionary, error) {
	var policies policyTypesFile
	if err := yaml.Unmarshal(policyYAML, &policies); err != nil {
		return nil, fmt.Errorf("parse policy types: %w", err)
	}
	var endorsements endorsementsFile
	if err := yaml.Unmarshal(endorsementYAML, &endorsements); err != nil {
		return nil, fmt.Errorf("parse endorsements: %w", err)
	}
	var insurers insurersFile
	if err := yaml.Unmarshal(insurerYAML, &insurers); err != nil {
		return nil, fmt.Errorf("parse insurers: %w", err)
	}

	dict := &Dictionary{
		PolicyTypes:  make([]PolicyTypeEntry, 0, len(policies.PolicyTypes)),
		Endorsements: make(map[string]EndorsementEntry, len(endorsements.Endorsements)),
		Insurers:     make([]InsurerEntry, 0, len(insurers.Insurers)),
		Synonyms:     make(map[string][]string, len(endorsements.Synonyms)),
		policyIndex:  make(map[domain.PolicyType]int, len(policies.PolicyTypes)),
	}

	for _, entry := range policies.PolicyTypes {
		if entry.Code == "" {
			return nil, fmt.Errorf("policy type without code")
		}
		if _, dup := dict.policyIndex[entry.Code]; dup {
			return nil, fmt.Errorf("duplicate policy type %s", entry.Code)
		}
		entry.Aliases = normalizeTerms(entry.Aliases)
		dict.policyIndex[entry.Code] = len(dict.PolicyTypes)
		dict.PolicyTypes = append(dict.PolicyTypes, entry)
	}

	for _, entry := range endorsements.Endorsements {
		if len(entry.Code) != 3 {
			return nil, fmt.Errorf("endorsement code %q is not three digits", entry.Code)
		}
		dict.Endorsements[entry.Code] = entry
	}
	for category, terms := range endorsements.Synonyms {
		dict.Synonyms[category] = normalizeTerms(terms)
	}

	for _, entry := range insurers.Insurers {
		entry.Aliases = normalizeTerms(entry.Aliases)
		dict.Insurers = append(dict.Insurers, entry)
	}

	return dict, nil
}

// PolicyType returns the entry for a canonical code.
func (d *Dictionary) PolicyType(code domain.PolicyType) (PolicyTypeEntry, bool) {
	idx, ok := d.policyIndex[code]
	if !ok {
		return PolicyTypeEntry{}, false
	}
	return d.PolicyTypes[idx], true
}

// ResolvePolicyType maps a free-form label (a canonical code, a localized name or any alias)
// to a canonical code.
func (d *Dictionary) ResolvePolicyType(label string) (domain.PolicyType, bool) {
	candidate := domain.PolicyType(strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(label))))
	if _, ok := d.policyIndex[candidate]; ok {
		return candidate, true
	}

	text := NewText(label)
	best, bestPos := domain.PolicyType(""), -1
	for _, entry := range d.PolicyTypes {
		terms := append([]string{normalizeTerm(entry.LocalizedName), normalizeTerm(entry.EnglishName)}, entry.Aliases...)
		for _, term := range terms {
			if pos := text.Find(term); pos >= 0 && (bestPos < 0 || pos < bestPos) {
				best, bestPos = entry.Code, pos
			}
		}
	}
	return best, bestPos >= 0
}

// EndorsementCodesIn returns the codes of a category, sorted.
func (d *Dictionary) EndorsementCodesIn(category string) []string {
	var codes []string
	for code, entry := range d.Endorsements {
		if entry.Category == category {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if t := normalizeTerm(term); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package certparse

import (
	"sort"

	"github.com/coi-compliance-server/internal/domain"
)

// DefaultWindowSize is the number of runes after a policy's first mention that are
// searched for its limits, dates and endorsements.
const DefaultWindowSize = 600

// Detection is one coverage line found in a certificate.
type Detection struct {
	Entry  PolicyTypeEntry
	Offset int
	// LowConfidence marks the synthesized entry used when no coverage line was recognised.
	LowConfidence bool
}

// Classifier finds coverage lines by alias.
type Classifier struct {
	dict *Dictionary
}

// NewClassifier creates a classifier over a dictionary.
func NewClassifier(dict *Dictionary) *Classifier {
	return &Classifier{dict: dict}
}

// Classify returns every policy type mentioned in the text, ordered by first occurrence.
// Types are detected independently, so a certificate may carry any combination.
// When nothing matches, a single low-confidence GENERAL_LIABILITY detection is returned.
func (c *Classifier) Classify(text *Text) []Detection {
	var detections []Detection
	for _, entry := range c.dict.PolicyTypes {
		first := -1
		for _, alias := range entry.Aliases {
			if pos := text.Find(alias); pos >= 0 && (first < 0 || pos < first) {
				first = pos
			}
		}
		if first >= 0 {
			detections = append(detections, Detection{Entry: entry, Offset: first})
		}
	}

	if len(detections) == 0 {
		return []Detection{c.fallback()}
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Offset < detections[j].Offset
	})
	return detections
}

func (c *Classifier) fallback() Detection {
	entry, ok := c.dict.PolicyType(domain.PolicyGeneralLiability)
	if !ok {
		entry = PolicyTypeEntry{Code: domain.PolicyGeneralLiability, LocalizedName: "צד שלישי", EnglishName: "Third Party Liability"}
	}
	return Detection{Entry: entry, Offset: 0, LowConfidence: true}
}

package domain

import (
	"errors"
	"fmt"
)

// Requirement is one rule of a template: the minimum acceptable coverage for a policy type.
type Requirement struct {
	ID                       string     `json:"id,omitempty" yaml:"id,omitempty"`
	PolicyType               PolicyType `json:"policy_type" yaml:"policy_type"`
	MinimumLimit             float64    `json:"minimum_limit,omitempty" yaml:"minimum_limit"`
	MaximumDeductible        *float64   `json:"maximum_deductible,omitempty" yaml:"maximum_deductible,omitempty"`
	RequiredEndorsements     []string   `json:"required_endorsements,omitempty" yaml:"required_endorsements,omitempty"`
	RequireAdditionalInsured bool       `json:"require_additional_insured,omitempty" yaml:"require_additional_insured"`
	RequireWaiverSubrogation bool       `json:"require_waiver_subrogation,omitempty" yaml:"require_waiver_subrogation"`
	MinimumValidityDays      *int       `json:"minimum_validity_days,omitempty" yaml:"minimum_validity_days,omitempty"`
	IsMandatory              bool       `json:"is_mandatory,omitempty" yaml:"is_mandatory"`
}

// RequirementTemplate is a client's set of coverage requirements for its vendors.
type RequirementTemplate struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name,omitempty" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
}

// Validate checks the structural invariants of a template. An empty requirement list is
// not a validation failure here; the aggregator reports it as ErrEmptyTemplate.
func (t *RequirementTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, NewValidationError("id", "template ID is required", t.ID))
	}

	seen := make(map[PolicyType]bool, len(t.Requirements))
	for i, req := range t.Requirements {
		if req.PolicyType == "" {
			return fmt.Errorf("%w: requirement %d has no policy type", ErrInvalidTemplate, i)
		}
		if seen[req.PolicyType] {
			return fmt.Errorf("%w: duplicate policy type %s", ErrInvalidTemplate, req.PolicyType)
		}
		seen[req.PolicyType] = true

		if req.MinimumLimit < 0 {
			return fmt.Errorf("%w: negative minimum limit for %s", ErrInvalidTemplate, req.PolicyType)
		}
		if req.MaximumDeductible != nil && *req.MaximumDeductible < 0 {
			return fmt.Errorf("%w: negative maximum deductible for %s", ErrInvalidTemplate, req.PolicyType)
		}
		if req.MinimumValidityDays != nil && *req.MinimumValidityDays < 0 {
			return fmt.Errorf("%w: negative minimum validity days for %s", ErrInvalidTemplate, req.PolicyType)
		}
	}

	return nil
}

// RequirementKey returns the identifier reported in comparison results, falling back to
// the policy type when the requirement has no explicit ID.
func (r *Requirement) RequirementKey() string {
	if r.ID != "" {
		return r.ID
	}
	return string(r.PolicyType)
}

// IsTemplateError reports whether err is one of the template-level caller errors.
func IsTemplateError(err error) bool {
	return errors.Is(err, ErrInvalidTemplate) || errors.Is(err, ErrEmptyTemplate)
}

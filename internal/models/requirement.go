package models

// Requirement is a quantitative demand from a procurement notice: a required
// quantity of some unit of work, optionally gated by an activity tag and a
// list of mandatory terms.
type Requirement struct {
	Code        string  `json:"code,omitempty"`
	Description string  `json:"description"`
	Required    float64 `json:"required"`
	Unit        string  `json:"unit"`
	// AllowSum indicates whether multiple attestations may be summed to cover
	// this requirement. Tender notices sometimes forbid summation textually;
	// detection is unreliable, so the default is true and the field is an
	// explicit override.
	AllowSum bool `json:"allow_sum"`
	// Activity tags the requirement with a work category (e.g. "paving");
	// candidate services must then carry one of the category's keywords.
	Activity string `json:"activity,omitempty"`
	// MandatoryTerms are canonical tokens of which at least one must appear
	// in a candidate service's canonical description.
	MandatoryTerms []string `json:"mandatory_terms,omitempty"`
}

// NewRequirement returns a Requirement with summation allowed, the source
// default for tenders that do not state otherwise.
func NewRequirement(code, description string, required float64, unit string) Requirement {
	return Requirement{
		Code:        code,
		Description: description,
		Required:    required,
		Unit:        unit,
		AllowSum:    true,
	}
}

// -----------------------------------------------------------------------
// Requirement templates - hand-authored YAML requirement lists
// -----------------------------------------------------------------------

package tender

import (
	"fmt"
	"os"

	"github.com/ternarybob/attesto/internal/models"
	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk shape of a requirements template. Users author
// these by hand for notices the parser cannot read (image-only notices,
// requirements buried in annexes).
type templateFile struct {
	Name         string            `yaml:"name"`
	Requirements []templateReqItem `yaml:"requirements"`
}

type templateReqItem struct {
	Code           string   `yaml:"code"`
	Description    string   `yaml:"description"`
	Required       float64  `yaml:"required"`
	Unit           string   `yaml:"unit"`
	AllowSum       *bool    `yaml:"allow_sum"`
	Activity       string   `yaml:"activity"`
	MandatoryTerms []string `yaml:"mandatory_terms"`
}

// LoadRequirementsFile reads a YAML requirements template. Summation defaults
// to permitted when the file says nothing.
func LoadRequirementsFile(path string) (string, []models.Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read requirements template: %w", err)
	}
	return ParseRequirementsYAML(data)
}

// ParseRequirementsYAML decodes a requirements template from YAML bytes.
func ParseRequirementsYAML(data []byte) (string, []models.Requirement, error) {
	var tpl templateFile
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return "", nil, fmt.Errorf("invalid requirements template: %w", err)
	}

	requirements := make([]models.Requirement, 0, len(tpl.Requirements))
	for i, item := range tpl.Requirements {
		if item.Description == "" {
			return "", nil, fmt.Errorf("template requirement %d has no description", i)
		}
		if item.Required <= 0 {
			return "", nil, fmt.Errorf("template requirement %q has no positive required quantity", item.Description)
		}
		allowSum := true
		if item.AllowSum != nil {
			allowSum = *item.AllowSum
		}
		requirements = append(requirements, models.Requirement{
			Code:           item.Code,
			Description:    item.Description,
			Required:       item.Required,
			Unit:           item.Unit,
			AllowSum:       allowSum,
			Activity:       item.Activity,
			MandatoryTerms: item.MandatoryTerms,
		})
	}
	return tpl.Name, requirements, nil
}

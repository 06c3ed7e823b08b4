package playbook

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	APIVersionV1 = "v1"
	KindPlaybook = "Playbook"
)

// Definition models the root playbook document.
type Definition struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Steps      []Step   `yaml:"steps" json:"steps"`
}

// Metadata contains descriptive data for the playbook.
type Metadata struct {
	Alias       string            `yaml:"alias" json:"alias"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
}

// Step defines one device-side action in execution order.
type Step struct {
	ID        string         `yaml:"id" json:"id"`
	Type      string         `yaml:"type" json:"type"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	TimeoutMs int64          `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
}

// Parse parses YAML bytes into a Definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate performs semantic validation on the definition.
func (d *Definition) Validate() error {
	if d.APIVersion != APIVersionV1 {
		return fmt.Errorf("unsupported apiVersion: %s", d.APIVersion)
	}
	if d.Kind != KindPlaybook {
		return fmt.Errorf("unsupported kind: %s", d.Kind)
	}
	if strings.TrimSpace(d.Metadata.Alias) == "" {
		return fmt.Errorf("metadata.alias is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one entry")
	}
	return validateSteps(d.Steps)
}

func validateSteps(steps []Step) error {
	ids := make(map[string]int, len(steps))
	for i := range steps {
		step := &steps[i]
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("steps[%d].id is required", i)
		}
		if _, exists := ids[step.ID]; exists {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		ids[step.ID] = i

		if strings.TrimSpace(step.Type) == "" {
			return fmt.Errorf("steps[%d].type is required", i)
		}
		if step.TimeoutMs < 0 {
			return fmt.Errorf("steps[%d].timeoutMs must not be negative", i)
		}
	}
	return nil
}

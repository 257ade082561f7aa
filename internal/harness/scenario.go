package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end synchronization test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Projects lists project schema files (YAML) to define.
	Projects []string `yaml:"projects"`

	// Source is the id of the project whose saves fire instructions.
	Source string `yaml:"source"`

	// Settings is the rule set of the source project (CUE, YAML or JSON).
	Settings string `yaml:"settings"`

	// Setup seeds record data before the first save.
	Setup []SeedStep `yaml:"setup,omitempty"`

	// Saves are the save events, fired in order.
	Saves []SaveStep `yaml:"saves"`

	// Assertions are checked after the last save.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedStep writes values, an access group or attachments to one record.
type SeedStep struct {
	Project string `yaml:"project"`
	Record  string `yaml:"record"`
	// Event is the unique event name.
	Event    string              `yaml:"event"`
	Instance int                 `yaml:"instance,omitempty"`
	Values   map[string]string   `yaml:"values,omitempty"`
	Group    string              `yaml:"group,omitempty"`
	Files    map[string]FileSeed `yaml:"files,omitempty"`
}

// FileSeed is an attachment uploaded into a file field.
type FileSeed struct {
	Name     string `yaml:"name"`
	MimeType string `yaml:"mime_type"`
	Content  string `yaml:"content"`
}

// SaveStep is one save event on the source project.
type SaveStep struct {
	Record   string `yaml:"record"`
	Form     string `yaml:"form"`
	Event    string `yaml:"event"`
	Instance int    `yaml:"instance,omitempty"`
	Group    string `yaml:"group,omitempty"`

	// Before seeds data right before this save.
	Before []SeedStep `yaml:"before,omitempty"`

	// Expect lists the expected outcome status of each instruction, in
	// order. Empty skips the check.
	Expect []string `yaml:"expect,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Project  string `yaml:"project,omitempty"`
	Record   string `yaml:"record,omitempty"`
	Event    string `yaml:"event,omitempty"`
	Instance int    `yaml:"instance,omitempty"`
	Field    string `yaml:"field,omitempty"`
	Form     string `yaml:"form,omitempty"`
	Title    string `yaml:"title,omitempty"`

	// Equals is the expected value (value, access_group).
	Equals *string `yaml:"equals,omitempty"`

	// Count is the expected number (record_count, instance_count,
	// audit_count, notification_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertValue             = "value"
	AssertAccessGroup       = "access_group"
	AssertRecordCount       = "record_count"
	AssertInstanceCount     = "instance_count"
	AssertAuditCount        = "audit_count"
	AssertNotificationCount = "notification_count"
)

// LoadScenario reads a scenario file. Unknown keys are rejected and
// relative paths are resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Projects {
		scenario.Projects[i] = resolve(base, p)
	}
	if scenario.Settings != "" {
		scenario.Settings = resolve(base, scenario.Settings)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	switch {
	case s.Name == "":
		return fmt.Errorf("name is required")
	case s.Description == "":
		return fmt.Errorf("description is required")
	case len(s.Projects) == 0:
		return fmt.Errorf("projects list is required and must be non-empty")
	case s.Source == "":
		return fmt.Errorf("source is required")
	case s.Settings == "":
		return fmt.Errorf("settings is required")
	case len(s.Saves) == 0:
		return fmt.Errorf("saves list is required and must be non-empty")
	case len(s.Assertions) == 0:
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range append([]string{s.Settings}, s.Projects...) {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	for i, step := range s.Setup {
		if err := validateSeed(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, save := range s.Saves {
		if save.Record == "" || save.Form == "" || save.Event == "" {
			return fmt.Errorf("saves[%d]: record, form and event are required", i)
		}
		for j, step := range save.Before {
			if err := validateSeed(fmt.Sprintf("saves[%d].before[%d]", i, j), step); err != nil {
				return err
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateSeed(where string, s SeedStep) error {
	if s.Project == "" || s.Record == "" || s.Event == "" {
		return fmt.Errorf("%s: project, record and event are required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	needRecord := func() error {
		if a.Project == "" || a.Record == "" {
			return fmt.Errorf("assertions[%d]: project and record are required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertValue:
		if err := needRecord(); err != nil {
			return err
		}
		if a.Event == "" || a.Field == "" || a.Equals == nil {
			return fmt.Errorf("assertions[%d]: event, field and equals are required for value", index)
		}
	case AssertAccessGroup:
		if err := needRecord(); err != nil {
			return err
		}
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for access_group", index)
		}
	case AssertInstanceCount:
		if err := needRecord(); err != nil {
			return err
		}
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for instance_count", index)
		}
	case AssertRecordCount:
		if a.Project == "" {
			return fmt.Errorf("assertions[%d]: project is required for record_count", index)
		}
	case AssertAuditCount, AssertNotificationCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}

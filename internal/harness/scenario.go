package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idrecon/internal/contact"
)

// Scenario defines a reconciliation test scenario: a sequence of operations
// against an empty store, with optional per-step expectations and final
// assertions.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against a fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final contact table. Optional.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation. Exactly one of Identify, Add, Delete or Show is set.
type Step struct {
	Identify *FragmentArgs `yaml:"identify,omitempty"`
	Add      *AddArgs      `yaml:"add,omitempty"`
	Delete   *int64        `yaml:"delete,omitempty"`
	Show     *int64        `yaml:"show,omitempty"`

	// Expect is the consolidated view an identify or show step must return.
	Expect *View `yaml:"expect,omitempty"`

	// ExpectID is the id an add step must return.
	ExpectID *int64 `yaml:"expectId,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expectError,omitempty"`
}

// Op returns the name of the operation the step performs.
func (s Step) Op() string {
	switch {
	case s.Identify != nil:
		return OpIdentify
	case s.Add != nil:
		return OpAdd
	case s.Delete != nil:
		return OpDelete
	case s.Show != nil:
		return OpShow
	default:
		return ""
	}
}

// FragmentArgs are the arguments of an identify step.
type FragmentArgs struct {
	Email       *string `yaml:"email"`
	PhoneNumber *string `yaml:"phoneNumber"`
}

// AddArgs are the arguments of an add step.
type AddArgs struct {
	ID             *int64  `yaml:"id"`
	Email          *string `yaml:"email"`
	PhoneNumber    *string `yaml:"phoneNumber"`
	LinkedID       *int64  `yaml:"linkedId"`
	LinkPrecedence string  `yaml:"linkPrecedence"`
}

// View is the YAML form of contact.Consolidated.
type View struct {
	PrimaryContactID    int64    `yaml:"primaryContactId"`
	Emails              []string `yaml:"emails"`
	PhoneNumbers        []string `yaml:"phoneNumbers"`
	SecondaryContactIDs []int64  `yaml:"secondaryContactIds"`
}

// Consolidated converts v, mapping missing lists to empty ones.
func (v View) Consolidated() contact.Consolidated {
	return normalizeView(contact.Consolidated{
		PrimaryContactID:    v.PrimaryContactID,
		Emails:              v.Emails,
		PhoneNumbers:        v.PhoneNumbers,
		SecondaryContactIDs: v.SecondaryContactIDs,
	})
}

func normalizeView(c contact.Consolidated) contact.Consolidated {
	if c.Emails == nil {
		c.Emails = []string{}
	}
	if c.PhoneNumbers == nil {
		c.PhoneNumbers = []string{}
	}
	if c.SecondaryContactIDs == nil {
		c.SecondaryContactIDs = []int64{}
	}
	return c
}

// Assertion validates the final contact table.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": Look up contact ID and verify Expect fields
	// - "contact_count": Number of live contacts equals Count
	// - "primary_count": Number of live primaries equals Count
	Type string `yaml:"type"`

	// ID is the contact id (used by final_state).
	ID int64 `yaml:"id,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of rows (used by the count assertions).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertContactCount = "contact_count"
	AssertPrimaryCount = "primary_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads path, or every *.yaml / *.yml file directly inside it
// when path is a directory, sorted by file name.
func LoadScenarios(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files = nil
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, fmt.Errorf("no scenario files in %s", path)
		}
	}

	scenarios := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	ops := 0
	for _, set := range []bool{step.Identify != nil, step.Add != nil, step.Delete != nil, step.Show != nil} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one of identify, add, delete, show is required", index)
	}

	op := step.Op()
	if step.ExpectError != "" && (step.Expect != nil || step.ExpectID != nil) {
		return fmt.Errorf("steps[%d]: expectError cannot be combined with expect or expectId", index)
	}
	if step.Expect != nil && op != OpIdentify && op != OpShow {
		return fmt.Errorf("steps[%d]: expect is only valid for identify and show", index)
	}
	if step.ExpectID != nil && op != OpAdd {
		return fmt.Errorf("steps[%d]: expectId is only valid for add", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.ID == 0 {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for field := range a.Expect {
			if !rowFields[field] {
				return fmt.Errorf("assertions[%d]: unknown field %q", index, field)
			}
		}
	case AssertContactCount, AssertPrimaryCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

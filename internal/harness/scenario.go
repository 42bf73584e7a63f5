package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nbstore/internal/space"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Space is the space every operation targets.
	Space SpaceRef `yaml:"space"`

	// Clock configures the server clock. Defaults to testutil.Epoch with a
	// one second step.
	Clock *ClockSpec `yaml:"clock,omitempty"`

	// Setup steps run before the flow, must succeed, and are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the traced sequence of operations.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// SpaceRef names the scenario space.
type SpaceRef struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// Key returns the space key.
func (s SpaceRef) Key() space.Key {
	return space.NewKey(space.Type(s.Type), s.ID)
}

// ClockSpec configures the deterministic server clock, in Unix milliseconds.
type ClockSpec struct {
	StartMS int64 `yaml:"start_ms"`
	StepMS  int64 `yaml:"step_ms"`
}

// Step invokes one storage operation.
type Step struct {
	// Invoke is the operation name, e.g. "pushDocUpdate".
	Invoke string `yaml:"invoke"`

	Args Args `yaml:"args"`

	// Expect validates the completion. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Args are the arguments of an operation. Each operation reads the fields
// it needs and ignores the rest.
type Args struct {
	DocID       string   `yaml:"docId,omitempty" json:"docId,omitempty"`
	Entries     []string `yaml:"entries,omitempty" json:"entries,omitempty"`
	After       *int64   `yaml:"after,omitempty" json:"after,omitempty"`
	Key         string   `yaml:"key,omitempty" json:"key,omitempty"`
	Data        string   `yaml:"data,omitempty" json:"data,omitempty"`
	Mime        string   `yaml:"mime,omitempty" json:"mime,omitempty"`
	Permanently bool     `yaml:"permanently,omitempty" json:"permanently,omitempty"`
	Peer        string   `yaml:"peer,omitempty" json:"peer,omitempty"`
	Timestamp   int64    `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is "ok" or a storage error code such as "MERGE_FAILURE".
	Case string `yaml:"case"`

	// Result is a subset match against the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count, final_state).
	Action string `yaml:"action,omitempty"`

	// Args filter trace_contains by subset match, and are the arguments of
	// the final_state operation.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect is a subset match against the final_state result.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// CaseOK is the completion case of a successful operation.
const CaseOK = "ok"

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*Scenario
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.Space.Key().Validate(); err != nil {
		return fmt.Errorf("space: %w", err)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Invoke == "" {
		return fmt.Errorf("invoke is required")
	}
	if _, ok := operations[step.Invoke]; !ok {
		return fmt.Errorf("unknown operation %q (known: %s)", step.Invoke, strings.Join(operationNames(), ", "))
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if _, ok := operations[a.Action]; !ok {
			return fmt.Errorf("assertions[%d]: final_state needs a known action, got %q", index, a.Action)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

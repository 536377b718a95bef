package evaluation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

//go:embed defaults.yaml
var defaultsYAML []byte

// Case is one prompt test case. ExpectedOutput may be empty, in which case
// the output is recorded but not scored.
type Case struct {
	Name           string `yaml:"test_name" json:"test_name" validate:"required"`
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required"`
	Input          string `yaml:"test_input" json:"test_input" validate:"required"`
	ExpectedOutput string `yaml:"expected_output" json:"expected_output"`
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// DefaultCases returns the built-in case set: two qualification cases, two
// message generation cases and one scoring case.
func DefaultCases() ([]Case, error) {
	cases, err := ParseCases(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing default cases: %w", err)
	}
	return cases, nil
}

// LoadCases reads a case file from path.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case file: %w", err)
	}
	cases, err := ParseCases(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// ParseCases decodes YAML or JSON holding either a top-level list of cases
// or an object with a "cases" list. Every case is validated.
func ParseCases(data []byte) ([]Case, error) {
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		var f caseFile
		if err2 := yaml.Unmarshal(data, &f); err2 != nil {
			return nil, fmt.Errorf("decoding cases: %w", err2)
		}
		cases = f.Cases
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases defined")
	}
	for i := range cases {
		cases[i].Input = strings.TrimSpace(cases[i].Input)
		cases[i].ExpectedOutput = strings.TrimSpace(cases[i].ExpectedOutput)
		if err := validate.Struct(cases[i]); err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
	}
	return cases, nil
}

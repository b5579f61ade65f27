package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet is the validated, immutable content of a rules.yaml artifact.
type RuleSet struct {
	Version  string
	Taxonomy map[string]string
	Rules    []Rule
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type rulesetDoc struct {
	RulesetVersion  string `yaml:"ruleset_version"`
	ProblemTaxonomy struct {
		Codes map[string]string `yaml:"codes"`
	} `yaml:"problem_taxonomy"`
	ProblemRules []ruleDoc `yaml:"problem_rules"`
}

// Pointer fields distinguish an absent key from a zero value. Required
// fields must be present explicitly, even when the value is falsy.
type ruleDoc struct {
	ID          string    `yaml:"id"`
	Enabled     *bool     `yaml:"enabled"`
	Code        string    `yaml:"code"`
	Priority    *int      `yaml:"priority"`
	Weight      *float64  `yaml:"weight"`
	IncludeAny  []string  `yaml:"include_any"`
	ExcludeAny  *[]string `yaml:"exclude_any"`
	HintSymptom string    `yaml:"hint_symptom"`
	Guard       string    `yaml:"guard"`
}

// Load reads and validates a ruleset artifact. Validation is total: any
// structural problem in any rule fails the whole load.
func Load(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file %s: %w", path, err)
	}

	var doc rulesetDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset file %s: %w", path, err)
	}

	return buildRuleSet(&doc)
}

func buildRuleSet(doc *rulesetDoc) (*RuleSet, error) {
	if len(doc.ProblemTaxonomy.Codes) == 0 {
		return nil, validationErrorf("problem_taxonomy.codes must be a non-empty mapping of code to description")
	}

	seen := make(map[string]bool, len(doc.ProblemRules))
	rules := make([]Rule, 0, len(doc.ProblemRules))

	for i, r := range doc.ProblemRules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, validationErrorf("rule #%d has no valid 'id' (must be non-empty string)", i)
		}
		if seen[r.ID] {
			return nil, validationErrorf("duplicate rule id: %s", r.ID)
		}
		seen[r.ID] = true

		if r.Enabled == nil {
			return nil, validationErrorf("rule %s: 'enabled' must be boolean true/false", r.ID)
		}

		if strings.TrimSpace(r.Code) == "" {
			return nil, validationErrorf("rule %s: 'code' must be non-empty string", r.ID)
		}
		if _, ok := doc.ProblemTaxonomy.Codes[r.Code]; !ok {
			return nil, validationErrorf("rule %s: code '%s' is not present in problem_taxonomy.codes", r.ID, r.Code)
		}

		if r.Priority == nil {
			return nil, validationErrorf("rule %s: 'priority' must be integer", r.ID)
		}

		if r.Weight == nil {
			return nil, validationErrorf("rule %s: 'weight' must be number", r.ID)
		}
		if *r.Weight < 0.0 || *r.Weight > 1.0 {
			return nil, validationErrorf("rule %s: 'weight' must be between 0.0 and 1.0", r.ID)
		}

		if len(r.IncludeAny) == 0 {
			return nil, validationErrorf("rule %s: include_any must be a non-empty list", r.ID)
		}
		for _, pat := range r.IncludeAny {
			if strings.TrimSpace(pat) == "" {
				return nil, validationErrorf("rule %s: include_any must contain only non-empty strings", r.ID)
			}
		}

		if r.ExcludeAny == nil {
			return nil, validationErrorf("rule %s: exclude_any must be present (can be empty list)", r.ID)
		}
		for _, pat := range *r.ExcludeAny {
			if strings.TrimSpace(pat) == "" {
				return nil, validationErrorf("rule %s: exclude_any must contain only non-empty strings (or be [])", r.ID)
			}
		}

		rules = append(rules, Rule{
			ID:          r.ID,
			Enabled:     *r.Enabled,
			Code:        r.Code,
			Priority:    *r.Priority,
			Weight:      *r.Weight,
			IncludeAny:  r.IncludeAny,
			ExcludeAny:  *r.ExcludeAny,
			HintSymptom: r.HintSymptom,
			Guard:       r.Guard,
		})
	}

	return &RuleSet{
		Version:  doc.RulesetVersion,
		Taxonomy: doc.ProblemTaxonomy.Codes,
		Rules:    rules,
	}, nil
}

// Parse validates a ruleset held in memory. Used by tests and tooling that
// do not go through the filesystem.
func Parse(raw []byte) (*RuleSet, error) {
	var doc rulesetDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	return buildRuleSet(&doc)
}

package entities

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"triage/internal/constants"
)

// Pattern is a single named regex for one entity type.
type Pattern struct {
	Name       string
	Regex      string
	Confidence float64
}

// TypePatterns groups the patterns of one entity type. Declaration order in
// the artifact is preserved so extraction output is stable across loads.
type TypePatterns struct {
	Type     string
	Patterns []Pattern
}

// RuleSet is the validated content of an entities.yaml artifact.
type RuleSet struct {
	Extractor string
	Groups    []TypePatterns
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

type entitiesDoc struct {
	Extractor string    `yaml:"extractor"`
	Patterns  yaml.Node `yaml:"patterns"`
}

type patternDoc struct {
	Name       string   `yaml:"name"`
	Regex      string   `yaml:"regex"`
	Confidence *float64 `yaml:"confidence"`
}

// Load reads and validates an entity pattern artifact.
func Load(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities file %s: %w", path, err)
	}

	rs, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("entities file %s: %w", path, err)
	}
	return rs, nil
}

// Parse validates an entity pattern set held in memory. The patterns map is
// decoded through yaml.Node to keep the artifact's key order.
func Parse(raw []byte) (*RuleSet, error) {
	var doc entitiesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}

	if doc.Patterns.Kind != yaml.MappingNode {
		return nil, validationErrorf("patterns must be a mapping of entity type to pattern list")
	}

	extractor := doc.Extractor
	if extractor == "" {
		extractor = constants.DefaultExtractorVersion
	}

	groups := make([]TypePatterns, 0, len(doc.Patterns.Content)/2)
	seen := make(map[string]bool)

	for i := 0; i+1 < len(doc.Patterns.Content); i += 2 {
		keyNode := doc.Patterns.Content[i]
		valueNode := doc.Patterns.Content[i+1]

		entityType := keyNode.Value
		if strings.TrimSpace(entityType) == "" {
			return nil, validationErrorf("entity type key must be a non-empty string")
		}
		if seen[entityType] {
			return nil, validationErrorf("duplicate entity type: %s", entityType)
		}
		seen[entityType] = true

		var docs []patternDoc
		if err := valueNode.Decode(&docs); err != nil {
			return nil, validationErrorf("patterns.%s must be a list of pattern entries", entityType)
		}
		if len(docs) == 0 {
			return nil, validationErrorf("patterns.%s must be a non-empty list", entityType)
		}

		patterns := make([]Pattern, 0, len(docs))
		for _, p := range docs {
			if strings.TrimSpace(p.Name) == "" {
				return nil, validationErrorf("patterns.%s.name must be non-empty string", entityType)
			}
			if strings.TrimSpace(p.Regex) == "" {
				return nil, validationErrorf("patterns.%s.regex must be non-empty string", entityType)
			}

			confidence := constants.DefaultPatternConfidence
			if p.Confidence != nil {
				confidence = *p.Confidence
			}
			if confidence < 0.0 || confidence > 1.0 {
				return nil, validationErrorf("patterns.%s.confidence must be 0..1", entityType)
			}

			patterns = append(patterns, Pattern{
				Name:       p.Name,
				Regex:      p.Regex,
				Confidence: confidence,
			})
		}

		groups = append(groups, TypePatterns{Type: entityType, Patterns: patterns})
	}

	return &RuleSet{Extractor: extractor, Groups: groups}, nil
}

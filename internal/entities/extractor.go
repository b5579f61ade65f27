package entities

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"triage/internal/constants"
	"triage/internal/logger"
	"triage/pkg/metrics"
)

// Match is one extracted entity occurrence. Value is the normalized form,
// Raw the matched text as it appeared in the message.
type Match struct {
	Type       string
	Value      string
	Raw        string
	Confidence float64
	Extractor  string
}

// Extractor runs every pattern of every entity type over message text.
// Patterns are compiled once at construction; Extract is safe for
// concurrent use.
type Extractor struct {
	version string
	groups  []compiledGroup
	logger  logger.Logger
}

type compiledGroup struct {
	entityType string
	patterns   []compiledEntityPattern
}

type compiledEntityPattern struct {
	name       string
	re         *regexp.Regexp
	confidence float64
}

// Workplace values can come as a list like "РМ 1,2,3". Each 1-2 digit token
// becomes its own match.
var workplaceTokenRe = regexp.MustCompile(`\b\d{1,2}\b`)

func NewExtractor(rs *RuleSet, log logger.Logger) *Extractor {
	groups := make([]compiledGroup, 0, len(rs.Groups))
	total := 0

	for _, g := range rs.Groups {
		cg := compiledGroup{entityType: g.Type}
		for _, p := range g.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				metrics.SkippedPatternsTotal.WithLabelValues("entity").Inc()
				log.Warnw("Skipping malformed entity pattern",
					"entity_type", g.Type,
					"pattern_name", p.Name,
					"error", err,
				)
				continue
			}
			cg.patterns = append(cg.patterns, compiledEntityPattern{
				name:       p.Name,
				re:         re,
				confidence: p.Confidence,
			})
			total++
		}
		groups = append(groups, cg)
	}

	metrics.SetActiveEntityPatterns(total)

	return &Extractor{
		version: rs.Extractor,
		groups:  groups,
		logger:  log,
	}
}

func (e *Extractor) Version() string {
	return e.version
}

// Extract returns every pattern occurrence in declaration order. Duplicate
// values are kept; storage applies set semantics.
func (e *Extractor) Extract(text string) []Match {
	if text == "" {
		return nil
	}

	start := time.Now()
	var found []Match

	for _, g := range e.groups {
		for _, p := range g.patterns {
			tag := fmt.Sprintf("%s:%s", e.version, p.name)

			for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
				raw := text[loc[0]:loc[1]]

				val := raw
				if len(loc) >= 4 && loc[2] >= 0 {
					val = text[loc[2]:loc[3]]
				}

				if g.entityType == constants.EntityTypeWorkplace {
					if nums := workplaceTokenRe.FindAllString(val, -1); len(nums) > 0 {
						for _, n := range nums {
							if norm := Normalize(g.entityType, n); norm != "" {
								found = append(found, Match{
									Type:       g.entityType,
									Value:      norm,
									Raw:        raw,
									Confidence: p.confidence,
									Extractor:  tag,
								})
							}
						}
						continue
					}
				}

				norm := Normalize(g.entityType, val)
				if norm == "" {
					continue
				}

				found = append(found, Match{
					Type:       g.entityType,
					Value:      norm,
					Raw:        raw,
					Confidence: p.confidence,
					Extractor:  tag,
				})
			}
		}
	}

	for _, m := range found {
		metrics.EntitiesExtractedTotal.WithLabelValues(m.Type).Inc()
	}
	metrics.ObserveExtractionDuration(time.Since(start))

	return found
}

// Normalize canonicalizes a raw entity value for its type. An empty result
// means the occurrence is dropped.
func Normalize(entityType, value string) string {
	v := strings.TrimSpace(value)

	switch entityType {
	case constants.EntityTypeSite, constants.EntityTypeWorkplace, constants.EntityTypeTicket:
		var digits strings.Builder
		for _, ch := range v {
			if ch >= '0' && ch <= '9' {
				digits.WriteRune(ch)
			}
		}
		return digits.String()
	case constants.EntityTypeTerminal:
		return strings.ToUpper(v)
	case constants.EntityTypeDateTime:
		// No ISO conversion yet, stored as written.
		return v
	default:
		return v
	}
}

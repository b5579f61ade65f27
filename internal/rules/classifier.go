package rules

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/google/cel-go/cel"

	"triage/internal/logger"
	"triage/pkg/metrics"
)

// Classifier evaluates a ruleset against message text. Rules are compiled
// once at construction; Classify is safe for concurrent use.
type Classifier struct {
	version string
	rules   []compiledRule
	logger  logger.Logger
}

type compiledRule struct {
	rule     Rule
	includes []compiledPattern
	excludes []compiledPattern
	guard    cel.Program
}

// A nil re marks a pattern that failed to compile. Malformed patterns stay
// in the list because include and exclude handle them differently.
type compiledPattern struct {
	src string
	re  *regexp.Regexp
}

func NewClassifier(rs *RuleSet, log logger.Logger) (*Classifier, error) {
	evaluator, err := newGuardEvaluator()
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if !r.Enabled {
			continue
		}

		cr := compiledRule{rule: r}

		for _, src := range r.IncludeAny {
			cr.includes = append(cr.includes, compilePattern(src, r.ID, "include", log))
		}
		for _, src := range r.ExcludeAny {
			cr.excludes = append(cr.excludes, compilePattern(src, r.ID, "exclude", log))
		}

		if r.Guard != "" {
			program, err := evaluator.Compile(r.Guard)
			if err != nil {
				return nil, validationErrorf("rule %s: invalid guard: %v", r.ID, err)
			}
			cr.guard = program
		}

		compiled = append(compiled, cr)
	}

	// Priority desc, then weight desc, file order preserved on ties.
	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i].rule, compiled[j].rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Weight > b.Weight
	})

	metrics.SetActiveClassificationRules(len(compiled))

	return &Classifier{
		version: rs.Version,
		rules:   compiled,
		logger:  log,
	}, nil
}

func compilePattern(src, ruleID, stage string, log logger.Logger) compiledPattern {
	re, err := regexp.Compile(src)
	if err != nil {
		metrics.SkippedPatternsTotal.WithLabelValues(stage).Inc()
		log.Warnw("Skipping malformed rule pattern",
			"rule_id", ruleID,
			"stage", stage,
			"pattern", src,
			"error", err,
		)
		return compiledPattern{src: src}
	}
	return compiledPattern{src: src, re: re}
}

func (c *Classifier) Version() string {
	return c.version
}

// Classify returns the outcome of the highest ranked matching rule, or nil
// when no rule matches. A rule matches when at least one include pattern
// matches and no exclude pattern does. A malformed include pattern makes
// its whole rule a non-match; a malformed exclude pattern is ignored.
func (c *Classifier) Classify(ctx context.Context, text string, input GuardInput) *Outcome {
	start := time.Now()

	outcome := c.classify(ctx, text, input)

	status := "matched"
	if outcome == nil {
		status = "unclassified"
	}
	metrics.ClassificationTotal.WithLabelValues(status).Inc()
	metrics.ObserveClassificationDuration(time.Since(start), status)

	return outcome
}

func (c *Classifier) classify(ctx context.Context, text string, input GuardInput) *Outcome {
	if text == "" {
		return nil
	}

	for _, cr := range c.rules {
		if cr.guard != nil {
			ok, err := evalGuard(cr.guard, GuardInput{
				Text:     text,
				ChatType: input.ChatType,
				FromRole: input.FromRole,
			})
			if err != nil {
				metrics.SkippedPatternsTotal.WithLabelValues("guard").Inc()
				c.logger.WarnwCtx(ctx, "Guard evaluation failed, skipping rule",
					"rule_id", cr.rule.ID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
		}

		matched := ""
		for _, pat := range cr.includes {
			if pat.re == nil {
				matched = ""
				break
			}
			if pat.re.MatchString(text) {
				matched = pat.src
				break
			}
		}
		if matched == "" {
			continue
		}

		excluded := false
		for _, pat := range cr.excludes {
			if pat.re == nil {
				continue
			}
			if pat.re.MatchString(text) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		return &Outcome{
			Code:           cr.rule.Code,
			RuleID:         cr.rule.ID,
			Priority:       cr.rule.Priority,
			Weight:         cr.rule.Weight,
			HintSymptom:    cr.rule.HintSymptom,
			MatchedInclude: matched,
		}
	}

	return nil
}

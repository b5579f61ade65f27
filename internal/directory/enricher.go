package directory

import (
	"context"
	"fmt"

	"triage/internal/constants"
	"triage/internal/entities"
	"triage/internal/logger"
	"triage/pkg/metrics"
)

// Enricher derives synthetic tid/ip entities from extracted site and
// workplace entities via the terminal directory. Lookups are read-only; the
// caller persists the derived matches alongside the extracted ones.
type Enricher struct {
	lookup Lookup
	policy Policy
	logger logger.Logger
}

func NewEnricher(lookup Lookup, policy Policy, log logger.Logger) *Enricher {
	return &Enricher{
		lookup: lookup,
		policy: policy,
		logger: log,
	}
}

// Enrich runs one directory pass over the extracted matches. Enrichment
// applies only when exactly one site and at least one workplace were
// extracted. Failures degrade to no derived entities, never to an error:
// the message itself must still ingest.
func (e *Enricher) Enrich(ctx context.Context, matches []entities.Match) []entities.Match {
	if !e.policy.Enabled {
		return nil
	}

	sites := distinctValues(matches, constants.EntityTypeSite)
	workplaces := distinctValues(matches, constants.EntityTypeWorkplace)

	if len(sites) == 0 || len(workplaces) == 0 {
		return nil
	}
	if len(sites) > 1 {
		metrics.EnrichmentOutcomesTotal.WithLabelValues("ambiguous").Inc()
		e.logger.DebugwCtx(ctx, "Skipping directory enrichment, multiple sites extracted",
			"sites", sites,
		)
		return nil
	}
	site := sites[0]

	var derived []entities.Match
	seen := make(map[string]bool)

	for _, workplace := range workplaces {
		entries, err := e.lookup.Lookup(ctx, site, workplace)
		if err != nil {
			metrics.EnrichmentOutcomesTotal.WithLabelValues("error").Inc()
			e.logger.WarnwCtx(ctx, "Directory lookup failed, skipping enrichment for workplace",
				"site", site,
				"workplace", workplace,
				"error", err,
			)
			continue
		}

		if len(entries) == 0 {
			metrics.EnrichmentOutcomesTotal.WithLabelValues("not_found").Inc()
			continue
		}

		if len(entries) > 1 {
			if e.policy.RequireUniqueMatch {
				metrics.EnrichmentOutcomesTotal.WithLabelValues("ambiguous").Inc()
				e.logger.DebugwCtx(ctx, "Ambiguous directory match, skipping workplace",
					"site", site,
					"workplace", workplace,
					"rows", len(entries),
				)
				continue
			}
			metrics.EnrichmentOutcomesTotal.WithLabelValues("fallback").Inc()
		} else {
			metrics.EnrichmentOutcomesTotal.WithLabelValues("applied").Inc()
		}

		entry := entries[0]
		raw := fmt.Sprintf("azs=%s,rm=%s", site, workplace)

		if e.policy.WriteTID && entry.TerminalID != "" {
			derived = appendDerived(derived, seen, entities.Match{
				Type:       constants.EntityTypeTID,
				Value:      entry.TerminalID,
				Raw:        raw,
				Confidence: e.policy.TIDConfidence,
				Extractor:  constants.DirectoryExtractorVersion,
			})
		}

		if e.policy.WriteIP && entry.IP != "" {
			derived = appendDerived(derived, seen, entities.Match{
				Type:       constants.EntityTypeIP,
				Value:      entry.IP,
				Raw:        raw,
				Confidence: e.policy.IPConfidence,
				Extractor:  constants.DirectoryExtractorVersion,
			})
		}
	}

	return derived
}

func distinctValues(matches []entities.Match, entityType string) []string {
	var values []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if m.Type != entityType || seen[m.Value] {
			continue
		}
		seen[m.Value] = true
		values = append(values, m.Value)
	}
	return values
}

func appendDerived(derived []entities.Match, seen map[string]bool, m entities.Match) []entities.Match {
	key := m.Type + ":" + m.Value
	if seen[key] {
		return derived
	}
	seen[key] = true
	return append(derived, m)
}

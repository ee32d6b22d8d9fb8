// Package probe discovers the facts the provisioning pipeline depends on:
// the OS family, the invoking user, and the wireless interfaces known to
// the kernel with their bus attachment and monitor-mode capability.
//
// Every fact is recorded as a piece of Evidence so a run log shows not
// only what was concluded but how it was observed.
package probe

import (
	"log/slog"
)

// Category classifies types of evidence
type Category string

const (
	CategoryEnvironment Category = "environment"
	CategoryPermissions Category = "permissions"
	CategoryNetwork     Category = "network"
)

// Evidence represents a single piece of discovered knowledge
type Evidence struct {
	Category   Category `json:"category"`
	Property   string   `json:"property"`
	Value      any      `json:"value"`
	Confidence float64  `json:"confidence"` // 0.0-1.0
	Source     string   `json:"source"`     // e.g., "sysfs", "os-release", "iw"
	Method     string   `json:"method"`     // e.g., "phy80211/name"
}

// NewEvidence creates a piece of evidence
func NewEvidence(cat Category, prop string, value any, conf float64, source, method string) Evidence {
	return Evidence{
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Source:     source,
		Method:     method,
	}
}

// EvidenceSet aggregates multiple pieces of evidence
type EvidenceSet struct {
	items []Evidence
}

// NewEvidenceSet creates an empty evidence set
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{}
}

// Add appends a single piece of evidence
func (es *EvidenceSet) Add(e Evidence) {
	es.items = append(es.items, e)
}

// AddAll appends multiple pieces of evidence
func (es *EvidenceSet) AddAll(items []Evidence) {
	es.items = append(es.items, items...)
}

// All returns all evidence
func (es *EvidenceSet) All() []Evidence {
	return es.items
}

// Count returns the number of evidence items
func (es *EvidenceSet) Count() int {
	return len(es.items)
}

// ByProperty returns all evidence for a specific property
func (es *EvidenceSet) ByProperty(cat Category, prop string) []Evidence {
	var result []Evidence
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			result = append(result, e)
		}
	}
	return result
}

// BestValue returns the highest-confidence value for a property
func (es *EvidenceSet) BestValue(cat Category, prop string) (any, float64, bool) {
	var best Evidence
	var found bool

	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			if !found || e.Confidence > best.Confidence {
				best = e
				found = true
			}
		}
	}

	if !found {
		return nil, 0, false
	}
	return best.Value, best.Confidence, true
}

// Log writes every piece of evidence at debug level
func (es *EvidenceSet) Log(logger *slog.Logger) {
	for _, e := range es.items {
		logger.Debug("evidence",
			"category", e.Category,
			"property", e.Property,
			"value", e.Value,
			"confidence", e.Confidence,
			"source", e.Source,
			"method", e.Method,
		)
	}
}

// Package cache defines the core domain types of the semantic response cache:
// entries, prompts, query logs and the similarity metric.
package cache

import (
	"fmt"
	"strings"
)

// MetricType identifies the distance metric of the vector index.
type MetricType string

// Supported metrics.
const (
	MetricCosine MetricType = "COSINE"
	MetricL2     MetricType = "L2"
)

// ParseMetricType parses a metric name, case-insensitively.
func ParseMetricType(s string) (MetricType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COSINE":
		return MetricCosine, nil
	case "L2":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("%w: unsupported metric type %q", ErrConfig, s)
	}
}

// HigherIsBetter reports whether a larger raw index score means a closer match.
// Cosine similarity grows towards 1 for close vectors; L2 distance shrinks.
func (m MetricType) HigherIsBetter() bool {
	return m == MetricCosine
}

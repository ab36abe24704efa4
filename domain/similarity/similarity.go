// Package similarity turns raw vector-index scores into ranks and decides
// whether a candidate clears the configured threshold.
package similarity

import (
	"math"
	"unicode/utf8"
)

// LongPromptBoundary is the prompt length, in code points, above which the
// long-prompt threshold applies.
const LongPromptBoundary = 256

// DefaultMaxDistance bounds L2 distances during rank mapping.
const DefaultMaxDistance = 4.0

// Candidate is one vector-search result under evaluation: the raw index
// score and the id it resolves to.
type Candidate struct {
	score float64
	id    string
}

// NewCandidate creates a Candidate.
func NewCandidate(score float64, id string) Candidate {
	return Candidate{score: score, id: id}
}

// Score returns the raw index score (cosine similarity or L2 distance).
func (c Candidate) Score() float64 { return c.score }

// ID returns the entry id.
func (c Candidate) ID() string { return c.id }

// Evaluator maps a candidate to a rank where higher is better, and declares
// the rank range for threshold scaling.
type Evaluator interface {
	// Evaluation returns the candidate's rank.
	Evaluation(candidate Candidate) float64

	// Range returns the (min, max) bounds of Evaluation's output.
	Range() (float64, float64)
}

// SearchDistance maps L2 distances onto ranks: rank = max − clamp(d, 0, max),
// so identical vectors rank at max and anything beyond max ranks at zero.
type SearchDistance struct {
	maxDistance float64
	positive    bool
}

// NewSearchDistance creates a SearchDistance evaluator with the default
// maximum distance.
func NewSearchDistance() SearchDistance {
	return SearchDistance{maxDistance: DefaultMaxDistance}
}

// NewSearchDistanceWithMax creates a SearchDistance evaluator with an
// explicit maximum distance. When positive is set the raw clamped distance
// is returned instead of the inverted rank.
func NewSearchDistanceWithMax(maxDistance float64, positive bool) SearchDistance {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return SearchDistance{maxDistance: maxDistance, positive: positive}
}

// Evaluation maps the candidate's distance to a rank.
func (e SearchDistance) Evaluation(candidate Candidate) float64 {
	distance := candidate.Score()
	if distance < 0 {
		distance = 0
	} else if distance > e.maxDistance {
		distance = e.maxDistance
	}
	if e.positive {
		return distance
	}
	return e.maxDistance - distance
}

// Range returns (0, maxDistance).
func (e SearchDistance) Range() (float64, float64) {
	return 0, e.maxDistance
}

// Thresholds holds the rank cutoffs for short and long prompts, already
// scaled into the evaluator's range.
type Thresholds struct {
	short float64
	long  float64
}

// NewThresholds scales the configured base thresholds into the evaluator's
// rank range: cutoff = (max−min)·threshold·cacheFactor, clamped to [min,max].
func NewThresholds(evaluator Evaluator, base, long, cacheFactor float64) Thresholds {
	minRank, maxRank := evaluator.Range()
	span := maxRank - minRank
	clamp := func(v float64) float64 {
		return math.Min(maxRank, math.Max(minRank, v))
	}
	return Thresholds{
		short: clamp(span * base * cacheFactor),
		long:  clamp(span * long * cacheFactor),
	}
}

// Short returns the cutoff for short prompts.
func (t Thresholds) Short() float64 { return t.short }

// Long returns the cutoff for long prompts.
func (t Thresholds) Long() float64 { return t.long }

// For picks the cutoff appropriate for the serialised embed input. Exactly
// LongPromptBoundary code points still counts as short.
func (t Thresholds) For(prompt string) float64 {
	if utf8.RuneCountInString(prompt) <= LongPromptBoundary {
		return t.short
	}
	return t.long
}

// CosineSimilarity computes the cosine similarity of two vectors. Returns 0
// for mismatched lengths or zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// L2Distance computes the Euclidean distance of two vectors.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Package scoring turns submitted raw scores into the integer scores stored
// on leaderboard entries.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/playrank/internal/domain/model"
)

// NegativePolicy decides what happens to scores below zero.
type NegativePolicy string

// Supported negative score policies.
const (
	ClampNegative  NegativePolicy = "clamp"
	RejectNegative NegativePolicy = "reject"
)

// ParseNegativePolicy validates s. An empty value selects ClampNegative.
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch NegativePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClampNegative:
		return ClampNegative, nil
	case RejectNegative:
		return RejectNegative, nil
	default:
		return "", fmt.Errorf("unknown negative score policy: %s", s)
	}
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithNegativePolicy sets how negative scores are handled.
func WithNegativePolicy(p NegativePolicy) Option {
	return func(n *Normalizer) {
		if p != "" {
			n.negative = p
		}
	}
}

// WithMaxScore caps accepted scores. Values above the cap are rejected.
func WithMaxScore(max int64) Option {
	return func(n *Normalizer) {
		if max > 0 {
			n.max = max
		}
	}
}

// Normalizer validates and converts raw scores.
type Normalizer struct {
	negative NegativePolicy
	max      int64
}

// NewNormalizer creates a normalizer. Negatives are clamped to zero unless
// configured otherwise.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		negative: ClampNegative,
		max:      math.MaxInt64 / 2,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the stored form of raw. NaN and infinities are rejected;
// fractional values are floored.
func (n *Normalizer) Normalize(raw float64) (int64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: score must be a finite number", model.ErrInvalidScore)
	}
	if raw < 0 {
		if n.negative == RejectNegative {
			return 0, fmt.Errorf("%w: score must not be negative", model.ErrInvalidScore)
		}
		return 0, nil
	}
	floored := math.Floor(raw)
	if floored > float64(n.max) {
		return 0, fmt.Errorf("%w: score exceeds %d", model.ErrInvalidScore, n.max)
	}
	return int64(floored), nil
}

// Policy returns the configured negative policy.
func (n *Normalizer) Policy() NegativePolicy {
	return n.negative
}

package debug

import (
	"fmt"
	"strconv"
	"strings"
)

// HitOp is a hit-condition comparison operator.
type HitOp int

const (
	// HitEqual triggers on exactly the Nth hit.
	HitEqual HitOp = iota
	// HitGreater triggers after the Nth hit.
	HitGreater
	// HitGreaterEqual triggers on and after the Nth hit.
	HitGreaterEqual
	// HitLess triggers before the Nth hit.
	HitLess
	// HitMultiple triggers on every Nth hit.
	HitMultiple
)

// HitCondition is a parsed hit-condition expression. The wire form stays a
// string; this is for local evaluation and validation.
type HitCondition struct {
	Op    HitOp
	Count int
}

// ParseHitCondition parses the supported hit-condition forms: "==N", ">N",
// ">=N", "<N", "%N", and a bare "N" (shorthand for "==N").
func ParseHitCondition(s string) (HitCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return HitCondition{}, fmt.Errorf("parse %q: %w", s, ErrInvalidHitCondition)
	}

	op := HitEqual
	rest := s
	switch {
	case strings.HasPrefix(s, "=="):
		rest = s[2:]
	case strings.HasPrefix(s, ">="):
		op = HitGreaterEqual
		rest = s[2:]
	case strings.HasPrefix(s, ">"):
		op = HitGreater
		rest = s[1:]
	case strings.HasPrefix(s, "<"):
		op = HitLess
		rest = s[1:]
	case strings.HasPrefix(s, "%"):
		op = HitMultiple
		rest = s[1:]
	}

	count, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || count <= 0 {
		return HitCondition{}, fmt.Errorf("parse %q: %w", s, ErrInvalidHitCondition)
	}

	return HitCondition{Op: op, Count: count}, nil
}

// Matches reports whether a breakpoint with this condition should trigger
// on its hits-th hit.
func (c HitCondition) Matches(hits int) bool {
	switch c.Op {
	case HitEqual:
		return hits == c.Count
	case HitGreater:
		return hits > c.Count
	case HitGreaterEqual:
		return hits >= c.Count
	case HitLess:
		return hits < c.Count
	case HitMultiple:
		return hits%c.Count == 0
	default:
		return false
	}
}

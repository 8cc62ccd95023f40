package debug

import (
	"errors"
	"testing"
)

func TestParseHitCondition(t *testing.T) {
	tests := []struct {
		input string
		op    HitOp
		count int
	}{
		{"==5", HitEqual, 5},
		{"5", HitEqual, 5},
		{" == 3 ", HitEqual, 3},
		{">2", HitGreater, 2},
		{">=4", HitGreaterEqual, 4},
		{"<10", HitLess, 10},
		{"%3", HitMultiple, 3},
	}

	for _, tt := range tests {
		cond, err := ParseHitCondition(tt.input)
		if err != nil {
			t.Errorf("parse %q: %v", tt.input, err)
			continue
		}
		if cond.Op != tt.op || cond.Count != tt.count {
			t.Errorf("parse %q = {%v %d}, want {%v %d}",
				tt.input, cond.Op, cond.Count, tt.op, tt.count)
		}
	}
}

func TestParseHitConditionRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "abc", "==", ">=x", "%0", "-3", "==0"} {
		if _, err := ParseHitCondition(input); !errors.Is(err, ErrInvalidHitCondition) {
			t.Errorf("parse %q = %v, want ErrInvalidHitCondition", input, err)
		}
	}
}

func TestHitConditionMatches(t *testing.T) {
	tests := []struct {
		cond string
		hits int
		want bool
	}{
		{"==3", 3, true},
		{"==3", 2, false},
		{">2", 3, true},
		{">2", 2, false},
		{">=2", 2, true},
		{"<5", 4, true},
		{"<5", 5, false},
		{"%3", 6, true},
		{"%3", 7, false},
	}

	for _, tt := range tests {
		cond, err := ParseHitCondition(tt.cond)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.cond, err)
		}
		if got := cond.Matches(tt.hits); got != tt.want {
			t.Errorf("%q.Matches(%d) = %v, want %v", tt.cond, tt.hits, got, tt.want)
		}
	}
}

package scalarunit

import (
	"testing"

	"github.com/opentosca/tosca-template/errs"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
		base float64
	}{
		{"10 GB", "10 GB", 10_000_000_000},
		{"500ms", "500 ms", 0.5},
		{"1 GiB", "1 GiB", 1073741824},
		{"2.5 Mbps", "2.5 Mbps", 2_500_000},
	}

	for _, tt := range tests {
		su, err := Parse(errs.Location{}, tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tt.in, err)
		}
		if su.Base != tt.base {
			t.Errorf("Parse(%q).Base = %v, want %v", tt.in, su.Base, tt.base)
		}
		if got := su.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "GB", "10", "10 XX"} {
		if _, err := Parse(errs.Location{}, in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestCompareUnitMismatch(t *testing.T) {
	a, _ := Parse(errs.Location{}, "10 GB")
	b, _ := Parse(errs.Location{}, "10 s")
	if _, err := a.Compare(errs.Location{}, b); err == nil {
		t.Errorf("expected family mismatch error comparing %v and %v", a, b)
	}
}

func TestConstraintValidValues(t *testing.T) {
	c := &Clause{Op: OpValidValues, Values: []interface{}{1, 2, 4, 8}}
	if err := c.Evaluate(errs.Location{}, 4); err != nil {
		t.Errorf("4 should satisfy valid_values [1,2,4,8]: %v", err)
	}
	if err := c.Evaluate(errs.Location{}, 3); err == nil {
		t.Errorf("3 should violate valid_values [1,2,4,8]")
	}
}

func TestConstraintInRangeUnbounded(t *testing.T) {
	c := &Clause{Op: OpInRange, Range: [2]interface{}{1, Unbounded}}
	if err := c.Evaluate(errs.Location{}, 1000000); err != nil {
		t.Errorf("unbounded upper range should accept large values: %v", err)
	}
	if err := c.Evaluate(errs.Location{}, 0); err == nil {
		t.Errorf("0 should violate in_range [1, UNBOUNDED]")
	}
}

func TestConstraintPatternAnchored(t *testing.T) {
	c := &Clause{Op: OpPattern, Operand: "[a-z]+"}
	if err := c.Evaluate(errs.Location{}, "abc"); err != nil {
		t.Errorf("abc should match pattern: %v", err)
	}
	if err := c.Evaluate(errs.Location{}, "abc123"); err == nil {
		t.Errorf("abc123 should not match anchored pattern [a-z]+")
	}
}

func TestConstraintScalarUnitInRange(t *testing.T) {
	lo, _ := Parse(errs.Location{}, "1 GB")
	hi, _ := Parse(errs.Location{}, "4 GB")
	c := &Clause{Op: OpInRange, Range: [2]interface{}{lo, hi}}

	v, _ := Parse(errs.Location{}, "2 GB")
	if err := c.Evaluate(errs.Location{}, v); err != nil {
		t.Errorf("2 GB should be within [1 GB, 4 GB]: %v", err)
	}

	v2, _ := Parse(errs.Location{}, "8 GB")
	if err := c.Evaluate(errs.Location{}, v2); err == nil {
		t.Errorf("8 GB should be outside [1 GB, 4 GB]")
	}
}

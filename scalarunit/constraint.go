package scalarunit

import (
	"reflect"
	"regexp"

	"github.com/opentosca/tosca-template/errs"
)

// Op identifies a constraint clause operator from spec §4.A.
type Op string

const (
	OpEqual          Op = "equal"
	OpGreaterThan    Op = "greater_than"
	OpGreaterOrEqual Op = "greater_or_equal"
	OpLessThan       Op = "less_than"
	OpLessOrEqual    Op = "less_or_equal"
	OpInRange        Op = "in_range"
	OpValidValues    Op = "valid_values"
	OpLength         Op = "length"
	OpMinLength      Op = "min_length"
	OpMaxLength      Op = "max_length"
	OpPattern        Op = "pattern"
	OpSchema         Op = "schema"
)

// Unbounded marks a range endpoint as disabled, per spec §4.A/§3
// ("UNBOUNDED on the upper bound disables the upper check").
type unboundedType struct{}

var Unbounded = unboundedType{}

// Clause is one constraint clause, e.g. { in_range: [1, 8] }.
type Clause struct {
	Op       Op
	Operand  interface{}   // single operand form (equal, greater_than, length, pattern, ...)
	Range    [2]interface{} // [min, max] for in_range; an element may be Unbounded
	Values   []interface{}  // for valid_values
	Schema   []Clause       // for schema (nested clauses)
	compiled *regexp.Regexp // cached for OpPattern
}

// Evaluate checks value against the clause, reporting an
// errs.ConstraintViolation on failure.
func (c *Clause) Evaluate(loc errs.Location, value interface{}) error {
	switch c.Op {
	case OpEqual:
		if !valuesEqual(value, c.Operand) {
			return violate(loc, "value %v does not equal %v", value, c.Operand)
		}
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return c.evaluateOrdering(loc, value)
	case OpInRange:
		return c.evaluateRange(loc, value)
	case OpValidValues:
		for _, v := range c.Values {
			if valuesEqual(value, v) {
				return nil
			}
		}
		return violate(loc, "value %v is not one of %v", value, c.Values)
	case OpLength, OpMinLength, OpMaxLength:
		return c.evaluateLength(loc, value)
	case OpPattern:
		return c.evaluatePattern(loc, value)
	case OpSchema:
		for i := range c.Schema {
			if err := c.Schema[i].Evaluate(loc, value); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.New(errs.SchemaError, loc, "unknown constraint operator %q", c.Op)
	}
	return nil
}

func violate(loc errs.Location, format string, args ...interface{}) error {
	return errs.New(errs.ConstraintViolation, loc, format, args...)
}

func (c *Clause) evaluateOrdering(loc errs.Location, value interface{}) error {
	cmp, err := compareOperands(loc, value, c.Operand)
	if err != nil {
		return err
	}
	ok := false
	switch c.Op {
	case OpGreaterThan:
		ok = cmp > 0
	case OpGreaterOrEqual:
		ok = cmp >= 0
	case OpLessThan:
		ok = cmp < 0
	case OpLessOrEqual:
		ok = cmp <= 0
	}
	if !ok {
		return violate(loc, "value %v fails %s %v", value, c.Op, c.Operand)
	}
	return nil
}

func (c *Clause) evaluateRange(loc errs.Location, value interface{}) error {
	lo, hi := c.Range[0], c.Range[1]
	if lo != Unbounded {
		cmp, err := compareOperands(loc, value, lo)
		if err != nil {
			return err
		}
		if cmp < 0 {
			return violate(loc, "value %v is below range minimum %v", value, lo)
		}
	}
	if hi != Unbounded {
		cmp, err := compareOperands(loc, value, hi)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return violate(loc, "value %v is above range maximum %v", value, hi)
		}
	}
	return nil
}

func (c *Clause) evaluateLength(loc errs.Location, value interface{}) error {
	n, ok := lengthOf(value)
	if !ok {
		return errs.New(errs.TypeMismatchError, loc, "value %v has no length", value)
	}
	want, ok := toInt(c.Operand)
	if !ok {
		return errs.New(errs.SchemaError, loc, "length operand %v is not an integer", c.Operand)
	}
	switch c.Op {
	case OpLength:
		if n != want {
			return violate(loc, "length %d does not equal %d", n, want)
		}
	case OpMinLength:
		if n < want {
			return violate(loc, "length %d is below minimum %d", n, want)
		}
	case OpMaxLength:
		if n > want {
			return violate(loc, "length %d exceeds maximum %d", n, want)
		}
	}
	return nil
}

func (c *Clause) evaluatePattern(loc errs.Location, value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return errs.New(errs.TypeMismatchError, loc, "pattern constraint requires a string, got %T", value)
	}
	if c.compiled == nil {
		pat, ok := c.Operand.(string)
		if !ok {
			return errs.New(errs.SchemaError, loc, "pattern operand must be a string")
		}
		// Anchored ^...$ semantics per spec §4.A, regardless of whether the
		// author already anchored the expression.
		anchored := "^(?:" + pat + ")$"
		re, err := regexp.Compile(anchored)
		if err != nil {
			return errs.Wrap(errs.SchemaError, loc, err, "invalid pattern %q", pat)
		}
		c.compiled = re
	}
	if !c.compiled.MatchString(s) {
		return violate(loc, "value %q does not match pattern", s)
	}
	return nil
}

// lengthOf computes structural length: string rune count, or
// slice/map/array length for collections (spec §3 PropertyDef/"length").
func lengthOf(value interface{}) (int, bool) {
	switch v := value.(type) {
	case string:
		return len([]rune(v)), true
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return rv.Len(), true
		}
		return 0, false
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// valuesEqual implements spec §4.A value equality: "structural" for
// collections.
func valuesEqual(a, b interface{}) bool {
	if su, ok := a.(ScalarUnit); ok {
		if sb, ok := asScalarUnit(b); ok {
			return su.Family == sb.Family && su.Base == sb.Base
		}
	}
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		return an == bn
	}
	return reflect.DeepEqual(a, b)
}

// asScalarUnit accepts either an already-parsed ScalarUnit or a raw
// "<magnitude> <unit>" string — constraint operands arrive as the latter
// straight out of YAML decoding, since the clause compiler has no access
// to the enclosing property's declared type.
func asScalarUnit(v interface{}) (ScalarUnit, bool) {
	switch x := v.(type) {
	case ScalarUnit:
		return x, true
	case string:
		su, err := Parse(errs.Location{}, x)
		if err != nil {
			return ScalarUnit{}, false
		}
		return su, true
	}
	return ScalarUnit{}, false
}

// compareOperands compares a value against an operand, handling numbers
// and ScalarUnits (family-aware) per spec §4.A.
func compareOperands(loc errs.Location, value, operand interface{}) (int, error) {
	if su, ok := value.(ScalarUnit); ok {
		so, ok2 := asScalarUnit(operand)
		if !ok2 {
			return 0, errs.New(errs.TypeMismatchError, loc, "cannot compare scalar-unit %v against non-scalar-unit operand %v", value, operand)
		}
		return su.Compare(loc, so)
	}
	vn, ok := toFloat(value)
	on, ok2 := toFloat(operand)
	if ok && ok2 {
		switch {
		case vn < on:
			return -1, nil
		case vn > on:
			return 1, nil
		default:
			return 0, nil
		}
	}
	vs, ok := value.(string)
	os, ok2 := operand.(string)
	if ok && ok2 {
		switch {
		case vs < os:
			return -1, nil
		case vs > os:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, errs.New(errs.TypeMismatchError, loc, "cannot compare %v (%T) against %v (%T)", value, value, operand, operand)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

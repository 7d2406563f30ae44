// Package valueexpr implements the tagged-variant ValueExpr from spec §3
// and §9 ("Duck-typed value expressions... become the tagged-variant
// ValueExpr"): a property/input/output value that is either a literal, a
// function call, or — once bound — a resolved reference.
package valueexpr

import (
	"fmt"

	"github.com/opentosca/tosca-template/errs"
)

// Tag discriminates the ValueExpr variants.
type Tag int

const (
	TagLiteral Tag = iota
	TagFunctionCall
	TagReference
)

// ValueExpr is the tagged union the elaborator stores for every property,
// input default, and output value (spec §4.D: "the elaborator stores
// them as ValueExpr — actual resolution is deferred to 4.E").
type ValueExpr struct {
	Tag      Tag
	Literal  interface{}
	Function string        // function name, e.g. "get_property"
	Args     []*ValueExpr  // function arguments, themselves possibly function calls
	RefPath  []string      // for TagReference (rarely used directly; most refs arrive as function calls)
	Source   errs.Location
}

// Lit builds a literal ValueExpr.
func Lit(v interface{}, loc errs.Location) *ValueExpr {
	return &ValueExpr{Tag: TagLiteral, Literal: v, Source: loc}
}

// Call builds a function-call ValueExpr.
func Call(name string, args []*ValueExpr, loc errs.Location) *ValueExpr {
	return &ValueExpr{Tag: TagFunctionCall, Function: name, Args: args, Source: loc}
}

// IsIntrinsic reports whether name is one of the functions spec §4.E
// recognizes.
func IsIntrinsic(name string) bool {
	switch name {
	case "get_input", "get_property", "get_attribute", "get_operation_output",
		"get_artifact", "concat", "token":
		return true
	}
	return false
}

func (v *ValueExpr) String() string {
	switch v.Tag {
	case TagLiteral:
		return fmt.Sprintf("%v", v.Literal)
	case TagFunctionCall:
		return fmt.Sprintf("%s(%v)", v.Function, v.Args)
	default:
		return fmt.Sprintf("ref(%v)", v.RefPath)
	}
}

// FromNative builds a ValueExpr tree from an already-decoded YAML value
// (map[string]interface{}/[]interface{}/scalars), recognizing single-key
// maps whose key is an intrinsic function name as function calls —
// mirroring how other_examples' CloudFormation intrinsics resolver
// recognizes "single-key map with intrinsic name" (see
// intrinsics.Resolver.resolveMapValue).
func FromNative(v interface{}, loc errs.Location) *ValueExpr {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			for k, arg := range val {
				if IsIntrinsic(k) {
					return Call(k, argsFromNative(arg, loc), loc)
				}
			}
		}
		return Lit(val, loc)
	default:
		return Lit(v, loc)
	}
}

func argsFromNative(v interface{}, loc errs.Location) []*ValueExpr {
	if list, ok := v.([]interface{}); ok {
		out := make([]*ValueExpr, len(list))
		for i, item := range list {
			out[i] = FromNative(item, loc)
		}
		return out
	}
	return []*ValueExpr{FromNative(v, loc)}
}

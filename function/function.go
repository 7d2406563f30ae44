// Package function implements spec §4.E: evaluating intrinsic function
// trees (get_input, get_property, get_attribute, get_operation_output,
// get_artifact, concat, token) against an elaborated topology, following
// the pre-order tree-traversal shape of
// other_examples' intrinsics.Resolver.resolveValue.
package function

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/topology"
	"github.com/opentosca/tosca-template/valueexpr"
)

// Unknown marks a value whose concrete runtime contents cannot be known
// during static evaluation (get_attribute, get_operation_output); it
// still carries the declared type so callers can type-check against it.
type Unknown struct {
	Type qname.Name
}

func (u Unknown) String() string { return fmt.Sprintf("Unknown(%s)", u.Type) }

// Entity names one of the fixed evaluation-context anchors of spec §4.E,
// or a literal node template name.
type Entity string

const (
	EntitySelf   Entity = "SELF"
	EntityHost   Entity = "HOST"
	EntitySource Entity = "SOURCE"
	EntityTarget Entity = "TARGET"
)

// Context supplies the anchors a function call is evaluated relative to:
// the node template the expression is attached to, and — for
// relationship-scoped expressions — the source/target nodes of that
// relationship.
type Context struct {
	Self   *topology.NodeTemplate
	Source *topology.NodeTemplate
	Target *topology.NodeTemplate
}

// Evaluator resolves ValueExpr trees against one Topology. Option
// mirrors the functional-options shape of intrinsics.Resolver/ResolverOption.
type Evaluator struct {
	topo   *topology.Topology
	params map[string]interface{}
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithParameters supplies input bindings visible to get_input, in
// addition to whatever the topology's Input.bound values already carry
// (params override the elaborated defaults, matching how a caller's
// runtime invocation may re-bind inputs).
func WithParameters(params map[string]interface{}) Option {
	return func(e *Evaluator) { e.params = params }
}

// NewEvaluator creates an Evaluator bound to topo.
func NewEvaluator(topo *topology.Topology, opts ...Option) *Evaluator {
	e := &Evaluator{topo: topo, params: map[string]interface{}{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate resolves expr against ctx, recursively evaluating nested
// function calls pre-order: a call's own semantics run only after its
// arguments are fully resolved.
func (e *Evaluator) Evaluate(expr *valueexpr.ValueExpr, ctx Context) (interface{}, error) {
	if expr == nil {
		return nil, nil
	}
	switch expr.Tag {
	case valueexpr.TagLiteral:
		return expr.Literal, nil
	case valueexpr.TagReference:
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "bare reference cannot be evaluated directly")
	}

	args := make([]interface{}, len(expr.Args))
	for i, a := range expr.Args {
		v, err := e.Evaluate(a, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch expr.Function {
	case "get_input":
		return e.getInput(expr, args)
	case "get_property":
		return e.getPropertyOrAttribute(expr, ctx, args, false)
	case "get_attribute":
		return e.getPropertyOrAttribute(expr, ctx, args, true)
	case "get_operation_output":
		return e.getOperationOutput(expr, args)
	case "get_artifact":
		return e.getArtifact(expr, ctx, args)
	case "concat":
		return e.concat(args), nil
	case "token":
		return e.token(expr, args)
	default:
		return nil, errs.New(errs.UnknownFunctionError, expr.Source, "unknown intrinsic function %q", expr.Function)
	}
}

func (e *Evaluator) getInput(expr *valueexpr.ValueExpr, args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_input requires exactly one argument")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_input argument must be a string")
	}
	if v, ok := e.params[name]; ok {
		return v, nil
	}
	in, ok := e.topo.Inputs[name]
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_input: unknown input %q", name)
	}
	if v, ok := in.Value(); ok {
		return v, nil
	}
	return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_input: %q was never bound", name)
}

// resolveEntity maps an Entity token (or a literal node name) to a node
// template per spec §4.E. HOST walks the "host" requirement chain until
// it runs out of hops, returning the furthest reachable node (typically
// a tosca.nodes.Compute-derived node, but the walk itself only follows
// HostedOn-style "host" requirement slots without asserting the target
// type — callers that need the Compute guarantee check it themselves).
func (e *Evaluator) resolveEntity(expr *valueexpr.ValueExpr, ctx Context, token string) (*topology.NodeTemplate, error) {
	switch Entity(token) {
	case EntitySelf:
		if ctx.Self == nil {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "SELF has no binding in this context")
		}
		return ctx.Self, nil
	case EntitySource:
		if ctx.Source == nil {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "SOURCE has no binding in this context")
		}
		return ctx.Source, nil
	case EntityTarget:
		if ctx.Target == nil {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "TARGET has no binding in this context")
		}
		return ctx.Target, nil
	case EntityHost:
		if ctx.Self == nil {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "HOST has no SELF to walk from")
		}
		return e.walkHost(expr, ctx.Self)
	default:
		n, ok := e.topo.Node(token)
		if !ok {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "unknown entity %q", token)
		}
		return n, nil
	}
}

// findRequirement returns n's bound requirement assignment named name,
// if any.
func findRequirement(n *topology.NodeTemplate, name string) *topology.RequirementAssignment {
	for _, r := range n.Requirements {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (e *Evaluator) walkHost(expr *valueexpr.ValueExpr, from *topology.NodeTemplate) (*topology.NodeTemplate, error) {
	cur := from
	seen := map[string]bool{}
	for {
		if seen[cur.Name] {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "HOST traversal cycles through node %q", cur.Name)
		}
		seen[cur.Name] = true
		var next *topology.NodeTemplate
		for _, r := range cur.Requirements {
			if r.Name == "host" && r.TargetNode != nil {
				next = r.TargetNode
				break
			}
		}
		if next == nil {
			return cur, nil
		}
		cur = next
	}
}

func (e *Evaluator) getPropertyOrAttribute(expr *valueexpr.ValueExpr, ctx Context, args []interface{}, attribute bool) (interface{}, error) {
	if len(args) < 2 {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_property/get_attribute requires [entity, ...prop_path]")
	}
	entityTok, ok := args[0].(string)
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "entity argument must be a string")
	}
	node, err := e.resolveEntity(expr, ctx, entityTok)
	if err != nil {
		return nil, err
	}

	path := make([]string, len(args)-1)
	for i, a := range args[1:] {
		s, ok := a.(string)
		if !ok {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "prop_path segments must be strings")
		}
		path[i] = s
	}

	// Requirement-name traversal (spec §4.E: prop_path may name a
	// capability or a requirement before the final property/attribute
	// segment). While the next segment names one of the current node's
	// bound requirements and at least one segment remains after it, hop
	// to that requirement's target node and consume the segment — this
	// is what lets scenario 4's [SELF, host, host, num_cpus] walk the
	// hosted-on chain Database -> DBMS -> Compute using the "host"
	// requirement name twice, distinct from the HOST entity keyword
	// (walkHost), which is a single implicit walk to the end of the
	// chain rather than an explicit per-segment hop.
	for len(path) > 1 {
		req := findRequirement(node, path[0])
		if req == nil || req.TargetNode == nil {
			break
		}
		node = req.TargetNode
		path = path[1:]
	}

	var expression *valueexpr.ValueExpr
	var declaredType qname.Name
	head := path[0]

	if attribute {
		expression, ok = node.Attributes[head]
		if !ok {
			if def, ok2 := node.Flattened.Attributes[head]; ok2 {
				declaredType = def.Type
				return Unknown{Type: declaredType}, nil
			}
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "node %q has no attribute %q", node.Name, head)
		}
	} else {
		if cap, ok2 := node.Capabilities[head]; ok2 && len(path) >= 2 {
			expression, ok = cap.Properties[path[1]]
			if !ok {
				return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "capability %q of node %q has no property %q", head, node.Name, path[1])
			}
			path = path[1:]
		} else {
			expression, ok = node.Properties[head]
			if !ok {
				return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "node %q has no property %q", node.Name, head)
			}
		}
	}

	value, err := e.Evaluate(expression, Context{Self: node})
	if err != nil {
		return nil, err
	}
	if u, ok := value.(Unknown); ok {
		return u, nil
	}
	return walkNested(expr, value, path[1:])
}

// walkNested descends into maps/data-type values for the remaining
// prop_path segments after the leading property/attribute name.
func walkNested(expr *valueexpr.ValueExpr, value interface{}, rest []string) (interface{}, error) {
	cur := value
	for _, seg := range rest {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, errs.New(errs.TypeMismatchError, expr.Source, "cannot index %q into non-map value %v", seg, cur)
		}
		v, ok := m[seg]
		if !ok {
			return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "path segment %q not found", seg)
		}
		cur = v
	}
	return cur, nil
}

func (e *Evaluator) getOperationOutput(expr *valueexpr.ValueExpr, args []interface{}) (interface{}, error) {
	if len(args) != 4 {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_operation_output requires [node, interface, operation, output]")
	}
	nodeName, _ := args[0].(string)
	ifaceName, _ := args[1].(string)
	opName, _ := args[2].(string)
	outName, _ := args[3].(string)

	node, err := e.resolveEntity(expr, Context{}, nodeName)
	if err != nil {
		return nil, err
	}
	iface, ok := node.Flattened.Interfaces[ifaceName]
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "node %q has no interface %q", node.Name, ifaceName)
	}
	op, ok := iface.Operations[opName]
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "interface %q has no operation %q", ifaceName, opName)
	}
	outDef, ok := op.Outputs[outName]
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "operation %q has no declared output %q", opName, outName)
	}
	return Unknown{Type: outDef.Type}, nil
}

func (e *Evaluator) getArtifact(expr *valueexpr.ValueExpr, ctx Context, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "get_artifact requires [entity, artifact_name, ...]")
	}
	entityTok, _ := args[0].(string)
	artifactName, _ := args[1].(string)
	node, err := e.resolveEntity(expr, ctx, entityTok)
	if err != nil {
		return nil, err
	}
	art, ok := node.Artifacts[artifactName]
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "node %q has no artifact %q", node.Name, artifactName)
	}
	return art.File, nil
}

func (e *Evaluator) concat(args []interface{}) interface{} {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(stringify(a))
	}
	return sb.String()
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (e *Evaluator) token(expr *valueexpr.ValueExpr, args []interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "token requires [str, sep, index]")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "token: first argument must be a string")
	}
	sep, ok := args[1].(string)
	if !ok {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "token: separator must be a string")
	}
	idx, err := toIndex(args[2])
	if err != nil {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "token: index must be an integer")
	}
	parts := strings.Split(s, sep)
	if idx < 0 || idx >= len(parts) {
		return nil, errs.New(errs.FunctionEvaluationError, expr.Source, "token: index %d out of range for %d parts", idx, len(parts))
	}
	return parts[idx], nil
}

func toIndex(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported index type %T", v)
	}
}

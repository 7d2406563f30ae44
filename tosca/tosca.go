// Package tosca is the top-level orchestrator: it decodes a TOSCA Simple
// Profile YAML document, resolves its imports, registers and flattens its
// type hierarchy, elaborates its topology template, validates any
// substitution mappings, and checks that every intrinsic function
// reference can be resolved — producing one frozen Topology plus the
// diagnostics accumulated along the way (spec §4, §7).
package tosca

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/opentosca/tosca-template/diag"
	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/function"
	"github.com/opentosca/tosca-template/imports"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/substitution"
	"github.com/opentosca/tosca-template/topology"
	"github.com/opentosca/tosca-template/valueexpr"
)

// State is one stage of the parse lifecycle (spec §4.G).
type State string

const (
	StateEmpty              State = "EMPTY"
	StateImportsResolved    State = "IMPORTS_RESOLVED"
	StateTypesRegistered    State = "TYPES_REGISTERED"
	StateTypesFlattened     State = "TYPES_FLATTENED"
	StateTopologyElaborated State = "TOPOLOGY_ELABORATED"
	StateFunctionsBound     State = "FUNCTIONS_BOUND"
	StateValidated          State = "VALIDATED"
	StateFailed             State = "FAILED"
)

// config holds everything the functional options below can set.
type config struct {
	loader imports.Loader
	params map[string]interface{}
	strict bool
}

// Option configures a Parse call, mirroring the functional-options shape
// used throughout this module (function.Option, registry.RegisterProfile's
// caller-supplied tables).
type Option func(*config)

// WithLoader supplies the callback used to resolve imports: entries. A nil
// loader (the default) makes any non-empty imports: list an ImportError.
func WithLoader(loader imports.Loader) Option {
	return func(c *config) { c.loader = loader }
}

// WithParameters supplies caller-bound input values (spec §6).
func WithParameters(params map[string]interface{}) Option {
	return func(c *config) { c.params = params }
}

// WithStrict switches the diagnostic sink into strict mode (spec §4.G);
// Parse itself still runs every stage it can, but callers inspecting
// Result.Sink via Sink.Strict can choose to halt their own
// downstream processing at the first error.
func WithStrict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// Result is everything one Parse invocation produced.
type Result struct {
	State      State
	Topology   *topology.Topology
	Registry   *registry.TypeRegistry
	Sink       *diag.Sink
	Evaluator  *function.Evaluator
}

func noopLoader(ref, base string) (*yaml.Node, string, error) {
	return nil, "", fmt.Errorf("import %q: no loader configured (use tosca.WithLoader)", ref)
}

// Parse runs the full pipeline described in spec §4 over one root
// document's bytes, under file for diagnostic source locations.
func Parse(data []byte, file string, opts ...Option) (*Result, error) {
	cfg := &config{loader: noopLoader}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.loader == nil {
		cfg.loader = noopLoader
	}
	sink := diag.New(cfg.strict)
	res := &Result{State: StateEmpty, Sink: sink}

	var rootDoc yaml.Node
	if err := yaml.Unmarshal(data, &rootDoc); err != nil {
		e := errs.Wrap(errs.SchemaError, errs.Location{File: file}, err, "invalid YAML")
		sink.ReportError(e)
		res.State = StateFailed
		return res, e
	}
	root := documentRoot(&rootDoc)
	if root == nil || root.Kind != yaml.MappingNode {
		e := errs.New(errs.SchemaError, errs.Location{File: file}, "document root must be a mapping")
		sink.ReportError(e)
		res.State = StateFailed
		return res, e
	}

	versionNode := findKey(root, "tosca_definitions_version")
	if versionNode == nil {
		e := errs.New(errs.SchemaError, loc(file, root), "missing tosca_definitions_version")
		sink.ReportError(e)
		res.State = StateFailed
		return res, e
	}
	version := versionNode.Value

	entries, err := imports.ExtractEntries(&rootDoc)
	if err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe)
		}
		res.State = StateFailed
		return res, err
	}
	resolver := imports.New(cfg.loader)
	var docs []*imports.Document
	if len(entries) > 0 {
		docs, err = resolver.Resolve(entries, file)
		if err != nil {
			if fe, ok := err.(*errs.Error); ok {
				sink.ReportError(fe)
			}
			res.State = StateFailed
			return res, err
		}
	}
	res.State = StateImportsResolved

	reg, err := registry.New(version)
	if err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe)
		}
		res.State = StateFailed
		return res, err
	}
	res.Registry = reg

	rootDefs, err := decodeTypeDefinitions(file, root, "")
	if err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe)
		}
		res.State = StateFailed
		return res, err
	}
	registerAll(reg, rootDefs, sink)

	for _, doc := range docs {
		docRoot := documentRoot(doc.Tree)
		if docRoot == nil || docRoot.Kind != yaml.MappingNode {
			continue
		}
		defs, err := decodeTypeDefinitions(doc.URI, docRoot, doc.Prefix)
		if err != nil {
			if fe, ok := err.(*errs.Error); ok {
				sink.ReportError(fe)
			}
			continue
		}
		registerAll(reg, defs, sink)
	}
	res.State = StateTypesRegistered

	if err := reg.ResolveDerivation(); err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe)
		}
		res.State = StateFailed
		return res, err
	}
	res.State = StateTypesFlattened

	spec, err := decodeTemplate(file, root)
	if err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe)
		}
		res.State = StateFailed
		return res, err
	}

	elaborator := topology.NewElaborator(reg, cfg.params)
	topo, diags := elaborator.Elaborate(spec)
	for _, d := range diags {
		switch d.Severity {
		case "warning":
			sink.ReportWarning(d.Err.Kind, d.Err.Source, d.Tags, "%s", d.Err.Message)
		default:
			sink.ReportError(d.Err)
		}
	}
	res.Topology = topo
	res.State = StateTopologyElaborated

	if sm := findKey(findKey(root, "topology_template"), "substitution_mappings"); sm != nil {
		m := decodeSubstitutionMapping(file, sm)
		mapped, subDiags := substitution.Resolve(reg, topo, m)
		for _, d := range subDiags {
			sink.ReportError(d)
		}
		topo.SubstitutionMappings = mapped
	}

	evaluator := function.NewEvaluator(topo, function.WithParameters(cfg.params))
	res.Evaluator = evaluator
	validateFunctions(evaluator, topo, sink)
	res.State = StateFunctionsBound

	if sink.HasErrors() {
		res.State = StateFailed
	} else {
		res.State = StateValidated
	}
	return res, nil
}

func registerAll(reg *registry.TypeRegistry, defs []*registry.TypeDefinition, sink *diag.Sink) {
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			if fe, ok := err.(*errs.Error); ok {
				sink.ReportError(fe)
			}
		}
	}
}

func decodeSubstitutionMapping(file string, n *yaml.Node) *substitution.Mapping {
	m := &substitution.Mapping{
		Properties:   map[string]string{},
		Capabilities: map[string][2]string{},
		Requirements: map[string][2]string{},
		Source:       loc(file, n),
	}
	for key, val := range iterMapping(n) {
		switch key.Value {
		case "node_type":
			m.NodeType = qname.Name(val.Value)
		case "properties":
			for pk, pv := range iterMapping(val) {
				if pv.Kind == yaml.SequenceNode && len(pv.Content) == 1 {
					m.Properties[pk.Value] = pv.Content[0].Value
				} else {
					m.Properties[pk.Value] = pv.Value
				}
			}
		case "capabilities":
			for ck, cv := range iterMapping(val) {
				if cv.Kind == yaml.SequenceNode && len(cv.Content) == 2 {
					m.Capabilities[ck.Value] = [2]string{cv.Content[0].Value, cv.Content[1].Value}
				}
			}
		case "requirements":
			for rk, rv := range iterMapping(val) {
				if rv.Kind == yaml.SequenceNode && len(rv.Content) == 2 {
					m.Requirements[rk.Value] = [2]string{rv.Content[0].Value, rv.Content[1].Value}
				}
			}
		}
	}
	return m
}

// validateFunctions walks every bound property/output expression and
// confirms each intrinsic function call resolves, without requiring
// runtime attribute values to already be known (get_attribute/
// get_operation_output legitimately resolve to function.Unknown until an
// orchestrator actually runs the node).
func validateFunctions(ev *function.Evaluator, topo *topology.Topology, sink *diag.Sink) {
	for _, name := range topo.NodeOrder() {
		nt, _ := topo.Node(name)
		ctx := function.Context{Self: nt}
		for pname, expr := range nt.Properties {
			checkExpr(ev, ctx, expr, sink, fmt.Sprintf("node %q property %q", name, pname))
		}
		for _, req := range nt.Requirements {
			if req.Relationship == nil {
				continue
			}
			rctx := function.Context{Self: nt, Source: nt, Target: req.TargetNode}
			for pname, expr := range req.Relationship.Properties {
				checkExpr(ev, rctx, expr, sink, fmt.Sprintf("node %q requirement %q relationship property %q", name, req.Name, pname))
			}
		}
	}
	for oname, out := range topo.Outputs {
		checkExpr(ev, function.Context{}, out.Expr, sink, fmt.Sprintf("output %q", oname))
	}
}

func checkExpr(ev *function.Evaluator, ctx function.Context, expr *valueexpr.ValueExpr, sink *diag.Sink, where string) {
	if expr == nil || expr.Tag != valueexpr.TagFunctionCall {
		return
	}
	if _, err := ev.Evaluate(expr, ctx); err != nil {
		if fe, ok := err.(*errs.Error); ok {
			sink.ReportError(fe, where)
		}
	}
}

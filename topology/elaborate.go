package topology

import (
	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/scalarunit"
	"github.com/opentosca/tosca-template/valueexpr"
)

// Elaborator instantiates node/relationship/group/policy templates from a
// TemplateSpec against a frozen-for-writing TypeRegistry (spec §4.D,
// §5: "the registry is mutated only during IMPORTS_RESOLVED ->
// TYPES_FLATTENED; thereafter it is frozen for the remainder of the
// call").
type Elaborator struct {
	reg    *registry.TypeRegistry
	strict bool
	params map[string]interface{} // caller-supplied input bindings (spec §6)
}

// NewElaborator creates an Elaborator bound to reg. params are the
// caller-supplied input values used to bind topology_template.inputs.
func NewElaborator(reg *registry.TypeRegistry, params map[string]interface{}) *Elaborator {
	return &Elaborator{reg: reg, params: params}
}

// Diagnostic is the plain-data shape elaborate returns diagnostics as,
// avoiding an import of the diag package here (topology sits below diag
// in the dependency graph: diag only needs errs, and higher layers adapt
// these into diag.Diagnostic).
type Diagnostic struct {
	Severity string
	Err      *errs.Error
	Tags     []string
}

// Elaborate runs the full 4.D pipeline: inputs, node templates
// (including copy-merge and property validation), requirement binding,
// groups/policies, and outputs. It always returns the partially- or
// fully-built Topology plus accumulated diagnostics; no problem aborts
// elaboration — every one is collected so later stages can still run
// (spec §7).
func (e *Elaborator) Elaborate(spec *TemplateSpec) (*Topology, []Diagnostic) {
	var diags []Diagnostic
	report := func(err *errs.Error) {
		diags = append(diags, Diagnostic{Severity: "error", Err: err})
	}
	warn := func(kind errs.Kind, loc errs.Location, tags []string, format string, args ...interface{}) {
		diags = append(diags, Diagnostic{Severity: "warning", Err: errs.New(kind, loc, format, args...), Tags: tags})
	}

	topo := &Topology{
		Registry:              e.reg,
		Inputs:                map[string]*Input{},
		Outputs:               map[string]*Output{},
		NodeTemplates:         map[string]*NodeTemplate{},
		RelationshipTemplates: map[string]*RelationshipTemplate{},
		Groups:                map[string]*Group{},
		Policies:              map[string]*Policy{},
	}

	e.elaborateInputs(spec, topo, report)
	e.elaborateRelationshipTemplates(spec, topo, report)
	e.elaborateNodeTemplates(spec, topo, report, warn)
	e.bindRequirements(spec, topo, report)
	e.elaborateGroupsAndPolicies(spec, topo, report)
	e.elaborateOutputs(spec, topo, report)

	return topo, diags
}

func (e *Elaborator) elaborateInputs(spec *TemplateSpec, topo *Topology, report func(*errs.Error)) {
	for _, is := range spec.Inputs {
		in := &Input{
			Name:        is.Name,
			Type:        is.Type,
			Required:    is.Required,
			Description: "",
		}
		if is.HasDefault {
			in.Default = valueexpr.Lit(is.Default, is.Source)
		}
		for _, c := range is.Constraints {
			clause, err := compileClause(c)
			if err != nil {
				report(err.(*errs.Error))
				continue
			}
			cl := clause
			in.Constraints = append(in.Constraints, func(loc errs.Location, value interface{}) error {
				return cl.Evaluate(loc, value)
			})
		}

		value, supplied := e.params[is.Name]
		switch {
		case supplied:
			in.bound = value
			in.hasBound = true
		case is.HasDefault:
			in.bound = is.Default
			in.hasBound = true
		case is.Required:
			report(errs.New(errs.MissingRequiredInputError, is.Source, "input %q is required but no value or default was supplied", is.Name))
		}

		if in.hasBound {
			for _, c := range in.Constraints {
				if err := c(is.Source, in.bound); err != nil {
					if e, ok := err.(*errs.Error); ok {
						report(e)
					}
				}
			}
		}

		topo.Inputs[is.Name] = in
	}
}

func compileClause(m map[string]interface{}) (*scalarunit.Clause, error) {
	for op, operand := range m {
		switch scalarunit.Op(op) {
		case scalarunit.OpInRange:
			list, ok := operand.([]interface{})
			if !ok || len(list) != 2 {
				return nil, errs.New(errs.SchemaError, errs.Location{}, "in_range requires a 2-element list")
			}
			return &scalarunit.Clause{Op: scalarunit.OpInRange, Range: [2]interface{}{list[0], list[1]}}, nil
		case scalarunit.OpValidValues:
			list, _ := operand.([]interface{})
			return &scalarunit.Clause{Op: scalarunit.OpValidValues, Values: list}, nil
		default:
			return &scalarunit.Clause{Op: scalarunit.Op(op), Operand: operand}, nil
		}
	}
	return nil, errs.New(errs.SchemaError, errs.Location{}, "empty constraint clause")
}

func (e *Elaborator) elaborateRelationshipTemplates(spec *TemplateSpec, topo *Topology, report func(*errs.Error)) {
	for _, rs := range spec.RelationshipTemplates {
		rt := &RelationshipTemplate{
			Handle:     newHandle(),
			Name:       rs.Name,
			Type:       rs.Type,
			Properties: exprMap(rs.Properties),
		}
		topo.RelationshipTemplates[rs.Name] = rt
	}
}

func exprMap(raw map[string]interface{}) map[string]*valueexpr.ValueExpr {
	out := make(map[string]*valueexpr.ValueExpr, len(raw))
	for k, v := range raw {
		out[k] = valueexpr.FromNative(v, errs.Location{})
	}
	return out
}

// elaborateNodeTemplates instantiates every node template, applying
// `copy:` base-merging first, then validating properties against the
// flattened type (spec §4.D "Node templates").
func (e *Elaborator) elaborateNodeTemplates(spec *TemplateSpec, topo *Topology, report func(*errs.Error), warn func(errs.Kind, errs.Location, []string, string, ...interface{})) {
	byName := map[string]*NodeTemplateSpec{}
	for i := range spec.NodeTemplates {
		byName[spec.NodeTemplates[i].Name] = &spec.NodeTemplates[i]
	}

	resolvedCopy := map[string]bool{}
	var resolveCopy func(name string, path map[string]bool) *NodeTemplateSpec
	resolveCopy = func(name string, path map[string]bool) *NodeTemplateSpec {
		ns, ok := byName[name]
		if !ok {
			return nil
		}
		if ns.Copy == "" || resolvedCopy[name] {
			resolvedCopy[name] = true
			return ns
		}
		if path[name] {
			report(errs.New(errs.SchemaError, ns.Source, "copy cycle involving node %q", name))
			resolvedCopy[name] = true
			return ns
		}
		path[name] = true
		base := resolveCopy(ns.Copy, path)
		if base != nil {
			merged := mergeCopy(*base, *ns)
			byName[name] = &merged
			resolvedCopy[name] = true
			return &merged
		}
		resolvedCopy[name] = true
		return ns
	}

	for i := range spec.NodeTemplates {
		name := spec.NodeTemplates[i].Name
		ns := resolveCopy(name, map[string]bool{})

		flat, err := e.reg.Flatten(ns.Type)
		if err != nil {
			if te, ok := err.(*errs.Error); ok {
				report(errs.New(te.Kind, ns.Source, "node %q: %s", name, te.Message))
			}
			continue
		}
		if def, ok := e.reg.Lookup(ns.Type); ok {
			if v, ok := def.Metadata["deprecated"]; ok {
				if b, _ := v.(bool); b {
					warn(errs.DeprecatedTypeWarning, ns.Source, []string{"deprecated"}, "node %q uses deprecated type %q", name, ns.Type)
				}
			}
		}

		nt := &NodeTemplate{
			Handle:       newHandle(),
			Name:         name,
			Type:         ns.Type,
			Flattened:    flat,
			Properties:   map[string]*valueexpr.ValueExpr{},
			Attributes:   map[string]*valueexpr.ValueExpr{},
			Capabilities: map[string]*CapabilityInstance{},
			Interfaces:   flat.Interfaces,
			Artifacts:    map[string]*Artifact{},
			Metadata:     ns.Metadata,
			Directives:   ns.Directives,
			Source:       ns.Source,
		}

		e.bindProperties(nt, ns, flat, report)
		e.bindCapabilities(nt, ns, flat)
		for an, as := range ns.Artifacts {
			nt.Artifacts[an] = &Artifact{Name: an, File: as.File, Type: as.Type}
		}

		// Requirement slots are created here (one per flattened
		// RequirementDef position) and filled in bindRequirements below,
		// so occurrence checks in step 8 can see every slot even if no
		// assignment exists for it.
		for _, rd := range flat.Requirements {
			nt.Requirements = append(nt.Requirements, &RequirementAssignment{Name: rd.Name})
		}

		topo.NodeTemplates[name] = nt
		topo.order = append(topo.order, name)
	}
}

func mergeCopy(base, override NodeTemplateSpec) NodeTemplateSpec {
	merged := base
	merged.Name = override.Name
	merged.Source = override.Source
	merged.Copy = ""
	if override.Type != "" {
		merged.Type = override.Type
	}
	if merged.Properties == nil {
		merged.Properties = map[string]interface{}{}
	} else {
		cp := make(map[string]interface{}, len(merged.Properties))
		for k, v := range merged.Properties {
			cp[k] = v
		}
		merged.Properties = cp
	}
	for k, v := range override.Properties {
		merged.Properties[k] = v
	}
	if len(override.Requirements) > 0 {
		merged.Requirements = append(append([]RequirementSpec(nil), base.Requirements...), override.Requirements...)
	}
	if len(override.Directives) > 0 {
		merged.Directives = override.Directives
	}
	return merged
}

// bindProperties validates each declared property against the flattened
// type's PropertyDefs: unknown property -> UnknownFieldError, missing
// required without default -> MissingRequiredFieldError (spec §4.D).
func (e *Elaborator) bindProperties(nt *NodeTemplate, ns *NodeTemplateSpec, flat *registry.FlattenedView, report func(*errs.Error)) {
	for pname, pval := range ns.Properties {
		def, ok := flat.Properties[pname]
		if !ok {
			report(errs.New(errs.UnknownFieldError, ns.Source, "node %q: unknown property %q", nt.Name, pname))
			continue
		}
		expr := valueexpr.FromNative(pval, ns.Source)
		if expr.Tag == valueexpr.TagLiteral {
			if err := validateLiteral(ns.Source, def, expr.Literal); err != nil {
				report(err)
			}
		}
		nt.Properties[pname] = expr
	}
	for pname, def := range flat.Properties {
		if _, ok := nt.Properties[pname]; ok {
			continue
		}
		if def.Default != nil {
			nt.Properties[pname] = valueexpr.Lit(def.Default, ns.Source)
			continue
		}
		if def.Required {
			report(errs.New(errs.MissingRequiredFieldError, ns.Source, "node %q: missing required property %q", nt.Name, pname))
		}
	}
}

func validateLiteral(loc errs.Location, def *registry.PropertyDef, value interface{}) *errs.Error {
	v := value
	if def.Type == "scalar-unit.size" || def.Type == "scalar-unit.time" ||
		def.Type == "scalar-unit.frequency" || def.Type == "scalar-unit.bitrate" {
		if s, ok := value.(string); ok {
			su, err := scalarunit.Parse(loc, s)
			if err != nil {
				if e, ok := err.(*errs.Error); ok {
					return e
				}
			}
			v = su
		}
	}
	for i := range def.Constraints {
		if err := def.Constraints[i].Evaluate(loc, v); err != nil {
			if e, ok := err.(*errs.Error); ok {
				return e
			}
		}
	}
	return nil
}

func (e *Elaborator) bindCapabilities(nt *NodeTemplate, ns *NodeTemplateSpec, flat *registry.FlattenedView) {
	for cname, cdef := range flat.Capabilities {
		ci := &CapabilityInstance{Name: cname, Type: cdef.Type, Properties: map[string]*valueexpr.ValueExpr{}}
		for pname, pdef := range cdef.Properties {
			if pdef.Default != nil {
				ci.Properties[pname] = valueexpr.Lit(pdef.Default, ns.Source)
			}
		}
		if override, ok := ns.Capabilities[cname]; ok {
			for pname, pval := range override.Properties {
				ci.Properties[pname] = valueexpr.FromNative(pval, ns.Source)
			}
		}
		nt.Capabilities[cname] = ci
	}
}

func (e *Elaborator) elaborateGroupsAndPolicies(spec *TemplateSpec, topo *Topology, report func(*errs.Error)) {
	for _, gs := range spec.Groups {
		g := &Group{Name: gs.Name, Type: gs.Type}
		if !e.reg.DerivesFrom(gs.Type, qname.Name("tosca.groups.Root")) {
			report(errs.New(errs.UnknownTypeError, gs.Source, "group %q type %q does not derive from tosca.groups.Root", gs.Name, gs.Type))
		}
		for _, m := range gs.Members {
			n, ok := topo.NodeTemplates[m]
			if !ok {
				report(errs.New(errs.UnknownFieldError, gs.Source, "group %q references undeclared node %q", gs.Name, m))
				continue
			}
			g.Members = append(g.Members, n)
		}
		topo.Groups[gs.Name] = g
	}
	for _, ps := range spec.Policies {
		p := &Policy{Name: ps.Name, Type: ps.Type, Targets: ps.Targets}
		if !e.reg.DerivesFrom(ps.Type, qname.Name("tosca.policies.Root")) {
			report(errs.New(errs.UnknownTypeError, ps.Source, "policy %q type %q does not derive from tosca.policies.Root", ps.Name, ps.Type))
		}
		for _, target := range ps.Targets {
			_, isNode := topo.NodeTemplates[target]
			_, isGroup := topo.Groups[target]
			if !isNode && !isGroup {
				report(errs.New(errs.UnknownFieldError, ps.Source, "policy %q targets undeclared node or group %q", ps.Name, target))
			}
		}
		topo.Policies[ps.Name] = p
	}
}

func (e *Elaborator) elaborateOutputs(spec *TemplateSpec, topo *Topology, report func(*errs.Error)) {
	for _, os := range spec.Outputs {
		topo.Outputs[os.Name] = &Output{Name: os.Name, Expr: valueexpr.FromNative(os.Value, errs.Location{})}
	}
}

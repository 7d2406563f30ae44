// Package substitution implements spec §4.F: validating a nested service
// template's substitution_mappings block against the node_type it claims
// to substitute for.
package substitution

import (
	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/topology"
)

// Mapping is the raw, pre-validation substitution_mappings block.
type Mapping struct {
	NodeType     qname.Name
	Properties   map[string]string            // property name -> input name
	Capabilities map[string][2]string          // capability name -> [node, capability]
	Requirements map[string][2]string          // requirement name -> [node, requirement]
	Source       errs.Location
}

// Resolve validates m against reg and topo, returning the resolved
// topology.SubstitutionMappings plus any diagnostics. Validation is
// best-effort: it accumulates every violation rather than stopping at
// the first, matching the rest of the elaboration pipeline (spec §4.G).
func Resolve(reg *registry.TypeRegistry, topo *topology.Topology, m *Mapping) (*topology.SubstitutionMappings, []*errs.Error) {
	var diags []*errs.Error
	report := func(e *errs.Error) { diags = append(diags, e) }

	flat, err := reg.Flatten(m.NodeType)
	if err != nil {
		if fe, ok := err.(*errs.Error); ok {
			report(fe)
		}
		return nil, diags
	}

	checkProperties(flat, topo, m, report)
	checkCapabilities(flat, topo, m, report)
	checkRequirements(flat, topo, m, report)

	out := &topology.SubstitutionMappings{
		NodeType:     m.NodeType,
		Properties:   map[string][2]string{},
		Capabilities: map[string][2]string{},
		Requirements: map[string][2]string{},
	}
	for prop, input := range m.Properties {
		out.Properties[prop] = [2]string{input}
	}
	for cap, target := range m.Capabilities {
		out.Capabilities[cap] = target
	}
	for req, target := range m.Requirements {
		out.Requirements[req] = target
	}
	return out, diags
}

// checkProperties enforces: every non-optional property of node_type
// lacking a default must appear in m.Properties with a matching-named
// input that exists in the topology; every input not corresponding to a
// property of node_type must itself have a default.
func checkProperties(flat *registry.FlattenedView, topo *topology.Topology, m *Mapping, report func(*errs.Error)) {
	correspondsToProperty := map[string]bool{}
	for _, inputName := range m.Properties {
		correspondsToProperty[inputName] = true
	}

	for pname, pdef := range flat.Properties {
		if !pdef.Required || pdef.Default != nil {
			continue
		}
		inputName, ok := m.Properties[pname]
		if !ok {
			report(errs.New(errs.MissingRequiredInputError, m.Source, "substitution_mappings: property %q of %q has no corresponding input", pname, flat.TypeName))
			continue
		}
		in, ok := topo.Inputs[inputName]
		if !ok {
			report(errs.New(errs.MissingRequiredInputError, m.Source, "substitution_mappings: property %q maps to undeclared input %q", pname, inputName))
			continue
		}
		if in.Type != "" && pdef.Type != "" && in.Type != pdef.Type {
			report(errs.New(errs.TypeMismatchError, m.Source, "substitution_mappings: input %q has type %q, property %q expects %q", inputName, in.Type, pname, pdef.Type))
		}
	}

	for name, in := range topo.Inputs {
		if correspondsToProperty[name] {
			continue
		}
		if in.Required && in.Default == nil {
			report(errs.New(errs.MissingRequiredInputError, m.Source, "substitution_mappings: input %q does not correspond to a property of %q and has no default", name, flat.TypeName))
		}
	}
}

func checkCapabilities(flat *registry.FlattenedView, topo *topology.Topology, m *Mapping, report func(*errs.Error)) {
	for cname, cdef := range flat.Capabilities {
		target, ok := m.Capabilities[cname]
		if !ok {
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: capability %q of %q is not mapped", cname, flat.TypeName))
			continue
		}
		innerNodeName, innerCapName := target[0], target[1]
		innerNode, ok := topo.Node(innerNodeName)
		if !ok {
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: capability %q maps to undeclared node %q", cname, innerNodeName))
			continue
		}
		innerCap, ok := innerNode.Capabilities[innerCapName]
		if !ok {
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: node %q has no capability %q", innerNodeName, innerCapName))
			continue
		}
		if cdef.Type != "" && innerCap.Type != "" && innerCap.Type != cdef.Type {
			report(errs.New(errs.TypeMismatchError, m.Source, "substitution_mappings: capability %q maps to %q.%q of incompatible type %q (want %q)", cname, innerNodeName, innerCapName, innerCap.Type, cdef.Type))
		}
	}
}

func checkRequirements(flat *registry.FlattenedView, topo *topology.Topology, m *Mapping, report func(*errs.Error)) {
	for _, rdef := range flat.Requirements {
		target, ok := m.Requirements[rdef.Name]
		if !ok {
			if rdef.Occurrences.Min == 0 {
				continue
			}
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: requirement %q of %q is not mapped", rdef.Name, flat.TypeName))
			continue
		}
		innerNodeName, innerReqName := target[0], target[1]
		innerNode, ok := topo.Node(innerNodeName)
		if !ok {
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: requirement %q maps to undeclared node %q", rdef.Name, innerNodeName))
			continue
		}
		var inner *topology.RequirementAssignment
		for _, r := range innerNode.Requirements {
			if r.Name == innerReqName {
				inner = r
				break
			}
		}
		if inner == nil {
			report(errs.New(errs.SubstitutionMappingError, m.Source, "substitution_mappings: node %q has no requirement %q", innerNodeName, innerReqName))
			continue
		}
		if !occurrencesReconcilable(rdef.Occurrences, innerNode, innerReqName) {
			report(errs.New(errs.OccurrenceError, m.Source, "substitution_mappings: requirement %q occurrences are not reconcilable with %q.%q", rdef.Name, innerNodeName, innerReqName))
		}
	}
}

// occurrencesReconcilable approximates spec §4.F's occurrence
// reconciliation check: the inner node's flattened slot for the same
// requirement name must permit at least as many bindings as the outer
// type's declared minimum requires.
func occurrencesReconcilable(outer registry.Occurrences, innerNode *topology.NodeTemplate, reqName string) bool {
	for _, rd := range innerNode.Flattened.Requirements {
		if rd.Name == reqName {
			return rd.Occurrences.Contains(outer.Min) || outer.Min == 0
		}
	}
	return true
}

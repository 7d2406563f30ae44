package topology

import (
	"fmt"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/valueexpr"
)

// bindRequirements implements spec §4.D's critical algorithm, steps 1-8,
// for every requirement assignment of every node template in declaration
// order.
func (e *Elaborator) bindRequirements(spec *TemplateSpec, topo *Topology, report func(*errs.Error)) {
	specByName := map[string]*NodeTemplateSpec{}
	for i := range spec.NodeTemplates {
		specByName[spec.NodeTemplates[i].Name] = &spec.NodeTemplates[i]
	}

	for _, nodeName := range topo.order {
		nt := topo.NodeTemplates[nodeName]
		ns := specByName[nodeName]
		if ns == nil {
			continue
		}
		filled := map[string]int{} // requirement name -> next unfilled slot index consumed so far

		for _, rs := range ns.Requirements {
			slotIdx := e.nextSlot(nt, rs.Name, filled)
			if slotIdx < 0 {
				// Step 1: no matching slot declared by the flattened type —
				// append a new one (the assignment still carries its own
				// constraints even without a normative slot to inherit from).
				nt.Requirements = append(nt.Requirements, &RequirementAssignment{Name: rs.Name})
				slotIdx = len(nt.Requirements) - 1
			}
			slot := nt.Requirements[slotIdx]
			rd := e.slotDef(nt, rs.Name)

			if err := e.bindOne(topo, nt, rs, slot, rd, report); err != nil {
				report(err)
			}
			filled[rs.Name]++
		}

		e.checkOccurrences(nt, report)
	}
}

// nextSlot finds the index of the next unfilled requirement position of
// the given name (spec §4.D step 1), counting by how many of that name
// have already been consumed in this node's declaration-order walk.
func (e *Elaborator) nextSlot(nt *NodeTemplate, name string, filled map[string]int) int {
	skip := filled[name]
	count := 0
	for i, r := range nt.Requirements {
		if r.Name != name {
			continue
		}
		if count == skip {
			return i
		}
		count++
	}
	return -1
}

// checkOccurrences enforces spec §4.D step 8: once every assignment for a
// node has been bound, the count of filled (non-Unresolved) slots per
// requirement name must fall within the flattened type's occurrences.
func (e *Elaborator) checkOccurrences(nt *NodeTemplate, report func(*errs.Error)) {
	counts := map[string]int{}
	for _, r := range nt.Requirements {
		if r.TargetNode != nil {
			counts[r.Name]++
		}
	}
	for _, rd := range nt.Flattened.Requirements {
		if !rd.Occurrences.Contains(counts[rd.Name]) {
			report(errs.New(errs.OccurrenceError, nt.Source, "node %q: requirement %q bound %d times, want %s", nt.Name, rd.Name, counts[rd.Name], occurrencesString(rd.Occurrences)))
		}
	}
}

func occurrencesString(o registry.Occurrences) string {
	if o.Unbounded {
		return fmt.Sprintf("[%d, UNBOUNDED]", o.Min)
	}
	return fmt.Sprintf("[%d, %d]", o.Min, o.Max)
}

func (e *Elaborator) slotDef(nt *NodeTemplate, name string) *registry.RequirementDef {
	for _, rd := range nt.Flattened.Requirements {
		if rd.Name == name {
			return rd
		}
	}
	return nil
}

// bindOne resolves a single requirement assignment (spec §4.D steps 2-7).
func (e *Elaborator) bindOne(topo *Topology, nt *NodeTemplate, rs RequirementSpec, slot *RequirementAssignment, rd *registry.RequirementDef, report func(*errs.Error)) error {
	var target *NodeTemplate

	switch {
	case rs.Node != "":
		// Step 2: direct node reference.
		t, ok := topo.NodeTemplates[rs.Node]
		if !ok {
			return errs.New(errs.NoMatchError, rs.Source, "requirement %q of node %q targets undeclared node %q", rs.Name, nt.Name, rs.Node)
		}
		if rd != nil && rd.Node != "" && !e.reg.DerivesFrom(t.Type, rd.Node) {
			return errs.New(errs.NoMatchError, rs.Source, "requirement %q of node %q: target %q does not derive from required node type %q", rs.Name, nt.Name, rs.Node, rd.Node)
		}
		target = t

	case rs.NodeFilter != nil || (rd != nil && rd.NodeFilter != nil):
		// Step 4: evaluate node_filter against candidates in declaration order.
		t, err := e.matchNodeFilter(topo, rs, rd)
		if err != nil {
			return err
		}
		target = t

	case rs.Capability != "" || (rd != nil && rd.Capability != ""):
		// Step 3: find a single node offering a capability of that type.
		capType := rs.Capability
		if capType == "" && rd != nil {
			capType = string(rd.Capability)
		}
		t, err := e.findByCapability(topo, rs, capType)
		if err != nil {
			return err
		}
		target = t

	default:
		if rd != nil && rd.Occurrences.Min == 0 {
			slot.Unresolved = true
			return nil
		}
		return errs.New(errs.NoMatchError, rs.Source, "requirement %q of node %q has no node, capability, or node_filter to resolve against", rs.Name, nt.Name)
	}

	// Step 5: pick target capability.
	capName, capDef, err := e.pickTargetCapability(target, rd)
	if err != nil {
		return err
	}

	// Step 7: valid_source_types check.
	if len(capDef.ValidSourceTypes) > 0 {
		ok := false
		for _, vt := range capDef.ValidSourceTypes {
			if e.reg.DerivesFrom(nt.Type, vt) {
				ok = true
				break
			}
		}
		if !ok {
			return errs.New(errs.NoMatchError, rs.Source, "requirement %q of node %q: source type %q is not a valid_source_type of %q.%s", rs.Name, nt.Name, nt.Type, target.Name, capName)
		}
	}

	// Step 6: instantiate the relationship.
	rel, err := e.instantiateRelationship(topo, rs, rd)
	if err != nil {
		return err
	}

	slot.TargetNode = target
	slot.TargetCapability = capName
	slot.Relationship = rel
	return nil
}

func (e *Elaborator) matchNodeFilter(topo *Topology, rs RequirementSpec, rd *registry.RequirementDef) (*NodeTemplate, error) {
	filter := rs.NodeFilter
	for _, name := range topo.order {
		candidate := topo.NodeTemplates[name]
		if candidate.Name == "" {
			continue
		}
		if matchesFilter(candidate, filter) {
			return candidate, nil
		}
	}
	return nil, errs.New(errs.NoMatchError, rs.Source, "requirement %q: no node matched node_filter", rs.Name)
}

// matchesFilter evaluates a raw node_filter spec's property and
// capability clauses against a candidate node's currently-bound
// literal property values (spec §4.D step 4).
func matchesFilter(n *NodeTemplate, filter *registryNodeFilterSpec) bool {
	if filter == nil {
		return true
	}
	for pname, clauseMap := range filter.Properties {
		val, ok := literalValue(n.Properties[pname])
		if !ok {
			return false
		}
		clause, err := compileClause(asMap(clauseMap))
		if err != nil || clause.Evaluate(errs.Location{}, val) != nil {
			return false
		}
	}
	for capName, props := range filter.Capabilities {
		cap, ok := n.Capabilities[capName]
		if !ok {
			return false
		}
		for pname, clauseMap := range props {
			val, ok := literalValue(cap.Properties[pname])
			if !ok {
				// Normative capabilities like Compute's "host" (Container)
				// don't themselves carry num_cpus/mem_size/disk_size in
				// this registry's model — those are properties of the
				// hosting node itself (registry/normative.go). Fall back
				// to the node's own property of the same name so a
				// node_filter written against capabilities.host.<prop>
				// (spec §8 scenario 5) still matches.
				val, ok = literalValue(n.Properties[pname])
			}
			if !ok {
				return false
			}
			clause, err := compileClause(asMap(clauseMap))
			if err != nil || clause.Evaluate(errs.Location{}, val) != nil {
				return false
			}
		}
	}
	return true
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func literalValue(expr *valueexpr.ValueExpr) (interface{}, bool) {
	if expr == nil || expr.Tag != valueexpr.TagLiteral {
		return nil, false
	}
	return expr.Literal, true
}

func (e *Elaborator) findByCapability(topo *Topology, rs RequirementSpec, capType string) (*NodeTemplate, error) {
	var matches []*NodeTemplate
	for _, name := range topo.order {
		n := topo.NodeTemplates[name]
		for cn, cd := range n.Flattened.Capabilities {
			if string(cd.Type) == capType || cn == capType {
				matches = append(matches, n)
				break
			}
		}
	}
	switch len(matches) {
	case 0:
		return nil, errs.New(errs.NoMatchError, rs.Source, "requirement %q: no node offers capability %q", rs.Name, capType)
	case 1:
		return matches[0], nil
	default:
		return nil, errs.New(errs.AmbiguousTargetError, rs.Source, "requirement %q: multiple nodes offer capability %q", rs.Name, capType)
	}
}

func (e *Elaborator) pickTargetCapability(target *NodeTemplate, rd *registry.RequirementDef) (string, *registry.CapabilityDef, error) {
	if rd != nil && rd.Capability != "" {
		for cn, cd := range target.Flattened.Capabilities {
			if cn == string(rd.Capability) || e.reg.DerivesFrom(cd.Type, rd.Capability) {
				return cn, cd, nil
			}
		}
	}
	for cn, cd := range target.Flattened.Capabilities {
		return cn, cd, nil
	}
	return "", nil, errs.New(errs.NoMatchError, errs.Location{}, "target node %q offers no capabilities", target.Name)
}

func (e *Elaborator) instantiateRelationship(topo *Topology, rs RequirementSpec, rd *registry.RequirementDef) (*RelationshipTemplate, error) {
	if rs.Relationship != nil {
		if rs.Relationship.Type == "" && rs.Relationship.Name != "" {
			if named, ok := topo.RelationshipTemplates[rs.Relationship.Name]; ok {
				return named, nil
			}
			return nil, errs.New(errs.NoMatchError, rs.Source, "requirement %q: relationship template %q not found", rs.Name, rs.Relationship.Name)
		}
		return &RelationshipTemplate{
			Handle:     newHandle(),
			Type:       rs.Relationship.Type,
			Properties: exprMap(rs.Relationship.Properties),
		}, nil
	}
	if rd != nil && rd.Relationship != nil {
		switch v := rd.Relationship.(type) {
		case qname.Name:
			return &RelationshipTemplate{Handle: newHandle(), Type: v}, nil
		case string:
			return &RelationshipTemplate{Handle: newHandle(), Type: qname.Name(v)}, nil
		}
	}
	return &RelationshipTemplate{Handle: newHandle(), Type: "tosca.relationships.Root"}, nil
}

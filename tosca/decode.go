package tosca

import (
	"gopkg.in/yaml.v3"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/scalarunit"
	"github.com/opentosca/tosca-template/topology"
)

// documentRoot returns the mapping node at the top of a parsed document,
// unwrapping the yaml.DocumentNode wrapper gopkg.in/yaml.v3 always
// produces for a standalone Unmarshal call.
func documentRoot(tree *yaml.Node) *yaml.Node {
	if tree != nil && tree.Kind == yaml.DocumentNode && len(tree.Content) > 0 {
		return tree.Content[0]
	}
	return tree
}

func loc(file string, n *yaml.Node) errs.Location {
	if n == nil {
		return errs.Location{File: file}
	}
	return errs.Location{File: file, Line: n.Line, Column: n.Column}
}

// mappingPairs iterates a MappingNode's (key, value) pairs.
func mappingPairs(n *yaml.Node) func(yield func(key *yaml.Node, val *yaml.Node) bool) {
	return func(yield func(key, val *yaml.Node) bool) {
		if n == nil || n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if !yield(n.Content[i], n.Content[i+1]) {
				return
			}
		}
	}
}

func findKey(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// native decodes a yaml.Node subtree into a plain Go value using the
// library's own scalar-type inference (int/float/bool/string/nil), the
// way formatter.Format leaves scalar styling to the encoder rather than
// hand-rolling a second YAML scalar grammar.
func native(n *yaml.Node) interface{} {
	if n == nil {
		return nil
	}
	var v interface{}
	_ = n.Decode(&v)
	return v
}

func nativeStringMap(n *yaml.Node) map[string]interface{} {
	v, _ := native(n).(map[string]interface{})
	return v
}

var sectionKinds = map[string]registry.Kind{
	"node_types":         registry.KindNode,
	"relationship_types": registry.KindRelationship,
	"capability_types":   registry.KindCapability,
	"data_types":         registry.KindData,
	"interface_types":    registry.KindInterface,
	"artifact_types":     registry.KindArtifact,
	"policy_types":       registry.KindPolicy,
	"group_types":        registry.KindGroup,
}

// decodeTypeDefinitions extracts every *_types section of one document
// into TypeDefinitions, qualifying each name with prefix when given
// (spec §4.C: "declarations ... are merged under the ... prefix").
func decodeTypeDefinitions(file string, root *yaml.Node, prefix string) ([]*registry.TypeDefinition, error) {
	var out []*registry.TypeDefinition
	for i := 0; i+1 < len(root.Content); i += 2 {
		section := root.Content[i].Value
		kind, ok := sectionKinds[section]
		if !ok {
			continue
		}
		list := root.Content[i+1]
		if list.Kind != yaml.MappingNode {
			return nil, errs.New(errs.SchemaError, loc(file, list), "%s must be a mapping", section)
		}
		for j := 0; j+1 < len(list.Content); j += 2 {
			name := list.Content[j].Value
			body := list.Content[j+1]
			def, err := decodeOneType(file, qualify(prefix, name), kind, body)
			if err != nil {
				return nil, err
			}
			out = append(out, def)
		}
	}
	return out, nil
}

func qualify(prefix, name string) qname.Name {
	if prefix == "" {
		return qname.Name(name)
	}
	return qname.Name(prefix + "." + name)
}

func decodeOneType(file string, name qname.Name, kind registry.Kind, body *yaml.Node) (*registry.TypeDefinition, error) {
	def := &registry.TypeDefinition{
		Name:         name,
		Kind:         kind,
		Properties:   map[string]*registry.PropertyDef{},
		Attributes:   map[string]*registry.AttributeDef{},
		Capabilities: map[string]*registry.CapabilityDef{},
		Interfaces:   map[string]*registry.InterfaceDef{},
		Metadata:     map[string]interface{}{},
	}
	for key, val := range iterMapping(body) {
		switch key.Value {
		case "derived_from":
			def.Parent = qname.Name(val.Value)
		case "description":
			def.Description = val.Value
		case "metadata":
			def.Metadata = nativeStringMap(val)
		case "version":
			// version: spec §3's TypeDefinition has no dedicated field for
			// this besides Metadata; recorded there for lookup.
			def.Metadata["version"] = val.Value
		case "properties":
			props, err := decodePropertyMap(file, val)
			if err != nil {
				return nil, err
			}
			def.Properties = props
		case "attributes":
			attrs, err := decodePropertyMap(file, val)
			if err != nil {
				return nil, err
			}
			def.Attributes = attrs
		case "capabilities":
			caps, err := decodeCapabilityDefs(file, val)
			if err != nil {
				return nil, err
			}
			def.Capabilities = caps
		case "requirements":
			reqs, err := decodeRequirementDefs(file, val)
			if err != nil {
				return nil, err
			}
			def.Requirements = reqs
		case "interfaces":
			ifaces, err := decodeInterfaceDefs(file, val)
			if err != nil {
				return nil, err
			}
			def.Interfaces = ifaces
		}
	}
	return def, nil
}

func iterMapping(n *yaml.Node) func(yield func(key, val *yaml.Node) bool) {
	return mappingPairs(n)
}

func decodePropertyMap(file string, n *yaml.Node) (map[string]*registry.PropertyDef, error) {
	out := map[string]*registry.PropertyDef{}
	for key, val := range iterMapping(n) {
		pd, err := decodePropertyDef(file, val)
		if err != nil {
			return nil, err
		}
		pd.Name = key.Value
		out[key.Value] = pd
	}
	return out, nil
}

func decodePropertyDef(file string, n *yaml.Node) (*registry.PropertyDef, error) {
	pd := &registry.PropertyDef{Required: true}
	for key, val := range iterMapping(n) {
		switch key.Value {
		case "type":
			pd.Type = qname.Name(val.Value)
		case "required":
			pd.Required = val.Value != "false"
		case "default":
			pd.Default = native(val)
		case "status":
			pd.Status = registry.Status(val.Value)
		case "constraints":
			clauses, err := decodeConstraints(file, val)
			if err != nil {
				return nil, err
			}
			pd.Constraints = clauses
		case "entry_schema":
			inner, err := decodePropertyDef(file, val)
			if err == nil {
				pd.EntrySchema = inner
			} else if val.Kind == yaml.ScalarNode {
				pd.EntrySchema = &registry.PropertyDef{Type: qname.Name(val.Value)}
			}
		}
	}
	return pd, nil
}

func decodeConstraints(file string, n *yaml.Node) ([]scalarunit.Clause, error) {
	var out []scalarunit.Clause
	if n == nil || n.Kind != yaml.SequenceNode {
		return out, nil
	}
	for _, item := range n.Content {
		m := nativeStringMap(item)
		clause, err := compileClauseMap(m)
		if err != nil {
			return nil, errs.Wrap(errs.SchemaError, loc(file, item), err, "invalid constraint clause")
		}
		out = append(out, *clause)
	}
	return out, nil
}

// compileClauseMap builds a scalarunit.Clause from a single-key raw
// constraint mapping, e.g. {"in_range": [1, 8]}.
func compileClauseMap(m map[string]interface{}) (*scalarunit.Clause, error) {
	for op, operand := range m {
		switch scalarunit.Op(op) {
		case scalarunit.OpInRange:
			list, ok := operand.([]interface{})
			if !ok || len(list) != 2 {
				return nil, errs.New(errs.SchemaError, errs.Location{}, "in_range requires a 2-element list")
			}
			lo, hi := list[0], list[1]
			if s, ok := lo.(string); ok && s == "UNBOUNDED" {
				lo = scalarunit.Unbounded
			}
			if s, ok := hi.(string); ok && s == "UNBOUNDED" {
				hi = scalarunit.Unbounded
			}
			return &scalarunit.Clause{Op: scalarunit.OpInRange, Range: [2]interface{}{lo, hi}}, nil
		case scalarunit.OpValidValues:
			list, _ := operand.([]interface{})
			return &scalarunit.Clause{Op: scalarunit.OpValidValues, Values: list}, nil
		case scalarunit.OpSchema:
			list, _ := operand.([]interface{})
			var nested []scalarunit.Clause
			for _, item := range list {
				if im, ok := item.(map[string]interface{}); ok {
					c, err := compileClauseMap(im)
					if err != nil {
						return nil, err
					}
					nested = append(nested, *c)
				}
			}
			return &scalarunit.Clause{Op: scalarunit.OpSchema, Schema: nested}, nil
		default:
			return &scalarunit.Clause{Op: scalarunit.Op(op), Operand: operand}, nil
		}
	}
	return nil, errs.New(errs.SchemaError, errs.Location{}, "empty constraint clause")
}

func decodeCapabilityDefs(file string, n *yaml.Node) (map[string]*registry.CapabilityDef, error) {
	out := map[string]*registry.CapabilityDef{}
	for key, val := range iterMapping(n) {
		cd := &registry.CapabilityDef{Name: key.Value, Occurrences: registry.DefaultOccurrences}
		if val.Kind == yaml.ScalarNode {
			cd.Type = qname.Name(val.Value)
			out[key.Value] = cd
			continue
		}
		for ck, cv := range iterMapping(val) {
			switch ck.Value {
			case "type":
				cd.Type = qname.Name(cv.Value)
			case "valid_source_types":
				for _, item := range cv.Content {
					cd.ValidSourceTypes = append(cd.ValidSourceTypes, qname.Name(item.Value))
				}
			case "occurrences":
				cd.Occurrences = decodeOccurrences(cv)
			case "properties":
				props, err := decodePropertyMap(file, cv)
				if err != nil {
					return nil, err
				}
				cd.Properties = props
			case "attributes":
				attrs, err := decodePropertyMap(file, cv)
				if err != nil {
					return nil, err
				}
				cd.Attributes = attrs
			}
		}
		out[key.Value] = cd
	}
	return out, nil
}

func decodeOccurrences(n *yaml.Node) registry.Occurrences {
	if n == nil || n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return registry.Occurrences{}
	}
	min := toIntScalar(n.Content[0])
	if n.Content[1].Value == "UNBOUNDED" {
		return registry.Occurrences{Min: min, Unbounded: true}
	}
	return registry.Occurrences{Min: min, Max: toIntScalar(n.Content[1])}
}

func toIntScalar(n *yaml.Node) int {
	var i int
	_ = n.Decode(&i)
	return i
}

func decodeRequirementDefs(file string, n *yaml.Node) ([]*registry.RequirementDef, error) {
	var out []*registry.RequirementDef
	if n == nil || n.Kind != yaml.SequenceNode {
		return out, nil
	}
	for _, item := range n.Content {
		// each sequence entry is a single-key mapping { name: body }
		if item.Kind != yaml.MappingNode || len(item.Content) < 2 {
			continue
		}
		name := item.Content[0].Value
		body := item.Content[1]
		rd := &registry.RequirementDef{Name: name, Occurrences: registry.Occurrences{Min: 1, Max: 1}}
		if body.Kind == yaml.ScalarNode {
			rd.Capability = qname.Name(body.Value)
			out = append(out, rd)
			continue
		}
		for rk, rv := range iterMapping(body) {
			switch rk.Value {
			case "capability":
				rd.Capability = qname.Name(rv.Value)
			case "node":
				rd.Node = qname.Name(rv.Value)
			case "relationship":
				if rv.Kind == yaml.ScalarNode {
					rd.Relationship = qname.Name(rv.Value)
				} else if t := findKey(rv, "type"); t != nil {
					rd.Relationship = qname.Name(t.Value)
				}
			case "occurrences":
				rd.Occurrences = decodeOccurrences(rv)
			}
		}
		out = append(out, rd)
	}
	return out, nil
}

func decodeInterfaceDefs(file string, n *yaml.Node) (map[string]*registry.InterfaceDef, error) {
	out := map[string]*registry.InterfaceDef{}
	for key, val := range iterMapping(n) {
		id := &registry.InterfaceDef{
			Inputs:        map[string]*registry.PropertyDef{},
			Operations:    map[string]*registry.OperationDef{},
			Notifications: map[string]*registry.OperationDef{},
		}
		for ik, iv := range iterMapping(val) {
			switch ik.Value {
			case "type":
				id.Type = qname.Name(iv.Value)
			case "inputs":
				inputs, err := decodePropertyMap(file, iv)
				if err != nil {
					return nil, err
				}
				id.Inputs = inputs
			default:
				op, err := decodeOperationDef(file, iv)
				if err != nil {
					return nil, err
				}
				id.Operations[ik.Value] = op
			}
		}
		out[key.Value] = id
	}
	return out, nil
}

func decodeOperationDef(file string, n *yaml.Node) (*registry.OperationDef, error) {
	op := &registry.OperationDef{Inputs: map[string]*registry.PropertyDef{}, Outputs: map[string]*registry.PropertyDef{}}
	if n.Kind == yaml.ScalarNode {
		op.Implementation = n.Value
		return op, nil
	}
	for key, val := range iterMapping(n) {
		switch key.Value {
		case "implementation":
			op.Implementation = val.Value
		case "inputs":
			inputs, err := decodePropertyMap(file, val)
			if err != nil {
				return nil, err
			}
			op.Inputs = inputs
		case "outputs":
			outputs, err := decodePropertyMap(file, val)
			if err != nil {
				return nil, err
			}
			op.Outputs = outputs
		}
	}
	return op, nil
}

// --- topology_template decoding ---

func decodeTemplate(file string, root *yaml.Node) (*topology.TemplateSpec, error) {
	tt := findKey(root, "topology_template")
	spec := &topology.TemplateSpec{}
	if tt == nil {
		return spec, nil
	}
	for key, val := range iterMapping(tt) {
		switch key.Value {
		case "inputs":
			inputs, err := decodeInputs(file, val)
			if err != nil {
				return nil, err
			}
			spec.Inputs = inputs
		case "node_templates":
			nodes, err := decodeNodeTemplates(file, val)
			if err != nil {
				return nil, err
			}
			spec.NodeTemplates = nodes
		case "relationship_templates":
			rels, err := decodeRelationshipTemplates(file, val)
			if err != nil {
				return nil, err
			}
			spec.RelationshipTemplates = rels
		case "groups":
			groups, err := decodeGroups(file, val)
			if err != nil {
				return nil, err
			}
			spec.Groups = groups
		case "policies":
			policies, err := decodePolicies(file, val)
			if err != nil {
				return nil, err
			}
			spec.Policies = policies
		case "outputs":
			outputs, err := decodeOutputs(file, val)
			if err != nil {
				return nil, err
			}
			spec.Outputs = outputs
		}
	}
	return spec, nil
}

func decodeInputs(file string, n *yaml.Node) ([]topology.InputSpec, error) {
	var out []topology.InputSpec
	for key, val := range iterMapping(n) {
		is := topology.InputSpec{Name: key.Value, Required: true, Source: loc(file, val)}
		for ik, iv := range iterMapping(val) {
			switch ik.Value {
			case "type":
				is.Type = qname.Name(iv.Value)
			case "required":
				is.Required = iv.Value != "false"
			case "default":
				is.Default = native(iv)
				is.HasDefault = true
			case "constraints":
				if iv.Kind == yaml.SequenceNode {
					for _, item := range iv.Content {
						is.Constraints = append(is.Constraints, nativeStringMap(item))
					}
				}
			}
		}
		out = append(out, is)
	}
	return out, nil
}

func decodeNodeTemplates(file string, n *yaml.Node) ([]topology.NodeTemplateSpec, error) {
	var out []topology.NodeTemplateSpec
	for key, val := range iterMapping(n) {
		ns := topology.NodeTemplateSpec{Name: key.Value, Source: loc(file, val)}
		for nk, nv := range iterMapping(val) {
			switch nk.Value {
			case "type":
				ns.Type = qname.Name(nv.Value)
			case "copy":
				ns.Copy = nv.Value
			case "properties":
				ns.Properties = nativeStringMap(nv)
			case "metadata":
				ns.Metadata = nativeStringMap(nv)
			case "directives":
				for _, d := range nv.Content {
					ns.Directives = append(ns.Directives, d.Value)
				}
			case "capabilities":
				caps, err := decodeCapabilitySpecs(nv)
				if err != nil {
					return nil, err
				}
				ns.Capabilities = caps
			case "requirements":
				reqs, err := decodeRequirementSpecs(file, nv)
				if err != nil {
					return nil, err
				}
				ns.Requirements = reqs
			case "artifacts":
				arts, err := decodeArtifactSpecs(nv)
				if err != nil {
					return nil, err
				}
				ns.Artifacts = arts
			case "node_filter":
				ns.NodeFilter = decodeNodeFilterSpec(nv)
			case "interfaces":
				ns.Interfaces = nativeStringMap(nv)
			}
		}
		out = append(out, ns)
	}
	return out, nil
}

func decodeCapabilitySpecs(n *yaml.Node) (map[string]topology.CapabilitySpec, error) {
	out := map[string]topology.CapabilitySpec{}
	for key, val := range iterMapping(n) {
		props := findKey(val, "properties")
		out[key.Value] = topology.CapabilitySpec{Properties: nativeStringMap(props)}
	}
	return out, nil
}

func decodeArtifactSpecs(n *yaml.Node) (map[string]topology.ArtifactSpec, error) {
	out := map[string]topology.ArtifactSpec{}
	for key, val := range iterMapping(n) {
		if val.Kind == yaml.ScalarNode {
			out[key.Value] = topology.ArtifactSpec{File: val.Value}
			continue
		}
		var as topology.ArtifactSpec
		for ak, av := range iterMapping(val) {
			switch ak.Value {
			case "file":
				as.File = av.Value
			case "type":
				as.Type = qname.Name(av.Value)
			}
		}
		out[key.Value] = as
	}
	return out, nil
}

func decodeRequirementSpecs(file string, n *yaml.Node) ([]topology.RequirementSpec, error) {
	var out []topology.RequirementSpec
	if n == nil || n.Kind != yaml.SequenceNode {
		return out, nil
	}
	for _, item := range n.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) < 2 {
			continue
		}
		name := item.Content[0].Value
		body := item.Content[1]
		rs := topology.RequirementSpec{Name: name, Source: loc(file, item)}
		if body.Kind == yaml.ScalarNode {
			rs.Node = body.Value
			out = append(out, rs)
			continue
		}
		for rk, rv := range iterMapping(body) {
			switch rk.Value {
			case "node":
				rs.Node = rv.Value
			case "capability":
				rs.Capability = rv.Value
			case "node_filter":
				rs.NodeFilter = decodeNodeFilterSpec(rv)
			case "relationship":
				rs.Relationship = decodeRelationshipSpec(rv)
			}
		}
		out = append(out, rs)
	}
	return out, nil
}

func decodeRelationshipSpec(n *yaml.Node) *topology.RelationshipSpec {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		return &topology.RelationshipSpec{Name: n.Value}
	}
	rs := &topology.RelationshipSpec{}
	for key, val := range iterMapping(n) {
		switch key.Value {
		case "type":
			rs.Type = qname.Name(val.Value)
		case "properties":
			rs.Properties = nativeStringMap(val)
		}
	}
	return rs
}

func decodeNodeFilterSpec(n *yaml.Node) *topology.NodeFilterSpec {
	if n == nil {
		return nil
	}
	nf := &topology.NodeFilterSpec{
		Properties:   map[string]interface{}{},
		Capabilities: map[string]map[string]interface{}{},
	}
	for key, val := range iterMapping(n) {
		switch key.Value {
		case "properties":
			for pk, pv := range iterMapping(val) {
				nf.Properties[pk.Value] = native(pv)
			}
		case "capabilities":
			for ck, cv := range iterMapping(val) {
				props := map[string]interface{}{}
				if propsNode := findKey(cv, "properties"); propsNode != nil {
					for pk, pv := range iterMapping(propsNode) {
						props[pk.Value] = native(pv)
					}
				}
				nf.Capabilities[ck.Value] = props
			}
		}
	}
	return nf
}

func decodeRelationshipTemplates(file string, n *yaml.Node) ([]topology.RelationshipSpec, error) {
	var out []topology.RelationshipSpec
	for key, val := range iterMapping(n) {
		rs := topology.RelationshipSpec{Name: key.Value}
		for rk, rv := range iterMapping(val) {
			switch rk.Value {
			case "type":
				rs.Type = qname.Name(rv.Value)
			case "properties":
				rs.Properties = nativeStringMap(rv)
			}
		}
		out = append(out, rs)
	}
	return out, nil
}

func decodeGroups(file string, n *yaml.Node) ([]topology.GroupSpec, error) {
	var out []topology.GroupSpec
	for key, val := range iterMapping(n) {
		gs := topology.GroupSpec{Name: key.Value, Source: loc(file, val)}
		for gk, gv := range iterMapping(val) {
			switch gk.Value {
			case "type":
				gs.Type = qname.Name(gv.Value)
			case "members":
				for _, m := range gv.Content {
					gs.Members = append(gs.Members, m.Value)
				}
			}
		}
		out = append(out, gs)
	}
	return out, nil
}

func decodePolicies(file string, n *yaml.Node) ([]topology.PolicySpec, error) {
	var out []topology.PolicySpec
	for key, val := range iterMapping(n) {
		ps := topology.PolicySpec{Name: key.Value, Source: loc(file, val)}
		for pk, pv := range iterMapping(val) {
			switch pk.Value {
			case "type":
				ps.Type = qname.Name(pv.Value)
			case "targets":
				for _, t := range pv.Content {
					ps.Targets = append(ps.Targets, t.Value)
				}
			}
		}
		out = append(out, ps)
	}
	return out, nil
}

func decodeOutputs(file string, n *yaml.Node) ([]topology.OutputSpec, error) {
	var out []topology.OutputSpec
	for key, val := range iterMapping(n) {
		os := topology.OutputSpec{Name: key.Value}
		if v := findKey(val, "value"); v != nil {
			os.Value = native(v)
		}
		out = append(out, os)
	}
	return out, nil
}

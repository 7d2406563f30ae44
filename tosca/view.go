package tosca

import (
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/opentosca/tosca-template/topology"
	"github.com/opentosca/tosca-template/valueexpr"
)

// The *View types below are the JSON-serializable projection of a
// Topology (spec §6: "ToJSON... a stable, serializable snapshot"),
// grounded on cldctl's Component.ToJSON pattern of building a plain
// struct rather than marshaling internal types directly (Topology's
// Handle fields are uuid.UUID and ValueExpr trees are not themselves
// meant to round-trip through JSON unevaluated).

type nodeView struct {
	Type         string                 `json:"type"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	Capabilities map[string]interface{} `json:"capabilities,omitempty"`
	Requirements []requirementView      `json:"requirements,omitempty"`
}

type requirementView struct {
	Name             string `json:"name"`
	TargetNode       string `json:"target_node,omitempty"`
	TargetCapability string `json:"target_capability,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty"`
	Unresolved       bool   `json:"unresolved,omitempty"`
}

type groupView struct {
	Type    string   `json:"type"`
	Members []string `json:"members,omitempty"`
}

type policyView struct {
	Type    string   `json:"type"`
	Targets []string `json:"targets,omitempty"`
}

type substitutionView struct {
	NodeType     string              `json:"node_type"`
	Properties   map[string][1]string `json:"properties,omitempty"`
	Capabilities map[string][2]string `json:"capabilities,omitempty"`
	Requirements map[string][2]string `json:"requirements,omitempty"`
}

type topologyView struct {
	Inputs        map[string]interface{} `json:"inputs,omitempty"`
	Outputs       map[string]interface{} `json:"outputs,omitempty"`
	NodeTemplates map[string]nodeView    `json:"node_templates,omitempty"`
	Groups        map[string]groupView   `json:"groups,omitempty"`
	Policies      map[string]policyView  `json:"policies,omitempty"`
	Substitution  *substitutionView      `json:"substitution_mappings,omitempty"`
}

func exprValue(e *valueexpr.ValueExpr) interface{} {
	if e == nil {
		return nil
	}
	if e.Tag == valueexpr.TagLiteral {
		return e.Literal
	}
	return e.String()
}

func buildView(topo *topology.Topology) *topologyView {
	v := &topologyView{
		Inputs:        map[string]interface{}{},
		Outputs:       map[string]interface{}{},
		NodeTemplates: map[string]nodeView{},
		Groups:        map[string]groupView{},
		Policies:      map[string]policyView{},
	}
	for name, in := range topo.Inputs {
		if val, ok := in.Value(); ok {
			v.Inputs[name] = val
		}
	}
	for name, out := range topo.Outputs {
		v.Outputs[name] = exprValue(out.Expr)
	}
	for _, name := range topo.NodeOrder() {
		nt, _ := topo.Node(name)
		nv := nodeView{
			Type:       string(nt.Type),
			Properties: map[string]interface{}{},
			Attributes: map[string]interface{}{},
		}
		for pname, expr := range nt.Properties {
			nv.Properties[pname] = exprValue(expr)
		}
		for aname, expr := range nt.Attributes {
			nv.Attributes[aname] = exprValue(expr)
		}
		if len(nt.Capabilities) > 0 {
			nv.Capabilities = map[string]interface{}{}
			for cname, ci := range nt.Capabilities {
				props := map[string]interface{}{}
				for pname, expr := range ci.Properties {
					props[pname] = exprValue(expr)
				}
				nv.Capabilities[cname] = map[string]interface{}{
					"type":       string(ci.Type),
					"properties": props,
				}
			}
		}
		for _, req := range nt.Requirements {
			rv := requirementView{Name: req.Name, TargetCapability: req.TargetCapability, Unresolved: req.Unresolved}
			if req.TargetNode != nil {
				rv.TargetNode = req.TargetNode.Name
			}
			if req.Relationship != nil {
				rv.RelationshipType = string(req.Relationship.Type)
			}
			nv.Requirements = append(nv.Requirements, rv)
		}
		v.NodeTemplates[name] = nv
	}
	for name, g := range topo.Groups {
		gv := groupView{Type: string(g.Type)}
		for _, m := range g.Members {
			gv.Members = append(gv.Members, m.Name)
		}
		v.Groups[name] = gv
	}
	for name, p := range topo.Policies {
		v.Policies[name] = policyView{Type: string(p.Type), Targets: p.Targets}
	}
	if sm := topo.SubstitutionMappings; sm != nil {
		sv := &substitutionView{
			NodeType:     string(sm.NodeType),
			Properties:   map[string][1]string{},
			Capabilities: sm.Capabilities,
			Requirements: sm.Requirements,
		}
		for k, in := range sm.Properties {
			sv.Properties[k] = [1]string{in[0]}
		}
		v.Substitution = sv
	}
	return v
}

// ToJSON renders the elaborated Topology as JSON, the way a validated
// service template is handed off to an orchestrator (spec §6).
func (r *Result) ToJSON() ([]byte, error) {
	if r.Topology == nil {
		return []byte("null"), nil
	}
	view := buildView(r.Topology)
	yamlBytes, err := sigsyaml.Marshal(view)
	if err != nil {
		return nil, err
	}
	return sigsyaml.YAMLToJSON(yamlBytes)
}

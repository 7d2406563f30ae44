package topology

import (
	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
)

// The *Spec types below are the decoded (but not yet elaborated) shape of
// one topology_template block, produced upstream by the tosca package's
// YAML decoding stage. They carry only what the elaborator needs: raw
// values plus enough source location to report precise diagnostics.

// NodeTemplateSpec is one node_templates entry before elaboration.
type NodeTemplateSpec struct {
	Name        string
	Type        qname.Name
	Properties  map[string]interface{}
	Capabilities map[string]CapabilitySpec
	Requirements []RequirementSpec
	Interfaces  map[string]interface{}
	Artifacts   map[string]ArtifactSpec
	Metadata    map[string]interface{}
	Directives  []string
	NodeFilter  *registryNodeFilterSpec
	Copy        string
	Source      errs.Location
}

// CapabilitySpec overrides properties of a capability declared by the
// node's type.
type CapabilitySpec struct {
	Properties map[string]interface{}
}

// RequirementSpec is one requirement assignment entry in declaration
// order (spec §4.D "Requirement binding").
type RequirementSpec struct {
	Name         string
	Node         string // target node name, if given directly
	Capability   string // target capability type or name, if given instead of a node
	Relationship *RelationshipSpec
	NodeFilter   *registryNodeFilterSpec
	Source       errs.Location
}

// RelationshipSpec is an inline or by-name relationship assignment.
type RelationshipSpec struct {
	Name       string // reference to relationship_templates, if non-empty and Type is empty
	Type       qname.Name
	Properties map[string]interface{}
}

// ArtifactSpec is a declared artifact on a node template.
type ArtifactSpec struct {
	File string
	Type qname.Name
}

// registryNodeFilterSpec mirrors registry.NodeFilter's shape at the raw
// (unparsed constraint) stage; it is never converted into a
// registry.NodeFilter — matchesFilter compiles each raw clause while
// testing a candidate node.
type registryNodeFilterSpec struct {
	Properties   map[string]interface{} // property name -> single constraint clause in map form, e.g. {"in_range": [1,4]}
	Capabilities map[string]map[string]interface{}
}

// NodeFilterSpec is the exported constructor surface for callers building
// a RequirementSpec/NodeTemplateSpec by hand (e.g. in tests), since the
// unexported registryNodeFilterSpec type cannot be referenced outside
// this package.
type NodeFilterSpec = registryNodeFilterSpec

// GroupSpec is one groups entry.
type GroupSpec struct {
	Name    string
	Type    qname.Name
	Members []string
	Source  errs.Location
}

// PolicySpec is one policies entry.
type PolicySpec struct {
	Name    string
	Type    qname.Name
	Targets []string
	Source  errs.Location
}

// InputSpec is one topology_template.inputs entry.
type InputSpec struct {
	Name        string
	Type        qname.Name
	Required    bool
	Default     interface{}
	HasDefault  bool
	Constraints []map[string]interface{}
	Source      errs.Location
}

// OutputSpec is one topology_template.outputs entry.
type OutputSpec struct {
	Name  string
	Value interface{}
}

// TemplateSpec is the full raw topology_template block.
type TemplateSpec struct {
	Inputs        []InputSpec
	NodeTemplates []NodeTemplateSpec
	RelationshipTemplates []RelationshipSpec
	Groups        []GroupSpec
	Policies      []PolicySpec
	Outputs       []OutputSpec
}

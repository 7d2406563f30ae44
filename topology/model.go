// Package topology implements spec §3's data model and spec §4.D's
// template elaborator: instantiating node/relationship/group/policy
// templates from registered types, filling defaults, and binding
// requirements to targets.
package topology

import (
	"github.com/google/uuid"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/valueexpr"
)

// Handle is a non-owning arena key: a stable identity for a template that
// may not have a user-given name (e.g. an inline relationship template),
// per spec §3 Ownership ("handles are non-owning") and §9 ("Cyclic
// references... modeled as IDs in an arena plus non-owning handles").
type Handle uuid.UUID

func newHandle() Handle {
	return Handle(uuid.New())
}

// Input is a topology_template input (spec §4.D).
type Input struct {
	Name        string
	Type        qname.Name
	Required    bool
	Default     *valueexpr.ValueExpr
	Constraints []ConstraintRef
	Description string
	bound       interface{}
	hasBound    bool
}

// Value returns the bound value (caller-supplied or default) and whether
// one was ever bound; ok is false when no value was supplied and there is
// no default. For a required input, elaboration has then already reported
// MissingRequiredInputError.
func (in *Input) Value() (interface{}, bool) {
	return in.bound, in.hasBound
}

// ConstraintRef is kept as an opaque evaluator (an Input only needs to
// call its constraints, not inspect them); elaborateInputs builds each one
// from a compiled scalarunit.Clause. Node properties use
// PropertyDef.Constraints directly; ConstraintRef exists only for Inputs,
// which have no PropertyDef of their own in the registry.
type ConstraintRef = func(loc errs.Location, value interface{}) error

// Output is a topology_template output (spec §4.D): its expression's
// reachable references are validated at elaboration time; evaluation is
// on demand.
type Output struct {
	Name string
	Expr *valueexpr.ValueExpr
}

// Artifact is a declared node artifact (spec §3 NodeTemplate.artifacts).
type Artifact struct {
	Name string
	File string
	Type qname.Name
}

// RelationshipTemplate backs a resolved requirement assignment: either
// declared by name in relationship_templates, defined inline on the
// requirement, or defaulted from the slot's relationship type.
type RelationshipTemplate struct {
	Handle     Handle
	Name       string // empty when anonymous/inline
	Type       qname.Name
	Properties map[string]*valueexpr.ValueExpr
	Interfaces map[string]*registry.InterfaceDef
}

// RequirementAssignment is a resolved requirement binding (spec §3).
type RequirementAssignment struct {
	Name             string
	TargetNode       *NodeTemplate // nil until resolved
	TargetCapability string        // capability name on TargetNode
	Relationship     *RelationshipTemplate
	Unresolved       bool // true when min occurrences is 0 and nothing matched
}

// NodeTemplate is an instantiated node (spec §3).
type NodeTemplate struct {
	Handle      Handle
	Name        string
	Type        qname.Name
	Flattened   *registry.FlattenedView
	Properties  map[string]*valueexpr.ValueExpr
	Attributes  map[string]*valueexpr.ValueExpr
	Capabilities map[string]*CapabilityInstance
	Requirements []*RequirementAssignment
	Interfaces  map[string]*registry.InterfaceDef
	Artifacts   map[string]*Artifact
	Metadata    map[string]interface{}
	Directives  []string
	NodeFilter  *registry.NodeFilter
	Source      errs.Location
}

// CapabilityInstance is a node's resolved capability with bound property
// values (spec §6: "per node: ... capabilities with their resolved
// property values").
type CapabilityInstance struct {
	Name       string
	Type       qname.Name
	Properties map[string]*valueexpr.ValueExpr
}

// Group is a node_templates subset annotated with a group type (spec §4.D).
type Group struct {
	Name    string
	Type    qname.Name
	Members []*NodeTemplate
}

// Policy targets groups and/or node templates (spec §4.D).
type Policy struct {
	Name    string
	Type    qname.Name
	Targets []string
}

// SubstitutionMappings is populated by the substitution package (spec
// §4.F); topology only carries the resolved struct so
// Topology.SubstitutionMappings field access doesn't require importing
// the substitution package back here.
type SubstitutionMappings struct {
	NodeType     qname.Name
	Properties   map[string][2]string // property name -> [input name]
	Capabilities map[string][2]string // capability name -> [node, capability]
	Requirements map[string][2]string // requirement name -> [node, requirement]
}

// Topology is the fully-elaborated, frozen-on-return result object (spec
// §3). It owns its templates; templates hold weak references (by name)
// back into the registry, which this struct also keeps a handle to for
// on-demand flattened-view lookups performed by the function evaluator.
type Topology struct {
	Registry              *registry.TypeRegistry
	Inputs                map[string]*Input
	Outputs                map[string]*Output
	NodeTemplates          map[string]*NodeTemplate
	RelationshipTemplates  map[string]*RelationshipTemplate
	Groups                 map[string]*Group
	Policies               map[string]*Policy
	SubstitutionMappings   *SubstitutionMappings

	order []string // node template declaration order, for node_filter matching (spec §4.D step 4)
}

// NodeOrder returns node template names in topology declaration order.
func (t *Topology) NodeOrder() []string {
	return append([]string(nil), t.order...)
}

// Node returns the named node template.
func (t *Topology) Node(name string) (*NodeTemplate, bool) {
	n, ok := t.NodeTemplates[name]
	return n, ok
}

// Package registry implements spec §4.B: the type hierarchy loader that
// ingests normative and user-defined TOSCA types, resolves derived_from
// chains, and serves a flattened, merged view of each type.
package registry

import (
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/scalarunit"
)

// Kind is one of the TOSCA type categories named in spec §3.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
	KindCapability   Kind = "capability"
	KindData         Kind = "data"
	KindInterface    Kind = "interface"
	KindArtifact     Kind = "artifact"
	KindPolicy       Kind = "policy"
	KindGroup        Kind = "group"
)

// Status is the lifecycle status of a definition per spec §3.
type Status string

const (
	StatusSupported   Status = "supported"
	StatusExperimental Status = "experimental"
	StatusDeprecated  Status = "deprecated"
)

// PropertyDef / AttributeDef share the same shape per spec §3; Attribute
// is an alias since the spec does not distinguish their fields.
type PropertyDef struct {
	Name        string
	Type        qname.Name
	Required    bool
	Default     interface{}
	Constraints []scalarunit.Clause
	EntrySchema *PropertyDef
	Status      Status
}

type AttributeDef = PropertyDef

// Occurrences is the integer range [min, max] from spec's GLOSSARY, with
// Unbounded meaning no upper limit.
type Occurrences struct {
	Min int
	Max int // ignored when Unbounded is true
	Unbounded bool
}

// DefaultOccurrences is [1, UNBOUNDED], the spec §3 default for
// capabilities.
var DefaultOccurrences = Occurrences{Min: 1, Unbounded: true}

// Contains reports whether n falls within the occurrences range.
func (o Occurrences) Contains(n int) bool {
	if n < o.Min {
		return false
	}
	if o.Unbounded {
		return true
	}
	return n <= o.Max
}

// CapabilityDef describes a service a node type offers (spec §3).
type CapabilityDef struct {
	Name             string
	Type             qname.Name
	Properties       map[string]*PropertyDef
	Attributes       map[string]*AttributeDef
	ValidSourceTypes []qname.Name
	Occurrences      Occurrences
}

// RequirementDef is one ordered requirement-list entry (spec §3).
// Order is semantically significant: duplicate names are distinct
// positions, not a single merged slot.
type RequirementDef struct {
	Name         string
	Capability   qname.Name
	Node         qname.Name // optional
	Relationship interface{} // qname.Name, or an inline RelationshipDef
	Occurrences  Occurrences
	NodeFilter   *NodeFilter
}

// NodeFilter is the declarative matcher used by requirement assignments
// and node_filter blocks (spec §4.D step 4).
type NodeFilter struct {
	Properties   []scalarunit.Clause
	Capabilities map[string][]scalarunit.Clause // capability name -> property clauses
}

// OperationDef is one named operation within an interface (spec §3).
type OperationDef struct {
	Implementation string
	Inputs         map[string]*PropertyDef
	Outputs        map[string]*PropertyDef
}

// InterfaceDef groups operations and notifications under a type (spec §3).
type InterfaceDef struct {
	Type          qname.Name
	Inputs        map[string]*PropertyDef
	Operations    map[string]*OperationDef
	Notifications map[string]*OperationDef
}

// TypeDefinition is the immutable-once-registered unit of the type
// hierarchy (spec §3).
type TypeDefinition struct {
	Name        qname.Name
	Kind        Kind
	Parent      qname.Name // optional
	Properties  map[string]*PropertyDef
	Attributes  map[string]*AttributeDef
	Capabilities map[string]*CapabilityDef
	Requirements []*RequirementDef
	Interfaces  map[string]*InterfaceDef
	Metadata    map[string]interface{}
	Description string

	// Namespace is the import-resolved namespace this definition was
	// registered under (spec §4.C: prefix or merged).
	Namespace string
}

// IsAlias reports metadata.alias: true (spec §4.B step 2): a secondary
// name for an existing type rather than a duplicate registration.
func (t *TypeDefinition) IsAlias() bool {
	v, ok := t.Metadata["alias"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

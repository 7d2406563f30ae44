package registry

import "github.com/opentosca/tosca-template/qname"

// Supported core tosca_definitions_version identifiers (spec §6).
const (
	Simple10 = "tosca_simple_yaml_1_0"
	Simple11 = "tosca_simple_yaml_1_1"
	Simple12 = "tosca_simple_yaml_1_2"
	Simple13 = "tosca_simple_yaml_1_3"
)

func init() {
	base := baseNormativeTypes()
	RegisterProfile(Simple10, base)
	RegisterProfile(Simple11, base)
	RegisterProfile(Simple12, withStorageRename(base))
	RegisterProfile(Simple13, withStorageRename(base))
}

func def(name, kind, parent string) *TypeDefinition {
	return &TypeDefinition{
		Name:         qname.Name(name),
		Kind:         Kind(kind),
		Parent:       qname.Name(parent),
		Properties:   map[string]*PropertyDef{},
		Attributes:   map[string]*AttributeDef{},
		Capabilities: map[string]*CapabilityDef{},
		Interfaces:   map[string]*InterfaceDef{},
		Metadata:     map[string]interface{}{},
		Namespace:    "tosca",
	}
}

func prop(t string, required bool, dflt interface{}) *PropertyDef {
	return &PropertyDef{Type: qname.Name(t), Required: required, Default: dflt}
}

// baseNormativeTypes builds the minimal normative type hierarchy common to
// tosca_simple_yaml_1_0 through _1_1: roots for every Kind, the
// Compute/SoftwareComponent/DBMS/Database/BlockStorage node family, the
// HostedOn/ConnectsTo/DependsOn relationship family, and the Container
// capability family used by the end-to-end scenarios in spec §8.
func baseNormativeTypes() NormativeTables {
	t := NormativeTables{}

	add := func(d *TypeDefinition) { t[d.Name] = d }

	// --- roots ---
	rootNode := def("tosca.nodes.Root", "node", "")
	rootNode.Capabilities["feature"] = &CapabilityDef{Name: "feature", Type: "tosca.capabilities.Node", Occurrences: DefaultOccurrences}
	add(rootNode)

	rootRel := def("tosca.relationships.Root", "relationship", "")
	add(rootRel)

	rootCap := def("tosca.capabilities.Root", "capability", "")
	add(rootCap)

	add(def("tosca.capabilities.Node", "capability", "tosca.capabilities.Root"))
	add(def("tosca.capabilities.Container", "capability", "tosca.capabilities.Root"))
	add(def("tosca.capabilities.Endpoint", "capability", "tosca.capabilities.Root"))
	add(def("tosca.capabilities.Storage", "capability", "tosca.capabilities.Root"))
	add(def("tosca.capabilities.Attachment", "capability", "tosca.capabilities.Root"))
	add(def("tosca.capabilities.DatabaseEndpoint", "capability", "tosca.capabilities.Endpoint"))

	add(def("tosca.interfaces.node.lifecycle.Standard", "interface", ""))

	add(def("tosca.groups.Root", "group", ""))
	add(def("tosca.policies.Root", "policy", ""))
	add(def("tosca.artifacts.Root", "artifact", ""))

	add(def("tosca.datatypes.Root", "data", ""))

	// --- relationships ---
	add(def("tosca.relationships.HostedOn", "relationship", "tosca.relationships.Root"))
	add(def("tosca.relationships.ConnectsTo", "relationship", "tosca.relationships.Root"))
	add(def("tosca.relationships.DependsOn", "relationship", "tosca.relationships.Root"))
	add(def("tosca.relationships.AttachesTo", "relationship", "tosca.relationships.Root"))

	// --- compute / storage node family ---
	compute := def("tosca.nodes.Compute", "node", "tosca.nodes.Root")
	compute.Properties["num_cpus"] = prop("integer", true, nil)
	compute.Properties["mem_size"] = prop("scalar-unit.size", false, nil)
	compute.Properties["disk_size"] = prop("scalar-unit.size", false, nil)
	compute.Attributes["private_address"] = prop("string", false, nil)
	compute.Capabilities["host"] = &CapabilityDef{
		Name: "host", Type: "tosca.capabilities.Container",
		ValidSourceTypes: nil, Occurrences: DefaultOccurrences,
	}
	add(compute)

	software := def("tosca.nodes.SoftwareComponent", "node", "tosca.nodes.Root")
	software.Requirements = append(software.Requirements, &RequirementDef{
		Name: "host", Capability: "tosca.capabilities.Container", Node: "tosca.nodes.Compute",
		Relationship: qname.Name("tosca.relationships.HostedOn"),
		Occurrences:  Occurrences{Min: 1, Max: 1},
	})
	add(software)

	dbms := def("tosca.nodes.DBMS", "node", "tosca.nodes.SoftwareComponent")
	add(dbms)

	database := def("tosca.nodes.Database", "node", "tosca.nodes.Root")
	database.Requirements = append(database.Requirements, &RequirementDef{
		Name: "host", Capability: "tosca.capabilities.Container", Node: "tosca.nodes.DBMS",
		Relationship: qname.Name("tosca.relationships.HostedOn"),
		Occurrences:  Occurrences{Min: 1, Max: 1},
	})
	database.Capabilities["database_endpoint"] = &CapabilityDef{
		Name: "database_endpoint", Type: "tosca.capabilities.DatabaseEndpoint", Occurrences: DefaultOccurrences,
	}
	add(database)

	// --- storage family: only the canonical name is registered here. The
	// lowercase historical spelling mentioned in spec §9's Open Question
	// is not registered and lookups are not case-folded; the _1_2/_1_3
	// tables add the legacy "tosca.nodes.BlockStorage" name as an alias
	// (see withStorageRename). ---
	blockStorageCanonical := def("tosca.nodes.Storage.BlockStorage", "node", "tosca.nodes.Root")
	blockStorageCanonical.Properties["size"] = prop("scalar-unit.size", true, nil)
	add(blockStorageCanonical)

	return t
}

// withStorageRename clones base and adds the deprecated
// "tosca.nodes.BlockStorage" alias of "tosca.nodes.Storage.BlockStorage"
// for the _1_2/_1_3 tables, matching spec §8 scenario 6: resolving the
// deprecated name yields the same flattened view plus a warning
// diagnostic tagged "deprecated".
func withStorageRename(base NormativeTables) NormativeTables {
	out := cloneTables(base)
	alias := def("tosca.nodes.BlockStorage", "node", "tosca.nodes.Storage.BlockStorage")
	alias.Metadata["alias"] = true
	alias.Metadata["deprecated"] = true
	out[alias.Name] = alias
	return out
}

package registry

import (
	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/scalarunit"
)

// FlattenedView is the merged, concrete view of a type after walking its
// derived_from chain and applying the override rules of spec §4.B step 4.
// It is immutable once computed and memoized per type name (spec §9
// "Dynamic type lookup"/"Deep inheritance chains").
type FlattenedView struct {
	TypeName     qname.Name
	Kind         Kind
	Properties   map[string]*PropertyDef
	Attributes   map[string]*AttributeDef
	Capabilities map[string]*CapabilityDef
	Requirements []*RequirementDef
	Interfaces   map[string]*InterfaceDef
}

// Flatten computes (or returns the cached) FlattenedView for name.
func (r *TypeRegistry) Flatten(name qname.Name) (*FlattenedView, error) {
	if canon, ok := r.aliases[name]; ok {
		name = canon
	}
	if fv, ok := r.flat[name]; ok {
		return fv, nil
	}
	chain, err := r.Chain(name)
	if err != nil {
		return nil, err
	}

	fv := &FlattenedView{
		TypeName:     name,
		Properties:   map[string]*PropertyDef{},
		Attributes:   map[string]*AttributeDef{},
		Capabilities: map[string]*CapabilityDef{},
		Interfaces:   map[string]*InterfaceDef{},
	}
	if len(chain) > 0 {
		fv.Kind = chain[len(chain)-1].Kind
	}

	for _, def := range chain {
		if err := mergeProperties(r, fv, def); err != nil {
			return nil, err
		}
		mergeAttributes(fv, def)
		if err := mergeCapabilities(fv, def); err != nil {
			return nil, err
		}
		mergeRequirements(fv, def)
		mergeInterfaces(fv, def)
	}

	r.flat[name] = fv
	return fv, nil
}

func mergeProperties(r *TypeRegistry, fv *FlattenedView, def *TypeDefinition) error {
	for name, child := range def.Properties {
		parent, existed := fv.Properties[name]
		if !existed {
			fv.Properties[name] = child
			continue
		}
		merged, err := mergeProperty(r, parent, child)
		if err != nil {
			return err
		}
		fv.Properties[name] = merged
	}
	return nil
}

// mergeProperty applies the override rules of spec §4.B step 4:
// child may narrow type (only to a type that derives from the parent's),
// may add constraints (composed as AND), required:true cannot relax to
// false, default may be overridden.
func mergeProperty(r *TypeRegistry, parent, child *PropertyDef) (*PropertyDef, error) {
	merged := *parent
	if child.Type != "" && child.Type != parent.Type {
		if parent.Type != "" && !r.DerivesFrom(child.Type, parent.Type) {
			return nil, errs.New(errs.IncompatibleDerivationError, errs.Location{}, "property %q cannot widen type %q to %q: %q does not derive from %q", parent.Name, parent.Type, child.Type, child.Type, parent.Type)
		}
		merged.Type = child.Type
	}
	if parent.Required && !child.Required {
		return nil, errs.New(errs.IncompatibleDerivationError, errs.Location{}, "property %q cannot relax required:true to required:false", parent.Name)
	}
	if child.Required {
		merged.Required = true
	}
	if child.Default != nil {
		merged.Default = child.Default
	}
	merged.Constraints = append(append([]scalarunit.Clause(nil), parent.Constraints...), child.Constraints...)
	if child.Status != "" {
		merged.Status = child.Status
	}
	if child.EntrySchema != nil {
		merged.EntrySchema = child.EntrySchema
	}
	merged.Name = parent.Name
	return &merged, nil
}

func mergeAttributes(fv *FlattenedView, def *TypeDefinition) {
	for name, child := range def.Attributes {
		fv.Attributes[name] = child
	}
}

// mergeCapabilities applies spec §4.B step 4: child may narrow type,
// tighten occurrences within parent bounds, extend valid_source_types;
// cannot remove a capability the parent declared.
func mergeCapabilities(fv *FlattenedView, def *TypeDefinition) error {
	for name, child := range def.Capabilities {
		parent, existed := fv.Capabilities[name]
		if !existed {
			fv.Capabilities[name] = child
			continue
		}
		merged := *parent
		if child.Type != "" {
			merged.Type = child.Type
		}
		if !occurrencesWithin(child.Occurrences, parent.Occurrences) && child.Occurrences != (Occurrences{}) {
			return errs.New(errs.IncompatibleDerivationError, errs.Location{}, "capability %q occurrences must narrow within parent bounds", name)
		}
		if child.Occurrences != (Occurrences{}) {
			merged.Occurrences = child.Occurrences
		}
		merged.ValidSourceTypes = append(append([]qname.Name(nil), parent.ValidSourceTypes...), child.ValidSourceTypes...)
		if child.Properties != nil {
			if merged.Properties == nil {
				merged.Properties = map[string]*PropertyDef{}
			}
			for pn, pd := range child.Properties {
				merged.Properties[pn] = pd
			}
		}
		fv.Capabilities[name] = &merged
	}
	return nil
}

func occurrencesWithin(child, parent Occurrences) bool {
	if child == (Occurrences{}) {
		return true
	}
	if child.Min < parent.Min {
		return false
	}
	if !parent.Unbounded {
		if child.Unbounded || child.Max > parent.Max {
			return false
		}
	}
	return true
}

// mergeRequirements appends by name+position; a child requirement with
// the same name at the same position narrows capability/node, later
// entries with a new name (or an additional entry with a repeated name)
// are distinct positions per spec §3 ("duplicates with same name are
// distinct positions").
func mergeRequirements(fv *FlattenedView, def *TypeDefinition) {
	byPosition := map[string]int{}
	for i, r := range fv.Requirements {
		byPosition[r.Name] = i
	}
	seenThisType := map[string]bool{}
	for _, child := range def.Requirements {
		if idx, ok := byPosition[child.Name]; ok && !seenThisType[child.Name] {
			merged := *fv.Requirements[idx]
			if child.Capability != "" {
				merged.Capability = child.Capability
			}
			if child.Node != "" {
				merged.Node = child.Node
			}
			if child.Relationship != nil {
				merged.Relationship = child.Relationship
			}
			if child.Occurrences != (Occurrences{}) {
				merged.Occurrences = child.Occurrences
			}
			if child.NodeFilter != nil {
				merged.NodeFilter = child.NodeFilter
			}
			fv.Requirements[idx] = &merged
			seenThisType[child.Name] = true
		} else {
			fv.Requirements = append(fv.Requirements, child)
			byPosition[child.Name] = len(fv.Requirements) - 1
			seenThisType[child.Name] = true
		}
	}
}

// mergeInterfaces: child may replace implementation; inputs union with
// override (spec §4.B step 4).
func mergeInterfaces(fv *FlattenedView, def *TypeDefinition) {
	for name, child := range def.Interfaces {
		parent, existed := fv.Interfaces[name]
		if !existed {
			fv.Interfaces[name] = child
			continue
		}
		merged := &InterfaceDef{
			Type:          parent.Type,
			Inputs:        map[string]*PropertyDef{},
			Operations:    map[string]*OperationDef{},
			Notifications: map[string]*OperationDef{},
		}
		for k, v := range parent.Inputs {
			merged.Inputs[k] = v
		}
		for k, v := range child.Inputs {
			merged.Inputs[k] = v
		}
		for k, v := range parent.Operations {
			merged.Operations[k] = v
		}
		for k, v := range child.Operations {
			if existing, ok := merged.Operations[k]; ok {
				op := *existing
				if v.Implementation != "" {
					op.Implementation = v.Implementation
				}
				for ik, iv := range v.Inputs {
					if op.Inputs == nil {
						op.Inputs = map[string]*PropertyDef{}
					}
					op.Inputs[ik] = iv
				}
				merged.Operations[k] = &op
			} else {
				merged.Operations[k] = v
			}
		}
		for k, v := range parent.Notifications {
			merged.Notifications[k] = v
		}
		for k, v := range child.Notifications {
			merged.Notifications[k] = v
		}
		fv.Interfaces[name] = merged
	}
}

package registry

import (
	"fmt"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
)

// NormativeTables is a version's seed set of built-in TypeDefinitions,
// keyed by fully-qualified name. Profile extensions (NFV/MEC) register
// additional tables under their own version identifier via
// RegisterProfile (spec §9 "Plugin profile extensions").
type NormativeTables map[qname.Name]*TypeDefinition

// normativeProviders holds one NormativeTables-returning constructor per
// registered tosca_definitions_version string. Built-in versions are
// registered in init() (normative.go); callers extend the set with
// RegisterProfile before calling New.
var normativeProviders = map[string]func() NormativeTables{}

// RegisterProfile adds (or replaces) the normative table for a given
// tosca_definitions_version identifier, e.g. a named NFV/MEC profile
// extension. No dynamic code loading is required: tables is a plain
// value the caller builds ahead of time.
func RegisterProfile(version string, tables NormativeTables) {
	normativeProviders[version] = func() NormativeTables {
		return cloneTables(tables)
	}
}

func cloneTables(src NormativeTables) NormativeTables {
	out := make(NormativeTables, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TypeRegistry owns every TypeDefinition for one parse invocation (spec
// §3 "Ownership": "The registry exclusively owns all TypeDefinition
// objects"). Registries are never shared between invocations (spec §5).
type TypeRegistry struct {
	version string
	types   map[qname.Name]*TypeDefinition
	aliases map[qname.Name]qname.Name // alias name -> canonical name
	flat    map[qname.Name]*FlattenedView
	ns      *qname.Namespace // resolves short names against the "tosca" namespace
}

// New seeds a registry from the normative tables for version. Unknown
// version is a fatal UnsupportedVersionError (spec §4.B step 1).
func New(version string) (*TypeRegistry, error) {
	provider, ok := normativeProviders[version]
	if !ok {
		return nil, errs.New(errs.UnsupportedVersionError, errs.Location{}, "unsupported tosca_definitions_version %q", version)
	}
	seed := provider()
	r := &TypeRegistry{
		version: version,
		types:   make(map[qname.Name]*TypeDefinition, len(seed)),
		aliases: make(map[qname.Name]qname.Name),
		flat:    make(map[qname.Name]*FlattenedView),
		ns:      qname.NewNamespace("tosca"),
	}
	for name, def := range seed {
		r.types[name] = def
		r.ns.Declare(name)
	}
	return r, nil
}

// resolve returns the fully-qualified form of name: name itself if it is
// already a known type, otherwise the result of resolving it as a short
// alias within the registry's "tosca" namespace (spec §3, §9).
func (r *TypeRegistry) resolve(name qname.Name) qname.Name {
	if _, ok := r.types[name]; ok {
		return name
	}
	if fq, ok := r.ns.Resolve(name); ok {
		return fq
	}
	return name
}

// Version returns the tosca_definitions_version this registry was seeded for.
func (r *TypeRegistry) Version() string {
	return r.version
}

// Register adds a user-defined type (spec §4.B step 2). A duplicate
// fully-qualified name is a DuplicateTypeError unless def is marked
// metadata.alias: true, in which case it is treated as a secondary name
// for the existing type of the same name (no-op beyond alias bookkeeping
// — the caller is expected to have copied the existing definition's body
// when constructing an alias entry, matching how "deprecated alias"
// lookups in spec §8 scenario 6 resolve identically to the canonical name).
func (r *TypeRegistry) Register(def *TypeDefinition) error {
	if existing, ok := r.types[def.Name]; ok {
		if def.IsAlias() {
			r.aliases[def.Name] = existing.Name
			return nil
		}
		return errs.New(errs.DuplicateTypeError, errs.Location{}, "duplicate type definition %q", def.Name)
	}
	r.types[def.Name] = def
	r.ns.Declare(def.Name)
	return nil
}

// Lookup returns the TypeDefinition for name, following alias redirection
// and short-name resolution within the registry's namespace.
func (r *TypeRegistry) Lookup(name qname.Name) (*TypeDefinition, bool) {
	name = r.resolve(name)
	if canon, ok := r.aliases[name]; ok {
		name = canon
	}
	d, ok := r.types[name]
	return d, ok
}

// All returns every registered TypeDefinition of the given kind.
func (r *TypeRegistry) All(kind Kind) []*TypeDefinition {
	var out []*TypeDefinition
	for _, d := range r.types {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ResolveDerivation verifies every type's derived_from chain: every
// parent must exist, and no type may participate in a cycle (spec §3
// invariant, spec §4.B step 3). It must run after all imports are merged.
func (r *TypeRegistry) ResolveDerivation() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[qname.Name]int, len(r.types))

	var visit func(name qname.Name, path []qname.Name) error
	visit = func(name qname.Name, path []qname.Name) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errs.New(errs.TypeCycleError, errs.Location{}, "derivation cycle: %v", append(path, name))
		}
		color[name] = gray
		def, ok := r.types[name]
		if !ok {
			return errs.New(errs.UnknownTypeError, errs.Location{}, "unknown type %q", name)
		}
		if def.Parent != "" {
			parent := r.resolve(def.Parent)
			if _, ok := r.types[parent]; !ok {
				return errs.New(errs.UnknownTypeError, errs.Location{}, "type %q derives from unknown parent %q", name, def.Parent)
			}
			if err := visit(parent, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for name := range r.types {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// Chain returns the derivation chain of name, root-first (furthest
// ancestor to name itself).
func (r *TypeRegistry) Chain(name qname.Name) ([]*TypeDefinition, error) {
	var chain []*TypeDefinition
	seen := map[qname.Name]bool{}
	cur := name
	for cur != "" {
		if seen[cur] {
			return nil, errs.New(errs.TypeCycleError, errs.Location{}, "derivation cycle involving %q", cur)
		}
		seen[cur] = true
		def, ok := r.Lookup(cur)
		if !ok {
			return nil, errs.New(errs.UnknownTypeError, errs.Location{}, "unknown type %q", cur)
		}
		chain = append(chain, def)
		cur = def.Parent
	}
	// reverse into root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// DerivesFrom reports whether child's chain includes ancestor (inclusive).
func (r *TypeRegistry) DerivesFrom(child, ancestor qname.Name) bool {
	cur := child
	seen := map[qname.Name]bool{}
	for cur != "" {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		if cur == ancestor {
			return true
		}
		def, ok := r.Lookup(cur)
		if !ok {
			return false
		}
		cur = def.Parent
	}
	return false
}

func (r *TypeRegistry) String() string {
	return fmt.Sprintf("TypeRegistry(version=%s, types=%d)", r.version, len(r.types))
}

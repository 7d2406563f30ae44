// Package qname implements spec §3's QualifiedName: a case-sensitive
// dotted identifier such as "tosca.nodes.Compute", plus short-alias
// resolution within an active namespace.
package qname

import "strings"

// Name is a dotted, case-sensitive identifier.
type Name string

// Namespace resolves short aliases to fully-qualified names within one
// active import scope (spec §3: "the registry may accept a short alias
// when unambiguous within the active namespace").
type Namespace struct {
	prefixes []string // candidate prefixes to try, most-specific first
	known    map[Name]bool
}

// NewNamespace creates a Namespace that will try the given prefixes, in
// order, when resolving a short name.
func NewNamespace(prefixes ...string) *Namespace {
	return &Namespace{prefixes: prefixes, known: map[Name]bool{}}
}

// Declare records a fully-qualified name as existing, so Resolve can
// recognize it.
func (n *Namespace) Declare(fq Name) {
	n.known[fq] = true
}

// Resolve returns the fully-qualified form of name: itself if it is
// already known, otherwise the first prefix+"."+name that is known.
// Ambiguity (more than one candidate prefix matches) is intentionally
// not disambiguated further here — per spec §9's Open Question the core
// treats lookups as case-sensitive and otherwise leaves aliasing to
// metadata.alias, so Resolve simply returns the first match in prefix
// order and callers needing uniqueness should prefer Declare-then-exact
// lookups.
func (n *Namespace) Resolve(name Name) (Name, bool) {
	if n.known[name] {
		return name, true
	}
	for _, p := range n.prefixes {
		candidate := Name(p + "." + string(name))
		if n.known[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// Parent returns the dotted-path parent of a qualified name, e.g.
// "tosca.nodes.Compute" -> "tosca.nodes", or "" if name has no dot.
func Parent(name Name) Name {
	idx := strings.LastIndex(string(name), ".")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// Leaf returns the final dotted segment, e.g. "Compute" from
// "tosca.nodes.Compute".
func Leaf(name Name) string {
	s := string(name)
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

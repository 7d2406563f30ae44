// Package imports implements spec §4.C: stitching multiple YAML trees
// into one namespace, with cycle-tolerant, memoized loading.
package imports

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/opentosca/tosca-template/errs"
)

// Loader is the caller-supplied callback that maps an import reference to
// a raw parsed tree plus the URI it resolved to (spec §6: "a callable
// that maps an import reference to a raw parsed tree plus a base path").
// Determinism for a given (ref, base) pair is the caller's responsibility.
type Loader func(ref string, base string) (*yaml.Node, string, error)

// Entry is one parsed imports: list item — either a bare path or the
// { file, repository, namespace_uri, namespace_prefix } mapping form.
type Entry struct {
	File           string
	Repository     string
	NamespaceURI   string
	NamespacePrefix string
}

// Document is one resolved, parsed import: its tree, resolved URI, and
// the namespace prefix it should be merged under (empty means "merge
// directly into the current namespace").
type Document struct {
	Tree   *yaml.Node
	URI    string
	Prefix string
}

// Resolver walks an imports: list depth-first, loading each entry via
// Loader, detecting cycles (permitted, first-wins per spec §4.C), and
// memoizing by (resolved_uri, prefix).
type Resolver struct {
	load    Loader
	visited map[string]bool // (uri, prefix) pairs currently on the DFS stack
	done    map[string]*Document // completed (uri, prefix) -> Document, first registration wins
	order   []*Document
}

// New creates a Resolver around a caller-supplied Loader.
func New(load Loader) *Resolver {
	return &Resolver{
		load:    load,
		visited: map[string]bool{},
		done:    map[string]*Document{},
	}
}

// Resolve walks entries found under root's "imports:" key (already
// expected to have been extracted by the caller into parsed Entry
// values) relative to baseURI, and returns the merged document list in
// first-completed order (sibling file -> repository root -> URL,
// resolved by how the caller's Loader itself interprets ref/base; the
// resolver only sequences the depth-first walk and does not reorder by
// kind itself since only the Loader knows whether a ref is a path or URL).
func (r *Resolver) Resolve(entries []Entry, baseURI string) ([]*Document, error) {
	for _, e := range entries {
		if err := r.resolveEntry(e, baseURI); err != nil {
			return nil, err
		}
	}
	return r.order, nil
}

func (r *Resolver) resolveEntry(e Entry, baseURI string) error {
	ref := e.File
	tree, resolvedURI, err := r.load(ref, baseURI)
	if err != nil {
		return errs.Wrap(errs.ImportError, errs.Location{File: baseURI}, err, "failed to load import %q", ref)
	}

	key := memoKey(resolvedURI, e.NamespacePrefix)
	if _, ok := r.done[key]; ok {
		// Already loaded under the same (resolved_uri, prefix): a no-op,
		// whether this is a diamond import or a genuine cycle.
		return nil
	}
	if r.visited[key] {
		// Cycle: permitted, but the second visit is a no-op and the first
		// completed registration wins (spec §4.C).
		return nil
	}
	r.visited[key] = true
	defer delete(r.visited, key)

	doc := &Document{Tree: tree, URI: resolvedURI, Prefix: e.NamespacePrefix}

	nested, err := ExtractEntries(tree)
	if err != nil {
		return errors.Wrapf(err, "parsing imports: in %s", resolvedURI)
	}
	for _, n := range nested {
		if err := r.resolveEntry(n, resolvedURI); err != nil {
			return err
		}
	}

	r.done[key] = doc
	r.order = append(r.order, doc)
	return nil
}

func memoKey(uri, prefix string) string {
	return fmt.Sprintf("%s\x00%s", uri, prefix)
}

// ExtractEntries reads the imports: list out of a parsed document tree,
// accepting both the bare-path and mapping forms of each entry.
func ExtractEntries(tree *yaml.Node) ([]Entry, error) {
	root := tree
	if root != nil && root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, nil
	}

	var list *yaml.Node
	for i := 0; i < len(root.Content); i += 2 {
		if root.Content[i].Value == "imports" {
			list = root.Content[i+1]
			break
		}
	}
	if list == nil {
		return nil, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, errs.New(errs.SchemaError, errs.Location{Line: list.Line, Column: list.Column}, "imports: must be a sequence")
	}

	entries := make([]Entry, 0, len(list.Content))
	for _, item := range list.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			entries = append(entries, Entry{File: item.Value})
		case yaml.MappingNode:
			var e Entry
			for i := 0; i < len(item.Content); i += 2 {
				key := item.Content[i].Value
				val := item.Content[i+1].Value
				switch key {
				case "file":
					e.File = val
				case "repository":
					e.Repository = val
				case "namespace_uri":
					e.NamespaceURI = val
				case "namespace_prefix":
					e.NamespacePrefix = val
				}
			}
			entries = append(entries, e)
		default:
			return nil, errs.New(errs.SchemaError, errs.Location{Line: item.Line, Column: item.Column}, "invalid imports: entry")
		}
	}
	return entries, nil
}

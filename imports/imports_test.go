package imports

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func parseTree(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(src), &n); err != nil {
		t.Fatalf("failed to parse fixture YAML: %v", err)
	}
	return &n
}

func TestExtractEntriesBareAndMapping(t *testing.T) {
	tree := parseTree(t, `
imports:
  - types.yaml
  - file: profile.yaml
    namespace_prefix: nfv
`)
	entries, err := ExtractEntries(tree)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].File != "types.yaml" {
		t.Errorf("entry 0 File = %q", entries[0].File)
	}
	if entries[1].File != "profile.yaml" || entries[1].NamespacePrefix != "nfv" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestResolverCycleIsPermittedFirstWins(t *testing.T) {
	a := []byte(`
imports:
  - b.yaml
value: a
`)
	b := []byte(`
imports:
  - a.yaml
value: b
`)

	loadCount := map[string]int{}
	loader := func(ref, base string) (*yaml.Node, string, error) {
		loadCount[ref]++
		switch ref {
		case "a.yaml":
			return parseTree(t, string(a)), "a.yaml", nil
		case "b.yaml":
			return parseTree(t, string(b)), "b.yaml", nil
		}
		return nil, "", nil
	}

	r := New(loader)
	docs, err := r.Resolve([]Entry{{File: "a.yaml"}}, "root.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents resolved despite the cycle, got %d", len(docs))
	}
	// b.yaml's re-import of a.yaml calls the loader a second time (the
	// resolved URI is only known after loading), but that visit is a
	// no-op: a.yaml is registered once.
	if loadCount["a.yaml"] != 2 {
		t.Errorf("a.yaml loader calls = %d, want 2", loadCount["a.yaml"])
	}
}

func TestResolverMemoizesSameURIAndPrefix(t *testing.T) {
	shared := []byte(`value: shared`)
	loads := 0
	loader := func(ref, base string) (*yaml.Node, string, error) {
		loads++
		return parseTree(t, string(shared)), "shared.yaml", nil
	}
	r := New(loader)
	docs, err := r.Resolve([]Entry{{File: "shared.yaml"}, {File: "shared.yaml"}}, "root.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		// the loader itself is called each time (it may hit a cache), but
		// the resolver must only register one Document for the pair.
		t.Fatalf("expected loader called twice, got %d", loads)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one Document for the (uri, prefix) pair, got %d", len(docs))
	}
}

func TestImportErrorWrapsLoaderFailure(t *testing.T) {
	loader := func(ref, base string) (*yaml.Node, string, error) {
		return nil, "", errNotFound{ref}
	}
	r := New(loader)
	_, err := r.Resolve([]Entry{{File: "missing.yaml"}}, "root.yaml")
	if err == nil {
		t.Fatal("expected ImportError for failing loader")
	}
}

type errNotFound struct{ ref string }

func (e errNotFound) Error() string { return "not found: " + e.ref }

package registry

import (
	"testing"

	"github.com/onsi/gomega"

	"github.com/opentosca/tosca-template/qname"
)

func TestNewUnsupportedVersion(t *testing.T) {
	if _, err := New("tosca_simple_yaml_0_9"); err == nil {
		t.Fatal("expected UnsupportedVersionError for unknown version")
	}
}

func TestFlattenComputeInheritsRoot(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	fv, err := r.Flatten("tosca.nodes.Compute")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fv.Properties["num_cpus"]; !ok {
		tFail(t, "flattened Compute should carry num_cpus")
	}
	if _, ok := fv.Capabilities["feature"]; !ok {
		tFail(t, "flattened Compute should inherit the Root type's feature capability")
	}
	if _, ok := fv.Capabilities["host"]; !ok {
		tFail(t, "flattened Compute should carry its own host capability")
	}
}

func tFail(t *testing.T, msg string) {
	t.Helper()
	t.Error(msg)
}

func TestDeprecatedAliasResolvesIdentically(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	canonical, err := r.Flatten("tosca.nodes.Storage.BlockStorage")
	if err != nil {
		t.Fatal(err)
	}
	legacy, err := r.Flatten("tosca.nodes.BlockStorage")
	if err != nil {
		t.Fatal(err)
	}
	if len(canonical.Properties) != len(legacy.Properties) {
		t.Errorf("legacy alias should flatten identically to canonical type")
	}
	def, ok := r.Lookup("tosca.nodes.BlockStorage")
	if !ok || !def.IsAlias() {
		t.Errorf("tosca.nodes.BlockStorage should be registered as an alias")
	}
}

func TestDuplicateTypeError(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	custom := def("example.Custom", "node", "tosca.nodes.Root")
	if err := r.Register(custom); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := r.Register(custom); err == nil {
		t.Fatal("expected DuplicateTypeError on re-registration")
	}
}

func TestDerivationCycleDetected(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	a := def("example.A", "node", "example.B")
	b := def("example.B", "node", "example.A")
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != nil {
		t.Fatal(err)
	}
	if err := r.ResolveDerivation(); err == nil {
		t.Fatal("expected TypeCycleError for A<->B derivation cycle")
	}
}

func TestIncompatibleDerivationRequiredRelax(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	parent := def("example.Parent", "node", "tosca.nodes.Root")
	parent.Properties["size"] = prop("integer", true, nil)
	child := def("example.Child", "node", "example.Parent")
	child.Properties["size"] = prop("integer", false, nil)
	if err := r.Register(parent); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(child); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Flatten("example.Child"); err == nil {
		t.Fatal("expected IncompatibleDerivationError relaxing required:true to false")
	}
}

func TestLookupResolvesShortNameWithinNamespace(t *testing.T) {
	g := gomega.NewWithT(t)

	r, err := New(Simple13)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	def, ok := r.Lookup(qname.Name("nodes.Compute"))
	g.Expect(ok).To(gomega.BeTrue(), "short name nodes.Compute should resolve within the tosca namespace")
	g.Expect(def.Name).To(gomega.Equal(qname.Name("tosca.nodes.Compute")))

	_, ok = r.Lookup(qname.Name("NoSuchType"))
	g.Expect(ok).To(gomega.BeFalse())
}

func TestDerivesFrom(t *testing.T) {
	r, err := New(Simple13)
	if err != nil {
		t.Fatal(err)
	}
	if !r.DerivesFrom("tosca.nodes.Compute", "tosca.nodes.Root") {
		t.Error("Compute should derive from Root")
	}
	if r.DerivesFrom("tosca.nodes.Compute", qname.Name("tosca.nodes.Database")) {
		t.Error("Compute should not derive from Database")
	}
}

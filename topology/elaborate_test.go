package topology

import (
	"testing"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/qname"
	"github.com/opentosca/tosca-template/registry"
)

func newReg(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	r, err := registry.New(registry.Simple13)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return r
}

func TestElaborateBindsHostedOnByNodeName(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 2}},
			{
				Name: "db",
				Type: "tosca.nodes.DBMS",
				Requirements: []RequirementSpec{
					{Name: "host", Node: "vm"},
				},
			},
		},
	}

	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}

	db, ok := topo.Node("db")
	if !ok {
		t.Fatal("db node missing")
	}
	var hostReq *RequirementAssignment
	for _, r := range db.Requirements {
		if r.Name == "host" {
			hostReq = r
		}
	}
	if hostReq == nil || hostReq.TargetNode == nil {
		t.Fatal("host requirement not bound")
	}
	if hostReq.TargetNode.Name != "vm" {
		t.Errorf("bound to %q, want vm", hostReq.TargetNode.Name)
	}
	if hostReq.Relationship == nil || hostReq.Relationship.Type != "tosca.relationships.HostedOn" {
		t.Errorf("relationship = %+v", hostReq.Relationship)
	}
}

func TestElaborateBindsHostedOnByCapabilitySearch(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 4}},
			{
				Name: "web",
				Type: "tosca.nodes.SoftwareComponent",
				Requirements: []RequirementSpec{
					{Name: "host"},
				},
			},
		},
	}

	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}
	web, _ := topo.Node("web")
	var hostReq *RequirementAssignment
	for _, r := range web.Requirements {
		if r.Name == "host" {
			hostReq = r
		}
	}
	if hostReq == nil || hostReq.TargetNode == nil || hostReq.TargetNode.Name != "vm" {
		t.Fatalf("expected host bound to vm, got %+v", hostReq)
	}
}

func TestElaborateAmbiguousCapabilitySearch(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "vm1", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 1}},
			{Name: "vm2", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 1}},
			{
				Name: "web",
				Type: "tosca.nodes.SoftwareComponent",
				Requirements: []RequirementSpec{
					{Name: "host"},
				},
			},
		},
	}

	_, diags := NewElaborator(reg, nil).Elaborate(spec)
	var found bool
	for _, d := range diags {
		if d.Severity == "error" && d.Err.Kind == errs.AmbiguousTargetError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected AmbiguousTargetError diagnostic")
	}
}

func TestElaborateNodeFilterSelectsMatchingCompute(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "small", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 1}},
			{Name: "big", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 8}},
			{
				Name: "web",
				Type: "tosca.nodes.SoftwareComponent",
				Requirements: []RequirementSpec{
					{
						Name: "host",
						NodeFilter: &NodeFilterSpec{
							Properties: map[string]interface{}{
								"num_cpus": map[string]interface{}{"greater_or_equal": 4},
							},
						},
					},
				},
			},
		},
	}

	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}
	web, _ := topo.Node("web")
	var hostReq *RequirementAssignment
	for _, r := range web.Requirements {
		if r.Name == "host" {
			hostReq = r
		}
	}
	if hostReq == nil || hostReq.TargetNode == nil || hostReq.TargetNode.Name != "big" {
		t.Fatalf("expected host bound to big via node_filter, got %+v", hostReq)
	}
}

// TestElaborateNodeFilterOnCapabilityFallsBackToNodeProperty covers spec
// §8 scenario 5 exactly: node_filter.capabilities.host.num_cpus in_range
// [1,4] binds to the Compute with num_cpus = 4 and not the one with
// num_cpus = 8, even though num_cpus is modeled as a node property, not a
// property of the "host" (Container) capability itself.
func TestElaborateNodeFilterOnCapabilityFallsBackToNodeProperty(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "small", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 8}},
			{Name: "fits", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 4}},
			{
				Name: "dbms",
				Type: "tosca.nodes.DBMS",
				Requirements: []RequirementSpec{
					{
						Name: "host",
						NodeFilter: &NodeFilterSpec{
							Capabilities: map[string]map[string]interface{}{
								"host": {
									"num_cpus": map[string]interface{}{"in_range": []interface{}{1, 4}},
								},
							},
						},
					},
				},
			},
		},
	}

	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}
	dbms, _ := topo.Node("dbms")
	var hostReq *RequirementAssignment
	for _, r := range dbms.Requirements {
		if r.Name == "host" {
			hostReq = r
		}
	}
	if hostReq == nil || hostReq.TargetNode == nil || hostReq.TargetNode.Name != "fits" {
		t.Fatalf("expected host bound to fits via capabilities.host node_filter, got %+v", hostReq)
	}
}

func TestElaborateMissingRequiredPropertyReported(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute"},
		},
	}
	_, diags := NewElaborator(reg, nil).Elaborate(spec)
	var found bool
	for _, d := range diags {
		if d.Severity == "error" && d.Err.Kind == errs.MissingRequiredFieldError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected MissingRequiredFieldError for num_cpus")
	}
}

func TestElaborateRequiredInputMissingReported(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		Inputs: []InputSpec{
			{Name: "region", Type: qname.Name("string"), Required: true},
		},
	}
	_, diags := NewElaborator(reg, nil).Elaborate(spec)
	var found bool
	for _, d := range diags {
		if d.Severity == "error" && d.Err.Kind == errs.MissingRequiredInputError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected MissingRequiredInputError")
	}
}

func TestElaborateDeprecatedAliasWarns(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "disk", Type: "tosca.nodes.BlockStorage", Properties: map[string]interface{}{"size": "10 GB"}},
		},
	}
	_, diags := NewElaborator(reg, nil).Elaborate(spec)
	var warned bool
	for _, d := range diags {
		if d.Severity == "warning" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected deprecated-alias warning")
	}
}

func TestElaborateComputeHasNoRequirementSlots(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 1}},
		},
	}
	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}
	vm, _ := topo.Node("vm")
	if len(vm.Requirements) != 0 {
		t.Errorf("tosca.nodes.Compute declares no requirement slots, got %d", len(vm.Requirements))
	}
}

func TestElaborateCopyMergesBaseNodeTemplate(t *testing.T) {
	reg := newReg(t)
	spec := &TemplateSpec{
		NodeTemplates: []NodeTemplateSpec{
			{Name: "base", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 2, "disk_size": "10 GB"}},
			{Name: "clone", Copy: "base", Properties: map[string]interface{}{"num_cpus": 4}},
		},
	}
	topo, diags := NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error diagnostic: %v", d.Err)
		}
	}
	clone, ok := topo.Node("clone")
	if !ok {
		t.Fatal("clone node missing")
	}
	if clone.Type != "tosca.nodes.Compute" {
		t.Errorf("clone type = %q, want inherited from base", clone.Type)
	}
	cpus, _ := literalValue(clone.Properties["num_cpus"])
	if cpus != 4 {
		t.Errorf("clone num_cpus = %v, want overridden 4", cpus)
	}
	disk, _ := literalValue(clone.Properties["disk_size"])
	if disk != "10 GB" {
		t.Errorf("clone disk_size = %v, want copied from base", disk)
	}
}

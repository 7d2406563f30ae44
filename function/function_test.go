package function

import (
	"testing"

	"github.com/opentosca/tosca-template/errs"
	"github.com/opentosca/tosca-template/registry"
	"github.com/opentosca/tosca-template/topology"
	"github.com/opentosca/tosca-template/valueexpr"
)

func newTopo(t *testing.T) *topology.Topology {
	t.Helper()
	reg, err := registry.New(registry.Simple13)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	// SoftwareComponent declares no properties, so the "region" property
	// needs a derived type that declares it.
	if err := reg.Register(&registry.TypeDefinition{
		Name:       "example.WebApp",
		Kind:       registry.KindNode,
		Parent:     "tosca.nodes.SoftwareComponent",
		Properties: map[string]*registry.PropertyDef{"region": {Name: "region", Type: "string"}},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	spec := &topology.TemplateSpec{
		Inputs: []topology.InputSpec{
			{Name: "region", Type: "string", Required: true},
		},
		NodeTemplates: []topology.NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 2}},
			{
				Name: "web",
				Type: "example.WebApp",
				Properties: map[string]interface{}{
					"region": map[string]interface{}{"get_input": "region"},
				},
				Requirements: []topology.RequirementSpec{{Name: "host", Node: "vm"}},
			},
		},
	}
	topo, diags := topology.NewElaborator(reg, map[string]interface{}{"region": "eu-west-1"}).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error: %v", d.Err)
		}
	}
	return topo
}

func TestGetInputResolvesBoundValue(t *testing.T) {
	topo := newTopo(t)
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_input", []*valueexpr.ValueExpr{valueexpr.Lit("region", errs.Location{})}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != "eu-west-1" {
		t.Errorf("got %v, want eu-west-1", v)
	}
}

func TestGetInputUnknownReturnsError(t *testing.T) {
	topo := newTopo(t)
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_input", []*valueexpr.ValueExpr{valueexpr.Lit("nope", errs.Location{})}, errs.Location{})
	if _, err := ev.Evaluate(expr, Context{}); err == nil {
		t.Fatal("expected error for unknown input")
	}
}

func TestGetPropertySelf(t *testing.T) {
	topo := newTopo(t)
	web, _ := topo.Node("web")
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_property", []*valueexpr.ValueExpr{
		valueexpr.Lit("SELF", errs.Location{}),
		valueexpr.Lit("region", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{Self: web})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != "eu-west-1" {
		t.Errorf("got %v, want eu-west-1", v)
	}
}

func TestGetPropertyHostTraversesRequirement(t *testing.T) {
	topo := newTopo(t)
	web, _ := topo.Node("web")
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_property", []*valueexpr.ValueExpr{
		valueexpr.Lit("HOST", errs.Location{}),
		valueexpr.Lit("num_cpus", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{Self: web})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 2 {
		t.Errorf("got %v, want 2", v)
	}
}

func TestGetAttributeUnknownUntilRuntime(t *testing.T) {
	topo := newTopo(t)
	vm, _ := topo.Node("vm")
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_attribute", []*valueexpr.ValueExpr{
		valueexpr.Lit("SELF", errs.Location{}),
		valueexpr.Lit("private_address", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{Self: vm})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if _, ok := v.(Unknown); !ok {
		t.Errorf("got %T, want Unknown", v)
	}
}

func TestConcatAndToken(t *testing.T) {
	topo := newTopo(t)
	ev := NewEvaluator(topo)

	concatExpr := valueexpr.Call("concat", []*valueexpr.ValueExpr{
		valueexpr.Lit("a-", errs.Location{}),
		valueexpr.Lit("b", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(concatExpr, Context{})
	if err != nil {
		t.Fatalf("Evaluate concat: %v", err)
	}
	if v != "a-b" {
		t.Errorf("concat = %v, want a-b", v)
	}

	tokenExpr := valueexpr.Call("token", []*valueexpr.ValueExpr{
		valueexpr.Lit("a,b,c", errs.Location{}),
		valueexpr.Lit(",", errs.Location{}),
		valueexpr.Lit(1, errs.Location{}),
	}, errs.Location{})
	v, err = ev.Evaluate(tokenExpr, Context{})
	if err != nil {
		t.Fatalf("Evaluate token: %v", err)
	}
	if v != "b" {
		t.Errorf("token = %v, want b", v)
	}
}

func TestGetPropertyWalksRequirementNameChain(t *testing.T) {
	reg, err := registry.New(registry.Simple13)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	spec := &topology.TemplateSpec{
		NodeTemplates: []topology.NodeTemplateSpec{
			{Name: "vm", Type: "tosca.nodes.Compute", Properties: map[string]interface{}{"num_cpus": 4}},
			{Name: "dbms", Type: "tosca.nodes.DBMS", Requirements: []topology.RequirementSpec{{Name: "host", Node: "vm"}}},
			{Name: "db", Type: "tosca.nodes.Database", Requirements: []topology.RequirementSpec{{Name: "host", Node: "dbms"}}},
		},
	}
	topo, diags := topology.NewElaborator(reg, nil).Elaborate(spec)
	for _, d := range diags {
		if d.Severity == "error" {
			t.Fatalf("unexpected error: %v", d.Err)
		}
	}
	db, _ := topo.Node("db")
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_property", []*valueexpr.ValueExpr{
		valueexpr.Lit("SELF", errs.Location{}),
		valueexpr.Lit("host", errs.Location{}),
		valueexpr.Lit("host", errs.Location{}),
		valueexpr.Lit("num_cpus", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{Self: db})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 4 {
		t.Errorf("got %v, want 4 (db -> dbms -> vm num_cpus)", v)
	}
}

func TestHostWithNoHostRequirementReturnsSelf(t *testing.T) {
	topo := newTopo(t)
	vm, _ := topo.Node("vm")
	ev := NewEvaluator(topo)
	expr := valueexpr.Call("get_property", []*valueexpr.ValueExpr{
		valueexpr.Lit("HOST", errs.Location{}),
		valueexpr.Lit("num_cpus", errs.Location{}),
	}, errs.Location{})
	v, err := ev.Evaluate(expr, Context{Self: vm})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 2 {
		t.Errorf("got %v, want 2 (HOST with no host requirement resolves to SELF)", v)
	}
}

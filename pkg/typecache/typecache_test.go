package typecache

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

const typecacheTestPrefix = "typecache:typecache_test"

func intDesc() *schema.Descriptor {
	return &schema.Descriptor{Kind: schema.KindNumber, GoType: reflect.TypeOf(0)}
}

type stubCalc struct{}

func (stubCalc) Add(a, b int) int { return a + b }

func addAction() *controller.Action {
	return &controller.Action{
		Parameters: []controller.Param{
			{Name: "a", Desc: intDesc()},
			{Name: "b", Desc: intDesc()},
		},
		Result: intDesc(),
		Invoke: func(_ context.Context, instance interface{}, args []interface{}) (interface{}, error) {
			c := instance.(*stubCalc)
			return c.Add(args[0].(int), args[1].(int)), nil
		},
	}
}

func streamAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindStream, Of: intDesc()},
	}
}

func wrapperWithoutGenericAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindStream},
	}
}

func TestLoadTypes_UnknownController(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	tc := New(reg)

	_, err := tc.LoadTypes("missing", "add")
	if err == nil {
		t.Fatal(typecacheTestPrefix + " - expected error for unknown controller")
	}
	tErr, ok := err.(*Error)
	if !ok || tErr.Code != "UnknownController" {
		t.Errorf("%s - got %v, want UnknownController", typecacheTestPrefix, err)
	}
}

func TestLoadTypes_UnknownAction(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{"add": addAction()})
	tc := New(reg)

	_, err := tc.LoadTypes("calc", "subtract")
	tErr, ok := err.(*Error)
	if !ok || tErr.Code != "UnknownAction" {
		t.Errorf("%s - got %v, want UnknownAction", typecacheTestPrefix, err)
	}
}

func TestLoadTypes_PlainValue(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{"add": addAction()})
	tc := New(reg)

	at, err := tc.LoadTypes("calc", "add")
	if err != nil {
		t.Fatalf("%s - LoadTypes failed: %v", typecacheTestPrefix, err)
	}
	if at.WrapperKind != "" {
		t.Errorf("%s - expected no wrapper kind for plain return, got %q", typecacheTestPrefix, at.WrapperKind)
	}
	if at.ResultSchema.Property("v") == nil {
		t.Fatalf("%s - expected resultSchema to carry property 'v'", typecacheTestPrefix)
	}
	if !at.ResultSchema.Property("v").Optional {
		t.Errorf("%s - expected resultSchema.v to be optional", typecacheTestPrefix)
	}

	args, err := at.ArgsDecode(json.RawMessage(`{"a":2,"b":3}`))
	if err != nil {
		t.Fatalf("%s - ArgsDecode failed: %v", typecacheTestPrefix, err)
	}
	if len(args) != 2 || args[0] != 2 || args[1] != 3 {
		t.Errorf("%s - ArgsDecode = %v, want [2 3]", typecacheTestPrefix, args)
	}
	if failures := at.ArgsValidate(args); len(failures) != 0 {
		t.Errorf("%s - expected no validation failures, got %v", typecacheTestPrefix, failures)
	}
}

func TestLoadTypes_ValidationFailsOnMissingRequired(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{"add": addAction()})
	tc := New(reg)

	at, err := tc.LoadTypes("calc", "add")
	if err != nil {
		t.Fatalf("%s - LoadTypes failed: %v", typecacheTestPrefix, err)
	}
	args, err := at.ArgsDecode(json.RawMessage(`{"a":2}`))
	if err != nil {
		t.Fatalf("%s - ArgsDecode failed: %v", typecacheTestPrefix, err)
	}
	failures := at.ArgsValidate(args)
	if len(failures) != 1 || failures[0].Path != "b" {
		t.Errorf("%s - expected one failure at path b, got %v", typecacheTestPrefix, failures)
	}
}

func TestLoadTypes_StreamUnwrapsElementType(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("clock", &stubCalc{}, map[string]*controller.Action{"now": streamAction()})
	tc := New(reg)

	at, err := tc.LoadTypes("clock", "now")
	if err != nil {
		t.Fatalf("%s - LoadTypes failed: %v", typecacheTestPrefix, err)
	}
	if at.WrapperKind != schema.KindStream {
		t.Errorf("%s - WrapperKind = %q, want stream", typecacheTestPrefix, at.WrapperKind)
	}
	if at.ResultProperty.Kind != schema.KindNumber {
		t.Errorf("%s - unwrapped ResultProperty.Kind = %q, want number", typecacheTestPrefix, at.ResultProperty.Kind)
	}
	if at.StreamItemSchema.Property("id") == nil || at.StreamItemSchema.Property("v") == nil {
		t.Errorf("%s - expected streamItemSchema to have id and v properties", typecacheTestPrefix)
	}
}

func TestLoadTypes_MissingGeneric(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("clock", &stubCalc{}, map[string]*controller.Action{"now": wrapperWithoutGenericAction()})
	tc := New(reg)

	_, err := tc.LoadTypes("clock", "now")
	tErr, ok := err.(*Error)
	if !ok || tErr.Code != "MissingGeneric" {
		t.Fatalf("%s - got %v, want MissingGeneric", typecacheTestPrefix, err)
	}
}

func TestLoadTypes_Idempotent(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{"add": addAction()})
	tc := New(reg)

	first, err := tc.LoadTypes("calc", "add")
	if err != nil {
		t.Fatalf("%s - LoadTypes failed: %v", typecacheTestPrefix, err)
	}
	second, err := tc.LoadTypes("calc", "add")
	if err != nil {
		t.Fatalf("%s - LoadTypes failed: %v", typecacheTestPrefix, err)
	}
	if first != second {
		t.Errorf("%s - expected the same *ActionTypes pointer across calls", typecacheTestPrefix)
	}
}

func TestActionTypes_CollectionItemsSchemaLazyAndCached(t *testing.T) {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{"add": addAction()})
	tc := New(reg)
	at, _ := tc.LoadTypes("calc", "add")

	first := at.CollectionItemsSchema()
	second := at.CollectionItemsSchema()
	if first != second {
		t.Errorf("%s - expected CollectionItemsSchema to be cached", typecacheTestPrefix)
	}
	v := first.Property("v")
	if v == nil || v.Kind != schema.KindArray {
		t.Fatalf("%s - expected v to be an array descriptor", typecacheTestPrefix)
	}
}

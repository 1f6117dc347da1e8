// Package typecache implements a per (controller, method) memoized ActionTypes bundle,
// built lazily from the controller registry's declared parameters and return descriptor.
package typecache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

const logPrefix = "typecache:typecache"

// Error is the structured failure TypeCache raises; ErrorEncoder maps Code to a wire
// frame.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func unknownController(id string) *Error {
	return &Error{Code: "UnknownController", Message: fmt.Sprintf("no controller registered for id %q", id)}
}

func unknownAction(controllerID, method string) *Error {
	return &Error{Code: "UnknownAction", Message: fmt.Sprintf("controller %q has no action %q", controllerID, method)}
}

func missingGeneric(method string, wrapper schema.Kind) *Error {
	return &Error{
		Code:    "MissingGeneric",
		Message: fmt.Sprintf("action %q declares a %s return without an element type", method, wrapper),
	}
}

// ActionTypes is an immutable-after-construction bundle, memoized per (controller,
// method). CollectionItemsSchema is the one exception: it is built lazily on the first
// CollectionItemsSchema call and cached on the entry from then on. The Invoker's
// collection branch does not call it.
type ActionTypes struct {
	Controller string
	Method     string

	Parameters []controller.Param
	ArgsSchema *schema.Descriptor

	// ResultProperty is the unwrapped return descriptor, renamed "v" and marked optional.
	ResultProperty *schema.Descriptor
	ResultSchema   *schema.Descriptor

	// WrapperKind is the declared wrapper kind (stream/subject/latched-subject/collection/
	// future) before unwrapping, or "" if the method's return type was not a wrapper.
	WrapperKind schema.Kind

	ArgsDecode   func(raw json.RawMessage) ([]interface{}, error)
	ArgsValidate func(args []interface{}) []schema.Failure

	StreamItemSchema *schema.Descriptor

	collMu                sync.Mutex
	collectionItemsSchema *schema.Descriptor
}

// CollectionItemsSchema lazily builds and caches the `{ v: array<resultProperty> }`
// schema describing collection Set bodies. collectionbridge encodes its Set/Change frames
// without consulting it.
func (t *ActionTypes) CollectionItemsSchema() *schema.Descriptor {
	t.collMu.Lock()
	defer t.collMu.Unlock()
	if t.collectionItemsSchema == nil {
		arr := &schema.Descriptor{Kind: schema.KindArray, Of: t.ResultProperty.Clone()}
		obj := schema.NewObject("collectionItems")
		obj.Register("v", arr)
		t.collectionItemsSchema = obj
	}
	return t.collectionItemsSchema
}

type cacheKey struct {
	controller string
	method     string
}

// TypeCache memoizes ActionTypes per (controller, method). Entries are never mutated
// after insertion (aside from ActionTypes.collectionItemsSchema's own lazy cache); only
// new keys are added. First-writer-wins on a race is acceptable because the built value
// is value-equal.
type TypeCache struct {
	registry *controller.Registry
	mu       sync.RWMutex
	entries  map[cacheKey]*ActionTypes
}

// New creates a TypeCache backed by registry.
func New(registry *controller.Registry) *TypeCache {
	return &TypeCache{registry: registry, entries: make(map[cacheKey]*ActionTypes)}
}

// LoadTypes returns the memoized ActionTypes for (controllerID, method), building it on
// first request.
func (tc *TypeCache) LoadTypes(controllerID, method string) (*ActionTypes, error) {
	key := cacheKey{controller: controllerID, method: method}

	tc.mu.RLock()
	if at, ok := tc.entries[key]; ok {
		tc.mu.RUnlock()
		return at, nil
	}
	tc.mu.RUnlock()

	at, err := tc.build(controllerID, method)
	if err != nil {
		return nil, err
	}

	tc.mu.Lock()
	if existing, ok := tc.entries[key]; ok {
		tc.mu.Unlock()
		return existing, nil
	}
	tc.entries[key] = at
	tc.mu.Unlock()
	return at, nil
}

func (tc *TypeCache) build(controllerID, method string) (*ActionTypes, error) {
	h, ok := tc.registry.Get(controllerID)
	if !ok {
		return nil, unknownController(controllerID)
	}

	params, ok := tc.registry.ParametersOf(h, method)
	if !ok {
		return nil, unknownAction(controllerID, method)
	}
	resultDesc, ok := tc.registry.ReturnDescriptorOf(h, method)
	if !ok {
		return nil, unknownAction(controllerID, method)
	}

	// Step 1: argsSchema, one property per parameter in declaration order.
	argsSchema := schema.NewObject("args")
	for _, p := range params {
		argsSchema.Register(p.Name, p.Desc)
		argsSchema.Property(p.Name).Optional = p.Optional
	}

	// Steps 2-3: clone the declared return descriptor; unwrap a single-level wrapper.
	resultProperty := resultDesc.Clone()
	var wrapperKind schema.Kind
	if resultProperty.Kind.IsWrapper() {
		wrapperKind = resultProperty.Kind
		if resultProperty.Of == nil {
			return nil, missingGeneric(method, wrapperKind)
		}
		resultProperty = resultProperty.Of.Clone()
	}

	// Step 4: rename to "v", mark optional.
	resultProperty.Name = "v"
	resultProperty.Optional = true

	// Step 5: resultSchema.
	resultSchema := schema.NewObject("result")
	resultSchema.Register("v", resultProperty)
	resultSchema.Property("v").Optional = true

	// Step 6: streamItemSchema = { id, v }.
	streamItemSchema := schema.NewObject("streamItem")
	streamItemSchema.Register("id", &schema.Descriptor{Kind: schema.KindNumber})
	streamItemSchema.Register("v", resultProperty)
	streamItemSchema.Property("v").Optional = true

	// Step 7: compile argsDecode/argsValidate.
	decodeMap, err := schema.CompileDecoder(argsSchema)
	if err != nil {
		return nil, fmt.Errorf("%s - compile decoder for %s.%s: %w", logPrefix, controllerID, method, err)
	}
	validateMap, err := schema.CompileValidator(argsSchema)
	if err != nil {
		return nil, fmt.Errorf("%s - compile validator for %s.%s: %w", logPrefix, controllerID, method, err)
	}

	argsDecode := func(raw json.RawMessage) ([]interface{}, error) {
		values, err := decodeMap(raw)
		if err != nil {
			return nil, err
		}
		tuple := make([]interface{}, len(params))
		for i, p := range params {
			tuple[i] = values[p.Name]
		}
		return tuple, nil
	}
	argsValidate := func(args []interface{}) []schema.Failure {
		values := make(map[string]interface{}, len(params))
		for i, p := range params {
			if args[i] != nil {
				values[p.Name] = args[i]
			}
		}
		return validateMap(values)
	}

	return &ActionTypes{
		Controller:       controllerID,
		Method:           method,
		Parameters:       params,
		ArgsSchema:       argsSchema,
		ResultProperty:   resultProperty,
		ResultSchema:     resultSchema,
		WrapperKind:      wrapperKind,
		ArgsDecode:       argsDecode,
		ArgsValidate:     argsValidate,
		StreamItemSchema: streamItemSchema,
	}, nil
}

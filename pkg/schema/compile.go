package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
)

const compileLogPrefix = "schema:compile"

// Decoder decodes a wire-encoded object into native values keyed by property name.
// Every property present on the wire is populated (a leaf with a nil GoType as its plain
// JSON value); missing optional properties are simply absent from the result.
type Decoder func(raw json.RawMessage) (map[string]interface{}, error)

// Validator checks a decoded value set against an object Descriptor's required/optional
// and per-leaf Validate rules, returning the (possibly empty) list of failures.
type Validator func(values map[string]interface{}) []Failure

// CompileDecoder builds a Decoder from an object Descriptor. Each property may be a leaf
// (decoded into its GoType, or generically when GoType is nil), an array, or a nested
// object (decoded recursively into a map[string]interface{}).
func CompileDecoder(obj *Descriptor) (Decoder, error) {
	if obj.Kind != KindObject {
		return nil, fmt.Errorf("%s - CompileDecoder requires an object descriptor, got %s", compileLogPrefix, obj.Kind)
	}
	props := obj.Properties

	return func(raw json.RawMessage) (map[string]interface{}, error) {
		var wire map[string]json.RawMessage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &wire); err != nil {
				return nil, fmt.Errorf("%s - invalid object body: %w", compileLogPrefix, err)
			}
		}

		out := make(map[string]interface{}, len(props))
		for _, p := range props {
			rawVal, present := wire[p.Name]
			if !present || len(rawVal) == 0 {
				continue
			}
			v, err := decodeLeaf(p, rawVal)
			if err != nil {
				return nil, fmt.Errorf("%s - property %q: %w", compileLogPrefix, p.Name, err)
			}
			out[p.Name] = v
		}
		return out, nil
	}, nil
}

func decodeLeaf(d *Descriptor, raw json.RawMessage) (interface{}, error) {
	switch d.Kind {
	case KindObject:
		dec, err := CompileDecoder(d)
		if err != nil {
			return nil, err
		}
		return dec(raw)
	case KindArray:
		var rawItems []json.RawMessage
		if err := json.Unmarshal(raw, &rawItems); err != nil {
			return nil, err
		}
		items := make([]interface{}, len(rawItems))
		for i, ri := range rawItems {
			v, err := decodeLeaf(d.Of, ri)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	default:
		if d.GoType == nil {
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		}
		ptr := reflect.New(d.GoType)
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			// A wire-level type mismatch (e.g. a string where an int is declared) is a
			// validation concern, not a decode failure: carry the raw value through as a
			// typeMismatch so CompileValidator raises it at this leaf's path.
			var v interface{}
			if rawErr := json.Unmarshal(raw, &v); rawErr != nil {
				return nil, err
			}
			return typeMismatch{value: v}, nil
		}
		return ptr.Elem().Interface(), nil
	}
}

// typeMismatch wraps a successfully-parsed-as-JSON but wrong-shaped leaf value, deferring
// the failure from decode time to validate time so it surfaces as a ValidationError.
type typeMismatch struct{ value interface{} }

// CompileValidator builds a Validator from an object Descriptor: every non-optional
// property must be present, and every present property's Validate hook (if any) must pass.
func CompileValidator(obj *Descriptor) (Validator, error) {
	if obj.Kind != KindObject {
		return nil, fmt.Errorf("%s - CompileValidator requires an object descriptor, got %s", compileLogPrefix, obj.Kind)
	}
	props := obj.Properties

	return func(values map[string]interface{}) []Failure {
		var failures []Failure
		for _, p := range props {
			v, present := values[p.Name]
			if !present {
				if !p.Optional {
					failures = append(failures, Failure{
						Path:    p.Name,
						Code:    "required",
						Message: fmt.Sprintf("%q is required", p.Name),
					})
				}
				continue
			}
			if tm, ok := v.(typeMismatch); ok {
				failures = append(failures, Failure{
					Path:    p.Name,
					Code:    "type",
					Message: fmt.Sprintf("%q has the wrong type, got %T", p.Name, tm.value),
				})
				continue
			}
			if p.Validate != nil {
				if f := p.Validate(v); f != nil {
					f.Path = p.Name
					failures = append(failures, *f)
				}
			}
		}
		return failures
	}, nil
}

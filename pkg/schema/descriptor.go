// Package schema is the concrete stand-in for an external schema system consumed as a
// collaborator: descriptor cloning, object construction and property registration, and
// compiling a decoder/validator pair from a descriptor tree.
package schema

import "reflect"

// Kind classifies a Descriptor. The five wrapper kinds are the ones that need
// single-level unwrapping before they reach the wire.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindAny    Kind = "any"

	KindFuture         Kind = "future"
	KindStream         Kind = "stream"
	KindSubject        Kind = "subject"
	KindLatchedSubject Kind = "latched-subject"
	KindCollection     Kind = "collection"
)

// IsWrapper reports whether k is one of the wrapper kinds unwrapped by TypeCache.
func (k Kind) IsWrapper() bool {
	switch k {
	case KindFuture, KindStream, KindSubject, KindLatchedSubject, KindCollection:
		return true
	}
	return false
}

// IsPushSource reports whether k is one of the push-source family (stream, subject,
// latched-subject) as opposed to future or collection.
func (k Kind) IsPushSource() bool {
	switch k {
	case KindStream, KindSubject, KindLatchedSubject:
		return true
	}
	return false
}

// Descriptor describes one value on the wire: a parameter, a return type, or a nested
// property/element. Descriptors are immutable once registered onto a parent object; a
// caller that wants to change one must Clone it first.
type Descriptor struct {
	Name       string
	Kind       Kind
	Optional   bool
	Of         *Descriptor   // element type for KindArray, template argument for wrapper kinds
	Properties []*Descriptor // fields, for KindObject
	GoType     reflect.Type  // decode/encode target for leaf kinds; nil for object/array/wrapper
	Validate   func(v interface{}) *Failure
}

// Failure is one validation failure, matching wire.Failure's shape without importing wire
// (schema sits below wire in the dependency order).
type Failure struct {
	Path    string
	Code    string
	Message string
}

// Clone deep-copies a Descriptor so callers (notably TypeCache) can safely mutate a copy
// (e.g. renaming it to "v" and marking it optional) without disturbing the source.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	clone := &Descriptor{
		Name:     d.Name,
		Kind:     d.Kind,
		Optional: d.Optional,
		GoType:   d.GoType,
		Validate: d.Validate,
	}
	clone.Of = d.Of.Clone()
	if d.Properties != nil {
		clone.Properties = make([]*Descriptor, len(d.Properties))
		for i, p := range d.Properties {
			clone.Properties[i] = p.Clone()
		}
	}
	return clone
}

// NewObject creates a fresh, empty object-kind Descriptor.
func NewObject(name string) *Descriptor {
	return &Descriptor{Name: name, Kind: KindObject}
}

// Register clones prop, renames the clone to name, and appends it to the receiver's
// Properties in order. The receiver must be object-kind. Returns the receiver for chaining.
func (d *Descriptor) Register(name string, prop *Descriptor) *Descriptor {
	clone := prop.Clone()
	clone.Name = name
	d.Properties = append(d.Properties, clone)
	return d
}

// Property returns the named property of an object Descriptor, or nil if absent.
func (d *Descriptor) Property(name string) *Descriptor {
	for _, p := range d.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Shape is the JSON-safe projection of a Descriptor: GoType and Validate have no wire
// representation, so the type-introspection endpoint sends this instead.
type Shape struct {
	Name       string  `json:"name,omitempty"`
	Kind       Kind    `json:"kind"`
	Optional   bool    `json:"optional,omitempty"`
	Of         *Shape  `json:"of,omitempty"`
	Properties []*Shape `json:"properties,omitempty"`
}

// Shape projects d into its JSON-safe form, recursively.
func (d *Descriptor) Shape() *Shape {
	if d == nil {
		return nil
	}
	s := &Shape{Name: d.Name, Kind: d.Kind, Optional: d.Optional, Of: d.Of.Shape()}
	for _, p := range d.Properties {
		s.Properties = append(s.Properties, p.Shape())
	}
	return s
}

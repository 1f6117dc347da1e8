// Package action defines the runtime values a controller action can return: plain values
// pass through untouched, the other kinds are the wrapper/marker types TypeCache and Invoker
// recognize and unwrap or classify before encoding a response.
package action

import "context"

// Future is a deferred single result. Invoker awaits it (step 4) before classifying the
// unwrapped value.
type Future interface {
	Await(ctx context.Context) (interface{}, error)
}

// PushSource is a multicast feed of values delivered over time: the runtime shape behind
// the Stream and Subject wrapper kinds. Subscribe returns an unsubscribe func; onError and
// onComplete are terminal and mutually exclusive with further onNext calls.
type PushSource interface {
	Subscribe(onNext func(interface{}), onError func(error), onComplete func()) (unsubscribe func())
}

// LatchedPushSource is a PushSource that remembers its most recently emitted value, the
// runtime shape behind the LatchedSubject wrapper kind: a late subscriber can read Latest
// before the next emission arrives.
type LatchedPushSource interface {
	PushSource
	Latest() (value interface{}, ok bool)
}

// ChangeKind classifies one Collection mutation: add | remove | set | state.
type ChangeKind string

const (
	ChangeKindAdd    ChangeKind = "add"
	ChangeKindRemove ChangeKind = "remove"
	ChangeKindSet    ChangeKind = "set"
	ChangeKindState  ChangeKind = "state"
)

// ChangeEvent is one mutation delivered to a Collection subscriber. Item is nil for
// ChangeKindRemove and ChangeKindSet (a "set" signals a full resnap; CollectionBridge
// must call Snapshot at emit time rather than trust any payload captured here). State
// carries the new state for ChangeKindState.
type ChangeEvent struct {
	Kind  ChangeKind
	ID    string
	Item  interface{} // set for ChangeKindAdd only
	State interface{} // set for ChangeKindState only
}

// Collection is an observable, identity-keyed item set: CollectionBridge opens it with a
// Model/State/Set composite and then streams ChangeEvents as Add/Remove/Set/State frames.
type Collection interface {
	// Model describes the item shape, forwarded verbatim in the opening composite.
	Model() interface{}
	// State is the collection's current query state, forwarded in the opening composite
	// and again whenever a ChangeKindState event fires.
	State() interface{}
	// Snapshot returns every current item keyed by ID.
	Snapshot() map[string]interface{}
	Subscribe(onChange func(ChangeEvent)) (unsubscribe func())
}

// EntitySubject marks a returned value as a single mutable entity observed by push rather
// than a plain value. It is a runtime-only marker: unlike Future/PushSource/Collection it is
// not a declared wrapper kind in the schema system.
// Invoker checks for it by type assertion, after awaiting any Future, and before checking
// Collection or PushSource.
type EntitySubject interface {
	LatchedPushSource
	EntityID() string
}

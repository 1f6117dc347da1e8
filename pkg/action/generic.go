package action

// This file holds the generic convenience constructors controller authors use to build the
// values declared in types.go. The constructors are generic over the element type T
// so controller code stays type-safe; the values they return satisfy the non-generic
// interfaces (Future, PushSource, Collection, EntitySubject) that Invoker actually type-
// switches on, since a generic type cannot itself be named in a type switch.

// TypedStream builds a Stream together with typed emit/fail/complete functions.
func TypedStream[T any]() (*Stream, func(T), func(error), func()) {
	s, emit, fail, complete := NewStream()
	return s, func(v T) { emit(v) }, fail, complete
}

// TypedSubject builds a Subject together with typed emit/fail/complete functions.
func TypedSubject[T any]() (*Subject, func(T), func(error), func()) {
	s, emit, fail, complete := NewSubject()
	return s, func(v T) { emit(v) }, fail, complete
}

// TypedLatchedSubject builds a LatchedSubject seeded with initial, together with typed
// emit/fail/complete functions.
func TypedLatchedSubject[T any](initial T) (*LatchedSubject, func(T), func(error), func()) {
	s, emit, fail, complete := NewLatchedSubject(initial)
	return s, func(v T) { emit(v) }, fail, complete
}

// TypedFuture builds a Future together with typed resolve/reject functions.
func TypedFuture[T any]() (Future, func(T), func(error)) {
	f, resolve, reject := NewFuture()
	return f, func(v T) { resolve(v) }, reject
}

// TypedCollection builds a Collection seeded with model and initialState, together with
// typed set/remove/setState/resnap mutators.
func TypedCollection[T any](model interface{}, initialState interface{}) (Collection, func(id string, item T), func(id string), func(state interface{}), func()) {
	c, set, remove, setState, resnap := NewCollection(model, initialState)
	return c, func(id string, item T) { set(id, item) }, remove, setState, resnap
}

// TypedEntitySubject builds an EntitySubject seeded with initial, together with typed
// emit/fail/complete functions.
func TypedEntitySubject[T any](id string, initial T) (EntitySubject, func(T), func(error), func()) {
	e, emit, fail, complete := NewEntitySubject(id, initial)
	return e, func(v T) { emit(v) }, fail, complete
}

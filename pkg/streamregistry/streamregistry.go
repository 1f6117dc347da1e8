// Package streamregistry implements the per-call table of live push-source results and
// their per-client subscriptions, plus the subscribe/unsubscribe control operations
// ControlHandler drives against it.
package streamregistry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/schema"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

const logPrefix = "streamregistry:streamregistry"

// Error is a ControlError: a failed subscribe/unsubscribe against a missing entry or a
// duplicate subscription ID.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrNoObservable is returned when callID has no registered StreamEntry.
func ErrNoObservable() error { return &Error{Message: "No observable found"} }

// ErrSubscriptionExists is returned when subID already has a subscription on callID.
func ErrSubscriptionExists() error { return &Error{Message: "Subscription already created"} }

// ErrSubscriptionMissing is returned when subID has no subscription to unsubscribe.
func ErrSubscriptionMissing() error { return &Error{Message: "Subscription not found"} }

// subscription is one client-driven subscription to a StreamEntry's source. active gates
// whether an in-flight value delivered by the source is still forwarded: it is cleared
// *before* cancel is invoked on unsubscribe.
type subscription struct {
	active bool
	cancel func()
}

// StreamEntry is one call ID's live push-source result and its subscription table.
type StreamEntry struct {
	mu              sync.Mutex
	source          action.PushSource
	itemSchema      *schema.Descriptor
	subscriptions   map[int64]*subscription
	bootstrapCancel func()
}

// ItemSchema returns the cached streamItemSchema for this entry's result type.
func (e *StreamEntry) ItemSchema() *schema.Descriptor { return e.itemSchema }

// Registry is the StreamRegistry: a table of StreamEntry keyed by call ID, mutated only
// from the Dispatcher's thread.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]*StreamEntry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[int64]*StreamEntry)}
}

// Register creates and stores a StreamEntry for callID. Callers must not already have a
// StreamEntry or CollectionEntry registered for callID; that disjointness is enforced by
// the caller, Invoker, which classifies the result into exactly one branch.
func (r *Registry) Register(callID int64, source action.PushSource, itemSchema *schema.Descriptor) *StreamEntry {
	entry := &StreamEntry{
		source:        source,
		itemSchema:    itemSchema,
		subscriptions: make(map[int64]*subscription),
	}
	r.mu.Lock()
	r.entries[callID] = entry
	r.mu.Unlock()
	return entry
}

// Get returns the StreamEntry for callID, if any.
func (r *Registry) Get(callID int64) (*StreamEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	return e, ok
}

// Remove drops the StreamEntry for callID without canceling anything; callers that want
// teardown should cancel subscriptions first (see CloseAll for the transport-close path).
func (r *Registry) Remove(callID int64) {
	r.mu.Lock()
	delete(r.entries, callID)
	r.mu.Unlock()
}

// AutoSubscribe opens the server-side subscription a subject gets at call time: values,
// errors and completion are forwarded under the call ID itself, since there is no
// client-assigned subscription ID for the bootstrap subscription.
func (r *Registry) AutoSubscribe(callID int64, sender wire.Sender) {
	entry, ok := r.Get(callID)
	if !ok {
		return
	}
	cancel := entry.source.Subscribe(
		func(v interface{}) {
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableNext, Body: wire.StreamItemBody{ID: callID, V: v}})
		},
		func(err error) {
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableError, Body: wire.ErrorBody{Message: err.Error()}})
		},
		func() {
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableComplete, Body: wire.StreamItemBody{ID: callID}})
		},
	)
	entry.mu.Lock()
	entry.bootstrapCancel = cancel
	entry.mu.Unlock()
}

// Subscribe implements ActionObservableSubscribe against the StreamEntry for callID.
func (r *Registry) Subscribe(callID, subID int64, sender wire.Sender) error {
	entry, ok := r.Get(callID)
	if !ok {
		return ErrNoObservable()
	}

	entry.mu.Lock()
	if _, exists := entry.subscriptions[subID]; exists {
		entry.mu.Unlock()
		return ErrSubscriptionExists()
	}
	sub := &subscription{active: true}
	entry.subscriptions[subID] = sub
	entry.mu.Unlock()

	cancel := entry.source.Subscribe(
		func(v interface{}) {
			if !subActive(entry, sub) {
				return
			}
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableNext, Body: wire.StreamItemBody{ID: subID, V: v}})
		},
		func(err error) {
			if !subActive(entry, sub) {
				return
			}
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableError, Body: wire.ErrorBody{Message: err.Error()}})
		},
		func() {
			if !subActive(entry, sub) {
				return
			}
			_ = sender.Send(wire.Frame{ID: callID, Type: wire.TypeResponseActionObservableComplete, Body: wire.StreamItemBody{ID: subID}})
		},
	)

	entry.mu.Lock()
	sub.cancel = cancel
	entry.mu.Unlock()
	return nil
}

func subActive(entry *StreamEntry, sub *subscription) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return sub.active
}

// Unsubscribe implements ActionObservableUnsubscribe against the StreamEntry for callID.
// active is cleared before cancel runs, so a value racing in from the source cannot be
// forwarded after this returns.
func (r *Registry) Unsubscribe(callID, subID int64) error {
	entry, ok := r.Get(callID)
	if !ok {
		return ErrNoObservable()
	}

	entry.mu.Lock()
	sub, exists := entry.subscriptions[subID]
	if !exists {
		entry.mu.Unlock()
		return ErrSubscriptionMissing()
	}
	sub.active = false
	cancel := sub.cancel
	delete(entry.subscriptions, subID)
	entry.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// UnsubscribeSubject implements ActionObservableSubjectUnsubscribe: cancels the
// server-auto-subscription held for a subject/latched-subject result on callID.
func (r *Registry) UnsubscribeSubject(callID int64) error {
	entry, ok := r.Get(callID)
	if !ok {
		return ErrNoObservable()
	}

	entry.mu.Lock()
	cancel := entry.bootstrapCancel
	entry.bootstrapCancel = nil
	entry.mu.Unlock()

	if cancel == nil {
		return ErrNoObservable()
	}
	cancel()
	return nil
}

// CloseAll tears down every StreamEntry: every active subscription is deactivated and
// canceled, and every bootstrap auto-subscription is canceled. Called on transport close.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[int64]*StreamEntry)
	r.mu.Unlock()

	for callID, entry := range entries {
		entry.mu.Lock()
		subs := entry.subscriptions
		entry.subscriptions = nil
		bootstrap := entry.bootstrapCancel
		entry.bootstrapCancel = nil
		entry.mu.Unlock()

		for _, sub := range subs {
			sub.active = false
			if sub.cancel != nil {
				sub.cancel()
			}
		}
		if bootstrap != nil {
			bootstrap()
		}
		slog.Debug(fmt.Sprintf("%s - closed stream entry for call %d", logPrefix, callID))
	}
}

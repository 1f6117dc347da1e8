// Package collectionbridge implements a snapshot-plus-diff encoder for live Collection
// results, batching change events that land in the same cooperative tick into one
// composite frame.
package collectionbridge

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

const logPrefix = "collectionbridge:collectionbridge"

// Entry is a registered CollectionEntry. Cancel sets a local drop flag so any batch
// already in flight is discarded, then unsubscribes the change feed and, if the
// collection's producer supplied one, the underlying resource backing it (e.g. a
// pkg/livedb LISTEN/NOTIFY watch).
type Entry struct {
	mu            sync.Mutex
	dropped       bool
	cancelChange  func()
	releaseSource func()
}

// Cancel tears this entry down. Safe to call more than once.
func (e *Entry) Cancel() {
	e.mu.Lock()
	e.dropped = true
	cancelChange := e.cancelChange
	release := e.releaseSource
	e.cancelChange = nil
	e.releaseSource = nil
	e.mu.Unlock()

	if cancelChange != nil {
		cancelChange()
	}
	if release != nil {
		release()
	}
}

func (e *Entry) isDropped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Bridge is the CollectionBridge: a table of live Entry keyed by call ID.
type Bridge struct {
	mu      sync.Mutex
	entries map[int64]*Entry
}

// New creates an empty Bridge.
func New() *Bridge {
	return &Bridge{entries: make(map[int64]*Entry)}
}

// Open emits the opening composite frame — Model, State, Set, in that order — then
// subscribes to coll's change feed with microtask batching and registers the resulting
// Entry under callID. release, if non-nil, is invoked by
// a later Cancel alongside unsubscribing the change feed, and is how a controller's own
// backing resource (e.g. a database watch) gets torn down.
func (b *Bridge) Open(callID int64, coll action.Collection, sender wire.Sender, release func()) error {
	entry := &Entry{releaseSource: release}
	b.mu.Lock()
	b.entries[callID] = entry
	b.mu.Unlock()

	if err := b.sendOpeningComposite(callID, coll, sender); err != nil {
		return err
	}

	bat := &batcher{callID: callID, coll: coll, entry: entry, sender: sender}
	cancelChange := coll.Subscribe(bat.onEvent)

	entry.mu.Lock()
	entry.cancelChange = cancelChange
	entry.mu.Unlock()

	return nil
}

func (b *Bridge) sendOpeningComposite(callID int64, coll action.Collection, sender wire.Sender) error {
	return sender.Send(wire.Frame{
		ID:   callID,
		Type: wire.TypeResponseActionCollection,
		Sub: []wire.Frame{
			{ID: callID, Type: wire.TypeResponseActionCollectionModel, Body: coll.Model()},
			{ID: callID, Type: wire.TypeResponseActionCollectionState, Body: coll.State()},
			{ID: callID, Type: wire.TypeResponseActionCollectionSet, Body: wire.SimpleResultBody{V: snapshotValues(coll)}},
		},
	})
}

// Unsubscribe implements ResponseActionCollectionUnsubscribe against callID: it invokes
// the Entry's Cancel and removes it, for the UnsubscribeCollection control message.
func (b *Bridge) Unsubscribe(callID int64) error {
	b.mu.Lock()
	entry, ok := b.entries[callID]
	delete(b.entries, callID)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s - no collection entry for call %d", logPrefix, callID)
	}
	entry.Cancel()
	return nil
}

// Get returns the Entry registered for callID, if any.
func (b *Bridge) Get(callID int64) (*Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[callID]
	return e, ok
}

// CloseAll tears down every open collection entry, for a transport's connection-close path.
func (b *Bridge) CloseAll() {
	b.mu.Lock()
	entries := b.entries
	b.entries = make(map[int64]*Entry)
	b.mu.Unlock()

	for callID, entry := range entries {
		entry.Cancel()
		slog.Debug(fmt.Sprintf("%s - closed collection entry for call %d", logPrefix, callID))
	}
}

func snapshotValues(coll action.Collection) []interface{} {
	items := coll.Snapshot()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, items[id])
	}
	return out
}

// batcher coalesces ChangeEvents arriving within one cooperative scheduling tick into a
// single composite ResponseActionCollectionChange frame, one sub-frame per event,
// preserving arrival order. Go has no microtask queue, so it uses a deferred-flush
// primitive instead: a flush goroutine that yields once via runtime.Gosched before
// draining, giving synchronous same-tick emissions a chance to accumulate into the
// pending batch first.
type batcher struct {
	callID int64
	coll   action.Collection
	entry  *Entry
	sender wire.Sender

	mu             sync.Mutex
	pending        []action.ChangeEvent
	flushScheduled bool
}

func (b *batcher) onEvent(e action.ChangeEvent) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	alreadyScheduled := b.flushScheduled
	b.flushScheduled = true
	b.mu.Unlock()

	if !alreadyScheduled {
		go b.flushSoon()
	}
}

func (b *batcher) flushSoon() {
	runtime.Gosched()
	b.flush()
}

func (b *batcher) flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.flushScheduled = false
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	// Honor the drop flag before any frame of this batch is sent.
	if b.entry.isDropped() {
		return
	}

	sub := make([]wire.Frame, 0, len(batch))
	for _, e := range batch {
		switch e.Kind {
		case action.ChangeKindAdd:
			sub = append(sub, wire.Frame{ID: b.callID, Type: wire.TypeResponseActionCollectionAdd, Body: wire.SimpleResultBody{V: []interface{}{e.Item}}})
		case action.ChangeKindRemove:
			sub = append(sub, wire.Frame{ID: b.callID, Type: wire.TypeResponseActionCollectionRemove, Body: wire.CollectionRemoveBody{IDs: []interface{}{e.ID}}})
		case action.ChangeKindSet:
			// Full resnap: call Snapshot at emit time, not at event time.
			sub = append(sub, wire.Frame{ID: b.callID, Type: wire.TypeResponseActionCollectionSet, Body: wire.SimpleResultBody{V: snapshotValues(b.coll)}})
		case action.ChangeKindState:
			sub = append(sub, wire.Frame{ID: b.callID, Type: wire.TypeResponseActionCollectionState, Body: e.State})
		}
	}

	if b.entry.isDropped() {
		return
	}
	_ = b.sender.Send(wire.Frame{ID: b.callID, Type: wire.TypeResponseActionCollectionChange, Sub: sub})
}

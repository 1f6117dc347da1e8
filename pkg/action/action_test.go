package action

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFuture_ResolveDeliversValue(t *testing.T) {
	f, resolve, _ := NewFuture()
	resolve(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("action_test - unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("action_test - got %v, want 42", v)
	}
}

func TestFuture_RejectDeliversError(t *testing.T) {
	f, _, reject := NewFuture()
	boom := errors.New("boom")
	reject(boom)

	v, err := f.Await(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("action_test - got err %v, want %v", err, boom)
	}
	if v != nil {
		t.Errorf("action_test - expected nil value on reject, got %v", v)
	}
}

func TestFuture_AwaitRespectsContextCancel(t *testing.T) {
	f, _, _ := NewFuture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("action_test - got err %v, want context.Canceled", err)
	}
}

func TestFuture_OnlyFirstSettlementWins(t *testing.T) {
	f, resolve, reject := NewFuture()
	resolve(1)
	reject(errors.New("too late"))

	v, err := f.Await(context.Background())
	if err != nil || v != 1 {
		t.Errorf("action_test - got (%v, %v), want (1, nil)", v, err)
	}
}

func TestStream_MulticastsToAllSubscribers(t *testing.T) {
	s, emit, _, _ := NewStream()

	var gotA, gotB []interface{}
	s.Subscribe(func(v interface{}) { gotA = append(gotA, v) }, nil, nil)
	s.Subscribe(func(v interface{}) { gotB = append(gotB, v) }, nil, nil)

	emit(1)
	emit(2)

	if len(gotA) != 2 || len(gotB) != 2 {
		t.Fatalf("action_test - gotA=%v gotB=%v", gotA, gotB)
	}
}

func TestStream_UnsubscribeStopsDelivery(t *testing.T) {
	s, emit, _, _ := NewStream()

	var got []interface{}
	unsub := s.Subscribe(func(v interface{}) { got = append(got, v) }, nil, nil)
	emit(1)
	unsub()
	emit(2)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("action_test - got %v, want [1]", got)
	}
}

func TestStream_CompleteFiresOnceAndStopsEmits(t *testing.T) {
	s, emit, _, complete := NewStream()

	completions := 0
	var got []interface{}
	s.Subscribe(func(v interface{}) { got = append(got, v) }, nil, func() { completions++ })

	emit(1)
	complete()
	emit(2)
	complete()

	if completions != 1 {
		t.Errorf("action_test - completions = %d, want 1", completions)
	}
	if len(got) != 1 {
		t.Errorf("action_test - got %v, want emission to stop after complete", got)
	}
}

func TestStream_LateSubscriberAfterCompleteGetsOnComplete(t *testing.T) {
	s, _, _, complete := NewStream()
	complete()

	fired := false
	s.Subscribe(nil, nil, func() { fired = true })
	if !fired {
		t.Error("action_test - late subscriber after Complete should get onComplete immediately")
	}
}

func TestLatchedSubject_LateSubscriberSeesLatest(t *testing.T) {
	s, emit, _, _ := NewLatchedSubject("initial")
	emit("updated")

	v, ok := s.Latest()
	if !ok || v != "updated" {
		t.Errorf("action_test - Latest() = (%v, %v), want (updated, true)", v, ok)
	}

	var got interface{}
	s.Subscribe(func(v interface{}) { got = v }, nil, nil)
	emit("next")
	if got != "next" {
		t.Errorf("action_test - got %v, want next", got)
	}
}

func TestLatchedSubject_SubscribeReplaysLatestBeforeFutureEmits(t *testing.T) {
	s, emit, _, _ := NewLatchedSubject("initial")
	emit("updated")

	var got []interface{}
	s.Subscribe(func(v interface{}) { got = append(got, v) }, nil, nil)
	if len(got) != 1 || got[0] != "updated" {
		t.Fatalf("action_test - Subscribe did not replay latest synchronously, got %v", got)
	}

	emit("next")
	if len(got) != 2 || got[1] != "next" {
		t.Errorf("action_test - got %v, want [updated next]", got)
	}
}

func TestLatchedSubject_SubscribeReplaysSeedValueBeforeFirstEmit(t *testing.T) {
	s, emit, _, _ := NewLatchedSubject("seed")

	var got []interface{}
	s.Subscribe(func(v interface{}) { got = append(got, v) }, nil, nil)
	if len(got) != 1 || got[0] != "seed" {
		t.Fatalf("action_test - Subscribe did not replay the seed value, got %v", got)
	}
	emit("first")
	if len(got) != 2 || got[1] != "first" {
		t.Errorf("action_test - got %v, want [seed first]", got)
	}
}

func TestCollection_SetAndRemoveNotifySubscribers(t *testing.T) {
	model := map[string]string{"shape": "item"}
	c, set, remove, _, _ := NewCollection(model, "idle")

	var events []ChangeEvent
	c.Subscribe(func(e ChangeEvent) { events = append(events, e) })

	set("a", "apple")
	remove("a")

	if len(events) != 2 {
		t.Fatalf("action_test - got %d events, want 2", len(events))
	}
	if events[0].Kind != ChangeKindAdd || events[0].ID != "a" || events[0].Item != "apple" {
		t.Errorf("action_test - unexpected add event %+v", events[0])
	}
	if events[1].Kind != ChangeKindRemove || events[1].ID != "a" {
		t.Errorf("action_test - unexpected remove event %+v", events[1])
	}
	if c.Model() == nil {
		t.Error("action_test - Model() should not be nil")
	}
	if c.State() != "idle" {
		t.Errorf("action_test - State() = %v, want idle", c.State())
	}
	if len(c.Snapshot()) != 0 {
		t.Errorf("action_test - snapshot should be empty after remove, got %v", c.Snapshot())
	}
}

func TestCollection_RemoveUnknownIDIsNoOp(t *testing.T) {
	c, _, remove, _, _ := NewCollection(nil, nil)

	fired := false
	c.Subscribe(func(ChangeEvent) { fired = true })
	remove("missing")

	if fired {
		t.Error("action_test - removing an unknown ID must not notify subscribers")
	}
}

func TestCollection_SetStateAndResnapFireDistinctKinds(t *testing.T) {
	c, _, _, setState, resnap := NewCollection(nil, "idle")

	var events []ChangeEvent
	c.Subscribe(func(e ChangeEvent) { events = append(events, e) })

	setState("syncing")
	resnap()

	if len(events) != 2 {
		t.Fatalf("action_test - got %d events, want 2", len(events))
	}
	if events[0].Kind != ChangeKindState || events[0].State != "syncing" {
		t.Errorf("action_test - unexpected state event %+v", events[0])
	}
	if events[1].Kind != ChangeKindSet {
		t.Errorf("action_test - unexpected set event %+v", events[1])
	}
	if c.State() != "syncing" {
		t.Errorf("action_test - State() = %v, want syncing", c.State())
	}
}

func TestEntitySubject_SnapshotAndUpdates(t *testing.T) {
	e, emit, _, _ := NewEntitySubject("user-1", "v0")

	if e.EntityID() != "user-1" {
		t.Errorf("action_test - EntityID() = %q, want user-1", e.EntityID())
	}
	v, ok := e.Latest()
	if !ok || v != "v0" {
		t.Errorf("action_test - Latest() = (%v, %v), want (v0, true)", v, ok)
	}

	var got []interface{}
	e.Subscribe(func(v interface{}) { got = append(got, v) }, nil, nil)
	if len(got) != 1 || got[0] != "v0" {
		t.Fatalf("action_test - Subscribe did not replay the current value, got %v", got)
	}
	emit("v1")
	if len(got) != 2 || got[1] != "v1" {
		t.Errorf("action_test - got %v, want [v0 v1]", got)
	}
}

func TestTypedConstructors_PreserveValues(t *testing.T) {
	s, emit, _, _ := TypedStream[int]()
	var got []interface{}
	s.Subscribe(func(v interface{}) { got = append(got, v) }, nil, nil)
	emit(7)
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("action_test - TypedStream delivered %v, want [7]", got)
	}

	c, set, _, _, _ := TypedCollection[string](nil, nil)
	set("k", "v")
	if got := c.Snapshot()["k"]; got != "v" {
		t.Errorf("action_test - TypedCollection Snapshot()[k] = %v, want v", got)
	}
}

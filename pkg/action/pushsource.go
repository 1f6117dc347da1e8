package action

import "sync"

type pushSub struct {
	onNext     func(interface{})
	onError    func(error)
	onComplete func()
}

// pushHub is the shared multicast broadcaster behind Stream, Subject, LatchedSubject and
// EntitySubject: a registry of live subscribers plus terminal/latest-value bookkeeping,
// guarded by a mutex (teacher's pkg/registry/federation.go guards its connection table the
// same way).
type pushHub struct {
	mu        sync.Mutex
	subs      map[int]*pushSub
	nextID    int
	completed bool
	failErr   error
	latest    interface{}
	hasLatest bool
}

func newPushHub() *pushHub {
	return &pushHub{subs: make(map[int]*pushSub)}
}

func (h *pushHub) Subscribe(onNext func(interface{}), onError func(error), onComplete func()) func() {
	return h.subscribe(onNext, onError, onComplete, false)
}

// subscribeReplay is Subscribe plus, for a hub holding a latched value, a synchronous
// replay of that value to onNext before the subscriber is registered for future emits.
// The replay runs with the hub locked so it cannot interleave with a concurrent Emit.
func (h *pushHub) subscribeReplay(onNext func(interface{}), onError func(error), onComplete func()) func() {
	return h.subscribe(onNext, onError, onComplete, true)
}

func (h *pushHub) subscribe(onNext func(interface{}), onError func(error), onComplete func(), replayLatest bool) func() {
	h.mu.Lock()
	if h.completed {
		h.mu.Unlock()
		if onComplete != nil {
			onComplete()
		}
		return func() {}
	}
	if h.failErr != nil {
		err := h.failErr
		h.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	if replayLatest && h.hasLatest && onNext != nil {
		onNext(h.latest)
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = &pushSub{onNext: onNext, onError: onError, onComplete: onComplete}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *pushHub) Latest() (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLatest
}

func (h *pushHub) snapshot() []*pushSub {
	out := make([]*pushSub, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Emit delivers v to every current subscriber and latches it.
func (h *pushHub) Emit(v interface{}) {
	h.mu.Lock()
	if h.completed || h.failErr != nil {
		h.mu.Unlock()
		return
	}
	h.latest = v
	h.hasLatest = true
	subs := h.snapshot()
	h.mu.Unlock()

	for _, s := range subs {
		if s.onNext != nil {
			s.onNext(v)
		}
	}
}

// Fail terminates the hub with err and clears subscribers; further Emit/Complete are no-ops.
func (h *pushHub) Fail(err error) {
	h.mu.Lock()
	if h.completed || h.failErr != nil {
		h.mu.Unlock()
		return
	}
	h.failErr = err
	subs := h.snapshot()
	h.subs = make(map[int]*pushSub)
	h.mu.Unlock()

	for _, s := range subs {
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// Complete terminates the hub successfully and clears subscribers.
func (h *pushHub) Complete() {
	h.mu.Lock()
	if h.completed || h.failErr != nil {
		h.mu.Unlock()
		return
	}
	h.completed = true
	subs := h.snapshot()
	h.subs = make(map[int]*pushSub)
	h.mu.Unlock()

	for _, s := range subs {
		if s.onComplete != nil {
			s.onComplete()
		}
	}
}

// Stream is a push-source with no latched value: late subscribers only see future emissions.
type Stream struct{ hub *pushHub }

// NewStream creates a Stream and the emit/fail/complete functions that drive it.
func NewStream() (*Stream, func(interface{}), func(error), func()) {
	h := newPushHub()
	return &Stream{hub: h}, h.Emit, h.Fail, h.Complete
}

func (s *Stream) Subscribe(onNext func(interface{}), onError func(error), onComplete func()) func() {
	return s.hub.Subscribe(onNext, onError, onComplete)
}

// Subject is a push-source identical in runtime shape to Stream; the two differ only in the
// declared schema Kind a controller registers them under (see pkg/schema's KindStream vs
// KindSubject), which TypeCache and the client use to decide subscription semantics.
type Subject struct{ hub *pushHub }

// NewSubject creates a Subject and the emit/fail/complete functions that drive it.
func NewSubject() (*Subject, func(interface{}), func(error), func()) {
	h := newPushHub()
	return &Subject{hub: h}, h.Emit, h.Fail, h.Complete
}

func (s *Subject) Subscribe(onNext func(interface{}), onError func(error), onComplete func()) func() {
	return s.hub.Subscribe(onNext, onError, onComplete)
}

// LatchedSubject is a push-source that remembers its latest value for late subscribers.
type LatchedSubject struct{ hub *pushHub }

// NewLatchedSubject creates a LatchedSubject seeded with initial, plus the emit/fail/complete
// functions that drive it.
func NewLatchedSubject(initial interface{}) (*LatchedSubject, func(interface{}), func(error), func()) {
	h := newPushHub()
	h.latest = initial
	h.hasLatest = true
	return &LatchedSubject{hub: h}, h.Emit, h.Fail, h.Complete
}

func (s *LatchedSubject) Subscribe(onNext func(interface{}), onError func(error), onComplete func()) func() {
	return s.hub.subscribeReplay(onNext, onError, onComplete)
}

func (s *LatchedSubject) Latest() (interface{}, bool) {
	return s.hub.Latest()
}

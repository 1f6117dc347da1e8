package action

import "sync"

type changeSub struct {
	onChange func(ChangeEvent)
}

// liveCollection is the untyped implementation behind Collection and TypedCollection.
type liveCollection struct {
	mu     sync.Mutex
	model  interface{}
	state  interface{}
	items  map[string]interface{}
	subs   map[int]*changeSub
	nextID int
}

// NewCollection creates a Collection seeded with model (forwarded verbatim to clients in
// the opening composite) and initialState, together with the set/remove/setState/resnap
// mutators that drive it.
func NewCollection(model interface{}, initialState interface{}) (Collection, func(id string, item interface{}), func(id string), func(state interface{}), func()) {
	c := &liveCollection{model: model, state: initialState, items: make(map[string]interface{}), subs: make(map[int]*changeSub)}

	set := func(id string, item interface{}) {
		c.mu.Lock()
		c.items[id] = item
		subs := c.snapshot()
		c.mu.Unlock()
		event := ChangeEvent{Kind: ChangeKindAdd, ID: id, Item: item}
		for _, s := range subs {
			s.onChange(event)
		}
	}
	remove := func(id string) {
		c.mu.Lock()
		if _, ok := c.items[id]; !ok {
			c.mu.Unlock()
			return
		}
		delete(c.items, id)
		subs := c.snapshot()
		c.mu.Unlock()
		event := ChangeEvent{Kind: ChangeKindRemove, ID: id}
		for _, s := range subs {
			s.onChange(event)
		}
	}
	setState := func(state interface{}) {
		c.mu.Lock()
		c.state = state
		subs := c.snapshot()
		c.mu.Unlock()
		event := ChangeEvent{Kind: ChangeKindState, State: state}
		for _, s := range subs {
			s.onChange(event)
		}
	}
	resnap := func() {
		c.mu.Lock()
		subs := c.snapshot()
		c.mu.Unlock()
		event := ChangeEvent{Kind: ChangeKindSet}
		for _, s := range subs {
			s.onChange(event)
		}
	}
	return c, set, remove, setState, resnap
}

func (c *liveCollection) snapshot() []*changeSub {
	out := make([]*changeSub, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *liveCollection) Model() interface{} { return c.model }

func (c *liveCollection) State() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *liveCollection) Snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]interface{}, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}

func (c *liveCollection) Subscribe(onChange func(ChangeEvent)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = &changeSub{onChange: onChange}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

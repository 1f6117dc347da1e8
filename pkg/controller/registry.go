package controller

import (
	"fmt"
	"sort"
	"sync"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/action-dispatcher/pkg/schema"
)

const logPrefix = "controller:registry"

// Handle is a ClassHandle: an opaque token identifying one registered controller,
// returned by Get and consumed by ActionsOf / ParametersOf / ReturnDescriptorOf /
// Injector.Get. Callers never construct a Handle directly.
type Handle struct {
	id      string
	actions map[string]*Action
}

// ID returns the controller id this Handle was registered under.
func (h *Handle) ID() string { return h.id }

// Config holds registry-wide settings.
type Config struct {
	// ServerVersion gates actions declared with a Since version greater than it out of
	// ActionsOf; nil disables gating (every declared action is visible).
	ServerVersion *masterminds.Version
}

// Registry is the controller registry + injector: it stores registered controller
// instances and their declared actions, and resolves both at dispatch time. Append-only
// after Register calls settle, mirroring TypeCache's own append-only contract.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Handle
	instances   map[string]interface{}
	cfg         Config
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		controllers: make(map[string]*Handle),
		instances:   make(map[string]interface{}),
		cfg:         cfg,
	}
}

// Register adds a controller under id, backed by instance, with its declared actions.
// Registering the same id twice replaces the previous registration; callers normally do
// this once at startup before any dispatch occurs.
func (r *Registry) Register(id string, instance interface{}, actions map[string]*Action) *Handle {
	h := &Handle{id: id, actions: actions}
	r.mu.Lock()
	r.controllers[id] = h
	r.instances[id] = instance
	r.mu.Unlock()
	return h
}

// Get resolves the ClassHandle for a controller id, or (nil, false) if unregistered.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.controllers[id]
	return h, ok
}

// ActionsOf returns the set of action names visible on h, excluding any gated out by a
// Since version beyond the registry's configured ServerVersion.
func (r *Registry) ActionsOf(h *Handle) map[string]struct{} {
	out := make(map[string]struct{}, len(h.actions))
	for name, a := range h.actions {
		if r.gatedOut(a) {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func (r *Registry) gatedOut(a *Action) bool {
	if a.Since == nil || r.cfg.ServerVersion == nil {
		return false
	}
	return a.Since.GreaterThan(r.cfg.ServerVersion)
}

// ParametersOf returns the declared parameters of method on h, in declaration order.
// ok is false if method is not declared or is Since-gated away.
func (r *Registry) ParametersOf(h *Handle, method string) ([]Param, bool) {
	a, ok := h.actions[method]
	if !ok || r.gatedOut(a) {
		return nil, false
	}
	return a.Parameters, true
}

// ReturnDescriptorOf returns the declared return descriptor of method on h (possibly a
// wrapper kind). ok is false if method is not declared or gated away.
func (r *Registry) ReturnDescriptorOf(h *Handle, method string) (*schema.Descriptor, bool) {
	a, ok := h.actions[method]
	if !ok || r.gatedOut(a) {
		return nil, false
	}
	return a.Result, true
}

// ActionOf returns the full Action record, for Invoker's use in calling Invoke. ok is
// false if method is not declared or gated away.
func (r *Registry) ActionOf(h *Handle, method string) (*Action, bool) {
	a, ok := h.actions[method]
	if !ok || r.gatedOut(a) {
		return nil, false
	}
	return a, true
}

// Injector resolves a controller instance from its Handle. Registry.AsInjector returns an
// Injector backed by the singleton instance passed to Register; a caller wanting per-call
// instantiation can supply its own implementation.
type Injector interface {
	Get(h *Handle) (interface{}, error)
}

// GetInstance returns the singleton instance registered under h's id; AsInjector exposes
// it as Injector.Get.
func (r *Registry) GetInstance(h *Handle) (interface{}, error) {
	r.mu.RLock()
	inst, ok := r.instances[h.id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s - no instance registered for controller %q", logPrefix, h.id)
	}
	return inst, nil
}

// singletonInjector adapts Registry.GetInstance to the Injector interface so Registry can
// be passed wherever an Injector is expected without exposing GetInstance as Get (Get is
// already taken by the controller-lookup-by-id method).
type singletonInjector struct{ r *Registry }

func (s *singletonInjector) Get(h *Handle) (interface{}, error) { return s.r.GetInstance(h) }

// AsInjector returns an Injector view of the Registry's singleton instances.
func (r *Registry) AsInjector() Injector { return &singletonInjector{r: r} }

// ControllerIDs returns every registered controller id, sorted, for diagnostics.
func (r *Registry) ControllerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActionCount returns the total number of visible (non-gated) actions across every
// registered controller, for diagnostics (internal/server's /health reply).
func (r *Registry) ActionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, h := range r.controllers {
		n += len(r.ActionsOf(h))
	}
	return n
}

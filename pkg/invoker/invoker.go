// Package invoker decodes, validates, invokes, and classifies one action call into
// exactly one of its four result branches.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/collectionbridge"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
	"github.com/morezero/action-dispatcher/pkg/streamregistry"
	"github.com/morezero/action-dispatcher/pkg/typecache"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

// Authorize gates dispatch before an action's arguments are even decoded. A nil Authorize
// on Invoker means no enforcement (see DESIGN.md's Open Question decision).
type Authorize func(ctx context.Context, controllerID, method string) error

// Invoker wires TypeCache, the controller registry, StreamRegistry and CollectionBridge
// together to service one action-call message end to end.
type Invoker struct {
	registry    *controller.Registry
	types       *typecache.TypeCache
	streams     *streamregistry.Registry
	collections *collectionbridge.Bridge
	injector    controller.Injector
	authorize   Authorize
}

// New creates an Invoker. injector defaults to registry's own singleton injector when nil;
// authorize may be nil.
func New(registry *controller.Registry, types *typecache.TypeCache, streams *streamregistry.Registry, collections *collectionbridge.Bridge, injector controller.Injector, authorize Authorize) *Invoker {
	if injector == nil {
		injector = registry.AsInjector()
	}
	return &Invoker{
		registry:    registry,
		types:       types,
		streams:     streams,
		collections: collections,
		injector:    injector,
		authorize:   authorize,
	}
}

// HandleAction services one TypeAction message: raw must decode to a wire.ActionCallBody.
// Every outbound frame for this call, success or failure, goes through sender.
func (inv *Invoker) HandleAction(ctx context.Context, callID int64, raw json.RawMessage, sender wire.Sender) error {
	ch := wire.NewResponseChannel(callID, sender)

	var call wire.ActionCallBody
	if err := json.Unmarshal(raw, &call); err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "DecodeError", Message: err.Error()})
	}

	if inv.authorize != nil {
		if err := inv.authorize(ctx, call.Controller, call.Method); err != nil {
			return ch.Error(wire.ErrorBody{ClassType: "Unauthorized", Message: err.Error()})
		}
	}

	at, err := inv.types.LoadTypes(call.Controller, call.Method)
	if err != nil {
		return encodeError(ch, err)
	}

	args, err := at.ArgsDecode(call.Args)
	if err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "DecodeError", Message: err.Error()})
	}
	if failures := at.ArgsValidate(args); len(failures) > 0 {
		return ch.Error(wire.ErrorBody{
			ClassType: "ValidationError",
			Message:   "argument validation failed",
			Failures:  toWireFailures(failures),
		})
	}

	h, ok := inv.registry.Get(call.Controller)
	if !ok {
		return encodeError(ch, controller.ErrUnknownController(call.Controller))
	}
	a, ok := inv.registry.ActionOf(h, call.Method)
	if !ok {
		return encodeError(ch, controller.ErrUnknownAction(call.Controller, call.Method))
	}
	instance, err := inv.injector.Get(h)
	if err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "InvocationError", Message: err.Error()})
	}

	result, err := inv.invoke(ctx, a, instance, args)
	if err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "InvocationError", Message: err.Error()})
	}

	if f, isFuture := result.(action.Future); isFuture {
		result, err = inv.await(ctx, f)
		if err != nil {
			return ch.Error(wire.ErrorBody{ClassType: "InvocationError", Message: err.Error()})
		}
	}

	return inv.classify(callID, at, result, sender, ch)
}

// invoke calls a.Invoke, recovering a panic from the controller method itself so that
// one caller's broken handler can never take down the process for every other session.
func (inv *Invoker) invoke(ctx context.Context, a *controller.Action, instance interface{}, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return a.Invoke(ctx, instance, args)
}

// await resolves f, recovering a panic the same way invoke does: f is returned by
// business code, so its Await implementation is arbitrary business code too.
func (inv *Invoker) await(ctx context.Context, f action.Future) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return f.Await(ctx)
}

// classify routes the unwrapped result into exactly one branch, in a fixed order:
// entity-subject, then collection, then push-source, then plain.
func (inv *Invoker) classify(callID int64, at *typecache.ActionTypes, result interface{}, sender wire.Sender, ch *wire.ResponseChannel) error {
	if result == nil {
		return ch.Reply(wire.TypeResponseActionSimple, wire.SimpleResultBody{})
	}

	if es, ok := result.(action.EntitySubject); ok {
		return inv.openEntitySubject(es, ch)
	}
	if coll, ok := result.(action.Collection); ok {
		var release func()
		if r, ok := result.(interface{ Release() }); ok {
			release = r.Release
		}
		return inv.collections.Open(callID, coll, sender, release)
	}
	if ps, ok := result.(action.PushSource); ok {
		return inv.openPushSource(callID, at, ps, sender, ch)
	}
	return ch.Reply(wire.TypeResponseActionSimple, wire.SimpleResultBody{V: result})
}

// openEntitySubject encodes an EntitySubject result as a single ResponseEntity frame
// whose body carries the entity's id alongside its current value ({id, v}). No stream or
// collection state is registered for it.
func (inv *Invoker) openEntitySubject(es action.EntitySubject, ch *wire.ResponseChannel) error {
	latest, _ := es.Latest()
	return ch.Reply(wire.TypeResponseEntity, wire.EntityResultBody{ID: es.EntityID(), V: latest})
}

func (inv *Invoker) openPushSource(callID int64, at *typecache.ActionTypes, ps action.PushSource, sender wire.Sender, ch *wire.ResponseChannel) error {
	inv.streams.Register(callID, ps, at.StreamItemSchema)
	if err := ch.Reply(wire.TypeResponseActionObservable, wire.ObservableAnnouncementBody{Kind: string(at.WrapperKind)}); err != nil {
		return err
	}
	switch at.WrapperKind {
	case schema.KindSubject, schema.KindLatchedSubject:
		inv.streams.AutoSubscribe(callID, sender)
	}
	return nil
}

func encodeError(ch *wire.ResponseChannel, err error) error {
	switch e := err.(type) {
	case *typecache.Error:
		return ch.Error(wire.ErrorBody{ClassType: e.Code, Message: e.Message})
	case *controller.RegistryError:
		return ch.Error(wire.ErrorBody{ClassType: e.Code, Message: e.Message})
	default:
		return ch.Error(wire.ErrorBody{ClassType: "InvocationError", Message: err.Error()})
	}
}

func toWireFailures(fs []schema.Failure) []wire.Failure {
	out := make([]wire.Failure, len(fs))
	for i, f := range fs {
		out[i] = wire.Failure{Path: f.Path, Code: f.Code, Message: f.Message}
	}
	return out
}

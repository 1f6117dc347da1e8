// Package dispatcher wires TypeCache, the controller registry, StreamRegistry,
// CollectionBridge and Invoker together into the single entry point a transport binding
// calls for every inbound wire.Message.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/action-dispatcher/pkg/collectionbridge"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/invoker"
	"github.com/morezero/action-dispatcher/pkg/streamregistry"
	"github.com/morezero/action-dispatcher/pkg/typecache"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

const logPrefix = "dispatcher:dispatcher"

// Dispatcher is the top-level orchestrator a transport binding drives: one HandleMessage
// call per inbound frame, routed to the Invoker for action calls or to StreamRegistry/
// CollectionBridge for the control messages that manage an already-open result.
type Dispatcher struct {
	registry    *controller.Registry
	types       *typecache.TypeCache
	streams     *streamregistry.Registry
	collections *collectionbridge.Bridge
	invoker     *invoker.Invoker
}

// New builds a standalone Dispatcher with its own private TypeCache. It is the right
// choice for a caller that only ever needs one Dispatcher (tests, single-session
// embeddings). A transport binding that serves more than one concurrent client should
// use NewFactory/NewSession instead, so that two sessions reusing the same
// client-assigned call ID never share a StreamRegistry/CollectionBridge entry.
func New(registry *controller.Registry, injector controller.Injector, authorize invoker.Authorize) *Dispatcher {
	return NewFactory(registry, injector, authorize).NewSession()
}

// Factory builds per-session Dispatchers that share one controller.Registry and
// TypeCache — type introspection is immutable once the registry is populated, so it is
// safe and cheap to reuse across every session — while each session gets its own
// StreamRegistry, CollectionBridge and Invoker. Call IDs are assigned by the client, so
// without per-session isolation two concurrently connected clients numbering their calls
// from 1 would clobber each other's open streams and collections.
type Factory struct {
	registry  *controller.Registry
	types     *typecache.TypeCache
	injector  controller.Injector
	authorize invoker.Authorize
}

// NewFactory builds a Factory backed by registry. authorize may be nil (no enforcement);
// injector defaults to registry's own singleton injector when nil.
func NewFactory(registry *controller.Registry, injector controller.Injector, authorize invoker.Authorize) *Factory {
	return &Factory{
		registry:  registry,
		types:     typecache.New(registry),
		injector:  injector,
		authorize: authorize,
	}
}

// NewSession builds a Dispatcher with a fresh StreamRegistry and CollectionBridge,
// sharing this Factory's registry and TypeCache with every other session it has built.
func (f *Factory) NewSession() *Dispatcher {
	streams := streamregistry.New()
	collections := collectionbridge.New()
	inv := invoker.New(f.registry, f.types, streams, collections, f.injector, f.authorize)
	return &Dispatcher{
		registry:    f.registry,
		types:       f.types,
		streams:     streams,
		collections: collections,
		invoker:     inv,
	}
}

// HandleMessage routes one inbound message to its handler. sender delivers every outbound
// frame this call produces, now or later (a push-source or collection result keeps using
// sender for as long as it stays subscribed).
func (d *Dispatcher) HandleMessage(ctx context.Context, msg wire.Message, sender wire.Sender) error {
	switch msg.Type {
	case wire.TypeAction:
		return d.invoker.HandleAction(ctx, msg.ID, msg.Body, sender)
	case wire.TypeActionType:
		return d.handleActionTypes(msg, sender)
	case wire.TypeActionObservableSubscribe:
		return d.handleSubscribe(msg, sender)
	case wire.TypeActionObservableUnsubscribe:
		return d.handleUnsubscribe(msg, sender)
	case wire.TypeActionObservableSubjectUnsubscribe:
		return d.handleSubjectUnsubscribe(msg, sender)
	case wire.TypeResponseActionCollectionUnsubscribe:
		return d.handleCollectionUnsubscribe(msg, sender)
	default:
		ch := wire.NewResponseChannel(msg.ID, sender)
		return ch.Error(wire.ErrorBody{ClassType: "UnknownMessageType", Message: fmt.Sprintf("%s - unrecognized message type %q", logPrefix, msg.Type)})
	}
}

// handleActionTypes services the type-introspection endpoint: it loads the ActionTypes
// for the named controller/method (without invoking anything) and mirrors its parameter
// and result shapes back to the caller.
func (d *Dispatcher) handleActionTypes(msg wire.Message, sender wire.Sender) error {
	ch := wire.NewResponseChannel(msg.ID, sender)

	var call wire.ActionCallBody
	if err := json.Unmarshal(msg.Body, &call); err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "DecodeError", Message: err.Error()})
	}

	at, err := d.types.LoadTypes(call.Controller, call.Method)
	if err != nil {
		return encodeControlError(ch, err)
	}

	params := make([]wire.ParamInfo, len(at.Parameters))
	for i, p := range at.Parameters {
		params[i] = wire.ParamInfo{Name: p.Name, Optional: p.Optional, Shape: p.Desc.Shape()}
	}

	return ch.Reply(wire.TypeResponseActionType, wire.ActionTypeInfoBody{
		Controller:  call.Controller,
		Method:      call.Method,
		Parameters:  params,
		Result:      at.ResultProperty.Shape(),
		WrapperKind: string(at.WrapperKind),
	})
}

func (d *Dispatcher) handleSubscribe(msg wire.Message, sender wire.Sender) error {
	ch := wire.NewResponseChannel(msg.ID, sender)
	var body wire.SubscribeBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "DecodeError", Message: err.Error()})
	}
	if err := d.streams.Subscribe(msg.ID, body.ID, sender); err != nil {
		return encodeControlError(ch, err)
	}
	return nil
}

func (d *Dispatcher) handleUnsubscribe(msg wire.Message, sender wire.Sender) error {
	ch := wire.NewResponseChannel(msg.ID, sender)
	var body wire.UnsubscribeBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return ch.Error(wire.ErrorBody{ClassType: "DecodeError", Message: err.Error()})
	}
	if err := d.streams.Unsubscribe(msg.ID, body.ID); err != nil {
		return encodeControlError(ch, err)
	}
	return nil
}

func (d *Dispatcher) handleSubjectUnsubscribe(msg wire.Message, sender wire.Sender) error {
	ch := wire.NewResponseChannel(msg.ID, sender)
	if err := d.streams.UnsubscribeSubject(msg.ID); err != nil {
		return encodeControlError(ch, err)
	}
	return nil
}

func (d *Dispatcher) handleCollectionUnsubscribe(msg wire.Message, sender wire.Sender) error {
	ch := wire.NewResponseChannel(msg.ID, sender)
	if err := d.collections.Unsubscribe(msg.ID); err != nil {
		return encodeControlError(ch, err)
	}
	return nil
}

func encodeControlError(ch *wire.ResponseChannel, err error) error {
	switch e := err.(type) {
	case *typecache.Error:
		return ch.Error(wire.ErrorBody{ClassType: e.Code, Message: e.Message})
	case *controller.RegistryError:
		return ch.Error(wire.ErrorBody{ClassType: e.Code, Message: e.Message})
	default:
		return ch.Error(wire.ErrorBody{ClassType: "ControlError", Message: err.Error()})
	}
}

// Close tears down every open StreamEntry and CollectionEntry, for a transport's
// connection-close path.
func (d *Dispatcher) Close() {
	d.streams.CloseAll()
	d.collections.CloseAll()
}

// Registry exposes the Dispatcher's controller registry, for a transport binding that
// wants to register controllers before serving.
func (d *Dispatcher) Registry() *controller.Registry { return d.registry }

// Package wire defines the message envelope and outbound frame types that cross the
// transport boundary, independent of any particular transport implementation.
package wire

import (
	"encoding/json"

	"github.com/morezero/action-dispatcher/pkg/schema"
)

// MessageType is the closed enumeration of inbound and outbound frame kinds.
type MessageType string

// Inbound message types.
const (
	TypeActionType                         MessageType = "action-type"
	TypeAction                             MessageType = "action"
	TypeActionObservableSubscribe          MessageType = "action-observable-subscribe"
	TypeActionObservableUnsubscribe        MessageType = "action-observable-unsubscribe"
	TypeActionObservableSubjectUnsubscribe MessageType = "action-observable-subject-unsubscribe"
	TypeResponseActionCollectionUnsubscribe MessageType = "response-action-collection-unsubscribe"
)

// Outbound message types.
const (
	TypeResponseActionType               MessageType = "response-action-type"
	TypeResponseActionSimple             MessageType = "response-action-simple"
	TypeResponseEntity                   MessageType = "response-entity"
	TypeResponseActionObservable         MessageType = "response-action-observable"
	TypeResponseActionObservableNext     MessageType = "response-action-observable-next"
	TypeResponseActionObservableError    MessageType = "response-action-observable-error"
	TypeResponseActionObservableComplete MessageType = "response-action-observable-complete"
	TypeResponseActionCollection         MessageType = "response-action-collection"
	TypeResponseActionCollectionModel    MessageType = "response-action-collection-model"
	TypeResponseActionCollectionState    MessageType = "response-action-collection-state"
	TypeResponseActionCollectionSet      MessageType = "response-action-collection-set"
	TypeResponseActionCollectionChange   MessageType = "response-action-collection-change"
	TypeResponseActionCollectionAdd      MessageType = "response-action-collection-add"
	TypeResponseActionCollectionRemove   MessageType = "response-action-collection-remove"
	TypeError                            MessageType = "error"
)

// Message is the inbound envelope: a call ID, a type tag, and an opaque body decoded
// against a schema chosen by Type.
type Message struct {
	ID   int64           `json:"id"`
	Type MessageType     `json:"type"`
	Body json.RawMessage `json:"body"`
}

// ActionCallBody is the body of a TypeAction or TypeActionType message.
type ActionCallBody struct {
	Controller string          `json:"controller"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// SubscribeBody is the body of a TypeActionObservableSubscribe message.
type SubscribeBody struct {
	ID int64 `json:"id"`
}

// UnsubscribeBody is the body of TypeActionObservableUnsubscribe /
// TypeActionObservableSubjectUnsubscribe / TypeResponseActionCollectionUnsubscribe.
type UnsubscribeBody struct {
	ID int64 `json:"id,omitempty"`
}

// ActionTypeInfoBody is the body of a TypeResponseActionType reply: the type-introspection
// mirror of an action's declared parameters and return shape.
type ActionTypeInfoBody struct {
	Controller  string          `json:"controller"`
	Method      string          `json:"method"`
	Parameters  []ParamInfo     `json:"parameters"`
	Result      *schema.Shape   `json:"result"`
	WrapperKind string          `json:"wrapperKind,omitempty"`
}

// ParamInfo is one parameter's JSON-safe shape within ActionTypeInfoBody.
type ParamInfo struct {
	Name     string        `json:"name"`
	Optional bool          `json:"optional,omitempty"`
	Shape    *schema.Shape `json:"shape"`
}

// Frame is one outbound unit: either a standalone frame or, when Sub is non-nil, a
// composite frame carrying an ordered sequence of sub-frames delivered atomically.
type Frame struct {
	ID   int64       `json:"id"`
	Type MessageType `json:"type"`
	Body interface{} `json:"body,omitempty"`
	Sub  []Frame     `json:"sub,omitempty"`
}

// StreamItemBody is the wire shape `{ id, v }` for a value delivered on a subscription,
// where id is the subscription ID (not the call ID).
type StreamItemBody struct {
	ID int64       `json:"id"`
	V  interface{} `json:"v,omitempty"`
}

// CollectionRemoveBody is the wire shape for a batch of removed item IDs.
type CollectionRemoveBody struct {
	IDs []interface{} `json:"ids"`
}

// ObservableAnnouncementBody tells the client which push-source shape to materialize.
type ObservableAnnouncementBody struct {
	Kind string `json:"type"`
}

// SimpleResultBody is the wire shape `{ v }` for a plain result.
type SimpleResultBody struct {
	V interface{} `json:"v,omitempty"`
}

// EntityResultBody is the wire shape `{ id, v }` for the opening frame of an
// entity-subject result.
type EntityResultBody struct {
	ID string      `json:"id"`
	V  interface{} `json:"v,omitempty"`
}

// ErrorBody is the wire shape for an Error frame.
type ErrorBody struct {
	ClassType string      `json:"classType,omitempty"`
	Message   string      `json:"message"`
	Stack     string      `json:"stack,omitempty"`
	Failures  []Failure   `json:"failures,omitempty"`
}

// Failure is one validation failure, `{ path, code, message }`.
type Failure struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

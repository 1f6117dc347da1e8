// Package controller implements the controller registry and dependency-injection
// collaborators: a place to register controller instances and their declared actions,
// and to resolve both at dispatch time.
package controller

import (
	"context"
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/action-dispatcher/pkg/schema"
)

// Param is one declared parameter of an action, in declaration order.
type Param struct {
	Name     string
	Desc     *schema.Descriptor
	Optional bool
}

// ActionFunc is the glue a controller author writes to invoke one declared action against
// a resolved controller instance with decoded, validated, positionally-ordered arguments.
type ActionFunc func(ctx context.Context, instance interface{}, args []interface{}) (interface{}, error)

// Action is one controller method as declared to the registry: its parameters, its
// declared return descriptor (possibly a wrapper kind), the Go glue that invokes it, and
// an optional Since version gating its visibility.
type Action struct {
	Parameters []Param
	Result     *schema.Descriptor
	Invoke     ActionFunc
	Since      *masterminds.Version
}

// RegistryError is the structured error kind ErrorEncoder maps to a wire frame.
type RegistryError struct {
	Code    string
	Message string
}

func (e *RegistryError) Error() string { return e.Code + ": " + e.Message }

// ErrUnknownController reports that no controller is registered under id. Registry.Get
// itself signals that case with ok == false; the Invoker turns it into this error.
func ErrUnknownController(id string) *RegistryError {
	return &RegistryError{Code: "UnknownController", Message: fmt.Sprintf("no controller registered for id %q", id)}
}

// ErrUnknownAction is returned when a controller has no declared action under method (or
// it is Since-gated away from the current server version).
func ErrUnknownAction(controllerID, method string) *RegistryError {
	return &RegistryError{Code: "UnknownAction", Message: fmt.Sprintf("controller %q has no action %q", controllerID, method)}
}

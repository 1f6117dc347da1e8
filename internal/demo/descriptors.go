// Package demo registers a handful of controllers exercising every branch Invoker can
// take: plain values and futures (Calc), a stream (Clock), a subject and a latched
// subject (Ticker), a Postgres-backed collection (Orders) and a Postgres-backed
// entity-subject (Users).
package demo

import (
	"reflect"

	"github.com/morezero/action-dispatcher/pkg/schema"
)

func intDesc() *schema.Descriptor {
	return &schema.Descriptor{Kind: schema.KindNumber, GoType: reflect.TypeOf(0)}
}

func stringDesc() *schema.Descriptor {
	return &schema.Descriptor{Kind: schema.KindString, GoType: reflect.TypeOf("")}
}

func orderDesc() *schema.Descriptor {
	obj := schema.NewObject("order")
	obj.Register("id", stringDesc())
	obj.Register("customer", stringDesc())
	obj.Register("totalCents", intDesc())
	obj.Register("status", stringDesc())
	return obj
}

func userDesc() *schema.Descriptor {
	obj := schema.NewObject("user")
	obj.Register("id", stringDesc())
	obj.Register("displayName", stringDesc())
	obj.Register("status", stringDesc())
	return obj
}

package transport

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"
	commsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/schema"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

const transportTestPrefix = "transport:transport_test"

// startTestServer boots an in-process NATS server on port and returns a connected client
// plus a cleanup that tears both down.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()
	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", transportTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal(transportTestPrefix + " - server failed to start")
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", transportTestPrefix, err)
	}
	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
	return nc, cleanup
}

type stubCalc struct{}

func (stubCalc) Add(a, b int) int { return a + b }

func intDesc() *schema.Descriptor {
	return &schema.Descriptor{Kind: schema.KindNumber, GoType: reflect.TypeOf(0)}
}

func newTestRegistry() *controller.Registry {
	reg := controller.NewRegistry(controller.Config{})
	reg.Register("calc", &stubCalc{}, map[string]*controller.Action{
		"add": {
			Parameters: []controller.Param{
				{Name: "a", Desc: intDesc()},
				{Name: "b", Desc: intDesc()},
			},
			Result: intDesc(),
			Invoke: func(_ context.Context, instance interface{}, args []interface{}) (interface{}, error) {
				c := instance.(*stubCalc)
				return c.Add(args[0].(int), args[1].(int)), nil
			},
		},
	})
	return reg
}

func connect(t *testing.T, nc *comms.Conn, baseSubject string) connectReply {
	t.Helper()
	resp, err := nc.Request(commsutil.SubjectConnect(baseSubject), nil, 2*time.Second)
	if err != nil {
		t.Fatalf("%s - connect request failed: %v", transportTestPrefix, err)
	}
	var reply connectReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatalf("%s - failed to decode connect reply: %v", transportTestPrefix, err)
	}
	return reply
}

func TestTransport_ConnectThenActionCallRoundTrip(t *testing.T) {
	nc, cleanup := startTestServer(t, 14222)
	defer cleanup()

	reg := newTestRegistry()
	factory := dispatcher.NewFactory(reg, nil, nil)
	tr := New(nc, factory, "dispatcher.actions", 0)
	if err := tr.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", transportTestPrefix, err)
	}
	defer tr.Close()

	session := connect(t, nc, "dispatcher.actions")
	if session.SessionID == "" {
		t.Fatal(transportTestPrefix + " - expected a non-empty session id")
	}

	frames := make(chan wire.Frame, 4)
	sub, err := nc.Subscribe(session.Out, func(m *comms.Msg) {
		var fr wire.Frame
		if err := json.Unmarshal(m.Data, &fr); err != nil {
			t.Errorf("%s - failed to decode outbound frame: %v", transportTestPrefix, err)
			return
		}
		frames <- fr
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe to out subject: %v", transportTestPrefix, err)
	}
	defer sub.Unsubscribe()

	msg := wire.Message{
		ID:   1,
		Type: wire.TypeAction,
		Body: json.RawMessage(`{"controller":"calc","method":"add","args":{"a":2,"b":3}}`),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("%s - failed to encode message: %v", transportTestPrefix, err)
	}
	if err := nc.Publish(session.In, data); err != nil {
		t.Fatalf("%s - failed to publish inbound message: %v", transportTestPrefix, err)
	}

	select {
	case fr := <-frames:
		if fr.Type != wire.TypeResponseActionSimple {
			t.Fatalf("%s - frame type = %v, want ResponseActionSimple", transportTestPrefix, fr.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal(transportTestPrefix + " - timed out waiting for response frame")
	}
}

func TestTransport_DistinctConnectsGetDistinctSessions(t *testing.T) {
	nc, cleanup := startTestServer(t, 14223)
	defer cleanup()

	reg := newTestRegistry()
	factory := dispatcher.NewFactory(reg, nil, nil)
	tr := New(nc, factory, "dispatcher.actions", 0)
	if err := tr.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", transportTestPrefix, err)
	}
	defer tr.Close()

	s1 := connect(t, nc, "dispatcher.actions")
	s2 := connect(t, nc, "dispatcher.actions")
	if s1.SessionID == s2.SessionID {
		t.Fatal(transportTestPrefix + " - expected distinct session ids across connects")
	}
	if s1.In == s2.In || s1.Out == s2.Out {
		t.Fatal(transportTestPrefix + " - expected distinct session subjects across connects")
	}
}

func streamAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindStream, Of: intDesc()},
		Invoke: func(_ context.Context, _ interface{}, _ []interface{}) (interface{}, error) {
			s, emit, _, _ := action.TypedStream[int]()
			go func() {
				time.Sleep(300 * time.Millisecond)
				emit(7)
			}()
			return s, nil
		},
	}
}

// TestTransport_TwoSessionsReusingCallIDAndSubscriptionIDDoNotCollide is the concrete
// scenario a single shared Dispatcher would get wrong: two independently connected
// clients each number their stream-opening call as call ID 1 and then subscribe to it
// with subscription ID 5 — the normal case, since every client numbers its own calls
// from scratch. With one Dispatcher per session, both registrations land in distinct
// StreamRegistry instances, so neither ErrSubscriptionExists nor cross-delivery can occur.
func TestTransport_TwoSessionsReusingCallIDAndSubscriptionIDDoNotCollide(t *testing.T) {
	nc, cleanup := startTestServer(t, 14225)
	defer cleanup()

	reg := controller.NewRegistry(controller.Config{})
	reg.Register("ticker", &stubCalc{}, map[string]*controller.Action{"watch": streamAction()})
	factory := dispatcher.NewFactory(reg, nil, nil)
	tr := New(nc, factory, "dispatcher.actions", 0)
	if err := tr.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", transportTestPrefix, err)
	}
	defer tr.Close()

	s1 := connect(t, nc, "dispatcher.actions")
	s2 := connect(t, nc, "dispatcher.actions")

	framesA := make(chan wire.Frame, 4)
	subA, _ := nc.Subscribe(s1.Out, func(m *comms.Msg) {
		var fr wire.Frame
		_ = json.Unmarshal(m.Data, &fr)
		framesA <- fr
	})
	defer subA.Unsubscribe()

	framesB := make(chan wire.Frame, 4)
	subB, _ := nc.Subscribe(s2.Out, func(m *comms.Msg) {
		var fr wire.Frame
		_ = json.Unmarshal(m.Data, &fr)
		framesB <- fr
	})
	defer subB.Unsubscribe()

	call := wire.Message{ID: 1, Type: wire.TypeAction, Body: json.RawMessage(`{"controller":"ticker","method":"watch"}`)}
	data, _ := json.Marshal(call)
	_ = nc.Publish(s1.In, data)
	_ = nc.Publish(s2.In, data)

	waitFrame := func(frames chan wire.Frame, want wire.MessageType) {
		select {
		case fr := <-frames:
			if fr.Type != want {
				t.Fatalf("%s - frame type = %v, want %v", transportTestPrefix, fr.Type, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s - timed out waiting for %v", transportTestPrefix, want)
		}
	}
	waitFrame(framesA, wire.TypeResponseActionObservable)
	waitFrame(framesB, wire.TypeResponseActionObservable)

	subscribe := wire.Message{ID: 1, Type: wire.TypeActionObservableSubscribe, Body: json.RawMessage(`{"id":5}`)}
	sdata, _ := json.Marshal(subscribe)
	_ = nc.Publish(s1.In, sdata)
	_ = nc.Publish(s2.In, sdata)

	waitFrame(framesA, wire.TypeResponseActionObservableNext)
	waitFrame(framesB, wire.TypeResponseActionObservableNext)
}

// TestTransport_CloseSessionOnlyTearsDownItsOwnDispatcher confirms CloseSession does not
// reach into a different session's streams: closing one session's Dispatcher must leave
// another session's already-open stream subscription delivering.
func TestTransport_CloseSessionOnlyTearsDownItsOwnDispatcher(t *testing.T) {
	nc, cleanup := startTestServer(t, 14226)
	defer cleanup()

	reg := controller.NewRegistry(controller.Config{})
	reg.Register("ticker", &stubCalc{}, map[string]*controller.Action{"watch": streamAction()})
	factory := dispatcher.NewFactory(reg, nil, nil)
	tr := New(nc, factory, "dispatcher.actions", 0)
	if err := tr.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", transportTestPrefix, err)
	}
	defer tr.Close()

	s1 := connect(t, nc, "dispatcher.actions")
	s2 := connect(t, nc, "dispatcher.actions")

	framesB := make(chan wire.Frame, 4)
	subB, _ := nc.Subscribe(s2.Out, func(m *comms.Msg) {
		var fr wire.Frame
		_ = json.Unmarshal(m.Data, &fr)
		framesB <- fr
	})
	defer subB.Unsubscribe()

	call := wire.Message{ID: 1, Type: wire.TypeAction, Body: json.RawMessage(`{"controller":"ticker","method":"watch"}`)}
	data, _ := json.Marshal(call)
	_ = nc.Publish(s1.In, data)
	_ = nc.Publish(s2.In, data)
	time.Sleep(50 * time.Millisecond)

	select {
	case fr := <-framesB:
		if fr.Type != wire.TypeResponseActionObservable {
			t.Fatalf("%s - frame type = %v, want ResponseActionObservable", transportTestPrefix, fr.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal(transportTestPrefix + " - timed out waiting for the stream announcement")
	}

	subscribe := wire.Message{ID: 1, Type: wire.TypeActionObservableSubscribe, Body: json.RawMessage(`{"id":5}`)}
	sdata, _ := json.Marshal(subscribe)
	_ = nc.Publish(s2.In, sdata)

	tr.CloseSession(s1.SessionID)

	select {
	case fr := <-framesB:
		if fr.Type != wire.TypeResponseActionObservableNext {
			t.Fatalf("%s - frame type = %v, want ResponseActionObservableNext", transportTestPrefix, fr.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal(transportTestPrefix + " - closing session 1 tore down session 2's stream")
	}
}

func TestClose_ClosesDispatcherAndStopsAcceptingConnects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14224)
	defer cleanup()

	reg := newTestRegistry()
	factory := dispatcher.NewFactory(reg, nil, nil)
	tr := New(nc, factory, "dispatcher.actions", 0)
	if err := tr.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", transportTestPrefix, err)
	}
	tr.Close()

	if _, err := nc.Request(commsutil.SubjectConnect("dispatcher.actions"), nil, 300*time.Millisecond); err == nil {
		t.Fatal(transportTestPrefix + " - expected connect requests to fail after Close")
	}
}

// Package transport is the NATS binding for the Dispatcher: a client opens a session
// once via a connect request, then exchanges wire.Message/wire.Frame values over a pair
// of subjects derived from that session.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"

	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/wire"
)

const logPrefix = "transport:transport"

// defaultReapInterval is how often Close-by-idle-timeout scans run when a Transport is
// built with a positive idle timeout; New always uses it as the reap interval.
const defaultReapInterval = 30 * time.Second

// connectReply is the body of a reply to SubjectConnect: the session-scoped subjects the
// client must use from then on.
type connectReply struct {
	SessionID string `json:"sessionId"`
	In        string `json:"in"`
	Out       string `json:"out"`
}

// natsSender publishes outbound Frames to one session's out subject.
type natsSender struct {
	nc      *comms.Conn
	subject string
}

func (s *natsSender) Send(fr wire.Frame) error {
	data, err := commsutil.EncodePayload(fr)
	if err != nil {
		return fmt.Errorf("%s - encode frame: %w", logPrefix, err)
	}
	return s.nc.Publish(s.subject, data)
}

// session is one connected client's state: its own Dispatcher (so its StreamRegistry/
// CollectionBridge never collides with another session's), the inbound subscription
// backing it, and a last-activity timestamp used to detect an abandoned client.
type session struct {
	sub  *comms.Subscription
	disp *dispatcher.Dispatcher

	mu           sync.Mutex
	lastActivity time.Time
}

func newSession(disp *dispatcher.Dispatcher) *session {
	return &session{disp: disp, lastActivity: time.Now()}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Transport owns the NATS subscriptions backing every connected session and the
// per-session Dispatcher it drives.
type Transport struct {
	nc          *comms.Conn
	factory     *dispatcher.Factory
	baseSubject string

	// idleTimeout, when positive, is the inactivity window after which a session is
	// treated as disconnected and torn down. NATS pub/sub gives no connection-level
	// disconnect event for a logical session multiplexed over a shared *comms.Conn, so
	// an idle reaper is this transport's disconnect signal.
	idleTimeout  time.Duration
	reapInterval time.Duration
	stopReap     chan struct{}
	reapDone     chan struct{}

	connectSub *comms.Subscription

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a Transport bound to nc and baseSubject, handing each connecting client a
// Dispatcher built from factory. idleTimeout is how long a session may go without an
// inbound message before it is torn down as abandoned; zero disables reaping.
func New(nc *comms.Conn, factory *dispatcher.Factory, baseSubject string, idleTimeout time.Duration) *Transport {
	return &Transport{
		nc:           nc,
		factory:      factory,
		baseSubject:  baseSubject,
		idleTimeout:  idleTimeout,
		reapInterval: defaultReapInterval,
		sessions:     make(map[string]*session),
	}
}

// Start subscribes to the connect subject so clients can open sessions, and starts the
// idle-session reaper if this Transport was built with a positive idle timeout.
func (t *Transport) Start() error {
	sub, err := t.nc.Subscribe(commsutil.SubjectConnect(t.baseSubject), t.handleConnect)
	if err != nil {
		return fmt.Errorf("%s - subscribe to connect subject: %w", logPrefix, err)
	}
	t.connectSub = sub
	slog.Info(fmt.Sprintf("%s - listening for sessions on %s", logPrefix, commsutil.SubjectConnect(t.baseSubject)))

	if t.idleTimeout > 0 {
		t.stopReap = make(chan struct{})
		t.reapDone = make(chan struct{})
		go t.reapIdleSessions()
	}
	return nil
}

func (t *Transport) reapIdleSessions() {
	defer close(t.reapDone)
	ticker := time.NewTicker(t.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopReap:
			return
		case <-ticker.C:
			t.closeIdleSessions()
		}
	}
}

func (t *Transport) closeIdleSessions() {
	t.mu.Lock()
	var idle []string
	for id, sess := range t.sessions {
		if sess.idleFor() > t.idleTimeout {
			idle = append(idle, id)
		}
	}
	t.mu.Unlock()

	for _, id := range idle {
		slog.Info(fmt.Sprintf("%s - session %s idle for over %s, treating as disconnected", logPrefix, id, t.idleTimeout))
		t.CloseSession(id)
	}
}

func (t *Transport) handleConnect(msg *comms.Msg) {
	sessionID := nuid.Next()
	inSubject := commsutil.SessionInSubject(t.baseSubject, sessionID)
	outSubject := commsutil.SessionOutSubject(t.baseSubject, sessionID)
	sender := &natsSender{nc: t.nc, subject: outSubject}

	disp := t.factory.NewSession()
	sess := newSession(disp)

	sub, err := t.nc.Subscribe(inSubject, func(m *comms.Msg) {
		sess.touch()
		t.handleInbound(m, sender, disp)
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to open session %s: %v", logPrefix, sessionID, err))
		return
	}
	sess.sub = sub

	t.mu.Lock()
	t.sessions[sessionID] = sess
	t.mu.Unlock()

	reply, err := commsutil.EncodePayload(connectReply{SessionID: sessionID, In: inSubject, Out: outSubject})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode connect reply: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(reply); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to send connect reply: %v", logPrefix, err))
	}
	slog.Info(fmt.Sprintf("%s - session %s opened", logPrefix, sessionID))
}

func (t *Transport) handleInbound(m *comms.Msg, sender *natsSender, disp *dispatcher.Dispatcher) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - recovered panic handling inbound message: %v", logPrefix, r))
		}
	}()

	var message wire.Message
	if err := commsutil.DecodePayload(m.Data, &message); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode inbound message: %v", logPrefix, err))
		return
	}
	if err := disp.HandleMessage(context.Background(), message, sender); err != nil {
		slog.Error(fmt.Sprintf("%s - HandleMessage for call %d failed: %v", logPrefix, message.ID, err))
	}
}

// CloseSession tears down one session's inbound subscription and its own Dispatcher
// state (that session's streams and collections only, not any other session's).
func (t *Transport) CloseSession(sessionID string) {
	t.mu.Lock()
	sess, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if !ok {
		return
	}
	if sess.sub != nil {
		_ = sess.sub.Unsubscribe()
	}
	sess.disp.Close()
	slog.Info(fmt.Sprintf("%s - closed session %s", logPrefix, sessionID))
}

// Close tears down every open session, each with its own Dispatcher, and the connect
// subscription. It does not close the underlying NATS connection, which the caller owns.
func (t *Transport) Close() {
	if t.connectSub != nil {
		_ = t.connectSub.Unsubscribe()
	}
	if t.stopReap != nil {
		close(t.stopReap)
		<-t.reapDone
	}

	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*session)
	t.mu.Unlock()

	for id, sess := range sessions {
		if sess.sub != nil {
			_ = sess.sub.Unsubscribe()
		}
		sess.disp.Close()
		slog.Debug(fmt.Sprintf("%s - closed session %s", logPrefix, id))
	}
}

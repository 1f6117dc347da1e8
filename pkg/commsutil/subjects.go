package commsutil

import "fmt"

// SubjectConnect is the well-known subject a client requests once to open a session;
// the reply carries the session-scoped in/out subjects Session derives below.
func SubjectConnect(base string) string {
	return base + ".connect"
}

// SessionInSubject is the subject a connected client publishes inbound wire.Message
// frames to for sessionID.
func SessionInSubject(base, sessionID string) string {
	return fmt.Sprintf("%s.session.%s.in", base, sessionID)
}

// SessionOutSubject is the subject the server publishes outbound wire.Frame values to for
// sessionID; the client subscribes to it once, right after connecting.
func SessionOutSubject(base, sessionID string) string {
	return fmt.Sprintf("%s.session.%s.out", base, sessionID)
}

package relay

import "context"

// PresenceMirror projects local session and membership changes into a
// shared store so operators can see cluster-wide state. It is pure
// observability: every method is best-effort and the relay never
// reads it back for correctness.
type PresenceMirror interface {
	SessionConnected(ctx context.Context, sessionID, displayName string)
	SessionDisconnected(ctx context.Context, sessionID string)
	Joined(ctx context.Context, roomID, sessionID string)
	Left(ctx context.Context, roomID, sessionID string)
}

// NoopPresence is the mirror used when presence is disabled.
type NoopPresence struct{}

func (NoopPresence) SessionConnected(context.Context, string, string) {}
func (NoopPresence) SessionDisconnected(context.Context, string)      {}
func (NoopPresence) Joined(context.Context, string, string)           {}
func (NoopPresence) Left(context.Context, string, string)             {}

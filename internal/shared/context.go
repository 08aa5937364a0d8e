package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Actor is the authenticated subject of a request. Exactly one of
// ScholarID or FacultyID is set; ActingRole carries the single role the
// subject selected for this session. Services receive the Actor explicitly
// on every call instead of reading a shared store.
type Actor struct {
	UserID     int64
	ScholarID  int64
	FacultyID  int64
	ActingRole string
}

// IsScholar reports whether the actor is a scholarship recipient.
func (a Actor) IsScholar() bool {
	return a.ScholarID != 0
}

// IsFaculty reports whether the actor is a faculty member.
func (a Actor) IsFaculty() bool {
	return a.FacultyID != 0
}

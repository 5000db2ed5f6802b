// internal/auth/context.go
//
// Acting-user helpers.
//
// Context
// -------
// Column normalization needs to know *who* is submitting: a readonly field
// is only writable by editors and above, by signup submissions, and by
// internal function calls.  The HTTP layer attaches an Actor once per
// request (see acl.Resolve); the write path reads it back.
//
// Usage
// -----
//
//	ctx = auth.WithActor(ctx, auth.Actor{UserID: 7, Capability: auth.Editor})
//	a := auth.ActorFrom(ctx)     // zero Actor when absent
//	if a.AtLeast(auth.Editor) { … }
//
// Notes
// -----
// • Capabilities are ordered; comparisons use AtLeast, never ==.
// • Oxford commas, two spaces after periods.

package auth

import "context"

// Capability is an ordered privilege level.
type Capability int

const (
	None Capability = iota
	Subscriber
	Contributor
	Author
	Editor
	Administrator
)

var capNames = [...]string{"none", "subscriber", "contributor", "author", "editor", "administrator"}

func (c Capability) String() string {
	if c < None || int(c) >= len(capNames) {
		return "unknown"
	}
	return capNames[c]
}

// ParseCapability maps a role name to its Capability.  Unknown names map
// to None.
func ParseCapability(name string) Capability {
	for i, n := range capNames {
		if n == name {
			return Capability(i)
		}
	}
	return None
}

// Actor is the user on whose behalf a submission runs.
type Actor struct {
	UserID     int64
	Capability Capability
}

// AtLeast reports whether the actor holds c or better.
func (a Actor) AtLeast(c Capability) bool { return a.Capability >= c }

// actorKey is unexported to avoid context-key collisions.
type actorKey struct{}

// WithActor returns a new context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom extracts the Actor from ctx.  It returns the zero Actor
// (anonymous, capability None) when nothing is set.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// WithUser is shorthand for an actor whose capability is not yet known.
func WithUser(ctx context.Context, userID int64) context.Context {
	return WithActor(ctx, Actor{UserID: userID})
}

// UserID extracts the user id from ctx.  It returns (0, false) when no
// authenticated user is set.
func UserID(ctx context.Context) (int64, bool) {
	a := ActorFrom(ctx)
	return a.UserID, a.UserID != 0
}

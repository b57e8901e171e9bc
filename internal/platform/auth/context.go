package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ActorIDKey   contextKey = "actor_id"
	RolesKey     contextKey = "actor_roles"
	SessionIDKey contextKey = "session_id"
	OriginKey    contextKey = "request_origin"
)

// ContextWithActor returns ctx carrying the authenticated actor, roles,
// session id and request origin. Core services read the acting identity from
// this explicit context instead of any ambient session state.
func ContextWithActor(ctx context.Context, actorID uuid.UUID, roles []string, sessionID, origin string) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, actorID)
	ctx = context.WithValue(ctx, RolesKey, roles)
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	ctx = context.WithValue(ctx, OriginKey, origin)
	return ctx
}

// ActorFromContext returns the authenticated actor id, or uuid.Nil when the
// context carries none (system actions).
func ActorFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ActorIDKey).(uuid.UUID)
	return id
}

// RolesFromContext returns the roles of the authenticated actor.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(RolesKey).([]string)
	return roles
}

// SessionIDFromContext returns the current session id, or "".
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(SessionIDKey).(string)
	return sid
}

// OriginFromContext returns the remote address the request came from, or "".
func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(OriginKey).(string)
	return origin
}

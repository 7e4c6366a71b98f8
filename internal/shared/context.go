package shared

import (
	"context"
	"net/http"
	"strconv"
)

type sessionContextKey struct{}

type actorContextKey struct{}

// Actor identifies the partner performing a request.
type Actor struct {
	UserID    int64
	IP        string
	UserAgent string
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor placed by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.UserID > 0
}

// ActorFromRequest resolves the actor from context, falling back to the session user.
func ActorFromRequest(r *http.Request) Actor {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return actor
	}
	actor := Actor{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
	if sess := SessionFromContext(r.Context()); sess != nil {
		actor.UserID, _ = strconv.ParseInt(sess.User(), 10, 64)
	}
	return actor
}

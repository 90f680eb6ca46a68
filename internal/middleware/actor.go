package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const actorKey contextKey = "actor"

// DefaultActor is recorded when the upstream authorization layer did not
// forward an identity. This core trusts the header as-is; authenticating
// it is the collaborator's job.
const DefaultActor = "system"

// Actor copies the authorized actor id from the X-Actor-Id header into
// the request context for audit attribution.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-Id")
		if actor == "" {
			actor = DefaultActor
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFrom returns the actor recorded by the Actor middleware.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}

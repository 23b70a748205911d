package shared

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ActorHeader names the request header identifying the operator.
const ActorHeader = "X-Actor"

const maxActorLen = 150

type actorContextKey struct{}

// WithActor stores the acting operator in context. Blank names are ignored.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the operator, or "" for system driven work.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}

// ActorMiddleware copies the X-Actor header into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if utf8.RuneCountInString(actor) > maxActorLen {
			actor = string([]rune(actor)[:maxActorLen])
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

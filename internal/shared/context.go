package shared

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Actor identifies the verified caller of an operation. Authentication
// happens upstream; this carries the already-verified identity only.
type Actor struct {
	ID   uuid.UUID
	Type string
}

// ContextWithActor stores the actor on the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor, reporting whether one was set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}

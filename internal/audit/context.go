package audit

import "context"

// Actor identifies who performed a mutation and from where
type Actor struct {
	ID string
	IP string
}

type actorKey struct{}

// WithActor attaches the authenticated actor to ctx
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor on ctx. ok is false when there is none or its
// id is empty.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

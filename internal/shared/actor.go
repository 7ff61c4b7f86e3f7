package shared

import "context"

// Role enumerates the roles an actor may carry.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
	RoleViewer  Role = "viewer"
)

// Actor identifies who performed a mutation. Authentication happens
// upstream; the core only records the identity it is handed.
type Actor struct {
	Name       string
	Role       Role
	TerminalID string
}

// IsZero reports whether no actor information was supplied.
func (a Actor) IsZero() bool {
	return a.Name == ""
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

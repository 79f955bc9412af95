package shared

import "context"

// Actor is the authenticated caller as carried by the opaque identity claim.
type Actor struct {
	ID    int64
	Role  string
	Units []int64
}

// CanAccess reports whether the actor is scoped to unitID. An empty scope means every unit.
func (a Actor) CanAccess(unitID int64) bool {
	if len(a.Units) == 0 {
		return true
	}
	for _, id := range a.Units {
		if id == unitID {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

type businessUnitContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// ContextWithBusinessUnit stores the tenant id in context.
func ContextWithBusinessUnit(ctx context.Context, unitID int64) context.Context {
	return context.WithValue(ctx, businessUnitContextKey{}, unitID)
}

// BusinessUnitFromContext extracts the tenant id from context.
func BusinessUnitFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(businessUnitContextKey{}).(int64)
	return id, ok && id > 0
}

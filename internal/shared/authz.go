package shared

import "fmt"

// Resource identifies what an action targets.
type Resource struct {
	Kind           string
	ID             int64
	BusinessUnitID int64
}

// Authorizer decides whether an actor may perform an action on a resource.
type Authorizer interface {
	Authorize(actor Actor, action string, resource Resource) bool
}

// ErrNotAuthorized indicates the policy denied the action.
var ErrNotAuthorized = Forbidden("action not authorized")

// Authorize runs the policy check; a nil authorizer permits everything.
func Authorize(authz Authorizer, actor Actor, action string, resource Resource) error {
	if authz == nil {
		return nil
	}
	if !authz.Authorize(actor, action, resource) {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, action)
	}
	return nil
}

// Observer receives the outcome of domain operations, typically to count them.
type Observer interface {
	Observe(operation string, err error)
}

// Observe forwards to o when one is configured.
func Observe(o Observer, operation string, err error) {
	if o != nil {
		o.Observe(operation, err)
	}
}

package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Policy *Policy
	Logger *slog.Logger
}

// RequireAny ensures the current actor holds at least one of the actions in the current unit.
func (m Middleware) RequireAny(actions ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(actions)
	return m.require(normalized, func(actor shared.Actor, res shared.Resource) bool {
		for _, action := range normalized {
			if m.Policy.Authorize(actor, action, res) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current actor holds every action in the current unit.
func (m Middleware) RequireAll(actions ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(actions)
	return m.require(normalized, func(actor shared.Actor, res shared.Resource) bool {
		for _, action := range normalized {
			if !m.Policy.Authorize(actor, action, res) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(actions []string, allowed func(shared.Actor, shared.Resource) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(actions) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
				return
			}
			unitID, _ := shared.BusinessUnitFromContext(r.Context())
			if allowed(actor, shared.Resource{BusinessUnitID: unitID}) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.Int64("actor_id", actor.ID),
					slog.String("role", actor.Role),
					slog.String("actions", strings.Join(actions, ",")))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "action not permitted")
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

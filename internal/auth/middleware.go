package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// BusinessUnitHeader carries the tenant id on every request.
const BusinessUnitHeader = "x-business-unit-id"

// Middleware resolves the actor and tenant of each request.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Authenticate reads the bearer token and stores the actor in context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		actor, err := m.Verifier.Parse(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("reject identity token", slog.Any("error", err), slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireBusinessUnit reads the tenant header, checks the actor may act in it and
// stores it in context. It must run after Authenticate.
func (m Middleware) RequireBusinessUnit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(BusinessUnitHeader))
		unitID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || unitID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", BusinessUnitHeader+" header required")
			return
		}
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
			return
		}
		if !actor.CanAccess(unitID) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "business unit not permitted")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithBusinessUnit(r.Context(), unitID)))
	})
}

// RequestScope returns the tenant and actor stored by the middleware.
func RequestScope(r *http.Request) (int64, shared.Actor, error) {
	unitID, ok := shared.BusinessUnitFromContext(r.Context())
	if !ok {
		return 0, shared.Actor{}, shared.Validationf("%s header required", BusinessUnitHeader)
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		return 0, shared.Actor{}, shared.ErrNotAuthorized
	}
	return unitID, actor, nil
}

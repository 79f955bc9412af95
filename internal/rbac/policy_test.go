package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestDefaultPolicyGrants(t *testing.T) {
	policy := DefaultPolicy()
	res := shared.Resource{BusinessUnitID: 1}
	cases := []struct {
		role   string
		action string
		want   bool
	}{
		{RoleAdmin, ActionPeriodClose, true},
		{RoleAccountant, ActionJournalPost, true},
		{RoleAccountant, ActionPOSDiscount, false},
		{RoleSupervisor, ActionPOSDiscount, true},
		{RoleSupervisor, ActionPOSVoid, true},
		{RoleCashier, ActionPOSSettle, true},
		{RoleCashier, ActionPOSDiscount, false},
		{RoleCashier, ActionJournalCreate, false},
		{RoleStorekeeper, ActionInventoryReceive, true},
		{"guest", ActionInventoryView, false},
	}
	for _, tc := range cases {
		actor := shared.Actor{ID: 1, Role: tc.role}
		assert.Equal(t, tc.want, policy.Authorize(actor, tc.action, res), "%s %s", tc.role, tc.action)
	}
}

func TestPolicyRespectsUnitScope(t *testing.T) {
	policy := DefaultPolicy()
	actor := shared.Actor{ID: 9, Role: "ADMIN", Units: []int64{1, 2}}
	assert.True(t, policy.Authorize(actor, ActionJournalCreate, shared.Resource{BusinessUnitID: 2}))
	assert.False(t, policy.Authorize(actor, ActionJournalCreate, shared.Resource{BusinessUnitID: 3}))
	assert.False(t, policy.Authorize(shared.Actor{Role: RoleAdmin}, ActionJournalCreate, shared.Resource{}))
}

func TestGrantCovers(t *testing.T) {
	assert.True(t, grantCovers("pos.*", "pos.discount.override"))
	assert.False(t, grantCovers("pos.*", "posting.run"))
	assert.False(t, grantCovers("journal.post", "journal.posted"))
}

func TestMiddlewareRequireAny(t *testing.T) {
	mw := Middleware{Policy: DefaultPolicy()}
	handler := mw.RequireAny(ActionPOSVoid, ActionPOSDiscount)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(actor *shared.Actor) int {
		req := httptest.NewRequest(http.MethodPatch, "/pos/orders/1/void", nil)
		ctx := shared.ContextWithBusinessUnit(req.Context(), 1)
		if actor != nil {
			ctx = shared.ContextWithActor(ctx, *actor)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&shared.Actor{ID: 2, Role: RoleCashier}))
	assert.Equal(t, http.StatusNoContent, serve(&shared.Actor{ID: 3, Role: RoleSupervisor}))
}

func TestSupervisorVerifier(t *testing.T) {
	hash, err := HashPIN("2468")
	require.NoError(t, err)
	v := NewSupervisorVerifier(" " + hash + " ")
	assert.True(t, v.VerifyPIN("2468"))
	assert.True(t, v.VerifyPIN(" 2468 "))
	assert.False(t, v.VerifyPIN("1357"))
	assert.False(t, v.VerifyPIN(""))
	assert.False(t, NewSupervisorVerifier("").VerifyPIN("2468"))
}

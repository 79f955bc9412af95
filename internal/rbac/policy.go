package rbac

import (
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Actions checked by the ledger core.
const (
	ActionLedgerSetup      = "ledger.setup"
	ActionJournalCreate    = "journal.create"
	ActionJournalSubmit    = "journal.submit"
	ActionJournalApprove   = "journal.approve"
	ActionJournalPost      = "journal.post"
	ActionJournalReverse   = "journal.reverse"
	ActionJournalView      = "journal.view"
	ActionPeriodClose      = "period.close"
	ActionInvoiceIssue     = "invoice.issue"
	ActionInvoiceView      = "invoice.view"
	ActionPaymentRecord    = "payment.record"
	ActionPaymentApply     = "payment.apply"
	ActionDocumentCreate   = "document.create"
	ActionDocumentCancel   = "document.cancel"
	ActionDocumentView     = "document.view"
	ActionInventoryMove    = "inventory.move"
	ActionInventoryView    = "inventory.view"
	ActionPOSOrder         = "pos.order"
	ActionPOSSettle        = "pos.settle"
	ActionPOSDiscount      = "pos.discount.override"
	ActionPOSVoid          = "pos.void"
	ActionPOSMenu          = "pos.menu"
	ActionNumberingIssue   = "numbering.issue"
	ActionNumberingConfig  = "numbering.configure"
	ActionInventoryReceive = "inventory.receive"
)

// Role names understood by DefaultPolicy.
const (
	RoleAdmin       = "admin"
	RoleAccountant  = "accountant"
	RoleSupervisor  = "supervisor"
	RoleCashier     = "cashier"
	RoleStorekeeper = "storekeeper"
)

// Policy grants actions to roles. Grants may end in ".*" to cover a family of actions,
// and "*" grants everything.
type Policy struct {
	grants map[string][]string
}

// NewPolicy builds a policy from role grants.
func NewPolicy(grants map[string][]string) *Policy {
	normalized := make(map[string][]string, len(grants))
	for role, actions := range grants {
		normalized[normalizeRole(role)] = normalizePermissions(actions)
	}
	return &Policy{grants: normalized}
}

// DefaultPolicy returns the stock role matrix for a hotel/restaurant unit.
func DefaultPolicy() *Policy {
	return NewPolicy(map[string][]string{
		RoleAdmin: {"*"},
		RoleAccountant: {
			"journal.*", "period.*", "invoice.*", "payment.*", ActionLedgerSetup,
			ActionNumberingIssue, ActionNumberingConfig, ActionDocumentView, ActionInventoryView,
		},
		RoleSupervisor: {
			"pos.*", "inventory.*", "document.*", ActionInvoiceIssue, ActionInvoiceView,
			ActionPaymentRecord, ActionPaymentApply, ActionNumberingIssue,
		},
		RoleCashier:     {ActionPOSOrder, ActionPOSSettle, ActionInventoryView},
		RoleStorekeeper: {"inventory.*", ActionDocumentCreate, ActionDocumentView},
	})
}

// Authorize reports whether actor may perform action on resource. Actors scoped to a
// set of business units are denied outside of it.
func (p *Policy) Authorize(actor shared.Actor, action string, resource shared.Resource) bool {
	if p == nil || actor.ID == 0 {
		return false
	}
	if resource.BusinessUnitID != 0 && !actor.CanAccess(resource.BusinessUnitID) {
		return false
	}
	action = strings.TrimSpace(strings.ToLower(action))
	for _, grant := range p.grants[normalizeRole(actor.Role)] {
		if grantCovers(grant, action) {
			return true
		}
	}
	return false
}

// Granted lists the actions held by role, used by the permission introspection endpoint.
func (p *Policy) Granted(role string) []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.grants[normalizeRole(role)]...)
}

func grantCovers(grant, action string) bool {
	if grant == "*" || grant == action {
		return true
	}
	if prefix, ok := strings.CutSuffix(grant, ".*"); ok {
		return strings.HasPrefix(action, prefix+".")
	}
	return false
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}

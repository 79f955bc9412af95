package app

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// AuditRecorder persists audit records for every module.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceDeps collects what the domain services are built from.
type ServiceDeps struct {
	Runner      store.Runner
	Audit       AuditRecorder
	Policy      *rbac.Policy
	Supervisor  *rbac.SupervisorVerifier
	Idempotency *shared.IdempotencyStore
	Observer    shared.Observer
	Config      *Config
	Now         func() time.Time
}

// Services is the wired domain layer shared by the HTTP server and the worker.
type Services struct {
	Numbering *numbering.Service
	Journals  *accounting.Service
	Chart     *accounting.ChartService
	Periods   *accounting.PeriodService
	Tax       *tax.Engine
	Inventory *inventory.Service
	Documents *documents.Service
	Billing   *billing.Service
	POS       *pos.Service
}

// NewServices builds every service over one unit-of-work runner.
func NewServices(deps ServiceDeps) (*Services, error) {
	policy := deps.Policy
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}
	audit := deps.Audit
	if audit == nil {
		audit = &shared.MemoryAuditLog{}
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{DefaultCurrency: "PHP", DefaultVATCode: "VAT12"}
	}

	s := &Services{
		Numbering: numbering.NewService(store.Numbering(deps.Runner)),
		Journals:  accounting.NewService(store.Accounting(deps.Runner), audit, policy),
		Chart:     accounting.NewChartService(store.Accounting(deps.Runner), audit),
		Periods:   accounting.NewPeriodService(store.Accounting(deps.Runner), audit, policy),
		Tax:       tax.NewEngine(store.Tax(deps.Runner)),
		Inventory: inventory.NewService(store.Inventory(deps.Runner), audit, deps.Idempotency),
		Documents: documents.NewService(store.Documents(deps.Runner), audit, policy, deps.Idempotency),
		Billing:   billing.NewService(store.Billing(deps.Runner), audit, policy, deps.Idempotency),
		POS:       pos.NewService(store.POS(deps.Runner), audit, policy, deps.Supervisor, deps.Idempotency),
	}
	if err := s.Journals.WithDefaultCurrency(cfg.DefaultCurrency); err != nil {
		return nil, err
	}
	if err := s.Billing.WithDefaultCurrency(cfg.DefaultCurrency); err != nil {
		return nil, err
	}
	if cfg.DefaultVATCode != "" {
		s.Billing.WithDefaultTaxCode(cfg.DefaultVATCode)
		s.POS.WithDefaultVATCode(cfg.DefaultVATCode)
	}
	if deps.Observer != nil {
		s.Billing.WithObserver(deps.Observer)
		s.POS.WithObserver(deps.Observer)
	}
	if deps.Now != nil {
		s.Journals.WithNow(deps.Now)
		s.Periods.WithNow(deps.Now)
		s.Documents.WithNow(deps.Now)
		s.Billing.WithNow(deps.Now)
		s.POS.WithNow(deps.Now)
	}
	s.Documents.WithInvoiceIssuer(s.Billing)
	return s, nil
}

package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service issues invoices and settles them with payments.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	authz       shared.Authorizer
	idempotency *shared.IdempotencyStore
	observer    shared.Observer
	now         func() time.Time
	defaultTax  string
	currency    string
	terms       time.Duration
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, audit AuditPort, authz shared.Authorizer, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, authz: authz, idempotency: idem, now: time.Now, terms: 30 * 24 * time.Hour}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithDefaultTaxCode sets the code applied to lines that name none.
func (s *Service) WithDefaultTaxCode(code string) {
	s.defaultTax = code
}

// WithDefaultCurrency tags invoices that carry no currency.
func (s *Service) WithDefaultCurrency(code string) error {
	normalized, err := shared.NormalizeCurrency(code)
	if err != nil {
		return err
	}
	s.currency = normalized
	return nil
}

// WithObserver reports issue and apply outcomes.
func (s *Service) WithObserver(o shared.Observer) {
	s.observer = o
}

func (s *Service) guarded(ctx context.Context, unitID int64, key string, fn func(context.Context, TxRepository) error) error {
	return s.idempotency.Guard(ctx, unitID, "billing", key, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) authorize(actor shared.Actor, action, kind string, unitID, id int64) error {
	return shared.Authorize(s.authz, actor, action, shared.Resource{Kind: kind, ID: id, BusinessUnitID: unitID})
}

func (s *Service) record(ctx context.Context, unitID, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessUnitID: unitID,
		ActorID:        actorID,
		Action:         action,
		Entity:         entity,
		EntityID:       formatID(id),
		Meta:           meta,
		At:             s.now(),
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

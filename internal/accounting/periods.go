package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodService defines fiscal windows and answers posting eligibility.
type PeriodService struct {
	repo  RepositoryPort
	audit AuditPort
	authz shared.Authorizer
	now   func() time.Time
}

// NewPeriodService constructs the period manager.
func NewPeriodService(repo RepositoryPort, audit AuditPort, authz shared.Authorizer) *PeriodService {
	return &PeriodService{repo: repo, audit: audit, authz: authz, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *PeriodService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new period. Periods of a unit never overlap.
func (s *PeriodService) Create(ctx context.Context, period Period) (Period, error) {
	period.StartDate = dateOnly(period.StartDate)
	period.EndDate = dateOnly(period.EndDate)
	if period.BusinessUnitID <= 0 || period.FiscalYear <= 0 || period.PeriodNumber <= 0 ||
		period.StartDate.IsZero() || period.EndDate.Before(period.StartDate) {
		return Period{}, ErrInvalidPeriod
	}
	period.Status = PeriodStatusOpen
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListPeriods(ctx, period.BusinessUnitID)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if !period.EndDate.Before(dateOnly(p.StartDate)) && !period.StartDate.After(dateOnly(p.EndDate)) {
				return fmt.Errorf("%w: %d-%02d", ErrPeriodOverlap, p.FiscalYear, p.PeriodNumber)
			}
		}
		created, err = tx.InsertPeriod(ctx, period)
		return err
	})
	return created, err
}

// PeriodFor returns the period covering date or ErrNoPeriod.
func (s *PeriodService) PeriodFor(ctx context.Context, unitID int64, date time.Time) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.FindPeriodByDate(ctx, unitID, dateOnly(date))
		return err
	})
	return period, err
}

// IsOpen reports whether postings dated date are accepted. A date outside every
// period is not open.
func (s *PeriodService) IsOpen(ctx context.Context, unitID int64, date time.Time) (bool, error) {
	period, err := s.PeriodFor(ctx, unitID, date)
	if errors.Is(err, ErrNoPeriod) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return period.Status == PeriodStatusOpen, nil
}

// List returns the unit's periods ordered by start date.
func (s *PeriodService) List(ctx context.Context, unitID int64) ([]Period, error) {
	var periods []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		periods, err = tx.ListPeriods(ctx, unitID)
		return err
	})
	return periods, err
}

// Close moves an open period to CLOSED. There is no reopen.
func (s *PeriodService) Close(ctx context.Context, unitID, periodID int64, actor shared.Actor) (Period, error) {
	res := shared.Resource{Kind: "accounting_period", ID: periodID, BusinessUnitID: unitID}
	if err := shared.Authorize(s.authz, actor, "period.close", res); err != nil {
		return Period{}, err
	}
	var closed Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, unitID, periodID)
		if err != nil {
			return err
		}
		if period.Status == PeriodStatusClosed {
			return ErrPeriodClosed
		}
		now := s.now()
		period.Status = PeriodStatusClosed
		period.ClosedAt = &now
		period.ClosedBy = &actor.ID
		if err := tx.UpdatePeriod(ctx, period); err != nil {
			return err
		}
		closed = period
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			BusinessUnitID: unitID,
			ActorID:        actor.ID,
			Action:         "period.close",
			Entity:         "accounting_period",
			EntityID:       fmt.Sprintf("%d", periodID),
			Meta:           map[string]any{"fiscal_year": closed.FiscalYear, "period": closed.PeriodNumber},
			At:             s.now(),
		})
	}
	return closed, nil
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Ledger is the accounting surface the integrity check reads.
type Ledger interface {
	TrialBalance(ctx context.Context, unitID, periodID int64) (accounting.TrialBalance, error)
}

// Periods lists the periods of a unit.
type Periods interface {
	List(ctx context.Context, unitID int64) ([]accounting.Period, error)
}

// Stock replays movement history against on-hand quantities.
type Stock interface {
	Verify(ctx context.Context, unitID int64) ([]inventory.Drift, error)
}

// IntegrityReport lists what one unit failed.
type IntegrityReport struct {
	UnitID     int64
	Unbalanced []accounting.TrialBalance
	Drifts     []inventory.Drift
}

// Clean reports whether nothing was found.
func (r IntegrityReport) Clean() bool {
	return len(r.Unbalanced) == 0 && len(r.Drifts) == 0
}

// IntegrityChecker verifies that every period's trial balance nets to zero and
// that stock on hand equals the replay of its movements.
type IntegrityChecker struct {
	Ledger  Ledger
	Periods Periods
	Stock   Stock
	Units   []int64
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Check runs both checks for one unit concurrently.
func (c *IntegrityChecker) Check(ctx context.Context, unitID int64) (IntegrityReport, error) {
	report := IntegrityReport{UnitID: unitID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		periods, err := c.Periods.List(gctx, unitID)
		if err != nil {
			return fmt.Errorf("list periods: %w", err)
		}
		var mu sync.Mutex
		pg, pctx := errgroup.WithContext(gctx)
		pg.SetLimit(4)
		for _, p := range periods {
			pg.Go(func() error {
				tb, err := c.Ledger.TrialBalance(pctx, unitID, p.ID)
				if err != nil {
					return fmt.Errorf("trial balance %d-%02d: %w", p.FiscalYear, p.PeriodNumber, err)
				}
				if !tb.Balanced() {
					mu.Lock()
					report.Unbalanced = append(report.Unbalanced, tb)
					mu.Unlock()
				}
				return nil
			})
		}
		return pg.Wait()
	})
	g.Go(func() error {
		drifts, err := c.Stock.Verify(gctx, unitID)
		if err != nil {
			return fmt.Errorf("verify stock: %w", err)
		}
		report.Drifts = drifts
		return nil
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

// Run checks every unit in units, or the configured units when none are given.
func (c *IntegrityChecker) Run(ctx context.Context, units []int64) ([]IntegrityReport, error) {
	if len(units) == 0 {
		units = c.Units
	}
	tracker := c.Metrics.Track(TaskLedgerIntegrity)
	reports := make([]IntegrityReport, 0, len(units))
	for _, unitID := range units {
		report, err := c.Check(ctx, unitID)
		if err != nil {
			return nil, tracker.End(fmt.Errorf("jobs: integrity unit %d: %w", unitID, err))
		}
		c.Metrics.AddDrift(jobmetrics.CheckTrialBalance, unitID, len(report.Unbalanced))
		c.Metrics.AddDrift(jobmetrics.CheckStock, unitID, len(report.Drifts))
		if report.Clean() {
			c.Metrics.MarkClean(unitID, c.now())
		} else if c.Logger != nil {
			c.Logger.Error("ledger integrity drift",
				slog.String("job", TaskLedgerIntegrity),
				slog.Int64("unit_id", unitID),
				slog.Int("unbalanced_periods", len(report.Unbalanced)),
				slog.Int("stock_drifts", len(report.Drifts)))
		}
		reports = append(reports, report)
	}
	if c.Logger != nil {
		c.Logger.Info("ledger integrity check executed", slog.String("job", TaskLedgerIntegrity), slog.Int("units", len(units)))
	}
	return reports, tracker.End(nil)
}

func (c *IntegrityChecker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// HandleTask processes TaskLedgerIntegrity tasks.
func (c *IntegrityChecker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode integrity payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := c.Run(ctx, payload.Units)
	return err
}

package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SourceReversal tags entries produced by Reverse.
const SourceReversal = "REVERSAL"

// Service runs the journal lifecycle: drafts, approval, posting and reversal.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	authz    shared.Authorizer
	now      func() time.Time
	currency string
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, authz shared.Authorizer) *Service {
	return &Service{repo: repo, audit: audit, authz: authz, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithDefaultCurrency sets the reporting currency tag applied to drafts without one.
func (s *Service) WithDefaultCurrency(code string) error {
	normalized, err := shared.NormalizeCurrency(code)
	if err != nil {
		return err
	}
	s.currency = normalized
	return nil
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	BusinessUnitID int64
	EntryID        int64
	Date           *time.Time
	Memo           string
	Actor          shared.Actor
}

// CreateDraft stores a manual entry in DRAFT. Balance is checked at post time.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (JournalEntry, error) {
	if err := s.authorize(in.Actor, "journal.create", in.BusinessUnitID, 0); err != nil {
		return JournalEntry{}, err
	}
	entry, err := s.draftFromInput(in)
	if err != nil {
		return JournalEntry{}, err
	}
	var created JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := numbering.Issue(ctx, tx, in.BusinessUnitID, DocumentTypeJournal)
		if err != nil {
			return err
		}
		entry.Number = number
		created, err = tx.InsertJournalEntry(ctx, entry)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, created, in.Actor.ID, "journal.create", nil)
	return created, nil
}

// UpdateDraft replaces header and lines of a non-posted entry. Editing a submitted or
// approved entry sends it back to DRAFT so it has to be approved again.
func (s *Service) UpdateDraft(ctx context.Context, entryID int64, in DraftInput) (JournalEntry, error) {
	if err := s.authorize(in.Actor, "journal.create", in.BusinessUnitID, entryID); err != nil {
		return JournalEntry{}, err
	}
	draft, err := s.draftFromInput(in)
	if err != nil {
		return JournalEntry{}, err
	}
	var updated JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalEntryForUpdate(ctx, in.BusinessUnitID, entryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case JournalStatusPosted:
			return ErrImmutable
		case JournalStatusRejected:
			return ErrInvalidTransition
		}
		current.Date = draft.Date
		current.Memo = draft.Memo
		current.Currency = draft.Currency
		current.Status = JournalStatusDraft
		current.ApprovedBy = nil
		current.UpdatedAt = s.now()
		if err := tx.UpdateJournalHeader(ctx, current); err != nil {
			return err
		}
		if err := tx.ReplaceJournalLines(ctx, current.ID, draft.Lines); err != nil {
			return err
		}
		current.Lines = draft.Lines
		updated = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, updated, in.Actor.ID, "journal.update", nil)
	return updated, nil
}

// Submit moves DRAFT to PENDING.
func (s *Service) Submit(ctx context.Context, unitID, entryID int64, actor shared.Actor) (JournalEntry, error) {
	return s.transition(ctx, unitID, entryID, actor, "journal.submit", JournalStatusDraft, JournalStatusPending)
}

// Approve moves PENDING to APPROVED.
func (s *Service) Approve(ctx context.Context, unitID, entryID int64, actor shared.Actor) (JournalEntry, error) {
	return s.transition(ctx, unitID, entryID, actor, "journal.approve", JournalStatusPending, JournalStatusApproved)
}

// Reject moves PENDING to REJECTED, a terminal state.
func (s *Service) Reject(ctx context.Context, unitID, entryID int64, actor shared.Actor) (JournalEntry, error) {
	return s.transition(ctx, unitID, entryID, actor, "journal.approve", JournalStatusPending, JournalStatusRejected)
}

func (s *Service) transition(ctx context.Context, unitID, entryID int64, actor shared.Actor, action string, from, to JournalStatus) (JournalEntry, error) {
	if err := s.authorize(actor, action, unitID, entryID); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalEntryForUpdate(ctx, unitID, entryID)
		if err != nil {
			return err
		}
		if current.Status == JournalStatusPosted {
			return ErrImmutable
		}
		if current.Status != from {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		current.Status = to
		if to == JournalStatusApproved {
			current.ApprovedBy = &actor.ID
		}
		current.UpdatedAt = s.now()
		if err := tx.UpdateJournalHeader(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, entry, actor.ID, "journal."+strings.ToLower(string(to)), nil)
	return entry, nil
}

// Post commits an APPROVED entry to the ledger. Status, period, balance and accounts are
// checked in that order inside one unit of work; any failure leaves the entry untouched.
func (s *Service) Post(ctx context.Context, unitID, entryID int64, actor shared.Actor) (JournalEntry, error) {
	if err := s.authorize(actor, "journal.post", unitID, entryID); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalEntryForUpdate(ctx, unitID, entryID)
		if err != nil {
			return err
		}
		if current.Status == JournalStatusPosted {
			return ErrImmutable
		}
		if current.Status != JournalStatusApproved {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, JournalStatusPosted)
		}
		if err := checkPostable(ctx, tx, unitID, current.Date, current.Lines); err != nil {
			return err
		}
		now := s.now()
		current.Status = JournalStatusPosted
		current.PostedAt = &now
		current.PostedBy = &actor.ID
		current.UpdatedAt = now
		if err := tx.UpdateJournalHeader(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	debit, _ := entry.Totals()
	s.record(ctx, entry, actor.ID, "journal.post", map[string]any{"amount": debit.StringFixed(2)})
	return entry, nil
}

// Delete removes a non-posted entry and its lines.
func (s *Service) Delete(ctx context.Context, unitID, entryID int64, actor shared.Actor) error {
	if err := s.authorize(actor, "journal.create", unitID, entryID); err != nil {
		return err
	}
	var deleted JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalEntryForUpdate(ctx, unitID, entryID)
		if err != nil {
			return err
		}
		if current.Status == JournalStatusPosted {
			return ErrImmutable
		}
		deleted = current
		return tx.DeleteJournalEntry(ctx, unitID, entryID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, deleted, actor.ID, "journal.delete", nil)
	return nil
}

// Reverse posts a new entry with debit and credit swapped. The original stays as it is;
// the reversal links back through ReversalOf and a source ref derived from the original id.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if err := s.authorize(in.Actor, "journal.reverse", in.BusinessUnitID, in.EntryID); err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalEntry(ctx, in.BusinessUnitID, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return fmt.Errorf("%w: only posted entries can be reversed", ErrInvalidTransition)
		}
		if original.ReversalOf != nil {
			return fmt.Errorf("%w: entry is itself a reversal", ErrInvalidTransition)
		}
		date := original.Date
		if in.Date != nil {
			date = *in.Date
		}
		memo := strings.TrimSpace(in.Memo)
		if memo == "" {
			memo = "Reversal of " + original.Number
		}
		reversal, err = PostDirect(ctx, tx, PostingInput{
			BusinessUnitID: in.BusinessUnitID,
			Date:           date,
			Memo:           memo,
			Currency:       original.Currency,
			SourceModule:   SourceReversal,
			SourceRef:      SourceRef(DocumentTypeJournal, original.ID),
			ActorID:        in.Actor.ID,
			ReversalOf:     &original.ID,
			Lines:          lineInputs(reverseLines(original.Lines)),
		}, s.now())
		if errors.Is(err, ErrSourceAlreadyLinked) {
			return ErrAlreadyReversed
		}
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, reversal, in.Actor.ID, "journal.reverse", map[string]any{"reversal_of": in.EntryID})
	return reversal, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, unitID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalEntry(ctx, unitID, entryID)
		return err
	})
	return entry, err
}

// TrialBalance sums posted lines dated inside the period.
func (s *Service) TrialBalance(ctx context.Context, unitID, periodID int64) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, unitID, periodID)
		if err != nil {
			return err
		}
		rows, err := tx.SumPostedLines(ctx, unitID, dateOnly(period.StartDate), dateOnly(period.EndDate))
		if err != nil {
			return err
		}
		tb.PeriodID = period.ID
		tb.Rows = rows
		tb.TotalDebit, tb.TotalCredit = sumRows(rows)
		return nil
	})
	return tb, err
}

func (s *Service) draftFromInput(in DraftInput) (JournalEntry, error) {
	if in.BusinessUnitID <= 0 || in.Date.IsZero() {
		return JournalEntry{}, ErrInvalidEntry
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	currency := s.currency
	if strings.TrimSpace(in.Currency) != "" {
		if currency, err = shared.NormalizeCurrency(in.Currency); err != nil {
			return JournalEntry{}, err
		}
	}
	now := s.now()
	return JournalEntry{
		BusinessUnitID: in.BusinessUnitID,
		Date:           dateOnly(in.Date),
		Memo:           strings.TrimSpace(in.Memo),
		Currency:       currency,
		Status:         JournalStatusDraft,
		SourceModule:   SourceManual,
		SourceRef:      uuid.New(),
		CreatedBy:      in.Actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Lines:          lines,
	}, nil
}

func (s *Service) authorize(actor shared.Actor, action string, unitID, entryID int64) error {
	return shared.Authorize(s.authz, actor, action, shared.Resource{Kind: "journal_entry", ID: entryID, BusinessUnitID: unitID})
}

func (s *Service) record(ctx context.Context, entry JournalEntry, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.Number
	meta["status"] = string(entry.Status)
	meta["source_module"] = entry.SourceModule
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessUnitID: entry.BusinessUnitID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "journal_entry",
		EntityID:       fmt.Sprintf("%d", entry.ID),
		Meta:           meta,
		At:             s.now(),
	})
}

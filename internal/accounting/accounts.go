package accounting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ChartService maintains the chart of accounts and integration mappings.
type ChartService struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewChartService constructs the registry.
func NewChartService(repo RepositoryPort, audit AuditPort) *ChartService {
	return &ChartService{repo: repo, audit: audit, now: time.Now}
}

// Create validates and registers an account. Codes are unique per business unit.
func (s *ChartService) Create(ctx context.Context, account Account, actor shared.Actor) (Account, error) {
	account.Code = normalizeCode(account.Code)
	account.Name = strings.TrimSpace(account.Name)
	if account.NormalBalance == "" {
		account.NormalBalance = defaultNormalBalance(account.Type)
	}
	if account.BusinessUnitID <= 0 || account.Code == "" || account.Name == "" ||
		!validAccountType(account.Type) || !validNormalBalance(account.NormalBalance) {
		return Account{}, ErrInvalidAccount
	}
	account.IsActive = true
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertAccount(ctx, account)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, shared.AuditLog{
		BusinessUnitID: created.BusinessUnitID,
		ActorID:        actor.ID,
		Action:         "account.create",
		Entity:         "gl_account",
		EntityID:       created.Code,
		Meta:           map[string]any{"type": string(created.Type), "control": created.IsControl},
	})
	return created, nil
}

// Get returns the account or ErrUnknownAccount.
func (s *ChartService) Get(ctx context.Context, unitID int64, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, unitID, normalizeCode(code))
		return err
	})
	return account, err
}

// List returns the unit's chart ordered by code.
func (s *ChartService) List(ctx context.Context, unitID int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, unitID)
		return err
	})
	return accounts, err
}

// SetMapping points an integration key at an existing account.
func (s *ChartService) SetMapping(ctx context.Context, mapping AccountMapping) error {
	mapping.Key = strings.ToLower(strings.TrimSpace(mapping.Key))
	mapping.AccountCode = normalizeCode(mapping.AccountCode)
	if mapping.BusinessUnitID <= 0 || mapping.Key == "" || mapping.AccountCode == "" {
		return shared.Validationf("accounting: mapping requires key and account code")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, mapping.BusinessUnitID, mapping.AccountCode); err != nil {
			return fmt.Errorf("%w: %s", err, mapping.AccountCode)
		}
		return tx.SaveAccountMapping(ctx, mapping)
	})
}

// ResolveMapping returns the account mapped to key within the caller's unit of work.
func ResolveMapping(ctx context.Context, tx TxRepository, unitID int64, key string) (Account, error) {
	mapping, err := tx.GetAccountMapping(ctx, unitID, strings.ToLower(key))
	if err != nil {
		return Account{}, fmt.Errorf("%w: %s", err, key)
	}
	return tx.GetAccount(ctx, unitID, mapping.AccountCode)
}

func (s *ChartService) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	log.At = s.now()
	_ = s.audit.Record(ctx, log)
}

func validAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

func validNormalBalance(b NormalBalance) bool {
	return b == NormalDebit || b == NormalCredit
}

func defaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return NormalCredit
	}
	return ""
}

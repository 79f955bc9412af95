// Package postgres runs units of work against PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// Store implements store.Runner on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in a repeatable read transaction shared by every module store.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
}

type txStores struct {
	*numbering.SeriesStore
	*accounting.LedgerStore
	*tax.CodeStore
	*inventory.StockStore
	*documents.DocumentStore
	*billing.SettlementStore
	*pos.OrderStore
}

var _ store.Tx = txStores{}

func bind(tx pgx.Tx) txStores {
	return txStores{
		SeriesStore:     numbering.NewSeriesStore(tx),
		LedgerStore:     accounting.NewLedgerStore(tx),
		CodeStore:       tax.NewCodeStore(tx),
		StockStore:      inventory.NewStockStore(tx),
		DocumentStore:   documents.NewDocumentStore(tx),
		SettlementStore: billing.NewSettlementStore(tx),
		OrderStore:      pos.NewOrderStore(tx),
	}
}

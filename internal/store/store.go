// Package store composes the per-module repositories into one unit of work so a
// settlement can touch the ledger, stock and tax codes atomically.
package store

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// Tx is every repository operation available inside one transaction.
type Tx interface {
	billing.TxRepository
	pos.TxRepository
}

// Runner opens units of work.
type Runner interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Port narrows a Runner to the repository view one module expects.
type Port[T any] struct {
	runner Runner
	narrow func(Tx) T
}

// NewPort builds a port that hands narrow(tx) to callers.
func NewPort[T any](runner Runner, narrow func(Tx) T) Port[T] {
	return Port[T]{runner: runner, narrow: narrow}
}

// WithTx runs fn inside a unit of work of the underlying runner.
func (p Port[T]) WithTx(ctx context.Context, fn func(context.Context, T) error) error {
	return p.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, p.narrow(tx))
	})
}

func Numbering(r Runner) Port[numbering.TxRepository] {
	return NewPort(r, func(tx Tx) numbering.TxRepository { return tx })
}

func Accounting(r Runner) Port[accounting.TxRepository] {
	return NewPort(r, func(tx Tx) accounting.TxRepository { return tx })
}

func Tax(r Runner) Port[tax.TxRepository] {
	return NewPort(r, func(tx Tx) tax.TxRepository { return tx })
}

func Inventory(r Runner) Port[inventory.TxRepository] {
	return NewPort(r, func(tx Tx) inventory.TxRepository { return tx })
}

func Documents(r Runner) Port[documents.TxRepository] {
	return NewPort(r, func(tx Tx) documents.TxRepository { return tx })
}

func Billing(r Runner) Port[billing.TxRepository] {
	return NewPort(r, func(tx Tx) billing.TxRepository { return tx })
}

func POS(r Runner) Port[pos.TxRepository] {
	return NewPort(r, func(tx Tx) pos.TxRepository { return tx })
}

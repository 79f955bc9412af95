// Package memory keeps every repository in process. It backs the dev server
// when no database is configured and the service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

type seriesKey struct {
	unitID  int64
	docType string
}

type codeKey struct {
	unitID int64
	code   string
}

type sourceKey struct {
	unitID int64
	module string
	ref    string
}

// state holds one consistent version of every table. Values are stored by
// copy and nested slices are cloned on write and read, so a shallow map copy
// is a full snapshot.
type state struct {
	nextID int64

	series    map[seriesKey]numbering.Series
	accounts  map[codeKey]accounting.Account
	mappings  map[codeKey]accounting.AccountMapping
	periods   map[int64]accounting.Period
	entries   map[int64]accounting.JournalEntry
	sources   map[sourceKey]int64
	taxCodes  map[codeKey]tax.Code
	items     map[int64]inventory.Item
	stocks    map[int64]inventory.Stock
	movements []inventory.Movement
	docs      map[int64]documents.Document
	invoices  map[int64]billing.Invoice
	payments  map[int64]billing.Payment
	apps      map[int64]billing.Application
	menu      map[int64]pos.MenuItem
	recipes   map[int64]pos.Recipe
	orders    map[int64]pos.Order
	grants    map[int64]pos.DiscountGrant
}

func newState() *state {
	return &state{
		series:   make(map[seriesKey]numbering.Series),
		accounts: make(map[codeKey]accounting.Account),
		mappings: make(map[codeKey]accounting.AccountMapping),
		periods:  make(map[int64]accounting.Period),
		entries:  make(map[int64]accounting.JournalEntry),
		sources:  make(map[sourceKey]int64),
		taxCodes: make(map[codeKey]tax.Code),
		items:    make(map[int64]inventory.Item),
		stocks:   make(map[int64]inventory.Stock),
		docs:     make(map[int64]documents.Document),
		invoices: make(map[int64]billing.Invoice),
		payments: make(map[int64]billing.Payment),
		apps:     make(map[int64]billing.Application),
		menu:     make(map[int64]pos.MenuItem),
		recipes:  make(map[int64]pos.Recipe),
		orders:   make(map[int64]pos.Order),
		grants:   make(map[int64]pos.DiscountGrant),
	}
}

func (s *state) clone() *state {
	return &state{
		nextID:    s.nextID,
		series:    maps.Clone(s.series),
		accounts:  maps.Clone(s.accounts),
		mappings:  maps.Clone(s.mappings),
		periods:   maps.Clone(s.periods),
		entries:   maps.Clone(s.entries),
		sources:   maps.Clone(s.sources),
		taxCodes:  maps.Clone(s.taxCodes),
		items:     maps.Clone(s.items),
		stocks:    maps.Clone(s.stocks),
		movements: slices.Clone(s.movements),
		docs:      maps.Clone(s.docs),
		invoices:  maps.Clone(s.invoices),
		payments:  maps.Clone(s.payments),
		apps:      maps.Clone(s.apps),
		menu:      maps.Clone(s.menu),
		recipes:   maps.Clone(s.recipes),
		orders:    maps.Clone(s.orders),
		grants:    maps.Clone(s.grants),
	}
}

// Store serialises units of work behind one mutex and restores the previous
// state when a unit of work fails.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ store.Runner = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithTx runs fn with exclusive access. Units of work must not nest.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) id() int64 {
	t.st.nextID++
	return t.st.nextID
}

func dateOnly(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func sortedByID[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

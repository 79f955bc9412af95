// Package integration turns business events into balanced ledger postings.
// Templates speak in mapping keys; Post resolves them to accounts inside the
// caller's unit of work.
package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Leg is one side of a posting expressed against a mapping key.
type Leg struct {
	Key           string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	SubsidiaryRef string
	Description   string
}

// Voucher groups the legs produced by one business event.
type Voucher struct {
	BusinessUnitID int64
	Date           time.Time
	Memo           string
	Currency       string
	SourceModule   string
	SourceID       int64
	ActorID        int64
	Legs           []Leg
}

// ErrNothingToPost indicates a voucher whose legs net to zero.
var ErrNothingToPost = shared.Validation("integration: voucher has no amounts to post")

// Post nets the voucher legs per (key, subsidiary), resolves keys to accounts
// and writes a POSTED entry linked to (SourceModule, SourceID).
func Post(ctx context.Context, tx accounting.TxRepository, v Voucher, at time.Time) (accounting.JournalEntry, error) {
	if v.SourceModule == "" || v.SourceID <= 0 {
		return accounting.JournalEntry{}, shared.Validationf("integration: source module and id required")
	}
	legs := merge(v.Legs)
	if len(legs) == 0 {
		return accounting.JournalEntry{}, ErrNothingToPost
	}
	lines := make([]accounting.LineInput, 0, len(legs))
	for _, leg := range legs {
		account, err := accounting.ResolveMapping(ctx, tx, v.BusinessUnitID, leg.Key)
		if err != nil {
			return accounting.JournalEntry{}, err
		}
		lines = append(lines, accounting.LineInput{
			AccountCode:   account.Code,
			Debit:         leg.Debit,
			Credit:        leg.Credit,
			Description:   leg.Description,
			SubsidiaryRef: leg.SubsidiaryRef,
		})
	}
	entry, err := accounting.PostDirect(ctx, tx, accounting.PostingInput{
		BusinessUnitID: v.BusinessUnitID,
		Date:           v.Date,
		Memo:           v.Memo,
		Currency:       v.Currency,
		SourceModule:   v.SourceModule,
		SourceRef:      accounting.SourceRef(v.SourceModule, v.SourceID),
		ActorID:        v.ActorID,
		Lines:          lines,
	}, at)
	if err != nil {
		return accounting.JournalEntry{}, fmt.Errorf("integration: post %s %d: %w", v.SourceModule, v.SourceID, err)
	}
	return entry, nil
}

type legKey struct {
	key string
	sub string
}

// merge nets legs sharing an account key and subsidiary, keeping first-seen order.
// Negative amounts flip to the opposite side; zero results are dropped.
func merge(legs []Leg) []Leg {
	order := make([]legKey, 0, len(legs))
	net := make(map[legKey]decimal.Decimal, len(legs))
	desc := make(map[legKey]string, len(legs))
	for _, leg := range legs {
		k := legKey{key: strings.ToLower(strings.TrimSpace(leg.Key)), sub: leg.SubsidiaryRef}
		if _, ok := net[k]; !ok {
			order = append(order, k)
			net[k] = decimal.Zero
			desc[k] = leg.Description
		}
		net[k] = net[k].Add(leg.Debit).Sub(leg.Credit)
	}
	out := make([]Leg, 0, len(order))
	for _, k := range order {
		amount := shared.RoundMoney(net[k])
		switch {
		case amount.IsPositive():
			out = append(out, Leg{Key: k.key, Debit: amount, SubsidiaryRef: k.sub, Description: desc[k]})
		case amount.IsNegative():
			out = append(out, Leg{Key: k.key, Credit: amount.Neg(), SubsidiaryRef: k.sub, Description: desc[k]})
		}
	}
	return out
}

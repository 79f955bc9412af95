package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// CreateDownstreamInTx draws the requested quantities from an OPEN source and
// creates the next document of its chain inside the caller's unit of work.
// Receiving documents book one RECEIVING movement per line.
func CreateDownstreamInTx(ctx context.Context, tx TxRepository, in DownstreamInput, at time.Time) (Document, error) {
	if in.BusinessUnitID <= 0 || in.SourceID <= 0 || len(in.Lines) == 0 {
		return Document{}, ErrInvalidDocument
	}
	source, err := tx.GetDocumentForUpdate(ctx, in.BusinessUnitID, in.SourceID)
	if err != nil {
		return Document{}, err
	}
	if next, ok := source.Type.Next(); !ok || next != in.Type {
		return Document{}, fmt.Errorf("%w: %s cannot feed %s", ErrInvalidChain, source.Type, in.Type)
	}
	if source.Status != StatusOpen {
		return Document{}, fmt.Errorf("%w: source is %s", ErrInvalidTransition, source.Status)
	}

	index := make(map[int64]int, len(source.Lines))
	for i, l := range source.Lines {
		index[l.ID] = i
	}
	date := in.Date
	if date.IsZero() {
		date = at
	}
	doc := Document{
		BusinessUnitID: in.BusinessUnitID,
		Type:           in.Type,
		Status:         StatusOpen,
		SourceID:       &source.ID,
		PartyID:        source.PartyID,
		LocationID:     source.LocationID,
		Date:           dateOnly(date),
		Memo:           strings.TrimSpace(in.Memo),
		CreatedBy:      in.Actor.ID,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if in.LocationID > 0 {
		doc.LocationID = in.LocationID
	}
	if in.Type.IsInvoice() {
		doc.Status = StatusClosed
	}
	touched := make([]Line, 0, len(in.Lines))
	for n, draw := range in.Lines {
		i, ok := index[draw.SourceLineID]
		if !ok {
			return Document{}, fmt.Errorf("%w: %d", ErrUnknownSourceLine, draw.SourceLineID)
		}
		if err := validQuantity(draw.Quantity); err != nil {
			return Document{}, fmt.Errorf("%w: line %d", err, n+1)
		}
		src := &source.Lines[i]
		if draw.Quantity.GreaterThan(src.OpenQuantity) {
			return Document{}, fmt.Errorf("%w: line %d open %s, requested %s", ErrExceedsOpenQuantity, src.LineNo, src.OpenQuantity, draw.Quantity)
		}
		src.OpenQuantity = src.OpenQuantity.Sub(draw.Quantity)
		touched = append(touched, *src)

		srcLineID := src.ID
		line := Line{
			LineNo:       n + 1,
			ItemID:       src.ItemID,
			Description:  src.Description,
			Quantity:     draw.Quantity,
			OpenQuantity: draw.Quantity,
			UnitPrice:    src.UnitPrice,
			TaxCode:      src.TaxCode,
			SourceLineID: &srcLineID,
		}
		if in.Type.IsInvoice() {
			line.OpenQuantity = decimal.Zero
		}
		doc.Lines = append(doc.Lines, line)
	}
	if in.Type == TypeReceiving && doc.LocationID <= 0 {
		return Document{}, shared.Validationf("documents: receiving requires a location")
	}

	if err := tx.UpdateOpenQuantities(ctx, touched); err != nil {
		return Document{}, err
	}
	if source.FullyConsumed() {
		source.Status = StatusClosed
		source.UpdatedAt = at
		if err := tx.UpdateDocumentStatus(ctx, source); err != nil {
			return Document{}, err
		}
	}
	if doc.Number, err = numbering.Issue(ctx, tx, in.BusinessUnitID, string(in.Type)); err != nil {
		return Document{}, err
	}
	created, err := tx.InsertDocument(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	if created.Type == TypeReceiving {
		for _, line := range created.Lines {
			if line.ItemID <= 0 {
				continue
			}
			_, err := inventory.RecordInTx(ctx, tx, inventory.RecordInput{
				BusinessUnitID: created.BusinessUnitID,
				ItemID:         line.ItemID,
				LocationID:     created.LocationID,
				Type:           inventory.MovementReceiving,
				Quantity:       line.Quantity,
				SourceRef:      SourceRef(created),
				ActorID:        in.Actor.ID,
			}, at)
			if err != nil {
				return Document{}, fmt.Errorf("documents: receive line %d: %w", line.LineNo, err)
			}
		}
	}
	return created, nil
}

// SourceRef formats the reference that stock movements and ledger entries carry.
func SourceRef(doc Document) string {
	return fmt.Sprintf("%s:%d", doc.Type, doc.ID)
}

// Service orchestrates the document chains.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	authz       shared.Authorizer
	idempotency *shared.IdempotencyStore
	invoices    InvoiceIssuer
	now         func() time.Time
}

// NewService constructs the document controller.
func NewService(repo RepositoryPort, audit AuditPort, authz shared.Authorizer, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, authz: authz, idempotency: idem, now: time.Now}
}

// WithInvoiceIssuer routes AP_INVOICE and AR_INVOICE creation to billing.
func (s *Service) WithInvoiceIssuer(issuer InvoiceIssuer) {
	s.invoices = issuer
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateRoot creates a document that starts a chain.
func (s *Service) CreateRoot(ctx context.Context, in CreateInput) (Document, error) {
	if err := s.authorize(in.Actor, "document.create", in.BusinessUnitID, 0); err != nil {
		return Document{}, err
	}
	if !in.Type.CanStartChain() {
		return Document{}, fmt.Errorf("%w: %s needs a source document", ErrInvalidChain, in.Type)
	}
	if in.BusinessUnitID <= 0 || in.Date.IsZero() || len(in.Lines) == 0 {
		return Document{}, ErrInvalidDocument
	}
	if in.Type != TypePurchaseRequest && in.PartyID <= 0 {
		return Document{}, shared.Validationf("documents: %s requires a party", in.Type)
	}
	now := s.now()
	doc := Document{
		BusinessUnitID: in.BusinessUnitID,
		Type:           in.Type,
		Status:         StatusOpen,
		PartyID:        in.PartyID,
		LocationID:     in.LocationID,
		Date:           dateOnly(in.Date),
		Memo:           strings.TrimSpace(in.Memo),
		CreatedBy:      in.Actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, l := range in.Lines {
		if err := validQuantity(l.Quantity); err != nil {
			return Document{}, fmt.Errorf("%w: line %d", err, i+1)
		}
		if l.UnitPrice.IsNegative() || !shared.HasMoneyPrecision(l.UnitPrice) {
			return Document{}, shared.Validationf("documents: line %d unit price must be non-negative with two decimals", i+1)
		}
		if l.ItemID <= 0 && strings.TrimSpace(l.Description) == "" {
			return Document{}, fmt.Errorf("%w: line %d needs an item or description", ErrInvalidDocument, i+1)
		}
		doc.Lines = append(doc.Lines, Line{
			LineNo:       i + 1,
			ItemID:       l.ItemID,
			Description:  strings.TrimSpace(l.Description),
			Quantity:     l.Quantity,
			OpenQuantity: l.Quantity,
			UnitPrice:    l.UnitPrice,
			TaxCode:      strings.ToUpper(strings.TrimSpace(l.TaxCode)),
		})
	}
	var created Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if doc.Number, err = numbering.Issue(ctx, tx, in.BusinessUnitID, string(in.Type)); err != nil {
			return err
		}
		created, err = tx.InsertDocument(ctx, doc)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, created, in.Actor.ID, "document.create", nil)
	return created, nil
}

// CreateDownstream creates the next document of a chain. Invoices go through billing.
func (s *Service) CreateDownstream(ctx context.Context, in DownstreamInput) (Document, error) {
	if in.Type.IsInvoice() {
		if s.invoices == nil {
			return Document{}, ErrInvoiceIssuerMissing
		}
		return s.invoices.IssueFromDocument(ctx, in)
	}
	action := "document.create"
	if in.Type == TypeReceiving {
		action = "inventory.receive"
	}
	if err := s.authorize(in.Actor, action, in.BusinessUnitID, in.SourceID); err != nil {
		return Document{}, err
	}
	var created Document
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = CreateDownstreamInTx(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, created, in.Actor.ID, "document.create", map[string]any{"source_id": in.SourceID})
	return created, nil
}

// Receive books goods against a purchase order.
func (s *Service) Receive(ctx context.Context, in DownstreamInput) (Document, error) {
	in.Type = TypeReceiving
	return s.CreateDownstream(ctx, in)
}

// Cancel moves an OPEN document nobody drew from to CANCELLED. Receivings have
// already moved stock and are corrected through inventory adjustments instead.
func (s *Service) Cancel(ctx context.Context, unitID, docID int64, actor shared.Actor) (Document, error) {
	if err := s.authorize(actor, "document.cancel", unitID, docID); err != nil {
		return Document{}, err
	}
	var cancelled Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, unitID, docID)
		if err != nil {
			return err
		}
		if doc.Status != StatusOpen {
			return fmt.Errorf("%w: document is %s", ErrInvalidTransition, doc.Status)
		}
		if doc.Type == TypeReceiving || doc.Consumed() {
			return fmt.Errorf("%w: document already has downstream effects", ErrInvalidTransition)
		}
		children, err := tx.ListDocumentsBySource(ctx, unitID, docID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: document is referenced", ErrInvalidTransition)
		}
		doc.Status = StatusCancelled
		doc.UpdatedAt = s.now()
		if err := tx.UpdateDocumentStatus(ctx, doc); err != nil {
			return err
		}
		cancelled = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, cancelled, actor.ID, "document.cancel", nil)
	return cancelled, nil
}

// Get returns a document with its lines.
func (s *Service) Get(ctx context.Context, unitID, docID int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocument(ctx, unitID, docID)
		return err
	})
	return doc, err
}

// Trace returns the document followed by every document derived from it, depth first.
func (s *Service) Trace(ctx context.Context, unitID, docID int64) ([]Document, error) {
	var chain []Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		root, err := tx.GetDocument(ctx, unitID, docID)
		if err != nil {
			return err
		}
		var walk func(doc Document) error
		walk = func(doc Document) error {
			chain = append(chain, doc)
			children, err := tx.ListDocumentsBySource(ctx, unitID, doc.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := walk(child); err != nil {
					return err
				}
			}
			return nil
		}
		return walk(root)
	})
	return chain, err
}

func (s *Service) guarded(ctx context.Context, unitID int64, key string, fn func(context.Context, TxRepository) error) error {
	return s.idempotency.Guard(ctx, unitID, "documents", key, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) authorize(actor shared.Actor, action string, unitID, docID int64) error {
	return shared.Authorize(s.authz, actor, action, shared.Resource{Kind: "document", ID: docID, BusinessUnitID: unitID})
}

func (s *Service) record(ctx context.Context, doc Document, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["type"] = string(doc.Type)
	meta["number"] = doc.Number
	meta["status"] = string(doc.Status)
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessUnitID: doc.BusinessUnitID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "document",
		EntityID:       fmt.Sprintf("%d", doc.ID),
		Meta:           meta,
		At:             s.now(),
	})
}

// ErrQuantityPrecision indicates a quantity finer than the stock precision.
var ErrQuantityPrecision = shared.Validation("documents: quantity must be positive with at most four decimal places")

func validQuantity(q decimal.Decimal) error {
	if !q.IsPositive() || !q.Equal(q.Round(shared.QuantityPlaces)) {
		return ErrQuantityPrecision
	}
	return nil
}


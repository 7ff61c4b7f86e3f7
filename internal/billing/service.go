package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/pos"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// ErrOverpayment indicates a payment larger than the outstanding balance.
var ErrOverpayment = fmt.Errorf("billing: payment exceeds balance due: %w", httpx.ErrBusinessRule)

// ErrInvoiceCancelled indicates an operation on a cancelled invoice.
var ErrInvoiceCancelled = fmt.Errorf("billing: invoice cancelled: %w", httpx.ErrInvalidState)

// ErrCancelPaidInvoice indicates cancellation of an invoice with payments.
var ErrCancelPaidInvoice = fmt.Errorf("billing: cannot cancel invoice with payments: %w", httpx.ErrInvalidState)

// ErrSaleNotCompleted indicates invoicing a sale that did not complete.
var ErrSaleNotCompleted = fmt.Errorf("billing: sale not completed: %w", httpx.ErrInvalidState)

// ErrSaleAlreadyInvoiced indicates a second invoice for the same sale.
var ErrSaleAlreadyInvoiced = fmt.Errorf("billing: sale already invoiced: %w", httpx.ErrDuplicate)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, filter ListInvoicesRequest) ([]Invoice, int, error)
	MarkOverdue(ctx context.Context, today time.Time) ([]Invoice, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates invoice operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateInvoice creates a standalone invoice with a fresh per-year number.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	terms := req.PaymentTerms
	if terms == "" {
		terms = TermsNet30
	}
	if terms == TermsCustom && req.DueDate == nil {
		return nil, fmt.Errorf("billing: custom terms require a due date: %w", httpx.ErrValidation)
	}

	now := s.now()
	inv := Invoice{
		CustomerID:     req.CustomerID,
		IssueDate:      truncateToDay(now),
		PaymentTerms:   terms,
		DiscountAmount: req.DiscountAmount,
		Status:         StatusUnpaid,
		Notes:          req.Notes,
		CreatedBy:      shared.ActorFromContext(ctx).Name,
	}
	if req.DueDate != nil {
		inv.DueDate = truncateToDay(*req.DueDate)
	} else {
		inv.DueDate = DueDateFor(now, terms)
	}

	var subtotal, tax float64
	items := make([]InvoiceItem, 0, len(req.Items))
	for _, input := range req.Items {
		item := InvoiceItem{
			ProductID:   input.ProductID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			Discount:    input.Discount,
			TaxRatePct:  input.TaxRatePct,
		}
		item.ComputeTotal()
		subtotal += item.Subtotal()
		tax += item.TaxAmount()
		items = append(items, item)
	}
	inv.Subtotal = roundTo2(subtotal)
	inv.TaxAmount = roundTo2(tax)
	inv.TotalAmount = roundTo2(inv.Subtotal + inv.TaxAmount - inv.DiscountAmount)
	inv.RecomputeStatus(now)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextInvoiceNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		inv.InvoiceNumber = InvoiceNumber(now.Year(), seq)

		inv.ID, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.Items, err = tx.InsertInvoiceItems(ctx, inv.ID, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "invoice.create", inv.ID, fmt.Sprintf("created invoice %s", inv.InvoiceNumber), nil)
	return &inv, nil
}

// CreateFromSale derives an invoice from a completed sale: amounts and
// items are copied, and the sale's existing payments are linked so the
// invoice starts with the amount already paid at the till.
func (s *Service) CreateFromSale(ctx context.Context, req CreateFromSaleRequest) (*Invoice, error) {
	terms := req.PaymentTerms
	if terms == "" {
		terms = TermsNet30
	}
	if terms == TermsCustom && req.DueDate == nil {
		return nil, fmt.Errorf("billing: custom terms require a due date: %w", httpx.ErrValidation)
	}

	actor := shared.ActorFromContext(ctx)
	now := s.now()
	var inv Invoice

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSale(ctx, req.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != pos.SaleStatusCompleted {
			return fmt.Errorf("%w: %s is %s", ErrSaleNotCompleted, sale.Reference, sale.Status)
		}
		if sale.CustomerID == nil {
			return fmt.Errorf("billing: sale %s has no customer: %w", sale.Reference, httpx.ErrBusinessRule)
		}
		if _, err := tx.GetInvoiceBySaleID(ctx, sale.ID); err == nil {
			return fmt.Errorf("%w: %s", ErrSaleAlreadyInvoiced, sale.Reference)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		inv = Invoice{
			CustomerID:     *sale.CustomerID,
			SaleID:         &sale.ID,
			IssueDate:      truncateToDay(now),
			PaymentTerms:   terms,
			Subtotal:       sale.Subtotal,
			TaxAmount:      sale.Tax,
			DiscountAmount: sale.Discount,
			TotalAmount:    sale.Total,
			AmountPaid:     sale.AmountPaid,
			Notes:          req.Notes,
			CreatedBy:      actor.Name,
		}
		if req.DueDate != nil {
			inv.DueDate = truncateToDay(*req.DueDate)
		} else {
			inv.DueDate = DueDateFor(now, terms)
		}
		inv.RecomputeStatus(now)

		seq, err := tx.NextInvoiceNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		inv.InvoiceNumber = InvoiceNumber(now.Year(), seq)

		inv.ID, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}

		items := make([]InvoiceItem, 0, len(sale.Items))
		for _, line := range sale.Items {
			productID := line.ProductID
			item := InvoiceItem{
				ProductID:   &productID,
				Description: line.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Discount:    line.Discount,
				TaxRatePct:  line.TaxRate * 100,
			}
			item.ComputeTotal()
			items = append(items, item)
		}
		inv.Items, err = tx.InsertInvoiceItems(ctx, inv.ID, items)
		if err != nil {
			return err
		}

		payments, err := tx.ListSalePayments(ctx, sale.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			ip := InvoicePayment{
				InvoiceID:  inv.ID,
				PaymentID:  p.ID,
				Amount:     p.Amount,
				RecordedBy: actor.Name,
			}
			id, err := tx.InsertInvoicePayment(ctx, ip)
			if err != nil {
				return err
			}
			ip.ID = id
			inv.Payments = append(inv.Payments, ip)
		}

		// amount_paid is always the derived sum of linked payments.
		paid, err := tx.SumInvoicePayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.AmountPaid = paid
		inv.RecomputeStatus(now)
		return tx.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, inv.AmountPaid)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "invoice.from_sale", inv.ID,
		fmt.Sprintf("created invoice %s from sale %d", inv.InvoiceNumber, req.SaleID), nil)
	return &inv, nil
}

// RecordPayment applies a payment to an invoice. The payment link and
// the recomputed invoice status are written in one transaction, and
// payments on sale-backed invoices settle the customer's account credit.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, req RecordPaymentRequest) (*Invoice, error) {
	actor := shared.ActorFromContext(ctx)
	now := s.now()
	var inv *Invoice

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return fmt.Errorf("%w: %s", ErrInvoiceCancelled, inv.InvoiceNumber)
		}
		if req.Amount > inv.BalanceDue() {
			return fmt.Errorf("%w: balance due %.2f, tendered %.2f",
				ErrOverpayment, inv.BalanceDue(), req.Amount)
		}

		paymentID, err := tx.InsertPayment(ctx, req.Amount, req.Method, req.Notes)
		if err != nil {
			return err
		}
		ip := InvoicePayment{
			InvoiceID:  inv.ID,
			PaymentID:  paymentID,
			Amount:     req.Amount,
			Notes:      req.Notes,
			RecordedBy: actor.Name,
		}
		if ip.ID, err = tx.InsertInvoicePayment(ctx, ip); err != nil {
			return err
		}

		paid, err := tx.SumInvoicePayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.AmountPaid = paid
		inv.RecomputeStatus(now)
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, inv.AmountPaid); err != nil {
			return err
		}

		// Only sale-backed invoices carry account credit from the till's
		// wholesale shortfall, so only those settle the balance.
		if inv.SaleID != nil {
			if err := tx.SettleCustomerBalance(ctx, inv.CustomerID, req.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice payment recorded",
		slog.String("invoice", inv.InvoiceNumber),
		slog.Float64("amount", req.Amount),
		slog.String("status", string(inv.Status)),
	)
	s.recordAudit(ctx, "invoice.payment", inv.ID,
		fmt.Sprintf("recorded %.2f against %s", req.Amount, inv.InvoiceNumber),
		map[string]any{"amount": req.Amount, "status": inv.Status})
	return inv, nil
}

// Cancel marks an invoice cancelled. Allowed only while nothing has
// been paid against it.
func (s *Service) Cancel(ctx context.Context, invoiceID int64) (*Invoice, error) {
	var inv *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return fmt.Errorf("%w: %s", ErrInvoiceCancelled, inv.InvoiceNumber)
		}
		if inv.AmountPaid > 0 {
			return fmt.Errorf("%w: %s has %.2f paid", ErrCancelPaidInvoice, inv.InvoiceNumber, inv.AmountPaid)
		}
		inv.Status = StatusCancelled
		return tx.UpdateInvoiceStatus(ctx, inv.ID, StatusCancelled, inv.AmountPaid)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "invoice.cancel", inv.ID, fmt.Sprintf("cancelled invoice %s", inv.InvoiceNumber), nil)
	return inv, nil
}

// GetInvoice returns an invoice with items and payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// GetInvoiceByNumber returns an invoice by public number.
func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.repo.GetInvoiceByNumber(ctx, number)
}

// ListInvoices returns a filtered page of invoices.
func (s *Service) ListInvoices(ctx context.Context, filter ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// MarkOverdueInvoices flips past-due open invoices to overdue. The
// worker runs this daily; it is also safe to call ad hoc.
func (s *Service) MarkOverdueInvoices(ctx context.Context) (int, error) {
	flipped, err := s.repo.MarkOverdue(ctx, truncateToDay(s.now()))
	if err != nil {
		return 0, err
	}
	if len(flipped) > 0 {
		s.logger.Info("invoices marked overdue", slog.Int("count", len(flipped)))
	}
	return len(flipped), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, desc string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Actor:       shared.ActorFromContext(ctx).Name,
		Action:      action,
		Entity:      "invoice",
		EntityID:    strconv.FormatInt(id, 10),
		Description: desc,
		Meta:        meta,
		At:          s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

package pos

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/catalog"
	"github.com/meridian-pos/meridian-pos/internal/customers"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// ErrInsufficientPayment indicates the tendered amount is below what
// settlement policy requires for this customer type.
var ErrInsufficientPayment = fmt.Errorf("pos: insufficient payment: %w", httpx.ErrBusinessRule)

// ErrCannotSell indicates a line references an inactive or out-of-stock product.
var ErrCannotSell = fmt.Errorf("pos: product cannot be sold: %w", httpx.ErrBusinessRule)

// ErrCouponRejected indicates the coupon failed validation at settlement.
var ErrCouponRejected = fmt.Errorf("pos: coupon rejected: %w", httpx.ErrBusinessRule)

// ErrAlreadyVoided indicates a second void attempt.
var ErrAlreadyVoided = fmt.Errorf("pos: sale already voided: %w", httpx.ErrInvalidState)

// WholesaleMinimumFraction is the share of the total a wholesale
// customer must tender up front; the remainder goes on their account.
const WholesaleMinimumFraction = 0.5

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	GetSaleByReference(ctx context.Context, reference string) (*Sale, error)
	ListSales(ctx context.Context, filter ListSalesRequest) ([]Sale, int, error)
}

// CustomerPort resolves customer identity for pricing and settlement.
type CustomerPort interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
	GetOrCreateByPhone(ctx context.Context, phone, name, email string) (*customers.Customer, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts completed and voided sales.
type MetricsPort interface {
	SaleCompleted()
	SaleVoided()
}

// Service runs the till: it builds the sale, applies settlement policy
// and completes or rejects the whole thing in one transaction.
type Service struct {
	repo      RepositoryPort
	customers CustomerPort
	audit     AuditPort
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. metrics may be nil.
func NewService(repo RepositoryPort, customerPort CustomerPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		customers: customerPort,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateSale runs the whole till flow: resolve customer, price and
// attach items, apply any coupon, take payments, enforce settlement
// policy, then deduct stock and complete. Everything after customer
// resolution happens in one transaction; any rejection leaves no stock,
// payment-status or balance mutation behind.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	actor := shared.ActorFromContext(ctx)

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	var profile catalog.PricingProfile
	var customerID *int64
	if customer != nil {
		if !customer.IsActive {
			return nil, customers.ErrInactiveCustomer
		}
		profile = customer.PricingProfile()
		customerID = &customer.ID
	}

	now := s.now()
	sale := Sale{
		Reference:     NewSaleReference(now),
		Cashier:       actor.Name,
		CustomerID:    customerID,
		Discount:      req.Discount,
		PaymentMethod: saleMethod(req.Payments),
		PaymentStatus: PaymentStatusPending,
		Status:        SaleStatusPending,
		Notes:         req.Notes,
		TerminalID:    actor.TerminalID,
		CreatedAt:     now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID

		// A product may appear on more than one line; the sell check
		// must cover the combined quantity across lines.
		requested := make(map[int64]int, len(req.Items))
		items := make([]SaleItem, 0, len(req.Items))
		for _, input := range req.Items {
			p, err := tx.GetProductForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			requested[p.ID] += input.Quantity
			if !p.CanSell(requested[p.ID]) {
				return fmt.Errorf("%w: %s", ErrCannotSell, p.SKU)
			}

			price, priceType := p.PriceFor(profile, input.Quantity)
			items = append(items, SaleItem{
				SaleID:    saleID,
				ProductID: p.ID,
				SKU:       p.SKU,
				Name:      p.Name,
				Quantity:  input.Quantity,
				UnitPrice: roundTo2(price),
				PriceType: priceType,
				TaxRate:   p.TaxRate,
				Discount:  input.Discount,
				LineTotal: roundTo2(price*float64(input.Quantity) - input.Discount),
			})
		}
		sale.Items = items

		// Coupon redemption shares the sale transaction so the usage
		// counter cannot be overspent by concurrent redemptions.
		if req.CouponCode != "" {
			var cartTotal float64
			for _, item := range items {
				cartTotal += item.LineTotal
			}
			coupon, err := tx.GetCouponForUpdate(ctx, req.CouponCode)
			if err != nil {
				return err
			}
			if ok, reason := coupon.Validate(now, cartTotal); !ok {
				return fmt.Errorf("%w: %s", ErrCouponRejected, reason)
			}
			sale.Discount = roundTo2(sale.Discount + coupon.Discount(cartTotal))
			sale.CouponCode = coupon.Code
			if err := tx.IncrementCouponUsage(ctx, coupon.ID); err != nil {
				return err
			}
		}

		sale.CalculateTotals()
		if err := tx.UpdateSaleAmounts(ctx, sale); err != nil {
			return err
		}

		sale.Items, err = tx.InsertSaleItems(ctx, saleID, items)
		if err != nil {
			return err
		}

		payments := make([]Payment, 0, len(req.Payments))
		var totalPayment float64
		for _, input := range req.Payments {
			totalPayment += input.Amount
			payments = append(payments, Payment{
				Amount:         input.Amount,
				Method:         input.Method,
				Status:         "completed",
				TransactionID:  input.TransactionID,
				CardLastFour:   input.CardLastFour,
				AmountTendered: input.AmountTendered,
				ChangeAmount:   input.ChangeAmount,
			})
		}
		sale.Payments, err = tx.InsertPayments(ctx, saleID, payments)
		if err != nil {
			return err
		}
		totalPayment = roundTo2(totalPayment)

		status, shortfall, err := settle(customer, sale.Total, totalPayment)
		if err != nil {
			return err
		}
		sale.PaymentStatus = status
		sale.AmountPaid = totalPayment
		if err := tx.UpdateSalePaymentStatus(ctx, saleID, status, totalPayment); err != nil {
			return err
		}
		if shortfall > 0 {
			if _, err := tx.AddCustomerBalance(ctx, customer.ID, shortfall); err != nil {
				return err
			}
		}

		// Completion: deduct stock for tracked lines, then flip status.
		// Each line re-reads the row so repeated lines for one product
		// see the running stock, not the pricing-time snapshot.
		for _, item := range sale.Items {
			p, err := tx.GetProductForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if !p.TrackStock {
				continue
			}
			newStock := p.Stock - item.Quantity
			if err := tx.UpdateProductStock(ctx, p.ID, newStock); err != nil {
				return err
			}
			err = tx.InsertAdjustment(ctx, catalog.InventoryAdjustment{
				ProductID:      p.ID,
				QuantityChange: -item.Quantity,
				OldStock:       p.Stock,
				NewStock:       newStock,
				Reason:         catalog.ReasonSale,
				Notes:          sale.Reference,
				PerformedBy:    actor.Name,
				Timestamp:      now,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.MarkSaleCompleted(ctx, saleID, now); err != nil {
			return err
		}
		sale.Status = SaleStatusCompleted
		sale.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SaleCompleted()
	}
	s.logger.Info("sale completed",
		slog.String("reference", sale.Reference),
		slog.Float64("total", sale.Total),
		slog.String("payment_status", string(sale.PaymentStatus)),
	)
	s.recordAudit(ctx, "sale.complete", sale.ID, fmt.Sprintf("completed sale %s", sale.Reference),
		map[string]any{"total": sale.Total, "payment_status": sale.PaymentStatus})
	return &sale, nil
}

// settle applies the payment policy. Wholesale customers may tender at
// least half and carry the rest as account credit; everyone else pays
// in full.
func settle(customer *customers.Customer, total, totalPayment float64) (PaymentStatus, float64, error) {
	if customer != nil && customer.Type == customers.TypeWholesale {
		minimum := roundTo2(total * WholesaleMinimumFraction)
		if totalPayment < minimum {
			return "", 0, fmt.Errorf("%w: wholesale minimum is %.2f, tendered %.2f",
				ErrInsufficientPayment, minimum, totalPayment)
		}
		if totalPayment < total {
			return PaymentStatusPartial, roundTo2(total - totalPayment), nil
		}
		return PaymentStatusPaid, 0, nil
	}
	if totalPayment < total {
		return "", 0, fmt.Errorf("%w: total is %.2f, tendered %.2f",
			ErrInsufficientPayment, total, totalPayment)
	}
	return PaymentStatusPaid, 0, nil
}

// VoidSale voids a sale. Stock is restored only for sales that actually
// completed; a pending sale never deducted anything, so restoring would
// double-credit the shelf.
func (s *Service) VoidSale(ctx context.Context, id int64, reason string) (*Sale, error) {
	actor := shared.ActorFromContext(ctx)
	now := s.now()

	var sale *Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status == SaleStatusVoided {
			return fmt.Errorf("%w: %s", ErrAlreadyVoided, sale.Reference)
		}

		if sale.Status == SaleStatusCompleted {
			items, err := tx.ListSaleItems(ctx, sale.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				p, err := tx.GetProductForUpdate(ctx, item.ProductID)
				if err != nil {
					return err
				}
				if !p.TrackStock {
					continue
				}
				newStock := p.Stock + item.Quantity
				if err := tx.UpdateProductStock(ctx, p.ID, newStock); err != nil {
					return err
				}
				err = tx.InsertAdjustment(ctx, catalog.InventoryAdjustment{
					ProductID:      p.ID,
					QuantityChange: item.Quantity,
					OldStock:       p.Stock,
					NewStock:       newStock,
					Reason:         catalog.ReasonReturn,
					Notes:          sale.Reference,
					PerformedBy:    actor.Name,
					Timestamp:      now,
				})
				if err != nil {
					return err
				}
			}
		}

		if err := tx.MarkSaleVoided(ctx, sale.ID, actor.Name, reason, now); err != nil {
			return err
		}
		sale.Status = SaleStatusVoided
		sale.VoidedAt = &now
		sale.VoidedBy = actor.Name
		sale.VoidReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SaleVoided()
	}
	s.logger.Info("sale voided",
		slog.String("reference", sale.Reference),
		slog.String("reason", reason),
	)
	s.recordAudit(ctx, "sale.void", sale.ID, fmt.Sprintf("voided sale %s", sale.Reference),
		map[string]any{"reason": reason})
	return sale, nil
}

// GetSale returns a sale with its items and payments.
func (s *Service) GetSale(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// GetSaleByReference returns a sale by its public reference.
func (s *Service) GetSaleByReference(ctx context.Context, reference string) (*Sale, error) {
	return s.repo.GetSaleByReference(ctx, reference)
}

// ListSales returns a filtered page of sales.
func (s *Service) ListSales(ctx context.Context, filter ListSalesRequest) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) resolveCustomer(ctx context.Context, req CreateSaleRequest) (*customers.Customer, error) {
	switch {
	case req.CustomerID != nil:
		return s.customers.Get(ctx, *req.CustomerID)
	case req.CustomerPhone != "":
		return s.customers.GetOrCreateByPhone(ctx, req.CustomerPhone, req.CustomerName, req.CustomerEmail)
	default:
		return nil, nil
	}
}

func saleMethod(payments []PaymentInput) PaymentMethod {
	if len(payments) == 0 {
		return MethodCash
	}
	if len(payments) > 1 {
		return MethodMixed
	}
	return payments[0].Method
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, desc string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Actor:       shared.ActorFromContext(ctx).Name,
		Action:      action,
		Entity:      "sale",
		EntityID:    strconv.FormatInt(id, 10),
		Description: desc,
		Meta:        meta,
		At:          s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

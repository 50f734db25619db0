package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/pricing"
	"laundrypos/backend/internal/reconcile"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

// CreateOrder prices the requested lines, allocates a receipt number and
// stores every line as a pending item. An optional deposit is validated
// like a collection-time payment and distributed over the new items.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Receipt, error) {
	branchID := s.branchOrDefault(req.BranchID)
	if len(req.Items) == 0 {
		return domain.Receipt{}, fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}
	if req.Deposit != nil {
		if err := validateMethod(req.Deposit.Method); err != nil {
			return domain.Receipt{}, err
		}
	}

	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return domain.Receipt{}, err
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID != "" {
		if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
			return domain.Receipt{}, err
		}
	}

	now := s.now()
	createdBy := actorName(ctx)
	items := make([]domain.OrderItem, 0, len(req.Items))
	receiptTotal := decimal.Zero
	for _, line := range req.Items {
		item, err := s.priceLine(ctx, line)
		if err != nil {
			return domain.Receipt{}, err
		}
		item.BranchID = branchID
		item.CustomerID = customerID
		item.Status = domain.ItemStatusPending
		item.PaidAmount = decimal.Zero
		item.CreatedBy = createdBy
		item.CreatedAt = now
		items = append(items, item)
		receiptTotal = receiptTotal.Add(item.TotalAmount)
	}
	if domain.ExceedsMoneyBound(receiptTotal) {
		return domain.Receipt{}, fmt.Errorf("%w: receipt total exceeds %s", store.ErrInvalidInput, domain.FormatTSh(domain.MaxMoney))
	}

	for attempt := 1; attempt <= maxReceiptNumberAttempts; attempt++ {
		receiptNumber := s.receiptNumber(*branch, now)
		for i := range items {
			items[i].ID = fmt.Sprintf("%s-%03d", receiptNumber, i+1)
			items[i].ReceiptNumber = receiptNumber
			items[i].PaidAmount = decimal.Zero
		}

		toStore := items
		var payments []domain.Payment
		if req.Deposit != nil {
			app, err := reconcile.ApplyPayment(items, domain.PaymentModeDeposit, req.Deposit.Amount)
			if err != nil {
				s.metrics.ObservePayment(domain.PaymentModeDeposit, "rejected", req.Deposit.Method, 0)
				return domain.Receipt{}, err
			}
			toStore = app.Items
			payments = s.paymentRows(ctx, app, *req.Deposit, domain.PaymentModeDeposit)
		}

		err := s.repo.CreateOrder(ctx, receiptNumber, toStore, payments)
		if errors.Is(err, store.ErrDuplicateReceipt) {
			s.metrics.ObserveReceiptRetry()
			log.Printf("[service] WARN: receipt number collision number=%s attempt=%d", receiptNumber, attempt)
			continue
		}
		if err != nil {
			return domain.Receipt{}, err
		}

		s.metrics.ObserveOrder()
		if req.Deposit != nil && len(payments) > 0 {
			s.metrics.ObservePayment(domain.PaymentModeDeposit, "applied", req.Deposit.Method, sumPayments(payments).InexactFloat64())
		}
		receipt := reconcile.BuildReceipt(toStore, now)
		receipt.Payments = payments
		s.logAudit(ctx, branchID, "order_create", "receipt", receiptNumber,
			fmt.Sprintf("items=%d,total=%s,deposit=%s", len(toStore), receipt.Summary.ReceiptTotal.StringFixed(2), receipt.Summary.ReceiptPaid.StringFixed(2)))
		s.invalidateReport(ctx, branchID, now)
		return receipt, nil
	}

	return domain.Receipt{}, fmt.Errorf("could not allocate a unique receipt number after %d attempts", maxReceiptNumberAttempts)
}

func (s *Service) priceLine(ctx context.Context, line domain.OrderItemRequest) (domain.OrderItem, error) {
	code := strings.ToUpper(strings.TrimSpace(line.ServiceCode))
	svc, err := s.repo.GetService(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OrderItem{}, fmt.Errorf("%w: unknown service %q", store.ErrInvalidInput, code)
		}
		return domain.OrderItem{}, err
	}
	if !svc.Active {
		return domain.OrderItem{}, fmt.Errorf("%w: service %s is not active", store.ErrInvalidInput, code)
	}

	quantity := line.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	if !quantity.IsPositive() {
		return domain.OrderItem{}, fmt.Errorf("%w: quantity must be greater than 0", store.ErrInvalidInput)
	}
	if quantity.GreaterThan(domain.MaxQuantity) {
		return domain.OrderItem{}, fmt.Errorf("%w: quantity must not exceed %s", store.ErrInvalidInput, domain.MaxQuantity)
	}

	total, tier, err := s.pricing.LineTotal(svc.UnitPrice, quantity, line.Express)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownExpress) {
			return domain.OrderItem{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		return domain.OrderItem{}, err
	}
	if domain.ExceedsMoneyBound(total) {
		return domain.OrderItem{}, fmt.Errorf("%w: line total for %s exceeds %s", store.ErrInvalidInput, svc.Code, domain.FormatTSh(domain.MaxMoney))
	}
	estimated := tier.EstimatedCollection(s.now())

	return domain.OrderItem{
		ServiceCode:             svc.Code,
		Description:             svc.Name,
		Quantity:                quantity,
		UnitPrice:               svc.UnitPrice,
		ExpressTier:             tier.Name,
		TotalAmount:             total,
		Notes:                   strings.TrimSpace(line.Notes),
		EstimatedCollectionDate: &estimated,
	}, nil
}

func (s *Service) GetReceipt(ctx context.Context, receiptNumber string) (domain.Receipt, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	items, err := s.repo.GetReceiptItems(ctx, receiptNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Receipt{}, reconcile.ReceiptNotFound(receiptNumber)
		}
		return domain.Receipt{}, err
	}
	payments, err := s.repo.ListPayments(ctx, receiptNumber)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt := reconcile.BuildReceipt(items, s.now())
	receipt.Payments = payments
	return receipt, nil
}

// ListReceipts groups the matching items into receipt views, newest first.
// Items are left out of the list view.
func (s *Service) ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	filter.BranchID = s.branchOrDefault(filter.BranchID)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !reconcile.IsStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}

	items, err := s.repo.ListReceiptItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	receipts := make([]domain.Receipt, 0, filter.Limit)
	for _, group := range groupByReceipt(items) {
		receipt := reconcile.BuildReceipt(group, now)
		if filter.Status != "" && receipt.Status != filter.Status {
			continue
		}
		if filter.OutstandingOnly && !receipt.Summary.BalanceDue.IsPositive() {
			continue
		}
		receipt.Items = nil
		receipts = append(receipts, receipt)
		if len(receipts) == filter.Limit {
			break
		}
	}
	return receipts, nil
}

// groupByReceipt splits items into receipt groups, keeping first-seen order.
func groupByReceipt(items []domain.OrderItem) [][]domain.OrderItem {
	index := make(map[string]int)
	groups := make([][]domain.OrderItem, 0, 16)
	for _, item := range items {
		i, ok := index[item.ReceiptNumber]
		if !ok {
			i = len(groups)
			index[item.ReceiptNumber] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}

func (s *Service) UpdateReceiptStatus(ctx context.Context, receiptNumber string, req domain.StatusUpdateRequest) (domain.Receipt, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	target := strings.ToLower(strings.TrimSpace(req.Status))

	items, err := s.repo.UpdateReceipt(ctx, receiptNumber, func(current []domain.OrderItem) (store.ReceiptMutation, error) {
		updated, err := reconcile.AdvanceStatus(current, target, req.ItemIDs)
		if err != nil {
			return store.ReceiptMutation{}, err
		}
		return store.ReceiptMutation{Items: updated}, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Receipt{}, reconcile.ReceiptNotFound(receiptNumber)
		}
		return domain.Receipt{}, err
	}

	receipt := reconcile.BuildReceipt(items, s.now())
	s.logAudit(ctx, receipt.BranchID, "receipt_status", "receipt", receiptNumber,
		fmt.Sprintf("status=%s,items=%d,effective=%s", target, len(req.ItemIDs), receipt.Status))
	return receipt, nil
}

// ReceivePayment applies a standalone payment, which must settle the
// receipt's whole balance.
func (s *Service) ReceivePayment(ctx context.Context, receiptNumber string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	if err := validateMethod(req.Method); err != nil {
		return domain.PaymentResult{}, err
	}

	var app reconcile.Application
	var payments []domain.Payment
	items, err := s.repo.UpdateReceipt(ctx, receiptNumber, func(current []domain.OrderItem) (store.ReceiptMutation, error) {
		payments = nil
		applied, err := reconcile.ApplyPayment(current, domain.PaymentModeStandalone, req.Amount)
		if err != nil {
			return store.ReceiptMutation{}, err
		}
		app = applied
		if !applied.Applied {
			return store.ReceiptMutation{}, nil
		}
		payments = s.paymentRows(ctx, applied, req, domain.PaymentModeStandalone)
		return store.ReceiptMutation{Items: applied.Items, Payments: payments}, nil
	})
	if err != nil {
		s.metrics.ObservePayment(domain.PaymentModeStandalone, "rejected", req.Method, 0)
		if errors.Is(err, store.ErrNotFound) {
			return domain.PaymentResult{}, reconcile.ReceiptNotFound(receiptNumber)
		}
		return domain.PaymentResult{}, err
	}

	result := domain.PaymentResult{
		ReceiptNumber: receiptNumber,
		Applied:       app.Applied,
		Message:       app.Message,
		Summary:       reconcile.Summarize(items),
		UpdatedItems:  []domain.OrderItem{},
		Payments:      payments,
	}
	if !app.Applied {
		s.metrics.ObservePayment(domain.PaymentModeStandalone, "noop", req.Method, 0)
		return result, nil
	}

	result.UpdatedItems = changedItems(items, app.Allocations)
	s.metrics.ObservePayment(domain.PaymentModeStandalone, "applied", req.Method, app.Settled.InexactFloat64())
	branchID := ""
	if len(items) > 0 {
		branchID = items[0].BranchID
	}
	s.logAudit(ctx, branchID, "payment_receive", "receipt", receiptNumber,
		fmt.Sprintf("mode=standalone,method=%s,amount=%s,rows=%d", req.Method, app.Settled.StringFixed(2), len(payments)))
	s.invalidateReport(ctx, branchID, s.now())
	return result, nil
}

// CollectReceipt hands the receipt back to the customer. A payment sent
// along is applied first; if it leaves a balance, the payment is kept and
// the receipt stays ready.
func (s *Service) CollectReceipt(ctx context.Context, receiptNumber string, req domain.CollectRequest) (domain.CollectResult, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	var amount *decimal.Decimal
	if req.Payment != nil {
		if err := validateMethod(req.Payment.Method); err != nil {
			return domain.CollectResult{}, err
		}
		amount = &req.Payment.Amount
	}

	var collection reconcile.Collection
	var payments []domain.Payment
	items, err := s.repo.UpdateReceipt(ctx, receiptNumber, func(current []domain.OrderItem) (store.ReceiptMutation, error) {
		payments = nil
		result, err := reconcile.Collect(current, amount, s.now())
		if err != nil {
			return store.ReceiptMutation{}, err
		}
		collection = result
		if result.Payment != nil && result.Payment.Applied {
			payments = s.paymentRows(ctx, *result.Payment, *req.Payment, domain.PaymentModeCollection)
		}
		return store.ReceiptMutation{Items: result.Items, Payments: payments}, nil
	})
	if err != nil {
		s.metrics.ObserveCollection("rejected")
		if req.Payment != nil {
			s.metrics.ObservePayment(domain.PaymentModeCollection, "rejected", req.Payment.Method, 0)
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.CollectResult{}, reconcile.ReceiptNotFound(receiptNumber)
		}
		return domain.CollectResult{}, err
	}

	summary := reconcile.Summarize(items)
	result := domain.CollectResult{
		ReceiptNumber: receiptNumber,
		Collected:     collection.Collected,
		Summary:       summary,
		UpdatedItems:  items,
		Payments:      payments,
	}
	branchID := items[0].BranchID
	if len(payments) > 0 {
		s.metrics.ObservePayment(domain.PaymentModeCollection, "applied", req.Payment.Method, collection.Payment.Settled.InexactFloat64())
	}

	if !collection.Collected {
		s.metrics.ObserveCollection("partial")
		if collection.Payment != nil {
			result.UpdatedItems = changedItems(items, collection.Payment.Allocations)
		}
		s.logAudit(ctx, branchID, "payment_receive", "receipt", receiptNumber,
			fmt.Sprintf("mode=collection,amount=%s,balance=%s", sumPayments(payments).StringFixed(2), summary.BalanceDue.StringFixed(2)))
		s.invalidateReport(ctx, branchID, s.now())
		return result, nil
	}

	s.metrics.ObserveCollection("collected")
	if customerID := items[0].CustomerID; customerID != "" {
		result.LoyaltyPointsEarned = s.accrueLoyalty(ctx, customerID, summary.ReceiptTotal)
	}
	s.logAudit(ctx, branchID, "receipt_collect", "receipt", receiptNumber,
		fmt.Sprintf("total=%s,paid_now=%s,points=%d", summary.ReceiptTotal.StringFixed(2), sumPayments(payments).StringFixed(2), result.LoyaltyPointsEarned))
	s.invalidateReport(ctx, branchID, s.now())
	return result, nil
}

// accrueLoyalty credits points for a collected receipt. Failures are logged
// and do not undo the collection.
func (s *Service) accrueLoyalty(ctx context.Context, customerID string, receiptTotal decimal.Decimal) int64 {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		log.Printf("[service] WARN: loyalty lookup failed customer=%s: %v", customerID, err)
		return 0
	}
	points := s.pricing.PointsFor(receiptTotal, customer.LoyaltyPoints)
	if points <= 0 {
		return 0
	}
	if _, err := s.repo.AddLoyaltyPoints(ctx, customerID, points); err != nil {
		log.Printf("[service] WARN: failed to add loyalty points customer=%s points=%d: %v", customerID, points, err)
		return 0
	}
	return points
}

// paymentRows turns an application into one payment row per allocation,
// all sharing the same action id.
func (s *Service) paymentRows(ctx context.Context, app reconcile.Application, req domain.PaymentRequest, mode string) []domain.Payment {
	if len(app.Allocations) == 0 {
		return nil
	}
	byID := make(map[string]domain.OrderItem, len(app.Items))
	for _, item := range app.Items {
		byID[item.ID] = item
	}

	actionID := xid.New("act")
	receivedBy := actorName(ctx)
	now := s.now()
	rows := make([]domain.Payment, 0, len(app.Allocations))
	for _, alloc := range app.Allocations {
		item := byID[alloc.OrderItemID]
		rows = append(rows, domain.Payment{
			ID:            xid.New("pay"),
			ActionID:      actionID,
			ReceiptNumber: item.ReceiptNumber,
			OrderItemID:   alloc.OrderItemID,
			BranchID:      item.BranchID,
			Amount:        alloc.Amount,
			Method:        strings.ToLower(strings.TrimSpace(req.Method)),
			Mode:          mode,
			Reference:     strings.TrimSpace(req.Reference),
			ReceivedBy:    receivedBy,
			CreatedAt:     now,
		})
	}
	return rows
}

func changedItems(items []domain.OrderItem, allocations []reconcile.Allocation) []domain.OrderItem {
	changed := make(map[string]bool, len(allocations))
	for _, alloc := range allocations {
		changed[alloc.OrderItemID] = true
	}
	out := make([]domain.OrderItem, 0, len(allocations))
	for _, item := range items {
		if changed[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

func sumPayments(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, payment := range payments {
		total = total.Add(payment.Amount)
	}
	return domain.RoundMoney(total)
}

func validateMethod(method string) error {
	if !domain.IsPaymentMethod(strings.ToLower(strings.TrimSpace(method))) {
		return fmt.Errorf("%w: payment method must be cash, card, mobile_money or bank_transfer", store.ErrInvalidInput)
	}
	return nil
}

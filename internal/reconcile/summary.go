// Package reconcile holds the receipt and payment rules: receipt totals,
// payment validation for the two payment modes, proportional distribution
// of a payment over a receipt's items and the collection transition.
//
// Everything here is a pure function of its input. Callers load the items
// of one receipt, run a function from this package and persist the result
// in a single transaction.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
)

// Summarize aggregates the line items of one receipt. Sums are rounded
// once per aggregate, not per addition.
func Summarize(items []domain.OrderItem) domain.ReceiptSummary {
	total := decimal.Zero
	paid := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalAmount)
		paid = paid.Add(item.PaidAmount)
	}
	total = domain.RoundMoney(total)
	paid = domain.RoundMoney(paid)

	balance := domain.RoundMoney(total.Sub(paid))
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	return domain.ReceiptSummary{
		ReceiptTotal: total,
		ReceiptPaid:  paid,
		BalanceDue:   balance,
	}
}

// EffectiveStatus derives the receipt status from its members: ready when
// every item is ready, pending when any item is still pending, collected
// when every item is collected and processing otherwise.
func EffectiveStatus(items []domain.OrderItem) string {
	if len(items) == 0 {
		return domain.ItemStatusPending
	}

	counts := make(map[string]int, 4)
	for _, item := range items {
		counts[item.Status]++
	}

	switch {
	case counts[domain.ItemStatusReady] == len(items):
		return domain.ItemStatusReady
	case counts[domain.ItemStatusPending] > 0:
		return domain.ItemStatusPending
	case counts[domain.ItemStatusCollected] == len(items):
		return domain.ItemStatusCollected
	default:
		return domain.ItemStatusProcessing
	}
}

// IsItemOverdue reports whether a ready item has passed its estimated
// collection date.
func IsItemOverdue(item domain.OrderItem, now time.Time) bool {
	if item.Status != domain.ItemStatusReady || item.EstimatedCollectionDate == nil {
		return false
	}
	return item.EstimatedCollectionDate.Before(now)
}

// IsOverdue reports whether any ready item of the receipt is overdue.
func IsOverdue(items []domain.OrderItem, now time.Time) bool {
	for _, item := range items {
		if IsItemOverdue(item, now) {
			return true
		}
	}
	return false
}

// BuildReceipt assembles the read view of a receipt from its items.
func BuildReceipt(items []domain.OrderItem, now time.Time) domain.Receipt {
	receipt := domain.Receipt{
		Status:    EffectiveStatus(items),
		Overdue:   IsOverdue(items, now),
		Summary:   Summarize(items),
		ItemCount: len(items),
		Items:     items,
	}
	for i, item := range items {
		if i == 0 {
			receipt.ReceiptNumber = item.ReceiptNumber
			receipt.BranchID = item.BranchID
			receipt.CustomerID = item.CustomerID
			receipt.CreatedAt = item.CreatedAt
		}
		if item.CreatedAt.Before(receipt.CreatedAt) {
			receipt.CreatedAt = item.CreatedAt
		}
		if item.EstimatedCollectionDate != nil {
			if receipt.EstimatedCollectionDate == nil || item.EstimatedCollectionDate.After(*receipt.EstimatedCollectionDate) {
				at := *item.EstimatedCollectionDate
				receipt.EstimatedCollectionDate = &at
			}
		}
	}
	return receipt
}

package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
)

var statusRank = map[string]int{
	domain.ItemStatusPending:    0,
	domain.ItemStatusProcessing: 1,
	domain.ItemStatusReady:      2,
	domain.ItemStatusCollected:  3,
}

// IsStatus reports whether status is part of the item lifecycle.
func IsStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// Collection is the outcome of a collect action. When Collected is false
// the payment (if any) was still applied and the receipt stays ready.
type Collection struct {
	Collected bool
	Payment   *Application
	Items     []domain.OrderItem
	Summary   domain.ReceiptSummary
}

// Collect gates the ready -> collected transition. Every item must be ready.
// amount is an optional collection-time payment applied first; if a balance
// remains afterwards the items stay ready. Without a payment an outstanding
// balance is reported as KindPaymentRequired.
func Collect(items []domain.OrderItem, amount *decimal.Decimal, now time.Time) (Collection, error) {
	if len(items) == 0 {
		return Collection{}, newError(KindReceiptNotFound, "receipt not found")
	}

	ready := 0
	collected := 0
	for _, item := range items {
		switch item.Status {
		case domain.ItemStatusReady:
			ready++
		case domain.ItemStatusCollected:
			collected++
		}
	}
	if collected == len(items) {
		return Collection{}, newError(KindNotAllItemsReady, fmt.Sprintf("receipt %s has already been collected", items[0].ReceiptNumber))
	}
	if ready != len(items) {
		return Collection{}, newError(KindNotAllItemsReady, fmt.Sprintf("all items must be ready before collection (%d of %d ready)", ready, len(items)))
	}

	result := Collection{Items: cloneItems(items)}
	if amount != nil {
		app, err := ApplyPayment(items, domain.PaymentModeCollection, *amount)
		if err != nil {
			return Collection{}, err
		}
		result.Payment = &app
		result.Items = app.Items
	}

	result.Summary = Summarize(result.Items)
	if result.Summary.BalanceDue.IsPositive() {
		if amount == nil {
			return Collection{}, newAmountError(
				KindPaymentRequired,
				fmt.Sprintf("Balance due of %s must be paid before collection", domain.FormatTSh(result.Summary.BalanceDue)),
				result.Summary.BalanceDue,
			)
		}
		return result, nil
	}

	at := now.UTC()
	for i := range result.Items {
		result.Items[i].Status = domain.ItemStatusCollected
		collectedAt := at
		result.Items[i].CollectedAt = &collectedAt
	}
	result.Collected = true
	return result, nil
}

// AdvanceStatus moves the selected items (all items when itemIDs is empty)
// forward to target. Backward moves are rejected, and collected can only be
// reached through Collect. Items already at target are left untouched.
func AdvanceStatus(items []domain.OrderItem, target string, itemIDs []string) ([]domain.OrderItem, error) {
	if len(items) == 0 {
		return nil, newError(KindReceiptNotFound, "receipt not found")
	}
	targetRank, ok := statusRank[target]
	if !ok {
		return nil, newError(KindInvalidTransition, fmt.Sprintf("unknown status %q", target))
	}
	if target == domain.ItemStatusCollected {
		return nil, newError(KindInvalidTransition, "items are marked collected through the collection action")
	}
	if target == domain.ItemStatusPending {
		return nil, newError(KindInvalidTransition, "items cannot be moved back to pending")
	}

	selected := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		selected[id] = false
	}

	updated := cloneItems(items)
	for i := range updated {
		if len(selected) > 0 {
			if _, ok := selected[updated[i].ID]; !ok {
				continue
			}
			selected[updated[i].ID] = true
		}
		current := statusRank[updated[i].Status]
		if current > targetRank {
			return nil, newError(KindInvalidTransition, fmt.Sprintf("item %s cannot move from %s to %s", updated[i].ID, updated[i].Status, target))
		}
		updated[i].Status = target
	}
	for id, seen := range selected {
		if !seen {
			return nil, newError(KindInvalidTransition, fmt.Sprintf("item %s is not part of this receipt", id))
		}
	}
	return updated, nil
}

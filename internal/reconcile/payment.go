package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"laundrypos/backend/internal/domain"
)

// Tolerance absorbs display rounding when comparing an entered amount with
// the balance due.
var Tolerance = decimal.New(1, -domain.MoneyPlaces)

// Allocation is the share of a payment credited to one line item.
type Allocation struct {
	OrderItemID string          `json:"order_item_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// Application is the outcome of applying a payment to a receipt. Items are
// updated copies; the input slice is never modified.
type Application struct {
	Applied     bool
	Message     string
	Settled     decimal.Decimal
	Items       []domain.OrderItem
	Allocations []Allocation
	Before      domain.ReceiptSummary
	After       domain.ReceiptSummary
}

// ValidateAmount checks amount against balance for the given payment mode
// and returns the amount that will actually be credited.
//
// Collection-time and deposit payments accept 0 < amount <= balance+tolerance
// and may be partial. Standalone payments must match the balance within the
// tolerance. In both cases an amount inside the tolerance settles exactly the
// balance, so paid never exceeds total.
func ValidateAmount(mode string, amount decimal.Decimal, balance decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, newError(KindInvalidAmount, "Payment amount must be greater than 0")
	}
	rounded := domain.RoundMoney(amount)
	if !rounded.IsPositive() {
		return decimal.Zero, newError(KindInvalidAmount, "Payment amount must be greater than 0")
	}

	switch mode {
	case domain.PaymentModeStandalone:
		if amount.Sub(balance).Abs().GreaterThan(Tolerance) {
			return decimal.Zero, newAmountError(
				KindAmountMismatch,
				fmt.Sprintf("Payment amount must equal balance due of %s", domain.FormatTSh(balance)),
				balance,
			)
		}
		return balance, nil
	case domain.PaymentModeCollection, domain.PaymentModeDeposit:
		if amount.GreaterThan(balance.Add(Tolerance)) {
			return decimal.Zero, newAmountError(
				KindExceedsBalance,
				fmt.Sprintf("Payment amount exceeds balance due of %s", domain.FormatTSh(balance)),
				balance,
			)
		}
		return decimal.Min(rounded, balance), nil
	default:
		return decimal.Zero, newError(KindInvalidAmount, fmt.Sprintf("unsupported payment mode %q", mode))
	}
}

// ApplyPayment validates amount for mode and distributes it over the
// receipt's items. A standalone payment against a fully paid receipt is an
// informational no-op; Applied is false and Message explains why.
func ApplyPayment(items []domain.OrderItem, mode string, amount decimal.Decimal) (Application, error) {
	if len(items) == 0 {
		return Application{}, newError(KindReceiptNotFound, "receipt not found")
	}

	before := Summarize(items)
	updated := cloneItems(items)
	app := Application{Items: updated, Before: before, After: before}

	if mode == domain.PaymentModeStandalone && before.BalanceDue.IsZero() {
		app.Message = "All items on this receipt are already fully paid"
		return app, nil
	}

	settle, err := ValidateAmount(mode, amount, before.BalanceDue)
	if err != nil {
		return Application{}, err
	}
	if settle.IsZero() {
		app.Message = "Nothing to apply; balance is already settled"
		return app, nil
	}

	shares, err := Distribute(settle, items)
	if err != nil {
		return Application{}, err
	}

	allocations := make([]Allocation, 0, len(items))
	for i := range updated {
		if shares[i].IsZero() {
			continue
		}
		updated[i].PaidAmount = domain.RoundMoney(updated[i].PaidAmount.Add(shares[i]))
		allocations = append(allocations, Allocation{OrderItemID: updated[i].ID, Amount: shares[i]})
	}

	app.Applied = true
	app.Settled = settle
	app.Allocations = allocations
	app.After = Summarize(updated)
	return app, nil
}

// Distribute splits amount over items proportionally to each item's share
// of the receipt total. Work happens in whole minor units with a
// largest-remainder correction, so the shares always sum to amount exactly.
// A share never exceeds the item's own outstanding balance; overflow moves to
// later items that still owe money.
func Distribute(amount decimal.Decimal, items []domain.OrderItem) ([]decimal.Decimal, error) {
	shares := make([]decimal.Decimal, len(items))
	if len(items) == 0 {
		return shares, newError(KindReceiptNotFound, "receipt not found")
	}

	cents := toMinor(amount)
	if cents.IsNegative() {
		return nil, newError(KindInvalidAmount, "Payment amount must be greater than 0")
	}

	totals := make([]decimal.Decimal, len(items))
	capacity := make([]decimal.Decimal, len(items))
	receiptTotal := decimal.Zero
	outstanding := decimal.Zero
	for i, item := range items {
		totals[i] = toMinor(item.TotalAmount)
		capacity[i] = decimal.Max(totals[i].Sub(toMinor(item.PaidAmount)), decimal.Zero)
		receiptTotal = receiptTotal.Add(totals[i])
		outstanding = outstanding.Add(capacity[i])
	}
	if cents.GreaterThan(outstanding) {
		return nil, newAmountError(
			KindExceedsBalance,
			fmt.Sprintf("Payment amount exceeds balance due of %s", domain.FormatTSh(fromMinor(outstanding))),
			fromMinor(outstanding),
		)
	}
	if receiptTotal.IsZero() {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares, nil
	}

	base := make([]decimal.Decimal, len(items))
	remainders := make([]decimal.Decimal, len(items))
	allocated := decimal.Zero
	for i := range items {
		base[i], remainders[i] = cents.Mul(totals[i]).QuoRem(receiptTotal, 0)
		allocated = allocated.Add(base[i])
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	// Floors lose less than one minor unit per item, so leftover < len(items).
	leftover := int(cents.Sub(allocated).IntPart())
	for k := 0; k < leftover; k++ {
		base[order[k]] = base[order[k]].Add(oneMinor)
	}

	overflow := decimal.Zero
	for i := range base {
		if base[i].GreaterThan(capacity[i]) {
			overflow = overflow.Add(base[i].Sub(capacity[i]))
			base[i] = capacity[i]
		}
	}
	for i := 0; overflow.IsPositive() && i < len(base); i++ {
		room := capacity[i].Sub(base[i])
		if !room.IsPositive() {
			continue
		}
		move := decimal.Min(room, overflow)
		base[i] = base[i].Add(move)
		overflow = overflow.Sub(move)
	}

	for i := range base {
		shares[i] = fromMinor(base[i])
	}
	return shares, nil
}

var oneMinor = decimal.NewFromInt(1)

// toMinor returns d as a whole number of minor units. It stays a decimal so
// amounts of any size keep their exact value.
func toMinor(d decimal.Decimal) decimal.Decimal {
	return domain.RoundMoney(d).Shift(domain.MoneyPlaces)
}

func fromMinor(v decimal.Decimal) decimal.Decimal {
	return v.Shift(-domain.MoneyPlaces)
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	return out
}

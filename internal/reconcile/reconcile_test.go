package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundrypos/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func item(id string, total string, paid string, status string) domain.OrderItem {
	return domain.OrderItem{
		ID:            id,
		ReceiptNumber: "R-0001",
		BranchID:      "main-branch",
		TotalAmount:   dec(total),
		PaidAmount:    dec(paid),
		Status:        status,
	}
}

// scenarioA is a receipt with two unpaid items of 1000 and 2000 TSh.
func scenarioA(status string) []domain.OrderItem {
	return []domain.OrderItem{
		item("it-1", "1000", "0", status),
		item("it-2", "2000", "0", status),
	}
}

func TestSummarize_ScenarioA(t *testing.T) {
	summary := Summarize(scenarioA(domain.ItemStatusPending))

	assert.True(t, summary.ReceiptTotal.Equal(dec("3000")), "total %s", summary.ReceiptTotal)
	assert.True(t, summary.ReceiptPaid.IsZero())
	assert.True(t, summary.BalanceDue.Equal(dec("3000")), "balance %s", summary.BalanceDue)
}

func TestSummarize_RoundsOncePerAggregate(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "0.105", "0", domain.ItemStatusPending),
		item("b", "0.105", "0", domain.ItemStatusPending),
	}
	summary := Summarize(items)

	// 0.105 + 0.105 = 0.21; rounding each term first would give 0.22.
	assert.True(t, summary.ReceiptTotal.Equal(dec("0.21")), "total %s", summary.ReceiptTotal)
}

func TestSummarize_ClampsNegativeBalance(t *testing.T) {
	summary := Summarize([]domain.OrderItem{item("a", "100", "150", domain.ItemStatusReady)})

	assert.True(t, summary.BalanceDue.IsZero())
	assert.True(t, summary.ReceiptPaid.Equal(dec("150")))
}

func TestSummarize_IsPureAndOrderIndependent(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "1250.50", "200.25", domain.ItemStatusPending),
		item("b", "999.99", "0", domain.ItemStatusPending),
		item("c", "10.01", "10.01", domain.ItemStatusPending),
	}
	first := Summarize(items)
	second := Summarize(items)
	reversed := Summarize([]domain.OrderItem{items[2], items[1], items[0]})

	assert.Equal(t, first, second)
	assert.True(t, first.BalanceDue.Equal(reversed.BalanceDue))
	assert.True(t, first.BalanceDue.Equal(dec("2050.24")), "balance %s", first.BalanceDue)
}

func TestEffectiveStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all ready", []string{"ready", "ready"}, "ready"},
		{"any pending", []string{"ready", "pending", "processing"}, "pending"},
		{"all collected", []string{"collected", "collected"}, "collected"},
		{"mixed ready and processing", []string{"ready", "processing"}, "processing"},
		{"mixed ready and collected", []string{"ready", "collected"}, "processing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items := make([]domain.OrderItem, 0, len(tc.statuses))
			for _, status := range tc.statuses {
				items = append(items, item("x", "1", "0", status))
			}
			assert.Equal(t, tc.want, EffectiveStatus(items))
		})
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	ready := item("a", "100", "0", domain.ItemStatusReady)
	ready.EstimatedCollectionDate = &past
	assert.True(t, IsOverdue([]domain.OrderItem{ready}, now))

	notDue := ready
	notDue.EstimatedCollectionDate = &future
	assert.False(t, IsOverdue([]domain.OrderItem{notDue}, now))

	processing := ready
	processing.Status = domain.ItemStatusProcessing
	assert.False(t, IsOverdue([]domain.OrderItem{processing}, now))
}

func TestStandalonePayment_ScenarioB(t *testing.T) {
	app, err := ApplyPayment(scenarioA(domain.ItemStatusReady), domain.PaymentModeStandalone, dec("3000"))
	require.NoError(t, err)

	assert.True(t, app.Applied)
	assert.True(t, app.After.BalanceDue.IsZero())
	for _, it := range app.Items {
		assert.True(t, it.PaidAmount.Equal(it.TotalAmount), "item %s paid %s", it.ID, it.PaidAmount)
	}
}

func TestStandalonePayment_ScenarioC(t *testing.T) {
	_, err := ApplyPayment(scenarioA(domain.ItemStatusReady), domain.PaymentModeStandalone, dec("2999"))
	require.Error(t, err)

	assert.Equal(t, KindAmountMismatch, KindOf(err))
	assert.Contains(t, err.Error(), "must equal balance due of TSh 3,000")

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.NotNil(t, rerr.Required)
	assert.True(t, rerr.Required.Equal(dec("3000")))
}

func TestStandalonePayment_RejectsOverpayment(t *testing.T) {
	_, err := ApplyPayment(scenarioA(domain.ItemStatusReady), domain.PaymentModeStandalone, dec("3000.02"))
	assert.Equal(t, KindAmountMismatch, KindOf(err))
}

func TestStandalonePayment_FullyPaidIsNoop(t *testing.T) {
	items := []domain.OrderItem{item("a", "500", "500", domain.ItemStatusReady)}
	app, err := ApplyPayment(items, domain.PaymentModeStandalone, dec("500"))
	require.NoError(t, err)

	assert.False(t, app.Applied)
	assert.NotEmpty(t, app.Message)
	assert.Empty(t, app.Allocations)
}

func TestPaymentTolerance(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		amount string
		ok     bool
	}{
		{"standalone just below", domain.PaymentModeStandalone, "2999.991", true},
		{"standalone just above", domain.PaymentModeStandalone, "3000.009", true},
		{"standalone two cents below", domain.PaymentModeStandalone, "2999.98", false},
		{"standalone two cents above", domain.PaymentModeStandalone, "3000.02", false},
		{"collection just above", domain.PaymentModeCollection, "3000.009", true},
		{"collection two cents above", domain.PaymentModeCollection, "3000.02", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settled, err := ValidateAmount(tc.mode, dec(tc.amount), dec("3000"))
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, settled.LessThanOrEqual(dec("3000")), "settled %s", settled)
		})
	}
}

func TestValidateAmount_RejectsNonPositive(t *testing.T) {
	for _, amount := range []string{"0", "-5", "0.004"} {
		_, err := ValidateAmount(domain.PaymentModeCollection, dec(amount), dec("100"))
		assert.Equal(t, KindInvalidAmount, KindOf(err), "amount %s", amount)
		if err != nil {
			assert.Contains(t, err.Error(), "must be greater than 0")
		}
	}
}

func TestCollectionPayment_ScenarioD(t *testing.T) {
	items := scenarioA(domain.ItemStatusReady)
	partial := dec("1500")

	result, err := Collect(items, &partial, time.Now())
	require.NoError(t, err)

	assert.False(t, result.Collected)
	require.NotNil(t, result.Payment)
	assert.True(t, result.Payment.Applied)
	assert.True(t, result.Summary.BalanceDue.Equal(dec("1500")), "balance %s", result.Summary.BalanceDue)
	for _, it := range result.Items {
		assert.Equal(t, domain.ItemStatusReady, it.Status)
	}

	_, err = Collect(result.Items, nil, time.Now())
	assert.Equal(t, KindPaymentRequired, KindOf(err))

	rest := dec("1500")
	final, err := Collect(result.Items, &rest, time.Now())
	require.NoError(t, err)
	assert.True(t, final.Collected)
	for _, it := range final.Items {
		assert.Equal(t, domain.ItemStatusCollected, it.Status)
		assert.NotNil(t, it.CollectedAt)
	}
}

func TestCollectionPayment_RejectsExcess(t *testing.T) {
	over := dec("3000.02")
	_, err := Collect(scenarioA(domain.ItemStatusReady), &over, time.Now())
	assert.Equal(t, KindExceedsBalance, KindOf(err))
}

func TestCollect_RequiresAllItemsReady(t *testing.T) {
	items := scenarioA(domain.ItemStatusReady)
	items[1].Status = domain.ItemStatusProcessing

	_, err := Collect(items, nil, time.Now())
	assert.Equal(t, KindNotAllItemsReady, KindOf(err))
}

func TestCollect_PaidReceiptWithoutPayment(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "1000", "1000", domain.ItemStatusReady),
		item("b", "2000", "2000", domain.ItemStatusReady),
	}
	result, err := Collect(items, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Collected)

	_, err = Collect(result.Items, nil, time.Now())
	assert.Equal(t, KindNotAllItemsReady, KindOf(err))
}

func TestDistribute_ScenarioE(t *testing.T) {
	shares, err := Distribute(dec("1500"), scenarioA(domain.ItemStatusPending))
	require.NoError(t, err)

	assert.True(t, shares[0].Equal(dec("500")), "item1 %s", shares[0])
	assert.True(t, shares[1].Equal(dec("1000")), "item2 %s", shares[1])
}

func TestDistribute_SumIsExact(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "1000", "0", domain.ItemStatusPending),
		item("b", "1000", "0", domain.ItemStatusPending),
		item("c", "1000", "0", domain.ItemStatusPending),
	}
	for _, amount := range []string{"100", "0.01", "0.02", "1000", "2999.99", "3000"} {
		shares, err := Distribute(dec(amount), items)
		require.NoError(t, err)

		sum := decimal.Zero
		for _, share := range shares {
			sum = sum.Add(share)
		}
		assert.True(t, sum.Equal(dec(amount)), "amount %s summed to %s", amount, sum)
	}
}

func TestDistribute_LargestRemainderGoesToBiggestFraction(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "1", "0", domain.ItemStatusPending),
		item("b", "2", "0", domain.ItemStatusPending),
	}
	// 1.00 split 1:2 is 0.333.. and 0.666..; the spare cent goes to b.
	shares, err := Distribute(dec("1"), items)
	require.NoError(t, err)

	assert.True(t, shares[0].Equal(dec("0.33")), "a %s", shares[0])
	assert.True(t, shares[1].Equal(dec("0.67")), "b %s", shares[1])
}

func TestDistribute_RespectsItemBalance(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "1000", "1000", domain.ItemStatusPending),
		item("b", "2000", "0", domain.ItemStatusPending),
	}
	shares, err := Distribute(dec("1500"), items)
	require.NoError(t, err)

	assert.True(t, shares[0].IsZero(), "a %s", shares[0])
	assert.True(t, shares[1].Equal(dec("1500")), "b %s", shares[1])
}

func TestDistribute_RejectsMoreThanOutstanding(t *testing.T) {
	items := []domain.OrderItem{item("a", "100", "60", domain.ItemStatusPending)}
	_, err := Distribute(dec("50"), items)
	assert.Equal(t, KindExceedsBalance, KindOf(err))
}

func TestDistribute_HugeAmountsStayExact(t *testing.T) {
	items := []domain.OrderItem{
		item("a", "100000000000000000000", "0", domain.ItemStatusPending),
		item("b", "50000000000000000000.01", "0", domain.ItemStatusPending),
	}
	amount := dec("150000000000000000000.01")
	shares, err := Distribute(amount, items)
	require.NoError(t, err)

	assert.True(t, shares[0].Equal(dec("100000000000000000000")), "a %s", shares[0])
	assert.True(t, shares[1].Equal(dec("50000000000000000000.01")), "b %s", shares[1])
}

func TestApplyPayment_StandaloneSettlesHugeReceipt(t *testing.T) {
	items := []domain.OrderItem{item("a", "100000000000000000000", "0", domain.ItemStatusReady)}
	app, err := ApplyPayment(items, domain.PaymentModeStandalone, dec("100000000000000000000"))
	require.NoError(t, err)

	require.True(t, app.Applied)
	assert.True(t, app.After.ReceiptPaid.Equal(dec("100000000000000000000")), "paid %s", app.After.ReceiptPaid)
	assert.True(t, app.After.BalanceDue.IsZero(), "balance %s", app.After.BalanceDue)
}

func TestApplyPayment_DoesNotMutateInput(t *testing.T) {
	items := scenarioA(domain.ItemStatusPending)
	_, err := ApplyPayment(items, domain.PaymentModeDeposit, dec("900"))
	require.NoError(t, err)

	assert.True(t, items[0].PaidAmount.IsZero())
	assert.True(t, items[1].PaidAmount.IsZero())
}

func TestApplyPayment_EmptyReceipt(t *testing.T) {
	_, err := ApplyPayment(nil, domain.PaymentModeStandalone, dec("1"))
	assert.Equal(t, KindReceiptNotFound, KindOf(err))
}

func TestAdvanceStatus(t *testing.T) {
	items := scenarioA(domain.ItemStatusPending)

	processing, err := AdvanceStatus(items, domain.ItemStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusProcessing, EffectiveStatus(processing))

	partlyReady, err := AdvanceStatus(processing, domain.ItemStatusReady, []string{"it-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusReady, partlyReady[0].Status)
	assert.Equal(t, domain.ItemStatusProcessing, partlyReady[1].Status)

	_, err = AdvanceStatus(partlyReady, domain.ItemStatusProcessing, []string{"it-1"})
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	_, err = AdvanceStatus(partlyReady, domain.ItemStatusCollected, nil)
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	_, err = AdvanceStatus(partlyReady, domain.ItemStatusReady, []string{"missing"})
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

// Package engine implements the settlement pass over the payment ledger.
// It is pure: callers load state, run a pass, and persist the result, so
// the same input state always yields the same output state and the same
// set of transfers.
package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/models"
)

// OwnerState is one account's loaded ledger state: its balance and its
// ordered schedule sequence.
type OwnerState struct {
	Owner     string
	Balance   decimal.Decimal
	Schedules []models.PaymentSchedule
}

// Transfer is a single executed payment produced by a pass.
type Transfer struct {
	Owner     string
	Recipient string
	Amount    decimal.Decimal
	Timestamp int64
}

// PassResult holds the state to write back after a pass. Owners contains
// every input owner (whether changed or not) with its updated balance and
// retained schedule sequence. Records holds the new last-transaction
// record for each owner that made at least one payment.
type PassResult struct {
	Owners    []OwnerState
	Transfers []Transfer
	Records   map[string]models.TransactionRecord
}

// RunPass executes one settlement pass at the given Unix time.
//
// Owners are processed in ascending account order. Within an owner the
// sequence is scanned front to back into a fresh retained list, so every
// schedule is visited exactly once even when some are removed:
//
//   - not yet due: kept untouched
//   - due but underfunded: kept untouched, retried on a later pass
//   - due and funded: the balance is debited once (no catch-up for missed
//     intervals), the owner's transaction record is overwritten, and the
//     schedule either advances by its frequency or, when the next
//     occurrence would land at or past its end time, is dropped.
func RunPass(owners []OwnerState, now int64) PassResult {
	sorted := make([]OwnerState, len(owners))
	copy(sorted, owners)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Owner < sorted[j].Owner })

	res := PassResult{
		Owners:  make([]OwnerState, 0, len(sorted)),
		Records: make(map[string]models.TransactionRecord),
	}

	for _, st := range sorted {
		balance := st.Balance
		kept := make([]models.PaymentSchedule, 0, len(st.Schedules))

		for _, sc := range st.Schedules {
			if !sc.Due(now) {
				kept = append(kept, sc)
				continue
			}
			if balance.LessThan(sc.Amount) {
				// Underfunded: the schedule stays due and keeps its place.
				kept = append(kept, sc)
				continue
			}

			balance = balance.Sub(sc.Amount)
			res.Transfers = append(res.Transfers, Transfer{
				Owner:     st.Owner,
				Recipient: sc.Recipient,
				Amount:    sc.Amount,
				Timestamp: now,
			})
			res.Records[st.Owner] = models.TransactionRecord{
				Recipient:  sc.Recipient,
				Amount:     sc.Amount,
				ExecutedAt: now,
			}

			if !sc.OpenEnded() && sc.NextExecutionTime+sc.Frequency >= sc.EndTime {
				// Final occurrence: retire the schedule.
				continue
			}
			sc.NextExecutionTime += sc.Frequency
			kept = append(kept, sc)
		}

		res.Owners = append(res.Owners, OwnerState{
			Owner:     st.Owner,
			Balance:   balance,
			Schedules: kept,
		})
	}

	return res
}

package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceOf is the signed sum of the active entries
func BalanceOf(entries []LedgerEntry) decimal.Decimal {
	return TotalsOf(entries).Balance()
}

// TotalsOf aggregates the active entries into credit and debit totals
func TotalsOf(entries []LedgerEntry) EntryTotals {
	totals := EntryTotals{Credit: decimal.Zero, Debit: decimal.Zero}
	for i := range entries {
		e := &entries[i]
		if !e.Active {
			continue
		}
		totals.Count++
		switch {
		case e.IsCredit():
			totals.Credit = totals.Credit.Add(e.Amount)
		case e.IsDebit():
			totals.Debit = totals.Debit.Add(e.Amount)
		}
	}
	return totals
}

// EffectiveApplied sums the non-reversed applications
func EffectiveApplied(apps []PaymentApplication) decimal.Decimal {
	total := decimal.Zero
	for i := range apps {
		if apps[i].IsEffective() {
			total = total.Add(apps[i].AppliedAmount)
		}
	}
	return total
}

// EffectiveAppliedByEntry sums the non-reversed applications per ledger entry
func EffectiveAppliedByEntry(apps []PaymentApplication) map[uuid.UUID]decimal.Decimal {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for i := range apps {
		if !apps[i].IsEffective() {
			continue
		}
		id := apps[i].LedgerEntryID
		sums[id] = sums[id].Add(apps[i].AppliedAmount)
	}
	return sums
}

// OutstandingAmount is the unsettled portion of a debit entry given the
// sum of its non-reversed applications
func OutstandingAmount(entry *LedgerEntry, settled decimal.Decimal) decimal.Decimal {
	return entry.Amount.Sub(settled)
}

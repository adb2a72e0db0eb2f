package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

const entryService = "ledger_entry"

// EntryService records, corrects and removes ledger entries and answers
// balance queries
type EntryService struct {
	*Engine
}

// NewEntryService creates a new EntryService
func NewEntryService(engine *Engine) *EntryService {
	return &EntryService{Engine: engine}
}

// CreateEntry validates and books a new entry, stamping the balance after
// the transaction and refreshing the customer's cached balance
func (s *EntryService) CreateEntry(ctx context.Context, req CreateEntryRequest, actor ledger.Actor) (resp *EntryResponse, err error) {
	ctx, op := s.begin(ctx, entryService, "create", ledger.ActionCreateLedgerEntry, ledger.EntityLedgerEntry, actor)
	defer func() { s.finish(ctx, op, err) }()

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span,
		telemetry.AttrCustomerID, req.CustomerID,
		telemetry.AttrTransaction, string(req.Type),
		telemetry.AttrAmount, req.Amount,
	)

	var created *ledger.LedgerEntry
	err = s.write(ctx, op, req.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		customer, err := repos.Customers.FindByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}

		entry, err := ledger.NewLedgerEntry(req.CustomerID, req.TransactionDate, req.Type, req.Amount, req.Description, actor.ID)
		if err != nil {
			return err
		}
		entry.Notes = req.Notes
		entry.ReferenceNumber = req.ReferenceNumber
		entry.InvoiceNumber = req.InvoiceNumber
		if req.InvoiceDate != nil {
			d := ledger.DateOf(*req.InvoiceDate)
			entry.InvoiceDate = &d
		}
		entry.PaymentMethod = req.PaymentMethod

		totals, err := repos.Entries.Totals(ctx, customer.ID)
		if err != nil {
			return err
		}
		daily, err := repos.Entries.DailyTotal(ctx, customer.ID, entry.TransactionDate)
		if err != nil {
			return err
		}
		if err := s.rules.ValidateNewEntry(entry, ledger.EntryCheck{
			Customer:   customer,
			Balance:    totals.Balance(),
			DailyTotal: daily,
		}); err != nil {
			return err
		}

		entry.BalanceAfterTransaction = totals.Balance().Add(entry.SignedAmount())
		if err := repos.Entries.Save(ctx, entry); err != nil {
			return err
		}
		if _, err := refreshBalance(ctx, repos, customer); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := ToEntryResponse(created)
	op.target(created.ID)
	op.after = out
	op.description = fmt.Sprintf("Created %s entry of %s for customer %s",
		created.Type, created.Amount.StringFixed(2), created.CustomerID)
	s.metrics.RecordEntry(ctx, string(created.Type), created.Amount)
	return &out, nil
}

// UpdateEntry applies a partial change. A change to amount, type or the
// active flag triggers a full balance recalculation for the customer.
func (s *EntryService) UpdateEntry(ctx context.Context, id uuid.UUID, req UpdateEntryRequest, actor ledger.Actor) (resp *EntryResponse, err error) {
	ctx, op := s.begin(ctx, entryService, "update", ledger.ActionUpdateLedgerEntry, ledger.EntityLedgerEntry, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(id)

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	current, err := s.reads.Entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrEntryID, id, telemetry.AttrCustomerID, current.CustomerID)

	changes := req.Changes()
	var updated *ledger.LedgerEntry
	var before EntryResponse
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		entry, err := repos.Entries.FindByID(ctx, id)
		if err != nil {
			return err
		}
		before = ToEntryResponse(entry)

		customer, err := repos.Customers.FindByID(ctx, entry.CustomerID)
		if err != nil {
			return err
		}
		totals, err := repos.Entries.Totals(ctx, customer.ID)
		if err != nil {
			return err
		}
		settled, err := settledAgainst(ctx, repos, entry.ID)
		if err != nil {
			return err
		}
		chk := ledger.UpdateCheck{Actor: actor, Balance: totals.Balance(), Settled: settled}
		if err := s.rules.ValidateUpdate(entry, changes, chk); err != nil {
			return err
		}

		balanceChanged := entry.Apply(changes, s.rules.Today(), actor.ID)
		if err := repos.Entries.Save(ctx, entry); err != nil {
			return err
		}
		if balanceChanged {
			totals, err := refreshBalance(ctx, repos, customer)
			if err != nil {
				return err
			}
			entry.BalanceAfterTransaction = totals.Balance()
			if err := repos.Entries.Save(ctx, entry); err != nil {
				return err
			}
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := ToEntryResponse(updated)
	op.before = before
	op.after = out
	op.description = "Updated ledger entry " + id.String()
	return &out, nil
}

// DeleteEntry soft-deletes an entry after the deletion guard and refreshes
// the customer's balance
func (s *EntryService) DeleteEntry(ctx context.Context, id uuid.UUID, actor ledger.Actor) (err error) {
	ctx, op := s.begin(ctx, entryService, "delete", ledger.ActionDeleteLedgerEntry, ledger.EntityLedgerEntry, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(id)

	if err = requireActor(actor); err != nil {
		return err
	}
	current, err := s.reads.Entries.FindByID(ctx, id)
	if err != nil {
		return err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrEntryID, id, telemetry.AttrCustomerID, current.CustomerID)

	var before, after EntryResponse
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		entry, err := repos.Entries.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.rules.ValidateDeletion(entry, actor); err != nil {
			return err
		}
		settled, err := settledAgainst(ctx, repos, entry.ID)
		if err != nil {
			return err
		}
		inactive := false
		if err := s.rules.ValidateSettlement(entry, ledger.EntryChanges{Active: &inactive}, settled); err != nil {
			return err
		}
		before = ToEntryResponse(entry)

		entry.SoftDelete(actor.ID)
		if err := repos.Entries.Save(ctx, entry); err != nil {
			return err
		}
		customer, err := repos.Customers.FindByID(ctx, entry.CustomerID)
		if err != nil {
			return err
		}
		if _, err := refreshBalance(ctx, repos, customer); err != nil {
			return err
		}
		after = ToEntryResponse(entry)
		return nil
	})
	if err != nil {
		return err
	}

	op.before = before
	op.after = after
	op.description = "Deleted ledger entry " + id.String()
	return nil
}

// GetEntry returns one entry, active or not
func (s *EntryService) GetEntry(ctx context.Context, id uuid.UUID) (*EntryResponse, error) {
	return query(ctx, entryService, "get", func(ctx context.Context) (*EntryResponse, error) {
		entry, err := s.reads.Entries.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out := ToEntryResponse(entry)
		return &out, nil
	})
}

// ListCustomerEntries pages a customer's active entries
func (s *EntryService) ListCustomerEntries(ctx context.Context, customerID uuid.UUID, filter shared.Filter) (shared.Paginated[EntryResponse], error) {
	return query(ctx, entryService, "list_by_customer", func(ctx context.Context) (shared.Paginated[EntryResponse], error) {
		filter = filter.Normalize()
		entries, total, err := s.reads.Entries.FindByCustomer(ctx, customerID, filter)
		if err != nil {
			return shared.Paginated[EntryResponse]{}, err
		}
		return shared.NewPaginated(ToEntryResponses(entries), total, filter.Page, filter.PageSize), nil
	})
}

// SearchEntries pages active entries matching every supplied criterion
func (s *EntryService) SearchEntries(ctx context.Context, req SearchEntriesRequest) (shared.Paginated[EntryResponse], error) {
	return query(ctx, entryService, "search", func(ctx context.Context) (shared.Paginated[EntryResponse], error) {
		if err := validateRequest(req); err != nil {
			return shared.Paginated[EntryResponse]{}, err
		}
		search := req.search()
		search.Filter = search.Filter.Normalize()
		entries, total, err := s.reads.Entries.Search(ctx, search)
		if err != nil {
			return shared.Paginated[EntryResponse]{}, err
		}
		return shared.NewPaginated(ToEntryResponses(entries), total, search.Page, search.PageSize), nil
	})
}

// UnreconciledEntries lists a customer's active unreconciled entries
func (s *EntryService) UnreconciledEntries(ctx context.Context, customerID uuid.UUID) ([]EntryResponse, error) {
	return query(ctx, entryService, "unreconciled", func(ctx context.Context) ([]EntryResponse, error) {
		entries, err := s.reads.Entries.FindUnreconciled(ctx, customerID)
		if err != nil {
			return nil, err
		}
		return ToEntryResponses(entries), nil
	})
}

// CurrentBalance computes the customer's balance from its active entries
func (s *EntryService) CurrentBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	return query(ctx, entryService, "current_balance", func(ctx context.Context) (decimal.Decimal, error) {
		totals, err := s.reads.Entries.Totals(ctx, customerID)
		if err != nil {
			return decimal.Zero, err
		}
		return totals.Balance(), nil
	})
}

// BalanceSummary returns fresh credit and debit totals for a customer
func (s *EntryService) BalanceSummary(ctx context.Context, customerID uuid.UUID) (*ledger.BalanceSummary, error) {
	return query(ctx, entryService, "balance_summary", func(ctx context.Context) (*ledger.BalanceSummary, error) {
		customer, err := s.reads.Customers.FindByID(ctx, customerID)
		if err != nil {
			return nil, err
		}
		totals, err := s.reads.Entries.Totals(ctx, customerID)
		if err != nil {
			return nil, err
		}
		summary := ledger.NewBalanceSummary(customer, totals)
		return &summary, nil
	})
}

// OutstandingAmount returns the unsettled part of a debit entry
func (s *EntryService) OutstandingAmount(ctx context.Context, entryID uuid.UUID) (decimal.Decimal, error) {
	return query(ctx, entryService, "outstanding_amount", func(ctx context.Context) (decimal.Decimal, error) {
		entry, err := s.reads.Entries.FindByID(ctx, entryID)
		if err != nil {
			return decimal.Zero, err
		}
		if !entry.IsDebit() {
			return decimal.Zero, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeInvalidLedgerEntryType,
				"Outstanding amounts exist only for DEBIT entries")
		}
		settled, err := s.reads.Applications.SumEffectiveByEntries(ctx, []uuid.UUID{entryID})
		if err != nil {
			return decimal.Zero, err
		}
		return ledger.OutstandingAmount(entry, settled[entryID]), nil
	})
}

// CanAcceptCredit reports whether a credit of amount keeps the customer
// within the credit limit
func (s *EntryService) CanAcceptCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error) {
	customer, balance, err := s.customerPosition(ctx, customerID)
	if err != nil {
		return false, err
	}
	return s.rules.CanAcceptCredit(customer, balance, amount), nil
}

// HasSufficientBalance reports whether a debit of amount is allowed by the
// balance rule
func (s *EntryService) HasSufficientBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error) {
	_, balance, err := s.customerPosition(ctx, customerID)
	if err != nil {
		return false, err
	}
	return s.rules.HasSufficientBalance(balance, amount), nil
}

func (s *EntryService) customerPosition(ctx context.Context, customerID uuid.UUID) (*ledger.Customer, decimal.Decimal, error) {
	customer, err := s.reads.Customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	totals, err := s.reads.Entries.Totals(ctx, customerID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return customer, totals.Balance(), nil
}

// Configuration returns the business-rule thresholds in force
func (s *EntryService) Configuration() ConfigurationResponse {
	cfg := s.rules.Config()
	return ConfigurationResponse{
		AllowNegativeBalance:        cfg.AllowNegativeBalance,
		MaxTransactionAmount:        cfg.MaxTransactionAmount,
		MinTransactionAmount:        cfg.MinTransactionAmount,
		MaxDailyTransactionLimit:    cfg.MaxDailyTransactionLimit,
		RequireFutureDateValidation: cfg.RequireFutureDateValidation,
	}
}

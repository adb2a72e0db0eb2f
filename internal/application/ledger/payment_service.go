package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/logger"
	"github.com/ledgerly/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	paymentService   = "payment"
	autoApplyNotes   = "Auto-applied (FIFO)"
	idempotencyScope = "payment:"
)

// PaymentService records payments and allocates them against debit entries
type PaymentService struct {
	*Engine
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(engine *Engine) *PaymentService {
	return &PaymentService{Engine: engine}
}

// RecordPayment stores a received payment with nothing applied. A replayed
// idempotency key fails with DUPLICATE_REQUEST.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest, actor ledger.Actor) (resp *PaymentResponse, err error) {
	ctx, op := s.begin(ctx, paymentService, "record", ledger.ActionRecordPayment, ledger.EntityPayment, actor)
	defer func() { s.finish(ctx, op, err) }()

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	telemetry.SetAttributes(op.span, telemetry.AttrCustomerID, req.CustomerID, telemetry.AttrAmount, req.Amount)

	if key != "" && s.idempotency != nil {
		claimed, claimErr := s.idempotency.Claim(ctx, idempotencyScope+key, s.idempotencyTTL)
		if claimErr != nil {
			return nil, fmt.Errorf("failed to claim idempotency key: %w", claimErr)
		}
		if !claimed {
			return nil, duplicatePayment(key)
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idempotency.Release(context.WithoutCancel(ctx), idempotencyScope+key); relErr != nil {
				logger.WithLogger(ctx, s.logger).Warn("Failed to release idempotency key",
					zap.String("idempotency_key", key), zap.Error(relErr))
			}
		}()
	}

	var recorded *ledger.Payment
	err = s.write(ctx, op, req.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		if key != "" {
			exists, err := repos.Payments.ExistsByIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				return duplicatePayment(key)
			}
		}

		customer, err := repos.Customers.FindByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if err := s.rules.ValidateCustomer(customer); err != nil {
			return err
		}
		if err := s.rules.ValidateAmount(req.Amount); err != nil {
			return err
		}

		payment, err := ledger.NewPayment(req.CustomerID, req.PaymentDate, req.Amount, req.Status, actor.ID)
		if err != nil {
			return err
		}
		payment.Description = strings.TrimSpace(req.Description)
		payment.Notes = req.Notes
		payment.ReferenceNumber = req.ReferenceNumber
		payment.PaymentMethod = req.PaymentMethod
		payment.BankDetails = req.BankDetails
		payment.CheckNumber = req.CheckNumber
		payment.AdvancePayment = req.AdvancePayment
		payment.IdempotencyKey = key
		if req.DueDate != nil {
			payment.SetDueDate(*req.DueDate)
		}
		if err := repos.Payments.Save(ctx, payment); err != nil {
			return err
		}
		recorded = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := ToPaymentResponse(recorded)
	op.target(recorded.ID)
	op.after = out
	op.description = fmt.Sprintf("Recorded payment of %s for customer %s", recorded.Amount.StringFixed(2), recorded.CustomerID)
	s.metrics.RecordPayment(ctx, string(recorded.Status), recorded.Amount)
	return &out, nil
}

func duplicatePayment(key string) error {
	return shared.NewDomainError(shared.ErrDuplicateRequest.Code,
		fmt.Sprintf("A payment was already recorded with idempotency key %q", key))
}

// ApplyPayment allocates parts of a payment to the listed debit entries.
// Each amount must fit the entry's outstanding amount and the total must
// fit the payment's unapplied amount.
func (s *PaymentService) ApplyPayment(ctx context.Context, paymentID uuid.UUID, req ApplyPaymentRequest, actor ledger.Actor) (resp *ApplyResult, err error) {
	ctx, op := s.begin(ctx, paymentService, "apply", ledger.ActionApplyPayment, ledger.EntityPayment, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(paymentID)

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	current, err := s.reads.Payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrPaymentID, paymentID, telemetry.AttrCustomerID, current.CustomerID)

	var result *ApplyResult
	var before PaymentResponse
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		payment, err := repos.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		before = ToPaymentResponse(payment)
		result, err = s.apply(ctx, repos, payment, req.requests(), actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	op.before = before
	op.after = result
	op.description = fmt.Sprintf("Applied %s of payment %s to %d entries",
		result.TotalApplied.StringFixed(2), paymentID, len(result.Applications))
	return result, nil
}

// AutoApply settles the customer's open debits oldest first with the
// payment's unapplied amount
func (s *PaymentService) AutoApply(ctx context.Context, paymentID uuid.UUID, actor ledger.Actor) (resp *ApplyResult, err error) {
	ctx, op := s.begin(ctx, paymentService, "auto_apply", ledger.ActionAutoApplyPayment, ledger.EntityPayment, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(paymentID)

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	current, err := s.reads.Payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrPaymentID, paymentID, telemetry.AttrCustomerID, current.CustomerID)

	var result *ApplyResult
	var before PaymentResponse
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		payment, err := repos.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		before = ToPaymentResponse(payment)

		if payment.IsFullyApplied() {
			return ledger.NewRuleViolation(ledger.RulePayment, ledger.CodePaymentFullyApplied, "Payment is already fully applied")
		}
		if !payment.AcceptsApplications() {
			return invalidPaymentStatus(payment)
		}

		debits, err := repos.Entries.FindOpenDebits(ctx, payment.CustomerID)
		if err != nil {
			return err
		}
		if len(debits) == 0 {
			return ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeNoOutstandingEntries, "Customer has no outstanding debit entries")
		}
		ids := make([]uuid.UUID, len(debits))
		for i := range debits {
			ids[i] = debits[i].ID
		}
		settled, err := repos.Applications.SumEffectiveByEntries(ctx, ids)
		if err != nil {
			return err
		}
		targets := make([]ledger.AllocationTarget, len(debits))
		for i := range debits {
			targets[i] = ledger.AllocationTarget{
				EntryID:         debits[i].ID,
				TransactionDate: debits[i].TransactionDate,
				CreatedAt:       debits[i].CreatedAt,
				Outstanding:     ledger.OutstandingAmount(&debits[i], settled[debits[i].ID]),
			}
		}

		plan, err := ledger.AllocateFIFO(payment.UnappliedAmount(), targets)
		if err != nil {
			return err
		}
		if len(plan.Allocations) == 0 {
			return ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeNoApplicableAmount, "No outstanding amount to apply the payment to")
		}
		result, err = s.apply(ctx, repos, payment, plan.Requests(autoApplyNotes), actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	op.before = before
	op.after = result
	op.description = fmt.Sprintf("Auto-applied %s of payment %s to %d entries",
		result.TotalApplied.StringFixed(2), paymentID, len(result.Applications))
	return result, nil
}

func invalidPaymentStatus(p *ledger.Payment) error {
	return ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeInvalidPaymentStatus,
		fmt.Sprintf("Payment in status %s cannot be applied", p.Status))
}

// apply records one application per request inside the caller's unit of
// work and resynchronizes the payment's applied amount from the rows. The
// customer is loaded before the settled sums are read and saved under its
// version check at the end, so concurrent applications conflict.
func (s *PaymentService) apply(ctx context.Context, repos ledger.Repositories, payment *ledger.Payment, reqs []ledger.ApplicationRequest, actor ledger.Actor) (*ApplyResult, error) {
	if !payment.AcceptsApplications() {
		return nil, invalidPaymentStatus(payment)
	}
	customer, err := repos.Customers.FindByID(ctx, payment.CustomerID)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if !r.Amount.IsPositive() {
			return nil, ledger.NewRuleViolation(ledger.RuleAmount, ledger.CodeNegativeOrZeroAmount, "Applied amount must be greater than zero").
				With("amount", r.Amount)
		}
		if !r.Amount.Equal(r.Amount.Round(2)) {
			return nil, ledger.NewRuleViolation(ledger.RuleAmount, ledger.CodeInvalidDecimalPlaces, "Applied amount cannot have more than 2 decimal places").
				With("amount", r.Amount)
		}
	}

	total := ledger.TotalRequested(reqs)
	if !payment.CanBeApplied(total) {
		return nil, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeInsufficientPayment,
			fmt.Sprintf("Requested %s exceeds the unapplied amount %s", total.StringFixed(2), payment.UnappliedAmount().StringFixed(2))).
			With("unapplied_amount", payment.UnappliedAmount()).
			With("requested_amount", total)
	}

	ids := make([]uuid.UUID, 0, len(reqs))
	seen := make(map[uuid.UUID]bool, len(reqs))
	for _, r := range reqs {
		if !seen[r.LedgerEntryID] {
			seen[r.LedgerEntryID] = true
			ids = append(ids, r.LedgerEntryID)
		}
	}
	entries, err := repos.Entries.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*ledger.LedgerEntry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}
	settled, err := repos.Applications.SumEffectiveByEntries(ctx, ids)
	if err != nil {
		return nil, err
	}

	requested := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, r := range reqs {
		entry, ok := byID[r.LedgerEntryID]
		if !ok {
			return nil, shared.NewNotFoundError("Ledger entry " + r.LedgerEntryID.String())
		}
		if entry.CustomerID != payment.CustomerID {
			return nil, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeCustomerMismatch,
				"Ledger entry "+entry.ID.String()+" belongs to a different customer than the payment")
		}
		if !entry.Active {
			return nil, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeInactiveLedgerEntry,
				"Ledger entry "+entry.ID.String()+" is inactive")
		}
		if !entry.IsDebit() {
			return nil, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeInvalidLedgerEntryType,
				"Payments can only be applied to DEBIT entries")
		}
		outstanding := ledger.OutstandingAmount(entry, settled[entry.ID]).Sub(requested[entry.ID])
		if r.Amount.GreaterThan(outstanding) {
			return nil, ledger.NewRuleViolation(ledger.RulePayment, ledger.CodeExceedsOutstandingAmount,
				fmt.Sprintf("Cannot apply %s to entry %s, only %s is outstanding", r.Amount.StringFixed(2), entry.ID, outstanding.StringFixed(2))).
				With("outstanding_amount", outstanding).
				With("requested_amount", r.Amount)
		}
		requested[entry.ID] = requested[entry.ID].Add(r.Amount)
	}

	now := s.rules.Now()
	apps := make([]ledger.PaymentApplication, 0, len(reqs))
	for _, r := range reqs {
		app := ledger.NewPaymentApplication(payment.ID, r.LedgerEntryID, r.Amount, r.Notes, actor.ID, now)
		if err := repos.Applications.Save(ctx, app); err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}

	if err := payment.ApplyAmount(total); err != nil {
		return nil, err
	}
	applied, err := repos.Applications.SumEffectiveByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.SyncApplied(applied)
	if err := repos.Payments.SaveWithLock(ctx, payment); err != nil {
		return nil, err
	}
	if err := repos.Customers.SaveWithLock(ctx, customer); err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Payment:      ToPaymentResponse(payment),
		Applications: ToApplicationResponses(apps),
		TotalApplied: total,
	}
	for _, id := range ids {
		if ledger.OutstandingAmount(byID[id], settled[id]).Sub(requested[id]).IsZero() {
			result.FullySettled = append(result.FullySettled, id)
		} else {
			result.PartiallySettled = append(result.PartiallySettled, id)
		}
	}
	return result, nil
}

// ReverseApplication flags an application as reversed and gives its amount
// back to the payment. The application row is kept.
func (s *PaymentService) ReverseApplication(ctx context.Context, applicationID uuid.UUID, req ReverseApplicationRequest, actor ledger.Actor) (resp *ReversalResult, err error) {
	ctx, op := s.begin(ctx, paymentService, "reverse_application", ledger.ActionReverseApplication, ledger.EntityPaymentApplication, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(applicationID)

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	app, err := s.reads.Applications.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	current, err := s.reads.Payments.FindByID(ctx, app.PaymentID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrPaymentID, current.ID, telemetry.AttrCustomerID, current.CustomerID)

	var result *ReversalResult
	var before ApplicationResponse
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		app, err := repos.Applications.FindByID(ctx, applicationID)
		if err != nil {
			return err
		}
		before = ToApplicationResponse(app)
		payment, err := repos.Payments.FindByID(ctx, app.PaymentID)
		if err != nil {
			return err
		}
		customer, err := repos.Customers.FindByID(ctx, payment.CustomerID)
		if err != nil {
			return err
		}

		if err := app.Reverse(actor.ID, strings.TrimSpace(req.Reason), s.rules.Now()); err != nil {
			return err
		}
		if err := repos.Applications.Save(ctx, app); err != nil {
			return err
		}
		if err := payment.ReverseApplication(app.AppliedAmount); err != nil {
			return err
		}
		applied, err := repos.Applications.SumEffectiveByPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		payment.SyncApplied(applied)
		if err := repos.Payments.SaveWithLock(ctx, payment); err != nil {
			return err
		}
		if err := repos.Customers.SaveWithLock(ctx, customer); err != nil {
			return err
		}
		result = &ReversalResult{Application: ToApplicationResponse(app), Payment: ToPaymentResponse(payment)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	op.before = before
	op.after = result.Application
	op.description = fmt.Sprintf("Reversed application of %s from payment %s",
		result.Application.AppliedAmount.StringFixed(2), result.Payment.ID)
	return result, nil
}

// GetPayment returns a payment with its non-reversed applications
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	return query(ctx, paymentService, "get", func(ctx context.Context) (*PaymentResponse, error) {
		payment, err := s.reads.Payments.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		apps, err := s.reads.Applications.FindByPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		out := ToPaymentResponse(payment)
		for i := range apps {
			if apps[i].IsEffective() {
				out.Applications = append(out.Applications, ToApplicationResponse(&apps[i]))
			}
		}
		return &out, nil
	})
}

// PaymentApplications lists every application of a payment, reversed ones included
func (s *PaymentService) PaymentApplications(ctx context.Context, paymentID uuid.UUID) ([]ApplicationResponse, error) {
	return query(ctx, paymentService, "applications", func(ctx context.Context) ([]ApplicationResponse, error) {
		apps, err := s.reads.Applications.FindByPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return ToApplicationResponses(apps), nil
	})
}

// ListCustomerPayments pages a customer's active payments
func (s *PaymentService) ListCustomerPayments(ctx context.Context, customerID uuid.UUID, filter shared.Filter) (shared.Paginated[PaymentResponse], error) {
	return query(ctx, paymentService, "list_by_customer", func(ctx context.Context) (shared.Paginated[PaymentResponse], error) {
		filter = filter.Normalize()
		payments, total, err := s.reads.Payments.FindAll(ctx, ledger.PaymentFilter{Filter: filter, CustomerID: &customerID})
		if err != nil {
			return shared.Paginated[PaymentResponse]{}, err
		}
		return shared.NewPaginated(ToPaymentResponses(payments), total, filter.Page, filter.PageSize), nil
	})
}

// UnappliedPayments lists a customer's payments with money left to allocate
func (s *PaymentService) UnappliedPayments(ctx context.Context, customerID uuid.UUID) ([]PaymentResponse, error) {
	return query(ctx, paymentService, "unapplied", func(ctx context.Context) ([]PaymentResponse, error) {
		payments, err := s.reads.Payments.FindUnapplied(ctx, customerID)
		if err != nil {
			return nil, err
		}
		return ToPaymentResponses(payments), nil
	})
}

// UnappliedAmount returns the part of a payment not yet allocated
func (s *PaymentService) UnappliedAmount(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	return query(ctx, paymentService, "unapplied_amount", func(ctx context.Context) (decimal.Decimal, error) {
		payment, err := s.reads.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return decimal.Zero, err
		}
		return payment.UnappliedAmount(), nil
	})
}

// OutstandingBalance reports what a customer owes against what they have
// paid but not yet allocated
func (s *PaymentService) OutstandingBalance(ctx context.Context, customerID uuid.UUID) (*ledger.OutstandingBalanceReport, error) {
	return query(ctx, paymentService, "outstanding_balance", func(ctx context.Context) (*ledger.OutstandingBalanceReport, error) {
		customer, err := s.reads.Customers.FindByID(ctx, customerID)
		if err != nil {
			return nil, err
		}
		debits, err := s.reads.Entries.FindActiveDebits(ctx, customerID)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(debits))
		for i := range debits {
			ids[i] = debits[i].ID
		}
		settled, err := s.reads.Applications.SumEffectiveByEntries(ctx, ids)
		if err != nil {
			return nil, err
		}
		payments, err := s.reads.Payments.FindUnapplied(ctx, customerID)
		if err != nil {
			return nil, err
		}
		return ledger.BuildOutstandingReport(customer, debits, settled, payments, s.rules.Today()), nil
	})
}

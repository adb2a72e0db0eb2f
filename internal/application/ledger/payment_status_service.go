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
	"go.uber.org/zap"
)

const paymentStatusService = "payment_status"

// PaymentStatusService drives the payment status workflow: explicit
// updates, disputes, reminders and the overdue sweep
type PaymentStatusService struct {
	*Engine
}

// NewPaymentStatusService creates a new PaymentStatusService
func NewPaymentStatusService(engine *Engine) *PaymentStatusService {
	return &PaymentStatusService{Engine: engine}
}

// UpdateStatus moves a payment to a new status. PAID stamps the processed
// date, OVERDUE records the overdue day count and DISPUTED opens a dispute
// with the notes as reason.
func (s *PaymentStatusService) UpdateStatus(ctx context.Context, paymentID uuid.UUID, req UpdateStatusRequest, actor ledger.Actor) (*PaymentResponse, error) {
	return s.mutate(ctx, "update_status", ledger.ActionUpdatePaymentStatus, paymentID, actor, req, func(p *ledger.Payment) (string, error) {
		from := p.Status
		if req.DueDate != nil {
			p.SetDueDate(*req.DueDate)
		}
		now := s.rules.Now()

		var err error
		switch req.Status {
		case ledger.PaymentPaid:
			err = p.MarkPaid(actor.ID, req.Notes, now)
		case ledger.PaymentDisputed:
			err = p.Dispute(actor.ID, req.Notes, "", now)
		case ledger.PaymentOverdue:
			if err = p.UpdateStatus(ledger.PaymentOverdue, actor.ID, req.Notes, now); err == nil {
				p.OverdueDays = p.CalculateOverdueDays(now)
			}
		default:
			err = p.UpdateStatus(req.Status, actor.ID, req.Notes, now)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Payment status changed from %s to %s", from, p.Status), nil
	})
}

// Dispute marks a payment as disputed
func (s *PaymentStatusService) Dispute(ctx context.Context, paymentID uuid.UUID, req DisputeRequest, actor ledger.Actor) (*PaymentResponse, error) {
	return s.mutate(ctx, "dispute", ledger.ActionDisputePayment, paymentID, actor, req, func(p *ledger.Payment) (string, error) {
		if err := p.Dispute(actor.ID, req.Reason, req.Notes, s.rules.Now()); err != nil {
			return "", err
		}
		return "Payment disputed: " + strings.TrimSpace(req.Reason), nil
	})
}

// ResolveDispute returns a disputed payment to PENDING
func (s *PaymentStatusService) ResolveDispute(ctx context.Context, paymentID uuid.UUID, req ResolveDisputeRequest, actor ledger.Actor) (*PaymentResponse, error) {
	return s.mutate(ctx, "resolve_dispute", ledger.ActionResolveDispute, paymentID, actor, req, func(p *ledger.Payment) (string, error) {
		if err := p.ResolveDispute(actor.ID, strings.TrimSpace(req.Resolution), s.rules.Now()); err != nil {
			return "", err
		}
		return "Dispute resolved: " + strings.TrimSpace(req.Resolution), nil
	})
}

// RecordReminder counts a payment reminder sent today
func (s *PaymentStatusService) RecordReminder(ctx context.Context, paymentID uuid.UUID, actor ledger.Actor) (*PaymentResponse, error) {
	return s.mutate(ctx, "record_reminder", ledger.ActionRecordReminder, paymentID, actor, nil, func(p *ledger.Payment) (string, error) {
		p.RecordReminder(s.rules.Now())
		return fmt.Sprintf("Reminder %d recorded", p.ReminderCount), nil
	})
}

// mutate runs one audited status change on a payment under its customer's lock
func (s *PaymentStatusService) mutate(ctx context.Context, method, action string, paymentID uuid.UUID, actor ledger.Actor, req any, change func(p *ledger.Payment) (string, error)) (resp *PaymentResponse, err error) {
	ctx, op := s.begin(ctx, paymentStatusService, method, action, ledger.EntityPayment, actor)
	defer func() { s.finish(ctx, op, err) }()
	op.target(paymentID)

	if err = requireActor(actor); err != nil {
		return nil, err
	}
	if req != nil {
		if err = validateRequest(req); err != nil {
			return nil, err
		}
	}
	current, err := s.reads.Payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(op.span, telemetry.AttrPaymentID, paymentID, telemetry.AttrCustomerID, current.CustomerID)

	var before, after PaymentResponse
	var description string
	err = s.write(ctx, op, current.CustomerID, func(ctx context.Context, repos ledger.Repositories) error {
		payment, err := repos.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		before = ToPaymentResponse(payment)
		if description, err = change(payment); err != nil {
			return err
		}
		if err := repos.Payments.SaveWithLock(ctx, payment); err != nil {
			return err
		}
		after = ToPaymentResponse(payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(op.span, telemetry.AttrPaymentStatus, string(after.Status))
	op.before = before
	op.after = after
	op.description = description
	return &after, nil
}

// PaymentsByStatus pages active payments in one status
func (s *PaymentStatusService) PaymentsByStatus(ctx context.Context, status ledger.PaymentStatus, filter shared.Filter) (shared.Paginated[PaymentResponse], error) {
	return query(ctx, paymentStatusService, "by_status", func(ctx context.Context) (shared.Paginated[PaymentResponse], error) {
		if !status.IsValid() {
			return shared.Paginated[PaymentResponse]{}, ledger.NewRuleViolation(ledger.RuleStatus, ledger.CodeInvalidPaymentStatus,
				"Unknown payment status "+status.String())
		}
		filter = filter.Normalize()
		payments, total, err := s.reads.Payments.FindAll(ctx, ledger.PaymentFilter{Filter: filter, Status: &status})
		if err != nil {
			return shared.Paginated[PaymentResponse]{}, err
		}
		return shared.NewPaginated(ToPaymentResponses(payments), total, filter.Page, filter.PageSize), nil
	})
}

// OverduePayments pages OVERDUE payments
func (s *PaymentStatusService) OverduePayments(ctx context.Context, filter shared.Filter) (shared.Paginated[PaymentResponse], error) {
	return s.PaymentsByStatus(ctx, ledger.PaymentOverdue, filter)
}

// DisputedPayments pages DISPUTED payments
func (s *PaymentStatusService) DisputedPayments(ctx context.Context, filter shared.Filter) (shared.Paginated[PaymentResponse], error) {
	return s.PaymentsByStatus(ctx, ledger.PaymentDisputed, filter)
}

// StatusSummary counts active payments per status
func (s *PaymentStatusService) StatusSummary(ctx context.Context) (*ledger.PaymentStatusSummary, error) {
	return query(ctx, paymentStatusService, "summary", func(ctx context.Context) (*ledger.PaymentStatusSummary, error) {
		counts, err := s.reads.Payments.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		summary := ledger.NewPaymentStatusSummary(counts)
		return &summary, nil
	})
}

// CheckOverduePayments marks every waiting payment past its due date as
// OVERDUE on behalf of the given service identity. Each payment is changed
// in its own unit of work; one failing payment does not stop the sweep.
func (s *PaymentStatusService) CheckOverduePayments(ctx context.Context, actor ledger.Actor) (result *OverdueCheckResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, paymentStatusService, "check_overdue",
		telemetry.WithAttribute(telemetry.AttrActorID, actor.ID))
	defer telemetry.EndSpan(span, &err)
	log := logger.WithLogger(ctx, s.logger)

	if err = requireActor(actor); err != nil {
		s.sweepFailed(ctx, actor, err)
		return nil, err
	}

	now := s.rules.Now()
	result = &OverdueCheckResult{RunDate: ledger.DateOf(now), Marked: make([]uuid.UUID, 0)}
	candidates, err := s.reads.Payments.FindOverdueCandidates(ctx, now)
	if err != nil {
		s.sweepFailed(ctx, actor, err)
		return nil, err
	}
	result.Checked = len(candidates)

	for i := range candidates {
		marked, markErr := s.markOverdue(ctx, candidates[i].ID, candidates[i].CustomerID, actor)
		if markErr != nil {
			result.Failures++
			log.Warn("Failed to mark payment overdue",
				zap.String("payment_id", candidates[i].ID.String()),
				zap.Error(markErr),
			)
			continue
		}
		if marked {
			result.Marked = append(result.Marked, candidates[i].ID)
		}
	}

	s.metrics.RecordOverdueMarked(ctx, len(result.Marked))
	telemetry.SetAttributes(span, "ledger.overdue_marked", len(result.Marked), "ledger.overdue_failures", result.Failures)

	if len(result.Marked) > 0 {
		s.record(ctx, actor, ledger.AuditRecord{
			Action:      ledger.ActionOverdueCheckCompleted,
			EntityType:  ledger.EntitySystem,
			Outcome:     ledger.OutcomeSuccess,
			Description: fmt.Sprintf("Marked %d of %d payments as overdue", len(result.Marked), result.Checked),
		})
	}
	if result.Failures > 0 {
		err = fmt.Errorf("failed to mark %d of %d overdue payments", result.Failures, result.Checked)
		s.sweepFailed(ctx, actor, err)
		return result, err
	}

	log.Info("Overdue payment check completed",
		zap.Int("checked", result.Checked),
		zap.Int("marked", len(result.Marked)),
	)
	return result, nil
}

// markOverdue flips one payment to OVERDUE and audits the change. It reports
// false when the payment stopped qualifying since it was listed.
func (s *PaymentStatusService) markOverdue(ctx context.Context, paymentID, customerID uuid.UUID, actor ledger.Actor) (marked bool, err error) {
	ctx, op := s.begin(ctx, paymentStatusService, "mark_overdue", ledger.ActionAutoMarkOverdue, ledger.EntityPayment, actor)
	op.target(paymentID)

	var before, after PaymentResponse
	err = s.write(ctx, op, customerID, func(ctx context.Context, repos ledger.Repositories) error {
		payment, err := repos.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		now := s.rules.Now()
		if !payment.IsOverdue(now) {
			marked = false
			return nil
		}
		before = ToPaymentResponse(payment)
		if err := payment.MarkOverdue(actor.ID, now); err != nil {
			return err
		}
		if err := repos.Payments.SaveWithLock(ctx, payment); err != nil {
			return err
		}
		after = ToPaymentResponse(payment)
		marked = true
		return nil
	})

	if err != nil || marked {
		op.before = before
		op.after = after
		op.description = fmt.Sprintf("Payment automatically marked overdue (%d days)", after.OverdueDays)
		s.finish(ctx, op, err)
	} else {
		telemetry.EndSpan(op.span, &err)
	}
	return marked, err
}

func (s *PaymentStatusService) sweepFailed(ctx context.Context, actor ledger.Actor, err error) {
	s.record(ctx, actor, ledger.AuditRecord{
		Action:       ledger.ActionOverdueCheckFailed,
		EntityType:   ledger.EntitySystem,
		Outcome:      ledger.OutcomeFailure,
		RuleCode:     shared.ErrorCode(err),
		ErrorMessage: err.Error(),
		Description:  "Overdue payment check failed",
	})
}

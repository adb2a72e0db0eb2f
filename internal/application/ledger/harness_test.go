package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/cache"
	"github.com/ledgerly/backend/internal/infrastructure/lock"
	"github.com/ledgerly/backend/internal/infrastructure/persistence"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(year int, month time.Month, day int) time.Time {
	return ledger.NewDate(year, month, day)
}

var (
	staff = ledger.Actor{ID: uuid.New(), Name: "clerk", Role: ledger.RoleStaff}
	admin = ledger.Actor{ID: uuid.New(), Name: "owner", Role: ledger.RoleAdmin}
)

// auditCollector keeps every record it receives
type auditCollector struct {
	mu      sync.Mutex
	records []ledger.AuditRecord
}

func (c *auditCollector) Record(_ context.Context, rec ledger.AuditRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *auditCollector) all() []ledger.AuditRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ledger.AuditRecord, len(c.records))
	copy(out, c.records)
	return out
}

func (c *auditCollector) byAction(action string) []ledger.AuditRecord {
	var out []ledger.AuditRecord
	for _, rec := range c.all() {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

func (c *auditCollector) last(t *testing.T) ledger.AuditRecord {
	t.Helper()
	all := c.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type harness struct {
	db       *gorm.DB
	audit    *auditCollector
	engine   *Engine
	entries  *EntryService
	payments *PaymentService
	statuses *PaymentStatusService
}

type harnessOption func(cfg *ledger.RuleConfig, opts *[]EngineOption)

func withRules(fn func(cfg *ledger.RuleConfig)) harnessOption {
	return func(cfg *ledger.RuleConfig, _ *[]EngineOption) { fn(cfg) }
}

func withEngineOption(opt EngineOption) harnessOption {
	return func(_ *ledger.RuleConfig, opts *[]EngineOption) { *opts = append(*opts, opt) }
}

// newHarness wires the services over an in-memory SQLite ledger with the
// clock fixed at testNow
func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	db := persistencetest.NewSQLite(t)
	audit := &auditCollector{}

	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	cfg := ledger.DefaultRuleConfig()
	engineOpts := []EngineOption{WithAuditSink(audit), WithIdempotencyStore(store, time.Hour)}
	for _, o := range options {
		o(&cfg, &engineOpts)
	}

	rules := ledger.NewRuleValidator(cfg, ledger.WithClock(func() time.Time { return testNow }))
	uow := persistence.NewGormUnitOfWork(db)
	engine := NewEngine(uow, uow.Repositories(), lock.NewMemoryLocker(), rules, engineOpts...)

	return &harness{
		db:       db,
		audit:    audit,
		engine:   engine,
		entries:  NewEntryService(engine),
		payments: NewPaymentService(engine),
		statuses: NewPaymentStatusService(engine),
	}
}

func (h *harness) customer(t *testing.T, creditLimit string) *ledger.Customer {
	t.Helper()
	c, err := ledger.NewCustomer("Acme Traders", dec(creditLimit))
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormCustomerRepository(h.db).Save(context.Background(), c))
	return c
}

func (h *harness) book(t *testing.T, customerID uuid.UUID, on time.Time, txType ledger.TransactionType, amount string) *EntryResponse {
	t.Helper()
	e, err := h.entries.CreateEntry(context.Background(), CreateEntryRequest{
		CustomerID:      customerID,
		TransactionDate: on,
		Type:            txType,
		Amount:          dec(amount),
		Description:     string(txType) + " " + amount,
	}, staff)
	require.NoError(t, err)
	return e
}

func (h *harness) pay(t *testing.T, customerID uuid.UUID, amount string) *PaymentResponse {
	t.Helper()
	p, err := h.payments.RecordPayment(context.Background(), RecordPaymentRequest{
		CustomerID:  customerID,
		PaymentDate: testNow,
		Amount:      dec(amount),
	}, staff)
	require.NoError(t, err)
	return p
}

func (h *harness) storedCustomer(t *testing.T, id uuid.UUID) *ledger.Customer {
	t.Helper()
	c, err := persistence.NewGormCustomerRepository(h.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) storedPayment(t *testing.T, id uuid.UUID) *ledger.Payment {
	t.Helper()
	p, err := persistence.NewGormPaymentRepository(h.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) outstanding(t *testing.T, entryID uuid.UUID) decimal.Decimal {
	t.Helper()
	amount, err := h.entries.OutstandingAmount(context.Background(), entryID)
	require.NoError(t, err)
	return amount
}

// assertBalanceInvariant checks that the cached balance equals the signed
// sum of the customer's active entries
func (h *harness) assertBalanceInvariant(t *testing.T, customerID uuid.UUID) {
	t.Helper()
	totals, err := persistence.NewGormLedgerEntryRepository(h.db).Totals(context.Background(), customerID)
	require.NoError(t, err)
	c := h.storedCustomer(t, customerID)
	assert.True(t, c.CurrentBalance.Equal(totals.Balance()),
		"cached balance %s, entries sum to %s", c.CurrentBalance, totals.Balance())
}

// assertConservation checks that a payment's applied amount equals the sum
// of its non-reversed applications and never exceeds the payment
func (h *harness) assertConservation(t *testing.T, paymentID uuid.UUID) {
	t.Helper()
	p := h.storedPayment(t, paymentID)
	sum, err := persistence.NewGormPaymentApplicationRepository(h.db).SumEffectiveByPayment(context.Background(), paymentID)
	require.NoError(t, err)
	assert.True(t, p.AppliedAmount.Equal(sum), "applied %s, applications sum to %s", p.AppliedAmount, sum)
	assert.True(t, p.AppliedAmount.LessThanOrEqual(p.Amount))
	assert.True(t, p.RemainingAmount.Equal(p.Amount.Sub(p.AppliedAmount)))
}

func assertRuleCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, shared.ErrorCode(err), err.Error())
}

package installments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/campfees/installments/internal/jobs"
	"github.com/campfees/installments/internal/messaging"
	"github.com/campfees/installments/internal/parents"
	"github.com/campfees/installments/internal/payments"
	"github.com/campfees/installments/internal/shared"
)

const (
	// StageTransition tags errors raised while advancing statuses.
	StageTransition = "transition"
	// StageReminder tags errors raised while firing reminders.
	StageReminder = "reminder"

	claimModule        = "installments.reminder"
	defaultConcurrency = 8
	bookkeepingRetries = 3
)

// PaymentStore is the slice of the payment store the engine needs.
type PaymentStore interface {
	GetPayment(ctx context.Context, id int64) (payments.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status payments.Status, paidAt time.Time) (bool, error)
}

// ParentDirectory resolves reminder recipients.
type ParentDirectory interface {
	GetParent(ctx context.Context, id int64) (parents.Parent, error)
}

// ClaimStore records reminder keys so a reminder goes out at most once per
// installment and day, even across overlapping passes.
type ClaimStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store       Store
	Payments    PaymentStore
	Parents     ParentDirectory
	Deliverer   messaging.Deliverer
	Claims      ClaimStore
	Logger      *slog.Logger
	Location    *time.Location
	Concurrency int
	Metrics     *jobmetrics.Metrics
	Clock       func() time.Time
}

// Engine runs scheduling passes and the synchronous installment operations.
type Engine struct {
	store       Store
	payments    PaymentStore
	parents     ParentDirectory
	deliverer   messaging.Deliverer
	claims      ClaimStore
	logger      *slog.Logger
	loc         *time.Location
	concurrency int
	metrics     *jobmetrics.Metrics
	clock       func() time.Time
	machine     StateMachine
	policy      ReminderPolicy
}

// NewEngine builds an Engine. Store, Payments and Parents are required.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil || cfg.Payments == nil || cfg.Parents == nil {
		return nil, errors.New("installments: engine requires store, payments and parents")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "installments.engine"))
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	deliverer := cfg.Deliverer
	if deliverer == nil {
		deliverer = messaging.LogDeliverer{Logger: logger}
	}
	claims := cfg.Claims
	if claims == nil {
		claims = shared.NewMemoryIdempotencyStore()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:       cfg.Store,
		payments:    cfg.Payments,
		parents:     cfg.Parents,
		deliverer:   deliverer,
		claims:      claims,
		logger:      logger,
		loc:         loc,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		clock:       clock,
		machine:     NewStateMachine(loc),
		policy:      NewReminderPolicy(loc),
	}, nil
}

// RecordError describes one installment that failed during a pass.
type RecordError struct {
	InstallmentID uuid.UUID
	Stage         string
	Err           error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.InstallmentID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// PassSummary reports the outcome of a scheduling pass.
type PassSummary struct {
	Transitioned   int
	RemindersFired int
	Errors         []RecordError
}

// Err joins the per-record errors, or returns nil when there were none.
func (s PassSummary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Errors))
	for _, e := range s.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

type collector struct {
	mu      sync.Mutex
	summary PassSummary
}

func (c *collector) transitioned() {
	c.mu.Lock()
	c.summary.Transitioned++
	c.mu.Unlock()
}

func (c *collector) fired() {
	c.mu.Lock()
	c.summary.RemindersFired++
	c.mu.Unlock()
}

func (c *collector) fail(id uuid.UUID, stage string, err error) {
	c.mu.Lock()
	c.summary.Errors = append(c.summary.Errors, RecordError{InstallmentID: id, Stage: stage, Err: err})
	c.mu.Unlock()
}

// RunSchedulingPass advances every due installment and then fires the
// reminders due at now. Records are processed independently; a failing
// record is reported in the summary and never aborts the pass. Only a
// failing candidate query is returned as an error.
func (e *Engine) RunSchedulingPass(ctx context.Context, now time.Time) (PassSummary, error) {
	c := &collector{}

	candidates, err := e.transitionCandidates(ctx, now)
	if err != nil {
		return c.summary, err
	}
	e.each(candidates, func(inst Installment) {
		if err := e.advance(ctx, inst, now, c); err != nil {
			e.recordError(c, inst.ID, StageTransition, err)
		}
	})

	due, err := e.store.ListDueForReminder(ctx, now)
	if err != nil {
		return c.summary, fmt.Errorf("installments: list reminder candidates: %w", err)
	}
	e.each(due, func(inst Installment) {
		if err := e.remind(ctx, inst, now, c); err != nil {
			e.recordError(c, inst.ID, StageReminder, err)
		}
	})

	e.logger.Info("scheduling pass finished",
		slog.Time("now", now),
		slog.Int("transitioned", c.summary.Transitioned),
		slog.Int("reminders_fired", c.summary.RemindersFired),
		slog.Int("errors", len(c.summary.Errors)),
	)
	return c.summary, nil
}

func (e *Engine) transitionCandidates(ctx context.Context, now time.Time) ([]Installment, error) {
	overdue, err := e.store.ListOverdueCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("installments: list overdue candidates: %w", err)
	}
	expiring, err := e.store.ListGraceExpiryCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("installments: list grace expiry candidates: %w", err)
	}
	seen := make(map[uuid.UUID]struct{}, len(overdue)+len(expiring))
	out := make([]Installment, 0, len(overdue)+len(expiring))
	for _, inst := range append(overdue, expiring...) {
		if _, ok := seen[inst.ID]; ok {
			continue
		}
		seen[inst.ID] = struct{}{}
		out = append(out, inst)
	}
	return out, nil
}

func (e *Engine) each(items []Installment, fn func(Installment)) {
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, inst := range items {
		inst := inst
		g.Go(func() error {
			fn(inst)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) advance(ctx context.Context, inst Installment, now time.Time, c *collector) error {
	patch, steps := e.machine.Advance(inst, now)
	if patch.IsZero() {
		return nil
	}
	if _, err := e.store.Update(ctx, inst.ID, inst.Version, patch); err != nil {
		return err
	}
	c.transitioned()
	for _, step := range steps {
		e.metrics.ObserveTransition(string(step.To))
	}
	e.logger.Debug("installment advanced",
		slog.String("installment_id", inst.ID.String()),
		slog.String("from", string(steps[0].From)),
		slog.String("to", string(steps[len(steps)-1].To)),
	)
	return nil
}

func (e *Engine) remind(ctx context.Context, inst Installment, now time.Time, c *collector) error {
	decision, ok := e.policy.Evaluate(inst, now)
	if !ok {
		return nil
	}
	kind := string(decision.Kind)

	parent, err := e.parents.GetParent(ctx, inst.ParentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: parent %d", ErrRecordNotFound, inst.ParentID)
		}
		return fmt.Errorf("installments: resolve parent %d: %w", inst.ParentID, err)
	}

	key := shared.ReminderClaimKey(inst.ID, now.In(e.loc))
	if err := e.claims.CheckAndInsert(ctx, key, claimModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			e.metrics.ObserveReminder(kind, "duplicate")
			return nil
		}
		return fmt.Errorf("installments: claim %s: %w", key, err)
	}

	reminder := buildReminder(inst, parent, decision)
	receipt, err := e.deliverer.Deliver(ctx, reminder)
	if err != nil {
		if delErr := e.claims.Delete(ctx, key); delErr != nil {
			e.logger.Warn("release reminder claim", slog.String("key", key), slog.Any("error", delErr))
		}
		e.metrics.ObserveReminder(kind, "failed")
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}

	e.metrics.ObserveReminder(kind, "delivered")
	c.fired()
	// A failed bookkeeping write keeps the claim, so the delivered reminder
	// is not repeated today.
	if err := e.bookkeep(ctx, inst, now); err != nil {
		return err
	}
	e.logger.Debug("reminder sent",
		slog.String("installment_id", inst.ID.String()),
		slog.String("kind", kind),
		slog.String("receipt", receipt.ID),
	)
	return nil
}

// bookkeep bumps the reminder counters. The increment is re-applied on a
// fresh read when a concurrent writer moved the version.
func (e *Engine) bookkeep(ctx context.Context, inst Installment, now time.Time) error {
	current := inst
	for attempt := 0; ; attempt++ {
		patch := Patch{
			RemindersSent:    ptr(current.RemindersSent + 1),
			LastReminderSent: ptr(now),
			UpdatedAt:        now,
		}
		_, err := e.store.Update(ctx, current.ID, current.Version, patch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentModification) || attempt+1 >= bookkeepingRetries {
			return err
		}
		current, err = e.store.Get(ctx, inst.ID)
		if err != nil {
			return err
		}
	}
}

func buildReminder(inst Installment, parent parents.Parent, d Decision) messaging.Reminder {
	r := messaging.Reminder{
		Kind:              d.Kind,
		InstallmentID:     inst.ID,
		ParentPaymentID:   inst.ParentPaymentID,
		ParentID:          inst.ParentID,
		Recipient:         messaging.Recipient{Name: parent.Name, Email: parent.Email, Phone: parent.Phone},
		Amount:            inst.Amount,
		DueDate:           inst.DueDate,
		DaysOverdue:       d.DaysOverdue,
		DaysRemaining:     d.DaysRemaining,
		InstallmentNumber: inst.InstallmentNumber,
		TotalInstallments: inst.TotalInstallments,
	}
	if inst.GracePeriodEnd != nil {
		r.GracePeriodEnd = *inst.GracePeriodEnd
	}
	return r
}

func (e *Engine) recordError(c *collector, id uuid.UUID, stage string, err error) {
	c.fail(id, stage, err)
	e.metrics.ObservePassError(stage, errorReason(err))
	e.logger.Warn("installment skipped",
		slog.String("installment_id", id.String()),
		slog.String("stage", stage),
		slog.Any("error", err),
	)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrDeliveryFailure):
		return "delivery"
	case errors.Is(err, ErrInvalidInstallment):
		return "invalid"
	default:
		return "internal"
	}
}

// CreatePlan generates and stores the schedule for an existing payment. A
// nil TotalAmount falls back to the payment's total, and a zero ParentID
// to the payment's parent. Installment ids are derived from the payment and
// installment number, so a retried request cannot create a second schedule.
func (e *Engine) CreatePlan(ctx context.Context, in PlanInput) ([]Installment, error) {
	payment, err := e.payments.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if in.ParentID == 0 {
		in.ParentID = payment.ParentID
	}
	total := payment.TotalAmount
	if in.TotalAmount != nil {
		total = *in.TotalAmount
	}

	existing, err := e.store.ListByPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: payment %d", ErrScheduleExists, in.PaymentID)
	}

	schedule, err := GenerateSchedule(ScheduleParams{
		TotalAmount:      total,
		InstallmentCount: in.InstallmentCount,
		FrequencyMonths:  in.FrequencyMonths,
		StartDate:        in.StartDate,
	})
	if err != nil {
		return nil, err
	}
	for i := range schedule {
		schedule[i].ID = InstallmentID(in.PaymentID, schedule[i].InstallmentNumber)
		schedule[i].ParentPaymentID = in.PaymentID
		schedule[i].ParentID = in.ParentID
		schedule[i].PaymentPlanID = in.PaymentPlanID
	}
	if err := e.store.CreateMany(ctx, schedule); err != nil {
		if errors.Is(err, ErrDuplicateInstallment) {
			return nil, fmt.Errorf("%w: payment %d", ErrScheduleExists, in.PaymentID)
		}
		return nil, err
	}
	e.logger.Info("installment plan created",
		slog.Int64("payment_id", in.PaymentID),
		slog.Int("count", len(schedule)),
		slog.Int64("total_amount", total),
	)

	if in.FirstPaidAtSignup {
		if _, err := e.MarkPaid(ctx, schedule[0].ID, e.clock()); err != nil {
			return nil, fmt.Errorf("installments: mark first installment paid: %w", err)
		}
	}
	return e.store.ListByPayment(ctx, in.PaymentID)
}

// InstallmentID derives the stable id of one installment of a payment.
func InstallmentID(paymentID int64, number int) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("INSTALLMENT:%d:%d", paymentID, number)))
}

// MarkPaid records a payment against an installment. Paying an installment
// that is already paid succeeds without changes. When the last open
// installment is paid the parent payment is flipped to paid.
func (e *Engine) MarkPaid(ctx context.Context, id uuid.UUID, now time.Time) (Installment, error) {
	inst, err := e.store.Get(ctx, id)
	if err != nil {
		return Installment{}, err
	}
	patch, err := e.machine.Pay(inst, now)
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		paidAt := now
		if inst.PaidAt != nil {
			paidAt = *inst.PaidAt
		}
		return inst, e.settle(ctx, inst.ParentPaymentID, paidAt)
	case err != nil:
		return Installment{}, err
	}

	updated, err := e.store.Update(ctx, inst.ID, inst.Version, patch)
	if err != nil {
		return Installment{}, err
	}
	e.metrics.ObserveTransition(string(PhasePaid))
	e.logger.Info("installment paid",
		slog.String("installment_id", id.String()),
		slog.Int64("payment_id", inst.ParentPaymentID),
	)
	if err := e.settle(ctx, inst.ParentPaymentID, now); err != nil {
		return updated, err
	}
	return updated, nil
}

// settle marks the parent payment paid once every installment is paid. The
// payment store only reports a change the first time.
func (e *Engine) settle(ctx context.Context, paymentID int64, paidAt time.Time) error {
	items, err := e.store.ListByPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if !Summarize(items).AllPaid {
		return nil
	}
	changed, err := e.payments.UpdatePaymentStatus(ctx, paymentID, payments.StatusPaid, paidAt)
	if err != nil {
		return fmt.Errorf("installments: settle payment %d: %w", paymentID, err)
	}
	if changed {
		e.logger.Info("payment settled", slog.Int64("payment_id", paymentID))
	}
	return nil
}

// Summary returns a payment's installments with derived totals.
func (e *Engine) Summary(ctx context.Context, paymentID int64) (PaymentView, error) {
	if _, err := e.payments.GetPayment(ctx, paymentID); err != nil {
		return PaymentView{}, err
	}
	items, err := e.store.ListByPayment(ctx, paymentID)
	if err != nil {
		return PaymentView{}, err
	}
	return PaymentView{PaymentID: paymentID, Installments: items, Summary: Summarize(items)}, nil
}

// ListByParent returns every installment owed by a parent.
func (e *Engine) ListByParent(ctx context.Context, parentID int64) ([]Installment, error) {
	return e.store.ListByParent(ctx, parentID)
}

// Get returns one installment.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (Installment, error) {
	return e.store.Get(ctx, id)
}

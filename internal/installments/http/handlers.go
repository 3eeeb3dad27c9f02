package installmentshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campfees/installments/internal/installments"
	"github.com/campfees/installments/internal/platform/httpx"
	"github.com/campfees/installments/internal/shared"
)

const dateLayout = "2006-01-02"

// Service is the installment engine surface used by the handlers.
type Service interface {
	CreatePlan(ctx context.Context, in installments.PlanInput) ([]installments.Installment, error)
	Summary(ctx context.Context, paymentID int64) (installments.PaymentView, error)
	ListByParent(ctx context.Context, parentID int64) ([]installments.Installment, error)
	Get(ctx context.Context, id uuid.UUID) (installments.Installment, error)
	MarkPaid(ctx context.Context, id uuid.UUID, now time.Time) (installments.Installment, error)
}

// PassTrigger queues an asynchronous scheduling pass.
type PassTrigger interface {
	EnqueueSchedulingPass(ctx context.Context, at *time.Time) (string, error)
}

// Handler serves the installment admin API.
type Handler struct {
	logger   *slog.Logger
	service  Service
	trigger  PassTrigger
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

// NewHandler constructs the handler. Plan start dates are read as calendar
// dates in loc.
func NewHandler(logger *slog.Logger, service Service, trigger PassTrigger, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		logger:   logger,
		service:  service,
		trigger:  trigger,
		validate: v,
		loc:      loc,
		now:      time.Now,
	}
}

type createPlanRequest struct {
	PaymentID         int64  `json:"payment_id" validate:"required,gt=0"`
	ParentID          int64  `json:"parent_id" validate:"gte=0"`
	PaymentPlanID     *int64 `json:"payment_plan_id" validate:"omitempty,gt=0"`
	TotalAmount       *int64 `json:"total_amount" validate:"omitempty,gte=0"`
	InstallmentCount  int    `json:"installment_count" validate:"required,gt=0,lte=120"`
	FrequencyMonths   int    `json:"frequency_months" validate:"required,gt=0,lte=12"`
	StartDate         string `json:"start_date" validate:"required,datetime=2006-01-02"`
	FirstPaidAtSignup bool   `json:"first_paid_at_signup"`
}

type payRequest struct {
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type passRequest struct {
	Now string `json:"now" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if !h.valid(w, req) {
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.StartDate, h.loc)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"start_date": err.Error()})
		return
	}

	items, err := h.service.CreatePlan(r.Context(), installments.PlanInput{
		PaymentID:         req.PaymentID,
		ParentID:          req.ParentID,
		PaymentPlanID:     req.PaymentPlanID,
		TotalAmount:       req.TotalAmount,
		InstallmentCount:  req.InstallmentCount,
		FrequencyMonths:   req.FrequencyMonths,
		StartDate:         start,
		FirstPaidAtSignup: req.FirstPaidAtSignup,
	})
	if err != nil {
		h.respondError(w, r, "create plan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, installments.PaymentView{
		PaymentID:    req.PaymentID,
		Installments: items,
		Summary:      installments.Summarize(items),
	})
}

func (h *Handler) handlePaymentInstallments(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathInt(w, r, "paymentID")
	if !ok {
		return
	}
	view, err := h.service.Summary(r.Context(), paymentID)
	if err != nil {
		h.respondError(w, r, "payment installments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleParentInstallments(w http.ResponseWriter, r *http.Request) {
	parentID, ok := pathInt(w, r, "parentID")
	if !ok {
		return
	}
	items, err := h.service.ListByParent(r.Context(), parentID)
	if err != nil {
		h.respondError(w, r, "parent installments", err)
		return
	}
	page := shared.PaginationFromQuery(r.URL.Query(), len(items))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"parent_id":    parentID,
		"installments": items[start:end],
		"pagination":   page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	inst, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get installment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req payRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		if !h.valid(w, req) {
			return
		}
	}
	paidAt := h.now()
	if req.PaidAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"paid_at": err.Error()})
			return
		}
		paidAt = parsed
	}

	inst, err := h.service.MarkPaid(r.Context(), id, paidAt)
	if err != nil {
		h.respondError(w, r, "mark paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) handleTriggerPass(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "job queue not configured")
		return
	}
	var req passRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		if !h.valid(w, req) {
			return
		}
	}
	var at *time.Time
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"now": err.Error()})
			return
		}
		at = &parsed
	}

	taskID, err := h.trigger.EnqueueSchedulingPass(r.Context(), at)
	if err != nil {
		h.respondError(w, r, "enqueue pass", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *Handler) valid(w http.ResponseWriter, req any) bool {
	err := h.validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	httpx.ValidationProblem(w, fields)
	return false
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	level := slog.LevelError
	if isClientError(err) {
		level = slog.LevelWarn
	}
	h.logger.Log(r.Context(), level, op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func isClientError(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrConflict)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid installment id")
		return uuid.Nil, false
	}
	return id, true
}

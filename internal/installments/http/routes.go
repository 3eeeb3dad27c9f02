package installmentshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/campfees/installments/internal/platform/httpx"
)

const passRateLimit = 6
const passRateWindow = time.Minute

// MountRoutes registers the installment endpoints. Manual pass triggers are
// rate limited per client address.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(passRateLimit, passRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "scheduling pass trigger rate exceeded")
		}),
	)

	r.Post("/plans", h.handleCreatePlan)
	r.Get("/payments/{paymentID}/installments", h.handlePaymentInstallments)
	r.Get("/parents/{parentID}/installments", h.handleParentInstallments)
	r.Get("/installments/{id}", h.handleGet)
	r.Post("/installments/{id}/pay", h.handlePay)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/passes", h.handleTriggerPass)
	})
}

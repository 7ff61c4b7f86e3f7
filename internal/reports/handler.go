package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales-summary", h.salesSummary)
	r.Get("/top-products", h.topProducts)
	r.Get("/low-stock", h.lowStock)
	r.Get("/receivables", h.receivables)
}

// parseRange reads from/to query params as YYYY-MM-DD, defaulting to
// the last 30 days.
func parseRange(r *http.Request) (RangeFilter, error) {
	now := time.Now()
	filter := RangeFilter{From: now.AddDate(0, 0, -30), To: now}

	if v := r.URL.Query().Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return RangeFilter{}, err
		}
		filter.From = from
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return RangeFilter{}, err
		}
		filter.To = to
	}
	return filter, nil
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "dates must be YYYY-MM-DD")
		return
	}
	summary, err := h.service.GetSalesSummary(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "dates must be YYYY-MM-DD")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	products, err := h.service.GetTopProducts(r.Context(), filter, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetLowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) receivables(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetReceivables(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

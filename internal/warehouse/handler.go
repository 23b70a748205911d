package warehouse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
)

// Handler wires HTTP endpoints for the warehouse module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the warehouse handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/structure", h.handleStructure)
	r.Post("/structure", h.handleEnsureStructure)
	r.Delete("/stocks/{id}", h.handleDelete(h.service.DeleteStock))
	r.Delete("/zones/{id}", h.handleDelete(h.service.DeleteZone))
	r.Delete("/places/{id}", h.handleDelete(h.service.DeletePlace))
	r.Get("/lots", h.handleLots)
	r.Get("/items", h.handleItems)
	r.Delete("/items/{id}", h.handleDelete(h.service.DeleteItem))
	r.Get("/history", h.handleHistory)
	r.Post("/moves", h.handleMove)
	r.Get("/summary/{code}", h.handleSummary)
}

func (h *Handler) handleStructure(w http.ResponseWriter, r *http.Request) {
	structure, err := h.service.Structure(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, structure)
}

func (h *Handler) handleEnsureStructure(w http.ResponseWriter, r *http.Request) {
	var in StructureInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		h.respondValidation(w, err)
		return
	}
	result, err := h.service.EnsureStructure(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created > 0 {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) handleDelete(del func(ctx context.Context, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
			return
		}
		if err := del(r.Context(), id); err != nil {
			h.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LotFilter{
		StockID:  httpx.QueryInt64Ptr(r, "stock_id"),
		ZoneID:   httpx.QueryInt64Ptr(r, "zone_id"),
		PlaceID:  httpx.QueryInt64Ptr(r, "place_id"),
		ItemCode: q.Get("item_code"),
		Status:   EntryStatus(strings.ToLower(q.Get("status"))),
		MinQty:   httpx.QueryInt64Ptr(r, "min_qty"),
		MaxQty:   httpx.QueryInt64Ptr(r, "max_qty"),
		Page:     httpx.QueryInt(r, "page", 1),
		PerPage:  httpx.QueryInt(r, "per_page", 50),
	}
	page, err := h.service.SearchLots(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.SearchItems(r.Context(), ItemFilter{
		Code:    r.URL.Query().Get("code"),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 50),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{
		ItemCode: q.Get("item_code"),
		Address:  q.Get("address"),
		Actor:    q.Get("actor"),
		Page:     httpx.QueryInt(r, "page", 1),
		PerPage:  httpx.QueryInt(r, "per_page", 50),
	}
	var err error
	if filter.From, err = parseDay(q.Get("from"), false); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "from must be YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDay(q.Get("to"), true); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "to must be YYYY-MM-DD")
		return
	}
	page, err := h.service.SearchHistory(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var in MoveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		h.respondValidation(w, err)
		return
	}
	in.Actor = shared.ActorFromContext(r.Context())
	in.IdempotencyKey = shared.IdempotencyKey(r)
	result, err := h.service.Move(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StockSummary(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondValidation(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fe.Field()+": failed "+fe.Tag())
	}
	httpx.Write(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Problems: problems})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMissingReservedLocation):
		h.logger.Error("warehouse misconfigured", slog.String("path", r.URL.Path), slog.Any("error", err))
	case errors.Is(err, ErrInsufficientStock):
		h.logger.Warn("insufficient stock", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	classified := ClassifyError(err)
	if _, ok := classified.(httpx.Classified); !ok {
		h.logger.Error("warehouse request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

func parseDay(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return day, nil
}

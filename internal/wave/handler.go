package wave

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

const dayLayout = "2006-01-02"

// Handler wires HTTP endpoints for waves.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the wave handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers wave routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleSearch)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Post("/status", h.handleStatus)
		r.Get("/documents", h.handleDocuments)
		r.Post("/packing-list", h.handlePackingList)
	})
}

type createRequest struct {
	CreateInput
	PlannedDate string `json:"planned_date" validate:"omitempty,datetime=2006-01-02"`
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=planned in_progress completed cancelled"`
	// ActualDate is rejected; completion stamps the date.
	ActualDate string `json:"actual_date"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	plannedFrom, err := parseDay(q.Get("planned_from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "planned_from must be YYYY-MM-DD")
		return
	}
	actualTo, err := parseDay(q.Get("actual_to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "actual_to must be YYYY-MM-DD")
		return
	}
	page, err := h.service.Search(r.Context(), Filter{
		Kind:        Kind(q.Get("kind")),
		StockID:     httpx.QueryInt64Ptr(r, "stock_id"),
		Status:      Status(q.Get("status")),
		Number:      q.Get("number"),
		Party:       q.Get("party"),
		PlannedFrom: plannedFrom,
		ActualTo:    actualTo,
		Page:        httpx.QueryInt(r, "page", 1),
		PerPage:     httpx.QueryInt(r, "per_page", 20),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondValidation(w, err)
		return
	}
	in := req.CreateInput
	in.PlannedDate, _ = parseDay(req.PlannedDate)
	in.Actor = shared.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.waveID(w, r)
	if !ok {
		return
	}
	wv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wv)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.waveID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.waveID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondValidation(w, err)
		return
	}
	if req.ActualDate != "" {
		httpx.Write(w, httpx.ProblemDetail{
			Title:    "Validation Failed",
			Status:   http.StatusBadRequest,
			Problems: []string{"ActualDate: set by the server when the wave is completed"},
		})
		return
	}
	updated, err := h.service.ChangeStatus(r.Context(), id, req.Status, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.waveID(w, r)
	if !ok {
		return
	}
	wv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wv.Number+".zip"))
	if err := h.service.Archive(w, wv); err != nil {
		h.logger.Error("wave archive failed", slog.String("number", wv.Number), slog.Any("error", err))
	}
}

func (h *Handler) handlePackingList(w http.ResponseWriter, r *http.Request) {
	id, ok := h.waveID(w, r)
	if !ok {
		return
	}
	wv, err := h.service.RegeneratePackingList(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"wave_id": wv.ID, "number": wv.Number})
}

func (h *Handler) waveID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondValidation(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fe.Namespace()+": failed "+fe.Tag())
	}
	httpx.Write(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Problems: problems})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, warehouse.ErrMissingReservedLocation):
		h.logger.Error("warehouse misconfigured", slog.String("path", r.URL.Path), slog.Any("error", err))
	case errors.Is(err, warehouse.ErrInsufficientStock):
		h.logger.Warn("insufficient stock", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	classified := ClassifyError(err)
	if _, ok := classified.(httpx.Classified); !ok {
		h.logger.Error("wave request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayLayout, raw)
}

package importer

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

const multipartMemory = 32 << 20

// Handler accepts multipart import uploads.
type Handler struct {
	logger     *slog.Logger
	reconciler *Reconciler
	validator  *validator.Validate
	maxBody    int64
}

// NewHandler constructs the import handler. maxBody bounds the whole request.
func NewHandler(logger *slog.Logger, reconciler *Reconciler, maxBody int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reconciler: reconciler, validator: validator.New(), maxBody: maxBody}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/waves", h.handleImport)
}

type importForm struct {
	Kind        string `validate:"required,oneof=inbound outbound"`
	StockID     string `validate:"required,number"`
	Party       string `validate:"required,max=255"`
	Status      string `validate:"required,oneof=planned in_progress completed cancelled"`
	PlannedDate string `validate:"omitempty,datetime=2006-01-02"`
	Description string `validate:"max=1000"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := importForm{
		Kind:        r.FormValue("kind"),
		StockID:     r.FormValue("stock_id"),
		Party:       r.FormValue("party"),
		Status:      r.FormValue("status"),
		PlannedDate: r.FormValue("planned_date"),
		Description: r.FormValue("description"),
	}
	if err := h.validator.Struct(form); err != nil {
		respondValidation(w, err)
		return
	}
	stockID, _ := strconv.ParseInt(form.StockID, 10, 64)
	var planned time.Time
	if form.PlannedDate != "" {
		planned, _ = time.Parse("2006-01-02", form.PlannedDate)
	}

	req := Request{
		Kind:           wave.Kind(form.Kind),
		StockID:        stockID,
		Party:          form.Party,
		Status:         wave.Status(form.Status),
		PlannedDate:    planned,
		Description:    form.Description,
		Actor:          shared.ActorFromContext(r.Context()),
		IdempotencyKey: shared.IdempotencyKey(r),
	}
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	if headers := r.MultipartForm.File["form"]; len(headers) > 0 {
		f, err := headers[0].Open()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		opened = append(opened, f)
		req.Form = &File{Name: headers[0].Filename, Size: headers[0].Size, Body: f}
	}
	for _, header := range r.MultipartForm.File["documents"] {
		f, err := header.Open()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		opened = append(opened, f)
		req.Documents = append(req.Documents, File{Name: header.Filename, Size: header.Size, Body: f})
	}

	res, err := h.reconciler.Import(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func respondValidation(w http.ResponseWriter, err error) {
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
	classified := wave.ClassifyError(err)
	if _, ok := classified.(httpx.Classified); !ok {
		h.logger.Error("import failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Warn("import rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/observability"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

const idempotencyModule = "wave_import"

// WaveService is the part of the wave service the reconciler drives.
type WaveService interface {
	CreateWithSteps(ctx context.Context, in wave.CreateInput, steps []wave.Status, attach func(context.Context, wave.Wave) error) (wave.Wave, error)
}

// DocumentStore keeps the uploaded form and attachments next to the wave.
type DocumentStore interface {
	Check(name string, size int64) error
	Save(folder, number, name string, r io.Reader) (string, error)
	Remove(folder, number string) error
}

// KeyStore rejects an Idempotency-Key that was already processed.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// File is an uploaded file. Size may be zero when unknown.
type File struct {
	Name string
	Size int64
	Body io.Reader
}

// Request describes one import.
type Request struct {
	Kind           wave.Kind
	StockID        int64
	Party          string
	Status         wave.Status
	PlannedDate    time.Time
	Description    string
	Actor          string
	Form           *File
	Documents      []File
	IdempotencyKey string
}

// Result reports the imported wave.
type Result struct {
	Wave      wave.Wave `json:"wave"`
	Lines     int       `json:"lines"`
	Documents []string  `json:"documents"`
}

// Reconciler creates waves from import forms.
type Reconciler struct {
	waves   WaveService
	docs    DocumentStore
	keys    KeyStore
	metrics *observability.Domain
	logger  *slog.Logger
}

// NewReconciler wires a Reconciler. keys and metrics are optional.
func NewReconciler(waves WaveService, docs DocumentStore, keys KeyStore, metrics *observability.Domain, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{waves: waves, docs: docs, keys: keys, metrics: metrics, logger: logger}
}

// Import validates the whole form before touching the database, then creates
// the wave, drives it to the requested status and stores its documents in one
// transaction. A failure leaves neither wave, stock nor history behind and
// removes the documents saved so far.
func (r *Reconciler) Import(ctx context.Context, req Request) (res Result, err error) {
	defer func() { r.metrics.WaveImported(string(req.Kind), err) }()

	if !req.Kind.IsValid() {
		return Result{}, fmt.Errorf("%w: unknown kind %q", wave.ErrInvalidInput, req.Kind)
	}
	steps, ok := statusSteps[req.Status]
	if !ok {
		return Result{}, fmt.Errorf("%w: cannot import a %q wave", wave.ErrInvalidInput, req.Status)
	}
	if req.Actor == "" {
		req.Actor = shared.ActorFromContext(ctx)
	}
	docs, err := r.readDocuments(req.Documents)
	if err != nil {
		return Result{}, err
	}

	var (
		form  []byte
		lines []wave.LineInput
	)
	if req.Status != wave.StatusCancelled {
		form, lines, err = r.readForm(req.Form)
		if err != nil {
			return Result{}, err
		}
	}

	if req.IdempotencyKey != "" && r.keys != nil {
		if err := r.keys.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule); err != nil {
			return Result{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := r.keys.Delete(context.WithoutCancel(ctx), req.IdempotencyKey, idempotencyModule); derr != nil {
				r.logger.Warn("idempotency key not released", slog.String("key", req.IdempotencyKey), slog.Any("error", derr))
			}
		}()
	}

	var (
		saved   []string
		folders = map[string]string{}
	)
	attach := func(_ context.Context, w wave.Wave) error {
		saved = saved[:0]
		folders[w.Number] = w.Kind.Folder()
		if req.Form != nil && form != nil {
			if _, err := r.docs.Save(w.Kind.Folder(), w.Number, req.Form.Name, bytes.NewReader(form)); err != nil {
				return fmt.Errorf("save form of %s: %w", w.Number, err)
			}
			saved = append(saved, req.Form.Name)
		}
		for _, doc := range docs {
			if _, err := r.docs.Save(w.Kind.Folder(), w.Number, doc.name, bytes.NewReader(doc.body)); err != nil {
				return fmt.Errorf("save %s of %s: %w", doc.name, w.Number, err)
			}
			saved = append(saved, doc.name)
		}
		return nil
	}

	current, err := r.waves.CreateWithSteps(ctx, wave.CreateInput{
		Kind:        req.Kind,
		StockID:     req.StockID,
		Party:       req.Party,
		PlannedDate: req.PlannedDate,
		Description: req.Description,
		Items:       lines,
		Actor:       req.Actor,
	}, steps, attach)
	for number, folder := range folders {
		if err == nil && number == current.Number {
			continue
		}
		if rerr := r.docs.Remove(folder, number); rerr != nil {
			r.logger.Warn("import documents not removed", slog.String("number", number), slog.Any("error", rerr))
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("import %s wave: %w", req.Kind, err)
	}

	r.logger.Info("wave imported",
		slog.String("number", current.Number),
		slog.String("status", string(current.Status)),
		slog.Int("lines", len(current.Items)),
		slog.Int("documents", len(saved)),
	)
	return Result{Wave: current, Lines: len(current.Items), Documents: saved}, nil
}

// Transitions replayed after creation for each requested status.
var statusSteps = map[wave.Status][]wave.Status{
	wave.StatusPlanned:    nil,
	wave.StatusInProgress: {wave.StatusInProgress},
	wave.StatusCompleted:  {wave.StatusInProgress, wave.StatusCompleted},
	wave.StatusCancelled:  {wave.StatusCancelled},
}

func (r *Reconciler) readForm(f *File) ([]byte, []wave.LineInput, error) {
	if f == nil || f.Body == nil {
		return nil, nil, fmt.Errorf("%w: import form required", wave.ErrInvalidInput)
	}
	if err := r.docs.Check(f.Name, f.Size); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", wave.ErrInvalidInput, err)
	}
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read form %s: %w", f.Name, err)
	}
	rows, err := ReadRows(f.Name, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", wave.ErrInvalidInput, err)
	}
	lines, err := Lines(rows)
	if err != nil {
		return nil, nil, err
	}
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("%w: import form %s has no item rows", wave.ErrInvalidInput, f.Name)
	}
	return data, lines, nil
}

type document struct {
	name string
	body []byte
}

// readDocuments buffers the attachments so a retried transaction can save them again.
func (r *Reconciler) readDocuments(files []File) ([]document, error) {
	out := make([]document, 0, len(files))
	for _, f := range files {
		if err := r.docs.Check(f.Name, f.Size); err != nil {
			return nil, fmt.Errorf("%w: %w", wave.ErrInvalidInput, err)
		}
		var body []byte
		if f.Body != nil {
			data, err := io.ReadAll(f.Body)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			body = data
		}
		out = append(out, document{name: f.Name, body: body})
	}
	return out, nil
}

package wave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AlekseyRodimkin/warehouse/internal/observability"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// MinPartyLen is the shortest accepted supplier or recipient name.
const MinPartyLen = 4

// Dependencies groups the optional collaborators of Service.
type Dependencies struct {
	Locker    Locker
	Packing   PackingList
	Documents Documents
	Audit     warehouse.AuditPort
	Metrics   *observability.Domain
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service owns wave lifecycle: creation, numbering and status transitions.
type Service struct {
	repo    RepositoryPort
	stock   *warehouse.Service
	locker  Locker
	packing PackingList
	docs    Documents
	audit   warehouse.AuditPort
	metrics *observability.Domain
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service on top of the warehouse service whose ledger it drives.
func NewService(repo RepositoryPort, stock *warehouse.Service, deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    repo,
		stock:   stock,
		locker:  deps.Locker,
		packing: deps.Packing,
		docs:    deps.Documents,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     deps.Now,
	}
}

// SetPackingList replaces the packing list producer.
func (s *Service) SetPackingList(p PackingList) {
	s.packing = p
}

// NormalizeParty collapses whitespace and upper-cases a supplier or recipient.
func NormalizeParty(party string) string {
	return warehouse.NormalizeTitle(strings.Join(strings.Fields(party), " "))
}

// Create persists a planned wave with its lines. Duplicate item codes are merged.
// Outbound waves are rejected when current ok stock cannot cover a line.
func (s *Service) Create(ctx context.Context, in CreateInput) (Wave, error) {
	return s.CreateWithSteps(ctx, in, nil, nil)
}

// CreateWithSteps creates a wave and drives it through steps in the same
// transaction. attach, when set, runs last inside the transaction with the
// final wave; an error from any part leaves no trace in the database.
func (s *Service) CreateWithSteps(ctx context.Context, in CreateInput, steps []Status, attach func(context.Context, Wave) error) (Wave, error) {
	plan, err := s.prepareCreate(ctx, in)
	if err != nil {
		return Wave{}, err
	}

	var (
		created, current   Wave
		outcomes           []transitionOutcome
		failedFrom, failed Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		outcomes, failedFrom, failed = outcomes[:0], "", ""
		w, err := s.insertWave(ctx, tx, plan)
		if err != nil {
			return err
		}
		created, current = w, w
		for _, to := range steps {
			out, err := s.transitionTx(ctx, tx, current.ID, to, plan.actor)
			if err != nil {
				failedFrom, failed = current.Status, to
				return err
			}
			outcomes = append(outcomes, out)
			current = out.wave
		}
		if len(current.Items) == 0 {
			current.Items = created.Items
		}
		if attach != nil {
			return attach(ctx, current)
		}
		return nil
	})
	if err != nil {
		if failed != "" {
			s.metrics.WaveTransition(string(plan.kind), string(failedFrom), string(failed), err)
		}
		return Wave{}, err
	}

	s.recordAudit(ctx, shared.AuditLog{
		Actor:    plan.actor,
		Action:   shared.AuditWaveCreate,
		Entity:   string(created.Kind),
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"number": created.Number, "party": created.Party, "lines": len(created.Items)},
	})
	for _, out := range outcomes {
		s.finishTransition(ctx, out, plan.actor)
	}
	return current, nil
}

type createPlan struct {
	kind        Kind
	stockID     int64
	party       string
	description string
	actor       string
	lines       []LineInput
	now         time.Time
	planned     time.Time
}

func (s *Service) prepareCreate(ctx context.Context, in CreateInput) (createPlan, error) {
	if !in.Kind.IsValid() {
		return createPlan{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}
	if in.StockID <= 0 {
		return createPlan{}, fmt.Errorf("%w: stock required", ErrInvalidInput)
	}
	party := NormalizeParty(in.Party)
	if utf8.RuneCountInString(party) < MinPartyLen {
		return createPlan{}, fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, in.Kind.PartyLabel(), MinPartyLen)
	}
	lines, err := mergeLines(in.Items)
	if err != nil {
		return createPlan{}, err
	}
	if in.Actor == "" {
		in.Actor = shared.ActorFromContext(ctx)
	}
	now := s.now()
	if in.PlannedDate.IsZero() {
		in.PlannedDate = now
	}
	return createPlan{
		kind:        in.Kind,
		stockID:     in.StockID,
		party:       party,
		description: strings.TrimSpace(in.Description),
		actor:       in.Actor,
		lines:       lines,
		now:         now,
		planned:     time.Date(in.PlannedDate.Year(), in.PlannedDate.Month(), in.PlannedDate.Day(), 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *Service) insertWave(ctx context.Context, tx TxRepository, plan createPlan) (Wave, error) {
	items := make([]Item, 0, len(plan.lines))
	for _, line := range plan.lines {
		item, err := s.stock.GetOrCreateItem(ctx, tx, warehouse.ItemInput{Code: line.ItemCode, Weight: line.Weight, Description: line.Description})
		if err != nil {
			return Wave{}, fmt.Errorf("item %s: %w", line.ItemCode, err)
		}
		items = append(items, Item{ItemID: item.ID, ItemCode: item.Code, Quantity: line.Quantity, Weight: item.Weight, Description: item.Description})
	}
	if plan.kind == KindOutbound && len(items) > 0 {
		if err := s.checkAvailability(ctx, tx, items); err != nil {
			return Wave{}, err
		}
	}
	seq, err := tx.NextNumber(ctx, plan.kind, plan.now.Year())
	if err != nil {
		return Wave{}, err
	}
	w := Wave{
		Kind:        plan.kind,
		Number:      FormatNumber(plan.kind, plan.now.Year(), seq),
		StockID:     plan.stockID,
		Status:      StatusPlanned,
		PlannedDate: plan.planned,
		Party:       plan.party,
		Description: plan.description,
		CreatedBy:   plan.actor,
	}
	if err := w.Validate(); err != nil {
		return Wave{}, err
	}
	w, err = tx.InsertWave(ctx, w)
	if err != nil {
		return Wave{}, err
	}
	if len(items) > 0 {
		if err := tx.InsertItems(ctx, w.ID, items); err != nil {
			return Wave{}, err
		}
	}
	w.Items, err = tx.ListItems(ctx, w.ID)
	if err != nil {
		return Wave{}, err
	}
	return w, nil
}

func mergeLines(in []LineInput) ([]LineInput, error) {
	merged := make([]LineInput, 0, len(in))
	index := make(map[string]int, len(in))
	for i, line := range in {
		line.ItemCode = warehouse.NormalizeCode(line.ItemCode)
		if line.ItemCode == "" {
			return nil, fmt.Errorf("%w: line %d: item code required", ErrInvalidInput, i+1)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidInput, i+1)
		}
		if pos, ok := index[line.ItemCode]; ok {
			merged[pos].Quantity += line.Quantity
			if merged[pos].Weight == nil {
				merged[pos].Weight = line.Weight
			}
			if merged[pos].Description == "" {
				merged[pos].Description = line.Description
			}
			continue
		}
		index[line.ItemCode] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func (s *Service) checkAvailability(ctx context.Context, tx TxRepository, items []Item) error {
	reserved, err := s.stock.ResolveReserved(ctx, tx)
	if err != nil {
		return err
	}
	for _, line := range items {
		available, err := s.stock.Available(ctx, tx, line.stockItem(), reserved)
		if err != nil {
			return err
		}
		if available < line.Quantity {
			return &warehouse.InsufficientStockError{ItemCode: line.ItemCode, Requested: line.Quantity, Available: available}
		}
	}
	return nil
}

// ChangeStatus moves a wave along the lifecycle graph and applies the ledger
// side effects of its kind in the same transaction. The status is written last
// so a failing policy leaves both ledger and wave untouched.
func (s *Service) ChangeStatus(ctx context.Context, id int64, to Status, actor string) (Wave, error) {
	if !to.IsValid() {
		return Wave{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}

	var out transitionOutcome
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			out, err = s.transitionTx(ctx, tx, id, to, actor)
			return err
		})
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.WaveLockKey(id), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		s.metrics.WaveTransition(string(out.wave.Kind), string(out.from), string(to), err)
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, warehouse.ErrInsufficientStock) {
			s.logger.Info("wave transition rejected", slog.Int64("wave_id", id), slog.String("to", string(to)), slog.Any("error", err))
		}
		return Wave{}, err
	}
	s.finishTransition(ctx, out, actor)
	return out.wave, nil
}

// transitionOutcome carries what happened inside the transaction to the
// post-commit bookkeeping. wave and from are set as soon as the wave is read.
type transitionOutcome struct {
	wave   Wave
	from   Status
	to     Status
	result policyResult
}

func (s *Service) transitionTx(ctx context.Context, tx TxRepository, id int64, to Status, actor string) (transitionOutcome, error) {
	w, err := tx.GetWaveForUpdate(ctx, id)
	if err != nil {
		return transitionOutcome{}, err
	}
	out := transitionOutcome{wave: w, from: w.Status, to: to}
	if !out.from.CanTransitionTo(to) {
		return out, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, w.Number, out.from, to)
	}
	if needsLedger(out.from, to) {
		items, err := tx.ListItems(ctx, w.ID)
		if err != nil {
			return out, err
		}
		reserved, err := s.stock.ResolveReserved(ctx, tx)
		if err != nil {
			return out, err
		}
		out.result, err = policyFor(w.Kind)(ctx, transition{
			tx:       tx,
			ledger:   s.stock.Ledger(),
			reserved: reserved,
			wave:     w,
			items:    items,
			actor:    actor,
			from:     out.from,
			to:       to,
		})
		if err != nil {
			return out, err
		}
		w.Items = items
	}
	w.setStatus(to, s.now())
	if err := w.Validate(); err != nil {
		return out, err
	}
	if err := tx.UpdateStatus(ctx, w.ID, w.Status, w.ActualDate); err != nil {
		return out, err
	}
	out.wave = w
	return out, nil
}

// finishTransition runs after commit: cache, metrics, audit, log and the
// packing list of a completed outbound wave.
func (s *Service) finishTransition(ctx context.Context, out transitionOutcome, actor string) {
	updated := out.wave
	s.metrics.WaveTransition(string(updated.Kind), string(out.from), string(out.to), nil)
	s.stock.InvalidateSummary(ctx)
	s.metrics.StockWithdrawn(out.result.withdrawn)
	s.recordAudit(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   shared.AuditWaveStatus,
		Entity:   string(updated.Kind),
		EntityID: strconv.FormatInt(updated.ID, 10),
		Meta:     map[string]any{"number": updated.Number, "from": string(out.from), "to": string(out.to)},
	})
	s.logger.Info("wave status changed",
		slog.String("number", updated.Number),
		slog.String("from", string(out.from)),
		slog.String("to", string(out.to)),
		slog.String("actor", actor),
	)
	if updated.Kind == KindOutbound && out.to == StatusCompleted {
		s.generatePackingList(ctx, updated)
	}
}

// generatePackingList never fails the transition that triggered it.
func (s *Service) generatePackingList(ctx context.Context, w Wave) {
	if s.packing == nil {
		return
	}
	if err := s.packing.Generate(ctx, w); err != nil {
		s.metrics.PackingListFailed()
		s.logger.Error("packing list generation failed", slog.String("number", w.Number), slog.Any("error", err))
	}
}

// RegeneratePackingList produces the packing list of a completed outbound wave again.
func (s *Service) RegeneratePackingList(ctx context.Context, id int64) (Wave, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Wave{}, err
	}
	if w.Kind != KindOutbound || w.Status != StatusCompleted {
		return Wave{}, fmt.Errorf("%w: packing list requires a completed outbound wave", ErrInvalidInput)
	}
	if s.packing == nil {
		return Wave{}, errors.New("wave: packing list generator not configured")
	}
	if err := s.packing.Generate(ctx, w); err != nil {
		s.metrics.PackingListFailed()
		return Wave{}, err
	}
	return w, nil
}

// Get returns a wave with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Wave, error) {
	return s.repo.Get(ctx, id)
}

// Search lists waves ordered by number, newest first.
func (s *Service) Search(ctx context.Context, filter Filter) (warehouse.Page[Wave], error) {
	filter.Number = strings.TrimSpace(filter.Number)
	filter.Party = NormalizeParty(filter.Party)
	if filter.Status != "" && !filter.Status.IsValid() {
		return warehouse.Page[Wave]{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return warehouse.Page[Wave]{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, filter.Kind)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	rows, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return warehouse.Page[Wave]{}, err
	}
	return warehouse.Page[Wave]{Items: rows, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Archive writes the documents of w as a zip archive.
func (s *Service) Archive(out io.Writer, w Wave) error {
	if s.docs == nil {
		return errors.New("wave: document store not configured")
	}
	return s.docs.Archive(out, w.Kind.Folder(), w.Number)
}

// Delete removes a wave that has not touched the ledger, then its documents.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var deleted Wave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.GetWaveForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !w.Status.Deletable() {
			return fmt.Errorf("%w: %s is %s", ErrNotDeletable, w.Number, w.Status)
		}
		deleted = w
		return tx.DeleteWave(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.docs != nil {
		if err := s.docs.Remove(deleted.Kind.Folder(), deleted.Number); err != nil {
			s.logger.Warn("wave documents not removed", slog.String("number", deleted.Number), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   shared.AuditWaveDelete,
		Entity:   string(deleted.Kind),
		EntityID: strconv.FormatInt(deleted.ID, 10),
		Meta:     map[string]any{"number": deleted.Number},
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

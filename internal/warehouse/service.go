package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/observability"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/cache"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
)

const idempotencyModule = "warehouse_move"

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	WithdrawOrder WithdrawOrder
	Reserved      ReservedTitles
}

// Service coordinates catalog, structure and ledger operations.
type Service struct {
	repo        RepositoryPort
	ledger      *Ledger
	reserved    ReservedTitles
	audit       AuditPort
	idempotency IdempotencyPort
	summary     *cache.Versioned
	metrics     *observability.Domain
	logger      *slog.Logger
}

// NewService builds Service. audit, idem, summary and metrics are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, summary *cache.Versioned, metrics *observability.Domain, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	reserved := cfg.Reserved
	if reserved == (ReservedTitles{}) {
		reserved = DefaultReservedTitles()
	}
	return &Service{
		repo:        repo,
		ledger:      NewLedger(cfg.WithdrawOrder),
		reserved:    reserved.normalized(),
		audit:       audit,
		idempotency: idem,
		summary:     summary,
		metrics:     metrics,
		logger:      logger,
	}
}

// Ledger returns the ledger used for quantity changes.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// ReservedTitles returns the configured staging place titles.
func (s *Service) ReservedTitles() ReservedTitles {
	return s.reserved
}

// ResolveReserved looks up the three staging places in one query. The first
// missing title is reported as MissingReservedLocationError.
func (s *Service) ResolveReserved(ctx context.Context, tx TxRepository) (Reserved, error) {
	titles := []string{s.reserved.Inbound, s.reserved.Outbound, s.reserved.New}
	places, err := tx.FindPlacesByTitle(ctx, titles)
	if err != nil {
		return Reserved{}, err
	}
	byTitle := make(map[string]Place, len(places))
	for _, p := range places {
		title := NormalizeTitle(p.Title)
		if _, ok := byTitle[title]; !ok {
			byTitle[title] = p
		}
	}
	var resolved Reserved
	targets := []*Place{&resolved.Inbound, &resolved.Outbound, &resolved.New}
	for i, title := range titles {
		place, ok := byTitle[title]
		if !ok {
			missing := &MissingReservedLocationError{Title: title}
			s.logger.Error("reserved location missing", slog.String("title", title))
			return Reserved{}, missing
		}
		*targets[i] = place
	}
	return resolved, nil
}

// GetOrCreateItem returns the item with the normalised code, creating it on first
// reference. Empty weight and description are backfilled from in.
func (s *Service) GetOrCreateItem(ctx context.Context, tx TxRepository, in ItemInput) (Item, error) {
	in, err := validateItemInput(in)
	if err != nil {
		return Item{}, err
	}
	item, err := tx.GetItemByCodeForUpdate(ctx, in.Code)
	if errors.Is(err, ErrNotFound) {
		return tx.InsertItem(ctx, Item{Code: in.Code, Weight: in.Weight, Description: in.Description})
	}
	if err != nil {
		return Item{}, err
	}
	changed := false
	if item.Weight == nil && in.Weight != nil {
		weight := *in.Weight
		item.Weight = &weight
		changed = true
	}
	if item.Description == "" && in.Description != "" {
		item.Description = in.Description
		changed = true
	}
	if changed {
		if err := tx.UpdateItem(ctx, item); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}

// Available returns the allocatable quantity of item: ok stock outside the
// outbound staging place.
func (s *Service) Available(ctx context.Context, tx TxRepository, item Item, reserved Reserved) (int64, error) {
	return tx.SumQuantity(ctx, EntryQuery{ItemID: item.ID, Status: StatusOK, ExcludePlaceIDs: []int64{reserved.Outbound.ID}})
}

// Move relocates units between two places and records one history row.
func (s *Service) Move(ctx context.Context, in MoveInput) (MoveResult, error) {
	in.ItemCode = NormalizeCode(in.ItemCode)
	if in.ItemCode == "" {
		return MoveResult{}, fmt.Errorf("%w: item code required", ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return MoveResult{}, ErrInvalidQuantity
	}
	if in.FromPlaceID == in.ToPlaceID {
		return MoveResult{}, ErrSamePlace
	}
	if in.Status == "" {
		in.Status = StatusOK
	}
	if !in.Status.IsValid() {
		return MoveResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if in.Actor == "" {
		in.Actor = shared.ActorFromContext(ctx)
	}

	insertedKey := false
	if s.idempotency != nil && in.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return MoveResult{}, err
		}
		insertedKey = true
	}

	var result MoveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemByCodeForUpdate(ctx, in.ItemCode)
		if err != nil {
			return fmt.Errorf("item %s: %w", in.ItemCode, err)
		}
		from, err := tx.GetPlace(ctx, in.FromPlaceID)
		if err != nil {
			return fmt.Errorf("place %d: %w", in.FromPlaceID, err)
		}
		to, err := tx.GetPlace(ctx, in.ToPlaceID)
		if err != nil {
			return fmt.Errorf("place %d: %w", in.ToPlaceID, err)
		}
		if err := s.ledger.Move(ctx, tx, item, in.Quantity, from, to, in.Status, in.Actor); err != nil {
			return err
		}
		result = MoveResult{Item: item, From: from, To: to, Quantity: in.Quantity}
		if src, err := tx.GetEntryForUpdate(ctx, from.ID, item.ID); err == nil {
			result.Source = &src
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		dst, err := tx.GetEntryForUpdate(ctx, to.ID, item.ID)
		if err != nil {
			return err
		}
		result.Destination = dst
		result.History = History{Actor: in.Actor, ItemCode: item.Code, Count: in.Quantity, OldAddress: from.FullAddress(), NewAddress: to.FullAddress(), Date: time.Now().UTC()}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, in.IdempotencyKey, idempotencyModule)
		}
		return MoveResult{}, err
	}

	s.InvalidateSummary(ctx)
	s.metrics.StockMoved(in.Quantity)
	s.recordAudit(ctx, shared.AuditLog{
		Actor:    in.Actor,
		Action:   shared.AuditStockMove,
		Entity:   "item",
		EntityID: strconv.FormatInt(result.Item.ID, 10),
		Meta: map[string]any{
			"item_code": result.Item.Code,
			"quantity":  in.Quantity,
			"from":      result.From.FullAddress(),
			"to":        result.To.FullAddress(),
		},
	})
	return result, nil
}

// EnsureStructure gets or creates the requested stock, zone and place chain.
func (s *Service) EnsureStructure(ctx context.Context, in StructureInput) (StructureResult, error) {
	if in.Actor == "" {
		in.Actor = shared.ActorFromContext(ctx)
	}
	if strings.TrimSpace(in.Stock+in.Zone+in.Place) == "" {
		return StructureResult{}, fmt.Errorf("%w: stock, zone or place title required", ErrInvalidInput)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" && in.Actor != "" {
		description = "created by " + in.Actor
	}

	var result StructureResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var stockID, zoneID *int64
		if strings.TrimSpace(in.Stock) != "" {
			stock, created, err := s.ensureStock(ctx, tx, Stock{Title: in.Stock, Address: strings.TrimSpace(in.Address), Description: description})
			if err != nil {
				return err
			}
			result.Stock = &stock
			stockID = &stock.ID
			result.Created += created
		}
		if strings.TrimSpace(in.Zone) != "" {
			zone, created, err := s.ensureZone(ctx, tx, Zone{StockID: stockID, Title: in.Zone, Description: description})
			if err != nil {
				return err
			}
			result.Zone = &zone
			zoneID = &zone.ID
			result.Created += created
		}
		if strings.TrimSpace(in.Place) != "" {
			place, created, err := s.ensurePlace(ctx, tx, Place{ZoneID: zoneID, Title: in.Place, Description: description})
			if err != nil {
				return err
			}
			result.Place = &place
			result.Created += created
		}
		return nil
	})
	if err != nil {
		return StructureResult{}, err
	}
	return result, nil
}

func (s *Service) ensureStock(ctx context.Context, tx TxRepository, stock Stock) (Stock, int, error) {
	title, err := validateTitle("stock", stock.Title)
	if err != nil {
		return Stock{}, 0, err
	}
	existing, err := tx.FindStock(ctx, title)
	if err == nil {
		return existing, 0, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Stock{}, 0, err
	}
	stock.Title = title
	created, err := tx.InsertStock(ctx, stock)
	return created, 1, err
}

func (s *Service) ensureZone(ctx context.Context, tx TxRepository, zone Zone) (Zone, int, error) {
	title, err := validateTitle("zone", zone.Title)
	if err != nil {
		return Zone{}, 0, err
	}
	existing, err := tx.FindZone(ctx, zone.StockID, title)
	if err == nil {
		return existing, 0, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Zone{}, 0, err
	}
	zone.Title = title
	created, err := tx.InsertZone(ctx, zone)
	return created, 1, err
}

func (s *Service) ensurePlace(ctx context.Context, tx TxRepository, place Place) (Place, int, error) {
	title, err := validateTitle("place", place.Title)
	if err != nil {
		return Place{}, 0, err
	}
	if s.reserved.Contains(title) && place.ZoneID != nil {
		return Place{}, 0, fmt.Errorf("%w: %s is a reserved place and cannot be nested in a zone", ErrInvalidInput, title)
	}
	existing, err := tx.FindPlace(ctx, place.ZoneID, title)
	if err == nil {
		return existing, 0, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Place{}, 0, err
	}
	place.Title = title
	created, err := tx.InsertPlace(ctx, place)
	return created, 1, err
}

// DeletePlace removes a place unless it is reserved or still referenced.
func (s *Service) DeletePlace(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		place, err := tx.GetPlace(ctx, id)
		if err != nil {
			return err
		}
		if place.ZoneID == nil && s.reserved.Contains(place.Title) {
			return fmt.Errorf("%w: %s is a reserved place", ErrProtected, place.Title)
		}
		refs, err := tx.CountPlaceReferences(ctx, place)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: place %s has %d references", ErrProtected, place.FullAddress(), refs)
		}
		return tx.DeletePlace(ctx, id)
	})
}

// DeleteZone removes an empty zone.
func (s *Service) DeleteZone(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteZone(ctx, id)
	})
}

// DeleteStock removes an empty stock.
func (s *Service) DeleteStock(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteStock(ctx, id)
	})
}

// DeleteItem removes an item no ledger row, wave line or history row refers to.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItem(ctx, id); err != nil {
			return err
		}
		refs, err := tx.CountItemReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: item %d has %d references", ErrProtected, id, refs)
		}
		return tx.DeleteItem(ctx, id)
	})
}

// Structure lists stocks, zones and places.
func (s *Service) Structure(ctx context.Context) (Structure, error) {
	return s.repo.ListStructure(ctx)
}

// SearchLots lists ledger entries.
func (s *Service) SearchLots(ctx context.Context, filter LotFilter) (Page[Entry], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return Page[Entry]{}, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	filter.ItemCode = NormalizeCode(filter.ItemCode)
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	rows, total, err := s.repo.SearchLots(ctx, filter)
	if err != nil {
		return Page[Entry]{}, err
	}
	return Page[Entry]{Items: rows, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// SearchItems lists catalog items.
func (s *Service) SearchItems(ctx context.Context, filter ItemFilter) (Page[Item], error) {
	filter.Code = NormalizeCode(filter.Code)
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	rows, total, err := s.repo.SearchItems(ctx, filter)
	if err != nil {
		return Page[Item]{}, err
	}
	return Page[Item]{Items: rows, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// SearchHistory lists history rows, newest first.
func (s *Service) SearchHistory(ctx context.Context, filter HistoryFilter) (Page[History], error) {
	filter.ItemCode = NormalizeCode(filter.ItemCode)
	filter.Address = strings.TrimSpace(filter.Address)
	filter.Actor = strings.TrimSpace(filter.Actor)
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return Page[History]{}, fmt.Errorf("%w: date range is inverted", ErrInvalidInput)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	rows, total, err := s.repo.SearchHistory(ctx, filter)
	if err != nil {
		return Page[History]{}, err
	}
	return Page[History]{Items: rows, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// StockSummary reports where an item is held and how much is allocatable.
func (s *Service) StockSummary(ctx context.Context, itemCode string) (Summary, error) {
	code := NormalizeCode(itemCode)
	if code == "" {
		return Summary{}, fmt.Errorf("%w: item code required", ErrInvalidInput)
	}
	key, err := s.summary.BuildKey(ctx, "summary", code)
	if err != nil {
		s.logger.Warn("summary cache unavailable", slog.Any("error", err))
		return s.loadSummary(ctx, code)
	}
	var summary Summary
	err = s.summary.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.loadSummary(ctx, code)
	})
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (s *Service) loadSummary(ctx context.Context, code string) (Summary, error) {
	entries, err := s.repo.ItemEntries(ctx, code)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{ItemCode: code, ByStatus: map[EntryStatus]int64{}}
	places := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		summary.Total += e.Quantity
		summary.ByStatus[e.Status] += e.Quantity
		places[e.PlaceID] = struct{}{}
		outbound := e.Place.ZoneID == nil && NormalizeTitle(e.Place.Title) == s.reserved.Outbound
		if e.Status == StatusOK && !outbound {
			summary.Available += e.Quantity
		}
	}
	summary.Places = len(places)
	return summary, nil
}

// InvalidateSummary drops cached summaries after a ledger change was committed.
func (s *Service) InvalidateSummary(ctx context.Context) {
	if err := s.summary.Bump(ctx); err != nil {
		s.logger.Warn("summary cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

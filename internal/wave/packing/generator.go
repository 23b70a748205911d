package packing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

// Loader reads a wave with its lines.
type Loader interface {
	Get(ctx context.Context, id int64) (wave.Wave, error)
}

// Saver stores a rendered document in the folder of a wave.
type Saver interface {
	Save(folder, number, name string, r io.Reader) (string, error)
}

// GeneratorConfig wires the dependencies of Generator.
type GeneratorConfig struct {
	Loader      Loader
	Renderer    *Renderer
	Store       Saver
	CompanyName string
	Logger      *slog.Logger
	Now         func() time.Time
}

// Generator renders and stores packing lists synchronously.
type Generator struct {
	loader   Loader
	renderer *Renderer
	store    Saver
	company  string
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{loader: cfg.Loader, renderer: cfg.Renderer, store: cfg.Store, company: cfg.CompanyName, logger: cfg.Logger, now: cfg.Now}
}

// Generate renders the packing list of w and stores it as
// outbounds/<number>/PACK_<number>.pdf. Lines are loaded when w has none.
func (g *Generator) Generate(ctx context.Context, w wave.Wave) error {
	if g == nil || g.renderer == nil || g.store == nil {
		return fmt.Errorf("packing generator not configured")
	}
	if w.Kind != wave.KindOutbound {
		return fmt.Errorf("%w: packing list requires an outbound wave", wave.ErrInvalidInput)
	}
	if len(w.Items) == 0 && g.loader != nil {
		loaded, err := g.loader.Get(ctx, w.ID)
		if err != nil {
			return err
		}
		w = loaded
	}
	doc := Build(w, w.Items, g.company, g.now())
	pdf, err := g.renderer.Render(ctx, doc)
	if err != nil {
		return fmt.Errorf("render packing list %s: %w", w.Number, err)
	}
	path, err := g.store.Save(w.Kind.Folder(), w.Number, doc.FileName(), bytes.NewReader(pdf))
	if err != nil {
		return fmt.Errorf("store packing list %s: %w", w.Number, err)
	}
	g.logger.Info("packing list stored", slog.String("number", w.Number), slog.String("path", path), slog.Int("lines", len(doc.Lines)))
	return nil
}

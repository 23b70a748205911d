package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// Layout describes stocks, their zones and places to create.
type Layout struct {
	Stocks []StockLayout `yaml:"stocks"`
}

// StockLayout is one stock of a layout file.
type StockLayout struct {
	Title       string       `yaml:"title"`
	Address     string       `yaml:"address"`
	Description string       `yaml:"description"`
	Zones       []ZoneLayout `yaml:"zones"`
}

// ZoneLayout is one zone with its place titles.
type ZoneLayout struct {
	Title  string   `yaml:"title"`
	Places []string `yaml:"places"`
}

// ParseLayout decodes a layout and flattens it into structure requests,
// deepest level first, one per place or bare zone or bare stock.
func ParseLayout(r io.Reader, actor string) ([]warehouse.StructureInput, error) {
	var layout Layout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	var out []warehouse.StructureInput
	for _, stock := range layout.Stocks {
		if stock.Title == "" {
			return nil, fmt.Errorf("layout: stock without title")
		}
		base := warehouse.StructureInput{Stock: stock.Title, Address: stock.Address, Description: stock.Description, Actor: actor}
		if len(stock.Zones) == 0 {
			out = append(out, base)
			continue
		}
		for _, zone := range stock.Zones {
			if zone.Title == "" {
				return nil, fmt.Errorf("layout: zone without title in stock %s", stock.Title)
			}
			in := base
			in.Zone = zone.Title
			if len(zone.Places) == 0 {
				out = append(out, in)
				continue
			}
			for _, place := range zone.Places {
				in.Place = place
				out = append(out, in)
			}
		}
	}
	return out, nil
}

func newSeedCommand(e *env) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "seed <layout.yaml>",
		Short: "Create stocks, zones and places from a layout file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			inputs, err := ParseLayout(f, actor)
			if err != nil {
				return err
			}

			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			created := 0
			for _, in := range inputs {
				res, err := svc.Stock.EnsureStructure(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("%s/%s/%s: %w", in.Stock, in.Zone, in.Place, err)
				}
				created += res.Created
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records created\n", created)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "seed", "operator recorded in history")
	return cmd
}

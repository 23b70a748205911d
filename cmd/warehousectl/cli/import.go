package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlekseyRodimkin/warehouse/internal/importer"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

type importFlags struct {
	kind        string
	stockID     int64
	party       string
	status      string
	planned     string
	description string
	actor       string
	documents   []string
}

func (f importFlags) request() (importer.Request, error) {
	req := importer.Request{
		Kind:        wave.Kind(f.kind),
		StockID:     f.stockID,
		Party:       f.party,
		Status:      wave.Status(f.status),
		Description: f.description,
		Actor:       f.actor,
	}
	if !req.Kind.IsValid() {
		return req, fmt.Errorf("--kind must be inbound or outbound")
	}
	if f.planned != "" {
		planned, err := time.Parse("2006-01-02", f.planned)
		if err != nil {
			return req, fmt.Errorf("--planned must be YYYY-MM-DD")
		}
		req.PlannedDate = planned
	}
	return req, nil
}

func newImportCommand(e *env) *cobra.Command {
	var flags importFlags
	cmd := &cobra.Command{
		Use:   "import [form]",
		Short: "Create a wave from a csv or xlsx form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			var files []*os.File
			defer func() {
				for _, f := range files {
					_ = f.Close()
				}
			}()
			open := func(path string) (importer.File, error) {
				f, err := os.Open(path)
				if err != nil {
					return importer.File{}, err
				}
				files = append(files, f)
				info, err := f.Stat()
				if err != nil {
					return importer.File{}, err
				}
				return importer.File{Name: filepath.Base(path), Size: info.Size(), Body: f}, nil
			}
			if len(args) == 1 {
				form, err := open(args[0])
				if err != nil {
					return err
				}
				req.Form = &form
			}
			for _, path := range flags.documents {
				doc, err := open(path)
				if err != nil {
					return err
				}
				req.Documents = append(req.Documents, doc)
			}

			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			res, err := svc.Importer.Import(cmd.Context(), req)
			var verr *importer.ValidationError
			if errors.As(err, &verr) {
				for _, problem := range verr.ProblemList() {
					fmt.Fprintln(cmd.ErrOrStderr(), problem)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d lines, %d documents\n", res.Wave.Number, res.Wave.Status, res.Lines, len(res.Documents))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.kind, "kind", "", "wave kind: inbound or outbound")
	cmd.Flags().Int64Var(&flags.stockID, "stock", 0, "stock id")
	cmd.Flags().StringVar(&flags.party, "party", "", "supplier or recipient")
	cmd.Flags().StringVar(&flags.status, "status", string(wave.StatusPlanned), "initial status: planned, in_progress, completed or cancelled")
	cmd.Flags().StringVar(&flags.planned, "planned", "", "planned date YYYY-MM-DD, defaults to today")
	cmd.Flags().StringVar(&flags.description, "description", "", "free text note")
	cmd.Flags().StringVar(&flags.actor, "actor", os.Getenv("USER"), "operator recorded in history")
	cmd.Flags().StringSliceVar(&flags.documents, "doc", nil, "attachment to store with the wave, repeatable")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("stock")
	_ = cmd.MarkFlagRequired("party")
	return cmd
}

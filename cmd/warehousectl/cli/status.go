package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

func newStatusCommand(e *env) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "status <wave-id> <status>",
		Short: "Move a wave to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("wave id must be a positive integer")
			}
			to := wave.Status(args[1])
			if !to.IsValid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			svc, closeAll, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			updated, err := svc.Waves.ChangeStatus(cmd.Context(), id, to, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", updated.Number, updated.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "operator recorded in history")
	return cmd
}

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dwizi/databridge/internal/dashboard"
)

func newDashboardCommand(logger *slog.Logger) *cobra.Command {
	var userCode string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Run a terminal dashboard polling task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()
			return dashboard.Run(eng, userCode)
		},
	}
	cmd.Flags().StringVar(&userCode, "user", "", "owning user code to poll")
	return cmd
}

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dwizi/databridge/internal/task"
)

func newExportCommand(logger *slog.Logger) *cobra.Command {
	var userCode string
	var compatibilityMode bool

	cmd := &cobra.Command{
		Use:   "export [table...]",
		Short: "Submit an export task querying one or more tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			queries := make([]task.QueryInfo, len(args))
			for i, tableName := range args {
				queries[i] = task.QueryInfo{TableName: tableName}
			}

			taskCode, err := eng.AddExportTask(userCode, compatibilityMode, queries...)
			if err != nil {
				return err
			}
			cmd.Println(taskCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&userCode, "user", "", "owning user code")
	cmd.Flags().BoolVar(&compatibilityMode, "legacy", false, "write the legacy .xls-compatible extension")
	return cmd
}

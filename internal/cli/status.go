package cli

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"
)

func newStatusCommand(logger *slog.Logger) *cobra.Command {
	var userCode string
	var taskCode int64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a task, or a page of a user's tasks, as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			var payload any
			if taskCode != 0 {
				payload, err = eng.TaskInfo(userCode, taskCode)
			} else {
				payload, err = eng.TaskList(userCode, 1, 0)
			}
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&userCode, "user", "", "owning user code")
	cmd.Flags().Int64Var(&taskCode, "task", 0, "look up one task by code instead of listing")
	return cmd
}

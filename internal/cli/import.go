package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand(logger *slog.Logger) *cobra.Command {
	var userCode string
	var transactional bool
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Submit a binary record file as an import task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			taskCode, err := eng.AddImportTask(file, userCode, transactional, timeoutSec)
			if err != nil {
				return err
			}
			cmd.Println(taskCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&userCode, "user", "", "owning user code")
	cmd.Flags().BoolVar(&transactional, "transactional", false, "apply the whole file under one transaction")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "transaction timeout in seconds")
	return cmd
}

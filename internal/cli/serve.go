package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dwizi/databridge/internal/config"
	"github.com/dwizi/databridge/internal/configwatch"
	"github.com/dwizi/databridge/internal/statusapi"
)

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the schedule/expire tickers and the status HTTP+websocket surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := eng.Start(ctx); err != nil {
				return err
			}

			addr := os.Getenv("DATABRIDGE_STATUS_ADDR")
			if addr == "" {
				addr = ":8089"
			}
			server := &http.Server{
				Addr: addr,
				Handler: statusapi.NewRouter(statusapi.Dependencies{
					Engine:              eng,
					Logger:              logger,
					HeartbeatStaleAfter: 10 * time.Second,
				}),
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				logger.Info("status api listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			if configFile := os.Getenv("DATABRIDGE_CONFIG_FILE"); configFile != "" {
				group.Go(func() error {
					return configwatch.Watch(groupCtx, configFile, config.FromEnv, eng, logger)
				})
			}
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return group.Wait()
		},
	}
}

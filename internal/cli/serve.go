package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/bank-statement-agent/internal/api"
	"github.com/insightdelivered/bank-statement-agent/internal/logging"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		// Fail at startup rather than on the first request.
		if _, err := a.loop(0, nil); err != nil {
			return err
		}

		h := &api.Handler{
			Run: func(ctx context.Context, target string, maxAttempts int) *models.LoopResult {
				loop, err := a.loop(maxAttempts, nil)
				if err != nil {
					return &models.LoopResult{Target: target, Status: models.StatusFatal, Error: err.Error()}
				}
				return loop.Run(ctx, target)
			},
			Artifacts: a.store,
			Executor:  a.executor,
			Version:   buildVersion,
			Logger:    logging.Component("api"),
		}
		if a.history != nil {
			h.History = a.history
		}
		server := api.NewApp(h, appConfig.Server.MaxUploadBytes)

		addr := serveAddr
		if addr == "" {
			addr = appConfig.Server.Addr
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Msg("listening")
			errCh <- server.Listen(addr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return server.ShutdownWithTimeout(10 * time.Second)
		}
	},
}

package cli

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mqtt-timescale/internal/app"
	"mqtt-timescale/internal/config"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var startTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and Kafka ingest service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)
			return runServe(cmd.Context(), app.New(cfg, logger), startTimeout, logger)
		},
	}

	cmd.Flags().DurationVar(&startTimeout, "start-timeout", 30*time.Second, "time allowed for startup and shutdown")
	return cmd
}

// service is the lifecycle surface of *fx.App.
type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Done() <-chan os.Signal
	Err() error
}

func runServe(ctx context.Context, svc service, timeout time.Duration, logger *log.Logger) error {
	if err := svc.Err(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := svc.Start(startCtx); err != nil {
		return err
	}

	select {
	case sig := <-svc.Done():
		logger.Printf("ingest: received %s, shutting down", sig)
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	return svc.Stop(stopCtx)
}

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"catalog/internal/platform/config"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the audit consumer only",
		Long: `Consume the Redis-backed activity-log queue and write activity log
records. Run any number of workers next to "catalog serve --with-worker=false".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	i, err := newInfra(ctx)
	if err != nil {
		return err
	}
	defer i.Close()

	if i.cfg.Audit.Backend != config.QueueBackendRedis {
		return errors.New("a standalone worker needs AUDIT_QUEUE_BACKEND=redis")
	}
	return i.runWorker(ctx, i.auditQueue())
}

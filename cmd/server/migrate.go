package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			i, err := newInfra(cmd.Context())
			if err != nil {
				return err
			}
			defer i.Close()

			if i.pool == nil {
				return errors.New("migrate needs DATABASE_URL")
			}
			i.logger.Info("migrations up to date")
			return nil
		},
	}
}

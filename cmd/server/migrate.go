package main

import (
	"github.com/spf13/cobra"

	"github.com/rl1809/inventory-sync/internal/adapter/storage"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply primary store schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.Migrate(a.cfg.MySQLDSN, a.log)
		},
	}
}

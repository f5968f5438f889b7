package cli

import (
	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
	"github.com/ankittk/usagi/internal/store"
)

// ledgerFlags select the ledger for read-only commands.
type ledgerFlags struct {
	driver string
	url    string
}

func (f *ledgerFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.driver, "db-driver", "sqlite", "Ledger driver: sqlite or postgres")
	cmd.PersistentFlags().StringVar(&f.url, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
}

func (f *ledgerFlags) open(cmd *cobra.Command) (store.Ledger, error) {
	return daemon.OpenLedger(config.MustRootFrom(cmd.Context()), f.driver, f.url)
}

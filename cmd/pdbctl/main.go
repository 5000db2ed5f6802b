// cmd/pdbctl/main.go
//
// Participants Database – operator CLI.
//
// Commands
// --------
//   install [--seed fields.yaml]   create tables, optionally seeding definitions
//   schema sync [--dry-run]        align the records table with the fields
//   recompute <field>              queue every record for one computed field
//   worker [--once]                process the recompute queue
//   calc <template> [name=value]…  evaluate a calculation template offline
//   list-sql --user N              show the admin list SQL for a saved filter
//
// Every command but calc opens the database named in conf/global.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanizio/participants/internal/app"

	_ "github.com/yanizio/participants/components/fields"
	_ "github.com/yanizio/participants/components/list"
	_ "github.com/yanizio/participants/components/records"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pdbctl:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdbctl",
		Short:         "Participants Database maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "mirror the log to stdout")
	root.AddCommand(
		newInstallCmd(),
		newSchemaCmd(),
		newRecomputeCmd(),
		newWorkerCmd(),
		newCalcCmd(),
		newListSQLCmd(),
	)
	return root
}

// openApp bootstraps the process for a command.
func openApp(cmd *cobra.Command) (*app.App, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return app.Open(cmd.Context(), app.Options{Tee: verbose})
}

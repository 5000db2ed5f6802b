package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Records table maintenance",
	}
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Adds or retypes columns so the records table matches the field definitions",
		Args:  cobra.NoArgs,
		RunE:  schemaSync,
	}
	sync.Flags().Bool("dry-run", false, "print the statements without running them")
	cmd.AddCommand(sync)
	return cmd
}

func schemaSync(cmd *cobra.Command, _ []string) error {
	dry, _ := cmd.Flags().GetBool("dry-run")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	snap, err := a.Engine.Fields.Snapshot(ctx)
	if err != nil {
		return err
	}
	changes, err := a.Engine.Schema.Sync(ctx, snap, dry)
	out := cmd.OutOrStdout()
	for _, c := range changes {
		fmt.Fprintf(out, "%s;\n", c.SQL)
	}
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(out, "-- records table is up to date")
	}
	return nil
}

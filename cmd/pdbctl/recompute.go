package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/queue"
)

func newRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <field>",
		Short: "Queues every record for recompute of one computed field",
		Long: "Queues every record for recompute of one computed field.  With the\n" +
			"memory queue driver the batch is processed before the command exits.",
		Args: cobra.ExactArgs(1),
		RunE: recompute,
	}
}

func recompute(cmd *cobra.Command, args []string) error {
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
	f, ok := snap.Field(args[0])
	if !ok {
		return fmt.Errorf("%w: %q", field.ErrUnknownField, args[0])
	}
	batch, err := a.Engine.Resolver.RecomputeAll(ctx, f, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued batch %s\n", batch)

	// The memory queue dies with the process.
	if _, inProcess := a.Engine.Queue.(*queue.Memory); inProcess && batch != "" {
		return a.Engine.Worker().Drain(ctx)
	}
	return nil
}

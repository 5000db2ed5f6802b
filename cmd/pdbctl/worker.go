package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Processes the recompute queue until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
	cmd.Flags().Bool("once", false, "drain the current backlog and exit")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := a.Engine.Worker()
	if once {
		if err := w.Drain(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "queue drained")
		return nil
	}
	a.Log.Infow("recompute worker started", "driver", a.Config.Queue.Driver)
	return w.Run(cmd.Context())
}

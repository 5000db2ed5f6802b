package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newListSQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-sql",
		Short: "Prints the admin list SELECT and COUNT for a user's saved filter",
		Args:  cobra.NoArgs,
		RunE:  listSQL,
	}
	cmd.Flags().Int64("user", 0, "user id whose filter to explain")
	return cmd
}

func listSQL(cmd *cobra.Command, _ []string) error {
	uid, _ := cmd.Flags().GetInt64("user")
	if uid <= 0 {
		return errors.New("--user is required")
	}

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
	f, err := a.Engine.Filters.Load(ctx, uid)
	if err != nil {
		return err
	}
	ex, err := a.Engine.Lister.Explain(snap, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ex)
}

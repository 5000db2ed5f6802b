package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/field"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Creates the definition, records, and component tables",
		Args:  cobra.NoArgs,
		RunE:  install,
	}
	cmd.Flags().String("seed", "", "YAML file of groups and fields to load first")
	return cmd
}

func install(cmd *cobra.Command, _ []string) error {
	var seed *field.Document
	if path, _ := cmd.Flags().GetString("seed"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if seed, err = field.ParseYAML(raw); err != nil {
			return err
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.Engine.Install(ctx, seed); err != nil {
		return err
	}
	comps := component.All()
	if err := component.InitAll(a.Engine, comps); err != nil {
		return err
	}
	if err := component.Migrate(ctx, a.DB, comps); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "installed")
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/config"
	"github.com/yanizio/participants/internal/locale"
)

func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calc <template> [name=value]...",
		Short:   "Evaluates a calculation template against the given values",
		Example: `  pdbctl calc '[age]+[weight]=[?round_2]' age=30 weight=72.5`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runCalc,
	}
	cmd.Flags().Bool("date", false, "treat the owning field as a date field")
	return cmd
}

// calcOutput is what runCalc prints.
type calcOutput struct {
	Stored   string   `json:"stored"`
	Display  string   `json:"display"`
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

func runCalc(cmd *cobra.Command, args []string) error {
	t, err := calc.Parse(args[0])
	if err != nil {
		return err
	}
	data, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.LoadFrom(cmd.Context(), config.RootDir())
	if err != nil {
		return err
	}
	loc, err := locale.New(cfg.Locale)
	if err != nil {
		return err
	}
	date, _ := cmd.Flags().GetBool("date")
	res := t.Evaluate(data, calc.Env{
		Clock:        calc.NewClock(loc.Location(), 0),
		Locale:       loc,
		NumericField: !date,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(calcOutput{Stored: res.Stored, Display: res.Display, Complete: res.Complete, Missing: res.Missing})
}

// parseAssignments turns name=value arguments into a data map.
func parseAssignments(args []string) (map[string]string, error) {
	data := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("want name=value, got %q", a)
		}
		data[name] = value
	}
	return data, nil
}

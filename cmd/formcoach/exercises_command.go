package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"formcoach/internal/config"
	"formcoach/internal/exercise"
)

func newExercisesCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exercises",
		Short: "List configured exercises and their rule tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var registry *exercise.Registry
			if cfg.Paths.RulesPath != "" {
				registry, err = exercise.LoadFile(cfg.Paths.RulesPath)
			} else {
				registry, err = exercise.LoadDefault()
			}
			if err != nil {
				return fmt.Errorf("load exercise rules: %w", err)
			}

			headers := []string{"ID", "Name", "Primary Joint", "Rules", "Direction"}
			var rows [][]string
			for _, id := range registry.IDs() {
				def, err := registry.Get(id)
				if err != nil {
					continue
				}
				direction := "ascending"
				if def.Descending() {
					direction = "descending"
				}
				rows = append(rows, []string{
					def.ID,
					def.Name,
					string(def.PrimaryJoint),
					fmt.Sprintf("%d", len(def.Rules)),
					direction,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(headers, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))

			for id, brokenErr := range registry.Broken() {
				fmt.Fprintf(out, "warning: exercise %q rejected: %v\n", id, brokenErr)
			}
			return nil
		},
	}
}

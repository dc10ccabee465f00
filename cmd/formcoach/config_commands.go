package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"formcoach/internal/config"
	"formcoach/internal/exercise"
)

func newConfigCommand(configFlag *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(configFlag))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the camera snapshot URLs and pose service endpoint before starting formcoachd.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

// newConfigValidateCommand checks the config file and the exercise rules it
// points at. Rejected exercises are reported here with the same validation
// the daemon applies at startup, so a bad rules edit surfaces before a
// training session silently loses an exercise.
func newConfigValidateCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and exercise rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}

			registry, err := loadRules(cfg)
			if err != nil {
				return err
			}
			broken := registry.Broken()
			fmt.Fprintf(out, "Exercise rules: %d usable, %d rejected\n", len(registry.IDs()), len(broken))
			if len(broken) > 0 {
				ids := make([]string, 0, len(broken))
				for id := range broken {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "  %s: %v\n", id, broken[id])
				}
				fmt.Fprintln(out, "Configuration valid; rejected exercises stay unavailable until fixed")
				return nil
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func loadRules(cfg *config.Config) (*exercise.Registry, error) {
	if cfg.Paths.RulesPath != "" {
		registry, err := exercise.LoadFile(cfg.Paths.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load exercise rules %s: %w", cfg.Paths.RulesPath, err)
		}
		return registry, nil
	}
	registry, err := exercise.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load embedded exercise rules: %w", err)
	}
	return registry, nil
}

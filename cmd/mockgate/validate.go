package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mockgate/mockgate/pkg/config"
	"github.com/mockgate/mockgate/pkg/rule"
)

func newValidateCmd() *cobra.Command {
	var rulesDir string

	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate rule files without starting the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && rulesDir == "" {
				return fmt.Errorf("provide at least one file or --rules directory")
			}

			var routes []*rule.RouteRule
			for _, path := range args {
				cfg, err := config.LoadFromFile(path)
				if err != nil {
					return err
				}
				routes = append(routes, cfg.Routes...)
			}
			if rulesDir != "" {
				result, err := config.NewDirectoryLoader(rulesDir).Load()
				if err != nil {
					return err
				}
				for _, le := range result.Errors {
					fmt.Fprintln(os.Stderr, "Error:", le.Error())
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d file(s) failed to load", len(result.Errors))
				}
				routes = append(routes, result.Routes...)
			}

			if errs := config.Validate(routes); len(errs) > 0 {
				for _, err := range errs {
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
				return fmt.Errorf("%d invalid rule(s)", len(errs))
			}

			fmt.Printf("OK: %d rule(s) valid\n", len(routes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&rulesDir, "rules", "r", "", "directory of rule files")
	return cmd
}

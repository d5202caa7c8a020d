package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
)

func newValidateCmd() *cobra.Command {
	var timezone string
	cmd := &cobra.Command{
		Use:   "validate [expression]",
		Short: "Validate a cron expression and show its next firings",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eval := cron.NewEvaluator()
			expr := args[0]

			result, err := eval.Validate(expr, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
				os.Exit(1)
			}

			first, second := result.FirstFiring, result.SecondFiring
			if timezone != "" {
				first, err = eval.Next(expr, timezone, time.Now())
				if err != nil {
					fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
					os.Exit(1)
				}
				second, err = eval.Next(expr, timezone, first)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
					os.Exit(1)
				}
			}

			fmt.Printf("Valid: %s\n", expr)
			fmt.Printf("Next firing:   %s\n", first.Format(time.RFC3339))
			fmt.Printf("After that:    %s\n", second.Format(time.RFC3339))
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone to evaluate in (default UTC)")
	return cmd
}

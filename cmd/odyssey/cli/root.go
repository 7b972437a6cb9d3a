// Package cli holds the operator commands of the odyssey binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RatesFactory opens the services behind the rate commands. The returned
// func releases them.
type RatesFactory func(ctx context.Context) (*RatesCLI, func(), error)

// JobsFactory connects the queue helpers.
type JobsFactory func() (*JobsCLI, error)

// exitCode carries a non-zero status out of a command without printing usage.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// NewRootCommand builds the command tree.
func NewRootCommand(rates RatesFactory, jobsCLI JobsFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Ledger posting engine operator commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRatesCommand(rates), newJobsCommand(jobsCLI))
	return root
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintln(root.ErrOrStderr(), err)
	return 1
}

func status(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func newRatesCommand(factory RatesFactory) *cobra.Command {
	cmd := &cobra.Command{Use: "rates", Short: "Manage exchange rates"}

	var (
		importCompany string
		file          string
		mode          string
		importJSON    bool
	)
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import date,currency,rate quotes from CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			companyID, err := uuid.Parse(importCompany)
			if err != nil {
				return fmt.Errorf("rates import: invalid --company %q", importCompany)
			}
			var source io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("rates import: %w", err)
				}
				defer f.Close()
				source = f
			}
			ratesCLI, release, err := factory(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return status(ratesCLI.ImportCommand(cmd.Context(), ImportOptions{
				CompanyID:  companyID,
				Mode:       ImportMode(mode),
				Source:     source,
				JSONOutput: importJSON,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	importCmd.Flags().StringVar(&importCompany, "company", "", "company id")
	importCmd.Flags().StringVar(&file, "file", "-", "CSV file, - for stdin")
	importCmd.Flags().StringVar(&mode, "mode", string(ImportModeDry), "dry or apply")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print a JSON summary")

	var (
		checkCompany string
		asOf         string
		checkJSON    bool
	)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report open foreign-currency documents without a rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			companyID, err := uuid.Parse(checkCompany)
			if err != nil {
				return fmt.Errorf("rates check: invalid --company %q", checkCompany)
			}
			ratesCLI, release, err := factory(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return status(ratesCLI.CheckCommand(cmd.Context(), CheckOptions{
				CompanyID:  companyID,
				AsOf:       asOf,
				JSONOutput: checkJSON,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	checkCmd.Flags().StringVar(&checkCompany, "company", "", "company id")
	checkCmd.Flags().StringVar(&asOf, "as-of", "", "valuation date YYYY-MM-DD, defaults to today")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print a JSON summary")

	cmd.AddCommand(importCmd, checkCmd)
	return cmd
}

func newJobsCommand(factory JobsFactory) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Trigger and inspect background jobs"}

	var (
		company string
		asOf    string
		repair  bool
	)
	triggerCmd := &cobra.Command{
		Use:   "trigger <task-type>",
		Short: "Enqueue fx:revaluation or gl:integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts TriggerOptions
			if company != "" {
				id, err := uuid.Parse(company)
				if err != nil {
					return fmt.Errorf("jobs trigger: invalid --company %q", company)
				}
				opts.CompanyID = id
			}
			if asOf != "" {
				parsed, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("jobs trigger: invalid --as-of %q (expected YYYY-MM-DD)", asOf)
				}
				opts.AsOf = parsed
			}
			if cmd.Flags().Changed("repair") {
				opts.Repair = &repair
			}
			jobsCLI, err := factory()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			info, err := jobsCLI.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
			return nil
		},
	}
	triggerCmd.Flags().StringVar(&company, "company", "", "company id, all companies when empty")
	triggerCmd.Flags().StringVar(&asOf, "as-of", "", "valuation date for fx:revaluation")
	triggerCmd.Flags().BoolVar(&repair, "repair", false, "rebuild drifted balances for gl:integrity")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := factory()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	}

	var size int
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := factory()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			tasks, err := jobsCLI.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	scheduledCmd.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(triggerCmd, statsCmd, scheduledCmd)
	return cmd
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alexjbarnes/marksync/internal/account"
	"github.com/alexjbarnes/marksync/internal/engine"
	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account...]",
		Short: "Run one pass for the given accounts, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.accounts(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			failed := 0

			for _, acct := range accounts {
				report, err := acct.Sync(ctx)
				writeReport(out, acct.ID(), report, err)

				if err != nil {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed", failed, len(accounts))
			}

			return nil
		},
	}
}

func writeReport(w io.Writer, id string, report *account.Report, err error) {
	if report == nil {
		fmt.Fprintf(w, "%s: %s\n", id, apperrors.Stringify(err))
		return
	}

	switch report.Outcome {
	case account.OutcomeSuccess:
		fmt.Fprintf(w, "%s: %s pass in %s, local %s, server %s\n",
			id, report.Mode, report.Duration.Round(time.Millisecond),
			formatSummary(report.Result.Local), formatSummary(report.Result.Server))

		for _, e := range report.Result.Errors {
			fmt.Fprintf(w, "  warning: %s\n", apperrors.Stringify(e))
		}
	case account.OutcomeCancelled:
		fmt.Fprintf(w, "%s: cancelled\n", id)
	default:
		fmt.Fprintf(w, "%s: failed: %s\n", id, apperrors.Stringify(err))
	}

	if report.Reset {
		fmt.Fprintf(w, "  server file was missing, started over with a merge\n")
	}
}

func formatSummary(s engine.Summary) string {
	return fmt.Sprintf("+%d ~%d >%d -%d ^%d", s.Creates, s.Updates, s.Moves, s.Removes, s.Reorders)
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [account...]",
		Short: "Show the last sync of each account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.accounts(args)
			if err != nil {
				return err
			}

			statuses := make([]account.Status, 0, len(accounts))

			for _, acct := range accounts {
				st, err := acct.Status()
				if err != nil {
					return err
				}

				statuses = append(statuses, st)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(statuses)
			}

			return writeStatuses(cmd.OutOrStdout(), statuses)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func writeStatuses(w io.Writer, statuses []account.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVER\tSTRATEGY\tLAST SYNC\tOUTCOME\tERROR")

	for _, st := range statuses {
		last := "never"
		if !st.LastSync.IsZero() {
			last = st.LastSync.Local().Format(time.DateTime)
		}

		outcome := st.Outcome
		if outcome == "" {
			outcome = "-"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", st.ID, st.Server, st.Strategy, last, outcome, st.Error)
	}

	return tw.Flush()
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <account>",
		Short: "Show what the next pass would change without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.controller.Get(args[0])
			if err != nil {
				return err
			}

			pv, err := acct.Preview(cmd.Context())
			if err != nil {
				var fe *apperrors.FailsafeError
				if errors.As(err, &fe) {
					return fmt.Errorf("the next pass would be blocked: %w", err)
				}

				return err
			}

			writePreview(cmd.OutOrStdout(), pv)

			return nil
		},
	}
}

func writePreview(w io.Writer, pv *engine.Preview) {
	fmt.Fprintf(w, "mode: %s\n", pv.Mode)
	fmt.Fprintf(w, "local:  %s\n", formatSummary(pv.LocalPlan.Summary()))
	fmt.Fprintf(w, "server: %s\n", formatSummary(pv.ServerPlan.Summary()))

	if pv.LocalDiff != "" {
		fmt.Fprintf(w, "\n--- local\n%s", pv.LocalDiff)
	}

	if pv.ServerDiff != "" {
		fmt.Fprintf(w, "\n--- server\n%s", pv.ServerDiff)
	}

	for _, e := range pv.Errors {
		fmt.Fprintf(w, "warning: %s\n", apperrors.Stringify(e))
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/service"
	"github.com/Veraticus/spice-harvest/internal/source"
)

const dateLayout = "2006-01-02"

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from bank exports, Plaid or SimpleFIN",
		Long: `Read transactions from a CSV or OFX/QFX export, or from Plaid or SimpleFIN, and reconcile
them against what is already stored for the account.

Every source previews first: new rows, likely duplicates and unreadable rows are
listed and nothing is written until --execute is given.`,
		Example: `  # Preview a CSV export against the checking account
  harvest import csv statement.csv --account checking

  # Import an OFX download into the account it names
  harvest import ofx download.qfx --execute

  # Pull the last 30 days from Plaid
  harvest import plaid --account checking --execute`,
	}

	cmd.AddCommand(importCSVCmd())
	cmd.AddCommand(importOFXCmd())
	cmd.AddCommand(importPlaidCmd())
	cmd.AddCommand(importSimpleFINCmd())

	return cmd
}

func importCSVCmd() *cobra.Command {
	var (
		importOpts importFlags
		delimiter  string
	)

	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Import a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			comma, err := parseDelimiter(delimiter)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			candidates, err := source.CSV{Comma: comma}.Parse(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			slog.Info("Parsed CSV export", "file", args[0], "rows", len(candidates))

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return importOpts.reconcile(ctx, cmd.OutOrStdout(), store, candidates, "csv")
		},
	}

	importOpts.register(cmd)
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "field separator")

	return cmd
}

func importOFXCmd() *cobra.Command {
	var importOpts importFlags

	cmd := &cobra.Command{
		Use:   "ofx <file>",
		Short: "Import an OFX or QFX download",
		Long: `Import an OFX or QFX download. Each statement in the file is reconciled against
the account it names unless --account overrides it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			statements, err := source.NewOFX(slog.Default()).Parse(ctx, f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return reconcileStatements(ctx, cmd.OutOrStdout(), store, importOpts, statements, "ofx")
		},
	}

	importOpts.register(cmd)
	return cmd
}

func importPlaidCmd() *cobra.Command {
	var (
		importOpts importFlags
		start      string
		end        string
	)

	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Import posted transactions from Plaid",
		Long: `Fetch posted transactions from Plaid for the configured access token.

Credentials come from plaid.client_id, plaid.secret and plaid.access_token, or the
PLAID_CLIENT_ID, PLAID_SECRET and PLAID_ACCESS_TOKEN environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			from, to, err := parseDateRange(start, end, time.Now())
			if err != nil {
				return err
			}

			plaid, err := source.NewPlaid(config.LoadPlaidConfig(), slog.Default())
			if err != nil {
				return err
			}

			statements, err := plaid.Fetch(ctx, from, to)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return reconcileStatements(ctx, cmd.OutOrStdout(), store, importOpts, statements, "plaid")
		},
	}

	importOpts.register(cmd)
	cmd.Flags().StringVar(&start, "start", "", "first day to fetch, YYYY-MM-DD (default: 30 days before --end)")
	cmd.Flags().StringVar(&end, "end", "", "last day to fetch, YYYY-MM-DD (default: today)")

	return cmd
}

func importSimpleFINCmd() *cobra.Command {
	var (
		importOpts importFlags
		claim      string
		start      string
		end        string
	)

	cmd := &cobra.Command{
		Use:   "simplefin",
		Short: "Import posted transactions from a SimpleFIN bridge",
		Long: `Fetch posted transactions through SimpleFIN.

The first run needs --claim with the setup token from the bridge; the access URL
it returns is saved next to the database and reused after that. The access URL
can also be given as simplefin.access_url or SIMPLEFIN_ACCESS_URL.`,
		Example: `  harvest import simplefin --claim aHR0cHM6Ly9icmlkZ2U... --account checking
  harvest import simplefin --start 2024-01-01 --execute`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			from, to, err := parseDateRange(start, end, time.Now())
			if err != nil {
				return err
			}

			if claim != "" {
				accessURL, err := source.ClaimSimpleFIN(ctx, claim)
				if err != nil {
					return err
				}
				path, err := config.SimpleFINAuthPath()
				if err != nil {
					return err
				}
				if err := source.SaveSimpleFINAuth(path, source.SimpleFINAuth{AccessURL: accessURL, ClaimedAt: time.Now()}); err != nil {
					return fmt.Errorf("failed to save SimpleFIN access: %w", err)
				}
				fmt.Fprintln(out, cli.FormatSuccess("Claimed SimpleFIN access; saved to "+path))
			}

			accessURL, err := config.LoadSimpleFINAccessURL()
			if err != nil {
				return err
			}
			sfin, err := source.NewSimpleFIN(accessURL, slog.Default())
			if err != nil {
				return err
			}

			statements, err := sfin.Fetch(ctx, from, to)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return reconcileStatements(ctx, out, store, importOpts, statements, "simplefin")
		},
	}

	importOpts.register(cmd)
	cmd.Flags().StringVar(&claim, "claim", "", "SimpleFIN setup token to claim before fetching")
	cmd.Flags().StringVar(&start, "start", "", "first day to fetch, YYYY-MM-DD (default: 30 days before --end)")
	cmd.Flags().StringVar(&end, "end", "", "last day to fetch, YYYY-MM-DD (default: today)")

	return cmd
}

// reconcileStatements runs each statement through the preview, under the statement's
// own account unless one was given on the command line.
func reconcileStatements(ctx context.Context, w io.Writer, store service.Storage, opts importFlags, statements []source.Statement, sourceName string) error {
	if len(statements) == 0 {
		_, err := fmt.Fprintln(w, cli.FormatWarning("No statements found."))
		return err
	}

	for _, stmt := range statements {
		stmtOpts := opts
		stmtOpts.account = accountFor(opts.account, stmt)
		if stmtOpts.account == "" {
			return fmt.Errorf("statement has no account ID; pass --account")
		}

		if !opts.json {
			fmt.Fprintln(w, cli.FormatTitle("Account "+stmtOpts.account))
		}
		if err := stmtOpts.reconcile(ctx, w, store, stmt.Candidates, sourceName); err != nil {
			return fmt.Errorf("account %s: %w", stmtOpts.account, err)
		}
	}
	return nil
}

func accountFor(override string, stmt source.Statement) string {
	if override != "" {
		return override
	}
	return stmt.AccountID
}

// parseDateRange resolves the --start/--end flags. end defaults to today and start to
// 30 days before end.
func parseDateRange(start, end string, now time.Time) (from, to time.Time, err error) {
	to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return from, to, fmt.Errorf("invalid --end %q: use YYYY-MM-DD", end)
		}
	}

	from = to.AddDate(0, 0, -30)
	if start != "" {
		if from, err = time.Parse(dateLayout, start); err != nil {
			return from, to, fmt.Errorf("invalid --start %q: use YYYY-MM-DD", start)
		}
	}

	if from.After(to) {
		return from, to, fmt.Errorf("--start %s is after --end %s", from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to, nil
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid --delimiter %q: use a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

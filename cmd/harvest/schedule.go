package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/scheduler"
)

func scheduleCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Replay recipes unattended on their configured schedules",
		Long: `Run the replays listed under "schedules" in the config file, importing whatever
each one scrapes with duplicates skipped.

Sensitive values come from the environment or a .env file, one variable per
sensitive step: HARVEST_SECRET_<RECIPE>_<STEP>, where STEP counts from 1.`,
		Example: `  # config.yaml
  schedules:
    - recipe: first-federal
      account: checking
      cron: "0 0 7 * * *"

  # .env
  HARVEST_SECRET_FIRST_FEDERAL_2=hunter2

  harvest schedule          # run until interrupted
  harvest schedule --once   # run every job now and exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			jobs, err := config.LoadSchedules()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No schedules configured."))
				return nil
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			imp, err := newImporter(store)
			if err != nil {
				return err
			}

			browserCfg := config.LoadBrowserConfig()
			open := func(ctx context.Context) (*browser.Session, error) {
				driver, err := browser.NewChromeDriver(ctx, browserCfg, slog.Default())
				if err != nil {
					return nil, err
				}
				return browser.NewSession("scheduled", driver), nil
			}

			sched := scheduler.New(store, newPlayer(newScraper(), true), imp, open, scheduler.Options{}, slog.Default())

			if once {
				return runOnce(ctx, cmd, sched, jobs)
			}

			for _, job := range jobs {
				if err := sched.Add(job); err != nil {
					return err
				}
			}
			sched.Start()
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d replay(s) scheduled. Press Ctrl+C to stop.", len(jobs))))

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run every job immediately, then exit")
	return cmd
}

func runOnce(ctx context.Context, cmd *cobra.Command, sched *scheduler.Scheduler, jobs []scheduler.Job) error {
	out := cmd.OutOrStdout()

	var errs []error
	for _, job := range jobs {
		result, err := sched.RunNow(ctx, job)
		if err != nil {
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s → %s: %v", job.RecipeID, job.AccountID, err)))
			errs = append(errs, fmt.Errorf("%s: %w", job.RecipeID, err))
			continue
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s → %s: imported %d, skipped %d",
			job.RecipeID, job.AccountID, result.Imported, result.Skipped)))
	}
	return errors.Join(errs...)
}

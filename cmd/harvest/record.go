package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

func recordCmd() *cobra.Command {
	var (
		browserOpts browserFlags
		name        string
		institution string
		startURL    string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the clicks and typing that reach a transaction page",
		Long: `Start recording in a Chrome tab, log in and click through to the transactions
as you normally would, then press Enter here to save the recipe.

Password fields, and any field you mark sensitive, are saved without their value;
playback asks for it each time.`,
		Example: `  harvest record --name "First Federal" --start-url https://bank.example/login`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			// The window outlives an interrupted recording.
			session, err := browserOpts.openSession(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}

			if startURL != "" {
				if err := session.Driver().Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("failed to open %s: %w", startURL, err)
				}
			}

			recorder := recipe.NewRecorder(nil)
			if err := recorder.Start(ctx, session); err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatTitle(cli.HarvestIcon+" Recording"))
			fmt.Fprintln(out, cli.FormatInfo("Log in and open the transaction page in the browser."))
			fmt.Fprintln(out, cli.SubtleStyle.Render("  w [duration]  add a wait step (default: time since the last step)"))
			fmt.Fprintln(out, cli.SubtleStyle.Render("  Enter         stop and save"))

			handler := cli.NewInterruptHandler(out)
			promptCtx := handler.HandleInterrupts(ctx, "Recording", "Nothing was saved.")

			if err := promptMarks(promptCtx, cmd.InOrStdin(), out, recorder, session); err != nil {
				if _, stopErr := recorder.Stop(context.WithoutCancel(ctx), session); stopErr != nil {
					return errors.Join(err, stopErr)
				}
				if handler.WasInterrupted() {
					return nil
				}
				return err
			}

			draft, err := recorder.Stop(ctx, session)
			if err != nil {
				return err
			}
			draft.Name = name
			draft.Institution = institution
			if startURL != "" {
				draft.StartURL = startURL
			}

			if len(draft.Steps) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No steps were recorded; nothing saved."))
				return nil
			}

			if err := store.SaveRecipe(ctx, &draft); err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess("Saved recipe "+draft.ID))
			return cli.RenderRecipe(out, draft)
		},
	}

	browserOpts.register(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", "", "recipe name")
	cmd.Flags().StringVar(&institution, "institution", "", "bank or card issuer")
	cmd.Flags().StringVar(&startURL, "start-url", "", "page to open before recording starts")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// promptMarks reads commands until an empty line. "w" adds a wait step.
func promptMarks(ctx context.Context, in io.Reader, out io.Writer, recorder *recipe.Recorder, session *browser.Session) error {
	reader := cli.NewNonBlockingReader(in)

	for {
		line, err := reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		delay, ok, err := parseMark(line)
		if err != nil {
			fmt.Fprintln(out, cli.FormatWarning(err.Error()))
			continue
		}
		if !ok {
			return nil
		}
		if err := recorder.Mark(session, delay); err != nil {
			return err
		}
	}
}

// parseMark interprets one line of record input. ok is false when recording should
// stop.
func parseMark(line string) (delay time.Duration, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false, nil
	}
	if fields[0] != "w" && fields[0] != "wait" {
		return 0, true, fmt.Errorf("unknown command %q: use w [duration] or Enter", fields[0])
	}
	if len(fields) == 1 {
		return 0, true, nil
	}

	delay, err = time.ParseDuration(fields[1])
	if err != nil || delay <= 0 {
		return 0, true, fmt.Errorf("invalid wait %q: use a duration such as 2s", fields[1])
	}
	return delay, true, nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

func playCmd() *cobra.Command {
	var (
		browserOpts browserFlags
		importOpts  importFlags
		pace        bool
	)

	cmd := &cobra.Command{
		Use:   "play <recipe-id>",
		Short: "Replay a recipe and extract the transactions it reaches",
		Long: `Replay a recorded recipe in Chrome, asking for passwords and one-time codes as
the steps that need them come up, then extract the transactions on the final page.

If a step fails the browser is left where playback stopped so you can finish by
hand and run "harvest scrape".`,
		Example: `  harvest play first-federal --account checking
  harvest play first-federal --account checking --execute`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			r, err := store.GetRecipe(ctx, args[0])
			if err != nil {
				return err
			}

			session, err := browserOpts.openSession(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(out)
			playCtx := handler.HandleInterrupts(ctx, "Playback", "The browser window was left open.")

			prompter := cli.NewSecretPrompter(os.Stdin, out)
			player := newPlayer(newScraper(), pace)

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s Replaying %s", cli.HarvestIcon, r.Name)))
			if n := r.SensitiveStepCount(); n > 0 {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d step(s) will ask for a value.", n)))
			}

			pb, err := player.Play(playCtx, session, *r, prompter.Prompt)
			if err != nil {
				return err
			}

			cli.TrackPlayback(playCtx, pb, out)
			if playCtx.Err() != nil {
				pb.Cancel()
			}

			result, err := pb.Wait(context.WithoutCancel(ctx))
			if err != nil {
				if handler.WasInterrupted() || recipe.IsCancelled(err) {
					return nil
				}
				return err
			}
			_ = session.Driver().Close()

			return importOpts.reconcile(ctx, out, store, result.Candidates, "scrape")
		},
	}

	browserOpts.register(cmd)
	importOpts.register(cmd)
	cmd.Flags().BoolVar(&pace, "pace", false, "wait between steps as long as the recording did")

	return cmd
}

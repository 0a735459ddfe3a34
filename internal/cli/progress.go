package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/spice-harvest/internal/recipe"
)

// TrackPlayback draws a progress bar for pb until it ends or ctx is done, and returns
// the last status seen.
func TrackPlayback(ctx context.Context, pb *recipe.Playback, w io.Writer) recipe.Status {
	updates, unsubscribe := pb.Subscribe()
	defer unsubscribe()

	last := pb.Status()
	bar := newPlaybackBar(w, last.TotalSteps)

	for {
		select {
		case <-ctx.Done():
			_ = bar.Exit()
			return last
		case status, ok := <-updates:
			if !ok {
				finishBar(bar, last)
				return last
			}
			last = status
			renderStatus(bar, status)
		}
	}
}

func newPlaybackBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][bold]Replaying steps...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func renderStatus(bar *progressbar.ProgressBar, status recipe.Status) {
	switch status.State {
	case recipe.StatePlaying:
		bar.Describe(fmt.Sprintf("[cyan][bold]Step %d[reset]", max(status.StepIndex, 0)+1))
		setBar(bar, max(status.StepIndex, 0))
	case recipe.StatePaused:
		label := "input"
		if status.Pending != nil {
			label = status.Pending.Label
		}
		bar.Describe("[yellow]Waiting for " + label + "[reset]")
	case recipe.StateScraping:
		bar.Describe("[cyan][bold]Extracting transactions...[reset]")
		setBar(bar, status.TotalSteps)
	}
}

func finishBar(bar *progressbar.ProgressBar, last recipe.Status) {
	if last.State == recipe.StateCompleted {
		if err := bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
		return
	}
	_ = bar.Exit()
}

func setBar(bar *progressbar.ProgressBar, n int) {
	if err := bar.Set(n); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

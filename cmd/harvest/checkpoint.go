package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, and delete database checkpoints.

A checkpoint is a full copy of the database taken before a large import or a
migration. To roll back, stop harvest and copy the checkpoint file over the
database.`,
		Example: `  # Create a checkpoint before importing a year of statements
  harvest checkpoint create --tag "pre-2024-import"

  # List all checkpoints
  harvest checkpoint list

  # Delete an old checkpoint
  harvest checkpoint delete pre-2024-import`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// withCheckpoints opens storage and hands fn a checkpoint manager for it.
func withCheckpoints(ctx context.Context, fn func(*storage.CheckpointManager) error) error {
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(manager)
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				info, err := manager.Create(ctx, tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}

				fmt.Fprintf(out, "%s Created checkpoint %s (%s)\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(info.ID),
					formatFileSize(info.FileSize))
				if info.Description != "" {
					fmt.Fprintf(out, "  Description: %s\n", info.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}
				return renderCheckpoints(cmd.OutOrStdout(), checkpoints, time.Now())
			})
		},
	}
}

func renderCheckpoints(out io.Writer, checkpoints []storage.CheckpointInfo, now time.Time) error {
	if len(checkpoints) == 0 {
		_, err := fmt.Fprintln(out, cli.SubtleStyle.Render("No checkpoints found."))
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{
		cli.TableHeaderStyle.Render("NAME"),
		cli.TableHeaderStyle.Render("CREATED"),
		cli.TableHeaderStyle.Render("SIZE"),
		cli.TableHeaderStyle.Render("TRANSACTIONS"),
		cli.TableHeaderStyle.Render("RECIPES"),
		cli.TableHeaderStyle.Render("TYPE"),
	}, "\t"))

	for _, cp := range checkpoints {
		typeLabel := "manual"
		if cp.IsAuto {
			typeLabel = "auto"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			cli.InfoStyle.Render(cp.ID),
			formatRelativeTime(cp.CreatedAt, now),
			formatFileSize(cp.FileSize),
			cp.RowCounts["transactions"],
			cp.RowCounts["recipes"],
			cli.SubtleStyle.Render(typeLabel),
		)
	}

	return w.Flush()
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			checkpointID := args[0]

			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				if !force {
					checkpoints, err := manager.List(ctx)
					if err != nil {
						return fmt.Errorf("failed to list checkpoints: %w", err)
					}
					info, ok := findCheckpoint(checkpoints, checkpointID)
					if !ok {
						return fmt.Errorf("%w: %s", storage.ErrCheckpointNotFound, checkpointID)
					}

					fmt.Fprintf(out, "%s This will permanently delete checkpoint %s.\n",
						cli.WarningStyle.Render(cli.WarningIcon),
						cli.InfoStyle.Render(checkpointID))
					fmt.Fprintf(out, "  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
					fmt.Fprintf(out, "  Size: %s\n", formatFileSize(info.FileSize))

					if !confirm(cmd.InOrStdin(), out) {
						fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion cancelled."))
						return nil
					}
				}

				if err := manager.Delete(ctx, checkpointID); err != nil {
					return fmt.Errorf("failed to delete checkpoint: %w", err)
				}

				fmt.Fprintf(out, "%s Deleted checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(checkpointID))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func findCheckpoint(checkpoints []storage.CheckpointInfo, id string) (storage.CheckpointInfo, bool) {
	for _, cp := range checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return storage.CheckpointInfo{}, false
}

// confirm asks "Continue? (y/N)" and reports whether the answer starts with y.
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nContinue? (y/N) ")
	response, _ := bufio.NewReader(in).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(response)), "y")
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		if minutes := int(duration.Minutes()); minutes != 1 {
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return "1 minute ago"
	case duration < 24*time.Hour:
		if hours := int(duration.Hours()); hours != 1 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	case duration < 7*24*time.Hour:
		if days := int(duration.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "yesterday"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

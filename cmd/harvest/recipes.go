package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/cli"
)

func recipesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Manage recorded recipes",
		Example: `  harvest recipes list
  harvest recipes show first-federal
  harvest recipes delete first-federal`,
	}

	cmd.AddCommand(listRecipesCmd())
	cmd.AddCommand(showRecipeCmd())
	cmd.AddCommand(deleteRecipeCmd())

	return cmd
}

func listRecipesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved recipes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recipes, err := store.ListRecipes(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recipes)
			}
			return cli.RenderRecipes(cmd.OutOrStdout(), recipes)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func showRecipeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <recipe-id>",
		Short: "Show a recipe's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			r, err := store.GetRecipe(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			return cli.RenderRecipe(cmd.OutOrStdout(), *r)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func deleteRecipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <recipe-id>",
		Short: "Delete a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteRecipe(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted recipe "+args[0]))
			return nil
		},
	}
}

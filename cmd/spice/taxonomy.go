package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/spf13/cobra"
)

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage categories and cost centers",
	}

	cmd.AddCommand(taxonomyAddCategoryCmd())
	cmd.AddCommand(taxonomyAddCostCenterCmd())
	cmd.AddCommand(taxonomyListCmd())

	return cmd
}

func taxonomyAddCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-category <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			typeText, _ := cmd.Flags().GetString("type")

			categoryType := model.CategoryType(typeText)
			if categoryType != model.CategoryTypeIncome && categoryType != model.CategoryTypeExpense {
				return common.NewUserError("--type must be income or expense", common.ErrInvalidConfig)
			}

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			category := model.Category{
				OrganizationID: organization(),
				Name:           args[0],
				Type:           categoryType,
				IsActive:       true,
			}
			if err := db.CreateCategory(ctx, &category); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s category %q (%s)", category.Type, category.Name, category.ID)))
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", string(model.CategoryTypeExpense), "category type: income or expense")
	return cmd
}

func taxonomyAddCostCenterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-cost-center <name>",
		Short: "Add a cost center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			costCenter := model.CostCenter{
				OrganizationID: organization(),
				Name:           args[0],
				IsActive:       true,
			}
			if err := db.CreateCostCenter(ctx, &costCenter); err != nil {
				return fmt.Errorf("failed to create cost center: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created cost center %q (%s)", costCenter.Name, costCenter.ID)))
			return nil
		},
	}
}

func taxonomyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories and cost centers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			taxonomy, err := db.GetTaxonomy(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(taxonomy.Categories) == 0 && len(taxonomy.CostCenters) == 0 {
				_, _ = fmt.Fprintln(out, cli.FormatInfo("The taxonomy is empty. Add categories with `spice taxonomy add-category`."))
				return nil
			}

			_, _ = fmt.Fprintln(out, cli.StyleTitle("Categories"))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE")
			for _, c := range taxonomy.Categories {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Type)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, cli.StyleTitle("Cost centers"))
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME")
			for _, c := range taxonomy.CostCenters {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Name)
			}
			return w.Flush()
		},
	}
}

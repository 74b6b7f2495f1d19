package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Manage reconciliation rules",
		Long: `Reconciliation rules classify recurring transactions deterministically.
A rule matches when the description contains its match text, the amount is
equal and the direction agrees; a due day additionally pins the day of month.
Rule matches are validated automatically.`,
	}

	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesToggleCmd("enable", true))
	cmd.AddCommand(rulesToggleCmd("disable", false))

	return cmd
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reconciliation rule",
		Example: `  spice rules add --match "CEMIG" --amount 230.45 --type debit --category "Energia" --due-day 10
  spice rules add --match "ALUGUEL SALA" --amount 1500 --type debit --category Aluguel --cost-center Matriz`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			match, _ := cmd.Flags().GetString("match")
			amountText, _ := cmd.Flags().GetString("amount")
			typeText, _ := cmd.Flags().GetString("type")
			categoryRef, _ := cmd.Flags().GetString("category")
			costCenterRef, _ := cmd.Flags().GetString("cost-center")
			dueDay, _ := cmd.Flags().GetInt("due-day")

			amount, err := normalize.Amount(amountText)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("invalid amount %q", amountText), err)
			}

			direction := model.Direction(typeText)
			if direction != model.DirectionCredit && direction != model.DirectionDebit {
				return common.NewUserError("--type must be credit or debit", common.ErrInvalidConfig)
			}

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			taxonomy, err := db.GetTaxonomy(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}
			category, err := resolveCategory(taxonomy, categoryRef)
			if err != nil {
				return err
			}
			if !category.Type.Accepts(direction) {
				return common.NewUserError(
					fmt.Sprintf("category %q is %s and cannot classify %s transactions", category.Name, category.Type, direction),
					common.ErrInvalidConfig)
			}
			costCenterID, err := resolveCostCenter(taxonomy, costCenterRef)
			if err != nil {
				return err
			}

			rule := model.ReconciliationRule{
				OrganizationID:   organization(),
				DescriptionMatch: match,
				Amount:           amount.Abs(),
				Type:             direction,
				CategoryID:       category.ID,
				CostCenterID:     costCenterID,
				IsActive:         true,
			}
			if cmd.Flags().Changed("due-day") {
				rule.DueDay = &dueDay
			}

			if err := db.CreateRule(ctx, &rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %s", rule.ID)))
			return nil
		},
	}

	cmd.Flags().StringP("match", "m", "", "text the description must contain")
	cmd.Flags().String("amount", "", "exact amount (e.g. 230.45 or 230,45)")
	cmd.Flags().StringP("type", "t", string(model.DirectionDebit), "transaction direction: credit or debit")
	cmd.Flags().StringP("category", "c", "", "category name or id")
	cmd.Flags().String("cost-center", "", "cost center name or id")
	cmd.Flags().Int("due-day", 0, "day of month the transaction is due (1-31)")
	_ = cmd.MarkFlagRequired("match")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reconciliation rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			all, _ := cmd.Flags().GetBool("all")

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rules, err := db.ListRules(ctx, organization(), !all)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rules) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No reconciliation rules found"))
				return nil
			}
			taxonomy, err := db.GetTaxonomy(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tMATCH\tAMOUNT\tTYPE\tDUE DAY\tCATEGORY\tCOST CENTER\tACTIVE")
			_, _ = fmt.Fprintln(w, "──\t─────\t──────\t────\t───────\t────────\t───────────\t──────")
			for _, r := range rules {
				dueDay := "-"
				if r.DueDay != nil {
					dueDay = fmt.Sprintf("%d", *r.DueDay)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					r.ID,
					truncateString(r.DescriptionMatch, 30),
					r.Amount.StringFixed(2),
					r.Type,
					dueDay,
					categoryLabel(taxonomy, r.CategoryID),
					costCenterLabel(taxonomy, r.CostCenterID),
					r.IsActive)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("all", false, "include inactive rules")
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a reconciliation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := db.DeleteRule(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %s", args[0])))
			return nil
		},
	}
}

func rulesToggleCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <rule-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a reconciliation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rule, err := db.GetRule(ctx, args[0])
			if errors.Is(err, common.ErrNotFound) {
				return common.NewUserError(fmt.Sprintf("rule %s not found", args[0]), err)
			}
			if err != nil {
				return fmt.Errorf("failed to load rule: %w", err)
			}

			if rule.IsActive == active {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Rule %s is already %sd", rule.ID, verb)))
				return nil
			}

			rule.IsActive = active
			if err := db.UpdateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to update rule: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %s %sd", rule.ID, verb)))
			return nil
		},
	}
}

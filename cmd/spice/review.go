package main

import (
	"fmt"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review classifications awaiting validation",
		Long: `Accept or correct the classifications the pipeline could not validate on
its own. Every decision is remembered: once the same counterparty has been
confirmed consistently, future imports classify it automatically.`,
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewAcceptCmd())
	cmd.AddCommand(reviewAssignCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions pending validation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			batchID, _ := cmd.Flags().GetString("batch")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			txns, err := p.review.ListPending(ctx, organization(), batchID)
			if err != nil {
				return err
			}
			taxonomy, err := p.store.GetTaxonomy(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				_, _ = fmt.Fprintln(out, cli.FormatSuccess("Nothing to review"))
				return nil
			}
			_, _ = fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d transaction(s) awaiting review", len(txns))))
			return printTransactions(out, txns, taxonomy)
		},
	}

	cmd.Flags().StringP("batch", "b", "", "only show transactions from this batch")
	return cmd
}

func reviewAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <transaction-id>...",
		Short: "Accept the suggested classification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range args {
				txn, err := p.review.Accept(ctx, id)
				if err != nil {
					failed++
					_, _ = fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", id, err)))
					continue
				}
				_, _ = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s %s accepted", shortID(txn.ID), truncateString(txn.Description, 40))))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d transactions could not be accepted", failed, len(args))
			}
			return nil
		},
	}
}

func reviewAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <transaction-id>",
		Short: "Assign a category and cost center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			categoryRef, _ := cmd.Flags().GetString("category")
			costCenterRef, _ := cmd.Flags().GetString("cost-center")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			txn, err := p.store.GetTransaction(ctx, args[0])
			if err != nil {
				return err
			}
			taxonomy, err := p.store.GetTaxonomy(ctx, txn.OrganizationID)
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}

			category, err := resolveCategory(taxonomy, categoryRef)
			if err != nil {
				return err
			}
			costCenterID, err := resolveCostCenter(taxonomy, costCenterRef)
			if err != nil {
				return err
			}

			if _, err := p.review.Assign(ctx, txn.ID, category.ID, costCenterID); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s %s → %s",
				shortID(txn.ID), truncateString(txn.Description, 40), category.Name)))
			return nil
		},
	}

	cmd.Flags().StringP("category", "c", "", "category name or id")
	cmd.Flags().String("cost-center", "", "cost center name or id")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

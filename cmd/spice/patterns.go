package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Inspect learned patterns",
		Long: `Learned patterns remember how each counterparty has been classified during
review. A pattern is trusted, and classifies without review, once it reaches
85% confidence over at least three confirmations.`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsDeleteCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			patterns, err := db.ListPatterns(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}
			if len(patterns) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No learned patterns yet"))
				return nil
			}
			taxonomy, err := db.GetTaxonomy(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tCATEGORY\tCOST CENTER\tSEEN\tAGREED\tCONFIDENCE\tAVG AMOUNT\tTRUSTED\tLAST USED")
			_, _ = fmt.Fprintln(w, "───\t────────\t───────────\t────\t──────\t──────────\t──────────\t───────\t─────────")
			for i := range patterns {
				p := &patterns[i]
				trusted := ""
				if engine.Trusted(p) {
					trusted = cli.SuccessIcon
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.0f%%\t%s\t%s\t%s\n",
					truncateString(p.CanonicalKey, 32),
					categoryLabel(taxonomy, p.CategoryID),
					costCenterLabel(taxonomy, p.CostCenterID),
					p.OccurrenceCount,
					p.AgreementCount,
					p.Confidence*100,
					p.AvgAmount.StringFixed(2),
					trusted,
					p.LastUsedAt.Local().Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func patternsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key or description>",
		Short: "Forget a learned pattern",
		Long: `Delete the learned pattern for a canonical key. A raw description is
accepted too and reduced to its key first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			key := normalize.CanonicalKey(args[0])
			if key == "" {
				return fmt.Errorf("%q has no canonical key", args[0])
			}

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := db.DeletePattern(ctx, organization(), key); err != nil {
				return fmt.Errorf("failed to delete pattern: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted pattern %q", key)))
			return nil
		},
	}
}

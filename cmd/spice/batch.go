package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/spf13/cobra"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "batch",
		Aliases: []string{"batches"},
		Short:   "Inspect import batches",
	}

	cmd.AddCommand(batchListCmd())
	cmd.AddCommand(batchShowCmd())

	return cmd
}

func batchListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent import batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all-orgs")

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			org := organization()
			if all {
				org = ""
			}
			batches, err := db.ListBatches(ctx, org, limit)
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}
			if len(batches) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No import batches found"))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCREATED\tACCOUNT\tFORMAT\tSTATUS\tTOTAL\tIMPORTED\tDUPLICATES\tERRORS\tCLASSIFIED\tFILE")
			_, _ = fmt.Fprintln(w, "──\t───────\t───────\t──────\t──────\t─────\t────────\t──────────\t──────\t──────────\t────")
			for _, b := range batches {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					b.ID,
					b.CreatedAt.Local().Format("2006-01-02 15:04"),
					b.AccountID,
					b.Format,
					b.Status,
					b.TotalCount,
					b.ImportedCount,
					b.DuplicateCount,
					b.ErrorCount,
					b.ClassifiedCount,
					truncateString(b.FileName, 30))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "maximum number of batches to show")
	cmd.Flags().Bool("all-orgs", false, "list batches of every organization")
	return cmd
}

func batchShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			showTxns, _ := cmd.Flags().GetBool("transactions")

			db, cleanup, err := getDatabase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			batch, err := db.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printBatch(out, batch)

			if !showTxns {
				return nil
			}

			txns, err := db.ListBatchTransactions(ctx, batch.ID)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			taxonomy, err := db.GetTaxonomy(ctx, batch.OrganizationID)
			if err != nil {
				return fmt.Errorf("failed to load taxonomy: %w", err)
			}
			_, _ = fmt.Fprintln(out)
			return printTransactions(out, txns, taxonomy)
		},
	}

	cmd.Flags().BoolP("transactions", "t", true, "list the batch's transactions")
	return cmd
}

func printBatch(out io.Writer, b *model.ImportBatch) {
	content := fmt.Sprintf(`ID:          %s
Account:     %s
File:        %s (%d bytes, %s)
Status:      %s
Period:      %s
Counts:      %d total, %d imported, %d duplicates, %d errors
Classified:  %d
Created:     %s`,
		b.ID,
		b.AccountID,
		b.FileName, b.FileSize, b.Format,
		cli.FormatBatchStatus(b.Status),
		formatPeriod(b.PeriodStart, b.PeriodEnd),
		b.TotalCount, b.ImportedCount, b.DuplicateCount, b.ErrorCount,
		b.ClassifiedCount,
		b.CreatedAt.Local().Format(time.RFC1123))
	if b.ErrorMessage != "" {
		content += "\nError:       " + cli.StyleError(b.ErrorMessage)
	}

	_, _ = fmt.Fprintln(out, cli.RenderBox("Import batch", content))
}

func printTransactions(out io.Writer, txns []model.Transaction, taxonomy *model.Taxonomy) error {
	if len(txns) == 0 {
		_, _ = fmt.Fprintln(out, cli.FormatInfo("No transactions"))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tDESCRIPTION\tCATEGORY\tCOST CENTER\tSOURCE\tSTATUS")
	_, _ = fmt.Fprintln(w, "──\t────\t──────\t───────────\t────────\t───────────\t──────\t──────")
	for _, txn := range txns {
		source := string(txn.ClassificationSource)
		if source == "" {
			source = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			txn.ID,
			txn.Date.Format("2006-01-02"),
			formatSigned(txn),
			truncateString(txn.Description, 40),
			categoryLabel(taxonomy, txn.CategoryID),
			costCenterLabel(taxonomy, txn.CostCenterID),
			source,
			txn.ValidationStatus)
	}
	return w.Flush()
}

func formatPeriod(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	return start.Format("2006-01-02") + " → " + end.Format("2006-01-02")
}


package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <batch-id>",
		Short: "Classify a batch's unclassified transactions",
		Long: `Run the classification cascade (rules, learned patterns, then the generative
model when configured) over the transactions of a batch that are still
unclassified, e.g. after adding rules or when the model was unavailable
during import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			summary, err := p.ingest.Classify(ctx, args[0])
			out := cmd.OutOrStdout()
			if errors.Is(err, common.ErrNoTransactions) {
				_, _ = fmt.Fprintln(out, cli.FormatInfo("Every transaction in this batch already has a classification"))
				return nil
			}
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out, cli.FormatSuccess(formatSummary(summary)))
			return nil
		},
	}
}

func formatSummary(s engine.Summary) string {
	var sources []string
	for source, n := range s.BySource {
		sources = append(sources, fmt.Sprintf("%s %d", source, n))
	}
	sort.Strings(sources)

	msg := fmt.Sprintf("Classified %d of %d (%d auto-validated, %d unresolved)",
		s.Classified, s.Considered, s.AutoValidated, s.Unresolved)
	if len(sources) > 0 {
		msg += " by " + strings.Join(sources, ", ")
	}
	if s.Skipped > 0 {
		msg += fmt.Sprintf("; %d left for the next run", s.Skipped)
	}
	if s.Failures > 0 {
		msg += fmt.Sprintf("; %d stage failures (see logs)", s.Failures)
	}
	return msg
}

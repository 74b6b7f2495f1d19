package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/spice-ingest/internal/blob"
	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/ingest"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|dir|gs://bucket/object|gs://bucket/prefix/>...",
		Short: "Import bank statements",
		Long: `Import statements in OFX/QFX, CSV or image (PNG, JPEG, GIF, WEBP, PDF) form.

Each file becomes an import batch. Transactions already stored for the account
are counted as duplicates and skipped. New transactions are classified right
away unless --no-classify is given or import.auto_classify is false.

Directories and gs:// prefixes ending in "/" import every file they contain.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("account", "a", "", "account the statements belong to (default: import.account)")
	cmd.Flags().StringP("format", "f", "", "statement format: ofx, csv or image (default: from file extension)")
	cmd.Flags().String("id", "", "batch id for an idempotent single-file import")
	cmd.Flags().Bool("no-classify", false, "import without classifying")

	_ = viper.BindPFlag("import.account", cmd.Flags().Lookup("account"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	account := appConfig.Import.Account
	if account == "" {
		return common.NewUserError("an account is required: pass --account or set import.account", common.ErrMissingConfig)
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	batchID, _ := cmd.Flags().GetString("id")
	noClassify, _ := cmd.Flags().GetBool("no-classify")
	if noClassify {
		appConfig.Import.AutoClassify = false
	}

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	inputs, err := expandInputs(ctx, p.blobs, appConfig.Blob.Root, args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		slog.Info(cli.FormatWarning("No statement files found"))
		return nil
	}
	if batchID != "" && len(inputs) > 1 {
		return common.NewUserError("--id can only be used when importing a single file", common.ErrInvalidConfig)
	}

	slog.Info(cli.FormatTitle(fmt.Sprintf("Importing %d statement(s)", len(inputs))),
		"organization", organization(),
		"account", account)

	var bar *progressbar.ProgressBar
	if len(inputs) > 1 {
		bar = newProgressBar(cmd.ErrOrStderr(), len(inputs), "Importing statements")
	}

	outcomes := make([]importOutcome, 0, len(inputs))
	failed := 0
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import interrupted: %w", err)
		}

		outcome := importOne(ctx, p.ingest, input, account, formatFlag, batchID)
		if outcome.err != nil {
			failed++
		}
		outcomes = append(outcomes, outcome)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := printImportSummary(cmd.OutOrStdout(), outcomes); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(outcomes))
	}
	slog.Info(cli.FormatSuccess("Import complete"))
	return nil
}

type importOutcome struct {
	err    error
	path   string
	result ingest.ImportResult
}

func importOne(ctx context.Context, svc *ingest.Service, path, account, formatFlag, batchID string) importOutcome {
	outcome := importOutcome{path: path}

	formatName := formatFlag
	if formatName == "" {
		formatName = filepath.Ext(path)
	}
	format, err := model.ParseFormat(formatName)
	if err != nil {
		outcome.err = fmt.Errorf("%s: %w (use --format)", path, err)
		return outcome
	}

	outcome.result, outcome.err = svc.SubmitImport(ctx, ingest.ImportRequest{
		ID:             batchID,
		OrganizationID: organization(),
		AccountID:      account,
		Format:         format,
		FileName:       filepath.Base(path),
		BlobPath:       path,
	})
	if outcome.err != nil {
		slog.Error("Import failed", "file", path, "error", outcome.err)
	}
	return outcome
}

// expandInputs turns directories and gs:// prefixes into the files they hold.
func expandInputs(ctx context.Context, store blob.Store, root string, args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		if isListing(arg, root) {
			listed, err := store.List(ctx, arg)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", arg, err)
			}
			for _, path := range listed {
				if _, err := model.ParseFormat(filepath.Ext(path)); err == nil {
					inputs = append(inputs, path)
				}
			}
			continue
		}
		inputs = append(inputs, arg)
	}
	return inputs, nil
}

func isListing(arg, root string) bool {
	if blob.IsGCS(arg) {
		return strings.HasSuffix(arg, "/")
	}
	local := arg
	if root != "" && !filepath.IsAbs(arg) {
		local = filepath.Join(root, arg)
	}
	info, err := os.Stat(local)
	return err == nil && info.IsDir()
}

func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[red]=[reset]",
			SaucerHead:    "[red]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

func printImportSummary(out io.Writer, outcomes []importOutcome) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tBATCH\tSTATUS\tIMPORTED\tDUPLICATES\tERRORS\tCLASSIFIED\tAUTO\tPERIOD")
	_, _ = fmt.Fprintln(w, "────\t─────\t──────\t────────\t──────────\t──────\t──────────\t────\t──────")

	for _, o := range outcomes {
		status := string(o.result.Status)
		if o.err != nil && status == "" {
			status = "rejected"
		}
		if o.result.Replayed {
			status += " (replayed)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			truncateString(filepath.Base(o.path), 32),
			shortID(o.result.BatchID),
			status,
			o.result.Imported,
			o.result.Duplicates,
			o.result.Errors,
			o.result.Classified,
			o.result.AutoValidated,
			formatPeriod(o.result.PeriodStart, o.result.PeriodEnd))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.err == nil {
			continue
		}
		msg := o.err.Error()
		var userErr *common.UserError
		if errors.As(o.err, &userErr) {
			msg = userErr.UserMessage
		}
		_, _ = fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %s", filepath.Base(o.path), msg)))
	}
	return nil
}

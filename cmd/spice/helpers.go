package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/blob"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/delimited"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/Veraticus/spice-ingest/internal/ingest"
	"github.com/Veraticus/spice-ingest/internal/learner"
	"github.com/Veraticus/spice-ingest/internal/llm"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/ofx"
	"github.com/Veraticus/spice-ingest/internal/review"
	"github.com/Veraticus/spice-ingest/internal/storage"
	"github.com/Veraticus/spice-ingest/internal/vision"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// getDatabase opens the configured database and runs migrations.
func getDatabase(ctx context.Context) (*storage.SQLiteStorage, func(), error) {
	dbPath := appConfig.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}

	return db, cleanup, nil
}

// pipeline bundles the services a command needs, wired from appConfig.
type pipeline struct {
	store   *storage.SQLiteStorage
	ingest  *ingest.Service
	engine  *engine.Engine
	review  *review.Service
	blobs   *blob.Router
	closers []func()
}

// openPipeline wires storage, parsers, the classification cascade and, when
// an API key is configured, the generative stage and image parser.
func openPipeline(ctx context.Context) (*pipeline, error) {
	db, cleanup, err := getDatabase(ctx)
	if err != nil {
		return nil, err
	}

	p := &pipeline{store: db, closers: []func(){cleanup}}

	parsers := ingest.NewRegistry(ofx.NewParser(), delimited.NewParser())

	var suggester engine.Suggester
	if appConfig.GenerativeEnabled() {
		client, err := llm.NewClient(ctx, appConfig.ClientConfig())
		if err != nil {
			p.Close()
			return nil, err
		}
		classifier := llm.NewClassifier(client, appConfig.LLM.CacheTTL)
		suggester = classifier
		parsers.Register(vision.NewParser(client, appConfig.Import.MaxImageBytes))
		p.closers = append(p.closers, classifier.Close, client.Close)
	} else {
		slog.Debug("No API key configured; generative classification and image import are disabled",
			"provider", appConfig.LLM.Provider)
	}

	p.blobs = blob.NewDefaultRouter(appConfig.Blob.Root)
	p.closers = append(p.closers, func() { _ = p.blobs.Close() })

	p.engine = engine.NewWithConfig(db, suggester, appConfig.EngineConfig())
	p.ingest = ingest.NewService(db, parsers, p.blobs, p.engine, appConfig.IngestConfig())
	p.review = review.NewService(db, learner.New(db))

	return p, nil
}

// Close releases everything in reverse order of acquisition.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func organization() string {
	return appConfig.Import.Organization
}

// resolveCategory accepts a category id or a case-insensitive name.
func resolveCategory(taxonomy *model.Taxonomy, ref string) (model.Category, error) {
	if c, ok := taxonomy.FindCategory(ref); ok {
		return c, nil
	}
	if c, ok := taxonomy.CategoryByName(ref); ok {
		return c, nil
	}
	return model.Category{}, common.NewUserError(
		fmt.Sprintf("unknown category %q (see `spice taxonomy list`)", ref), common.ErrNotFound)
}

// resolveCostCenter accepts a cost center id or name. Empty means none.
func resolveCostCenter(taxonomy *model.Taxonomy, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if c, ok := taxonomy.FindCostCenter(ref); ok {
		return c.ID, nil
	}
	if c, ok := taxonomy.CostCenterByName(ref); ok {
		return c.ID, nil
	}
	return "", common.NewUserError(
		fmt.Sprintf("unknown cost center %q (see `spice taxonomy list`)", ref), common.ErrNotFound)
}

// categoryLabel renders a category id by name when the taxonomy knows it.
func categoryLabel(taxonomy *model.Taxonomy, id string) string {
	if id == "" {
		return "-"
	}
	if c, ok := taxonomy.FindCategory(id); ok {
		return c.Name
	}
	return id
}

func costCenterLabel(taxonomy *model.Taxonomy, id string) string {
	if id == "" {
		return "-"
	}
	if c, ok := taxonomy.FindCostCenter(id); ok {
		return c.Name
	}
	return id
}

// formatSigned renders an amount with debits negative.
func formatSigned(txn model.Transaction) string {
	return txn.Candidate().SignedAmount().StringFixed(2)
}

// truncateString truncates a string to the specified length.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

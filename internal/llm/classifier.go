package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
)

const classifierSystemPrompt = "You are a bookkeeping assistant that files bank transactions into a fixed chart of accounts. " +
	"Respond with ONLY a JSON object, no markdown and no commentary."

const classifierMaxTokens = 256

// Suggestion is a taxonomy classification proposed by the model.
type Suggestion struct {
	CategoryID     string
	CategoryName   string
	CostCenterID   string
	CostCenterName string
}

// Classifier suggests a category and cost center for a transaction, mapping
// the model's answer onto the organization's taxonomy.
type Classifier struct {
	client Client
	cache  *suggestionCache
}

// NewClassifier creates a classifier that caches answers for cacheTTL.
func NewClassifier(client Client, cacheTTL time.Duration) *Classifier {
	return &Classifier{
		client: client,
		cache:  newSuggestionCache(cacheTTL),
	}
}

// Suggest returns a suggestion, or nil when the model named nothing that
// exists in the taxonomy. Answers are cached per organization, canonical
// key and direction.
func (c *Classifier) Suggest(ctx context.Context, txn model.Transaction, taxonomy *model.Taxonomy) (*Suggestion, error) {
	categories := taxonomy.CategoriesFor(txn.Direction)
	if len(categories) == 0 {
		return nil, nil
	}

	key := cacheKey(txn)
	if suggestion, ok := c.cache.get(key); ok {
		slog.DebugContext(ctx, "Classification cache hit",
			"transaction_id", txn.ID,
			"key", key)
		return suggestion, nil
	}

	text, err := c.client.Complete(ctx, Request{
		System:    classifierSystemPrompt,
		Prompt:    buildClassificationPrompt(txn, categories, taxonomy.CostCenters),
		MaxTokens: classifierMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, err
	}

	suggestion, err := parseSuggestion(text, txn.Direction, taxonomy)
	if err != nil {
		return nil, err
	}

	c.cache.set(key, suggestion)
	return suggestion, nil
}

// Close stops the cache janitor.
func (c *Classifier) Close() {
	c.cache.Close()
}

func cacheKey(txn model.Transaction) string {
	key := normalize.CanonicalKey(txn.Description)
	if key == "" {
		key = strings.ToLower(txn.RawDescription)
	}
	return txn.OrganizationID + "|" + key + "|" + string(txn.Direction)
}

func buildClassificationPrompt(txn model.Transaction, categories []model.Category, costCenters []model.CostCenter) string {
	var sb strings.Builder

	sb.WriteString("Classify this bank transaction.\n\n")
	fmt.Fprintf(&sb, "Description: %s\n", txn.RawDescription)
	fmt.Fprintf(&sb, "Amount: %s\n", txn.Amount.StringFixed(2))
	fmt.Fprintf(&sb, "Direction: %s\n", txn.Direction)
	fmt.Fprintf(&sb, "Date: %s\n\n", txn.Date.Format("2006-01-02"))

	sb.WriteString("Categories (choose exactly one name):\n")
	for _, cat := range categories {
		fmt.Fprintf(&sb, "- %s\n", cat.Name)
	}

	if len(costCenters) > 0 {
		sb.WriteString("\nCost centers (choose one name, or an empty string if none fits):\n")
		for _, cc := range costCenters {
			fmt.Fprintf(&sb, "- %s\n", cc.Name)
		}
	}

	sb.WriteString("\nRespond with: {\"category\": \"<name>\", \"cost_center\": \"<name or empty>\"}\n")
	sb.WriteString("If no category fits, respond with {\"category\": \"\", \"cost_center\": \"\"}.")

	return sb.String()
}

// parseSuggestion maps the model's names onto taxonomy ids. Unknown or
// direction-incompatible categories yield a nil suggestion.
func parseSuggestion(text string, direction model.Direction, taxonomy *model.Taxonomy) (*Suggestion, error) {
	obj, ok := ExtractJSONObject(CleanMarkdownWrapper(text))
	if !ok {
		return nil, fmt.Errorf("no JSON object in classification response: %s", truncate(text, 200))
	}

	var resp struct {
		Category   string `json:"category"`
		CostCenter string `json:"cost_center"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	cat, ok := taxonomy.CategoryByName(resp.Category)
	if !ok || !cat.Type.Accepts(direction) {
		return nil, nil
	}

	suggestion := &Suggestion{CategoryID: cat.ID, CategoryName: cat.Name}
	if cc, ok := taxonomy.CostCenterByName(resp.CostCenter); ok && resp.CostCenter != "" {
		suggestion.CostCenterID = cc.ID
		suggestion.CostCenterName = cc.Name
	}
	return suggestion, nil
}

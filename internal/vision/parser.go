// Package vision extracts transactions from statement images and scanned PDFs
// through a vision-capable completion service.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/llm"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/shopspring/decimal"
)

// DefaultMaxBytes is the default image size ceiling.
const DefaultMaxBytes = 4 << 20

const systemPrompt = `You read bank and credit card statements.
Return ONLY a JSON array, no markdown fences and no commentary.
Each element is an object with exactly these keys:
  "date": the posting date as YYYY-MM-DD,
  "description": the transaction text exactly as printed,
  "amount": a number, negative for money leaving the account (debits, purchases, fees) and positive for money entering it.
Skip balances, subtotals and headers. If there are no transactions return [].`

const userPrompt = "Extract every transaction from the attached statement."

// Kind tags the outcome of reading a completion response.
type Kind int

const (
	// KindOK means a JSON array was found and parsed.
	KindOK Kind = iota
	// KindMalformed means no parseable array was found.
	KindMalformed
	// KindEmpty means the response was blank or an empty array.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindMalformed:
		return "malformed"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Extraction is the tagged result of interpreting untrusted model output.
type Extraction struct {
	Reason  string // why a Malformed extraction failed
	Entries []Entry
	Kind    Kind
}

// Entry is one triple as returned by the model.
type Entry struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

// Parser implements image statement parsing.
type Parser struct {
	client   llm.Client
	maxBytes int64
}

// NewParser creates an image parser. maxBytes <= 0 uses DefaultMaxBytes.
func NewParser(client llm.Client, maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{client: client, maxBytes: maxBytes}
}

// Format returns the statement format handled by this parser.
func (p *Parser) Format() model.Format {
	return model.FormatImage
}

// MaxBytes returns the size ceiling.
func (p *Parser) MaxBytes() int64 {
	return p.maxBytes
}

// Parse sends the statement to the completion service and converts the
// returned triples. A response without a usable array yields no candidates
// and no error. Upstream failures are returned unchanged and never retried.
func (p *Parser) Parse(ctx context.Context, stmt model.RawStatement) ([]model.Candidate, error) {
	size := int64(len(stmt.Data))
	if size > p.maxBytes {
		return nil, &common.SizeLimitError{Size: size, Limit: p.maxBytes}
	}
	if size == 0 {
		return nil, common.NewFormatError(string(model.FormatImage), "empty file", common.ErrEmptyPayload)
	}

	mimeType, ok := DetectMIME(stmt.Data)
	if !ok {
		return nil, common.NewFormatError(string(model.FormatImage),
			fmt.Sprintf("unsupported content type %q", mimeType), common.ErrUnsupportedFormat)
	}

	text, err := p.client.Complete(ctx, llm.Request{
		System:     systemPrompt,
		Prompt:     userPrompt,
		Attachment: &llm.Attachment{MIMEType: mimeType, Data: stmt.Data},
		JSON:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("image extraction failed: %w", err)
	}

	extraction := Interpret(text)
	if extraction.Kind != KindOK {
		slog.WarnContext(ctx, "Image statement produced no transactions",
			"file", stmt.FileName,
			"kind", extraction.Kind.String(),
			"reason", extraction.Reason)
		return nil, nil
	}

	candidates := make([]model.Candidate, 0, len(extraction.Entries))
	for i, entry := range extraction.Entries {
		candidate, err := entry.candidate()
		if err != nil {
			slog.DebugContext(ctx, "Skipping extracted entry",
				"index", i,
				"error", err)
			continue
		}
		candidates = append(candidates, candidate)
	}

	slog.InfoContext(ctx, "Parsed image statement",
		"file", stmt.FileName,
		"mime_type", mimeType,
		"entries", len(extraction.Entries),
		"transactions", len(candidates))

	return candidates, nil
}

// Interpret unwraps a completion response and locates the first complete
// JSON array in it. It never fails; problems are reported through Kind.
func Interpret(text string) Extraction {
	cleaned := llm.CleanMarkdownWrapper(text)
	if cleaned == "" {
		return Extraction{Kind: KindEmpty, Reason: "blank response"}
	}

	array, ok := llm.ExtractJSONArray(cleaned)
	if !ok {
		return Extraction{Kind: KindMalformed, Reason: "no complete JSON array in response"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(array), &raw); err != nil {
		return Extraction{Kind: KindMalformed, Reason: err.Error()}
	}
	if len(raw) == 0 {
		return Extraction{Kind: KindEmpty, Reason: "empty array"}
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal(item, &entry); err != nil {
			// Non-object elements are dropped like any other unusable triple.
			continue
		}
		entries = append(entries, entry)
	}

	return Extraction{Kind: KindOK, Entries: entries}
}

func (e Entry) candidate() (model.Candidate, error) {
	description := strings.TrimSpace(e.Description)
	if description == "" {
		return model.Candidate{}, fmt.Errorf("empty description")
	}

	date, err := normalize.Date(e.Date)
	if err != nil {
		return model.Candidate{}, err
	}

	amount, err := entryAmount(e.Amount)
	if err != nil {
		return model.Candidate{}, err
	}
	if amount.IsZero() {
		return model.Candidate{}, fmt.Errorf("zero amount")
	}

	return model.Candidate{
		Date:           date,
		Description:    normalize.Description(description),
		RawDescription: description,
		Amount:         amount.Abs(),
		Direction:      model.DirectionFromSign(amount),
	}, nil
}

// entryAmount accepts both JSON numbers and quoted strings. Strings are read
// as printed on the statement; in a JSON number "." is always the decimal point.
func entryAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalize.Amount(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %s", strings.TrimSpace(string(raw)))
	}
	amount, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %s: %w", n, err)
	}
	return amount.Round(2), nil
}

var (
	pdfMagic  = []byte("%PDF-")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// DetectMIME sniffs the content type and reports whether it is a supported
// image or PDF.
func DetectMIME(data []byte) (string, bool) {
	if bytes.HasPrefix(data, pdfMagic) {
		return "application/pdf", true
	}
	if len(data) >= 12 && bytes.Equal(data[:4], riffMagic) && bytes.Equal(data[8:12], webpMagic) {
		return "image/webp", true
	}

	mimeType := http.DetectContentType(data)
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "application/pdf":
		return mimeType, true
	default:
		return mimeType, false
	}
}

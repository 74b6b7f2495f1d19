// Package ofx parses tag-delimited OFX/QFX bank statements.
//
// Real-world exports are frequently not valid OFX (unclosed SGML tags, comma
// decimal separators, broken headers), so transactions are read by scanning
// STMTTRN blocks directly. The strict ofxgo parser is only consulted for
// statement metadata.
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	blockRegex    = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	openTagRegex  = regexp.MustCompile(`(?i)<STMTTRN>`)
	ofxRootRegex  = regexp.MustCompile(`(?i)<OFX>`)
	datePrefix    = regexp.MustCompile(`^\d{8}`)

	tagRegexes = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"DTPOSTED", "TRNAMT", "MEMO", "NAME"} {
		tagRegexes[tag] = regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]*)`)
	}
}

// Parser implements OFX/QFX statement parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the statement format handled by this parser.
func (p *Parser) Format() model.Format {
	return model.FormatLedger
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, "\ufeff \t\r\n")

	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML exports sometimes lose the closing bracket of a bare opening tag.
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// Parse extracts candidate records from every STMTTRN block. Blocks without a
// usable date or amount are skipped. Input with no OFX structure at all is a
// FormatError.
func (p *Parser) Parse(ctx context.Context, stmt model.RawStatement) ([]model.Candidate, error) {
	if len(bytes.TrimSpace(stmt.Data)) == 0 {
		return nil, common.NewFormatError(string(model.FormatLedger), "empty file", common.ErrEmptyPayload)
	}

	content := p.preprocessOFX(string(normalize.UTF8(stmt.Data)))

	blocks := blockRegex.FindAllStringSubmatch(content, -1)
	if len(blocks) == 0 {
		// Some exports never close STMTTRN; fall back to splitting on the opening tag.
		blocks = splitOpenBlocks(content)
	}
	if len(blocks) == 0 && !ofxRootRegex.MatchString(content) {
		return nil, common.NewFormatError(string(model.FormatLedger), "no <OFX> root or <STMTTRN> blocks found", nil)
	}

	p.logStatementInfo(ctx, content, stmt.FileName)

	candidates := make([]model.Candidate, 0, len(blocks))
	skipped := 0
	for i, block := range blocks {
		candidate, err := p.parseBlock(block[1])
		if err != nil {
			skipped++
			slog.DebugContext(ctx, "Skipping OFX transaction block",
				"index", i,
				"error", err)
			continue
		}
		candidates = append(candidates, candidate)
	}

	slog.InfoContext(ctx, "Parsed OFX statement",
		"file", stmt.FileName,
		"blocks", len(blocks),
		"transactions", len(candidates),
		"skipped", skipped)

	return candidates, nil
}

// parseBlock converts a single STMTTRN body into a candidate.
func (p *Parser) parseBlock(body string) (model.Candidate, error) {
	rawDate := tagValue(body, "DTPOSTED")
	if !datePrefix.MatchString(rawDate) {
		return model.Candidate{}, fmt.Errorf("missing or malformed DTPOSTED %q", rawDate)
	}
	date, err := normalize.CompactDate(rawDate[:8])
	if err != nil {
		return model.Candidate{}, err
	}

	rawAmount := tagValue(body, "TRNAMT")
	if rawAmount == "" {
		return model.Candidate{}, fmt.Errorf("missing TRNAMT")
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return model.Candidate{}, err
	}

	raw := tagValue(body, "MEMO")
	if raw == "" {
		raw = tagValue(body, "NAME")
	}

	return model.Candidate{
		Date:           date,
		Description:    normalize.Description(raw),
		RawDescription: raw,
		Amount:         amount.Abs(),
		Direction:      model.DirectionFromSign(amount),
	}, nil
}

// parseAmount reads TRNAMT through ofxgo.Amount. Grouping and comma decimal
// separators are resolved the same way as in delimited statements.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	cleaned = normalize.ResolveSeparators(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "+")

	var amt ofxgo.Amount
	if _, ok := amt.SetString(cleaned); !ok {
		return decimal.Zero, fmt.Errorf("malformed TRNAMT %q", raw)
	}
	return decimal.NewFromBigRat(&amt.Rat, 2), nil
}

// tagValue returns the text following <TAG> up to the next tag or line break.
// Works for both SGML (unclosed) and XML (closed) element styles.
func tagValue(body, tag string) string {
	re, ok := tagRegexes[tag]
	if !ok {
		re = regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]*)`)
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

func splitOpenBlocks(content string) [][]string {
	locs := openTagRegex.FindAllStringIndex(content, -1)
	blocks := make([][]string, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := content[loc[1]:end]
		blocks = append(blocks, []string{content[loc[0]:end], body})
	}
	return blocks
}

// logStatementInfo reports account metadata when the file is strict enough for ofxgo.
func (p *Parser) logStatementInfo(ctx context.Context, content, fileName string) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(content))
	if err != nil {
		slog.DebugContext(ctx, "OFX file is not strictly valid, using block scanner only",
			"file", fileName,
			"error", err)
		return
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			slog.DebugContext(ctx, "OFX bank statement",
				"account", string(stmt.BankAcctFrom.AcctID),
				"transactions", len(stmt.BankTranList.Transactions))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			slog.DebugContext(ctx, "OFX credit card statement",
				"account", string(stmt.CCAcctFrom.AcctID),
				"transactions", len(stmt.BankTranList.Transactions))
		}
	}
}

// Package delimited parses CSV-like bank statement exports.
package delimited

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/shopspring/decimal"
)

// maxPreambleLines is how many leading lines may precede the header row.
const maxPreambleLines = 15

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// Synonym sets, compared after folding case and accents.
var (
	dateHeaders = newSet(
		"data", "data lancamento", "data do lancamento", "data movimento", "data mov", "dt", "dt lancamento",
		"date", "transaction date", "posted date", "posting date", "booking date",
		"fecha", "fecha operacion", "fecha valor",
		"datum", "buchungstag", "buchungsdatum", "valuta",
		"date operation", "date de valeur",
	)
	descriptionHeaders = newSet(
		"descricao", "historico", "lancamento", "detalhes", "estabelecimento",
		"description", "details", "memo", "narrative", "payee", "name", "merchant",
		"concepto", "descripcion", "detalle",
		"verwendungszweck", "buchungstext", "beschreibung",
		"libelle", "libelle operation",
	)
	amountHeaders = newSet(
		"valor", "valor rs", "montante", "quantia", "valor lancamento",
		"amount", "value", "transaction amount",
		"importe", "monto",
		"betrag", "umsatz",
		"montant",
	)
	debitHeaders = newSet(
		"debito", "saida", "saidas", "debit", "debits", "withdrawal", "withdrawals",
		"cargo", "cargos", "soll", "debit montant",
	)
	creditHeaders = newSet(
		"credito", "entrada", "entradas", "credit", "credits", "deposit", "deposits",
		"abono", "abonos", "haben", "credit montant",
	)
)

type set map[string]struct{}

func newSet(values ...string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

// columns holds resolved column indexes; -1 means absent.
type columns struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
}

func (c columns) complete() bool {
	return c.date >= 0 && c.description >= 0 && (c.amount >= 0 || (c.debit >= 0 && c.credit >= 0))
}

func (c columns) width() int {
	return max(c.date, c.description, c.amount, c.debit, c.credit) + 1
}

// Parser implements delimited statement parsing.
type Parser struct{}

// NewParser creates a new delimited text parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the statement format handled by this parser.
func (p *Parser) Format() model.Format {
	return model.FormatDelimited
}

// Parse reads a header row, resolves the date, description and amount columns
// by name and converts every usable row. Rows that are short, unparseable or
// carry a zero amount are dropped.
func (p *Parser) Parse(ctx context.Context, stmt model.RawStatement) ([]model.Candidate, error) {
	data := normalize.UTF8(stmt.Data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, common.NewFormatError(string(model.FormatDelimited), "empty file", common.ErrEmptyPayload)
	}

	lines := strings.SplitAfter(string(data), "\n")
	headerIdx, separator, cols, err := findHeader(lines)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx+1:], "")))
	reader.Comma = separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var candidates []model.Candidate
	dropped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				dropped++
				slog.DebugContext(ctx, "Skipping malformed delimited row", "error", err)
				continue
			}
			return nil, fmt.Errorf("failed to read delimited statement: %w", err)
		}

		candidate, ok := parseRecord(record, cols)
		if !ok {
			if !blankRecord(record) {
				dropped++
				slog.DebugContext(ctx, "Skipping delimited row", "row", strings.Join(record, string(separator)))
			}
			continue
		}
		candidates = append(candidates, candidate)
	}

	slog.InfoContext(ctx, "Parsed delimited statement",
		"file", stmt.FileName,
		"separator", string(separator),
		"header_line", headerIdx+1,
		"transactions", len(candidates),
		"dropped", dropped)

	return candidates, nil
}

// findHeader locates the first line whose cells resolve every required column.
func findHeader(lines []string) (int, rune, columns, error) {
	seen := 0
	var firstHeader string
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if seen == 0 {
			firstHeader = strings.TrimSpace(line)
		}
		seen++
		if seen > maxPreambleLines {
			break
		}

		separator := detectSeparator(line)
		cells, err := splitHeader(line, separator)
		if err != nil {
			continue
		}
		cols := resolveColumns(cells)
		if cols.complete() {
			return i, separator, cols, nil
		}
	}

	return 0, 0, columns{}, common.NewFormatError(string(model.FormatDelimited),
		fmt.Sprintf("could not resolve date, description and amount columns from header %q", firstHeader), nil)
}

// detectSeparator picks ";" when the header contains one, "," otherwise.
func detectSeparator(header string) rune {
	if strings.ContainsRune(header, ';') {
		return ';'
	}
	return ','
}

func splitHeader(line string, separator rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = separator
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r.Read()
}

func resolveColumns(cells []string) columns {
	cols := columns{date: -1, description: -1, amount: -1, debit: -1, credit: -1}
	for i, cell := range cells {
		name := headerKey(cell)
		switch {
		case cols.date < 0 && dateHeaders.has(name):
			cols.date = i
		case cols.description < 0 && descriptionHeaders.has(name):
			cols.description = i
		case cols.amount < 0 && amountHeaders.has(name):
			cols.amount = i
		case cols.debit < 0 && debitHeaders.has(name):
			cols.debit = i
		case cols.credit < 0 && creditHeaders.has(name):
			cols.credit = i
		}
	}
	return cols
}

// headerKey folds a header cell to the form used in the synonym sets.
func headerKey(cell string) string {
	key := normalize.Fold(cell)
	key = parenthetical.ReplaceAllString(key, " ")
	key = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, key)
	return strings.Join(strings.Fields(key), " ")
}

func parseRecord(record []string, cols columns) (model.Candidate, bool) {
	if len(record) < cols.width() {
		return model.Candidate{}, false
	}

	rawDate := strings.TrimSpace(record[cols.date])
	raw := strings.TrimSpace(record[cols.description])
	if rawDate == "" || raw == "" {
		return model.Candidate{}, false
	}

	date, err := normalize.Date(rawDate)
	if err != nil {
		return model.Candidate{}, false
	}

	amount, ok := recordAmount(record, cols)
	if !ok || amount.IsZero() {
		return model.Candidate{}, false
	}

	return model.Candidate{
		Date:           date,
		Description:    normalize.Description(raw),
		RawDescription: raw,
		Amount:         amount.Abs(),
		Direction:      model.DirectionFromSign(amount),
	}, true
}

// recordAmount returns the signed amount, from a single column or a debit/credit pair.
func recordAmount(record []string, cols columns) (decimal.Decimal, bool) {
	if cols.amount >= 0 {
		amount, err := normalize.Amount(record[cols.amount])
		return amount, err == nil
	}

	credit, creditErr := optionalAmount(record[cols.credit])
	debit, debitErr := optionalAmount(record[cols.debit])
	if creditErr != nil || debitErr != nil {
		return decimal.Zero, false
	}
	return credit.Abs().Sub(debit.Abs()), true
}

func optionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return normalize.Amount(s)
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

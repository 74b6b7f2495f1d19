package ofx

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>POR
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>BRL
<BANKACCTFROM>
<BANKID>0341
<ACCTID>12345-6
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[-3:GMT]
<DTEND>20240131120000[-3:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[-3:GMT]
<TRNAMT>-150.00
<FITID>2024011501
<NAME>PADARIA
<MEMO>PIX ENVIADO PADARIA SAO JOAO
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120
<TRNAMT>2500,00
<FITID>2024012001
<NAME>SALARIO ACME LTDA
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240125120000.000[-3:BRT]
<TRNAMT>-1.234,56
<FITID>2024012501
<MEMO>ALUGUEL JAN &amp; CONDOMINIO
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[-3:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func parse(t *testing.T, data string) []model.Candidate {
	t.Helper()
	candidates, err := NewParser().Parse(context.Background(), model.RawStatement{
		Data:     []byte(data),
		Format:   model.FormatLedger,
		FileName: "extrato.ofx",
	})
	require.NoError(t, err)
	return candidates
}

func TestParse_BankStatement(t *testing.T) {
	candidates := parse(t, sampleBankOFX)
	require.Len(t, candidates, 3)

	first := candidates[0]
	assert.Equal(t, "2024-01-15", first.Date.Format("2006-01-02"))
	assert.Equal(t, "150.00", first.Amount.StringFixed(2))
	assert.Equal(t, model.DirectionDebit, first.Direction)
	assert.Equal(t, "PIX ENVIADO PADARIA SAO JOAO", first.RawDescription, "MEMO takes precedence over NAME")

	second := candidates[1]
	assert.Equal(t, "2024-01-20", second.Date.Format("2006-01-02"))
	assert.Equal(t, "2500.00", second.Amount.StringFixed(2))
	assert.Equal(t, model.DirectionCredit, second.Direction)
	assert.Equal(t, "SALARIO ACME LTDA", second.RawDescription)

	third := candidates[2]
	assert.Equal(t, "1234.56", third.Amount.StringFixed(2))
	assert.Equal(t, "ALUGUEL JAN & CONDOMINIO", third.RawDescription)
}

func TestParse_XMLStyleClosedTags(t *testing.T) {
	data := `<?xml version="1.0"?>
<OFX><BANKMSGSRSV1><STMTTRNRS><STMTRS><BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT</TRNTYPE><DTPOSTED>20240301</DTPOSTED><TRNAMT>-9.99</TRNAMT><NAME>Netflix</NAME></STMTTRN>
<stmttrn><dtposted>20240302</dtposted><trnamt>15.5</trnamt><memo>Estorno</memo></stmttrn>
</BANKTRANLIST></STMTRS></STMTTRNRS></BANKMSGSRSV1></OFX>`

	candidates := parse(t, data)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Netflix", candidates[0].RawDescription)
	assert.Equal(t, "9.99", candidates[0].Amount.StringFixed(2))
	assert.Equal(t, "Estorno", candidates[1].RawDescription)
	assert.Equal(t, model.DirectionCredit, candidates[1].Direction)
}

func TestParse_GroupedAmounts(t *testing.T) {
	data := `<OFX><BANKTRANLIST>
<STMTTRN><DTPOSTED>20240301</DTPOSTED><TRNAMT>-1,234.56</TRNAMT><NAME>Aluguel</NAME></STMTTRN>
<STMTTRN><DTPOSTED>20240302</DTPOSTED><TRNAMT>1.234,56</TRNAMT><NAME>Vendas</NAME></STMTTRN>
</BANKTRANLIST></OFX>`

	candidates := parse(t, data)
	require.Len(t, candidates, 2)
	assert.Equal(t, "1234.56", candidates[0].Amount.StringFixed(2))
	assert.Equal(t, model.DirectionDebit, candidates[0].Direction)
	assert.Equal(t, "1234.56", candidates[1].Amount.StringFixed(2))
	assert.Equal(t, model.DirectionCredit, candidates[1].Direction)
}

func TestParse_UnclosedBlocks(t *testing.T) {
	data := `<OFX>
<BANKTRANLIST>
<STMTTRN>
<DTPOSTED>20240105
<TRNAMT>-10.00
<NAME>UBER TRIP
<STMTTRN>
<DTPOSTED>20240106
<TRNAMT>-20.00
<NAME>UBER TRIP
</BANKTRANLIST>
</OFX>`

	candidates := parse(t, data)
	require.Len(t, candidates, 2)
	assert.Equal(t, "2024-01-06", candidates[1].Date.Format("2006-01-02"))
	assert.Equal(t, "20.00", candidates[1].Amount.StringFixed(2))
}

func TestParse_SkipsBlocksWithoutAmountOrDate(t *testing.T) {
	data := `<OFX>
<STMTTRN>
<DTPOSTED>20240105
<NAME>NO AMOUNT
</STMTTRN>
<STMTTRN>
<TRNAMT>-5.00
<NAME>NO DATE
</STMTTRN>
<STMTTRN>
<DTPOSTED>2024
<TRNAMT>-5.00
<NAME>SHORT DATE
</STMTTRN>
<STMTTRN>
<DTPOSTED>20240107
<TRNAMT>abc
<NAME>BAD AMOUNT
</STMTTRN>
<STMTTRN>
<DTPOSTED>20240108
<TRNAMT>-7.00
<NAME>GOOD
</STMTTRN>
</OFX>`

	candidates := parse(t, data)
	require.Len(t, candidates, 1)
	assert.Equal(t, "GOOD", candidates[0].RawDescription)
}

func TestParse_EmptyStatementIsNotAnError(t *testing.T) {
	candidates := parse(t, "<OFX><BANKTRANLIST></BANKTRANLIST></OFX>")
	assert.Empty(t, candidates)
}

func TestParse_NotOFX(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "   "},
		{name: "csv", data: "Data;Descricao;Valor\n15/01/2024;Mercado;-45,90\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(context.Background(), model.RawStatement{Data: []byte(tt.data)})
			var formatErr *common.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, "ledger", formatErr.Format)
		})
	}
}

func TestPreprocessOFX(t *testing.T) {
	p := NewParser()
	got := p.preprocessOFX("\ufeff\n\n<SEVERITY>Info</SEVERITY>\n<STMTTRN\n")
	assert.Equal(t, "<SEVERITY>INFO</SEVERITY>\n<STMTTRN>\n", got)
}

func TestParseAmount(t *testing.T) {
	tests := map[string]string{
		"-150.00":   "-150.00",
		"2500,00":   "2500.00",
		"+12.3":     "12.30",
		"-1.234,56": "-1234.56",
		"-1,234.56": "-1234.56",
		"1.234,56":  "1234.56",
		"1,234.56":  "1234.56",
		"1,234":     "1234.00",
		"0":         "0.00",
	}
	for input, want := range tests {
		got, err := parseAmount(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got.StringFixed(2), input)
	}

	_, err := parseAmount("12a")
	assert.Error(t, err)
}

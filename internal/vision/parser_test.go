package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/llm"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

type stubClient struct {
	err      error
	response string
	requests []llm.Request
}

func (s *stubClient) Complete(_ context.Context, req llm.Request) (string, error) {
	s.requests = append(s.requests, req)
	return s.response, s.err
}

func TestParse_ExtractsTriples(t *testing.T) {
	client := &stubClient{response: "```json\n" + `[
		{"date": "2024-01-15", "description": "PIX ENVIADO PADARIA", "amount": -150.00},
		{"date": "16/01/2024", "description": "SALARIO", "amount": "2.500,00"},
		{"date": "not a date", "description": "BROKEN", "amount": -1},
		{"date": "2024-01-17", "description": "", "amount": -1},
		{"date": "2024-01-18", "description": "ZERO", "amount": 0},
		{"date": "2024-01-19", "description": "NO AMOUNT"},
		"garbage"
	]` + "\n```"}

	parser := NewParser(client, 0)
	candidates, err := parser.Parse(context.Background(), model.RawStatement{Data: pngHeader, FileName: "scan.png"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "2024-01-15", candidates[0].Date.Format("2006-01-02"))
	assert.Equal(t, "150.00", candidates[0].Amount.StringFixed(2))
	assert.Equal(t, model.DirectionDebit, candidates[0].Direction)

	assert.Equal(t, "2500.00", candidates[1].Amount.StringFixed(2))
	assert.Equal(t, model.DirectionCredit, candidates[1].Direction)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.NotNil(t, req.Attachment)
	assert.Equal(t, "image/png", req.Attachment.MIMEType)
	assert.Contains(t, req.System, "negative")
}

func TestParse_SizeLimitBeforeNetwork(t *testing.T) {
	client := &stubClient{response: "[]"}
	parser := NewParser(client, 8)

	_, err := parser.Parse(context.Background(), model.RawStatement{Data: pngHeader})
	var sizeErr *common.SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(len(pngHeader)), sizeErr.Size)
	assert.Equal(t, int64(8), sizeErr.Limit)
	assert.Empty(t, client.requests, "no completion call above the ceiling")
}

func TestParse_UnsupportedContent(t *testing.T) {
	client := &stubClient{response: "[]"}
	_, err := NewParser(client, 0).Parse(context.Background(), model.RawStatement{Data: []byte("Data;Descricao;Valor\n")})

	var formatErr *common.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Empty(t, client.requests)
}

func TestParse_UnusableResponsesAreNotErrors(t *testing.T) {
	for _, response := range []string{"", "Sorry, I cannot read this image.", "[]", `[{"date":"2024-01-01"`} {
		t.Run(response, func(t *testing.T) {
			candidates, err := NewParser(&stubClient{response: response}, 0).
				Parse(context.Background(), model.RawStatement{Data: pngHeader})
			require.NoError(t, err)
			assert.Empty(t, candidates)
		})
	}
}

func TestParse_UpstreamErrorsSurface(t *testing.T) {
	tests := []error{common.ErrUpstreamRateLimited, common.ErrUpstreamQuotaExhausted, common.ErrUpstreamTimeout}
	for _, sentinel := range tests {
		t.Run(sentinel.Error(), func(t *testing.T) {
			client := &stubClient{err: &common.UpstreamError{Provider: "stub", Err: sentinel}}
			_, err := NewParser(client, 0).Parse(context.Background(), model.RawStatement{Data: pngHeader})
			require.ErrorIs(t, err, sentinel)
			assert.Len(t, client.requests, 1, "no retries")
		})
	}

	client := &stubClient{err: errors.New("connection refused")}
	_, err := NewParser(client, 0).Parse(context.Background(), model.RawStatement{Data: pngHeader})
	require.Error(t, err)
	assert.False(t, common.IsUpstreamThrottled(err))
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    Kind
		entries int
	}{
		{name: "ok", input: `[{"date":"2024-01-01","description":"A","amount":1}]`, kind: KindOK, entries: 1},
		{name: "prose around array", input: `Here you go: [{"date":"2024-01-01","description":"A [x]","amount":1}] Thanks!`, kind: KindOK, entries: 1},
		{name: "blank", input: "  ", kind: KindEmpty},
		{name: "empty array", input: "[]", kind: KindEmpty},
		{name: "no array", input: `{"date":"2024-01-01"}`, kind: KindMalformed},
		{name: "truncated", input: `[{"date":"2024-01-01","description":"A"`, kind: KindMalformed},
		{name: "not json inside brackets", input: `[date, description]`, kind: KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpret(tt.input)
			assert.Equal(t, tt.kind, got.Kind, got.Reason)
			assert.Len(t, got.Entries, tt.entries)
		})
	}
}

func TestEntryAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: `-150.00`, want: "-150"},
		{raw: `1.234`, want: "1.23"},
		{raw: `1234.567`, want: "1234.57"},
		{raw: `1e3`, want: "1000"},
		{raw: `"1.234,56"`, want: "1234.56"},
		{raw: `"-1,234.56"`, want: "-1234.56"},
		{raw: `"1.234"`, want: "1234"},
		{raw: `"R$ 27,90"`, want: "27.9"},
		{raw: `null`, wantErr: true},
		{raw: `true`, wantErr: true},
		{raw: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := entryAmount([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		data   []byte
		wantOK bool
	}{
		{name: "png", data: pngHeader, want: "image/png", wantOK: true},
		{name: "jpeg", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}, want: "image/jpeg", wantOK: true},
		{name: "gif", data: []byte("GIF89a......"), want: "image/gif", wantOK: true},
		{name: "webp", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: "image/webp", wantOK: true},
		{name: "pdf", data: []byte("%PDF-1.7\n"), want: "application/pdf", wantOK: true},
		{name: "text", data: []byte("hello"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMIME(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

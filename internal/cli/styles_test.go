package cli

import (
	"testing"

	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		name   string
		got    string
		prefix string
		text   string
	}{
		{name: "success", got: FormatSuccess("done"), prefix: SuccessIcon, text: "done"},
		{name: "error", got: FormatError("broken"), prefix: ErrorIcon, text: "broken"},
		{name: "warning", got: FormatWarning("careful"), prefix: WarningIcon, text: "careful"},
		{name: "info", got: FormatInfo("note"), prefix: InfoIcon, text: "note"},
		{name: "title", got: FormatTitle("Import"), prefix: SpiceIcon, text: "Import"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.got, tt.prefix)
			assert.Contains(t, tt.got, tt.text)
		})
	}
}

func TestFormatBatchStatus(t *testing.T) {
	for _, status := range []model.BatchStatus{
		model.BatchPending,
		model.BatchProcessing,
		model.BatchAwaitingValidation,
		model.BatchFailed,
		model.BatchStatus("unknown"),
	} {
		assert.Contains(t, FormatBatchStatus(status), string(status))
	}
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Import batch", "ID: b-1")
	assert.Contains(t, out, "Import batch")
	assert.Contains(t, out, "ID: b-1")
}

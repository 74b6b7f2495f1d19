package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-ingest/internal/blob"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/delimited"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/ofx"
	"github.com/Veraticus/spice-ingest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pixStatement = "Data;Descricao;Valor\n15/01/2024;PIX ENVIADO JOAO DA SILVA;-50,00\n"

const ledgerStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102

<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[-3:GMT]
<TRNAMT>-150.00
<FITID>1
<MEMO>PADARIA SAO JOAO
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120
<TRNAMT>1200,00
<FITID>2
<NAME>CLIENTE ACME
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110
<TRNAMT>-230.45
<FITID>3
<MEMO>PAGAMENTO CEMIG
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func newService(t *testing.T, db *testutil.TestDB, blobs blob.Store, classifier Classifier) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Retry.InitialDelay = time.Millisecond
	return NewService(db.Storage, NewRegistry(ofx.NewParser(), delimited.NewParser()), blobs, classifier, cfg)
}

func request(format model.Format, data string) ImportRequest {
	return ImportRequest{
		OrganizationID: testutil.DefaultOrganization,
		AccountID:      testutil.DefaultAccount,
		Format:         format,
		FileName:       "statement",
		Data:           []byte(data),
	}
}

func loadBatch(t *testing.T, db *testutil.TestDB, id string) *model.ImportBatch {
	t.Helper()
	batch, err := db.Storage.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return batch
}

func TestSubmitImport_PixDoubleUpload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)
	ctx := context.Background()

	first, err := svc.SubmitImport(ctx, request(model.FormatDelimited, pixStatement))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)
	assert.Zero(t, first.Duplicates)
	assert.Equal(t, model.BatchAwaitingValidation, first.Status)

	second, err := svc.SubmitImport(ctx, request(model.FormatDelimited, pixStatement))
	require.NoError(t, err)
	assert.Zero(t, second.Imported)
	assert.Equal(t, 1, second.Duplicates)
	assert.NotEqual(t, first.BatchID, second.BatchID)

	batch := loadBatch(t, db, second.BatchID)
	assert.Equal(t, model.BatchAwaitingValidation, batch.Status)
	assert.Equal(t, 1, batch.TotalCount)
	assert.Zero(t, batch.ImportedCount)
	assert.Equal(t, 1, batch.DuplicateCount)
}

func TestSubmitImport_LedgerReimportIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)
	ctx := context.Background()

	first, err := svc.SubmitImport(ctx, request(model.FormatLedger, ledgerStatement))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Imported)
	require.NotNil(t, first.PeriodStart)
	require.NotNil(t, first.PeriodEnd)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), *first.PeriodStart)
	assert.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), *first.PeriodEnd)

	again, err := svc.SubmitImport(ctx, request(model.FormatLedger, ledgerStatement))
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 3, again.Duplicates)

	txns, err := db.Storage.ListBatchTransactions(ctx, first.BatchID)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	for _, txn := range txns {
		assert.Equal(t, model.StatusPendingValidation, txn.ValidationStatus)
		assert.Equal(t, testutil.DefaultAccount, txn.AccountID)
	}

	batch := loadBatch(t, db, first.BatchID)
	require.NotNil(t, batch.PeriodStart)
	assert.Equal(t, "2024-01-10", batch.PeriodStart.Format("2006-01-02"))
}

func TestSubmitImport_RepeatedLinesInOneUpload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)

	data := pixStatement + "15/01/2024;PIX ENVIADO JOAO DA SILVA;-50,00\n16/01/2024;MERCADO;-10,00\n"
	result, err := svc.SubmitImport(context.Background(), request(model.FormatDelimited, data))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Duplicates)
}

func TestSubmitImport_ParseFailureFailsBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)

	result, err := svc.SubmitImport(context.Background(), request(model.FormatDelimited, "foo;bar\n1;2\n"))
	require.Error(t, err)

	var formatErr *common.FormatError
	assert.True(t, errors.As(err, &formatErr))
	assert.Equal(t, model.BatchFailed, result.Status)

	batch := loadBatch(t, db, result.BatchID)
	assert.Equal(t, model.BatchFailed, batch.Status)
	assert.Contains(t, batch.ErrorMessage, "delimited")
}

func TestSubmitImport_UnregisteredFormat(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)

	result, err := svc.SubmitImport(context.Background(), request(model.FormatImage, "\x89PNG"))
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Equal(t, model.BatchFailed, loadBatch(t, db, result.BatchID).Status)
}

func TestSubmitImport_IncompleteRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)

	req := request(model.FormatDelimited, pixStatement)
	req.AccountID = ""
	_, err := svc.SubmitImport(context.Background(), req)

	var userErr *common.UserError
	require.True(t, errors.As(err, &userErr))
	assert.Contains(t, err.Error(), "account")

	batches, err := db.Storage.ListBatches(context.Background(), testutil.DefaultOrganization, 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestSubmitImport_FromBlob(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "jan.csv"), []byte(pixStatement), 0o600))

	db := testutil.SetupTestDB(t)
	svc := newService(t, db, blob.NewLocalStore(root), nil)

	req := request(model.FormatDelimited, "")
	req.Data = nil
	req.FileName = ""
	req.BlobPath = "jan.csv"

	result, err := svc.SubmitImport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	batch := loadBatch(t, db, result.BatchID)
	assert.Equal(t, "jan.csv", batch.FileName)
	assert.Equal(t, int64(len(pixStatement)), batch.FileSize)
}

func TestSubmitImport_PayloadCeiling(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := DefaultConfig()
	cfg.MaxPayloadBytes = 16
	svc := NewService(db.Storage, NewRegistry(delimited.NewParser()), nil, nil, cfg)

	result, err := svc.SubmitImport(context.Background(), request(model.FormatDelimited, pixStatement))
	var sizeErr *common.SizeLimitError
	require.True(t, errors.As(err, &sizeErr), "got %v", err)
	assert.Equal(t, model.BatchFailed, loadBatch(t, db, result.BatchID).Status)
}

func TestSubmitImport_ClassifiesImportedRows(t *testing.T) {
	db := testutil.SetupTestDB(t).WithBasicTaxonomy()
	db.WithRule("CEMIG", "230.45", model.DirectionDebit, "Aluguel", nil)
	svc := newService(t, db, nil, engine.New(db.Storage, nil))

	result, err := svc.SubmitImport(context.Background(), request(model.FormatLedger, ledgerStatement))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Classified)
	assert.Equal(t, 1, result.AutoValidated)
	assert.Equal(t, 1, loadBatch(t, db, result.BatchID).ClassifiedCount)

	pending, err := db.Storage.ListPendingTransactions(context.Background(), testutil.DefaultOrganization, result.BatchID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

type failingClassifier struct{ calls int }

func (f *failingClassifier) ClassifyBatch(context.Context, string, []model.Transaction) (engine.Summary, error) {
	f.calls++
	return engine.Summary{}, errors.New("classifier down")
}

func TestSubmitImport_ClassificationFailureKeepsBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	classifier := &failingClassifier{}
	svc := newService(t, db, nil, classifier)

	result, err := svc.SubmitImport(context.Background(), request(model.FormatDelimited, pixStatement))
	require.NoError(t, err)
	assert.Equal(t, 1, classifier.calls)
	assert.Zero(t, result.Classified)
	assert.Equal(t, model.BatchAwaitingValidation, loadBatch(t, db, result.BatchID).Status)
}

func TestSubmitImport_ReplayedRequestID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, nil, nil)
	ctx := context.Background()

	req := request(model.FormatDelimited, pixStatement)
	req.ID = "upload-42"

	first, err := svc.SubmitImport(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.SubmitImport(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, "upload-42", second.BatchID)
	assert.Equal(t, 1, second.Imported)
}

func TestClassify_ExistingBatch(t *testing.T) {
	db := testutil.SetupTestDB(t).WithBasicTaxonomy()
	ctx := context.Background()

	imported, err := newService(t, db, nil, nil).SubmitImport(ctx, request(model.FormatLedger, ledgerStatement))
	require.NoError(t, err)

	db.WithRule("CEMIG", "230.45", model.DirectionDebit, "Aluguel", nil)
	svc := newService(t, db, nil, engine.New(db.Storage, nil))

	summary, err := svc.Classify(ctx, imported.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Considered)
	assert.Equal(t, 1, summary.Classified)
	assert.Equal(t, 1, loadBatch(t, db, imported.BatchID).ClassifiedCount)

	_, err = svc.Classify(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(delimited.NewParser(), ofx.NewParser())
	assert.Equal(t, []model.Format{model.FormatDelimited, model.FormatLedger}, r.Formats())

	_, err := r.Lookup(model.FormatImage)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.True(t, strings.Contains(err.Error(), "image"))
}

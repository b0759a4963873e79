package consumer

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// expectStage registers the drop/create/prepare sequence for one staging
// table and returns the prepare expectation so callers can attach row execs.
func expectStage(mock sqlmock.Sqlmock, table string) *sqlmock.ExpectedPrepare {
	staging := stagingName(table)
	mock.ExpectExec("DROP TABLE IF EXISTS " + staging).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE " + staging).WillReturnResult(sqlmock.NewResult(0, 0))
	return mock.ExpectPrepare("INSERT INTO " + staging)
}

func expectSwap(mock sqlmock.Sqlmock, table string) {
	mock.ExpectExec("DROP TABLE IF EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE " + stagingName(table) + " RENAME TO " + table).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestNewSaveToSQLite(t *testing.T) {
	_, err := NewSaveToSQLite(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing db_path in config")
}

func TestSaveToSQLiteProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToSQLite{db: db}
	dataset := materializedDataset()

	mock.ExpectBegin()

	enriched := expectStage(mock, TableEnriched)
	enriched.ExpectExec().WithArgs(
		"C-1", "Lisbon", "female", "25-34",
		time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), "books",
		12, 4, 430.5, true, 9.0, 4.5, 1, 6.0, 4.5, 0.62,
		"positive", "delivery/quality/price", 0,
	).WillReturnResult(sqlmock.NewResult(0, 1))
	enriched.ExpectExec().WithArgs(
		"C-2", "Porto", "male", "35-44",
		nil, "unknown",
		240, 1, 45.0, true, 1.0, 2.0, 3, 30.0, 2.0, -0.4,
		"negative", "refund/support/delay", 1,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	predicted := expectStage(mock, TablePredicted)
	predicted.ExpectExec().WithArgs(
		"C-1", 0.08, 0, 4.4, `{"recency_days":-0.8}`, `{"avg_rating":0.5}`,
	).WillReturnResult(sqlmock.NewResult(0, 1))
	predicted.ExpectExec().WithArgs(
		"C-2", 0.91, 1, 2.1, `{"recency_days":1.4}`, `{"avg_rating":-0.7}`,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	segmented := expectStage(mock, TableSegmented)
	segmented.ExpectExec().WithArgs(
		"C-1", 0, "Champions", 1.2, -0.3,
	).WillReturnResult(sqlmock.NewResult(0, 1))
	segmented.ExpectExec().WithArgs(
		"C-2", 1, "At-Risk", -1.0, 0.4,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	campaigns := expectStage(mock, TableCampaigns)
	campaigns.ExpectExec().WithArgs(
		"CAMP-1", "Spring", "email", 1000, 50, 10, 200.0, 600.0, 0.05, 4.0, 0.2, 3.0,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	for _, table := range []string{TableEnriched, TablePredicted, TableSegmented, TableCampaigns} {
		expectSwap(mock, table)
	}

	mock.ExpectExec("INSERT INTO pipeline_runs").WithArgs(
		"run-42", dataset.Report.StartedAt, dataset.Report.FinishedAt, "FS",
		`{"customers":2,"transactions":5}`,
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		2, sqlmock.AnyArg(), false, false, false,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	err = consumer.Process(context.Background(), processor.Message{Payload: dataset})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToSQLiteProcessRollsBackOnStagingError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToSQLite{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS " + stagingName(TableEnriched)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE " + stagingName(TableEnriched)).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = consumer.Process(context.Background(), datasetMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error creating customer_360_enriched__staging")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToSQLiteProcessBeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToSQLite{db: db}
	mock.ExpectBegin().WillReturnError(assert.AnError)

	err = consumer.Process(context.Background(), datasetMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error starting transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToSQLiteProcessRejectsNonDataset(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToSQLite{db: db}
	err = consumer.Process(context.Background(), processor.Message{Payload: "not a dataset"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected *Dataset payload")
}

package consumer

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveToDuckDBProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToDuckDB{db: db}

	mock.ExpectBegin()

	enriched := expectStage(mock, TableEnriched)
	enriched.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	enriched.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))

	predicted := expectStage(mock, TablePredicted)
	predicted.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	predicted.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))

	segmented := expectStage(mock, TableSegmented)
	segmented.ExpectExec().WithArgs(
		"C-1", 0, "Champions", 1.2, -0.3,
	).WillReturnResult(sqlmock.NewResult(0, 1))
	segmented.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))

	campaigns := expectStage(mock, TableCampaigns)
	campaigns.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))

	for _, table := range []string{TableEnriched, TablePredicted, TableSegmented, TableCampaigns} {
		expectSwap(mock, table)
	}

	mock.ExpectExec("INSERT INTO pipeline_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = consumer.Process(context.Background(), datasetMessage())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToDuckDBProcessRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consumer := &SaveToDuckDB{db: db}

	mock.ExpectBegin()
	enriched := expectStage(mock, TableEnriched)
	enriched.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	enriched.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = consumer.Process(context.Background(), datasetMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error inserting enriched row C-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeDuckDBTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pipeline_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, initializeDuckDBTables(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package source

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// TestNewSQLiteSnapshotSourceAdapter tests adapter creation and configuration
func TestNewSQLiteSnapshotSourceAdapter(t *testing.T) {
	_, err := NewSQLiteSnapshotSourceAdapter(map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")

	adapter, err := NewSQLiteSnapshotSourceAdapter(map[string]interface{}{"db_path": "./snapshot.db"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

// TestReadSQLTable tests relation loading through a mocked database, which
// keeps the coercion path shared with the CSV parsers under test without a
// database file.
func TestReadSQLTable(t *testing.T) {
	t.Run("renders values as strings with NULL as empty", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT \* FROM transactions`).WillReturnRows(
			sqlmock.NewRows([]string{"transaction_id", "customer_id", "occurred_at", "amount", "category"}).
				AddRow("T-1", "C-1", "2024-03-01 10:00:00", "120.5", "books").
				AddRow("T-2", "C-1", "2024-04-02", nil, "garden"))

		table, err := readSQLTable(context.Background(), db, processor.RelationTransactions)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		rows, warnings := transactionsFromTable(table)
		assert.Empty(t, warnings)
		require.Len(t, rows, 2)
		require.True(t, rows[0].Amount.Valid)
		assert.InDelta(t, 120.5, rows[0].Amount.Float64, 1e-12)
		assert.False(t, rows[1].Amount.Valid, "NULL amount treated as missing")
	})

	t.Run("normalizes mixed-case column names", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT \* FROM interactions`).WillReturnRows(
			sqlmock.NewRows([]string{"Customer_ID", "Event_Type", "Occurred_At"}).
				AddRow("C-1", "page_view", "2024-05-01"))

		table, err := readSQLTable(context.Background(), db, processor.RelationInteractions)
		require.NoError(t, err)

		rows, warnings := interactionsFromTable(table)
		assert.Empty(t, warnings)
		require.Len(t, rows, 1)
		assert.Equal(t, "C-1", rows[0].CustomerID)
		assert.Equal(t, "page_view", rows[0].EventType)
	})

	t.Run("fails the schema check when columns are missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT \* FROM reviews`).WillReturnRows(
			sqlmock.NewRows([]string{"review_id", "customer_id", "category"}))

		_, err = readSQLTable(context.Background(), db, processor.RelationReviews)
		require.Error(t, err)

		var schemaErr *processor.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, processor.RelationReviews, schemaErr.Relation)
		assert.Equal(t, []string{"rating", "body"}, schemaErr.Missing)
	})

	t.Run("propagates query errors", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT \* FROM campaigns`).WillReturnError(assert.AnError)

		_, err = readSQLTable(context.Background(), db, processor.RelationCampaigns)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "querying campaigns")
	})
}

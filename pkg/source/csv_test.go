package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// MockProcessor collects messages for verification
type MockProcessor struct {
	mu               sync.Mutex
	receivedMessages []processor.Message
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{receivedMessages: make([]processor.Message, 0)}
}

func (m *MockProcessor) Process(ctx context.Context, msg processor.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivedMessages = append(m.receivedMessages, msg)
	return nil
}

func (m *MockProcessor) Subscribe(processor.Processor) {}

func (m *MockProcessor) GetMessages() []processor.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]processor.Message{}, m.receivedMessages...)
}

func writeRelationCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// writeSnapshotFixture lays down all six relation files, including rows with
// deliberate quality defects.
func writeSnapshotFixture(t *testing.T, dir string) {
	t.Helper()
	writeRelationCSV(t, dir, "customers.csv",
		"customer_id,city,gender,age_band,signup_date,preferences\n"+
			`C-1,Lisbon,female,25-34,2023-01-15,"{""categories"":[""books""]}"`+"\n"+
			"C-2,Porto,male,35-44,junk,\n")
	writeRelationCSV(t, dir, "transactions.csv",
		"transaction_id,customer_id,occurred_at,amount,category\n"+
			"T-1,C-1,2024-03-01 10:00:00,120.5,books\n"+
			"T-2,C-1,2024-04-02,80,electronics\n"+
			"T-3,C-2,not-a-date,50,books\n"+
			"T-4,C-2,2024-05-05,oops,garden\n")
	writeRelationCSV(t, dir, "support_tickets.csv",
		"ticket_id,customer_id,opened_at,resolved_at,satisfaction_rating,notes\n"+
			"S-1,C-1,2024-02-01 09:00:00,2024-02-01 15:00:00,4,Resolved after reboot\n")
	writeRelationCSV(t, dir, "campaigns.csv",
		"campaign_id,campaign_name,campaign_type,impressions,clicks,conversions,spend,revenue\n"+
			"CAMP-1,Spring,email,1000,50,10,200,600\n")
	writeRelationCSV(t, dir, "reviews.csv",
		"review_id,customer_id,category,rating,body\n"+
			"R-1,C-1,books,4,Great read\n"+
			"R-2,C-2,electronics,bad,Terrible\n")
	writeRelationCSV(t, dir, "interactions.csv",
		"customer_id,event_type,occurred_at\n"+
			"C-1,page_view,2024-05-01 12:00:00\n"+
			"C-2,purchase,2024-05-02\n")
}

// TestNewCSVSnapshotSourceAdapter tests adapter creation and configuration
func TestNewCSVSnapshotSourceAdapter(t *testing.T) {
	_, err := NewCSVSnapshotSourceAdapter(map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "base_path")

	adapter, err := NewCSVSnapshotSourceAdapter(map[string]interface{}{"base_path": "./data"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

// TestCSVSnapshotSourceAdapter_Run tests loading, typing and quality warnings
func TestCSVSnapshotSourceAdapter_Run(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFixture(t, dir)

	adapter, err := NewCSVSnapshotSourceAdapter(map[string]interface{}{"base_path": dir})
	require.NoError(t, err)

	mock := NewMockProcessor()
	adapter.Subscribe(mock)

	require.NoError(t, adapter.Run(context.Background()))

	messages := mock.GetMessages()
	require.Len(t, messages, 1, "one snapshot message per run")

	dataset, err := processor.DatasetFromMessage(messages[0])
	require.NoError(t, err)
	snapshot := dataset.Snapshot

	assert.Len(t, snapshot.Customers, 2)
	assert.Len(t, snapshot.Transactions, 3, "the unparseable-date row is dropped")
	assert.Len(t, snapshot.SupportTickets, 1)
	assert.Len(t, snapshot.Campaigns, 1)
	assert.Len(t, snapshot.Reviews, 2)
	assert.Len(t, snapshot.Interactions, 2)

	// Typed values survive the round trip.
	require.True(t, snapshot.Customers[0].SignupDate.Valid)
	assert.False(t, snapshot.Customers[1].SignupDate.Valid, "unparseable date treated as missing")
	require.True(t, snapshot.Transactions[0].Amount.Valid)
	assert.InDelta(t, 120.5, snapshot.Transactions[0].Amount.Float64, 1e-12)
	assert.False(t, snapshot.Transactions[2].Amount.Valid, "unparseable amount treated as missing")
	assert.Equal(t, int64(1000), snapshot.Campaigns[0].Impressions)
	require.True(t, snapshot.SupportTickets[0].ResolvedAt.Valid)

	// Warnings surface in relation order on the run report.
	warnings := dataset.Report.QualityWarnings
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "signup_date")
	assert.Contains(t, warnings[1], "row T-3 dropped")
	assert.Contains(t, warnings[2], `unparseable amount "oops"`)
	assert.Contains(t, warnings[3], "unparseable rating")

	// Source metadata rides along for the run report.
	meta, ok := messages[0].GetSnapshotMetadata()
	require.True(t, ok)
	assert.Equal(t, "FS", meta.SourceType)
	assert.Equal(t, dir, meta.Path)
	assert.Equal(t, 2, meta.RowCounts[processor.RelationCustomers])
}

func TestCSVSnapshotSourceAdapterSchemaError(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFixture(t, dir)
	writeRelationCSV(t, dir, "customers.csv",
		"customer_id,city,gender,age_band\nC-1,Lisbon,female,25-34\n")

	adapter, err := NewCSVSnapshotSourceAdapter(map[string]interface{}{"base_path": dir})
	require.NoError(t, err)

	err = adapter.Run(context.Background())
	require.Error(t, err)

	var schemaErr *processor.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, processor.RelationCustomers, schemaErr.Relation)
	assert.Equal(t, []string{"signup_date", "preferences"}, schemaErr.Missing)
}

func TestCSVSnapshotSourceAdapterMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFixture(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "reviews.csv")))

	adapter, err := NewCSVSnapshotSourceAdapter(map[string]interface{}{"base_path": dir})
	require.NoError(t, err)

	err = adapter.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviews.csv")
}

// TestParseCustomersCSVHeaderNormalization verifies BOM and case handling
func TestParseCustomersCSVHeaderNormalization(t *testing.T) {
	input := "\ufeffCUSTOMER_ID, City ,GENDER,AGE_BAND,SIGNUP_DATE,PREFERENCES\n" +
		"C-9,Faro,male,45-54,,\n"

	rows, warnings, err := ParseCustomersCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, rows, 1)
	assert.Equal(t, "C-9", rows[0].CustomerID)
	assert.Equal(t, "Faro", rows[0].City)
}

func TestParseCSVEmptyFileFailsSchemaCheck(t *testing.T) {
	_, _, err := ParseReviewsCSV(strings.NewReader(""))

	var schemaErr *processor.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, processor.RelationReviews, schemaErr.Relation)
	assert.Equal(t, processor.RequiredColumns[processor.RelationReviews], schemaErr.Missing)
}

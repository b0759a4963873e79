package source

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// SQLiteSnapshotSourceAdapter loads the six raw relations from tables in a
// SQLite database file. Table names match the relation names used by the
// CSV layout and go through the same typed row builders.
type SQLiteSnapshotSourceAdapter struct {
	config     SQLiteSnapshotConfig
	processors []processor.Processor
}

type SQLiteSnapshotConfig struct {
	DBPath string
}

func NewSQLiteSnapshotSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok || dbPath == "" {
		return nil, errors.New("db_path must be specified")
	}

	return &SQLiteSnapshotSourceAdapter{
		config: SQLiteSnapshotConfig{DBPath: dbPath},
	}, nil
}

func (adapter *SQLiteSnapshotSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *SQLiteSnapshotSourceAdapter) Run(ctx context.Context) error {
	log.Printf("SQLiteSnapshotSourceAdapter: loading snapshot from %s", adapter.config.DBPath)

	db, err := sql.Open("sqlite3", "file:"+adapter.config.DBPath+"?mode=ro")
	if err != nil {
		return errors.Wrap(err, "opening sqlite database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "connecting to sqlite database")
	}

	snapshot := &processor.Snapshot{}
	warnings := &relationWarnings{}

	table, err := readSQLTable(ctx, db, processor.RelationCustomers)
	if err != nil {
		return err
	}
	snapshot.Customers, warnings.customers = customersFromTable(table)

	table, err = readSQLTable(ctx, db, processor.RelationTransactions)
	if err != nil {
		return err
	}
	snapshot.Transactions, warnings.transactions = transactionsFromTable(table)

	table, err = readSQLTable(ctx, db, processor.RelationSupportTickets)
	if err != nil {
		return err
	}
	snapshot.SupportTickets, warnings.tickets = supportTicketsFromTable(table)

	table, err = readSQLTable(ctx, db, processor.RelationCampaigns)
	if err != nil {
		return err
	}
	snapshot.Campaigns, warnings.campaigns = campaignsFromTable(table)

	table, err = readSQLTable(ctx, db, processor.RelationReviews)
	if err != nil {
		return err
	}
	snapshot.Reviews, warnings.reviews = reviewsFromTable(table)

	table, err = readSQLTable(ctx, db, processor.RelationInteractions)
	if err != nil {
		return err
	}
	snapshot.Interactions, warnings.interactions = interactionsFromTable(table)

	return emitSnapshot(ctx, snapshot, warnings, adapter.processors, &processor.SnapshotSourceMetadata{
		SourceType: "SQLITE",
		Path:       adapter.config.DBPath,
		RowCounts:  snapshot.RowCounts(),
		LoadedAt:   time.Now().UTC(),
	})
}

// readSQLTable selects a whole relation and renders every value as a string,
// so missing-column detection and value coercion stay identical to the CSV
// path. SQLite's dynamic typing makes the string rendering lossless for the
// column types the snapshot uses.
func readSQLTable(ctx context.Context, db *sql.DB, relation string) (*relationTable, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+relation)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", relation)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s columns", relation)
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, required := range processor.RequiredColumns[relation] {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, processor.NewSchemaError(relation, missing)
	}

	var data [][]string
	values := make([]sql.NullString, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrapf(err, "scanning %s row", relation)
		}
		row := make([]string, len(columns))
		for i, value := range values {
			if value.Valid {
				row[i] = value.String
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s rows", relation)
	}

	return &relationTable{index: index, rows: data}, nil
}

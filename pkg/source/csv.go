package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/customer360-pipeline/processor"
	"github.com/meridianlabs/customer360-pipeline/utils"
)

// CSVSnapshotSourceAdapter loads the six raw relations from a directory of
// CSV files named <relation>.csv. The six files load concurrently; each
// lands in its own slice, so no coordination is needed beyond the errgroup.
type CSVSnapshotSourceAdapter struct {
	config     CSVSnapshotConfig
	processors []processor.Processor
}

type CSVSnapshotConfig struct {
	BasePath string
}

func NewCSVSnapshotSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	basePath, ok := config["base_path"].(string)
	if !ok || basePath == "" {
		return nil, errors.New("base_path must be specified")
	}

	return &CSVSnapshotSourceAdapter{
		config: CSVSnapshotConfig{BasePath: basePath},
	}, nil
}

func (adapter *CSVSnapshotSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *CSVSnapshotSourceAdapter) Run(ctx context.Context) error {
	log.Printf("CSVSnapshotSourceAdapter: loading snapshot from %s", adapter.config.BasePath)

	snapshot := &processor.Snapshot{}
	warnings := &relationWarnings{}

	var group errgroup.Group
	group.Go(func() error {
		file, err := adapter.open(processor.RelationCustomers)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.Customers, warnings.customers, err = ParseCustomersCSV(file)
		return err
	})
	group.Go(func() error {
		file, err := adapter.open(processor.RelationTransactions)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.Transactions, warnings.transactions, err = ParseTransactionsCSV(file)
		return err
	})
	group.Go(func() error {
		file, err := adapter.open(processor.RelationSupportTickets)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.SupportTickets, warnings.tickets, err = ParseSupportTicketsCSV(file)
		return err
	})
	group.Go(func() error {
		file, err := adapter.open(processor.RelationCampaigns)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.Campaigns, warnings.campaigns, err = ParseCampaignsCSV(file)
		return err
	})
	group.Go(func() error {
		file, err := adapter.open(processor.RelationReviews)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.Reviews, warnings.reviews, err = ParseReviewsCSV(file)
		return err
	})
	group.Go(func() error {
		file, err := adapter.open(processor.RelationInteractions)
		if err != nil {
			return err
		}
		defer file.Close()
		snapshot.Interactions, warnings.interactions, err = ParseInteractionsCSV(file)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	return emitSnapshot(ctx, snapshot, warnings, adapter.processors, &processor.SnapshotSourceMetadata{
		SourceType: "FS",
		Path:       adapter.config.BasePath,
		RowCounts:  snapshot.RowCounts(),
		LoadedAt:   time.Now().UTC(),
	})
}

func (adapter *CSVSnapshotSourceAdapter) open(relation string) (*os.File, error) {
	path := filepath.Join(adapter.config.BasePath, relation+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return file, nil
}

// relationTable is one loaded relation in column-name-indexed string form.
// Both the CSV files and the SQLite tables decode through it, so the typed
// row builders and their quality warnings behave identically across sources.
type relationTable struct {
	index map[string]int
	rows  [][]string
}

func readCSVTable(r io.Reader, relation string) (*relationTable, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s csv", relation)
	}
	if len(records) == 0 {
		return nil, processor.NewSchemaError(relation, processor.RequiredColumns[relation])
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
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

	return &relationTable{index: index, rows: records[1:]}, nil
}

func (t *relationTable) field(row []string, column string) string {
	return strings.TrimSpace(row[t.index[column]])
}

func ParseCustomersCSV(r io.Reader) ([]processor.RawCustomer, []string, error) {
	table, err := readCSVTable(r, processor.RelationCustomers)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := customersFromTable(table)
	return rows, warnings, nil
}

func customersFromTable(table *relationTable) ([]processor.RawCustomer, []string) {
	var warnings []string
	rows := make([]processor.RawCustomer, 0, len(table.rows))
	for _, row := range table.rows {
		customer := processor.RawCustomer{
			CustomerID:  table.field(row, "customer_id"),
			City:        table.field(row, "city"),
			Gender:      table.field(row, "gender"),
			AgeBand:     table.field(row, "age_band"),
			Preferences: table.field(row, "preferences"),
		}
		if raw := table.field(row, "signup_date"); raw != "" {
			if t, err := utils.ParseTimestamp(raw); err == nil {
				customer.SignupDate = null.TimeFrom(t)
			} else {
				warnings = append(warnings, fmt.Sprintf("customers: unparseable signup_date %q for %s, treated as missing", raw, customer.CustomerID))
			}
		}
		rows = append(rows, customer)
	}
	return rows, warnings
}

func ParseTransactionsCSV(r io.Reader) ([]processor.RawTransaction, []string, error) {
	table, err := readCSVTable(r, processor.RelationTransactions)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := transactionsFromTable(table)
	return rows, warnings, nil
}

func transactionsFromTable(table *relationTable) ([]processor.RawTransaction, []string) {
	var warnings []string
	rows := make([]processor.RawTransaction, 0, len(table.rows))
	for _, row := range table.rows {
		tx := processor.RawTransaction{
			TransactionID: table.field(row, "transaction_id"),
			CustomerID:    table.field(row, "customer_id"),
			Category:      table.field(row, "category"),
		}

		occurredAt, err := utils.ParseTimestamp(table.field(row, "occurred_at"))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("transactions: row %s dropped: %v", tx.TransactionID, err))
			continue
		}
		tx.OccurredAt = occurredAt

		if raw := table.field(row, "amount"); raw != "" {
			if amount, err := strconv.ParseFloat(raw, 64); err == nil {
				tx.Amount = null.FloatFrom(amount)
			} else {
				warnings = append(warnings, fmt.Sprintf("transactions: unparseable amount %q for %s, treated as missing", raw, tx.TransactionID))
			}
		}

		rows = append(rows, tx)
	}
	return rows, warnings
}

func ParseSupportTicketsCSV(r io.Reader) ([]processor.RawSupportTicket, []string, error) {
	table, err := readCSVTable(r, processor.RelationSupportTickets)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := supportTicketsFromTable(table)
	return rows, warnings, nil
}

func supportTicketsFromTable(table *relationTable) ([]processor.RawSupportTicket, []string) {
	var warnings []string
	rows := make([]processor.RawSupportTicket, 0, len(table.rows))
	for _, row := range table.rows {
		ticket := processor.RawSupportTicket{
			TicketID:   table.field(row, "ticket_id"),
			CustomerID: table.field(row, "customer_id"),
			Notes:      table.field(row, "notes"),
		}

		openedAt, err := utils.ParseTimestamp(table.field(row, "opened_at"))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("support_tickets: row %s dropped: %v", ticket.TicketID, err))
			continue
		}
		ticket.OpenedAt = openedAt

		if raw := table.field(row, "resolved_at"); raw != "" {
			if t, err := utils.ParseTimestamp(raw); err == nil {
				ticket.ResolvedAt = null.TimeFrom(t)
			} else {
				warnings = append(warnings, fmt.Sprintf("support_tickets: unparseable resolved_at %q for %s, treated as unresolved", raw, ticket.TicketID))
			}
		}

		if raw := table.field(row, "satisfaction_rating"); raw != "" {
			if rating, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ticket.SatisfactionRating = null.IntFrom(rating)
			} else {
				warnings = append(warnings, fmt.Sprintf("support_tickets: unparseable satisfaction_rating %q for %s, treated as unrated", raw, ticket.TicketID))
			}
		}

		rows = append(rows, ticket)
	}
	return rows, warnings
}

func ParseCampaignsCSV(r io.Reader) ([]processor.RawCampaign, []string, error) {
	table, err := readCSVTable(r, processor.RelationCampaigns)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := campaignsFromTable(table)
	return rows, warnings, nil
}

func campaignsFromTable(table *relationTable) ([]processor.RawCampaign, []string) {
	var warnings []string
	rows := make([]processor.RawCampaign, 0, len(table.rows))
	for _, row := range table.rows {
		campaign := processor.RawCampaign{
			CampaignID:   table.field(row, "campaign_id"),
			CampaignName: table.field(row, "campaign_name"),
			CampaignType: table.field(row, "campaign_type"),
		}

		parseCount := func(column string) int64 {
			raw := table.field(row, column)
			if raw == "" {
				return 0
			}
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("campaigns: unparseable %s %q for %s, treated as 0", column, raw, campaign.CampaignID))
				return 0
			}
			return v
		}
		parseMoney := func(column string) float64 {
			raw := table.field(row, column)
			if raw == "" {
				return 0
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("campaigns: unparseable %s %q for %s, treated as 0", column, raw, campaign.CampaignID))
				return 0
			}
			return v
		}

		campaign.Impressions = parseCount("impressions")
		campaign.Clicks = parseCount("clicks")
		campaign.Conversions = parseCount("conversions")
		campaign.Spend = parseMoney("spend")
		campaign.Revenue = parseMoney("revenue")

		rows = append(rows, campaign)
	}
	return rows, warnings
}

func ParseReviewsCSV(r io.Reader) ([]processor.RawReview, []string, error) {
	table, err := readCSVTable(r, processor.RelationReviews)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := reviewsFromTable(table)
	return rows, warnings, nil
}

func reviewsFromTable(table *relationTable) ([]processor.RawReview, []string) {
	var warnings []string
	rows := make([]processor.RawReview, 0, len(table.rows))
	for _, row := range table.rows {
		review := processor.RawReview{
			ReviewID:   table.field(row, "review_id"),
			CustomerID: table.field(row, "customer_id"),
			Category:   table.field(row, "category"),
			Body:       table.field(row, "body"),
		}

		if raw := table.field(row, "rating"); raw != "" {
			if rating, err := strconv.ParseInt(raw, 10, 64); err == nil {
				review.Rating = null.IntFrom(rating)
			} else {
				warnings = append(warnings, fmt.Sprintf("reviews: unparseable rating %q for %s, treated as missing", raw, review.ReviewID))
			}
		}

		rows = append(rows, review)
	}
	return rows, warnings
}

func ParseInteractionsCSV(r io.Reader) ([]processor.RawInteraction, []string, error) {
	table, err := readCSVTable(r, processor.RelationInteractions)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := interactionsFromTable(table)
	return rows, warnings, nil
}

func interactionsFromTable(table *relationTable) ([]processor.RawInteraction, []string) {
	var warnings []string
	rows := make([]processor.RawInteraction, 0, len(table.rows))
	for _, row := range table.rows {
		interaction := processor.RawInteraction{
			CustomerID: table.field(row, "customer_id"),
			EventType:  table.field(row, "event_type"),
		}

		occurredAt, err := utils.ParseTimestamp(table.field(row, "occurred_at"))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("interactions: row for %s dropped: %v", interaction.CustomerID, err))
			continue
		}
		interaction.OccurredAt = occurredAt

		rows = append(rows, interaction)
	}
	return rows, warnings
}

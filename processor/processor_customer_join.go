package processor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// CustomerJoinProcessor reconciles the six raw relations into one denormalized
// record per customer: exact-duplicate rows are removed per relation,
// duplicate primary keys are corrected by keeping the first occurrence, child
// rows are left-outer aggregated onto customers, and missing values are
// imputed (numeric fields with the per-column median, categorical fields with
// "unknown"). Customers with no child rows are retained, never dropped. The
// stage also computes the dataset-wide medians and the global mean ticket
// satisfaction used by downstream imputation.
type CustomerJoinProcessor struct {
	processors []Processor
}

func NewCustomerJoinProcessor(config map[string]interface{}) (*CustomerJoinProcessor, error) {
	return &CustomerJoinProcessor{}, nil
}

func (p *CustomerJoinProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *CustomerJoinProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	snapshot := dataset.Snapshot
	report := dataset.Report

	customers := p.dedupCustomers(snapshot.Customers, report)
	transactions := p.dedupTransactions(snapshot.Transactions, report)
	tickets := p.dedupTickets(snapshot.SupportTickets, report)
	reviews := p.dedupReviews(snapshot.Reviews, report)
	interactions := dedupExactInteractions(snapshot.Interactions)

	stats := p.computeStats(transactions, tickets, reviews)
	dataset.Stats = stats

	transactionsByCustomer := groupTransactions(transactions, customers, report)
	ticketsByCustomer := groupTickets(tickets, customers, report)
	reviewsByCustomer := groupReviews(reviews, customers, report)
	interactionsByCustomer := groupInteractions(interactions, customers, report)

	records := make([]CustomerRecord, 0, len(customers))
	for _, customer := range customers {
		record := CustomerRecord{
			CustomerID:        customer.CustomerID,
			City:              imputeCategory(customer.City),
			Gender:            imputeCategory(customer.Gender),
			AgeBand:           imputeCategory(customer.AgeBand),
			SignupDate:        customer.SignupDate,
			PreferredCategory: preferredCategory(customer.Preferences),
			Transactions:      transactionsByCustomer[customer.CustomerID],
			Tickets:           ticketsByCustomer[customer.CustomerID],
			Reviews:           reviewsByCustomer[customer.CustomerID],
			Interactions:      interactionsByCustomer[customer.CustomerID],
		}

		// Numeric imputation happens on the grouped copies; the snapshot
		// itself stays untouched.
		for i := range record.Transactions {
			if !record.Transactions[i].Amount.Valid {
				record.Transactions[i].Amount.SetValid(stats.MedianAmount)
			}
			record.Transactions[i].Category = imputeCategory(record.Transactions[i].Category)
		}
		for i := range record.Reviews {
			if !record.Reviews[i].Rating.Valid {
				record.Reviews[i].Rating.SetValid(int64(stats.MedianReviewRating + 0.5))
			}
			record.Reviews[i].Category = imputeCategory(record.Reviews[i].Category)
		}

		records = append(records, record)
	}

	dataset.Customers = records
	log.Printf("CustomerJoinProcessor: unified %d customers (%d transactions, %d tickets, %d reviews, %d interactions)",
		len(records), len(transactions), len(tickets), len(reviews), len(interactions))

	return ForwardToProcessors(ctx, dataset, p.processors)
}

func (p *CustomerJoinProcessor) dedupCustomers(rows []RawCustomer, report *RunReport) []RawCustomer {
	seenRows := make(map[RawCustomer]struct{}, len(rows))
	seenIDs := make(map[string]struct{}, len(rows))
	out := make([]RawCustomer, 0, len(rows))
	for _, row := range rows {
		if row.CustomerID == "" {
			reportQuality(report, RelationCustomers, "", "row with empty customer_id dropped")
			continue
		}
		if _, dup := seenRows[row]; dup {
			continue
		}
		seenRows[row] = struct{}{}
		if _, dup := seenIDs[row.CustomerID]; dup {
			reportQuality(report, RelationCustomers, row.CustomerID, "duplicate customer_id, keeping first occurrence")
			continue
		}
		seenIDs[row.CustomerID] = struct{}{}
		out = append(out, row)
	}
	return out
}

func (p *CustomerJoinProcessor) dedupTransactions(rows []RawTransaction, report *RunReport) []RawTransaction {
	seenRows := make(map[RawTransaction]struct{}, len(rows))
	seenIDs := make(map[string]struct{}, len(rows))
	out := make([]RawTransaction, 0, len(rows))
	for _, row := range rows {
		if _, dup := seenRows[row]; dup {
			continue
		}
		seenRows[row] = struct{}{}
		if _, dup := seenIDs[row.TransactionID]; dup {
			reportQuality(report, RelationTransactions, row.TransactionID, "duplicate transaction_id, keeping first occurrence")
			continue
		}
		seenIDs[row.TransactionID] = struct{}{}
		out = append(out, row)
	}
	return out
}

func (p *CustomerJoinProcessor) dedupTickets(rows []RawSupportTicket, report *RunReport) []RawSupportTicket {
	seenRows := make(map[RawSupportTicket]struct{}, len(rows))
	seenIDs := make(map[string]struct{}, len(rows))
	out := make([]RawSupportTicket, 0, len(rows))
	for _, row := range rows {
		if _, dup := seenRows[row]; dup {
			continue
		}
		seenRows[row] = struct{}{}
		if _, dup := seenIDs[row.TicketID]; dup {
			reportQuality(report, RelationSupportTickets, row.TicketID, "duplicate ticket_id, keeping first occurrence")
			continue
		}
		seenIDs[row.TicketID] = struct{}{}
		out = append(out, row)
	}
	return out
}

func (p *CustomerJoinProcessor) dedupReviews(rows []RawReview, report *RunReport) []RawReview {
	seenRows := make(map[RawReview]struct{}, len(rows))
	seenIDs := make(map[string]struct{}, len(rows))
	out := make([]RawReview, 0, len(rows))
	for _, row := range rows {
		if _, dup := seenRows[row]; dup {
			continue
		}
		seenRows[row] = struct{}{}
		if _, dup := seenIDs[row.ReviewID]; dup {
			reportQuality(report, RelationReviews, row.ReviewID, "duplicate review_id, keeping first occurrence")
			continue
		}
		seenIDs[row.ReviewID] = struct{}{}
		out = append(out, row)
	}
	return out
}

// Interactions carry no primary key, so only exact-duplicate rows collapse.
func dedupExactInteractions(rows []RawInteraction) []RawInteraction {
	seen := make(map[RawInteraction]struct{}, len(rows))
	out := make([]RawInteraction, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	return out
}

func (p *CustomerJoinProcessor) computeStats(transactions []RawTransaction, tickets []RawSupportTicket, reviews []RawReview) *DatasetStats {
	amounts := make([]float64, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Amount.Valid {
			amounts = append(amounts, tx.Amount.Float64)
		}
	}

	ratings := make([]float64, 0, len(reviews))
	for _, review := range reviews {
		if review.Rating.Valid {
			ratings = append(ratings, float64(review.Rating.Int64))
		}
	}

	resolutions := make([]float64, 0, len(tickets))
	satisfactions := make([]float64, 0, len(tickets))
	for _, ticket := range tickets {
		if ticket.ResolvedAt.Valid {
			resolutions = append(resolutions, resolutionHours(ticket.OpenedAt, ticket.ResolvedAt.Time))
		}
		if ticket.SatisfactionRating.Valid {
			satisfactions = append(satisfactions, float64(ticket.SatisfactionRating.Int64))
		}
	}

	globalMeanSatisfaction := 3.0 // rating-scale midpoint when no ticket is rated
	if len(satisfactions) > 0 {
		globalMeanSatisfaction = mean(satisfactions)
	}

	medianRating := 3.0
	if len(ratings) > 0 {
		medianRating = median(ratings)
	}

	return &DatasetStats{
		MedianAmount:           median(amounts),
		MedianReviewRating:     medianRating,
		MedianResolutionHours:  median(resolutions),
		GlobalMeanSatisfaction: globalMeanSatisfaction,
	}
}

func groupTransactions(rows []RawTransaction, customers []RawCustomer, report *RunReport) map[string][]RawTransaction {
	known := knownIDs(customers)
	grouped := make(map[string][]RawTransaction)
	orphans := 0
	for _, row := range rows {
		if _, ok := known[row.CustomerID]; !ok {
			orphans++
			continue
		}
		grouped[row.CustomerID] = append(grouped[row.CustomerID], row)
	}
	reportOrphans(report, RelationTransactions, orphans)
	return grouped
}

func groupTickets(rows []RawSupportTicket, customers []RawCustomer, report *RunReport) map[string][]RawSupportTicket {
	known := knownIDs(customers)
	grouped := make(map[string][]RawSupportTicket)
	orphans := 0
	for _, row := range rows {
		if _, ok := known[row.CustomerID]; !ok {
			orphans++
			continue
		}
		grouped[row.CustomerID] = append(grouped[row.CustomerID], row)
	}
	reportOrphans(report, RelationSupportTickets, orphans)
	return grouped
}

func groupReviews(rows []RawReview, customers []RawCustomer, report *RunReport) map[string][]RawReview {
	known := knownIDs(customers)
	grouped := make(map[string][]RawReview)
	orphans := 0
	for _, row := range rows {
		if _, ok := known[row.CustomerID]; !ok {
			orphans++
			continue
		}
		grouped[row.CustomerID] = append(grouped[row.CustomerID], row)
	}
	reportOrphans(report, RelationReviews, orphans)
	return grouped
}

func groupInteractions(rows []RawInteraction, customers []RawCustomer, report *RunReport) map[string][]RawInteraction {
	known := knownIDs(customers)
	grouped := make(map[string][]RawInteraction)
	orphans := 0
	for _, row := range rows {
		if _, ok := known[row.CustomerID]; !ok {
			orphans++
			continue
		}
		grouped[row.CustomerID] = append(grouped[row.CustomerID], row)
	}
	reportOrphans(report, RelationInteractions, orphans)
	return grouped
}

func knownIDs(customers []RawCustomer) map[string]struct{} {
	ids := make(map[string]struct{}, len(customers))
	for _, c := range customers {
		ids[c.CustomerID] = struct{}{}
	}
	return ids
}

func reportQuality(report *RunReport, relation, key, detail string) {
	qualityErr := &DataQualityError{Relation: relation, Key: key, Detail: detail}
	log.Printf("CustomerJoinProcessor: %v", qualityErr)
	report.AddQualityWarning(qualityErr.Error())
}

func reportOrphans(report *RunReport, relation string, count int) {
	if count == 0 {
		return
	}
	msg := fmt.Sprintf("%d %s rows reference unknown customers and were excluded from the join", count, relation)
	log.Printf("CustomerJoinProcessor: %s", msg)
	report.AddQualityWarning(msg)
}

// preferredCategory pulls the first category tag out of the preferences JSON
// document. Anything unparseable maps to "unknown".
func preferredCategory(preferences string) string {
	category := gjson.Get(preferences, "categories.0").String()
	if category == "" {
		return "unknown"
	}
	return category
}

func imputeCategory(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func resolutionHours(opened, resolved time.Time) float64 {
	hours := resolved.Sub(opened).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

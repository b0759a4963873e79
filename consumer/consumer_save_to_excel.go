package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/meridianlabs/customer360-pipeline/processor"
	"github.com/meridianlabs/customer360-pipeline/utils"
)

type SaveToExcel struct {
	filePath   string
	processors []processor.Processor
}

func NewSaveToExcel(config map[string]interface{}) (*SaveToExcel, error) {
	filePath, ok := config["file_path"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: missing 'file_path'")
	}

	return &SaveToExcel{
		filePath: filePath,
	}, nil
}

func (c *SaveToExcel) Subscribe(receiver processor.Processor) {
	c.processors = append(c.processors, receiver)
}

// Process rebuilds the workbook from scratch, one sheet per output table.
func (c *SaveToExcel) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	writer := utils.NewExcelWriter(c.filePath)
	defer writer.Close()

	sheets := []struct {
		name    string
		headers []string
		rows    [][]interface{}
	}{
		{TableEnriched, enrichedHeaders(), enrichedRows(dataset)},
		{TablePredicted, predictedHeaders(), predictedRows(dataset)},
		{TableSegmented, segmentedHeaders(), segmentedRows(dataset)},
		{TableCampaigns, campaignHeaders(), campaignRows(dataset)},
		{TableRuns, runReportHeaders(), runReportRows(dataset.Report)},
	}

	for _, sheet := range sheets {
		if err := writer.AddSheet(sheet.name, sheet.headers, sheet.rows); err != nil {
			return fmt.Errorf("failed to build sheet %s: %w", sheet.name, err)
		}
	}

	if err := writer.Save(); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	log.Printf("SaveToExcel: wrote %s with %d customers, %d campaigns (run %s)",
		c.filePath, len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func enrichedHeaders() []string {
	return []string{
		"customer_id", "city", "gender", "age_band", "signup_date",
		"preferred_category", "recency_days", "frequency_count", "monetary_total",
		"has_transaction", "engagement_index", "satisfaction_index",
		"total_tickets", "avg_resolution_hours", "avg_rating", "sentiment_score",
		"sentiment_label", "dominant_topic", "churn_flag",
	}
}

func enrichedRows(dataset *processor.Dataset) [][]interface{} {
	rows := make([][]interface{}, 0, len(dataset.Customers))
	for _, record := range dataset.Customers {
		rows = append(rows, []interface{}{
			record.CustomerID, record.City, record.Gender, record.AgeBand,
			nullTimeArg(record.SignupDate), record.PreferredCategory,
			record.RecencyDays, record.FrequencyCount, record.MonetaryTotal,
			record.HasTransaction, record.EngagementIndex, record.SatisfactionIndex,
			record.TotalTickets, record.AvgResolutionHours, record.AvgRating,
			record.SentimentScore, record.SentimentLabel, record.DominantTopic,
			record.ChurnFlag,
		})
	}
	return rows
}

func predictedHeaders() []string {
	return []string{
		"customer_id", "churn_probability", "churn_flag",
		"predicted_satisfaction", "churn_attribution", "satisfaction_attribution",
	}
}

func predictedRows(dataset *processor.Dataset) [][]interface{} {
	rows := make([][]interface{}, 0, len(dataset.Predictions))
	for _, prediction := range dataset.Predictions {
		rows = append(rows, []interface{}{
			prediction.CustomerID, nullFloatArg(prediction.ChurnProbability),
			prediction.ChurnFlag, prediction.PredictedSatisfaction,
			toJSON(prediction.ChurnAttribution), toJSON(prediction.SatisfactionAttribution),
		})
	}
	return rows
}

func segmentedHeaders() []string {
	return []string{"customer_id", "cluster_id", "segment_label", "projection_x", "projection_y"}
}

func segmentedRows(dataset *processor.Dataset) [][]interface{} {
	rows := make([][]interface{}, 0, len(dataset.Segments))
	for _, segment := range dataset.Segments {
		rows = append(rows, []interface{}{
			segment.CustomerID, nullIntArg(segment.ClusterID), segment.SegmentLabel,
			segment.ProjectionX, segment.ProjectionY,
		})
	}
	return rows
}

func campaignHeaders() []string {
	return []string{
		"campaign_id", "campaign_name", "campaign_type", "impressions", "clicks",
		"conversions", "spend", "revenue", "click_through_rate", "cost_per_click",
		"conversion_rate", "return_on_investment",
	}
}

func campaignRows(dataset *processor.Dataset) [][]interface{} {
	rows := make([][]interface{}, 0, len(dataset.Campaigns))
	for _, campaign := range dataset.Campaigns {
		rows = append(rows, []interface{}{
			campaign.CampaignID, campaign.CampaignName, campaign.CampaignType,
			campaign.Impressions, campaign.Clicks, campaign.Conversions,
			campaign.Spend, campaign.Revenue, campaign.ClickThroughRate,
			campaign.CostPerClick, campaign.ConversionRate, campaign.ReturnOnInvestment,
		})
	}
	return rows
}

func runReportHeaders() []string {
	return []string{
		"run_id", "started_at", "finished_at", "source_type", "row_counts",
		"quality_warnings", "churn_metrics", "satisfaction_metrics",
		"churn_importance", "satisfaction_importance", "elbow_curve",
		"chosen_clusters", "cluster_profiles", "churn_degraded",
		"satisfaction_degraded", "segmentation_degraded",
	}
}

func runReportRows(report *processor.RunReport) [][]interface{} {
	return [][]interface{}{{
		report.RunID, report.StartedAt, finishedAt(report), report.SourceType,
		toJSON(report.RowCounts), toJSON(report.QualityWarnings),
		toJSON(report.ChurnMetrics), toJSON(report.SatisfactionMetrics),
		toJSON(report.ChurnImportance), toJSON(report.SatisfactionImportance),
		toJSON(report.ElbowCurve), report.ChosenClusters, toJSON(report.ClusterProfiles),
		report.ChurnDegraded, report.SatisfactionDegraded, report.SegmentationDegraded,
	}}
}

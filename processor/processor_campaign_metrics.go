package processor

import (
	"context"
	"fmt"
	"log"
)

// CampaignMetricsProcessor derives per-campaign rate metrics from the raw
// campaigns relation: click-through rate, cost per click, conversion rate,
// and return on investment. Campaigns are aggregate-level rows, so this
// stage runs before the customer join and touches no customer-keyed data.
type CampaignMetricsProcessor struct {
	processors []Processor
}

func NewCampaignMetricsProcessor(config map[string]interface{}) (*CampaignMetricsProcessor, error) {
	return &CampaignMetricsProcessor{}, nil
}

func (p *CampaignMetricsProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *CampaignMetricsProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	// Exact-duplicate rows collapse silently; duplicate campaign ids with
	// differing content are a quality issue corrected by keeping the first.
	seenRows := make(map[RawCampaign]struct{})
	seenIDs := make(map[string]struct{})
	campaigns := make([]RawCampaign, 0, len(dataset.Snapshot.Campaigns))
	for _, campaign := range dataset.Snapshot.Campaigns {
		if _, dup := seenRows[campaign]; dup {
			continue
		}
		seenRows[campaign] = struct{}{}

		if _, dup := seenIDs[campaign.CampaignID]; dup {
			qualityErr := &DataQualityError{
				Relation: RelationCampaigns,
				Key:      campaign.CampaignID,
				Detail:   "duplicate campaign_id, keeping first occurrence",
			}
			log.Printf("CampaignMetricsProcessor: %v", qualityErr)
			dataset.Report.AddQualityWarning(qualityErr.Error())
			continue
		}
		seenIDs[campaign.CampaignID] = struct{}{}
		campaigns = append(campaigns, campaign)
	}

	metrics := make([]CampaignMetrics, 0, len(campaigns))
	for _, campaign := range campaigns {
		m := CampaignMetrics{
			CampaignID:   campaign.CampaignID,
			CampaignName: campaign.CampaignName,
			CampaignType: campaign.CampaignType,
			Impressions:  campaign.Impressions,
			Clicks:       campaign.Clicks,
			Conversions:  campaign.Conversions,
			Spend:        campaign.Spend,
			Revenue:      campaign.Revenue,
		}

		if campaign.Impressions > 0 {
			m.ClickThroughRate = float64(campaign.Clicks) / float64(campaign.Impressions)
		} else {
			dataset.Report.AddQualityWarning(fmt.Sprintf(
				"campaign %s has zero impressions, click_through_rate set to 0", campaign.CampaignID))
		}

		if campaign.Clicks > 0 {
			m.CostPerClick = campaign.Spend / float64(campaign.Clicks)
			m.ConversionRate = float64(campaign.Conversions) / float64(campaign.Clicks)
		} else {
			dataset.Report.AddQualityWarning(fmt.Sprintf(
				"campaign %s has zero clicks, cost_per_click and conversion_rate set to 0", campaign.CampaignID))
		}

		if campaign.Spend > 0 {
			m.ReturnOnInvestment = campaign.Revenue / campaign.Spend
		} else {
			dataset.Report.AddQualityWarning(fmt.Sprintf(
				"campaign %s has zero spend, return_on_investment set to 0", campaign.CampaignID))
		}

		metrics = append(metrics, m)
	}

	dataset.Campaigns = metrics
	log.Printf("CampaignMetricsProcessor: derived metrics for %d campaigns", len(metrics))

	return ForwardToProcessors(ctx, dataset, p.processors)
}

package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/slack-go/slack"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// NotificationRule defines when a finished run triggers an alert. Metric
// names match the keys produced by runMetrics.
type NotificationRule struct {
	Metric    string   `json:"metric"`    // churn_rate, quality_warnings, customers, ...
	Condition string   `json:"condition"` // gt, lt, eq
	Value     float64  `json:"value"`     // threshold
	Channels  []string `json:"channels"`  // slack, email, webhook
}

// NotificationDispatcher inspects the finished dataset and alerts operators
// when a run-level metric crosses a configured threshold, e.g. the churn
// rate jumping or a model degrading. It never blocks the run: dispatch
// failures are logged and the dataset is forwarded unchanged.
type NotificationDispatcher struct {
	rules          []NotificationRule
	slackClient    *slack.Client
	sendgridClient *sendgrid.Client
	emailFrom      string
	emailTo        []string
	slackChannels  []string
	webhookURLs    []string
	processors     []processor.Processor
	lastNotified   map[string]time.Time // suppresses repeat alerts on scheduled runs
	cooldown       time.Duration
	mutex          sync.Mutex
}

func NewNotificationDispatcher(config map[string]interface{}) (*NotificationDispatcher, error) {
	slackToken, _ := config["slack_token"].(string)
	sendgridKey, _ := config["sendgrid_key"].(string)
	emailFrom, _ := config["email_from"].(string)

	dispatcher := &NotificationDispatcher{
		emailFrom:     emailFrom,
		emailTo:       stringSlice(config["email_to"]),
		slackChannels: stringSlice(config["slack_channels"]),
		webhookURLs:   stringSlice(config["webhook_urls"]),
		lastNotified:  make(map[string]time.Time),
		cooldown:      time.Hour,
	}

	if hours, ok := config["cooldown_hours"].(float64); ok {
		dispatcher.cooldown = time.Duration(hours * float64(time.Hour))
	} else if hours, ok := config["cooldown_hours"].(int); ok {
		dispatcher.cooldown = time.Duration(hours) * time.Hour
	}

	rulesData, ok := config["rules"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid rules configuration")
	}
	for _, r := range rulesData {
		ruleMap, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		rule := NotificationRule{
			Channels: stringSlice(ruleMap["channels"]),
		}
		rule.Metric, _ = ruleMap["metric"].(string)
		rule.Condition, _ = ruleMap["condition"].(string)
		switch v := ruleMap["value"].(type) {
		case float64:
			rule.Value = v
		case int:
			rule.Value = float64(v)
		}
		if rule.Metric == "" || rule.Condition == "" {
			return nil, fmt.Errorf("notification rule needs metric and condition: %v", ruleMap)
		}
		dispatcher.rules = append(dispatcher.rules, rule)
	}

	if slackToken != "" {
		dispatcher.slackClient = slack.New(slackToken)
	}
	if sendgridKey != "" {
		dispatcher.sendgridClient = sendgrid.NewSendClient(sendgridKey)
	}

	return dispatcher, nil
}

// stringSlice coerces YAML-decoded list values ([]interface{} of strings)
// into []string.
func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (n *NotificationDispatcher) Subscribe(p processor.Processor) {
	n.processors = append(n.processors, p)
}

func (n *NotificationDispatcher) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	metrics := runMetrics(dataset)
	for _, rule := range n.rules {
		value, ok := metrics[rule.Metric]
		if !ok {
			log.Printf("NotificationDispatcher: unknown metric %q in rule, skipping", rule.Metric)
			continue
		}
		if !conditionHolds(rule.Condition, value, rule.Value) {
			continue
		}
		if !n.shouldNotify(rule) {
			continue
		}
		if err := n.dispatch(ctx, rule, value, dataset.Report); err != nil {
			log.Printf("NotificationDispatcher: error dispatching %s alert: %v", rule.Metric, err)
		}
	}

	return processor.ForwardToProcessors(ctx, dataset, n.processors)
}

// runMetrics flattens the finished dataset into the scalar values rules can
// test against.
func runMetrics(dataset *processor.Dataset) map[string]float64 {
	metrics := map[string]float64{
		"customers":        float64(len(dataset.Customers)),
		"campaigns":        float64(len(dataset.Campaigns)),
		"quality_warnings": 0,
		"churn_rate":       0,
		"mean_sentiment":   0,
		"degraded_stages":  0,
	}

	if report := dataset.Report; report != nil {
		metrics["quality_warnings"] = float64(len(report.QualityWarnings))
		degraded := 0
		if report.ChurnDegraded {
			degraded++
		}
		if report.SatisfactionDegraded {
			degraded++
		}
		if report.SegmentationDegraded {
			degraded++
		}
		metrics["degraded_stages"] = float64(degraded)
	}

	if len(dataset.Customers) > 0 {
		churned := 0
		sentiment := 0.0
		for i := range dataset.Customers {
			if dataset.Customers[i].ChurnFlag == 1 {
				churned++
			}
			sentiment += dataset.Customers[i].SentimentScore
		}
		metrics["churn_rate"] = float64(churned) / float64(len(dataset.Customers))
		metrics["mean_sentiment"] = sentiment / float64(len(dataset.Customers))
	}

	return metrics
}

func conditionHolds(condition string, value, threshold float64) bool {
	switch condition {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}

// shouldNotify rate-limits alerts so a scheduled pipeline does not page on
// every run while a metric stays past its threshold.
func (n *NotificationDispatcher) shouldNotify(rule NotificationRule) bool {
	key := fmt.Sprintf("%s-%s", rule.Metric, rule.Condition)

	n.mutex.Lock()
	defer n.mutex.Unlock()

	if last, exists := n.lastNotified[key]; exists && time.Since(last) < n.cooldown {
		return false
	}
	n.lastNotified[key] = time.Now()
	return true
}

func (n *NotificationDispatcher) dispatch(ctx context.Context, rule NotificationRule, value float64, report *processor.RunReport) error {
	runID := "unknown"
	if report != nil {
		runID = report.RunID
	}
	message := fmt.Sprintf("customer360 run %s: %s = %.4f (%s %.4f)",
		runID, rule.Metric, value, rule.Condition, rule.Value)

	var firstErr error
	for _, channel := range rule.Channels {
		var err error
		switch channel {
		case "slack":
			err = n.sendSlack(message)
		case "email":
			err = n.sendEmail(rule.Metric, message)
		case "webhook":
			err = n.sendWebhooks(ctx, rule, value, runID)
		default:
			err = fmt.Errorf("unknown notification channel: %s", channel)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *NotificationDispatcher) sendSlack(message string) error {
	if n.slackClient == nil {
		return fmt.Errorf("slack channel requested but no slack_token configured")
	}
	for _, channel := range n.slackChannels {
		_, _, err := n.slackClient.PostMessage(channel, slack.MsgOptionText(message, false))
		if err != nil {
			return fmt.Errorf("error posting to slack channel %s: %w", channel, err)
		}
	}
	return nil
}

func (n *NotificationDispatcher) sendEmail(metric, message string) error {
	if n.sendgridClient == nil {
		return fmt.Errorf("email channel requested but no sendgrid_key configured")
	}
	from := mail.NewEmail("customer360 pipeline", n.emailFrom)
	subject := fmt.Sprintf("[customer360] %s alert", metric)
	for _, recipient := range n.emailTo {
		to := mail.NewEmail("", recipient)
		email := mail.NewSingleEmail(from, subject, to, message, message)
		if _, err := n.sendgridClient.Send(email); err != nil {
			return fmt.Errorf("error sending email to %s: %w", recipient, err)
		}
	}
	return nil
}

func (n *NotificationDispatcher) sendWebhooks(ctx context.Context, rule NotificationRule, value float64, runID string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"run_id":    runID,
		"metric":    rule.Metric,
		"condition": rule.Condition,
		"threshold": rule.Value,
		"value":     value,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	for _, url := range n.webhookURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("error posting webhook to %s: %w", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
		}
	}
	return nil
}

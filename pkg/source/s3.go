package source

import (
	"context"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// S3SnapshotSourceAdapter loads the six relation CSV files from an S3
// bucket. Objects are expected at <key_prefix>/<relation>.csv and decode
// through the same parsers as the filesystem adapter.
type S3SnapshotSourceAdapter struct {
	config     S3SnapshotConfig
	processors []processor.Processor
}

type S3SnapshotConfig struct {
	BucketName string
	Region     string
	KeyPrefix  string
}

func NewS3SnapshotSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	bucketName, ok := config["bucket_name"].(string)
	if !ok || bucketName == "" {
		return nil, errors.New("bucket_name must be specified")
	}

	region, ok := config["region"].(string)
	if !ok || region == "" {
		region = "us-east-1"
	}

	keyPrefix, _ := config["key_prefix"].(string)

	return &S3SnapshotSourceAdapter{
		config: S3SnapshotConfig{
			BucketName: bucketName,
			Region:     region,
			KeyPrefix:  keyPrefix,
		},
	}, nil
}

func (adapter *S3SnapshotSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *S3SnapshotSourceAdapter) Run(ctx context.Context) error {
	log.Printf("S3SnapshotSourceAdapter: loading snapshot from s3://%s/%s (region %s)",
		adapter.config.BucketName, adapter.config.KeyPrefix, adapter.config.Region)

	// Credentials come from the standard AWS chain: environment variables,
	// ~/.aws/credentials, or an attached IAM role.
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(adapter.config.Region),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3),
	)
	if err != nil {
		return errors.Wrap(err, "loading AWS config")
	}

	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(adapter.config.BucketName),
	}); err != nil {
		return errors.Wrapf(err, "accessing bucket %s", adapter.config.BucketName)
	}

	snapshot := &processor.Snapshot{}
	warnings := &relationWarnings{}

	var group errgroup.Group
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationCustomers)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Customers, warnings.customers, err = ParseCustomersCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationTransactions)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Transactions, warnings.transactions, err = ParseTransactionsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationSupportTickets)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.SupportTickets, warnings.tickets, err = ParseSupportTicketsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationCampaigns)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Campaigns, warnings.campaigns, err = ParseCampaignsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationReviews)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Reviews, warnings.reviews, err = ParseReviewsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, client, processor.RelationInteractions)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Interactions, warnings.interactions, err = ParseInteractionsCSV(body)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	return emitSnapshot(ctx, snapshot, warnings, adapter.processors, &processor.SnapshotSourceMetadata{
		SourceType: "S3",
		BucketName: adapter.config.BucketName,
		Path:       adapter.config.KeyPrefix,
		RowCounts:  snapshot.RowCounts(),
		LoadedAt:   time.Now().UTC(),
	})
}

func (adapter *S3SnapshotSourceAdapter) download(ctx context.Context, client *s3.Client, relation string) (io.ReadCloser, error) {
	key := path.Join(adapter.config.KeyPrefix, relation+".csv")
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(adapter.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "downloading s3://%s/%s", adapter.config.BucketName, key)
	}
	return resp.Body, nil
}

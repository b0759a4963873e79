package source

import (
	"context"
	"io"
	"log"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// GCSSnapshotSourceAdapter loads the six relation CSV files from a Google
// Cloud Storage bucket. Objects are expected at <key_prefix>/<relation>.csv
// and decode through the same parsers as the filesystem adapter.
type GCSSnapshotSourceAdapter struct {
	config     GCSSnapshotConfig
	processors []processor.Processor
}

type GCSSnapshotConfig struct {
	BucketName string
	KeyPrefix  string
}

func NewGCSSnapshotSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	bucketName, ok := config["bucket_name"].(string)
	if !ok || bucketName == "" {
		return nil, errors.New("bucket_name must be specified")
	}

	keyPrefix, _ := config["key_prefix"].(string)

	return &GCSSnapshotSourceAdapter{
		config: GCSSnapshotConfig{
			BucketName: bucketName,
			KeyPrefix:  keyPrefix,
		},
	}, nil
}

func (adapter *GCSSnapshotSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *GCSSnapshotSourceAdapter) Run(ctx context.Context) error {
	log.Printf("GCSSnapshotSourceAdapter: loading snapshot from gs://%s/%s",
		adapter.config.BucketName, adapter.config.KeyPrefix)

	// Credentials come from GOOGLE_APPLICATION_CREDENTIALS, gcloud
	// application-default login, or the GCE metadata service.
	client, err := storage.NewClient(ctx)
	if err != nil {
		return errors.Wrap(err, "creating GCS client")
	}
	defer client.Close()

	bucket := client.Bucket(adapter.config.BucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		return errors.Wrapf(err, "accessing bucket %s", adapter.config.BucketName)
	}

	snapshot := &processor.Snapshot{}
	warnings := &relationWarnings{}

	var group errgroup.Group
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationCustomers)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Customers, warnings.customers, err = ParseCustomersCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationTransactions)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Transactions, warnings.transactions, err = ParseTransactionsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationSupportTickets)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.SupportTickets, warnings.tickets, err = ParseSupportTicketsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationCampaigns)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Campaigns, warnings.campaigns, err = ParseCampaignsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationReviews)
		if err != nil {
			return err
		}
		defer body.Close()
		snapshot.Reviews, warnings.reviews, err = ParseReviewsCSV(body)
		return err
	})
	group.Go(func() error {
		body, err := adapter.download(ctx, bucket, processor.RelationInteractions)
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
		SourceType: "GCS",
		BucketName: adapter.config.BucketName,
		Path:       adapter.config.KeyPrefix,
		RowCounts:  snapshot.RowCounts(),
		LoadedAt:   time.Now().UTC(),
	})
}

func (adapter *GCSSnapshotSourceAdapter) download(ctx context.Context, bucket *storage.BucketHandle, relation string) (io.ReadCloser, error) {
	key := path.Join(adapter.config.KeyPrefix, relation+".csv")
	reader, err := bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "downloading gs://%s/%s", adapter.config.BucketName, key)
	}
	return reader, nil
}

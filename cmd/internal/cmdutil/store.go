package cmdutil

import (
	"context"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/mdsync/mdsync/snapstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type storeConfig struct {
	s3Bucket  string
	gcpBucket string
	prefix    string
}

var storeCfg storeConfig

func RegisterStoreFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&storeCfg.s3Bucket,
		"s3-bucket",
		"",
		"if set, s3 bucket snapshots are read from and written to",
	)
	cmd.PersistentFlags().StringVar(
		&storeCfg.gcpBucket,
		"gcp-bucket",
		"",
		"if set, gcp bucket snapshots are read from and written to",
	)
	cmd.PersistentFlags().StringVar(
		&storeCfg.prefix,
		"prefix",
		"",
		"object prefix for snapshots in a bucket",
	)
	cmd.MarkFlagsMutuallyExclusive("s3-bucket", "gcp-bucket")
}

// LoadStore returns the store selected by the flags, defaulting to the
// local filesystem.
func LoadStore(ctx context.Context, logger zerolog.Logger) (snapstore.Store, error) {
	switch {
	case storeCfg.gcpBucket != "":
		client, err := snapstore.NewGCPClient(ctx)
		if err != nil {
			return nil, err
		}
		return snapstore.NewGCPStore(logger, client, storeCfg.gcpBucket, storeCfg.prefix), nil
	case storeCfg.s3Bucket != "":
		sess, err := session.NewSession()
		if err != nil {
			return nil, err
		}
		return snapstore.NewS3Store(logger, sess, storeCfg.s3Bucket, storeCfg.prefix), nil
	}
	return snapstore.NewLocalStore(logger, ""), nil
}

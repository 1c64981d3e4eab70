package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/devlibx/logrecovery/cloud/aws"
)

// openFS returns the vfs.FS recovery log directories should be read
// through, honoring the --cloud persistent flag.
func openFS() (vfs.FS, error) {
	switch cloudBackend {
	case "", "local":
		return vfs.Default, nil
	case "s3":
		bucket := s3Bucket
		if bucket == "" {
			bucket = os.Getenv("S3_BUCKET")
		}
		if bucket == "" {
			return nil, errors.Newf("recoverctl: --cloud=s3 requires --s3-bucket or S3_BUCKET")
		}
		return aws.NewCloudFS(vfs.Default, aws.CloudFsOption{
			Bucket:    bucket,
			Region:    s3Region,
			KeyPrefix: s3KeyPrefix,
		}), nil
	default:
		return nil, errors.Newf("recoverctl: unknown --cloud backend %q", cloudBackend)
	}
}

package aws

import (
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/pebble/vfs"
)

// archiveUploader is the narrow surface CloudFile needs from
// s3manager.Uploader, so tests can substitute a fake.
type archiveUploader interface {
	Upload(*s3manager.UploadInput, ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

func newS3Uploader(sess *session.Session) archiveUploader {
	return s3manager.NewUploader(sess)
}

// cloudFile wraps a vfs.File, archiving its contents to S3 on Close
// if the file is a recovery log segment worth keeping durably.
type cloudFile struct {
	file     vfs.File
	name     string
	options  CloudFsOption
	uploader archiveUploader
}

func newCloudFile(base vfs.File, name string, options CloudFsOption, uploader archiveUploader) vfs.File {
	return &cloudFile{file: base, name: name, options: options, uploader: uploader}
}

func (c *cloudFile) archive() error {
	if !ShouldArchive(c.name) {
		return nil
	}
	info, err := c.file.Stat()
	if err != nil {
		return fmt.Errorf("archiving %s: %w", c.name, err)
	}
	_, err = c.uploader.Upload(&s3manager.UploadInput{
		Body:   io.NewSectionReader(c.file, 0, info.Size()),
		Bucket: aws.String(c.options.Bucket),
		Key:    aws.String(c.options.key(c.name)),
	})
	if err != nil {
		return fmt.Errorf("archiving %s to s3://%s/%s: %w", c.name, c.options.Bucket, c.options.key(c.name), err)
	}
	return nil
}

func (c *cloudFile) Close() error {
	archiveErr := c.archive()
	if err := c.file.Close(); err != nil {
		return err
	}
	return archiveErr
}

func (c *cloudFile) Read(p []byte) (n int, err error) { return c.file.Read(p) }

func (c *cloudFile) ReadAt(p []byte, off int64) (n int, err error) { return c.file.ReadAt(p, off) }

func (c *cloudFile) Write(p []byte) (n int, err error) { return c.file.Write(p) }

func (c *cloudFile) Preallocate(offset, length int64) error { return c.file.Preallocate(offset, length) }

func (c *cloudFile) Stat() (os.FileInfo, error) { return c.file.Stat() }

func (c *cloudFile) Sync() error { return c.file.Sync() }

func (c *cloudFile) SyncTo(length int64) (fullSync bool, err error) { return c.file.SyncTo(length) }

func (c *cloudFile) SyncData() error { return c.file.SyncData() }

func (c *cloudFile) Prefetch(offset int64, length int64) error { return c.file.Prefetch(offset, length) }

func (c *cloudFile) Fd() uintptr { return c.file.Fd() }

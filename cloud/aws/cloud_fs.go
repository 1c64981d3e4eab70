// Package aws wraps a vfs.FS so that recovery log segments are
// durably mirrored to S3 as they're closed, letting a recovery
// engine rehydrate a tablet's logs on a fresh host that never wrote
// them locally.
package aws

import (
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cockroachdb/pebble/vfs"
)

// CloudFsOption configures CloudFS's S3 destination.
type CloudFsOption struct {
	Bucket   string
	Region   string
	KeyPrefix string
}

func (o CloudFsOption) key(name string) string {
	if o.KeyPrefix == "" {
		return name
	}
	return o.KeyPrefix + "/" + name
}

// CloudFS wraps a local vfs.FS, archiving every closed recovery log
// segment to S3 under options.KeyPrefix.
type CloudFS struct {
	wrapperFs vfs.FS
	options   CloudFsOption
	s3Client  *s3.S3
	uploader  archiveUploader
}

// NewCloudFS returns a vfs.FS that archives recovery log segments
// written through it to the S3 bucket named in options.
func NewCloudFS(fs vfs.FS, options CloudFsOption) vfs.FS {
	sess, _ := session.NewSession(&aws.Config{Region: aws.String(options.Region)})
	return &CloudFS{
		wrapperFs: fs,
		options:   options,
		s3Client:  s3.New(sess),
		uploader:  newS3Uploader(sess),
	}
}

func (c *CloudFS) Create(name string) (vfs.File, error) {
	f, err := c.wrapperFs.Create(name)
	if err != nil {
		return nil, err
	}
	return newCloudFile(f, name, c.options, c.uploader), nil
}

func (c *CloudFS) Link(oldname, newname string) error {
	return c.wrapperFs.Link(oldname, newname)
}

func (c *CloudFS) Open(name string, opts ...vfs.OpenOption) (vfs.File, error) {
	return c.wrapperFs.Open(name, opts...)
}

func (c *CloudFS) OpenDir(name string) (vfs.File, error) {
	return c.wrapperFs.OpenDir(name)
}

func (c *CloudFS) Remove(name string) error {
	if ShouldArchive(name) {
		_, _ = c.s3Client.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(c.options.Bucket),
			Key:    aws.String(c.options.key(name)),
		})
	}
	return c.wrapperFs.Remove(name)
}

func (c *CloudFS) RemoveAll(name string) error {
	return c.wrapperFs.RemoveAll(name)
}

func (c *CloudFS) Rename(oldname, newname string) error {
	return c.wrapperFs.Rename(oldname, newname)
}

func (c *CloudFS) ReuseForWrite(oldname, newname string) (vfs.File, error) {
	return c.wrapperFs.ReuseForWrite(oldname, newname)
}

func (c *CloudFS) MkdirAll(dir string, perm os.FileMode) error {
	return c.wrapperFs.MkdirAll(dir, perm)
}

func (c *CloudFS) Lock(name string) (io.Closer, error) {
	return c.wrapperFs.Lock(name)
}

func (c *CloudFS) List(dir string) ([]string, error) {
	return c.wrapperFs.List(dir)
}

func (c *CloudFS) Stat(name string) (os.FileInfo, error) {
	return c.wrapperFs.Stat(name)
}

func (c *CloudFS) PathBase(path string) string {
	return c.wrapperFs.PathBase(path)
}

func (c *CloudFS) PathJoin(elem ...string) string {
	return c.wrapperFs.PathJoin(elem...)
}

func (c *CloudFS) PathDir(path string) string {
	return c.wrapperFs.PathDir(path)
}

func (c *CloudFS) GetDiskUsage(path string) (vfs.DiskUsage, error) {
	return c.wrapperFs.GetDiskUsage(path)
}

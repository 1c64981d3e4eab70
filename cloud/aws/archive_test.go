package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func TestShouldArchive(t *testing.T) {
	cases := map[string]bool{
		"000001.log":     true,
		"000001.dbtmp":   false,
		"manifest.tmp":   false,
		"CURRENT":        false,
		"archive.log":    true,
	}
	for name, want := range cases {
		require.Equal(t, want, ShouldArchive(name), name)
	}
}

type fakeUploader struct {
	uploads []string
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.uploads = append(f.uploads, *in.Key)
	return &s3manager.UploadOutput{}, nil
}

func TestCloudFileArchivesLogSegmentsOnClose(t *testing.T) {
	fs := vfs.NewMem()
	base, err := fs.Create("000001.log")
	require.NoError(t, err)
	uploader := &fakeUploader{}
	f := newCloudFile(base, "000001.log", CloudFsOption{Bucket: "b", KeyPrefix: "prefix"}, uploader)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, []string{"prefix/000001.log"}, uploader.uploads)
}

func TestCloudFileSkipsScratchFiles(t *testing.T) {
	fs := vfs.NewMem()
	base, err := fs.Create("000001.dbtmp")
	require.NoError(t, err)
	uploader := &fakeUploader{}
	f := newCloudFile(base, "000001.dbtmp", CloudFsOption{Bucket: "b"}, uploader)
	require.NoError(t, f.Close())
	require.Empty(t, uploader.uploads)
}

package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"louyass/core"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        core.MediaType
		wantErr     bool
	}{
		{"image/jpeg", core.MediaPhoto, false},
		{"image/png; charset=binary", core.MediaPhoto, false},
		{"video/mp4", core.MediaVideo, false},
		{"application/pdf", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, err := Classify(tt.contentType)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewKey(t *testing.T) {
	key := NewKey(12, "Salon.JPG", "image/jpeg")
	assert.Regexp(t, regexp.MustCompile(`^chambres/12/[0-9a-f-]{36}\.jpg$`), key)
	assert.NotEqual(t, key, NewKey(12, "Salon.JPG", "image/jpeg"))

	noExt := NewKey(3, "blob", "image/png")
	assert.True(t, strings.HasSuffix(noExt, ".png"), noExt)
}

func TestLimitReader(t *testing.T) {
	_, err := io.ReadAll(LimitReader(strings.NewReader("12345"), 5))
	assert.NoError(t, err)

	_, err = io.ReadAll(LimitReader(strings.NewReader("123456"), 5))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLocalStore_PutAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Put(ctx, "chambres/1/photo.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/media/chambres/1/photo.jpg", url)

	data, err := os.ReadFile(filepath.Join(root, "chambres", "1", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, store.Delete(ctx, "chambres/1/photo.jpg"))
	_, err = os.Stat(filepath.Join(root, "chambres", "1", "photo.jpg"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Delete(ctx, "chambres/1/photo.jpg"), "deleting a missing file is not an error")
}

func TestLocalStore_FailedUploadLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/media")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "chambres/1/big.mp4", "video/mp4", LimitReader(strings.NewReader("0123456789"), 4))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(root, "chambres", "1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../escape.jpg", "image/jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Delete(context.Background(), "/etc/passwd"), ErrInvalidKey)
}

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, input *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	f.body, _ = io.ReadAll(input.Body)
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(input.Key)}, nil
}

type fakeDeleter struct{ input *s3.DeleteObjectInput }

func (f *fakeDeleter) DeleteObjectWithContext(_ aws.Context, input *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.input = input
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	up := &fakeUploader{}
	store := &S3Store{cfg: S3Config{Bucket: "louyass-media", Prefix: "prod/"}, uploader: up, deleter: &fakeDeleter{}}

	url, err := store.Put(context.Background(), "chambres/1/a.jpg", "image/jpeg", bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/prod/chambres/1/a.jpg", url)
	assert.Equal(t, "louyass-media", aws.StringValue(up.input.Bucket))
	assert.Equal(t, "image/jpeg", aws.StringValue(up.input.ContentType))
	assert.Equal(t, "img", string(up.body))

	store.cfg.PublicURL = "https://cdn.louyass.sn/"
	url, err = store.Put(context.Background(), "chambres/1/b.jpg", "image/jpeg", bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.louyass.sn/prod/chambres/1/b.jpg", url)
}

func TestS3Store_PutError(t *testing.T) {
	store := &S3Store{cfg: S3Config{Bucket: "b"}, uploader: &fakeUploader{err: errors.New("denied")}, deleter: &fakeDeleter{}}
	_, err := store.Put(context.Background(), "chambres/1/a.jpg", "image/jpeg", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestS3Store_Delete(t *testing.T) {
	del := &fakeDeleter{}
	store := &S3Store{cfg: S3Config{Bucket: "b"}, uploader: &fakeUploader{}, deleter: del}
	require.NoError(t, store.Delete(context.Background(), "chambres/1/a.jpg"))
	assert.Equal(t, "chambres/1/a.jpg", aws.StringValue(del.input.Key))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "eu-west-3"})
	assert.Error(t, err)
}

package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
)

type fakeAPI struct {
	put    *s3.PutObjectInput
	putErr error
	getOut *s3.GetObjectOutput
	getErr error
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.getOut, f.getErr
}

func (f *fakeAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestPutSetsContentType(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "bucket")
	require.NoError(t, store.Put(context.Background(), "__outputs/p/app.js", strings.NewReader("x"), 1, "text/javascript"))
	require.NotNil(t, api.put)
	assert.Equal(t, "bucket", aws.ToString(api.put.Bucket))
	assert.Equal(t, "__outputs/p/app.js", aws.ToString(api.put.Key))
	assert.Equal(t, "text/javascript", aws.ToString(api.put.ContentType))
	assert.Equal(t, int64(1), aws.ToInt64(api.put.ContentLength))
	assert.Equal(t, "*", aws.ToString(api.put.IfNoneMatch))
}

func TestPutRefusesToOverwrite(t *testing.T) {
	api := &fakeAPI{putErr: &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}}
	err := NewWithClient(api, "bucket").Put(context.Background(), "__outputs/p/index.html", strings.NewReader("x"), 1, "text/html")
	assert.ErrorIs(t, err, storage.ErrExists)

	api.putErr = errors.New("connection reset")
	err = NewWithClient(api, "bucket").Put(context.Background(), "__outputs/p/index.html", strings.NewReader("x"), 1, "text/html")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrExists)
}

func TestGetCopiesMetadata(t *testing.T) {
	api := &fakeAPI{getOut: &s3.GetObjectOutput{
		Body:               io.NopCloser(strings.NewReader("body")),
		ContentLength:      aws.Int64(4),
		ContentType:        aws.String("text/css"),
		CacheControl:       aws.String("max-age=60"),
		ContentEncoding:    aws.String("gzip"),
		ContentDisposition: aws.String("inline"),
	}}
	obj, err := NewWithClient(api, "bucket").Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "text/css", obj.ContentType)
	assert.Equal(t, "max-age=60", obj.CacheControl)
	assert.Equal(t, "gzip", obj.ContentEncoding)
	assert.Equal(t, "inline", obj.ContentDisposition)
	assert.Equal(t, int64(4), obj.Size)
}

func TestGetMapsMissingKey(t *testing.T) {
	api := &fakeAPI{getErr: &types.NoSuchKey{}}
	_, err := NewWithClient(api, "bucket").Get(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	api.getErr = errors.New("connection reset")
	_, err = NewWithClient(api, "bucket").Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

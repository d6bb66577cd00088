package partition_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	GetObjectFunc func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.GetObjectFunc(ctx, params)
}

func newS3Source(t *testing.T, client partition.S3API) *partition.S3Source {
	t.Helper()
	src, err := partition.NewS3Source(context.Background(), partition.S3Config{
		Logger:   logger,
		BaseURL:  "s3://xatu-mirror/xatu/",
		Database: "default",
		Client:   client,
	})
	require.NoError(t, err)
	return src
}

func TestPartition_S3Source_Get(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		var gotBucket, gotKey string
		src := newS3Source(t, &mockS3{GetObjectFunc: func(_ context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			gotBucket, gotKey = aws.ToString(in.Bucket), aws.ToString(in.Key)
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("payload")))}, nil
		}})

		data, err := src.Get(context.Background(), testKey)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), data)
		require.Equal(t, "xatu-mirror", gotBucket)
		require.Equal(t, "xatu/mainnet/databases/default/beacon_api_eth_v1_events_block/2024/1/1.parquet", gotKey)
	})

	t.Run("no such key", func(t *testing.T) {
		t.Parallel()

		src := newS3Source(t, &mockS3{GetObjectFunc: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		}})
		_, err := src.Get(context.Background(), testKey)
		require.ErrorIs(t, err, partition.ErrNotFound)
	})

	t.Run("other error", func(t *testing.T) {
		t.Parallel()

		src := newS3Source(t, &mockS3{GetObjectFunc: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, errors.New("access denied")
		}})
		_, err := src.Get(context.Background(), testKey)
		require.Error(t, err)
		require.NotErrorIs(t, err, partition.ErrNotFound)
		require.ErrorContains(t, err, "access denied")
	})
}

func TestPartition_ParseS3URL(t *testing.T) {
	t.Parallel()

	bucket, prefix, err := partition.ParseS3URL("s3://bucket/a/b/")
	require.NoError(t, err)
	require.Equal(t, "bucket", bucket)
	require.Equal(t, "a/b", prefix)

	bucket, prefix, err = partition.ParseS3URL("s3://bucket")
	require.NoError(t, err)
	require.Equal(t, "bucket", bucket)
	require.Empty(t, prefix)

	_, _, err = partition.ParseS3URL("https://bucket")
	require.Error(t, err)
	_, _, err = partition.ParseS3URL("s3:///prefix")
	require.Error(t, err)
}

package objstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a bucket in memory that pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3_RoundTripAndPagedList(t *testing.T) {
	ctx := context.Background()
	b := &S3{api: &fakeS3{objects: map[string][]byte{}}, bucket: "backups"}
	s := New(b, "2024/01/02")

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Put(ctx, "policies/"+id+".json", map[string]string{"policyName": id}))
	}

	keys, err := s.Keys(ctx, "policies/")
	require.NoError(t, err)
	assert.Len(t, keys, 5)
	assert.Equal(t, "policies/a.json", keys[0])

	var got map[string]string
	require.NoError(t, s.Get(ctx, "policies/c.json", &got))
	assert.Equal(t, "c", got["policyName"])
	assert.Equal(t, "s3://backups/2024/01/02", s.Location())
}

func TestS3_MissingKeyIsNotFound(t *testing.T) {
	b := &S3{api: &fakeS3{objects: map[string][]byte{}}, bucket: "backups"}
	_, err := b.Read(context.Background(), "x.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

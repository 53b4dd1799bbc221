package blob

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
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// ListObjectsV2 returns keys in ascending order, pageSize per page.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3_PutGetListPaginates(t *testing.T) {
	t.Parallel()
	fake := &fakeS3{objects: map[string][]byte{}, pageSize: 2}
	s := NewS3WithClient(fake, "reports")
	ctx := context.Background()

	for _, k := range []string{"inventory/c.json", "inventory/a.json", "inventory/b.json", "misc/z.json"} {
		_, err := s.Put(ctx, k, strings.NewReader(k), "application/json")
		require.NoError(t, err)
	}

	infos, err := s.List(ctx, "inventory/")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, "inventory/a.json", infos[0].Key)
	require.Equal(t, "inventory/c.json", infos[2].Key)

	rc, err := s.Get(ctx, "inventory/b.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "inventory/b.json", string(body))

	_, err = s.Get(ctx, "missing.json")
	require.Error(t, err)
}

func TestS3_PutRejectsBadKey(t *testing.T) {
	t.Parallel()
	s := NewS3WithClient(&fakeS3{objects: map[string][]byte{}, pageSize: 10}, "reports")
	_, err := s.Put(context.Background(), "/abs", strings.NewReader("x"), "")
	require.Error(t, err)
}

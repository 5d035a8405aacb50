package awss3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/athenakit/athenakit/internal/storage"
)

func TestListFollowsContinuationTokens(t *testing.T) {
	fake := &fakeAPI{pages: [][]string{{"out/t/part-0", "out/t/part-1"}, {"out/t/part-2"}}}
	store, err := NewWithAPI(fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}

	objects, err := store.List(context.Background(), storage.MustParseLocation("s3://bucket/out/t"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("len(objects) = %d", len(objects))
	}
	if fake.lastPrefix != "out/t/" {
		t.Fatalf("prefix = %q", fake.lastPrefix)
	}
	if objects[2].Key != "out/t/part-2" || objects[2].Bucket != "bucket" || objects[2].Size != 7 {
		t.Fatalf("objects[2] = %+v", objects[2])
	}
}

func TestGetMapsNoSuchKey(t *testing.T) {
	store, err := NewWithAPI(&fakeAPI{getErr: &types.NoSuchKey{}})
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	_, err = store.Get(context.Background(), storage.MustParseLocation("s3://bucket/missing"))
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestGetReturnsBody(t *testing.T) {
	store, err := NewWithAPI(&fakeAPI{})
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	body, err := store.Get(context.Background(), storage.MustParseLocation("s3://bucket/out/t/part-0"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "out/t/part-0" {
		t.Fatalf("body = %q", data)
	}
}

func TestDeleteBatchesKeys(t *testing.T) {
	keys := make([]string, 0, 1500)
	for i := 0; i < 1500; i++ {
		keys = append(keys, fmt.Sprintf("out/t/part-%d", i))
	}
	fake := &fakeAPI{pages: [][]string{keys}}
	store, err := NewWithAPI(fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	if err := store.Delete(context.Background(), storage.MustParseLocation("s3://bucket/out/t/")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(fake.deleteBatches) != 2 || fake.deleteBatches[0] != 1000 || fake.deleteBatches[1] != 500 {
		t.Fatalf("delete batches = %v", fake.deleteBatches)
	}
}

func TestDeleteSurfacesPerKeyErrors(t *testing.T) {
	fake := &fakeAPI{pages: [][]string{{"out/t/part-0"}}, deleteErrors: []types.Error{{Key: aws.String("out/t/part-0"), Message: aws.String("AccessDenied")}}}
	store, err := NewWithAPI(fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	err = store.Delete(context.Background(), storage.MustParseLocation("s3://bucket/out/t/"))
	if err == nil || !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("Delete() error = %v", err)
	}
}

type fakeAPI struct {
	pages         [][]string
	lastPrefix    string
	getErr        error
	deleteBatches []int
	deleteErrors  []types.Error
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.lastPrefix = aws.ToString(in.Prefix)
	index := 0
	if in.ContinuationToken != nil {
		_, _ = fmt.Sscanf(aws.ToString(in.ContinuationToken), "%d", &index)
	}
	out := &s3.ListObjectsV2Output{}
	if index < len(f.pages) {
		for _, key := range f.pages[index] {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(7)})
		}
	}
	if index+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprint(index + 1))
	}
	return out, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(aws.ToString(in.Key)))}, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleteBatches = append(f.deleteBatches, len(in.Delete.Objects))
	return &s3.DeleteObjectsOutput{Errors: f.deleteErrors}, nil
}

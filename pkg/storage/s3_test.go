package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

type fakeObjectAPI struct {
	objects map[string]string
	putErr  error
	headErr error
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

func newFakeS3(publicURL string) (*S3, *fakeObjectAPI) {
	api := &fakeObjectAPI{objects: map[string]string{}}
	return &S3{api: api, presign: fakePresigner{}, bucket: "artifacts", publicURL: publicURL, logg: logger.Nop()}, api
}

func TestS3PutAndExists(t *testing.T) {
	store, api := newFakeS3("")
	ctx := context.Background()

	if err := store.Put(ctx, "exports/u/f/worksheet.pdf", strings.NewReader("pdf"), ContentTypePDF); err != nil {
		t.Fatalf("put: %v", err)
	}
	if api.objects["exports/u/f/worksheet.pdf"] != "pdf" {
		t.Fatalf("object not stored")
	}
	ok, err := store.Exists(ctx, "exports/u/f/worksheet.pdf")
	if err != nil || !ok {
		t.Fatalf("expected exists, ok=%v err=%v", ok, err)
	}
	ok, err = store.Exists(ctx, "exports/u/f/missing.pdf")
	if err != nil || ok {
		t.Fatalf("expected missing, ok=%v err=%v", ok, err)
	}
}

func TestS3URL(t *testing.T) {
	for _, base := range []string{"https://cdn.example.com", "https://cdn.example.com/", "https://cdn.example.com//"} {
		public, _ := newFakeS3(base)
		url, err := public.URL(context.Background(), "a/b.pdf")
		if err != nil || url != "https://cdn.example.com/a/b.pdf" {
			t.Fatalf("base %q: unexpected public url %q err=%v", base, url, err)
		}
	}

	private, _ := newFakeS3("")
	url, err := private.URL(context.Background(), "a/b.pdf")
	if err != nil || !strings.HasPrefix(url, "https://signed.example/artifacts/a/b.pdf") {
		t.Fatalf("unexpected presigned url %q err=%v", url, err)
	}
}

func TestS3ErrorMapping(t *testing.T) {
	store, api := newFakeS3("")
	api.headErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}

	_, err := store.Exists(context.Background(), "a/b.pdf")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}

	api.putErr = &smithy.GenericAPIError{Code: "NoSuchKey"}
	if err := store.Put(context.Background(), "a/b.pdf", strings.NewReader("x"), ContentTypePDF); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	api.putErr = errors.New("connection reset")
	err = store.Put(context.Background(), "a/b.pdf", strings.NewReader("x"), ContentTypePDF)
	var storageErr *Error
	if !errors.As(err, &storageErr) || storageErr.Op != "put" {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestNewS3RequiresCredentials(t *testing.T) {
	_, err := NewS3(context.Background(), config.StorageConfig{Provider: config.StorageProviderS3, Bucket: "b"}, nil)
	if err == nil {
		t.Fatalf("expected missing credentials error")
	}
}

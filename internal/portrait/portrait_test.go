package portrait

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	delete(f.objects, bucket+"/"+object)
	return nil
}

func TestUploadStoresUnderCharacterPrefix(t *testing.T) {
	objects := newFakeObjects()
	svc := NewService(objects, "portraits", "http://cdn.local/")
	if err := svc.ensureBucket(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !objects.buckets["portraits"] {
		t.Fatal("bucket was not created")
	}

	body := []byte("\x89PNG fake")
	uri, err := svc.Upload(context.Background(), "user-1", "chr_1", "image/png; charset=binary", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	prefix := "http://cdn.local/portraits/user-1/chr_1/"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, ".png") {
		t.Fatalf("Upload() uri = %q", uri)
	}
	key := "portraits/" + strings.TrimPrefix(uri, "http://cdn.local/portraits/")
	if !bytes.Equal(objects.objects[key], body) || objects.types[key] != "image/png" {
		t.Fatalf("stored object %q = %q (%s)", key, objects.objects[key], objects.types[key])
	}

	if err := svc.Remove(context.Background(), uri); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := objects.objects[key]; ok {
		t.Fatal("object still present after Remove")
	}
	if err := svc.Remove(context.Background(), "https://elsewhere/x.png"); err != nil {
		t.Fatalf("Remove(foreign) error = %v", err)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	svc := NewService(newFakeObjects(), "portraits", "http://cdn.local")
	tests := []struct {
		name        string
		contentType string
		size        int64
		want        error
	}{
		{name: "text", contentType: "text/plain", size: 10, want: ErrUnsupportedType},
		{name: "empty", contentType: "image/jpeg", size: 0, want: ErrEmpty},
		{name: "huge", contentType: "image/jpeg", size: MaxBytes + 1, want: ErrTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), "u", "c", tc.contentType, strings.NewReader("x"), tc.size)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Upload() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUploadWrapsStoreFailure(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("boom")
	svc := NewService(objects, "portraits", "http://cdn.local")
	if _, err := svc.Upload(context.Background(), "u", "c", "image/webp", strings.NewReader("x"), 1); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Upload() error = %v", err)
	}
}

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 is a minimal path-style S3 endpoint covering the calls S3Store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path-style: /<bucket>/<key>
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil
	}

	obj, exists := f.objects[key]
	objectHeader := func() http.Header {
		return http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(obj.body))},
			"Content-Type":   {obj.contentType},
			"ETag":           {`"etag-1"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
	}
	notFound := `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`

	switch req.Method {
	case http.MethodHead:
		if !exists {
			return respond(http.StatusNotFound, "", nil), nil
		}
		return respond(http.StatusOK, "", objectHeader()), nil
	case http.MethodGet:
		if !exists {
			return respond(http.StatusNotFound, notFound, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: objectHeader()}, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeAWSChunked(body); ok {
			body = dec
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, "", http.Header{"ETag": {`"etag-1"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

// decodeAWSChunked unwraps a single-chunk aws-chunked payload.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sizeHex, _, _ := strings.Cut(parts[0], ";")
	var size int
	if _, err := fmt.Sscanf(sizeHex, "%x", &size); err != nil || size != len(parts[1]) {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store := newS3StoreFromConfig(awsCfg, S3Config{Bucket: "exports", Endpoint: "https://s3.test.local", PathStyle: true},
		func(o *s3.Options) { o.HTTPClient = &http.Client{Transport: fake} })
	return store, fake
}

func TestS3Store_PutGetListDelete(t *testing.T) {
	store, fake := newFakeS3Store(t)
	ctx := context.Background()

	info, err := store.Put(ctx, "omop/r1/person.tsv", bytes.NewReader([]byte("person_id\n7\n")), PutOptions{ContentType: "text/tab-separated-values"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("person_id\n7\n")) || info.ETag != "etag-1" {
		t.Errorf("unexpected info %+v", info)
	}
	if string(fake.objects["omop/r1/person.tsv"].body) != "person_id\n7\n" {
		t.Errorf("unexpected stored body %q", fake.objects["omop/r1/person.tsv"].body)
	}

	_, rc, err := store.Get(ctx, "omop/r1/person.tsv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "person_id\n7\n" {
		t.Errorf("unexpected body %q", body)
	}

	_, _ = store.Put(ctx, "omop/r1/note.tsv", bytes.NewReader([]byte("n")), PutOptions{})
	_, _ = store.Put(ctx, "omop/r2/note.tsv", bytes.NewReader([]byte("n")), PutOptions{})
	items, err := store.List(ctx, "omop/r1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].Key != "omop/r1/note.tsv" {
		t.Errorf("unexpected listing %+v", items)
	}

	if err := store.Delete(ctx, "omop/r1/note.tsv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "omop/r1/note.tsv"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("second Delete: expected ErrBlobNotFound, got %v", err)
	}
}

func TestS3Store_GetMissing(t *testing.T) {
	store, _ := newFakeS3Store(t)
	if _, _, err := store.Get(context.Background(), "nope.tsv"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestS3Store_PresignURL(t *testing.T) {
	store, _ := newFakeS3Store(t)
	raw, err := store.PresignURL(context.Background(), "omop/r1/person.tsv", 48*time.Hour)
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "s3.test.local" || u.Path != "/exports/omop/r1/person.tsv" {
		t.Errorf("unexpected presigned url %s", raw)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "172800" {
		t.Errorf("expected 48h expiry, got %q", got)
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBody = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>oem</Name>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>20201124_block_25.tar</Key><Size>3</Size></Contents>
  <Contents><Key>12345678901234567890.oem</Key><Size>3</Size></Contents>
</ListBucketResult>`

const noSuchKeyBody = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// fakeObjectStore answers path-style ListObjectsV2 and GetObject requests.
func fakeObjectStore(t *testing.T, objects map[string]string, failList bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/oem")
		key = strings.TrimPrefix(key, "/")
		if key == "" {
			if failList {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(listBody))
			return
		}
		body, ok := objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(noSuchKeyBody))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestS3Bucket(t *testing.T, endpoint string) *S3Bucket {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Bucket = "oem"
	cfg.Endpoint = endpoint
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"
	cfg.MaxAttempts = 1
	b, err := NewS3Bucket(context.Background(), cfg, nil)
	require.NoError(t, err)
	return b
}

func TestS3BucketListAndDownload(t *testing.T) {
	srv := fakeObjectStore(t, map[string]string{"20201124_block_25.tar": "tar"}, false)
	b := newTestS3Bucket(t, srv.URL)

	assert.Equal(t, "oem", b.Name())
	assert.Equal(t, []string{"20201124_block_25.tar", "12345678901234567890.oem"}, b.ListNames(context.Background()))

	data, ok := b.Download(context.Background(), "20201124_block_25.tar")
	require.True(t, ok)
	assert.Equal(t, "tar", string(data))
}

func TestS3BucketDegradesOnFailure(t *testing.T) {
	srv := fakeObjectStore(t, nil, true)
	b := newTestS3Bucket(t, srv.URL)

	assert.Empty(t, b.ListNames(context.Background()))

	data, ok := b.Download(context.Background(), "missing.tar")
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestS3BucketUnreachableEndpoint(t *testing.T) {
	srv := fakeObjectStore(t, nil, false)
	url := srv.URL
	srv.Close()

	b := newTestS3Bucket(t, url)
	assert.Empty(t, b.ListNames(context.Background()))
	_, ok := b.Download(context.Background(), "x")
	assert.False(t, ok)
}

func TestNewS3BucketRequiresName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bucket = ""
	_, err := NewS3Bucket(context.Background(), cfg, nil)
	assert.Error(t, err)
}

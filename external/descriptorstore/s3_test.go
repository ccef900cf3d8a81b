package descriptorstore_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datopian/flowmanager/external/descriptorstore"
)

const testBucket = "flowmanager-test"

// testStore returns a Store connected to a test MinIO instance. It skips
// the test if S3_ENDPOINT is not set, and cleans the bucket first.
func testStore(t *testing.T) *descriptorstore.Store {
	t.Helper()

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set, skipping integration test")
	}
	accessKey := os.Getenv("S3_ACCESS_KEY")
	if accessKey == "" {
		t.Skip("S3_ACCESS_KEY not set, skipping integration test")
	}
	secretKey := os.Getenv("S3_SECRET_KEY")
	if secretKey == "" {
		t.Skip("S3_SECRET_KEY not set, skipping integration test")
	}

	ctx := context.Background()
	store, err := descriptorstore.New(ctx, descriptorstore.Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    testBucket,
		UseSSL:    false,
	})
	if err != nil {
		t.Fatalf("create descriptor store: %v", err)
	}

	cleanBucket(t, endpoint, accessKey, secretKey)
	return store
}

func cleanBucket(t *testing.T, endpoint, accessKey, secretKey string) {
	t.Helper()

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("create minio client for cleanup: %v", err)
	}

	ctx := context.Background()
	objects := client.ListObjects(ctx, testBucket, minio.ListObjectsOptions{Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			t.Fatalf("list objects for cleanup: %v", obj.Err)
		}
		if err := client.RemoveObject(ctx, testBucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			t.Fatalf("remove object %s: %v", obj.Key, err)
		}
	}
}

func putDescriptor(t *testing.T, endpoint, accessKey, secretKey, flowID, body string) {
	t.Helper()

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.PutObject(ctx, testBucket, flowID+"/datapackage.json", strings.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: "application/json"})
	require.NoError(t, err)
}

func TestStore_GetDescriptor_MissingObjectReturnsNilNotError(t *testing.T) {
	store := testStore(t)

	doc, err := store.GetDescriptor(context.Background(), "owner/ds/no-such-flow")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestStore_GetDescriptor_ReadsWrittenDocument(t *testing.T) {
	store := testStore(t)
	endpoint := os.Getenv("S3_ENDPOINT")
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")

	putDescriptor(t, endpoint, accessKey, secretKey, "owner/ds/1", `{"name":"ds","resources":[]}`)

	doc, err := store.GetDescriptor(context.Background(), "owner/ds/1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ds", doc["name"])
}

func TestStore_GetDescriptor_CancelledContextReturnsError(t *testing.T) {
	store := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetDescriptor(ctx, "owner/ds/1")
	assert.Error(t, err)
}

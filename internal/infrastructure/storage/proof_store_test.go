package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/config"
)

// fakeS3 answers HEAD requests for a fixed set of path-style keys
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]bool
	status  int
	seen    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, r.Method+" "+r.URL.Path)
	switch {
	case f.status != 0:
		w.WriteHeader(f.status)
	case r.Method == http.MethodHead && f.objects[r.URL.Path]:
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T, fake *fakeS3) *S3ProofStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := NewS3ProofStore(context.Background(), config.StorageConfig{
		Bucket:          "proofs",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
		KeyPrefix:       "/payment-proofs/",
	})
	require.NoError(t, err)
	return store
}

func TestNewS3ProofStore_RequiresBucket(t *testing.T) {
	_, err := NewS3ProofStore(context.Background(), config.StorageConfig{})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	store := newTestStore(t, &fakeS3{})
	tenantID := uuid.MustParse("7f1c0a52-4a43-4f58-9d7a-3c1a2b0e9d11")
	assert.Equal(t, "payment-proofs/7f1c0a52-4a43-4f58-9d7a-3c1a2b0e9d11/receipt.pdf", store.Key(tenantID, "receipt.pdf"))
}

func TestVerifyProof(t *testing.T) {
	tenantID := uuid.New()
	other := uuid.New()
	fake := &fakeS3{objects: map[string]bool{
		"/proofs/payment-proofs/" + tenantID.String() + "/receipt.pdf": true,
	}}
	store := newTestStore(t, fake)
	ctx := context.Background()

	require.NoError(t, store.VerifyProof(ctx, tenantID, "receipt.pdf"))

	err := store.VerifyProof(ctx, other, "receipt.pdf")
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "PROOF_NOT_FOUND", de.Code)

	err = store.VerifyProof(ctx, tenantID, "../"+other.String()+"/receipt.pdf")
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "INVALID_FILE_ID", de.Code)
	assert.Len(t, fake.seen, 2, "malformed IDs never reach storage")
}

func TestVerifyProof_StorageFailure(t *testing.T) {
	store := newTestStore(t, &fakeS3{status: http.StatusForbidden})
	err := store.VerifyProof(context.Background(), uuid.New(), "receipt.pdf")
	require.Error(t, err)
	var de *shared.DomainError
	assert.False(t, errors.As(err, &de))
}

func TestPing(t *testing.T) {
	fake := &fakeS3{objects: map[string]bool{"/proofs": true}}
	store := newTestStore(t, fake)
	require.NoError(t, store.Ping(context.Background()))

	fake.status = http.StatusForbidden
	assert.Error(t, store.Ping(context.Background()))
}

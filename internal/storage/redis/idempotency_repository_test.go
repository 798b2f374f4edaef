package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

func openRedisForIntegrationTest(t *testing.T) *IdempotencyRepository {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("ERP_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := Open(ctx, addr)
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewIdempotencyRepository(client)
}

func TestRecordCodecRoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	record := domain.IdempotencyRecord{
		Key:          "k",
		RequestHash:  "h",
		ResponseBody: []byte(`{"id":"o-1"}`),
		StatusCode:   200,
		Status:       domain.IdempotencyStatusDone,
		TTLAt:        now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	raw, err := encodeRecord(record)
	require.NoError(t, err)

	decoded, err := decodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestDecodeRecordRejectsUnknownStatus(t *testing.T) {
	_, err := decodeRecord([]byte(`{"key":"k","status":"weird"}`))
	require.Error(t, err)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "idem:abc", redisKey("abc"))
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	repo := NewIdempotencyRepository(nil)
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, " ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	_, err = repo.CreateProcessing(ctx, "key", "", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	_, err = repo.Get(ctx, "")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	require.ErrorIs(t, repo.MarkDone(ctx, "", nil, 200), domain.ErrIdempotencyKeyRequired)

	removed, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestIdempotencyRepository_RedisFlow(t *testing.T) {
	repo := openRedisForIntegrationTest(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%s", uuid.NewString())
	ttlAt := time.Now().UTC().Add(time.Minute)

	record, err := repo.CreateProcessing(ctx, key, "hash-1", ttlAt)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, record.Status)

	_, err = repo.CreateProcessing(ctx, key, "hash-1", ttlAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	_, err = repo.CreateProcessing(ctx, key, "hash-2", ttlAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, key, []byte(`{"ok":true}`), 200))

	stored, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, stored.Status)
	assert.Equal(t, 200, stored.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(stored.ResponseBody))

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-"+key, nil, 500), domain.ErrIdempotencyKeyNotFound)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// keyIdempotency: idem:{key} -> JSON-запись IdempotencyRecord.
const keyIdempotency = "idem:%s"

// IdempotencyRepository хранит ключи идемпотентности в Redis. Срок жизни
// задаётся TTL ключа, поэтому истёкшие записи Redis удаляет сам.
type IdempotencyRepository struct {
	client goredis.Cmdable
}

// NewIdempotencyRepository создаёт репозиторий поверх клиента Redis.
func NewIdempotencyRepository(client goredis.Cmdable) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

type idempotencyEntry struct {
	Key          string `json:"key"`
	RequestHash  string `json:"request_hash"`
	ResponseBody []byte `json:"response_body,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	Status       string `json:"status"`
	TTLAt        int64  `json:"ttl_at"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency ttl must be in the future")
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := r.client.SetNX(ctx, redisKey(key), payload, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis setnx idempotency key: %w", err)
	}
	if created {
		return record, nil
	}

	existing, err := r.get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			// Ключ истёк между SETNX и GET.
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.get(ctx, key)
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, statusCode)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, statusCode)
}

// DeleteExpired ничего не делает: истёкшие ключи Redis удаляет по TTL.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := r.get(ctx, key)
	if err != nil {
		return err
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.StatusCode = statusCode
	record.UpdatedAt = time.Now().UTC()

	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	// XX + KEEPTTL: запись обновляется, только пока ключ жив, и срок не сдвигается.
	err = r.client.SetArgs(ctx, redisKey(key), payload, goredis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, goredis.Nil) {
		return domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("redis update idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	raw, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis get idempotency key: %w", err)
	}
	return decodeRecord(raw)
}

func redisKey(key string) string {
	return fmt.Sprintf(keyIdempotency, key)
}

func encodeRecord(record domain.IdempotencyRecord) ([]byte, error) {
	payload, err := json.Marshal(idempotencyEntry{
		Key:          record.Key,
		RequestHash:  record.RequestHash,
		ResponseBody: record.ResponseBody,
		StatusCode:   record.StatusCode,
		Status:       string(record.Status),
		TTLAt:        record.TTLAt.UnixNano(),
		CreatedAt:    record.CreatedAt.UnixNano(),
		UpdatedAt:    record.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal idempotency record: %w", err)
	}
	return payload, nil
}

func decodeRecord(raw []byte) (domain.IdempotencyRecord, error) {
	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("unmarshal idempotency record: %w", err)
	}

	status := domain.IdempotencyStatus(entry.Status)
	if !status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unexpected idempotency status %q", entry.Status)
	}

	return domain.IdempotencyRecord{
		Key:          entry.Key,
		RequestHash:  entry.RequestHash,
		ResponseBody: entry.ResponseBody,
		StatusCode:   entry.StatusCode,
		Status:       status,
		TTLAt:        time.Unix(0, entry.TTLAt).UTC(),
		CreatedAt:    time.Unix(0, entry.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, entry.UpdatedAt).UTC(),
	}, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)

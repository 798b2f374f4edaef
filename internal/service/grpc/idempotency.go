package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

const idempotencyKeyHeader = "idempotency-key"

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// idempotent оборачивает мутирующий вызов: повтор с тем же ключом и телом
// получает сохранённый ответ, тот же ключ с другим телом, AlreadyExists.
type idempotent struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

func withIdempotency[Resp any](
	ctx context.Context,
	idem idempotent,
	method string,
	req any,
	handler func(context.Context) (*Resp, error),
) (*Resp, error) {
	if idem.repo == nil {
		return handler(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}

	reqHash, err := buildRequestHash(method, req)
	if err != nil {
		idem.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	ttl := idem.ttl
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}

	record, err := idem.repo.CreateProcessing(ctx, key, reqHash, time.Now().UTC().Add(ttl))
	if err != nil {
		return replay[Resp](idem, err, record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		idem.storeFailure(ctx, key, runErr)
		return nil, runErr
	}

	if err := idem.storeSuccess(ctx, key, resp); err != nil {
		idem.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func replay[Resp any](idem idempotent, createErr error, record domain.IdempotencyRecord) (*Resp, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := new(Resp)
			if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
				idem.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	case domain.IsValidation(createErr), errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		return nil, status.Error(codes.InvalidArgument, createErr.Error())
	default:
		idem.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (i idempotent) storeSuccess(ctx context.Context, key string, resp any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.repo.MarkDone(ctx, key, data, int(codes.OK))
}

func (i idempotent) storeFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := i.repo.MarkFailed(ctx, key, payload, int(code)); err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func decodeFailure(record domain.IdempotencyRecord) error {
	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCode(int(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if code, ok := grpcCode(record.StatusCode); ok && code != codes.OK {
		return status.Error(code, "previous request with the same idempotency key failed")
	}
	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCode(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // range checked above.
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(idempotencyKeyHeader); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

func buildRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{':'})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/memory"
)

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	order := newOrder("order-1", "user-1", time.Now().UTC())

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	dup := newOrder("order-2", "user-1", time.Now().UTC())
	dup.OrderNumber = order.OrderNumber
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrOrderNumberConflict) {
		t.Fatalf("expected ErrOrderNumberConflict, got %v", err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByUserPaginates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		order := newOrder(fmt.Sprintf("order-%d", i), "user-1", base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if err := repo.Create(ctx, newOrder("other", "user-2", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, total, err := repo.ListByUser(ctx, "user-1", domain.PageRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 5 || len(first) != 2 || first[0].ID != "order-4" || first[1].ID != "order-3" {
		t.Fatalf("unexpected first page: total=%d orders=%+v", total, first)
	}

	last, _, err := repo.ListByUser(ctx, "user-1", domain.PageRequest{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(last) != 1 || last[0].ID != "order-0" {
		t.Fatalf("unexpected last page: %+v", last)
	}

	beyond, total, err := repo.ListByUser(ctx, "user-1", domain.PageRequest{Page: 9, PageSize: 2})
	if err != nil || len(beyond) != 0 || total != 5 {
		t.Fatalf("unexpected page beyond range: %+v total=%d err=%v", beyond, total, err)
	}

	for _, req := range []domain.PageRequest{
		{Page: math.MaxInt, PageSize: 2},
		domain.PageRequest{Page: math.MaxInt, PageSize: 2}.Normalize(),
		{Page: 3, PageSize: math.MaxInt},
		{Page: 1, PageSize: 0},
	} {
		got, total, err := repo.ListByUser(ctx, "user-1", req)
		if err != nil || len(got) != 0 || total != 5 {
			t.Fatalf("page %+v: orders=%+v total=%d err=%v", req, got, total, err)
		}
	}
}

func TestOrderRepository_UpdateStatusAndNumbers(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	order := newOrder("order-1", "user-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updatedAt := order.UpdatedAt.Add(time.Minute)
	if err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped, updatedAt); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	got, _ := repo.Get(ctx, order.ID)
	if got.Status != domain.OrderStatusShipped || !got.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("unexpected order after update: %+v", got)
	}
	if err := repo.UpdateStatus(ctx, "missing", domain.OrderStatusShipped, updatedAt); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	n1, _ := repo.NextOrderNumber(ctx, at)
	n2, _ := repo.NextOrderNumber(ctx, at)
	if n1 == n2 || !strings.HasPrefix(n1, "ORD-20260501-") {
		t.Fatalf("unexpected order numbers %q %q", n1, n2)
	}
}

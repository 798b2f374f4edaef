package domain

import (
	"math"
	"testing"
)

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		in   PageRequest
		want PageRequest
	}{
		{in: PageRequest{}, want: PageRequest{Page: 1, PageSize: 10}},
		{in: PageRequest{Page: -3, PageSize: 5}, want: PageRequest{Page: 1, PageSize: 5}},
		{in: PageRequest{Page: 2, PageSize: 1000}, want: PageRequest{Page: 2, PageSize: MaxPageSize}},
	}
	for _, tc := range tests {
		if got := tc.in.Normalize(); got != tc.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	if got := (PageRequest{Page: 3, PageSize: 10}).Offset(); got != 20 {
		t.Fatalf("offset = %d, want 20", got)
	}
}

func TestPageRequestOffsetExtremePage(t *testing.T) {
	tests := []PageRequest{
		{Page: math.MaxInt, PageSize: 10},
		{Page: math.MaxInt, PageSize: MaxPageSize},
		{Page: math.MaxInt - 1, PageSize: 1},
		{Page: math.MaxInt/10 + 2, PageSize: 10},
	}
	for _, tc := range tests {
		norm := tc.Normalize()
		offset := norm.Offset()
		if offset < 0 {
			t.Errorf("Normalize(%+v).Offset() = %d, must be non-negative", tc, offset)
		}
		if offset > math.MaxInt-norm.PageSize {
			t.Errorf("Normalize(%+v): offset %d + page size %d overflows", tc, offset, norm.PageSize)
		}
		if norm.Page < 1 {
			t.Errorf("Normalize(%+v).Page = %d", tc, norm.Page)
		}
	}

	// Без Normalize смещение насыщается, а не уходит в минус.
	if got := (PageRequest{Page: math.MaxInt, PageSize: 10}).Offset(); got != math.MaxInt {
		t.Fatalf("raw offset = %d, want saturated MaxInt", got)
	}
	if got := (PageRequest{Page: -5, PageSize: 10}).Offset(); got != 0 {
		t.Fatalf("offset for negative page = %d, want 0", got)
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{total: 0, size: 10, want: 0},
		{total: 1, size: 10, want: 1},
		{total: 10, size: 10, want: 1},
		{total: 11, size: 10, want: 2},
		{total: 25, size: 5, want: 5},
	}
	for _, tc := range tests {
		page := NewPage[int](nil, tc.total, PageRequest{Page: 1, PageSize: tc.size})
		if page.PageCount != tc.want {
			t.Errorf("total=%d size=%d: page count %d, want %d", tc.total, tc.size, page.PageCount, tc.want)
		}
		if page.Data == nil {
			t.Errorf("data must be non-nil")
		}
	}
}

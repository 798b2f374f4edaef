package domain

import "math"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest задаёт 1-базовую страницу выборки.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
// Номер страницы ограничен так, чтобы смещение и его сумма с PageSize помещались в int.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / p.PageSize; p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}

// Offset возвращает число пропускаемых записей.
// Для ненормализованного запроса результат не бывает отрицательным: при переполнении он насыщается.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Page: страница результатов с метаданными пагинации.
type Page[T any] struct {
	Data      []T
	Total     int
	Page      int
	PageSize  int
	PageCount int
}

// NewPage собирает страницу; PageCount = ceil(total / pageSize).
func NewPage[T any](data []T, total int, req PageRequest) Page[T] {
	pageCount := 0
	if req.PageSize > 0 {
		pageCount = (total + req.PageSize - 1) / req.PageSize
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:      data,
		Total:     total,
		Page:      req.Page,
		PageSize:  req.PageSize,
		PageCount: pageCount,
	}
}

package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/observability"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

type PageResult[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// SortSpec names a sort key from a repository's allowlist. Unknown keys fall
// back to createdAt; anything but "asc" sorts descending.
type SortSpec struct {
	By    string
	Order string
}

func (p PageRequest) clamp() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// listPage counts the filtered query, then loads one ordered page of it. id
// breaks ties so pages never overlap when the sort column repeats.
func listPage[T any](ctx context.Context, entity string, q *gorm.DB, req PageRequest, sort SortSpec, columns map[string]string) (PageResult[T], error) {
	req = req.clamp()
	out := PageResult[T]{Page: req.Page, PageSize: req.PageSize}

	err := q.Count(&out.Total).Error
	if err == nil {
		column, ok := columns[sort.By]
		if !ok {
			column = columns["createdAt"]
		}
		dir := " desc"
		if strings.EqualFold(sort.Order, "asc") {
			dir = " asc"
		}
		err = q.Order(column + dir).Order("id" + dir).
			Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
			Find(&out.Items).Error
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, entity, "list_paged", "error")
		return PageResult[T]{}, err
	}
	if out.Total > 0 {
		out.TotalPages = int((out.Total + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	observability.RecordRepositoryOperation(ctx, entity, "list_paged", "success")
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term)))
}

// matchAny adds a case-insensitive substring match over columns.
func matchAny(q *gorm.DB, term string, columns ...string) *gorm.DB {
	pattern := "%" + escapeLike(term) + "%"
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		clauses[i] = "LOWER(" + c + `) LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	return q.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

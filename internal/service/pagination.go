package service

import "github.com/mediagallery/gallery-api/internal/repository"

type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

func paginationOf[T any](page repository.PageResult[T]) Pagination {
	return Pagination{
		CurrentPage:  page.Page,
		TotalPages:   page.TotalPages,
		TotalItems:   page.Total,
		ItemsPerPage: page.PageSize,
	}
}

package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"louyass/core"
)

// maxPage caps the page parameter so offsets stay small
const maxPage = 1000000

// PaginationParams holds pagination query parameters
type PaginationParams struct {
	Page  int `json:"page"`  // 1-based page number
	Limit int `json:"limit"` // Items per page
}

// PaginationResponse is a generic paginated response wrapper
type PaginationResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// ParsePaginationParams extracts page/limit from the request. Invalid values
// fall back to the defaults.
func ParsePaginationParams(r *http.Request, defaultLimit int, maxLimit int) PaginationParams {
	page := 1
	limit := defaultLimit

	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = min(parsed, maxPage)
		}
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	return PaginationParams{
		Page:  page,
		Limit: limit,
	}
}

// CalculateOffset converts page and limit to a SQL offset
func (p PaginationParams) CalculateOffset() int {
	pageMinusOne := p.Page - 1
	if pageMinusOne <= 0 {
		return 0
	}

	// Check for potential overflow before multiplication
	if p.Limit > 0 && pageMinusOne > math.MaxInt/p.Limit {
		return math.MaxInt
	}

	return pageMinusOne * p.Limit
}

// NewPaginationResponse creates a paginated response
func NewPaginationResponse(items interface{}, total int64, page int, limit int) PaginationResponse {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	if totalPages < 1 {
		totalPages = 1
	}

	return PaginationResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

var errInvalidWindow = errors.New("skip et limit doivent être des entiers")

// parseSkipLimit reads skip/limit for the list endpoints. page, when given
// without skip, is converted to an offset. Bounds are checked by the services.
func parseSkipLimit(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	limit = core.DefaultPageLimit
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, errInvalidWindow
		}
	}
	if raw := q.Get("skip"); raw != "" {
		if skip, err = strconv.Atoi(raw); err != nil {
			return 0, 0, errInvalidWindow
		}
		return skip, limit, nil
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errInvalidWindow
		}
		skip = PaginationParams{Page: min(page, maxPage), Limit: limit}.CalculateOffset()
	}
	return skip, limit, nil
}

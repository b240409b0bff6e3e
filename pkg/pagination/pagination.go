package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultPerPage is used when a request opts into paging without a size.
	DefaultPerPage = 20
	// MaxPerPage caps the page size a caller may request.
	MaxPerPage = 100
)

// Params holds pagination parameters extracted from query strings. A zero
// Page means the caller did not ask for paging and gets the full result set.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Windowed reports whether the caller asked for a bounded page.
func (p Params) Windowed() bool {
	return p.Page > 0
}

// Offset returns the row offset for the requested page.
func (p Params) Offset() int {
	if !p.Windowed() {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// FromRequest extracts pagination parameters from an HTTP request. Unlike a
// lenient parser that silently falls back to defaults, malformed values are
// rejected so callers get a 400 instead of a surprising full listing.
func FromRequest(r *http.Request) (Params, error) {
	var p Params

	rawPage := r.URL.Query().Get("page")
	if rawPage == "" {
		return p, nil
	}

	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 1 {
		return Params{}, fmt.Errorf("page must be a positive integer")
	}
	p.Page = page
	p.PerPage = DefaultPerPage

	if rawPerPage := r.URL.Query().Get("per_page"); rawPerPage != "" {
		perPage, err := strconv.Atoi(rawPerPage)
		if err != nil || perPage < 1 || perPage > MaxPerPage {
			return Params{}, fmt.Errorf("per_page must be an integer between 1 and %d", MaxPerPage)
		}
		p.PerPage = perPage
	}

	return p, nil
}

// Meta describes the window of a paginated response.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewMeta computes response metadata for a windowed listing.
func NewMeta(totalCount int, params Params) Meta {
	totalPages := 0
	if params.PerPage > 0 {
		totalPages = totalCount / params.PerPage
		if totalCount%params.PerPage > 0 {
			totalPages++
		}
	}

	return Meta{
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}

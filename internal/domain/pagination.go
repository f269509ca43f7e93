package domain

import "math"

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type ListUsersQuery struct {
	Search string
	Page   int
	Limit  int
}

// Normalize replaces a missing or non-positive page with 1 and clamps limit
// to [1, MaxPageLimit], defaulting to DefaultPageLimit. Page is capped so
// that Page*Limit fits in an int.
func (q ListUsersQuery) Normalize() ListUsersQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if maxPage := math.MaxInt / q.Limit; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}

func (q ListUsersQuery) Offset() int {
	if q.Page > 1 {
		return (q.Page - 1) * q.Limit
	}
	return 0
}

type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type UserPage struct {
	Items      []*UserPublic `json:"items"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	Next       *PageRef      `json:"next,omitempty"`
	Previous   *PageRef      `json:"previous,omitempty"`
}

// NewUserPage computes page links for a normalized query that matched total
// users in all.
func NewUserPage(q ListUsersQuery, items []*UserPublic, total int) *UserPage {
	if items == nil {
		items = []*UserPublic{}
	}

	totalPages := (total + q.Limit - 1) / q.Limit
	if totalPages < 1 {
		totalPages = 1
	}

	page := &UserPage{
		Items:      items,
		Total:      total,
		TotalPages: totalPages,
	}

	if q.Offset()+q.Limit < total {
		page.Next = &PageRef{Page: q.Page + 1, Limit: q.Limit}
	}
	if q.Page > 1 {
		page.Previous = &PageRef{Page: q.Page - 1, Limit: q.Limit}
	}

	return page
}

package domain

import (
	"math"
	"testing"
)

func TestListUsersQueryNormalize(t *testing.T) {
	tests := []struct {
		name       string
		query      ListUsersQuery
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{name: "absent page and limit", query: ListUsersQuery{}, wantPage: 1, wantLimit: DefaultPageLimit, wantOffset: 0},
		{name: "negative page", query: ListUsersQuery{Page: -3, Limit: 5}, wantPage: 1, wantLimit: 5, wantOffset: 0},
		{name: "second page", query: ListUsersQuery{Page: 2, Limit: 10}, wantPage: 2, wantLimit: 10, wantOffset: 10},
		{name: "limit capped", query: ListUsersQuery{Page: 3, Limit: 1000}, wantPage: 3, wantLimit: MaxPageLimit, wantOffset: 2 * MaxPageLimit},
		{
			name:       "huge page capped",
			query:      ListUsersQuery{Page: math.MaxInt, Limit: MaxPageLimit},
			wantPage:   math.MaxInt / MaxPageLimit,
			wantLimit:  MaxPageLimit,
			wantOffset: (math.MaxInt/MaxPageLimit - 1) * MaxPageLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query.Normalize()

			if q.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", q.Page, tt.wantPage)
			}
			if q.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", q.Limit, tt.wantLimit)
			}
			if q.Offset() != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", q.Offset(), tt.wantOffset)
			}
		})
	}
}

func TestNewUserPage(t *testing.T) {
	tests := []struct {
		name           string
		query          ListUsersQuery
		total          int
		wantTotalPages int
		wantNext       *PageRef
		wantPrevious   *PageRef
	}{
		{
			name:           "middle page",
			query:          ListUsersQuery{Page: 2, Limit: 10},
			total:          25,
			wantTotalPages: 3,
			wantNext:       &PageRef{Page: 3, Limit: 10},
			wantPrevious:   &PageRef{Page: 1, Limit: 10},
		},
		{
			name:           "first page",
			query:          ListUsersQuery{Page: 1, Limit: 10},
			total:          25,
			wantTotalPages: 3,
			wantNext:       &PageRef{Page: 2, Limit: 10},
		},
		{
			name:           "last page",
			query:          ListUsersQuery{Page: 3, Limit: 10},
			total:          25,
			wantTotalPages: 3,
			wantPrevious:   &PageRef{Page: 2, Limit: 10},
		},
		{
			name:           "exact fit has no next",
			query:          ListUsersQuery{Page: 2, Limit: 10},
			total:          20,
			wantTotalPages: 2,
			wantPrevious:   &PageRef{Page: 1, Limit: 10},
		},
		{
			name:           "empty result still has one page",
			query:          ListUsersQuery{Page: 1, Limit: 10},
			total:          0,
			wantTotalPages: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := NewUserPage(tt.query, nil, tt.total)

			if page.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantTotalPages)
			}
			if page.Items == nil {
				t.Error("Items should be an empty slice, not nil")
			}
			assertPageRef(t, "Next", page.Next, tt.wantNext)
			assertPageRef(t, "Previous", page.Previous, tt.wantPrevious)
		})
	}
}

func assertPageRef(t *testing.T, name string, got, want *PageRef) {
	t.Helper()

	if want == nil {
		if got != nil {
			t.Errorf("%s = %+v, want nil", name, *got)
		}
		return
	}
	if got == nil {
		t.Errorf("%s = nil, want %+v", name, *want)
		return
	}
	if *got != *want {
		t.Errorf("%s = %+v, want %+v", name, *got, *want)
	}
}

func TestNewUserPageHugePage(t *testing.T) {
	q := ListUsersQuery{Page: 1 << 62, Limit: MaxPageLimit}.Normalize()

	if q.Offset() < 0 {
		t.Fatalf("Offset() = %d, want non-negative", q.Offset())
	}

	page := NewUserPage(q, nil, 5)
	if page.Next != nil {
		t.Errorf("Next = %+v, want nil past the last page", page.Next)
	}
	if page.Previous == nil || page.Previous.Page != q.Page-1 {
		t.Errorf("Previous = %+v, want page %d", page.Previous, q.Page-1)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
}

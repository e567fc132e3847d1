// Package pagination runs count-plus-page list queries and projects threads,
// users and communities into bounded-depth views.
package pagination

import (
	"context"
	"math"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortOrder orders list results by creation time.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ParseSort maps user input onto a SortOrder, defaulting to descending.
func ParseSort(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// Params are the inputs shared by every list operation.
type Params struct {
	PageNumber int
	PageSize   int
	Search     string
	Sort       SortOrder
}

// Normalize applies defaults and bounds: page 1, size 20 capped at 100,
// descending order. The page number is capped so Skip cannot overflow.
func (p Params) Normalize() Params {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / p.PageSize; p.PageNumber > maxPage {
		p.PageNumber = maxPage
	}
	if p.Sort != SortAsc {
		p.Sort = SortDesc
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Skip is the number of matches before the requested page.
func (p Params) Skip() int {
	n := p.Normalize()
	return (n.PageNumber - 1) * n.PageSize
}

// Page is one page of results and whether more matches follow it.
type Page[T any] struct {
	Items   []T  `json:"items"`
	HasNext bool `json:"has_next"`
}

// Map converts the items of a page, keeping HasNext.
func Map[T, U any](p Page[T], f func(T) U) Page[U] {
	out := Page[U]{Items: make([]U, 0, len(p.Items)), HasNext: p.HasNext}
	for _, item := range p.Items {
		out.Items = append(out.Items, f(item))
	}
	return out
}

// Run counts the rows matching query, then loads the requested page ordered
// by orderColumn with id as the tie-break. HasNext is true when matches
// remain past this page. Errors are returned as-is, never as an empty page.
func Run[T any](ctx context.Context, query *gorm.DB, p Params, orderColumn string) (Page[T], error) {
	p = p.Normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).WithContext(ctx).Count(&total).Error; err != nil {
		return Page[T]{}, err
	}

	items := make([]T, 0, p.PageSize)
	if total > 0 {
		desc := p.Sort == SortDesc
		err := query.Session(&gorm.Session{}).WithContext(ctx).
			Order(clause.OrderByColumn{Column: clause.Column{Name: orderColumn}, Desc: desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: tieBreakColumn(orderColumn)}, Desc: desc}).
			Offset(p.Skip()).
			Limit(p.PageSize).
			Find(&items).Error
		if err != nil {
			return Page[T]{}, err
		}
	}

	return Page[T]{
		Items:   items,
		HasNext: total > int64(p.Skip()+len(items)),
	}, nil
}

// tieBreakColumn qualifies id with orderColumn's table, if it has one.
func tieBreakColumn(orderColumn string) string {
	if i := strings.LastIndexByte(orderColumn, '.'); i > 0 {
		return orderColumn[:i] + ".id"
	}
	return "id"
}

// EscapeLike escapes LIKE wildcards so term matches literally.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// SearchScope filters to rows where any of columns contains term,
// case-insensitively. A blank term adds no filter.
func SearchScope(term string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" || len(columns) == 0 {
			return db
		}
		pattern := "%" + EscapeLike(strings.ToLower(term)) + "%"
		cond := db.Session(&gorm.Session{NewDB: true})
		for i, col := range columns {
			expr := "LOWER(" + col + `) LIKE ? ESCAPE '\'`
			if i == 0 {
				cond = cond.Where(expr, pattern)
			} else {
				cond = cond.Or(expr, pattern)
			}
		}
		return db.Where(cond)
	}
}

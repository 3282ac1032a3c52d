package engine

import "gamifyd/core"

// Page is a validated listing request. Sort must already be checked against
// the entity's sortable-field whitelist before it reaches a Store.
type Page struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	Sort      string `json:"sort"`
	Direction string `json:"direction"`
}

// DefaultPage matches the API defaults: first page, 20 items, newest first.
func DefaultPage() Page {
	return Page{Page: 1, Limit: 20, Sort: "createdAt", Direction: "desc"}
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// Normalize clamps out-of-range values to the defaults.
func (p Page) Normalize() Page {
	d := DefaultPage()
	if p.Page < 1 {
		p.Page = d.Page
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = d.Limit
	}
	if p.Sort == "" {
		p.Sort = d.Sort
	}
	if p.Direction != "asc" && p.Direction != "desc" {
		p.Direction = d.Direction
	}
	return p
}

// PageInfo is the pagination envelope returned by list operations.
type PageInfo struct {
	TotalDocs   int  `json:"total_docs"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	NextPage    *int `json:"next_page"`
	HasPrevPage bool `json:"has_prev_page"`
	PrevPage    *int `json:"prev_page"`
}

// NewPageInfo derives the envelope for a page of total matching documents.
func NewPageInfo(p Page, total int) PageInfo {
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	info := PageInfo{
		TotalDocs:  total,
		Limit:      p.Limit,
		Page:       p.Page,
		TotalPages: pages,
	}
	if pages > p.Page {
		next := p.Page + 1
		info.NextPage = &next
		info.HasNextPage = true
	}
	if p.Page > 1 {
		prev := p.Page - 1
		info.PrevPage = &prev
		info.HasPrevPage = true
	}
	return info
}

// sortable whitelists exposure per entity; requesting any other field is an
// invalid argument rather than an open-ended injection surface.
var sortableFields = map[string]map[string]struct{}{
	"user":      fieldSet("createdAt", "name", "xp", "level"),
	"team":      fieldSet("createdAt", "name"),
	"metric":    fieldSet("createdAt", "name"),
	"objective": fieldSet("createdAt", "name", "startDate", "endDate", "targetValue"),
	"badge":     fieldSet("createdAt", "name"),
	"reward":    fieldSet("createdAt", "name", "xpThreshold", "quantity"),
	"history":   fieldSet("createdAt", "value"),
}

func fieldSet(fields ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

// ValidatePage normalizes p and rejects sort fields outside the entity's
// whitelist.
func ValidatePage(entity string, p Page) (Page, error) {
	p = p.Normalize()
	allowed, ok := sortableFields[entity]
	if !ok {
		return Page{}, core.InvalidArgumentf("unknown entity %q", entity)
	}
	if _, ok := allowed[p.Sort]; !ok {
		return Page{}, core.InvalidArgumentf("cannot sort %s by %q", entity, p.Sort)
	}
	return p, nil
}

package storage

import "gorm.io/gorm"

// Page carries optional LIMIT/OFFSET values; nil fields are not applied.
type Page struct {
	Limit  *int
	Offset *int
}

// Apply adds the page bounds to query. The sqlite dialector renders a bare
// offset as LIMIT -1 OFFSET n.
func (p Page) Apply(query *gorm.DB) *gorm.DB {
	if p.Limit != nil {
		query = query.Limit(*p.Limit)
	}
	if p.Offset != nil {
		query = query.Offset(*p.Offset)
	}
	return query
}

package shared

// ListFilters carries common listing parameters for master data queries.
type ListFilters struct {
	Search     string
	CategoryID *int64
	IsActive   *bool
	SortBy     string
	SortDir    string
	Page       int
	Limit      int
}

// Offset returns the SQL offset implied by page/limit.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

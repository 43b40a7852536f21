package integration

// DefaultPageCap mirrors the strictest upstream pagination limit
const DefaultPageCap = 2000

// PageCursor tracks progress of a paginated fetch
type PageCursor struct {
	PageIndex     int
	PageSize      int
	ReportedTotal int
	Accumulated   int
	Complete      bool
}

// Limit is the number of records the fetch must accumulate
func (c PageCursor) Limit(maxRecords int) int {
	if c.ReportedTotal > maxRecords {
		return maxRecords
	}
	return c.ReportedTotal
}

// LastPage is the page index holding the limit-th record
func (c PageCursor) LastPage(maxRecords int) int {
	limit := c.Limit(maxRecords)
	if limit == 0 || c.PageSize <= 0 {
		return 1
	}
	return (limit + c.PageSize - 1) / c.PageSize
}

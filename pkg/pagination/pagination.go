// Package pagination provides page/size normalization and a generic
// paginated-fetch driver. The REST gateway's auxiliary label/unit/
// scenario/template lookups are paginated GET queries against an external
// vendor API, so this package is framework-agnostic rather than bound to an
// inbound HTTP request.
package pagination

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// NormalizePage clamps page to the smallest valid value (1-based).
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NormalizePageSize clamps pageSize to (0, MaxPageSize].
func NormalizePageSize(pageSize int) int {
	if pageSize < 1 {
		return DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// Offset returns the zero-based row offset for page/pageSize.
func Offset(page, pageSize int) int {
	return (NormalizePage(page) - 1) * NormalizePageSize(pageSize)
}

// Fetcher retrieves one 1-based page of size pageSize, returning the page's
// items and the total item count the server reports (0 if unknown).
type Fetcher[T any] func(page, pageSize int) (items []T, total int, err error)

// FetchAll drives fetch across consecutive pages until a short page is
// returned or the reported total has been reached, accumulating every item
// seen. Used by the REST channel to resolve vendor names to IDs without
// hand-rolling the same loop at every call site.
func FetchAll[T any](pageSize int, fetch Fetcher[T]) ([]T, error) {
	pageSize = NormalizePageSize(pageSize)
	var all []T
	for page := 1; ; page++ {
		items, total, err := fetch(page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
		if total > 0 && len(all) >= total {
			break
		}
	}
	return all, nil
}

package service

import (
	"sort"
	"strings"
	"time"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

func normalizePage(page int, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// sortEntries orders directories before files, then newest first, then by
// name so the order is stable across calls.
func sortEntries(items []model.TreeEntry) {
	sort.SliceStable(items, func(i int, j int) bool {
		left, right := items[i], items[j]
		if left.IsDir() != right.IsDir() {
			return left.IsDir()
		}
		if !left.ModifiedAt.Equal(right.ModifiedAt) {
			return left.ModifiedAt.After(right.ModifiedAt)
		}
		return strings.ToLower(left.Name) < strings.ToLower(right.Name)
	})
}

func paginate[T any](items []T, page int, pageSize int) ([]T, model.Meta) {
	page, pageSize = normalizePage(page, pageSize)

	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return items[start:end], model.NewMeta(page, pageSize, total)
}

// searchFilter is a validated SearchQuery.
type searchFilter struct {
	query      string
	extensions map[string]struct{}
	minSize    *int64
	maxSize    *int64
	from       time.Time
	to         time.Time
}

func newSearchFilter(query model.SearchQuery) (searchFilter, error) {
	filter := searchFilter{
		query:   strings.ToLower(strings.TrimSpace(query.Query)),
		minSize: query.MinSize,
		maxSize: query.MaxSize,
	}

	if filter.minSize != nil && *filter.minSize < 0 {
		return searchFilter{}, apierror.InvalidArgument("min_size cannot be negative", "")
	}
	if filter.maxSize != nil && *filter.maxSize < 0 {
		return searchFilter{}, apierror.InvalidArgument("max_size cannot be negative", "")
	}
	if filter.minSize != nil && filter.maxSize != nil && *filter.minSize > *filter.maxSize {
		return searchFilter{}, apierror.InvalidArgument("min_size is greater than max_size", "")
	}

	if query.From != nil {
		filter.from = *query.From
	}
	if query.To != nil {
		year, month, day := query.To.Date()
		filter.to = time.Date(year, month, day, 23, 59, 59, int(time.Second-time.Nanosecond), query.To.Location())
	}
	if !filter.from.IsZero() && !filter.to.IsZero() && filter.from.After(filter.to) {
		return searchFilter{}, apierror.InvalidArgument("from is after to", "")
	}

	for _, raw := range query.Extensions {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if filter.extensions == nil {
			filter.extensions = make(map[string]struct{})
		}
		filter.extensions[ext] = struct{}{}
	}

	return filter, nil
}

// matches applies every filter as a conjunction. rel is the entry path
// relative to the searched root. Extension and size filters only ever match
// files.
func (f searchFilter) matches(entry model.TreeEntry, rel string) bool {
	if f.query != "" &&
		!strings.Contains(strings.ToLower(entry.Name), f.query) &&
		!strings.Contains(strings.ToLower(rel), f.query) {
		return false
	}

	fileOnly := f.extensions != nil || f.minSize != nil || f.maxSize != nil
	if fileOnly && entry.IsDir() {
		return false
	}

	if f.extensions != nil {
		if _, ok := f.extensions[entry.Extension]; !ok {
			return false
		}
	}
	if f.minSize != nil && entry.Size < *f.minSize {
		return false
	}
	if f.maxSize != nil && entry.Size > *f.maxSize {
		return false
	}

	if !f.from.IsZero() && entry.ModifiedAt.Before(f.from) {
		return false
	}
	if !f.to.IsZero() && entry.ModifiedAt.After(f.to) {
		return false
	}

	return true
}

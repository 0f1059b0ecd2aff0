package catalog

import (
	"sort"
	"strconv"
	"strings"
)

// SortMode selects the ordering applied by Search.
type SortMode string

const (
	SortNone      SortMode = ""
	SortCheap     SortMode = "cheap"
	SortExpensive SortMode = "expensive"
	SortNew       SortMode = "new"
	SortMemory    SortMode = "memory"
)

// ParseSortMode maps user input to a SortMode. Unknown values map to SortNone.
func ParseSortMode(s string) SortMode {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortCheap, SortExpensive, SortNew, SortMemory:
		return m
	default:
		return SortNone
	}
}

// Search filters products by a case-insensitive text query and an exact model
// facet, then orders the result by mode. The query is matched as typed, so
// only the empty string matches everything. Models are compared trimmed, the
// same way Models lists them. The input slice is never modified; unknown
// modes keep catalog order.
func Search(products []Product, query, model string, mode SortMode) []Product {
	q := strings.ToLower(query)
	model = strings.TrimSpace(model)

	result := make([]Product, 0, len(products))
	for _, p := range products {
		if model != "" && strings.TrimSpace(p.Meta.Model) != model {
			continue
		}
		if q != "" && !strings.Contains(searchText(p), q) {
			continue
		}
		result = append(result, p)
	}

	switch mode {
	case SortCheap:
		sort.SliceStable(result, func(i, j int) bool { return result[i].Price < result[j].Price })
	case SortExpensive:
		sort.SliceStable(result, func(i, j int) bool { return result[i].Price > result[j].Price })
	case SortNew:
		sort.SliceStable(result, func(i, j int) bool { return result[i].UpdatedTS > result[j].UpdatedTS })
	case SortMemory:
		sort.SliceStable(result, func(i, j int) bool {
			return storageSize(result[i].Meta.Storage) < storageSize(result[j].Meta.Storage)
		})
	}
	return result
}

func searchText(p Product) string {
	var parts []string
	for _, s := range []string{p.Title, p.Meta.Model, p.Meta.Storage, p.Meta.Sim, p.Meta.Color} {
		if s != "" {
			parts = append(parts, strings.ToLower(s))
		}
	}
	return strings.Join(parts, " ")
}

// storageSize keeps the digits of the storage label; anything else counts as 0.
func storageSize(storage string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, storage)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

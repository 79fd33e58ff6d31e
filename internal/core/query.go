package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Categories returns the distinct normalized categories of the report's
// items in first-appearance order.
func Categories(report StructuredReport) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range report.Items {
		c := NormalizedCategory(item)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// NormalizedCategory returns the item's category upper-cased, or
// Uncategorized when it has none.
func NormalizedCategory(item Item) string {
	c := item[CategoryField]
	if c == "" {
		return Uncategorized
	}
	// Casers hold state; one per call keeps this safe across goroutines.
	return cases.Upper(language.Und).String(c)
}

// Filter returns the items matching searchTerm whose category is the one at
// categoryIndex. Index 0 (or any negative index) selects every category; an
// index past the last category selects nothing. Order is preserved.
func Filter(report StructuredReport, searchTerm string, categoryIndex int) []Item {
	if categoryIndex <= 0 {
		return FilterByCategory(report, searchTerm, "")
	}
	cats := Categories(report)
	if categoryIndex > len(cats) {
		return []Item{}
	}
	return FilterByCategory(report, searchTerm, cats[categoryIndex-1])
}

// FilterByCategory is Filter with the category given by its normalized
// label. An empty label selects every category.
func FilterByCategory(report StructuredReport, searchTerm, category string) []Item {
	out := make([]Item, 0, len(report.Items))
	needle := lower(searchTerm)
	for _, item := range report.Items {
		if searchTerm != "" && !itemContains(item, needle) {
			continue
		}
		if category != "" && NormalizedCategory(item) != category {
			continue
		}
		out = append(out, item)
	}
	return out
}

func itemContains(item Item, needle string) bool {
	for _, v := range item {
		if v != "" && strings.Contains(lower(v), needle) {
			return true
		}
	}
	return false
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

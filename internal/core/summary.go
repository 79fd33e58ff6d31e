package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPriceColumn is the header summarized when no column is configured.
const DefaultPriceColumn = "Price"

// Summary is the dashboard view of one report.
type Summary struct {
	FileName     string      `json:"fileName"`
	LatestUpdate time.Time   `json:"latestUpdate"`
	TotalItems   int         `json:"totalItems"`
	Categories   int         `json:"categories"`
	SpecialNotes int         `json:"specialNotes"`
	Price        *PriceStats `json:"price,omitempty"`
}

// PriceStats aggregates the parseable values of one price column.
type PriceStats struct {
	Column  string          `json:"column"`
	Count   int             `json:"count"`
	Skipped int             `json:"skipped"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Mean    decimal.Decimal `json:"mean"`
}

// Summarize computes item and category counts and, when any item has a
// numeric value under priceColumn, its price statistics.
func Summarize(report StructuredReport, priceColumn string) Summary {
	if priceColumn == "" {
		priceColumn = DefaultPriceColumn
	}

	return Summary{
		FileName:     report.Metadata.FileName,
		LatestUpdate: report.Metadata.DateProcessed,
		TotalItems:   len(report.Items),
		Categories:   len(Categories(report)),
		SpecialNotes: len(report.SpecialNotes),
		Price:        priceStats(report.Items, priceColumn),
	}
}

func priceStats(items []Item, column string) *PriceStats {
	stats := &PriceStats{Column: column}
	sum := decimal.Zero

	for _, item := range items {
		raw, ok := item[column]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := ParsePrice(raw)
		if err != nil {
			stats.Skipped++
			continue
		}
		if stats.Count == 0 || d.LessThan(stats.Min) {
			stats.Min = d
		}
		if stats.Count == 0 || d.GreaterThan(stats.Max) {
			stats.Max = d
		}
		sum = sum.Add(d)
		stats.Count++
	}

	if stats.Count == 0 {
		return nil
	}
	stats.Mean = sum.Div(decimal.NewFromInt(int64(stats.Count))).Round(2)
	return stats
}

// ParsePrice parses a price cell, tolerating thousands separators and a
// leading currency prefix such as "Rs." or "$".
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimLeft(s, "$€£")
	if len(s) > 3 && strings.EqualFold(s[:3], "rs.") {
		s = s[3:]
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

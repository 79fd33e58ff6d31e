package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/marketboard/internal/core"
)

func parseCommand(a *app) *cobra.Command {
	var asJSON bool
	var priceColumn string

	cmd := &cobra.Command{
		Use:   "parse <file.csv>",
		Short: "Parse a price sheet locally and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := parseFile(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printSummary(cmd.OutOrStdout(), core.Summarize(report, priceColumn), core.Categories(report))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured report as JSON")
	cmd.Flags().StringVar(&priceColumn, "price-column", core.DefaultPriceColumn, "Column summarized as prices")
	return cmd
}

func pushCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push <file.csv>",
		Short: "Parse a price sheet and store it on the report server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := parseFile(args[0])
			if err != nil {
				return err
			}
			rec, err := a.client().Upload(cmd.Context(), report)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored report %d (%s, %d items)\n",
				rec.ID, report.Metadata.FileName, len(report.Items))
			return nil
		},
	}
}

func latestCommand(a *app) *cobra.Command {
	var asJSON bool
	var priceColumn string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently stored report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, rec, ok, err := a.client().FetchLatestReport(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "no report stored")
				return nil
			}
			if asJSON {
				return writeJSON(out, report)
			}

			sum := core.Summarize(report, priceColumn)
			if rec.FileName != "" {
				sum.FileName = rec.FileName
			}
			fmt.Fprintf(out, "Record %d, uploaded %s\n", rec.ID, formatTime(rec.UploadDate))
			return printSummary(out, sum, core.Categories(report))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured report as JSON")
	cmd.Flags().StringVar(&priceColumn, "price-column", core.DefaultPriceColumn, "Column summarized as prices")
	return cmd
}

func listCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := a.client().List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "no reports stored")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tUPLOADED")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", rec.ID, rec.DisplayName(), formatTime(rec.UploadDate))
			}
			return tw.Flush()
		},
	}
}

func deleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid request: report id %q", args[0])
			}
			if err := a.client().DeleteRecord(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted report %d\n", id)
			return nil
		},
	}
}

func queryCommand(a *app) *cobra.Command {
	var search, category string
	var tab int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search the items of the latest report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, _, ok, err := a.client().FetchLatestReport(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "no report stored")
				return nil
			}

			var items []core.Item
			if category != "" {
				label := core.NormalizedCategory(core.Item{core.CategoryField: category})
				items = core.FilterByCategory(report, search, label)
			} else {
				items = core.Filter(report, search, tab)
			}
			return printItems(out, report.Headers, items, len(report.Items))
		},
	}
	cmd.Flags().StringVarP(&search, "query", "q", "", "Case-insensitive text to match in any column")
	cmd.Flags().IntVar(&tab, "tab", 0, "Category tab: 0 for all, 1.. for the categories in order")
	cmd.Flags().StringVar(&category, "category", "", "Category label; overrides --tab")
	return cmd
}

func parseFile(path string) (core.StructuredReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.StructuredReport{}, err
	}
	defer f.Close()
	return core.Parse(f, filepath.Base(path))
}

func printSummary(w io.Writer, sum core.Summary, categories []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", sum.FileName)
	fmt.Fprintf(tw, "Processed:\t%s\n", formatTime(sum.LatestUpdate))
	fmt.Fprintf(tw, "Items:\t%d\n", sum.TotalItems)
	fmt.Fprintf(tw, "Categories:\t%d %s\n", sum.Categories, bracketed(categories))
	fmt.Fprintf(tw, "Special notes:\t%d\n", sum.SpecialNotes)
	if p := sum.Price; p != nil {
		fmt.Fprintf(tw, "%s:\t%s - %s, mean %s over %d items\n",
			p.Column, p.Min.String(), p.Max.String(), p.Mean.StringFixed(2), p.Count)
	}
	return tw.Flush()
}

func printItems(w io.Writer, headers []string, items []core.Item, total int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	labels := make([]string, len(headers))
	for i, h := range headers {
		labels[i] = strings.ToUpper(strings.ReplaceAll(h, "-", " "))
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t"))
	for _, item := range items {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = item[h]
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d items\n", len(items), total)
	return err
}

func bracketed(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	return "(" + strings.Join(categories, ", ") + ")"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package templates holds the HTML components served by the web package.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/marketboard/internal/core"
)

// ReportPageData is everything the latest-report page shows.
type ReportPageData struct {
	Summary    core.Summary
	Notes      []core.SpecialNote
	Headers    []string
	Items      []core.Item
	Categories []string
	ActiveTab  int
	Query      string
}

// HeaderLabel renders a column header for display: dashes become spaces.
func HeaderLabel(h string) string {
	return strings.ReplaceAll(h, "-", " ")
}

// ReportPage renders the latest report with its category tabs, search box
// and notes.
func ReportPage(d ReportPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<title>Market prices</title></head><body><main class="report">`)

		p.raw(`<header><h1>`)
		p.text(d.Summary.FileName)
		p.raw(`</h1><p class="updated">Latest update: `)
		p.text(formatTime(d.Summary.LatestUpdate))
		p.raw(`</p><p class="totals">`)
		p.text(fmt.Sprintf("%d items in %d categories", d.Summary.TotalItems, d.Summary.Categories))
		p.raw(`</p></header>`)

		if len(d.Notes) > 0 {
			p.raw(`<section class="notes"><h2>Special notes</h2><ul>`)
			for _, n := range d.Notes {
				p.raw(`<li><strong>`)
				p.text(n.Category)
				p.raw(`</strong> `)
				p.text(n.Note)
				p.raw(`</li>`)
			}
			p.raw(`</ul></section>`)
		}

		p.raw(`<form method="get" class="search"><input type="search" name="q" value="`)
		p.text(d.Query)
		p.raw(`" placeholder="Search items"><input type="hidden" name="tab" value="`)
		p.text(strconv.Itoa(d.ActiveTab))
		p.raw(`"><button type="submit">Search</button></form>`)

		p.raw(`<nav class="tabs">`)
		for i, label := range append([]string{"All"}, d.Categories...) {
			p.raw(`<a href="?`)
			p.text(url.Values{"tab": {strconv.Itoa(i)}, "q": {d.Query}}.Encode())
			if i == d.ActiveTab {
				p.raw(`" class="active">`)
			} else {
				p.raw(`">`)
			}
			p.text(label)
			p.raw(`</a>`)
		}
		p.raw(`</nav>`)

		p.raw(`<table><thead><tr>`)
		for _, h := range d.Headers {
			p.raw(`<th>`)
			p.text(HeaderLabel(h))
			p.raw(`</th>`)
		}
		p.raw(`</tr></thead><tbody>`)
		for _, item := range d.Items {
			p.raw(`<tr>`)
			for _, h := range d.Headers {
				p.raw(`<td>`)
				p.text(item[h])
				p.raw(`</td>`)
			}
			p.raw(`</tr>`)
		}
		if len(d.Items) == 0 {
			p.raw(`<tr><td class="empty" colspan="`)
			p.text(strconv.Itoa(max(len(d.Headers), 1)))
			p.raw(`">No matching items</td></tr>`)
		}
		p.raw(`</tbody></table></main></body></html>`)
		return p.err
	})
}

// EmptyPage is shown when nothing has been uploaded yet.
func EmptyPage(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Market prices</title></head><body><main class="report">`)
		if err := ErrorAlert(msg.Message, msg.Action, msg.Code).Render(ctx, w); err != nil {
			return err
		}
		p.raw(`</main></body></html>`)
		return p.err
	})
}

// ErrorAlert renders a user-facing error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<div class="alert" role="alert"><p class="message">`)
		p.text(message)
		p.raw(`</p>`)
		if action != "" {
			p.raw(`<p class="action">`)
			p.text(action)
			p.raw(`</p>`)
		}
		p.raw(`<p class="code">Code: `)
		p.text(code)
		p.raw(`</p></div>`)
		return p.err
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// printer writes markup, remembering the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

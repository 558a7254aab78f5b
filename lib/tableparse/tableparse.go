// Package tableparse pulls structured rows out of the messy HTML tables
// the school portals render. The tables are surrounded by ads and
// header noise and their markup drifts between portal versions, so the
// parser is deliberately tolerant: anything it cannot classify as a
// data row is skipped, and a missing table yields an empty result.
package tableparse

import (
	"context"
	"errors"
	"strings"

	"hwscraper-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("hwscraper.lib.tableparse")

// ErrTableNotFound means the page loaded but the target table is not in
// it. A table that is present but holds no data rows is not this error:
// that is the normal "nothing assigned" state and parses to an empty
// slice. Callers decide whether a missing table is a portal redesign or
// just an empty page state.
var ErrTableNotFound = errors.New("target table not found")

// Row is one data row of the target table. Cells hold the text of each
// <td> in order. Completed reports whether the row's class/style
// attributes mark it as struck through or greyed out; this is a
// presentation heuristic, not a guarantee the portal tracks completion.
type Row struct {
	Cells     []string
	Completed bool
}

type Options struct {
	// Selector locates the target table, e.g. "table.classhomework"
	// or "table#cWorksListTable". Only the first match is parsed.
	Selector string
	// NoiseClasses are substrings of row/cell class attributes that
	// mark advertisement or filler rows to be dropped.
	NoiseClasses []string
	// RichTextColumns maps a zero-based column index to a child
	// selector whose text is preferred over the cell's own
	// concatenated text when the child is present and non-empty. The
	// portals sometimes wrap the meaningful description in a <p>
	// inside a cell full of incidental markup.
	RichTextColumns map[int]string
	// CompletedClassKeywords and CompletedStyleKeywords drive the
	// struck-through/greyed row heuristic.
	CompletedClassKeywords []string
	CompletedStyleKeywords []string
	// MinCells drops truncated rows with fewer cells.
	MinCells int
}

// DefaultCompletedClassKeywords matches the row classes the portals use
// for finished tasks.
var DefaultCompletedClassKeywords = []string{
	"completed", "done", "finished", "inactive",
}

// DefaultCompletedStyleKeywords matches inline styles for greyed or
// struck-through rows.
var DefaultCompletedStyleKeywords = []string{
	"opacity", "line-through", "gray", "grey", "#999", "#ccc",
}

// ParseTable extracts data rows from the first table matching
// opts.Selector. Header rows (containing <th>) and noise rows are
// skipped. A present but empty table yields an empty result, no
// homework is a perfectly valid page state; an absent table is
// ErrTableNotFound.
func ParseTable(ctx context.Context, doc *goquery.Document, opts Options) ([]Row, error) {
	_, span := tracer.Start(ctx, "ParseTable")
	defer span.End()

	table := doc.Find(opts.Selector).First()
	if len(table.Nodes) == 0 {
		span.SetAttributes(attribute.Bool("table_found", false))
		return nil, ErrTableNotFound
	}

	var rows []Row
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if isHeaderRow(tr) || isNoiseRow(tr, opts.NoiseClasses) {
			return
		}

		cells := extractCells(tr, opts.RichTextColumns)
		if len(cells) == 0 || len(cells) < opts.MinCells {
			return
		}

		rows = append(rows, Row{
			Cells:     cells,
			Completed: isCompletedRow(tr, opts),
		})
	})

	span.SetAttributes(
		attribute.Bool("table_found", true),
		attribute.Int("rows", len(rows)),
	)
	return rows, nil
}

func isHeaderRow(tr *goquery.Selection) bool {
	return len(tr.Find("th").Nodes) > 0
}

func isNoiseRow(tr *goquery.Selection, noiseClasses []string) bool {
	if len(noiseClasses) == 0 {
		return false
	}
	class := strings.ToLower(tr.AttrOr("class", ""))
	for _, noise := range noiseClasses {
		if strings.Contains(class, noise) {
			return true
		}
	}
	// single-cell rows holding a noise-classed child are ad containers
	noiseChild := false
	tr.Children().Each(func(_ int, td *goquery.Selection) {
		childClass := strings.ToLower(td.AttrOr("class", ""))
		for _, noise := range noiseClasses {
			if strings.Contains(childClass, noise) {
				noiseChild = true
			}
		}
	})
	return noiseChild
}

func extractCells(tr *goquery.Selection, richTextColumns map[int]string) []string {
	var cells []string
	tr.Find("td").Each(func(i int, td *goquery.Selection) {
		text := textutil.CollapseSpace(td.Text())

		if childSelector, ok := richTextColumns[i]; ok {
			rich := textutil.CollapseSpace(td.Find(childSelector).Text())
			if rich != "" {
				text = rich
			}
		}

		cells = append(cells, text)
	})
	return cells
}

func isCompletedRow(tr *goquery.Selection, opts Options) bool {
	classKeywords := opts.CompletedClassKeywords
	if classKeywords == nil {
		classKeywords = DefaultCompletedClassKeywords
	}
	styleKeywords := opts.CompletedStyleKeywords
	if styleKeywords == nil {
		styleKeywords = DefaultCompletedStyleKeywords
	}

	class := strings.ToLower(tr.AttrOr("class", ""))
	for _, keyword := range classKeywords {
		if strings.Contains(class, keyword) {
			return true
		}
	}

	style := strings.ToLower(tr.AttrOr("style", ""))
	for _, keyword := range styleKeywords {
		if strings.Contains(style, keyword) {
			return true
		}
	}

	return false
}

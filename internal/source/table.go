package source

import (
	"context"
	"regexp"
	"strings"

	"github.com/k3a/html2text"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/model"
)

// clockOnly matches a cell that holds nothing but a clock time. A location
// cell that looks like this means the row's columns are shifted.
var clockOnly = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(:\d{2})?(\s*[AP]M)?$`)

// anchorTag matches opening and closing <a> tags but not <abbr> or <area>.
var anchorTag = regexp.MustCompile(`(?i)</?a(\s[^>]*)?>`)

// TableAdapter scrapes the first <table> on an HTML page.
type TableAdapter struct {
	cfg     SourceConfig
	fetcher fetcher.Fetcher
	log     *zap.Logger
}

// NewTableAdapter builds a table adapter. cfg must already be validated.
func NewTableAdapter(cfg SourceConfig, f fetcher.Fetcher) *TableAdapter {
	return &TableAdapter{
		cfg:     cfg,
		fetcher: f,
		log:     zap.L().With(zap.String("component", "source.table"), zap.String("source", string(cfg.Name))),
	}
}

func (a *TableAdapter) Name() model.Source { return a.cfg.Name }
func (a *TableAdapter) Kind() Kind         { return KindTable }

// Fetch downloads the page and parses its table.
func (a *TableAdapter) Fetch(ctx context.Context) ([]RawRow, error) {
	doc, err := a.fetcher.Get(ctx, a.cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: fetch", a.cfg.Name)
	}
	rows, rejected, err := ParseTable(doc.Text(), a.cfg.Columns, a.cfg.MinColumns)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s", a.cfg.Name)
	}
	for i := range rows {
		rows[i].Source = a.cfg.Name
	}
	if rejected > 0 {
		a.log.Debug("rejected malformed rows", zap.Int("rejected", rejected))
	}
	return rows, nil
}

// ParseTable extracts raw rows from the first table in page. It returns the
// accepted rows and the number of data rows rejected for having too few
// cells or a clock time in the location column.
func ParseTable(page string, cols ColumnMap, minColumns int) ([]RawRow, int, error) {
	table, ok := firstTable(page)
	if !ok {
		return nil, 0, eris.New("no <table> found in page")
	}

	var rows []RawRow
	rejected := 0
	for _, chunk := range splitRows(table) {
		cells, header := rowCells(chunk)
		if len(cells) == 0 || header {
			continue
		}
		if len(cells) < minColumns {
			rejected++
			continue
		}
		row := cols.Row(cells)
		if clockOnly.MatchString(row.Location) {
			rejected++
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejected, nil
}

// firstTable returns the inner markup of the first <table>…</table>.
func firstTable(page string) (string, bool) {
	lower := strings.ToLower(page)
	start := indexTag(lower, "<table", 0)
	if start < 0 {
		return "", false
	}
	open := strings.IndexByte(lower[start:], '>')
	if open < 0 {
		return "", false
	}
	bodyStart := start + open + 1
	end := strings.Index(lower[bodyStart:], "</table")
	if end < 0 {
		return page[bodyStart:], true
	}
	return page[bodyStart : bodyStart+end], true
}

// splitRows cuts table markup on <tr boundaries.
func splitRows(table string) []string {
	lower := strings.ToLower(table)
	var out []string
	pos := indexTag(lower, "<tr", 0)
	for pos >= 0 {
		next := indexTag(lower, "<tr", pos+3)
		if next < 0 {
			out = append(out, table[pos:])
			break
		}
		out = append(out, table[pos:next])
		pos = next
	}
	return out
}

// rowCells returns the text of every <td>/<th> cell in a row chunk and
// whether the row held only <th> cells.
func rowCells(row string) ([]string, bool) {
	lower := strings.ToLower(row)
	var cells []string
	sawData := false

	pos := nextCell(lower, 0)
	for pos >= 0 {
		if strings.HasPrefix(lower[pos:], "<td") {
			sawData = true
		}
		open := strings.IndexByte(lower[pos:], '>')
		if open < 0 {
			break
		}
		contentStart := pos + open + 1
		next := nextCell(lower, contentStart)
		contentEnd := len(row)
		if next >= 0 {
			contentEnd = next
		}
		if end := closingCell(lower[contentStart:contentEnd]); end >= 0 {
			contentEnd = contentStart + end
		}
		cells = append(cells, cellText(row[contentStart:contentEnd]))
		pos = next
	}
	return cells, len(cells) > 0 && !sawData
}

func nextCell(lower string, from int) int {
	td := indexTag(lower, "<td", from)
	th := indexTag(lower, "<th", from)
	switch {
	case td < 0:
		return th
	case th < 0:
		return td
	default:
		return min(td, th)
	}
}

func closingCell(lower string) int {
	td := strings.Index(lower, "</td")
	th := strings.Index(lower, "</th")
	switch {
	case td < 0:
		return th
	case th < 0:
		return td
	default:
		return min(td, th)
	}
}

// indexTag finds tag (e.g. "<tr") at or after from, requiring the next byte
// to end the tag name so "<tr" does not match "<track".
func indexTag(lower, tag string, from int) int {
	for from <= len(lower) {
		i := strings.Index(lower[from:], tag)
		if i < 0 {
			return -1
		}
		at := from + i
		end := at + len(tag)
		if end >= len(lower) {
			return at
		}
		switch lower[end] {
		case '>', ' ', '\t', '\n', '\r', '/':
			return at
		}
		from = end
	}
	return -1
}

// cellText strips nested markup, decodes entities and collapses whitespace.
func cellText(inner string) string {
	text := pageText(inner)
	return strings.Join(strings.Fields(text), " ")
}

// pageText converts markup to plain text. Links keep their inner text and
// lose the href; html2text would otherwise emit the URL in its place.
func pageText(markup string) string {
	return html2text.HTML2Text(anchorTag.ReplaceAllString(markup, ""))
}

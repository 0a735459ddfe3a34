// Package extract pulls candidate transactions out of a bank page's DOM.
//
// A page is parsed once into a Snapshot. Each Strategy selects rows from it and maps
// a single row to raw fields; the Extractor runs every strategy in priority order,
// cleans the fields and assigns extraction ordinals. Nothing here needs a live browser.
package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Veraticus/spice-harvest/internal/clean"
)

// Snapshot is a parsed, read-only DOM dump of one page.
type Snapshot struct {
	doc *goquery.Document
	URL string
}

// ParseSnapshot parses serialized HTML into a Snapshot.
func ParseSnapshot(url string, r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return &Snapshot{doc: doc, URL: url}, nil
}

// SnapshotFromHTML is ParseSnapshot over an in-memory string.
func SnapshotFromHTML(url, markup string) (*Snapshot, error) {
	return ParseSnapshot(url, strings.NewReader(markup))
}

// Rows returns every element matching selector in document order.
// When leafOnly is set, elements that contain another match are skipped so a list
// container is never mistaken for one of its own rows.
func (s *Snapshot) Rows(selector string, leafOnly bool) []Row {
	var rows []Row
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if leafOnly && sel.Find(selector).Length() > 0 {
			return
		}
		rows = append(rows, Row{sel: sel})
	})
	return rows
}

// Row is a read-only view over one matched DOM element.
type Row struct {
	sel *goquery.Selection
}

// Text is the element's text exactly as the DOM concatenates it, artifacts included.
func (r Row) Text() string {
	return r.sel.Text()
}

// Attr returns an attribute value, or "" when absent.
func (r Row) Attr(name string) string {
	v, _ := r.sel.Attr(name)
	return v
}

// HasClassFragment reports whether any class on the row contains fragment.
func (r Row) HasClassFragment(fragment string) bool {
	return strings.Contains(strings.ToLower(r.Attr("class")), fragment)
}

// Find returns the whitespace-collapsed text of the first descendant matching selector.
func (r Row) Find(selector string) (string, bool) {
	found := r.sel.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	return clean.Whitespace(found.Text()), true
}

// Cells returns the whitespace-collapsed text of each child matching selector.
func (r Row) Cells(selector string) []string {
	var cells []string
	r.sel.Find(selector).Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, clean.Whitespace(cell.Text()))
	})
	return cells
}

// Segments returns each non-empty text node under the row, in document order.
// Unlike Text it keeps the boundaries the markup had.
func (r Row) Segments() []string {
	var segments []string
	for _, n := range r.sel.Nodes {
		collectText(n, &segments)
	}
	return segments
}

// Is reports whether the row itself matches selector.
func (r Row) Is(selector string) bool {
	return r.sel.Is(selector)
}

// Within reports whether an ancestor of the row matches selector.
func (r Row) Within(selector string) bool {
	return r.sel.ParentsFiltered(selector).Length() > 0
}

// Closest returns the nearest ancestor matching selector.
func (r Row) Closest(selector string) (Row, bool) {
	c := r.sel.Closest(selector)
	if c.Length() == 0 {
		return Row{}, false
	}
	return Row{sel: c}, true
}

// Count returns how many descendants match selector.
func (r Row) Count(selector string) int {
	return r.sel.Find(selector).Length()
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if s := clean.Whitespace(n.Data); s != "" {
			*out = append(*out, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

// Package universe builds the list of symbols to research.
package universe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrColumnNotFound is returned when no table carries the requested header.
var ErrColumnNotFound = errors.New("symbol column not found")

// FromHTML extracts tickers from the first table whose header row contains
// column (case-insensitive), e.g. the constituents table of an index page.
func FromHTML(r io.Reader, column string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	want := strings.ToLower(strings.TrimSpace(column))

	var symbols []string
	found := false
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		idx := -1
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			if idx < 0 && strings.ToLower(strings.TrimSpace(cell.Text())) == want {
				idx = i
			}
		})
		if idx < 0 {
			return true
		}
		found = true
		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cell := row.Find("th, td").Eq(idx)
			if cell.Length() == 0 {
				return
			}
			symbols = append(symbols, cell.Text())
		})
		return false
	})
	if !found {
		return nil, fmt.Errorf("%q: %w", column, ErrColumnNotFound)
	}
	return Normalize(symbols), nil
}

// FromFile reads symbols from an .html/.htm page (using the "Symbol" column)
// or from a text file with one symbol per line. Lines starting with # are ignored.
func FromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open universe: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FromHTML(f, "Symbol")
	}

	var symbols []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.Fields(line)[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return Normalize(symbols), nil
}

// Normalize upper-cases, trims and de-duplicates symbols, keeping first-seen order.
// Share classes keep their dot (BRK.B); vendors that spell them differently
// translate inside their fetcher.
func Normalize(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

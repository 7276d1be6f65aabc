// Package listing implements rank.ListingPage on top of goquery.
package listing

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/dorank/internal/rank"
)

// Default selectors for the directory's organization listing.
const (
	DefaultContainerSelector = ".view-drupalorg-organizations .view-content"
	DefaultTargetFormat      = "#node-%s"
	DefaultNextSelector      = ".pager .pager-next a"
)

// Config holds the CSS selectors that describe a listing page.
type Config struct {
	// ContainerSelector matches the element whose children are the entries.
	ContainerSelector string
	// TargetFormat is a fmt pattern turning an entity id into a selector.
	TargetFormat string
	// NextSelector matches the "next page" anchor.
	NextSelector string
}

func (c Config) withDefaults() Config {
	if c.ContainerSelector == "" {
		c.ContainerSelector = DefaultContainerSelector
	}
	if c.TargetFormat == "" {
		c.TargetFormat = DefaultTargetFormat
	}
	if c.NextSelector == "" {
		c.NextSelector = DefaultNextSelector
	}
	return c
}

// Parser builds goquery-backed listing pages.
type Parser struct {
	cfg Config
}

// NewParser constructs a Parser, filling in default selectors.
func NewParser(cfg Config) (*Parser, error) {
	cfg = cfg.withDefaults()
	if strings.Count(cfg.TargetFormat, "%s") != 1 {
		return nil, fmt.Errorf("target format %q must contain exactly one %%s", cfg.TargetFormat)
	}
	return &Parser{cfg: cfg}, nil
}

// Parse implements rank.Parser.
func (p *Parser) Parse(body []byte) (rank.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{doc: doc, cfg: p.cfg}, nil
}

// Page is a parsed listing page.
type Page struct {
	doc *goquery.Document
	cfg Config
}

// ItemCount returns the number of entries inside the listing container.
func (p *Page) ItemCount() int {
	return p.doc.Find(p.cfg.ContainerSelector).Children().Length()
}

// FindTarget returns the first element matching the entity's selector.
func (p *Page) FindTarget(targetID string) (rank.Element, bool) {
	sel := p.doc.Find(fmt.Sprintf(p.cfg.TargetFormat, targetID)).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return sel, true
}

// PrecedingSiblingCount counts the entries before the one holding el. The
// entry is el itself, or its nearest ancestor, that sits directly inside the
// listing container; without a container it falls back to el's parent.
func (p *Page) PrecedingSiblingCount(el rank.Element) int {
	sel, ok := el.(*goquery.Selection)
	if !ok || sel == nil {
		return 0
	}
	entry := sel.Closest(p.cfg.ContainerSelector + " > *")
	if entry.Length() == 0 {
		entry = sel.Parent()
	}
	return entry.PrevAll().Length()
}

// NextPageHref returns the href of the pager's next link.
func (p *Page) NextPageHref() (string, bool) {
	href, ok := p.doc.Find(p.cfg.NextSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

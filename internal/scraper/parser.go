package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// FabricRecord is one validated catalog entry as harvested, before it is
// persisted or chunked.
type FabricRecord struct {
	FabricCode       string
	Name             string
	Composition      string
	Weight           int
	Color            string
	Pattern          string
	Category         string
	StockStatus      string
	Description      string
	CareInstructions string
	Supplier         string
	Seasons          []string
	ImageURLs        []string
	Images           []ImageAsset
	ScrapeDate       time.Time
}

// ImageAsset describes one downloaded swatch photo.
type ImageAsset struct {
	URL       string
	LocalPath string
	Width     int
	Height    int
	FileSize  int
	Format    string
}

var (
	fabricCodeRe = regexp.MustCompile(`\b([A-Z0-9]{6,8})\b`)
	weightRe     = regexp.MustCompile(`(\d{2,3})\s*g`)
	containerRe  = regexp.MustCompile(`(?i)fabric|product|item|row`)
	hasDigitRe   = regexp.MustCompile(`\d`)
)

// imageCategoryDirs are the marketing directories the catalog files swatch
// photos under, used to construct candidate URLs when a listing has no inline
// image.
var imageCategoryDirs = []string{"Ceremony Suits", "Business Suits", "Casual Wear"}

// Parser is the boundary between raw catalog HTML and validated records.
type Parser struct {
	baseURL      string
	imageBaseURL string
}

func NewParser(cfg Config) *Parser {
	return &Parser{baseURL: cfg.BaseURL, imageBaseURL: cfg.ImageBaseURL}
}

// ParsePage extracts fabric records from one listing page. Containers that
// cannot be parsed are reported as ParseErrors and skipped; a malformed
// container never aborts the page.
func (p *Parser) ParsePage(pageHTML string, page int) ([]FabricRecord, []error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, []error{&ParseError{Page: page, Detail: fmt.Sprintf("invalid html: %v", err)}}
	}

	containers := findContainers(doc)
	records := make([]FabricRecord, 0, len(containers))
	var parseErrs []error
	for _, container := range containers {
		record, ok, err := p.extractRecord(container)
		if err != nil {
			parseErrs = append(parseErrs, &ParseError{Page: page, Detail: err.Error()})
			continue
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, parseErrs
}

// findContainers collects listing elements: div/tr/article nodes whose class
// looks like a product row, falling back to plain table rows.
func findContainers(doc *html.Node) []*html.Node {
	var matched []*html.Node
	var tableRows []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "div", "tr", "article":
			if containerRe.MatchString(attrVal(n, "class")) {
				matched = append(matched, n)
			}
			if n.Data == "tr" {
				tableRows = append(tableRows, n)
			}
		}
	})
	if len(matched) > 0 {
		return matched
	}
	return tableRows
}

// extractRecord pulls one fabric out of a container. A container without a
// plausible fabric code is not a listing and is silently skipped; a container
// with a code but unusable fields is a ParseError.
func (p *Parser) extractRecord(container *html.Node) (FabricRecord, bool, error) {
	text := textContent(container)
	code := findFabricCode(text)
	if code == "" {
		return FabricRecord{}, false, nil
	}

	record := FabricRecord{
		FabricCode: code,
		Name:       firstText(container, "h1", "h2", "h3", "h4"),
		Supplier:   "Formens",
		ScrapeDate: time.Now().UTC(),
	}
	if record.Name == "" {
		record.Name = firstTextByClass(container, "name", "title")
	}
	if record.Name == "" {
		record.Name = code
	}
	record.Composition = firstTextByClass(container, "composition", "material", "fabric-type")
	record.Color = firstTextByClass(container, "color", "colour")
	record.Pattern = firstTextByClass(container, "pattern")
	record.StockStatus = firstTextByClass(container, "stock", "availability")

	if m := weightRe.FindStringSubmatch(text); m != nil {
		weight, err := strconv.Atoi(m[1])
		if err != nil {
			return FabricRecord{}, false, fmt.Errorf("fabric %s: weight %q not numeric", code, m[1])
		}
		record.Weight = weight
	}

	record.ImageURLs = p.imageURLs(container, code)
	return record, true, nil
}

// findFabricCode returns the first token shaped like a fabric code. Codes
// always carry at least one digit, which keeps ordinary uppercase words out.
func findFabricCode(text string) string {
	for _, m := range fabricCodeRe.FindAllStringSubmatch(text, -1) {
		if hasDigitRe.MatchString(m[1]) {
			return m[1]
		}
	}
	return ""
}

// imageURLs collects inline swatch images, resolving relative paths against
// the catalog origin. When a listing carries no image the known marketing
// directory layout gives candidate URLs to probe later.
func (p *Parser) imageURLs(container *html.Node, code string) []string {
	var urls []string
	walk(container, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "img" {
			return
		}
		src := attrVal(n, "src")
		if src == "" {
			src = attrVal(n, "data-src")
		}
		if src == "" {
			return
		}
		if resolved := resolveURL(p.baseURL, src); resolved != "" {
			urls = append(urls, resolved)
		}
	})
	if len(urls) > 0 {
		return urls
	}
	for _, dir := range imageCategoryDirs {
		urls = append(urls, fmt.Sprintf("%s/%s/05._%s.jpg", p.imageBaseURL, url.PathEscape(dir), code))
	}
	return urls
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteString(" ")
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// firstText returns the trimmed text of the first matching element tag.
func firstText(n *html.Node, tags ...string) string {
	want := map[string]bool{}
	for _, t := range tags {
		want[t] = true
	}
	var out string
	walk(n, func(c *html.Node) {
		if out != "" || c.Type != html.ElementNode || !want[c.Data] {
			return
		}
		if text := textContent(c); text != "" {
			out = text
		}
	})
	return out
}

// firstTextByClass returns the trimmed text of the first element whose class
// attribute contains one of the given class names.
func firstTextByClass(n *html.Node, classes ...string) string {
	var out string
	walk(n, func(c *html.Node) {
		if out != "" || c.Type != html.ElementNode {
			return
		}
		classAttr := strings.ToLower(attrVal(c, "class"))
		if classAttr == "" {
			return
		}
		for _, class := range classes {
			for _, have := range strings.Fields(classAttr) {
				if have == class {
					if text := textContent(c); text != "" {
						out = text
					}
					return
				}
			}
		}
	})
	return out
}

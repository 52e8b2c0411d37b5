package extract

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/asaifulas/ragcrawler/internal/source"
)

// extractWebPage walks a web source, one unit per visited page. Pagination
// stops at max_pages, at the first page with no next link, or when a URL
// repeats (sites whose "next" on the last page points back to page one).
func (e *Extractor) extractWebPage(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	if src.Rendering != nil && src.Rendering.UseJavaScript {
		if e.renderer != nil {
			return e.extractRenderedPage(ctx, src)
		}
		log.Printf("%s wants JavaScript rendering but no renderer is available, fetching statically", src.Location)
	}

	maxPages := 1
	paginated := src.Pagination != nil && src.Pagination.Enabled
	if paginated {
		maxPages = src.Pagination.MaxPages
	}

	var (
		units   []Unit
		visited = map[string]bool{}
		pageURL = src.Location
		referer string
	)
	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if visited[pageURL] {
			log.Printf("pagination cycle at %s, stopping after %d pages", pageURL, pageNum-1)
			break
		}
		visited[pageURL] = true

		doc, err := e.fetcher.GetHTML(ctx, pageURL, referer)
		if err != nil {
			if pageNum == 1 {
				return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
			}
			log.Printf("stopping pagination of %s: %v", src.Location, err)
			break
		}

		if text := contentText(doc, contentSelector(src)); text != "" {
			units = append(units, Unit{Text: text, URL: pageURL})
		}

		if !paginated {
			break
		}
		next := nextPageURL(doc, src.Pagination, pageURL)
		if next == "" {
			break
		}
		referer = pageURL
		pageURL = next
	}
	return units, nil
}

func (e *Extractor) extractRenderedPage(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	htmls, err := e.renderer.Render(ctx, src.Location, renderOptions(src))
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}

	var units []Unit
	for _, html := range htmls {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: fmt.Errorf("parse rendered page: %w", err)}
		}
		if text := contentText(doc, contentSelector(src)); text != "" {
			units = append(units, Unit{Text: text, URL: src.Location})
		}
	}
	return units, nil
}

// fetchDocument returns the source's (first) page DOM, rendered when the
// source asks for it.
func (e *Extractor) fetchDocument(ctx context.Context, src source.Descriptor) (*goquery.Document, error) {
	if src.Rendering != nil && src.Rendering.UseJavaScript && e.renderer != nil {
		opts := renderOptions(src)
		opts.NextButtonSelector = "" // only the first page is needed here
		htmls, err := e.renderer.Render(ctx, src.Location, opts)
		if err != nil {
			return nil, err
		}
		if len(htmls) == 0 {
			return nil, fmt.Errorf("renderer returned no page for %s", src.Location)
		}
		return goquery.NewDocumentFromReader(strings.NewReader(htmls[0]))
	}
	return e.fetcher.GetHTML(ctx, src.Location, "")
}

func renderOptions(src source.Descriptor) RenderOptions {
	opts := RenderOptions{MaxPages: 1}
	if src.Rendering != nil {
		opts.WaitSeconds = src.Rendering.WaitTime
		opts.WaitForSelector = src.Rendering.WaitForSelector
	}
	if src.Pagination != nil && src.Pagination.Enabled {
		opts.NextButtonSelector = src.Pagination.NextButtonSelector
		opts.MaxPages = src.Pagination.MaxPages
		if src.Pagination.WaitTime > 0 {
			opts.WaitSeconds = src.Pagination.WaitTime
		}
	}
	return opts
}

// contentText pulls the selected element's text, collapsing runs of
// whitespace the way browsers display them.
func contentText(doc *goquery.Document, selector string) string {
	if selector == "" {
		selector = "body"
	}
	raw := doc.Find(selector).Text()
	return strings.Join(strings.Fields(raw), " ")
}

// nextPageURL resolves the pagination link, preferring an explicit next-link
// selector and falling back to the next-button selector for sites whose
// button is a plain anchor.
func nextPageURL(doc *goquery.Document, p *source.Pagination, current string) string {
	for _, selector := range []string{p.NextLinkSelector, p.NextButtonSelector} {
		if selector == "" {
			continue
		}
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		if resolved := resolveURL(current, href); resolved != "" {
			return resolved
		}
	}
	return ""
}

// collectPDFLinks returns the deduplicated absolute PDF URLs matched by the
// selector, in document order.
func collectPDFLinks(doc *goquery.Document, selector, baseURL string) ([]string, error) {
	if selector == "" {
		selector = `a[href$='.pdf']`
	}
	seen := map[string]bool{}
	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveURL(baseURL, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links, nil
}

func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := b.ResolveReference(h)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
